package client

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/oysterpack/oysterpack-smart/auction"
	"github.com/oysterpack/oysterpack-smart/ledger"
)

// AuctionBidder places bids on one auction instance.
type AuctionBidder struct {
	ledger *ledger.Ledger
	app    ledger.AppID
	sender ledger.Address
}

// ConnectBidder returns a bidder client for an existing auction.
func ConnectBidder(l *ledger.Ledger, app ledger.AppID, bidder ledger.Address) (*AuctionBidder, error) {
	if !l.AppExists(app) {
		return nil, fmt.Errorf("application %d: %w", app, ledger.ErrNotFound)
	}
	return &AuctionBidder{ledger: l, app: app, sender: bidder}, nil
}

// State returns the auction's current decoded state.
func (b *AuctionBidder) State() (auction.State, error) {
	raw, err := b.ledger.AppState(b.app)
	if err != nil {
		return auction.State{}, err
	}
	return auction.StateFromRaw(raw), nil
}

// Bid deposits amount of the bid asset with the auction and registers it as
// the new highest bid, atomically. A rejected bid leaves the deposit with
// the bidder.
func (b *AuctionBidder) Bid(amount uint64) error {
	st, err := b.State()
	if err != nil {
		return err
	}
	if st.BidAssetID == 0 {
		return fmt.Errorf("auction has no bid asset configured: %w", ledger.ErrInvalidState)
	}
	xfer := ledger.NewAssetTransfer(b.sender, st.BidAssetID, ledger.AppAddress(b.app), amount)
	xfer.Note = AppTxnNote{App: auction.AuctionName, Method: auction.MethodBid}.String()
	call := ledger.NewAppCall(b.sender, b.app, auction.MethodBid)
	call.Note = xfer.Note
	_, err = b.ledger.Execute([]ledger.Transaction{xfer, call})
	return err
}

// OptInBidAsset opts the bidder's account into the auction's bid asset so
// that refunds can be delivered when the bidder is outbid.
func (b *AuctionBidder) OptInBidAsset() error {
	st, err := b.State()
	if err != nil {
		return err
	}
	if st.BidAssetID == 0 {
		return fmt.Errorf("auction has no bid asset configured: %w", ledger.ErrInvalidState)
	}
	if _, opted := b.ledger.AssetBalance(b.sender, st.BidAssetID); opted {
		return nil
	}
	optin := ledger.NewAssetOptIn(b.sender, st.BidAssetID)
	optin.Note = AppTxnNote{App: auction.AuctionName, Method: "optin_bid_asset"}.String()
	_, err = b.ledger.Execute([]ledger.Transaction{optin})
	return err
}

// OptInAuctionAssets opts the bidder's account into every sale asset the
// auction escrows, so winnings can be delivered at settlement.
func (b *AuctionBidder) OptInAuctionAssets() error {
	st, err := b.State()
	if err != nil {
		return err
	}
	var group []ledger.Transaction
	for _, h := range b.ledger.AccountAssets(ledger.AppAddress(b.app)) {
		if h.AssetID == st.BidAssetID {
			continue
		}
		if _, opted := b.ledger.AssetBalance(b.sender, h.AssetID); opted {
			continue
		}
		optin := ledger.NewAssetOptIn(b.sender, h.AssetID)
		optin.Note = AppTxnNote{App: auction.AuctionName, Method: "optin_auction_assets"}.String()
		group = append(group, optin)
	}
	if len(group) == 0 {
		return nil
	}
	_, err = b.ledger.Execute(group)
	return err
}

// NextBid suggests a bid for the auction's current state: the lowest amount
// that can win, scaled by factor. A factor of one (or less) returns the
// minimal winning bid; 1.05 bids five percent over the floor. The suggestion
// never falls below the minimal winning bid.
func NextBid(st auction.State, factor decimal.Decimal) uint64 {
	floor := max(st.MinBid, st.HighestBid)
	minimal := floor + 1
	if factor.LessThanOrEqual(decimal.New(1, 0)) {
		return minimal
	}
	scaled := decimal.New(int64(floor), 0).Mul(factor).Ceil()
	if suggestion := uint64(scaled.IntPart()); suggestion > minimal {
		return suggestion
	}
	return minimal
}
