package client

import (
	"fmt"
	"time"

	"github.com/oysterpack/oysterpack-smart/auction"
	"github.com/oysterpack/oysterpack-smart/ledger"
)

// AuctionClient drives one auction instance, typically on behalf of its
// seller. Operations that raise the auction account's reserve include the
// required prefunding payment in the same group.
type AuctionClient struct {
	ledger *ledger.Ledger
	app    ledger.AppID
	sender ledger.Address
}

// ConnectAuction returns a client for an existing auction, acting as sender.
func ConnectAuction(l *ledger.Ledger, app ledger.AppID, sender ledger.Address) (*AuctionClient, error) {
	if !l.AppExists(app) {
		return nil, fmt.Errorf("application %d: %w", app, ledger.ErrNotFound)
	}
	return &AuctionClient{ledger: l, app: app, sender: sender}, nil
}

// AppID returns the auction's application ID.
func (c *AuctionClient) AppID() ledger.AppID { return c.app }

// Address returns the auction's escrow account address.
func (c *AuctionClient) Address() ledger.Address { return ledger.AppAddress(c.app) }

// State returns the auction's current decoded state.
func (c *AuctionClient) State() (auction.State, error) {
	raw, err := c.ledger.AppState(c.app)
	if err != nil {
		return auction.State{}, err
	}
	return auction.StateFromRaw(raw), nil
}

// Assets lists the auction's escrowed holdings.
func (c *AuctionClient) Assets() []ledger.AssetHolding {
	return c.ledger.AccountAssets(c.Address())
}

// LatestTimestamp returns the ledger clock as the auction sees it.
func (c *AuctionClient) LatestTimestamp() (uint64, error) {
	out, err := c.ledger.Execute([]ledger.Transaction{c.call(auction.MethodLatestTimestamp)})
	if err != nil {
		return 0, err
	}
	return ledger.ParseUint64Arg(out[0])
}

// SetBidAsset configures the payment asset and minimum bid. Calling it with
// the current settings is a no-op; changing the bid asset opts the old one
// out first.
func (c *AuctionClient) SetBidAsset(asset ledger.AssetID, minBid uint64) error {
	st, err := c.State()
	if err != nil {
		return err
	}
	if st.BidAssetID == asset && st.MinBid == minBid {
		return nil
	}
	if st.BidAssetID != 0 && st.BidAssetID != asset {
		if err := c.OptOutAsset(st.BidAssetID); err != nil {
			return err
		}
	}
	group := make([]ledger.Transaction, 0, 2)
	if st.BidAssetID != asset {
		if pay := c.optInPrefund(); pay != nil {
			group = append(group, *pay)
		}
	}
	group = append(group, c.call(auction.MethodSetBidAsset,
		ledger.Uint64Arg(uint64(asset)), ledger.Uint64Arg(minBid)))
	_, err = c.ledger.Execute(group)
	return err
}

// OptInAsset opts the auction into a sale asset, prefunding the raised
// reserve. Opting into an asset the auction already holds is a no-op.
func (c *AuctionClient) OptInAsset(asset ledger.AssetID) error {
	if _, opted := c.ledger.AssetBalance(c.Address(), asset); opted {
		return nil
	}
	group := make([]ledger.Transaction, 0, 2)
	if pay := c.optInPrefund(); pay != nil {
		group = append(group, *pay)
	}
	group = append(group, c.call(auction.MethodOptInAsset, ledger.Uint64Arg(uint64(asset))))
	_, err := c.ledger.Execute(group)
	return err
}

// OptOutAsset closes an asset holding back to the seller. Opting out an
// asset the auction does not hold is a no-op.
func (c *AuctionClient) OptOutAsset(asset ledger.AssetID) error {
	if _, opted := c.ledger.AssetBalance(c.Address(), asset); !opted {
		return nil
	}
	_, err := c.ledger.Execute([]ledger.Transaction{
		c.call(auction.MethodOptOutAsset, ledger.Uint64Arg(uint64(asset))),
	})
	return err
}

// Deposit escrows amount of a sale asset with the auction, opting the
// auction in first when needed.
func (c *AuctionClient) Deposit(asset ledger.AssetID, amount uint64) error {
	if err := c.OptInAsset(asset); err != nil {
		return err
	}
	xfer := ledger.NewAssetTransfer(c.sender, asset, c.Address(), amount)
	xfer.Note = AppTxnNote{App: auction.AuctionName, Method: "deposit_asset"}.String()
	_, err := c.ledger.Execute([]ledger.Transaction{xfer})
	return err
}

// WithdrawAsset transfers amount of an escrowed holding back to the seller.
func (c *AuctionClient) WithdrawAsset(asset ledger.AssetID, amount uint64) error {
	_, err := c.ledger.Execute([]ledger.Transaction{
		c.call(auction.MethodWithdrawAsset,
			ledger.Uint64Arg(uint64(asset)), ledger.Uint64Arg(amount)),
	})
	return err
}

// Commit freezes the auction settings and schedules the bidding session. A
// zero start time opens the session immediately.
func (c *AuctionClient) Commit(start, end time.Time) error {
	startTime := c.ledger.LatestTimestamp()
	if !start.IsZero() {
		startTime = uint64(start.Unix())
	}
	_, err := c.ledger.Execute([]ledger.Transaction{
		c.call(auction.MethodCommit,
			ledger.Uint64Arg(startTime), ledger.Uint64Arg(uint64(end.Unix()))),
	})
	return err
}

// AcceptBid accepts the highest bid after the bidding session has ended.
func (c *AuctionClient) AcceptBid() error {
	_, err := c.ledger.Execute([]ledger.Transaction{c.call(auction.MethodAcceptBid)})
	return err
}

// Cancel calls off a New auction and returns its holdings to the seller.
func (c *AuctionClient) Cancel() error {
	_, err := c.ledger.Execute([]ledger.Transaction{c.call(auction.MethodCancel)})
	return err
}

// Finalize settles the auction: it discovers the remaining holdings, derives
// where each is owed, and closes them all out in one atomic group. The
// auction must be ended, with any winning bid already accepted.
func (c *AuctionClient) Finalize() error {
	st, err := c.State()
	if err != nil {
		return err
	}
	holdings := c.Assets()
	if len(holdings) == 0 {
		return nil
	}
	group := make([]ledger.Transaction, 0, len(holdings))
	for _, h := range holdings {
		closeTo := st.Seller
		if st.Status == auction.StatusBidAccepted && h.AssetID != st.BidAssetID {
			closeTo = st.HighestBidder
		}
		group = append(group, c.call(auction.MethodFinalize,
			ledger.Uint64Arg(uint64(h.AssetID)), ledger.AddressArg(closeTo)))
	}
	_, err = c.ledger.Execute(group)
	return err
}

// optInPrefund returns a payment topping the auction account up to cover one
// more asset holding, or nil when the account already has headroom.
func (c *AuctionClient) optInPrefund() *ledger.Transaction {
	required := c.ledger.MinBalanceOf(c.Address()) + ledger.MinBalanceAssetHolding
	balance := c.ledger.AccountBalance(c.Address())
	if balance >= required {
		return nil
	}
	pay := ledger.NewPayment(c.sender, c.Address(), required-balance)
	pay.Note = AppTxnNote{App: auction.AuctionName, Method: "fund_optin"}.String()
	return &pay
}

func (c *AuctionClient) call(method string, args ...[]byte) ledger.Transaction {
	txn := ledger.NewAppCall(c.sender, c.app, method, args...)
	txn.Note = AppTxnNote{App: auction.AuctionName, Method: method}.String()
	return txn
}
