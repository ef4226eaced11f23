// Package auction implements the on-ledger auction application and the
// registrar that deploys it.
//
// An auction is an escrow account governed by a state machine. The seller
// configures a New auction by depositing the assets to sell and choosing the
// bid asset, then commits it to schedule the bidding session. Bids are asset
// deposits: each bid must beat both the minimum bid and the standing highest
// bid, and the outbid bidder is refunded in the same atomic group. After the
// session ends the seller accepts the winning bid, and anyone finalizes the
// auction by closing every escrowed holding out to the party it is owed to.
//
// The Manager registrar deploys auctions, funds their storage reserves from
// creation fees, and reclaims the reserves when finalized auctions are
// deleted.
package auction

import (
	"fmt"

	"github.com/oysterpack/oysterpack-smart/ledger"
)

// Application names, used in transaction notes, logs, and errors.
const (
	AuctionName = "oysterpack.Auction"
	ManagerName = "oysterpack.AuctionManager"
)

// Auction method names.
const (
	MethodSetBidAsset     = "set_bid_asset"
	MethodOptInAsset      = "optin_asset"
	MethodOptOutAsset     = "optout_asset"
	MethodWithdrawAsset   = "withdraw_asset"
	MethodCommit          = "commit"
	MethodBid             = "bid"
	MethodAcceptBid       = "accept_bid"
	MethodCancel          = "cancel"
	MethodFinalize        = "finalize"
	MethodLatestTimestamp = "latest_timestamp"
	MethodAppName         = "app_name"
)

// Auction is the auction application program. The zero value is ready to use;
// all instance state lives in ledger global state.
type Auction struct{}

func (Auction) Name() string { return AuctionName }

// OnCreate records the seller and starts the auction in the New status.
// Auctions must be created by a registrar application; direct creation by a
// wallet account is rejected.
func (Auction) OnCreate(c *ledger.Call, args [][]byte) error {
	if !c.IsApp(c.Sender()) {
		return fmt.Errorf("auctions must be created through a registrar app: %w", ledger.ErrUnauthorized)
	}
	if len(args) != 1 {
		return fmt.Errorf("create: want seller address arg: %w", ledger.ErrInvalidArgument)
	}
	seller, err := ledger.ParseAddressArg(args[0])
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	if seller == ledger.ZeroAddress {
		return fmt.Errorf("create: seller address is empty: %w", ledger.ErrInvalidArgument)
	}
	if err := c.SetUint(keyStatus, uint64(StatusNew)); err != nil {
		return err
	}
	return c.SetBytes(keySeller, []byte(seller))
}

func (a Auction) Call(c *ledger.Call, method string, args [][]byte) ([]byte, error) {
	switch method {
	case MethodSetBidAsset:
		return nil, a.setBidAsset(c, args)
	case MethodOptInAsset:
		return nil, a.optInAsset(c, args)
	case MethodOptOutAsset:
		return nil, a.optOutAsset(c, args)
	case MethodWithdrawAsset:
		return nil, a.withdrawAsset(c, args)
	case MethodCommit:
		return nil, a.commit(c, args)
	case MethodBid:
		return nil, a.bid(c)
	case MethodAcceptBid:
		return nil, a.acceptBid(c)
	case MethodCancel:
		return nil, a.cancel(c)
	case MethodFinalize:
		return nil, a.finalize(c, args)
	case MethodLatestTimestamp:
		return ledger.Uint64Arg(c.Now()), nil
	case MethodAppName:
		return ledger.StringArg(AuctionName), nil
	default:
		return nil, fmt.Errorf("unknown method %q: %w", method, ledger.ErrInvalidArgument)
	}
}

// OnDelete permits deletion once the auction is terminal. The host ledger
// additionally refuses to delete an instance that still holds assets.
func (Auction) OnDelete(c *ledger.Call) error {
	st := stateFromCall(c)
	if st.Status != StatusFinalized && st.Status != StatusCancelled {
		return fmt.Errorf("a %s auction cannot be deleted: %w", st.Status, ledger.ErrInvalidState)
	}
	return nil
}

// setBidAsset sets the asset bids are priced in and the minimum bid. To
// change the bid asset the seller must opt it out first; the minimum bid
// alone can be changed by calling set_bid_asset again with the same asset.
func (Auction) setBidAsset(c *ledger.Call, args [][]byte) error {
	st := stateFromCall(c)
	if err := sellerOnly(c, st); err != nil {
		return err
	}
	if st.Status != StatusNew {
		return fmt.Errorf("bid asset can only be set on a New auction: %w", ledger.ErrInvalidState)
	}
	if len(args) != 2 {
		return fmt.Errorf("set_bid_asset: want bid asset and min bid args: %w", ledger.ErrInvalidArgument)
	}
	asset, err := ledger.ParseUint64Arg(args[0])
	if err != nil {
		return fmt.Errorf("set_bid_asset: bid asset: %w", err)
	}
	minBid, err := ledger.ParseUint64Arg(args[1])
	if err != nil {
		return fmt.Errorf("set_bid_asset: min bid: %w", err)
	}
	if minBid == 0 {
		return fmt.Errorf("min bid must be greater than zero: %w", ledger.ErrInvalidArgument)
	}
	if st.BidAssetID != 0 && st.BidAssetID != ledger.AssetID(asset) {
		return fmt.Errorf("bid asset is already set to %d, opt it out first: %w", st.BidAssetID, ledger.ErrInvalidState)
	}
	if err := requireTransferable(c, ledger.AssetID(asset)); err != nil {
		return err
	}
	if err := c.SetUint(keyBidAssetID, asset); err != nil {
		return err
	}
	if err := c.SetUint(keyMinBid, minBid); err != nil {
		return err
	}
	if _, opted := c.Holding(c.AppAddress(), ledger.AssetID(asset)); !opted {
		return c.OptInAsset(ledger.AssetID(asset))
	}
	return nil
}

// optInAsset opts the auction into a sale asset so the seller can deposit it.
func (Auction) optInAsset(c *ledger.Call, args [][]byte) error {
	st := stateFromCall(c)
	if err := sellerOnly(c, st); err != nil {
		return err
	}
	if st.Status != StatusNew {
		return fmt.Errorf("assets can only be opted in on a New auction: %w", ledger.ErrInvalidState)
	}
	if len(args) != 1 {
		return fmt.Errorf("optin_asset: want asset arg: %w", ledger.ErrInvalidArgument)
	}
	asset, err := ledger.ParseUint64Arg(args[0])
	if err != nil {
		return fmt.Errorf("optin_asset: %w", err)
	}
	if err := requireTransferable(c, ledger.AssetID(asset)); err != nil {
		return err
	}
	return c.OptInAsset(ledger.AssetID(asset))
}

// optOutAsset closes an asset holding back to the seller and drops the
// holding. Opting out the bid asset resets bid_asset_id so a different bid
// asset can be set.
func (Auction) optOutAsset(c *ledger.Call, args [][]byte) error {
	st := stateFromCall(c)
	if err := sellerOnly(c, st); err != nil {
		return err
	}
	if st.Status != StatusNew {
		return fmt.Errorf("assets can only be opted out on a New auction: %w", ledger.ErrInvalidState)
	}
	if len(args) != 1 {
		return fmt.Errorf("optout_asset: want asset arg: %w", ledger.ErrInvalidArgument)
	}
	asset, err := ledger.ParseUint64Arg(args[0])
	if err != nil {
		return fmt.Errorf("optout_asset: %w", err)
	}
	if err := c.CloseOutAsset(ledger.AssetID(asset), st.Seller); err != nil {
		return err
	}
	if ledger.AssetID(asset) == st.BidAssetID {
		return c.SetUint(keyBidAssetID, 0)
	}
	return nil
}

// withdrawAsset transfers part of an escrowed holding back to the seller. No
// bids can exist before commit, so pre-commit withdrawals never touch bidder
// funds.
func (Auction) withdrawAsset(c *ledger.Call, args [][]byte) error {
	st := stateFromCall(c)
	if err := sellerOnly(c, st); err != nil {
		return err
	}
	if st.Status != StatusNew {
		return fmt.Errorf("assets can only be withdrawn from a New auction: %w", ledger.ErrInvalidState)
	}
	if len(args) != 2 {
		return fmt.Errorf("withdraw_asset: want asset and amount args: %w", ledger.ErrInvalidArgument)
	}
	asset, err := ledger.ParseUint64Arg(args[0])
	if err != nil {
		return fmt.Errorf("withdraw_asset: asset: %w", err)
	}
	amount, err := ledger.ParseUint64Arg(args[1])
	if err != nil {
		return fmt.Errorf("withdraw_asset: amount: %w", err)
	}
	return c.Transfer(ledger.AssetID(asset), st.Seller, amount)
}

// commit freezes the auction settings and schedules the bidding session.
// From here on only status, highest_bid, and highest_bidder_address change.
func (Auction) commit(c *ledger.Call, args [][]byte) error {
	st := stateFromCall(c)
	if err := sellerOnly(c, st); err != nil {
		return err
	}
	if st.Status != StatusNew {
		return fmt.Errorf("only a New auction can be committed: %w", ledger.ErrInvalidState)
	}
	if len(args) != 2 {
		return fmt.Errorf("commit: want start and end time args: %w", ledger.ErrInvalidArgument)
	}
	start, err := ledger.ParseUint64Arg(args[0])
	if err != nil {
		return fmt.Errorf("commit: start time: %w", err)
	}
	end, err := ledger.ParseUint64Arg(args[1])
	if err != nil {
		return fmt.Errorf("commit: end time: %w", err)
	}
	if st.BidAssetID == 0 {
		return fmt.Errorf("bid asset is not set: %w", ledger.ErrInvalidState)
	}
	if st.MinBid == 0 {
		return fmt.Errorf("min bid is not set: %w", ledger.ErrInvalidState)
	}
	if !holdsSaleAssets(c, st) {
		return fmt.Errorf("auction holds no assets to sell: %w", ledger.ErrInvalidState)
	}
	now := c.Now()
	if start < now {
		return fmt.Errorf("start time %d is in the past (now %d): %w", start, now, ledger.ErrInvalidArgument)
	}
	if end <= start {
		return fmt.Errorf("end time %d is not after start time %d: %w", end, start, ledger.ErrInvalidArgument)
	}
	if err := c.SetUint(keyStartTime, start); err != nil {
		return err
	}
	if err := c.SetUint(keyEndTime, end); err != nil {
		return err
	}
	return c.SetUint(keyStatus, uint64(StatusCommitted))
}

// bid places a bid. The bid deposit is the asset transfer immediately
// preceding this call in its group; it must pay the auction in the bid asset
// and exceed both the minimum bid and the standing highest bid. The outbid
// bidder is refunded within the same group, unless they opted out of the bid
// asset, in which case their deposit stays escrowed.
func (Auction) bid(c *ledger.Call) error {
	st := stateFromCall(c)
	if st.Status != StatusCommitted {
		return fmt.Errorf("a %s auction does not accept bids: %w", st.Status, ledger.ErrInvalidState)
	}
	now := c.Now()
	if !st.IsBiddingOpen(now) {
		return fmt.Errorf("bidding session is not open (now %d, session [%d, %d)): %w",
			now, st.StartTime, st.EndTime, ledger.ErrInvalidState)
	}
	deposit, err := c.PrecedingTransfer()
	if err != nil {
		return fmt.Errorf("bid deposit: %w", err)
	}
	if deposit.AssetReceiver != c.AppAddress() {
		return fmt.Errorf("bid deposit pays %s, not the auction: %w", deposit.AssetReceiver, ledger.ErrInvalidArgument)
	}
	if deposit.AssetCloseTo != ledger.ZeroAddress {
		return fmt.Errorf("bid deposit must not be a close-out: %w", ledger.ErrInvalidArgument)
	}
	if deposit.XferAsset != st.BidAssetID {
		return fmt.Errorf("bid deposit is asset %d, want bid asset %d: %w",
			deposit.XferAsset, st.BidAssetID, ledger.ErrInvalidArgument)
	}
	if floor := max(st.MinBid, st.HighestBid); deposit.AssetAmount <= floor {
		return fmt.Errorf("bid %d must exceed %d: %w", deposit.AssetAmount, floor, ledger.ErrInvalidArgument)
	}
	if st.HighestBid > 0 {
		if _, opted := c.Holding(st.HighestBidder, st.BidAssetID); opted {
			if err := c.Transfer(st.BidAssetID, st.HighestBidder, st.HighestBid); err != nil {
				return fmt.Errorf("refund outbid bidder: %w", err)
			}
		}
	}
	if err := c.SetBytes(keyHighestBidder, []byte(deposit.Sender)); err != nil {
		return err
	}
	return c.SetUint(keyHighestBid, deposit.AssetAmount)
}

// acceptBid records the seller's acceptance of the highest bid after the
// bidding session has ended. It only flips status; settlement happens in
// finalize.
func (Auction) acceptBid(c *ledger.Call) error {
	st := stateFromCall(c)
	if err := sellerOnly(c, st); err != nil {
		return err
	}
	if st.Status != StatusCommitted {
		return fmt.Errorf("a %s auction has no bid to accept: %w", st.Status, ledger.ErrInvalidState)
	}
	now := c.Now()
	if !st.IsEnded(now) {
		return fmt.Errorf("bidding session is still open until %d (now %d): %w", st.EndTime, now, ledger.ErrInvalidState)
	}
	if st.HighestBid == 0 {
		return fmt.Errorf("auction received no bids: %w", ledger.ErrInvalidState)
	}
	return c.SetUint(keyStatus, uint64(StatusBidAccepted))
}

// cancel calls off an auction that has not been committed, returning every
// escrowed holding to the seller. Cancelling an already-cancelled auction is
// a no-op.
func (Auction) cancel(c *ledger.Call) error {
	st := stateFromCall(c)
	if err := sellerOnly(c, st); err != nil {
		return err
	}
	switch st.Status {
	case StatusCancelled:
		return nil
	case StatusNew:
	default:
		return fmt.Errorf("a %s auction cannot be cancelled: %w", st.Status, ledger.ErrInvalidState)
	}
	for _, h := range c.Assets() {
		if err := c.CloseOutAsset(h.AssetID, st.Seller); err != nil {
			return fmt.Errorf("return asset %d to seller: %w", h.AssetID, err)
		}
	}
	return c.SetUint(keyStatus, uint64(StatusCancelled))
}

// finalize closes one escrowed holding out to the party it is owed to, and
// marks the auction Finalized when the last holding leaves. Anyone may call
// it, but the close-to address is dictated by the outcome: when a bid was
// accepted, the bid asset goes to the seller and every sale asset to the
// highest bidder; otherwise everything returns to the seller. An ended
// auction with bids cannot be finalized until the seller accepts.
func (Auction) finalize(c *ledger.Call, args [][]byte) error {
	st := stateFromCall(c)
	if st.Status == StatusFinalized {
		return fmt.Errorf("auction is already finalized: %w", ledger.ErrInvalidState)
	}
	if len(args) != 2 {
		return fmt.Errorf("finalize: want asset and close-to args: %w", ledger.ErrInvalidArgument)
	}
	asset, err := ledger.ParseUint64Arg(args[0])
	if err != nil {
		return fmt.Errorf("finalize: asset: %w", err)
	}
	closeTo, err := ledger.ParseAddressArg(args[1])
	if err != nil {
		return fmt.Errorf("finalize: close-to: %w", err)
	}
	now := c.Now()
	if !st.IsEnded(now) {
		return fmt.Errorf("auction has not ended: %w", ledger.ErrInvalidState)
	}
	if _, opted := c.Holding(c.AppAddress(), ledger.AssetID(asset)); !opted {
		return fmt.Errorf("auction does not hold asset %d: %w", asset, ledger.ErrInvalidArgument)
	}
	var owed ledger.Address
	switch {
	case st.Status == StatusBidAccepted:
		if ledger.AssetID(asset) == st.BidAssetID {
			owed = st.Seller
		} else {
			owed = st.HighestBidder
		}
	case st.Status == StatusCommitted && st.HighestBid > 0:
		return fmt.Errorf("the winning bid must be accepted before settlement: %w", ledger.ErrInvalidState)
	default:
		owed = st.Seller
	}
	if closeTo != owed {
		return fmt.Errorf("asset %d must close to %s, not %s: %w", asset, owed, closeTo, ledger.ErrInvalidArgument)
	}
	if err := c.CloseOutAsset(ledger.AssetID(asset), closeTo); err != nil {
		return err
	}
	if len(c.Assets()) == 0 {
		return c.SetUint(keyStatus, uint64(StatusFinalized))
	}
	return nil
}

func sellerOnly(c *ledger.Call, st State) error {
	if c.Sender() != st.Seller {
		return fmt.Errorf("sender %s is not the seller: %w", c.Sender(), ledger.ErrUnauthorized)
	}
	return nil
}

// requireTransferable rejects assets that have a freeze or clawback
// authority. Escrowed holdings must not be lockable or revocable by a third
// party.
func requireTransferable(c *ledger.Call, asset ledger.AssetID) error {
	params, err := c.Asset(asset)
	if err != nil {
		return err
	}
	if params.Freeze != ledger.ZeroAddress {
		return fmt.Errorf("asset %d has a freeze authority: %w", asset, ledger.ErrInvalidArgument)
	}
	if params.Clawback != ledger.ZeroAddress {
		return fmt.Errorf("asset %d has a clawback authority: %w", asset, ledger.ErrInvalidArgument)
	}
	return nil
}

// holdsSaleAssets reports whether the auction escrows at least one holding
// besides the bid asset.
func holdsSaleAssets(c *ledger.Call, st State) bool {
	for _, h := range c.Assets() {
		if h.AssetID != st.BidAssetID {
			return true
		}
	}
	return false
}
