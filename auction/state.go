package auction

import (
	"github.com/oysterpack/oysterpack-smart/ledger"
)

// Auction global state keys.
const (
	keyStatus        = "status"
	keySeller        = "seller_address"
	keyBidAssetID    = "bid_asset_id"
	keyMinBid        = "min_bid"
	keyHighestBidder = "highest_bidder_address"
	keyHighestBid    = "highest_bid"
	keyStartTime     = "start_time"
	keyEndTime       = "end_time"
)

// StateSchema declares the auction's global state shape: six uint entries
// (status, bid_asset_id, min_bid, highest_bid, start_time, end_time) and two
// byte-slice entries (seller_address, highest_bidder_address).
func StateSchema() ledger.StateSchema {
	return ledger.StateSchema{Uints: 6, ByteSlices: 2}
}

// StorageFees returns the funding an auction instance account requires to
// cover its minimum balance, computed from the declared state schema.
func StorageFees() ledger.MicroAlgos {
	return ledger.MinBalanceAccountBase + StateSchema().MinBalance()
}

// State is a point-in-time snapshot of an auction's global state. Times are
// UNIX seconds; zero-valued fields mean the entry has not been set yet.
type State struct {
	Status        Status         `json:"status"`
	Seller        ledger.Address `json:"seller_address"`
	BidAssetID    ledger.AssetID `json:"bid_asset_id"`
	MinBid        uint64         `json:"min_bid"`
	HighestBidder ledger.Address `json:"highest_bidder_address,omitempty"`
	HighestBid    uint64         `json:"highest_bid"`
	StartTime     uint64         `json:"start_time"`
	EndTime       uint64         `json:"end_time"`
}

// StateFromRaw decodes a State from raw application global state, e.g. as
// returned by the host ledger's app state lookup.
func StateFromRaw(raw map[string]ledger.StateValue) State {
	return State{
		Status:        Status(raw[keyStatus].Uint),
		Seller:        ledger.Address(raw[keySeller].Bytes),
		BidAssetID:    ledger.AssetID(raw[keyBidAssetID].Uint),
		MinBid:        raw[keyMinBid].Uint,
		HighestBidder: ledger.Address(raw[keyHighestBidder].Bytes),
		HighestBid:    raw[keyHighestBid].Uint,
		StartTime:     raw[keyStartTime].Uint,
		EndTime:       raw[keyEndTime].Uint,
	}
}

func stateFromCall(c *ledger.Call) State {
	return State{
		Status:        Status(c.GetUint(keyStatus)),
		Seller:        ledger.Address(c.GetBytes(keySeller)),
		BidAssetID:    ledger.AssetID(c.GetUint(keyBidAssetID)),
		MinBid:        c.GetUint(keyMinBid),
		HighestBidder: ledger.Address(c.GetBytes(keyHighestBidder)),
		HighestBid:    c.GetUint(keyHighestBid),
		StartTime:     c.GetUint(keyStartTime),
		EndTime:       c.GetUint(keyEndTime),
	}
}

// IsBiddingOpen reports whether bids are accepted at time now. The bidding
// session covers [StartTime, EndTime): a bid at the exact end time is late.
func (s State) IsBiddingOpen(now uint64) bool {
	return s.Status == StatusCommitted && s.StartTime <= now && now < s.EndTime
}

// IsEnded reports whether the auction is past bidding at time now. Cancelled,
// BidAccepted, and Finalized auctions are ended regardless of time.
func (s State) IsEnded(now uint64) bool {
	switch s.Status {
	case StatusCancelled, StatusBidAccepted, StatusFinalized:
		return true
	case StatusCommitted:
		return now >= s.EndTime
	default:
		return false
	}
}

// IsSold reports whether the auction finalized with a winning bid.
func (s State) IsSold() bool {
	return s.Status == StatusFinalized && s.HighestBid > 0
}
