// Package data indexes auction state for queries the ledger itself cannot
// answer, such as listing every open auction for a seller ranked by bid.
// The daemon refreshes the index synchronously after each successful
// mutating call, so a read that follows a write observes it.
package data

import (
	"time"

	"github.com/oysterpack/oysterpack-smart/auction"
	"github.com/oysterpack/oysterpack-smart/ledger"
)

// Record is one indexed auction: the scalar state plus a snapshot of the
// escrowed holdings.
type Record struct {
	AppID         ledger.AppID   `json:"app_id"`
	Creator       ledger.Address `json:"creator"`
	Seller        ledger.Address `json:"seller"`
	Status        auction.Status `json:"status"`
	BidAssetID    ledger.AssetID `json:"bid_asset_id"`
	MinBid        uint64         `json:"min_bid"`
	HighestBidder ledger.Address `json:"highest_bidder,omitempty"`
	HighestBid    uint64         `json:"highest_bid"`
	StartTime     uint64         `json:"start_time"`
	EndTime       uint64         `json:"end_time"`
	Holdings      []Holding      `json:"holdings,omitempty"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Holding is one escrowed asset position of an auction.
type Holding struct {
	AssetID ledger.AssetID `json:"asset_id"`
	Amount  uint64         `json:"amount"`
}

// RecordFromState builds an index record from a ledger snapshot of an
// auction. Creator is the registrar address that deployed the auction.
func RecordFromState(appID ledger.AppID, creator ledger.Address, st auction.State, holdings []Holding, updatedAt time.Time) Record {
	return Record{
		AppID:         appID,
		Creator:       creator,
		Seller:        st.Seller,
		Status:        st.Status,
		BidAssetID:    st.BidAssetID,
		MinBid:        st.MinBid,
		HighestBidder: st.HighestBidder,
		HighestBid:    st.HighestBid,
		StartTime:     st.StartTime,
		EndTime:       st.EndTime,
		Holdings:      holdings,
		UpdatedAt:     updatedAt,
	}
}

// Filter narrows a search. Zero values match everything.
type Filter struct {
	Status auction.Status
	Seller ledger.Address
	Limit  int
	Offset int
}

// defaultSearchLimit bounds unpaginated searches.
const defaultSearchLimit = 100

func (f Filter) limit() int {
	if f.Limit <= 0 {
		return defaultSearchLimit
	}
	return f.Limit
}

func (f Filter) matches(rec Record) bool {
	if f.Status != 0 && rec.Status != f.Status {
		return false
	}
	if f.Seller != "" && rec.Seller != f.Seller {
		return false
	}
	return true
}

// Store persists auction records. Searches rank by highest bid descending
// with the app ID as tie-break, so the most contested auctions list first.
type Store interface {
	UpsertAuction(rec Record) error
	GetAuction(appID ledger.AppID) (Record, error)
	SearchAuctions(f Filter) ([]Record, error)
	DeleteAuction(appID ledger.AppID) error
	Close() error
}
