package api

import (
	"time"

	"github.com/oysterpack/oysterpack-smart/data"
	"github.com/oysterpack/oysterpack-smart/ledger"
)

// AccountView is the wire form of a wallet account.
type AccountView struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
}

// AccountsResponse lists wallet accounts.
type AccountsResponse struct {
	Accounts []AccountView `json:"accounts"`
}

// AssetView is the wire form of an asset.
type AssetView struct {
	ID       uint64 `json:"id"`
	Creator  string `json:"creator"`
	Name     string `json:"name"`
	UnitName string `json:"unit_name"`
	Total    uint64 `json:"total"`
	Decimals uint32 `json:"decimals"`
}

// AssetViewFromParams converts ledger asset parameters to their wire form.
func AssetViewFromParams(params ledger.AssetParams) AssetView {
	return AssetView{
		ID:       uint64(params.ID),
		Creator:  string(params.Creator),
		Name:     params.Name,
		UnitName: params.UnitName,
		Total:    params.Total,
		Decimals: params.Decimals,
	}
}

// AmountView renders a MicroAlgos amount in both units.
type AmountView struct {
	MicroAlgos uint64 `json:"micro_algos"`
	Algos      string `json:"algos"`
}

// NewAmountView converts a MicroAlgos amount to its wire form.
func NewAmountView(amount ledger.MicroAlgos) AmountView {
	return AmountView{
		MicroAlgos: uint64(amount),
		Algos:      amount.Algos().String(),
	}
}

// CreateAuctionResponse reports a newly created auction.
type CreateAuctionResponse struct {
	AppID   uint64 `json:"app_id"`
	Address string `json:"address"`
}

// HoldingView is one escrowed asset position.
type HoldingView struct {
	AssetID uint64 `json:"asset_id"`
	Amount  uint64 `json:"amount"`
}

// AuctionView is the wire form of an indexed auction. Statuses are their
// String names and times are RFC3339; zero times render as empty strings.
type AuctionView struct {
	AppID         uint64        `json:"app_id"`
	Address       string        `json:"address"`
	Seller        string        `json:"seller"`
	Status        string        `json:"status"`
	BidAssetID    uint64        `json:"bid_asset_id,omitempty"`
	MinBid        uint64        `json:"min_bid,omitempty"`
	HighestBidder string        `json:"highest_bidder,omitempty"`
	HighestBid    uint64        `json:"highest_bid,omitempty"`
	StartTime     string        `json:"start_time,omitempty"`
	EndTime       string        `json:"end_time,omitempty"`
	Holdings      []HoldingView `json:"holdings,omitempty"`
	UpdatedAt     string        `json:"updated_at"`
}

// AuctionViewFromRecord converts an index record to its wire form.
func AuctionViewFromRecord(rec data.Record) AuctionView {
	view := AuctionView{
		AppID:         uint64(rec.AppID),
		Address:       string(ledger.AppAddress(rec.AppID)),
		Seller:        string(rec.Seller),
		Status:        rec.Status.String(),
		BidAssetID:    uint64(rec.BidAssetID),
		MinBid:        rec.MinBid,
		HighestBidder: string(rec.HighestBidder),
		HighestBid:    rec.HighestBid,
		StartTime:     formatUnix(rec.StartTime),
		EndTime:       formatUnix(rec.EndTime),
		UpdatedAt:     rec.UpdatedAt.UTC().Format(time.RFC3339),
	}
	for _, h := range rec.Holdings {
		view.Holdings = append(view.Holdings, HoldingView{AssetID: uint64(h.AssetID), Amount: h.Amount})
	}
	return view
}

// AuctionsResponse lists auctions in search rank order.
type AuctionsResponse struct {
	Auctions []AuctionView `json:"auctions"`
}

// StatusResponse acknowledges an operation with no other result.
type StatusResponse struct {
	Status string `json:"status"`
}

// StatusOK is the canonical acknowledgement.
var StatusOK = StatusResponse{Status: "ok"}

func formatUnix(sec uint64) string {
	if sec == 0 {
		return ""
	}
	return time.Unix(int64(sec), 0).UTC().Format(time.RFC3339)
}
