package api

import (
	"fmt"
	"time"

	"github.com/oysterpack/oysterpack-smart/auction"
	"github.com/oysterpack/oysterpack-smart/data"
	"github.com/oysterpack/oysterpack-smart/ledger"
)

func requireField(name, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required: %w", name, ledger.ErrInvalidArgument)
	}
	return nil
}

// CreateAccountRequest creates a named wallet account.
type CreateAccountRequest struct {
	Name string `json:"name"`
}

func (r *CreateAccountRequest) Validate() error {
	return requireField("name", r.Name)
}

// FundAccountRequest credits an address from the faucet. A zero amount
// requests the configured default.
type FundAccountRequest struct {
	Address string `json:"address"`
	Amount  uint64 `json:"amount,omitempty"`
}

func (r *FundAccountRequest) Validate() error {
	return requireField("address", r.Address)
}

// CreateAssetRequest mints a new asset to the creator account.
type CreateAssetRequest struct {
	Creator  string `json:"creator"`
	Name     string `json:"name"`
	UnitName string `json:"unit_name"`
	Total    uint64 `json:"total"`
	Decimals uint32 `json:"decimals,omitempty"`
}

func (r *CreateAssetRequest) Validate() error {
	if err := requireField("creator", r.Creator); err != nil {
		return err
	}
	if err := requireField("name", r.Name); err != nil {
		return err
	}
	if r.Total == 0 {
		return fmt.Errorf("total must be positive: %w", ledger.ErrInvalidArgument)
	}
	return nil
}

// OptInAssetRequest opts an account into an asset.
type OptInAssetRequest struct {
	Account string `json:"account"`
	AssetID uint64 `json:"asset_id"`
}

func (r *OptInAssetRequest) Validate() error {
	if err := requireField("account", r.Account); err != nil {
		return err
	}
	if r.AssetID == 0 {
		return fmt.Errorf("asset_id is required: %w", ledger.ErrInvalidArgument)
	}
	return nil
}

// CreateAuctionRequest asks the registrar to create an auction owned by the
// seller account.
type CreateAuctionRequest struct {
	Seller string `json:"seller"`
}

func (r *CreateAuctionRequest) Validate() error {
	return requireField("seller", r.Seller)
}

// WithdrawTreasuryRequest withdraws registrar revenue to the operator
// account.
type WithdrawTreasuryRequest struct {
	Account string `json:"account"`
	Amount  uint64 `json:"amount"`
}

func (r *WithdrawTreasuryRequest) Validate() error {
	if err := requireField("account", r.Account); err != nil {
		return err
	}
	if r.Amount == 0 {
		return fmt.Errorf("amount must be positive: %w", ledger.ErrInvalidArgument)
	}
	return nil
}

// DeleteAuctionRequest deletes a finalized or cancelled auction, reclaiming
// its reserve into the registrar treasury.
type DeleteAuctionRequest struct {
	Account string `json:"account"`
}

func (r *DeleteAuctionRequest) Validate() error {
	return requireField("account", r.Account)
}

// SetBidAssetRequest configures the auction's bid asset and minimum bid.
type SetBidAssetRequest struct {
	Account string `json:"account"`
	AssetID uint64 `json:"asset_id"`
	MinBid  uint64 `json:"min_bid"`
}

func (r *SetBidAssetRequest) Validate() error {
	if err := requireField("account", r.Account); err != nil {
		return err
	}
	if r.AssetID == 0 {
		return fmt.Errorf("asset_id is required: %w", ledger.ErrInvalidArgument)
	}
	if r.MinBid == 0 {
		return fmt.Errorf("min_bid must be positive: %w", ledger.ErrInvalidArgument)
	}
	return nil
}

// AssetTransferRequest moves an asset between an account and the auction
// escrow. It backs the deposit, withdraw, optin, and optout operations.
type AssetTransferRequest struct {
	Account string `json:"account"`
	AssetID uint64 `json:"asset_id"`
	Amount  uint64 `json:"amount,omitempty"`
}

func (r *AssetTransferRequest) Validate() error {
	if err := requireField("account", r.Account); err != nil {
		return err
	}
	if r.AssetID == 0 {
		return fmt.Errorf("asset_id is required: %w", ledger.ErrInvalidArgument)
	}
	return nil
}

// CommitRequest freezes the auction settings and schedules the bidding
// session. Times are RFC3339; an empty start means "open immediately".
type CommitRequest struct {
	Account string `json:"account"`
	Start   string `json:"start,omitempty"`
	End     string `json:"end"`
}

func (r *CommitRequest) Validate() error {
	if err := requireField("account", r.Account); err != nil {
		return err
	}
	if err := requireField("end", r.End); err != nil {
		return err
	}
	start, end, err := r.Window()
	if err != nil {
		return err
	}
	if !start.IsZero() && !end.After(start) {
		return fmt.Errorf("end must be after start: %w", ledger.ErrInvalidArgument)
	}
	return nil
}

// Window returns the parsed bidding session times. The zero start time
// stands for "open immediately".
func (r *CommitRequest) Window() (start, end time.Time, err error) {
	if r.Start != "" {
		start, err = time.Parse(time.RFC3339, r.Start)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parse start time: %v: %w", err, ledger.ErrInvalidArgument)
		}
	}
	end, err = time.Parse(time.RFC3339, r.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse end time: %v: %w", err, ledger.ErrInvalidArgument)
	}
	return start, end, nil
}

// BidRequest places a bid by escrowing amount units of the bid asset.
type BidRequest struct {
	Account string `json:"account"`
	Amount  uint64 `json:"amount"`
}

func (r *BidRequest) Validate() error {
	if err := requireField("account", r.Account); err != nil {
		return err
	}
	if r.Amount == 0 {
		return fmt.Errorf("amount must be positive: %w", ledger.ErrInvalidArgument)
	}
	return nil
}

// AuctionActionRequest carries operations that need only the acting
// account: accept-bid, cancel, and finalize.
type AuctionActionRequest struct {
	Account string `json:"account"`
}

func (r *AuctionActionRequest) Validate() error {
	return requireField("account", r.Account)
}

// SearchAuctionsRequest narrows an auction search. All fields are optional;
// status is a Status name such as "Committed".
type SearchAuctionsRequest struct {
	Status string `json:"status,omitempty"`
	Seller string `json:"seller,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

func (r *SearchAuctionsRequest) Validate() error {
	_, err := r.Filter()
	return err
}

// Filter converts the request to a store filter.
func (r *SearchAuctionsRequest) Filter() (data.Filter, error) {
	f := data.Filter{
		Seller: ledger.Address(r.Seller),
		Limit:  r.Limit,
		Offset: r.Offset,
	}
	if r.Status != "" {
		status, err := auction.ParseStatusName(r.Status)
		if err != nil {
			return data.Filter{}, fmt.Errorf("%v: %w", err, ledger.ErrInvalidArgument)
		}
		f.Status = status
	}
	if r.Limit < 0 || r.Offset < 0 {
		return data.Filter{}, fmt.Errorf("limit and offset must not be negative: %w", ledger.ErrInvalidArgument)
	}
	return f, nil
}
