package client

import (
	"errors"
	"testing"
	"time"

	"github.com/oysterpack/oysterpack-smart/auction"
	"github.com/oysterpack/oysterpack-smart/ledger"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"
)

// clientFixture wires a ledger with a deployed registrar, two fungible
// payment assets, a sale asset, and funded bidder accounts.
type clientFixture struct {
	t      *testing.T
	ledger *ledger.Ledger
	now    time.Time

	creator ledger.Address
	seller  ledger.Address
	bidderA ledger.Address
	bidderB ledger.Address

	manager   *ManagerClient
	bidAsset  ledger.AssetID
	bidAsset2 ledger.AssetID
	saleAsset ledger.AssetID
}

func newClientFixture(t *testing.T) *clientFixture {
	f := &clientFixture{
		t:       t,
		now:     time.Unix(1_700_000_000, 0),
		creator: ledger.Address("registrar-operator"),
		seller:  ledger.Address("seller"),
		bidderA: ledger.Address("bidder-a"),
		bidderB: ledger.Address("bidder-b"),
	}
	f.ledger = ledger.New(ledger.WithClock(func() time.Time { return f.now }))

	for _, addr := range []ledger.Address{f.creator, f.seller, f.bidderA, f.bidderB} {
		f.ledger.Fund(addr, 10_000_000)
	}

	var err error
	f.manager, err = DeployManager(f.ledger, f.creator)
	assert.Nil(t, err)

	f.bidAsset, err = f.ledger.CreateAsset(f.creator, ledger.AssetParams{
		Name: "US Dollar Stable", UnitName: "USD$", Total: 1_000_000_000, Decimals: 6,
	})
	assert.Nil(t, err)
	f.bidAsset2, err = f.ledger.CreateAsset(f.creator, ledger.AssetParams{
		Name: "Euro Stable", UnitName: "EUR$", Total: 1_000_000_000, Decimals: 6,
	})
	assert.Nil(t, err)
	f.saleAsset, err = f.ledger.CreateAsset(f.seller, ledger.AssetParams{
		Name: "Gold Bar", UnitName: "GOLD", Total: 1_000,
	})
	assert.Nil(t, err)

	for _, bidder := range []ledger.Address{f.bidderA, f.bidderB} {
		_, err = f.ledger.Execute([]ledger.Transaction{
			ledger.NewAssetOptIn(bidder, f.bidAsset),
			ledger.NewAssetTransfer(f.creator, f.bidAsset, bidder, 1_000),
		})
		assert.Nil(t, err)
	}
	_, err = f.ledger.Execute([]ledger.Transaction{ledger.NewAssetOptIn(f.seller, f.bidAsset)})
	assert.Nil(t, err)

	return f
}

func (f *clientFixture) advanceTo(unix uint64) { f.now = time.Unix(int64(unix), 0) }

// sellerManager returns a registrar client acting as the seller.
func (f *clientFixture) sellerManager() *ManagerClient {
	f.t.Helper()
	mc, err := ConnectManager(f.ledger, f.manager.AppID(), f.seller)
	assert.Nil(f.t, err)
	return mc
}

// sellerAuction creates a fresh auction owned by the seller.
func (f *clientFixture) sellerAuction() *AuctionClient {
	f.t.Helper()
	ac, err := f.sellerManager().CreateAuction()
	assert.Nil(f.t, err)
	return ac
}

// committedAuction sets up and commits an auction: bid asset with min bid 10,
// 10 sale asset units escrowed, session opening in 1 minute for 1 hour.
func (f *clientFixture) committedAuction() (ac *AuctionClient, start, end uint64) {
	f.t.Helper()
	ac = f.sellerAuction()
	assert.Nil(f.t, ac.SetBidAsset(f.bidAsset, 10))
	assert.Nil(f.t, ac.Deposit(f.saleAsset, 10))
	startAt := f.now.Add(time.Minute)
	endAt := f.now.Add(time.Minute + time.Hour)
	assert.Nil(f.t, ac.Commit(startAt, endAt))
	return ac, uint64(startAt.Unix()), uint64(endAt.Unix())
}

func (f *clientFixture) bidder(ac *AuctionClient, addr ledger.Address) *AuctionBidder {
	f.t.Helper()
	b, err := ConnectBidder(f.ledger, ac.AppID(), addr)
	assert.Nil(f.t, err)
	return b
}

func TestDeployManager(t *testing.T) {
	f := newClientFixture(t)

	fees, err := f.manager.CreationFees()
	assert.Nil(t, err)
	check.Equal(t, auction.StorageFees(), fees)

	treasury, err := f.manager.TreasuryBalance()
	assert.Nil(t, err)
	check.Equal(t, ledger.MicroAlgos(0), treasury)

	name, err := f.manager.AppName()
	assert.Nil(t, err)
	check.Equal(t, auction.ManagerName, name)
}

func TestConnect_UnknownApp(t *testing.T) {
	f := newClientFixture(t)

	_, err := ConnectManager(f.ledger, 9999, f.creator)
	check.True(t, errors.Is(err, ledger.ErrNotFound))
	_, err = ConnectAuction(f.ledger, 9999, f.seller)
	check.True(t, errors.Is(err, ledger.ErrNotFound))
	_, err = ConnectBidder(f.ledger, 9999, f.bidderA)
	check.True(t, errors.Is(err, ledger.ErrNotFound))
}

func TestCreateAuction_BindsSeller(t *testing.T) {
	f := newClientFixture(t)

	ac := f.sellerAuction()
	st, err := ac.State()
	assert.Nil(t, err)
	check.Equal(t, auction.StatusNew, st.Status)
	check.Equal(t, f.seller, st.Seller)
	check.Equal(t, ledger.AppAddress(ac.AppID()), ac.Address())
	check.Equal(t, auction.StorageFees(), f.ledger.AccountBalance(ac.Address()))
}

func TestSetBidAsset_Convenience(t *testing.T) {
	f := newClientFixture(t)
	ac := f.sellerAuction()

	assert.Nil(t, ac.SetBidAsset(f.bidAsset, 10))
	st, err := ac.State()
	assert.Nil(t, err)
	check.Equal(t, f.bidAsset, st.BidAssetID)
	check.Equal(t, uint64(10), st.MinBid)

	// Unchanged settings are a no-op: no payments leave the seller.
	balance := f.ledger.AccountBalance(f.seller)
	assert.Nil(t, ac.SetBidAsset(f.bidAsset, 10))
	check.Equal(t, balance, f.ledger.AccountBalance(f.seller))

	// Changing only the minimum bid needs no reserve prefund.
	assert.Nil(t, ac.SetBidAsset(f.bidAsset, 25))
	st, err = ac.State()
	assert.Nil(t, err)
	check.Equal(t, uint64(25), st.MinBid)
	check.Equal(t, balance, f.ledger.AccountBalance(f.seller))

	// Changing the bid asset opts the old one out first; the freed reserve
	// covers the new opt-in, so again nothing is paid.
	assert.Nil(t, ac.SetBidAsset(f.bidAsset2, 25))
	st, err = ac.State()
	assert.Nil(t, err)
	check.Equal(t, f.bidAsset2, st.BidAssetID)
	_, opted := f.ledger.AssetBalance(ac.Address(), f.bidAsset)
	check.False(t, opted)
	_, opted = f.ledger.AssetBalance(ac.Address(), f.bidAsset2)
	check.True(t, opted)
	check.Equal(t, balance, f.ledger.AccountBalance(f.seller))
}

func TestDeposit_FundsOptInOnce(t *testing.T) {
	f := newClientFixture(t)
	ac := f.sellerAuction()
	assert.Nil(t, ac.SetBidAsset(f.bidAsset, 10))

	assert.Nil(t, ac.Deposit(f.saleAsset, 4))
	check.Equal(t, uint64(4), mustHolding(t, f.ledger, ac.Address(), f.saleAsset))

	// A second deposit of the same asset needs no opt-in and no prefund.
	balance := f.ledger.AccountBalance(f.seller)
	assert.Nil(t, ac.Deposit(f.saleAsset, 6))
	check.Equal(t, uint64(10), mustHolding(t, f.ledger, ac.Address(), f.saleAsset))
	check.Equal(t, balance, f.ledger.AccountBalance(f.seller))

	// Creation fee plus two holding prefunds have left the seller so far.
	spent := ledger.MicroAlgos(10_000_000) - f.ledger.AccountBalance(f.seller)
	check.Equal(t, auction.StorageFees()+2*ledger.MinBalanceAssetHolding, spent)
}

func TestCommit_ZeroStartOpensImmediately(t *testing.T) {
	f := newClientFixture(t)
	ac := f.sellerAuction()
	assert.Nil(t, ac.SetBidAsset(f.bidAsset, 10))
	assert.Nil(t, ac.Deposit(f.saleAsset, 10))

	end := f.now.Add(time.Hour)
	assert.Nil(t, ac.Commit(time.Time{}, end))

	st, err := ac.State()
	assert.Nil(t, err)
	check.Equal(t, auction.StatusCommitted, st.Status)
	check.Equal(t, uint64(f.now.Unix()), st.StartTime)
	check.True(t, st.IsBiddingOpen(uint64(f.now.Unix())))
}

func TestBidder_BidAndOutbid(t *testing.T) {
	f := newClientFixture(t)
	ac, start, _ := f.committedAuction()
	f.advanceTo(start)

	a := f.bidder(ac, f.bidderA)
	b := f.bidder(ac, f.bidderB)

	st, err := a.State()
	assert.Nil(t, err)
	check.Equal(t, uint64(11), NextBid(st, decimal.New(1, 0)))

	assert.Nil(t, a.Bid(15))
	st, err = a.State()
	assert.Nil(t, err)
	check.Equal(t, uint64(15), st.HighestBid)
	check.Equal(t, f.bidderA, st.HighestBidder)

	// An outbid below the standing highest is rejected and rolled back.
	err = b.Bid(15)
	check.Error(t, err)
	check.True(t, errors.Is(err, ledger.ErrInvalidArgument))
	check.Equal(t, uint64(1_000), mustHolding(t, f.ledger, f.bidderB, f.bidAsset))

	assert.Nil(t, b.Bid(NextBid(st, decimal.New(1, 0))))
	st, err = b.State()
	assert.Nil(t, err)
	check.Equal(t, uint64(16), st.HighestBid)
	check.Equal(t, f.bidderB, st.HighestBidder)
	// The outbid bidder got their deposit back.
	check.Equal(t, uint64(1_000), mustHolding(t, f.ledger, f.bidderA, f.bidAsset))
}

func TestBidder_WinAndSettle(t *testing.T) {
	f := newClientFixture(t)
	ac, start, end := f.committedAuction()
	f.advanceTo(start)

	b := f.bidder(ac, f.bidderB)
	assert.Nil(t, b.OptInBidAsset())
	assert.Nil(t, b.OptInAuctionAssets())
	assert.Nil(t, b.Bid(20))

	f.advanceTo(end)
	assert.Nil(t, ac.AcceptBid())
	assert.Nil(t, ac.Finalize())

	st, err := ac.State()
	assert.Nil(t, err)
	check.Equal(t, auction.StatusFinalized, st.Status)
	check.True(t, st.IsSold())
	check.Equal(t, uint64(10), mustHolding(t, f.ledger, f.bidderB, f.saleAsset))
	check.Equal(t, uint64(20), mustHolding(t, f.ledger, f.seller, f.bidAsset))
	check.Equal(t, 0, len(ac.Assets()))
}

func TestFinalize_NoBidsReturnsAssets(t *testing.T) {
	f := newClientFixture(t)
	ac, _, end := f.committedAuction()
	f.advanceTo(end)

	assert.Nil(t, ac.Finalize())
	st, err := ac.State()
	assert.Nil(t, err)
	check.Equal(t, auction.StatusFinalized, st.Status)
	check.False(t, st.IsSold())
	check.Equal(t, uint64(1_000), mustHolding(t, f.ledger, f.seller, f.saleAsset))
}

func TestManager_DeleteAndWithdraw(t *testing.T) {
	f := newClientFixture(t)
	ac, start, end := f.committedAuction()
	f.advanceTo(start)
	b := f.bidder(ac, f.bidderB)
	assert.Nil(t, b.Bid(20))
	assert.Nil(t, b.OptInAuctionAssets())
	f.advanceTo(end)
	assert.Nil(t, ac.AcceptBid())
	assert.Nil(t, ac.Finalize())

	assert.Nil(t, f.manager.DeleteFinalizedAuction(ac.AppID()))
	check.False(t, f.ledger.AppExists(ac.AppID()))

	// Reclaimed: 371_000 creation fee + 2 * 100_000 holding prefunds.
	treasury, err := f.manager.TreasuryBalance()
	assert.Nil(t, err)
	check.Equal(t, ledger.MicroAlgos(571_000), treasury)

	// Only the registrar creator can withdraw.
	err = f.sellerManager().WithdrawAlgo(treasury)
	check.True(t, errors.Is(err, ledger.ErrUnauthorized))

	balance := f.ledger.AccountBalance(f.creator)
	assert.Nil(t, f.manager.WithdrawAlgo(treasury))
	check.Equal(t, balance+treasury, f.ledger.AccountBalance(f.creator))

	treasury, err = f.manager.TreasuryBalance()
	assert.Nil(t, err)
	check.Equal(t, ledger.MicroAlgos(0), treasury)
}

func TestNextBid(t *testing.T) {
	tests := []struct {
		name   string
		st     auction.State
		factor decimal.Decimal
		want   uint64
	}{
		{"no bids, unit factor", auction.State{MinBid: 10}, decimal.New(1, 0), 11},
		{"no bids, zero factor", auction.State{MinBid: 10}, decimal.Decimal{}, 11},
		{"standing bid, unit factor", auction.State{MinBid: 10, HighestBid: 20}, decimal.New(1, 0), 21},
		{"small floor, five percent over", auction.State{MinBid: 10, HighestBid: 20}, decimal.New(105, -2), 21},
		{"large floor, five percent over", auction.State{MinBid: 10, HighestBid: 100}, decimal.New(105, -2), 105},
		{"fractional raise rounds up", auction.State{MinBid: 10, HighestBid: 100}, decimal.New(1001, -3), 101},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check.Equal(t, tt.want, NextBid(tt.st, tt.factor))
		})
	}
}

func TestAppTxnNote(t *testing.T) {
	note := AppTxnNote{App: auction.AuctionName, Method: auction.MethodBid}
	check.Equal(t, "oysterpack.Auction/bid", note.String())

	parsed, err := ParseAppTxnNote(note.String())
	assert.Nil(t, err)
	check.Equal(t, note, parsed)

	_, err = ParseAppTxnNote("missing-separator")
	check.Error(t, err)
	check.True(t, errors.Is(err, ledger.ErrInvalidArgument))
	_, err = ParseAppTxnNote("/bid")
	check.Error(t, err)
}

func mustHolding(t *testing.T, l *ledger.Ledger, addr ledger.Address, asset ledger.AssetID) uint64 {
	t.Helper()
	amount, opted := l.AssetBalance(addr, asset)
	check.True(t, opted)
	return amount
}
