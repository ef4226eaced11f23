package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"
)

// counterProgram is a minimal program used to exercise app calls, state
// schema enforcement, and group rollback.
type counterProgram struct{}

func (counterProgram) Name() string { return "test.Counter" }

func (counterProgram) OnCreate(c *Call, _ [][]byte) error {
	return c.SetUint("count", 0)
}

func (counterProgram) Call(c *Call, method string, _ [][]byte) ([]byte, error) {
	switch method {
	case "increment":
		if err := c.SetUint("count", c.GetUint("count")+1); err != nil {
			return nil, err
		}
		return Uint64Arg(c.GetUint("count")), nil
	case "increment_then_fail":
		if err := c.SetUint("count", c.GetUint("count")+1); err != nil {
			return nil, err
		}
		return nil, errors.New("deliberate failure after write")
	case "overflow_schema":
		return nil, c.SetUint("extra", 1)
	default:
		return nil, ErrInvalidArgument
	}
}

func (counterProgram) OnDelete(*Call) error { return nil }

func testAddr(name string) Address {
	// Not a real key-derived address; the ledger only compares addresses.
	return Address(name)
}

func TestFund_AllocatesAccount(t *testing.T) {
	l := New()
	alice := testAddr("alice")

	check.Equal(t, MicroAlgos(0), l.AccountBalance(alice))
	l.Fund(alice, 1_000_000)
	check.Equal(t, MicroAlgos(1_000_000), l.AccountBalance(alice))
}

func TestExecute_Payment(t *testing.T) {
	l := New()
	alice := testAddr("alice")
	bob := testAddr("bob")
	l.Fund(alice, 1_000_000)

	_, err := l.Execute([]Transaction{NewPayment(alice, bob, 300_000)})
	check.NoError(t, err)

	check.Equal(t, MicroAlgos(700_000), l.AccountBalance(alice))
	check.Equal(t, MicroAlgos(300_000), l.AccountBalance(bob))
}

func TestExecute_PaymentBelowMinBalance(t *testing.T) {
	l := New()
	alice := testAddr("alice")
	bob := testAddr("bob")
	l.Fund(alice, 150_000)

	// Paying 100_000 would leave 50_000, below the 100_000 account base.
	_, err := l.Execute([]Transaction{NewPayment(alice, bob, 100_000)})
	check.Error(t, err)
	check.True(t, errors.Is(err, ErrInsufficientFunds))
	check.Equal(t, MicroAlgos(150_000), l.AccountBalance(alice))
	check.Equal(t, MicroAlgos(0), l.AccountBalance(bob))
}

func TestExecute_PaymentUnknownSender(t *testing.T) {
	l := New()
	_, err := l.Execute([]Transaction{NewPayment(testAddr("ghost"), testAddr("bob"), 1)})
	check.True(t, errors.Is(err, ErrNotFound))
}

func TestCreateAsset_MintsSupplyToCreator(t *testing.T) {
	l := New()
	creator := testAddr("creator")
	l.Fund(creator, 1_000_000)

	id, err := l.CreateAsset(creator, AssetParams{Name: "Gold Coin", UnitName: "GOLD", Total: 10_000})
	assert.NoError(t, err)

	amount, opted := l.AssetBalance(creator, id)
	check.True(t, opted)
	check.Equal(t, uint64(10_000), amount)

	// The holding raises the creator's reserve by one asset slot.
	check.Equal(t, MinBalanceAccountBase+MinBalanceAssetHolding, l.MinBalanceOf(creator))

	params, err := l.Asset(id)
	check.NoError(t, err)
	check.Equal(t, creator, params.Creator)
	check.Equal(t, "Gold Coin", params.Name)
}

func TestCreateAsset_RequiresFundedCreator(t *testing.T) {
	l := New()
	_, err := l.CreateAsset(testAddr("ghost"), AssetParams{Name: "X", Total: 1})
	check.True(t, errors.Is(err, ErrNotFound))

	poor := testAddr("poor")
	l.Fund(poor, 150_000)
	_, err = l.CreateAsset(poor, AssetParams{Name: "X", Total: 1})
	check.True(t, errors.Is(err, ErrInsufficientFunds))
}

func TestAssetOptIn_RequiresReserve(t *testing.T) {
	l := New()
	creator := testAddr("creator")
	bidder := testAddr("bidder")
	l.Fund(creator, 1_000_000)
	id, err := l.CreateAsset(creator, AssetParams{Name: "Bid Token", Total: 1_000})
	assert.NoError(t, err)

	l.Fund(bidder, 150_000)
	_, err = l.Execute([]Transaction{NewAssetOptIn(bidder, id)})
	check.True(t, errors.Is(err, ErrInsufficientFunds))

	l.Fund(bidder, 50_000)
	_, err = l.Execute([]Transaction{NewAssetOptIn(bidder, id)})
	check.NoError(t, err)

	_, opted := l.AssetBalance(bidder, id)
	check.True(t, opted)
}

func TestAssetTransfer_RequiresReceiverOptIn(t *testing.T) {
	l := New()
	creator := testAddr("creator")
	bob := testAddr("bob")
	l.Fund(creator, 1_000_000)
	l.Fund(bob, 1_000_000)
	id, err := l.CreateAsset(creator, AssetParams{Name: "Bid Token", Total: 1_000})
	assert.NoError(t, err)

	_, err = l.Execute([]Transaction{NewAssetTransfer(creator, id, bob, 10)})
	check.True(t, errors.Is(err, ErrInvalidState))

	_, err = l.Execute([]Transaction{
		NewAssetOptIn(bob, id),
	})
	check.NoError(t, err)
	_, err = l.Execute([]Transaction{NewAssetTransfer(creator, id, bob, 10)})
	check.NoError(t, err)

	amount, _ := l.AssetBalance(bob, id)
	check.Equal(t, uint64(10), amount)
}

func TestAssetCloseOut_RemovesHoldingAndDeliversBalance(t *testing.T) {
	l := New()
	creator := testAddr("creator")
	bob := testAddr("bob")
	l.Fund(creator, 1_000_000)
	l.Fund(bob, 1_000_000)
	id, err := l.CreateAsset(creator, AssetParams{Name: "Bid Token", Total: 1_000})
	assert.NoError(t, err)

	_, err = l.Execute([]Transaction{
		NewAssetOptIn(bob, id),
		NewAssetTransfer(creator, id, bob, 100),
	})
	assert.NoError(t, err)

	before := l.MinBalanceOf(bob)
	_, err = l.Execute([]Transaction{NewAssetCloseOut(bob, id, creator)})
	check.NoError(t, err)

	// Holding is gone, balance went back to the creator, reserve dropped.
	_, opted := l.AssetBalance(bob, id)
	check.False(t, opted)
	amount, _ := l.AssetBalance(creator, id)
	check.Equal(t, uint64(1_000), amount)
	check.Equal(t, before-MinBalanceAssetHolding, l.MinBalanceOf(bob))
}

func TestExecute_RollsBackFailedGroup(t *testing.T) {
	l := New()
	alice := testAddr("alice")
	bob := testAddr("bob")
	l.Fund(alice, 1_000_000)

	// The first payment would succeed on its own; the second fails, so the
	// whole group must leave no trace.
	_, err := l.Execute([]Transaction{
		NewPayment(alice, bob, 200_000),
		NewPayment(bob, testAddr("carol"), 500_000),
	})
	check.Error(t, err)
	check.True(t, errors.Is(err, ErrInsufficientFunds))
	check.Equal(t, MicroAlgos(1_000_000), l.AccountBalance(alice))
	check.Equal(t, MicroAlgos(0), l.AccountBalance(bob))
}

func TestExecute_RollsBackAppStateOnFailure(t *testing.T) {
	l := New()
	creator := testAddr("creator")
	l.Fund(creator, 1_000_000)
	id, err := l.CreateApp(creator, counterProgram{}, StateSchema{Uints: 1})
	assert.NoError(t, err)

	returns, err := l.Execute([]Transaction{NewAppCall(creator, id, "increment")})
	assert.NoError(t, err)
	count, err := ParseUint64Arg(returns[0])
	check.NoError(t, err)
	check.Equal(t, uint64(1), count)

	_, err = l.Execute([]Transaction{NewAppCall(creator, id, "increment_then_fail")})
	check.Error(t, err)

	state, err := l.AppState(id)
	assert.NoError(t, err)
	check.Equal(t, uint64(1), state["count"].Uint)
}

func TestExecute_GroupSizeLimits(t *testing.T) {
	l := New()
	_, err := l.Execute(nil)
	check.True(t, errors.Is(err, ErrInvalidArgument))

	alice := testAddr("alice")
	l.Fund(alice, 100_000_000)
	group := make([]Transaction, MaxGroupSize+1)
	for i := range group {
		group[i] = NewPayment(alice, testAddr("bob"), 1)
	}
	_, err = l.Execute(group)
	check.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestAppCall_UnknownApp(t *testing.T) {
	l := New()
	alice := testAddr("alice")
	l.Fund(alice, 1_000_000)
	_, err := l.Execute([]Transaction{NewAppCall(alice, AppID(42), "increment")})
	check.True(t, errors.Is(err, ErrNotFound))
}

func TestSetState_EnforcesSchema(t *testing.T) {
	l := New()
	creator := testAddr("creator")
	l.Fund(creator, 1_000_000)
	id, err := l.CreateApp(creator, counterProgram{}, StateSchema{Uints: 1})
	assert.NoError(t, err)

	// The schema allows a single uint entry, already used by "count".
	_, err = l.Execute([]Transaction{NewAppCall(creator, id, "overflow_schema")})
	check.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestWithClock_DrivesLatestTimestamp(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := New(WithClock(func() time.Time { return now }))
	check.Equal(t, uint64(1_700_000_000), l.LatestTimestamp())

	now = now.Add(time.Hour)
	check.Equal(t, uint64(1_700_003_600), l.LatestTimestamp())
}

func TestStateSchemaMinBalance(t *testing.T) {
	// 6 uints and 2 byte slices cost 171_000 + 100_000 on top of the account
	// base, matching the auction storage fee schedule.
	schema := StateSchema{Uints: 6, ByteSlices: 2}
	check.Equal(t, MicroAlgos(271_000), schema.MinBalance())
}

func TestMicroAlgosConversions(t *testing.T) {
	check.True(t, MicroAlgos(371_000).Algos().Equal(decimal.RequireFromString("0.371")))

	amount, err := ToMicroAlgos(decimal.RequireFromString("1.5"))
	check.NoError(t, err)
	check.Equal(t, MicroAlgos(1_500_000), amount)

	_, err = ToMicroAlgos(decimal.RequireFromString("0.0000001"))
	check.True(t, errors.Is(err, ErrInvalidArgument))
}
