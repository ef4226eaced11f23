package ledger

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MaxGroupSize is the largest number of transactions one atomic group may hold.
const MaxGroupSize = 16

type accountRecord struct {
	balance  MicroAlgos
	holdings map[AssetID]uint64 // key presence = opted in
	app      *appRecord         // non-nil for application accounts
}

type appRecord struct {
	id      AppID
	creator Address
	program Program
	schema  StateSchema
	state   map[string]StateValue
}

// AssetHolding is one (asset, amount) pair of an account.
type AssetHolding struct {
	AssetID AssetID `json:"asset_id"`
	Amount  uint64  `json:"amount"`
}

// Ledger is an in-process host ledger. It provides the contract surface the
// auction programs are written against: serialized atomic transaction groups,
// per-instance key-value state, asset transfers with escrow semantics,
// minimum-balance accounting, and a current-time oracle.
//
// All state-changing entry points serialize on one mutex, so no two groups
// ever interleave. A group either fully commits or is rolled back to the
// pre-group snapshot; programs never observe partial effects.
type Ledger struct {
	mu       sync.Mutex
	clock    func() time.Time
	accounts map[Address]*accountRecord
	assets   map[AssetID]*AssetParams
	apps     map[AppID]Address
	nextID   uint64
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock injects the time source, letting tests drive the bidding window.
func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) { l.clock = clock }
}

// New builds an empty ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		clock:    time.Now,
		accounts: make(map[Address]*accountRecord),
		assets:   make(map[AssetID]*AssetParams),
		apps:     make(map[AppID]Address),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LatestTimestamp returns the ledger's current UNIX time.
func (l *Ledger) LatestTimestamp() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return uint64(l.clock().Unix())
}

// Fund credits amount to addr from the genesis pool, allocating the account
// if it does not exist yet. This is the dev/test faucet; real deployments
// would receive funds through payments only.
func (l *Ledger) Fund(addr Address, amount MicroAlgos) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(addr, amount)
}

// CreateAsset mints a new asset and opts the creator in with the total supply.
func (l *Ledger) CreateAsset(creator Address, params AssetParams) (AssetID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if params.Total == 0 {
		return 0, fmt.Errorf("asset total supply must be positive: %w", ErrInvalidArgument)
	}
	if params.Name == "" {
		return 0, fmt.Errorf("asset name must not be empty: %w", ErrInvalidArgument)
	}
	rec, ok := l.accounts[creator]
	if !ok {
		return 0, fmt.Errorf("asset creator %s: %w", creator, ErrNotFound)
	}

	snap := l.snapshot()
	l.nextID++
	id := AssetID(l.nextID)
	params.ID = id
	params.Creator = creator
	l.assets[id] = &params

	// The creator holds the full supply, so it must carry the holding reserve.
	if err := l.optIn(rec, id); err != nil {
		l.restore(snap)
		return 0, err
	}
	rec.holdings[id] = params.Total
	return id, nil
}

// CreateApp deploys a new instance of program with the declared state schema.
// The instance's account starts unfunded; callers are expected to fund its
// reserve in the same flow. Returns the new AppID.
func (l *Ledger) CreateApp(creator Address, program Program, schema StateSchema, args ...[]byte) (AppID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap := l.snapshot()
	id, err := l.createApp(creator, program, schema, args)
	if err != nil {
		l.restore(snap)
		return 0, fmt.Errorf("create app %s: %w", program.Name(), err)
	}
	return id, nil
}

// DeleteApp deletes an application instance, closing its remaining balance
// out to the sender. Only the instance's creator may delete it.
func (l *Ledger) DeleteApp(sender Address, id AppID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap := l.snapshot()
	if err := l.deleteApp(sender, id, sender); err != nil {
		l.restore(snap)
		return fmt.Errorf("delete app %d: %w", id, err)
	}
	return nil
}

// Execute applies a transaction group atomically: every transaction succeeds
// in order, or the whole group is rolled back and the error of the failing
// transaction is returned. Senders are taken as already authenticated; the
// signed path is ExecuteSigned. Returns one (possibly nil) return value per
// transaction; only application calls produce them.
func (l *Ledger) Execute(group []Transaction) ([][]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(group) == 0 {
		return nil, fmt.Errorf("empty transaction group: %w", ErrInvalidArgument)
	}
	if len(group) > MaxGroupSize {
		return nil, fmt.Errorf("group size %d exceeds maximum %d: %w", len(group), MaxGroupSize, ErrInvalidArgument)
	}

	groupID := uuid.NewString()
	snap := l.snapshot()
	returns := make([][]byte, len(group))
	for i, txn := range group {
		ret, err := l.apply(group, i)
		if err != nil {
			l.restore(snap)
			return nil, fmt.Errorf("group %s txn[%d] %s: %w", groupID, i, txn.Type, err)
		}
		returns[i] = ret
	}
	return returns, nil
}

// ExecuteSigned verifies every signature in the group and then executes it.
// This is the boundary used for externally submitted transactions.
func (l *Ledger) ExecuteSigned(group []SignedTransaction) ([][]byte, error) {
	txns := make([]Transaction, len(group))
	for i, st := range group {
		if err := VerifySignedTransaction(st); err != nil {
			return nil, fmt.Errorf("txn[%d]: %w", i, err)
		}
		txns[i] = st.Txn
	}
	return l.Execute(txns)
}

func (l *Ledger) apply(group []Transaction, index int) ([]byte, error) {
	txn := group[index]
	switch txn.Type {
	case TxPayment:
		return nil, l.pay(txn.Sender, txn.Receiver, txn.Amount)
	case TxAssetTransfer:
		return nil, l.applyAssetTransfer(txn)
	case TxAppCall:
		return l.applyAppCall(group, index)
	default:
		return nil, fmt.Errorf("unknown transaction type %q: %w", txn.Type, ErrInvalidArgument)
	}
}

func (l *Ledger) applyAssetTransfer(txn Transaction) error {
	if _, ok := l.assets[txn.XferAsset]; !ok {
		return fmt.Errorf("asset %d: %w", txn.XferAsset, ErrNotFound)
	}
	rec, ok := l.accounts[txn.Sender]
	if !ok {
		return fmt.Errorf("sender %s: %w", txn.Sender, ErrNotFound)
	}

	if txn.AssetCloseTo != ZeroAddress {
		return l.closeOutAsset(txn.Sender, txn.XferAsset, txn.AssetReceiver, txn.AssetAmount, txn.AssetCloseTo)
	}

	// A zero-amount self-transfer opts the sender in.
	if txn.AssetReceiver == txn.Sender && txn.AssetAmount == 0 {
		if _, opted := rec.holdings[txn.XferAsset]; opted {
			return nil
		}
		return l.optIn(rec, txn.XferAsset)
	}

	return l.transferAsset(txn.Sender, txn.XferAsset, txn.AssetReceiver, txn.AssetAmount)
}

func (l *Ledger) applyAppCall(group []Transaction, index int) ([]byte, error) {
	txn := group[index]
	appAddr, ok := l.apps[txn.App]
	if !ok {
		return nil, fmt.Errorf("application %d: %w", txn.App, ErrNotFound)
	}
	rec := l.accounts[appAddr]
	call := &Call{
		ledger:  l,
		app:     rec.app,
		appAddr: appAddr,
		sender:  txn.Sender,
		group:   group,
		index:   index,
	}
	ret, err := rec.app.program.Call(call, txn.Method, txn.Args)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", rec.app.program.Name(), txn.Method, err)
	}
	return ret, nil
}

// credit adds funds, allocating the account on first use.
func (l *Ledger) credit(addr Address, amount MicroAlgos) {
	rec, ok := l.accounts[addr]
	if !ok {
		rec = &accountRecord{holdings: make(map[AssetID]uint64)}
		l.accounts[addr] = rec
	}
	rec.balance += amount
}

// pay moves MicroAlgos. The debit must not take the sender below its minimum
// balance.
func (l *Ledger) pay(sender, receiver Address, amount MicroAlgos) error {
	rec, ok := l.accounts[sender]
	if !ok {
		return fmt.Errorf("sender %s: %w", sender, ErrNotFound)
	}
	if receiver == ZeroAddress {
		return fmt.Errorf("payment receiver not set: %w", ErrInvalidArgument)
	}
	if rec.balance < amount {
		return fmt.Errorf("balance %d short of payment %d: %w", rec.balance, amount, ErrInsufficientFunds)
	}
	remaining := rec.balance - amount
	if remaining < l.minBalance(rec) {
		return fmt.Errorf("payment of %d would leave balance %d below minimum %d: %w",
			amount, remaining, l.minBalance(rec), ErrInsufficientFunds)
	}
	rec.balance = remaining
	l.credit(receiver, amount)
	return nil
}

// optIn adds an asset holding, raising the account's minimum balance. The
// account must already be funded to cover the raise.
func (l *Ledger) optIn(rec *accountRecord, asset AssetID) error {
	if _, ok := l.assets[asset]; !ok {
		return fmt.Errorf("asset %d: %w", asset, ErrNotFound)
	}
	if _, opted := rec.holdings[asset]; opted {
		return nil
	}
	required := l.minBalance(rec) + MinBalanceAssetHolding
	if rec.balance < required {
		return fmt.Errorf("opt-in to asset %d requires minimum balance %d, have %d: %w",
			asset, required, rec.balance, ErrInsufficientFunds)
	}
	rec.holdings[asset] = 0
	return nil
}

// transferAsset moves asset units between opted-in accounts.
func (l *Ledger) transferAsset(sender Address, asset AssetID, receiver Address, amount uint64) error {
	rec := l.accounts[sender]
	held, opted := rec.holdings[asset]
	if !opted {
		return fmt.Errorf("sender %s not opted in to asset %d: %w", sender, asset, ErrInvalidState)
	}
	if held < amount {
		return fmt.Errorf("asset %d balance %d short of transfer %d: %w", asset, held, amount, ErrInsufficientFunds)
	}
	dst, ok := l.accounts[receiver]
	if !ok {
		return fmt.Errorf("receiver %s: %w", receiver, ErrNotFound)
	}
	if _, opted := dst.holdings[asset]; !opted {
		return fmt.Errorf("receiver %s not opted in to asset %d: %w", receiver, asset, ErrInvalidState)
	}
	rec.holdings[asset] = held - amount
	dst.holdings[asset] += amount
	return nil
}

// closeOutAsset transfers amount to receiver, sends the remainder to closeTo,
// and removes the holding, lowering the sender's minimum balance.
func (l *Ledger) closeOutAsset(sender Address, asset AssetID, receiver Address, amount uint64, closeTo Address) error {
	rec := l.accounts[sender]
	held, opted := rec.holdings[asset]
	if !opted {
		return fmt.Errorf("sender %s not opted in to asset %d: %w", sender, asset, ErrInvalidState)
	}
	if held < amount {
		return fmt.Errorf("asset %d balance %d short of transfer %d: %w", asset, held, amount, ErrInsufficientFunds)
	}
	if amount > 0 && receiver != closeTo {
		if err := l.transferAsset(sender, asset, receiver, amount); err != nil {
			return err
		}
		held = rec.holdings[asset]
	}
	if held > 0 {
		if err := l.transferAsset(sender, asset, closeTo, held); err != nil {
			return err
		}
	}
	delete(rec.holdings, asset)
	return nil
}

func (l *Ledger) createApp(creator Address, program Program, schema StateSchema, args [][]byte) (AppID, error) {
	if program == nil {
		return 0, fmt.Errorf("program must not be nil: %w", ErrInvalidArgument)
	}
	l.nextID++
	id := AppID(l.nextID)
	addr := AppAddress(id)

	app := &appRecord{
		id:      id,
		creator: creator,
		program: program,
		schema:  schema,
		state:   make(map[string]StateValue),
	}
	l.accounts[addr] = &accountRecord{holdings: make(map[AssetID]uint64), app: app}
	l.apps[id] = addr

	call := &Call{ledger: l, app: app, appAddr: addr, sender: creator}
	if err := program.OnCreate(call, args); err != nil {
		return 0, err
	}
	return id, nil
}

// deleteApp removes an application instance, closing its remaining balance to
// closeTo. Only the creator may delete, and the instance must hold no assets.
func (l *Ledger) deleteApp(sender Address, id AppID, closeTo Address) error {
	addr, ok := l.apps[id]
	if !ok {
		return fmt.Errorf("application %d: %w", id, ErrNotFound)
	}
	rec := l.accounts[addr]
	if rec.app.creator != sender {
		return fmt.Errorf("only the creator may delete application %d: %w", id, ErrUnauthorized)
	}
	if len(rec.holdings) > 0 {
		return fmt.Errorf("application %d still holds %d assets: %w", id, len(rec.holdings), ErrInvalidState)
	}

	call := &Call{ledger: l, app: rec.app, appAddr: addr, sender: sender}
	if err := rec.app.program.OnDelete(call); err != nil {
		return err
	}
	if rec.balance > 0 {
		l.credit(closeTo, rec.balance)
	}
	delete(l.accounts, addr)
	delete(l.apps, id)
	return nil
}

// minBalance computes the account's current reserve requirement. It is always
// derived from live holdings and schema, never cached.
func (l *Ledger) minBalance(rec *accountRecord) MicroAlgos {
	required := MinBalanceAccountBase + MinBalanceAssetHolding*MicroAlgos(len(rec.holdings))
	if rec.app != nil {
		required += rec.app.schema.MinBalance()
	}
	return required
}

// snapshot deep-copies all mutable ledger state. Programs are immutable and
// shared by reference.
func (l *Ledger) snapshot() *ledgerSnapshot {
	accounts := make(map[Address]*accountRecord, len(l.accounts))
	for addr, rec := range l.accounts {
		cp := &accountRecord{balance: rec.balance, holdings: make(map[AssetID]uint64, len(rec.holdings))}
		for id, amt := range rec.holdings {
			cp.holdings[id] = amt
		}
		if rec.app != nil {
			state := make(map[string]StateValue, len(rec.app.state))
			for k, v := range rec.app.state {
				state[k] = v
			}
			cp.app = &appRecord{
				id:      rec.app.id,
				creator: rec.app.creator,
				program: rec.app.program,
				schema:  rec.app.schema,
				state:   state,
			}
		}
		accounts[addr] = cp
	}
	assets := make(map[AssetID]*AssetParams, len(l.assets))
	for id, params := range l.assets {
		cp := *params
		assets[id] = &cp
	}
	apps := make(map[AppID]Address, len(l.apps))
	for id, addr := range l.apps {
		apps[id] = addr
	}
	return &ledgerSnapshot{accounts: accounts, assets: assets, apps: apps, nextID: l.nextID}
}

type ledgerSnapshot struct {
	accounts map[Address]*accountRecord
	assets   map[AssetID]*AssetParams
	apps     map[AppID]Address
	nextID   uint64
}

func (l *Ledger) restore(s *ledgerSnapshot) {
	l.accounts = s.accounts
	l.assets = s.assets
	l.apps = s.apps
	l.nextID = s.nextID
}

// AccountBalance returns the MicroAlgos balance of addr. Unknown accounts
// read as empty.
func (l *Ledger) AccountBalance(addr Address) MicroAlgos {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.accounts[addr]
	if !ok {
		return 0
	}
	return rec.balance
}

// MinBalanceOf returns the current reserve requirement of addr.
func (l *Ledger) MinBalanceOf(addr Address) MicroAlgos {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.accounts[addr]
	if !ok {
		return 0
	}
	return l.minBalance(rec)
}

// AssetBalance returns the holding amount of asset for addr and whether the
// account is opted in.
func (l *Ledger) AssetBalance(addr Address, asset AssetID) (uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.accounts[addr]
	if !ok {
		return 0, false
	}
	amount, opted := rec.holdings[asset]
	return amount, opted
}

// AccountAssets lists the account's holdings sorted by asset ID.
func (l *Ledger) AccountAssets(addr Address) []AssetHolding {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.accounts[addr]
	if !ok {
		return nil
	}
	return holdingsOf(rec)
}

func holdingsOf(rec *accountRecord) []AssetHolding {
	holdings := make([]AssetHolding, 0, len(rec.holdings))
	for id, amount := range rec.holdings {
		holdings = append(holdings, AssetHolding{AssetID: id, Amount: amount})
	}
	sort.Slice(holdings, func(i, j int) bool { return holdings[i].AssetID < holdings[j].AssetID })
	return holdings
}

// Asset returns the parameters of an asset.
func (l *Ledger) Asset(id AssetID) (AssetParams, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	params, ok := l.assets[id]
	if !ok {
		return AssetParams{}, fmt.Errorf("asset %d: %w", id, ErrNotFound)
	}
	return *params, nil
}

// AppExists reports whether an application instance is live.
func (l *Ledger) AppExists(id AppID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.apps[id]
	return ok
}

// AppCreator returns the creator of an application instance.
func (l *Ledger) AppCreator(id AppID) (Address, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	addr, ok := l.apps[id]
	if !ok {
		return ZeroAddress, fmt.Errorf("application %d: %w", id, ErrNotFound)
	}
	return l.accounts[addr].app.creator, nil
}

// AppState returns a copy of an application instance's key-value state.
func (l *Ledger) AppState(id AppID) (map[string]StateValue, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	addr, ok := l.apps[id]
	if !ok {
		return nil, fmt.Errorf("application %d: %w", id, ErrNotFound)
	}
	state := make(map[string]StateValue, len(l.accounts[addr].app.state))
	for k, v := range l.accounts[addr].app.state {
		state[k] = v
	}
	return state, nil
}
