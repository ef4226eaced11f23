package ledger

import "fmt"

// Program is the logic of an application type. Programs are stateless values;
// all durable state lives in the instance's ledger key-value store, so one
// Program value can back any number of instances.
type Program interface {
	// Name identifies the program in notes, logs, and errors.
	Name() string

	// OnCreate initializes a fresh instance's state. The call sender is the
	// instance creator.
	OnCreate(c *Call, args [][]byte) error

	// Call dispatches one method invocation. Any returned error aborts the
	// whole transaction group.
	Call(c *Call, method string, args [][]byte) ([]byte, error)

	// OnDelete guards instance deletion; returning an error keeps the
	// instance alive.
	OnDelete(c *Call) error
}

// Call is the execution context handed to a program for one invocation. All
// effects issued through it are part of the enclosing atomic group: if the
// program returns an error, every effect is rolled back.
type Call struct {
	ledger  *Ledger
	app     *appRecord
	appAddr Address
	sender  Address
	group   []Transaction
	index   int
}

// Sender returns the authenticated sender of the call.
func (c *Call) Sender() Address { return c.sender }

// AppID returns the called instance's ID.
func (c *Call) AppID() AppID { return c.app.id }

// AppAddress returns the called instance's account address.
func (c *Call) AppAddress() Address { return c.appAddr }

// Creator returns the address that created the instance.
func (c *Call) Creator() Address { return c.app.creator }

// Now returns the ledger's current UNIX time.
func (c *Call) Now() uint64 { return uint64(c.ledger.clock().Unix()) }

// PrecedingTransfer returns the asset transfer immediately preceding this
// call in its group. Operations funded by a deposit (bids) use this
// convention to locate the deposit.
func (c *Call) PrecedingTransfer() (Transaction, error) {
	if c.index == 0 {
		return Transaction{}, fmt.Errorf("call is first in its group, no transfer precedes it: %w", ErrInvalidArgument)
	}
	txn := c.group[c.index-1]
	if txn.Type != TxAssetTransfer {
		return Transaction{}, fmt.Errorf("transaction preceding the call is %s, want %s: %w", txn.Type, TxAssetTransfer, ErrInvalidArgument)
	}
	return txn, nil
}

// PrecedingPayment returns the payment immediately preceding this call in its
// group. Operations funded by a fee payment use this convention.
func (c *Call) PrecedingPayment() (Transaction, error) {
	if c.index == 0 {
		return Transaction{}, fmt.Errorf("call is first in its group, no payment precedes it: %w", ErrInvalidArgument)
	}
	txn := c.group[c.index-1]
	if txn.Type != TxPayment {
		return Transaction{}, fmt.Errorf("transaction preceding the call is %s, want %s: %w", txn.Type, TxPayment, ErrInvalidArgument)
	}
	return txn, nil
}

// GetUint reads a uint entry; missing keys read as zero.
func (c *Call) GetUint(key string) uint64 {
	return c.app.state[key].Uint
}

// GetBytes reads a byte-slice entry; missing keys read as nil.
func (c *Call) GetBytes(key string) []byte {
	return c.app.state[key].Bytes
}

// SetUint writes a uint entry, subject to the declared schema.
func (c *Call) SetUint(key string, v uint64) error {
	return c.setState(key, UintValue(v))
}

// SetBytes writes a byte-slice entry, subject to the declared schema.
func (c *Call) SetBytes(key string, b []byte) error {
	return c.setState(key, BytesValue(b))
}

func (c *Call) setState(key string, v StateValue) error {
	if existing, ok := c.app.state[key]; ok {
		if existing.Kind != v.Kind {
			return fmt.Errorf("state key %q holds kind %d, cannot write kind %d: %w", key, existing.Kind, v.Kind, ErrInvalidArgument)
		}
		c.app.state[key] = v
		return nil
	}
	var used, allowed uint64
	for _, entry := range c.app.state {
		if entry.Kind == v.Kind {
			used++
		}
	}
	switch v.Kind {
	case KindUint:
		allowed = c.app.schema.Uints
	case KindBytes:
		allowed = c.app.schema.ByteSlices
	}
	if used >= allowed {
		return fmt.Errorf("state schema allows %d entries of kind %d, all in use: %w", allowed, v.Kind, ErrInvalidArgument)
	}
	c.app.state[key] = v
	return nil
}

// Balance returns the instance account's balance.
func (c *Call) Balance() MicroAlgos {
	return c.ledger.accounts[c.appAddr].balance
}

// MinBalance returns the instance account's current reserve requirement.
func (c *Call) MinBalance() MicroAlgos {
	return c.ledger.minBalance(c.ledger.accounts[c.appAddr])
}

// Holding returns the holding amount of asset for addr and whether the
// account is opted in.
func (c *Call) Holding(addr Address, asset AssetID) (uint64, bool) {
	rec, ok := c.ledger.accounts[addr]
	if !ok {
		return 0, false
	}
	amount, opted := rec.holdings[asset]
	return amount, opted
}

// Assets lists the instance account's holdings sorted by asset ID.
func (c *Call) Assets() []AssetHolding {
	return holdingsOf(c.ledger.accounts[c.appAddr])
}

// Asset returns the parameters of an asset.
func (c *Call) Asset(id AssetID) (AssetParams, error) {
	params, ok := c.ledger.assets[id]
	if !ok {
		return AssetParams{}, fmt.Errorf("asset %d: %w", id, ErrNotFound)
	}
	return *params, nil
}

// IsApp reports whether addr is an application instance's account. Programs
// use this to require that a counterparty is itself a contract.
func (c *Call) IsApp(addr Address) bool {
	rec, ok := c.ledger.accounts[addr]
	return ok && rec.app != nil
}

// Pay issues an inner payment from the instance account.
func (c *Call) Pay(receiver Address, amount MicroAlgos) error {
	return c.ledger.pay(c.appAddr, receiver, amount)
}

// Transfer issues an inner asset transfer from the instance account.
func (c *Call) Transfer(asset AssetID, receiver Address, amount uint64) error {
	return c.ledger.transferAsset(c.appAddr, asset, receiver, amount)
}

// OptInAsset opts the instance account into an asset. The account must be
// funded to cover the raised reserve.
func (c *Call) OptInAsset(asset AssetID) error {
	return c.ledger.optIn(c.ledger.accounts[c.appAddr], asset)
}

// CloseOutAsset sends the instance account's whole holding of asset to
// closeTo and removes the holding.
func (c *Call) CloseOutAsset(asset AssetID, closeTo Address) error {
	return c.ledger.closeOutAsset(c.appAddr, asset, ZeroAddress, 0, closeTo)
}

// CreateApp deploys a new instance of program as an inner operation. The new
// instance's creator is this instance's account.
func (c *Call) CreateApp(program Program, schema StateSchema, args ...[]byte) (AppID, error) {
	return c.ledger.createApp(c.appAddr, program, schema, args)
}

// DeleteApp deletes an instance this instance created, closing its balance to
// this instance's account.
func (c *Call) DeleteApp(id AppID) error {
	return c.ledger.deleteApp(c.appAddr, id, c.appAddr)
}
