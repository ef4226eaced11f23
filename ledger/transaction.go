package ledger

import (
	"crypto/sha256"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// TxType discriminates the transaction union.
type TxType string

const (
	// TxPayment moves MicroAlgos between accounts.
	TxPayment TxType = "pay"
	// TxAssetTransfer moves asset units. A zero-amount self-transfer opts the
	// sender into the asset; setting AssetCloseTo closes the holding out.
	TxAssetTransfer TxType = "axfer"
	// TxAppCall invokes a method on an application instance.
	TxAppCall TxType = "appl"
)

// Transaction is one ledger operation. It is a flat record with a type tag;
// only the fields of the tagged type are consulted. Transactions submitted
// together as a group execute atomically in order.
type Transaction struct {
	Type   TxType  `cbor:"type" json:"type"`
	Sender Address `cbor:"snd" json:"sender"`

	// Payment fields.
	Receiver Address    `cbor:"rcv,omitempty" json:"receiver,omitempty"`
	Amount   MicroAlgos `cbor:"amt,omitempty" json:"amount,omitempty"`

	// Asset transfer fields.
	XferAsset     AssetID `cbor:"xaid,omitempty" json:"xfer_asset,omitempty"`
	AssetReceiver Address `cbor:"arcv,omitempty" json:"asset_receiver,omitempty"`
	AssetAmount   uint64  `cbor:"aamt,omitempty" json:"asset_amount,omitempty"`
	AssetCloseTo  Address `cbor:"aclose,omitempty" json:"asset_close_to,omitempty"`

	// Application call fields.
	App    AppID    `cbor:"apid,omitempty" json:"app,omitempty"`
	Method string   `cbor:"apmd,omitempty" json:"method,omitempty"`
	Args   [][]byte `cbor:"apaa,omitempty" json:"args,omitempty"`

	// Note is a free-form annotation, conventionally "app-name/method".
	Note string `cbor:"note,omitempty" json:"note,omitempty"`
}

// canonicalMode encodes with deterministic (core canonical) CBOR options so a
// transaction always serializes to the same bytes for hashing and signing.
var canonicalMode cbor.EncMode

func init() {
	var err error
	canonicalMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("build canonical cbor mode: %v", err))
	}
}

// CanonicalBytes returns the deterministic CBOR encoding of the transaction.
// Signatures cover exactly these bytes.
func (t Transaction) CanonicalBytes() ([]byte, error) {
	b, err := canonicalMode.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("encode transaction: %w", err)
	}
	return b, nil
}

// ID returns the hex SHA-256 digest of the canonical transaction encoding.
func (t Transaction) ID() (string, error) {
	b, err := t.CanonicalBytes()
	if err != nil {
		return "", err
	}
	digest := sha256.Sum256(b)
	return fmt.Sprintf("%x", digest), nil
}

// NewPayment builds a payment transaction.
func NewPayment(sender, receiver Address, amount MicroAlgos) Transaction {
	return Transaction{Type: TxPayment, Sender: sender, Receiver: receiver, Amount: amount}
}

// NewAssetTransfer builds an asset transfer transaction.
func NewAssetTransfer(sender Address, asset AssetID, receiver Address, amount uint64) Transaction {
	return Transaction{Type: TxAssetTransfer, Sender: sender, XferAsset: asset, AssetReceiver: receiver, AssetAmount: amount}
}

// NewAssetOptIn builds the zero-amount self-transfer that opts the sender
// into an asset.
func NewAssetOptIn(sender Address, asset AssetID) Transaction {
	return NewAssetTransfer(sender, asset, sender, 0)
}

// NewAssetCloseOut builds the transfer that sends the sender's remaining
// balance of the asset to closeTo and removes the holding.
func NewAssetCloseOut(sender Address, asset AssetID, closeTo Address) Transaction {
	return Transaction{Type: TxAssetTransfer, Sender: sender, XferAsset: asset, AssetReceiver: closeTo, AssetCloseTo: closeTo}
}

// NewAppCall builds an application call transaction.
func NewAppCall(sender Address, app AppID, method string, args ...[]byte) Transaction {
	return Transaction{Type: TxAppCall, Sender: sender, App: app, Method: method, Args: args}
}

// Application call arguments are individually CBOR-encoded. The helpers below
// are the whole codec; programs and clients share them.

// Uint64Arg encodes a uint64 argument.
func Uint64Arg(v uint64) []byte {
	b, err := cbor.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("encode uint64 arg: %v", err))
	}
	return b
}

// AddressArg encodes an address argument.
func AddressArg(a Address) []byte {
	b, err := cbor.Marshal(string(a))
	if err != nil {
		panic(fmt.Sprintf("encode address arg: %v", err))
	}
	return b
}

// ParseUint64Arg decodes a uint64 argument.
func ParseUint64Arg(b []byte) (uint64, error) {
	var v uint64
	if err := cbor.Unmarshal(b, &v); err != nil {
		return 0, fmt.Errorf("parse uint64 arg: %v: %w", err, ErrInvalidArgument)
	}
	return v, nil
}

// ParseAddressArg decodes an address argument.
func ParseAddressArg(b []byte) (Address, error) {
	var s string
	if err := cbor.Unmarshal(b, &s); err != nil {
		return ZeroAddress, fmt.Errorf("parse address arg: %v: %w", err, ErrInvalidArgument)
	}
	return Address(s), nil
}

// StringArg encodes a string argument.
func StringArg(s string) []byte {
	b, err := cbor.Marshal(s)
	if err != nil {
		panic(fmt.Sprintf("encode string arg: %v", err))
	}
	return b
}

// ParseStringArg decodes a string argument.
func ParseStringArg(b []byte) (string, error) {
	var s string
	if err := cbor.Unmarshal(b, &s); err != nil {
		return "", fmt.Errorf("parse string arg: %v: %w", err, ErrInvalidArgument)
	}
	return s, nil
}
