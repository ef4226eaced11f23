package ledger

import (
	"crypto/ed25519"
	"encoding/binary"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/blake2b"
)

// Address identifies an account. It is the base58 encoding of the BLAKE2b-256
// digest of the account's ed25519 public key. The zero value means "no
// address" and is used for unset fields (no bidder yet, no close-to target).
type Address string

// ZeroAddress is the empty address.
const ZeroAddress Address = ""

// AssetID identifies an asset. IDs are ledger-assigned, monotonically
// increasing, and never reused. Zero means "no asset".
type AssetID uint64

// AppID identifies an application instance. Zero means "no application".
type AppID uint64

// MicroAlgos is an amount of the native ledger currency in millionths.
type MicroAlgos uint64

const microAlgosPerAlgo = 1_000_000

// Algos converts the amount to whole-unit decimal form for display.
func (a MicroAlgos) Algos() decimal.Decimal {
	return decimal.New(int64(a), -6)
}

// ToMicroAlgos converts a whole-unit decimal amount to MicroAlgos.
// Fractions below one microalgo are rejected rather than silently truncated.
func ToMicroAlgos(algos decimal.Decimal) (MicroAlgos, error) {
	micro := algos.Mul(decimal.NewFromInt(microAlgosPerAlgo))
	if !micro.IsInteger() || micro.IsNegative() {
		return 0, fmt.Errorf("amount %s is not a whole non-negative microalgo value: %w", algos, ErrInvalidArgument)
	}
	return MicroAlgos(micro.IntPart()), nil
}

// AddressFromPublicKey derives the account address for an ed25519 public key.
func AddressFromPublicKey(pub ed25519.PublicKey) Address {
	digest := blake2b.Sum256(pub)
	return Address(base58.Encode(digest[:]))
}

// AppAddress derives the account address owned by an application instance.
// Application accounts have no key pair; their addresses are derived from the
// application ID so they can never be signed for.
func AppAddress(id AppID) Address {
	var buf [12]byte
	copy(buf[:4], "app/")
	binary.BigEndian.PutUint64(buf[4:], uint64(id))
	digest := blake2b.Sum256(buf[:])
	return Address(base58.Encode(digest[:]))
}

// AssetParams describes an asset. Total supply is minted to the creator when
// the asset is created. Freeze and Clawback name the authorities allowed to
// freeze holdings or claw them back; a zero address means the authority was
// permanently disabled at creation.
type AssetParams struct {
	ID       AssetID `json:"id"`
	Creator  Address `json:"creator"`
	Name     string  `json:"name"`
	UnitName string  `json:"unit_name"`
	Total    uint64  `json:"total"`
	Decimals uint32  `json:"decimals"`
	Freeze   Address `json:"freeze,omitempty"`
	Clawback Address `json:"clawback,omitempty"`
}

// StateSchema declares how many key-value entries of each kind an application
// may store. Writes beyond the declared schema are rejected.
type StateSchema struct {
	Uints      uint64 `json:"uints"`
	ByteSlices uint64 `json:"byte_slices"`
}

// Minimum balance schedule. An account must keep its balance at or above the
// sum of these requirements; debits and requirement-raising operations that
// would drop it below are rejected with ErrInsufficientFunds.
const (
	// MinBalanceAccountBase is the reserve every allocated account carries.
	MinBalanceAccountBase MicroAlgos = 100_000

	// MinBalanceAssetHolding is the additional reserve per opted-in asset.
	MinBalanceAssetHolding MicroAlgos = 100_000

	minBalancePerStateEntry     MicroAlgos = 25_000
	minBalancePerUintEntry      MicroAlgos = 3_500
	minBalancePerByteSliceEntry MicroAlgos = 25_000
)

// MinBalance returns the reserve the declared schema adds on top of the
// account base, recomputed from the schema on every call.
func (s StateSchema) MinBalance() MicroAlgos {
	total := s.Uints + s.ByteSlices
	return minBalancePerStateEntry*MicroAlgos(total) +
		minBalancePerUintEntry*MicroAlgos(s.Uints) +
		minBalancePerByteSliceEntry*MicroAlgos(s.ByteSlices)
}

// StateKind tags the type of a stored state value.
type StateKind uint8

const (
	// KindUint marks a uint64 entry.
	KindUint StateKind = iota + 1
	// KindBytes marks a byte-slice entry.
	KindBytes
)

// StateValue is one durable key-value entry of an application instance.
type StateValue struct {
	Kind  StateKind `json:"kind"`
	Uint  uint64    `json:"uint,omitempty"`
	Bytes []byte    `json:"bytes,omitempty"`
}

// UintValue wraps a uint64 as a state value.
func UintValue(v uint64) StateValue { return StateValue{Kind: KindUint, Uint: v} }

// BytesValue wraps bytes as a state value.
func BytesValue(b []byte) StateValue { return StateValue{Kind: KindBytes, Bytes: b} }
