// Package wallet manages the ed25519 signing accounts used by auction
// operators, sellers, and bidders. A wallet is rooted in a BIP-39 mnemonic;
// account keys are derived deterministically from the wallet seed, so a
// wallet can always be rebuilt from its mnemonic alone. Derived keys can be
// kept at rest in an encrypted Keystore and unlocked into Accounts that sign
// transactions for the ledger's authenticated submission path.
package wallet

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/hkdf"

	"github.com/oysterpack/oysterpack-smart/ledger"
)

// NewMnemonic generates a fresh 24 word BIP-39 mnemonic from 256 bits of
// entropy.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", fmt.Errorf("generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("encode mnemonic: %w", err)
	}
	return mnemonic, nil
}

// SeedFromMnemonic derives the wallet seed from a BIP-39 mnemonic and an
// optional passphrase. The mnemonic's checksum is verified, so a mistyped
// word is caught here rather than silently producing a different wallet.
func SeedFromMnemonic(mnemonic, passphrase string) ([]byte, error) {
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, passphrase)
	if err != nil {
		return nil, fmt.Errorf("derive wallet seed: %w", err)
	}
	return seed, nil
}

// DeriveKey derives the signing key for the account at the given index from
// a wallet seed. Derivation is HKDF-SHA256 keyed on the seed with the index
// bound into the info string, so each index yields an independent key and
// the same seed and index always reproduce the same account.
func DeriveKey(seed []byte, index uint32) (ed25519.PrivateKey, error) {
	if len(seed) == 0 {
		return nil, fmt.Errorf("wallet seed is empty: %w", ledger.ErrInvalidArgument)
	}
	info := binary.BigEndian.AppendUint32([]byte("oysterpack/account/"), index)
	key := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, seed, nil, info), key); err != nil {
		return nil, fmt.Errorf("derive account key %d: %w", index, err)
	}
	return ed25519.NewKeyFromSeed(key), nil
}

// Account is an unlocked signing account. The private key never leaves the
// struct; callers sign through it.
type Account struct {
	Name    string
	Address ledger.Address

	key ed25519.PrivateKey
}

// AccountFromKey wraps a raw signing key in an Account. The address is
// recomputed from the public key, never trusted from storage.
func AccountFromKey(name string, key ed25519.PrivateKey) Account {
	return Account{
		Name:    name,
		Address: ledger.AddressFromPublicKey(key.Public().(ed25519.PublicKey)),
		key:     key,
	}
}

// PublicKey returns the account's ed25519 public key.
func (a Account) PublicKey() ed25519.PublicKey {
	return a.key.Public().(ed25519.PublicKey)
}

// SignTransaction wraps txn in a COSE_Sign1 envelope under the account's
// key. The transaction sender must be this account's address.
func (a Account) SignTransaction(txn ledger.Transaction) (ledger.SignedTransaction, error) {
	if txn.Sender != a.Address {
		return ledger.SignedTransaction{}, fmt.Errorf("account %s cannot sign for sender %s: %w",
			a.Address, txn.Sender, ledger.ErrUnauthorized)
	}
	return ledger.SignTransaction(a.key, txn)
}

// SignGroup signs every transaction in the group, preserving order.
func (a Account) SignGroup(group []ledger.Transaction) ([]ledger.SignedTransaction, error) {
	signed := make([]ledger.SignedTransaction, len(group))
	for i, txn := range group {
		st, err := a.SignTransaction(txn)
		if err != nil {
			return nil, fmt.Errorf("sign group transaction %d: %w", i, err)
		}
		signed[i] = st
	}
	return signed, nil
}
