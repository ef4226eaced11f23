package wallet

import (
	"crypto/ed25519"
	"errors"
	"strings"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/oysterpack/oysterpack-smart/ledger"
)

func TestNewMnemonic(t *testing.T) {
	first, err := NewMnemonic()
	assert.Nil(t, err)
	check.Equal(t, 24, len(strings.Fields(first)))

	seed, err := SeedFromMnemonic(first, "")
	assert.Nil(t, err)
	check.Equal(t, 64, len(seed))

	second, err := NewMnemonic()
	assert.Nil(t, err)
	check.NotEqual(t, first, second)
}

func TestSeedFromMnemonic(t *testing.T) {
	mnemonic, err := NewMnemonic()
	assert.Nil(t, err)

	seed, err := SeedFromMnemonic(mnemonic, "")
	assert.Nil(t, err)
	again, err := SeedFromMnemonic(mnemonic, "")
	assert.Nil(t, err)
	check.Equal(t, seed, again)

	withPassphrase, err := SeedFromMnemonic(mnemonic, "trezor")
	assert.Nil(t, err)
	check.NotEqual(t, seed, withPassphrase)

	_, err = SeedFromMnemonic("abandon abandon abandon", "")
	check.Error(t, err)
}

func TestDeriveKey(t *testing.T) {
	mnemonic, err := NewMnemonic()
	assert.Nil(t, err)
	seed, err := SeedFromMnemonic(mnemonic, "")
	assert.Nil(t, err)

	key0, err := DeriveKey(seed, 0)
	assert.Nil(t, err)
	key0Again, err := DeriveKey(seed, 0)
	assert.Nil(t, err)
	check.Equal(t, key0, key0Again)

	key1, err := DeriveKey(seed, 1)
	assert.Nil(t, err)
	check.NotEqual(t, key0, key1)

	_, err = DeriveKey(nil, 0)
	check.True(t, errors.Is(err, ledger.ErrInvalidArgument))
}

func TestAccountFromKey(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	assert.Nil(t, err)

	account := AccountFromKey("alice", priv)
	check.Equal(t, "alice", account.Name)
	check.Equal(t, ledger.AddressFromPublicKey(pub), account.Address)
	check.Equal(t, pub, account.PublicKey())
}

func TestAccount_SignTransaction(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	assert.Nil(t, err)
	account := AccountFromKey("payer", priv)

	l := ledger.New()
	l.Fund(account.Address, 1_000_000)

	signed, err := account.SignTransaction(ledger.NewPayment(account.Address, "merchant", 250_000))
	assert.Nil(t, err)
	check.Nil(t, ledger.VerifySignedTransaction(signed))

	_, err = l.ExecuteSigned([]ledger.SignedTransaction{signed})
	assert.Nil(t, err)
	check.Equal(t, ledger.MicroAlgos(750_000), l.AccountBalance(account.Address))
	check.Equal(t, ledger.MicroAlgos(250_000), l.AccountBalance("merchant"))
}

func TestAccount_RejectsForeignSender(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	assert.Nil(t, err)
	account := AccountFromKey("payer", priv)

	_, err = account.SignTransaction(ledger.NewPayment("someone-else", "merchant", 1))
	check.True(t, errors.Is(err, ledger.ErrUnauthorized))
}

func TestAccount_SignGroup(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	assert.Nil(t, err)
	account := AccountFromKey("payer", priv)

	l := ledger.New()
	l.Fund(account.Address, 1_000_000)

	group := []ledger.Transaction{
		ledger.NewPayment(account.Address, "first", 100_000),
		ledger.NewPayment(account.Address, "second", 200_000),
	}
	signed, err := account.SignGroup(group)
	assert.Nil(t, err)
	assert.Equal(t, 2, len(signed))

	_, err = l.ExecuteSigned(signed)
	assert.Nil(t, err)
	check.Equal(t, ledger.MicroAlgos(100_000), l.AccountBalance("first"))
	check.Equal(t, ledger.MicroAlgos(200_000), l.AccountBalance("second"))
	check.Equal(t, ledger.MicroAlgos(700_000), l.AccountBalance(account.Address))
}
