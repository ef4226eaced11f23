package wallet

import (
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/oysterpack/oysterpack-smart/ledger"
)

// ErrAuthFailed is returned when an envelope cannot be decrypted, either
// because the passphrase is wrong or because the envelope was tampered with.
// The two cases are indistinguishable by construction.
var ErrAuthFailed = errors.New("authentication failed")

const (
	envelopeVersion = 1
	kdfArgon2id     = "argon2id"
	cipherXChaCha   = "xchacha20poly1305"

	argonTime    = 1
	argonMemory  = 64 * 1024 // KiB
	argonThreads = 4
	saltSize     = 16
)

// envelope is the on-disk form of an account key: the ed25519 seed sealed
// under a passphrase-derived key, with the KDF parameters stored alongside
// so they can be raised later without breaking existing envelopes. The
// account address is bound into the AEAD as associated data.
type envelope struct {
	Version    int       `json:"version"`
	Name       string    `json:"name"`
	Address    string    `json:"address"`
	KDF        kdfParams `json:"kdf"`
	Cipher     string    `json:"cipher"`
	Nonce      []byte    `json:"nonce"`
	Ciphertext []byte    `json:"ciphertext"`
}

type kdfParams struct {
	Algorithm string `json:"algorithm"`
	Salt      []byte `json:"salt"`
	Time      uint32 `json:"time"`
	Memory    uint32 `json:"memory"`
	Threads   uint8  `json:"threads"`
}

// AccountInfo identifies a stored account without unlocking it.
type AccountInfo struct {
	Name    string         `json:"name"`
	Address ledger.Address `json:"address"`
}

// Keystore holds encrypted account keys as one JSON envelope per account
// under a single directory.
type Keystore struct {
	dir string
}

// OpenKeystore opens the keystore at dir, creating the directory if needed.
func OpenKeystore(dir string) (*Keystore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("open keystore %s: %w", dir, err)
	}
	return &Keystore{dir: dir}, nil
}

// validName reports whether name is usable as an envelope file name. Names
// must be non-empty and must not contain path separators.
func validName(name string) bool {
	return name != "" && !strings.ContainsAny(name, `/\`) && name == filepath.Base(name)
}

// Create seals the given key under the passphrase and stores it as a new
// named account. Creating a name that already exists fails.
func (ks *Keystore) Create(name string, key ed25519.PrivateKey, passphrase string) (Account, error) {
	if !validName(name) {
		return Account{}, fmt.Errorf("invalid account name %q: %w", name, ledger.ErrInvalidArgument)
	}
	if len(key) != ed25519.PrivateKeySize {
		return Account{}, fmt.Errorf("invalid signing key size %d: %w", len(key), ledger.ErrInvalidArgument)
	}
	account := AccountFromKey(name, key)

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return Account{}, fmt.Errorf("generate salt: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return Account{}, fmt.Errorf("generate nonce: %w", err)
	}

	aead, err := newAEAD(passphrase, salt, argonTime, argonMemory, argonThreads)
	if err != nil {
		return Account{}, err
	}
	env := envelope{
		Version: envelopeVersion,
		Name:    name,
		Address: string(account.Address),
		KDF: kdfParams{
			Algorithm: kdfArgon2id,
			Salt:      salt,
			Time:      argonTime,
			Memory:    argonMemory,
			Threads:   argonThreads,
		},
		Cipher:     cipherXChaCha,
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, key.Seed(), []byte(account.Address)),
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return Account{}, fmt.Errorf("encode envelope: %w", err)
	}

	f, err := os.OpenFile(ks.path(name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return Account{}, fmt.Errorf("account %q already exists: %w", name, ledger.ErrInvalidArgument)
		}
		return Account{}, fmt.Errorf("create envelope file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return Account{}, fmt.Errorf("write envelope file: %w", err)
	}
	return account, nil
}

// Info returns a stored account's identity without unlocking it.
func (ks *Keystore) Info(name string) (AccountInfo, error) {
	env, err := ks.readEnvelope(name)
	if err != nil {
		return AccountInfo{}, err
	}
	return AccountInfo{Name: env.Name, Address: ledger.Address(env.Address)}, nil
}

// List returns the stored accounts sorted by name. Envelopes are read but
// not decrypted.
func (ks *Keystore) List() ([]AccountInfo, error) {
	entries, err := os.ReadDir(ks.dir)
	if err != nil {
		return nil, fmt.Errorf("read keystore %s: %w", ks.dir, err)
	}
	var accounts []AccountInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		env, err := ks.readEnvelope(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, AccountInfo{Name: env.Name, Address: ledger.Address(env.Address)})
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Name < accounts[j].Name })
	return accounts, nil
}

// Unlock decrypts the named account's envelope. A wrong passphrase or a
// tampered envelope fails with ErrAuthFailed.
func (ks *Keystore) Unlock(name, passphrase string) (Account, error) {
	env, err := ks.readEnvelope(name)
	if err != nil {
		return Account{}, err
	}
	if env.Version != envelopeVersion {
		return Account{}, fmt.Errorf("unsupported envelope version %d: %w", env.Version, ledger.ErrInvalidArgument)
	}
	if env.KDF.Algorithm != kdfArgon2id || env.Cipher != cipherXChaCha {
		return Account{}, fmt.Errorf("unsupported envelope scheme %s/%s: %w",
			env.KDF.Algorithm, env.Cipher, ledger.ErrInvalidArgument)
	}

	aead, err := newAEAD(passphrase, env.KDF.Salt, env.KDF.Time, env.KDF.Memory, env.KDF.Threads)
	if err != nil {
		return Account{}, err
	}
	seed, err := aead.Open(nil, env.Nonce, env.Ciphertext, []byte(env.Address))
	if err != nil {
		return Account{}, fmt.Errorf("unlock account %q: %w", name, ErrAuthFailed)
	}
	if len(seed) != ed25519.SeedSize {
		return Account{}, fmt.Errorf("unlock account %q: sealed key has size %d: %w", name, len(seed), ErrAuthFailed)
	}

	account := AccountFromKey(env.Name, ed25519.NewKeyFromSeed(seed))
	if string(account.Address) != env.Address {
		return Account{}, fmt.Errorf("unlock account %q: address mismatch: %w", name, ErrAuthFailed)
	}
	return account, nil
}

func (ks *Keystore) readEnvelope(name string) (envelope, error) {
	if !validName(name) {
		return envelope{}, fmt.Errorf("invalid account name %q: %w", name, ledger.ErrInvalidArgument)
	}
	data, err := os.ReadFile(ks.path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return envelope{}, fmt.Errorf("account %q: %w", name, ledger.ErrNotFound)
		}
		return envelope{}, fmt.Errorf("read envelope for %q: %w", name, err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return envelope{}, fmt.Errorf("decode envelope for %q: %w", name, err)
	}
	return env, nil
}

func (ks *Keystore) path(name string) string {
	return filepath.Join(ks.dir, name+".json")
}

func newAEAD(passphrase string, salt []byte, time, memory uint32, threads uint8) (cipher.AEAD, error) {
	dk := argon2.IDKey([]byte(passphrase), salt, time, memory, threads, chacha20poly1305.KeySize)
	aead, err := chacha20poly1305.NewX(dk)
	if err != nil {
		return nil, fmt.Errorf("initialize cipher: %w", err)
	}
	return aead, nil
}
