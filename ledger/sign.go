package ledger

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/veraison/go-cose"
)

// SignedTransaction carries a transaction together with a COSE_Sign1 envelope
// over its canonical encoding. The envelope's protected headers hold the
// EdDSA algorithm and the signer's public key (kid); verification recomputes
// the sender address from the kid, so a signature can never authorize a
// transaction for an address the key does not control.
type SignedTransaction struct {
	Txn      Transaction `cbor:"txn" json:"txn"`
	Envelope []byte      `cbor:"env" json:"envelope"`
}

// SignTransaction signs the canonical encoding of txn with the given ed25519
// key and wraps it in a COSE_Sign1 envelope.
func SignTransaction(key ed25519.PrivateKey, txn Transaction) (SignedTransaction, error) {
	payload, err := txn.CanonicalBytes()
	if err != nil {
		return SignedTransaction{}, err
	}

	signer, err := cose.NewSigner(cose.AlgorithmEdDSA, key)
	if err != nil {
		return SignedTransaction{}, fmt.Errorf("create signer: %w", err)
	}

	msg := cose.NewSign1Message()
	msg.Headers.Protected[cose.HeaderLabelAlgorithm] = cose.AlgorithmEdDSA
	msg.Headers.Protected[cose.HeaderLabelKeyID] = []byte(key.Public().(ed25519.PublicKey))
	msg.Payload = payload

	if err := msg.Sign(rand.Reader, nil, signer); err != nil {
		return SignedTransaction{}, fmt.Errorf("sign transaction: %w", err)
	}

	envelope, err := msg.MarshalCBOR()
	if err != nil {
		return SignedTransaction{}, fmt.Errorf("encode COSE envelope: %w", err)
	}
	return SignedTransaction{Txn: txn, Envelope: envelope}, nil
}

// VerifySignedTransaction checks the COSE_Sign1 envelope: the algorithm must
// be EdDSA, the embedded key must control the transaction's sender address,
// the signed payload must match the transaction's canonical encoding, and the
// signature must verify.
func VerifySignedTransaction(st SignedTransaction) error {
	var msg cose.Sign1Message
	if err := msg.UnmarshalCBOR(st.Envelope); err != nil {
		return fmt.Errorf("parse COSE envelope: %v: %w", err, ErrInvalidArgument)
	}

	alg, err := msg.Headers.Protected.Algorithm()
	if err != nil {
		return fmt.Errorf("read envelope algorithm: %v: %w", err, ErrInvalidArgument)
	}
	if alg != cose.AlgorithmEdDSA {
		return fmt.Errorf("envelope algorithm %v, want EdDSA: %w", alg, ErrInvalidArgument)
	}

	kidRaw, ok := msg.Headers.Protected[cose.HeaderLabelKeyID]
	if !ok {
		return fmt.Errorf("envelope has no key id: %w", ErrInvalidArgument)
	}
	kid, ok := kidRaw.([]byte)
	if !ok || len(kid) != ed25519.PublicKeySize {
		return fmt.Errorf("envelope key id is not an ed25519 public key: %w", ErrInvalidArgument)
	}
	pub := ed25519.PublicKey(kid)

	if addr := AddressFromPublicKey(pub); addr != st.Txn.Sender {
		return fmt.Errorf("signer key controls %s, not sender %s: %w", addr, st.Txn.Sender, ErrUnauthorized)
	}

	payload, err := st.Txn.CanonicalBytes()
	if err != nil {
		return err
	}
	if !bytes.Equal(payload, msg.Payload) {
		return fmt.Errorf("signed payload does not match transaction: %w", ErrUnauthorized)
	}

	verifier, err := cose.NewVerifier(cose.AlgorithmEdDSA, pub)
	if err != nil {
		return fmt.Errorf("create verifier: %w", err)
	}
	if err := msg.Verify(nil, verifier); err != nil {
		return fmt.Errorf("signature verification failed: %v: %w", err, ErrUnauthorized)
	}
	return nil
}
