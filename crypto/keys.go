package crypto

import (
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// Signer signs transaction hashes on behalf of one address. The ledger only
// depends on this interface; key storage lives with the caller.
type Signer interface {
	// Sign produces a signature over the 32-byte transaction hash.
	Sign(hash []byte) ([]byte, error)

	// Address returns the Base58Check address the signer controls.
	Address() string
}

// KeyPair is a secp256k1 keypair with its derived address.
type KeyPair struct {
	priv    *secp256k1.PrivateKey
	address string
}

// GenerateKeyPair creates a fresh secp256k1 keypair.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}
	return newKeyPair(priv), nil
}

// KeyPairFromHex restores a keypair from a hex-encoded private key.
func KeyPairFromHex(keyHex string) (*KeyPair, error) {
	raw, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("invalid private key length: got %d, expected 32", len(raw))
	}
	return newKeyPair(secp256k1.PrivKeyFromBytes(raw)), nil
}

func newKeyPair(priv *secp256k1.PrivateKey) *KeyPair {
	pub := priv.PubKey().SerializeCompressed()
	return &KeyPair{
		priv:    priv,
		address: AddressFromPublicKey(pub),
	}
}

// Sign signs the transaction hash and appends the compressed public key so
// verifiers can bind the signature to the spent output's address.
// Layout: <DER signature> || <33-byte compressed pubkey>.
func (k *KeyPair) Sign(hash []byte) ([]byte, error) {
	sig := ecdsa.Sign(k.priv, hash)
	der := sig.Serialize()
	out := make([]byte, 0, len(der)+33)
	out = append(out, der...)
	out = append(out, k.priv.PubKey().SerializeCompressed()...)
	return out, nil
}

// Address returns the Base58Check address derived from the public key.
func (k *KeyPair) Address() string {
	return k.address
}

// PublicKey returns the compressed public key bytes.
func (k *KeyPair) PublicKey() []byte {
	return k.priv.PubKey().SerializeCompressed()
}

// PrivateKeyHex exports the private key for persistence.
func (k *KeyPair) PrivateKeyHex() string {
	return hex.EncodeToString(k.priv.Serialize())
}

// VerifySignature checks a Sign-produced signature against a transaction
// hash and an expected address. Returns false for any structural defect.
func VerifySignature(sigWithKey, hash []byte, address string) bool {
	if len(sigWithKey) <= 33 {
		return false
	}
	der := sigWithKey[:len(sigWithKey)-33]
	pubBytes := sigWithKey[len(sigWithKey)-33:]

	if AddressFromPublicKey(pubBytes) != address {
		return false
	}

	pub, err := secp256k1.ParsePubKey(pubBytes)
	if err != nil {
		return false
	}
	sig, err := ecdsa.ParseDERSignature(der)
	if err != nil {
		return false
	}
	return sig.Verify(hash, pub)
}
