package crypto

import (
	"crypto/sha256"
	"fmt"

	"github.com/cosmos/btcutil/base58"
	"golang.org/x/crypto/ripemd160"
)

// addressVersion is the Base58Check version byte for pay-to-pubkey-hash
// addresses.
const addressVersion byte = 0x00

// AddressFromPublicKey derives the printable address for a compressed
// public key: Base58Check(0x00, RIPEMD160(SHA256(pubkey))).
func AddressFromPublicKey(pub []byte) string {
	sha := sha256.Sum256(pub)
	h := ripemd160.New()
	h.Write(sha[:])
	return base58.CheckEncode(h.Sum(nil), addressVersion)
}

// DecodeAddress validates an address and returns its 20-byte pubkey hash.
func DecodeAddress(address string) ([]byte, error) {
	payload, version, err := base58.CheckDecode(address)
	if err != nil {
		return nil, fmt.Errorf("failed to decode address: %w", err)
	}
	if version != addressVersion {
		return nil, fmt.Errorf("unexpected address version: 0x%02x", version)
	}
	if len(payload) != ripemd160.Size {
		return nil, fmt.Errorf("invalid address payload length: got %d, expected %d", len(payload), ripemd160.Size)
	}
	return payload, nil
}
