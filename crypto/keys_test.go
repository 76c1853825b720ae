package crypto

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	hash := sha256.Sum256([]byte("spend 500 to bob"))
	sig, err := kp.Sign(hash[:])
	require.NoError(t, err)

	require.True(t, VerifySignature(sig, hash[:], kp.Address()))
}

func TestVerifyRejectsTamperedHash(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	hash := sha256.Sum256([]byte("original"))
	sig, err := kp.Sign(hash[:])
	require.NoError(t, err)

	other := sha256.Sum256([]byte("tampered"))
	require.False(t, VerifySignature(sig, other[:], kp.Address()))
}

func TestVerifyRejectsWrongAddress(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	other, err := GenerateKeyPair()
	require.NoError(t, err)

	hash := sha256.Sum256([]byte("payload"))
	sig, err := kp.Sign(hash[:])
	require.NoError(t, err)

	require.False(t, VerifySignature(sig, hash[:], other.Address()))
}

func TestVerifyRejectsGarbage(t *testing.T) {
	hash := sha256.Sum256([]byte("payload"))

	require.False(t, VerifySignature(nil, hash[:], "addr"))
	require.False(t, VerifySignature([]byte("short"), hash[:], "addr"))
	require.False(t, VerifySignature(make([]byte, 80), hash[:], "addr"))
}

func TestKeyPairHexRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	restored, err := KeyPairFromHex(kp.PrivateKeyHex())
	require.NoError(t, err)
	require.Equal(t, kp.Address(), restored.Address())
	require.Equal(t, kp.PublicKey(), restored.PublicKey())
}

func TestAddressRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	payload, err := DecodeAddress(kp.Address())
	require.NoError(t, err)
	require.Len(t, payload, 20)
}

func TestDecodeAddressRejectsJunk(t *testing.T) {
	_, err := DecodeAddress("not-an-address")
	require.Error(t, err)

	_, err = DecodeAddress("")
	require.Error(t, err)
}
