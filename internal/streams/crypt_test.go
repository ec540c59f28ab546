package streams

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consometers/sge-tiers-proxy/internal/config"
)

var (
	testKeyA = config.AesKey{
		IV:  "000102030405060708090a0b0c0d0e0f",
		Key: "00112233445566778899aabbccddeeff",
	}
	testKeyB = config.AesKey{
		IV:  "0f0e0d0c0b0a09080706050403020100",
		Key: "ffeeddccbbaa99887766554433221100",
	}
)

// encrypt is the test-side inverse of decrypt: PKCS#7 padding then
// AES-128-CBC.
func encrypt(t *testing.T, plaintext []byte, keyPair config.AesKey) []byte {
	t.Helper()

	key, err := hex.DecodeString(keyPair.Key)
	require.NoError(t, err)
	iv, err := hex.DecodeString(keyPair.IV)
	require.NoError(t, err)

	block, err := aes.NewCipher(key)
	require.NoError(t, err)

	pad := block.BlockSize() - len(plaintext)%block.BlockSize()
	padded := make([]byte, len(plaintext)+pad)
	copy(padded, plaintext)
	for i := len(plaintext); i < len(padded); i++ {
		padded[i] = byte(pad)
	}

	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return ciphertext
}

func TestDecryptWithRingTriesKeysInOrder(t *testing.T) {
	plaintext := []byte("a transferred measurement stream")
	ciphertext := encrypt(t, plaintext, testKeyB)

	// The file was encrypted with the second key of the ring, as
	// happens right after a key rotation.
	out, err := decryptWithRing(ciphertext, []config.AesKey{testKeyA, testKeyB})
	require.NoError(t, err)
	assert.Equal(t, plaintext, out)
}

func TestDecryptWithRingCurrentKey(t *testing.T) {
	plaintext := []byte("payload")
	ciphertext := encrypt(t, plaintext, testKeyA)

	out, err := decryptWithRing(ciphertext, []config.AesKey{testKeyA, testKeyB})
	require.NoError(t, err)
	assert.Equal(t, plaintext, out)
}

func TestDecryptWithRingExhausted(t *testing.T) {
	_, err := decryptWithRing([]byte("not a valid ciphertext"), []config.AesKey{testKeyA})
	assert.ErrorIs(t, err, ErrCorruptedFile)
}
