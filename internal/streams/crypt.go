package streams

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"fmt"

	"github.com/consometers/sge-tiers-proxy/internal/config"
)

// decrypt runs AES-128-CBC with one (iv, key) pair and strips the
// PKCS#7 padding. A wrong key usually surfaces as invalid padding.
func decrypt(ciphertext []byte, keyPair config.AesKey) ([]byte, error) {
	key, err := hex.DecodeString(keyPair.Key)
	if err != nil {
		return nil, fmt.Errorf("invalid AES key: %w", err)
	}
	iv, err := hex.DecodeString(keyPair.IV)
	if err != nil {
		return nil, fmt.Errorf("invalid AES IV: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("invalid AES key length: %w", err)
	}
	if len(iv) != block.BlockSize() {
		return nil, fmt.Errorf("IV length %d does not match block size", len(iv))
	}
	if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("ciphertext length %d is not a multiple of the block size", len(ciphertext))
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	return stripPadding(plaintext, block.BlockSize())
}

func stripPadding(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty plaintext")
	}
	pad := int(data[len(data)-1])
	if pad == 0 || pad > blockSize || pad > len(data) {
		return nil, fmt.Errorf("invalid padding")
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return nil, fmt.Errorf("invalid padding")
		}
	}
	return data[:len(data)-pad], nil
}

// decryptWithRing tries every configured key pair in order, supporting
// key rotation. Exhausting the ring means the file is corrupted or
// encrypted with an unknown key.
func decryptWithRing(ciphertext []byte, keys []config.AesKey) ([]byte, error) {
	for _, keyPair := range keys {
		plaintext, err := decrypt(ciphertext, keyPair)
		if err == nil {
			return plaintext, nil
		}
	}
	return nil, ErrCorruptedFile
}
