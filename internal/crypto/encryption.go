// Package crypto seals small secrets, such as OAuth tokens, at rest.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// sealedPrefix marks files written by Seal so plain files can be told apart.
var sealedPrefix = []byte("mwseal1:")

// ErrNotSealed is returned by Open for data Seal did not produce.
var ErrNotSealed = errors.New("data is not sealed")

// Seal encrypts plaintext with AES-256-GCM under a base64 master key.
// The output is the prefix followed by base64(nonce || ciphertext).
func Seal(plaintext []byte, masterKey string) ([]byte, error) {
	gcm, err := newGCM(masterKey)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	out := make([]byte, len(sealedPrefix)+base64.StdEncoding.EncodedLen(len(ciphertext)))
	copy(out, sealedPrefix)
	base64.StdEncoding.Encode(out[len(sealedPrefix):], ciphertext)
	return out, nil
}

// Open reverses Seal.
func Open(sealed []byte, masterKey string) ([]byte, error) {
	if !IsSealed(sealed) {
		return nil, ErrNotSealed
	}

	data, err := base64.StdEncoding.DecodeString(string(sealed[len(sealedPrefix):]))
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	gcm, err := newGCM(masterKey)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, encrypted := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, encrypted, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

// IsSealed reports whether data carries the Seal prefix.
func IsSealed(data []byte) bool {
	return bytes.HasPrefix(data, sealedPrefix)
}

// GenerateMasterKey generates a new random 256-bit master key, base64 encoded.
func GenerateMasterKey() (string, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("failed to generate master key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

func newGCM(masterKey string) (cipher.AEAD, error) {
	key, err := base64.StdEncoding.DecodeString(masterKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode master key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
