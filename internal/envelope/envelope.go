// Package envelope implements the symmetric transport codec applied to
// every API body: AES-256-CBC with PKCS#7 padding, a fresh random IV
// prepended to the ciphertext, and the whole thing base64-encoded so it
// survives a JSON/text channel.
package envelope

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"kidcheck/internal/apperr"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// Codec seals and opens transport envelopes with a pre-shared key.
type Codec struct {
	key []byte
}

// New builds a codec from a passphrase. The passphrase is NUL-padded or
// truncated to 32 bytes, matching what existing deployments expect on the
// wire. Key provisioning is the caller's concern; see config.
func New(passphrase string) (*Codec, error) {
	if passphrase == "" {
		return nil, errors.New("envelope: empty key")
	}
	key := make([]byte, KeySize)
	copy(key, passphrase)
	return &Codec{key: key}, nil
}

// Seal encrypts plaintext and returns base64(IV || ciphertext). A fresh
// IV is drawn for every call, so sealing the same plaintext twice yields
// different envelopes.
func (c *Codec) Seal(plaintext []byte) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", &apperr.TransportError{Op: "seal", Err: err}
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", &apperr.TransportError{Op: "seal", Err: err}
	}
	padded := pad(plaintext, aes.BlockSize)
	out := make([]byte, aes.BlockSize+len(padded))
	copy(out, iv)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], padded)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open decodes and decrypts an envelope. Every failure mode (bad base64,
// truncated input, ciphertext that is not a whole number of blocks,
// padding that does not verify under the key) returns a TransportError.
// Open never falls back to returning the raw input.
func (c *Codec) Open(envelope string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		return nil, &apperr.TransportError{Op: "open", Err: fmt.Errorf("decode base64: %w", err)}
	}
	if len(raw) < 2*aes.BlockSize {
		return nil, &apperr.TransportError{Op: "open", Err: errors.New("envelope too short")}
	}
	iv, ct := raw[:aes.BlockSize], raw[aes.BlockSize:]
	if len(ct)%aes.BlockSize != 0 {
		return nil, &apperr.TransportError{Op: "open", Err: errors.New("ciphertext not block-aligned")}
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, &apperr.TransportError{Op: "open", Err: err}
	}
	pt := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(pt, ct)
	pt, err = unpad(pt, aes.BlockSize)
	if err != nil {
		return nil, &apperr.TransportError{Op: "open", Err: err}
	}
	return pt, nil
}

// pad appends PKCS#7 padding.
func pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

// unpad strips and verifies PKCS#7 padding.
func unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-n], nil
}
