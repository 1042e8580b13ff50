// Package crypto provides envelope encryption for credentials stored on
// EmailAccount rows (IMAP/SMTP passwords, provider API keys): a process
// master key seals a random per-record data key, and the data key seals the
// secret itself. Rotating the master key only re-wraps data keys, never the
// secrets.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

const dataKeySize = 32 // AES-256

// Envelope seals and opens secrets with a two-layer AES-GCM scheme keyed off
// a single master key supplied at construction.
type Envelope struct {
	masterGCM cipher.AEAD
}

// NewEnvelope builds an Envelope from a master key. The key must be at
// least 32 bytes; only the first 32 are used for AES-256.
func NewEnvelope(masterKey string) (*Envelope, error) {
	if len(masterKey) < 32 {
		return nil, fmt.Errorf("master key must be at least 32 bytes, got %d", len(masterKey))
	}

	block, err := aes.NewCipher([]byte(masterKey)[:32])
	if err != nil {
		return nil, fmt.Errorf("create master cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create master gcm: %w", err)
	}

	return &Envelope{masterGCM: gcm}, nil
}

// Sealed is what gets persisted: a data key wrapped by the master key, and
// the plaintext sealed by the data key. Both fields are base64 text, safe
// to store in a bytea or text column.
type Sealed struct {
	WrappedKey string
	Ciphertext string
}

// Seal generates a fresh data key, encrypts plaintext with it, and wraps the
// data key with the master key. An empty plaintext seals to an empty
// Sealed so optional credential fields round-trip cleanly.
func (e *Envelope) Seal(plaintext string) (Sealed, error) {
	if plaintext == "" {
		return Sealed{}, nil
	}

	dataKey := make([]byte, dataKeySize)
	if _, err := io.ReadFull(rand.Reader, dataKey); err != nil {
		return Sealed{}, fmt.Errorf("generate data key: %w", err)
	}

	dataGCM, err := newGCM(dataKey)
	if err != nil {
		return Sealed{}, fmt.Errorf("create data gcm: %w", err)
	}

	ciphertext, err := seal(dataGCM, []byte(plaintext))
	if err != nil {
		return Sealed{}, fmt.Errorf("seal plaintext: %w", err)
	}

	wrappedKey, err := seal(e.masterGCM, dataKey)
	if err != nil {
		return Sealed{}, fmt.Errorf("wrap data key: %w", err)
	}

	return Sealed{
		WrappedKey: base64.StdEncoding.EncodeToString(wrappedKey),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	}, nil
}

// Open reverses Seal: unwraps the data key with the master key, then
// decrypts the ciphertext with the recovered data key.
func (e *Envelope) Open(s Sealed) (string, error) {
	if s.Ciphertext == "" {
		return "", nil
	}

	wrappedKey, err := base64.StdEncoding.DecodeString(s.WrappedKey)
	if err != nil {
		return "", fmt.Errorf("decode wrapped key: %w", err)
	}

	dataKey, err := open(e.masterGCM, wrappedKey)
	if err != nil {
		return "", fmt.Errorf("unwrap data key: %w", err)
	}

	dataGCM, err := newGCM(dataKey)
	if err != nil {
		return "", fmt.Errorf("create data gcm: %w", err)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(s.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	plaintext, err := open(dataGCM, ciphertext)
	if err != nil {
		return "", fmt.Errorf("decrypt plaintext: %w", err)
	}

	return string(plaintext), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func seal(gcm cipher.AEAD, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func open(gcm cipher.AEAD, data []byte) ([]byte, error) {
	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
