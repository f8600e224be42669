// Package envelope implements AES-256-GCM authenticated encryption of opaque
// payloads. The server side of the system only relays sealed envelopes; this
// package is what key holders (the collection agent, the browser client, and
// the tests) use on either end.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

const (
	// KeySize is the only accepted key length (AES-256).
	KeySize = 32
	// IVSize is the GCM nonce length.
	IVSize = 12
	// TagSize is the GCM authentication tag length.
	TagSize = 16
)

var (
	ErrInvalidKeySize = errors.New("key must be exactly 32 bytes")
	// ErrOpenFailed covers tag mismatch and malformed envelopes alike; no
	// plaintext is ever released on failure.
	ErrOpenFailed = errors.New("envelope authentication failed")
)

// Envelope is the {iv, ciphertext, tag} unit produced by one Seal call.
type Envelope struct {
	IV         []byte
	Ciphertext []byte
	AuthTag    []byte
}

// Seal encrypts plaintext under key with a fresh random 12-byte IV. The IV is
// generated here and cannot be supplied by the caller: IV reuse under one key
// destroys confidentiality. aad is bound into the authentication tag without
// being encrypted; pass nil if there is none.
func Seal(plaintext, key, aad []byte) (*Envelope, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}

	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}

	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	sealed := aesgcm.Seal(nil, iv, plaintext, aad)

	// gcm.Seal appends the 16-byte tag to the ciphertext; the wire format
	// carries them as separate fields.
	tagStart := len(sealed) - TagSize
	return &Envelope{
		IV:         iv,
		Ciphertext: sealed[:tagStart],
		AuthTag:    sealed[tagStart:],
	}, nil
}

// Open authenticates and decrypts the envelope. The tag is checked before any
// plaintext is released: tampering with iv, ciphertext, tag or aad fails
// closed with ErrOpenFailed.
func Open(env *Envelope, key, aad []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	if env == nil || len(env.IV) != IVSize || len(env.AuthTag) != TagSize {
		return nil, ErrOpenFailed
	}

	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(env.Ciphertext)+TagSize)
	sealed = append(sealed, env.Ciphertext...)
	sealed = append(sealed, env.AuthTag...)

	plaintext, err := aesgcm.Open(nil, env.IV, sealed, aad)
	if err != nil {
		return nil, ErrOpenFailed
	}

	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return aesgcm, nil
}
