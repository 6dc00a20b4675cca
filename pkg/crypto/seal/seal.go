// Package seal provides authenticated encryption for small secret records.
//
// It is used by the file vault to protect key material at rest:
//
//   - AES-256-GCM: default
//   - ChaCha20-Poly1305: for hosts without AES acceleration
//
// Keys are either supplied raw (32 bytes) or derived from a passphrase with
// Argon2id. Every Seal call draws a fresh random nonce and prefixes it to
// the output.
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Algorithm identifies an AEAD construction.
type Algorithm string

const (
	AlgAESGCM   Algorithm = "aes-gcm"
	AlgChaCha20 Algorithm = "chacha20-poly1305"
)

const (
	// KeySize is the key length for both algorithms.
	KeySize = 32

	// SaltSize is the salt length used for passphrase derivation.
	SaltSize = 16

	// MinPassphraseLength is the shortest passphrase DeriveKey accepts.
	MinPassphraseLength = 8

	argon2Time    = 3
	argon2Memory  = 64 * 1024
	argon2Threads = 4
)

// Errors returned by this package.
var (
	ErrInvalidKey        = errors.New("seal: key must be 32 bytes")
	ErrUnknownAlgorithm  = errors.New("seal: unknown algorithm")
	ErrPassphraseTooWeak = errors.New("seal: passphrase too weak (minimum 8 characters)")
	ErrOpenFailed        = errors.New("seal: open failed - wrong key or corrupted data")
)

// Sealer encrypts and authenticates records.
type Sealer interface {
	// Algorithm returns the construction in use.
	Algorithm() Algorithm

	// Seal encrypts plaintext. additionalData is authenticated but not encrypted.
	Seal(plaintext, additionalData []byte) ([]byte, error)

	// Open authenticates and decrypts data produced by Seal.
	Open(sealed, additionalData []byte) ([]byte, error)
}

// New returns a Sealer for the given algorithm. An empty algorithm selects
// AES-GCM.
func New(alg Algorithm, key []byte) (Sealer, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}

	var (
		aead cipher.AEAD
		err  error
	)
	switch alg {
	case AlgAESGCM, "":
		alg = AlgAESGCM
		var block cipher.Block
		block, err = aes.NewCipher(key)
		if err == nil {
			aead, err = cipher.NewGCM(block)
		}
	case AlgChaCha20:
		aead, err = chacha20poly1305.New(key)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAlgorithm, alg)
	}
	if err != nil {
		return nil, err
	}

	return &aeadSealer{alg: alg, aead: aead}, nil
}

// ParseAlgorithm validates an algorithm name from configuration.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch Algorithm(name) {
	case "", AlgAESGCM:
		return AlgAESGCM, nil
	case AlgChaCha20:
		return AlgChaCha20, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownAlgorithm, name)
	}
}

// DeriveKey derives a 32-byte key from a passphrase using Argon2id.
func DeriveKey(passphrase, salt []byte) ([]byte, error) {
	if len(passphrase) < MinPassphraseLength {
		return nil, ErrPassphraseTooWeak
	}
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("seal: salt must be %d bytes", SaltSize)
	}
	return argon2.IDKey(passphrase, salt, argon2Time, argon2Memory, argon2Threads, KeySize), nil
}

// NewSalt returns a random salt for DeriveKey.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("seal: generate salt: %w", err)
	}
	return salt, nil
}

// Zero overwrites b with zeros.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

type aeadSealer struct {
	alg  Algorithm
	aead cipher.AEAD
}

func (s *aeadSealer) Algorithm() Algorithm {
	return s.alg
}

func (s *aeadSealer) Seal(plaintext, additionalData []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return s.aead.Seal(nonce, nonce, plaintext, additionalData), nil
}

func (s *aeadSealer) Open(sealed, additionalData []byte) ([]byte, error) {
	ns := s.aead.NonceSize()
	if len(sealed) < ns+s.aead.Overhead() {
		return nil, ErrOpenFailed
	}

	plain, err := s.aead.Open(nil, sealed[:ns], sealed[ns:], additionalData)
	if err != nil {
		return nil, ErrOpenFailed
	}
	return plain, nil
}
