// Package cbc encrypts and decrypts opaque payloads with AES in CBC mode.
//
// Output is standard base64 text so it can be stored directly as a box value.
// The codec holds no state: callers pass the key and IV on every call.
//
// The IV is fixed per key. Identical plaintext under the same key and IV
// always produces identical ciphertext. Lockbox keeps this deterministic
// behaviour because stored values are compared by ciphertext elsewhere; it
// is not semantically secure across values and should not be relied on as
// such.
package cbc

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// IVSize is the initialization vector length in bytes.
const IVSize = aes.BlockSize

// Codec errors.
var (
	ErrInvalidKey = errors.New("cbc: key must be 32 bytes")
	ErrInvalidIV  = errors.New("cbc: iv must be 16 bytes")
	ErrDecryption = errors.New("cbc: decryption failed - malformed ciphertext or wrong key")
)

// Encrypt pads plain with PKCS#7, encrypts it with AES-256-CBC and returns
// the base64 encoding of the ciphertext.
func Encrypt(plain, key, iv []byte) (string, error) {
	block, err := newBlock(key, iv)
	if err != nil {
		return "", err
	}

	padded := pad(plain, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt.
//
// Malformed base64, a ciphertext that is not a whole number of blocks and
// invalid padding all return an error wrapping ErrDecryption. A key/iv
// mismatch almost always surfaces as invalid padding.
func Decrypt(text string, key, iv []byte) ([]byte, error) {
	block, err := newBlock(key, iv)
	if err != nil {
		return nil, err
	}

	raw, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrDecryption, err)
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d is not a multiple of %d", ErrDecryption, len(raw), aes.BlockSize)
	}

	out := make([]byte, len(raw))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, raw)

	plain, err := unpad(out, aes.BlockSize)
	if err != nil {
		return nil, err
	}
	return plain, nil
}

func newBlock(key, iv []byte) (cipher.Block, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	if len(iv) != IVSize {
		return nil, ErrInvalidIV
	}
	return aes.NewCipher(key)
}

// pad appends PKCS#7 padding. A full block is added when len(b) is already
// aligned so the padding is always removable.
func pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(bytes.Clone(b), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte, size int) ([]byte, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, fmt.Errorf("%w: invalid padding", ErrDecryption)
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, fmt.Errorf("%w: invalid padding", ErrDecryption)
		}
	}
	return b[:len(b)-n], nil
}
