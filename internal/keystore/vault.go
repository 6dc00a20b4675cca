package keystore

import (
	"bytes"
	"context"
	"errors"
	"sync"
)

// Vault errors.
var (
	ErrSecretNotFound = errors.New("keystore: secret not found")
	ErrVaultSealed    = errors.New("keystore: vault record cannot be opened - wrong passphrase or corrupted file")
)

// Vault is a protected store for small secrets.
type Vault interface {
	// Load returns the secret stored under name, or ErrSecretNotFound.
	Load(ctx context.Context, name string) ([]byte, error)

	// Store writes data under name, replacing any previous value.
	Store(ctx context.Context, name string, data []byte) error

	// Delete removes name. Deleting an absent secret is not an error.
	Delete(ctx context.Context, name string) error
}

// MemoryVault keeps secrets in process memory.
type MemoryVault struct {
	mu      sync.RWMutex
	secrets map[string][]byte

	// Fail, when set, is returned by every operation. Used to simulate an
	// unavailable platform store.
	Fail error
}

// NewMemoryVault creates an empty MemoryVault.
func NewMemoryVault() *MemoryVault {
	return &MemoryVault{secrets: make(map[string][]byte)}
}

func (v *MemoryVault) Load(ctx context.Context, name string) ([]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.Fail != nil {
		return nil, v.Fail
	}
	data, ok := v.secrets[name]
	if !ok {
		return nil, ErrSecretNotFound
	}
	return bytes.Clone(data), nil
}

func (v *MemoryVault) Store(ctx context.Context, name string, data []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.Fail != nil {
		return v.Fail
	}
	v.secrets[name] = bytes.Clone(data)
	return nil
}

func (v *MemoryVault) Delete(ctx context.Context, name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.Fail != nil {
		return v.Fail
	}
	delete(v.secrets, name)
	return nil
}
