package keystore

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/yndnr/lockbox-go/internal/telemetry/logger"
	"github.com/yndnr/lockbox-go/pkg/crypto/cbc"
)

// MaterialSecretName is the vault entry holding the key record.
const MaterialSecretName = "lockbox.material"

// CurrentKeyVersion is the only key record version produced today.
const CurrentKeyVersion = 1

// Manager errors.
var (
	ErrKeyInitialization = errors.New("keystore: key initialization failed")
	ErrNotLoaded         = errors.New("keystore: key material accessed before Initialize")
)

// Material is a loaded key/IV pair.
type Material struct {
	// KeyVersion tags the record. Reserved for rotation.
	KeyVersion int
	Key        []byte
	IV         []byte
}

type record struct {
	KeyVersion int       `json:"key_version"`
	Key        []byte    `json:"key"`
	IV         []byte    `json:"iv"`
	CreatedAt  time.Time `json:"created_at"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) {
		m.logger = logger.Safe(l)
	}
}

// WithRandom replaces the entropy source used for generation.
func WithRandom(r io.Reader) Option {
	return func(m *Manager) {
		m.rand = r
	}
}

// WithSecretName overrides the vault entry name.
func WithSecretName(name string) Option {
	return func(m *Manager) {
		m.secretName = name
	}
}

// Manager loads or creates the key material.
//
// Manager is not safe for concurrent Initialize calls; accessors may be
// used concurrently once Initialize has returned.
type Manager struct {
	vault      Vault
	secretName string
	rand       io.Reader
	logger     logger.Logger

	material *Material
}

// NewManager creates a manager over vault.
func NewManager(vault Vault, opts ...Option) *Manager {
	m := &Manager{
		vault:      vault,
		secretName: MaterialSecretName,
		rand:       rand.Reader,
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize loads the key material, generating and persisting it on first
// use. Subsequent calls are no-ops.
func (m *Manager) Initialize(ctx context.Context) error {
	if m.material != nil {
		return nil
	}
	if m.vault == nil {
		return fmt.Errorf("%w: no vault configured", ErrKeyInitialization)
	}

	raw, err := m.vault.Load(ctx, m.secretName)
	switch {
	case err == nil:
		mat, err := decodeRecord(raw)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrKeyInitialization, err)
		}
		m.material = mat
		m.logger.Info("key material loaded", "key_version", mat.KeyVersion, "fingerprint", fingerprint(mat.Key))
		return nil

	case errors.Is(err, ErrSecretNotFound):
		mat, err := m.generate(ctx)
		if err != nil {
			return err
		}
		m.material = mat
		m.logger.Info("key material generated", "key_version", mat.KeyVersion, "fingerprint", fingerprint(mat.Key))
		return nil

	default:
		return fmt.Errorf("%w: load from vault: %w", ErrKeyInitialization, err)
	}
}

func (m *Manager) generate(ctx context.Context) (*Material, error) {
	rec := record{
		KeyVersion: CurrentKeyVersion,
		Key:        make([]byte, cbc.KeySize),
		IV:         make([]byte, cbc.IVSize),
		CreatedAt:  time.Now().UTC(),
	}
	if _, err := io.ReadFull(m.rand, rec.Key); err != nil {
		return nil, fmt.Errorf("%w: generate key: %v", ErrKeyInitialization, err)
	}
	if _, err := io.ReadFull(m.rand, rec.IV); err != nil {
		return nil, fmt.Errorf("%w: generate iv: %v", ErrKeyInitialization, err)
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("%w: encode record: %v", ErrKeyInitialization, err)
	}
	if err := m.vault.Store(ctx, m.secretName, raw); err != nil {
		return nil, fmt.Errorf("%w: store in vault: %w", ErrKeyInitialization, err)
	}

	return &Material{KeyVersion: rec.KeyVersion, Key: rec.Key, IV: rec.IV}, nil
}

func decodeRecord(raw []byte) (*Material, error) {
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %v", err)
	}
	if rec.KeyVersion != CurrentKeyVersion {
		return nil, fmt.Errorf("unsupported key version %d", rec.KeyVersion)
	}
	if len(rec.Key) != cbc.KeySize {
		return nil, fmt.Errorf("stored key is %d bytes, want %d", len(rec.Key), cbc.KeySize)
	}
	if len(rec.IV) != cbc.IVSize {
		return nil, fmt.Errorf("stored iv is %d bytes, want %d", len(rec.IV), cbc.IVSize)
	}
	return &Material{KeyVersion: rec.KeyVersion, Key: rec.Key, IV: rec.IV}, nil
}

// Loaded reports whether Initialize has completed.
func (m *Manager) Loaded() bool {
	return m.material != nil
}

// Material returns a copy of the loaded material, or ErrNotLoaded.
func (m *Manager) Material() (Material, error) {
	if m.material == nil {
		return Material{}, ErrNotLoaded
	}
	return Material{
		KeyVersion: m.material.KeyVersion,
		Key:        bytes.Clone(m.material.Key),
		IV:         bytes.Clone(m.material.IV),
	}, nil
}

// Key returns a copy of the key. It panics if Initialize has not completed.
func (m *Manager) Key() []byte {
	return bytes.Clone(m.mustMaterial().Key)
}

// IV returns a copy of the IV. It panics if Initialize has not completed.
func (m *Manager) IV() []byte {
	return bytes.Clone(m.mustMaterial().IV)
}

// KeyVersion returns the loaded key version. It panics if Initialize has
// not completed.
func (m *Manager) KeyVersion() int {
	return m.mustMaterial().KeyVersion
}

// Fingerprint returns a short, loggable identifier for the loaded key, or
// "" before Initialize.
func (m *Manager) Fingerprint() string {
	if m.material == nil {
		return ""
	}
	return fingerprint(m.material.Key)
}

func (m *Manager) mustMaterial() *Material {
	if m.material == nil {
		panic(ErrNotLoaded)
	}
	return m.material
}

func fingerprint(key []byte) string {
	sum := sha256.Sum256(key)
	return hex.EncodeToString(sum[:6])
}
