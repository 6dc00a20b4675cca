package keystore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/yndnr/lockbox-go/internal/telemetry/logger"
	"github.com/yndnr/lockbox-go/pkg/crypto/seal"
)

const (
	vaultFileExt    = ".vault"
	envelopeVersion = 1
	algNone         = "none"
	vaultDirMode    = 0o700
	vaultFileMode   = 0o600
)

var validSecretName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// FileVaultConfig configures a FileVault.
type FileVaultConfig struct {
	// Dir holds one file per secret. Created with mode 0700.
	Dir string

	// Passphrase seals records when non-empty. Without it records are only
	// protected by file permissions.
	Passphrase []byte

	// Algorithm selects the AEAD used for sealing. Default: aes-gcm.
	Algorithm seal.Algorithm

	// Logger receives warnings about unsealed records.
	Logger logger.Logger
}

// FileVault stores secrets as files in a private directory.
type FileVault struct {
	dir        string
	passphrase []byte
	alg        seal.Algorithm
	logger     logger.Logger
}

// envelope is the on-disk record format.
type envelope struct {
	Version   int    `json:"v"`
	Algorithm string `json:"alg"`
	Salt      []byte `json:"salt,omitempty"`
	Data      []byte `json:"data"`
}

// NewFileVault creates the vault directory if needed.
func NewFileVault(cfg FileVaultConfig) (*FileVault, error) {
	if cfg.Dir == "" {
		return nil, errors.New("keystore: vault dir is required")
	}
	if len(cfg.Passphrase) > 0 && len(cfg.Passphrase) < seal.MinPassphraseLength {
		return nil, seal.ErrPassphraseTooWeak
	}
	alg, err := seal.ParseAlgorithm(string(cfg.Algorithm))
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, vaultDirMode); err != nil {
		return nil, fmt.Errorf("keystore: create vault dir: %w", err)
	}

	return &FileVault{
		dir:        cfg.Dir,
		passphrase: cfg.Passphrase,
		alg:        alg,
		logger:     logger.Safe(cfg.Logger),
	}, nil
}

// Sealed reports whether records are written with a passphrase.
func (v *FileVault) Sealed() bool {
	return len(v.passphrase) > 0
}

func (v *FileVault) Load(ctx context.Context, name string) ([]byte, error) {
	path, err := v.path(name)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrSecretNotFound
		}
		return nil, fmt.Errorf("keystore: read %s: %w", name, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrVaultSealed, name, err)
	}
	if env.Version != envelopeVersion {
		return nil, fmt.Errorf("keystore: %s: unsupported envelope version %d", name, env.Version)
	}

	if env.Algorithm == algNone {
		if v.Sealed() {
			v.logger.Warn("vault record is not sealed; it will be sealed on next write", "secret", name)
		}
		return env.Data, nil
	}

	if !v.Sealed() {
		return nil, fmt.Errorf("%w: %s is sealed and no passphrase is configured", ErrVaultSealed, name)
	}

	sealer, err := v.sealer(seal.Algorithm(env.Algorithm), env.Salt)
	if err != nil {
		return nil, err
	}
	plain, err := sealer.Open(env.Data, []byte(name))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrVaultSealed, name)
	}
	return plain, nil
}

func (v *FileVault) Store(ctx context.Context, name string, data []byte) error {
	path, err := v.path(name)
	if err != nil {
		return err
	}

	env := envelope{Version: envelopeVersion, Algorithm: algNone, Data: data}
	if v.Sealed() {
		salt, err := seal.NewSalt()
		if err != nil {
			return err
		}
		sealer, err := v.sealer(v.alg, salt)
		if err != nil {
			return err
		}
		sealed, err := sealer.Seal(data, []byte(name))
		if err != nil {
			return fmt.Errorf("keystore: seal %s: %w", name, err)
		}
		env = envelope{Version: envelopeVersion, Algorithm: string(v.alg), Salt: salt, Data: sealed}
	} else {
		v.logger.Warn("storing vault record without a passphrase; protected by file permissions only", "secret", name)
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("keystore: encode %s: %w", name, err)
	}
	return writeFileAtomic(path, raw)
}

func (v *FileVault) Delete(ctx context.Context, name string) error {
	path, err := v.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("keystore: delete %s: %w", name, err)
	}
	return nil
}

func (v *FileVault) path(name string) (string, error) {
	if !validSecretName.MatchString(name) {
		return "", fmt.Errorf("keystore: invalid secret name %q", name)
	}
	return filepath.Join(v.dir, name+vaultFileExt), nil
}

func (v *FileVault) sealer(alg seal.Algorithm, salt []byte) (seal.Sealer, error) {
	key, err := seal.DeriveKey(v.passphrase, salt)
	if err != nil {
		return nil, err
	}
	defer seal.Zero(key)
	return seal.New(alg, key)
}

// writeFileAtomic writes data to a temp file in the same directory and
// renames it over path.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*"+vaultFileExt)
	if err != nil {
		return fmt.Errorf("keystore: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(vaultFileMode); err != nil {
		tmp.Close()
		return fmt.Errorf("keystore: chmod: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("keystore: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("keystore: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("keystore: close: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("keystore: rename: %w", err)
	}
	return nil
}
