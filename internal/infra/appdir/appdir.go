// Package appdir resolves the application-private data directory.
//
// The directory is created with mode 0700 on first resolution.
package appdir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// HomeEnv overrides the platform directory when set.
const HomeEnv = "LOCKBOX_HOME"

const dirMode = 0o700

// Resolver returns the base directory for the application's data.
type Resolver interface {
	Dir() (string, error)
}

// Platform resolves the per-user data directory for App:
//
//   - $LOCKBOX_HOME when set
//   - ~/Library/Application Support/<App> on macOS
//   - $XDG_DATA_HOME/<app> (default ~/.local/share/<app>) elsewhere
type Platform struct {
	App string
}

func (p Platform) Dir() (string, error) {
	if p.App == "" {
		return "", errors.New("appdir: app name is required")
	}
	dir, err := p.resolve()
	if err != nil {
		return "", err
	}
	return ensure(dir)
}

func (p Platform) resolve() (string, error) {
	if env := os.Getenv(HomeEnv); env != "" {
		return filepath.Clean(env), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("appdir: resolve home dir: %w", err)
	}

	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", p.App), nil
	}
	if runtime.GOOS == "windows" {
		base, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("appdir: resolve config dir: %w", err)
		}
		return filepath.Join(base, p.App), nil
	}

	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, strings.ToLower(p.App)), nil
}

// Fixed resolves to a fixed path.
type Fixed string

func (f Fixed) Dir() (string, error) {
	if f == "" {
		return "", errors.New("appdir: empty path")
	}
	return ensure(filepath.Clean(string(f)))
}

func ensure(dir string) (string, error) {
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return "", fmt.Errorf("appdir: create %s: %w", dir, err)
	}
	return dir, nil
}
