package command

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/yndnr/lockbox-go/internal/cli/output"
	"github.com/yndnr/lockbox-go/internal/config"
	"github.com/yndnr/lockbox-go/internal/infra/appdir"
	"github.com/yndnr/lockbox-go/internal/infra/confloader"
	"github.com/yndnr/lockbox-go/internal/keystore"
	"github.com/yndnr/lockbox-go/internal/storage"
	"github.com/yndnr/lockbox-go/internal/telemetry/logger"
	"github.com/yndnr/lockbox-go/internal/telemetry/metric"
	"github.com/yndnr/lockbox-go/pkg/crypto/seal"
)

// AppName names the platform data directory.
const AppName = "Lockbox"

// session is one opened store: configuration, key material and an
// initialized engine.
type session struct {
	flags    *GlobalFlags
	cfg      *config.Config
	log      logger.Logger
	vault    keystore.Vault
	keys     *keystore.Manager
	engine   *storage.Engine
	metrics  *metric.Storage
	registry *prometheus.Registry
	out      io.Writer
}

// loadConfig merges defaults, the config file, LOCKBOX_* variables and
// command-line flags, in increasing priority.
func loadConfig(c *cli.Context) (*config.Config, error) {
	flags := ParseGlobalFlags(c)

	overrides := map[string]any{}
	if flags.DataDir != "" {
		overrides["storage.data_dir"] = flags.DataDir
	}
	if flags.Verbose {
		overrides["log.level"] = "debug"
	}

	cfg := config.Default()
	loader := confloader.NewLoader(
		confloader.WithConfigFile(flags.ConfigFile),
		confloader.WithOverrides(overrides),
	)
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}

	if cfg.Storage.DataDir == "" && !cfg.Storage.InMemory {
		dir, err := appdir.Platform{App: AppName}.Dir()
		if err != nil {
			return nil, fmt.Errorf("resolve data dir: %w", err)
		}
		cfg.Storage.DataDir = dir
	}

	if err := config.Verify(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(c *cli.Context, cfg *config.Config) (logger.Logger, error) {
	return logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: stderr(c),
	})
}

// openSession loads the configuration and initializes the engine. The
// app's shutdown handler closes the engine once the command returns.
func openSession(c *cli.Context) (*session, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	log, err := newLogger(c, cfg)
	if err != nil {
		return nil, err
	}

	vault, err := openVault(cfg, log)
	if err != nil {
		return nil, err
	}
	keys := keystore.NewManager(vault, keystore.WithLogger(log))

	registry := prometheus.NewRegistry()
	metrics, err := metric.NewStorage(registry)
	if err != nil {
		return nil, err
	}

	scfg := storage.DefaultConfig(appdir.Fixed(cfg.Storage.DataDir))
	scfg.InMemory = cfg.Storage.InMemory
	scfg.TargetVersion = cfg.Storage.TargetVersion
	scfg.CaptureTrace = cfg.Storage.CaptureTrace
	scfg.Badger.SyncWrites = cfg.Storage.SyncWrites
	scfg.Badger.GCInterval = cfg.Storage.GCInterval
	scfg.Badger.GCThreshold = cfg.Storage.GCThreshold

	engine, err := storage.New(scfg, keys, Migrations(),
		storage.WithLogger(log),
		storage.WithMetrics(metrics),
	)
	if err != nil {
		return nil, err
	}

	s := &session{
		flags:    ParseGlobalFlags(c),
		cfg:      cfg,
		log:      log,
		vault:    vault,
		keys:     keys,
		engine:   engine,
		metrics:  metrics,
		registry: registry,
		out:      stdout(c),
	}

	if err := engine.Initialize(c.Context); err != nil {
		return nil, err
	}
	if h := shutdownHandler(c.App); h != nil {
		h.OnShutdown(func(context.Context) error {
			return engine.Close()
		})
	}
	return s, nil
}

// openVault returns the file vault under the configured directory. An
// in-memory store without a vault directory gets a throwaway vault.
func openVault(cfg *config.Config, log logger.Logger) (keystore.Vault, error) {
	dir := cfg.VaultDir()
	if dir == "" && cfg.Storage.InMemory {
		return keystore.NewMemoryVault(), nil
	}
	return keystore.NewFileVault(keystore.FileVaultConfig{
		Dir:        dir,
		Passphrase: []byte(cfg.Vault.Passphrase),
		Algorithm:  seal.Algorithm(cfg.Vault.Algorithm),
		Logger:     log,
	})
}

// withSession opens a session, runs fn and closes the engine when no
// shutdown handler owns it.
func withSession(c *cli.Context, fn func(ctx context.Context, s *session) error) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	if shutdownHandler(c.App) == nil {
		defer s.engine.Close()
	}
	return fn(c.Context, s)
}

// print writes data with the selected formatter.
func (s *session) print(data any) error {
	return s.flags.Formatter().Format(s.out, data)
}

// printList writes names one per row under header, or as a plain array
// for json and yaml.
func (s *session) printList(header string, names []string) error {
	if names == nil {
		names = []string{}
	}
	if s.flags.Output != output.FormatTable {
		return s.print(names)
	}
	if len(names) == 0 {
		return nil
	}
	table := &output.Table{Headers: []string{header}}
	for _, n := range names {
		table.AddRow(n)
	}
	return s.print(table)
}

// confirm asks a yes/no question on the app's reader. Anything other than
// y or yes is a no.
func confirm(c *cli.Context, prompt string) (bool, error) {
	fmt.Fprintf(stderr(c), "%s [y/N]: ", prompt)

	if c.App.Reader == nil {
		return false, errors.New("no input available; pass --yes")
	}
	r, ok := c.App.Reader.(*bufio.Reader)
	if !ok {
		r = bufio.NewReader(c.App.Reader)
	}
	line, err := r.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
