package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/yndnr/lockbox-go/internal/infra/appdir"
	"github.com/yndnr/lockbox-go/internal/keystore"
	"github.com/yndnr/lockbox-go/internal/storage/box"
	"github.com/yndnr/lockbox-go/internal/storage/migration"
	"github.com/yndnr/lockbox-go/internal/telemetry/logger"
	"github.com/yndnr/lockbox-go/internal/telemetry/metric"
	"github.com/yndnr/lockbox-go/pkg/crypto/cbc"
)

// VersionKey is the reserved primary-box key holding the schema version.
const VersionKey = "_storage_version"

// Box names under the base directory.
const (
	PrimaryBox = "primary"
	BackupBox  = "backups"
)

// State is the engine lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// KeyProvider supplies the encryption key and IV. *keystore.Manager
// implements it.
type KeyProvider interface {
	Initialize(ctx context.Context) error
	Material() (keystore.Material, error)
}

// Config configures an Engine.
type Config struct {
	// Dir resolves the base directory holding the boxes. Required unless
	// InMemory is set or a box opener is supplied.
	Dir appdir.Resolver

	// InMemory keeps both boxes in process memory.
	InMemory bool

	// TargetVersion is the schema version Initialize migrates to. Zero
	// means the latest registered migration.
	TargetVersion int

	// Badger tunes the on-disk boxes.
	Badger box.BadgerConfig

	// CaptureTrace records a stack trace in every returned *Error.
	CaptureTrace bool
}

// DefaultConfig returns a configuration storing data under dir.
func DefaultConfig(dir appdir.Resolver) Config {
	return Config{
		Dir:    dir,
		Badger: box.DefaultBadgerConfig(),
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. Panics raised by the logger are
// recovered and never reach the caller.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		e.logger = logger.Safe(l).With("component", "storage")
	}
}

// WithMetrics records operation metrics into m.
func WithMetrics(m *metric.Storage) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithBoxOpener replaces the box opener.
func WithBoxOpener(o box.Opener) Option {
	return func(e *Engine) {
		e.opener = o
	}
}

// Engine is the encrypted, versioned KV store.
type Engine struct {
	cfg      Config
	keys     KeyProvider
	registry *migration.Registry
	opener   box.Opener
	logger   logger.Logger
	metrics  *metric.Storage

	state   atomic.Int32
	failure error

	key     []byte
	iv      []byte
	primary box.Box
	backups box.Box
	version int
	target  int
}

// New creates an engine. It performs no I/O; call Initialize before use.
func New(cfg Config, keys KeyProvider, reg *migration.Registry, opts ...Option) (*Engine, error) {
	if keys == nil {
		return nil, errors.New("storage: key provider is required")
	}
	if cfg.TargetVersion < 0 {
		return nil, fmt.Errorf("storage: target version %d is negative", cfg.TargetVersion)
	}

	e := &Engine{
		cfg:      cfg,
		keys:     keys,
		registry: reg,
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.target = cfg.TargetVersion
	if e.target == 0 {
		e.target = reg.Latest()
	}

	if e.opener == nil {
		switch {
		case cfg.InMemory:
			e.opener = box.MemoryOpener()
		case cfg.Dir != nil:
			e.opener = e.badgerOpener()
		default:
			return nil, errors.New("storage: a base directory is required unless in-memory")
		}
	}
	return e, nil
}

func (e *Engine) badgerOpener() box.Opener {
	return box.OpenerFunc(func(ctx context.Context, name string) (box.Box, error) {
		base, err := e.cfg.Dir.Dir()
		if err != nil {
			return nil, err
		}
		return box.BadgerOpener(base, e.cfg.Badger, e.logger).Open(ctx, name)
	})
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Version returns the schema version currently stored in the primary box.
func (e *Engine) Version() int {
	return e.version
}

// TargetVersion returns the version Initialize migrates to.
func (e *Engine) TargetVersion() int {
	return e.target
}

// Initialize brings the engine to StateReady. See the package
// documentation for the sequence.
func (e *Engine) Initialize(ctx context.Context) (err error) {
	const op = "initialize"

	switch e.State() {
	case StateReady:
		e.logger.Debug("initialize skipped, engine already ready", "version", e.version)
		return nil
	case StateFailed:
		return e.fail(KindNotInitialized, op, "engine failed to initialize", e.failure)
	}
	if !e.state.CompareAndSwap(int32(StateUninitialized), int32(StateInitializing)) {
		return e.fail(KindNotInitialized, op, "initialization already in progress", nil)
	}

	start := time.Now()
	defer func() { e.metrics.ObserveOp(op, start, err) }()

	e.logger.Info("initializing storage", "target_version", e.target)

	if err := e.initialize(ctx); err != nil {
		e.failure = err
		e.closeBoxes()
		e.state.Store(int32(StateFailed))
		e.logger.Error("storage initialization failed", "error", err)
		return err
	}

	e.state.Store(int32(StateReady))
	e.metrics.SetSchemaVersion(e.version)
	e.logger.Info("storage ready", "version", e.version, "duration", time.Since(start))
	return nil
}

func (e *Engine) initialize(ctx context.Context) error {
	const op = "initialize"

	if err := ctx.Err(); err != nil {
		return e.fail(KindIO, op, "", err)
	}

	if err := e.keys.Initialize(ctx); err != nil {
		return e.fail(KindKeyInitialization, op, "", err)
	}
	mat, err := e.keys.Material()
	if err != nil {
		return e.fail(KindKeyInitialization, op, "", err)
	}
	e.key, e.iv = mat.Key, mat.IV

	if e.primary, err = e.opener.Open(ctx, PrimaryBox); err != nil {
		return e.fail(KindIO, op, "open primary box", err)
	}
	if e.backups, err = e.opener.Open(ctx, BackupBox); err != nil {
		return e.fail(KindIO, op, "open backup box", err)
	}
	if n, err := e.countBackups(ctx); err == nil {
		e.metrics.SetBackups(n)
	}

	stored, err := e.readVersion(ctx, op)
	if err != nil {
		return err
	}
	e.version = stored

	if stored > e.target {
		e.logger.Warn("stored schema version is ahead of target; keeping stored version",
			"stored", stored, "target", e.target)
		return nil
	}
	if stored == e.target {
		e.logger.Debug("schema up to date", "version", stored)
		return nil
	}

	handle := &migrationHandle{e: e}
	for _, m := range e.registry.Pending(stored, e.target) {
		e.logger.Info("applying migration", "migration", m.String(), "from", e.version)
		if err := m.Up(ctx, handle); err != nil {
			return e.fail(KindMigration, op, fmt.Sprintf("migration %s", m), err)
		}
		if err := e.writeVersion(ctx, op, m.Version); err != nil {
			return err
		}
		e.metrics.MigrationApplied()
	}

	if e.version < e.target {
		if err := e.writeVersion(ctx, op, e.target); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) readVersion(ctx context.Context, op string) (int, error) {
	raw, err := e.primary.Get(ctx, VersionKey)
	if errors.Is(err, box.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, e.fail(KindIO, op, "read schema version", err)
	}
	v, err := parseVersion(raw)
	if err != nil {
		return 0, e.fail(KindSerialization, op, "stored schema version", err)
	}
	return v, nil
}

func (e *Engine) writeVersion(ctx context.Context, op string, v int) error {
	if err := e.primary.Put(ctx, VersionKey, []byte(strconv.Itoa(v))); err != nil {
		return e.fail(KindIO, op, "write schema version", err)
	}
	e.version = v
	return nil
}

func parseVersion(raw []byte) (int, error) {
	var v int
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("negative version %d", v)
	}
	return v, nil
}

// Save encodes value as JSON, encrypts it and stores it under key,
// replacing any previous value.
func (e *Engine) Save(ctx context.Context, key string, value any) (err error) {
	const op = "save"
	defer e.observe(op, time.Now(), &err)

	if err := e.ready(ctx, op); err != nil {
		return err
	}
	return e.save(ctx, op, key, value)
}

// Load decrypts the value under key into dst. It returns false with a nil
// error when key is absent.
func (e *Engine) Load(ctx context.Context, key string, dst any) (found bool, err error) {
	const op = "load"
	defer e.observe(op, time.Now(), &err)

	if err := e.ready(ctx, op); err != nil {
		return false, err
	}
	return e.load(ctx, op, key, dst)
}

// Delete removes key. Deleting an absent key is a no-op.
func (e *Engine) Delete(ctx context.Context, key string) (err error) {
	const op = "delete"
	defer e.observe(op, time.Now(), &err)

	if err := e.ready(ctx, op); err != nil {
		return err
	}
	return e.delete(ctx, op, key)
}

// Contains reports whether key is present without decrypting it.
func (e *Engine) Contains(ctx context.Context, key string) (ok bool, err error) {
	const op = "contains"
	defer e.observe(op, time.Now(), &err)

	if err := e.ready(ctx, op); err != nil {
		return false, err
	}
	return e.contains(ctx, op, key)
}

// Keys returns the user keys in ascending order.
func (e *Engine) Keys(ctx context.Context) (keys []string, err error) {
	const op = "keys"
	defer e.observe(op, time.Now(), &err)

	if err := e.ready(ctx, op); err != nil {
		return nil, err
	}
	return e.keysOf(ctx, op)
}

// Clear removes every user entry and keeps the schema version.
func (e *Engine) Clear(ctx context.Context) (err error) {
	const op = "clear"
	defer e.observe(op, time.Now(), &err)

	if err := e.ready(ctx, op); err != nil {
		return err
	}
	if err := e.primary.Clear(ctx); err != nil {
		return e.fail(KindIO, op, "", err)
	}
	if err := e.writeVersion(ctx, op, e.version); err != nil {
		return err
	}
	e.logger.Info("storage cleared", "version", e.version)
	return nil
}

// Get loads the value under key as a T.
func Get[T any](ctx context.Context, e *Engine, key string) (T, bool, error) {
	var v T
	found, err := e.Load(ctx, key, &v)
	if err != nil || !found {
		var zero T
		return zero, found, err
	}
	return v, true, nil
}

// Put saves v under key.
func Put[T any](ctx context.Context, e *Engine, key string, v T) error {
	return e.Save(ctx, key, v)
}

func (e *Engine) save(ctx context.Context, op, key string, value any) error {
	if err := e.checkKey(op, key); err != nil {
		return err
	}
	plain, err := json.Marshal(value)
	if err != nil {
		return e.fail(KindSerialization, op, fmt.Sprintf("encode %q", key), err)
	}
	text, err := cbc.Encrypt(plain, e.key, e.iv)
	if err != nil {
		return e.fail(KindKeyInitialization, op, "", err)
	}
	if err := e.primary.Put(ctx, key, []byte(text)); err != nil {
		return e.fail(KindIO, op, "", err)
	}
	return nil
}

func (e *Engine) load(ctx context.Context, op, key string, dst any) (bool, error) {
	if err := e.checkKey(op, key); err != nil {
		return false, err
	}
	raw, err := e.primary.Get(ctx, key)
	if errors.Is(err, box.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, e.fail(KindIO, op, "", err)
	}
	plain, err := cbc.Decrypt(string(raw), e.key, e.iv)
	if err != nil {
		e.logger.Warn("entry could not be decrypted", "entry", key)
		return false, e.fail(KindDecryption, op, fmt.Sprintf("decrypt %q", key), err)
	}
	if err := json.Unmarshal(plain, dst); err != nil {
		return false, e.fail(KindSerialization, op, fmt.Sprintf("decode %q", key), err)
	}
	return true, nil
}

func (e *Engine) delete(ctx context.Context, op, key string) error {
	if err := e.checkKey(op, key); err != nil {
		return err
	}
	if err := e.primary.Delete(ctx, key); err != nil {
		return e.fail(KindIO, op, "", err)
	}
	return nil
}

func (e *Engine) contains(ctx context.Context, op, key string) (bool, error) {
	if err := e.checkKey(op, key); err != nil {
		return false, err
	}
	ok, err := e.primary.Has(ctx, key)
	if err != nil {
		return false, e.fail(KindIO, op, "", err)
	}
	return ok, nil
}

func (e *Engine) keysOf(ctx context.Context, op string) ([]string, error) {
	all, err := e.primary.Keys(ctx)
	if err != nil {
		return nil, e.fail(KindIO, op, "", err)
	}
	keys := make([]string, 0, len(all))
	for _, k := range all {
		if k != VersionKey {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (e *Engine) checkKey(op, key string) error {
	switch key {
	case "":
		return e.fail(KindInvalidKey, op, "empty key", nil)
	case VersionKey:
		return e.fail(KindInvalidKey, op, fmt.Sprintf("%q is reserved", key), nil)
	}
	return nil
}

func (e *Engine) ready(ctx context.Context, op string) error {
	if s := e.State(); s != StateReady {
		return e.fail(KindNotInitialized, op, fmt.Sprintf("engine is %s", s), e.failure)
	}
	if err := ctx.Err(); err != nil {
		return e.fail(KindIO, op, "", err)
	}
	return nil
}

func (e *Engine) observe(op string, start time.Time, err *error) {
	e.metrics.ObserveOp(op, start, *err)
}

func (e *Engine) fail(kind Kind, op, message string, cause error) *Error {
	return newError(kind, op, message, cause, e.cfg.CaptureTrace)
}

// Close closes both boxes and returns a ready engine to
// StateUninitialized. It is safe to call more than once; a failed engine
// stays failed.
func (e *Engine) Close() error {
	switch e.State() {
	case StateUninitialized, StateFailed:
		return nil
	}
	err := e.closeBoxes()
	e.state.Store(int32(StateUninitialized))
	e.failure = nil
	e.logger.Info("storage closed")
	if err != nil {
		return e.fail(KindIO, "close", "", err)
	}
	return nil
}

func (e *Engine) closeBoxes() error {
	var errs []error
	for _, b := range []box.Box{e.primary, e.backups} {
		if b == nil {
			continue
		}
		if err := b.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
		}
	}
	e.primary, e.backups = nil, nil
	return errors.Join(errs...)
}

// reset drops all in-memory state. Test hook.
func (e *Engine) reset() {
	_ = e.closeBoxes()
	e.key, e.iv = nil, nil
	e.version = 0
	e.failure = nil
	e.state.Store(int32(StateUninitialized))
}

// migrationHandle is the migration.Box handed to steps. It reaches the
// primary box while the engine is still initializing.
type migrationHandle struct {
	e *Engine
}

var _ migration.Box = (*migrationHandle)(nil)

func (h *migrationHandle) Load(ctx context.Context, key string, dst any) (bool, error) {
	return h.e.load(ctx, "migrate", key, dst)
}

func (h *migrationHandle) Save(ctx context.Context, key string, value any) error {
	return h.e.save(ctx, "migrate", key, value)
}

func (h *migrationHandle) Delete(ctx context.Context, key string) error {
	return h.e.delete(ctx, "migrate", key)
}

func (h *migrationHandle) Contains(ctx context.Context, key string) (bool, error) {
	return h.e.contains(ctx, "migrate", key)
}

func (h *migrationHandle) Keys(ctx context.Context) ([]string, error) {
	return h.e.keysOf(ctx, "migrate")
}
