package box

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/yndnr/lockbox-go/internal/telemetry/logger"
)

// BadgerConfig contains Badger tuning parameters.
type BadgerConfig struct {
	// GCInterval is the interval between value log GC runs. Zero disables
	// the background loop.
	// Default: 10m
	GCInterval time.Duration

	// GCThreshold is the discard ratio passed to RunValueLogGC (0.0-1.0).
	// Default: 0.5
	GCThreshold float64

	// CacheSize is the block cache size in bytes.
	// Default: 8MB
	CacheSize int64

	// ValueLogFileSize is the max value log file size in bytes.
	// Default: 64MB
	ValueLogFileSize int64

	// NumMemtables is the number of memtables.
	// Default: 2
	NumMemtables int

	// SyncWrites fsyncs after every write.
	// Default: true
	SyncWrites bool
}

// DefaultBadgerConfig returns the default Badger configuration, sized for a
// small application-private store.
func DefaultBadgerConfig() BadgerConfig {
	return BadgerConfig{
		GCInterval:       10 * time.Minute,
		GCThreshold:      0.5,
		CacheSize:        8 << 20,  // 8MB
		ValueLogFileSize: 64 << 20, // 64MB
		NumMemtables:     2,
		SyncWrites:       true,
	}
}

// BadgerStats contains on-disk size information.
type BadgerStats struct {
	LSMSize      int64
	ValueLogSize int64
	LastGCTime   int64 // Unix milliseconds, 0 if never
}

// BadgerBox implements Box on a dedicated Badger database.
type BadgerBox struct {
	name   string
	dir    string
	db     *badger.DB
	cfg    BadgerConfig
	logger logger.Logger

	closed     atomic.Bool
	lastGCTime atomic.Int64

	stopCh chan struct{}
	doneCh chan struct{}
}

// OpenBadger opens (creating if needed) a Badger-backed box in dir.
func OpenBadger(name, dir string, cfg BadgerConfig, log logger.Logger) (*BadgerBox, error) {
	if dir == "" {
		return nil, fmt.Errorf("badger: dir is required")
	}
	log = logger.Safe(log).With("box", name)

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("badger: create dir: %w", err)
	}

	opts := badger.DefaultOptions(dir)
	opts.Logger = &badgerLogger{logger: log}
	opts.BlockCacheSize = cfg.CacheSize
	opts.ValueLogFileSize = cfg.ValueLogFileSize
	opts.NumMemtables = cfg.NumMemtables
	opts.SyncWrites = cfg.SyncWrites
	opts.DetectConflicts = false

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open %s: %w", dir, err)
	}

	b := &BadgerBox{
		name:   name,
		dir:    dir,
		db:     db,
		cfg:    cfg,
		logger: log,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	go b.gcLoop()

	log.Debug("badger box opened", "dir", dir, "sync_writes", cfg.SyncWrites)
	return b, nil
}

// BadgerOpener returns an Opener that places each box in baseDir/<name>.
func BadgerOpener(baseDir string, cfg BadgerConfig, log logger.Logger) Opener {
	return OpenerFunc(func(ctx context.Context, name string) (Box, error) {
		return OpenBadger(name, filepath.Join(baseDir, name), cfg, log)
	})
}

func (b *BadgerBox) Name() string {
	return b.name
}

// Dir returns the database directory.
func (b *BadgerBox) Dir() string {
	return b.dir
}

func (b *BadgerBox) Get(ctx context.Context, key string) ([]byte, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}

	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrKeyNotFound
			}
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (b *BadgerBox) Put(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	if b.closed.Load() {
		return ErrClosed
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

func (b *BadgerBox) Delete(ctx context.Context, key string) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if key == "" {
		return nil
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (b *BadgerBox) Has(ctx context.Context, key string) (bool, error) {
	if b.closed.Load() {
		return false, ErrClosed
	}
	if key == "" {
		return false, nil
	}

	found := false
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		if err == nil {
			found = true
			return nil
		}
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
	return found, err
}

func (b *BadgerBox) Keys(ctx context.Context) ([]string, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}

	var keys []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (b *BadgerBox) Snapshot(ctx context.Context) (map[string][]byte, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}

	out := make(map[string][]byte)
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out[string(item.KeyCopy(nil))] = value
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Replace drops all data and then writes entries in a single batch.
func (b *BadgerBox) Replace(ctx context.Context, entries map[string][]byte) error {
	for k := range entries {
		if k == "" {
			return ErrEmptyKey
		}
	}
	if err := b.Clear(ctx); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	for k, v := range entries {
		if err := wb.Set([]byte(k), v); err != nil {
			return fmt.Errorf("badger: batch set: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("badger: batch flush: %w", err)
	}
	return nil
}

func (b *BadgerBox) Clear(ctx context.Context) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if err := b.db.DropAll(); err != nil {
		return fmt.Errorf("badger: drop all: %w", err)
	}
	return nil
}

// GC runs value log garbage collection until nothing more can be rewritten.
// Returns the number of rewrite cycles performed.
func (b *BadgerBox) GC(ctx context.Context) (int, error) {
	if b.closed.Load() {
		return 0, ErrClosed
	}

	cycles := 0
	for {
		if err := ctx.Err(); err != nil {
			return cycles, err
		}
		err := b.db.RunValueLogGC(b.cfg.GCThreshold)
		if err != nil {
			// ErrRejected means another GC is already running.
			if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
				break
			}
			return cycles, fmt.Errorf("badger: gc: %w", err)
		}
		cycles++
	}

	b.lastGCTime.Store(time.Now().UnixMilli())
	if cycles > 0 {
		b.logger.Debug("value log gc completed", "cycles", cycles)
	}
	return cycles, nil
}

// Stats returns on-disk size information.
func (b *BadgerBox) Stats() BadgerStats {
	lsm, vlog := b.db.Size()
	return BadgerStats{
		LSMSize:      lsm,
		ValueLogSize: vlog,
		LastGCTime:   b.lastGCTime.Load(),
	}
}

func (b *BadgerBox) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}

	close(b.stopCh)
	<-b.doneCh

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("badger: close: %w", err)
	}
	b.logger.Debug("badger box closed")
	return nil
}

func (b *BadgerBox) gcLoop() {
	defer close(b.doneCh)

	if b.cfg.GCInterval <= 0 {
		<-b.stopCh
		return
	}

	ticker := time.NewTicker(b.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			if _, err := b.GC(ctx); err != nil && !errors.Is(err, ErrClosed) {
				b.logger.Warn("value log gc failed", "error", err)
			}
			cancel()

		case <-b.stopCh:
			return
		}
	}
}

// badgerLogger adapts logger.Logger to Badger's Logger interface. Badger's
// info messages are routine compaction chatter and go to debug.
type badgerLogger struct {
	logger logger.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
