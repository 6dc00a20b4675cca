package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/yndnr/lockbox-go/internal/storage/box"
)

// CreateBackup snapshots the primary box, schema version included, under
// name. An existing backup with the same name is overwritten.
func (e *Engine) CreateBackup(ctx context.Context, name string) (err error) {
	const op = "create_backup"
	defer e.observe(op, time.Now(), &err)

	if err := e.ready(ctx, op); err != nil {
		return err
	}
	if name == "" {
		return e.fail(KindInvalidKey, op, "empty backup name", nil)
	}

	snap, err := e.primary.Snapshot(ctx)
	if err != nil {
		return e.fail(KindIO, op, "snapshot primary box", err)
	}
	blob, err := encodeBackup(snap)
	if err != nil {
		return e.fail(KindSerialization, op, "encode backup", err)
	}
	if err := e.backups.Put(ctx, name, blob); err != nil {
		return e.fail(KindIO, op, "", err)
	}

	e.refreshBackupGauge(ctx)
	e.logger.Info("backup created", "backup", name, "entries", len(snap))
	return nil
}

// RestoreBackup replaces the primary box with the backup stored under
// name. The backup is fully decoded before the primary box is touched.
// The schema version follows the backup and may move backward.
func (e *Engine) RestoreBackup(ctx context.Context, name string) (err error) {
	const op = "restore_backup"
	defer e.observe(op, time.Now(), &err)

	if err := e.ready(ctx, op); err != nil {
		return err
	}

	blob, err := e.backups.Get(ctx, name)
	if errors.Is(err, box.ErrKeyNotFound) {
		return e.fail(KindBackupNotFound, op, fmt.Sprintf("backup %q not found", name), err)
	}
	if err != nil {
		return e.fail(KindIO, op, "", err)
	}

	entries, version, err := decodeBackup(blob)
	if err != nil {
		return e.fail(KindSerialization, op, fmt.Sprintf("decode backup %q", name), err)
	}
	if err := e.primary.Replace(ctx, entries); err != nil {
		return e.fail(KindIO, op, "replace primary box", err)
	}

	previous := e.version
	e.version = version
	e.metrics.SetSchemaVersion(version)
	e.logger.Info("backup restored", "backup", name, "entries", len(entries),
		"version", version, "previous_version", previous)
	return nil
}

// ListBackups returns the backup names in ascending order.
func (e *Engine) ListBackups(ctx context.Context) (names []string, err error) {
	const op = "list_backups"
	defer e.observe(op, time.Now(), &err)

	if err := e.ready(ctx, op); err != nil {
		return nil, err
	}
	names, err = e.backups.Keys(ctx)
	if err != nil {
		return nil, e.fail(KindIO, op, "", err)
	}
	return names, nil
}

// DeleteBackup removes the backup stored under name. Deleting an absent
// backup is a no-op.
func (e *Engine) DeleteBackup(ctx context.Context, name string) (err error) {
	const op = "delete_backup"
	defer e.observe(op, time.Now(), &err)

	if err := e.ready(ctx, op); err != nil {
		return err
	}
	if name == "" {
		return e.fail(KindInvalidKey, op, "empty backup name", nil)
	}
	if err := e.backups.Delete(ctx, name); err != nil {
		return e.fail(KindIO, op, "", err)
	}

	e.refreshBackupGauge(ctx)
	e.logger.Info("backup deleted", "backup", name)
	return nil
}

// BackupSize returns the encoded size of a backup in bytes.
func (e *Engine) BackupSize(ctx context.Context, name string) (int, error) {
	const op = "backup_size"

	if err := e.ready(ctx, op); err != nil {
		return 0, err
	}
	blob, err := e.backups.Get(ctx, name)
	if errors.Is(err, box.ErrKeyNotFound) {
		return 0, e.fail(KindBackupNotFound, op, fmt.Sprintf("backup %q not found", name), err)
	}
	if err != nil {
		return 0, e.fail(KindIO, op, "", err)
	}
	return len(blob), nil
}

func (e *Engine) countBackups(ctx context.Context) (int, error) {
	names, err := e.backups.Keys(ctx)
	if err != nil {
		return 0, err
	}
	return len(names), nil
}

func (e *Engine) refreshBackupGauge(ctx context.Context) {
	if n, err := e.countBackups(ctx); err == nil {
		e.metrics.SetBackups(n)
	}
}

// encodeBackup renders a primary-box snapshot as a JSON object: user keys
// map to their ciphertext strings, VersionKey to its integer.
func encodeBackup(snap map[string][]byte) ([]byte, error) {
	out := make(map[string]json.RawMessage, len(snap))
	for k, v := range snap {
		if k == VersionKey {
			if _, err := parseVersion(v); err != nil {
				return nil, fmt.Errorf("schema version: %w", err)
			}
			out[k] = json.RawMessage(v)
			continue
		}
		s, err := json.Marshal(string(v))
		if err != nil {
			return nil, err
		}
		out[k] = s
	}
	return json.Marshal(out)
}

func decodeBackup(blob []byte) (map[string][]byte, int, error) {
	var in map[string]json.RawMessage
	if err := json.Unmarshal(blob, &in); err != nil {
		return nil, 0, err
	}
	if in == nil {
		return nil, 0, errors.New("backup is not a JSON object")
	}

	entries := make(map[string][]byte, len(in))
	version := 0
	for k, raw := range in {
		if k == "" {
			return nil, 0, errors.New("backup contains an empty key")
		}
		if k == VersionKey {
			v, err := parseVersion(raw)
			if err != nil {
				return nil, 0, fmt.Errorf("schema version: %w", err)
			}
			version = v
			continue
		}
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, 0, fmt.Errorf("entry %q: %w", k, err)
		}
		entries[k] = []byte(text)
	}
	entries[VersionKey] = []byte(strconv.Itoa(version))
	return entries, version, nil
}
