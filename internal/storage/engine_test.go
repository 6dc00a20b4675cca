package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yndnr/lockbox-go/internal/infra/appdir"
	"github.com/yndnr/lockbox-go/internal/keystore"
	"github.com/yndnr/lockbox-go/internal/storage/box"
	"github.com/yndnr/lockbox-go/internal/storage/migration"
	"github.com/yndnr/lockbox-go/internal/telemetry/logger"
	"github.com/yndnr/lockbox-go/internal/telemetry/metric"
	"github.com/yndnr/lockbox-go/pkg/crypto/cbc"
)

type settings struct {
	Theme    string `json:"theme"`
	FontSize int    `json:"font_size"`
}

// fixture shares one vault and one memory opener between engines so a
// test can "restart" the process and inspect raw box contents.
type fixture struct {
	t      *testing.T
	vault  *keystore.MemoryVault
	opener box.Opener
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{t: t, vault: keystore.NewMemoryVault(), opener: box.MemoryOpener()}
}

func (f *fixture) engine(reg *migration.Registry, cfg Config, opts ...Option) *Engine {
	f.t.Helper()
	cfg.InMemory = true
	opts = append([]Option{WithBoxOpener(f.opener)}, opts...)
	e, err := New(cfg, keystore.NewManager(f.vault), reg, opts...)
	if err != nil {
		f.t.Fatalf("New() error = %v", err)
	}
	return e
}

func (f *fixture) ready(reg *migration.Registry, opts ...Option) *Engine {
	f.t.Helper()
	e := f.engine(reg, Config{}, opts...)
	if err := e.Initialize(context.Background()); err != nil {
		f.t.Fatalf("Initialize() error = %v", err)
	}
	f.t.Cleanup(func() { e.Close() })
	return e
}

func (f *fixture) raw(name string) box.Box {
	f.t.Helper()
	b, err := f.opener.Open(context.Background(), name)
	if err != nil {
		f.t.Fatal(err)
	}
	return b
}

func (f *fixture) material() keystore.Material {
	f.t.Helper()
	m := keystore.NewManager(f.vault)
	if err := m.Initialize(context.Background()); err != nil {
		f.t.Fatal(err)
	}
	mat, _ := m.Material()
	return mat
}

func TestNew_Validation(t *testing.T) {
	keys := keystore.NewManager(keystore.NewMemoryVault())

	if _, err := New(Config{InMemory: true, TargetVersion: -1}, keys, nil); err == nil {
		t.Error("New() accepted a negative target version")
	}
	if _, err := New(Config{InMemory: true}, nil, nil); err == nil {
		t.Error("New() accepted a nil key provider")
	}
	if _, err := New(Config{}, keys, nil); err == nil {
		t.Error("New() accepted a config with no directory")
	}

	reg := migration.MustRegistry(
		migration.Migration{Version: 3, Up: migration.Remove("x")},
		migration.Migration{Version: 1, Up: migration.Remove("x")},
	)
	e, err := New(Config{InMemory: true}, keys, reg)
	if err != nil {
		t.Fatal(err)
	}
	if e.TargetVersion() != 3 {
		t.Errorf("TargetVersion() = %d, want 3", e.TargetVersion())
	}
}

func TestEngine_NotInitialized(t *testing.T) {
	ctx := context.Background()
	e := newFixture(t).engine(nil, Config{})

	if e.State() != StateUninitialized {
		t.Fatalf("State() = %v, want uninitialized", e.State())
	}

	var v string
	ops := map[string]func() error{
		"Save":          func() error { return e.Save(ctx, "a", 1) },
		"Load":          func() error { _, err := e.Load(ctx, "a", &v); return err },
		"Delete":        func() error { return e.Delete(ctx, "a") },
		"Contains":      func() error { _, err := e.Contains(ctx, "a"); return err },
		"Keys":          func() error { _, err := e.Keys(ctx); return err },
		"Clear":         func() error { return e.Clear(ctx) },
		"CreateBackup":  func() error { return e.CreateBackup(ctx, "b") },
		"RestoreBackup": func() error { return e.RestoreBackup(ctx, "b") },
		"ListBackups":   func() error { _, err := e.ListBackups(ctx); return err },
		"DeleteBackup":  func() error { return e.DeleteBackup(ctx, "b") },
		"Stats":         func() error { _, err := e.Stats(ctx); return err },
	}

	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			err := op()
			if !errors.Is(err, ErrNotInitialized) {
				t.Errorf("%s() error = %v, want ErrNotInitialized", name, err)
			}
		})
	}
}

func TestEngine_RoundTrip(t *testing.T) {
	ctx := context.Background()
	e := newFixture(t).ready(nil)

	want := settings{Theme: "dark", FontSize: 14}
	if err := e.Save(ctx, "settings", want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	var got settings
	found, err := e.Load(ctx, "settings", &got)
	if err != nil || !found {
		t.Fatalf("Load() = %v, %v", found, err)
	}
	if got != want {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}

	if err := Put(ctx, e, "count", 42); err != nil {
		t.Fatal(err)
	}
	n, found, err := Get[int](ctx, e, "count")
	if err != nil || !found || n != 42 {
		t.Errorf("Get[int]() = %d, %v, %v", n, found, err)
	}

	if err := e.Save(ctx, "count", 43); err != nil {
		t.Fatal(err)
	}
	n, _, _ = Get[int](ctx, e, "count")
	if n != 43 {
		t.Errorf("overwrite: Get[int]() = %d, want 43", n)
	}
}

func TestEngine_StoresCiphertext(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e := f.ready(nil)

	if err := e.Save(ctx, "token", "plain-value"); err != nil {
		t.Fatal(err)
	}

	raw, err := f.raw(PrimaryBox).Get(ctx, "token")
	if err != nil {
		t.Fatal(err)
	}
	mat := f.material()
	want, _ := cbc.Encrypt([]byte(`"plain-value"`), mat.Key, mat.IV)
	if string(raw) != want {
		t.Errorf("stored %q, want ciphertext %q", raw, want)
	}
}

func TestEngine_AbsentAndCorrupt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e := f.ready(nil)
	primary := f.raw(PrimaryBox)
	mat := f.material()

	var v any
	found, err := e.Load(ctx, "missing", &v)
	if err != nil || found {
		t.Errorf("Load(missing) = %v, %v; want false, nil", found, err)
	}
	g, found, err := Get[string](ctx, e, "missing")
	if err != nil || found || g != "" {
		t.Errorf("Get(missing) = %q, %v, %v", g, found, err)
	}

	notJSON, _ := cbc.Encrypt([]byte("{not json"), mat.Key, mat.IV)
	_ = primary.Put(ctx, "garbled", []byte("!!not base64!!"))
	_ = primary.Put(ctx, "notjson", []byte(notJSON))

	tests := []struct {
		key  string
		want *Error
	}{
		{"garbled", ErrDecryption},
		{"notjson", ErrSerialization},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			found, err := e.Load(ctx, tt.key, &v)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Load() error = %v, want %v", err, tt.want)
			}
			if found {
				t.Error("Load() reported found on failure")
			}
		})
	}

	var se *Error
	_, err = e.Load(ctx, "garbled", &v)
	if !errors.As(err, &se) || se.Op != "load" || !errors.Is(err, cbc.ErrDecryption) {
		t.Errorf("Load() error = %#v", err)
	}
}

func TestEngine_WrongKeyIsDecryptionError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e := f.ready(nil)
	if err := e.Save(ctx, "a", "value-that-spans-more-than-one-block"); err != nil {
		t.Fatal(err)
	}
	e.Close()

	// New key material, same boxes.
	f.vault = keystore.NewMemoryVault()
	e2 := f.ready(nil)
	var s string
	_, err := e2.Load(ctx, "a", &s)
	if err == nil && s == "value-that-spans-more-than-one-block" {
		t.Fatal("Load() decrypted with the wrong key")
	}
	if err != nil && !errors.Is(err, ErrDecryption) && !errors.Is(err, ErrSerialization) {
		t.Errorf("Load() error = %v, want decryption or serialization", err)
	}
}

func TestEngine_DeleteContainsKeys(t *testing.T) {
	ctx := context.Background()
	e := newFixture(t).ready(nil)

	for _, k := range []string{"b", "a", "c"} {
		if err := e.Save(ctx, k, k); err != nil {
			t.Fatal(err)
		}
	}

	keys, err := e.Keys(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(keys, want) {
		t.Errorf("Keys() = %v, want %v", keys, want)
	}

	ok, err := e.Contains(ctx, "b")
	if err != nil || !ok {
		t.Errorf("Contains(b) = %v, %v", ok, err)
	}
	if err := e.Delete(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := e.Contains(ctx, "b"); ok {
		t.Error("Contains(b) = true after Delete")
	}
	if err := e.Delete(ctx, "b"); err != nil {
		t.Errorf("Delete() absent error = %v", err)
	}
}

func TestEngine_InvalidKeys(t *testing.T) {
	ctx := context.Background()
	e := newFixture(t).ready(nil)

	for _, key := range []string{"", VersionKey} {
		var v any
		if err := e.Save(ctx, key, 1); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Save(%q) error = %v, want ErrInvalidKey", key, err)
		}
		if _, err := e.Load(ctx, key, &v); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Load(%q) error = %v, want ErrInvalidKey", key, err)
		}
		if err := e.Delete(ctx, key); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Delete(%q) error = %v, want ErrInvalidKey", key, err)
		}
		if _, err := e.Contains(ctx, key); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Contains(%q) error = %v, want ErrInvalidKey", key, err)
		}
	}
	if err := e.CreateBackup(ctx, ""); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("CreateBackup(\"\") error = %v, want ErrInvalidKey", err)
	}
}

func TestEngine_SerializationFailure(t *testing.T) {
	ctx := context.Background()
	e := newFixture(t).ready(nil)

	if err := e.Save(ctx, "ch", make(chan int)); !errors.Is(err, ErrSerialization) {
		t.Errorf("Save(chan) error = %v, want ErrSerialization", err)
	}
	if ok, _ := e.Contains(ctx, "ch"); ok {
		t.Error("failed Save() left an entry behind")
	}
}

func TestEngine_FreshStoreVersion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e := f.ready(nil)

	if e.Version() != 0 {
		t.Errorf("Version() = %d, want 0", e.Version())
	}
	if e.State() != StateReady {
		t.Errorf("State() = %v, want ready", e.State())
	}
	if _, err := f.raw(PrimaryBox).Get(ctx, VersionKey); !errors.Is(err, box.ErrKeyNotFound) {
		t.Errorf("version key written for target 0: %v", err)
	}
}

func TestEngine_MigrationOrdering(t *testing.T) {
	ctx := context.Background()
	var observed [][]string

	step := func(name string) migration.Func {
		return func(ctx context.Context, b migration.Box) error {
			keys, err := b.Keys(ctx)
			if err != nil {
				return err
			}
			observed = append(observed, keys)
			return b.Save(ctx, name, true)
		}
	}

	reg := migration.MustRegistry(
		migration.Migration{Version: 3, Name: "third", Up: step("m3")},
		migration.Migration{Version: 1, Name: "first", Up: step("m1")},
		migration.Migration{Version: 2, Name: "second", Up: step("m2")},
	)

	e := newFixture(t).ready(reg)
	if e.Version() != 3 {
		t.Errorf("Version() = %d, want 3", e.Version())
	}

	want := [][]string{{}, {"m1"}, {"m1", "m2"}}
	if !reflect.DeepEqual(observed, want) {
		t.Errorf("observed = %v, want %v", observed, want)
	}

	keys, _ := e.Keys(ctx)
	if !reflect.DeepEqual(keys, []string{"m1", "m2", "m3"}) {
		t.Errorf("Keys() = %v", keys)
	}
}

func TestEngine_VersionMonotonicity(t *testing.T) {
	ctx := context.Background()
	runs := 0
	reg := migration.MustRegistry(migration.Migration{
		Version: 1,
		Up: func(ctx context.Context, b migration.Box) error {
			runs++
			return nil
		},
	})

	f := newFixture(t)
	e := f.ready(reg)
	if err := e.Initialize(ctx); err != nil {
		t.Fatalf("second Initialize() error = %v", err)
	}
	e.Close()

	f.ready(reg)
	if runs != 1 {
		t.Errorf("migration ran %d times, want 1", runs)
	}
}

func TestEngine_StoredAheadOfTarget(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if err := f.raw(PrimaryBox).Put(ctx, VersionKey, []byte("5")); err != nil {
		t.Fatal(err)
	}

	reg := migration.MustRegistry(migration.Migration{Version: 2, Up: migration.SetDefault("x", 1)})
	e := f.ready(reg)

	if e.Version() != 5 {
		t.Errorf("Version() = %d, want 5", e.Version())
	}
	raw, _ := f.raw(PrimaryBox).Get(ctx, VersionKey)
	if string(raw) != "5" {
		t.Errorf("stored version = %s, want 5", raw)
	}
	if ok, _ := e.Contains(ctx, "x"); ok {
		t.Error("migration applied although stored version is ahead")
	}
}

func TestEngine_ExplicitTarget(t *testing.T) {
	reg := migration.MustRegistry(
		migration.Migration{Version: 1, Up: migration.SetDefault("a", 1)},
		migration.Migration{Version: 2, Up: migration.SetDefault("b", 2)},
	)

	ctx := context.Background()
	f := newFixture(t)
	e := f.engine(reg, Config{TargetVersion: 1})
	if err := e.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	if e.Version() != 1 {
		t.Errorf("Version() = %d, want 1", e.Version())
	}
	if ok, _ := e.Contains(ctx, "b"); ok {
		t.Error("migration beyond target applied")
	}
}

func TestEngine_TargetBeyondRegistry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e := f.engine(nil, Config{TargetVersion: 4})
	if err := e.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	if e.Version() != 4 {
		t.Errorf("Version() = %d, want 4", e.Version())
	}
}

func TestEngine_MigrationFailure(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	fail := true

	reg := migration.MustRegistry(
		migration.Migration{Version: 1, Up: migration.SetDefault("one", 1)},
		migration.Migration{Version: 2, Name: "flaky", Up: func(ctx context.Context, b migration.Box) error {
			if fail {
				return boom
			}
			return b.Save(ctx, "two", 2)
		}},
		migration.Migration{Version: 3, Up: migration.SetDefault("three", 3)},
	)

	f := newFixture(t)
	e := f.engine(reg, Config{})
	err := e.Initialize(ctx)
	if !errors.Is(err, ErrMigration) || !errors.Is(err, boom) {
		t.Fatalf("Initialize() error = %v, want ErrMigration wrapping boom", err)
	}
	if e.State() != StateFailed {
		t.Errorf("State() = %v, want failed", e.State())
	}

	raw, _ := f.raw(PrimaryBox).Get(ctx, VersionKey)
	if string(raw) != "1" {
		t.Errorf("stored version = %s, want 1 (last applied)", raw)
	}

	again := e.Initialize(ctx)
	if !errors.Is(again, ErrNotInitialized) || !errors.Is(again, ErrMigration) {
		t.Errorf("Initialize() on failed engine = %v", again)
	}
	if err := e.Save(ctx, "x", 1); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Save() on failed engine = %v", err)
	}

	fail = false
	e2 := f.ready(reg)
	if e2.Version() != 3 {
		t.Errorf("Version() after resume = %d, want 3", e2.Version())
	}
	for _, k := range []string{"one", "two", "three"} {
		if ok, _ := e2.Contains(ctx, k); !ok {
			t.Errorf("Contains(%s) = false after resume", k)
		}
	}
}

func TestEngine_UnparseableVersion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_ = f.raw(PrimaryBox).Put(ctx, VersionKey, []byte("two"))

	e := f.engine(nil, Config{})
	if err := e.Initialize(ctx); !errors.Is(err, ErrSerialization) {
		t.Errorf("Initialize() error = %v, want ErrSerialization", err)
	}
}

func TestEngine_KeyInitializationFailure(t *testing.T) {
	f := newFixture(t)
	f.vault.Fail = errors.New("keyring locked")

	e := f.engine(nil, Config{})
	err := e.Initialize(context.Background())
	if !errors.Is(err, ErrKeyInitialization) || !errors.Is(err, keystore.ErrKeyInitialization) {
		t.Fatalf("Initialize() error = %v, want ErrKeyInitialization", err)
	}
	if KindOf(err) != KindKeyInitialization {
		t.Errorf("KindOf() = %v", KindOf(err))
	}
	if e.State() != StateFailed {
		t.Errorf("State() = %v, want failed", e.State())
	}
}

func TestEngine_OpenFailure(t *testing.T) {
	openErr := errors.New("disk gone")
	e, err := New(Config{}, keystore.NewManager(keystore.NewMemoryVault()), nil,
		WithBoxOpener(box.OpenerFunc(func(ctx context.Context, name string) (box.Box, error) {
			return nil, openErr
		})))
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Initialize(context.Background()); !errors.Is(err, ErrIO) || !errors.Is(err, openErr) {
		t.Errorf("Initialize() error = %v, want ErrIO", err)
	}
}

func TestEngine_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	e := newFixture(t).ready(nil)
	cancel()

	if err := e.Save(ctx, "a", 1); !errors.Is(err, ErrIO) || !errors.Is(err, context.Canceled) {
		t.Errorf("Save() error = %v, want canceled", err)
	}
}

func TestEngine_ClearPreservesVersion(t *testing.T) {
	ctx := context.Background()
	reg := migration.MustRegistry(
		migration.Migration{Version: 1, Up: migration.SetDefault("a", 1)},
		migration.Migration{Version: 2, Up: migration.SetDefault("b", 2)},
	)
	f := newFixture(t)
	e := f.ready(reg)

	if err := e.Save(ctx, "user", "x"); err != nil {
		t.Fatal(err)
	}
	if err := e.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	keys, _ := e.Keys(ctx)
	if len(keys) != 0 {
		t.Errorf("Keys() after Clear = %v", keys)
	}
	if e.Version() != 2 {
		t.Errorf("Version() = %d, want 2", e.Version())
	}
	raw, _ := f.raw(PrimaryBox).Get(ctx, VersionKey)
	if string(raw) != "2" {
		t.Errorf("stored version = %s, want 2", raw)
	}
}

func TestEngine_SettingsScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	seed := f.ready(nil)
	if err := seed.Save(ctx, "old_settings", settings{Theme: "dark", FontSize: 12}); err != nil {
		t.Fatal(err)
	}
	seed.Close()

	reg := migration.MustRegistry(
		migration.Migration{Version: 1, Name: "rename settings", Up: migration.Rename("old_settings", "new_settings")},
		migration.Migration{Version: 2, Name: "default theme", Up: migration.SetDefault("theme", "light")},
	)
	e := f.ready(reg)

	if e.Version() != 2 {
		t.Errorf("Version() = %d, want 2", e.Version())
	}
	if ok, _ := e.Contains(ctx, "old_settings"); ok {
		t.Error("old_settings still present")
	}
	got, found, err := Get[settings](ctx, e, "new_settings")
	if err != nil || !found {
		t.Fatalf("Get(new_settings) = %v, %v", found, err)
	}
	if got != (settings{Theme: "dark", FontSize: 12}) {
		t.Errorf("new_settings = %+v", got)
	}
	theme, _, _ := Get[string](ctx, e, "theme")
	if theme != "light" {
		t.Errorf("theme = %q, want light", theme)
	}
}

func TestEngine_BackupRestore(t *testing.T) {
	ctx := context.Background()
	reg := migration.MustRegistry(migration.Migration{Version: 1, Up: migration.SetDefault("seed", true)})
	e := newFixture(t).ready(reg)

	_ = e.Save(ctx, "a", "alpha")
	_ = e.Save(ctx, "b", settings{Theme: "dark"})

	if err := e.CreateBackup(ctx, "snap"); err != nil {
		t.Fatalf("CreateBackup() error = %v", err)
	}

	_ = e.Save(ctx, "a", "changed")
	_ = e.Delete(ctx, "b")
	_ = e.Save(ctx, "c", "new")

	if err := e.RestoreBackup(ctx, "snap"); err != nil {
		t.Fatalf("RestoreBackup() error = %v", err)
	}

	keys, _ := e.Keys(ctx)
	if !reflect.DeepEqual(keys, []string{"a", "b", "seed"}) {
		t.Errorf("Keys() after restore = %v", keys)
	}
	a, _, _ := Get[string](ctx, e, "a")
	if a != "alpha" {
		t.Errorf("a = %q, want alpha", a)
	}
	b, _, _ := Get[settings](ctx, e, "b")
	if b.Theme != "dark" {
		t.Errorf("b = %+v", b)
	}
	if e.Version() != 1 {
		t.Errorf("Version() = %d, want 1", e.Version())
	}
}

func TestEngine_RestoreMovesVersionBackward(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	e := f.ready(nil)
	_ = e.Save(ctx, "a", 1)
	if err := e.CreateBackup(ctx, "v0"); err != nil {
		t.Fatal(err)
	}
	e.Close()

	reg := migration.MustRegistry(migration.Migration{Version: 1, Up: migration.SetDefault("b", 2)})
	e2 := f.ready(reg)
	if e2.Version() != 1 {
		t.Fatalf("Version() = %d, want 1", e2.Version())
	}
	if err := e2.RestoreBackup(ctx, "v0"); err != nil {
		t.Fatal(err)
	}
	if e2.Version() != 0 {
		t.Errorf("Version() after restore = %d, want 0", e2.Version())
	}
	raw, _ := f.raw(PrimaryBox).Get(ctx, VersionKey)
	if string(raw) != "0" {
		t.Errorf("stored version = %s, want 0", raw)
	}
}

func TestEngine_RestoreErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e := f.ready(nil)
	_ = e.Save(ctx, "keep", "me")

	if err := e.RestoreBackup(ctx, "missing"); !errors.Is(err, ErrBackupNotFound) {
		t.Errorf("RestoreBackup(missing) error = %v, want ErrBackupNotFound", err)
	}

	backups := f.raw(BackupBox)
	bad := map[string]string{
		"notjson":    "{",
		"array":      "[1,2]",
		"badversion": `{"_storage_version":"x"}`,
		"badentry":   `{"a":5}`,
	}
	for name, blob := range bad {
		_ = backups.Put(ctx, name, []byte(blob))
	}

	for name := range bad {
		t.Run(name, func(t *testing.T) {
			if err := e.RestoreBackup(ctx, name); !errors.Is(err, ErrSerialization) {
				t.Errorf("RestoreBackup() error = %v, want ErrSerialization", err)
			}
			v, found, _ := Get[string](ctx, e, "keep")
			if !found || v != "me" {
				t.Error("primary box modified by a failed restore")
			}
		})
	}
}

func TestEngine_ListAndDeleteBackups(t *testing.T) {
	ctx := context.Background()
	e := newFixture(t).ready(nil)

	for _, name := range []string{"weekly", "daily", "monthly"} {
		if err := e.CreateBackup(ctx, name); err != nil {
			t.Fatal(err)
		}
	}
	names, err := e.ListBackups(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"daily", "monthly", "weekly"}; !reflect.DeepEqual(names, want) {
		t.Errorf("ListBackups() = %v, want %v", names, want)
	}

	size, err := e.BackupSize(ctx, "daily")
	if err != nil || size == 0 {
		t.Errorf("BackupSize() = %d, %v", size, err)
	}
	if _, err := e.BackupSize(ctx, "nope"); !errors.Is(err, ErrBackupNotFound) {
		t.Errorf("BackupSize(nope) error = %v", err)
	}

	if err := e.DeleteBackup(ctx, "monthly"); err != nil {
		t.Fatal(err)
	}
	if err := e.DeleteBackup(ctx, "monthly"); err != nil {
		t.Errorf("DeleteBackup() absent error = %v", err)
	}
	names, _ = e.ListBackups(ctx)
	if want := []string{"daily", "weekly"}; !reflect.DeepEqual(names, want) {
		t.Errorf("ListBackups() = %v, want %v", names, want)
	}
}

func TestEngine_BackupOverwrite(t *testing.T) {
	ctx := context.Background()
	e := newFixture(t).ready(nil)

	_ = e.Save(ctx, "a", 1)
	_ = e.CreateBackup(ctx, "b")
	_ = e.Save(ctx, "a", 2)
	_ = e.CreateBackup(ctx, "b")
	_ = e.Save(ctx, "a", 3)

	if err := e.RestoreBackup(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	if n, _, _ := Get[int](ctx, e, "a"); n != 2 {
		t.Errorf("a = %d, want 2", n)
	}
}

func TestEngine_CloseAndReopen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e := f.ready(nil)
	_ = e.Save(ctx, "a", "x")

	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := e.Save(ctx, "b", 1); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Save() after Close error = %v", err)
	}

	if err := e.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() after Close error = %v", err)
	}
	if v, _, _ := Get[string](ctx, e, "a"); v != "x" {
		t.Errorf("a = %q after reopen", v)
	}
}

func TestEngine_Reset(t *testing.T) {
	e := newFixture(t).ready(nil)
	e.reset()
	if e.State() != StateUninitialized || e.Version() != 0 {
		t.Errorf("after reset: state %v, version %d", e.State(), e.Version())
	}
}

func TestEngine_CaptureTrace(t *testing.T) {
	f := newFixture(t)
	e := f.engine(nil, Config{CaptureTrace: true})

	var se *Error
	err := e.Save(context.Background(), "a", 1)
	if !errors.As(err, &se) {
		t.Fatalf("Save() error = %v", err)
	}
	if se.Trace == "" {
		t.Error("Trace not captured")
	}
}

func TestEngine_PanickingLogger(t *testing.T) {
	ctx := context.Background()
	reg := migration.MustRegistry(migration.Migration{Version: 1, Up: migration.SetDefault("a", 1)})
	e := newFixture(t).ready(reg, WithLogger(panicLogger{}))

	if err := e.Save(ctx, "b", 2); err != nil {
		t.Fatal(err)
	}
	if err := e.CreateBackup(ctx, "snap"); err != nil {
		t.Fatal(err)
	}
	if err := e.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if err := e.RestoreBackup(ctx, "snap"); err != nil {
		t.Fatal(err)
	}
}

func TestEngine_Metrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m, err := metric.NewStorage(reg)
	if err != nil {
		t.Fatal(err)
	}

	migs := migration.MustRegistry(
		migration.Migration{Version: 1, Up: migration.SetDefault("a", 1)},
		migration.Migration{Version: 2, Up: migration.SetDefault("b", 1)},
	)
	e := newFixture(t).ready(migs, WithMetrics(m))

	_ = e.Save(ctx, "x", 1)
	_ = e.Save(ctx, "", 1)
	_ = e.CreateBackup(ctx, "b1")

	if got := testutil.ToFloat64(m.SchemaVersion); got != 2 {
		t.Errorf("schema_version = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.MigrationsApplied); got != 2 {
		t.Errorf("migrations_applied = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Backups); got != 1 {
		t.Errorf("backups = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Operations.WithLabelValues("save", metric.ResultOK)); got != 1 {
		t.Errorf("save ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Operations.WithLabelValues("save", metric.ResultError)); got != 1 {
		t.Errorf("save error = %v, want 1", got)
	}
}

func TestEngine_StatsAndCollector(t *testing.T) {
	ctx := context.Background()
	e := newFixture(t).ready(nil)
	_ = e.Save(ctx, "a", 1)
	_ = e.Save(ctx, "b", 2)
	_ = e.CreateBackup(ctx, "snap")

	st, err := e.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Entries != 2 || st.Backups != 1 || st.StateName != "ready" {
		t.Errorf("Stats() = %+v", st)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(e.Collector())
	if n := testutil.CollectAndCount(e.Collector()); n != 4 {
		t.Errorf("collected %d metrics, want 4", n)
	}
}

func TestEngine_Badger(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	vault := keystore.NewMemoryVault()
	reg := migration.MustRegistry(migration.Migration{Version: 1, Up: migration.SetDefault("theme", "light")})

	cfg := DefaultConfig(appdir.Fixed(dir))
	cfg.Badger.GCInterval = 0
	cfg.Badger.SyncWrites = false

	open := func() *Engine {
		e, err := New(cfg, keystore.NewManager(vault), reg)
		if err != nil {
			t.Fatal(err)
		}
		if err := e.Initialize(ctx); err != nil {
			t.Fatalf("Initialize() error = %v", err)
		}
		return e
	}

	e := open()
	if err := e.Save(ctx, "a", settings{Theme: "dark"}); err != nil {
		t.Fatal(err)
	}
	if err := e.CreateBackup(ctx, "first"); err != nil {
		t.Fatal(err)
	}
	st, err := e.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Entries != 2 {
		t.Errorf("Stats().Entries = %d, want 2", st.Entries)
	}
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}

	e = open()
	defer e.Close()

	if e.Version() != 1 {
		t.Errorf("Version() after reopen = %d, want 1", e.Version())
	}
	got, found, err := Get[settings](ctx, e, "a")
	if err != nil || !found || got.Theme != "dark" {
		t.Errorf("Get(a) = %+v, %v, %v", got, found, err)
	}
	names, _ := e.ListBackups(ctx)
	if !reflect.DeepEqual(names, []string{"first"}) {
		t.Errorf("ListBackups() = %v", names)
	}
}

type panicLogger struct{}

func (panicLogger) Debug(string, ...any) { panic("debug") }
func (panicLogger) Info(string, ...any)  { panic("info") }
func (panicLogger) Warn(string, ...any)  { panic("warn") }
func (panicLogger) Error(string, ...any) { panic("error") }

func (p panicLogger) With(...any) logger.Logger { return p }

func (p panicLogger) WithContext(context.Context) logger.Logger { return p }
