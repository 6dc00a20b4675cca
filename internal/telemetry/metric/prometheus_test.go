package metric

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewStorage(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewStorage(reg)
	if err != nil {
		t.Fatalf("NewStorage() error = %v", err)
	}

	s.ObserveOp("save", time.Now(), nil)
	s.ObserveOp("save", time.Now(), nil)
	s.ObserveOp("load", time.Now(), errors.New("boom"))

	if got := testutil.ToFloat64(s.Operations.WithLabelValues("save", ResultOK)); got != 2 {
		t.Errorf("save ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(s.Operations.WithLabelValues("load", ResultError)); got != 1 {
		t.Errorf("load error = %v, want 1", got)
	}

	s.SetSchemaVersion(3)
	s.MigrationApplied()
	s.SetBackups(2)

	if got := testutil.ToFloat64(s.SchemaVersion); got != 3 {
		t.Errorf("schema_version = %v, want 3", got)
	}
	if got := testutil.ToFloat64(s.MigrationsApplied); got != 1 {
		t.Errorf("migrations_applied_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(s.Backups); got != 2 {
		t.Errorf("backups = %v, want 2", got)
	}
}

func TestNewStorage_ReusesRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, _ := NewStorage(reg)
	b, _ := NewStorage(reg)

	a.MigrationApplied()
	if got := testutil.ToFloat64(b.MigrationsApplied); got != 1 {
		t.Errorf("second NewStorage should share collectors, got %v", got)
	}
}

func TestStorage_NilSafe(t *testing.T) {
	var s *Storage
	s.ObserveOp("save", time.Now(), nil)
	s.SetSchemaVersion(1)
	s.MigrationApplied()
	s.SetBackups(1)
}

func TestCollector(t *testing.T) {
	c := NewCollector(func() (Sample, error) {
		return Sample{Entries: 4, Backups: 1, LSMBytes: 100, ValueLogBytes: 200}, nil
	})

	expected := `
# HELP lockbox_storage_entries Number of user entries in the primary box.
# TYPE lockbox_storage_entries gauge
lockbox_storage_entries 4
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected), "lockbox_storage_entries"); err != nil {
		t.Errorf("CollectAndCompare() error = %v", err)
	}
	if n := testutil.CollectAndCount(c); n != 4 {
		t.Errorf("CollectAndCount() = %d, want 4", n)
	}
}

func TestCollector_SampleError(t *testing.T) {
	c := NewCollector(func() (Sample, error) {
		return Sample{}, errors.New("closed")
	})
	if n := testutil.CollectAndCount(c); n != 0 {
		t.Errorf("CollectAndCount() = %d, want 0", n)
	}
}
