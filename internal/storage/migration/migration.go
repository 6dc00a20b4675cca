// Package migration defines schema migration steps and their registry.
//
// A Migration upgrades the primary box to the schema version it is tagged
// with. Steps are registered once, validated (positive, unique versions)
// and kept in ascending order. The storage engine asks the registry for the
// steps between the stored and the target version and applies them in
// order, handing each one a Box over the encrypted primary box.
package migration

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Registration errors.
var (
	ErrInvalidVersion   = errors.New("migration: version must be positive")
	ErrDuplicateVersion = errors.New("migration: duplicate version")
	ErrNilMigration     = errors.New("migration: nil step function")
)

// Box is the view of the primary box given to a migration step. Values are
// encrypted and decrypted transparently.
type Box interface {
	// Load decodes the value under key into dst. It returns false when the
	// key is absent.
	Load(ctx context.Context, key string, dst any) (bool, error)

	// Save encodes value as JSON and stores it under key.
	Save(ctx context.Context, key string, value any) error

	// Delete removes key; absent keys are ignored.
	Delete(ctx context.Context, key string) error

	// Contains reports whether key is present.
	Contains(ctx context.Context, key string) (bool, error)

	// Keys returns the user keys in ascending order.
	Keys(ctx context.Context) ([]string, error)
}

// Func is the body of a migration step.
type Func func(ctx context.Context, b Box) error

// Migration upgrades data to Version.
type Migration struct {
	// Version is the schema version this step upgrades to.
	Version int

	// Name is a short description used in logs.
	Name string

	// Up performs the transformation.
	Up Func
}

func (m Migration) String() string {
	if m.Name == "" {
		return fmt.Sprintf("v%d", m.Version)
	}
	return fmt.Sprintf("v%d (%s)", m.Version, m.Name)
}

// Registry is an immutable, ordered set of migrations.
type Registry struct {
	steps []Migration
}

// NewRegistry validates steps and returns them as a registry sorted by
// version.
func NewRegistry(steps ...Migration) (*Registry, error) {
	seen := make(map[int]string, len(steps))
	sorted := make([]Migration, 0, len(steps))

	for _, m := range steps {
		if m.Version <= 0 {
			return nil, fmt.Errorf("%w: %s", ErrInvalidVersion, m)
		}
		if m.Up == nil {
			return nil, fmt.Errorf("%w: %s", ErrNilMigration, m)
		}
		if prev, ok := seen[m.Version]; ok {
			return nil, fmt.Errorf("%w: %d (%q and %q)", ErrDuplicateVersion, m.Version, prev, m.Name)
		}
		seen[m.Version] = m.Name
		sorted = append(sorted, m)
	}

	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Version < sorted[j].Version
	})

	return &Registry{steps: sorted}, nil
}

// MustRegistry is like NewRegistry but panics on invalid input. Intended
// for package-level migration tables.
func MustRegistry(steps ...Migration) *Registry {
	r, err := NewRegistry(steps...)
	if err != nil {
		panic(err)
	}
	return r
}

// Pending returns the migrations with stored < Version <= target in
// ascending order.
func (r *Registry) Pending(stored, target int) []Migration {
	if r == nil {
		return nil
	}

	var out []Migration
	for _, m := range r.steps {
		if m.Version > stored && m.Version <= target {
			out = append(out, m)
		}
	}
	return out
}

// Latest returns the highest registered version, or 0 when empty.
func (r *Registry) Latest() int {
	if r == nil || len(r.steps) == 0 {
		return 0
	}
	return r.steps[len(r.steps)-1].Version
}

// Len returns the number of registered migrations.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.steps)
}

// Versions returns the registered versions in ascending order.
func (r *Registry) Versions() []int {
	if r == nil {
		return nil
	}
	out := make([]int, len(r.steps))
	for i, m := range r.steps {
		out[i] = m.Version
	}
	return out
}
