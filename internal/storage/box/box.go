// Package box provides the physical key-value containers behind the
// storage engine.
//
// A Box is a named, independently addressable map from string keys to
// opaque byte values. The engine owns two of them: the primary box holding
// encrypted entries and the backup box holding named snapshots.
//
// Implementations:
//
//   - BadgerBox: durable, log-structured storage on Badger v3
//   - MemoryBox: process-local map for tests and ephemeral stores
package box

import (
	"context"
	"errors"
)

// Common errors.
var (
	ErrKeyNotFound = errors.New("box: key not found")
	ErrClosed      = errors.New("box: closed")
	ErrEmptyKey    = errors.New("box: empty key")
)

// Box is a named key-value container.
//
// Implementations are safe for concurrent use, but sequences of calls are
// not atomic with respect to each other.
type Box interface {
	// Name returns the box name.
	Name() string

	// Get returns the value stored under key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Has reports whether key is present without reading its value.
	Has(ctx context.Context, key string) (bool, error)

	// Keys returns all keys in ascending order.
	Keys(ctx context.Context) ([]string, error)

	// Snapshot returns a copy of every entry.
	Snapshot(ctx context.Context) (map[string][]byte, error)

	// Replace removes every entry and then writes entries.
	Replace(ctx context.Context, entries map[string][]byte) error

	// Clear removes every entry.
	Clear(ctx context.Context) error

	// Close releases resources. Further calls return ErrClosed.
	Close() error
}

// Opener opens a named box.
type Opener interface {
	Open(ctx context.Context, name string) (Box, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, name string) (Box, error)

// Open implements Opener.
func (f OpenerFunc) Open(ctx context.Context, name string) (Box, error) {
	return f(ctx, name)
}
