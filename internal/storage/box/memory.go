package box

import (
	"bytes"
	"context"
	"sort"
	"sync"
)

// MemoryBox is an in-process Box.
type MemoryBox struct {
	name string

	mu     sync.RWMutex
	items  map[string][]byte
	closed bool
}

// NewMemory creates an empty MemoryBox.
func NewMemory(name string) *MemoryBox {
	return &MemoryBox{
		name:  name,
		items: make(map[string][]byte),
	}
}

// MemoryOpener returns an Opener that hands out one MemoryBox per name and
// returns the same contents when a name is opened again, so a reopened
// engine sees earlier writes within the process.
func MemoryOpener() Opener {
	var (
		mu    sync.Mutex
		boxes = make(map[string]*MemoryBox)
	)
	return OpenerFunc(func(ctx context.Context, name string) (Box, error) {
		mu.Lock()
		defer mu.Unlock()

		if b, ok := boxes[name]; ok {
			b.mu.Lock()
			b.closed = false
			b.mu.Unlock()
			return b, nil
		}
		b := NewMemory(name)
		boxes[name] = b
		return b, nil
	})
}

func (b *MemoryBox) Name() string {
	return b.name
}

func (b *MemoryBox) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrClosed
	}
	v, ok := b.items[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return bytes.Clone(v), nil
}

func (b *MemoryBox) Put(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return ErrEmptyKey
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	b.items[key] = bytes.Clone(value)
	return nil
}

func (b *MemoryBox) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	delete(b.items, key)
	return nil
}

func (b *MemoryBox) Has(ctx context.Context, key string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return false, ErrClosed
	}
	_, ok := b.items[key]
	return ok, nil
}

func (b *MemoryBox) Keys(ctx context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrClosed
	}
	keys := make([]string, 0, len(b.items))
	for k := range b.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *MemoryBox) Snapshot(ctx context.Context) (map[string][]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrClosed
	}
	out := make(map[string][]byte, len(b.items))
	for k, v := range b.items {
		out[k] = bytes.Clone(v)
	}
	return out, nil
}

func (b *MemoryBox) Replace(ctx context.Context, entries map[string][]byte) error {
	for k := range entries {
		if k == "" {
			return ErrEmptyKey
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	b.items = make(map[string][]byte, len(entries))
	for k, v := range entries {
		b.items[k] = bytes.Clone(v)
	}
	return nil
}

func (b *MemoryBox) Clear(ctx context.Context) error {
	return b.Replace(ctx, nil)
}

func (b *MemoryBox) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	return nil
}
