package migration

import (
	"context"
	"encoding/json"
	"fmt"
)

// Rename moves the value stored under from to to. A missing from key is a
// no-op so the step can be re-run safely. An existing to key is
// overwritten.
func Rename(from, to string) Func {
	return func(ctx context.Context, b Box) error {
		var v json.RawMessage
		ok, err := b.Load(ctx, from, &v)
		if err != nil {
			return fmt.Errorf("rename %q: %w", from, err)
		}
		if !ok {
			return nil
		}
		if err := b.Save(ctx, to, v); err != nil {
			return fmt.Errorf("rename %q to %q: %w", from, to, err)
		}
		return b.Delete(ctx, from)
	}
}

// SetDefault stores value under key unless the key already exists.
func SetDefault(key string, value any) Func {
	return func(ctx context.Context, b Box) error {
		ok, err := b.Contains(ctx, key)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		return b.Save(ctx, key, value)
	}
}

// Remove deletes keys.
func Remove(keys ...string) Func {
	return func(ctx context.Context, b Box) error {
		for _, k := range keys {
			if err := b.Delete(ctx, k); err != nil {
				return fmt.Errorf("remove %q: %w", k, err)
			}
		}
		return nil
	}
}

// Chain runs fns in order, stopping at the first error.
func Chain(fns ...Func) Func {
	return func(ctx context.Context, b Box) error {
		for _, fn := range fns {
			if err := fn(ctx, b); err != nil {
				return err
			}
		}
		return nil
	}
}
