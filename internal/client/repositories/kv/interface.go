package kv

import (
	"context"
	"errors"
)

// ErrCorrupt marks a stored value the backend could not decode.
var ErrCorrupt = errors.New("corrupt value")

type Storage interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key string, value string) error
}

// UpdateFunc receives the current value (ok is false when the key is absent)
// and returns the value to store. Returning an error aborts the update.
type UpdateFunc func(current string, ok bool) (string, error)

// Updater is implemented by backends with atomic read-modify-write.
type Updater interface {
	Update(ctx context.Context, key string, fn UpdateFunc) error
}

// Lister is implemented by backends that can enumerate keys.
type Lister interface {
	Keys(ctx context.Context, prefix string) ([]string, error)
}
