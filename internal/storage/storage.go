package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidKey is returned for keys that cannot name a stored value
var ErrInvalidKey = errors.New("invalid storage key")

// Store is the persisted key-value contract. Values are whole JSON
// documents: callers read the full value, mutate it, and write it back.
type Store interface {
	// Get decodes the value stored under key into dst. It reports false
	// when nothing is stored.
	Get(ctx context.Context, key string, dst any) (bool, error)

	// Set replaces the value stored under key
	Set(ctx context.Context, key string, value any) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys lists stored keys in lexical order
	Keys(ctx context.Context) ([]string, error)
}

func validateKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
