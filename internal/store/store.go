// Package store provides the durable key/value state the agent uses to
// mirror its session across restarts.
package store

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned when a key has no stored value.
var ErrKeyNotFound = errors.New("store: key not found")

// Store is a durable string key/value store. Values written here must
// survive process restarts.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
