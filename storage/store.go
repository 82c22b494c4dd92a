package storage

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("key not found")

// Update describes a change to the document. Value is the JSON now stored at Key.
type Update struct {
	Key   string
	Value []byte
}

// Store is a JSON document addressed with gjson/sjson paths.
type Store interface {
	Set(ctx context.Context, key string, value interface{}) error
	SetRaw(ctx context.Context, key string, raw []byte) error

	// Append adds raw JSON to the end of the array at key, creating it if needed.
	Append(ctx context.Context, key string, raw []byte) error

	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error

	Restore(values []byte) error
	Backup() ([]byte, error)

	// ListenToUpdates returns a channel of changes. It is closed once ctx is
	// done or the store is closed.
	ListenToUpdates(ctx context.Context) <-chan *Update

	Close() error
}
