package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const UpdateBufferSize = 255

type InmemoryStore struct {
	mu     sync.RWMutex
	values []byte

	// maxItems caps arrays grown with Append, the oldest items go first
	maxItems int

	listenersMu sync.Mutex
	listeners   map[chan *Update]struct{}

	// stop will be closed when Close() is called
	stop chan struct{}
}

// NewInmemoryStore returns an empty store. Arrays grown by Append keep at most
// maxItems entries, zero keeps everything.
func NewInmemoryStore(maxItems int) *InmemoryStore {
	return &InmemoryStore{
		values:    []byte("{}"),
		maxItems:  maxItems,
		listeners: make(map[chan *Update]struct{}),
		stop:      make(chan struct{}),
	}
}

func (i *InmemoryStore) Close() error {
	i.listenersMu.Lock()
	defer i.listenersMu.Unlock()

	if !i.isRunning() {
		return nil
	}

	close(i.stop)
	for listener := range i.listeners {
		close(listener)
		delete(i.listeners, listener)
	}

	return nil
}

func (i *InmemoryStore) Set(ctx context.Context, key string, value interface{}) error {
	return i.update(key, func(values []byte) ([]byte, error) {
		return sjson.SetBytes(values, key, value)
	})
}

func (i *InmemoryStore) SetRaw(ctx context.Context, key string, raw []byte) error {
	if !gjson.ValidBytes(raw) {
		return fmt.Errorf("invalid JSON for key %q", key)
	}

	return i.update(key, func(values []byte) ([]byte, error) {
		return sjson.SetRawBytes(values, key, raw)
	})
}

func (i *InmemoryStore) Append(ctx context.Context, key string, raw []byte) error {
	if !gjson.ValidBytes(raw) {
		return fmt.Errorf("invalid JSON for key %q", key)
	}

	return i.update(key, func(values []byte) ([]byte, error) {
		values, err := sjson.SetRawBytes(values, key+".-1", raw)
		if err != nil {
			return nil, err
		}

		if i.maxItems <= 0 {
			return values, nil
		}

		for gjson.GetBytes(values, key+".#").Int() > int64(i.maxItems) {
			if values, err = sjson.DeleteBytes(values, key+".0"); err != nil {
				return nil, err
			}
		}

		return values, nil
	})
}

func (i *InmemoryStore) Delete(ctx context.Context, key string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !gjson.GetBytes(i.values, key).Exists() {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	values, err := sjson.DeleteBytes(i.values, key)
	if err != nil {
		return err
	}

	i.values = values
	i.notify(&Update{Key: key, Value: []byte("null")})
	return nil
}

func (i *InmemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	result := gjson.GetBytes(i.values, key)
	if !result.Exists() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	return []byte(result.Raw), nil
}

func (i *InmemoryStore) ListenToUpdates(ctx context.Context) <-chan *Update {
	i.listenersMu.Lock()
	defer i.listenersMu.Unlock()

	listener := make(chan *Update, UpdateBufferSize)

	if !i.isRunning() {
		close(listener)
		return listener
	}

	i.listeners[listener] = struct{}{}

	go func() {
		select {
		case <-ctx.Done():
		case <-i.stop:
			return
		}

		i.listenersMu.Lock()
		defer i.listenersMu.Unlock()

		if _, ok := i.listeners[listener]; ok {
			delete(i.listeners, listener)
			close(listener)
		}
	}()

	return listener
}

func (i *InmemoryStore) Restore(values []byte) error {
	trimmed := strings.TrimSpace(string(values))
	if trimmed == "" {
		trimmed = "{}"
	}

	if !gjson.Valid(trimmed) || !gjson.Parse(trimmed).IsObject() {
		return fmt.Errorf("restore needs a JSON object")
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	i.values = []byte(trimmed)
	return nil
}

func (i *InmemoryStore) Backup() ([]byte, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	backup := make([]byte, len(i.values))
	copy(backup, i.values)
	return backup, nil
}

func (i *InmemoryStore) update(key string, change func(values []byte) ([]byte, error)) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	values, err := change(i.values)
	if err != nil {
		return err
	}

	i.values = values
	i.notify(&Update{
		Key:   key,
		Value: []byte(gjson.GetBytes(i.values, key).Raw),
	})

	return nil
}

// notify hands update to every listener. A listener whose buffer is full misses it.
func (i *InmemoryStore) notify(update *Update) {
	i.listenersMu.Lock()
	defer i.listenersMu.Unlock()

	for listener := range i.listeners {
		select {
		case listener <- update:
		default:
		}
	}
}

// isRunning returns true if Close has not been called
func (i *InmemoryStore) isRunning() bool {
	select {
	case <-i.stop:
		return false

	default:
		return true
	}
}

var _ Store = (*InmemoryStore)(nil)
