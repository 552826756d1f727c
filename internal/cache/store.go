package cache

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned by Get when the key holds no value.
var ErrNotFound = errors.New("cache: key not found")

// Store is the key/value capability the orchestrator persists balances and pool
// overrides through.
type Store interface {
	// Get returns the raw value stored at key or ErrNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value at key; a zero ttl keeps it until deleted
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error

	// PutIndexed stores value at key and adds member to the index set in one step
	PutIndexed(ctx context.Context, key string, value []byte, index, member string) error

	// DeleteIndexed removes key and its member from the index set in one step
	DeleteIndexed(ctx context.Context, key, index, member string) error

	// Members lists the index set in no particular order
	Members(ctx context.Context, index string) ([]string, error)

	// GetMany returns the values of keys in order, nil where a key is missing
	GetMany(ctx context.Context, keys ...string) ([][]byte, error)

	// Publish fans payload out to subscribers of channel
	Publish(ctx context.Context, channel string, payload []byte) error

	// Ping checks if the store is reachable
	Ping(ctx context.Context) error

	io.Closer
}

// Subscriber is implemented by stores that can stream published messages.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

var (
	_ Store      = (*RedisStore)(nil)
	_ Store      = (*MemoryStore)(nil)
	_ Subscriber = (*RedisStore)(nil)
	_ Subscriber = (*MemoryStore)(nil)
)
