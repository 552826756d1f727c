package cache

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   1, // keep tests off the default DB
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	require.NoError(t, client.FlushDB(ctx).Err())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.FlushDB(ctx).Err()
		_ = client.Close()
	})
	return client
}

// exercise runs the same contract against every implementation.
func exercise(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(ctx, "k", []byte("v"), 0))
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, s.Delete(ctx, "k"))
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.PutIndexed(ctx, "item:a", []byte("A"), "items", "a"))
	require.NoError(t, s.PutIndexed(ctx, "item:b", []byte("B"), "items", "b"))
	members, err := s.Members(ctx, "items")
	require.NoError(t, err)
	sort.Strings(members)
	assert.Equal(t, []string{"a", "b"}, members)

	vals, err := s.GetMany(ctx, "item:a", "item:zz", "item:b")
	require.NoError(t, err)
	require.Len(t, vals, 3)
	assert.Equal(t, []byte("A"), vals[0])
	assert.Nil(t, vals[1])
	assert.Equal(t, []byte("B"), vals[2])

	require.NoError(t, s.DeleteIndexed(ctx, "item:a", "items", "a"))
	members, err = s.Members(ctx, "items")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, members)

	assert.NoError(t, s.Ping(ctx))
}

func TestMemoryStore(t *testing.T) {
	exercise(t, NewMemoryStore())
}

func TestRedisStore(t *testing.T) {
	client := setupTestRedis(t)
	s, err := NewRedisStoreFromClient(client, nil)
	require.NoError(t, err)
	exercise(t, s)
}

func TestMemoryStore_TTL(t *testing.T) {
	s := NewMemoryStore()
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "k", []byte("v"), time.Minute))
	_, err := s.Get(ctx, "k")
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_PublishSubscribe(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := s.Subscribe(ctx, "events")
	require.NoError(t, err)

	require.NoError(t, s.Publish(ctx, "events", []byte("hello")))
	require.NoError(t, s.Publish(ctx, "other", []byte("ignored")))

	select {
	case msg := <-ch:
		assert.Equal(t, []byte("hello"), msg)
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}

	cancel()
	assert.Eventually(t, func() bool {
		_, open := <-ch
		return !open
	}, time.Second, 10*time.Millisecond)
}

func TestNewRedisStoreFromClient_Nil(t *testing.T) {
	_, err := NewRedisStoreFromClient(nil, nil)
	assert.Error(t, err)
}
