package cache

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is the in-process Store used when no Redis address is configured.
// Values do not survive a restart.
type MemoryStore struct {
	mu          sync.RWMutex
	values      map[string]memEntry
	sets        map[string]map[string]struct{}
	subscribers map[string][]chan []byte
	now         func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values:      make(map[string]memEntry),
		sets:        make(map[string]map[string]struct{}),
		subscribers: make(map[string][]chan []byte),
		now:         time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	e, ok := m.values[key]
	m.mu.RUnlock()
	if !ok || m.expired(e) {
		return nil, ErrNotFound
	}
	return append([]byte(nil), e.value...), nil
}

func (m *MemoryStore) expired(e memEntry) bool {
	return !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt)
}

func (m *MemoryStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := memEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.values[key] = e
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.values, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) PutIndexed(_ context.Context, key string, value []byte, index, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = memEntry{value: append([]byte(nil), value...)}
	set, ok := m.sets[index]
	if !ok {
		set = make(map[string]struct{})
		m.sets[index] = set
	}
	set[member] = struct{}{}
	return nil
}

func (m *MemoryStore) DeleteIndexed(_ context.Context, key, index, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	delete(m.sets[index], member)
	return nil
}

func (m *MemoryStore) Members(_ context.Context, index string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.sets[index]))
	for member := range m.sets[index] {
		out = append(out, member)
	}
	return out, nil
}

func (m *MemoryStore) GetMany(ctx context.Context, keys ...string) ([][]byte, error) {
	out := make([][]byte, len(keys))
	for i, k := range keys {
		v, err := m.Get(ctx, k)
		if err == nil {
			out[i] = v
		}
	}
	return out, nil
}

func (m *MemoryStore) Publish(_ context.Context, channel string, payload []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ch := range m.subscribers[channel] {
		select {
		case ch <- append([]byte(nil), payload...):
		default:
		}
	}
	return nil
}

// Subscribe registers a buffered listener on channel until ctx is cancelled.
func (m *MemoryStore) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 64)
	m.mu.Lock()
	m.subscribers[channel] = append(m.subscribers[channel], ch)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		subs := m.subscribers[channel]
		for i, c := range subs {
			if c == ch {
				m.subscribers[channel] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
