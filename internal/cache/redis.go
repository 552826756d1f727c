package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisStore implements Store on a Redis server.
type RedisStore struct {
	client redis.UniversalClient
	log    *logrus.Logger
}

// RedisConfig holds connection settings for NewRedisStore.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisStore connects and pings the server.
func NewRedisStore(ctx context.Context, cfg RedisConfig, log *logrus.Logger) (*RedisStore, error) {
	if log == nil {
		log = logrus.New()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}

	log.WithFields(logrus.Fields{"addr": cfg.Addr, "db": cfg.DB}).Info("connected to Redis")
	return &RedisStore{client: client, log: log}, nil
}

// NewRedisStoreFromClient wraps an existing client (tests, shared pools).
func NewRedisStoreFromClient(client redis.UniversalClient, log *logrus.Logger) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if log == nil {
		log = logrus.New()
	}
	return &RedisStore{client: client, log: log}, nil
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return val, nil
}

func (r *RedisStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) PutIndexed(ctx context.Context, key string, value []byte, index, member string) error {
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, key, value, 0)
	pipe.SAdd(ctx, index, member)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("put indexed %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) DeleteIndexed(ctx context.Context, key, index, member string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, index, member)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete indexed %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) Members(ctx context.Context, index string) ([]string, error) {
	members, err := r.client.SMembers(ctx, index).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers %s: %w", index, err)
	}
	return members, nil
}

func (r *RedisStore) GetMany(ctx context.Context, keys ...string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget: %w", err)
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[i] = []byte(s)
		}
	}
	return out, nil
}

// Publish sends payload on channel; plan progress events go out this way.
func (r *RedisStore) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := r.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe streams messages of channel until ctx is cancelled.
func (r *RedisStore) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	pubsub := r.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				default:
					r.log.WithField("channel", channel).Warn("subscriber is slow, dropping message")
				}
			}
		}
	}()
	return out, nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
