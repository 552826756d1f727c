package overrides

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/aman-zulfiqar/rift-liquidity/internal/cache"
	"github.com/aman-zulfiqar/rift-liquidity/internal/constants"
	"github.com/aman-zulfiqar/rift-liquidity/internal/pool"
)

type Store struct {
	backend cache.Store
}

func NewStore(backend cache.Store) (*Store, error) {
	if backend == nil {
		return nil, fmt.Errorf("cache store is nil")
	}
	return &Store{backend: backend}, nil
}

// ParseKey validates a pool address used as override key.
func ParseKey(key string) (solana.PublicKey, error) {
	pk, err := solana.PublicKeyFromBase58(key)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid pool address %q", key)
	}
	return pk, nil
}

func (s *Store) Upsert(ctx context.Context, p pool.Pool, rift solana.PublicKey, signature string) (*Override, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	ov := &Override{Pool: p, Rift: rift, Signature: signature, UpdatedAt: time.Now().UTC()}
	b, err := json.Marshal(ov)
	if err != nil {
		return nil, fmt.Errorf("marshal override: %w", err)
	}

	key := p.Address.String()
	if err := s.backend.PutIndexed(ctx, overrideKey(key), b, constants.CacheKeyOverrideIndex, key); err != nil {
		return nil, fmt.Errorf("upsert override: %w", err)
	}
	return ov, nil
}

func (s *Store) Get(ctx context.Context, address solana.PublicKey) (*Override, error) {
	val, err := s.backend.Get(ctx, overrideKey(address.String()))
	if errors.Is(err, cache.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get override: %w", err)
	}

	var ov Override
	if err := json.Unmarshal(val, &ov); err != nil {
		return nil, fmt.Errorf("unmarshal override: %w", err)
	}
	return &ov, nil
}

func (s *Store) List(ctx context.Context) ([]*Override, error) {
	keys, err := s.backend.Members(ctx, constants.CacheKeyOverrideIndex)
	if err != nil {
		return nil, fmt.Errorf("list overrides index: %w", err)
	}

	redisKeys := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, err := ParseKey(k); err != nil {
			continue
		}
		redisKeys = append(redisKeys, overrideKey(k))
	}
	if len(redisKeys) == 0 {
		return []*Override{}, nil
	}

	vals, err := s.backend.GetMany(ctx, redisKeys...)
	if err != nil {
		return nil, fmt.Errorf("get overrides: %w", err)
	}

	out := make([]*Override, 0, len(vals))
	for _, v := range vals {
		if v == nil {
			continue
		}
		var ov Override
		if err := json.Unmarshal(v, &ov); err != nil {
			continue
		}
		out = append(out, &ov)
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, address solana.PublicKey) error {
	key := address.String()
	if err := s.backend.DeleteIndexed(ctx, overrideKey(key), constants.CacheKeyOverrideIndex, key); err != nil {
		return fmt.Errorf("delete override: %w", err)
	}
	return nil
}

func overrideKey(key string) string {
	return constants.CacheKeyOverridePrefix + key
}
