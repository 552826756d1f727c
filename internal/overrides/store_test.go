package overrides

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-zulfiqar/rift-liquidity/internal/cache"
	"github.com/aman-zulfiqar/rift-liquidity/internal/pool"
)

func testPool() pool.Pool {
	return pool.Pool{
		Address:    solana.NewWallet().PublicKey(),
		Family:     pool.FamilyConstantProduct,
		TokenAMint: solana.NewWallet().PublicKey(),
		TokenBMint: solana.NewWallet().PublicKey(),
		FeeBps:     25,
		ReserveA:   1_000,
		ConstantProduct: &pool.ConstantProductState{
			VaultA:       solana.NewWallet().PublicKey(),
			VaultB:       solana.NewWallet().PublicKey(),
			Liquidity:    big.NewInt(42),
			SqrtPrice:    big.NewInt(4_295_048_016),
			SqrtMinPrice: big.NewInt(4_295_048_016),
			SqrtMaxPrice: big.NewInt(1 << 62),
		},
	}
}

func stores(t *testing.T) map[string]cache.Store {
	out := map[string]cache.Store{"memory": cache.NewMemoryStore()}

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err == nil {
		require.NoError(t, client.FlushDB(ctx).Err())
		rs, err := cache.NewRedisStoreFromClient(client, nil)
		require.NoError(t, err)
		out["redis"] = rs
		t.Cleanup(func() {
			_ = client.FlushDB(context.Background()).Err()
			_ = client.Close()
		})
	} else {
		_ = client.Close()
	}
	return out
}

func TestStore_UpsertGetDelete(t *testing.T) {
	for name, backend := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s, err := NewStore(backend)
			require.NoError(t, err)
			ctx := context.Background()
			p := testPool()

			_, err = s.Get(ctx, p.Address)
			assert.ErrorIs(t, err, ErrNotFound)

			ov, err := s.Upsert(ctx, p, solana.PublicKey{}, "sig1")
			require.NoError(t, err)
			assert.NotZero(t, ov.UpdatedAt)

			got, err := s.Get(ctx, p.Address)
			require.NoError(t, err)
			assert.Equal(t, p.Address, got.Pool.Address)
			assert.Equal(t, pool.FamilyConstantProduct, got.Pool.Family)
			assert.Equal(t, 0, got.Pool.ConstantProduct.Liquidity.Cmp(big.NewInt(42)))
			assert.Equal(t, "sig1", got.Signature)

			list, err := s.List(ctx)
			require.NoError(t, err)
			assert.Len(t, list, 1)

			require.NoError(t, s.Delete(ctx, p.Address))
			_, err = s.Get(ctx, p.Address)
			assert.ErrorIs(t, err, ErrNotFound)

			list, err = s.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, list)
		})
	}
}

func TestStore_RejectsInvalidPool(t *testing.T) {
	s, err := NewStore(cache.NewMemoryStore())
	require.NoError(t, err)

	p := testPool()
	p.TokenBMint = p.TokenAMint
	_, err = s.Upsert(context.Background(), p, solana.PublicKey{}, "")
	assert.Error(t, err)
}

func TestNewStore_Nil(t *testing.T) {
	_, err := NewStore(nil)
	assert.Error(t, err)
}

func TestParseKey(t *testing.T) {
	_, err := ParseKey("not-a-key")
	assert.Error(t, err)

	pk := solana.NewWallet().PublicKey()
	got, err := ParseKey(pk.String())
	require.NoError(t, err)
	assert.Equal(t, pk, got)
}
