package orchestrator

import (
	"context"
	"encoding/json"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/aman-zulfiqar/rift-liquidity/internal/balance"
	"github.com/aman-zulfiqar/rift-liquidity/internal/cache"
	"github.com/aman-zulfiqar/rift-liquidity/internal/confirm"
	"github.com/aman-zulfiqar/rift-liquidity/internal/cpamm"
	"github.com/aman-zulfiqar/rift-liquidity/internal/feeledger"
	"github.com/aman-zulfiqar/rift-liquidity/internal/logger"
	"github.com/aman-zulfiqar/rift-liquidity/internal/overrides"
	"github.com/aman-zulfiqar/rift-liquidity/internal/pool"
	"github.com/aman-zulfiqar/rift-liquidity/internal/quote"
	"github.com/aman-zulfiqar/rift-liquidity/internal/rift"
	"github.com/aman-zulfiqar/rift-liquidity/internal/rpc"
	"github.com/aman-zulfiqar/rift-liquidity/internal/token"
	"github.com/aman-zulfiqar/rift-liquidity/internal/wallet"
)

func mintWithPrefix(b byte) solana.PublicKey {
	var pk solana.PublicKey
	pk[0] = b
	pk[31] = 7
	return pk
}

type fakePools struct {
	mu    sync.Mutex
	pools map[solana.PublicKey]*pool.Pool
}

func (f *fakePools) Classify(_ context.Context, addr solana.PublicKey) (*pool.Pool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pools[addr]
	if !ok {
		return nil, &pool.ClassificationError{Address: addr, Reason: "account not found"}
	}
	cp := *p
	return &cp, nil
}

type fakePositions map[solana.PublicKey][]pool.Position

func (f fakePositions) Positions(_ context.Context, _ solana.PublicKey, p *pool.Pool) ([]pool.Position, error) {
	return f[p.Address], nil
}

type fakeMints struct {
	mu    sync.Mutex
	mints map[solana.PublicKey]*token.MintInfo
}

func (f *fakeMints) Get(_ context.Context, mint solana.PublicKey) (*token.MintInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if info, ok := f.mints[mint]; ok {
		return info, nil
	}
	return &token.MintInfo{Address: mint, Program: solana.TokenProgramID, Decimals: 6}, nil
}

func (f *fakeMints) Put(info *token.MintInfo) {
	f.mu.Lock()
	f.mints[info.Address] = info
	f.mu.Unlock()
}

type fakeLedger struct {
	rift  *rift.Rift
	vault feeledger.Vault
}

func (f *fakeLedger) Load(context.Context, solana.PublicKey) (*rift.Rift, feeledger.Vault, error) {
	return f.rift, f.vault, nil
}

func (f *fakeLedger) Entry(_ context.Context, _, caller solana.PublicKey) (*rift.Rift, feeledger.Entry, error) {
	return f.rift, feeledger.ComputeClaimable(f.vault, caller), nil
}

type fakeBalances struct {
	mu       sync.Mutex
	values   map[solana.PublicKey]uint64
	rechecks int
}

func (f *fakeBalances) Get(_ context.Context, owner, mint solana.PublicKey) (*balance.Cached, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &balance.Cached{Owner: owner, Mint: mint, Value: f.values[mint]}, nil
}

func (f *fakeBalances) Recheck(_ context.Context, _, mint solana.PublicKey, accept func(uint64) bool) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rechecks++
	v := f.values[mint]
	if !accept(v) {
		return v, balance.ErrNotSettled
	}
	return v, nil
}

func (f *fakeBalances) ApplyDelta(_ context.Context, owner, mint solana.PublicKey, delta int64) (*balance.Cached, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := f.values[mint]
	switch {
	case delta >= 0:
		v += uint64(delta)
	case uint64(-delta) > v:
		v = 0
	default:
		v -= uint64(-delta)
	}
	f.values[mint] = v
	return &balance.Cached{Owner: owner, Mint: mint, Value: v}, nil
}

func (f *fakeBalances) value(mint solana.PublicKey) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[mint]
}

type fakeChain struct {
	mu        sync.Mutex
	simErr    json.RawMessage
	simulated int
}

func (c *fakeChain) GetLatestBlockhash(context.Context, string) (solana.Hash, uint64, error) {
	return solana.Hash{4, 2}, 100, nil
}

func (c *fakeChain) SimulateTransaction(context.Context, []byte, string) (*rpc.SimulationResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.simulated++
	return &rpc.SimulationResult{Err: c.simErr, Logs: []string{"Program log: test"}, UnitsConsumed: 5_000}, nil
}

type fakeConfirmer struct {
	mu        sync.Mutex
	submitted []*solana.Transaction
	confirmed []solana.Signature
	fail      map[int]error
}

func (c *fakeConfirmer) outcome(tx *solana.Transaction, index int) (*confirm.Record, error) {
	rec := &confirm.Record{
		ID:          uuid.New(),
		Signature:   tx.Signatures[0],
		SubmittedAt: time.Now(),
		FinishedAt:  time.Now(),
		Status:      confirm.StatusConfirmed,
		Attempts:    1,
	}
	err := c.fail[index]
	switch {
	case err == nil:
	case confirm.IsTimedOut(err):
		rec.Status = confirm.StatusTimedOut
	default:
		rec.Status = confirm.StatusFailed
	}
	return rec, err
}

func (c *fakeConfirmer) SubmitAndConfirm(_ context.Context, tx *solana.Transaction, _ time.Duration) (*confirm.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitted = append(c.submitted, tx)
	return c.outcome(tx, len(c.submitted)-1)
}

func (c *fakeConfirmer) Confirm(_ context.Context, sig solana.Signature, tx *solana.Transaction, _ time.Duration) (*confirm.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.confirmed = append(c.confirmed, sig)
	return c.outcome(tx, len(c.confirmed)-1)
}

type fakeRelay struct {
	tipAccount solana.PublicKey
	bundles    [][]*solana.Transaction
}

func (r *fakeRelay) SubmitBundle(_ context.Context, txs []*solana.Transaction) (string, error) {
	r.bundles = append(r.bundles, txs)
	return "bundle-1", nil
}

func (r *fakeRelay) TipInstruction(payer solana.PublicKey, lamports uint64) solana.Instruction {
	return token.NewSystemTransferIx(payer, r.tipAccount, lamports)
}

// harness wires a builder and a runner around the same fakes.
type harness struct {
	owner     solana.PublicKey
	pools     *fakePools
	positions fakePositions
	mints     *fakeMints
	ledger    *fakeLedger
	balances  *fakeBalances
	chain     *fakeChain
	confirmer *fakeConfirmer
	relay     *fakeRelay
	overrides *overrides.Store
	store     *cache.MemoryStore

	builder *Builder
	runner  *Runner
}

func newHarness(t *testing.T, bundling bool) *harness {
	t.Helper()
	priv, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	signer := wallet.FromKey(priv, nil, logger.Discard())

	store := cache.NewMemoryStore()
	ov, err := overrides.NewStore(store)
	require.NoError(t, err)

	h := &harness{
		owner:     priv.PublicKey(),
		pools:     &fakePools{pools: map[solana.PublicKey]*pool.Pool{}},
		positions: fakePositions{},
		mints:     &fakeMints{mints: map[solana.PublicKey]*token.MintInfo{}},
		ledger:    &fakeLedger{},
		balances:  &fakeBalances{values: map[solana.PublicKey]uint64{}},
		chain:     &fakeChain{},
		confirmer: &fakeConfirmer{fail: map[int]error{}},
		relay:     &fakeRelay{tipAccount: solana.NewWallet().PublicKey()},
		overrides: ov,
		store:     store,
	}
	engine := quote.NewEngine(h.pools, nil, h.mints, quote.Config{}, logger.Discard())
	h.builder = NewBuilder(Deps{
		Pools:     h.pools,
		Positions: h.positions,
		Quotes:    engine,
		Mints:     h.mints,
		Ledger:    h.ledger,
		Balances:  h.balances,
	}, BuilderConfig{
		DLMMPresetParameter: solana.NewWallet().PublicKey(),
		BundlingAvailable:   bundling,
	}, logger.Discard())

	deps := RunnerDeps{
		Chain:     h.chain,
		Signer:    signer,
		Confirmer: h.confirmer,
		Balances:  h.balances,
		Pools:     h.pools,
		Overrides: ov,
		Publisher: store,
	}
	if bundling {
		deps.Relay = h.relay
	}
	h.runner = NewRunner(deps, RunnerConfig{}, logger.Discard())
	return h
}

// cpPool registers a constant-product pool priced at 2 B per A.
func (h *harness) cpPool(t *testing.T, a, b solana.PublicKey, reserveA, reserveB uint64) *pool.Pool {
	t.Helper()
	sqrt, err := cpamm.SqrtPriceFromRaw(decimal.NewFromInt(2))
	require.NoError(t, err)
	p := &pool.Pool{
		Address:    solana.NewWallet().PublicKey(),
		Family:     pool.FamilyConstantProduct,
		TokenAMint: a,
		TokenBMint: b,
		FeeBps:     25,
		ReserveA:   reserveA,
		ReserveB:   reserveB,
		ConstantProduct: &pool.ConstantProductState{
			VaultA:       solana.NewWallet().PublicKey(),
			VaultB:       solana.NewWallet().PublicKey(),
			Liquidity:    new(big.Int).Lsh(big.NewInt(1), 80),
			SqrtPrice:    sqrt,
			SqrtMinPrice: cpamm.MinSqrtPrice,
			SqrtMaxPrice: cpamm.MaxSqrtPrice,
		},
	}
	h.pools.mu.Lock()
	h.pools.pools[p.Address] = p
	h.pools.mu.Unlock()
	return p
}
