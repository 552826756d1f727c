package orchestrator

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-zulfiqar/rift-liquidity/internal/balance"
	"github.com/aman-zulfiqar/rift-liquidity/internal/confirm"
	"github.com/aman-zulfiqar/rift-liquidity/internal/constants"
	"github.com/aman-zulfiqar/rift-liquidity/internal/cpamm"
	"github.com/aman-zulfiqar/rift-liquidity/internal/feeledger"
	"github.com/aman-zulfiqar/rift-liquidity/internal/pool"
	"github.com/aman-zulfiqar/rift-liquidity/internal/rift"
	"github.com/aman-zulfiqar/rift-liquidity/internal/token"
	"github.com/aman-zulfiqar/rift-liquidity/internal/withdraw"
)

func createPoolIntent(h *harness) CreatePoolIntent {
	price := decimal.NewFromInt(2)
	return CreatePoolIntent{
		Owner:       h.owner,
		BaseMint:    mintWithPrefix(0x10),
		QuoteMint:   mintWithPrefix(0x20),
		BaseAmount:  1_000_000,
		QuoteAmount: 2_000_000,
		Family:      pool.FamilyConstantProduct,
		ManualPrice: &price,
	}
}

func TestCreatePool_SequentialRun(t *testing.T) {
	h := newHarness(t, false)
	in := createPoolIntent(h)
	h.balances.values[in.BaseMint] = 5_000_000
	h.balances.values[in.QuoteMint] = 5_000_000

	plan, err := h.builder.CreatePool(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, ModeSequential, plan.Mode)
	assert.Equal(t, []string{"create", "deposit"}, plan.Labels())

	var events []Progress
	res, err := h.runner.Run(context.Background(), plan, func(p Progress) { events = append(events, p) })
	require.NoError(t, err)
	assert.True(t, res.Completed)
	require.Len(t, res.Records, 2)
	assert.Len(t, h.confirmer.submitted, 2)
	assert.Equal(t, 2, h.chain.simulated)
	assert.Equal(t, 1, h.balances.rechecks, "the deposit is built from a re-read balance")

	assert.Equal(t, uint64(4_000_000), h.balances.value(in.BaseMint))
	assert.Equal(t, uint64(3_000_000), h.balances.value(in.QuoteMint))

	addr, err := cpamm.DeriveCustomizablePool(in.BaseMint, in.QuoteMint)
	require.NoError(t, err)
	ov, err := h.overrides.Get(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), ov.Pool.ReserveA)
	assert.Equal(t, uint64(2_000_000), ov.Pool.ReserveB)
	assert.Equal(t, res.Records[1].Signature.String(), ov.Signature)

	require.NotEmpty(t, events)
	assert.Equal(t, "confirmed deposit", events[len(events)-1].Status)
	assert.Equal(t, 2, events[len(events)-1].Total)
}

func TestCreatePool_DepositUsesObservedBalance(t *testing.T) {
	h := newHarness(t, false)
	in := createPoolIntent(h)
	in.QuoteAmount = 0
	h.mints.Put(&token.MintInfo{Address: in.BaseMint, Program: token.Token2022ProgramID, Decimals: 6, FeeBearing: true})
	// less arrived than was asked for
	h.balances.values[in.BaseMint] = 1_000_000

	plan, err := h.builder.CreatePool(context.Background(), in)
	require.NoError(t, err)

	h.balances.values[in.BaseMint] = 900_000
	built, err := plan.Steps[1].Build(context.Background(), &StepContext{Plan: plan})
	require.NoError(t, err)
	require.NotNil(t, built.CreatedPool)
	// 900_000 less the 1% fallback haircut
	assert.Equal(t, uint64(891_000), built.CreatedPool.ReserveA)
	assert.Zero(t, built.CreatedPool.ReserveB)
	assert.Equal(t, []Requirement{{Mint: in.BaseMint, Amount: 900_000}}, built.Requirements)
}

func TestCreatePool_WrappedBaseWaitsForWrap(t *testing.T) {
	h := newHarness(t, false)
	in := createPoolIntent(h)
	in.QuoteAmount = 0
	riftAddr := solana.NewWallet().PublicKey()
	in.Rift = &riftAddr
	h.ledger.rift = &rift.Rift{
		UnderlyingMint: mintWithPrefix(0x30),
		RiftMint:       in.BaseMint,
		WrapFeeBps:     30,
	}
	// the owner already holds some of the rift token
	h.balances.values[in.BaseMint] = 250_000
	h.balances.values[h.ledger.rift.UnderlyingMint] = 5_000_000

	plan, err := h.builder.CreatePool(context.Background(), in)
	require.NoError(t, err)

	// node still serves the pre-wrap balance
	_, err = plan.Steps[1].Build(context.Background(), &StepContext{Plan: plan})
	assert.ErrorIs(t, err, balance.ErrNotSettled)

	// 1_000_000 wrapped less the 30 bps wrap fee
	h.balances.values[in.BaseMint] = 250_000 + 997_000
	built, err := plan.Steps[1].Build(context.Background(), &StepContext{Plan: plan})
	require.NoError(t, err)
	assert.Equal(t, uint64(997_000), built.CreatedPool.ReserveA)
	assert.Equal(t, []Requirement{{Mint: in.BaseMint, Amount: 997_000}}, built.Requirements)
}

func TestRun_StopsAtFirstFailure(t *testing.T) {
	h := newHarness(t, false)
	in := createPoolIntent(h)
	h.balances.values[in.BaseMint] = 5_000_000
	h.balances.values[in.QuoteMint] = 5_000_000
	h.confirmer.fail[0] = &confirm.OnChainExecutionError{Name: "AccountInUse", InstructionIndex: -1}

	plan, err := h.builder.CreatePool(context.Background(), in)
	require.NoError(t, err)

	res, err := h.runner.Run(context.Background(), plan, nil)
	var onChain *confirm.OnChainExecutionError
	require.ErrorAs(t, err, &onChain)
	assert.False(t, res.Completed)
	require.Len(t, res.Records, 1)
	assert.Equal(t, confirm.StatusFailed, res.Records[0].Status)
	assert.Zero(t, h.balances.rechecks, "later steps are never built")
	assert.Equal(t, uint64(5_000_000), h.balances.value(in.BaseMint))
}

func TestRun_TimeoutIsReportedAsAmbiguous(t *testing.T) {
	h := newHarness(t, false)
	in := createPoolIntent(h)
	h.balances.values[in.BaseMint] = 5_000_000
	h.balances.values[in.QuoteMint] = 5_000_000
	h.confirmer.fail[0] = confirm.ErrTimedOut

	plan, err := h.builder.CreatePool(context.Background(), in)
	require.NoError(t, err)

	var last Progress
	res, err := h.runner.Run(context.Background(), plan, func(p Progress) { last = p })
	assert.True(t, confirm.IsTimedOut(err))
	assert.Equal(t, confirm.StatusTimedOut, res.Records[0].Status)
	assert.Equal(t, "timed out create", last.Status)
	assert.Len(t, h.confirmer.submitted, 1, "a timed-out step is not resubmitted")
}

func TestRun_InsufficientBalance(t *testing.T) {
	h := newHarness(t, false)
	a, b := mintWithPrefix(0x10), mintWithPrefix(0x20)
	p := h.cpPool(t, a, b, 1_000_000, 2_000_000)
	h.balances.values[a] = 1_000_000
	h.balances.values[b] = 10

	plan, err := h.builder.AddLiquidity(context.Background(), AddLiquidityIntent{Owner: h.owner, Pool: p.Address, SourceMint: a, Amount: 100_000})
	require.NoError(t, err)

	_, err = h.runner.Run(context.Background(), plan, nil)
	var insufficient *InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, b, insufficient.Mint)
	assert.Equal(t, uint64(200_000), insufficient.Required)
	assert.Equal(t, uint64(10), insufficient.Available)
	assert.Zero(t, h.chain.simulated)
	assert.Empty(t, h.confirmer.submitted)
}

func TestRun_StaleQuoteIsRejected(t *testing.T) {
	h := newHarness(t, false)
	a, b := mintWithPrefix(0x10), mintWithPrefix(0x20)
	p := h.cpPool(t, a, b, 1_000_000, 2_000_000)
	h.balances.values[a] = 1_000_000
	h.balances.values[b] = 1_000_000

	plan, err := h.builder.AddLiquidity(context.Background(), AddLiquidityIntent{Owner: h.owner, Pool: p.Address, SourceMint: a, Amount: 100_000})
	require.NoError(t, err)
	assert.Equal(t, uint64(200_000), plan.Summary["amount_b"])

	h.pools.mu.Lock()
	h.pools.pools[p.Address].ReserveB = 3_000_000
	h.pools.mu.Unlock()

	_, err = h.runner.Run(context.Background(), plan, nil)
	var stale *pool.StaleQuoteError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, p.Address, stale.Pool)
	assert.Empty(t, h.confirmer.submitted)
}

func TestAddLiquidity_SingleSided(t *testing.T) {
	h := newHarness(t, false)
	a, b := mintWithPrefix(0x10), mintWithPrefix(0x20)

	fresh := h.cpPool(t, a, b, 0, 0)
	plan, err := h.builder.AddLiquidity(context.Background(), AddLiquidityIntent{
		Owner: h.owner, Pool: fresh.Address, SourceMint: a, Amount: 50_000, SingleSided: true,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), plan.Summary["amount_b"])
	_, quoted := plan.Summary["quote"]
	assert.False(t, quoted)

	accrued := h.cpPool(t, a, b, 50_000, 1)
	_, err = h.builder.AddLiquidity(context.Background(), AddLiquidityIntent{
		Owner: h.owner, Pool: accrued.Address, SourceMint: a, Amount: 50_000, SingleSided: true,
	})
	assert.ErrorIs(t, err, pool.ErrNoLongerSingleSided)
}

func riftFixture(h *harness, treasury, partner *solana.PublicKey) solana.PublicKey {
	underlying := mintWithPrefix(0x30)
	h.ledger.rift = &rift.Rift{
		Name:           "rTEST",
		UnderlyingMint: underlying,
		RiftMint:       solana.NewWallet().PublicKey(),
		FeesVault:      solana.NewWallet().PublicKey(),
		PartnerWallet:  partner,
		TreasuryWallet: treasury,
		WrapFeeBps:     30,
	}
	h.ledger.vault = feeledger.Vault{
		ID:             h.ledger.rift.FeesVault,
		TotalAvailable: 1_000,
		Partner:        partner,
		Treasury:       treasury,
		Decimals:       6,
	}
	return solana.NewWallet().PublicKey()
}

func TestClaimFees_PartnerReceivesHalf(t *testing.T) {
	h := newHarness(t, false)
	treasury := solana.NewWallet().PublicKey()
	riftAddr := riftFixture(h, &treasury, &h.owner)

	plan, err := h.builder.ClaimFees(context.Background(), ClaimFeesIntent{Caller: h.owner, Rift: riftAddr})
	require.NoError(t, err)
	dist := plan.Summary["distribution"].(*feeledger.Distribution)
	assert.Equal(t, uint64(500), dist.Entered)
	assert.Equal(t, uint64(999), dist.Amount)

	res, err := h.runner.Run(context.Background(), plan, nil)
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Equal(t, uint64(499), h.balances.value(h.ledger.rift.UnderlyingMint))
}

func TestClaimFees_RequiresTreasury(t *testing.T) {
	h := newHarness(t, false)
	riftAddr := riftFixture(h, nil, &h.owner)

	_, err := h.builder.ClaimFees(context.Background(), ClaimFeesIntent{Caller: h.owner, Rift: riftAddr})
	var pe rift.ProgramError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, rift.CodeTreasuryNotSet, pe.Code)
}

func TestUnwrap_FloorCoversBothFees(t *testing.T) {
	h := newHarness(t, false)
	riftAddr := riftFixture(h, nil, nil)
	h.ledger.rift.UnwrapFeeBps = 30
	underlying := h.ledger.rift.UnderlyingMint
	h.mints.Put(token.NewPendingFeeMint(underlying, 6, 100))
	h.balances.values[h.ledger.rift.RiftMint] = 1_500_000

	plan, err := h.builder.Unwrap(context.Background(), UnwrapIntent{Owner: h.owner, Rift: riftAddr, Amount: 1_000_000})
	require.NoError(t, err)
	assert.Equal(t, IntentUnwrap, plan.Intent)
	assert.Equal(t, ModeSequential, plan.Mode)
	require.Len(t, plan.Steps, 1)

	// 30 bps unwrap fee, then 1% transfer fee on the way out of the vault
	expected := uint64(987_030)
	minOut := cpamm.ApplySlippage(expected, constants.DefaultSlippageBps)
	assert.Equal(t, expected, plan.Summary["expected_underlying"])
	assert.Equal(t, minOut, plan.Summary["min_underlying_out"])

	built, err := plan.Steps[0].Build(context.Background(), &StepContext{Plan: plan})
	require.NoError(t, err)
	assert.Equal(t, []Requirement{{Mint: h.ledger.rift.RiftMint, Amount: 1_000_000}}, built.Requirements)

	// underlying ATA creation, then the unwrap
	require.Len(t, built.Instructions, 2)
	ix := built.Instructions[1]
	assert.Equal(t, rift.ProgramID, ix.ProgramID())
	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 8+8+8)
	assert.Equal(t, uint64(1_000_000), binary.LittleEndian.Uint64(data[8:]))
	assert.Equal(t, minOut, binary.LittleEndian.Uint64(data[16:]))

	res, err := h.runner.Run(context.Background(), plan, nil)
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Equal(t, uint64(500_000), h.balances.value(h.ledger.rift.RiftMint))
	assert.Equal(t, expected, h.balances.value(underlying))
}

func TestUnwrap_RejectsZeroAmount(t *testing.T) {
	h := newHarness(t, false)
	riftAddr := riftFixture(h, nil, nil)
	_, err := h.builder.Unwrap(context.Background(), UnwrapIntent{Owner: h.owner, Rift: riftAddr})
	assert.Error(t, err)
}

func TestRun_SimulationFailureIsDecoded(t *testing.T) {
	h := newHarness(t, false)
	treasury := solana.NewWallet().PublicKey()
	riftAddr := riftFixture(h, &treasury, &h.owner)
	// two ATA creations precede the distribution
	h.chain.simErr = json.RawMessage(`{"InstructionError":[2,{"Custom":6062}]}`)

	plan, err := h.builder.ClaimFees(context.Background(), ClaimFeesIntent{Caller: h.owner, Rift: riftAddr})
	require.NoError(t, err)

	_, err = h.runner.Run(context.Background(), plan, nil)
	var sim *SimulationFailedError
	require.ErrorAs(t, err, &sim)
	require.NotNil(t, sim.Err)
	assert.Equal(t, "SlippageExceeded", sim.Err.Name)
	assert.Equal(t, rift.ProgramID, sim.Err.Program)
	assert.Equal(t, []string{"Program log: test"}, sim.Logs)
	assert.Empty(t, h.confirmer.submitted)
}

func launchIntent(h *harness, family pool.Family) LaunchIntent {
	price := decimal.NewFromInt(3)
	return LaunchIntent{
		Creator:        h.owner,
		UnderlyingMint: mintWithPrefix(0x30),
		Name:           "TEST",
		TransferFeeBps: 80,
		WrapAmount:     1_000_000,
		QuoteMint:      mintWithPrefix(0x20),
		QuoteAmount:    3_000_000,
		Family:         family,
		ManualPrice:    &price,
	}
}

func TestLaunch_RequiresBundling(t *testing.T) {
	h := newHarness(t, false)
	_, err := h.builder.Launch(context.Background(), launchIntent(h, pool.FamilyConstantProduct))
	assert.ErrorIs(t, err, ErrPartialBundleUnavailable)
}

func TestLaunch_BinBasedPlansThreeTransactions(t *testing.T) {
	h := newHarness(t, true)
	plan, err := h.builder.Launch(context.Background(), launchIntent(h, pool.FamilyBinBased))
	require.NoError(t, err)
	assert.Equal(t, ModeAtomicBundle, plan.Mode)
	assert.Equal(t, []string{"create rift", "create pair", "wrap and deposit"}, plan.Labels())
}

func TestLaunch_BundleRun(t *testing.T) {
	h := newHarness(t, true)
	in := launchIntent(h, pool.FamilyConstantProduct)
	h.balances.values[in.UnderlyingMint] = 2_000_000
	h.balances.values[in.QuoteMint] = 5_000_000

	plan, err := h.builder.Launch(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []string{"create rift", "wrap and deposit"}, plan.Labels())

	addrs, err := rift.Derive(in.UnderlyingMint, in.Creator)
	require.NoError(t, err)
	assert.Equal(t, addrs.Rift, plan.Rift)
	pending, err := h.mints.Get(context.Background(), addrs.RiftMint)
	require.NoError(t, err)
	assert.True(t, pending.FeeBearing, "the rift mint is registered before it exists")

	lastBuilt, err := plan.Steps[1].Build(context.Background(), &StepContext{Plan: plan})
	require.NoError(t, err)
	built := len(lastBuilt.Instructions)

	res, err := h.runner.Run(context.Background(), plan, nil)
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Equal(t, "bundle-1", res.BundleID)
	require.Len(t, h.relay.bundles, 1)
	txs := h.relay.bundles[0]
	require.Len(t, txs, 2)
	assert.Equal(t, txs[0].Message.RecentBlockhash, txs[1].Message.RecentBlockhash)

	assert.Len(t, txs[1].Message.Instructions, built+1, "the tip rides on the last transaction")
	again, err := plan.Steps[1].Build(context.Background(), &StepContext{Plan: plan})
	require.NoError(t, err)
	assert.Len(t, again.Instructions, built, "the plan itself is left untouched")

	assert.Equal(t, 1, h.chain.simulated)
	assert.Empty(t, h.confirmer.submitted)
	assert.Len(t, h.confirmer.confirmed, 2)
	assert.Equal(t, uint64(1_000_000), h.balances.value(in.UnderlyingMint))
	assert.Equal(t, uint64(2_000_000), h.balances.value(in.QuoteMint))

	overrides, err := h.overrides.List(context.Background())
	require.NoError(t, err)
	require.Len(t, overrides, 1)
	assert.Equal(t, addrs.Rift, overrides[0].Rift)
}

func TestRun_BundleWithoutRelay(t *testing.T) {
	h := newHarness(t, true)
	in := launchIntent(h, pool.FamilyConstantProduct)
	plan, err := h.builder.Launch(context.Background(), in)
	require.NoError(t, err)

	h.runner.Relay = nil
	_, err = h.runner.Run(context.Background(), plan, nil)
	assert.ErrorIs(t, err, ErrPartialBundleUnavailable)
	assert.Zero(t, h.chain.simulated)
}

func TestWithdraw_FullRun(t *testing.T) {
	h := newHarness(t, false)
	a, b := mintWithPrefix(0x10), mintWithPrefix(0x20)
	p := h.cpPool(t, a, b, 1_000_000, 2_000_000)
	for _, liq := range []int64{1 << 40, 1 << 41, 1 << 42} {
		h.positions[p.Address] = append(h.positions[p.Address], pool.NewSinglePosition(&pool.SinglePosition{
			Address:    solana.NewWallet().PublicKey(),
			Pool:       p.Address,
			NFTMint:    solana.NewWallet().PublicKey(),
			NFTAccount: solana.NewWallet().PublicKey(),
			Liquidity:  big.NewInt(liq),
		}))
	}

	plan, wp, err := h.builder.Withdraw(context.Background(), WithdrawIntent{
		Owner:      h.owner,
		Pools:      []solana.PublicKey{p.Address},
		Mode:       withdraw.ModePercentage,
		Percentage: decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	require.Len(t, wp.Steps, 2)
	assert.Len(t, plan.Steps, 2)

	res, err := h.runner.Run(context.Background(), plan, nil)
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Len(t, h.confirmer.submitted, 2)
}

func TestRun_CancelledBeforeSubmission(t *testing.T) {
	h := newHarness(t, false)
	in := createPoolIntent(h)
	plan, err := h.builder.CreatePool(context.Background(), in)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.runner.Run(ctx, plan, nil)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, h.confirmer.submitted)
}

func TestRun_RejectsForeignOwner(t *testing.T) {
	h := newHarness(t, false)
	plan := newPlan(IntentClaimFees, ModeSequential, solana.NewWallet().PublicKey())
	_, err := h.runner.Run(context.Background(), plan, nil)
	assert.Error(t, err)
}

func TestRun_PublishesProgress(t *testing.T) {
	h := newHarness(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := h.store.Subscribe(ctx, constants.ChannelPlanProgress)
	require.NoError(t, err)

	plan := newPlan(IntentWithdraw, ModeSequential, h.owner)
	plan.add("noop", static(&Built{}))
	res, err := h.runner.Run(context.Background(), plan, nil)
	require.NoError(t, err)
	assert.True(t, res.Completed)

	var first Progress
	require.NoError(t, json.Unmarshal(<-events, &first))
	assert.Equal(t, plan.ID, first.PlanID)
	assert.Equal(t, "building noop", first.Status)
}
