package orchestrator

import (
	"context"
	"fmt"
	"math"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/rift-liquidity/internal/balance"
	"github.com/aman-zulfiqar/rift-liquidity/internal/constants"
	"github.com/aman-zulfiqar/rift-liquidity/internal/cpamm"
	"github.com/aman-zulfiqar/rift-liquidity/internal/dlmm"
	"github.com/aman-zulfiqar/rift-liquidity/internal/feeledger"
	"github.com/aman-zulfiqar/rift-liquidity/internal/pool"
	"github.com/aman-zulfiqar/rift-liquidity/internal/quote"
	"github.com/aman-zulfiqar/rift-liquidity/internal/rift"
	"github.com/aman-zulfiqar/rift-liquidity/internal/rpc"
	"github.com/aman-zulfiqar/rift-liquidity/internal/token"
)

// PoolReader returns a pool with reserves read at call time.
type PoolReader interface {
	Classify(ctx context.Context, address solana.PublicKey) (*pool.Pool, error)
}

type PositionReader interface {
	Positions(ctx context.Context, owner solana.PublicKey, p *pool.Pool) ([]pool.Position, error)
}

type Quoter interface {
	Deposit(ctx context.Context, poolAddress, sourceMint solana.PublicKey, amount uint64) (*quote.DepositQuote, error)
	Creation(ctx context.Context, req quote.CreationRequest) (*quote.CreationQuote, error)
}

// MintRegistry resolves mints and accepts mints that will only exist once a
// pending transaction lands.
type MintRegistry interface {
	Get(ctx context.Context, mint solana.PublicKey) (*token.MintInfo, error)
	Put(info *token.MintInfo)
}

type FeeLedger interface {
	Load(ctx context.Context, riftAddress solana.PublicKey) (*rift.Rift, feeledger.Vault, error)
	Entry(ctx context.Context, riftAddress, caller solana.PublicKey) (*rift.Rift, feeledger.Entry, error)
}

// Balances is the balance reconciler as the orchestrator uses it.
type Balances interface {
	Get(ctx context.Context, owner, mint solana.PublicKey) (*balance.Cached, error)
	Recheck(ctx context.Context, owner, mint solana.PublicKey, accept func(uint64) bool) (uint64, error)
	ApplyDelta(ctx context.Context, owner, mint solana.PublicKey, delta int64) (*balance.Cached, error)
}

// AccountReader checks which accounts already exist.
type AccountReader interface {
	GetMultipleAccounts(ctx context.Context, addresses []solana.PublicKey, commitment string) ([]*rpc.AccountInfo, error)
}

type Deps struct {
	Pools     PoolReader
	Positions PositionReader
	Quotes    Quoter
	Mints     MintRegistry
	Ledger    FeeLedger
	Balances  Balances
	// Accounts is optional; without it bin arrays of existing pairs are assumed
	// to be allocated.
	Accounts AccountReader
}

type BuilderConfig struct {
	SlippageBps           uint16
	FallbackHaircutBps    uint16
	DistributionMarginPpm uint64
	Commitment            string

	DLMMPresetParameter solana.PublicKey
	DLMMBinStep         uint16
	PositionWidth       int32
	CPFeeBps            uint16

	// BundlingAvailable is false when no relay is configured. Intents that need
	// atomic submission are then refused before anything is built.
	BundlingAvailable bool
}

// Builder turns intents into transaction plans. It never signs or submits.
type Builder struct {
	Deps
	cfg BuilderConfig
	log *logrus.Logger
}

func NewBuilder(deps Deps, cfg BuilderConfig, log *logrus.Logger) *Builder {
	if log == nil {
		log = logrus.New()
	}
	if cfg.SlippageBps == 0 {
		cfg.SlippageBps = constants.DefaultSlippageBps
	}
	if cfg.FallbackHaircutBps == 0 {
		cfg.FallbackHaircutBps = constants.FallbackHaircutBps
	}
	if cfg.DistributionMarginPpm == 0 {
		cfg.DistributionMarginPpm = constants.DistributionMarginPpm
	}
	if cfg.Commitment == "" {
		cfg.Commitment = "confirmed"
	}
	if cfg.DLMMBinStep == 0 {
		cfg.DLMMBinStep = constants.DefaultDLMMBinStep
	}
	if cfg.PositionWidth <= 0 {
		cfg.PositionWidth = constants.DefaultPositionWidth
	}
	if cfg.CPFeeBps == 0 {
		cfg.CPFeeBps = constants.DefaultCPFeeBps
	}
	return &Builder{Deps: deps, cfg: cfg, log: log}
}

func (b *Builder) BundlingAvailable() bool { return b.cfg.BundlingAvailable }

// need records a balance the step requires without an expected change.
func (bt *Built) need(mint solana.PublicKey, amount uint64) {
	if amount > 0 {
		bt.Requirements = append(bt.Requirements, Requirement{Mint: mint, Amount: amount})
	}
}

// spend records a requirement and the matching outflow.
func (bt *Built) spend(mint solana.PublicKey, amount uint64) {
	if amount == 0 {
		return
	}
	bt.need(mint, amount)
	bt.Deltas = append(bt.Deltas, Delta{Mint: mint, Amount: -signed(amount)})
}

func (bt *Built) receive(mint solana.PublicKey, amount uint64) {
	if amount > 0 {
		bt.Deltas = append(bt.Deltas, Delta{Mint: mint, Amount: signed(amount)})
	}
}

func signed(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}

func ataOf(owner solana.PublicKey, info *token.MintInfo) (solana.PublicKey, error) {
	ata, _, err := token.FindAssociatedTokenAddress(owner, info.Address, info.Program)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("ata of %s for %s: %w", owner, info.Address, err)
	}
	return ata, nil
}

// tokenAccount makes sure the owner's ATA for info exists. Native SOL is wrapped
// into it when wrapLamports is positive.
func tokenAccount(owner solana.PublicKey, info *token.MintInfo, wrapLamports uint64) ([]solana.Instruction, solana.PublicKey, error) {
	if info.Address.Equals(token.NativeMint) && wrapLamports > 0 {
		return token.WrapSOLInstructions(owner, wrapLamports)
	}
	ata, err := ataOf(owner, info)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	return []solana.Instruction{token.NewCreateIdempotentATAIx(owner, ata, owner, info.Address, info.Program)}, ata, nil
}

// unwrapNative closes the owner's WSOL account so withdrawn SOL lands as lamports.
func unwrapNative(owner solana.PublicKey, infos ...*token.MintInfo) ([]solana.Instruction, error) {
	for _, info := range infos {
		if !info.Address.Equals(token.NativeMint) {
			continue
		}
		ata, err := ataOf(owner, info)
		if err != nil {
			return nil, err
		}
		return []solana.Instruction{token.NewCloseAccountIx(ata, owner, owner, info.Program)}, nil
	}
	return nil, nil
}

func (b *Builder) mintPair(ctx context.Context, a, bm solana.PublicKey) (*token.MintInfo, *token.MintInfo, error) {
	infoA, err := b.Mints.Get(ctx, a)
	if err != nil {
		return nil, nil, err
	}
	infoB, err := b.Mints.Get(ctx, bm)
	if err != nil {
		return nil, nil, err
	}
	return infoA, infoB, nil
}

func (b *Builder) haircut(amount uint64, info *token.MintInfo) uint64 {
	return token.Haircut(amount, info, b.cfg.FallbackHaircutBps)
}

// withSlippage raises amount by the configured slippage; used for maxima.
func (b *Builder) withSlippage(amount uint64) uint64 {
	v := new(big.Int).SetUint64(amount)
	v.Mul(v, big.NewInt(int64(constants.BpsDenominator)+int64(b.cfg.SlippageBps)))
	v.Div(v, big.NewInt(constants.BpsDenominator))
	if !v.IsUint64() {
		return math.MaxUint64
	}
	return v.Uint64()
}

// activeBinSlippage converts the slippage tolerance into a number of bins.
func (b *Builder) activeBinSlippage(binStep uint16) int32 {
	if binStep == 0 {
		return 1
	}
	n := (int32(b.cfg.SlippageBps) + int32(binStep) - 1) / int32(binStep)
	return max(n, 1)
}

func pairAccounts(p *pool.Pool, infoX, infoY *token.MintInfo) dlmm.PairAccounts {
	return dlmm.PairAccounts{
		LbPair:        p.Address,
		TokenXMint:    p.TokenAMint,
		TokenYMint:    p.TokenBMint,
		ReserveX:      p.Bin.ReserveXAccount,
		ReserveY:      p.Bin.ReserveYAccount,
		TokenXProgram: infoX.Program,
		TokenYProgram: infoY.Program,
	}
}

func poolAccounts(p *pool.Pool, infoA, infoB *token.MintInfo) cpamm.PoolAccounts {
	return cpamm.PoolAccounts{
		Pool:          p.Address,
		TokenAMint:    p.TokenAMint,
		TokenBMint:    p.TokenBMint,
		TokenAVault:   p.ConstantProduct.VaultA,
		TokenBVault:   p.ConstantProduct.VaultB,
		TokenAProgram: infoA.Program,
		TokenBProgram: infoB.Program,
	}
}

// binArrayIxs allocates the bin arrays covering [lower, upper]. With skipExisting
// and an account reader, arrays that already exist are left alone.
func (b *Builder) binArrayIxs(ctx context.Context, funder, lbPair solana.PublicKey, lower, upper int32, skipExisting bool) ([]solana.Instruction, error) {
	first, last := dlmm.BinArrayIndex(lower), dlmm.BinArrayIndex(upper)
	indexes := make([]int64, 0, last-first+1)
	for idx := first; idx <= last; idx++ {
		indexes = append(indexes, idx)
	}

	if skipExisting {
		if b.Accounts == nil {
			return nil, nil
		}
		addrs := make([]solana.PublicKey, len(indexes))
		for i, idx := range indexes {
			addr, err := dlmm.DeriveBinArray(lbPair, idx)
			if err != nil {
				return nil, err
			}
			addrs[i] = addr
		}
		accs, err := b.Accounts.GetMultipleAccounts(ctx, addrs, b.cfg.Commitment)
		if err != nil {
			return nil, fmt.Errorf("read bin arrays: %w", err)
		}
		missing := indexes[:0]
		for i, idx := range indexes {
			if i >= len(accs) || accs[i] == nil {
				missing = append(missing, idx)
			}
		}
		indexes = missing
	}

	ixs := make([]solana.Instruction, 0, len(indexes))
	for _, idx := range indexes {
		ix, err := dlmm.NewInitializeBinArrayIx(funder, lbPair, idx)
		if err != nil {
			return nil, err
		}
		ixs = append(ixs, ix)
	}
	return ixs, nil
}

// binSetup is a bin-based pair that is about to be created.
type binSetup struct {
	pool  *pool.Pool
	pair  dlmm.PairAccounts
	lower int32
	upper int32
	ixs   []solana.Instruction
}

// newBinPair prepares the pair at the creation quote's storage price and allocates
// the bin arrays its first position needs.
func (b *Builder) newBinPair(ctx context.Context, owner solana.PublicKey, q *quote.CreationQuote, infoA, infoB *token.MintInfo) (*binSetup, error) {
	if b.cfg.DLMMPresetParameter.IsZero() {
		return nil, fmt.Errorf("no dlmm preset parameter configured")
	}
	lbPair, err := dlmm.DerivePair(b.cfg.DLMMPresetParameter, q.TokenAMint, q.TokenBMint)
	if err != nil {
		return nil, err
	}
	reserveX, err := dlmm.DeriveReserve(lbPair, q.TokenAMint)
	if err != nil {
		return nil, err
	}
	reserveY, err := dlmm.DeriveReserve(lbPair, q.TokenBMint)
	if err != nil {
		return nil, err
	}

	activeID, err := dlmm.BinIDFromPrice(dlmm.RawPrice(q.PoolPrice, q.DecimalsA, q.DecimalsB), b.cfg.DLMMBinStep)
	if err != nil {
		return nil, err
	}
	xOnly := q.SingleSided && q.BaseSide == pool.SideA
	yOnly := q.SingleSided && q.BaseSide == pool.SideB
	lower, upper := dlmm.DepositRange(activeID, b.cfg.PositionWidth, xOnly, yOnly)

	s := &binSetup{
		pool: &pool.Pool{
			Address:    lbPair,
			Family:     pool.FamilyBinBased,
			TokenAMint: q.TokenAMint,
			TokenBMint: q.TokenBMint,
			Bin: &pool.BinState{
				ActiveID:        activeID,
				BinStep:         b.cfg.DLMMBinStep,
				ReserveXAccount: reserveX,
				ReserveYAccount: reserveY,
			},
		},
		lower: lower,
		upper: upper,
	}
	s.pair = pairAccounts(s.pool, infoA, infoB)

	initPair, err := dlmm.NewInitializePairIx(owner, b.cfg.DLMMPresetParameter, s.pair, activeID)
	if err != nil {
		return nil, err
	}
	arrays, err := b.binArrayIxs(ctx, owner, lbPair, lower, upper, false)
	if err != nil {
		return nil, err
	}
	s.ixs = append([]solana.Instruction{initPair}, arrays...)
	return s, nil
}

// binDeposit opens a position over [lower, upper] and deposits into it.
func (b *Builder) binDeposit(owner solana.PublicKey, p *pool.Pool, pair dlmm.PairAccounts, user dlmm.UserAccounts, lower, upper int32, amountX, amountY uint64) ([]solana.Instruction, solana.PrivateKey, error) {
	position := solana.NewWallet().PrivateKey
	initPos, err := dlmm.NewInitializePositionIx(owner, position.PublicKey(), p.Address, owner, lower, upper-lower+1)
	if err != nil {
		return nil, nil, err
	}
	add, err := dlmm.NewAddLiquidityByStrategyIx(position.PublicKey(), pair, user, dlmm.AddLiquidityParams{
		AmountX:              amountX,
		AmountY:              amountY,
		ActiveID:             p.Bin.ActiveID,
		MaxActiveBinSlippage: b.activeBinSlippage(p.Bin.BinStep),
		MinBinID:             lower,
		MaxBinID:             upper,
	})
	if err != nil {
		return nil, nil, err
	}
	return []solana.Instruction{initPos, add}, position, nil
}

// newConstantProductPool creates a customizable pool with its first position. A
// single-sided deposit pins the price at the edge of the range where only the
// deposited token is needed.
func (b *Builder) newConstantProductPool(owner solana.PublicKey, q *quote.CreationQuote, infoA, infoB *token.MintInfo, amountA, amountB uint64) ([]solana.Instruction, solana.PrivateKey, *pool.Pool, error) {
	if amountA == 0 && amountB == 0 {
		return nil, nil, nil, fmt.Errorf("pool creation needs a deposit")
	}
	poolAddr, err := cpamm.DeriveCustomizablePool(q.TokenAMint, q.TokenBMint)
	if err != nil {
		return nil, nil, nil, err
	}
	vaultA, err := cpamm.DeriveTokenVault(q.TokenAMint, poolAddr)
	if err != nil {
		return nil, nil, nil, err
	}
	vaultB, err := cpamm.DeriveTokenVault(q.TokenBMint, poolAddr)
	if err != nil {
		return nil, nil, nil, err
	}

	sqrt, err := cpamm.SqrtPriceFromRaw(cpamm.RawPrice(q.PoolPrice, q.DecimalsA, q.DecimalsB))
	if err != nil {
		return nil, nil, nil, err
	}
	sqrtMin, sqrtMax := cpamm.MinSqrtPrice, cpamm.MaxSqrtPrice
	switch {
	case amountB == 0:
		sqrtMin = sqrt
		sqrt = cpamm.SingleSidedSqrtPrice(true, sqrtMin, sqrtMax)
	case amountA == 0:
		sqrtMax = sqrt
		sqrt = cpamm.SingleSidedSqrtPrice(false, sqrtMin, sqrtMax)
	}
	liquidity, err := cpamm.LiquidityForDeposit(amountA, amountB, sqrt, sqrtMin, sqrtMax)
	if err != nil {
		return nil, nil, nil, err
	}

	nft := solana.NewWallet().PrivateKey
	pos, err := cpamm.NewPositionAccounts(nft.PublicKey())
	if err != nil {
		return nil, nil, nil, err
	}
	created := &pool.Pool{
		Address:    poolAddr,
		Family:     pool.FamilyConstantProduct,
		TokenAMint: q.TokenAMint,
		TokenBMint: q.TokenBMint,
		FeeBps:     b.cfg.CPFeeBps,
		ReserveA:   amountA,
		ReserveB:   amountB,
		ConstantProduct: &pool.ConstantProductState{
			VaultA:       vaultA,
			VaultB:       vaultB,
			Liquidity:    liquidity,
			SqrtPrice:    sqrt,
			SqrtMinPrice: sqrtMin,
			SqrtMaxPrice: sqrtMax,
		},
	}

	ataA, err := ataOf(owner, infoA)
	if err != nil {
		return nil, nil, nil, err
	}
	ataB, err := ataOf(owner, infoB)
	if err != nil {
		return nil, nil, nil, err
	}
	ix, err := cpamm.NewInitializeCustomizablePoolIx(owner, poolAccounts(created, infoA, infoB), pos, ataA, ataB, cpamm.CreatePoolParams{
		FeeBps:         b.cfg.CPFeeBps,
		SqrtMinPrice:   sqrtMin,
		SqrtMaxPrice:   sqrtMax,
		SqrtPrice:      sqrt,
		Liquidity:      liquidity,
		ActivationType: cpamm.ActivationBySlot,
		CollectFeeMode: cpamm.CollectFeeBothTokens,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return []solana.Instruction{ix}, nft, created, nil
}
