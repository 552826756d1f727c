package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/rift-liquidity/internal/constants"
	"github.com/aman-zulfiqar/rift-liquidity/internal/cpamm"
	"github.com/aman-zulfiqar/rift-liquidity/internal/dlmm"
	"github.com/aman-zulfiqar/rift-liquidity/internal/pool"
	"github.com/aman-zulfiqar/rift-liquidity/internal/quote"
	"github.com/aman-zulfiqar/rift-liquidity/internal/rift"
	"github.com/aman-zulfiqar/rift-liquidity/internal/token"
	"github.com/aman-zulfiqar/rift-liquidity/internal/withdraw"
)

// LaunchIntent creates a rift over an underlying mint, wraps WrapAmount of the
// underlying and seeds a new pool with the result, all in one bundle.
type LaunchIntent struct {
	Creator        solana.PublicKey  `json:"creator"`
	UnderlyingMint solana.PublicKey  `json:"underlying_mint"`
	Name           string            `json:"name"`
	TransferFeeBps uint16            `json:"transfer_fee_bps"`
	PartnerWallet  *solana.PublicKey `json:"partner_wallet,omitempty"`
	PrefixType     uint8             `json:"prefix_type"`
	WrapAmount     uint64            `json:"wrap_amount"`
	QuoteMint      solana.PublicKey  `json:"quote_mint"`
	QuoteAmount    uint64            `json:"quote_amount"`
	Family         pool.Family       `json:"family"`
	ManualPrice    *decimal.Decimal  `json:"manual_price,omitempty"`
}

func (in LaunchIntent) validate() error {
	switch {
	case in.Creator.IsZero():
		return fmt.Errorf("creator is required")
	case in.UnderlyingMint.IsZero() || in.QuoteMint.IsZero():
		return fmt.Errorf("underlying and quote mint are required")
	case in.WrapAmount == 0:
		return fmt.Errorf("wrap amount must be positive")
	case in.TransferFeeBps < constants.MinRiftTransferFeeBps || in.TransferFeeBps > constants.MaxRiftTransferFeeBps:
		return fmt.Errorf("transfer fee must be within [%d, %d] bps, got %d",
			constants.MinRiftTransferFeeBps, constants.MaxRiftTransferFeeBps, in.TransferFeeBps)
	case in.Family == pool.FamilyUnknown:
		return fmt.Errorf("pool family is required")
	}
	if _, _, err := rift.EncodeName(in.Name); err != nil {
		return err
	}
	return nil
}

// Launch plans an atomic bundle. The rift mint does not exist when the plan is
// built, so it is registered as a pending fee-bearing mint and priced at its
// underlying.
func (b *Builder) Launch(ctx context.Context, in LaunchIntent) (*TransactionPlan, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if !b.cfg.BundlingAvailable {
		return nil, ErrPartialBundleUnavailable
	}

	addrs, err := rift.Derive(in.UnderlyingMint, in.Creator)
	if err != nil {
		return nil, err
	}
	underlying, err := b.Mints.Get(ctx, in.UnderlyingMint)
	if err != nil {
		return nil, err
	}
	b.Mints.Put(token.NewPendingFeeMint(addrs.RiftMint, underlying.Decimals, in.TransferFeeBps))

	minted := rift.ExpectedWrapOutput(b.haircut(in.WrapAmount, underlying), constants.DefaultWrapFeeBps)
	q, err := b.Quotes.Creation(ctx, quote.CreationRequest{
		BaseMint:      addrs.RiftMint,
		QuoteMint:     in.QuoteMint,
		BaseAmount:    minted,
		QuoteAmount:   in.QuoteAmount,
		Family:        in.Family,
		BasePriceMint: in.UnderlyingMint,
		ManualPrice:   in.ManualPrice,
	})
	if err != nil {
		return nil, err
	}
	infoA, infoB, err := b.mintPair(ctx, q.TokenAMint, q.TokenBMint)
	if err != nil {
		return nil, err
	}
	quoteInfo := infoB
	if q.BaseSide == pool.SideB {
		quoteInfo = infoA
	}

	plan := newPlan(IntentLaunch, ModeAtomicBundle, in.Creator)
	plan.Rift = addrs.Rift

	createRift, err := rift.NewCreateRiftIx(in.Creator, in.UnderlyingMint, underlying.Program, addrs, rift.CreateRiftParams{
		Name:           in.Name,
		PartnerWallet:  in.PartnerWallet,
		TransferFeeBps: in.TransferFeeBps,
		PrefixType:     in.PrefixType,
	})
	if err != nil {
		return nil, err
	}
	vault, err := rift.NewInitializeVaultIx(in.Creator, in.UnderlyingMint, underlying.Program, addrs)
	if err != nil {
		return nil, err
	}
	feesVault, err := rift.NewInitializeFeesVaultIx(in.Creator, in.UnderlyingMint, underlying.Program, addrs)
	if err != nil {
		return nil, err
	}
	withheld, err := rift.NewInitializeWithheldVaultIx(in.Creator, addrs)
	if err != nil {
		return nil, err
	}
	plan.add("create rift", static(&Built{Instructions: []solana.Instruction{createRift, vault, feesVault, withheld}}))

	last := &Built{}
	underlyingIxs, userUnderlying, err := tokenAccount(in.Creator, underlying, in.WrapAmount)
	if err != nil {
		return nil, err
	}
	riftInfo, err := b.Mints.Get(ctx, addrs.RiftMint)
	if err != nil {
		return nil, err
	}
	riftIxs, userRift, err := tokenAccount(in.Creator, riftInfo, 0)
	if err != nil {
		return nil, err
	}
	wrap, err := rift.NewWrapIx(rift.WrapAccounts{
		User:              in.Creator,
		UserUnderlying:    userUnderlying,
		UserRift:          userRift,
		UnderlyingMint:    in.UnderlyingMint,
		UnderlyingProgram: underlying.Program,
	}, addrs, in.WrapAmount, cpamm.ApplySlippage(minted, b.cfg.SlippageBps))
	if err != nil {
		return nil, err
	}
	quoteIxs, _, err := tokenAccount(in.Creator, quoteInfo, in.QuoteAmount)
	if err != nil {
		return nil, err
	}
	last.Instructions = append(last.Instructions, underlyingIxs...)
	last.Instructions = append(last.Instructions, riftIxs...)
	last.Instructions = append(last.Instructions, wrap)
	last.Instructions = append(last.Instructions, quoteIxs...)

	switch in.Family {
	case pool.FamilyBinBased:
		setup, err := b.newBinPair(ctx, in.Creator, q, infoA, infoB)
		if err != nil {
			return nil, err
		}
		plan.add("create pair", static(&Built{Instructions: setup.ixs}))

		user, err := b.userAccounts(in.Creator, infoA, infoB)
		if err != nil {
			return nil, err
		}
		ixs, position, err := b.binDeposit(in.Creator, setup.pool, setup.pair, user, setup.lower, setup.upper, q.AmountA(), q.AmountB())
		if err != nil {
			return nil, err
		}
		last.Instructions = append(last.Instructions, ixs...)
		last.Signers = append(last.Signers, position)
		setup.pool.ReserveA, setup.pool.ReserveB = q.AmountA(), q.AmountB()
		last.CreatedPool = setup.pool
	case pool.FamilyConstantProduct:
		ixs, nft, created, err := b.newConstantProductPool(in.Creator, q, infoA, infoB, q.AmountA(), q.AmountB())
		if err != nil {
			return nil, err
		}
		last.Instructions = append(last.Instructions, ixs...)
		last.Signers = append(last.Signers, nft)
		last.CreatedPool = created
	}
	last.spend(in.UnderlyingMint, in.WrapAmount)
	last.spend(in.QuoteMint, in.QuoteAmount)
	plan.add("wrap and deposit", static(last))

	plan.Summary["rift"] = addrs.Rift.String()
	plan.Summary["rift_mint"] = addrs.RiftMint.String()
	plan.Summary["pool"] = last.CreatedPool.Address.String()
	plan.Summary["quote"] = q
	b.log.WithFields(logrus.Fields{
		"plan":   plan.ID.String(),
		"rift":   addrs.Rift.String(),
		"pool":   last.CreatedPool.Address.String(),
		"family": in.Family.String(),
		"txs":    len(plan.Steps),
	}).Info("launch planned")
	return plan, nil
}

func (b *Builder) userAccounts(owner solana.PublicKey, infoX, infoY *token.MintInfo) (dlmm.UserAccounts, error) {
	x, err := ataOf(owner, infoX)
	if err != nil {
		return dlmm.UserAccounts{}, err
	}
	y, err := ataOf(owner, infoY)
	if err != nil {
		return dlmm.UserAccounts{}, err
	}
	return dlmm.UserAccounts{Owner: owner, TokenX: x, TokenY: y}, nil
}

// AddLiquidityIntent deposits Amount of SourceMint into an existing pool. Unless
// SingleSided is set the counter side is quoted from current reserves.
type AddLiquidityIntent struct {
	Owner       solana.PublicKey `json:"owner"`
	Pool        solana.PublicKey `json:"pool"`
	SourceMint  solana.PublicKey `json:"source_mint"`
	Amount      uint64           `json:"amount"`
	SingleSided bool             `json:"single_sided"`
}

func (b *Builder) AddLiquidity(ctx context.Context, in AddLiquidityIntent) (*TransactionPlan, error) {
	if in.Owner.IsZero() || in.Pool.IsZero() {
		return nil, fmt.Errorf("owner and pool are required")
	}
	if in.Amount == 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	p, err := b.Pools.Classify(ctx, in.Pool)
	if err != nil {
		return nil, err
	}
	side, err := p.SideOf(in.SourceMint)
	if err != nil {
		return nil, err
	}
	infoA, infoB, err := b.mintPair(ctx, p.TokenAMint, p.TokenBMint)
	if err != nil {
		return nil, err
	}
	infos := [2]*token.MintInfo{infoA, infoB}

	// nominal is what leaves the wallet per side, received what the pool credits
	var nominal, received [2]uint64
	nominal[side] = in.Amount
	received[side] = b.haircut(in.Amount, infos[side])

	built := &Built{}
	if in.SingleSided {
		if p.Family == pool.FamilyConstantProduct && p.Reserve(side.Other()) > 0 {
			return nil, fmt.Errorf("pool %s: %w", p.Address, pool.ErrNoLongerSingleSided)
		}
	} else {
		q, err := b.Quotes.Deposit(ctx, p.Address, in.SourceMint, in.Amount)
		if err != nil {
			return nil, err
		}
		other := side.Other()
		nominal[other] = q.CounterAmount
		received[other] = b.haircut(q.CounterAmount, infos[other])
		built.Quote = q
	}

	for s := range 2 {
		ixs, _, err := tokenAccount(in.Owner, infos[s], nominal[s])
		if err != nil {
			return nil, err
		}
		built.Instructions = append(built.Instructions, ixs...)
	}

	switch p.Family {
	case pool.FamilyBinBased:
		xOnly := in.SingleSided && side == pool.SideA
		yOnly := in.SingleSided && side == pool.SideB
		lower, upper := dlmm.DepositRange(p.Bin.ActiveID, b.cfg.PositionWidth, xOnly, yOnly)
		arrays, err := b.binArrayIxs(ctx, in.Owner, p.Address, lower, upper, true)
		if err != nil {
			return nil, err
		}
		user, err := b.userAccounts(in.Owner, infoA, infoB)
		if err != nil {
			return nil, err
		}
		ixs, position, err := b.binDeposit(in.Owner, p, pairAccounts(p, infoA, infoB), user, lower, upper, received[pool.SideA], received[pool.SideB])
		if err != nil {
			return nil, err
		}
		built.Instructions = append(built.Instructions, arrays...)
		built.Instructions = append(built.Instructions, ixs...)
		built.Signers = append(built.Signers, position)
	case pool.FamilyConstantProduct:
		ixs, nft, err := b.constantProductDeposit(in.Owner, p, infoA, infoB, nominal, received)
		if err != nil {
			return nil, err
		}
		built.Instructions = append(built.Instructions, ixs...)
		built.Signers = append(built.Signers, nft)
	default:
		return nil, fmt.Errorf("pool %s: unsupported family %s", p.Address, p.Family)
	}
	built.spend(p.TokenAMint, nominal[pool.SideA])
	built.spend(p.TokenBMint, nominal[pool.SideB])

	plan := newPlan(IntentAddLiquidity, ModeSequential, in.Owner)
	plan.add("deposit", static(built))
	plan.Summary["pool"] = p.Address.String()
	plan.Summary["family"] = p.Family.String()
	plan.Summary["amount_a"] = nominal[pool.SideA]
	plan.Summary["amount_b"] = nominal[pool.SideB]
	if built.Quote != nil {
		plan.Summary["quote"] = built.Quote
	}
	return plan, nil
}

func (b *Builder) constantProductDeposit(owner solana.PublicKey, p *pool.Pool, infoA, infoB *token.MintInfo, nominal, received [2]uint64) ([]solana.Instruction, solana.PrivateKey, error) {
	cp := p.ConstantProduct
	liquidity, err := cpamm.LiquidityForDeposit(received[pool.SideA], received[pool.SideB], cp.SqrtPrice, cp.SqrtMinPrice, cp.SqrtMaxPrice)
	if err != nil {
		return nil, nil, err
	}
	if liquidity.Sign() == 0 {
		return nil, nil, fmt.Errorf("deposit into %s is too small to mint liquidity", p.Address)
	}

	nft := solana.NewWallet().PrivateKey
	pos, err := cpamm.NewPositionAccounts(nft.PublicKey())
	if err != nil {
		return nil, nil, err
	}
	create, err := cpamm.NewCreatePositionIx(owner, owner, p.Address, pos)
	if err != nil {
		return nil, nil, err
	}
	ataA, err := ataOf(owner, infoA)
	if err != nil {
		return nil, nil, err
	}
	ataB, err := ataOf(owner, infoB)
	if err != nil {
		return nil, nil, err
	}
	add, err := cpamm.NewAddLiquidityIx(owner, poolAccounts(p, infoA, infoB), pos, ataA, ataB, cpamm.LiquidityArgs{
		LiquidityDelta: liquidity,
		ThresholdA:     b.withSlippage(nominal[pool.SideA]),
		ThresholdB:     b.withSlippage(nominal[pool.SideB]),
	})
	if err != nil {
		return nil, nil, err
	}
	return []solana.Instruction{create, add}, nft, nil
}

// CreatePoolIntent seeds a new pool from the owner's balances. When Rift is set,
// BaseMint is that rift's mint and BaseAmount is underlying wrapped first.
type CreatePoolIntent struct {
	Owner       solana.PublicKey  `json:"owner"`
	BaseMint    solana.PublicKey  `json:"base_mint"`
	QuoteMint   solana.PublicKey  `json:"quote_mint"`
	BaseAmount  uint64            `json:"base_amount"`
	QuoteAmount uint64            `json:"quote_amount"`
	Family      pool.Family       `json:"family"`
	ManualPrice *decimal.Decimal  `json:"manual_price,omitempty"`
	Rift        *solana.PublicKey `json:"rift,omitempty"`
}

// CreatePool plans two sequential transactions. The deposit is built only after
// the first confirms, from the base balance actually observed on-chain, because
// fee-bearing mints deliver less than was sent.
func (b *Builder) CreatePool(ctx context.Context, in CreatePoolIntent) (*TransactionPlan, error) {
	if in.Owner.IsZero() || in.BaseMint.IsZero() || in.QuoteMint.IsZero() {
		return nil, fmt.Errorf("owner, base and quote mint are required")
	}
	if in.BaseAmount == 0 {
		return nil, fmt.Errorf("base amount must be positive")
	}
	if in.Family == pool.FamilyUnknown {
		return nil, fmt.Errorf("pool family is required")
	}

	plan := newPlan(IntentCreatePool, ModeSequential, in.Owner)
	prep := &Built{}

	// nominalBase is the most base the deposit may take from the wallet
	nominalBase := in.BaseAmount
	var basePriceMint solana.PublicKey
	// settled decides when the re-read base balance reflects the create step;
	// held is what the owner had before it
	var held uint64
	settled := func(v uint64) bool { return v > 0 }
	if in.Rift != nil {
		r, _, err := b.Ledger.Load(ctx, *in.Rift)
		if err != nil {
			return nil, err
		}
		if !r.RiftMint.Equals(in.BaseMint) {
			return nil, fmt.Errorf("base mint %s is not the mint of rift %s", in.BaseMint, *in.Rift)
		}
		underlying, err := b.Mints.Get(ctx, r.UnderlyingMint)
		if err != nil {
			return nil, err
		}
		nominalBase = rift.ExpectedWrapOutput(b.haircut(in.BaseAmount, underlying), r.WrapFeeBps)
		basePriceMint = r.UnderlyingMint

		// a node still serving the pre-wrap balance must not pass for the wrapped one
		prior, err := b.Balances.Get(ctx, in.Owner, in.BaseMint)
		if err != nil {
			return nil, fmt.Errorf("read %s before wrap: %w", in.BaseMint, err)
		}
		held = prior.Value
		floor := held + cpamm.ApplySlippage(nominalBase, b.cfg.SlippageBps)
		settled = func(v uint64) bool { return v >= floor }

		wrapIxs, err := b.wrapInto(ctx, in.Owner, *in.Rift, r, underlying, in.BaseAmount, nominalBase)
		if err != nil {
			return nil, err
		}
		prep.Instructions = append(prep.Instructions, wrapIxs...)
		prep.spend(r.UnderlyingMint, in.BaseAmount)
		prep.receive(in.BaseMint, nominalBase)
		plan.Rift = *in.Rift
	}

	q, err := b.Quotes.Creation(ctx, quote.CreationRequest{
		BaseMint:      in.BaseMint,
		QuoteMint:     in.QuoteMint,
		BaseAmount:    nominalBase,
		QuoteAmount:   in.QuoteAmount,
		Family:        in.Family,
		BasePriceMint: basePriceMint,
		ManualPrice:   in.ManualPrice,
	})
	if err != nil {
		return nil, err
	}
	infoA, infoB, err := b.mintPair(ctx, q.TokenAMint, q.TokenBMint)
	if err != nil {
		return nil, err
	}
	baseInfo, quoteInfo := infoA, infoB
	if q.BaseSide == pool.SideB {
		baseInfo, quoteInfo = infoB, infoA
	}

	if in.Rift == nil {
		ixs, _, err := tokenAccount(in.Owner, baseInfo, nativeOnly(baseInfo, in.BaseAmount))
		if err != nil {
			return nil, err
		}
		prep.Instructions = append(prep.Instructions, ixs...)
		if baseInfo.Address.Equals(token.NativeMint) {
			prep.spend(token.NativeMint, in.BaseAmount)
		} else {
			prep.need(in.BaseMint, in.BaseAmount)
		}
	}
	quoteIxs, _, err := tokenAccount(in.Owner, quoteInfo, nativeOnly(quoteInfo, in.QuoteAmount))
	if err != nil {
		return nil, err
	}
	prep.Instructions = append(prep.Instructions, quoteIxs...)
	if quoteInfo.Address.Equals(token.NativeMint) {
		prep.spend(token.NativeMint, in.QuoteAmount)
	} else {
		prep.need(in.QuoteMint, in.QuoteAmount)
	}

	var setup *binSetup
	if in.Family == pool.FamilyBinBased {
		if setup, err = b.newBinPair(ctx, in.Owner, q, infoA, infoB); err != nil {
			return nil, err
		}
		prep.Instructions = append(prep.Instructions, setup.ixs...)
	}
	plan.add("create", static(prep))

	plan.add("deposit", func(ctx context.Context, _ *StepContext) (*Built, error) {
		dep := &Built{}
		baseDeposit, sent := q.BaseDeposit, nominalBase
		if !baseInfo.Address.Equals(token.NativeMint) {
			observed, err := b.Balances.Recheck(ctx, in.Owner, in.BaseMint, settled)
			if err != nil {
				return nil, fmt.Errorf("re-read %s: %w", in.BaseMint, err)
			}
			// only what the wrap produced goes into the pool
			sent = min(observed-held, nominalBase)
			baseDeposit = b.haircut(sent, baseInfo)
			dep.spend(in.BaseMint, sent)
		}
		if !quoteInfo.Address.Equals(token.NativeMint) {
			dep.spend(in.QuoteMint, in.QuoteAmount)
		}

		amountA, amountB := baseDeposit, q.QuoteDeposit
		if q.BaseSide == pool.SideB {
			amountA, amountB = q.QuoteDeposit, baseDeposit
		}

		switch in.Family {
		case pool.FamilyBinBased:
			user, err := b.userAccounts(in.Owner, infoA, infoB)
			if err != nil {
				return nil, err
			}
			ixs, position, err := b.binDeposit(in.Owner, setup.pool, setup.pair, user, setup.lower, setup.upper, amountA, amountB)
			if err != nil {
				return nil, err
			}
			dep.Instructions, dep.Signers = ixs, []solana.PrivateKey{position}
			created := *setup.pool
			created.ReserveA, created.ReserveB = amountA, amountB
			dep.CreatedPool = &created
		case pool.FamilyConstantProduct:
			ixs, nft, created, err := b.newConstantProductPool(in.Owner, q, infoA, infoB, amountA, amountB)
			if err != nil {
				return nil, err
			}
			dep.Instructions, dep.Signers, dep.CreatedPool = ixs, []solana.PrivateKey{nft}, created
		}

		b.log.WithFields(logrus.Fields{
			"plan":    plan.ID.String(),
			"pool":    dep.CreatedPool.Address.String(),
			"sent":    sent,
			"deposit": baseDeposit,
		}).Info("pool deposit built from observed balance")
		return dep, nil
	})

	plan.Summary["quote"] = q
	plan.Summary["family"] = in.Family.String()
	return plan, nil
}

func nativeOnly(info *token.MintInfo, amount uint64) uint64 {
	if info.Address.Equals(token.NativeMint) {
		return amount
	}
	return 0
}

// wrapInto wraps amount of the rift's underlying into its rift token.
func (b *Builder) wrapInto(ctx context.Context, owner, riftAddr solana.PublicKey, r *rift.Rift, underlying *token.MintInfo, amount, expected uint64) ([]solana.Instruction, error) {
	addrs, err := rift.DeriveFromRift(riftAddr, r.RiftMint)
	if err != nil {
		return nil, err
	}
	riftInfo, err := b.Mints.Get(ctx, r.RiftMint)
	if err != nil {
		return nil, err
	}
	underlyingIxs, userUnderlying, err := tokenAccount(owner, underlying, nativeOnly(underlying, amount))
	if err != nil {
		return nil, err
	}
	riftIxs, userRift, err := tokenAccount(owner, riftInfo, 0)
	if err != nil {
		return nil, err
	}
	wrap, err := rift.NewWrapIx(rift.WrapAccounts{
		User:              owner,
		UserUnderlying:    userUnderlying,
		UserRift:          userRift,
		UnderlyingMint:    r.UnderlyingMint,
		UnderlyingProgram: underlying.Program,
	}, addrs, amount, cpamm.ApplySlippage(expected, b.cfg.SlippageBps))
	if err != nil {
		return nil, err
	}
	out := append(underlyingIxs, riftIxs...)
	return append(out, wrap), nil
}

// WithdrawIntent removes liquidity from the owner's positions in Pools.
type WithdrawIntent struct {
	Owner      solana.PublicKey   `json:"owner"`
	Pools      []solana.PublicKey `json:"pools"`
	Mode       withdraw.Mode      `json:"mode"`
	Percentage decimal.Decimal    `json:"percentage"`
	Selected   []solana.PublicKey `json:"selected,omitempty"`
}

// Withdraw plans one transaction per withdrawal step. Each is built right before
// submission so minimum amounts follow the pool's current price.
func (b *Builder) Withdraw(ctx context.Context, in WithdrawIntent) (*TransactionPlan, *withdraw.Plan, error) {
	if in.Owner.IsZero() || len(in.Pools) == 0 {
		return nil, nil, fmt.Errorf("owner and at least one pool are required")
	}
	var positions []pool.Position
	for _, addr := range in.Pools {
		p, err := b.Pools.Classify(ctx, addr)
		if err != nil {
			return nil, nil, err
		}
		found, err := b.Positions.Positions(ctx, in.Owner, p)
		if err != nil {
			return nil, nil, err
		}
		positions = append(positions, found...)
	}

	wp, err := withdraw.Build(withdraw.Request{
		Positions:  positions,
		Mode:       in.Mode,
		Percentage: in.Percentage,
		Selected:   in.Selected,
	})
	if err != nil {
		return nil, nil, err
	}

	plan := newPlan(IntentWithdraw, ModeSequential, in.Owner)
	for _, step := range wp.Steps {
		plan.add(step.Description, func(ctx context.Context, _ *StepContext) (*Built, error) {
			return b.withdrawStep(ctx, in.Owner, step)
		})
	}
	plan.Summary["mode"] = wp.Mode.String()
	plan.Summary["bps"] = wp.Bps
	plan.Summary["positions"] = len(positions)
	return plan, wp, nil
}

func (b *Builder) withdrawStep(ctx context.Context, owner solana.PublicKey, step withdraw.Step) (*Built, error) {
	p, err := b.Pools.Classify(ctx, step.Pool)
	if err != nil {
		return nil, err
	}
	infoA, infoB, err := b.mintPair(ctx, p.TokenAMint, p.TokenBMint)
	if err != nil {
		return nil, err
	}

	built := &Built{}
	for _, info := range []*token.MintInfo{infoA, infoB} {
		ixs, _, err := tokenAccount(owner, info, 0)
		if err != nil {
			return nil, err
		}
		built.Instructions = append(built.Instructions, ixs...)
	}

	switch {
	case step.Bin != nil:
		ixs, err := b.binRemoval(owner, p, infoA, infoB, step.Bin)
		if err != nil {
			return nil, err
		}
		built.Instructions = append(built.Instructions, ixs...)
	case len(step.Single) > 0:
		for _, r := range step.Single {
			ixs, amountA, amountB, err := b.singleRemoval(owner, p, infoA, infoB, r)
			if err != nil {
				return nil, err
			}
			built.Instructions = append(built.Instructions, ixs...)
			built.receive(p.TokenAMint, amountA)
			built.receive(p.TokenBMint, amountB)
		}
	default:
		return nil, errors.New("withdrawal step has no removals")
	}

	unwrap, err := unwrapNative(owner, infoA, infoB)
	if err != nil {
		return nil, err
	}
	built.Instructions = append(built.Instructions, unwrap...)
	return built, nil
}

func (b *Builder) binRemoval(owner solana.PublicKey, p *pool.Pool, infoX, infoY *token.MintInfo, r *withdraw.BinRemoval) ([]solana.Instruction, error) {
	if p.Bin == nil {
		return nil, fmt.Errorf("pool %s is not bin-based", p.Address)
	}
	pair := pairAccounts(p, infoX, infoY)
	user, err := b.userAccounts(owner, infoX, infoY)
	if err != nil {
		return nil, err
	}
	pos := r.Position
	remove, err := dlmm.NewRemoveLiquidityByRangeIx(pos.Address, pair, user, r.FromBinID, r.ToBinID, r.Bps)
	if err != nil {
		return nil, err
	}
	ixs := []solana.Instruction{remove}
	if !r.Close {
		return ixs, nil
	}
	claim, err := dlmm.NewClaimFeeIx(pos.Address, pair, user, pos.LowerBinID, pos.UpperBinID)
	if err != nil {
		return nil, err
	}
	closeIx, err := dlmm.NewClosePositionIx(pos.Address, p.Address, owner, pos.LowerBinID, pos.UpperBinID)
	if err != nil {
		return nil, err
	}
	return append(ixs, claim, closeIx), nil
}

// singleRemoval also returns the amounts the removal is expected to pay out.
func (b *Builder) singleRemoval(owner solana.PublicKey, p *pool.Pool, infoA, infoB *token.MintInfo, r withdraw.SingleRemoval) ([]solana.Instruction, uint64, uint64, error) {
	cp := p.ConstantProduct
	if cp == nil {
		return nil, 0, 0, fmt.Errorf("pool %s is not constant-product", p.Address)
	}
	accs := poolAccounts(p, infoA, infoB)
	pos := cpamm.PositionAccounts{Position: r.Position.Address, NFTMint: r.Position.NFTMint, NFTAccount: r.Position.NFTAccount}
	ataA, err := ataOf(owner, infoA)
	if err != nil {
		return nil, 0, 0, err
	}
	ataB, err := ataOf(owner, infoB)
	if err != nil {
		return nil, 0, 0, err
	}

	amountA, amountB, err := cpamm.AmountsForLiquidity(r.LiquidityDelta, cp.SqrtPrice, cp.SqrtMinPrice, cp.SqrtMaxPrice)
	if err != nil {
		return nil, 0, 0, err
	}
	minA, minB := cpamm.ApplySlippage(amountA, b.cfg.SlippageBps), cpamm.ApplySlippage(amountB, b.cfg.SlippageBps)

	var ixs []solana.Instruction
	switch {
	case r.Close:
		if r.LiquidityDelta.Sign() > 0 {
			ix, err := cpamm.NewRemoveAllLiquidityIx(owner, accs, pos, ataA, ataB, minA, minB)
			if err != nil {
				return nil, 0, 0, err
			}
			ixs = append(ixs, ix)
		}
		ix, err := cpamm.NewClosePositionIx(owner, p.Address, pos)
		if err != nil {
			return nil, 0, 0, err
		}
		ixs = append(ixs, ix)
	default:
		ix, err := cpamm.NewRemoveLiquidityIx(owner, accs, pos, ataA, ataB, cpamm.LiquidityArgs{
			LiquidityDelta: r.LiquidityDelta,
			ThresholdA:     minA,
			ThresholdB:     minB,
		})
		if err != nil {
			return nil, 0, 0, err
		}
		ixs = append(ixs, ix)
	}
	return ixs, amountA, amountB, nil
}

// ClaimFeesIntent claims Amount of the caller's share of a rift's fees vault.
// Zero claims the whole share.
type ClaimFeesIntent struct {
	Caller solana.PublicKey `json:"caller"`
	Rift   solana.PublicKey `json:"rift"`
	Amount uint64           `json:"amount"`
}

func (b *Builder) ClaimFees(ctx context.Context, in ClaimFeesIntent) (*TransactionPlan, error) {
	if in.Caller.IsZero() || in.Rift.IsZero() {
		return nil, fmt.Errorf("caller and rift are required")
	}
	r, entry, err := b.Ledger.Entry(ctx, in.Rift, in.Caller)
	if err != nil {
		return nil, err
	}
	if r.TreasuryWallet == nil {
		pe, _ := rift.LookupError(rift.CodeTreasuryNotSet)
		return nil, pe
	}

	entered := in.Amount
	if entered == 0 {
		entered = entry.CallerClaimable
	}
	dist, err := entry.Distribute(entered, b.cfg.DistributionMarginPpm)
	if err != nil {
		return nil, err
	}

	underlying, err := b.Mints.Get(ctx, r.UnderlyingMint)
	if err != nil {
		return nil, err
	}
	addrs, err := rift.DeriveFromRift(in.Rift, r.RiftMint)
	if err != nil {
		return nil, err
	}

	built := &Built{}
	beneficiaries := []solana.PublicKey{*r.TreasuryWallet}
	if r.PartnerWallet != nil {
		beneficiaries = append(beneficiaries, *r.PartnerWallet)
	}
	for _, w := range beneficiaries {
		ata, err := ataOf(w, underlying)
		if err != nil {
			return nil, err
		}
		built.Instructions = append(built.Instructions, token.NewCreateIdempotentATAIx(in.Caller, ata, w, underlying.Address, underlying.Program))
	}
	ix, err := rift.NewDistributeFeesIx(rift.DistributeAccounts{
		Payer:             in.Caller,
		UnderlyingMint:    r.UnderlyingMint,
		UnderlyingProgram: underlying.Program,
		TreasuryWallet:    *r.TreasuryWallet,
		PartnerWallet:     r.PartnerWallet,
	}, addrs, dist.Amount)
	if err != nil {
		return nil, err
	}
	built.Instructions = append(built.Instructions, ix)

	partnerShare, treasuryShare := rift.FeeSplit(dist.Amount)
	if r.PartnerWallet != nil && r.PartnerWallet.Equals(in.Caller) {
		built.receive(r.UnderlyingMint, partnerShare)
	}
	if r.TreasuryWallet.Equals(in.Caller) {
		built.receive(r.UnderlyingMint, treasuryShare)
	}

	plan := newPlan(IntentClaimFees, ModeSequential, in.Caller)
	plan.Rift = in.Rift
	plan.add("distribute fees", static(built))
	plan.Summary["entry"] = entry
	plan.Summary["distribution"] = dist
	return plan, nil
}

// UnwrapIntent burns Amount of a rift's token for its underlying.
type UnwrapIntent struct {
	Owner  solana.PublicKey `json:"owner"`
	Rift   solana.PublicKey `json:"rift"`
	Amount uint64           `json:"amount"`
}

// Unwrap plans a single transaction. The floor on the underlying returned is the
// unwrap fee and the underlying's transfer fee taken off Amount, less slippage.
func (b *Builder) Unwrap(ctx context.Context, in UnwrapIntent) (*TransactionPlan, error) {
	if in.Owner.IsZero() || in.Rift.IsZero() {
		return nil, fmt.Errorf("owner and rift are required")
	}
	if in.Amount == 0 {
		return nil, fmt.Errorf("unwrap amount must be positive")
	}
	r, _, err := b.Ledger.Load(ctx, in.Rift)
	if err != nil {
		return nil, err
	}
	underlying, riftInfo, err := b.mintPair(ctx, r.UnderlyingMint, r.RiftMint)
	if err != nil {
		return nil, err
	}
	addrs, err := rift.DeriveFromRift(in.Rift, r.RiftMint)
	if err != nil {
		return nil, err
	}

	expected := b.haircut(rift.ExpectedWrapOutput(in.Amount, r.UnwrapFeeBps), underlying)
	minOut := cpamm.ApplySlippage(expected, b.cfg.SlippageBps)

	ixs, userUnderlying, err := tokenAccount(in.Owner, underlying, 0)
	if err != nil {
		return nil, err
	}
	userRift, err := ataOf(in.Owner, riftInfo)
	if err != nil {
		return nil, err
	}
	ix, err := rift.NewUnwrapIx(rift.WrapAccounts{
		User:              in.Owner,
		UserUnderlying:    userUnderlying,
		UserRift:          userRift,
		UnderlyingMint:    r.UnderlyingMint,
		UnderlyingProgram: underlying.Program,
	}, addrs, in.Amount, minOut)
	if err != nil {
		return nil, err
	}
	ixs = append(ixs, ix)
	closeNative, err := unwrapNative(in.Owner, underlying)
	if err != nil {
		return nil, err
	}
	ixs = append(ixs, closeNative...)

	built := &Built{Instructions: ixs}
	built.spend(r.RiftMint, in.Amount)
	built.receive(r.UnderlyingMint, expected)

	plan := newPlan(IntentUnwrap, ModeSequential, in.Owner)
	plan.Rift = in.Rift
	plan.add("unwrap", static(built))
	plan.Summary["expected_underlying"] = expected
	plan.Summary["min_underlying_out"] = minOut
	b.log.WithFields(logrus.Fields{
		"plan":   plan.ID.String(),
		"rift":   in.Rift.String(),
		"amount": in.Amount,
		"min":    minOut,
	}).Info("unwrap planned")
	return plan, nil
}
