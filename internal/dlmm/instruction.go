package dlmm

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/aman-zulfiqar/rift-liquidity/internal/anchor"
	"github.com/aman-zulfiqar/rift-liquidity/internal/pool"
)

// StrategySpot spreads liquidity uniformly; it accepts one-sided amounts.
const StrategySpot uint8 = 6

// PairAccounts bundles the static accounts of a pair used by every liquidity instruction.
type PairAccounts struct {
	LbPair        solana.PublicKey
	TokenXMint    solana.PublicKey
	TokenYMint    solana.PublicKey
	ReserveX      solana.PublicKey
	ReserveY      solana.PublicKey
	TokenXProgram solana.PublicKey
	TokenYProgram solana.PublicKey
}

// UserAccounts are the owner's token accounts for X and Y.
type UserAccounts struct {
	Owner  solana.PublicKey
	TokenX solana.PublicKey
	TokenY solana.PublicKey
}

func seedPDA(seeds ...[]byte) (solana.PublicKey, error) {
	pda, _, err := solana.FindProgramAddress(seeds, ProgramID)
	return pda, err
}

// DerivePair derives the pair address for a preset parameter and mint pair.
func DerivePair(presetParameter, mintX, mintY solana.PublicKey) (solana.PublicKey, error) {
	first, second := pool.CanonicalOrder(mintX, mintY)
	return seedPDA(presetParameter.Bytes(), first.Bytes(), second.Bytes())
}

func DeriveReserve(lbPair, mint solana.PublicKey) (solana.PublicKey, error) {
	return seedPDA(lbPair.Bytes(), mint.Bytes())
}

func DeriveOracle(lbPair solana.PublicKey) (solana.PublicKey, error) {
	return seedPDA([]byte("oracle"), lbPair.Bytes())
}

func DeriveBinArray(lbPair solana.PublicKey, index int64) (solana.PublicKey, error) {
	idx := make([]byte, 8)
	binary.LittleEndian.PutUint64(idx, uint64(index))
	return seedPDA([]byte("bin_array"), lbPair.Bytes(), idx)
}

// BinArraysFor returns the bin arrays holding the lower and upper bins of a range.
func BinArraysFor(lbPair solana.PublicKey, lowerBin, upperBin int32) (lower, upper solana.PublicKey, err error) {
	if lower, err = DeriveBinArray(lbPair, BinArrayIndex(lowerBin)); err != nil {
		return
	}
	upper, err = DeriveBinArray(lbPair, BinArrayIndex(upperBin))
	return
}

func meta(pk solana.PublicKey, signer, writable bool) *solana.AccountMeta {
	return &solana.AccountMeta{PublicKey: pk, IsSigner: signer, IsWritable: writable}
}

func eventAccounts() []*solana.AccountMeta {
	return []*solana.AccountMeta{
		meta(anchor.EventAuthority(ProgramID), false, false),
		meta(ProgramID, false, false),
	}
}

// NewInitializePairIx creates a pair with customizable preset parameters. The
// bitmap extension and token badges are optional and passed as the program id.
func NewInitializePairIx(funder, presetParameter solana.PublicKey, pair PairAccounts, activeID int32) (solana.Instruction, error) {
	oracle, err := DeriveOracle(pair.LbPair)
	if err != nil {
		return nil, err
	}

	data, err := anchor.NewArgs("initialize_lb_pair2").
		I32(activeID).
		Bytes(make([]byte, 96)).
		Build()
	if err != nil {
		return nil, err
	}

	accounts := []*solana.AccountMeta{
		meta(pair.LbPair, false, true),
		meta(ProgramID, false, false), // bin_array_bitmap_extension
		meta(pair.TokenXMint, false, false),
		meta(pair.TokenYMint, false, false),
		meta(pair.ReserveX, false, true),
		meta(pair.ReserveY, false, true),
		meta(oracle, false, true),
		meta(presetParameter, false, false),
		meta(funder, true, true),
		meta(ProgramID, false, false), // token_badge_x
		meta(ProgramID, false, false), // token_badge_y
		meta(pair.TokenXProgram, false, false),
		meta(pair.TokenYProgram, false, false),
		meta(solana.SystemProgramID, false, false),
	}
	accounts = append(accounts, eventAccounts()...)
	return solana.NewInstruction(ProgramID, accounts, data), nil
}

// NewInitializeBinArrayIx allocates the bin array with the given index.
func NewInitializeBinArrayIx(funder, lbPair solana.PublicKey, index int64) (solana.Instruction, error) {
	binArray, err := DeriveBinArray(lbPair, index)
	if err != nil {
		return nil, err
	}
	data, err := anchor.NewArgs("initialize_bin_array").U64(uint64(index)).Build()
	if err != nil {
		return nil, err
	}
	accounts := []*solana.AccountMeta{
		meta(lbPair, false, false),
		meta(binArray, false, true),
		meta(funder, true, true),
		meta(solana.SystemProgramID, false, false),
	}
	return solana.NewInstruction(ProgramID, accounts, data), nil
}

// NewInitializePositionIx opens a position keypair over [lowerBin, lowerBin+width).
func NewInitializePositionIx(payer, position, lbPair, owner solana.PublicKey, lowerBin, width int32) (solana.Instruction, error) {
	if width < 1 || width > MaxBinsPerArray {
		return nil, fmt.Errorf("position width %d out of range 1..%d", width, MaxBinsPerArray)
	}
	data, err := anchor.NewArgs("initialize_position").I32(lowerBin).I32(width).Build()
	if err != nil {
		return nil, err
	}
	accounts := []*solana.AccountMeta{
		meta(payer, true, true),
		meta(position, true, true),
		meta(lbPair, false, false),
		meta(owner, true, false),
		meta(solana.SystemProgramID, false, false),
		meta(solana.SysVarRentPubkey, false, false),
	}
	accounts = append(accounts, eventAccounts()...)
	return solana.NewInstruction(ProgramID, accounts, data), nil
}

// AddLiquidityParams describes one strategy deposit. For a single-sided deposit
// the other amount is zero.
type AddLiquidityParams struct {
	AmountX              uint64
	AmountY              uint64
	ActiveID             int32
	MaxActiveBinSlippage int32
	MinBinID             int32
	MaxBinID             int32
}

func NewAddLiquidityByStrategyIx(position solana.PublicKey, pair PairAccounts, user UserAccounts, p AddLiquidityParams) (solana.Instruction, error) {
	lowerArray, upperArray, err := BinArraysFor(pair.LbPair, p.MinBinID, p.MaxBinID)
	if err != nil {
		return nil, err
	}

	data, err := anchor.NewArgs("add_liquidity_by_strategy").
		U64(p.AmountX).
		U64(p.AmountY).
		I32(p.ActiveID).
		I32(p.MaxActiveBinSlippage).
		I32(p.MinBinID).
		I32(p.MaxBinID).
		U8(StrategySpot).
		Bytes(make([]byte, 64)).
		Build()
	if err != nil {
		return nil, err
	}

	accounts := liquidityAccounts(position, pair, user, lowerArray, upperArray)
	return solana.NewInstruction(ProgramID, accounts, data), nil
}

// NewRemoveLiquidityByRangeIx withdraws bps of every bin in [fromBin, toBin].
func NewRemoveLiquidityByRangeIx(position solana.PublicKey, pair PairAccounts, user UserAccounts, fromBin, toBin int32, bps uint16) (solana.Instruction, error) {
	if bps == 0 || bps > 10_000 {
		return nil, fmt.Errorf("bps %d out of range 1..10000", bps)
	}
	lowerArray, upperArray, err := BinArraysFor(pair.LbPair, fromBin, toBin)
	if err != nil {
		return nil, err
	}

	data, err := anchor.NewArgs("remove_liquidity_by_range").I32(fromBin).I32(toBin).U16(bps).Build()
	if err != nil {
		return nil, err
	}

	accounts := liquidityAccounts(position, pair, user, lowerArray, upperArray)
	return solana.NewInstruction(ProgramID, accounts, data), nil
}

func liquidityAccounts(position solana.PublicKey, pair PairAccounts, user UserAccounts, lowerArray, upperArray solana.PublicKey) []*solana.AccountMeta {
	accounts := []*solana.AccountMeta{
		meta(position, false, true),
		meta(pair.LbPair, false, true),
		meta(ProgramID, false, false), // bin_array_bitmap_extension
		meta(user.TokenX, false, true),
		meta(user.TokenY, false, true),
		meta(pair.ReserveX, false, true),
		meta(pair.ReserveY, false, true),
		meta(pair.TokenXMint, false, false),
		meta(pair.TokenYMint, false, false),
		meta(lowerArray, false, true),
		meta(upperArray, false, true),
		meta(user.Owner, true, false),
		meta(pair.TokenXProgram, false, false),
		meta(pair.TokenYProgram, false, false),
	}
	return append(accounts, eventAccounts()...)
}

// NewClaimFeeIx sweeps pending swap fees of a position; required before closing.
func NewClaimFeeIx(position solana.PublicKey, pair PairAccounts, user UserAccounts, lowerBin, upperBin int32) (solana.Instruction, error) {
	lowerArray, upperArray, err := BinArraysFor(pair.LbPair, lowerBin, upperBin)
	if err != nil {
		return nil, err
	}
	data, err := anchor.NewArgs("claim_fee").Build()
	if err != nil {
		return nil, err
	}
	accounts := []*solana.AccountMeta{
		meta(pair.LbPair, false, true),
		meta(position, false, true),
		meta(lowerArray, false, true),
		meta(upperArray, false, true),
		meta(user.Owner, true, false),
		meta(pair.ReserveX, false, true),
		meta(pair.ReserveY, false, true),
		meta(user.TokenX, false, true),
		meta(user.TokenY, false, true),
		meta(pair.TokenXMint, false, false),
		meta(pair.TokenYMint, false, false),
		meta(pair.TokenXProgram, false, false),
	}
	accounts = append(accounts, eventAccounts()...)
	return solana.NewInstruction(ProgramID, accounts, data), nil
}

// NewClosePositionIx closes an emptied position and returns rent to owner.
func NewClosePositionIx(position, lbPair, owner solana.PublicKey, lowerBin, upperBin int32) (solana.Instruction, error) {
	lowerArray, upperArray, err := BinArraysFor(lbPair, lowerBin, upperBin)
	if err != nil {
		return nil, err
	}
	data, err := anchor.NewArgs("close_position").Build()
	if err != nil {
		return nil, err
	}
	accounts := []*solana.AccountMeta{
		meta(position, false, true),
		meta(lbPair, false, true),
		meta(lowerArray, false, true),
		meta(upperArray, false, true),
		meta(owner, true, false),
		meta(owner, false, true), // rent_receiver
	}
	accounts = append(accounts, eventAccounts()...)
	return solana.NewInstruction(ProgramID, accounts, data), nil
}
