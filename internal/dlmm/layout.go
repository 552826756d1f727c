package dlmm

import (
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/aman-zulfiqar/rift-liquidity/internal/anchor"
	"github.com/aman-zulfiqar/rift-liquidity/internal/constants"
)

// ProgramID is the bin-based liquidity market program.
var ProgramID = solana.MustPublicKeyFromBase58(constants.DLMMProgram)

const (
	lbPairMinSize   = 216
	positionMinSize = 7920

	offsetActiveID   = 76
	offsetTokenXMint = 88

	offsetPositionLowerBin = 7912
)

// LbPair is the subset of the pair account the orchestrator reads.
type LbPair struct {
	BaseFactor uint16
	ActiveID   int32
	BinStep    uint16
	Status     uint8
	TokenXMint solana.PublicKey
	TokenYMint solana.PublicKey
	ReserveX   solana.PublicKey
	ReserveY   solana.PublicKey
}

// BaseFeeBps approximates the static fee: base_factor * bin_step / 10_000.
func (p *LbPair) BaseFeeBps() uint16 {
	return uint16(uint32(p.BaseFactor) * uint32(p.BinStep) / 10_000)
}

// DecodeLbPair parses an LbPair account (discriminator included).
func DecodeLbPair(data []byte) (*LbPair, error) {
	if err := anchor.CheckAccount(data, "LbPair"); err != nil {
		return nil, err
	}
	if len(data) < lbPairMinSize {
		return nil, fmt.Errorf("LbPair: data too short (%d bytes)", len(data))
	}

	var (
		out LbPair
		err error
	)
	dec := bin.NewBorshDecoder(data[8:])
	// static parameters start with base_factor
	if out.BaseFactor, err = dec.ReadUint16(binary.LittleEndian); err != nil {
		return nil, err
	}

	dec = bin.NewBorshDecoder(data[offsetActiveID:])
	if out.ActiveID, err = dec.ReadInt32(binary.LittleEndian); err != nil {
		return nil, err
	}
	if out.BinStep, err = dec.ReadUint16(binary.LittleEndian); err != nil {
		return nil, err
	}
	if out.Status, err = dec.ReadUint8(); err != nil {
		return nil, err
	}

	dec = bin.NewBorshDecoder(data[offsetTokenXMint:])
	for _, dst := range []*solana.PublicKey{&out.TokenXMint, &out.TokenYMint, &out.ReserveX, &out.ReserveY} {
		if *dst, err = anchor.ReadPubkey(dec); err != nil {
			return nil, err
		}
	}
	return &out, nil
}

// PositionAccount is the subset of a PositionV2 account the planner needs.
type PositionAccount struct {
	LbPair     solana.PublicKey
	Owner      solana.PublicKey
	LowerBinID int32
	UpperBinID int32
}

func DecodePosition(data []byte) (*PositionAccount, error) {
	if err := anchor.CheckAccount(data, "PositionV2"); err != nil {
		return nil, err
	}
	if len(data) < positionMinSize {
		return nil, fmt.Errorf("PositionV2: data too short (%d bytes)", len(data))
	}

	var (
		out PositionAccount
		err error
	)
	dec := bin.NewBorshDecoder(data[8:])
	if out.LbPair, err = anchor.ReadPubkey(dec); err != nil {
		return nil, err
	}
	if out.Owner, err = anchor.ReadPubkey(dec); err != nil {
		return nil, err
	}

	dec = bin.NewBorshDecoder(data[offsetPositionLowerBin:])
	if out.LowerBinID, err = dec.ReadInt32(binary.LittleEndian); err != nil {
		return nil, err
	}
	if out.UpperBinID, err = dec.ReadInt32(binary.LittleEndian); err != nil {
		return nil, err
	}
	return &out, nil
}

// PositionOwnerOffset is where the owner key sits, for getProgramAccounts filters.
const PositionOwnerOffset = 40
