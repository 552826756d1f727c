package token

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"sync"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/aman-zulfiqar/rift-liquidity/internal/rpc"
)

const (
	mintBaseSize         = 82
	accountBaseSize      = 165
	accountTypeMint      = 1
	extTransferFeeConfig = 1
	transferFeeConfigLen = 108
)

// TransferFee is one epoch-scoped fee schedule of the TransferFeeConfig extension.
type TransferFee struct {
	Epoch       uint64 `json:"epoch"`
	MaximumFee  uint64 `json:"maximum_fee"`
	BasisPoints uint16 `json:"basis_points"`
}

// Fee mirrors Token-2022: ceil(amount * bps / 10000), capped at MaximumFee.
func (f TransferFee) Fee(amount uint64) uint64 {
	if f.BasisPoints == 0 || amount == 0 {
		return 0
	}
	num := new(big.Int).Mul(new(big.Int).SetUint64(amount), big.NewInt(int64(f.BasisPoints)))
	num.Add(num, big.NewInt(9_999))
	num.Div(num, big.NewInt(10_000))
	if !num.IsUint64() || num.Uint64() > f.MaximumFee {
		return f.MaximumFee
	}
	return num.Uint64()
}

type TransferFeeConfig struct {
	WithheldAmount uint64      `json:"withheld_amount"`
	Older          TransferFee `json:"older"`
	Newer          TransferFee `json:"newer"`
}

// Conservative takes the larger rate and cap of both schedules so the result holds
// on either side of an epoch boundary.
func (c TransferFeeConfig) Conservative() TransferFee {
	out := c.Newer
	if c.Older.BasisPoints > out.BasisPoints {
		out.BasisPoints = c.Older.BasisPoints
	}
	if c.Older.MaximumFee > out.MaximumFee {
		out.MaximumFee = c.Older.MaximumFee
	}
	return out
}

// MintInfo is the subset of a mint account the orchestrator needs
type MintInfo struct {
	Address     solana.PublicKey   `json:"address"`
	Program     solana.PublicKey   `json:"program"`
	Decimals    uint8              `json:"decimals"`
	TransferFee *TransferFeeConfig `json:"transfer_fee,omitempty"`
	// FeeBearing is set when the mint is known to charge a transfer fee even though
	// the extension could not be read.
	FeeBearing bool `json:"fee_bearing"`
}

// NewPendingFeeMint describes a Token-2022 mint that does not exist on-chain yet but
// will be created with a fixed transfer fee.
func NewPendingFeeMint(address solana.PublicKey, decimals uint8, bps uint16) *MintInfo {
	fee := TransferFee{MaximumFee: math.MaxUint64, BasisPoints: bps}
	return &MintInfo{
		Address:     address,
		Program:     Token2022ProgramID,
		Decimals:    decimals,
		TransferFee: &TransferFeeConfig{Older: fee, Newer: fee},
		FeeBearing:  true,
	}
}

// DecodeMint parses an SPL Token or Token-2022 mint account.
func DecodeMint(acc *rpc.AccountInfo) (*MintInfo, error) {
	if acc == nil {
		return nil, fmt.Errorf("mint account is nil")
	}
	if !IsTokenProgram(acc.Owner) {
		return nil, fmt.Errorf("account %s is owned by %s, not a token program", acc.Address, acc.Owner)
	}
	if len(acc.Data) < mintBaseSize {
		return nil, fmt.Errorf("mint %s: data too short (%d bytes)", acc.Address, len(acc.Data))
	}

	info := &MintInfo{
		Address:  acc.Address,
		Program:  acc.Owner,
		Decimals: acc.Data[44],
	}

	if acc.Owner.Equals(Token2022ProgramID) && len(acc.Data) > accountBaseSize {
		cfg, err := parseTransferFeeExtension(acc.Data)
		if err != nil {
			return nil, fmt.Errorf("mint %s: %w", acc.Address, err)
		}
		if cfg != nil {
			info.TransferFee = cfg
			info.FeeBearing = cfg.Conservative().BasisPoints > 0
		}
	}

	return info, nil
}

// parseTransferFeeExtension walks the TLV area after the padded base account.
func parseTransferFeeExtension(data []byte) (*TransferFeeConfig, error) {
	if data[accountBaseSize] != accountTypeMint {
		return nil, fmt.Errorf("unexpected account type %d", data[accountBaseSize])
	}

	dec := bin.NewBorshDecoder(data[accountBaseSize+1:])
	for dec.Remaining() >= 4 {
		extType, err := dec.ReadUint16(binary.LittleEndian)
		if err != nil {
			return nil, err
		}
		length, err := dec.ReadUint16(binary.LittleEndian)
		if err != nil {
			return nil, err
		}
		if extType == 0 && length == 0 {
			// Uninitialized trailing space.
			break
		}
		if dec.Remaining() < int(length) {
			return nil, fmt.Errorf("extension %d truncated", extType)
		}
		if extType != extTransferFeeConfig {
			if err := dec.SkipBytes(uint(length)); err != nil {
				return nil, err
			}
			continue
		}
		if length != transferFeeConfigLen {
			return nil, fmt.Errorf("transfer fee extension has length %d", length)
		}

		// config authority and withdraw authority
		if err := dec.SkipBytes(64); err != nil {
			return nil, err
		}
		var cfg TransferFeeConfig
		if cfg.WithheldAmount, err = dec.ReadUint64(binary.LittleEndian); err != nil {
			return nil, err
		}
		if cfg.Older, err = readTransferFee(dec); err != nil {
			return nil, err
		}
		if cfg.Newer, err = readTransferFee(dec); err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	return nil, nil
}

func readTransferFee(dec *bin.Decoder) (TransferFee, error) {
	var (
		f   TransferFee
		err error
	)
	if f.Epoch, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return f, err
	}
	if f.MaximumFee, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return f, err
	}
	if f.BasisPoints, err = dec.ReadUint16(binary.LittleEndian); err != nil {
		return f, err
	}
	return f, nil
}

// Haircut returns the amount a program will actually receive when amount is sent.
// Mints with a readable fee schedule use it exactly; fee-bearing mints without one
// fall back to fallbackBps.
func Haircut(amount uint64, mint *MintInfo, fallbackBps uint16) uint64 {
	if mint == nil || amount == 0 {
		return amount
	}
	if mint.TransferFee != nil {
		return amount - mint.TransferFee.Conservative().Fee(amount)
	}
	if !mint.FeeBearing {
		return amount
	}
	fallback := TransferFee{MaximumFee: math.MaxUint64, BasisPoints: fallbackBps}
	return amount - fallback.Fee(amount)
}

// AccountReader is the slice of the RPC client the mint cache needs
type AccountReader interface {
	GetAccountInfo(ctx context.Context, address solana.PublicKey, commitment string) (*rpc.AccountInfo, error)
}

// MintCache memoizes decoded mints for the lifetime of the process; decimals and
// owning program never change once a mint exists.
type MintCache struct {
	reader     AccountReader
	commitment string

	mu    sync.RWMutex
	mints map[solana.PublicKey]*MintInfo
}

func NewMintCache(reader AccountReader, commitment string) *MintCache {
	return &MintCache{
		reader:     reader,
		commitment: commitment,
		mints:      make(map[solana.PublicKey]*MintInfo),
	}
}

// Get fetches and decodes mint, serving repeat lookups from memory
func (m *MintCache) Get(ctx context.Context, mint solana.PublicKey) (*MintInfo, error) {
	m.mu.RLock()
	info, ok := m.mints[mint]
	m.mu.RUnlock()
	if ok {
		return info, nil
	}

	acc, err := m.reader.GetAccountInfo(ctx, mint, m.commitment)
	if err != nil {
		return nil, fmt.Errorf("fetch mint %s: %w", mint, err)
	}
	if acc == nil {
		return nil, fmt.Errorf("mint %s not found", mint)
	}
	info, err = DecodeMint(acc)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.mints[mint] = info
	m.mu.Unlock()
	return info, nil
}

// Put registers a mint that is not readable yet (e.g. created in the same bundle).
func (m *MintCache) Put(info *MintInfo) {
	m.mu.Lock()
	m.mints[info.Address] = info
	m.mu.Unlock()
}
