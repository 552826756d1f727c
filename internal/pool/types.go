package pool

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
)

// Family is the AMM family a pool belongs to. It never changes after creation.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyBinBased
	FamilyConstantProduct
)

func (f Family) String() string {
	switch f {
	case FamilyBinBased:
		return "bin_based"
	case FamilyConstantProduct:
		return "constant_product"
	default:
		return "unknown"
	}
}

// ParseFamily accepts the String form.
func ParseFamily(s string) (Family, error) {
	switch s {
	case "bin_based", "dlmm":
		return FamilyBinBased, nil
	case "constant_product", "cpamm", "damm":
		return FamilyConstantProduct, nil
	default:
		return FamilyUnknown, fmt.Errorf("unknown pool family %q", s)
	}
}

func (f Family) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

func (f *Family) UnmarshalText(b []byte) error {
	v, err := ParseFamily(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// Side names a storage slot: A/X or B/Y.
type Side int

const (
	SideA Side = iota
	SideB
)

func (s Side) Other() Side {
	if s == SideA {
		return SideB
	}
	return SideA
}

func (s Side) String() string {
	if s == SideA {
		return "A"
	}
	return "B"
}

// BinState carries the bin-based specific fields (token X = slot A, Y = slot B).
type BinState struct {
	ActiveID        int32            `json:"active_id"`
	BinStep         uint16           `json:"bin_step"`
	ReserveXAccount solana.PublicKey `json:"reserve_x_account"`
	ReserveYAccount solana.PublicKey `json:"reserve_y_account"`
}

// ConstantProductState carries the constant-product specific fields.
type ConstantProductState struct {
	VaultA       solana.PublicKey `json:"vault_a"`
	VaultB       solana.PublicKey `json:"vault_b"`
	Liquidity    *big.Int         `json:"liquidity"`
	SqrtPrice    *big.Int         `json:"sqrt_price"`
	SqrtMinPrice *big.Int         `json:"sqrt_min_price"`
	SqrtMaxPrice *big.Int         `json:"sqrt_max_price"`
}

// Pool is a tagged union over the two families: exactly one of Bin or
// ConstantProduct is set, matching Family. Reserves are read fresh per quote.
type Pool struct {
	Address    solana.PublicKey `json:"address"`
	Family     Family           `json:"family"`
	TokenAMint solana.PublicKey `json:"token_a_mint"`
	TokenBMint solana.PublicKey `json:"token_b_mint"`
	FeeBps     uint16           `json:"fee_bps"`
	ReserveA   uint64           `json:"reserve_a"`
	ReserveB   uint64           `json:"reserve_b"`

	Bin             *BinState             `json:"bin,omitempty"`
	ConstantProduct *ConstantProductState `json:"constant_product,omitempty"`
}

// Validate enforces the structural invariants of the union.
func (p *Pool) Validate() error {
	if p.TokenAMint.Equals(p.TokenBMint) {
		return fmt.Errorf("pool %s: token A and token B share mint %s", p.Address, p.TokenAMint)
	}
	switch p.Family {
	case FamilyBinBased:
		if p.Bin == nil || p.ConstantProduct != nil {
			return fmt.Errorf("pool %s: bin-based pool without bin state", p.Address)
		}
	case FamilyConstantProduct:
		if p.ConstantProduct == nil || p.Bin != nil {
			return fmt.Errorf("pool %s: constant-product pool without pool state", p.Address)
		}
	default:
		return fmt.Errorf("pool %s: unknown family", p.Address)
	}
	return nil
}

// SideOf resolves which storage slot holds mint.
func (p *Pool) SideOf(mint solana.PublicKey) (Side, error) {
	switch {
	case p.TokenAMint.Equals(mint):
		return SideA, nil
	case p.TokenBMint.Equals(mint):
		return SideB, nil
	default:
		return 0, fmt.Errorf("mint %s is not in pool %s", mint, p.Address)
	}
}

func (p *Pool) Mint(s Side) solana.PublicKey {
	if s == SideA {
		return p.TokenAMint
	}
	return p.TokenBMint
}

func (p *Pool) Reserve(s Side) uint64 {
	if s == SideA {
		return p.ReserveA
	}
	return p.ReserveB
}

// CanonicalOrder returns the two mints in ascending byte order, the order the AMM
// programs store them in.
func CanonicalOrder(a, b solana.PublicKey) (first, second solana.PublicKey) {
	if bytes.Compare(a[:], b[:]) <= 0 {
		return a, b
	}
	return b, a
}

// SortsBefore reports whether a precedes b in canonical order.
func SortsBefore(a, b solana.PublicKey) bool {
	return bytes.Compare(a[:], b[:]) < 0
}
