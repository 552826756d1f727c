// Package feeledger splits a vault's accrued fees between the two protocol
// beneficiaries and converts a caller's desired claim into the full amount the
// distribution instruction must disburse.
package feeledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/rift-liquidity/internal/constants"
	"github.com/aman-zulfiqar/rift-liquidity/internal/rift"
	"github.com/aman-zulfiqar/rift-liquidity/internal/rpc"
)

var (
	ErrNothingToClaim = errors.New("no fees available")
	ErrExceedsClaim   = errors.New("amount exceeds caller's claimable share")
)

type Role int

const (
	RoleNone Role = iota
	RolePartner
	RoleTreasury
	RoleBoth
)

func (r Role) String() string {
	switch r {
	case RolePartner:
		return "partner"
	case RoleTreasury:
		return "treasury"
	case RoleBoth:
		return "partner+treasury"
	default:
		return "none"
	}
}

func (r Role) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// Vault is the fee-holding side of a rift as the ledger sees it.
type Vault struct {
	ID             solana.PublicKey
	TotalAvailable uint64
	Partner        *solana.PublicKey
	Treasury       *solana.PublicKey
	Decimals       uint8
}

// Entry is the fee ledger view for one caller. BeneficiaryAShare is the partner
// share, BeneficiaryBShare the treasury share; together they equal TotalAvailable.
type Entry struct {
	PoolOrVaultID     solana.PublicKey `json:"pool_or_vault_id"`
	TotalAvailable    uint64           `json:"total_available"`
	BeneficiaryAShare uint64           `json:"beneficiary_a_share"`
	BeneficiaryBShare uint64           `json:"beneficiary_b_share"`
	CallerClaimable   uint64           `json:"caller_claimable"`
	CallerRole        Role             `json:"caller_role"`
	Decimals          uint8            `json:"decimals"`
}

// ComputeClaimable applies the fixed 50/50 split. A caller holding neither role
// sees the whole balance as claimable.
func ComputeClaimable(v Vault, caller solana.PublicKey) Entry {
	partner, treasury := rift.FeeSplit(v.TotalAvailable)
	e := Entry{
		PoolOrVaultID:     v.ID,
		TotalAvailable:    v.TotalAvailable,
		BeneficiaryAShare: partner,
		BeneficiaryBShare: treasury,
		Decimals:          v.Decimals,
	}

	isPartner := v.Partner != nil && v.Partner.Equals(caller)
	isTreasury := v.Treasury != nil && v.Treasury.Equals(caller)
	switch {
	case isPartner && isTreasury:
		e.CallerRole, e.CallerClaimable = RoleBoth, v.TotalAvailable
	case isPartner:
		e.CallerRole, e.CallerClaimable = RolePartner, partner
	case isTreasury:
		e.CallerRole, e.CallerClaimable = RoleTreasury, treasury
	default:
		e.CallerRole, e.CallerClaimable = RoleNone, v.TotalAvailable
	}
	return e
}

// Distribution is a claim converted into distribution-amount space.
type Distribution struct {
	Entered uint64          `json:"entered"`
	Gross   decimal.Decimal `json:"gross"`
	Margin  decimal.Decimal `json:"margin"`
	Amount  uint64          `json:"amount"`
}

// TotalToDistribute is entered / (claimable / total), before any margin.
func (e Entry) TotalToDistribute(entered uint64) decimal.Decimal {
	if e.CallerClaimable == 0 || e.CallerClaimable == e.TotalAvailable {
		return decimal.NewFromUint64(entered)
	}
	share := decimal.NewFromUint64(e.CallerClaimable).Div(decimal.NewFromUint64(e.TotalAvailable))
	return decimal.NewFromUint64(entered).Div(share)
}

// Distribute converts entered (raw units of the caller's share) into the amount the
// on-chain instruction must disburse. marginPpm of the total is subtracted and the
// result is rounded down, so integer rounding on-chain never asks for more than the
// vault holds.
func (e Entry) Distribute(entered uint64, marginPpm uint64) (*Distribution, error) {
	if e.TotalAvailable == 0 || e.CallerClaimable == 0 {
		return nil, ErrNothingToClaim
	}
	if entered == 0 {
		return nil, fmt.Errorf("claim amount must be positive")
	}
	if entered > e.CallerClaimable {
		return nil, fmt.Errorf("%w: %d > %d", ErrExceedsClaim, entered, e.CallerClaimable)
	}

	gross := e.TotalToDistribute(entered)
	margin := decimal.NewFromUint64(e.TotalAvailable).
		Mul(decimal.NewFromUint64(marginPpm)).
		Div(decimal.NewFromInt(constants.PpmDenominator))

	net := gross.Sub(margin)
	if total := decimal.NewFromUint64(e.TotalAvailable); net.GreaterThan(total) {
		net = total
	}
	net = net.Floor()
	if !net.IsPositive() {
		return nil, fmt.Errorf("claim of %d is below the distribution margin", entered)
	}

	return &Distribution{
		Entered: entered,
		Gross:   gross,
		Margin:  margin,
		Amount:  uint64(net.IntPart()),
	}, nil
}

// ToRaw converts a UI amount into base units, rounding down.
func ToRaw(ui decimal.Decimal, decimals uint8) (uint64, error) {
	if ui.IsNegative() {
		return 0, fmt.Errorf("negative amount %s", ui)
	}
	raw := ui.Shift(int32(decimals)).Floor()
	if !raw.BigInt().IsUint64() {
		return 0, fmt.Errorf("amount %s overflows", ui)
	}
	return raw.BigInt().Uint64(), nil
}

func ToUI(raw uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromUint64(raw).Shift(-int32(decimals))
}

// ChainReader is the slice of the RPC client the ledger needs.
type ChainReader interface {
	GetAccountInfo(ctx context.Context, address solana.PublicKey, commitment string) (*rpc.AccountInfo, error)
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment string) (*rpc.TokenBalance, error)
}

type Ledger struct {
	reader     ChainReader
	commitment string
	log        *logrus.Logger
}

func NewLedger(reader ChainReader, commitment string, log *logrus.Logger) *Ledger {
	if log == nil {
		log = logrus.New()
	}
	return &Ledger{reader: reader, commitment: commitment, log: log}
}

// Load reads the rift account and its fees vault balance.
func (l *Ledger) Load(ctx context.Context, riftAddress solana.PublicKey) (*rift.Rift, Vault, error) {
	acc, err := l.reader.GetAccountInfo(ctx, riftAddress, l.commitment)
	if err != nil {
		return nil, Vault{}, fmt.Errorf("fetch rift %s: %w", riftAddress, err)
	}
	if acc == nil {
		return nil, Vault{}, fmt.Errorf("rift %s not found", riftAddress)
	}
	r, err := rift.DecodeRift(acc.Data)
	if err != nil {
		return nil, Vault{}, fmt.Errorf("decode rift %s: %w", riftAddress, err)
	}

	bal, err := l.reader.GetTokenAccountBalance(ctx, r.FeesVault, l.commitment)
	if err != nil {
		return nil, Vault{}, fmt.Errorf("fees vault of %s: %w", riftAddress, err)
	}

	return r, Vault{
		ID:             r.FeesVault,
		TotalAvailable: bal.Amount,
		Partner:        r.PartnerWallet,
		Treasury:       r.TreasuryWallet,
		Decimals:       bal.Decimals,
	}, nil
}

// Entry loads the vault and computes the caller's view of it.
func (l *Ledger) Entry(ctx context.Context, riftAddress, caller solana.PublicKey) (*rift.Rift, Entry, error) {
	r, v, err := l.Load(ctx, riftAddress)
	if err != nil {
		return nil, Entry{}, err
	}
	e := ComputeClaimable(v, caller)
	l.log.WithFields(logrus.Fields{
		"rift":      riftAddress.String(),
		"total":     e.TotalAvailable,
		"role":      e.CallerRole.String(),
		"claimable": e.CallerClaimable,
	}).Debug("fee ledger entry")
	return r, e, nil
}
