package cpamm

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

var (
	// MinSqrtPrice and MaxSqrtPrice bound the Q64.64 sqrt price the program accepts.
	MinSqrtPrice = big.NewInt(4_295_048_016)
	MaxSqrtPrice = mustBig("79226673521066979257578248091")

	q64 = new(big.Int).Lsh(big.NewInt(1), 64)
)

func mustBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("invalid big integer " + s)
	}
	return v
}

// RawPrice converts a UI price (B per A) into base units.
func RawPrice(uiPrice decimal.Decimal, decimalsA, decimalsB uint8) decimal.Decimal {
	return uiPrice.Shift(int32(decimalsB) - int32(decimalsA))
}

// SqrtPriceFromRaw returns floor(sqrt(rawPrice) * 2^64).
func SqrtPriceFromRaw(rawPrice decimal.Decimal) (*big.Int, error) {
	if !rawPrice.IsPositive() {
		return nil, fmt.Errorf("price must be positive, got %s", rawPrice)
	}
	f, ok := new(big.Float).SetPrec(256).SetString(rawPrice.String())
	if !ok {
		return nil, fmt.Errorf("parse price %s", rawPrice)
	}
	f.Sqrt(f)
	f.Mul(f, new(big.Float).SetPrec(256).SetInt(q64))
	out, _ := f.Int(nil)
	if out.Cmp(MinSqrtPrice) < 0 || out.Cmp(MaxSqrtPrice) > 0 {
		return nil, fmt.Errorf("sqrt price %s outside program range", out)
	}
	return out, nil
}

// PriceFromSqrt inverts SqrtPriceFromRaw: (sqrtPrice / 2^64)^2 in base units.
func PriceFromSqrt(sqrtPrice *big.Int) decimal.Decimal {
	sq := new(big.Int).Mul(sqrtPrice, sqrtPrice)
	return decimal.NewFromBigInt(sq, 0).Div(decimal.NewFromBigInt(new(big.Int).Mul(q64, q64), 0))
}

// LiquidityFromA is the liquidity a token A deposit supports between sqrtPrice and sqrtMax:
// amountA * sqrtPrice * sqrtMax / (sqrtMax - sqrtPrice).
func LiquidityFromA(amountA uint64, sqrtPrice, sqrtMax *big.Int) (*big.Int, error) {
	den := new(big.Int).Sub(sqrtMax, sqrtPrice)
	if den.Sign() <= 0 {
		return nil, fmt.Errorf("current price is at or above the range top")
	}
	num := new(big.Int).SetUint64(amountA)
	num.Mul(num, sqrtPrice).Mul(num, sqrtMax)
	return num.Div(num, den), nil
}

// LiquidityFromB is the liquidity a token B deposit supports between sqrtMin and sqrtPrice:
// amountB * 2^128 / (sqrtPrice - sqrtMin).
func LiquidityFromB(amountB uint64, sqrtPrice, sqrtMin *big.Int) (*big.Int, error) {
	den := new(big.Int).Sub(sqrtPrice, sqrtMin)
	if den.Sign() <= 0 {
		return nil, fmt.Errorf("current price is at or below the range bottom")
	}
	num := new(big.Int).Lsh(new(big.Int).SetUint64(amountB), 128)
	return num.Div(num, den), nil
}

// LiquidityForDeposit returns the liquidity delta for a deposit. Zero amounts are
// treated as absent sides; two-sided deposits take the smaller of both.
func LiquidityForDeposit(amountA, amountB uint64, sqrtPrice, sqrtMin, sqrtMax *big.Int) (*big.Int, error) {
	switch {
	case amountA == 0 && amountB == 0:
		return nil, fmt.Errorf("deposit amounts are both zero")
	case amountB == 0:
		return LiquidityFromA(amountA, sqrtPrice, sqrtMax)
	case amountA == 0:
		return LiquidityFromB(amountB, sqrtPrice, sqrtMin)
	}
	la, err := LiquidityFromA(amountA, sqrtPrice, sqrtMax)
	if err != nil {
		return nil, err
	}
	lb, err := LiquidityFromB(amountB, sqrtPrice, sqrtMin)
	if err != nil {
		return nil, err
	}
	if la.Cmp(lb) < 0 {
		return la, nil
	}
	return lb, nil
}

// AmountsForLiquidity returns the token amounts backing liquidity at the current
// price, rounded down (what a withdrawal pays out).
func AmountsForLiquidity(liquidity, sqrtPrice, sqrtMin, sqrtMax *big.Int) (amountA, amountB uint64, err error) {
	if liquidity.Sign() == 0 {
		return 0, 0, nil
	}
	// a = L * (sqrtMax - sqrtPrice) / (sqrtPrice * sqrtMax)
	a := new(big.Int).Sub(sqrtMax, sqrtPrice)
	a.Mul(a, liquidity)
	a.Div(a, new(big.Int).Mul(sqrtPrice, sqrtMax))

	// b = L * (sqrtPrice - sqrtMin) / 2^128
	b := new(big.Int).Sub(sqrtPrice, sqrtMin)
	b.Mul(b, liquidity)
	b.Rsh(b, 128)

	if !a.IsUint64() || !b.IsUint64() {
		return 0, 0, fmt.Errorf("amount overflow")
	}
	return a.Uint64(), b.Uint64(), nil
}

// ShareOf returns floor(liquidity * bps / 10000).
func ShareOf(liquidity *big.Int, bps uint16) *big.Int {
	out := new(big.Int).Mul(liquidity, big.NewInt(int64(bps)))
	return out.Div(out, big.NewInt(10_000))
}

// ApplySlippage calculates the minimum accepted amount with slippage tolerance
// slippageBps: basis points (e.g., 100 = 1%, 50 = 0.5%)
func ApplySlippage(amount uint64, slippageBps uint16) uint64 {
	if slippageBps >= 10_000 {
		return 0
	}
	result := new(big.Int).SetUint64(amount)
	result.Mul(result, big.NewInt(int64(10_000-slippageBps)))
	result.Div(result, big.NewInt(10_000))
	return result.Uint64()
}

// SingleSidedSqrtPrice pins the initial price at the range edge where only the
// deposited token is needed: token A at sqrtMin, token B at sqrtMax.
func SingleSidedSqrtPrice(depositA bool, sqrtMin, sqrtMax *big.Int) *big.Int {
	if depositA {
		return new(big.Int).Set(sqrtMin)
	}
	return new(big.Int).Set(sqrtMax)
}
