package dlmm

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// MaxBinsPerArray is the number of bins stored in one bin array account.
const MaxBinsPerArray = 70

// BinArrayIndex returns the index of the bin array that stores binID (floor division).
func BinArrayIndex(binID int32) int64 {
	idx := int64(binID) / MaxBinsPerArray
	if binID < 0 && int64(binID)%MaxBinsPerArray != 0 {
		idx--
	}
	return idx
}

// BinArrayBounds returns the first and last bin ids held by bin array idx.
func BinArrayBounds(idx int64) (lower, upper int32) {
	lower = int32(idx * MaxBinsPerArray)
	return lower, lower + MaxBinsPerArray - 1
}

// RawPrice converts a UI price (Y per X) into lamport units.
func RawPrice(uiPrice decimal.Decimal, decimalsX, decimalsY uint8) decimal.Decimal {
	return uiPrice.Shift(int32(decimalsY) - int32(decimalsX))
}

// BinIDFromPrice is floor(log(price) / log(1 + binStep/10000)) on the raw price.
func BinIDFromPrice(rawPrice decimal.Decimal, binStep uint16) (int32, error) {
	if !rawPrice.IsPositive() {
		return 0, fmt.Errorf("price must be positive")
	}
	if binStep == 0 {
		return 0, fmt.Errorf("bin step must be positive")
	}
	p := rawPrice.InexactFloat64()
	id := math.Floor(math.Log(p) / math.Log1p(float64(binStep)/10_000))
	if id > math.MaxInt32 || id < math.MinInt32 {
		return 0, fmt.Errorf("price %s out of bin range", rawPrice)
	}
	return int32(id), nil
}

// PriceOfBin is (1 + binStep/10000)^binID in raw units.
func PriceOfBin(binID int32, binStep uint16) decimal.Decimal {
	base := 1 + float64(binStep)/10_000
	return decimal.NewFromFloat(math.Pow(base, float64(binID)))
}

// DepositRange picks the bins a new position covers. Single-sided X deposits start at
// the active bin and go up, Y deposits end at it, two-sided deposits are centered.
func DepositRange(activeID int32, width int32, xOnly, yOnly bool) (lower, upper int32) {
	if width < 1 {
		width = 1
	}
	switch {
	case xOnly:
		return activeID, activeID + width - 1
	case yOnly:
		return activeID - width + 1, activeID
	default:
		lower = activeID - width/2
		return lower, lower + width - 1
	}
}
