// Package pricing resolves token prices from Uniswap V3 pools.
package pricing

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// PricePrecision is the number of fractional digits kept by price divisions
const PricePrecision int32 = 36

var q192 = decimal.NewFromBigInt(new(big.Int).Lsh(big.NewInt(1), 192), 0)

// SqrtPriceX96ToTokenPrices converts a pool's slot0 square-root price into
// decimal unit prices. price1 is token0 in units of token1:
// sqrtPriceX96² / 2¹⁹² × 10^decimals0 / 10^decimals1, and price0 is its inverse.
func SqrtPriceX96ToTokenPrices(sqrtPriceX96 *big.Int, decimals0, decimals1 uint8) (price0, price1 decimal.Decimal) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return decimal.Zero, decimal.Zero
	}
	sq := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)
	num := decimal.NewFromBigInt(sq, int32(decimals0))
	den := q192.Shift(int32(decimals1))

	price1 = num.DivRound(den, PricePrecision)
	price0 = SafeDiv(decimal.NewFromInt(1), price1)
	return price0, price1
}

// SafeDiv divides a by b, returning zero instead of failing when b is zero
func SafeDiv(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return decimal.Zero
	}
	return a.DivRound(b, PricePrecision)
}

// NormalizeAmount scales a raw token amount down by its decimal count
func NormalizeAmount(amount *big.Int, decimals uint8) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -int32(decimals))
}
