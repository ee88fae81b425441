package pricing

import (
	"context"
	"errors"
	"math/big"

	"github.com/alitto/pond/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/stele-indexer/internal/adapter"
	apperrors "github.com/stele-indexer/internal/errors"
	"github.com/stele-indexer/internal/logging"
)

// DefaultFeeTiers are the Uniswap V3 fee tiers searched for each pair
var DefaultFeeTiers = []uint32{500, 3000, 10000}

// Config configures a Resolver
type Config struct {
	WETH     common.Address
	USDC     common.Address
	FeeTiers []uint32
	// Workers bounds concurrent pool reads. Default: one per fee tier.
	Workers int
}

// Resolver prices tokens in ETH and ETH in USD from the deepest Uniswap V3 pool
type Resolver struct {
	reader   adapter.ContractReader
	weth     common.Address
	usdc     common.Address
	feeTiers []uint32
	workers  pond.Pool
}

// NewResolver creates a resolver reading through reader
func NewResolver(reader adapter.ContractReader, cfg Config) *Resolver {
	tiers := cfg.FeeTiers
	if len(tiers) == 0 {
		tiers = DefaultFeeTiers
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = len(tiers)
	}
	return &Resolver{
		reader:   reader,
		weth:     cfg.WETH,
		usdc:     cfg.USDC,
		feeTiers: append([]uint32(nil), tiers...),
		workers:  pond.NewPool(workers),
	}
}

// Stop releases the worker pool
func (r *Resolver) Stop() {
	r.workers.StopAndWait()
}

// candidate is one fee tier's pool. liquidity is nil when the pool is
// missing or empty; priced is false when any read after liquidity failed.
type candidate struct {
	fee       uint32
	pool      common.Address
	liquidity *big.Int
	price     decimal.Decimal
	priced    bool
}

// ETHPriceInUSD returns the WETH price in USDC from the deepest WETH/USDC pool.
// It is zero when no pool is usable.
func (r *Resolver) ETHPriceInUSD(ctx context.Context) decimal.Decimal {
	price, ok := r.bestPoolPrice(ctx, r.weth, r.usdc)
	if !ok {
		logging.FromContext(ctx).WithFields(map[string]interface{}{
			"category": apperrors.CategoryExternalCallReverted,
			"token":    r.weth.Hex(),
		}).Warn("No usable WETH/USDC pool, ETH price is zero")
		return decimal.Zero
	}
	return price
}

// TokenPriceInETH returns the price of token in ETH. The second result is
// false when the price is unavailable: the token's decimals cannot be read
// or no fee tier has a usable pool against WETH.
func (r *Resolver) TokenPriceInETH(ctx context.Context, token common.Address) (decimal.Decimal, bool) {
	logger := logging.FromContext(ctx).WithField("token", token.Hex())

	if _, err := r.reader.Decimals(ctx, token); err != nil {
		logger.WithError(apperrors.NewUnresolvableDecimalsError(token.Hex(), err)).
			WithField("category", apperrors.CategoryUnresolvableDecimals).
			Debug("Token decimals unavailable, price unavailable")
		return decimal.Zero, false
	}

	if token == r.weth {
		return decimal.NewFromInt(1), true
	}

	price, ok := r.bestPoolPrice(ctx, token, r.weth)
	if !ok {
		logger.WithField("category", apperrors.CategoryExternalCallReverted).Debug("No usable pool against WETH")
	}
	return price, ok
}

// bestPoolPrice reads every fee tier in parallel, then picks the pool with
// the strictly largest liquidity in tier order; the first seen wins ties.
// The price returned is token quoted in reference, read from that pool
// alone: when its price reads failed the price is unavailable.
func (r *Resolver) bestPoolPrice(ctx context.Context, token, reference common.Address) (decimal.Decimal, bool) {
	candidates := make([]candidate, len(r.feeTiers))

	group := r.workers.NewGroupContext(ctx)
	groupCtx := group.Context()
	for i, fee := range r.feeTiers {
		group.Submit(func() {
			if groupCtx.Err() != nil {
				return
			}
			candidates[i] = r.readCandidate(groupCtx, token, reference, fee)
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		logging.FromContext(ctx).WithError(err).Warn("Parallel pool reads encountered error")
	}

	var best *candidate
	largest := new(big.Int)
	for i := range candidates {
		c := &candidates[i]
		if c.liquidity == nil || c.liquidity.Cmp(largest) <= 0 {
			continue
		}
		best = c
		largest = c.liquidity
	}
	if best == nil {
		return decimal.Zero, false
	}
	if !best.priced {
		logging.FromContext(ctx).WithFields(map[string]interface{}{
			"token":    token.Hex(),
			"pool":     best.pool.Hex(),
			"fee":      best.fee,
			"category": apperrors.CategoryExternalCallReverted,
		}).Warn("Deepest pool could not be priced")
		return decimal.Zero, false
	}
	return best.price, true
}

// readCandidate performs the reads for one fee tier. A failed pool or
// liquidity read drops the tier from selection; a failed price read keeps
// it in selection but unpriced.
func (r *Resolver) readCandidate(ctx context.Context, token, reference common.Address, fee uint32) candidate {
	c := candidate{fee: fee}
	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"token":     token.Hex(),
		"reference": reference.Hex(),
		"fee":       fee,
	})
	reverted := func(call string, err error) candidate {
		logger.WithError(apperrors.NewExternalCallRevertedError(call, c.pool.Hex(), err)).
			WithField("category", apperrors.CategoryExternalCallReverted).
			Debug("Pool read failed")
		return c
	}

	pool, err := r.reader.GetPool(ctx, token, reference, fee)
	if err != nil {
		return reverted("getPool", err)
	}
	c.pool = pool

	liquidity, err := r.reader.PoolLiquidity(ctx, pool)
	if err != nil {
		return reverted("liquidity", err)
	}
	if liquidity.Sign() <= 0 {
		return c
	}
	c.liquidity = liquidity

	token0, token1, err := r.reader.PoolTokens(ctx, pool)
	if err != nil {
		return reverted("token0/token1", err)
	}
	sqrtPrice, err := r.reader.PoolSqrtPriceX96(ctx, pool)
	if err != nil {
		return reverted("slot0", err)
	}
	decimals0, err := r.reader.Decimals(ctx, token0)
	if err != nil {
		return reverted("decimals", err)
	}
	decimals1, err := r.reader.Decimals(ctx, token1)
	if err != nil {
		return reverted("decimals", err)
	}

	price0, price1 := SqrtPriceX96ToTokenPrices(sqrtPrice, decimals0, decimals1)
	if token0 == token {
		c.price = price1
	} else {
		c.price = price0
	}
	c.priced = true
	return c
}
