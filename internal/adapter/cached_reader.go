package adapter

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/puzpuzpuz/xsync/v4"
)

type poolKey struct {
	tokenA common.Address
	tokenB common.Address
	fee    uint32
}

type poolPair struct {
	token0 common.Address
	token1 common.Address
}

// CachedReader memoises the views whose successful answers never change:
// token metadata, factory pool addresses and pool token pairs.
// Failures are not cached, so a token deployed later can still resolve.
type CachedReader struct {
	ContractReader

	decimals   *xsync.Map[common.Address, uint8]
	symbols    *xsync.Map[common.Address, string]
	pools      *xsync.Map[poolKey, common.Address]
	poolTokens *xsync.Map[common.Address, poolPair]
}

// NewCachedReader wraps inner
func NewCachedReader(inner ContractReader) *CachedReader {
	return &CachedReader{
		ContractReader: inner,
		decimals:       xsync.NewMap[common.Address, uint8](),
		symbols:        xsync.NewMap[common.Address, string](),
		pools:          xsync.NewMap[poolKey, common.Address](),
		poolTokens:     xsync.NewMap[common.Address, poolPair](),
	}
}

func (c *CachedReader) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	if d, ok := c.decimals.Load(token); ok {
		return d, nil
	}
	d, err := c.ContractReader.Decimals(ctx, token)
	if err != nil {
		return 0, err
	}
	c.decimals.Store(token, d)
	return d, nil
}

func (c *CachedReader) Symbol(ctx context.Context, token common.Address) (string, error) {
	if s, ok := c.symbols.Load(token); ok {
		return s, nil
	}
	s, err := c.ContractReader.Symbol(ctx, token)
	if err != nil {
		return "", err
	}
	c.symbols.Store(token, s)
	return s, nil
}

func (c *CachedReader) GetPool(ctx context.Context, tokenA, tokenB common.Address, fee uint32) (common.Address, error) {
	key := poolKey{tokenA: tokenA, tokenB: tokenB, fee: fee}
	if p, ok := c.pools.Load(key); ok {
		return p, nil
	}
	p, err := c.ContractReader.GetPool(ctx, tokenA, tokenB, fee)
	if err != nil {
		return common.Address{}, err
	}
	c.pools.Store(key, p)
	return p, nil
}

func (c *CachedReader) PoolTokens(ctx context.Context, pool common.Address) (common.Address, common.Address, error) {
	if pair, ok := c.poolTokens.Load(pool); ok {
		return pair.token0, pair.token1, nil
	}
	t0, t1, err := c.ContractReader.PoolTokens(ctx, pool)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	c.poolTokens.Store(pool, poolPair{token0: t0, token1: t1})
	return t0, t1, nil
}

// PoolLiquidity and PoolSqrtPriceX96 change every block and pass through.

func (c *CachedReader) PoolLiquidity(ctx context.Context, pool common.Address) (*big.Int, error) {
	return c.ContractReader.PoolLiquidity(ctx, pool)
}

func (c *CachedReader) PoolSqrtPriceX96(ctx context.Context, pool common.Address) (*big.Int, error) {
	return c.ContractReader.PoolSqrtPriceX96(ctx, pool)
}

// Size returns the number of cached token metadata entries
func (c *CachedReader) Size() int {
	return c.decimals.Size() + c.symbols.Size()
}
