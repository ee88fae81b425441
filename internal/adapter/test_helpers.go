package adapter

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
)

// FakePool is one Uniswap V3 pool served by FakeReader
type FakePool struct {
	Token0       common.Address
	Token1       common.Address
	Liquidity    *big.Int // nil reverts
	SqrtPriceX96 *big.Int // nil reverts
}

// FakeReader is an in-memory ContractReader for tests.
// Anything not registered reverts.
type FakeReader struct {
	mu         sync.RWMutex
	decimals   map[common.Address]uint8
	symbols    map[common.Address]string
	pools      map[poolKey]common.Address
	poolState  map[common.Address]*FakePool
	portfolios map[string]*Portfolio

	Calls atomic.Int64
}

// NewFakeReader returns an empty fake
func NewFakeReader() *FakeReader {
	return &FakeReader{
		decimals:   make(map[common.Address]uint8),
		symbols:    make(map[common.Address]string),
		pools:      make(map[poolKey]common.Address),
		poolState:  make(map[common.Address]*FakePool),
		portfolios: make(map[string]*Portfolio),
	}
}

// SetToken registers ERC-20 metadata
func (f *FakeReader) SetToken(token common.Address, symbol string, decimals uint8) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decimals[token] = decimals
	f.symbols[token] = symbol
}

// SetPool registers pool for the pair at fee, in both argument orders
func (f *FakeReader) SetPool(tokenA, tokenB common.Address, fee uint32, pool common.Address, state *FakePool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pools[poolKey{tokenA, tokenB, fee}] = pool
	f.pools[poolKey{tokenB, tokenA, fee}] = pool
	f.poolState[pool] = state
}

// SetPortfolio registers the getUserPortfolio answer for user in challengeID
func (f *FakeReader) SetPortfolio(challengeID *big.Int, user common.Address, p *Portfolio) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.portfolios[portfolioKey(challengeID, user)] = p
}

func portfolioKey(challengeID *big.Int, user common.Address) string {
	return challengeID.String() + "-" + user.Hex()
}

func (f *FakeReader) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	f.Calls.Add(1)
	f.mu.RLock()
	defer f.mu.RUnlock()
	d, ok := f.decimals[token]
	if !ok {
		return 0, ErrReverted
	}
	return d, nil
}

func (f *FakeReader) Symbol(ctx context.Context, token common.Address) (string, error) {
	f.Calls.Add(1)
	f.mu.RLock()
	defer f.mu.RUnlock()
	s, ok := f.symbols[token]
	if !ok {
		return "", ErrReverted
	}
	return s, nil
}

func (f *FakeReader) GetPool(ctx context.Context, tokenA, tokenB common.Address, fee uint32) (common.Address, error) {
	f.Calls.Add(1)
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.pools[poolKey{tokenA, tokenB, fee}]
	if !ok {
		return common.Address{}, ErrReverted
	}
	return p, nil
}

func (f *FakeReader) pool(pool common.Address) (*FakePool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	state, ok := f.poolState[pool]
	if !ok {
		return nil, ErrReverted
	}
	return state, nil
}

func (f *FakeReader) PoolLiquidity(ctx context.Context, pool common.Address) (*big.Int, error) {
	f.Calls.Add(1)
	state, err := f.pool(pool)
	if err != nil || state.Liquidity == nil {
		return nil, ErrReverted
	}
	return new(big.Int).Set(state.Liquidity), nil
}

func (f *FakeReader) PoolTokens(ctx context.Context, pool common.Address) (common.Address, common.Address, error) {
	f.Calls.Add(1)
	state, err := f.pool(pool)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	return state.Token0, state.Token1, nil
}

func (f *FakeReader) PoolSqrtPriceX96(ctx context.Context, pool common.Address) (*big.Int, error) {
	f.Calls.Add(1)
	state, err := f.pool(pool)
	if err != nil || state.SqrtPriceX96 == nil {
		return nil, ErrReverted
	}
	return new(big.Int).Set(state.SqrtPriceX96), nil
}

func (f *FakeReader) UserPortfolio(ctx context.Context, challengeID *big.Int, user common.Address) (*Portfolio, error) {
	f.Calls.Add(1)
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.portfolios[portfolioKey(challengeID, user)]
	if !ok {
		return nil, ErrReverted
	}
	return p, nil
}
