package adapter

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"

	"github.com/stele-indexer/internal/circuitbreaker"
	"github.com/stele-indexer/internal/logging"
	"github.com/stele-indexer/internal/retry"
)

// EthereumAdapter implements ContractReader and LogSource over JSON-RPC.
// Calls are paced by a token bucket, guarded by a circuit breaker and
// retried with backoff. Reverts are answers, so they are never retried
// and never count against the breaker.
type EthereumAdapter struct {
	pool     *RPCPool
	limiter  *rate.Limiter
	breaker  *circuitbreaker.CircuitBreaker
	retryCfg *retry.RetryConfig
	timeout  time.Duration

	stele   common.Address
	factory common.Address

	erc20ABI   abi.ABI
	factoryABI abi.ABI
	poolABI    abi.ABI
	steleABI   abi.ABI
}

// EthereumAdapterConfig holds configuration for creating an EthereumAdapter
type EthereumAdapterConfig struct {
	// Pool supplies the RPC clients. Required.
	Pool *RPCPool

	// SteleAddress is the challenge contract queried for portfolios
	SteleAddress common.Address

	// FactoryAddress is the Uniswap V3 factory queried for pools
	FactoryAddress common.Address

	// RequestsPerSecond paces calls. Zero disables pacing.
	RequestsPerSecond int

	// Timeout bounds a single RPC request. Default: 10 seconds
	Timeout time.Duration
}

// NewEthereumAdapter creates an adapter from cfg
func NewEthereumAdapter(cfg *EthereumAdapterConfig) (*EthereumAdapter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if cfg.Pool == nil {
		return nil, fmt.Errorf("rpc pool cannot be nil")
	}

	a := &EthereumAdapter{
		pool:    cfg.Pool,
		timeout: cfg.Timeout,
		stele:   cfg.SteleAddress,
		factory: cfg.FactoryAddress,
	}
	if a.timeout == 0 {
		a.timeout = 10 * time.Second
	}
	if cfg.RequestsPerSecond > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.RequestsPerSecond)
	}

	breakerCfg := circuitbreaker.DefaultConfig("rpc")
	breakerCfg.IsFailure = func(err error) bool { return err != nil && !IsReverted(err) }
	a.breaker = circuitbreaker.NewCircuitBreaker(breakerCfg)
	a.retryCfg = retry.RPCRetryConfig(shouldRetry)

	for _, item := range []struct {
		dst *abi.ABI
		raw string
	}{
		{&a.erc20ABI, erc20ViewABI},
		{&a.factoryABI, uniswapV3FactoryViewABI},
		{&a.poolABI, uniswapV3PoolViewABI},
		{&a.steleABI, stelePortfolioViewABI},
	} {
		parsed, err := abi.JSON(strings.NewReader(item.raw))
		if err != nil {
			return nil, fmt.Errorf("parse view abi: %w", err)
		}
		*item.dst = parsed
	}

	logging.WithFields(map[string]interface{}{
		"endpoints":         cfg.Pool.EndpointCount(),
		"requestsPerSecond": cfg.RequestsPerSecond,
	}).Info("Created Ethereum adapter")

	return a, nil
}

func shouldRetry(err error) bool {
	return !IsReverted(err) &&
		!errors.Is(err, circuitbreaker.ErrCircuitOpen) &&
		!errors.Is(err, context.Canceled)
}

// isRevertError recognises node answers that mean the call itself failed
func isRevertError(err error) bool {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == 3 {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "execution reverted") ||
		strings.Contains(msg, "invalid opcode") ||
		strings.Contains(msg, "out of gas")
}

// do runs fn against the current client with pacing, breaker and retry
func (a *EthereumAdapter) do(ctx context.Context, fn func(ctx context.Context, client EthClient) error) error {
	return retry.Do(ctx, a.retryCfg, func(ctx context.Context, attempt int) error {
		if a.limiter != nil {
			if err := a.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		return a.breaker.Execute(ctx, func() error {
			callCtx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			err := fn(callCtx, a.pool.GetClient())
			switch {
			case err == nil, IsReverted(err):
				return err
			case isRevertError(err):
				return fmt.Errorf("%w: %v", ErrReverted, err)
			case IsRateLimitError(err):
				if failErr := a.pool.OnRateLimited(); failErr != nil {
					logging.WithError(failErr).Warn("RPC failover unavailable")
				}
			}
			return err
		})
	})
}

// call packs method, runs it against to and unpacks the outputs
func (a *EthereumAdapter) call(ctx context.Context, contract *abi.ABI, to common.Address, method string, args ...interface{}) ([]interface{}, error) {
	input, err := contract.Pack(method, args...)
	if err != nil {
		return nil, NewAdapterError(method, err, nil)
	}

	block := CallBlock(ctx)
	var output []byte
	err = a.do(ctx, func(ctx context.Context, client EthClient) error {
		res, err := client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: input}, block)
		if err != nil {
			return err
		}
		// A call to an address without code returns nothing
		if len(res) == 0 {
			return ErrReverted
		}
		output = res
		return nil
	})
	if err != nil {
		return nil, NewAdapterError(method, err, map[string]interface{}{"contract": to.Hex()})
	}

	values, err := contract.Unpack(method, output)
	if err != nil {
		return nil, NewAdapterError(method, fmt.Errorf("%w: %v", ErrReverted, err), map[string]interface{}{"contract": to.Hex()})
	}
	return values, nil
}

// Decimals returns the ERC-20 decimal count of token
func (a *EthereumAdapter) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	out, err := a.call(ctx, &a.erc20ABI, token, "decimals")
	if err != nil {
		return 0, err
	}
	return *abi.ConvertType(out[0], new(uint8)).(*uint8), nil
}

// Symbol returns the ERC-20 symbol of token
func (a *EthereumAdapter) Symbol(ctx context.Context, token common.Address) (string, error) {
	out, err := a.call(ctx, &a.erc20ABI, token, "symbol")
	if err != nil {
		return "", err
	}
	return *abi.ConvertType(out[0], new(string)).(*string), nil
}

// GetPool looks up the pool of the pair at fee; no pool is a revert
func (a *EthereumAdapter) GetPool(ctx context.Context, tokenA, tokenB common.Address, fee uint32) (common.Address, error) {
	out, err := a.call(ctx, &a.factoryABI, a.factory, "getPool", tokenA, tokenB, new(big.Int).SetUint64(uint64(fee)))
	if err != nil {
		return common.Address{}, err
	}
	pool := *abi.ConvertType(out[0], new(common.Address)).(*common.Address)
	if pool == (common.Address{}) {
		return common.Address{}, NewAdapterError("getPool", ErrReverted, map[string]interface{}{
			"tokenA": tokenA.Hex(),
			"tokenB": tokenB.Hex(),
			"fee":    fee,
		})
	}
	return pool, nil
}

// PoolLiquidity returns the in-range liquidity of pool
func (a *EthereumAdapter) PoolLiquidity(ctx context.Context, pool common.Address) (*big.Int, error) {
	out, err := a.call(ctx, &a.poolABI, pool, "liquidity")
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

// PoolTokens returns token0 and token1 of pool
func (a *EthereumAdapter) PoolTokens(ctx context.Context, pool common.Address) (common.Address, common.Address, error) {
	out0, err := a.call(ctx, &a.poolABI, pool, "token0")
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	out1, err := a.call(ctx, &a.poolABI, pool, "token1")
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	token0 := *abi.ConvertType(out0[0], new(common.Address)).(*common.Address)
	token1 := *abi.ConvertType(out1[0], new(common.Address)).(*common.Address)
	return token0, token1, nil
}

// PoolSqrtPriceX96 returns slot0().sqrtPriceX96 of pool
func (a *EthereumAdapter) PoolSqrtPriceX96(ctx context.Context, pool common.Address) (*big.Int, error) {
	out, err := a.call(ctx, &a.poolABI, pool, "slot0")
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

// UserPortfolio returns the holdings of user in challengeID
func (a *EthereumAdapter) UserPortfolio(ctx context.Context, challengeID *big.Int, user common.Address) (*Portfolio, error) {
	out, err := a.call(ctx, &a.steleABI, a.stele, "getUserPortfolio", challengeID, user)
	if err != nil {
		return nil, err
	}
	tokens := *abi.ConvertType(out[0], new([]common.Address)).(*[]common.Address)
	amounts := *abi.ConvertType(out[1], new([]*big.Int)).(*[]*big.Int)
	if len(tokens) != len(amounts) {
		return nil, NewAdapterError("getUserPortfolio", fmt.Errorf("%w: %d tokens but %d amounts", ErrReverted, len(tokens), len(amounts)), nil)
	}
	return &Portfolio{Tokens: tokens, Amounts: amounts}, nil
}

// GetCurrentBlock returns the chain head
func (a *EthereumAdapter) GetCurrentBlock(ctx context.Context) (uint64, error) {
	var head uint64
	err := a.do(ctx, func(ctx context.Context, client EthClient) error {
		n, err := client.BlockNumber(ctx)
		head = n
		return err
	})
	if err != nil {
		return 0, NewAdapterError("GetCurrentBlock", err, nil)
	}
	return head, nil
}

// FilterLogs returns the logs matching query
func (a *EthereumAdapter) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]ethtypes.Log, error) {
	if query.FromBlock != nil && query.ToBlock != nil && query.FromBlock.Cmp(query.ToBlock) > 0 {
		return nil, NewAdapterError("FilterLogs", ErrInvalidBlockRange, map[string]interface{}{
			"fromBlock": query.FromBlock.String(),
			"toBlock":   query.ToBlock.String(),
		})
	}
	var logs []ethtypes.Log
	err := a.do(ctx, func(ctx context.Context, client EthClient) error {
		res, err := client.FilterLogs(ctx, query)
		logs = res
		return err
	})
	if err != nil {
		return nil, NewAdapterError("FilterLogs", err, nil)
	}
	return logs, nil
}

// BlockTimestamp returns the timestamp of block number
func (a *EthereumAdapter) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	var ts uint64
	err := a.do(ctx, func(ctx context.Context, client EthClient) error {
		header, err := client.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
		if err != nil {
			return err
		}
		ts = header.Time
		return nil
	})
	if err != nil {
		return 0, NewAdapterError("BlockTimestamp", err, map[string]interface{}{"block": number})
	}
	return ts, nil
}

// Close closes the underlying RPC connections
func (a *EthereumAdapter) Close() {
	a.pool.Close()
}
