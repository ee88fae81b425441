package adapter

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// ContractReader exposes the read-only contract views the indexer consumes.
// Every view is independently revertible: a revert comes back as an error
// wrapping ErrReverted, so callers can treat the value as absent.
type ContractReader interface {
	// Decimals returns the ERC-20 decimal count of token
	Decimals(ctx context.Context, token common.Address) (uint8, error)

	// Symbol returns the ERC-20 symbol of token
	Symbol(ctx context.Context, token common.Address) (string, error)

	// GetPool looks up the Uniswap V3 pool of the pair at fee.
	// A pair without a pool reverts.
	GetPool(ctx context.Context, tokenA, tokenB common.Address, fee uint32) (common.Address, error)

	// PoolLiquidity returns the in-range liquidity of pool
	PoolLiquidity(ctx context.Context, pool common.Address) (*big.Int, error)

	// PoolTokens returns token0 and token1 of pool
	PoolTokens(ctx context.Context, pool common.Address) (common.Address, common.Address, error)

	// PoolSqrtPriceX96 returns slot0().sqrtPriceX96 of pool
	PoolSqrtPriceX96(ctx context.Context, pool common.Address) (*big.Int, error)

	// UserPortfolio returns the holdings of user in challengeID
	UserPortfolio(ctx context.Context, challengeID *big.Int, user common.Address) (*Portfolio, error)
}

// LogSource is the slice of the node API the sync worker polls
type LogSource interface {
	// GetCurrentBlock returns the chain head
	GetCurrentBlock(ctx context.Context) (uint64, error)

	// FilterLogs returns the logs matching query
	FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]ethtypes.Log, error)

	// BlockTimestamp returns the timestamp of block number
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
}

// Portfolio is the parallel token/amount answer of getUserPortfolio
type Portfolio struct {
	Tokens  []common.Address
	Amounts []*big.Int
}

// Common error types for contract reads

var (
	// ErrReverted indicates the view call reverted or returned nothing
	ErrReverted = errors.New("execution reverted")

	// ErrProviderUnavailable indicates the node is unreachable
	ErrProviderUnavailable = errors.New("data provider unavailable")

	// ErrInvalidBlockRange indicates an invalid block range was specified
	ErrInvalidBlockRange = errors.New("invalid block range")
)

// IsReverted reports whether err is a contract revert
func IsReverted(err error) bool {
	return errors.Is(err, ErrReverted)
}

// AdapterError wraps errors with additional context
type AdapterError struct {
	Op      string // Operation that failed (e.g., "Decimals", "FilterLogs")
	Err     error
	Details map[string]interface{}
}

func (e *AdapterError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("adapter error [%s]: %v (details: %+v)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("adapter error [%s]: %v", e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// NewAdapterError creates a new AdapterError
func NewAdapterError(op string, err error, details map[string]interface{}) *AdapterError {
	return &AdapterError{
		Op:      op,
		Err:     err,
		Details: details,
	}
}

type callBlockKey struct{}

// WithCallBlock pins contract reads made with ctx to block number.
// Without it reads go to the latest block.
func WithCallBlock(ctx context.Context, number uint64) context.Context {
	return context.WithValue(ctx, callBlockKey{}, number)
}

// CallBlock returns the block pinned by WithCallBlock, nil for latest
func CallBlock(ctx context.Context) *big.Int {
	if n, ok := ctx.Value(callBlockKey{}).(uint64); ok {
		return new(big.Int).SetUint64(n)
	}
	return nil
}
