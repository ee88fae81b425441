package adapter

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/stele-indexer/internal/logging"
)

// EthClient is the subset of ethclient.Client the adapter uses
type EthClient interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]ethtypes.Log, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error)
	BlockNumber(ctx context.Context) (uint64, error)
	Close()
}

// DialFunc connects to one RPC endpoint
type DialFunc func(url string) (EthClient, error)

// DialEthClient dials url with go-ethereum's client
func DialEthClient(url string) (EthClient, error) {
	client, err := ethclient.Dial(url)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// RPCPool manages multiple RPC endpoints with failover on rate limiting (429)
// Strategy: Stick to current endpoint until 429, then switch to next
type RPCPool struct {
	endpoints    []string
	clients      []EthClient
	dial         DialFunc
	currentIndex int
	mu           sync.RWMutex
	cooldowns    map[int]time.Time // Track when each endpoint was rate limited
	cooldownTime time.Duration     // How long to wait before retrying a rate-limited endpoint
}

// RPCPoolConfig holds configuration for creating an RPC pool
type RPCPoolConfig struct {
	// Endpoints is a list of RPC URLs
	Endpoints []string
	// CooldownTime is how long to wait before retrying a rate-limited endpoint
	// Default: 60 seconds
	CooldownTime time.Duration
	// Dial connects to an endpoint. Default: DialEthClient
	Dial DialFunc
}

// NewRPCPool creates a new RPC pool from multiple endpoints
func NewRPCPool(cfg *RPCPoolConfig) (*RPCPool, error) {
	if cfg == nil || len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("at least one RPC endpoint is required")
	}

	cooldownTime := cfg.CooldownTime
	if cooldownTime == 0 {
		cooldownTime = 60 * time.Second
	}
	dial := cfg.Dial
	if dial == nil {
		dial = DialEthClient
	}

	pool := &RPCPool{
		endpoints:    cfg.Endpoints,
		clients:      make([]EthClient, len(cfg.Endpoints)),
		dial:         dial,
		cooldowns:    make(map[int]time.Time),
		cooldownTime: cooldownTime,
	}

	// Connect to first endpoint only (lazy connect others)
	client, err := dial(cfg.Endpoints[0])
	if err != nil {
		return nil, fmt.Errorf("failed to connect to primary RPC endpoint: %w", err)
	}
	pool.clients[0] = client

	logging.WithField("endpoints", len(cfg.Endpoints)).Info("RPC pool initialized")

	return pool, nil
}

// GetClient returns the current active client
func (p *RPCPool) GetClient() EthClient {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.clients[p.currentIndex]
}

// GetCurrentIndex returns the current endpoint index
func (p *RPCPool) GetCurrentIndex() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.currentIndex
}

// EndpointCount returns the number of endpoints in the pool
func (p *RPCPool) EndpointCount() int {
	return len(p.endpoints)
}

// OnRateLimited should be called when a 429 response is received.
// It switches to the next endpoint that is not cooling down.
func (p *RPCPool) OnRateLimited() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cooldowns[p.currentIndex] = time.Now()

	startIndex := p.currentIndex
	for i := 0; i < len(p.endpoints); i++ {
		nextIndex := (startIndex + 1 + i) % len(p.endpoints)

		if cooledAt, exists := p.cooldowns[nextIndex]; exists {
			if time.Since(cooledAt) < p.cooldownTime {
				continue
			}
			delete(p.cooldowns, nextIndex)
		}

		if err := p.switchToEndpoint(nextIndex); err != nil {
			logging.WithField("endpoint", nextIndex).WithError(err).Warn("Failed to switch RPC endpoint")
			continue
		}

		logging.WithFields(map[string]interface{}{
			"from": startIndex,
			"to":   nextIndex,
		}).Info("Switched RPC endpoint after rate limit")
		return nil
	}

	return fmt.Errorf("all %d RPC endpoints are rate limited", len(p.endpoints))
}

// switchToEndpoint switches to a specific endpoint (must hold lock)
func (p *RPCPool) switchToEndpoint(index int) error {
	if p.clients[index] == nil {
		client, err := p.dial(p.endpoints[index])
		if err != nil {
			return fmt.Errorf("failed to connect to endpoint %d: %w", index, err)
		}
		p.clients[index] = client
	}

	p.currentIndex = index
	return nil
}

// IsRateLimitError checks if an error indicates rate limiting (429)
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "throttl")
}

// Close closes all client connections
func (p *RPCPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, client := range p.clients {
		if client != nil {
			client.Close()
			p.clients[i] = nil
		}
	}
}
