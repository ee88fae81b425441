// Package config provides configuration management for the stele indexer.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Chain     ChainConfig
	Contracts ContractsConfig
	NATS      NATSConfig
	Dedupe    DedupeConfig
	Logging   LoggingConfig
}

// ServerConfig holds query API server configuration
type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RateLimitRPS    int // per client, 0 disables limiting
	RateLimitBurst  int
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	// Backend selects the aggregate store: "postgres" or "memory"
	Backend    string
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// URL returns the connection URL used by golang-migrate
func (c PostgresConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", c.User, c.Password, c.Host, c.Port, c.Database)
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Enabled       bool
	Host          string
	Port          string
	Database      string
	User          string
	Password      string
	BatchMaxRows  int
	BatchInterval time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// ChainConfig holds RPC and polling configuration for the indexed chain
type ChainConfig struct {
	RPCURL           string
	PollInterval     time.Duration
	MaxBlocksPerPoll int
	StartBlock       uint64
	Confirmations    uint64
	RPCRateLimit     int // requests per second, 0 disables pacing
	RPCTimeout       time.Duration
}

// Endpoints splits the comma-separated RPC URL list
func (c ChainConfig) Endpoints() []string {
	var out []string
	for _, part := range strings.Split(c.RPCURL, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ContractsConfig holds the addresses the indexer reads and listens to
type ContractsConfig struct {
	Governor         string
	Stele            string
	UniswapV3Factory string
	WETH             string
	USDC             string
	FeeTiers         []uint32
}

// NATSConfig holds notification publisher configuration
type NATSConfig struct {
	Enabled       bool
	URL           string
	SubjectPrefix string
}

// DedupeConfig holds replay guard configuration
type DedupeConfig struct {
	Enabled bool
	Prefix  string
	TTL     time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env is optional, environment variables can be set directly
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	feeTiers, err := parseFeeTiers(getEnv("UNISWAP_FEE_TIERS", "500,3000,10000"))
	if err != nil {
		return nil, err
	}

	config := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			RateLimitRPS:    getEnvAsInt("API_RATE_LIMIT", 20),
			RateLimitBurst:  getEnvAsInt("API_RATE_BURST", 40),
		},
		Database: DatabaseConfig{
			Backend: getEnv("STORE_BACKEND", "postgres"),
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "stele_indexer"),
				User:           getEnv("POSTGRES_USER", "stele"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
			},
			ClickHouse: ClickHouseConfig{
				Enabled:       getEnvAsBool("CLICKHOUSE_ENABLED", true),
				Host:          getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:          getEnv("CLICKHOUSE_PORT", "9000"),
				Database:      getEnv("CLICKHOUSE_DB", "stele_indexer"),
				User:          getEnv("CLICKHOUSE_USER", "default"),
				Password:      getEnv("CLICKHOUSE_PASSWORD", ""),
				BatchMaxRows:  getEnvAsInt("CLICKHOUSE_BATCH_MAX_ROWS", 500),
				BatchInterval: getEnvAsDuration("CLICKHOUSE_BATCH_INTERVAL", time.Second),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Chain: ChainConfig{
			RPCURL:           getEnv("RPC_URL", ""),
			PollInterval:     getEnvAsDuration("POLL_INTERVAL", 12*time.Second),
			MaxBlocksPerPoll: getEnvAsInt("MAX_BLOCKS_PER_POLL", 500),
			StartBlock:       getEnvAsUint64("START_BLOCK", 0),
			Confirmations:    getEnvAsUint64("CONFIRMATIONS", 5),
			RPCRateLimit:     getEnvAsInt("RPC_RATE_LIMIT", 25),
			RPCTimeout:       getEnvAsDuration("RPC_TIMEOUT", 10*time.Second),
		},
		Contracts: ContractsConfig{
			Governor:         getEnv("GOVERNOR_ADDRESS", ""),
			Stele:            getEnv("STELE_ADDRESS", "0x4D5e54c0b717dF365bc6278d6e31aff04539Eb85"),
			UniswapV3Factory: getEnv("UNISWAP_V3_FACTORY", "0x33128a8fC17869897dcE68Ed026d694621f6FDfD"),
			WETH:             getEnv("WETH_ADDRESS", "0x4200000000000000000000000000000000000006"),
			USDC:             getEnv("USDC_ADDRESS", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
			FeeTiers:         feeTiers,
		},
		NATS: NATSConfig{
			Enabled:       getEnvAsBool("NATS_ENABLED", false),
			URL:           getEnv("NATS_URL", "nats://localhost:4222"),
			SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "stele"),
		},
		Dedupe: DedupeConfig{
			Enabled: getEnvAsBool("DEDUPE_ENABLED", true),
			Prefix:  getEnv("DEDUPE_PREFIX", "stele:dedupe:"),
			TTL:     getEnvAsDuration("DEDUPE_TTL", 0),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config, nil
}

// Validate checks the settings the indexer cannot run without
func (c *Config) Validate() error {
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}
	addrs := map[string]string{
		"STELE_ADDRESS":      c.Contracts.Stele,
		"UNISWAP_V3_FACTORY": c.Contracts.UniswapV3Factory,
		"WETH_ADDRESS":       c.Contracts.WETH,
		"USDC_ADDRESS":       c.Contracts.USDC,
	}
	if c.Contracts.Governor != "" {
		addrs["GOVERNOR_ADDRESS"] = c.Contracts.Governor
	}
	for name, addr := range addrs {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("%s is not a valid address: %q", name, addr)
		}
	}
	if len(c.Contracts.FeeTiers) == 0 {
		return fmt.Errorf("at least one fee tier is required")
	}
	if c.Database.Backend != "postgres" && c.Database.Backend != "memory" {
		return fmt.Errorf("STORE_BACKEND must be postgres or memory, got %q", c.Database.Backend)
	}
	if c.Chain.MaxBlocksPerPoll <= 0 {
		return fmt.Errorf("MAX_BLOCKS_PER_POLL must be positive")
	}
	return nil
}

func parseFeeTiers(raw string) ([]uint32, error) {
	var tiers []uint32
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid fee tier %q: %w", part, err)
		}
		tiers = append(tiers, uint32(v))
	}
	return tiers, nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsUint64(key string, defaultValue uint64) uint64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
