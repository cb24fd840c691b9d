package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config holds all application configuration.
type Config struct {
	// Application
	LogLevel    string
	HTTPPort    string
	Environment string // "development" enables the faucet and test routes

	// Protocol parameters. Defaults may come from ProtocolConfigFile; env
	// variables override both.
	ProtocolConfigFile   string
	ListingFeeBps        uint32
	SuccessFeeBps        uint32
	DepositMultiplier    uint32
	SellerStakeBps       uint32
	ForfeitureSellerBps  uint32
	MinLeadTime          time.Duration
	ClaimWindow          time.Duration
	EarlyCancelTolerance time.Duration
	RelistOnTimeout      bool
	TreasuryAddress      string
	AmountDecimals       int

	// Proof verification
	AttesterAddresses []string
	ProofMaxClockSkew time.Duration
	ProofCacheTTL     time.Duration
	ProofCacheSize    int64

	// Relayer
	RelayerEnabled     bool
	RelayerAttesterKey string
	RelayerRateLimit   float64 // requests per second per client
	RelayerRateBurst   int
	RelayerQueueSize   int
	RelayerDelay       time.Duration // simulated extraction latency

	// Keeper
	KeeperEnabled         bool
	KeeperInterval        time.Duration
	KeeperAddress         string
	KeeperBreakerWindow   int
	KeeperBreakerMaxRatio float64
	KeeperBreakerInterval time.Duration

	// WebSocket event stream
	WSWriteTimeout time.Duration
	WSPingInterval time.Duration
	WSClientBuffer int

	// Event journal
	StorageMode  string // "console", "postgres" or "none"
	PostgresHost string
	PostgresPort string
	PostgresUser string
	PostgresPass string
	PostgresDB   string
	PostgresSSL  string
}

// LoadFromEnv loads configuration from environment variables with defaults.
func LoadFromEnv() (*Config, error) {
	protocolFile := os.Getenv("PROTOCOL_CONFIG_FILE")
	protocol := DefaultProtocol()
	if protocolFile != "" {
		loaded, err := LoadProtocolFile(protocolFile)
		if err != nil {
			return nil, fmt.Errorf("load protocol file: %w", err)
		}
		protocol = loaded
	}

	cfg := &Config{
		LogLevel:    getEnvOrDefault("LOG_LEVEL", "info"),
		HTTPPort:    getEnvOrDefault("HTTP_PORT", "8080"),
		Environment: getEnvOrDefault("ENVIRONMENT", "development"),

		ProtocolConfigFile:   protocolFile,
		ListingFeeBps:        getUint32OrDefault("LISTING_FEE_BPS", protocol.Fees.ListingFeeBps),
		SuccessFeeBps:        getUint32OrDefault("SUCCESS_FEE_BPS", protocol.Fees.SuccessFeeBps),
		DepositMultiplier:    getUint32OrDefault("DEPOSIT_MULTIPLIER", protocol.Fees.DepositMultiplier),
		SellerStakeBps:       getUint32OrDefault("SELLER_STAKE_BPS", protocol.Fees.SellerStakeBps),
		ForfeitureSellerBps:  getUint32OrDefault("FORFEITURE_SELLER_BPS", protocol.Fees.ForfeitureSellerBps),
		MinLeadTime:          getDurationOrDefault("MIN_LEAD_TIME", protocol.Timing.MinLeadTime.Duration),
		ClaimWindow:          getDurationOrDefault("CLAIM_WINDOW", protocol.Timing.ClaimWindow.Duration),
		EarlyCancelTolerance: getDurationOrDefault("EARLY_CANCEL_TOLERANCE", protocol.Timing.EarlyCancelTolerance.Duration),
		RelistOnTimeout:      getBoolOrDefault("RELIST_ON_TIMEOUT", protocol.RelistOnTimeout),
		TreasuryAddress:      getEnvOrDefault("TREASURY_ADDRESS", protocol.Treasury),
		AmountDecimals:       getIntOrDefault("AMOUNT_DECIMALS", protocol.AmountDecimals),

		AttesterAddresses: getListOrDefault("ATTESTER_ADDRESSES", nil),
		ProofMaxClockSkew: getDurationOrDefault("PROOF_MAX_CLOCK_SKEW", 5*time.Minute),
		ProofCacheTTL:     getDurationOrDefault("PROOF_CACHE_TTL", 10*time.Minute),
		ProofCacheSize:    int64(getIntOrDefault("PROOF_CACHE_SIZE", 10_000)),

		RelayerEnabled:     getBoolOrDefault("RELAYER_ENABLED", false),
		RelayerAttesterKey: os.Getenv("RELAYER_ATTESTER_KEY"),
		RelayerRateLimit:   getFloat64OrDefault("RELAYER_RATE_LIMIT", 5.0),
		RelayerRateBurst:   getIntOrDefault("RELAYER_RATE_BURST", 10),
		RelayerQueueSize:   getIntOrDefault("RELAYER_QUEUE_SIZE", 128),
		RelayerDelay:       getDurationOrDefault("RELAYER_PROCESSING_DELAY", time.Second),

		KeeperEnabled:         getBoolOrDefault("KEEPER_ENABLED", true),
		KeeperInterval:        getDurationOrDefault("KEEPER_INTERVAL", 30*time.Second),
		KeeperAddress:         getEnvOrDefault("KEEPER_ADDRESS", "0x000000000000000000000000000000000000bEEF"),
		KeeperBreakerWindow:   getIntOrDefault("KEEPER_BREAKER_WINDOW", 20),
		KeeperBreakerMaxRatio: getFloat64OrDefault("KEEPER_BREAKER_MAX_FAILURE_RATIO", 0.5),
		KeeperBreakerInterval: getDurationOrDefault("KEEPER_BREAKER_CHECK_INTERVAL", 30*time.Second),

		WSWriteTimeout: getDurationOrDefault("WS_WRITE_TIMEOUT", 10*time.Second),
		WSPingInterval: getDurationOrDefault("WS_PING_INTERVAL", 30*time.Second),
		WSClientBuffer: getIntOrDefault("WS_CLIENT_BUFFER", 256),

		StorageMode:  getEnvOrDefault("STORAGE_MODE", "console"),
		PostgresHost: getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort: getEnvOrDefault("POSTGRES_PORT", "5432"),
		PostgresUser: getEnvOrDefault("POSTGRES_USER", "escrow"),
		PostgresPass: getEnvOrDefault("POSTGRES_PASSWORD", "escrow"),
		PostgresDB:   getEnvOrDefault("POSTGRES_DB", "reservation_escrow"),
		PostgresSSL:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
	}

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are valid. Fee parameter ranges
// are checked again by fees.New.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT cannot be empty")
	}

	if c.Environment != "development" && c.Environment != "production" {
		return fmt.Errorf("ENVIRONMENT must be 'development' or 'production', got %q", c.Environment)
	}

	if c.ListingFeeBps+c.SuccessFeeBps >= 10_000 {
		return fmt.Errorf("LISTING_FEE_BPS + SUCCESS_FEE_BPS must be below 10000, got %d", c.ListingFeeBps+c.SuccessFeeBps)
	}

	if c.DepositMultiplier == 0 {
		return fmt.Errorf("DEPOSIT_MULTIPLIER must be positive")
	}

	if c.ForfeitureSellerBps > 10_000 {
		return fmt.Errorf("FORFEITURE_SELLER_BPS must be at most 10000, got %d", c.ForfeitureSellerBps)
	}

	if c.ClaimWindow <= 0 {
		return fmt.Errorf("CLAIM_WINDOW must be positive, got %s", c.ClaimWindow)
	}

	if c.MinLeadTime < 0 || c.EarlyCancelTolerance < 0 {
		return fmt.Errorf("MIN_LEAD_TIME and EARLY_CANCEL_TOLERANCE cannot be negative")
	}

	if !common.IsHexAddress(c.TreasuryAddress) {
		return fmt.Errorf("TREASURY_ADDRESS must be a hex address, got %q", c.TreasuryAddress)
	}

	for _, a := range c.AttesterAddresses {
		if !common.IsHexAddress(a) {
			return fmt.Errorf("ATTESTER_ADDRESSES contains invalid address %q", a)
		}
	}

	if len(c.AttesterAddresses) == 0 && c.RelayerAttesterKey == "" {
		return fmt.Errorf("ATTESTER_ADDRESSES or RELAYER_ATTESTER_KEY must be set")
	}

	if c.RelayerEnabled && c.RelayerAttesterKey == "" {
		return fmt.Errorf("RELAYER_ATTESTER_KEY is required when RELAYER_ENABLED is set")
	}

	if c.RelayerRateLimit <= 0 {
		return fmt.Errorf("RELAYER_RATE_LIMIT must be positive, got %f", c.RelayerRateLimit)
	}

	if c.KeeperEnabled && c.KeeperInterval <= 0 {
		return fmt.Errorf("KEEPER_INTERVAL must be positive, got %s", c.KeeperInterval)
	}

	if !common.IsHexAddress(c.KeeperAddress) {
		return fmt.Errorf("KEEPER_ADDRESS must be a hex address, got %q", c.KeeperAddress)
	}

	if c.StorageMode != "console" && c.StorageMode != "postgres" && c.StorageMode != "none" {
		return fmt.Errorf("STORAGE_MODE must be 'console', 'postgres' or 'none', got %q", c.StorageMode)
	}

	return nil
}

// IsDevelopment reports whether development-only routes are enabled.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// Treasury returns the parsed treasury address.
func (c *Config) Treasury() common.Address {
	return common.HexToAddress(c.TreasuryAddress)
}

// Keeper returns the address the keeper acts as.
func (c *Config) Keeper() common.Address {
	return common.HexToAddress(c.KeeperAddress)
}

// Attesters returns the parsed attester addresses.
func (c *Config) Attesters() []common.Address {
	out := make([]common.Address, 0, len(c.AttesterAddresses))
	for _, a := range c.AttesterAddresses {
		out = append(out, common.HexToAddress(a))
	}
	return out
}

func getEnvOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getUint32OrDefault(key string, defaultValue uint32) uint32 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	v, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return defaultValue
	}

	return uint32(v)
}

func getFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}

	return floatVal
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return b
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}

// getListOrDefault splits a comma-separated variable, dropping blanks.
func getListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
