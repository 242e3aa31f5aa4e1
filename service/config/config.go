package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
)

// Cache backends.
const (
	CacheBackendFile     = "file"
	CacheBackendPostgres = "postgres"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	LogLevel string

	// Solana RPC configuration
	SolanaRPCURLs        []string
	RPCRequestsPerWindow int
	RPCWindow            time.Duration
	RateLimitCooldown    time.Duration
	RPCCallTimeout       time.Duration
	SignaturePageLimit   int
	FetchWorkers         int

	// Storage configuration
	DataDir      string
	CacheBackend string
	DatabaseURL  string

	// NATS configuration (empty disables record publishing)
	NATSURL string

	// Streams
	PurchasesAddress      solana.PublicKey
	MintsAddress          solana.PublicKey
	SecondaryAddress      solana.PublicKey
	SecondaryEarliestTime *time.Time
	TrackedTokenMint      *solana.PublicKey
	SaleLayoutsFile       string

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string
	SyncInterval      time.Duration

	MetricsAddr string
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error listing every problem found.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Solana RPC configuration
	cfg.SolanaRPCURLs = splitList(getEnvOrDefault("SOLANA_RPC_URLS", "https://api.mainnet-beta.solana.com"))
	if len(cfg.SolanaRPCURLs) == 0 {
		errs = append(errs, fmt.Errorf("SOLANA_RPC_URLS is required"))
	}

	var err error
	if cfg.RPCRequestsPerWindow, err = parseInt("RPC_REQUESTS_PER_WINDOW", 100); err != nil {
		errs = append(errs, err)
	}
	if cfg.RPCWindow, err = parseDuration("RPC_WINDOW", "10s"); err != nil {
		errs = append(errs, err)
	}
	if cfg.RateLimitCooldown, err = parseDuration("RATE_LIMIT_COOLDOWN", "11s"); err != nil {
		errs = append(errs, err)
	}
	if cfg.RPCCallTimeout, err = parseDuration("RPC_CALL_TIMEOUT", "30s"); err != nil {
		errs = append(errs, err)
	}
	if cfg.SignaturePageLimit, err = parseInt("SIGNATURE_PAGE_LIMIT", 1000); err != nil {
		errs = append(errs, err)
	}
	if cfg.FetchWorkers, err = parseInt("FETCH_WORKERS", 1); err != nil {
		errs = append(errs, err)
	}

	// Storage configuration
	cfg.DataDir = getEnvOrDefault("DATA_DIR", ".")
	cfg.CacheBackend = getEnvOrDefault("CACHE_BACKEND", CacheBackendFile)
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	cfg.NATSURL = os.Getenv("NATS_URL")

	// Streams
	if cfg.PurchasesAddress, err = parsePublicKey("PURCHASES_ADDRESS", "Fwdp7bSAA1G4EsDn6DCkAuKSBRAJp7BjHutQptzQtzUG"); err != nil {
		errs = append(errs, err)
	}
	if cfg.MintsAddress, err = parsePublicKey("MINTS_ADDRESS", "GBQF4aztREm6XaeSZyZfpCkqwQJmEAQHrusGVBDhmWQM"); err != nil {
		errs = append(errs, err)
	}
	if cfg.SecondaryAddress, err = parsePublicKey("SECONDARY_ADDRESS", "EqBCGzzRGLcdoKprDiJFtoMGHYL3idfdcHqNvXjtQKGP"); err != nil {
		errs = append(errs, err)
	}
	if cfg.SecondaryEarliestTime, err = parseTime("SECONDARY_EARLIEST_TIME", "1636966800"); err != nil {
		errs = append(errs, err)
	}
	if v := os.Getenv("TRACKED_TOKEN_MINT"); v != "" {
		mint, err := solana.PublicKeyFromBase58(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("TRACKED_TOKEN_MINT: invalid address %q: %w", v, err))
		} else {
			cfg.TrackedTokenMint = &mint
		}
	}
	cfg.SaleLayoutsFile = os.Getenv("SALE_LAYOUTS_FILE")

	// Temporal configuration
	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "mintsales-sync")
	if cfg.SyncInterval, err = parseDuration("SYNC_INTERVAL", "1h"); err != nil {
		errs = append(errs, err)
	}

	cfg.MetricsAddr = getEnvOrDefault("METRICS_ADDR", ":9090")

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if len(c.SolanaRPCURLs) == 0 {
		errs = append(errs, fmt.Errorf("SolanaRPCURLs is required"))
	}
	if c.RPCRequestsPerWindow < 0 {
		errs = append(errs, fmt.Errorf("RPCRequestsPerWindow cannot be negative"))
	}
	if c.RPCRequestsPerWindow > 0 && c.RPCWindow <= 0 {
		errs = append(errs, fmt.Errorf("RPCWindow must be positive when RPCRequestsPerWindow is set"))
	}
	if c.RateLimitCooldown <= 0 {
		errs = append(errs, fmt.Errorf("RateLimitCooldown must be positive"))
	}
	if c.RPCCallTimeout <= 0 {
		errs = append(errs, fmt.Errorf("RPCCallTimeout must be positive"))
	}
	if c.SignaturePageLimit < 1 || c.SignaturePageLimit > 1000 {
		errs = append(errs, fmt.Errorf("SignaturePageLimit must be between 1 and 1000"))
	}
	if c.FetchWorkers < 1 {
		errs = append(errs, fmt.Errorf("FetchWorkers must be at least 1"))
	}
	if c.DataDir == "" {
		errs = append(errs, fmt.Errorf("DataDir is required"))
	}
	switch c.CacheBackend {
	case CacheBackendFile:
	case CacheBackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("DATABASE_URL is required when CACHE_BACKEND is postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("CacheBackend must be %q or %q, got %q", CacheBackendFile, CacheBackendPostgres, c.CacheBackend))
	}
	if c.SyncInterval < time.Minute {
		errs = append(errs, fmt.Errorf("SyncInterval must be at least 1 minute"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}
	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

func parsePublicKey(key, defaultValue string) (solana.PublicKey, error) {
	value := getEnvOrDefault(key, defaultValue)
	pk, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%s: invalid address %q: %w", key, value, err)
	}
	return pk, nil
}

// parseTime accepts unix seconds or RFC 3339. "none" disables the bound.
func parseTime(key, defaultValue string) (*time.Time, error) {
	value := getEnvOrDefault(key, defaultValue)
	if value == "none" {
		return nil, nil
	}
	t, err := ParseTime(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return &t, nil
}

// ParseTime accepts unix seconds or RFC 3339 and returns a UTC time.
func ParseTime(value string) (time.Time, error) {
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q (want unix seconds or RFC 3339)", value)
	}
	return t.UTC(), nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
