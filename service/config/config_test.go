package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cleanupEnv()
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, []string{"https://api.mainnet-beta.solana.com"}, cfg.SolanaRPCURLs)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 100, cfg.RPCRequestsPerWindow)
	assert.Equal(t, 10*time.Second, cfg.RPCWindow)
	assert.Equal(t, 11*time.Second, cfg.RateLimitCooldown)
	assert.Equal(t, 1000, cfg.SignaturePageLimit)
	assert.Equal(t, 1, cfg.FetchWorkers)
	assert.Equal(t, CacheBackendFile, cfg.CacheBackend)
	assert.Equal(t, "GBQF4aztREm6XaeSZyZfpCkqwQJmEAQHrusGVBDhmWQM", cfg.MintsAddress.String())
	require.NotNil(t, cfg.SecondaryEarliestTime)
	assert.Equal(t, int64(1636966800), cfg.SecondaryEarliestTime.Unix())
	assert.Nil(t, cfg.TrackedTokenMint)
	assert.Empty(t, cfg.NATSURL)
}

func TestLoad_CustomValues(t *testing.T) {
	os.Setenv("SOLANA_RPC_URLS", "https://a.example.com, https://b.example.com")
	os.Setenv("FETCH_WORKERS", "4")
	os.Setenv("RATE_LIMIT_COOLDOWN", "2s")
	os.Setenv("SECONDARY_EARLIEST_TIME", "2021-11-15T09:00:00Z")
	os.Setenv("TRACKED_TOKEN_MINT", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	os.Setenv("LOG_LEVEL", "debug")
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.SolanaRPCURLs)
	assert.Equal(t, 4, cfg.FetchWorkers)
	assert.Equal(t, 2*time.Second, cfg.RateLimitCooldown)
	assert.Equal(t, int64(1636966800), cfg.SecondaryEarliestTime.Unix())
	require.NotNil(t, cfg.TrackedTokenMint)
	assert.Equal(t, "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", cfg.TrackedTokenMint.String())
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_DisableEarliestTime(t *testing.T) {
	os.Setenv("SECONDARY_EARLIEST_TIME", "none")
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.Nil(t, cfg.SecondaryEarliestTime)
}

func TestLoad_CollectsAllErrors(t *testing.T) {
	os.Setenv("RPC_WINDOW", "invalid")
	os.Setenv("FETCH_WORKERS", "many")
	os.Setenv("MINTS_ADDRESS", "not-base58!")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "invalid duration")
	assert.Contains(t, err.Error(), "FETCH_WORKERS")
	assert.Contains(t, err.Error(), "MINTS_ADDRESS")
}

func TestLoad_PostgresBackendRequiresDatabaseURL(t *testing.T) {
	os.Setenv("CACHE_BACKEND", "postgres")
	defer cleanupEnv()

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")

	os.Setenv("DATABASE_URL", "postgres://localhost/test")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, CacheBackendPostgres, cfg.CacheBackend)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			SolanaRPCURLs:        []string{"https://api.mainnet-beta.solana.com"},
			RPCRequestsPerWindow: 100,
			RPCWindow:            10 * time.Second,
			RateLimitCooldown:    11 * time.Second,
			RPCCallTimeout:       30 * time.Second,
			SignaturePageLimit:   1000,
			FetchWorkers:         1,
			DataDir:              ".",
			CacheBackend:         CacheBackendFile,
			SyncInterval:         time.Hour,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"no endpoints", func(c *Config) { c.SolanaRPCURLs = nil }, "SolanaRPCURLs is required"},
		{"page limit too large", func(c *Config) { c.SignaturePageLimit = 5000 }, "SignaturePageLimit"},
		{"zero workers", func(c *Config) { c.FetchWorkers = 0 }, "FetchWorkers"},
		{"unknown backend", func(c *Config) { c.CacheBackend = "s3" }, "CacheBackend"},
		{"sync too frequent", func(c *Config) { c.SyncInterval = time.Second }, "SyncInterval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseTime(t *testing.T) {
	got, err := ParseTime("1636966800")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2021, 11, 15, 9, 0, 0, 0, time.UTC), got)

	got, err = ParseTime("2021-11-15T10:00:00+01:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2021, 11, 15, 9, 0, 0, 0, time.UTC), got)

	_, err = ParseTime("yesterday")
	assert.Error(t, err)
}

func cleanupEnv() {
	for _, key := range []string{
		"LOG_LEVEL", "SOLANA_RPC_URLS", "RPC_REQUESTS_PER_WINDOW", "RPC_WINDOW",
		"RATE_LIMIT_COOLDOWN", "RPC_CALL_TIMEOUT", "SIGNATURE_PAGE_LIMIT", "FETCH_WORKERS",
		"DATA_DIR", "CACHE_BACKEND", "DATABASE_URL", "NATS_URL",
		"PURCHASES_ADDRESS", "MINTS_ADDRESS", "SECONDARY_ADDRESS", "SECONDARY_EARLIEST_TIME",
		"TRACKED_TOKEN_MINT", "SALE_LAYOUTS_FILE",
		"TEMPORAL_HOST", "TEMPORAL_NAMESPACE", "TEMPORAL_TASK_QUEUE", "SYNC_INTERVAL", "METRICS_ADDR",
	} {
		os.Unsetenv(key)
	}
}
