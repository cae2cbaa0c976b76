// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/seatwise/seatwise/internal/modules/settings"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases (always absolute)
	Port     int
	DevMode  bool
	LogLevel string
	LogPretty bool

	// VaultKey is the base64-encoded 32-byte key for the secret vault.
	// Startup fails fast when it is missing or malformed.
	VaultKey string

	// External API endpoints.
	AuthorityURL   string
	GraphBaseURL   string
	PartnerBaseURL string

	// GraphScope is the resource scope requested for per-tenant graph tokens.
	GraphScope string

	// Partner Center credentials. The partner API is called with a single
	// application identity rather than per-tenant credentials.
	PartnerTenantID     string
	PartnerClientID     string
	PartnerClientSecret string
	PartnerScope        string

	// HTTPTimeout is the per-request wall-clock timeout for external calls.
	HTTPTimeout time.Duration

	// DefaultUnitPrice is the monthly fallback price used when no price row
	// matches during an analysis. Decimal string with two fractional digits.
	DefaultUnitPrice string

	// PriceMarketOverrides maps ISO country codes to commerce markets for
	// tenants whose country does not equal their price market.
	PriceMarketOverrides map[string]string

	// SyncInterval is the scheduled gap between directory sweeps per tenant.
	SyncInterval time.Duration

	// SyncParallelism bounds how many tenants a sweep works concurrently.
	SyncParallelism int

	// AnalysisCron is the schedule for the nightly analysis sweep
	// (six-field cron expression, seconds first).
	AnalysisCron string

	// S3-compatible backup target. Backups are disabled unless both
	// endpoint and bucket are set.
	S3Endpoint          string
	S3Bucket            string
	S3AccessKey         string
	S3SecretKey         string
	S3Region            string
	BackupRetentionDays int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Determine data directory with fallback logic
	// 1. Check SEATWISE_DATA_DIR environment variable
	// 2. If not set, default to ./data
	// 3. Always resolve to absolute path
	// 4. Ensure directory exists
	dataDir := getEnv("SEATWISE_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:              absDataDir,
		Port:                 getEnvAsInt("SEATWISE_PORT", 8080),
		DevMode:              getEnvAsBool("SEATWISE_DEV_MODE", false),
		LogLevel:             getEnv("SEATWISE_LOG_LEVEL", "info"),
		LogPretty:            getEnvAsBool("SEATWISE_LOG_PRETTY", false),
		VaultKey:             getEnv("SEATWISE_VAULT_KEY", ""),
		AuthorityURL:         getEnv("SEATWISE_AUTHORITY_URL", "https://login.microsoftonline.com"),
		GraphBaseURL:         getEnv("SEATWISE_GRAPH_URL", "https://graph.microsoft.com/v1.0"),
		PartnerBaseURL:       getEnv("SEATWISE_PARTNER_URL", "https://api.partnercenter.microsoft.com"),
		GraphScope:           getEnv("SEATWISE_GRAPH_SCOPE", "https://graph.microsoft.com/.default"),
		PartnerTenantID:      getEnv("SEATWISE_PARTNER_TENANT_ID", ""),
		PartnerClientID:      getEnv("SEATWISE_PARTNER_CLIENT_ID", ""),
		PartnerClientSecret:  getEnv("SEATWISE_PARTNER_CLIENT_SECRET", ""),
		PartnerScope:         getEnv("SEATWISE_PARTNER_SCOPE", "https://api.partnercenter.microsoft.com/.default"),
		HTTPTimeout:          time.Duration(getEnvAsInt("SEATWISE_HTTP_TIMEOUT_SECONDS", 30)) * time.Second,
		DefaultUnitPrice:     getEnv("SEATWISE_DEFAULT_UNIT_PRICE", "10.00"),
		PriceMarketOverrides: parseMarketOverrides(getEnv("SEATWISE_PRICE_MARKET_OVERRIDES", "")),
		SyncInterval:         time.Duration(getEnvAsInt("SEATWISE_SYNC_INTERVAL_MINUTES", 60)) * time.Minute,
		SyncParallelism:      getEnvAsInt("SEATWISE_SYNC_PARALLELISM", 4),
		AnalysisCron:         getEnv("SEATWISE_ANALYSIS_CRON", "0 0 3 * * *"),
		S3Endpoint:           getEnv("SEATWISE_S3_ENDPOINT", ""),
		S3Bucket:             getEnv("SEATWISE_S3_BUCKET", ""),
		S3AccessKey:          getEnv("SEATWISE_S3_ACCESS_KEY", ""),
		S3SecretKey:          getEnv("SEATWISE_S3_SECRET_KEY", ""),
		S3Region:             getEnv("SEATWISE_S3_REGION", "auto"),
		BackupRetentionDays:  getEnvAsInt("SEATWISE_BACKUP_RETENTION_DAYS", 30),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// UpdateFromSettings updates configuration from the settings database.
// This should be called after the tenants database is initialized.
// Settings DB values take precedence over environment variables.
func (c *Config) UpdateFromSettings(settingsRepo *settings.Repository) error {
	defaultPrice, err := settingsRepo.Get("default_unit_price")
	if err != nil {
		return fmt.Errorf("failed to get default_unit_price from settings: %w", err)
	}
	// Only use settings DB value if it's not empty; keep env fallback otherwise
	if defaultPrice != nil && *defaultPrice != "" {
		if _, perr := decimal.NewFromString(*defaultPrice); perr == nil {
			c.DefaultUnitPrice = *defaultPrice
		}
	}

	analysisCron, err := settingsRepo.Get("analysis_cron")
	if err != nil {
		return fmt.Errorf("failed to get analysis_cron from settings: %w", err)
	}
	if analysisCron != nil && *analysisCron != "" {
		c.AnalysisCron = *analysisCron
	}

	syncMinutes, err := settingsRepo.Get("sync_interval_minutes")
	if err != nil {
		return fmt.Errorf("failed to get sync_interval_minutes from settings: %w", err)
	}
	if syncMinutes != nil && *syncMinutes != "" {
		if minutes, perr := strconv.Atoi(*syncMinutes); perr == nil && minutes > 0 {
			c.SyncInterval = time.Duration(minutes) * time.Minute
		}
	}

	return nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.VaultKey == "" {
		return fmt.Errorf("SEATWISE_VAULT_KEY is required")
	}

	if _, err := decimal.NewFromString(c.DefaultUnitPrice); err != nil {
		return fmt.Errorf("SEATWISE_DEFAULT_UNIT_PRICE is not a valid decimal: %w", err)
	}

	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("SEATWISE_HTTP_TIMEOUT_SECONDS must be positive")
	}

	if c.SyncParallelism < 1 {
		return fmt.Errorf("SEATWISE_SYNC_PARALLELISM must be at least 1")
	}

	return nil
}

// BackupsEnabled reports whether an S3 backup target is configured.
func (c *Config) BackupsEnabled() bool {
	return c.S3Endpoint != "" && c.S3Bucket != ""
}

// PartnerEnabled reports whether Partner Center credentials are configured.
// Without them the commerce sync jobs are skipped and prices come from CSV
// imports only.
func (c *Config) PartnerEnabled() bool {
	return c.PartnerTenantID != "" && c.PartnerClientID != "" && c.PartnerClientSecret != ""
}

// parseMarketOverrides parses "CC=MARKET,CC=MARKET" pairs. Malformed pairs
// are dropped silently; an empty input yields an empty map.
func parseMarketOverrides(raw string) map[string]string {
	overrides := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		country := strings.ToUpper(strings.TrimSpace(parts[0]))
		market := strings.ToUpper(strings.TrimSpace(parts[1]))
		if country == "" || market == "" {
			continue
		}
		overrides[country] = market
	}
	return overrides
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
