package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all collector configuration values.
type Config struct {
	Env string

	// Venue endpoints
	APIURL string
	WSURL  string

	// Scanning
	ScanIntervalSeconds int
	MaxWalletsToTrack   int
	MinPositionUSD      float64
	DustThreshold       float64

	// Liquidation map
	PriceBucketPercent   float64
	MinClusterSizeUSD    float64
	ClusterMergePercent  float64
	AlertClusterSizeUSD  float64

	// Assets tracked
	Assets []string

	// Rate limiting
	APIRequestsPerSecond int
	MinRequestSpacing    time.Duration

	// Reconnect backoff
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	ReconnectFactor       float64

	// HTTP
	RequestTimeout time.Duration

	// Wallet registry
	WalletBootstrapFloor int
	WalletMaxAgeHours    int
	WalletBackfillAssets int

	// Data storage
	DataDir            string
	WalletCacheFile    string
	LiquidationMapFile string
	DatabasePath       string

	// Include order-book liquidity in market data pulls
	IncludeLiquidity bool

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables and optional .env file.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Env:                   getEnv("ENV", "development"),
		APIURL:                getEnv("API_URL", "https://api.hyperliquid.xyz"),
		WSURL:                 getEnv("WS_URL", "wss://api.hyperliquid.xyz/ws"),
		ScanIntervalSeconds:   getEnvInt("SCAN_INTERVAL_SECONDS", 300),
		MaxWalletsToTrack:     getEnvInt("MAX_WALLETS_TO_TRACK", 5000),
		MinPositionUSD:        getEnvFloat("MIN_POSITION_USD", 1000),
		DustThreshold:         getEnvFloat("DUST_THRESHOLD", 0.0001),
		PriceBucketPercent:    getEnvFloat("PRICE_BUCKET_PERCENT", 0.1),
		MinClusterSizeUSD:     getEnvFloat("MIN_CLUSTER_SIZE_USD", 100_000),
		ClusterMergePercent:   getEnvFloat("CLUSTER_MERGE_PERCENT", 0.5),
		AlertClusterSizeUSD:   getEnvFloat("ALERT_CLUSTER_SIZE_USD", 500_000),
		Assets:                getEnvList("ASSETS", defaultAssets),
		APIRequestsPerSecond:  getEnvInt("API_REQUESTS_PER_SECOND", 10),
		MinRequestSpacing:     time.Duration(getEnvInt("MIN_REQUEST_SPACING_MS", 100)) * time.Millisecond,
		ReconnectInitialDelay: time.Duration(getEnvInt("RECONNECT_INITIAL_DELAY_SEC", 1)) * time.Second,
		ReconnectMaxDelay:     time.Duration(getEnvInt("RECONNECT_MAX_DELAY_SEC", 30)) * time.Second,
		ReconnectFactor:       getEnvFloat("RECONNECT_FACTOR", 2.0),
		RequestTimeout:        time.Duration(getEnvInt("REQUEST_TIMEOUT_SEC", 30)) * time.Second,
		WalletBootstrapFloor:  getEnvInt("WALLET_BOOTSTRAP_FLOOR", 50),
		WalletMaxAgeHours:     getEnvInt("WALLET_MAX_AGE_HOURS", 24),
		WalletBackfillAssets:  getEnvInt("WALLET_BACKFILL_ASSETS", 10),
		DataDir:               getEnv("DATA_DIR", "data"),
		WalletCacheFile:       getEnv("WALLET_CACHE_FILE", "data/wallets.json"),
		LiquidationMapFile:    getEnv("LIQUIDATION_MAP_FILE", "data/liquidation_map.json"),
		DatabasePath:          getEnv("DB_PATH", "data/historical.db"),
		IncludeLiquidity:      getEnvBool("INCLUDE_LIQUIDITY", false),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
	}
	return cfg
}

var defaultAssets = []string{
	"BTC", "ETH", "SOL", "ARB", "DOGE", "SUI", "AVAX",
	"LINK", "OP", "APT", "INJ", "TIA", "SEI", "WLD",
	"HYPE", "XRP", "FARTCOIN", "PEPE", "WIF", "BONK",
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return fallback
}
