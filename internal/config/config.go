package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env         string
	Port        string
	DatabaseURL string
	RedisURL    string

	// TokenSealKey is the hex-encoded 32-byte key used to seal provider
	// access tokens at rest.
	TokenSealKey string

	SyncWorkers       int           // background worker pool size
	SyncBudget        time.Duration // wall-clock budget for one connection sync
	SyncLeaseTTL      time.Duration // redis lease TTL (crash safety)
	StaleSyncAfter    time.Duration // watchdog resets SYNCING older than this
	WatchdogInterval  time.Duration
	ProviderPageSize  int
	ProviderPageDelay time.Duration // injected inter-page delay (provider QPS)
	ProviderTimeout   time.Duration // per upstream call
	LookbackDays      int           // transaction window for a first sync
	ResyncOverlapDays int           // overlap added before lastSyncedAt on re-sync
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	port := viper.GetString("PORT")
	if port == "" {
		port = "8080"
	}
	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	dbURL := viper.GetString("DATABASE_URL")
	if env == "test" && viper.GetString("DATABASE_URL_TEST") != "" {
		dbURL = viper.GetString("DATABASE_URL_TEST")
	}

	return &Config{
		Env:               env,
		Port:              port,
		DatabaseURL:       dbURL,
		RedisURL:          viper.GetString("REDIS_URL"),
		TokenSealKey:      viper.GetString("TOKEN_SEAL_KEY"),
		SyncWorkers:       intOr("SYNC_WORKERS", 4),
		SyncBudget:        secondsOr("SYNC_BUDGET_SECONDS", 300),
		SyncLeaseTTL:      secondsOr("SYNC_LEASE_TTL_SECONDS", 600),
		StaleSyncAfter:    secondsOr("STALE_SYNC_AFTER_SECONDS", 900),
		WatchdogInterval:  secondsOr("WATCHDOG_INTERVAL_SECONDS", 60),
		ProviderPageSize:  intOr("PROVIDER_PAGE_SIZE", 500),
		ProviderPageDelay: millisOr("PROVIDER_PAGE_DELAY_MS", 0),
		ProviderTimeout:   secondsOr("PROVIDER_TIMEOUT_SECONDS", 30),
		LookbackDays:      intOr("SYNC_LOOKBACK_DAYS", 730),
		ResyncOverlapDays: intOr("SYNC_OVERLAP_DAYS", 30),
	}, nil
}

func intOr(key string, def int) int {
	if v := viper.GetInt(key); v > 0 {
		return v
	}
	return def
}

func secondsOr(key string, def int) time.Duration {
	return time.Duration(intOr(key, def)) * time.Second
}

func millisOr(key string, def int) time.Duration {
	v := viper.GetInt(key)
	if v <= 0 {
		v = def
	}
	return time.Duration(v) * time.Millisecond
}
