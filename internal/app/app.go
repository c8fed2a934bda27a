package app

import (
	"finsync-backend/internal/balances"
	"finsync-backend/internal/config"
	"finsync-backend/internal/database"
	"finsync-backend/internal/etl"
	"finsync-backend/internal/health"
	"finsync-backend/internal/middleware"
	"finsync-backend/internal/pkg/secrets"
	"finsync-backend/internal/provider"
	"finsync-backend/internal/rollups"
	"finsync-backend/internal/syncjobs"
	"finsync-backend/internal/webhooks"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// CreateApp builds the Fiber app, the service graph and the background
// runner. The caller starts the runner and owns shutdown.
func CreateApp(cfg *config.Config) (*fiber.App, *gorm.DB, *redis.Client, *syncjobs.Runner, error) {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          middleware.ErrorHandler,
	})

	app.Use(middleware.Tracing())
	app.Use(middleware.RouteLogger())

	var db *gorm.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		if err := database.AutoMigrate(db); err != nil {
			return nil, nil, nil, nil, err
		}
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		rdb = redis.NewClient(opt)
	}

	healthHandlers := &health.Handlers{DB: db, Rdb: rdb}
	app.Get("/health/json", healthHandlers.JSON)

	if db == nil || rdb == nil {
		log.Warn().Msg("Database or Redis not configured; sync routes disabled")
		return app, db, rdb, nil, nil
	}

	var sealKey []byte
	if cfg.TokenSealKey != "" {
		var err error
		sealKey, err = secrets.KeyFromHex(cfg.TokenSealKey)
		if err != nil {
			return nil, nil, nil, nil, err
		}
	}

	balanceService := &balances.Service{DB: db}
	etlService := &etl.Service{
		DB:                db,
		Resolver:          sandboxResolver(cfg),
		Balances:          balanceService,
		SealKey:           sealKey,
		LookbackDays:      cfg.LookbackDays,
		ResyncOverlapDays: cfg.ResyncOverlapDays,
	}
	runner := &syncjobs.Runner{
		DB:            db,
		ETL:           etlService,
		Balances:      balanceService,
		Lease:         &syncjobs.Lease{Rdb: rdb, TTL: cfg.SyncLeaseTTL},
		Workers:       cfg.SyncWorkers,
		Budget:        cfg.SyncBudget,
		StaleAfter:    cfg.StaleSyncAfter,
		WatchdogEvery: cfg.WatchdogInterval,
	}
	rollupService := &rollups.Service{DB: db}

	webhookHandlers := &webhooks.Handlers{DB: db, Jobs: runner}
	app.Post("/api/v1/webhooks/provider", webhookHandlers.HandleProvider)

	jobHandlers := &syncjobs.Handlers{DB: db, Runner: runner}
	app.Post("/api/v1/connections/:connection_id/sync", jobHandlers.TriggerConnectionSync)
	app.Get("/api/v1/connections/:connection_id/status", jobHandlers.GetConnectionStatus)
	app.Post("/api/v1/accounts/:account_id/sync-balances", jobHandlers.TriggerBalanceSync)

	balanceHandlers := &balances.Handlers{Service: balanceService}
	app.Get("/api/v1/accounts/:account_id/balances", balanceHandlers.GetSeries)

	rollupHandlers := &rollups.Handlers{Service: rollupService}
	app.Get("/api/v1/rollups", rollupHandlers.GetRollup)
	app.Get("/api/v1/net-worth", rollupHandlers.GetNetWorth)
	app.Get("/api/v1/cashflow", rollupHandlers.GetCashflow)

	return app, db, rdb, runner, nil
}

// sandboxResolver serves the built-in sandbox provider. Real connectors
// register here as they are added; unknown providers fail the sync as fatal.
func sandboxResolver(cfg *config.Config) etl.ConnectorResolver {
	return etl.ResolverFunc(func(providerName, accessToken string) (provider.Connector, error) {
		if providerName != "sandbox" {
			return nil, provider.Fatal("unknown provider "+providerName, nil)
		}
		sandbox := provider.NewSandbox(provider.Fixture{})
		sandbox.PageSize = cfg.ProviderPageSize
		sandbox.PageDelay = cfg.ProviderPageDelay
		sandbox.Retry.Timeout = cfg.ProviderTimeout
		return sandbox, nil
	})
}
