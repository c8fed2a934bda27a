package syncjobs

import (
	"context"
	"testing"
	"time"

	"finsync-backend/internal/balances"
	"finsync-backend/internal/domain"
	"finsync-backend/internal/etl"
	"finsync-backend/internal/provider"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.Connection{}, &domain.Account{}, &domain.Transaction{},
		&domain.InvestmentTransaction{}, &domain.Security{}, &domain.Holding{},
		&domain.Valuation{}, &domain.AccountBalance{},
	))
	return db
}

func TestLease_Exclusivity(t *testing.T) {
	lease := &Lease{Rdb: testRedis(t), TTL: time.Minute}
	ctx := context.Background()
	connectionID := uuid.New()

	ok, err := lease.Acquire(ctx, connectionID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = lease.Acquire(ctx, connectionID)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire while held must fail")

	held, err := lease.Held(ctx, connectionID)
	require.NoError(t, err)
	assert.True(t, held)

	require.NoError(t, lease.Release(ctx, connectionID))
	ok, err = lease.Acquire(ctx, connectionID)
	require.NoError(t, err)
	assert.True(t, ok, "released lease must be acquirable again")

	// leases are per connection
	ok, err = lease.Acquire(ctx, uuid.New())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRequestConnectionSync_DuplicateCoalesced(t *testing.T) {
	runner := &Runner{
		DB:    testDB(t),
		Lease: &Lease{Rdb: testRedis(t), TTL: time.Minute},
	}
	connectionID := uuid.New()

	require.NoError(t, runner.RequestConnectionSync(context.Background(), connectionID, nil))
	err := runner.RequestConnectionSync(context.Background(), connectionID, nil)
	assert.ErrorIs(t, err, ErrSyncInProgress)
}

func TestRunnerEndToEnd(t *testing.T) {
	db := testDB(t)
	sandbox := provider.NewSandbox(provider.Fixture{
		Accounts: []provider.RawAccount{
			{ExternalID: "acct-1", Name: "Checking", Type: "depository", CurrentBalance: decimal.NewFromInt(100)},
		},
	})
	sandbox.Retry = provider.RetryConfig{Attempts: 2, BaseDelay: time.Millisecond}

	balanceService := &balances.Service{DB: db}
	etlService := &etl.Service{
		DB: db,
		Resolver: etl.ResolverFunc(func(providerName, accessToken string) (provider.Connector, error) {
			return sandbox, nil
		}),
		Balances: balanceService,
	}
	lease := &Lease{Rdb: testRedis(t), TTL: time.Minute}
	runner := &Runner{
		DB:       db,
		ETL:      etlService,
		Balances: balanceService,
		Lease:    lease,
		Workers:  1,
		Budget:   5 * time.Second,
	}

	conn := domain.Connection{
		UserID:       uuid.New(),
		ProviderName: "sandbox",
		AccessToken:  []byte("token"),
		Status:       domain.ConnectionPending,
	}
	require.NoError(t, db.Create(&conn).Error)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner.Start(ctx)

	require.NoError(t, runner.RequestConnectionSync(ctx, conn.ConnectionID, nil))

	require.Eventually(t, func() bool {
		var got domain.Connection
		if db.First(&got, "connection_id = ?", conn.ConnectionID).Error != nil {
			return false
		}
		return got.Status == domain.ConnectionOK
	}, 5*time.Second, 10*time.Millisecond, "worker must complete the sync")

	// lease released after the job: a new request is accepted
	require.Eventually(t, func() bool {
		held, err := lease.Held(context.Background(), conn.ConnectionID)
		return err == nil && !held
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSweepStaleSyncs(t *testing.T) {
	db := testDB(t)
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	runner := &Runner{
		DB:         db,
		StaleAfter: 15 * time.Minute,
		Now:        func() time.Time { return now },
	}

	staleStart := now.Add(-time.Hour)
	freshStart := now.Add(-time.Minute)
	stale := domain.Connection{
		UserID: uuid.New(), ProviderName: "sandbox", ProviderItemID: "item-stale",
		Status: domain.ConnectionSyncing, SyncStartedAt: &staleStart,
	}
	fresh := domain.Connection{
		UserID: uuid.New(), ProviderName: "sandbox", ProviderItemID: "item-fresh",
		Status: domain.ConnectionSyncing, SyncStartedAt: &freshStart,
	}
	idle := domain.Connection{
		UserID: uuid.New(), ProviderName: "sandbox", ProviderItemID: "item-idle",
		Status: domain.ConnectionOK,
	}
	require.NoError(t, db.Create(&stale).Error)
	require.NoError(t, db.Create(&fresh).Error)
	require.NoError(t, db.Create(&idle).Error)

	require.NoError(t, runner.SweepStaleSyncs(context.Background()))

	var gotStale domain.Connection
	require.NoError(t, db.First(&gotStale, "connection_id = ?", stale.ConnectionID).Error)
	assert.Equal(t, domain.ConnectionError, gotStale.Status)
	assert.Contains(t, string(gotStale.LastError), "sync exceeded maximum duration")

	var gotFresh domain.Connection
	require.NoError(t, db.First(&gotFresh, "connection_id = ?", fresh.ConnectionID).Error)
	assert.Equal(t, domain.ConnectionSyncing, gotFresh.Status, "recent SYNCING must not be swept")

	var gotIdle domain.Connection
	require.NoError(t, db.First(&gotIdle, "connection_id = ?", idle.ConnectionID).Error)
	assert.Equal(t, domain.ConnectionOK, gotIdle.Status)
}
