package syncjobs

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"finsync-backend/internal/domain"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func handlersTestApp(t *testing.T) (*fiber.App, *gorm.DB, *Runner) {
	t.Helper()
	db := testDB(t)
	runner := &Runner{
		DB:    db,
		Lease: &Lease{Rdb: testRedis(t), TTL: time.Minute},
	}
	app := fiber.New()
	h := &Handlers{DB: db, Runner: runner}
	app.Post("/api/v1/connections/:connection_id/sync", h.TriggerConnectionSync)
	app.Get("/api/v1/connections/:connection_id/status", h.GetConnectionStatus)
	app.Post("/api/v1/accounts/:account_id/sync-balances", h.TriggerBalanceSync)
	return app, db, runner
}

func TestTriggerConnectionSync(t *testing.T) {
	app, db, _ := handlersTestApp(t)
	conn := domain.Connection{UserID: uuid.New(), ProviderName: "sandbox", ProviderItemID: "item-1"}
	require.NoError(t, db.Create(&conn).Error)

	path := "/api/v1/connections/" + conn.ConnectionID.String() + "/sync"

	req := httptest.NewRequest("POST", path, strings.NewReader(`{"categories":["transactions"]}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	// duplicate while the job is still queued
	resp, err = app.Test(httptest.NewRequest("POST", path, nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("POST", "/api/v1/connections/nope/sync", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestTriggerBalanceSync(t *testing.T) {
	app, _, _ := handlersTestApp(t)

	resp, err := app.Test(httptest.NewRequest("POST",
		"/api/v1/accounts/"+uuid.NewString()+"/sync-balances", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("POST", "/api/v1/accounts/nope/sync-balances", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestGetConnectionStatus(t *testing.T) {
	app, db, _ := handlersTestApp(t)
	conn := domain.Connection{
		UserID: uuid.New(), ProviderName: "sandbox", ProviderItemID: "item-1",
		Status: domain.ConnectionSyncing,
	}
	require.NoError(t, db.Create(&conn).Error)
	externalID := "acct-1"
	require.NoError(t, db.Create(&domain.Account{
		ConnectionID: &conn.ConnectionID, UserID: conn.UserID, ExternalID: &externalID,
		Name: "Checking", Classification: domain.ClassificationAsset, Category: "cash",
		BalanceStrategy: domain.StrategyTransactions,
	}).Error)

	resp, err := app.Test(httptest.NewRequest("GET",
		"/api/v1/connections/"+conn.ConnectionID.String()+"/status", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET",
		"/api/v1/connections/"+uuid.NewString()+"/status", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
