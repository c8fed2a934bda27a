package webhooks

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"finsync-backend/internal/domain"
	"finsync-backend/internal/provider"
	"finsync-backend/internal/syncjobs"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func webhookTestApp(t *testing.T) (*fiber.App, *gorm.DB, *syncjobs.Lease) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Connection{}, &domain.Account{}))

	mr := miniredis.RunT(t)
	lease := &syncjobs.Lease{
		Rdb: redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		TTL: time.Minute,
	}
	runner := &syncjobs.Runner{DB: db, Lease: lease}

	app := fiber.New()
	h := &Handlers{DB: db, Jobs: runner}
	app.Post("/api/v1/webhooks/provider", h.HandleProvider)
	return app, db, lease
}

func postWebhook(t *testing.T, app *fiber.App, body string) int {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/v1/webhooks/provider", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestHandleProvider_SchedulesScopedSync(t *testing.T) {
	app, db, lease := webhookTestApp(t)
	conn := domain.Connection{UserID: uuid.New(), ProviderName: "sandbox", ProviderItemID: "item-42"}
	require.NoError(t, db.Create(&conn).Error)

	status := postWebhook(t, app, `{"webhook_type":"TRANSACTIONS","webhook_code":"SYNC_UPDATES_AVAILABLE","item_id":"item-42"}`)
	assert.Equal(t, fiber.StatusOK, status)

	held, err := lease.Held(context.Background(), conn.ConnectionID)
	require.NoError(t, err)
	assert.True(t, held, "scheduling the sync must take the connection lease")
}

func TestHandleProvider_DuplicateIsAcknowledged(t *testing.T) {
	app, db, _ := webhookTestApp(t)
	conn := domain.Connection{UserID: uuid.New(), ProviderName: "sandbox", ProviderItemID: "item-42"}
	require.NoError(t, db.Create(&conn).Error)

	body := `{"webhook_type":"DEFAULT_UPDATE","item_id":"item-42"}`
	assert.Equal(t, fiber.StatusOK, postWebhook(t, app, body))
	// a second webhook while the sync is pending must still return 200
	assert.Equal(t, fiber.StatusOK, postWebhook(t, app, body))
}

func TestHandleProvider_UnknownTypeIgnored(t *testing.T) {
	app, _, _ := webhookTestApp(t)
	status := postWebhook(t, app, `{"webhook_type":"SOMETHING_NEW","item_id":"item-42"}`)
	assert.Equal(t, fiber.StatusOK, status)
}

func TestHandleProvider_UnknownConnectionIgnored(t *testing.T) {
	app, _, _ := webhookTestApp(t)
	status := postWebhook(t, app, `{"webhook_type":"TRANSACTIONS","item_id":"no-such-item"}`)
	assert.Equal(t, fiber.StatusOK, status)
}

func TestHandleProvider_MalformedBody(t *testing.T) {
	app, _, _ := webhookTestApp(t)
	status := postWebhook(t, app, `{not json`)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestSubsetFor(t *testing.T) {
	subset, ok := subsetFor("TRANSACTIONS")
	require.True(t, ok)
	assert.Equal(t, []provider.Category{provider.CategoryAccounts, provider.CategoryTransactions}, subset)

	subset, ok = subsetFor("HOLDINGS")
	require.True(t, ok)
	assert.Contains(t, subset, provider.CategoryInvestmentTransactions)

	subset, ok = subsetFor("ITEM")
	require.True(t, ok)
	assert.Nil(t, subset, "item-level webhooks trigger a full sync")

	_, ok = subsetFor("WEBHOOK_UPDATE_ACKNOWLEDGED")
	assert.False(t, ok)
}
