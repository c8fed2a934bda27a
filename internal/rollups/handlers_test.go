package rollups

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"finsync-backend/internal/domain"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetRollupHandler_AccountIDsFilter(t *testing.T) {
	svc, db, userID := setupRollups(t)
	d := day(2024, 1, 31)
	mine := seedAccount(t, db, userID, "Checking", domain.ClassificationAsset, "cash", map[time.Time]string{d: "300"})
	seedAccount(t, db, userID, "Savings", domain.ClassificationAsset, "cash", map[time.Time]string{d: "700"})

	app := fiber.New()
	h := &Handlers{Service: svc}
	app.Get("/api/v1/rollups", h.GetRollup)

	base := "/api/v1/rollups?user_id=" + userID.String() + "&start=2024-01-31&end=2024-01-31"

	resp, err := app.Test(httptest.NewRequest("GET", base+"&account_ids="+mine.AccountID.String(), nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Checking")
	assert.NotContains(t, string(body), "Savings", "explicit account set must restrict the tree")

	resp, err = app.Test(httptest.NewRequest("GET", base, nil))
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Savings", "no filter means every account of the user")

	resp, err = app.Test(httptest.NewRequest("GET", base+"&account_ids=nope", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/v1/rollups?start=2024-01-31", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode, "user_id is required")
}
