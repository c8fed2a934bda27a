package app

import (
	"net/http/httptest"
	"testing"

	"finsync-backend/internal/config"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateApp_WithoutBackingServices(t *testing.T) {
	app, db, rdb, runner, err := CreateApp(&config.Config{})
	require.NoError(t, err)
	assert.Nil(t, db)
	assert.Nil(t, rdb)
	assert.Nil(t, runner)

	// health stays up even with nothing configured
	resp, err := app.Test(httptest.NewRequest("GET", "/health/json", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	// sync surface is not registered
	resp, err = app.Test(httptest.NewRequest("GET", "/api/v1/rollups", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
