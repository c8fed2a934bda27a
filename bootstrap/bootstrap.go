package bootstrap

import (
	"finsync-backend/internal/app"
	"finsync-backend/internal/config"

	"github.com/gofiber/fiber/v2"
)

// New builds the Fiber app for embedders that only need the HTTP surface
// (the background runner is discarded; embedders run their own).
func New() (*fiber.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	fiberApp, _, _, _, err := app.CreateApp(cfg)
	return fiberApp, err
}
