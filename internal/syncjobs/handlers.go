package syncjobs

import (
	"errors"

	"finsync-backend/internal/domain"
	"finsync-backend/internal/pkg/response"
	"finsync-backend/internal/provider"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Handlers struct {
	DB     *gorm.DB
	Runner *Runner
}

type syncRequest struct {
	Categories []string `json:"categories"`
}

// TriggerConnectionSync POST /api/v1/connections/:connection_id/sync
func (h *Handlers) TriggerConnectionSync(c *fiber.Ctx) error {
	connectionID, err := uuid.Parse(c.Params("connection_id"))
	if err != nil {
		return response.Error(c, "Invalid connection id", fiber.StatusBadRequest, nil)
	}
	var req syncRequest
	_ = c.BodyParser(&req) // empty body means full sync
	var subset []provider.Category
	for _, category := range req.Categories {
		subset = append(subset, provider.Category(category))
	}

	err = h.Runner.RequestConnectionSync(c.Context(), connectionID, subset)
	switch {
	case errors.Is(err, ErrSyncInProgress):
		return response.Error(c, err.Error(), fiber.StatusConflict, nil)
	case errors.Is(err, ErrQueueFull):
		return response.Error(c, err.Error(), fiber.StatusServiceUnavailable, nil)
	case err != nil:
		return err
	}
	return response.Accepted(c, "Sync scheduled", fiber.Map{"connection_id": connectionID})
}

// TriggerBalanceSync POST /api/v1/accounts/:account_id/sync-balances
func (h *Handlers) TriggerBalanceSync(c *fiber.Ctx) error {
	accountID, err := uuid.Parse(c.Params("account_id"))
	if err != nil {
		return response.Error(c, "Invalid account id", fiber.StatusBadRequest, nil)
	}
	if err := h.Runner.RequestBalanceSync(c.Context(), accountID); err != nil {
		if errors.Is(err, ErrQueueFull) {
			return response.Error(c, err.Error(), fiber.StatusServiceUnavailable, nil)
		}
		return err
	}
	return response.Accepted(c, "Balance sync scheduled", fiber.Map{"account_id": accountID})
}

// GetConnectionStatus GET /api/v1/connections/:connection_id/status
// Connection.status and derived per-account sync status are the only
// sync-progress signals exposed to outer layers.
func (h *Handlers) GetConnectionStatus(c *fiber.Ctx) error {
	connectionID, err := uuid.Parse(c.Params("connection_id"))
	if err != nil {
		return response.Error(c, "Invalid connection id", fiber.StatusBadRequest, nil)
	}
	var conn domain.Connection
	if err := h.DB.First(&conn, "connection_id = ?", connectionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.Error(c, "Connection not found", fiber.StatusNotFound, nil)
		}
		return err
	}
	var accounts []domain.Account
	if err := h.DB.Where("connection_id = ?", connectionID).Find(&accounts).Error; err != nil {
		return err
	}

	accountStatuses := make([]fiber.Map, 0, len(accounts))
	for i := range accounts {
		accountStatuses = append(accountStatuses, fiber.Map{
			"account_id":  accounts[i].AccountID,
			"sync_status": accounts[i].SyncStatus(&conn),
		})
	}
	return response.Success(c, "Connection status", fiber.Map{
		"connection_id":  conn.ConnectionID,
		"status":         conn.Status,
		"last_error":     conn.LastError,
		"last_synced_at": conn.LastSyncedAt,
		"accounts":       accountStatuses,
	}, nil)
}
