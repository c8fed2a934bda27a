package webhooks

import (
	"errors"

	"finsync-backend/internal/domain"
	"finsync-backend/internal/pkg/response"
	"finsync-backend/internal/provider"
	"finsync-backend/internal/syncjobs"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Handlers maps upstream-provider webhooks onto scoped sync jobs.
type Handlers struct {
	DB   *gorm.DB
	Jobs *syncjobs.Runner
}

type providerWebhook struct {
	WebhookType string `json:"webhook_type"`
	WebhookCode string `json:"webhook_code"`
	ItemID      string `json:"item_id"`
}

// subsetFor translates a webhook type into the entity categories worth
// re-fetching. Unknown types return nil, false and are ignored.
func subsetFor(webhookType string) ([]provider.Category, bool) {
	switch webhookType {
	case "TRANSACTIONS":
		return []provider.Category{provider.CategoryAccounts, provider.CategoryTransactions}, true
	case "HOLDINGS", "INVESTMENTS_TRANSACTIONS":
		return []provider.Category{provider.CategoryAccounts, provider.CategoryHoldings, provider.CategoryInvestmentTransactions}, true
	case "LIABILITIES":
		return []provider.Category{provider.CategoryAccounts, provider.CategoryLiabilities}, true
	case "ITEM", "DEFAULT_UPDATE":
		return nil, true // full sync
	default:
		return nil, false
	}
}

// HandleProvider POST /api/v1/webhooks/provider. Always 200 for recognized
// shapes: a webhook must never bounce back to the provider as an error.
func (h *Handlers) HandleProvider(c *fiber.Ctx) error {
	var payload providerWebhook
	if err := c.BodyParser(&payload); err != nil {
		return response.Error(c, "Malformed webhook payload", fiber.StatusBadRequest, nil)
	}

	subset, ok := subsetFor(payload.WebhookType)
	if !ok {
		log.Info().Str("webhook_type", payload.WebhookType).Str("webhook_code", payload.WebhookCode).
			Msg("Ignoring unrecognized webhook type")
		return response.Success(c, "Webhook ignored", nil, nil)
	}

	var conn domain.Connection
	if err := h.DB.First(&conn, "provider_item_id = ?", payload.ItemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn().Str("item_id", payload.ItemID).Msg("Webhook for unknown connection, ignoring")
			return response.Success(c, "Webhook ignored", nil, nil)
		}
		return err
	}

	err := h.Jobs.RequestConnectionSync(c.Context(), conn.ConnectionID, subset)
	switch {
	case errors.Is(err, syncjobs.ErrSyncInProgress):
		return response.Success(c, "Sync already in progress", nil, nil)
	case err != nil:
		return err
	}
	return response.Success(c, "Sync scheduled", fiber.Map{"connection_id": conn.ConnectionID}, nil)
}
