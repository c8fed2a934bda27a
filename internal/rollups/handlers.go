package rollups

import (
	"errors"
	"strings"
	"time"

	"finsync-backend/internal/balances"
	"finsync-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *Service
}

func parseQuery(c *fiber.Ctx) (uuid.UUID, time.Time, time.Time, balances.Interval, error) {
	userID, err := uuid.Parse(c.Query("user_id"))
	if err != nil {
		return uuid.Nil, time.Time{}, time.Time{}, "", errors.New("invalid or missing user_id")
	}
	end := time.Now().UTC()
	start := end.AddDate(-1, 0, 0)
	if s := c.Query("start"); s != "" {
		if start, err = time.Parse("2006-01-02", s); err != nil {
			return uuid.Nil, time.Time{}, time.Time{}, "", errors.New("invalid start date, expected YYYY-MM-DD")
		}
	}
	if s := c.Query("end"); s != "" {
		if end, err = time.Parse("2006-01-02", s); err != nil {
			return uuid.Nil, time.Time{}, time.Time{}, "", errors.New("invalid end date, expected YYYY-MM-DD")
		}
	}
	return userID, start, end, balances.ParseInterval(c.Query("interval")), nil
}

// parseAccountIDs reads the optional comma-separated account_ids filter.
func parseAccountIDs(raw string) ([]uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]uuid.UUID, 0, len(parts))
	for _, part := range parts {
		id, err := uuid.Parse(strings.TrimSpace(part))
		if err != nil {
			return nil, errors.New("invalid account_ids, expected comma-separated UUIDs")
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// GetRollup GET /api/v1/rollups
func (h *Handlers) GetRollup(c *fiber.Ctx) error {
	userID, start, end, interval, err := parseQuery(c)
	if err != nil {
		return response.Error(c, err.Error(), fiber.StatusBadRequest, nil)
	}
	accountIDs, err := parseAccountIDs(c.Query("account_ids"))
	if err != nil {
		return response.Error(c, err.Error(), fiber.StatusBadRequest, nil)
	}
	rollup, err := h.Service.GetRollup(c.Context(), &userID, accountIDs, start, end, interval)
	if err != nil {
		return err
	}
	return response.Success(c, "Rollup", rollup, nil)
}

// GetNetWorth GET /api/v1/net-worth
func (h *Handlers) GetNetWorth(c *fiber.Ctx) error {
	userID, start, end, interval, err := parseQuery(c)
	if err != nil {
		return response.Error(c, err.Error(), fiber.StatusBadRequest, nil)
	}
	series, err := h.Service.GetNetWorthSeries(c.Context(), userID, start, end, interval)
	if err != nil {
		return err
	}
	return response.Success(c, "Net worth series", series, nil)
}

// GetCashflow GET /api/v1/cashflow
func (h *Handlers) GetCashflow(c *fiber.Ctx) error {
	userID, start, end, _, err := parseQuery(c)
	if err != nil {
		return response.Error(c, err.Error(), fiber.StatusBadRequest, nil)
	}
	flow, err := h.Service.GetCashflow(c.Context(), userID, start, end, nil)
	if err != nil {
		return err
	}
	return response.Success(c, "Cashflow summary", flow, nil)
}
