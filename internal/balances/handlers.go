package balances

import (
	"errors"
	"time"

	"finsync-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *Service
}

// parseRange reads start/end query params; defaults to the trailing year.
func parseRange(c *fiber.Ctx) (time.Time, time.Time, error) {
	end := time.Now().UTC()
	start := end.AddDate(-1, 0, 0)
	if s := c.Query("start"); s != "" {
		parsed, err := time.Parse("2006-01-02", s)
		if err != nil {
			return start, end, errors.New("invalid start date, expected YYYY-MM-DD")
		}
		start = parsed
	}
	if s := c.Query("end"); s != "" {
		parsed, err := time.Parse("2006-01-02", s)
		if err != nil {
			return start, end, errors.New("invalid end date, expected YYYY-MM-DD")
		}
		end = parsed
	}
	return start, end, nil
}

// GetSeries GET /api/v1/accounts/:account_id/balances
func (h *Handlers) GetSeries(c *fiber.Ctx) error {
	accountID, err := uuid.Parse(c.Params("account_id"))
	if err != nil {
		return response.Error(c, "Invalid account id", fiber.StatusBadRequest, nil)
	}
	start, end, err := parseRange(c)
	if err != nil {
		return response.Error(c, err.Error(), fiber.StatusBadRequest, nil)
	}
	interval := ParseInterval(c.Query("interval"))

	series, err := h.Service.GetBalanceSeries(c.Context(), accountID, start, end, interval)
	if errors.Is(err, ErrAccountNotFound) {
		return response.Error(c, "Account not found", fiber.StatusNotFound, nil)
	}
	if err != nil {
		return err
	}
	return response.Success(c, "Balance series", series, fiber.Map{
		"interval": interval,
		"points":   len(series.Points),
	})
}
