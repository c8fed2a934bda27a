package rollups

import (
	"context"
	"time"

	"finsync-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CashflowPredicate decides whether a transaction is excluded from income/
// expense summaries. Kept as a named, overridable policy rather than a
// hard-coded rule: product owns the exact boundary.
type CashflowPredicate func(account domain.Account, tx domain.Transaction) bool

// DefaultCashflowExclusion drops payment-category transactions on liability
// accounts: interest versus principal cannot be told apart there, so counting
// them would double-book the matching outflow on the funding account.
var DefaultCashflowExclusion CashflowPredicate = func(account domain.Account, tx domain.Transaction) bool {
	if account.Classification != domain.ClassificationLiability {
		return false
	}
	return tx.Category != nil && *tx.Category == "payment"
}

// Cashflow is an income/expense summary for a window.
type Cashflow struct {
	Income   decimal.Decimal `json:"income"`
	Expenses decimal.Decimal `json:"expenses"`
	Net      decimal.Decimal `json:"net"`
}

// GetCashflow sums a user's transactions over [start, end], skipping rows the
// predicate excludes. A nil predicate means DefaultCashflowExclusion.
func (s *Service) GetCashflow(ctx context.Context, userID uuid.UUID, start, end time.Time, exclude CashflowPredicate) (Cashflow, error) {
	if exclude == nil {
		exclude = DefaultCashflowExclusion
	}
	accounts, err := s.accountsFor(ctx, &userID, nil)
	if err != nil {
		return Cashflow{}, err
	}
	byID := make(map[uuid.UUID]domain.Account, len(accounts))
	ids := make([]uuid.UUID, 0, len(accounts))
	for _, acct := range accounts {
		byID[acct.AccountID] = acct
		ids = append(ids, acct.AccountID)
	}
	if len(ids) == 0 {
		return Cashflow{}, nil
	}

	var txs []domain.Transaction
	if err := s.DB.WithContext(ctx).
		Where("account_id IN ? AND date >= ? AND date <= ?", ids, domain.DayUTC(start), domain.DayUTC(end)).
		Find(&txs).Error; err != nil {
		return Cashflow{}, err
	}

	var flow Cashflow
	for _, tx := range txs {
		if exclude(byID[tx.AccountID], tx) {
			continue
		}
		if tx.Amount.Sign() >= 0 {
			flow.Income = flow.Income.Add(tx.Amount)
		} else {
			flow.Expenses = flow.Expenses.Add(tx.Amount.Neg())
		}
	}
	flow.Net = flow.Income.Sub(flow.Expenses)
	return flow, nil
}
