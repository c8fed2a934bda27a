package balances

import (
	"context"
	"errors"
	"time"

	"finsync-backend/internal/domain"
	"finsync-backend/internal/ledger"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var ErrAccountNotFound = errors.New("account not found")

// Service is the balance synchronizer: it turns sparse valuations and
// transactions into the continuous daily AccountBalance series and serves
// gap-filled series queries.
type Service struct {
	DB *gorm.DB

	// Now is a seam for tests; defaults to time.Now.
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) loadAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, []domain.Valuation, []domain.Transaction, error) {
	var account domain.Account
	if err := s.DB.WithContext(ctx).First(&account, "account_id = ?", accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, nil, ErrAccountNotFound
		}
		return nil, nil, nil, err
	}
	var valuations []domain.Valuation
	if err := s.DB.WithContext(ctx).Where("account_id = ?", accountID).Order("date ASC").Find(&valuations).Error; err != nil {
		return nil, nil, nil, err
	}
	var txs []domain.Transaction
	if err := s.DB.WithContext(ctx).Where("account_id = ?", accountID).Order("date ASC").Find(&txs).Error; err != nil {
		return nil, nil, nil, err
	}
	return &account, valuations, txs, nil
}

// effectiveStart is the first day the account has any history: its
// StartDate when set, else the earliest valuation or transaction, else today.
func effectiveStart(account *domain.Account, valuations []domain.Valuation, txs []domain.Transaction, today time.Time) time.Time {
	if account.StartDate != nil {
		return domain.DayUTC(*account.StartDate)
	}
	start := domain.DayUTC(today)
	if len(valuations) > 0 && domain.DayUTC(valuations[0].Date).Before(start) {
		start = domain.DayUTC(valuations[0].Date)
	}
	if len(txs) > 0 && domain.DayUTC(txs[0].Date).Before(start) {
		start = domain.DayUTC(txs[0].Date)
	}
	return start
}

// SyncAccountBalances recomputes the persisted daily series for one account
// from its effective start through today, in a single transaction. Delete
// plus insert keeps the series free of duplicate dates whatever the prior
// state was.
func (s *Service) SyncAccountBalances(ctx context.Context, accountID uuid.UUID) error {
	account, valuations, txs, err := s.loadAccount(ctx, accountID)
	if err != nil {
		return err
	}
	today := domain.DayUTC(s.now())
	start := effectiveStart(account, valuations, txs, today)
	series := BuildSeries(account, valuations, txs, start, today, IntervalDays, today)

	rows := make([]domain.AccountBalance, 0, len(series.Points))
	for _, p := range series.Points {
		rows = append(rows, domain.AccountBalance{
			AccountID: accountID,
			Date:      p.Date,
			Balance:   p.Balance,
		})
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ?", accountID).Delete(&domain.AccountBalance{}).Error; err != nil {
			return err
		}
		return ledger.UpsertInBatches(tx, rows,
			[]string{"account_id", "date"}, []string{"balance"}, ledger.DefaultChunk)
	})
	if err != nil {
		return err
	}
	log.Debug().Str("account_id", accountID.String()).Int("rows", len(rows)).
		Msg("Account balance series recomputed")
	return nil
}

// GetBalanceSeries returns the gap-filled series for any requested range,
// computed from the ledger sources so it is exact even when the persisted
// series has not caught up.
func (s *Service) GetBalanceSeries(ctx context.Context, accountID uuid.UUID, start, end time.Time, interval Interval) (Series, error) {
	account, valuations, txs, err := s.loadAccount(ctx, accountID)
	if err != nil {
		return Series{}, err
	}
	return BuildSeries(account, valuations, txs, start, end, interval, domain.DayUTC(s.now())), nil
}
