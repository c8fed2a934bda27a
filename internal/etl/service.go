package etl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"finsync-backend/internal/domain"
	"finsync-backend/internal/ledger"
	"finsync-backend/internal/pkg/secrets"
	"finsync-backend/internal/provider"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ConnectorResolver builds a Connector for a connection's provider, given
// the unsealed access token.
type ConnectorResolver interface {
	Resolve(providerName, accessToken string) (provider.Connector, error)
}

// ResolverFunc adapts a function to ConnectorResolver.
type ResolverFunc func(providerName, accessToken string) (provider.Connector, error)

func (f ResolverFunc) Resolve(providerName, accessToken string) (provider.Connector, error) {
	return f(providerName, accessToken)
}

// BalanceSyncer is notified after a successful load so derived balance rows
// follow the fresh ledger state.
type BalanceSyncer interface {
	SyncAccountBalances(ctx context.Context, accountID uuid.UUID) error
}

var ErrConnectionNotFound = errors.New("connection not found")

// Service runs extract → transform → load for one connection.
type Service struct {
	DB       *gorm.DB
	Resolver ConnectorResolver
	Balances BalanceSyncer

	// SealKey unseals Connection.AccessToken; nil means tokens are stored
	// unsealed (tests only).
	SealKey []byte

	LookbackDays      int
	ResyncOverlapDays int

	// Now is a seam for tests; defaults to time.Now.
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// SyncConnection runs one full sync of a connection, optionally restricted to
// a subset of entity categories (webhook-scoped syncs). The caller holds the
// per-connection lease; this method assumes it is the only active sync.
func (s *Service) SyncConnection(ctx context.Context, connectionID uuid.UUID, subset []provider.Category) error {
	var conn domain.Connection
	if err := s.DB.WithContext(ctx).First(&conn, "connection_id = ?", connectionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrConnectionNotFound
		}
		return err
	}

	started := s.now()
	if err := s.DB.WithContext(ctx).Model(&conn).Updates(map[string]interface{}{
		"status":          domain.ConnectionSyncing,
		"sync_started_at": started,
	}).Error; err != nil {
		return err
	}

	loaded, err := s.run(ctx, &conn, subset)
	if err != nil {
		s.markError(ctx, &conn, err)
		return err
	}

	// Balance recompute follows load; a failure here must not fail the sync
	// the ledger already committed.
	if s.Balances != nil {
		for _, accountID := range loaded {
			if err := s.Balances.SyncAccountBalances(ctx, accountID); err != nil {
				log.Error().Err(err).
					Str("account_id", accountID.String()).
					Msg("Balance recompute after sync failed")
			}
		}
	}
	return nil
}

func (s *Service) run(ctx context.Context, conn *domain.Connection, subset []provider.Category) ([]uuid.UUID, error) {
	token, err := s.unseal(conn)
	if err != nil {
		return nil, provider.Fatal("access token unusable", err)
	}
	connector, err := s.Resolver.Resolve(conn.ProviderName, token)
	if err != nil {
		return nil, provider.Fatal("no connector for provider", err)
	}

	ext, err := extract(ctx, connector, subset, s.txWindow(conn))
	if err != nil {
		return nil, err
	}
	snap := Transform(ext)
	if snap.SkippedRows > 0 {
		log.Warn().Int("rows", snap.SkippedRows).
			Str("connection_id", conn.ConnectionID.String()).
			Msg("Malformed provider rows skipped during transform")
	}
	return s.load(ctx, conn, snap)
}

func (s *Service) unseal(conn *domain.Connection) (string, error) {
	if s.SealKey == nil {
		return string(conn.AccessToken), nil
	}
	return secrets.Open(s.SealKey, conn.AccessToken)
}

// txWindow picks the dated-category fetch window: full lookback on a first
// sync, lastSyncedAt minus an overlap afterwards so retroactive provider
// edits inside the overlap are still reconciled.
func (s *Service) txWindow(conn *domain.Connection) provider.Window {
	end := domain.DayUTC(s.now())
	lookback := s.LookbackDays
	if lookback <= 0 {
		lookback = 730
	}
	start := end.AddDate(0, 0, -lookback)
	if conn.LastSyncedAt != nil {
		overlap := s.ResyncOverlapDays
		if overlap <= 0 {
			overlap = 30
		}
		since := domain.DayUTC(*conn.LastSyncedAt).AddDate(0, 0, -overlap)
		if since.After(start) {
			start = since
		}
	}
	return provider.Window{Start: start, End: end}
}

// load commits the snapshot in one transaction: any failure rolls back the
// whole load and the previous ledger state survives untouched.
func (s *Service) load(ctx context.Context, conn *domain.Connection, snap *Snapshot) ([]uuid.UUID, error) {
	var touched []uuid.UUID
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		accountsByExternal, err := s.loadAccounts(tx, conn, snap)
		if err != nil {
			return err
		}
		securityIDs, err := s.loadSecurities(tx, snap)
		if err != nil {
			return err
		}
		if err := s.loadLiabilities(tx, snap, accountsByExternal); err != nil {
			return err
		}
		if err := s.loadTransactions(tx, snap, accountsByExternal); err != nil {
			return err
		}
		if err := s.loadInvestmentTransactions(tx, snap, accountsByExternal, securityIDs); err != nil {
			return err
		}
		if err := s.loadHoldings(tx, snap, accountsByExternal, securityIDs); err != nil {
			return err
		}

		for _, acct := range accountsByExternal {
			touched = append(touched, acct.AccountID)
		}
		return s.markSynced(tx, conn, snap)
	})
	if err != nil {
		return nil, err
	}
	return touched, nil
}

func (s *Service) loadAccounts(tx *gorm.DB, conn *domain.Connection, snap *Snapshot) (map[string]*domain.Account, error) {
	var existing []domain.Account
	if err := tx.Where("connection_id = ?", conn.ConnectionID).Find(&existing).Error; err != nil {
		return nil, err
	}
	byExternal := make(map[string]*domain.Account, len(existing))
	for i := range existing {
		if existing[i].ExternalID != nil {
			byExternal[*existing[i].ExternalID] = &existing[i]
		}
	}
	if !snap.Fetched[provider.CategoryAccounts] {
		return byExternal, nil
	}

	fresh := make([]string, 0, len(snap.Accounts))
	for _, row := range snap.Accounts {
		fresh = append(fresh, row.ExternalID)
		if acct, ok := byExternal[row.ExternalID]; ok {
			updates := map[string]interface{}{
				"name":            row.Name,
				"category":        row.Category,
				"currency":        row.Currency,
				"current_balance": row.CurrentBalance,
				"subtype":         row.Subtype,
				"inactive":        false,
			}
			// StartDate is identity-adjacent: only an origination date for a
			// previously-unknown start may set it, never overwrite it.
			if acct.StartDate == nil && row.Origination != nil {
				updates["start_date"] = row.Origination
			}
			if err := tx.Model(acct).Updates(updates).Error; err != nil {
				return nil, err
			}
			continue
		}
		externalID := row.ExternalID
		acct := &domain.Account{
			ConnectionID:    &conn.ConnectionID,
			UserID:          conn.UserID,
			ExternalID:      &externalID,
			Name:            row.Name,
			Classification:  row.Classification,
			Category:        row.Category,
			Subtype:         row.Subtype,
			Currency:        row.Currency,
			BalanceStrategy: row.BalanceStrategy,
			CurrentBalance:  row.CurrentBalance,
			StartDate:       row.Origination,
		}
		if err := tx.Create(acct).Error; err != nil {
			return nil, err
		}
		byExternal[externalID] = acct
	}

	// Accounts gone upstream are soft-disabled, never deleted: their balance
	// history stays queryable.
	q := tx.Model(&domain.Account{}).
		Where("connection_id = ? AND external_id IS NOT NULL", conn.ConnectionID)
	if len(fresh) > 0 {
		q = q.Where("external_id NOT IN ?", fresh)
	}
	if err := q.Update("inactive", true).Error; err != nil {
		return nil, err
	}
	return byExternal, nil
}

// loadSecurities upserts by external id with non-null-wins merge on the
// identity-adjacent cusip/isin columns: a partial provider response must not
// erase known identifiers.
func (s *Service) loadSecurities(tx *gorm.DB, snap *Snapshot) (map[string]uuid.UUID, error) {
	ids := make(map[string]uuid.UUID, len(snap.Securities))
	for _, row := range snap.Securities {
		var sec domain.Security
		err := tx.Where("external_id = ?", row.ExternalID).First(&sec).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			sec = domain.Security{
				ExternalID: row.ExternalID,
				Ticker:     row.Ticker,
				Name:       row.Name,
				Cusip:      row.Cusip,
				Isin:       row.Isin,
				Type:       row.Type,
				Currency:   row.Currency,
			}
			if err := tx.Create(&sec).Error; err != nil {
				return nil, err
			}
		case err != nil:
			return nil, err
		default:
			updates := map[string]interface{}{
				"name":     row.Name,
				"currency": row.Currency,
			}
			if row.Ticker != nil {
				updates["ticker"] = row.Ticker
			}
			if sec.Cusip == nil && row.Cusip != nil {
				updates["cusip"] = row.Cusip
			}
			if sec.Isin == nil && row.Isin != nil {
				updates["isin"] = row.Isin
			}
			if err := tx.Model(&sec).Updates(updates).Error; err != nil {
				return nil, err
			}
		}
		ids[row.ExternalID] = sec.SecurityID
	}
	return ids, nil
}

func (s *Service) loadLiabilities(tx *gorm.DB, snap *Snapshot, accounts map[string]*domain.Account) error {
	for _, row := range snap.Liabilities {
		acct, ok := accounts[row.AccountExternalID]
		if !ok {
			log.Warn().Str("account_external_id", row.AccountExternalID).
				Msg("Liability references unknown account, skipping")
			continue
		}
		if acct.StartDate == nil && row.Origination != nil {
			if err := tx.Model(acct).Update("start_date", row.Origination).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Service) loadTransactions(tx *gorm.DB, snap *Snapshot, accounts map[string]*domain.Account) error {
	if !snap.Fetched[provider.CategoryTransactions] {
		return nil
	}
	rows := make([]domain.Transaction, 0, len(snap.Transactions))
	keep := make([]string, 0, len(snap.Transactions))
	for _, row := range snap.Transactions {
		acct, ok := accounts[row.AccountExternalID]
		if !ok {
			log.Warn().Str("account_external_id", row.AccountExternalID).
				Msg("Transaction references unknown account, skipping")
			continue
		}
		externalID := row.ExternalID
		rows = append(rows, domain.Transaction{
			AccountID:  acct.AccountID,
			ExternalID: &externalID,
			Date:       row.Date,
			Amount:     row.Amount,
			Name:       row.Name,
			Category:   row.Category,
			Currency:   row.Currency,
			Pending:    row.Pending,
		})
		keep = append(keep, externalID)
	}
	if err := ledger.UpsertInBatches(tx, rows,
		[]string{"external_id"},
		[]string{"name", "amount", "category", "currency", "pending"},
		ledger.DefaultChunk); err != nil {
		return err
	}
	return ledger.PruneDatedScoped(tx, &domain.Transaction{},
		accountIDs(accounts), snap.TxWindow.Start, snap.TxWindow.End, keep)
}

func (s *Service) loadInvestmentTransactions(tx *gorm.DB, snap *Snapshot, accounts map[string]*domain.Account, securities map[string]uuid.UUID) error {
	if !snap.Fetched[provider.CategoryInvestmentTransactions] {
		return nil
	}
	rows := make([]domain.InvestmentTransaction, 0, len(snap.InvestmentTransactions))
	keep := make([]string, 0, len(snap.InvestmentTransactions))
	for _, row := range snap.InvestmentTransactions {
		acct, ok := accounts[row.AccountExternalID]
		if !ok {
			log.Warn().Str("account_external_id", row.AccountExternalID).
				Msg("Investment transaction references unknown account, skipping")
			continue
		}
		externalID := row.ExternalID
		rec := domain.InvestmentTransaction{
			AccountID:  acct.AccountID,
			ExternalID: &externalID,
			Date:       row.Date,
			Type:       row.Type,
			Amount:     row.Amount,
			Quantity:   row.Quantity,
			Price:      row.Price,
			Fees:       row.Fees,
			Name:       row.Name,
			Currency:   row.Currency,
		}
		if secID, ok := securities[row.SecurityExternalID]; ok {
			id := secID
			rec.SecurityID = &id
		}
		rows = append(rows, rec)
		keep = append(keep, externalID)
	}
	if err := ledger.UpsertInBatches(tx, rows,
		[]string{"external_id"},
		[]string{"name", "amount", "quantity", "price", "fees", "type", "currency"},
		ledger.DefaultChunk); err != nil {
		return err
	}
	return ledger.PruneDatedScoped(tx, &domain.InvestmentTransaction{},
		accountIDs(accounts), snap.InvTxWindow.Start, snap.InvTxWindow.End, keep)
}

func (s *Service) loadHoldings(tx *gorm.DB, snap *Snapshot, accounts map[string]*domain.Account, securities map[string]uuid.UUID) error {
	if !snap.Fetched[provider.CategoryHoldings] {
		return nil
	}
	asOf := domain.DayUTC(s.now())
	rows := make([]domain.Holding, 0, len(snap.Holdings))
	keep := make([]string, 0, len(snap.Holdings))
	for _, row := range snap.Holdings {
		acct, okA := accounts[row.AccountExternalID]
		secID, okS := securities[row.SecurityExternalID]
		if !okA || !okS {
			log.Warn().Str("account_external_id", row.AccountExternalID).
				Str("security_external_id", row.SecurityExternalID).
				Msg("Holding references unknown account or security, skipping")
			continue
		}
		rows = append(rows, domain.Holding{
			AccountID:        acct.AccountID,
			SecurityID:       secID,
			ExternalKey:      row.Key,
			Quantity:         row.Quantity,
			CostBasis:        row.CostBasis,
			InstitutionValue: row.InstitutionValue,
			InstitutionPrice: row.InstitutionPrice,
			AsOf:             asOf,
		})
		keep = append(keep, row.Key)
	}
	if err := ledger.UpsertInBatches(tx, rows,
		[]string{"external_key"},
		[]string{"quantity", "cost_basis", "institution_value", "institution_price", "as_of"},
		ledger.DefaultChunk); err != nil {
		return err
	}
	return ledger.PruneHoldingsScoped(tx, &domain.Holding{}, accountIDs(accounts), keep)
}

// markSynced finalizes the connection row inside the load transaction.
// Degraded categories are kept as a payload for observability while the
// status still reads OK: an ignorable condition is not a failure.
func (s *Service) markSynced(tx *gorm.DB, conn *domain.Connection, snap *Snapshot) error {
	updates := map[string]interface{}{
		"status":         domain.ConnectionOK,
		"last_error":     nil,
		"last_synced_at": s.now(),
	}
	if len(snap.Degraded) > 0 {
		payload, err := json.Marshal(map[string]interface{}{"degraded": snap.Degraded})
		if err != nil {
			return err
		}
		updates["last_error"] = datatypes.JSON(payload)
	}
	return tx.Model(conn).Updates(updates).Error
}

func (s *Service) markError(ctx context.Context, conn *domain.Connection, cause error) {
	payload, _ := json.Marshal(map[string]string{
		"reason": provider.Reason(cause),
		"class":  fmt.Sprint(provider.Classify(cause)),
	})
	// The sync's budget context may already be expired (that expiry can be the
	// cause); the ERROR state must still be written.
	ctx = context.WithoutCancel(ctx)
	if err := s.DB.WithContext(ctx).Model(conn).Updates(map[string]interface{}{
		"status":     domain.ConnectionError,
		"last_error": datatypes.JSON(payload),
	}).Error; err != nil {
		log.Error().Err(err).
			Str("connection_id", conn.ConnectionID.String()).
			Msg("Failed to persist connection error state")
	}
}

func accountIDs(accounts map[string]*domain.Account) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(accounts))
	for _, acct := range accounts {
		ids = append(ids, acct.AccountID)
	}
	return ids
}
