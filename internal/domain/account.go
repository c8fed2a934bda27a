package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Classification splits the rollup tree at the top level.
type Classification string

const (
	ClassificationAsset     Classification = "asset"
	ClassificationLiability Classification = "liability"
)

// BalanceStrategy selects how daily balances are derived for an account.
type BalanceStrategy string

const (
	// StrategyValuations computes daily balances from Valuation snapshots
	// (manual accounts, property, anything without a transaction feed).
	StrategyValuations BalanceStrategy = "valuations"
	// StrategyTransactions walks the transaction ledger from the
	// provider-supplied current balance (depository/credit accounts).
	StrategyTransactions BalanceStrategy = "transactions"
)

// AccountSyncStatus is derived, never persisted.
type AccountSyncStatus string

const (
	AccountIdle    AccountSyncStatus = "IDLE"
	AccountSyncing AccountSyncStatus = "SYNCING"
)

// Account is a financial account, provider-linked (ConnectionID set) or manual.
type Account struct {
	AccountID       uuid.UUID       `gorm:"column:account_id;type:uuid;primaryKey" json:"account_id"`
	ConnectionID    *uuid.UUID      `gorm:"column:connection_id;type:uuid;index;uniqueIndex:idx_accounts_conn_external" json:"connection_id"`
	UserID          uuid.UUID       `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	ExternalID      *string         `gorm:"column:external_id;uniqueIndex:idx_accounts_conn_external" json:"external_id"`
	Name            string          `gorm:"column:name;not null" json:"name"`
	Classification  Classification  `gorm:"column:classification;type:varchar(10);not null" json:"classification"`
	Category        string          `gorm:"column:category;type:varchar(30);not null" json:"category"`
	Subtype         *string         `gorm:"column:subtype" json:"subtype"`
	Currency        string          `gorm:"column:currency;type:char(3);not null;default:USD" json:"currency"`
	BalanceStrategy BalanceStrategy `gorm:"column:balance_strategy;type:varchar(15);not null;default:valuations" json:"balance_strategy"`
	CurrentBalance  decimal.Decimal `gorm:"column:current_balance;type:decimal(19,4);not null;default:0" json:"current_balance"`
	// StartDate marks the origination of the account; balances before it
	// must read as zero/absent. Never overwritten by a re-sync once set.
	StartDate *time.Time     `gorm:"column:start_date" json:"start_date"`
	Inactive  bool           `gorm:"column:inactive;not null;default:false" json:"inactive"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Account) TableName() string {
	return "Accounts"
}

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.AccountID == uuid.Nil {
		a.AccountID = uuid.New()
	}
	return nil
}

// SyncStatus derives the per-account signal from the owning connection's state.
func (a *Account) SyncStatus(conn *Connection) AccountSyncStatus {
	if conn != nil && conn.Status == ConnectionSyncing {
		return AccountSyncing
	}
	return AccountIdle
}
