package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AccountBalance is the derived daily balance series: at most one row per
// (account, calendar day), written only by the balance synchronizer.
type AccountBalance struct {
	BalanceID uuid.UUID       `gorm:"column:balance_id;type:uuid;primaryKey" json:"balance_id"`
	AccountID uuid.UUID       `gorm:"column:account_id;type:uuid;not null;uniqueIndex:idx_account_balances_account_date" json:"account_id"`
	Date      time.Time       `gorm:"column:date;not null;uniqueIndex:idx_account_balances_account_date" json:"date"`
	Balance   decimal.Decimal `gorm:"column:balance;type:decimal(19,4);not null" json:"balance"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func (AccountBalance) TableName() string {
	return "AccountBalances"
}

func (b *AccountBalance) BeforeCreate(tx *gorm.DB) error {
	if b.BalanceID == uuid.Nil {
		b.BalanceID = uuid.New()
	}
	return nil
}

// DayUTC truncates t to UTC midnight. Every persisted Date column stores
// calendar days in this normalized form.
func DayUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
