package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Transaction is a dated monetary movement on an Account. Amount is signed:
// positive increases the balance, negative decreases it. ExternalID is the
// provider's stable id (nil for manually created rows); identity fields
// (external id, account, date) are immutable after creation.
type Transaction struct {
	TransactionID uuid.UUID       `gorm:"column:transaction_id;type:uuid;primaryKey" json:"transaction_id"`
	AccountID     uuid.UUID       `gorm:"column:account_id;type:uuid;not null;index" json:"account_id"`
	ExternalID    *string         `gorm:"column:external_id;uniqueIndex" json:"external_id"`
	Date          time.Time       `gorm:"column:date;not null;index" json:"date"`
	Amount        decimal.Decimal `gorm:"column:amount;type:decimal(19,4);not null" json:"amount"`
	Name          string          `gorm:"column:name;not null" json:"name"`
	Category      *string         `gorm:"column:category" json:"category"`
	Currency      string          `gorm:"column:currency;type:char(3);not null;default:USD" json:"currency"`
	Pending       bool            `gorm:"column:pending;not null;default:false" json:"pending"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

func (Transaction) TableName() string {
	return "Transactions"
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.TransactionID == uuid.Nil {
		t.TransactionID = uuid.New()
	}
	return nil
}

// InvestmentTransaction is a dated movement on an investment account,
// optionally tied to a Security (nil for cash sweeps and fees).
type InvestmentTransaction struct {
	InvestmentTransactionID uuid.UUID       `gorm:"column:investment_transaction_id;type:uuid;primaryKey" json:"investment_transaction_id"`
	AccountID               uuid.UUID       `gorm:"column:account_id;type:uuid;not null;index" json:"account_id"`
	SecurityID              *uuid.UUID      `gorm:"column:security_id;type:uuid;index" json:"security_id"`
	ExternalID              *string         `gorm:"column:external_id;uniqueIndex" json:"external_id"`
	Date                    time.Time       `gorm:"column:date;not null;index" json:"date"`
	Type                    string          `gorm:"column:type;type:varchar(20);not null" json:"type"`
	Amount                  decimal.Decimal `gorm:"column:amount;type:decimal(19,4);not null" json:"amount"`
	Quantity                decimal.Decimal `gorm:"column:quantity;type:decimal(19,6);not null;default:0" json:"quantity"`
	Price                   decimal.Decimal `gorm:"column:price;type:decimal(19,6);not null;default:0" json:"price"`
	Fees                    decimal.Decimal `gorm:"column:fees;type:decimal(19,4);not null;default:0" json:"fees"`
	Name                    string          `gorm:"column:name;not null" json:"name"`
	Currency                string          `gorm:"column:currency;type:char(3);not null;default:USD" json:"currency"`
	CreatedAt               time.Time       `json:"createdAt"`
	UpdatedAt               time.Time       `json:"updatedAt"`
}

func (InvestmentTransaction) TableName() string {
	return "InvestmentTransactions"
}

func (t *InvestmentTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.InvestmentTransactionID == uuid.Nil {
		t.InvestmentTransactionID = uuid.New()
	}
	return nil
}
