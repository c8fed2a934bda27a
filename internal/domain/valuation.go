package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ValuationSource records who supplied a balance snapshot.
type ValuationSource string

const (
	ValuationManual   ValuationSource = "manual"
	ValuationProvider ValuationSource = "provider"
)

// Valuation is a balance snapshot for an Account on a specific calendar day.
// The authoritative balance source for manually tracked accounts.
type Valuation struct {
	ValuationID uuid.UUID       `gorm:"column:valuation_id;type:uuid;primaryKey" json:"valuation_id"`
	AccountID   uuid.UUID       `gorm:"column:account_id;type:uuid;not null;uniqueIndex:idx_valuations_account_date" json:"account_id"`
	Date        time.Time       `gorm:"column:date;not null;uniqueIndex:idx_valuations_account_date" json:"date"`
	Value       decimal.Decimal `gorm:"column:value;type:decimal(19,4);not null" json:"value"`
	Source      ValuationSource `gorm:"column:source;type:varchar(10);not null;default:manual" json:"source"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

func (Valuation) TableName() string {
	return "Valuations"
}

func (v *Valuation) BeforeCreate(tx *gorm.DB) error {
	if v.ValuationID == uuid.Nil {
		v.ValuationID = uuid.New()
	}
	return nil
}
