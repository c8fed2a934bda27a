package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Security is an investment instrument, deduplicated by provider external id.
// Ticker holds the normalized symbol (derivative contracts on equities/ETFs
// are rewritten to their underlying ticker during Transform). Cusip/Isin are
// identity-adjacent: merged with non-null-wins semantics so a partial provider
// response never erases known data.
type Security struct {
	SecurityID uuid.UUID `gorm:"column:security_id;type:uuid;primaryKey" json:"security_id"`
	ExternalID string    `gorm:"column:external_id;not null;uniqueIndex" json:"external_id"`
	Ticker     *string   `gorm:"column:ticker" json:"ticker"`
	Name       string    `gorm:"column:name;not null" json:"name"`
	Cusip      *string   `gorm:"column:cusip" json:"cusip"`
	Isin       *string   `gorm:"column:isin" json:"isin"`
	Type       string    `gorm:"column:type;type:varchar(20);not null" json:"type"`
	Currency   string    `gorm:"column:currency;type:char(3);not null;default:USD" json:"currency"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (Security) TableName() string {
	return "Securities"
}

func (s *Security) BeforeCreate(tx *gorm.DB) error {
	if s.SecurityID == uuid.Nil {
		s.SecurityID = uuid.New()
	}
	return nil
}
