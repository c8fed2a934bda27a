package domain

import (
	"crypto/sha1"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Holding is a point-in-time position of a Security in an Account.
// ExternalKey is a deterministic composite (see HoldingKey) so that multiple
// lots of the same security never collide; it is re-derived on every sync.
type Holding struct {
	HoldingID        uuid.UUID       `gorm:"column:holding_id;type:uuid;primaryKey" json:"holding_id"`
	AccountID        uuid.UUID       `gorm:"column:account_id;type:uuid;not null;index" json:"account_id"`
	SecurityID       uuid.UUID       `gorm:"column:security_id;type:uuid;not null;index" json:"security_id"`
	ExternalKey      string          `gorm:"column:external_key;not null;uniqueIndex" json:"external_key"`
	Quantity         decimal.Decimal `gorm:"column:quantity;type:decimal(19,6);not null;default:0" json:"quantity"`
	CostBasis        decimal.Decimal `gorm:"column:cost_basis;type:decimal(19,4);not null;default:0" json:"cost_basis"`
	InstitutionValue decimal.Decimal `gorm:"column:institution_value;type:decimal(19,4);not null;default:0" json:"institution_value"`
	InstitutionPrice decimal.Decimal `gorm:"column:institution_price;type:decimal(19,6);not null;default:0" json:"institution_price"`
	AsOf             time.Time       `gorm:"column:as_of;not null" json:"as_of"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

func (Holding) TableName() string {
	return "Holdings"
}

func (h *Holding) BeforeCreate(tx *gorm.DB) error {
	if h.HoldingID == uuid.Nil {
		h.HoldingID = uuid.New()
	}
	return nil
}

// HoldingKey derives the stable reconciliation key for a holding from the
// provider-scoped account and security ids plus an optional disambiguator
// (lot or plan id where the provider supplies one, empty otherwise).
func HoldingKey(accountExternalID, securityExternalID, discriminator string) string {
	sum := sha1.Sum([]byte(accountExternalID + "|" + securityExternalID + "|" + discriminator))
	return hex.EncodeToString(sum[:])
}
