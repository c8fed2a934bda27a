package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ConnectionStatus is the sync-progress signal external layers may read.
type ConnectionStatus string

const (
	ConnectionOK      ConnectionStatus = "OK"
	ConnectionError   ConnectionStatus = "ERROR"
	ConnectionPending ConnectionStatus = "PENDING"
	ConnectionSyncing ConnectionStatus = "SYNCING"
)

// Connection is a credentialed link to one upstream institution for one user.
// AccessToken is sealed at rest (internal/pkg/secrets); never serialized.
type Connection struct {
	ConnectionID    uuid.UUID        `gorm:"column:connection_id;type:uuid;primaryKey" json:"connection_id"`
	UserID          uuid.UUID        `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	ProviderName    string           `gorm:"column:provider_name;type:varchar(40);not null" json:"provider_name"`
	ProviderItemID  string           `gorm:"column:provider_item_id;uniqueIndex" json:"provider_item_id"`
	InstitutionName string           `gorm:"column:institution_name" json:"institution_name"`
	AccessToken     []byte           `gorm:"column:access_token" json:"-"`
	Status          ConnectionStatus `gorm:"column:status;type:varchar(10);not null;default:PENDING" json:"status"`
	LastError       datatypes.JSON   `gorm:"column:last_error" json:"last_error"`
	SyncStartedAt   *time.Time       `gorm:"column:sync_started_at" json:"sync_started_at"`
	LastSyncedAt    *time.Time       `gorm:"column:last_synced_at" json:"last_synced_at"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
	DeletedAt       gorm.DeletedAt   `gorm:"index" json:"-"`
}

func (Connection) TableName() string {
	return "Connections"
}

func (c *Connection) BeforeCreate(tx *gorm.DB) error {
	if c.ConnectionID == uuid.Nil {
		c.ConnectionID = uuid.New()
	}
	return nil
}
