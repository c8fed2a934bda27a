package health

import (
	"context"
	"testing"

	"finsync-backend/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestCollect_AllConnected(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Connection{}))
	require.NoError(t, db.Create(&domain.Connection{
		UserID: uuid.New(), ProviderName: "sandbox", ProviderItemID: "item-1",
		Status: domain.ConnectionOK,
	}).Error)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	result := Collect(context.Background(), db, rdb)
	assert.Equal(t, "ok", result.Status)
	assert.Equal(t, "connected", result.Dependencies["database"].Status)
	assert.Equal(t, "connected", result.Dependencies["redis"].Status)
	assert.EqualValues(t, 1, result.Connections["OK"])
}

func TestCollect_MissingDependenciesDegrade(t *testing.T) {
	result := Collect(context.Background(), nil, nil)
	assert.Equal(t, "degraded", result.Status)
	assert.Equal(t, "disconnected", result.Dependencies["database"].Status)
	assert.Equal(t, "disconnected", result.Dependencies["redis"].Status)
}
