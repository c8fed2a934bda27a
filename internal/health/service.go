package health

import (
	"context"
	"runtime"
	"time"

	"finsync-backend/internal/domain"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

var startedAt = time.Now()

// DepStatus is the state of one dependency.
type DepStatus struct {
	Status string      `json:"status"`
	PingMs interface{} `json:"pingMs"`
}

// Result is the /health/json payload.
type Result struct {
	Status       string               `json:"status"`
	UptimeSecs   int64                `json:"uptimeSeconds"`
	GoVersion    string               `json:"goVersion"`
	Dependencies map[string]DepStatus `json:"dependencies"`
	Connections  map[string]int64     `json:"connections"`
}

// Collect pings the database and redis and counts connections by status, so
// an operator sees stuck SYNCING or error pile-ups at a glance.
func Collect(ctx context.Context, db *gorm.DB, rdb *redis.Client) Result {
	result := Result{
		Status:       "ok",
		UptimeSecs:   int64(time.Since(startedAt).Seconds()),
		GoVersion:    runtime.Version(),
		Dependencies: make(map[string]DepStatus),
		Connections:  make(map[string]int64),
	}

	result.Dependencies["database"] = pingDB(db)
	result.Dependencies["redis"] = pingRedis(ctx, rdb)
	for _, dep := range result.Dependencies {
		if dep.Status != "connected" {
			result.Status = "degraded"
		}
	}

	if db != nil {
		type row struct {
			Status string
			N      int64
		}
		var rows []row
		if err := db.WithContext(ctx).Model(&domain.Connection{}).
			Select("status, count(*) as n").Group("status").Scan(&rows).Error; err == nil {
			for _, r := range rows {
				result.Connections[r.Status] = r.N
			}
		}
	}
	return result
}

func pingDB(db *gorm.DB) DepStatus {
	if db == nil {
		return DepStatus{Status: "disconnected"}
	}
	sqlDB, err := db.DB()
	if err != nil {
		return DepStatus{Status: "disconnected"}
	}
	start := time.Now()
	if err := sqlDB.Ping(); err != nil {
		return DepStatus{Status: "disconnected"}
	}
	return DepStatus{Status: "connected", PingMs: time.Since(start).Milliseconds()}
}

func pingRedis(ctx context.Context, rdb *redis.Client) DepStatus {
	if rdb == nil {
		return DepStatus{Status: "disconnected"}
	}
	start := time.Now()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return DepStatus{Status: "disconnected"}
	}
	return DepStatus{Status: "connected", PingMs: time.Since(start).Milliseconds()}
}
