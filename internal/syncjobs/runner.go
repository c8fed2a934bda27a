package syncjobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"finsync-backend/internal/balances"
	"finsync-backend/internal/domain"
	"finsync-backend/internal/etl"
	"finsync-backend/internal/provider"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// JobKind selects what a queued job does.
type JobKind string

const (
	JobConnectionSync JobKind = "connection_sync"
	JobBalanceSync    JobKind = "balance_sync"
)

// Job is one unit of background work.
type Job struct {
	Kind         JobKind
	ConnectionID uuid.UUID
	AccountID    uuid.UUID
	Subset       []provider.Category
}

// ErrQueueFull is returned when the job queue cannot take more work.
var ErrQueueFull = errors.New("sync queue is full")

// Runner owns the worker pool consuming sync jobs and the watchdog that
// unsticks stale SYNCING connections.
type Runner struct {
	DB       *gorm.DB
	ETL      *etl.Service
	Balances *balances.Service
	Lease    *Lease

	Workers       int
	Budget        time.Duration // wall-clock budget per connection sync
	StaleAfter    time.Duration // watchdog threshold for stuck SYNCING
	WatchdogEvery time.Duration

	jobs     chan Job
	initOnce sync.Once

	// Now is a seam for tests; defaults to time.Now.
	Now func() time.Time
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) init() {
	r.initOnce.Do(func() {
		r.jobs = make(chan Job, 256)
	})
}

// RequestConnectionSync enqueues a full or category-scoped sync. The lease is
// taken before queueing so a duplicate request while a sync is active (or
// queued) is rejected immediately, not queued in parallel.
func (r *Runner) RequestConnectionSync(ctx context.Context, connectionID uuid.UUID, subset []provider.Category) error {
	r.init()
	ok, err := r.Lease.Acquire(ctx, connectionID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSyncInProgress
	}
	select {
	case r.jobs <- Job{Kind: JobConnectionSync, ConnectionID: connectionID, Subset: subset}:
		return nil
	default:
		if relErr := r.Lease.Release(ctx, connectionID); relErr != nil {
			log.Error().Err(relErr).Str("connection_id", connectionID.String()).
				Msg("Failed to release lease after full queue")
		}
		return ErrQueueFull
	}
}

// RequestBalanceSync enqueues a balance-only recompute for one account (fast
// path after a manual valuation edit; no provider extraction).
func (r *Runner) RequestBalanceSync(ctx context.Context, accountID uuid.UUID) error {
	r.init()
	select {
	case r.jobs <- Job{Kind: JobBalanceSync, AccountID: accountID}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start spawns the worker pool and the watchdog; both stop when ctx ends.
func (r *Runner) Start(ctx context.Context) {
	r.init()
	workers := r.Workers
	if workers <= 0 {
		workers = 4
	}
	for i := 0; i < workers; i++ {
		go r.worker(ctx)
	}
	go r.watchdog(ctx)
}

func (r *Runner) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-r.jobs:
			r.runJob(ctx, job)
		}
	}
}

func (r *Runner) runJob(ctx context.Context, job Job) {
	switch job.Kind {
	case JobConnectionSync:
		budget := r.Budget
		if budget <= 0 {
			budget = 5 * time.Minute
		}
		jobCtx, cancel := context.WithTimeout(ctx, budget)
		err := r.ETL.SyncConnection(jobCtx, job.ConnectionID, job.Subset)
		cancel()
		if relErr := r.Lease.Release(context.WithoutCancel(ctx), job.ConnectionID); relErr != nil {
			log.Error().Err(relErr).Str("connection_id", job.ConnectionID.String()).
				Msg("Failed to release sync lease")
		}
		if err != nil {
			log.Error().Err(err).Str("connection_id", job.ConnectionID.String()).
				Msg("Connection sync failed")
		}
	case JobBalanceSync:
		if err := r.Balances.SyncAccountBalances(ctx, job.AccountID); err != nil {
			log.Error().Err(err).Str("account_id", job.AccountID.String()).
				Msg("Balance sync failed")
		}
	}
}

// watchdog resets connections stuck SYNCING past StaleAfter so a crashed or
// hung sync never leaves the status wedged.
func (r *Runner) watchdog(ctx context.Context) {
	every := r.WatchdogEvery
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.SweepStaleSyncs(ctx); err != nil {
				log.Error().Err(err).Msg("Stale sync sweep failed")
			}
		}
	}
}

// SweepStaleSyncs marks every connection SYNCING for longer than StaleAfter
// as ERROR with a timeout reason.
func (r *Runner) SweepStaleSyncs(ctx context.Context) error {
	stale := r.StaleAfter
	if stale <= 0 {
		stale = 15 * time.Minute
	}
	cutoff := r.now().Add(-stale)
	payload := datatypes.JSON([]byte(`{"reason":"sync exceeded maximum duration","class":"timeout"}`))
	res := r.DB.WithContext(ctx).Model(&domain.Connection{}).
		Where("status = ? AND sync_started_at < ?", domain.ConnectionSyncing, cutoff).
		Updates(map[string]interface{}{
			"status":     domain.ConnectionError,
			"last_error": payload,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		log.Warn().Int64("connections", res.RowsAffected).Msg("Reset stale SYNCING connections")
	}
	return nil
}
