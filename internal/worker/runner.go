// Package worker implements the long-running worker process: it
// registers itself, heartbeats, claims pending tasks under row lock,
// executes their payloads outside any transaction, saves outcomes, and
// sweeps tasks away from dead peers. One Runner per process; concurrency
// comes from running many processes against the same database.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/maumercado/dbqueue/internal/logger"
	"github.com/maumercado/dbqueue/internal/metrics"
	"github.com/maumercado/dbqueue/internal/store"
)

const (
	// DefaultTick is the sleep between loop iterations.
	DefaultTick = 1 * time.Second
	// DefaultCleanupTimeout is how long a worker may go without
	// heartbeating before its task is reclaimed.
	DefaultCleanupTimeout = 5 * time.Minute
)

// Runner is a single worker's loop state. The zero Tag claims only
// untagged tasks; a non-empty Tag additionally claims tasks requiring it.
type Runner struct {
	db             *store.Database
	executor       *Executor
	tag            string
	tick           time.Duration
	cleanupTimeout time.Duration

	id  int64
	log zerolog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithTag sets the worker's capability tag.
func WithTag(tag string) Option {
	return func(r *Runner) { r.tag = tag }
}

// WithTick sets the sleep between loop iterations.
func WithTick(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.tick = d
		}
	}
}

// WithCleanupTimeout sets the heartbeat-silence threshold after which a
// peer is presumed dead.
func WithCleanupTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.cleanupTimeout = d
		}
	}
}

// NewRunner creates a worker bound to an open database and an executor.
func NewRunner(db *store.Database, executor *Executor, opts ...Option) *Runner {
	r := &Runner{
		db:             db,
		executor:       executor,
		tick:           DefaultTick,
		cleanupTimeout: DefaultCleanupTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ID returns the database-assigned worker id, 0 before registration.
func (r *Runner) ID() int64 { return r.id }

// Run registers the worker and executes the loop until the worker row is
// deleted (administrative stop, returns nil), the context is canceled
// (returns nil), or a database error surfaces during heartbeat or
// registration (returns the error; the supervisor may restart the
// process).
func (r *Runner) Run(ctx context.Context) error {
	if err := r.register(ctx); err != nil {
		return err
	}
	r.log = logger.WithWorker(r.id)
	r.log.Info().Str("tag", r.tag).Msg("worker started")

	for {
		alive, err := r.heartbeat(ctx)
		if err != nil {
			if ctx.Err() != nil {
				r.log.Info().Msg("worker stopping")
				return nil
			}
			r.log.Error().Err(err).Msg("heartbeat failed")
			return err
		}
		if !alive {
			r.log.Info().Msg("worker row deleted, stopping")
			return nil
		}

		if err := r.cleanup(ctx); err != nil {
			// Another worker's sweep covers for us; try again next tick.
			r.log.Warn().Err(err).Msg("cleanup sweep failed")
		}

		select {
		case <-ctx.Done():
			r.log.Info().Msg("worker stopping")
			return nil
		case <-time.After(r.tick):
		}

		task, err := r.claim(ctx)
		if err != nil {
			r.log.Error().Err(err).Msg("claim failed")
			continue
		}
		if task != nil {
			r.execute(ctx, task)
		}
	}
}

// register inserts this worker's row and records the assigned id.
func (r *Runner) register(ctx context.Context) error {
	rec := store.Worker{
		Tag:           r.tag,
		LastHeartbeat: time.Now().UTC(),
	}
	err := r.db.Transaction(ctx, func(tx *gorm.DB) error {
		return tx.Create(&rec).Error
	})
	if err != nil {
		return err
	}
	r.id = rec.ID
	return nil
}

// heartbeat stamps the worker's liveness. A missing row is the
// administrative kill signal: heartbeat reports not-alive and the loop
// exits cleanly.
func (r *Runner) heartbeat(ctx context.Context) (alive bool, err error) {
	err = r.db.Transaction(ctx, func(tx *gorm.DB) error {
		var rec store.Worker
		if err := tx.First(&rec, r.id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		alive = true
		return tx.Model(&rec).Update("last_heartbeat", time.Now().UTC()).Error
	})
	if err != nil {
		return false, err
	}
	if alive {
		metrics.Heartbeats.Inc()
	}
	return alive, nil
}

// claim atomically transitions one pending task to running under this
// worker. The row lock guarantees at most one claimer wins a given task;
// losers see a different row or none. The worker's working_on_task_id
// pointer is set in the same transaction so cleanup can find the task if
// this process dies.
func (r *Runner) claim(ctx context.Context) (*store.Task, error) {
	var claimed *store.Task
	err := r.db.Transaction(ctx, func(tx *gorm.DB) error {
		var rec store.Task
		err := r.db.Locked(tx).
			Where("status = ? AND owner = ?", store.StatusPending, store.NoOwner).
			Where("requires_tag IN ?", []string{r.tag, ""}).
			Order("id").
			First(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		rec.Owner = r.id
		rec.Status = store.StatusRunning
		rec.LastUpdated = time.Now().UTC()
		if err := tx.Save(&rec).Error; err != nil {
			return err
		}
		if err := tx.Model(&store.Worker{}).Where("id = ?", r.id).
			Update("working_on_task_id", rec.ID).Error; err != nil {
			return err
		}

		claimed = &rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	if claimed != nil {
		metrics.TasksClaimed.Inc()
		r.log.Info().Int64("task_id", claimed.ID).Msg("task claimed")
	}
	return claimed, nil
}

// execute runs the payload outside any transaction and saves the outcome.
func (r *Runner) execute(ctx context.Context, task *store.Task) {
	result, execErr := r.executor.Execute(ctx, task.Function, task.Kwargs)

	var (
		results []byte
		status  store.Status
	)
	if execErr != nil {
		// The failure is the task's outcome, not the worker's.
		results = []byte(execErr.Error())
		status = store.StatusError
	} else {
		results = result
		status = store.StatusDone
	}

	if err := r.save(ctx, task.ID, results, status); err != nil {
		r.log.Error().Err(err).Int64("task_id", task.ID).Msg("failed to save result")
	}
}

// save persists the executor outcome, guarded against lost ownership:
// if the task is no longer running under this worker (cleanup reclaimed
// it after our heartbeat went stale), the result is discarded. Either
// way the worker's task pointer is cleared.
func (r *Runner) save(ctx context.Context, taskID int64, results []byte, status store.Status) error {
	err := r.db.Transaction(ctx, func(tx *gorm.DB) error {
		var rec store.Task
		err := r.db.Locked(tx).First(&rec, taskID).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err == nil {
			if rec.Status == store.StatusRunning && rec.Owner == r.id {
				// Terminal statuses carry no owner.
				updates := map[string]any{
					"results":      results,
					"status":       status,
					"owner":        store.NoOwner,
					"last_updated": time.Now().UTC(),
				}
				if err := tx.Model(&rec).Updates(updates).Error; err != nil {
					return err
				}
				metrics.TasksCompleted.WithLabelValues(status.String()).Inc()
				r.log.Info().
					Int64("task_id", taskID).
					Str("status", status.String()).
					Int("result_bytes", len(results)).
					Msg("task result saved")
			} else {
				metrics.SavesDiscarded.Inc()
				r.log.Warn().
					Int64("task_id", taskID).
					Str("status", rec.Status.String()).
					Int64("owner", rec.Owner).
					Msg("task no longer owned, result discarded")
			}
		}

		return tx.Model(&store.Worker{}).Where("id = ?", r.id).
			Update("working_on_task_id", nil).Error
	})
	return err
}
