package worker

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/maumercado/dbqueue/internal/logger"
	"github.com/maumercado/dbqueue/internal/metrics"
	"github.com/maumercado/dbqueue/internal/store"
)

// cleanup runs one reclamation sweep with this runner's timeout.
func (r *Runner) cleanup(ctx context.Context) error {
	return Cleanup(ctx, r.db, r.cleanupTimeout)
}

// Cleanup reclaims tasks from workers whose heartbeat has been silent
// for longer than timeout. Every worker runs it on every loop tick; no
// leader election. Concurrent sweeps are safe because each step takes
// the row lock first.
//
// A reclaimed task returns to pending with one fewer retry, or becomes
// TIMEOUT when its budget is exhausted. The dead worker's row is not
// deleted; it keeps its stale heartbeat, with the task pointer cleared,
// until an administrator removes it.
func Cleanup(ctx context.Context, db *store.Database, timeout time.Duration) error {
	cutoff := time.Now().UTC().Add(-timeout)

	err := db.Transaction(ctx, func(tx *gorm.DB) error {
		var dead []store.Worker
		if err := db.Locked(tx).Where("last_heartbeat < ?", cutoff).Find(&dead).Error; err != nil {
			return err
		}

		for i := range dead {
			w := &dead[i]
			if w.WorkingOnTaskID == nil {
				continue
			}
			taskID := *w.WorkingOnTaskID

			var task store.Task
			err := db.Locked(tx).First(&task, taskID).Error
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					// Pointer to a vanished task; just clear it.
					if err := clearWorkerTask(tx, w.ID); err != nil {
						return err
					}
					continue
				}
				return err
			}

			task.Owner = store.NoOwner
			if task.Retries == 0 {
				task.Status = store.StatusTimeout
				metrics.TasksTimedOut.Inc()
				timeoutLogger := logger.WithTask(taskID)
				timeoutLogger.Warn().
					Int64("dead_worker", w.ID).
					Msg("retries exhausted, task timed out")
			} else {
				task.Status = store.StatusPending
				task.Retries--
				metrics.TasksReclaimed.Inc()
				reclaimLogger := logger.WithTask(taskID)
				reclaimLogger.Info().
					Int64("dead_worker", w.ID).
					Int("retries_left", task.Retries).
					Msg("task disowned, back to pending")
			}
			task.LastUpdated = time.Now().UTC()
			if err := tx.Save(&task).Error; err != nil {
				return err
			}

			if err := clearWorkerTask(tx, w.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	metrics.CleanupRuns.Inc()
	return nil
}

func clearWorkerTask(tx *gorm.DB, workerID int64) error {
	return tx.Model(&store.Worker{}).Where("id = ?", workerID).
		Update("working_on_task_id", nil).Error
}
