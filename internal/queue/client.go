// Package queue exposes the client side of the task queue: submitting
// work and polling its outcome. All operations are plain database
// transactions; the client never blocks waiting for a worker and holds
// no background state.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/maumercado/dbqueue/internal/logger"
	"github.com/maumercado/dbqueue/internal/metrics"
	"github.com/maumercado/dbqueue/internal/store"
)

// DefaultRetries is how many times a task may be reclaimed from a dead
// worker before the next reclamation marks it TIMEOUT. It counts
// additional attempts beyond the first: a task submitted with retries=0
// times out the first time its worker dies.
const DefaultRetries = 1

// Client submits tasks and reads their status and results.
type Client struct {
	db *store.Database
}

// NewClient creates a client bound to an open database.
func NewClient(db *store.Database) *Client {
	return &Client{db: db}
}

// SubmitOption configures a single Submit call.
type SubmitOption func(*submitOptions)

type submitOptions struct {
	requiresTag string
	retries     int
}

// WithRequiresTag restricts the task to workers carrying this tag.
func WithRequiresTag(tag string) SubmitOption {
	return func(o *submitOptions) {
		o.requiresTag = tag
	}
}

// WithRetries sets the reclamation budget. Retries count attempts beyond
// the first: retries=0 means the next reclamation produces TIMEOUT.
func WithRetries(n int) SubmitOption {
	return func(o *submitOptions) {
		if n >= 0 {
			o.retries = n
		}
	}
}

// Submit inserts a new pending task and returns its id. The function and
// kwargs blobs are stored untouched; only the executor on the claiming
// worker interprets them.
func (c *Client) Submit(ctx context.Context, function, kwargs []byte, creator int64, opts ...SubmitOption) (int64, error) {
	o := &submitOptions{retries: DefaultRetries}
	for _, opt := range opts {
		opt(o)
	}

	rec := store.Task{
		Creator:     creator,
		Owner:       store.NoOwner,
		Status:      store.StatusPending,
		Function:    function,
		Kwargs:      kwargs,
		Results:     []byte{},
		Retries:     o.retries,
		RequiresTag: o.requiresTag,
		LastUpdated: time.Now().UTC(),
	}

	err := c.db.Transaction(ctx, func(tx *gorm.DB) error {
		return tx.Create(&rec).Error
	})
	if err != nil {
		return 0, fmt.Errorf("failed to submit task: %w", err)
	}

	metrics.TasksSubmitted.Inc()
	taskLogger := logger.WithTask(rec.ID)
	taskLogger.Debug().
		Int64("creator", creator).
		Str("requires_tag", o.requiresTag).
		Int("retries", o.retries).
		Msg("task submitted")

	return rec.ID, nil
}

// GetStatus reads the task's lifecycle state.
func (c *Client) GetStatus(ctx context.Context, taskID int64) (store.Status, error) {
	var status store.Status
	err := c.db.Transaction(ctx, func(tx *gorm.DB) error {
		var rec store.Task
		if err := tx.Select("status").First(&rec, taskID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return store.ErrTaskNotFound
			}
			return err
		}
		status = rec.Status
		return nil
	})
	if err != nil {
		return 0, err
	}
	return status, nil
}

// GetResult returns the task's results blob, or nil while there is none.
// A DONE task's blob is the executor's success output, an ERROR task's
// blob describes the failure, and a TIMEOUT task's blob stays empty.
func (c *Client) GetResult(ctx context.Context, taskID int64) ([]byte, error) {
	var results []byte
	err := c.db.Transaction(ctx, func(tx *gorm.DB) error {
		var rec store.Task
		if err := tx.Select("results").First(&rec, taskID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return store.ErrTaskNotFound
			}
			return err
		}
		results = rec.Results
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results, nil
}

// TasksOfCreator lists every task submitted under the given creator tag.
func (c *Client) TasksOfCreator(ctx context.Context, creator int64) ([]store.Task, error) {
	var tasks []store.Task
	err := c.db.Transaction(ctx, func(tx *gorm.DB) error {
		return tx.Where("creator = ?", creator).Order("id").Find(&tasks).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// ListWorkers returns every registered worker row, live or dead.
func (c *Client) ListWorkers(ctx context.Context) ([]store.Worker, error) {
	var workers []store.Worker
	err := c.db.Transaction(ctx, func(tx *gorm.DB) error {
		return tx.Order("id").Find(&workers).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list workers: %w", err)
	}
	return workers, nil
}

// KillWorkers deletes every worker row carrying the given tag and
// returns how many were removed. Each affected worker notices the
// missing row at its next heartbeat and exits cleanly. A task such a
// worker is running keeps its RUNNING status and owner: the worker's own
// save still records the outcome if it finishes, and the cleanup sweep,
// which only scans rows present in the workers table, does not reclaim
// it.
func (c *Client) KillWorkers(ctx context.Context, tag string) (int64, error) {
	var killed int64
	err := c.db.Transaction(ctx, func(tx *gorm.DB) error {
		res := tx.Where("tag = ?", tag).Delete(&store.Worker{})
		if res.Error != nil {
			return res.Error
		}
		killed = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to kill workers: %w", err)
	}
	if killed > 0 {
		logger.Info().Str("tag", tag).Int64("count", killed).Msg("workers killed")
	}
	return killed, nil
}
