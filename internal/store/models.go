package store

import (
	"errors"
	"time"
)

// NoOwner is the sentinel owner value for a task no worker holds.
// Worker ids are auto-assigned by the database starting at 1, so 0 is
// never a valid owner.
const NoOwner int64 = 0

// Status represents the lifecycle state of a task. The wire values are
// stable and shared with other implementations reading the same tables.
type Status int

const (
	StatusPending Status = 1
	StatusRunning Status = 2
	StatusError   Status = 3
	StatusDone    Status = 4
	StatusTimeout Status = 5
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusError:
		return "error"
	case StatusDone:
		return "done"
	case StatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

func ParseStatus(s string) Status {
	switch s {
	case "pending":
		return StatusPending
	case "running":
		return StatusRunning
	case "error":
		return StatusError
	case "done":
		return StatusDone
	case "timeout":
		return StatusTimeout
	default:
		return StatusPending
	}
}

// IsTerminal returns true if no transition ever leaves this status.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusError || s == StatusTimeout
}

// Error definitions
var (
	ErrTaskNotFound   = errors.New("task not found")
	ErrWorkerNotFound = errors.New("worker not found")
)

// Task is one submitted unit of work. The payload columns (Function,
// Kwargs, Results) are opaque byte blobs; the store never interprets
// them and they round-trip bit-identically.
type Task struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Creator     int64     `gorm:"not null;index" json:"creator"`
	Owner       int64     `gorm:"not null;default:0" json:"owner"`
	Status      Status    `gorm:"not null;index" json:"status"`
	Function    []byte    `gorm:"column:function" json:"-"`
	Kwargs      []byte    `gorm:"column:kwargs" json:"-"`
	Results     []byte    `gorm:"column:results" json:"-"`
	Retries     int       `gorm:"not null" json:"retries"`
	LastUpdated time.Time `gorm:"column:last_updated;not null" json:"last_updated"`
	RequiresTag string    `gorm:"column:requires_tag;not null;default:''" json:"requires_tag"`
}

func (Task) TableName() string { return "tasks" }

// Worker is one live worker process. A worker whose row is deleted
// exits at its next heartbeat; a worker whose heartbeat goes stale for
// longer than the cleanup timeout has its in-flight task reclaimed.
type Worker struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Tag             string    `gorm:"not null;index" json:"tag"`
	LastHeartbeat   time.Time `gorm:"column:last_heartbeat;not null;index" json:"last_heartbeat"`
	WorkingOnTaskID *int64    `gorm:"column:working_on_task_id" json:"working_on_task_id,omitempty"`
}

func (Worker) TableName() string { return "workers" }
