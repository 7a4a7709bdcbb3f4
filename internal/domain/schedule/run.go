package schedule

import (
	"database/sql"
	"time"
)

// RunStatus is the lifecycle state of a SyncRun.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

// Trigger names what started a sync run.
type Trigger string

const (
	TriggerStartup   Trigger = "startup"
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)

// RunCounts summarizes what a run wrote.
type RunCounts struct {
	Pages    int
	Groups   int
	Teachers int
	Lessons  int
}

// SyncRun is one ingestion attempt. It is inserted as running and updated once on finish.
type SyncRun struct {
	RunID      string
	Trigger    Trigger
	Status     RunStatus
	StartedAt  time.Time
	FinishedAt sql.NullTime
	Counts     RunCounts
	Error      sql.NullString
}

// ActiveSnapshotPointer names the run readers currently see.
type ActiveSnapshotPointer struct {
	ActiveRunID     string       `db:"active_run_id"`
	SourceUpdatedAt sql.NullTime `db:"source_updated_at"`
	UpdatedAt       time.Time    `db:"updated_at"`
}
