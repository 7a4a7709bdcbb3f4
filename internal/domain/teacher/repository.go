package teacher

import (
	"context"
)

// Repository persists resolved teachers for a run.
type Repository interface {
	// Upsert writes teachers by key under runID without touching the rows of
	// the active run. Names carried over from the active run are only replaced
	// by longer ones and a known code is never cleared.
	Upsert(ctx context.Context, runID string, teachers []Teacher) error
	// ListActive returns teachers seen by the active snapshot.
	ListActive(ctx context.Context) ([]Teacher, error)
}
