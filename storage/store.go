// Package storage persists run metadata and episode records.
package storage

import (
	"context"

	"github.com/pthm-cable/pursuit/telemetry"
)

// RunRecord identifies one simulation run.
type RunRecord struct {
	ID     string
	Seed   int64
	Config string // YAML of the effective configuration
}

// Store defines persistence operations for runs and their episodes.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run RunRecord) error
	GetRun(ctx context.Context, id string) (RunRecord, bool, error)
	AppendEpisodes(ctx context.Context, runID string, records []telemetry.EpisodeRecord) error
	ListEpisodes(ctx context.Context, runID string) ([]telemetry.EpisodeRecord, error)
}
