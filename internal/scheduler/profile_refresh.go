package scheduler

import (
	"context"
	"fmt"

	"github.com/fundlens/fundlens/internal/modules/refresh"
	"github.com/rs/zerolog"
)

// ProfileRefreshJob re-derives profiles and tags for the whole customer
// population. Runs nightly at 02:30, after the valuation update.
type ProfileRefreshJob struct {
	orchestrator *refresh.Orchestrator
	log          zerolog.Logger
}

// NewProfileRefreshJob creates the nightly refresh job.
func NewProfileRefreshJob(orchestrator *refresh.Orchestrator, log zerolog.Logger) *ProfileRefreshJob {
	return &ProfileRefreshJob{
		orchestrator: orchestrator,
		log:          log.With().Str("job", "profile_refresh").Logger(),
	}
}

// Name returns the job name.
func (j *ProfileRefreshJob) Name() string {
	return "profile_refresh"
}

// Run executes the full-population sweep. Per-customer failures are
// logged by the orchestrator and do not fail the job; only a failure to
// start the sweep does.
func (j *ProfileRefreshJob) Run() error {
	result, err := j.orchestrator.RefreshAll(context.Background())
	if err != nil {
		return fmt.Errorf("full-population refresh failed to start: %w", err)
	}

	j.log.Info().
		Int("total", result.Total).
		Int("processed", result.Processed).
		Int("failed", result.Failed).
		Bool("timed_out", result.TimedOut).
		Msg("Nightly profile refresh finished")

	return nil
}
