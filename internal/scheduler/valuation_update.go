package scheduler

import (
	"fmt"

	"github.com/fundlens/fundlens/internal/modules/valuation"
	"github.com/rs/zerolog"
)

// ValuationUpdateJob applies the nightly price walk and market-value
// recompute. Runs at 01:30, before the profile refresh so that profiles
// see fresh market values.
type ValuationUpdateJob struct {
	updater *valuation.Updater
	log     zerolog.Logger
}

// NewValuationUpdateJob creates the nightly valuation job.
func NewValuationUpdateJob(updater *valuation.Updater, log zerolog.Logger) *ValuationUpdateJob {
	return &ValuationUpdateJob{
		updater: updater,
		log:     log.With().Str("job", "valuation_update").Logger(),
	}
}

// Name returns the job name.
func (j *ValuationUpdateJob) Name() string {
	return "valuation_update"
}

// Run executes one valuation pass.
func (j *ValuationUpdateJob) Run() error {
	result, err := j.updater.Run()
	if err != nil {
		return fmt.Errorf("valuation update failed: %w", err)
	}

	j.log.Info().
		Int("prices_updated", result.PricesUpdated).
		Int("holdings_updated", result.HoldingsUpdated).
		Msg("Nightly valuation update finished")

	return nil
}
