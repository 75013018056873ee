// Package scheduler runs the engine's background jobs on cron schedules
// and records their outcomes in the job-run history.
package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job represents a scheduled job.
type Job interface {
	Run() error
	Name() string
}

// Scheduler manages background jobs.
type Scheduler struct {
	cron    *cron.Cron
	history *HistoryRepository // optional, nil disables run recording
	log     zerolog.Logger
}

// New creates a new scheduler. history may be nil.
func New(history *HistoryRepository, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		history: history,
		log:     log.With().Str("component", "scheduler").Logger(),
	}
}

// Start starts the scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a job with a cron schedule (seconds field included),
// e.g. "0 30 2 * * *" for 02:30 daily or "@weekly".
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.runJob(job)
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")

	return nil
}

// RunNow executes a job immediately, outside its schedule.
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("Running job immediately")
	return s.runJobErr(job)
}

func (s *Scheduler) runJob(job Job) {
	_ = s.runJobErr(job)
}

func (s *Scheduler) runJobErr(job Job) error {
	s.log.Debug().Str("job", job.Name()).Msg("Running job")
	started := time.Now()

	err := job.Run()
	finished := time.Now()

	if err != nil {
		s.log.Error().
			Err(err).
			Str("job", job.Name()).
			Msg("Job failed")
	} else {
		s.log.Debug().Str("job", job.Name()).Msg("Job completed")
	}

	if s.history != nil {
		if recordErr := s.history.Record(job.Name(), started, finished, err); recordErr != nil {
			s.log.Warn().Err(recordErr).Str("job", job.Name()).Msg("Failed to record job run")
		}
	}

	return err
}
