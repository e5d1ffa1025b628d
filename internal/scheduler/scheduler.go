package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Scheduler runs periodic maintenance: the daily usage report and the
// transcript retention sweep.
type Scheduler struct {
	cron       *cron.Cron
	ctx        context.Context
	cancel     context.CancelFunc
	reportFunc func(ctx context.Context) error
	sweepFunc  func(ctx context.Context) error
}

func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetReportFunction installs the daily usage report job.
func (s *Scheduler) SetReportFunction(f func(ctx context.Context) error) {
	s.reportFunc = f
}

// SetSweepFunction installs the transcript retention sweep job.
func (s *Scheduler) SetSweepFunction(f func(ctx context.Context) error) {
	s.sweepFunc = f
}

func (s *Scheduler) Start() error {
	if s.reportFunc != nil {
		// Daily at 21:00 UTC
		if _, err := s.cron.AddFunc("0 21 * * *", func() {
			if err := s.reportFunc(s.ctx); err != nil {
				log.Error().Err(err).Msg("daily usage report failed")
			}
		}); err != nil {
			return err
		}
	}
	if s.sweepFunc != nil {
		// Daily at 03:00 UTC, before the traffic peak
		if _, err := s.cron.AddFunc("0 3 * * *", func() {
			if err := s.sweepFunc(s.ctx); err != nil {
				log.Error().Err(err).Msg("transcript retention sweep failed")
			}
		}); err != nil {
			return err
		}
	}

	if len(s.cron.Entries()) == 0 {
		log.Info().Msg("no scheduled jobs configured")
		return nil
	}

	s.cron.Start()
	log.Info().Int("jobs", len(s.cron.Entries())).Msg("scheduler started")
	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
	if s.cancel != nil {
		s.cancel()
	}
	log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	return s.cron != nil && len(s.cron.Entries()) > 0
}
