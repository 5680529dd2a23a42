package scheduler

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ReportFunc builds and delivers a usage report.
type ReportFunc func(ctx context.Context) error

// Scheduler runs the report function on a cron schedule evaluated in UTC.
type Scheduler struct {
	cron   *cron.Cron
	spec   string
	report ReportFunc
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func New(spec string, report ReportFunc, log zerolog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		spec:   spec,
		report: report,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start registers the report job and starts the cron loop. Without a report
// function it does nothing.
func (s *Scheduler) Start() error {
	if s.report == nil {
		s.log.Warn().Msg("report function not set, scheduler disabled")
		return nil
	}
	_, err := s.cron.AddFunc(s.spec, func() {
		s.log.Info().Str("schedule", s.spec).Msg("generating scheduled report")
		if err := s.report(s.ctx); err != nil {
			s.log.Error().Err(err).Msg("scheduled report failed")
		}
	})
	if err != nil {
		return errors.Wrapf(err, "invalid report schedule %q", s.spec)
	}
	s.cron.Start()
	s.log.Info().Str("schedule", s.spec).Msg("scheduler started")
	return nil
}

// Stop waits for a running report to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.cancel()
	s.log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	return len(s.cron.Entries()) > 0
}

// Next reports when the report will run next; zero when not scheduled.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
