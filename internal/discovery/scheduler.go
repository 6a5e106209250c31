package discovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"affiliatescout/internal/domain"
)

// JobRunner runs one unattended job.
type JobRunner interface {
	Run(ctx context.Context, ownerID string, req StartRequest) (StatusResult, error)
}

// Scheduler wraps robfig/cron and triggers due discovery schedules.
type Scheduler struct {
	cron      *cron.Cron
	runner    JobRunner
	schedules domain.ScheduleRepository
	spec      string
	batch     int
	logger    zerolog.Logger
	now       func() time.Time

	// pass is held for the length of one RunDue.
	pass sync.Mutex
}

// NewScheduler fires RunDue on spec, for example "@every 15m".
func NewScheduler(runner JobRunner, schedules domain.ScheduleRepository, spec string, batch int, logger zerolog.Logger) *Scheduler {
	if batch <= 0 {
		batch = 10
	}
	adapter := cronLogger{logger}
	return &Scheduler{
		cron:      cron.New(cron.WithLogger(adapter), cron.WithChain(cron.SkipIfStillRunning(adapter))),
		runner:    runner,
		schedules: schedules,
		spec:      spec,
		batch:     batch,
		logger:    logger,
		now:       time.Now,
	}
}

// Start registers the tick and runs one pass immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.RunDue(ctx) }); err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}
	s.cron.Start()
	s.logger.Info().Str("spec", s.spec).Msg("scheduler: cron started")

	go s.RunDue(ctx)
	return nil
}

// Stop waits for a running pass to finish, including the initial one.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.pass.Lock()
	s.pass.Unlock()
	s.logger.Info().Msg("scheduler: cron stopped")
}

// RunDue runs every due schedule once, in order. A schedule is advanced even
// when its job fails so one bad schedule cannot block the queue. A call made
// while another pass is running returns 0 without reading schedules.
func (s *Scheduler) RunDue(ctx context.Context) int {
	if !s.pass.TryLock() {
		s.logger.Warn().Msg("scheduler: previous pass still running, skipped")
		return 0
	}
	defer s.pass.Unlock()

	due, err := s.schedules.ListDue(ctx, s.now(), s.batch)
	if err != nil {
		s.logger.Error().Err(err).Msg("scheduler: list due schedules")
		return 0
	}
	if len(due) == 0 {
		s.logger.Debug().Msg("scheduler: nothing due")
		return 0
	}

	ran := 0
	for _, sch := range due {
		if ctx.Err() != nil {
			break
		}
		log := s.logger.With().Str("schedule_id", sch.ID).Str("owner_id", sch.OwnerID).Logger()
		signals := sch.AffiliateSignals
		platforms := make([]string, len(sch.Platforms))
		for i, p := range sch.Platforms {
			platforms[i] = string(p)
		}
		res, err := s.runner.Run(ctx, sch.OwnerID, StartRequest{
			Topics:           sch.Topics,
			Competitors:      sch.Competitors,
			Platforms:        platforms,
			AffiliateSignals: &signals,
		})
		if err != nil {
			log.Error().Err(err).Str("job_id", res.JobID).Msg("scheduler: unattended job failed")
		} else {
			log.Info().Str("job_id", res.JobID).Str("status", string(res.Status)).Int("results", res.ResultsCount).Msg("scheduler: unattended job done")
		}
		ran++

		next := s.now().Add(time.Duration(sch.IntervalHours) * time.Hour)
		if err := s.schedules.Reschedule(ctx, sch.ID, next); err != nil {
			log.Error().Err(err).Msg("scheduler: reschedule")
		}
	}
	return ran
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct{ l zerolog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
