package calcsync

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// DefaultSchedule retries pending records every five minutes.
const DefaultSchedule = "@every 5m"

var scheduleParser = cron.NewParser(
	cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// Scheduler runs RetrySync on a cron schedule. A run still in progress when
// the next one is due causes that next run to be skipped.
type Scheduler struct {
	cron   *cron.Cron
	engine *Engine
}

// NewScheduler validates schedule, a five-field cron expression or a
// descriptor such as "@every 5m" or "@hourly".
func NewScheduler(engine *Engine, schedule string) (*Scheduler, error) {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		schedule = DefaultSchedule
	}
	logger := cronLogger{}
	s := &Scheduler{
		engine: engine,
		cron: cron.New(
			cron.WithParser(scheduleParser),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, errors.Wrapf(err, "[calcsync NewScheduler] invalid schedule %q", schedule)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule. The returned context is done once a running sync
// has finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) run() {
	report, err := s.engine.RetrySync(context.Background())
	if err != nil {
		log.Err(err).Int("remaining", report.Remaining).Msg("Scheduled calculation sync failed")
	}
}

// cronLogger routes cron's own logging through zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	log.Debug().Fields(keysAndValues).Msg(msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	log.Err(err).Fields(keysAndValues).Msg(msg)
}
