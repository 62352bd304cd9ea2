package adapters

import (
	"context"
	"fmt"
	"sync"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"noir-registry/internal/ports"
)

// CronSchedulerAdapter runs registered jobs on cron schedules. A job that
// is still running when its next tick fires is skipped for that tick.
type CronSchedulerAdapter struct {
	cron   *cron.Cron
	logger zerolog.Logger
	mu     sync.Mutex
	jobs   map[cron.EntryID]string
}

func NewCronSchedulerAdapter(logger zerolog.Logger) *CronSchedulerAdapter {
	cronLogger := cron.PrintfLogger(&logger)
	return &CronSchedulerAdapter{
		cron:   cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))),
		logger: logger,
		jobs:   map[cron.EntryID]string{},
	}
}

type scheduledJob struct {
	ctx    context.Context
	name   string
	logger zerolog.Logger
	run    func(context.Context)
}

func (j scheduledJob) Run() {
	j.logger.Info().Str("job", j.name).Msg("scheduled job started")
	j.run(j.logger.WithContext(j.ctx))
	j.logger.Info().Str("job", j.name).Msg("scheduled job finished")
}

func (s *CronSchedulerAdapter) AddJob(ctx context.Context, schedule string, name string, job func(context.Context)) error {
	entry, err := s.cron.AddJob(schedule, scheduledJob{ctx: ctx, name: name, logger: s.logger, run: job})
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("invalid schedule %q for job %s", schedule, name)).
			WithCause(err)
	}
	s.mu.Lock()
	s.jobs[entry] = name
	s.mu.Unlock()
	s.logger.Debug().Str("job", name).Str("schedule", schedule).Msg("job scheduled")
	return nil
}

// Start runs the scheduler in its own goroutine.
func (s *CronSchedulerAdapter) Start() {
	s.cron.Start()
}

// Stop halts scheduling; the returned context is done once running jobs end.
func (s *CronSchedulerAdapter) Stop() context.Context {
	return s.cron.Stop()
}

func (s *CronSchedulerAdapter) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for _, entry := range s.cron.Entries() {
		if name, ok := s.jobs[entry.ID]; ok {
			names = append(names, name)
		}
	}
	return names
}

var _ ports.SchedulerPort = (*CronSchedulerAdapter)(nil)
