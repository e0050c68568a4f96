package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/content-syndication-pipeline/internal/config"
	"github.com/content-syndication-pipeline/internal/service"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job names reported by NextRuns.
const (
	JobPoll  = "poll"
	JobRetry = "retry"
)

// Scheduler runs the periodic poll and retry jobs.
type Scheduler struct {
	cron    *cron.Cron
	poller  service.PollerService
	retry   service.RetryService
	poll    config.PollerConfig
	retries config.RetryConfig
	log     zerolog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	entries map[string]cron.EntryID
}

var _ service.ScheduleInfo = (*Scheduler)(nil)

func NewScheduler(poller service.PollerService, retry service.RetryService, poll config.PollerConfig, retries config.RetryConfig, log zerolog.Logger) *Scheduler {
	log = log.With().Str("component", "scheduler").Logger()
	cl := cronLogger{log: log}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)), cron.WithLogger(cl)),
		poller:  poller,
		retry:   retry,
		poll:    poll,
		retries: retries,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]cron.EntryID),
	}
}

// Start registers the jobs and starts the cron runner.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(s.poll.TickSpec, func() {
		s.log.Debug().Msg("Polling due sources")
		s.poller.PollDue(s.ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule poll %q: %w", s.poll.TickSpec, err)
	}
	s.entries[JobPoll] = id

	if s.retries.Enabled {
		id, err = s.cron.AddFunc(s.retries.TickSpec, func() {
			s.log.Debug().Msg("Retrying failed articles")
			s.retry.RetryDue(s.ctx)
		})
		if err != nil {
			return fmt.Errorf("schedule retry %q: %w", s.retries.TickSpec, err)
		}
		s.entries[JobRetry] = id
	}

	s.cron.Start()
	s.log.Info().
		Str("poll", s.poll.TickSpec).
		Str("retry", s.retries.TickSpec).
		Bool("retry_enabled", s.retries.Enabled).
		Msg("Scheduler started")
	return nil
}

// NextRuns returns the next activation time of each registered job.
func (s *Scheduler) NextRuns() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make(map[string]time.Time, len(s.entries))
	for name, id := range s.entries {
		next[name] = s.cron.Entry(id).Next
	}
	return next
}

// Stop halts scheduling and waits for running jobs and dispatched polls,
// bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.cancel()
		<-done.Done()
	}
	s.cancel()
	s.poller.Stop(ctx)
	s.log.Info().Msg("Scheduler stopped")
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
