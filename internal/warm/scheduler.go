package warm

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs a warm pass every 30 minutes.
const DefaultSchedule = "*/30 * * * *"

// Runner is what the scheduler triggers.
type Runner interface {
	Run(ctx context.Context) Report
}

// Scheduler runs a Runner on a cron schedule in the reference timezone.
// A tick that finds the previous run still going is skipped.
type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	logger  *log.Logger
	onStart bool

	running sync.Mutex
	wg      sync.WaitGroup

	mu   sync.Mutex
	last *Report
	ctx  context.Context
}

type SchedulerOptions struct {
	Schedule string
	Location *time.Location
	// OnStart triggers one run as soon as Start is called.
	OnStart bool
	Logger  *log.Logger
}

func NewScheduler(runner Runner, opts SchedulerOptions) (*Scheduler, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	schedule := opts.Schedule
	if schedule == "" {
		schedule = DefaultSchedule
	}

	cl := cronLogger{logger}
	s := &Scheduler{
		cron:    cron.New(cron.WithLocation(loc), cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		runner:  runner,
		logger:  logger,
		onStart: opts.OnStart,
		ctx:     context.Background(),
	}
	if _, err := s.cron.AddFunc(schedule, s.tick); err != nil {
		return nil, fmt.Errorf("invalid warm schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Scheduler) tick() {
	if !s.running.TryLock() {
		s.logger.Warn("previous warm run still in progress, skipping")
		return
	}
	defer s.running.Unlock()

	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx.Err() != nil {
		return
	}

	started := time.Now()
	rep := s.runner.Run(ctx)
	refreshed := 0
	for _, k := range rep.Keys {
		if k.Refreshed {
			refreshed++
		}
	}
	s.logger.Info("warm run finished", "keys", len(rep.Keys), "refreshed", refreshed, "fixtures", rep.FixturesLoaded, "took", time.Since(started).Round(time.Millisecond))

	s.mu.Lock()
	s.last = &rep
	s.mu.Unlock()
}

// Start begins scheduling. Runs use ctx and stop once it is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
	if s.onStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.tick()
		}()
	}
}

// Stop halts scheduling and waits for a running pass to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.wg.Wait()
}

// Next returns the next scheduled run, or zero before Start.
func (s *Scheduler) Next() time.Time {
	for _, e := range s.cron.Entries() {
		return e.Next
	}
	return time.Time{}
}

// Last returns the most recent report, if any.
func (s *Scheduler) Last() (Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Report{}, false
	}
	return *s.last, true
}

// cronLogger adapts a charm logger to cron.Logger.
type cronLogger struct{ l *log.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
