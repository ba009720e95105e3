package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/runledger/pkg/models"
	"github.com/dukex/runledger/pkg/persistence"
	"github.com/dukex/runledger/pkg/workflow"
	"github.com/robfig/cron/v3"
)

// DefaultInterval is how often the scheduler reloads workflows and fires due schedules.
const DefaultInterval = 15 * time.Second

// Launcher starts an execution for a trigger event.
type Launcher interface {
	Launch(ctx context.Context, event workflow.TriggerEvent) (*models.Execution, error)
}

// Scheduler polls the workflow store for schedule trigger nodes and launches
// SCHEDULE executions when they fall due.
type Scheduler struct {
	workflows persistence.WorkflowRepository
	launcher  Launcher
	logger    *slog.Logger
	interval  time.Duration
	now       func() time.Time

	mu        sync.Mutex
	schedules map[string]*Schedule
	cron      *cron.Cron
}

type Option func(*Scheduler)

// WithInterval sets the polling interval.
func WithInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

func NewScheduler(workflows persistence.WorkflowRepository, launcher Launcher, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		workflows: workflows,
		launcher:  launcher,
		logger:    logger.With("module", "scheduler"),
		interval:  DefaultInterval,
		now:       time.Now,
		schedules: make(map[string]*Schedule),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Sync rebuilds the schedule table from the stored workflows. Schedules whose
// expression did not change keep their due time; invalid nodes are logged and skipped.
func (s *Scheduler) Sync(ctx context.Context) error {
	workflows, err := s.workflows.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load workflows: %w", err)
	}

	now := s.now()
	next := make(map[string]*Schedule)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, wf := range workflows {
		for _, node := range wf.NodesOfType(models.NodeTypeScheduleTrigger) {
			schedule, err := NewSchedule(wf.ID, node, now)
			if err != nil {
				s.logger.WarnContext(ctx, "Skipping schedule trigger", "workflow_id", wf.ID, "node_id", node.ID, "error", err)

				continue
			}

			if existing, ok := s.schedules[schedule.Key()]; ok &&
				existing.CronExpression == schedule.CronExpression &&
				existing.Location.String() == schedule.Location.String() {
				existing.Payload = schedule.Payload
				schedule = existing
			}

			next[schedule.Key()] = schedule
		}
	}

	s.schedules = next

	return nil
}

// Schedules returns a snapshot of the current schedule table.
func (s *Scheduler) Schedules() []Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Schedule, 0, len(s.schedules))
	for _, schedule := range s.schedules {
		out = append(out, *schedule)
	}

	return out
}

// Tick launches every schedule due at now and advances it. It returns the
// number of executions launched.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) int {
	s.mu.Lock()

	var due []*Schedule

	for _, schedule := range s.schedules {
		if schedule.IsDue(now) {
			due = append(due, schedule)
		}
	}

	events := make([]workflow.TriggerEvent, 0, len(due))

	for _, schedule := range due {
		events = append(events, workflow.TriggerEvent{
			WorkflowID:  schedule.WorkflowID,
			TriggerType: models.TriggerTypeSchedule,
			Payload:     schedule.TriggerPayload(schedule.NextDueAt, now),
		})

		schedule.Advance(now)
	}

	s.mu.Unlock()

	launched := 0

	for _, event := range events {
		execution, err := s.launcher.Launch(ctx, event)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to launch scheduled execution", "workflow_id", event.WorkflowID, "error", err)

			continue
		}

		launched++

		s.logger.InfoContext(ctx, "Scheduled execution launched", "workflow_id", event.WorkflowID, "execution_id", execution.ID)
	}

	return launched
}

// Start runs Sync and Tick every interval until Stop is called or ctx ends.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.Sync(ctx); err != nil {
		return err
	}

	cronLogger := cron.PrintfLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug))

	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cronLogger),
		cron.Recover(cronLogger),
	))

	_, err := c.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		if err := s.Sync(ctx); err != nil {
			s.logger.ErrorContext(ctx, "Failed to sync schedules", "error", err)
		}

		s.Tick(ctx, s.now())
	})
	if err != nil {
		return fmt.Errorf("failed to add scheduler job: %w", err)
	}

	s.mu.Lock()
	s.cron = c
	s.mu.Unlock()

	c.Start()

	s.logger.InfoContext(ctx, "Scheduler started", "interval", s.interval)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// Stop halts polling and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}

	<-c.Stop().Done()

	s.logger.Info("Scheduler stopped")
}
