package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/runledger/pkg/eventbus"
	"github.com/dukex/runledger/pkg/events"
	"github.com/dukex/runledger/pkg/models"
	"golang.org/x/sync/semaphore"
)

// ErrDispatcherClosed is returned by Dispatch after Shutdown.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// LocalDispatcher runs executions in-process, at most limit at a time.
// Dispatch never blocks the caller; queued runs wait for a free slot.
type LocalDispatcher struct {
	executor *Executor
	sem      *semaphore.Weighted
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewLocalDispatcher(executor *Executor, limit int64, logger *slog.Logger) *LocalDispatcher {
	if limit < 1 {
		limit = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &LocalDispatcher{
		executor: executor,
		sem:      semaphore.NewWeighted(limit),
		logger:   logger.With("module", "local_dispatcher"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (d *LocalDispatcher) Dispatch(_ context.Context, execution *models.Execution) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDispatcherClosed
	}

	d.wg.Add(1)

	go func(executionID string) {
		defer d.wg.Done()

		if err := d.sem.Acquire(d.ctx, 1); err != nil {
			d.logger.Warn("Execution dropped on shutdown", "execution_id", executionID)

			return
		}
		defer d.sem.Release(1)

		if err := d.executor.Execute(d.ctx, executionID); err != nil {
			d.logger.Error("Execution failed to run", "execution_id", executionID, "error", err)
		}
	}(execution.ID)

	return nil
}

// Shutdown stops accepting work and waits for running executions. When ctx
// expires first, running executions are interrupted and recorded as FAILED.
func (d *LocalDispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	return waitOrCancel(ctx, &d.wg, d.cancel)
}

// QueueDispatcher publishes executions on the event bus for a Worker to run.
type QueueDispatcher struct {
	bus eventbus.EventPublisher
	now func() time.Time
}

func NewQueueDispatcher(bus eventbus.EventPublisher) *QueueDispatcher {
	return &QueueDispatcher{bus: bus, now: time.Now}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, execution *models.Execution) error {
	event := events.ExecutionQueued{
		BaseEvent: events.BaseEvent{
			ID:         execution.ID,
			Type:       events.ExecutionQueuedEvent,
			Timestamp:  d.now().UTC(),
			WorkflowID: execution.WorkflowID,
		},
		ExecutionID: execution.ID,
	}

	return d.bus.Publish(ctx, execution.ID, event)
}

func waitOrCancel(ctx context.Context, wg *sync.WaitGroup, cancel context.CancelFunc) error {
	done := make(chan struct{})

	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		cancel()

		return nil
	case <-ctx.Done():
		cancel()
		<-done

		return ctx.Err()
	}
}
