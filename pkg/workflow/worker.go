package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukex/runledger/pkg/eventbus"
	"github.com/dukex/runledger/pkg/events"
	"golang.org/x/sync/semaphore"
)

// ErrWorkerClosed nacks deliveries that arrive after Shutdown so the transport
// redelivers them.
var ErrWorkerClosed = errors.New("worker closed")

// Worker consumes ExecutionQueued events and runs them with the Executor. At
// most limit executions run at once; while all slots are busy the worker stops
// pulling from the queue.
type Worker struct {
	id       string
	bus      eventbus.EventSubscriber
	executor *Executor
	sem      *semaphore.Weighted
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewWorker(id string, bus eventbus.EventSubscriber, executor *Executor, limit int64, logger *slog.Logger) *Worker {
	if limit < 1 {
		limit = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Worker{
		id:       id,
		bus:      bus,
		executor: executor,
		sem:      semaphore.NewWeighted(limit),
		logger:   logger.With("module", "worker", "worker_id", id),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start registers the queue handler and begins consuming until ctx is done.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.bus.Handle(events.ExecutionQueuedEvent, w.handleExecutionQueued); err != nil {
		return fmt.Errorf("failed to register handler: %w", err)
	}

	if err := w.bus.Subscribe(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to execution queue: %w", err)
	}

	w.logger.InfoContext(ctx, "Worker started")

	return nil
}

// Shutdown stops taking deliveries and waits for running executions,
// interrupting them when ctx expires.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	return waitOrCancel(ctx, &w.wg, w.cancel)
}

func (w *Worker) handleExecutionQueued(ctx context.Context, event any) error {
	queued, ok := event.(*events.ExecutionQueued)
	if !ok {
		return fmt.Errorf("unexpected event %T", event)
	}

	// Blocking here applies back-pressure to the transport; an error nacks the
	// message so it is redelivered.
	if err := w.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		w.sem.Release(1)

		return ErrWorkerClosed
	}

	w.wg.Add(1)

	go func() {
		defer w.wg.Done()
		defer w.sem.Release(1)

		if err := w.executor.Execute(w.ctx, queued.ExecutionID); err != nil {
			w.logger.Error("Execution failed to run", "execution_id", queued.ExecutionID, "error", err)
		}
	}()

	return nil
}
