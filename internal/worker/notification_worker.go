package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/mini-inbox/internal/events"
)

// NotificationWorker drains the dispatcher queue on a fixed pool of goroutines.
type NotificationWorker struct {
	dispatcher *events.QueuedDispatcher
	workers    int
	logger     *zap.Logger
	wg         sync.WaitGroup
	once       sync.Once
}

// NewNotificationWorker builds a worker pool; workers below one are raised to one.
func NewNotificationWorker(dispatcher *events.QueuedDispatcher, workers int, logger *zap.Logger) *NotificationWorker {
	if workers <= 0 {
		workers = 1
	}
	return &NotificationWorker{dispatcher: dispatcher, workers: workers, logger: logger}
}

// Start launches the pool. ctx is passed to every handler, so cancelling it
// aborts in-flight deliveries.
func (w *NotificationWorker) Start(ctx context.Context) {
	w.once.Do(func() {
		for i := 0; i < w.workers; i++ {
			w.wg.Add(1)
			go w.run(ctx, i)
		}
		w.logger.Info("notification worker started", zap.Int("workers", w.workers))
	})
}

func (w *NotificationWorker) run(ctx context.Context, id int) {
	defer w.wg.Done()
	for event := range w.dispatcher.Events() {
		if err := w.dispatcher.Deliver(ctx, event); err != nil {
			w.logger.Warn("event handler failed",
				zap.Int("worker", id),
				zap.String("event_id", event.ID),
				zap.Int64("ticket_id", event.TicketID),
				zap.Error(err))
		}
	}
}

// Stop closes the queue and waits for queued events to drain or ctx to expire.
func (w *NotificationWorker) Stop(ctx context.Context) error {
	w.dispatcher.Close()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("notification worker stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
