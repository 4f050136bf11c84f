// Package worker drains due notification windows from the buffer and hands
// each one to the deliverer. Draining is deliberately lossy towards delivery
// problems and conservative towards store problems: a window whose delivery
// fails is consumed anyway, a window the store could not serve stays due.
package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mondaylite/notifier/internal/buffer"
	"github.com/mondaylite/notifier/internal/event"
)

// Deliverer composes and sends the digest for one drained group.
type Deliverer interface {
	DeliverDigest(ctx context.Context, boardID, actorID, recipientID string, events []event.Event) error
}

type Stats struct {
	WindowsProcessed int64 `json:"windows_processed"`
	WindowsFailed    int64 `json:"windows_failed"`
	EventsDrained    int64 `json:"events_drained"`
}

type Worker struct {
	store    *buffer.Store
	deliver  Deliverer
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup

	processed atomic.Int64
	failed    atomic.Int64
	drained   atomic.Int64
}

func New(store *buffer.Store, deliver Deliverer, interval time.Duration, logger *zap.Logger) *Worker {
	return &Worker{
		store:    store,
		deliver:  deliver,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Start launches the polling loop. It returns immediately; Stop tears the
// loop down and waits for an in-flight tick to finish.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.logger.Info("worker.started", zap.Duration("poll_interval", w.interval))
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				w.logger.Info("worker.stopped")
				return
			case <-ticker.C:
				if err := w.tick(ctx); err != nil {
					w.logger.Error("worker.loop_error", zap.Error(err))
				}
			}
		}
	}()
}

func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *Worker) Stats() Stats {
	return Stats{
		WindowsProcessed: w.processed.Load(),
		WindowsFailed:    w.failed.Load(),
		EventsDrained:    w.drained.Load(),
	}
}

// tick drains every group whose window has elapsed. A failing group is
// logged and skipped; the rest of the batch still runs.
func (w *Worker) tick(ctx context.Context) error {
	due, err := w.store.Due(ctx, w.now())
	if err != nil {
		return fmt.Errorf("fetch due groups: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	w.logger.Info("worker.processing_windows", zap.Int("count", len(due)))
	for _, raw := range due {
		if err := w.processGroup(ctx, raw); err != nil {
			w.failed.Add(1)
			w.logger.Error("worker.process_group_error",
				zap.String("group_key", raw),
				zap.Error(err))
			continue
		}
		w.processed.Add(1)
	}
	return nil
}

// processGroup reads, decodes and delivers one group, then removes it. The
// removal runs even when delivery reported a failure internally; only errors
// returned here keep the group in the due index.
func (w *Worker) processGroup(ctx context.Context, raw string) error {
	group, err := buffer.ParseGroupKey(raw)
	if err != nil {
		// Unparseable keys can never deliver; drop them.
		w.logger.Warn("worker.bad_group_key", zap.String("group_key", raw))
		return w.store.Remove(ctx, raw)
	}

	payloads, err := w.store.Events(ctx, raw)
	if err != nil {
		return fmt.Errorf("read events: %w", err)
	}

	if len(payloads) == 0 {
		w.logger.Warn("worker.no_events", zap.String("group_key", raw))
		return w.store.Remove(ctx, raw)
	}

	events := make([]event.Event, 0, len(payloads))
	for _, p := range payloads {
		ev, err := event.Decode(p)
		if err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		events = append(events, ev)
	}

	if err := w.deliver.DeliverDigest(ctx, group.BoardID, group.ActorID, group.RecipientID, events); err != nil {
		return fmt.Errorf("deliver digest: %w", err)
	}

	if err := w.store.Remove(ctx, raw); err != nil {
		return fmt.Errorf("remove group: %w", err)
	}
	w.drained.Add(int64(len(events)))
	return nil
}
