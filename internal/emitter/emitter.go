package emitter

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mondaylite/notifier/internal/buffer"
	"github.com/mondaylite/notifier/internal/event"
)

// RecipientResolver yields the user ids a board mutation should notify.
type RecipientResolver interface {
	Recipients(ctx context.Context, boardID, actorID string) ([]string, error)
}

// Emitter fans board activity out into per-recipient buffer groups. It sits
// on the request path of the mutation, so its only work is one recipient
// query and one batched redis round trip.
type Emitter struct {
	resolver RecipientResolver
	store    *buffer.Store
	window   time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func New(resolver RecipientResolver, store *buffer.Store, windowSeconds int, logger *zap.Logger) *Emitter {
	return &Emitter{
		resolver: resolver,
		store:    store,
		window:   time.Duration(windowSeconds) * time.Second,
		logger:   logger,
		now:      time.Now,
	}
}

// Emit buffers events for every eligible recipient of the board. Events are
// serialized once and shared across recipients. Re-emitting the same events
// buffers duplicate copies; there is no content-based dedup.
func (e *Emitter) Emit(ctx context.Context, boardID, actorID string, events []event.Event) error {
	if len(events) == 0 {
		return nil
	}

	payloads := make([]string, len(events))
	for i, ev := range events {
		p, err := event.Encode(ev)
		if err != nil {
			return fmt.Errorf("emit: %w", err)
		}
		payloads[i] = p
	}

	recipients, err := e.resolver.Recipients(ctx, boardID, actorID)
	if err != nil {
		return fmt.Errorf("emit: %w", err)
	}
	if len(recipients) == 0 {
		e.logger.Info("notif.skip_no_recipients",
			zap.String("board_id", boardID),
			zap.String("actor_id", actorID))
		return nil
	}

	groups := make([]buffer.GroupKey, len(recipients))
	for i, rid := range recipients {
		groups[i] = buffer.GroupKey{BoardID: boardID, ActorID: actorID, RecipientID: rid}
	}

	dueAt := e.now().Add(e.window)
	if err := e.store.Append(ctx, groups, payloads, dueAt); err != nil {
		return fmt.Errorf("emit: %w", err)
	}

	e.logger.Info("notif.emit_ok",
		zap.String("board_id", boardID),
		zap.String("actor_id", actorID),
		zap.Int("recipients", len(recipients)),
		zap.Int("events", len(payloads)),
		zap.Int64("due_ms", dueAt.UnixMilli()))
	return nil
}
