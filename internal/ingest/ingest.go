// Package ingest receives activity envelopes over NATS JetStream and feeds
// them into the emitter. It is the out-of-process mirror of calling the
// emitter directly: other services publish what happened, this side buffers.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/mondaylite/notifier/internal/event"
)

const (
	activityStream   = "NOTIFIER_ACTIVITY"
	activitySubjects = "notifier.activity.>"

	handleTimeout = 10 * time.Second
)

// ErrMalformedEnvelope marks payloads that can never become valid activity.
// The consumer terminates such messages instead of redelivering them.
var ErrMalformedEnvelope = errors.New("malformed activity envelope")

// Envelope is the wire form of one activity batch: a single actor's events
// on a single board, published together.
type Envelope struct {
	BoardID string        `json:"board_id"`
	ActorID string        `json:"actor_id"`
	Events  []event.Event `json:"events"`
}

// ActivitySink accepts a validated batch. The emitter satisfies this.
type ActivitySink interface {
	Emit(ctx context.Context, boardID, actorID string, events []event.Event) error
}

// Handler decodes and validates envelopes before handing them to the sink.
// It is separate from the subscription so the decode path tests without a
// broker.
type Handler struct {
	sink   ActivitySink
	logger *zap.Logger
}

func NewHandler(sink ActivitySink, logger *zap.Logger) *Handler {
	return &Handler{sink: sink, logger: logger}
}

func (h *Handler) Handle(ctx context.Context, data []byte) error {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.BoardID == "" || env.ActorID == "" {
		return fmt.Errorf("%w: missing board_id or actor_id", ErrMalformedEnvelope)
	}
	if len(env.Events) == 0 {
		// Nothing to buffer; ack and move on.
		return nil
	}
	for _, ev := range env.Events {
		if !ev.Type.Valid() {
			return fmt.Errorf("%w: unknown event type %q", ErrMalformedEnvelope, ev.Type)
		}
	}
	return h.sink.Emit(ctx, env.BoardID, env.ActorID, env.Events)
}

// Consumer binds the handler to a JetStream queue subscription.
type Consumer struct {
	conn    *nats.Conn
	js      nats.JetStreamContext
	handler *Handler
	queue   string
	logger  *zap.Logger
	sub     *nats.Subscription
}

// Connect dials NATS, ensures the activity stream exists and returns a
// consumer ready to Start.
func Connect(url, queue string, handler *Handler, logger *zap.Logger) (*Consumer, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	if err := ensureStream(js); err != nil {
		conn.Close()
		return nil, err
	}
	return &Consumer{
		conn:    conn,
		js:      js,
		handler: handler,
		queue:   queue,
		logger:  logger,
	}, nil
}

func ensureStream(js nats.JetStreamContext) error {
	if _, err := js.StreamInfo(activityStream); err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			return fmt.Errorf("stream info: %w", err)
		}
		if _, err := js.AddStream(&nats.StreamConfig{
			Name:      activityStream,
			Subjects:  []string{activitySubjects},
			Retention: nats.LimitsPolicy,
			Storage:   nats.FileStorage,
			Replicas:  1,
		}); err != nil {
			return fmt.Errorf("add stream: %w", err)
		}
	}
	return nil
}

// Start subscribes with manual acks. Malformed envelopes are terminated,
// transient emit failures are nacked for redelivery.
func (c *Consumer) Start(ctx context.Context) error {
	sub, err := c.js.QueueSubscribe(activitySubjects, c.queue, func(msg *nats.Msg) {
		handleCtx, cancel := context.WithTimeout(ctx, handleTimeout)
		defer cancel()

		if err := c.handler.Handle(handleCtx, msg.Data); err != nil {
			if errors.Is(err, ErrMalformedEnvelope) {
				c.logger.Warn("ingest.discard_malformed",
					zap.String("subject", msg.Subject),
					zap.Error(err))
				_ = msg.Term()
				return
			}
			c.logger.Error("ingest.emit_failed",
				zap.String("subject", msg.Subject),
				zap.Error(err))
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	}, nats.ManualAck())
	if err != nil {
		return fmt.Errorf("queue subscribe: %w", err)
	}
	c.sub = sub
	c.logger.Info("ingest.started",
		zap.String("subject", activitySubjects),
		zap.String("queue", c.queue))
	return nil
}

// Close drains the subscription and connection.
func (c *Consumer) Close() {
	if c == nil || c.conn == nil {
		return
	}
	if c.sub != nil {
		_ = c.sub.Drain()
	}
	_ = c.conn.Drain()
	c.conn.Close()
}
