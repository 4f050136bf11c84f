// Package mailer is the delivery side of the notification pipeline: it turns
// a drained group into one email through the delivery gateway and keeps the
// audit record honest about what happened.
package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mondaylite/notifier/internal/digest"
	"github.com/mondaylite/notifier/internal/directory"
	"github.com/mondaylite/notifier/internal/event"
	"github.com/mondaylite/notifier/internal/notification"
)

// Directory resolves recipients and boards to their display data.
type Directory interface {
	Board(ctx context.Context, boardID string) (directory.Board, error)
	User(ctx context.Context, userID string) (directory.User, error)
}

// Records is the audit store for delivery attempts.
type Records interface {
	Create(ctx context.Context, r *notification.Record) error
	MarkSent(ctx context.Context, id string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id string) error
	MarkSuppressed(ctx context.Context, id string, reason notification.SuppressionReason) error
}

type Options struct {
	AppName         string
	Enabled         bool
	DeliveryTimeout time.Duration
}

type Service struct {
	gateway  Gateway
	dir      Directory
	records  Records
	composer *digest.Composer
	opts     Options
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(gateway Gateway, dir Directory, records Records, composer *digest.Composer, opts Options, logger *zap.Logger) *Service {
	return &Service{
		gateway:  gateway,
		dir:      dir,
		records:  records,
		composer: composer,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// DeliverDigest summarizes, composes and sends one group's digest. Delivery
// failures are terminal for the window: they are recorded as FAILED and nil
// is returned so the caller cleans the group up. Only transient store errors
// propagate, leaving the group for the next tick.
func (s *Service) DeliverDigest(ctx context.Context, boardID, actorID, recipientID string, events []event.Event) error {
	if len(events) == 0 {
		return nil
	}

	board, err := s.dir.Board(ctx, boardID)
	if errors.Is(err, directory.ErrNotFound) {
		// Board deleted while the window was open; nothing left to show.
		s.logger.Warn("mailer.board_gone", zap.String("board_id", boardID))
		return nil
	}
	if err != nil {
		return err
	}

	summary := digest.Summarize(events)
	d := s.composer.Compose(summary, board.Name, board.ID)

	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	rec := notification.New(
		notification.KindBoardActivityDigest,
		boardID, actorID, recipientID,
		d.Subject, digest.Preview(summary), payload,
		fmt.Sprintf("digest:%s:%s:%s:%d", boardID, actorID, recipientID, events[0].At.UnixMilli()),
	)
	if err := s.records.Create(ctx, rec); err != nil {
		return err
	}

	recipient, err := s.dir.User(ctx, recipientID)
	if errors.Is(err, directory.ErrNotFound) {
		s.markFailed(ctx, rec.ID)
		s.logger.Warn("mailer.recipient_not_found",
			zap.String("notification_id", rec.ID),
			zap.String("recipient_id", recipientID))
		return nil
	}
	if err != nil {
		return err
	}

	return s.send(ctx, rec, Message{
		To:             recipient.Email,
		Subject:        d.Subject,
		HTML:           d.HTML,
		Text:           d.Text,
		IdempotencyRef: rec.ID,
	})
}

// SendWelcome emails a newly registered user.
func (s *Service) SendWelcome(ctx context.Context, recipientID, dashboardURL string) error {
	recipient, err := s.dir.User(ctx, recipientID)
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("Welcome to %s!", s.opts.AppName)
	htmlBody, textBody := welcomeEmail(s.opts.AppName, recipient.FirstName, dashboardURL)

	rec := notification.New(
		notification.KindWelcome,
		"", "", recipientID,
		subject, "Welcome to our platform!", []byte(`{}`),
		"welcome:"+recipientID,
	)
	if err := s.records.Create(ctx, rec); err != nil {
		return err
	}

	return s.send(ctx, rec, Message{
		To:             recipient.Email,
		Subject:        subject,
		HTML:           htmlBody,
		Text:           textBody,
		IdempotencyRef: rec.ID,
	})
}

// SendBoardInvitation emails an invitation on behalf of the inviter.
func (s *Service) SendBoardInvitation(ctx context.Context, recipientID, boardID, inviterID string) error {
	board, err := s.dir.Board(ctx, boardID)
	if err != nil {
		return err
	}
	inviter, err := s.dir.User(ctx, inviterID)
	if err != nil {
		return err
	}
	recipient, err := s.dir.User(ctx, recipientID)
	if err != nil {
		return err
	}

	inviterName := inviter.FirstName + " " + inviter.LastName
	subject := fmt.Sprintf("%s invited you to join %s", inviterName, board.Name)
	htmlBody, textBody := invitationEmail(board.Name, inviterName, s.composer.BoardURL(board.ID))

	rec := notification.New(
		notification.KindBoardInvitation,
		boardID, inviterID, recipientID,
		subject, fmt.Sprintf("%s invited you to join %s", inviterName, board.Name), []byte(`{}`),
		fmt.Sprintf("invite:%s:%s", boardID, recipientID),
	)
	if err := s.records.Create(ctx, rec); err != nil {
		return err
	}

	return s.send(ctx, rec, Message{
		To:             recipient.Email,
		Subject:        subject,
		HTML:           htmlBody,
		Text:           textBody,
		IdempotencyRef: rec.ID,
	})
}

// send performs the gateway call and settles the record. It never returns a
// gateway error; a failed send is final for this attempt.
func (s *Service) send(ctx context.Context, rec *notification.Record, msg Message) error {
	if !s.opts.Enabled {
		if err := s.records.MarkSuppressed(ctx, rec.ID, notification.ReasonDeliveryDisabled); err != nil {
			s.logger.Error("mailer.record_update_failed", zap.String("notification_id", rec.ID), zap.Error(err))
		}
		s.logger.Info("mailer.delivery_disabled",
			zap.String("notification_id", rec.ID),
			zap.String("to", msg.To))
		return nil
	}

	sendCtx := ctx
	if s.opts.DeliveryTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, s.opts.DeliveryTimeout)
		defer cancel()
	}

	providerID, err := s.gateway.Send(sendCtx, msg)
	if err != nil {
		s.markFailed(ctx, rec.ID)
		s.logger.Error("mailer.send_failed",
			zap.String("notification_id", rec.ID),
			zap.String("to", msg.To),
			zap.Error(err))
		return nil
	}

	if err := s.records.MarkSent(ctx, rec.ID, s.now().UTC()); err != nil {
		s.logger.Error("mailer.record_update_failed", zap.String("notification_id", rec.ID), zap.Error(err))
	}
	s.logger.Info("mailer.sent",
		zap.String("notification_id", rec.ID),
		zap.String("provider_message_id", providerID))
	return nil
}

func (s *Service) markFailed(ctx context.Context, id string) {
	if err := s.records.MarkFailed(ctx, id); err != nil {
		s.logger.Error("mailer.record_update_failed", zap.String("notification_id", id), zap.Error(err))
	}
}
