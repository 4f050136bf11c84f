package notification

import (
	"time"

	"github.com/google/uuid"
)

// Kind is the semantic category of a notification.
type Kind string

const (
	KindBoardActivityDigest Kind = "board_activity_digest"
	KindWelcome             Kind = "welcome"
	KindBoardInvitation     Kind = "board_invitation"
)

// Channel is the medium a notification goes out on. Only email is delivered
// today; the other values exist so records stay stable when more channels
// arrive.
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelInApp   Channel = "in_app"
	ChannelWebPush Channel = "web_push"
)

// Status tracks the delivery outcome. QUEUED is the only non-terminal state;
// a record is updated exactly once after the gateway call.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
	StatusSuppressed Status = "suppressed"
)

// SuppressionReason explains a SUPPRESSED record.
type SuppressionReason string

const (
	ReasonDeliveryDisabled SuppressionReason = "delivery_disabled"
	ReasonRecipientActive  SuppressionReason = "recipient_active"
	ReasonUnsubscribed     SuppressionReason = "unsubscribed"
)

// Record is the durable audit row for one delivery attempt. It is written by
// the delivery component immediately before the gateway call and updated once
// after it; the buffering side never reads it.
type Record struct {
	ID                string
	BoardID           string
	ActorID           string
	RecipientID       string
	Kind              Kind
	Channel           Channel
	Status            Status
	SuppressionReason SuppressionReason
	Subject           string
	Preview           string
	Payload           []byte
	DedupeKey         string
	SentAt            *time.Time
	CreatedAt         time.Time
}

// New builds a QUEUED record ready for Create.
func New(kind Kind, boardID, actorID, recipientID, subject, preview string, payload []byte, dedupeKey string) *Record {
	return &Record{
		ID:          uuid.NewString(),
		BoardID:     boardID,
		ActorID:     actorID,
		RecipientID: recipientID,
		Kind:        kind,
		Channel:     ChannelEmail,
		Status:      StatusQueued,
		Subject:     subject,
		Preview:     preview,
		Payload:     payload,
		DedupeKey:   dedupeKey,
	}
}
