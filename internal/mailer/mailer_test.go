package mailer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mondaylite/notifier/internal/digest"
	"github.com/mondaylite/notifier/internal/directory"
	"github.com/mondaylite/notifier/internal/event"
	"github.com/mondaylite/notifier/internal/notification"
)

type fakeGateway struct {
	sent []Message
	err  error
}

func (g *fakeGateway) Send(_ context.Context, msg Message) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	g.sent = append(g.sent, msg)
	return "provider-msg-1", nil
}

type fakeRecords struct {
	created   []*notification.Record
	status    map[string]notification.Status
	reasons   map[string]notification.SuppressionReason
	byDedupe  map[string]string
	createErr error
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{
		status:   map[string]notification.Status{},
		reasons:  map[string]notification.SuppressionReason{},
		byDedupe: map[string]string{},
	}
}

// Create mirrors the store's dedupe behavior: a second insert for the same
// dedupe key keeps the existing row and hands its id back.
func (r *fakeRecords) Create(_ context.Context, rec *notification.Record) error {
	if r.createErr != nil {
		return r.createErr
	}
	if rec.DedupeKey != "" {
		if id, ok := r.byDedupe[rec.DedupeKey]; ok {
			rec.ID = id
			return nil
		}
		r.byDedupe[rec.DedupeKey] = rec.ID
	}
	r.created = append(r.created, rec)
	r.status[rec.ID] = rec.Status
	return nil
}

func (r *fakeRecords) MarkSent(_ context.Context, id string, _ time.Time) error {
	r.status[id] = notification.StatusSent
	return nil
}

func (r *fakeRecords) MarkFailed(_ context.Context, id string) error {
	r.status[id] = notification.StatusFailed
	return nil
}

func (r *fakeRecords) MarkSuppressed(_ context.Context, id string, reason notification.SuppressionReason) error {
	r.status[id] = notification.StatusSuppressed
	r.reasons[id] = reason
	return nil
}

type fakeDirectory struct {
	boards  map[string]directory.Board
	users   map[string]directory.User
	err     error
	userErr error
}

func (d *fakeDirectory) Board(_ context.Context, id string) (directory.Board, error) {
	if d.err != nil {
		return directory.Board{}, d.err
	}
	b, ok := d.boards[id]
	if !ok {
		return directory.Board{}, directory.ErrNotFound
	}
	return b, nil
}

func (d *fakeDirectory) User(_ context.Context, id string) (directory.User, error) {
	if d.err != nil {
		return directory.User{}, d.err
	}
	if d.userErr != nil {
		return directory.User{}, d.userErr
	}
	u, ok := d.users[id]
	if !ok {
		return directory.User{}, directory.ErrNotFound
	}
	return u, nil
}

func testDirectory() *fakeDirectory {
	return &fakeDirectory{
		boards: map[string]directory.Board{
			"b1": {ID: "b1", Name: "Sprint Board"},
		},
		users: map[string]directory.User{
			"u-actor": {ID: "u-actor", FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"},
			"u-rcpt":  {ID: "u-rcpt", FirstName: "Grace", LastName: "Hopper", Email: "grace@example.com"},
		},
	}
}

func digestEvents(t *testing.T) []event.Event {
	t.Helper()
	return []event.Event{
		{
			Type:      event.RowCreated,
			Board:     event.BoardRef{ID: "b1", Name: "Sprint Board"},
			Table:     event.TableRef{ID: "t1", Name: "Tasks", BoardID: "b1"},
			Actor:     event.Actor{ID: "u-actor", FirstName: "Ada", LastName: "Lovelace"},
			RowID:     "r1",
			Snapshot:  &event.Snapshot{Name: "Ship release"},
			At:        time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
		},
	}
}

func newTestService(gw Gateway, dir Directory, recs Records, enabled bool) *Service {
	svc := NewService(gw, dir, recs, digest.NewComposer("https://mondaylite.app"), Options{
		AppName:         "Mondaylite",
		Enabled:         enabled,
		DeliveryTimeout: time.Second,
	}, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2026, 9, 1, 10, 5, 0, 0, time.UTC) }
	return svc
}

func TestDeliverDigestSends(t *testing.T) {
	gw := &fakeGateway{}
	recs := newFakeRecords()
	svc := newTestService(gw, testDirectory(), recs, true)

	err := svc.DeliverDigest(context.Background(), "b1", "u-actor", "u-rcpt", digestEvents(t))
	require.NoError(t, err)

	require.Len(t, gw.sent, 1)
	msg := gw.sent[0]
	assert.Equal(t, "grace@example.com", msg.To)
	assert.Equal(t, "Activity in Sprint Board", msg.Subject)
	assert.Contains(t, msg.HTML, "Ship release")
	assert.Contains(t, msg.Text, "Ship release")

	require.Len(t, recs.created, 1)
	rec := recs.created[0]
	assert.Equal(t, notification.KindBoardActivityDigest, rec.Kind)
	assert.Equal(t, "digest:b1:u-actor:u-rcpt:1788256800000", rec.DedupeKey)
	assert.Equal(t, rec.ID, msg.IdempotencyRef)
	assert.Equal(t, notification.StatusSent, recs.status[rec.ID])
}

func TestDeliverDigestDisabledSuppresses(t *testing.T) {
	gw := &fakeGateway{}
	recs := newFakeRecords()
	svc := newTestService(gw, testDirectory(), recs, false)

	err := svc.DeliverDigest(context.Background(), "b1", "u-actor", "u-rcpt", digestEvents(t))
	require.NoError(t, err)

	assert.Empty(t, gw.sent)
	require.Len(t, recs.created, 1)
	id := recs.created[0].ID
	assert.Equal(t, notification.StatusSuppressed, recs.status[id])
	assert.Equal(t, notification.ReasonDeliveryDisabled, recs.reasons[id])
}

func TestDeliverDigestRecipientGone(t *testing.T) {
	gw := &fakeGateway{}
	recs := newFakeRecords()
	dir := testDirectory()
	delete(dir.users, "u-rcpt")
	svc := newTestService(gw, dir, recs, true)

	err := svc.DeliverDigest(context.Background(), "b1", "u-actor", "u-rcpt", digestEvents(t))
	require.NoError(t, err)

	assert.Empty(t, gw.sent)
	require.Len(t, recs.created, 1)
	assert.Equal(t, notification.StatusFailed, recs.status[recs.created[0].ID])
}

func TestDeliverDigestGatewayFailureIsFinal(t *testing.T) {
	gw := &fakeGateway{err: errors.New("provider down")}
	recs := newFakeRecords()
	svc := newTestService(gw, testDirectory(), recs, true)

	err := svc.DeliverDigest(context.Background(), "b1", "u-actor", "u-rcpt", digestEvents(t))
	require.NoError(t, err)

	require.Len(t, recs.created, 1)
	assert.Equal(t, notification.StatusFailed, recs.status[recs.created[0].ID])
}

func TestDeliverDigestRetrySettlesOriginalRecord(t *testing.T) {
	gw := &fakeGateway{}
	recs := newFakeRecords()
	dir := testDirectory()
	svc := newTestService(gw, dir, recs, true)
	events := digestEvents(t)

	// First attempt fails transiently after the record is created; the
	// group stays due and the worker retries.
	dir.userErr = errors.New("pg timeout")
	err := svc.DeliverDigest(context.Background(), "b1", "u-actor", "u-rcpt", events)
	require.Error(t, err)
	require.Len(t, recs.created, 1)
	firstID := recs.created[0].ID
	assert.Equal(t, notification.StatusQueued, recs.status[firstID])

	dir.userErr = nil
	require.NoError(t, svc.DeliverDigest(context.Background(), "b1", "u-actor", "u-rcpt", events))

	// The retry settles the original window's row, not a second one.
	require.Len(t, gw.sent, 1)
	require.Len(t, recs.created, 1)
	assert.Equal(t, notification.StatusSent, recs.status[firstID])
	assert.Equal(t, firstID, gw.sent[0].IdempotencyRef)
}

func TestDeliverDigestBoardGone(t *testing.T) {
	gw := &fakeGateway{}
	recs := newFakeRecords()
	svc := newTestService(gw, testDirectory(), recs, true)

	err := svc.DeliverDigest(context.Background(), "b-missing", "u-actor", "u-rcpt", digestEvents(t))
	require.NoError(t, err)
	assert.Empty(t, recs.created)
	assert.Empty(t, gw.sent)
}

func TestDeliverDigestStoreErrorPropagates(t *testing.T) {
	gw := &fakeGateway{}
	recs := newFakeRecords()
	recs.createErr = errors.New("pg down")
	svc := newTestService(gw, testDirectory(), recs, true)

	err := svc.DeliverDigest(context.Background(), "b1", "u-actor", "u-rcpt", digestEvents(t))
	require.Error(t, err)
	assert.Empty(t, gw.sent)
}

func TestDeliverDigestEmptyEventsNoOp(t *testing.T) {
	gw := &fakeGateway{}
	recs := newFakeRecords()
	svc := newTestService(gw, testDirectory(), recs, true)

	require.NoError(t, svc.DeliverDigest(context.Background(), "b1", "u-actor", "u-rcpt", nil))
	assert.Empty(t, recs.created)
	assert.Empty(t, gw.sent)
}

func TestSendWelcome(t *testing.T) {
	gw := &fakeGateway{}
	recs := newFakeRecords()
	svc := newTestService(gw, testDirectory(), recs, true)

	err := svc.SendWelcome(context.Background(), "u-rcpt", "https://mondaylite.app/dashboard")
	require.NoError(t, err)

	require.Len(t, gw.sent, 1)
	msg := gw.sent[0]
	assert.Equal(t, "Welcome to Mondaylite!", msg.Subject)
	assert.Contains(t, msg.HTML, "Grace")
	assert.Contains(t, msg.Text, "https://mondaylite.app/dashboard")

	require.Len(t, recs.created, 1)
	assert.Equal(t, notification.KindWelcome, recs.created[0].Kind)
	assert.Equal(t, "welcome:u-rcpt", recs.created[0].DedupeKey)
}

func TestSendBoardInvitation(t *testing.T) {
	gw := &fakeGateway{}
	recs := newFakeRecords()
	svc := newTestService(gw, testDirectory(), recs, true)

	err := svc.SendBoardInvitation(context.Background(), "u-rcpt", "b1", "u-actor")
	require.NoError(t, err)

	require.Len(t, gw.sent, 1)
	msg := gw.sent[0]
	assert.Equal(t, "Ada Lovelace invited you to join Sprint Board", msg.Subject)
	assert.True(t, strings.Contains(msg.HTML, "/boards/b1"))

	require.Len(t, recs.created, 1)
	rec := recs.created[0]
	assert.Equal(t, notification.KindBoardInvitation, rec.Kind)
	assert.Equal(t, "invite:b1:u-rcpt", rec.DedupeKey)
	assert.Equal(t, notification.StatusSent, recs.status[rec.ID])
}
