package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mondaylite/notifier/internal/buffer"
	"github.com/mondaylite/notifier/internal/event"
)

type delivered struct {
	boardID     string
	actorID     string
	recipientID string
	events      []event.Event
}

type fakeDeliverer struct {
	calls []delivered
	err   error
}

func (d *fakeDeliverer) DeliverDigest(_ context.Context, boardID, actorID, recipientID string, events []event.Event) error {
	if d.err != nil {
		return d.err
	}
	d.calls = append(d.calls, delivered{boardID, actorID, recipientID, events})
	return nil
}

func newTestWorker(t *testing.T, d Deliverer) (*Worker, *buffer.Store, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	store := buffer.NewStore(client)
	return New(store, d, time.Second, zap.NewNop()), store, client
}

func encoded(t *testing.T, ev event.Event) string {
	t.Helper()
	raw, err := event.Encode(ev)
	require.NoError(t, err)
	return raw
}

func TestTickDrainsDueGroups(t *testing.T) {
	ctx := context.Background()
	d := &fakeDeliverer{}
	w, store, _ := newTestWorker(t, d)

	now := time.Now()
	w.now = func() time.Time { return now.Add(10 * time.Minute) }

	group := buffer.GroupKey{BoardID: "b1", ActorID: "u1", RecipientID: "u2"}
	ev := event.Event{Type: event.RowCreated, RowID: "r1", At: now}
	require.NoError(t, store.Append(ctx, []buffer.GroupKey{group}, []string{encoded(t, ev), encoded(t, ev)}, now.Add(time.Minute)))

	require.NoError(t, w.tick(ctx))

	require.Len(t, d.calls, 1)
	call := d.calls[0]
	assert.Equal(t, "b1", call.boardID)
	assert.Equal(t, "u1", call.actorID)
	assert.Equal(t, "u2", call.recipientID)
	require.Len(t, call.events, 2)
	assert.Equal(t, "r1", call.events[0].RowID)

	// Group fully consumed.
	due, err := store.Due(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, due)
	events, err := store.Events(ctx, group.String())
	require.NoError(t, err)
	assert.Empty(t, events)

	stats := w.Stats()
	assert.Equal(t, int64(1), stats.WindowsProcessed)
	assert.Equal(t, int64(2), stats.EventsDrained)
}

func TestTickLeavesFutureGroups(t *testing.T) {
	ctx := context.Background()
	d := &fakeDeliverer{}
	w, store, _ := newTestWorker(t, d)

	now := time.Now()
	w.now = func() time.Time { return now }

	group := buffer.GroupKey{BoardID: "b1", ActorID: "u1", RecipientID: "u2"}
	ev := event.Event{Type: event.RowCreated, RowID: "r1", At: now}
	require.NoError(t, store.Append(ctx, []buffer.GroupKey{group}, []string{encoded(t, ev)}, now.Add(time.Minute)))

	require.NoError(t, w.tick(ctx))
	assert.Empty(t, d.calls)

	due, err := store.Due(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{group.String()}, due)
}

func TestTickDeliveryErrorKeepsGroup(t *testing.T) {
	ctx := context.Background()
	d := &fakeDeliverer{err: errors.New("pg down")}
	w, store, _ := newTestWorker(t, d)

	now := time.Now()
	w.now = func() time.Time { return now.Add(10 * time.Minute) }

	group := buffer.GroupKey{BoardID: "b1", ActorID: "u1", RecipientID: "u2"}
	ev := event.Event{Type: event.RowCreated, RowID: "r1", At: now}
	require.NoError(t, store.Append(ctx, []buffer.GroupKey{group}, []string{encoded(t, ev)}, now.Add(time.Minute)))

	require.NoError(t, w.tick(ctx))

	// Still due; next tick retries.
	due, err := store.Due(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{group.String()}, due)
	assert.Equal(t, int64(1), w.Stats().WindowsFailed)

	d.err = nil
	require.NoError(t, w.tick(ctx))
	require.Len(t, d.calls, 1)
}

func TestTickMalformedPayloadKeepsGroup(t *testing.T) {
	ctx := context.Background()
	d := &fakeDeliverer{}
	w, store, _ := newTestWorker(t, d)

	now := time.Now()
	w.now = func() time.Time { return now.Add(10 * time.Minute) }

	group := buffer.GroupKey{BoardID: "b1", ActorID: "u1", RecipientID: "u2"}
	require.NoError(t, store.Append(ctx, []buffer.GroupKey{group}, []string{"not json"}, now.Add(time.Minute)))

	require.NoError(t, w.tick(ctx))
	assert.Empty(t, d.calls)

	due, err := store.Due(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{group.String()}, due)
}

func TestTickEmptyGroupRemovedWithoutDelivery(t *testing.T) {
	ctx := context.Background()
	d := &fakeDeliverer{}
	w, store, client := newTestWorker(t, d)

	now := time.Now()
	w.now = func() time.Time { return now.Add(10 * time.Minute) }

	// A due entry whose event list is already gone.
	group := buffer.GroupKey{BoardID: "b1", ActorID: "u1", RecipientID: "u2"}
	require.NoError(t, client.ZAdd(ctx, "notif:due", redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: group.String(),
	}).Err())

	require.NoError(t, w.tick(ctx))
	assert.Empty(t, d.calls)

	due, err := store.Due(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestTickFanOutDeliversEachRecipient(t *testing.T) {
	ctx := context.Background()
	d := &fakeDeliverer{}
	w, store, _ := newTestWorker(t, d)

	now := time.Now()
	w.now = func() time.Time { return now.Add(10 * time.Minute) }

	groups := []buffer.GroupKey{
		{BoardID: "b1", ActorID: "u1", RecipientID: "u2"},
		{BoardID: "b1", ActorID: "u1", RecipientID: "u3"},
	}
	ev := event.Event{Type: event.RowUpdated, RowID: "r1", At: now}
	require.NoError(t, store.Append(ctx, groups, []string{encoded(t, ev)}, now.Add(time.Minute)))

	require.NoError(t, w.tick(ctx))
	require.Len(t, d.calls, 2)

	recipients := []string{d.calls[0].recipientID, d.calls[1].recipientID}
	assert.ElementsMatch(t, []string{"u2", "u3"}, recipients)
}

func TestStartStop(t *testing.T) {
	d := &fakeDeliverer{}
	w, _, _ := newTestWorker(t, d)
	w.interval = 10 * time.Millisecond

	w.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	w.Stop()
}
