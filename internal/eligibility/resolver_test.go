package eligibility

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMembers struct {
	members []Member
	err     error
}

func (f *fakeMembers) BoardMembers(ctx context.Context, boardID string) ([]Member, error) {
	return f.members, f.err
}

func ptrTime(t time.Time) *time.Time { return &t }

func TestRecipientsExcludesActor(t *testing.T) {
	r := NewResolver(&fakeMembers{members: []Member{
		{UserID: "actor"},
		{UserID: "u2"},
		{UserID: "u3"},
	}}, 0)

	got, err := r.Recipients(context.Background(), "b1", "actor")
	require.NoError(t, err)
	assert.Equal(t, []string{"u2", "u3"}, got)
}

func TestRecipientsSuppression(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name            string
		suppressMinutes int
		members         []Member
		want            []string
	}{
		{
			name:            "active member suppressed, inactive kept",
			suppressMinutes: 10,
			members: []Member{
				{UserID: "actor"},
				{UserID: "active", LastSeenAt: ptrTime(now.Add(-2 * time.Minute))},
				{UserID: "idle", LastSeenAt: ptrTime(now.Add(-30 * time.Minute))},
			},
			want: []string{"idle"},
		},
		{
			name:            "never seen is always eligible",
			suppressMinutes: 10,
			members: []Member{
				{UserID: "actor"},
				{UserID: "ghost"},
			},
			want: []string{"ghost"},
		},
		{
			name:            "zero window disables suppression",
			suppressMinutes: 0,
			members: []Member{
				{UserID: "actor"},
				{UserID: "active", LastSeenAt: ptrTime(now.Add(-time.Second))},
			},
			want: []string{"active"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(&fakeMembers{members: tt.members}, tt.suppressMinutes)
			r.now = func() time.Time { return now }

			got, err := r.Recipients(context.Background(), "b1", "actor")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecipientsEmptyBoard(t *testing.T) {
	r := NewResolver(&fakeMembers{members: []Member{{UserID: "actor"}}}, 0)

	got, err := r.Recipients(context.Background(), "b1", "actor")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRecipientsSourceError(t *testing.T) {
	wantErr := errors.New("db down")
	r := NewResolver(&fakeMembers{err: wantErr}, 0)

	_, err := r.Recipients(context.Background(), "b1", "actor")
	assert.ErrorIs(t, err, wantErr)
}
