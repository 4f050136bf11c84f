package eligibility

import (
	"context"
	"fmt"
	"time"
)

// Member is one board member as the directory sees them. LastSeenAt is nil
// for users who have never been seen, who are always eligible.
type Member struct {
	UserID     string
	LastSeenAt *time.Time
}

// MemberSource lists every member of a board, actor included.
type MemberSource interface {
	BoardMembers(ctx context.Context, boardID string) ([]Member, error)
}

// Resolver computes who should hear about a board mutation: every member
// except the actor, minus members believed to be looking at the board right
// now when a suppression window is configured.
type Resolver struct {
	members        MemberSource
	suppressWindow time.Duration
	now            func() time.Time
}

func NewResolver(members MemberSource, suppressMinutes int) *Resolver {
	return &Resolver{
		members:        members,
		suppressWindow: time.Duration(suppressMinutes) * time.Minute,
		now:            time.Now,
	}
}

// Recipients returns the eligible recipient ids. An empty result is a valid
// outcome, not an error: callers treat it as a no-op.
func (r *Resolver) Recipients(ctx context.Context, boardID, actorID string) ([]string, error) {
	members, err := r.members.BoardMembers(ctx, boardID)
	if err != nil {
		return nil, fmt.Errorf("resolve recipients for board %s: %w", boardID, err)
	}

	threshold := r.now().Add(-r.suppressWindow)
	recipients := make([]string, 0, len(members))
	for _, m := range members {
		if m.UserID == actorID {
			continue
		}
		if r.suppressWindow > 0 && m.LastSeenAt != nil && m.LastSeenAt.After(threshold) {
			continue
		}
		recipients = append(recipients, m.UserID)
	}
	return recipients, nil
}
