package buffer

import (
	"fmt"
	"strings"
)

const (
	groupKeyPrefix = "notif:"
	dueIndexKey    = "notif:due"
)

// GroupKey identifies one buffer group: all undelivered events one recipient
// should hear about from one actor on one board.
type GroupKey struct {
	BoardID     string
	ActorID     string
	RecipientID string
}

func (k GroupKey) String() string {
	return fmt.Sprintf("%s%s:%s:%s", groupKeyPrefix, k.BoardID, k.ActorID, k.RecipientID)
}

// ParseGroupKey parses the redis key form notif:{board}:{actor}:{recipient}.
func ParseGroupKey(raw string) (GroupKey, error) {
	rest, ok := strings.CutPrefix(raw, groupKeyPrefix)
	if !ok || rest == dueIndexKey[len(groupKeyPrefix):] {
		return GroupKey{}, fmt.Errorf("not a group key: %q", raw)
	}
	parts := strings.Split(rest, ":")
	if len(parts) != 3 {
		return GroupKey{}, fmt.Errorf("malformed group key: %q", raw)
	}
	for _, p := range parts {
		if p == "" {
			return GroupKey{}, fmt.Errorf("malformed group key: %q", raw)
		}
	}
	return GroupKey{BoardID: parts[0], ActorID: parts[1], RecipientID: parts[2]}, nil
}
