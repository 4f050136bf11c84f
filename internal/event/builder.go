package event

import "time"

// RowInput carries the row state the caller already has in hand when a
// mutation happens. Values are pre-formatted strings (see FieldDelta).
type RowInput struct {
	ID       string
	Name     string
	Status   string
	Priority string
	DueDate  string
}

// NewRowEvent builds a row-scoped event from the post-mutation row state.
// For updates, changed lists the mutated fields in order and oldValues holds
// their pre-mutation renderings; newValues their post-mutation renderings.
func NewRowEvent(t Type, board BoardRef, table TableRef, actor Actor, row RowInput, changed []string, oldValues, newValues map[string]string) Event {
	e := Event{
		Type:  t,
		Board: board,
		Table: table,
		Actor: actor,
		RowID: row.ID,
		Snapshot: &Snapshot{
			Name:     row.Name,
			Status:   row.Status,
			Priority: row.Priority,
			DueDate:  row.DueDate,
		},
		At: time.Now().UTC(),
	}
	if len(changed) > 0 {
		e.Changed = append([]string(nil), changed...)
		e.Delta = buildDelta(changed, oldValues, newValues)
	}
	return e
}

// NewTableEvent builds a table-scoped event. It carries no row id, so the
// summarizer will skip it; it still counts toward the buffered group.
func NewTableEvent(t Type, board BoardRef, table TableRef, actor Actor) Event {
	return Event{
		Type:  t,
		Board: board,
		Table: table,
		Actor: actor,
		At:    time.Now().UTC(),
	}
}

func buildDelta(changed []string, oldValues, newValues map[string]string) map[string]FieldDelta {
	delta := make(map[string]FieldDelta, len(changed))
	for _, field := range changed {
		delta[field] = FieldDelta{
			FromValue: oldValues[field],
			ToValue:   newValues[field],
		}
	}
	return delta
}
