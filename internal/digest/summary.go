package digest

import (
	"sort"

	"github.com/mondaylite/notifier/internal/event"
)

// Action is the digest-level verb derived from event types.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

const untitledRow = "Untitled"

// Change is one field transition as the digest shows it. When several events
// touch the same field, the last one wins wholesale; the digest does not
// chain intermediate values.
type Change struct {
	FromValue string `json:"from_value"`
	ToValue   string `json:"to_value"`
}

// RowSummary accumulates everything a group's events said about one row.
type RowSummary struct {
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	Actions []Action          `json:"actions"`
	Fields  []string          `json:"fields,omitempty"`
	Changes map[string]Change `json:"changes,omitempty"`
}

type TableSummary struct {
	ID   string        `json:"id"`
	Name string        `json:"name"`
	Rows []*RowSummary `json:"rows"`

	rowIndex map[string]*RowSummary
}

type BoardSummary struct {
	ID     string          `json:"id"`
	Tables []*TableSummary `json:"tables"`

	tableIndex map[string]*TableSummary
}

// Summary is the digest source: a board → table → row tree in first-seen
// order, plus the shared actor display name.
type Summary struct {
	ActorName   string          `json:"actor_name"`
	TotalEvents int             `json:"total_events"`
	Boards      []*BoardSummary `json:"boards"`

	boardIndex map[string]*BoardSummary
}

func (s *Summary) board(id string) *BoardSummary {
	if b, ok := s.boardIndex[id]; ok {
		return b
	}
	b := &BoardSummary{ID: id, tableIndex: make(map[string]*TableSummary)}
	s.boardIndex[id] = b
	s.Boards = append(s.Boards, b)
	return b
}

func (b *BoardSummary) table(id string) *TableSummary {
	if t, ok := b.tableIndex[id]; ok {
		return t
	}
	t := &TableSummary{ID: id, rowIndex: make(map[string]*RowSummary)}
	b.tableIndex[id] = t
	b.Tables = append(b.Tables, t)
	return t
}

func (t *TableSummary) row(id string) *RowSummary {
	if r, ok := t.rowIndex[id]; ok {
		return r
	}
	r := &RowSummary{ID: id, Name: untitledRow}
	t.rowIndex[id] = r
	t.Rows = append(t.Rows, r)
	return r
}

func (r *RowSummary) addAction(a Action) {
	for _, existing := range r.Actions {
		if existing == a {
			return
		}
	}
	r.Actions = append(r.Actions, a)
}

func (r *RowSummary) addChanges(ev event.Event) {
	if len(ev.Delta) == 0 {
		return
	}
	if r.Changes == nil {
		r.Changes = make(map[string]Change, len(ev.Delta))
	}
	for _, field := range deltaFields(ev) {
		delta, ok := ev.Delta[field]
		if !ok {
			continue
		}
		if _, seen := r.Changes[field]; !seen {
			r.Fields = append(r.Fields, field)
		}
		r.Changes[field] = Change{FromValue: delta.FromValue, ToValue: delta.ToValue}
	}
}

// deltaFields orders a delta by the event's changed list when it has one,
// falling back to sorted field names for older payloads.
func deltaFields(ev event.Event) []string {
	if len(ev.Changed) > 0 {
		return ev.Changed
	}
	fields := make([]string, 0, len(ev.Delta))
	for f := range ev.Delta {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// Summarize folds an ordered event list into a digest summary. It is a pure
// function; missing optional fields degrade to defaults instead of failing.
// Events without a row id (the table-level types) are skipped: the digest
// body only covers row activity.
func Summarize(events []event.Event) Summary {
	s := Summary{boardIndex: make(map[string]*BoardSummary)}
	if len(events) == 0 {
		return s
	}

	s.ActorName = events[0].Actor.DisplayName()
	s.TotalEvents = len(events)

	for _, ev := range events {
		if !ev.Type.RowScoped() || ev.RowID == "" {
			continue
		}

		table := s.board(ev.Board.ID).table(ev.Table.ID)
		table.Name = ev.Table.Name
		row := table.row(ev.RowID)

		switch ev.Type {
		case event.RowCreated:
			row.addAction(ActionCreated)
		case event.RowUpdated:
			row.addAction(ActionUpdated)
			row.addChanges(ev)
		case event.RowDeleted:
			row.addAction(ActionDeleted)
		}

		if ev.Snapshot != nil && ev.Snapshot.Name != "" {
			row.Name = ev.Snapshot.Name
		}
	}

	return s
}
