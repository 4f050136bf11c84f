package event

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Type identifies the domain mutation an Event describes.
type Type string

const (
	RowCreated   Type = "RowCreated"
	RowUpdated   Type = "RowUpdated"
	RowDeleted   Type = "RowDeleted"
	TableCreated Type = "TableCreated"
	TableUpdated Type = "TableUpdated"
	TableDeleted Type = "TableDeleted"
)

func (t Type) Valid() bool {
	switch t {
	case RowCreated, RowUpdated, RowDeleted, TableCreated, TableUpdated, TableDeleted:
		return true
	}
	return false
}

// RowScoped reports whether the event refers to a single row. Table-level
// events are buffered like any other but the digest summarizer skips them.
func (t Type) RowScoped() bool {
	switch t {
	case RowCreated, RowUpdated, RowDeleted:
		return true
	}
	return false
}

// BoardRef is a point-in-time reference to the board an event happened on.
type BoardRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TableRef is a point-in-time reference to the table an event happened on.
type TableRef struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	BoardID string `json:"board_id"`
}

// Actor is a snapshot of the acting user taken at emit time, not a live
// reference. Display data must survive the user later changing their name.
type Actor struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

func (a Actor) DisplayName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// Snapshot captures the row fields that matter for digest rendering at the
// time of the event.
type Snapshot struct {
	Name     string `json:"name,omitempty"`
	Status   string `json:"status,omitempty"`
	Priority string `json:"priority,omitempty"`
	DueDate  string `json:"due_date,omitempty"`
}

// FieldDelta holds a single field transition with both sides pre-rendered as
// strings, so summarization and rendering never touch the domain types.
type FieldDelta struct {
	FromValue string `json:"from_value"`
	ToValue   string `json:"to_value"`
}

// Event is an immutable record of one domain mutation. It is serialized once
// at emit time and never mutated afterwards.
type Event struct {
	Type     Type                  `json:"type"`
	Board    BoardRef              `json:"board"`
	Table    TableRef              `json:"table"`
	Actor    Actor                 `json:"actor"`
	RowID    string                `json:"row_id,omitempty"`
	Snapshot *Snapshot             `json:"snapshot,omitempty"`
	Changed  []string              `json:"changed,omitempty"`
	Delta    map[string]FieldDelta `json:"delta,omitempty"`
	At       time.Time             `json:"at"`
}

// Encode serializes an event to its transport form.
func Encode(e Event) (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encode event: %w", err)
	}
	return string(b), nil
}

// Decode parses the transport form back into an Event. Unknown fields are
// ignored so older payloads still drain cleanly.
func Decode(raw string) (Event, error) {
	var e Event
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return e, nil
}
