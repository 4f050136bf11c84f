package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeRowScoped(t *testing.T) {
	tests := []struct {
		name string
		typ  Type
		want bool
	}{
		{name: "row created", typ: RowCreated, want: true},
		{name: "row updated", typ: RowUpdated, want: true},
		{name: "row deleted", typ: RowDeleted, want: true},
		{name: "table created", typ: TableCreated, want: false},
		{name: "table updated", typ: TableUpdated, want: false},
		{name: "table deleted", typ: TableDeleted, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.typ.RowScoped())
		})
	}
}

func TestNewRowEventDelta(t *testing.T) {
	board := BoardRef{ID: "b1", Name: "Roadmap"}
	table := TableRef{ID: "t1", Name: "Sprint 12", BoardID: "b1"}
	actor := Actor{ID: "u1", FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"}

	e := NewRowEvent(RowUpdated, board, table, actor,
		RowInput{ID: "r1", Name: "Task A", Status: "working_on_it"},
		[]string{"status", "priority"},
		map[string]string{"status": "not_started", "priority": "low"},
		map[string]string{"status": "working_on_it", "priority": "high"},
	)

	assert.Equal(t, []string{"status", "priority"}, e.Changed)
	assert.Equal(t, FieldDelta{FromValue: "not_started", ToValue: "working_on_it"}, e.Delta["status"])
	assert.Equal(t, FieldDelta{FromValue: "low", ToValue: "high"}, e.Delta["priority"])
	assert.Equal(t, "Ada Lovelace", e.Actor.DisplayName())
	assert.False(t, e.At.IsZero())
}

func TestNewRowEventWithoutChanges(t *testing.T) {
	e := NewRowEvent(RowCreated, BoardRef{ID: "b1"}, TableRef{ID: "t1"}, Actor{ID: "u1"},
		RowInput{ID: "r1", Name: "Task A"}, nil, nil, nil)

	assert.Empty(t, e.Changed)
	assert.Empty(t, e.Delta)
	require.NotNil(t, e.Snapshot)
	assert.Equal(t, "Task A", e.Snapshot.Name)
}

func TestEncodeDecode(t *testing.T) {
	e := NewRowEvent(RowUpdated,
		BoardRef{ID: "b1", Name: "Roadmap"},
		TableRef{ID: "t1", Name: "Sprint 12", BoardID: "b1"},
		Actor{ID: "u1", FirstName: "Ada", LastName: "Lovelace"},
		RowInput{ID: "r1", Name: "Task A"},
		[]string{"status"},
		map[string]string{"status": "not_started"},
		map[string]string{"status": "done"},
	)

	raw, err := Encode(e)
	require.NoError(t, err)

	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, e.Type, got.Type)
	assert.Equal(t, e.Board, got.Board)
	assert.Equal(t, e.Delta, got.Delta)
	assert.True(t, e.At.Equal(got.At))
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode("{not json")
	assert.Error(t, err)
}
