// Package kanban lays agenda items out on boards and turns drag-and-drop
// moves into single-row updates.
package kanban

import (
	"fmt"
	"sort"

	"github.com/CrowderSoup/agenda-app/agenda"
)

// BoardKind names a board.
type BoardKind string

const (
	PriorityBoard BoardKind = "priorita"
	DueDateBoard  BoardKind = "scadenze"
)

func ParseBoardKind(s string) (BoardKind, error) {
	switch BoardKind(s) {
	case PriorityBoard, "priority":
		return PriorityBoard, nil
	case DueDateBoard, "due", "todolist":
		return DueDateBoard, nil
	}
	return "", fmt.Errorf("unknown board %q", s)
}

// Column is one lane of a board.
type Column struct {
	ID    string        `json:"id"`
	Title string        `json:"title"`
	Color string        `json:"color,omitempty"`
	Items []agenda.Item `json:"items"`
}

// Board is an ordered set of columns.
type Board struct {
	Kind    BoardKind `json:"kind"`
	Columns []Column  `json:"columns"`
}

// Position addresses a slot on a board.
type Position struct {
	Column string `json:"column"`
	Index  int    `json:"index"`
}

// Clone returns a deep copy. Boards handed to callers are never mutated.
func (b *Board) Clone() *Board {
	out := &Board{Kind: b.Kind, Columns: make([]Column, len(b.Columns))}
	for i, c := range b.Columns {
		c.Items = append([]agenda.Item(nil), c.Items...)
		out.Columns[i] = c
	}
	return out
}

func (b *Board) column(id string) *Column {
	for i := range b.Columns {
		if b.Columns[i].ID == id {
			return &b.Columns[i]
		}
	}
	return nil
}

// Find locates an item by its provenance key.
func (b *Board) Find(key string) (agenda.Item, Position, bool) {
	for _, c := range b.Columns {
		for i, it := range c.Items {
			if it.Key() == key {
				return it, Position{Column: c.ID, Index: i}, true
			}
		}
	}
	return agenda.Item{}, Position{}, false
}

// place removes the item with key from wherever it is and inserts it at to.
// The index is clamped to the column.
func (b *Board) place(it agenda.Item, to Position) {
	key := it.Key()
	for i := range b.Columns {
		items := b.Columns[i].Items
		for j := range items {
			if items[j].Key() == key {
				b.Columns[i].Items = append(items[:j:j], items[j+1:]...)
				break
			}
		}
	}
	col := b.column(to.Column)
	if col == nil {
		return
	}
	idx := to.Index
	if idx < 0 {
		idx = 0
	}
	if idx > len(col.Items) {
		idx = len(col.Items)
	}
	col.Items = append(col.Items[:idx:idx], append([]agenda.Item{it}, col.Items[idx:]...)...)
}

// Apply returns a copy of b with plan applied.
func (b *Board) Apply(p Plan) *Board {
	out := b.Clone()
	if p.State != DroppedValid {
		return out
	}
	out.place(p.Item, p.To)
	return out
}

func sortItems(items []agenda.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].Start.Equal(items[j].Start) {
			return items[i].Start.Before(items[j].Start)
		}
		return items[i].Key() < items[j].Key()
	})
}
