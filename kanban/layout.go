package kanban

import (
	"fmt"
	"strings"
	"time"

	"github.com/CrowderSoup/agenda-app/agenda"
	"github.com/CrowderSoup/agenda-app/database"
)

// Due-date board columns.
const (
	ColumnOverdue   = "scaduti"
	ColumnToday     = "oggi"
	ColumnUpcoming  = "futuri"
	ColumnCompleted = "completati"

	// ColumnNoPriority holds items without a priority on the priority board.
	ColumnNoPriority = "none"
)

// Change is the outcome of a cross-column transition: the item as it will
// look afterwards and the fields to write.
type Change struct {
	Item   agenda.Item
	Fields database.Row
}

// Layout decides the columns of a board, where items go, and which
// cross-column moves are allowed.
type Layout interface {
	Kind() BoardKind
	Sources() []agenda.Source
	Columns() []Column
	Place(it agenda.Item) string
	Transition(it agenda.Item, from, to string) (Change, error)
}

// Build lays items out according to l.
func Build(l Layout, items []agenda.Item) *Board {
	b := &Board{Kind: l.Kind(), Columns: l.Columns()}
	for _, it := range items {
		if col := b.column(l.Place(it)); col != nil {
			col.Items = append(col.Items, it)
		}
	}
	for i := range b.Columns {
		if b.Columns[i].Items == nil {
			b.Columns[i].Items = []agenda.Item{}
		}
		sortItems(b.Columns[i].Items)
	}
	return b
}

// PriorityLayout has one column per configured priority plus one for items
// without a priority. Every column change is allowed.
type PriorityLayout struct {
	labels []database.Label
}

func NewPriorityLayout(settings *database.Settings) *PriorityLayout {
	if settings == nil || len(settings.Priorities) == 0 {
		settings = database.DefaultSettings()
	}
	return &PriorityLayout{labels: settings.Priorities}
}

func (l *PriorityLayout) Kind() BoardKind { return PriorityBoard }

func (l *PriorityLayout) Sources() []agenda.Source {
	return []agenda.Source{agenda.Appointments, agenda.Activities, agenda.Projects}
}

func (l *PriorityLayout) Columns() []Column {
	cols := make([]Column, 0, len(l.labels)+1)
	for _, lbl := range l.labels {
		cols = append(cols, Column{ID: lbl.ID, Title: lbl.Value, Color: lbl.Color})
	}
	return append(cols, Column{ID: ColumnNoPriority, Title: "Senza priorità", Color: "#9ca3af"})
}

func (l *PriorityLayout) label(it agenda.Item) (database.Label, bool) {
	if it.Priority == nil {
		return database.Label{}, false
	}
	for _, lbl := range l.labels {
		if it.Priority.ID != "" && lbl.ID == it.Priority.ID {
			return lbl, true
		}
	}
	for _, lbl := range l.labels {
		if it.Priority.Value != "" && strings.EqualFold(lbl.Value, it.Priority.Value) {
			return lbl, true
		}
	}
	return database.Label{}, false
}

func (l *PriorityLayout) Place(it agenda.Item) string {
	if lbl, ok := l.label(it); ok {
		return lbl.ID
	}
	return ColumnNoPriority
}

func (l *PriorityLayout) Transition(it agenda.Item, _, to string) (Change, error) {
	src, ok := agenda.SourceFor(it.Origin)
	if !ok || src.Priority == agenda.PriorityNone {
		return Change{}, fmt.Errorf("%s items have no priority", it.Origin)
	}

	var p *agenda.Priority
	if to != ColumnNoPriority {
		var lbl *database.Label
		for i := range l.labels {
			if l.labels[i].ID == to {
				lbl = &l.labels[i]
				break
			}
		}
		if lbl == nil {
			return Change{}, fmt.Errorf("unknown priority %q", to)
		}
		p = &agenda.Priority{ID: lbl.ID, Value: lbl.Value}
		it.PriorityLabel, it.PriorityColor = lbl.Value, lbl.Color
	} else {
		it.PriorityLabel, it.PriorityColor = "", ""
	}
	it.Priority = p
	return Change{Item: it, Fields: src.PriorityPatch(p)}, nil
}

// DueDateLayout sorts to-dos by due date relative to now.
type DueDateLayout struct {
	now time.Time
	loc *time.Location
}

func NewDueDateLayout(now time.Time, loc *time.Location) *DueDateLayout {
	if loc == nil {
		loc = time.Local
	}
	return &DueDateLayout{now: now.In(loc), loc: loc}
}

func (l *DueDateLayout) Kind() BoardKind { return DueDateBoard }

func (l *DueDateLayout) Sources() []agenda.Source {
	return []agenda.Source{agenda.Todos}
}

func (l *DueDateLayout) Columns() []Column {
	return []Column{
		{ID: ColumnOverdue, Title: "Scaduti", Color: "#dc2626"},
		{ID: ColumnToday, Title: "Oggi", Color: "#f59e0b"},
		{ID: ColumnUpcoming, Title: "Futuri", Color: "#2563eb"},
		{ID: ColumnCompleted, Title: "Completati", Color: "#16a34a"},
	}
}

// Place puts completed to-dos in completati and undated ones in futuri.
func (l *DueDateLayout) Place(it agenda.Item) string {
	switch {
	case it.Completed:
		return ColumnCompleted
	case it.Due == nil:
		return ColumnUpcoming
	case agenda.SameDay(*it.Due, l.now, l.loc):
		return ColumnToday
	case it.Due.Before(l.now):
		return ColumnOverdue
	}
	return ColumnUpcoming
}

// Transition allows:
//   - any column to oggi: due at the end of today;
//   - scaduti or oggi to futuri: due at the end of tomorrow;
//   - any column to completati: completed, due date untouched.
//
// Moving a completed to-do back to oggi reopens it.
func (l *DueDateLayout) Transition(it agenda.Item, from, to string) (Change, error) {
	fields := database.Row{}
	switch {
	case to == ColumnToday:
		l.setDue(&it, fields, agenda.EndOfDay(l.now, l.loc))
		if it.Completed {
			it.Completed = false
			fields["completato"] = false
		}
	case to == ColumnUpcoming && (from == ColumnOverdue || from == ColumnToday):
		l.setDue(&it, fields, agenda.EndOfDay(agenda.AddDays(agenda.StartOfDay(l.now, l.loc), 1), l.loc))
	case to == ColumnCompleted:
		it.Completed = true
		fields["completato"] = true
	default:
		return Change{}, fmt.Errorf("a to-do cannot be moved from %s to %s", from, to)
	}
	return Change{Item: it, Fields: fields}, nil
}

func (l *DueDateLayout) setDue(it *agenda.Item, fields database.Row, due time.Time) {
	it.Due = &due
	it.Start = due
	fields[agenda.Todos.Due] = due
}
