// Package agenda merges appointments, activities, projects, deadlines and
// to-dos from their own tables into one calendar timeline.
package agenda

import (
	"time"
)

// Category tags the origin of an item.
type Category string

const (
	Appointment Category = "appuntamento"
	Activity    Category = "attivita"
	Project     Category = "progetto"
	Deadline    Category = "scadenza"
	Todo        Category = "todolist"
)

// Categories lists every category in display order.
var Categories = []Category{Appointment, Activity, Project, Deadline, Todo}

// DueDateOnly reports whether the category is matched on calendar dates only,
// ignoring time of day and intervals.
func (c Category) DueDateOnly() bool {
	return c == Deadline || c == Todo
}

// Priority as stored on the row, before label resolution.
type Priority struct {
	ID    string `json:"id,omitempty"`
	Value string `json:"value,omitempty"`
}

func (p *Priority) empty() bool {
	return p == nil || (p.ID == "" && p.Value == "")
}

// Item is one normalized calendar entry. Items are values: code that changes
// an item works on a copy.
type Item struct {
	ID          string     `json:"id"`
	OriginID    string     `json:"idOrigine"`
	Origin      Category   `json:"tabellaOrigine"`
	Table       string     `json:"tabella"`
	Title       string     `json:"titolo"`
	Description string     `json:"descrizione,omitempty"`
	Start       time.Time  `json:"dataInizio"`
	End         *time.Time `json:"dataFine,omitempty"`
	Due         *time.Time `json:"dataScadenza,omitempty"`
	Priority    *Priority  `json:"priorita,omitempty"`
	Status      string     `json:"stato,omitempty"`
	Client      string     `json:"cliente,omitempty"`
	Color       string     `json:"colore"`
	General     bool       `json:"generale"`
	Completed   bool       `json:"completato"`

	PriorityLabel string `json:"prioritaLabel,omitempty"`
	PriorityColor string `json:"prioritaColore,omitempty"`
	StatusLabel   string `json:"statoLabel,omitempty"`
	StatusColor   string `json:"statoColore,omitempty"`

	invalid string
}

// Key is the provenance pair that identifies the backing row. IDs alone
// collide across tables.
func (it Item) Key() string {
	return string(it.Origin) + ":" + it.OriginID
}

// Valid reports whether the item can be placed on the calendar.
func (it Item) Valid() bool {
	return it.invalid == ""
}

// Invalid returns the reason the item was rejected, if any.
func (it Item) Invalid() string {
	return it.invalid
}

// Interval reports whether the item spans a time range.
func (it Item) Interval() bool {
	return it.End != nil && it.End.After(it.Start)
}
