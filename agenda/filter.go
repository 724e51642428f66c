package agenda

import (
	"fmt"
	"strings"
)

// TypeFlags enables categories. General and personal deadlines are separate.
type TypeFlags struct {
	Appointments      bool `json:"appuntamenti"`
	Activities        bool `json:"attivita"`
	Projects          bool `json:"progetti"`
	PersonalDeadlines bool `json:"scadenze"`
	GeneralDeadlines  bool `json:"scadenzeGenerali"`
	Todos             bool `json:"todolist"`
}

func AllTypes() TypeFlags {
	return TypeFlags{true, true, true, true, true, true}
}

// ParseTypes enables only the named types. Names are source names
// ("appuntamenti", "scadenze_generali", ...) or category tags. An empty list
// enables everything. Unknown names are an error.
func ParseTypes(names []string) (TypeFlags, error) {
	var f TypeFlags
	seen := false
	for _, raw := range names {
		for _, name := range strings.Split(raw, ",") {
			name = strings.ToLower(strings.TrimSpace(name))
			if name == "" {
				continue
			}
			seen = true
			switch name {
			case "appuntamenti", string(Appointment):
				f.Appointments = true
			case "attivita", "attività":
				f.Activities = true
			case "progetti", string(Project):
				f.Projects = true
			case "scadenze", string(Deadline):
				f.PersonalDeadlines = true
			case "scadenze_generali", "generale", "generali":
				f.GeneralDeadlines = true
			case string(Todo), "todo":
				f.Todos = true
			default:
				return TypeFlags{}, fmt.Errorf("unknown item type %q", name)
			}
		}
	}
	if !seen {
		return AllTypes(), nil
	}
	return f, nil
}

func (t TypeFlags) enabled(it Item) bool {
	switch it.Origin {
	case Appointment:
		return t.Appointments
	case Activity:
		return t.Activities
	case Project:
		return t.Projects
	case Deadline:
		if it.General {
			return t.GeneralDeadlines
		}
		return t.PersonalDeadlines
	case Todo:
		return t.Todos
	}
	return false
}

// Filter narrows the items shown in each bucket.
type Filter struct {
	Types  TypeFlags `json:"types"`
	Search string    `json:"search,omitempty"`
	Client string    `json:"client,omitempty"`
}

// DefaultFilter shows everything.
func DefaultFilter() Filter {
	return Filter{Types: AllTypes()}
}

// Match applies type flags, a case-insensitive substring search over title
// and description, and an exact client match.
func (f Filter) Match(it Item) bool {
	if !f.Types.enabled(it) {
		return false
	}
	if f.Client != "" && it.Client != f.Client {
		return false
	}
	term := strings.ToLower(strings.TrimSpace(f.Search))
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(it.Title), term) ||
		strings.Contains(strings.ToLower(it.Description), term)
}
