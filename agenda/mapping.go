package agenda

import "github.com/CrowderSoup/agenda-app/database"

// PriorityShape is how a table stores priority.
type PriorityShape int

const (
	PriorityNone PriorityShape = iota
	// PriorityEmbedded stores {"id": ..., "value": ...} in a single "priorita" column.
	PriorityEmbedded
	// PrioritySplit stores "priorita_id" and "priorita_value" columns.
	PrioritySplit
)

// Source maps one table's column names onto the Item shape. Empty column
// names mean the table has no such field.
type Source struct {
	Name      string
	Category  Category
	Table     string
	Title     string
	Desc      string
	Start     string
	End       string
	Due       string
	Priority  PriorityShape
	Status    string
	Client    string
	Color     string
	Completed string
	Private   string

	// General marks rows read on behalf of the organization-wide owner.
	General      bool
	DefaultColor string
}

// Default colors per category; general deadlines get their own.
const (
	ColorAppointment     = "#3b82f6"
	ColorActivity        = "#10b981"
	ColorProject         = "#8b5cf6"
	ColorDeadline        = "#ef4444"
	ColorGeneralDeadline = "#f97316"
	ColorTodo            = "#f59e0b"
)

var (
	Appointments = Source{
		Name: "appuntamenti", Category: Appointment, Table: database.TableAppointments,
		Title: "titolo", Desc: "descrizione", Start: "data_inizio", End: "data_fine",
		Priority: PriorityEmbedded, Status: "stato", Client: "cliente", Color: "colore",
		DefaultColor: ColorAppointment,
	}
	Activities = Source{
		Name: "attivita", Category: Activity, Table: database.TableActivities,
		Title: "titolo", Desc: "descrizione", Start: "data_inizio", End: "data_fine", Due: "scadenza",
		Priority: PrioritySplit, Status: "stato", Client: "cliente",
		DefaultColor: ColorActivity,
	}
	Projects = Source{
		Name: "progetti", Category: Project, Table: database.TableProjects,
		Title: "nome", Desc: "descrizione", Start: "data_inizio", End: "data_fine", Due: "scadenza",
		Priority: PrioritySplit, Status: "stato", Client: "cliente",
		DefaultColor: ColorProject,
	}
	Deadlines = Source{
		Name: "scadenze", Category: Deadline, Table: database.TableDeadlines,
		Title: "titolo", Desc: "descrizione", Due: "data",
		Priority: PriorityEmbedded, Status: "stato", Client: "cliente",
		Completed: "completato", Private: "privato",
		DefaultColor: ColorDeadline,
	}
	GeneralDeadlines = Source{
		Name: "scadenze_generali", Category: Deadline, Table: database.TableDeadlines,
		Title: "titolo", Desc: "descrizione", Due: "data",
		Priority: PriorityEmbedded, Status: "stato", Client: "cliente",
		Completed: "completato", Private: "privato",
		General: true, DefaultColor: ColorGeneralDeadline,
	}
	Todos = Source{
		Name: "todolist", Category: Todo, Table: database.TableTodos,
		Title: "titolo", Desc: "descrizione", Due: "scadenza",
		Priority: PriorityEmbedded, Completed: "completato",
		DefaultColor: ColorTodo,
	}
)

// PersonalSources are read for the viewing user.
var PersonalSources = []Source{Appointments, Activities, Projects, Deadlines, Todos}

// SourceFor returns the personal source of a category.
func SourceFor(c Category) (Source, bool) {
	for _, s := range PersonalSources {
		if s.Category == c {
			return s, true
		}
	}
	return Source{}, false
}

// Columns is the projection read from the table.
func (s Source) Columns() []string {
	cols := []string{"id", "user_id"}
	for _, c := range []string{s.Title, s.Desc, s.Start, s.End, s.Due, s.Status, s.Client, s.Color, s.Completed, s.Private} {
		if c != "" {
			cols = append(cols, c)
		}
	}
	switch s.Priority {
	case PriorityEmbedded:
		cols = append(cols, "priorita")
	case PrioritySplit:
		cols = append(cols, "priorita_id", "priorita_value")
	}
	return cols
}

// PriorityPatch builds the update payload that sets priority p (nil clears it)
// in the shape the table stores it.
func (s Source) PriorityPatch(p *Priority) database.Row {
	switch s.Priority {
	case PriorityEmbedded:
		if p.empty() {
			return database.Row{"priorita": nil}
		}
		return database.Row{"priorita": map[string]any{"id": p.ID, "value": p.Value}}
	case PrioritySplit:
		if p.empty() {
			return database.Row{"priorita_id": nil, "priorita_value": nil}
		}
		return database.Row{"priorita_id": p.ID, "priorita_value": p.Value}
	}
	return nil
}
