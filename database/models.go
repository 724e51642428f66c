package database

// Backing tables of the agenda.
const (
	TableAppointments = "appuntamenti"
	TableActivities   = "attivita"
	TableProjects     = "progetti"
	TableDeadlines    = "scadenze"
	TableTodos        = "todolist"
	TableSettings     = "configurazione"
)

// Label is one entry of a configurable label set (a priority or a status).
type Label struct {
	ID    string `json:"id" yaml:"id"`
	Value string `json:"value" yaml:"value"`
	Color string `json:"colore,omitempty" yaml:"color,omitempty"`
}

// Settings is the per-user configuration record.
type Settings struct {
	Priorities []Label `json:"priorita"`
	Statuses   []Label `json:"stati"`
}

// DefaultSettings is used whenever a user has no configuration record.
func DefaultSettings() *Settings {
	return &Settings{
		Priorities: []Label{
			{ID: "1", Value: "Bassa", Color: "#6b7280"},
			{ID: "2", Value: "Media", Color: "#2563eb"},
			{ID: "3", Value: "Alta", Color: "#ea580c"},
			{ID: "4", Value: "Urgente", Color: "#dc2626"},
		},
		Statuses: []Label{
			{ID: "todo", Value: "Da fare", Color: "#6b7280"},
			{ID: "in_progress", Value: "In corso", Color: "#2563eb"},
			{ID: "done", Value: "Completato", Color: "#16a34a"},
		},
	}
}

type tableDDL struct {
	table string
	ddl   string
}

var schema = []tableDDL{
	{TableAppointments, `CREATE TABLE IF NOT EXISTS appuntamenti (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		titolo TEXT NOT NULL,
		descrizione TEXT,
		data_inizio DATETIME NOT NULL,
		data_fine DATETIME,
		priorita TEXT,
		stato TEXT,
		cliente TEXT,
		colore TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`},
	{TableActivities, `CREATE TABLE IF NOT EXISTS attivita (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		titolo TEXT NOT NULL,
		descrizione TEXT,
		data_inizio DATETIME,
		data_fine DATETIME,
		scadenza DATETIME,
		priorita_id TEXT,
		priorita_value TEXT,
		stato TEXT,
		cliente TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`},
	{TableProjects, `CREATE TABLE IF NOT EXISTS progetti (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		nome TEXT NOT NULL,
		descrizione TEXT,
		data_inizio DATETIME,
		data_fine DATETIME,
		scadenza DATETIME,
		priorita_id TEXT,
		priorita_value TEXT,
		stato TEXT,
		cliente TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`},
	{TableDeadlines, `CREATE TABLE IF NOT EXISTS scadenze (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		titolo TEXT NOT NULL,
		descrizione TEXT,
		data DATETIME NOT NULL,
		priorita TEXT,
		stato TEXT,
		cliente TEXT,
		privato BOOLEAN NOT NULL DEFAULT 0,
		completato BOOLEAN NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`},
	{TableTodos, `CREATE TABLE IF NOT EXISTS todolist (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		titolo TEXT NOT NULL,
		descrizione TEXT,
		scadenza DATETIME,
		priorita TEXT,
		completato BOOLEAN NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`},
	{TableSettings, `CREATE TABLE IF NOT EXISTS configurazione (
		user_id TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`},
}
