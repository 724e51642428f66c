package agenda

import (
	"testing"
	"time"

	"github.com/CrowderSoup/agenda-app/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	rome := time.FixedZone("CEST", 2*60*60)

	tests := []struct {
		name  string
		in    any
		want  time.Time
		state dateState
	}{
		{"nil", nil, time.Time{}, dateAbsent},
		{"empty", "  ", time.Time{}, dateAbsent},
		{"rfc3339", "2024-06-05T12:00:00Z", time.Date(2024, 6, 5, 14, 0, 0, 0, rome), dateOK},
		{"naive", "2024-06-05 08:30:00", time.Date(2024, 6, 5, 8, 30, 0, 0, rome), dateOK},
		{"date only", "2024-06-05", time.Date(2024, 6, 5, 0, 0, 0, 0, rome), dateOK},
		{"bytes", []byte("2024-06-05T08:30"), time.Date(2024, 6, 5, 8, 30, 0, 0, rome), dateOK},
		{"time", time.Date(2024, 6, 5, 6, 0, 0, 0, time.UTC), time.Date(2024, 6, 5, 8, 0, 0, 0, rome), dateOK},
		{"garbage", "not-a-date", time.Time{}, dateMalformed},
		{"wrong type", 42, time.Time{}, dateMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, st := parseDate(tt.in, rome)
			assert.Equal(t, tt.state, st)
			if tt.state == dateOK {
				assert.True(t, tt.want.Equal(got), "got %s want %s", got, tt.want)
			}
		})
	}
}

func TestEndOfDay(t *testing.T) {
	d := time.Date(2024, 6, 5, 8, 0, 0, 0, time.UTC)
	eod := EndOfDay(d, time.UTC)
	assert.Equal(t, time.Date(2024, 6, 5, 23, 59, 59, int(999*time.Millisecond), time.UTC), eod)
	assert.True(t, SameDay(d, eod, time.UTC))
}

func TestNormalize_Appointment(t *testing.T) {
	n := NewNormalizer(time.UTC, nil, nil)
	it := n.Normalize(Appointments, database.Row{
		"id":          int64(7),
		"titolo":      "Dentist",
		"data_inizio": "2024-06-05T14:00:00Z",
		"data_fine":   "2024-06-05T15:00:00Z",
		"priorita":    `{"id":"3","value":"Alta"}`,
		"cliente":     "ACME",
	})
	require.True(t, it.Valid(), it.Invalid())
	assert.Equal(t, "7", it.ID)
	assert.Equal(t, "appuntamento:7", it.Key())
	assert.Equal(t, database.TableAppointments, it.Table)
	assert.Equal(t, ColorAppointment, it.Color)
	assert.Equal(t, &Priority{ID: "3", Value: "Alta"}, it.Priority)
	require.NotNil(t, it.End)
	assert.True(t, it.Interval())
}

func TestNormalize_SplitPriority(t *testing.T) {
	n := NewNormalizer(time.UTC, nil, nil)
	it := n.Normalize(Projects, database.Row{
		"id":             "p1",
		"nome":           "Launch",
		"data_inizio":    "2024-06-01",
		"priorita_id":    "2",
		"priorita_value": "Media",
	})
	require.True(t, it.Valid())
	assert.Equal(t, "Launch", it.Title)
	assert.Equal(t, &Priority{ID: "2", Value: "Media"}, it.Priority)
}

func TestNormalize_DueAnchor(t *testing.T) {
	n := NewNormalizer(time.UTC, map[string]string{"generale": "#000000"}, nil)
	it := n.Normalize(GeneralDeadlines, database.Row{
		"id":         1,
		"titolo":     "Tax filing",
		"data":       "2024-06-05T09:00:00Z",
		"completato": int64(1),
	})
	require.True(t, it.Valid())
	require.NotNil(t, it.Due)
	assert.True(t, it.Start.Equal(*it.Due))
	assert.True(t, it.General)
	assert.True(t, it.Completed)
	assert.Equal(t, "#000000", it.Color)
}

func TestNormalize_Invalid(t *testing.T) {
	n := NewNormalizer(time.UTC, nil, nil)

	tests := []struct {
		name string
		src  Source
		row  database.Row
	}{
		{"malformed start", Appointments, database.Row{"id": 1, "data_inizio": "yesterday-ish"}},
		{"malformed end", Appointments, database.Row{"id": 1, "data_inizio": "2024-06-05", "data_fine": "??"}},
		{"missing start", Appointments, database.Row{"id": 1}},
		{"missing id", Appointments, database.Row{"data_inizio": "2024-06-05"}},
		{"malformed due", Todos, database.Row{"id": 1, "scadenza": "31/02/2024"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := n.Normalize(tt.src, tt.row)
			assert.False(t, it.Valid())
			assert.NotEmpty(t, it.Invalid())
		})
	}

	items := n.NormalizeAll(Appointments, []database.Row{
		{"id": 1, "data_inizio": "bad"},
		{"id": 2, "data_inizio": "2024-06-05"},
	})
	require.Len(t, items, 1)
	assert.Equal(t, "2", items[0].ID)
}

func TestPriorityPatch(t *testing.T) {
	p := &Priority{ID: "4", Value: "Urgente"}

	assert.Equal(t, database.Row{"priorita": map[string]any{"id": "4", "value": "Urgente"}}, Appointments.PriorityPatch(p))
	assert.Equal(t, database.Row{"priorita_id": "4", "priorita_value": "Urgente"}, Activities.PriorityPatch(p))
	assert.Equal(t, database.Row{"priorita_id": nil, "priorita_value": nil}, Projects.PriorityPatch(nil))
	assert.Equal(t, database.Row{"priorita": nil}, Appointments.PriorityPatch(nil))
}
