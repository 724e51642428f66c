package agenda

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/CrowderSoup/agenda-app/database"
	"go.uber.org/zap"
)

// DayCell is one bucket of the grid.
type DayCell struct {
	Date    time.Time `json:"date"`
	InMonth bool      `json:"inMonth"`
	Today   bool      `json:"today"`
	Items   []Item    `json:"items"`
}

// View is a composed calendar.
type View struct {
	Mode      ViewMode  `json:"mode"`
	Reference time.Time `json:"reference"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Days      []DayCell `json:"days"`
}

// ComposeRequest carries everything one composition needs. It is built per
// request; the Composer holds no per-request state.
type ComposeRequest struct {
	Mode     ViewMode
	Date     time.Time
	Filter   Filter
	Settings *database.Settings
	Now      time.Time
}

// Composer buckets items into calendar days.
type Composer struct {
	loc    *time.Location
	logger *zap.Logger
}

func NewComposer(loc *time.Location, logger *zap.Logger) *Composer {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Composer{loc: loc, logger: logger}
}

func (c *Composer) Location() *time.Location {
	return c.loc
}

// Compose builds the grid for req and assigns every valid item to each day
// it belongs to. Buckets are filtered and sorted by start date.
func (c *Composer) Compose(items []Item, req ComposeRequest) View {
	mode := req.Mode
	if mode == "" {
		mode = WeekView
	}
	ref := req.Date
	if ref.IsZero() {
		ref = time.Now()
	}
	ref = StartOfDay(ref, c.loc)

	items = ResolveLabels(items, req.Settings)

	days := Grid(mode, ref, c.loc)
	view := View{
		Mode:      mode,
		Reference: ref,
		Start:     days[0],
		End:       EndOfDay(days[len(days)-1], c.loc),
		Days:      make([]DayCell, len(days)),
	}

	for i, day := range days {
		cell := DayCell{
			Date:    day,
			InMonth: mode != MonthView || day.Month() == ref.Month(),
			Today:   !req.Now.IsZero() && SameDay(day, req.Now, c.loc),
			Items:   []Item{},
		}
		for _, it := range items {
			if !it.Valid() || !c.matches(it, day) {
				continue
			}
			if !req.Filter.Match(it) {
				continue
			}
			cell.Items = append(cell.Items, it)
		}
		sortBucket(cell.Items)
		view.Days[i] = cell
	}

	c.logger.Debug("agenda composed",
		zap.String("mode", string(mode)),
		zap.Time("reference", ref),
		zap.Int("items", len(items)),
		zap.Int("days", len(days)))
	return view
}

// matches guards OnDay so one corrupt item cannot abort the composition.
func (c *Composer) matches(it Item, day time.Time) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("excluding item from bucket",
				zap.String("key", it.Key()),
				zap.Time("day", day),
				zap.String("panic", fmt.Sprint(r)))
			ok = false
		}
	}()
	return OnDay(it, day, c.loc)
}

func sortBucket(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].Start.Equal(items[j].Start) {
			return items[i].Start.Before(items[j].Start)
		}
		return items[i].Key() < items[j].Key()
	})
}

// ResolveLabels returns copies of items with priority and status labels and
// colors looked up in settings. Unknown values keep their raw text; nil
// settings means defaults.
func ResolveLabels(items []Item, settings *database.Settings) []Item {
	if settings == nil {
		settings = database.DefaultSettings()
	}
	out := make([]Item, len(items))
	for i, it := range items {
		if it.Priority != nil {
			if l, ok := findLabel(settings.Priorities, it.Priority.ID, it.Priority.Value); ok {
				it.PriorityLabel, it.PriorityColor = l.Value, l.Color
			} else if it.Priority.Value != "" {
				it.PriorityLabel = it.Priority.Value
			} else {
				it.PriorityLabel = it.Priority.ID
			}
		}
		if it.Status != "" {
			if l, ok := findLabel(settings.Statuses, it.Status, it.Status); ok {
				it.StatusLabel, it.StatusColor = l.Value, l.Color
			} else {
				it.StatusLabel = it.Status
			}
		}
		out[i] = it
	}
	return out
}

func findLabel(labels []database.Label, id, value string) (database.Label, bool) {
	for _, l := range labels {
		if id != "" && l.ID == id {
			return l, true
		}
	}
	for _, l := range labels {
		if value != "" && strings.EqualFold(l.Value, value) {
			return l, true
		}
	}
	return database.Label{}, false
}
