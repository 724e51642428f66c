package agenda

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/CrowderSoup/agenda-app/database"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Normalizer turns table rows into Items.
type Normalizer struct {
	loc    *time.Location
	colors map[string]string
	logger *zap.Logger
}

// NewNormalizer creates a Normalizer. colors overrides default colors and is
// keyed by category, or "generale" for general deadlines.
func NewNormalizer(loc *time.Location, colors map[string]string, logger *zap.Logger) *Normalizer {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{loc: loc, colors: colors, logger: logger}
}

// Normalize maps one row. It never panics; rows with a malformed or missing
// anchor date come back with Valid() == false.
func (n *Normalizer) Normalize(src Source, row database.Row) Item {
	it := Item{
		ID:          stringOf(row["id"]),
		Origin:      src.Category,
		Table:       src.Table,
		Title:       stringOf(row[src.Title]),
		Description: stringOf(row[src.Desc]),
		Status:      stringOf(row[src.Status]),
		Client:      stringOf(row[src.Client]),
		General:     src.General,
		Completed:   src.Completed != "" && boolOf(row[src.Completed]),
	}
	it.OriginID = it.ID
	it.Color = n.color(src, stringOf(row[src.Color]))
	it.Priority = priorityOf(src, row)

	start, startState := n.date(src.Start, row)
	end, endState := n.date(src.End, row)
	due, dueState := n.date(src.Due, row)

	switch {
	case it.ID == "":
		it.invalid = "missing id"
	case startState == dateMalformed:
		it.invalid = fmt.Sprintf("malformed %s %v", src.Start, row[src.Start])
	case endState == dateMalformed:
		it.invalid = fmt.Sprintf("malformed %s %v", src.End, row[src.End])
	case dueState == dateMalformed:
		it.invalid = fmt.Sprintf("malformed %s %v", src.Due, row[src.Due])
	case startState == dateAbsent && dueState == dateAbsent:
		it.invalid = "missing start date"
	}
	if !it.Valid() {
		return it
	}

	if startState == dateOK {
		it.Start = start
	} else {
		// due-style rows are anchored on their due date
		it.Start = due
	}
	if endState == dateOK {
		it.End = &end
	}
	if dueState == dateOK {
		it.Due = &due
	}
	return it
}

// NormalizeAll maps rows and drops invalid ones, logging each at warn level.
func (n *Normalizer) NormalizeAll(src Source, rows []database.Row) []Item {
	items := make([]Item, 0, len(rows))
	for _, row := range rows {
		it := n.Normalize(src, row)
		if !it.Valid() {
			n.logger.Warn("skipping malformed row",
				zap.String("source", src.Name),
				zap.String("id", it.OriginID),
				zap.String("reason", it.Invalid()))
			continue
		}
		items = append(items, it)
	}
	return items
}

func (n *Normalizer) date(column string, row database.Row) (time.Time, dateState) {
	if column == "" {
		return time.Time{}, dateAbsent
	}
	return parseDate(row[column], n.loc)
}

func (n *Normalizer) color(src Source, rowColor string) string {
	if rowColor != "" {
		return rowColor
	}
	key := string(src.Category)
	if src.General {
		key = "generale"
	}
	if c := n.colors[key]; c != "" {
		return c
	}
	return src.DefaultColor
}

func priorityOf(src Source, row database.Row) *Priority {
	var p Priority
	switch src.Priority {
	case PrioritySplit:
		p = Priority{ID: stringOf(row["priorita_id"]), Value: stringOf(row["priorita_value"])}
	case PriorityEmbedded:
		p = embeddedPriority(row["priorita"])
	default:
		return nil
	}
	if p.empty() {
		return nil
	}
	return &p
}

// embeddedPriority accepts a decoded object, JSON text, or a bare scalar
// which is taken as the priority id.
func embeddedPriority(v any) Priority {
	switch t := v.(type) {
	case nil:
		return Priority{}
	case map[string]any:
		return Priority{ID: stringOf(t["id"]), Value: stringOf(t["value"])}
	case []byte:
		return embeddedPriority(string(t))
	case string:
		s := strings.TrimSpace(t)
		if strings.HasPrefix(s, "{") {
			var m map[string]any
			if err := json.Unmarshal([]byte(s), &m); err == nil {
				return embeddedPriority(m)
			}
			return Priority{}
		}
		return Priority{ID: s}
	default:
		return Priority{ID: stringOf(t)}
	}
}

func stringOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case [16]byte:
		// uuid columns decoded by pgx
		return uuid.UUID(t).String()
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func boolOf(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case int64:
		return t != 0
	case int:
		return t != 0
	case float64:
		return t != 0
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return err == nil && b
	case []byte:
		return boolOf(string(t))
	}
	return false
}
