package database

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// dialect captures the few places SQLite and Postgres disagree.
type dialect struct {
	name        string
	placeholder func(n int) string
	ilike       string
}

var (
	sqliteDialect = dialect{
		name:        "sqlite",
		placeholder: func(int) string { return "?" },
		// LIKE is already case-insensitive for ASCII in SQLite
		ilike: "LIKE",
	}
	postgresDialect = dialect{
		name:        "postgres",
		placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
		ilike:       "ILIKE",
	}
)

func quoteIdent(name string) (string, error) {
	if !identPattern.MatchString(name) {
		return "", fmt.Errorf("%q: %w", name, ErrInvalidIdentifier)
	}
	return `"` + name + `"`, nil
}

// ValidIdentifier reports whether name can be used as a table or column name.
func ValidIdentifier(name string) bool {
	return identPattern.MatchString(name)
}

type builder struct {
	d    dialect
	sb   strings.Builder
	args []any
}

func newBuilder(d dialect) *builder {
	return &builder{d: d}
}

func (b *builder) arg(v any) string {
	b.args = append(b.args, encodeValue(v))
	return b.d.placeholder(len(b.args))
}

func (b *builder) where(filters []Filter) error {
	for i, f := range filters {
		col, err := quoteIdent(f.Column)
		if err != nil {
			return err
		}
		if i == 0 {
			b.sb.WriteString(" WHERE ")
		} else {
			b.sb.WriteString(" AND ")
		}

		switch f.Op {
		case OpEq, "":
			b.sb.WriteString(col + " = " + b.arg(f.Value))
		case OpNeq:
			b.sb.WriteString(col + " <> " + b.arg(f.Value))
		case OpGt:
			b.sb.WriteString(col + " > " + b.arg(f.Value))
		case OpGte:
			b.sb.WriteString(col + " >= " + b.arg(f.Value))
		case OpLt:
			b.sb.WriteString(col + " < " + b.arg(f.Value))
		case OpLte:
			b.sb.WriteString(col + " <= " + b.arg(f.Value))
		case OpLike:
			b.sb.WriteString(col + " LIKE " + b.arg(f.Value))
		case OpILike:
			b.sb.WriteString(col + " " + b.d.ilike + " " + b.arg(f.Value))
		case OpIsNull:
			b.sb.WriteString(col + " IS NULL")
		case OpNotNull:
			b.sb.WriteString(col + " IS NOT NULL")
		case OpIn:
			values := toSlice(f.Value)
			if len(values) == 0 {
				b.sb.WriteString("1 = 0")
				continue
			}
			phs := make([]string, len(values))
			for j, v := range values {
				phs[j] = b.arg(v)
			}
			b.sb.WriteString(col + " IN (" + strings.Join(phs, ", ") + ")")
		default:
			return fmt.Errorf("unsupported filter operator %q", f.Op)
		}
	}
	return nil
}

func buildSelect(d dialect, q Query) (string, []any, error) {
	table, err := quoteIdent(q.Table)
	if err != nil {
		return "", nil, err
	}
	b := newBuilder(d)

	cols := "*"
	if len(q.Columns) > 0 {
		quoted := make([]string, len(q.Columns))
		for i, c := range q.Columns {
			if quoted[i], err = quoteIdent(c); err != nil {
				return "", nil, err
			}
		}
		cols = strings.Join(quoted, ", ")
	}
	b.sb.WriteString("SELECT " + cols + " FROM " + table)

	if err := b.where(q.Filters); err != nil {
		return "", nil, err
	}

	for i, o := range q.Order {
		col, err := quoteIdent(o.Column)
		if err != nil {
			return "", nil, err
		}
		if i == 0 {
			b.sb.WriteString(" ORDER BY ")
		} else {
			b.sb.WriteString(", ")
		}
		b.sb.WriteString(col)
		if o.Desc {
			b.sb.WriteString(" DESC")
		} else {
			b.sb.WriteString(" ASC")
		}
	}

	if q.Limit > 0 {
		b.sb.WriteString(" LIMIT " + strconv.Itoa(q.Limit))
		if q.Offset > 0 {
			b.sb.WriteString(" OFFSET " + strconv.Itoa(q.Offset))
		}
	}
	return b.sb.String(), b.args, nil
}

func buildCount(d dialect, table string, filters []Filter) (string, []any, error) {
	t, err := quoteIdent(table)
	if err != nil {
		return "", nil, err
	}
	b := newBuilder(d)
	b.sb.WriteString("SELECT COUNT(*) FROM " + t)
	if err := b.where(filters); err != nil {
		return "", nil, err
	}
	return b.sb.String(), b.args, nil
}

// sortedKeys keeps generated SQL deterministic.
func sortedKeys(r Row) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func buildInsert(d dialect, table string, values Row) (string, []any, error) {
	t, err := quoteIdent(table)
	if err != nil {
		return "", nil, err
	}
	if len(values) == 0 {
		return "", nil, fmt.Errorf("insert into %s: no values", table)
	}
	b := newBuilder(d)
	keys := sortedKeys(values)
	cols := make([]string, len(keys))
	phs := make([]string, len(keys))
	for i, k := range keys {
		if cols[i], err = quoteIdent(k); err != nil {
			return "", nil, err
		}
		phs[i] = b.arg(values[k])
	}
	b.sb.WriteString("INSERT INTO " + t + " (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(phs, ", ") + ")")
	return b.sb.String(), b.args, nil
}

func buildUpsert(d dialect, table, conflict string, values Row) (string, []any, error) {
	query, args, err := buildInsert(d, table, values)
	if err != nil {
		return "", nil, err
	}
	target, err := quoteIdent(conflict)
	if err != nil {
		return "", nil, err
	}

	var sets []string
	for _, k := range sortedKeys(values) {
		if k == conflict {
			continue
		}
		col, _ := quoteIdent(k)
		sets = append(sets, col+" = excluded."+col)
	}
	if len(sets) == 0 {
		return query + " ON CONFLICT(" + target + ") DO NOTHING", args, nil
	}
	return query + " ON CONFLICT(" + target + ") DO UPDATE SET " + strings.Join(sets, ", "), args, nil
}

func buildUpdate(d dialect, table string, patch Row, filters []Filter) (string, []any, error) {
	t, err := quoteIdent(table)
	if err != nil {
		return "", nil, err
	}
	if len(filters) == 0 {
		return "", nil, ErrUnfiltered
	}
	if len(patch) == 0 {
		return "", nil, fmt.Errorf("update %s: empty patch", table)
	}
	b := newBuilder(d)
	b.sb.WriteString("UPDATE " + t + " SET ")
	for i, k := range sortedKeys(patch) {
		col, err := quoteIdent(k)
		if err != nil {
			return "", nil, err
		}
		if i > 0 {
			b.sb.WriteString(", ")
		}
		b.sb.WriteString(col + " = " + b.arg(patch[k]))
	}
	if err := b.where(filters); err != nil {
		return "", nil, err
	}
	return b.sb.String(), b.args, nil
}

func buildDelete(d dialect, table string, filters []Filter) (string, []any, error) {
	t, err := quoteIdent(table)
	if err != nil {
		return "", nil, err
	}
	if len(filters) == 0 {
		return "", nil, ErrUnfiltered
	}
	b := newBuilder(d)
	b.sb.WriteString("DELETE FROM " + t)
	if err := b.where(filters); err != nil {
		return "", nil, err
	}
	return b.sb.String(), b.args, nil
}

// encodeValue turns composite values into JSON text so embedded objects
// (such as an embedded priority) can be written to text and jsonb columns alike.
func encodeValue(v any) any {
	switch v.(type) {
	case nil, string, bool, int, int32, int64, float32, float64, []byte, time.Time:
		return v
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Struct, reflect.Array:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
	return v
}

func toSlice(v any) []any {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{v}
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}
