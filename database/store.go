package database

import (
	"context"
	"errors"
	"strconv"
)

var (
	// ErrTableNotFound marks a benign absence: callers treat it as an empty result.
	ErrTableNotFound = errors.New("table not found")
	// ErrProcedureNotFound is returned when a stored procedure does not exist
	// or the backend has no stored procedures at all.
	ErrProcedureNotFound = errors.New("procedure not found")
	// ErrInvalidIdentifier rejects table or column names that are not plain identifiers.
	ErrInvalidIdentifier = errors.New("invalid identifier")
	// ErrUnfiltered guards against updates and deletes without a WHERE clause.
	ErrUnfiltered = errors.New("refusing to modify rows without a filter")
)

// Row is one record read from or written to a table, keyed by column name.
type Row map[string]any

// Op is a filter operator.
type Op string

const (
	OpEq      Op = "eq"
	OpNeq     Op = "neq"
	OpGt      Op = "gt"
	OpGte     Op = "gte"
	OpLt      Op = "lt"
	OpLte     Op = "lte"
	OpLike    Op = "like"
	OpILike   Op = "ilike"
	OpIsNull  Op = "is_null"
	OpNotNull Op = "not_null"
	OpIn      Op = "in"
)

// Filter restricts a query to rows where Column Op Value holds.
type Filter struct {
	Column string
	Op     Op
	Value  any
}

func Eq(column string, value any) Filter { return Filter{Column: column, Op: OpEq, Value: value} }

func ILike(column string, pattern string) Filter {
	return Filter{Column: column, Op: OpILike, Value: pattern}
}

// Key converts a primary key received as text back to an integer when it is
// one, so it compares equal to INTEGER and bigint columns.
func Key(id string) any {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}

// Order sorts a query by one column.
type Order struct {
	Column string
	Desc   bool
}

// Query describes a filtered, projected, ordered and paginated select.
// An empty Columns list selects every column. Limit <= 0 means no limit.
type Query struct {
	Table   string
	Columns []string
	Filters []Filter
	Order   []Order
	Limit   int
	Offset  int
}

// Column describes one column of a table as reported by the catalog.
type Column struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Nullable   bool   `json:"nullable"`
	Default    any    `json:"default,omitempty"`
	PrimaryKey bool   `json:"primaryKey"`
}

// Store is the table store the rest of the application talks to.
type Store interface {
	Select(ctx context.Context, q Query) ([]Row, error)
	Count(ctx context.Context, table string, filters ...Filter) (int, error)
	Insert(ctx context.Context, table string, values Row) (Row, error)
	Update(ctx context.Context, table string, patch Row, filters ...Filter) (int64, error)
	Upsert(ctx context.Context, table, conflictColumn string, values Row) error
	Delete(ctx context.Context, table string, filters ...Filter) (int64, error)

	// Call invokes a stored procedure with named arguments.
	Call(ctx context.Context, procedure string, args Row) ([]Row, error)

	// Tables and Columns query the backend catalog directly.
	Tables(ctx context.Context) ([]string, error)
	Columns(ctx context.Context, table string) ([]Column, error)

	Close() error
}
