package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/CrowderSoup/agenda-app/cache"
	"github.com/CrowderSoup/agenda-app/database"
	"github.com/CrowderSoup/agenda-app/retry"
	"go.uber.org/zap"
)

var (
	ErrUnknownTable  = errors.New("table not discovered")
	ErrUnknownColumn = errors.New("unknown column")
	ErrNotFound      = errors.New("row not found")
	ErrNoColumns     = errors.New("could not determine table columns")
)

const (
	DefaultPageSize = 25
	MaxPageSize     = 500
)

// Options configures an Explorer.
type Options struct {
	// Strategies names the discovery chain in order: catalog, procedure, known.
	Strategies  []string
	KnownTables []string
	CacheTTL    time.Duration
	PageSize    int
	MaxPageSize int
	Retry       retry.Policy
	Logger      *zap.Logger
}

// Explorer browses and edits arbitrary tables of a store.
type Explorer struct {
	store    database.Store
	chain    Chain
	tables   *cache.Expiring[[]string]
	columns  *cache.Expiring[[]database.Column]
	pageSize int
	maxPage  int
	policy   retry.Policy
	logger   *zap.Logger
}

// New builds an Explorer. Unknown strategy names are an error.
func New(store database.Store, opts Options) (*Explorer, error) {
	names := opts.Strategies
	if len(names) == 0 {
		names = []string{"catalog", "procedure", "known"}
	}
	chain := make(Chain, 0, len(names))
	for _, n := range names {
		switch n {
		case "catalog":
			chain = append(chain, CatalogStrategy{Store: store})
		case "procedure":
			chain = append(chain, ProcedureStrategy{Store: store})
		case "known":
			chain = append(chain, KnownTablesStrategy{Store: store, Names: opts.KnownTables})
		default:
			return nil, fmt.Errorf("unknown discovery strategy %q", n)
		}
	}

	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	maxPage := opts.MaxPageSize
	if maxPage <= 0 {
		maxPage = MaxPageSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Explorer{
		store:    store,
		chain:    chain,
		tables:   cache.NewExpiring[[]string](ttl),
		columns:  cache.NewExpiring[[]database.Column](ttl),
		pageSize: pageSize,
		maxPage:  maxPage,
		policy:   opts.Retry,
		logger:   logger,
	}, nil
}

// Discover runs the discovery chain, bypassing the cache, and reports every
// attempt.
func (e *Explorer) Discover(ctx context.Context) (Discovery, error) {
	d, err := e.chain.Run(ctx)
	for _, a := range d.Attempts {
		e.logger.Debug("discovery attempt",
			zap.String("strategy", a.Strategy),
			zap.String("outcome", string(a.Outcome)),
			zap.Int("tables", len(a.Tables)),
			zap.String("error", a.Error))
	}
	if err != nil {
		return d, err
	}
	e.tables.Set("tables", d.Tables)
	return d, nil
}

// Tables lists discovered tables, cached for the TTL.
func (e *Explorer) Tables(ctx context.Context) ([]string, error) {
	if t, ok := e.tables.Get("tables"); ok {
		return t, nil
	}
	d, err := e.Discover(ctx)
	if err != nil {
		return nil, err
	}
	e.logger.Info("tables discovered", zap.String("strategy", d.Strategy), zap.Int("count", len(d.Tables)))
	return d.Tables, nil
}

func (e *Explorer) checkTable(ctx context.Context, table string) error {
	tables, err := e.Tables(ctx)
	if err != nil {
		return err
	}
	for _, t := range tables {
		if t == table {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownTable, table)
}

// Columns describes a discovered table: catalog first, then the get_columns
// procedure, then the keys of a sampled row.
func (e *Explorer) Columns(ctx context.Context, table string) ([]database.Column, error) {
	if err := e.checkTable(ctx, table); err != nil {
		return nil, err
	}
	if cols, ok := e.columns.Get(table); ok {
		return cols, nil
	}

	cols, err := e.catalogColumns(ctx, table)
	if err != nil || len(cols) == 0 {
		e.logger.Debug("catalog columns unavailable", zap.String("table", table), zap.Error(err))
		cols, err = e.procedureColumns(ctx, table)
	}
	if err != nil || len(cols) == 0 {
		e.logger.Debug("procedure columns unavailable", zap.String("table", table), zap.Error(err))
		cols, err = e.sampledColumns(ctx, table)
	}
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoColumns, table)
	}
	e.columns.Set(table, cols)
	return cols, nil
}

func (e *Explorer) catalogColumns(ctx context.Context, table string) ([]database.Column, error) {
	var cols []database.Column
	err := e.retry(ctx, func(ctx context.Context) error {
		var err error
		cols, err = e.store.Columns(ctx, table)
		return err
	})
	return cols, err
}

func (e *Explorer) procedureColumns(ctx context.Context, table string) ([]database.Column, error) {
	rows, err := e.store.Call(ctx, procGetColumns, database.Row{"table_name": table})
	if err != nil {
		return nil, err
	}
	cols := make([]database.Column, 0, len(rows))
	for _, r := range rows {
		name := firstString(r, "column_name", "name")
		if name == "" {
			continue
		}
		nullable, _ := r["is_nullable"].(bool)
		cols = append(cols, database.Column{
			Name:       name,
			Type:       firstString(r, "data_type", "type"),
			Nullable:   nullable,
			Default:    r["column_default"],
			PrimaryKey: name == "id",
		})
	}
	return cols, nil
}

func (e *Explorer) sampledColumns(ctx context.Context, table string) ([]database.Column, error) {
	var rows []database.Row
	err := e.retry(ctx, func(ctx context.Context) error {
		var err error
		rows, err = e.store.Select(ctx, database.Query{Table: table, Limit: 1})
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(rows[0]))
	for k := range rows[0] {
		names = append(names, k)
	}
	sort.Strings(names)
	cols := make([]database.Column, len(names))
	for i, n := range names {
		cols[i] = database.Column{Name: n, Type: fmt.Sprintf("%T", rows[0][n]), Nullable: true, PrimaryKey: n == "id"}
	}
	return cols, nil
}

func (e *Explorer) columnSet(ctx context.Context, table string) (map[string]database.Column, error) {
	cols, err := e.Columns(ctx, table)
	if err != nil {
		return nil, err
	}
	set := make(map[string]database.Column, len(cols))
	for _, c := range cols {
		set[c.Name] = c
	}
	return set, nil
}

// PageRequest selects one page of a table. Page is 1-based. Equal keeps rows
// whose column equals the value; Search keeps rows whose column contains the
// term, ignoring case.
type PageRequest struct {
	Page     int
	PageSize int
	Sort     string
	Desc     bool
	Equal    map[string]string
	Search   map[string]string
}

// Page is one page of rows plus the table's total row count.
type Page struct {
	Table    string            `json:"table"`
	Columns  []database.Column `json:"columns"`
	Rows     []database.Row    `json:"rows"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"pageSize"`
	Pages    int               `json:"pages"`
	Sort     string            `json:"sort,omitempty"`
	Desc     bool              `json:"desc"`
}

// Rows reads one page of a discovered table. The sort column must be a known
// column. When the direct read fails the get_table_data procedure is tried.
func (e *Explorer) Rows(ctx context.Context, table string, req PageRequest) (*Page, error) {
	cols, err := e.Columns(ctx, table)
	if err != nil {
		return nil, err
	}

	size := req.PageSize
	if size <= 0 {
		size = e.pageSize
	}
	if size > e.maxPage {
		size = e.maxPage
	}
	page := req.Page
	if page < 1 {
		page = 1
	}
	// keep (page-1)*size inside int
	if last := math.MaxInt / size; page > last {
		page = last
	}

	sortCol := req.Sort
	if sortCol != "" && !hasColumn(cols, sortCol) {
		return nil, fmt.Errorf("%w: cannot sort by %s", ErrUnknownColumn, sortCol)
	}
	if sortCol == "" && hasColumn(cols, "id") {
		sortCol = "id"
	}

	filters, err := rowFilters(cols, req)
	if err != nil {
		return nil, err
	}

	p := &Page{Table: table, Columns: cols, Page: page, PageSize: size, Sort: sortCol, Desc: req.Desc}
	q := database.Query{Table: table, Filters: filters, Limit: size, Offset: (page - 1) * size}
	if sortCol != "" {
		q.Order = []database.Order{{Column: sortCol, Desc: req.Desc}}
	}

	err = e.retry(ctx, func(ctx context.Context) error {
		rows, err := e.store.Select(ctx, q)
		if err != nil {
			return err
		}
		total, err := e.store.Count(ctx, table, filters...)
		if err != nil {
			return err
		}
		p.Rows, p.Total = rows, total
		return nil
	})
	if err != nil && len(filters) > 0 {
		// get_table_data cannot filter
		return nil, fmt.Errorf("failed to read %s: %w", table, err)
	}
	if err != nil {
		e.logger.Warn("direct read failed, trying procedure", zap.String("table", table), zap.Error(err))
		if perr := e.procedureRows(ctx, p); perr != nil {
			return nil, fmt.Errorf("failed to read %s: %w", table, errors.Join(err, perr))
		}
	}
	if p.Rows == nil {
		p.Rows = []database.Row{}
	}
	if size > 0 {
		p.Pages = (p.Total + size - 1) / size
	}
	return p, nil
}

// rowFilters turns the request's column filters into store filters, in column
// order. Every column must exist in cols.
func rowFilters(cols []database.Column, req PageRequest) ([]database.Filter, error) {
	byName := make(map[string]database.Column, len(cols))
	for _, c := range cols {
		byName[c.Name] = c
	}

	var filters []database.Filter
	for _, name := range sortedKeys(req.Equal) {
		c, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: cannot filter by %s", ErrUnknownColumn, name)
		}
		var v any = req.Equal[name]
		if strings.Contains(strings.ToLower(c.Type), "int") {
			v = database.Key(req.Equal[name])
		}
		filters = append(filters, database.Eq(name, v))
	}
	for _, name := range sortedKeys(req.Search) {
		if _, ok := byName[name]; !ok {
			return nil, fmt.Errorf("%w: cannot search %s", ErrUnknownColumn, name)
		}
		filters = append(filters, database.ILike(name, "%"+req.Search[name]+"%"))
	}
	return filters, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (e *Explorer) procedureRows(ctx context.Context, p *Page) error {
	args := database.Row{
		"table_name":  p.Table,
		"page_size":   p.PageSize,
		"page_offset": (p.Page - 1) * p.PageSize,
		"sort_desc":   p.Desc,
	}
	if p.Sort != "" {
		args["sort_column"] = p.Sort
	}
	rows, err := e.store.Call(ctx, procGetTableData, args)
	if err != nil {
		return err
	}
	p.Rows = make([]database.Row, 0, len(rows))
	for _, r := range rows {
		row, err := decodeRowData(r["row_data"])
		if err != nil {
			return err
		}
		p.Rows = append(p.Rows, row)
		if n, ok := toInt(r["total_count"]); ok {
			p.Total = n
		}
	}
	return nil
}

func decodeRowData(v any) (database.Row, error) {
	switch t := v.(type) {
	case map[string]any:
		return database.Row(t), nil
	case string:
		var m map[string]any
		if err := json.Unmarshal([]byte(t), &m); err != nil {
			return nil, fmt.Errorf("failed to decode row_data: %w", err)
		}
		return m, nil
	case []byte:
		return decodeRowData(string(t))
	}
	return nil, fmt.Errorf("unexpected row_data %T", v)
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int32:
		return int(t), true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	}
	return 0, false
}

func hasColumn(cols []database.Column, name string) bool {
	for _, c := range cols {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Get reads one row by primary key id.
func (e *Explorer) Get(ctx context.Context, table, id string) (database.Row, error) {
	if err := e.checkTable(ctx, table); err != nil {
		return nil, err
	}
	var rows []database.Row
	err := e.retry(ctx, func(ctx context.Context) error {
		var err error
		rows, err = e.store.Select(ctx, database.Query{
			Table:   table,
			Filters: []database.Filter{database.Eq("id", database.Key(id))},
			Limit:   1,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s/%s: %w", table, id, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, table, id)
	}
	return rows[0], nil
}

// Create inserts values and returns the stored row.
func (e *Explorer) Create(ctx context.Context, table string, values database.Row) (database.Row, error) {
	if err := e.checkValues(ctx, table, values); err != nil {
		return nil, err
	}
	row, err := e.store.Insert(ctx, table, values)
	if err != nil {
		return nil, fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	e.logger.Info("row created", zap.String("table", table), zap.Any("id", row["id"]))
	return row, nil
}

// Update patches the row with primary key id and returns it.
func (e *Explorer) Update(ctx context.Context, table, id string, patch database.Row) (database.Row, error) {
	patch = maps.Clone(patch)
	delete(patch, "id")
	if err := e.checkValues(ctx, table, patch); err != nil {
		return nil, err
	}
	if len(patch) == 0 {
		return e.Get(ctx, table, id)
	}
	n, err := e.store.Update(ctx, table, patch, database.Eq("id", database.Key(id)))
	if err != nil {
		return nil, fmt.Errorf("failed to update %s/%s: %w", table, id, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, table, id)
	}
	e.logger.Info("row updated", zap.String("table", table), zap.String("id", id))
	return e.Get(ctx, table, id)
}

// Upsert inserts values or replaces the row with the same id.
func (e *Explorer) Upsert(ctx context.Context, table string, values database.Row) error {
	if _, ok := values["id"]; !ok {
		return fmt.Errorf("%w: upsert needs an id", ErrUnknownColumn)
	}
	if err := e.checkValues(ctx, table, values); err != nil {
		return err
	}
	if err := e.store.Upsert(ctx, table, "id", values); err != nil {
		return fmt.Errorf("failed to upsert into %s: %w", table, err)
	}
	return nil
}

// Delete removes the row with primary key id.
func (e *Explorer) Delete(ctx context.Context, table, id string) error {
	if err := e.checkTable(ctx, table); err != nil {
		return err
	}
	n, err := e.store.Delete(ctx, table, database.Eq("id", database.Key(id)))
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", table, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, table, id)
	}
	e.logger.Info("row deleted", zap.String("table", table), zap.String("id", id))
	return nil
}

func (e *Explorer) checkValues(ctx context.Context, table string, values database.Row) error {
	cols, err := e.columnSet(ctx, table)
	if err != nil {
		return err
	}
	for k := range values {
		if _, ok := cols[k]; !ok {
			return fmt.Errorf("%w: %s.%s", ErrUnknownColumn, table, k)
		}
	}
	return nil
}

// Cleanup sweeps expired cache entries.
func (e *Explorer) Cleanup() {
	e.tables.Cleanup()
	e.columns.Cleanup()
}

// Invalidate forgets every cached introspection result.
func (e *Explorer) Invalidate() {
	e.tables.Clear()
	e.columns.Clear()
}

func (e *Explorer) retry(ctx context.Context, op func(ctx context.Context) error) error {
	return retry.Do(ctx, e.policy, func(err error) bool {
		return !database.IsBenign(err) && !errors.Is(err, database.ErrInvalidIdentifier)
	}, op)
}
