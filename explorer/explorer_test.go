package explorer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"github.com/CrowderSoup/agenda-app/database"
	"github.com/CrowderSoup/agenda-app/retry"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStrategy struct {
	name   string
	tables []string
	err    error
	calls  int
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Discover(context.Context) ([]string, error) {
	f.calls++
	return f.tables, f.err
}

func TestChain_FirstFoundWins(t *testing.T) {
	a := &fakeStrategy{name: "a", err: errors.New("no catalog access")}
	b := &fakeStrategy{name: "b"}
	c := &fakeStrategy{name: "c", tables: []string{"todolist", "appuntamenti", "todolist", " "}}
	d := &fakeStrategy{name: "d", tables: []string{"other"}}

	got, err := Chain{a, b, c, d}.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "c", got.Strategy)
	assert.Equal(t, []string{"appuntamenti", "todolist"}, got.Tables)
	assert.Equal(t, 0, d.calls)

	outcomes := make([]Outcome, len(got.Attempts))
	for i, a := range got.Attempts {
		outcomes[i] = a.Outcome
	}
	if diff := cmp.Diff([]Outcome{Failed, Empty, Found}, outcomes); diff != "" {
		t.Errorf("attempts mismatch (-want +got):\n%s", diff)
	}
}

func TestChain_AllFailed(t *testing.T) {
	errA := errors.New("permission denied")
	_, err := Chain{
		&fakeStrategy{name: "catalog", err: errA},
		&fakeStrategy{name: "procedure", err: database.ErrProcedureNotFound},
	}.Run(context.Background())

	var de *DiscoveryError
	require.True(t, errors.As(err, &de))
	assert.Contains(t, de.Instructions, "CREATE OR REPLACE FUNCTION get_tables()")
	assert.Len(t, de.Attempts, 2)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, database.ErrProcedureNotFound)
}

func TestChain_EmptyIsNotAFailure(t *testing.T) {
	got, err := Chain{
		&fakeStrategy{name: "catalog"},
		&fakeStrategy{name: "procedure", err: database.ErrProcedureNotFound},
	}.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got.Tables)
}

func newStore(t *testing.T) *database.SQLStore {
	t.Helper()
	s, err := database.OpenSQLite("sqlite", filepath.Join(t.TempDir(), "explorer.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func newExplorer(t *testing.T, store database.Store, opts Options) *Explorer {
	t.Helper()
	opts.Retry = retry.Policy{Retries: 0}
	e, err := New(store, opts)
	require.NoError(t, err)
	return e
}

func TestStrategies_SQLite(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	tables, err := CatalogStrategy{Store: store}.Discover(ctx)
	require.NoError(t, err)
	assert.Contains(t, tables, database.TableTodos)
	assert.NotContains(t, tables, "sqlite_sequence")

	_, err = ProcedureStrategy{Store: store}.Discover(ctx)
	assert.ErrorIs(t, err, database.ErrProcedureNotFound)

	tables, err = KnownTablesStrategy{Store: store, Names: []string{"todolist", "missing", "bad name;", "scadenze"}}.Discover(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"todolist", "scadenze"}, tables)
}

func TestNew_UnknownStrategy(t *testing.T) {
	_, err := New(newStore(t), Options{Strategies: []string{"catalog", "buckets"}})
	assert.Error(t, err)
}

func TestExplorer_ColumnsAndUnknownTable(t *testing.T) {
	ctx := context.Background()
	e := newExplorer(t, newStore(t), Options{})

	cols, err := e.Columns(ctx, database.TableTodos)
	require.NoError(t, err)
	require.NotEmpty(t, cols)
	assert.Equal(t, "id", cols[0].Name)
	assert.True(t, cols[0].PrimaryKey)

	_, err = e.Columns(ctx, "secrets")
	assert.ErrorIs(t, err, ErrUnknownTable)
	_, err = e.Rows(ctx, "secrets", PageRequest{})
	assert.ErrorIs(t, err, ErrUnknownTable)
}

func TestExplorer_Rows(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	for i := 1; i <= 30; i++ {
		_, err := store.Insert(ctx, database.TableTodos, database.Row{"user_id": "u1", "titolo": fmt.Sprintf("task %02d", i)})
		require.NoError(t, err)
	}
	e := newExplorer(t, store, Options{MaxPageSize: 20})

	p, err := e.Rows(ctx, database.TableTodos, PageRequest{Page: 2, PageSize: 25})
	require.NoError(t, err)
	assert.Equal(t, 20, p.PageSize, "page size is capped")
	assert.Equal(t, 30, p.Total)
	assert.Equal(t, 2, p.Pages)
	assert.Len(t, p.Rows, 10)
	assert.Equal(t, "id", p.Sort)

	p, err = e.Rows(ctx, database.TableTodos, PageRequest{PageSize: 3, Sort: "titolo", Desc: true})
	require.NoError(t, err)
	require.Len(t, p.Rows, 3)
	assert.Equal(t, "task 30", p.Rows[0]["titolo"])
	assert.Equal(t, 10, p.Pages)

	_, err = e.Rows(ctx, database.TableTodos, PageRequest{Sort: "titolo; DROP TABLE todolist"})
	assert.ErrorIs(t, err, ErrUnknownColumn)
}

func TestExplorer_RowsHugePage(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	for i := 1; i <= 3; i++ {
		_, err := store.Insert(ctx, database.TableTodos, database.Row{"user_id": "u1", "titolo": fmt.Sprintf("task %d", i)})
		require.NoError(t, err)
	}
	e := newExplorer(t, store, Options{})

	p, err := e.Rows(ctx, database.TableTodos, PageRequest{Page: math.MaxInt, PageSize: 10})
	require.NoError(t, err)
	assert.Empty(t, p.Rows, "a page past the end is empty, not page 1")
	assert.Equal(t, 3, p.Total)
	assert.Greater(t, p.Page, 1)
}

func TestExplorer_RowsFilters(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	for _, r := range []database.Row{
		{"user_id": "u1", "titolo": "Call the bank"},
		{"user_id": "u1", "titolo": "Buy milk"},
		{"user_id": "u2", "titolo": "Recall supplier"},
	} {
		_, err := store.Insert(ctx, database.TableTodos, r)
		require.NoError(t, err)
	}
	e := newExplorer(t, store, Options{})

	titles := func(p *Page) []string {
		var out []string
		for _, r := range p.Rows {
			out = append(out, fmt.Sprint(r["titolo"]))
		}
		return out
	}

	p, err := e.Rows(ctx, database.TableTodos, PageRequest{Equal: map[string]string{"user_id": "u1"}})
	require.NoError(t, err)
	assert.Equal(t, 2, p.Total)
	assert.Equal(t, []string{"Call the bank", "Buy milk"}, titles(p))

	p, err = e.Rows(ctx, database.TableTodos, PageRequest{Search: map[string]string{"titolo": "CALL"}})
	require.NoError(t, err)
	assert.Equal(t, 2, p.Total)
	assert.Equal(t, []string{"Call the bank", "Recall supplier"}, titles(p))

	p, err = e.Rows(ctx, database.TableTodos, PageRequest{
		Equal:  map[string]string{"user_id": "u1"},
		Search: map[string]string{"titolo": "call"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Call the bank"}, titles(p))

	p, err = e.Rows(ctx, database.TableTodos, PageRequest{Equal: map[string]string{"id": "2"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Buy milk"}, titles(p))

	_, err = e.Rows(ctx, database.TableTodos, PageRequest{Equal: map[string]string{"owner": "u1"}})
	assert.ErrorIs(t, err, ErrUnknownColumn)
	_, err = e.Rows(ctx, database.TableTodos, PageRequest{Search: map[string]string{"titolo) OR 1=1 --": "x"}})
	assert.ErrorIs(t, err, ErrUnknownColumn)
}

func TestExplorer_CRUD(t *testing.T) {
	ctx := context.Background()
	e := newExplorer(t, newStore(t), Options{})

	row, err := e.Create(ctx, database.TableTodos, database.Row{"user_id": "u1", "titolo": "draft"})
	require.NoError(t, err)
	id := fmt.Sprint(row["id"])

	patch := database.Row{"titolo": "final", "id": 999}
	row, err = e.Update(ctx, database.TableTodos, id, patch)
	require.NoError(t, err)
	assert.Equal(t, "final", row["titolo"])
	assert.Equal(t, database.Row{"titolo": "final", "id": 999}, patch, "caller's patch is left alone")

	_, err = e.Update(ctx, database.TableTodos, id, database.Row{"nope": 1})
	assert.ErrorIs(t, err, ErrUnknownColumn)

	require.NoError(t, e.Upsert(ctx, database.TableTodos, database.Row{"id": database.Key(id), "user_id": "u1", "titolo": "upserted"}))
	row, err = e.Get(ctx, database.TableTodos, id)
	require.NoError(t, err)
	assert.Equal(t, "upserted", row["titolo"])

	assert.Error(t, e.Upsert(ctx, database.TableTodos, database.Row{"titolo": "no id"}))

	require.NoError(t, e.Delete(ctx, database.TableTodos, id))
	_, err = e.Get(ctx, database.TableTodos, id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, e.Delete(ctx, database.TableTodos, id), ErrNotFound)
}

func TestExplorer_CachesDiscovery(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	e := newExplorer(t, store, Options{})

	before, err := e.Tables(ctx)
	require.NoError(t, err)
	assert.NotContains(t, before, "clienti")

	_, err = store.DB().ExecContext(ctx, `CREATE TABLE clienti (id INTEGER PRIMARY KEY, nome TEXT)`)
	require.NoError(t, err)

	cached, err := e.Tables(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, cached)

	e.Invalidate()
	after, err := e.Tables(ctx)
	require.NoError(t, err)
	assert.Contains(t, after, "clienti")
}

// procOnlyStore can only be read through stored procedures.
type procOnlyStore struct {
	database.Store
	args database.Row
}

func (s *procOnlyStore) Select(context.Context, database.Query) ([]database.Row, error) {
	return nil, errors.New("permission denied")
}

func (s *procOnlyStore) Call(_ context.Context, procedure string, args database.Row) ([]database.Row, error) {
	if procedure != "get_table_data" {
		return nil, database.ErrProcedureNotFound
	}
	s.args = args
	return []database.Row{
		{"row_data": map[string]any{"id": int64(1), "titolo": "a"}, "total_count": int64(42)},
		{"row_data": `{"id": 2, "titolo": "b"}`, "total_count": int64(42)},
	}, nil
}

func TestExplorer_ProcedureFallback(t *testing.T) {
	ctx := context.Background()
	store := &procOnlyStore{Store: newStore(t)}
	e := newExplorer(t, store, Options{})

	p, err := e.Rows(ctx, database.TableTodos, PageRequest{Page: 3, PageSize: 10, Sort: "titolo"})
	require.NoError(t, err)
	assert.Equal(t, 42, p.Total)
	assert.Equal(t, 5, p.Pages)
	require.Len(t, p.Rows, 2)
	assert.Equal(t, "b", p.Rows[1]["titolo"])
	assert.Equal(t, database.Row{
		"table_name":  database.TableTodos,
		"page_size":   10,
		"page_offset": 20,
		"sort_column": "titolo",
		"sort_desc":   false,
	}, store.args)
}
