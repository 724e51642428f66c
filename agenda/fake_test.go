package agenda

import (
	"context"
	"errors"
	"sync"

	"github.com/CrowderSoup/agenda-app/database"
)

var errBoom = errors.New("boom")

// memStore is a database.Store over in-memory tables. Only equality filters
// are honoured, which is all the readers use.
type memStore struct {
	mu     sync.Mutex
	tables map[string][]database.Row
	fail   map[string]error
	calls  map[string]int
}

func newMemStore() *memStore {
	return &memStore{
		tables: map[string][]database.Row{},
		fail:   map[string]error{},
		calls:  map[string]int{},
	}
}

func (m *memStore) add(table string, rows ...database.Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[table] = append(m.tables[table], rows...)
}

func (m *memStore) Select(_ context.Context, q database.Query) ([]database.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[q.Table]++
	if err := m.fail[q.Table]; err != nil {
		return nil, err
	}
	rows, ok := m.tables[q.Table]
	if !ok {
		return nil, database.ErrTableNotFound
	}
	var out []database.Row
	for _, r := range rows {
		if matchAll(r, q.Filters) {
			out = append(out, r)
		}
	}
	return out, nil
}

func matchAll(r database.Row, filters []database.Filter) bool {
	for _, f := range filters {
		if f.Op != database.OpEq {
			continue
		}
		v := r[f.Column]
		if b, ok := f.Value.(bool); ok {
			if boolOf(v) != b {
				return false
			}
			continue
		}
		if stringOf(v) != stringOf(f.Value) {
			return false
		}
	}
	return true
}

func (m *memStore) Count(context.Context, string, ...database.Filter) (int, error) {
	return 0, nil
}

func (m *memStore) Insert(_ context.Context, _ string, values database.Row) (database.Row, error) {
	return values, nil
}

func (m *memStore) Update(context.Context, string, database.Row, ...database.Filter) (int64, error) {
	return 0, nil
}

func (m *memStore) Upsert(context.Context, string, string, database.Row) error {
	return nil
}

func (m *memStore) Delete(context.Context, string, ...database.Filter) (int64, error) {
	return 0, nil
}

func (m *memStore) Call(context.Context, string, database.Row) ([]database.Row, error) {
	return nil, database.ErrProcedureNotFound
}

func (m *memStore) Tables(context.Context) ([]string, error) {
	return nil, nil
}

func (m *memStore) Columns(context.Context, string) ([]database.Column, error) {
	return nil, nil
}

func (m *memStore) Close() error {
	return nil
}
