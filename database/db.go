package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLStore implements Store on top of database/sql with the SQLite dialect.
// Both the cgo driver ("sqlite3") and the pure-Go driver ("sqlite") are registered.
type SQLStore struct {
	db     *sql.DB
	d      dialect
	logger *zap.Logger
}

// OpenSQLite opens a SQLite database with the given driver name and DSN.
func OpenSQLite(driver, dsn string, logger *zap.Logger) (*SQLStore, error) {
	if driver == "" {
		driver = "sqlite3"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	// single writer; also keeps a :memory: database on one connection
	db.SetMaxOpenConns(1)
	return NewSQLStore(db, logger), nil
}

func NewSQLStore(db *sql.DB, logger *zap.Logger) *SQLStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLStore{db: db, d: sqliteDialect, logger: logger.Named("sqlstore")}
}

// DB exposes the underlying handle.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Migrate creates the agenda tables when they do not exist yet.
func (s *SQLStore) Migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, st := range schema {
		if _, err := tx.ExecContext(ctx, st.ddl); err != nil {
			return fmt.Errorf("failed to create %s table: %w", st.table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.logger.Info("database initialized", zap.Int("tables", len(schema)))
	return nil
}

func (s *SQLStore) Select(ctx context.Context, q Query) ([]Row, error) {
	query, args, err := buildSelect(s.d, q)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("select", zap.String("sql", query), zap.Int("args", len(args)))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.wrap(q.Table, "select", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

func (s *SQLStore) Count(ctx context.Context, table string, filters ...Filter) (int, error) {
	query, args, err := buildCount(s.d, table, filters)
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, s.wrap(table, "count", err)
	}
	return n, nil
}

func (s *SQLStore) Insert(ctx context.Context, table string, values Row) (Row, error) {
	query, args, err := buildInsert(s.d, table, values)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query+" RETURNING *", args...)
	if err != nil {
		return nil, s.wrap(table, "insert", err)
	}
	defer rows.Close()

	out, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("failed to insert into %s: no row returned", table)
	}
	return out[0], nil
}

func (s *SQLStore) Update(ctx context.Context, table string, patch Row, filters ...Filter) (int64, error) {
	query, args, err := buildUpdate(s.d, table, patch, filters)
	if err != nil {
		return 0, err
	}
	return s.exec(ctx, table, "update", query, args)
}

func (s *SQLStore) Upsert(ctx context.Context, table, conflictColumn string, values Row) error {
	query, args, err := buildUpsert(s.d, table, conflictColumn, values)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, table, "upsert", query, args)
	return err
}

func (s *SQLStore) Delete(ctx context.Context, table string, filters ...Filter) (int64, error) {
	query, args, err := buildDelete(s.d, table, filters)
	if err != nil {
		return 0, err
	}
	return s.exec(ctx, table, "delete", query, args)
}

// Call always reports ErrProcedureNotFound: SQLite has no stored procedures.
func (s *SQLStore) Call(_ context.Context, procedure string, _ Row) ([]Row, error) {
	return nil, fmt.Errorf("%s: %w", procedure, ErrProcedureNotFound)
}

func (s *SQLStore) Tables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func (s *SQLStore) Columns(ctx context.Context, table string) ([]Column, error) {
	t, err := quoteIdent(table)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, "PRAGMA table_info("+t+")")
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", table, err)
		}
		c := Column{Name: name, Type: typ, Nullable: notNull == 0, PrimaryKey: pk > 0}
		if dflt.Valid {
			c.Default = dflt.String
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%s: %w", table, ErrTableNotFound)
	}
	return cols, nil
}

func (s *SQLStore) exec(ctx context.Context, table, op, query string, args []any) (int64, error) {
	s.logger.Debug(op, zap.String("sql", query), zap.Int("args", len(args)))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, s.wrap(table, op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

func (s *SQLStore) wrap(table, op string, err error) error {
	if strings.Contains(err.Error(), "no such table") {
		return fmt.Errorf("%s %s: %w", op, table, ErrTableNotFound)
	}
	return fmt.Errorf("failed to %s %s: %w", op, table, err)
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	out := []Row{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return out, nil
}

// IsBenign reports whether err only signals a missing table or procedure.
func IsBenign(err error) bool {
	return errors.Is(err, ErrTableNotFound) || errors.Is(err, ErrProcedureNotFound)
}
