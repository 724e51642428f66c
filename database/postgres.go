package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Postgres error codes we translate into sentinels.
const (
	pgUndefinedTable    = "42P01"
	pgUndefinedFunction = "42883"
)

// PGStore implements Store using a Postgres connection pool.
type PGStore struct {
	pool   *pgxpool.Pool
	d      dialect
	schema string
	logger *zap.Logger
}

// OpenPostgres connects to dsn and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return NewPGStore(pool, logger), nil
}

func NewPGStore(pool *pgxpool.Pool, logger *zap.Logger) *PGStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PGStore{pool: pool, d: postgresDialect, schema: "public", logger: logger.Named("pgstore")}
}

func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PGStore) Select(ctx context.Context, q Query) ([]Row, error) {
	query, args, err := buildSelect(s.d, q)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, q.Table, "select", query, args)
}

func (s *PGStore) Count(ctx context.Context, table string, filters ...Filter) (int, error) {
	query, args, err := buildCount(s.d, table, filters)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, s.wrap(table, "count", err)
	}
	return int(n), nil
}

func (s *PGStore) Insert(ctx context.Context, table string, values Row) (Row, error) {
	query, args, err := buildInsert(s.d, table, values)
	if err != nil {
		return nil, err
	}
	rows, err := s.query(ctx, table, "insert", query+" RETURNING *", args)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("insert into %s: no row returned", table)
	}
	return rows[0], nil
}

func (s *PGStore) Update(ctx context.Context, table string, patch Row, filters ...Filter) (int64, error) {
	query, args, err := buildUpdate(s.d, table, patch, filters)
	if err != nil {
		return 0, err
	}
	return s.exec(ctx, table, "update", query, args)
}

func (s *PGStore) Upsert(ctx context.Context, table, conflictColumn string, values Row) error {
	query, args, err := buildUpsert(s.d, table, conflictColumn, values)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, table, "upsert", query, args)
	return err
}

func (s *PGStore) Delete(ctx context.Context, table string, filters ...Filter) (int64, error) {
	query, args, err := buildDelete(s.d, table, filters)
	if err != nil {
		return 0, err
	}
	return s.exec(ctx, table, "delete", query, args)
}

// Call runs SELECT * FROM procedure(name => value, ...).
func (s *PGStore) Call(ctx context.Context, procedure string, args Row) ([]Row, error) {
	proc, err := quoteIdent(procedure)
	if err != nil {
		return nil, err
	}
	b := newBuilder(s.d)
	named := make([]string, 0, len(args))
	for _, k := range sortedKeys(args) {
		if !ValidIdentifier(k) {
			return nil, fmt.Errorf("argument %q: %w", k, ErrInvalidIdentifier)
		}
		named = append(named, k+" => "+b.arg(args[k]))
	}
	query := "SELECT * FROM " + proc + "(" + strings.Join(named, ", ") + ")"
	return s.query(ctx, procedure, "call", query, b.args)
}

func (s *PGStore) Tables(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		 ORDER BY table_name`, s.schema)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	tables, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan tables: %w", err)
	}
	return tables, nil
}

func (s *PGStore) Columns(ctx context.Context, table string) ([]Column, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT c.column_name, c.data_type, c.is_nullable = 'YES', c.column_default,
		        EXISTS (
		            SELECT 1 FROM information_schema.table_constraints tc
		            JOIN information_schema.key_column_usage k
		              ON k.constraint_name = tc.constraint_name AND k.table_schema = tc.table_schema
		            WHERE tc.constraint_type = 'PRIMARY KEY'
		              AND tc.table_schema = c.table_schema
		              AND tc.table_name = c.table_name
		              AND k.column_name = c.column_name)
		 FROM information_schema.columns c
		 WHERE c.table_schema = $1 AND c.table_name = $2
		 ORDER BY c.ordinal_position`, s.schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var (
			c    Column
			dflt *string
		)
		if err := rows.Scan(&c.Name, &c.Type, &c.Nullable, &dflt, &c.PrimaryKey); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", table, err)
		}
		if dflt != nil {
			c.Default = *dflt
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

func (s *PGStore) query(ctx context.Context, table, op, query string, args []any) ([]Row, error) {
	s.logger.Debug(op, zap.String("sql", query), zap.Int("args", len(args)))
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, s.wrap(table, op, err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, s.wrap(table, op, err)
	}
	out := make([]Row, len(maps))
	for i, m := range maps {
		out[i] = Row(m)
	}
	return out, nil
}

func (s *PGStore) exec(ctx context.Context, table, op, query string, args []any) (int64, error) {
	s.logger.Debug(op, zap.String("sql", query), zap.Int("args", len(args)))
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, s.wrap(table, op, err)
	}
	return tag.RowsAffected(), nil
}

func (s *PGStore) wrap(name, op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUndefinedTable:
			return fmt.Errorf("%s %s: %w", op, name, ErrTableNotFound)
		case pgUndefinedFunction:
			return fmt.Errorf("%s %s: %w", op, name, ErrProcedureNotFound)
		}
	}
	return fmt.Errorf("failed to %s %s: %w", op, name, err)
}
