// Package explorer discovers tables at runtime and offers paginated reads and
// primary-key CRUD over whatever it finds.
package explorer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/CrowderSoup/agenda-app/database"
)

// Outcome of one discovery strategy.
type Outcome string

const (
	Found  Outcome = "found"
	Empty  Outcome = "empty"
	Failed Outcome = "failed"
)

// Attempt records what one strategy returned.
type Attempt struct {
	Strategy string   `json:"strategy"`
	Outcome  Outcome  `json:"outcome"`
	Tables   []string `json:"tables,omitempty"`
	Err      error    `json:"-"`
	Error    string   `json:"error,omitempty"`
}

// Strategy lists tables one way.
type Strategy interface {
	Name() string
	Discover(ctx context.Context) ([]string, error)
}

// CatalogStrategy asks the backend catalog directly.
type CatalogStrategy struct {
	Store database.Store
}

func (CatalogStrategy) Name() string { return "catalog" }

func (s CatalogStrategy) Discover(ctx context.Context) ([]string, error) {
	return s.Store.Tables(ctx)
}

// ProcedureStrategy calls the get_tables stored procedure.
type ProcedureStrategy struct {
	Store database.Store
}

func (ProcedureStrategy) Name() string { return "procedure" }

func (s ProcedureStrategy) Discover(ctx context.Context) ([]string, error) {
	rows, err := s.Store.Call(ctx, procGetTables, nil)
	if err != nil {
		return nil, err
	}
	var tables []string
	for _, r := range rows {
		if name := firstString(r, "table_name", "name", procGetTables); name != "" {
			tables = append(tables, name)
		}
	}
	return tables, nil
}

// KnownTablesStrategy tries a fixed list of table names one by one.
type KnownTablesStrategy struct {
	Store database.Store
	Names []string
}

func (KnownTablesStrategy) Name() string { return "known" }

func (s KnownTablesStrategy) Discover(ctx context.Context) ([]string, error) {
	var (
		found []string
		errs  []error
	)
	for _, name := range s.Names {
		if !database.ValidIdentifier(name) {
			continue
		}
		_, err := s.Store.Select(ctx, database.Query{Table: name, Limit: 1})
		switch {
		case err == nil:
			found = append(found, name)
		case errors.Is(err, database.ErrTableNotFound):
		default:
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if len(found) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return found, nil
}

// DiscoveryError is returned when no strategy could list tables. It carries
// the SQL an operator can run to install the stored procedures.
type DiscoveryError struct {
	Attempts     []Attempt
	Instructions string
}

func (e *DiscoveryError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %s", a.Strategy, a.Error))
	}
	return "table discovery failed (" + strings.Join(parts, "; ") + ")"
}

func (e *DiscoveryError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}

// Discovery is the outcome of running the chain.
type Discovery struct {
	Tables   []string  `json:"tables"`
	Strategy string    `json:"strategy,omitempty"`
	Attempts []Attempt `json:"attempts"`
}

// Chain runs strategies in order until one finds tables.
type Chain []Strategy

// Run stops at the first strategy that finds tables. If none does and every
// strategy failed, a *DiscoveryError is returned; an empty but healthy
// backend yields an empty Discovery.
func (c Chain) Run(ctx context.Context) (Discovery, error) {
	var d Discovery
	failed := 0
	for _, s := range c {
		tables, err := s.Discover(ctx)
		a := Attempt{Strategy: s.Name()}
		switch {
		case err != nil:
			a.Outcome, a.Err, a.Error = Failed, err, err.Error()
			failed++
		case len(tables) == 0:
			a.Outcome = Empty
		default:
			a.Outcome, a.Tables = Found, normalizeNames(tables)
		}
		d.Attempts = append(d.Attempts, a)
		if a.Outcome == Found {
			d.Tables, d.Strategy = a.Tables, a.Strategy
			return d, nil
		}
		if ctx.Err() != nil {
			return d, ctx.Err()
		}
	}
	if failed == len(c) {
		return d, &DiscoveryError{Attempts: d.Attempts, Instructions: Instructions}
	}
	d.Tables = []string{}
	return d, nil
}

func normalizeNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func firstString(r database.Row, keys ...string) string {
	for _, k := range keys {
		if s, ok := r[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
