package agenda

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CrowderSoup/agenda-app/database"
	"github.com/CrowderSoup/agenda-app/retry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Window is an inclusive date range. The zero Window matches every row.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) IsZero() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

// matches applies the reader-side date window rules:
//   - the anchor date lies in [Start, End];
//   - the due date, moved to end of day, falls on a day of the window;
//   - the interval [start, end] overlaps the window.
func (w Window) matches(start, end, due *time.Time, loc *time.Location) bool {
	if w.IsZero() {
		return true
	}
	if start != nil && !start.Before(w.Start) && !start.After(w.End) {
		return true
	}
	if due != nil && dayWithin(EndOfDay(*due, loc), w.Start, w.End, loc) {
		return true
	}
	if start != nil && end != nil && end.After(*start) {
		return !start.After(w.End) && !end.Before(w.Start)
	}
	return false
}

// SourceError reports a failed reader. Sibling readers are unaffected.
type SourceError struct {
	Source   string
	Category Category
	Err      error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Reader fetches raw rows of one source for a user and a date window.
type Reader interface {
	Source() Source
	Read(ctx context.Context, userID string, w Window) ([]database.Row, error)
}

// TableReader reads a Source owned by the viewing user.
type TableReader struct {
	src    Source
	store  database.Store
	loc    *time.Location
	policy retry.Policy
	logger *zap.Logger
}

func NewTableReader(src Source, store database.Store, loc *time.Location, policy retry.Policy, logger *zap.Logger) *TableReader {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TableReader{src: src, store: store, loc: loc, policy: policy, logger: logger}
}

func (r *TableReader) Source() Source {
	return r.src
}

func (r *TableReader) Read(ctx context.Context, userID string, w Window) ([]database.Row, error) {
	return r.read(ctx, w, database.Eq("user_id", userID))
}

func (r *TableReader) read(ctx context.Context, w Window, filters ...database.Filter) ([]database.Row, error) {
	q := database.Query{
		Table:   r.src.Table,
		Columns: r.src.Columns(),
		Filters: filters,
		Order:   []database.Order{{Column: "id"}},
	}

	var rows []database.Row
	err := retry.Do(ctx, r.policy, retryable, func(ctx context.Context) error {
		var err error
		rows, err = r.store.Select(ctx, q)
		return err
	})
	if errors.Is(err, database.ErrTableNotFound) {
		r.logger.Debug("table not found, treating as empty", zap.String("source", r.src.Name))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.filter(rows, w), nil
}

// filter keeps rows inside the window. Rows whose dates cannot be parsed are
// kept so the normalizer reports them.
func (r *TableReader) filter(rows []database.Row, w Window) []database.Row {
	if w.IsZero() {
		return rows
	}
	out := rows[:0:0]
	for _, row := range rows {
		start, s1 := r.date(r.src.Start, row)
		end, s2 := r.date(r.src.End, row)
		due, s3 := r.date(r.src.Due, row)
		if s1 == dateMalformed || s2 == dateMalformed || s3 == dateMalformed {
			out = append(out, row)
			continue
		}
		if w.matches(start, end, due, r.loc) {
			out = append(out, row)
		}
	}
	return out
}

func (r *TableReader) date(column string, row database.Row) (*time.Time, dateState) {
	if column == "" {
		return nil, dateAbsent
	}
	t, st := parseDate(row[column], r.loc)
	if st != dateOK {
		return nil, st
	}
	return &t, st
}

// GeneralDeadlineReader reads public deadlines owned by the organization-wide
// owner. When the viewer is that owner it returns nothing: those rows already
// come through the viewer's personal deadlines.
type GeneralDeadlineReader struct {
	*TableReader
	ownerID string
}

func NewGeneralDeadlineReader(ownerID string, store database.Store, loc *time.Location, policy retry.Policy, logger *zap.Logger) *GeneralDeadlineReader {
	return &GeneralDeadlineReader{
		TableReader: NewTableReader(GeneralDeadlines, store, loc, policy, logger),
		ownerID:     ownerID,
	}
}

func (r *GeneralDeadlineReader) Read(ctx context.Context, userID string, w Window) ([]database.Row, error) {
	if userID == r.ownerID {
		return nil, nil
	}
	rows, err := r.read(ctx, w, database.Eq("user_id", r.ownerID))
	if err != nil {
		return nil, err
	}
	// privato may be NULL on hosted schemas; only rows flagged true are hidden
	out := make([]database.Row, 0, len(rows))
	for _, row := range rows {
		if !boolOf(row[r.src.Private]) {
			out = append(out, row)
		}
	}
	return out, nil
}

func retryable(err error) bool {
	return !database.IsBenign(err) && !errors.Is(err, database.ErrInvalidIdentifier)
}

// Result is the outcome of one fetch: the items of every source that
// succeeded, and one error per source that did not.
type Result struct {
	Items  []Item
	Errors []*SourceError
}

// Fetcher runs readers concurrently and normalizes what they return.
type Fetcher struct {
	readers    []Reader
	normalizer *Normalizer
	logger     *zap.Logger
}

func NewFetcher(normalizer *Normalizer, logger *zap.Logger, readers ...Reader) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{readers: readers, normalizer: normalizer, logger: logger}
}

// Fetch reads every source. Items are concatenated in reader order,
// regardless of which reader finishes first.
func (f *Fetcher) Fetch(ctx context.Context, userID string, w Window) Result {
	items := make([][]Item, len(f.readers))
	errs := make([]*SourceError, len(f.readers))

	var g errgroup.Group
	for i, r := range f.readers {
		g.Go(func() error {
			src := r.Source()
			rows, err := r.Read(ctx, userID, w)
			if err != nil {
				f.logger.Error("source read failed", zap.String("source", src.Name), zap.Error(err))
				errs[i] = &SourceError{Source: src.Name, Category: src.Category, Err: err}
				return nil
			}
			items[i] = f.normalizer.NormalizeAll(src, rows)
			return nil
		})
	}
	_ = g.Wait()

	var res Result
	for i := range f.readers {
		res.Items = append(res.Items, items[i]...)
		if errs[i] != nil {
			res.Errors = append(res.Errors, errs[i])
		}
	}
	f.logger.Debug("agenda fetched",
		zap.String("user", userID),
		zap.Int("items", len(res.Items)),
		zap.Int("failed_sources", len(res.Errors)))
	return res
}
