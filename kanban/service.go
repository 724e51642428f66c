package kanban

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CrowderSoup/agenda-app/agenda"
	"github.com/CrowderSoup/agenda-app/database"
	"github.com/CrowderSoup/agenda-app/retry"
	"go.uber.org/zap"
)

// Notifier is told about every persisted move.
type Notifier interface {
	NotifyUser(userID, event string, payload any)
}

// Move asks to drag the item with Key to To. From defaults to the item's
// current position.
type Move struct {
	Key  string    `json:"key"`
	From *Position `json:"from,omitempty"`
	To   Position  `json:"to"`
}

// MoveResult is the board to display after a move. Errors lists the sources
// that could not be read while building Board.
type MoveResult struct {
	Plan     Plan                  `json:"plan"`
	Board    *Board                `json:"board"`
	Notice   string                `json:"notice,omitempty"`
	Reloaded bool                  `json:"reloaded"`
	Errors   []*agenda.SourceError `json:"-"`
}

// Service loads boards and persists moves.
type Service struct {
	store    database.Store
	settings *database.SettingsService
	notifier Notifier
	loc      *time.Location
	policy   retry.Policy
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(store database.Store, settings *database.SettingsService, notifier Notifier, loc *time.Location, policy retry.Policy, logger *zap.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		settings: settings,
		notifier: notifier,
		loc:      loc,
		policy:   policy,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *Service) layout(ctx context.Context, userID string, kind BoardKind) (Layout, error) {
	switch kind {
	case PriorityBoard:
		var settings *database.Settings
		if s.settings != nil {
			var err error
			if settings, err = s.settings.GetSettings(ctx, userID); err != nil {
				s.logger.Warn("settings unavailable, using defaults", zap.String("user", userID), zap.Error(err))
			}
		}
		return NewPriorityLayout(settings), nil
	case DueDateBoard:
		return NewDueDateLayout(s.now(), s.loc), nil
	}
	return nil, fmt.Errorf("unknown board %q", kind)
}

// Board loads every item of the board's sources for userID. Failed sources
// are reported next to the partial board.
func (s *Service) Board(ctx context.Context, userID string, kind BoardKind) (*Board, []*agenda.SourceError, error) {
	l, err := s.layout(ctx, userID, kind)
	if err != nil {
		return nil, nil, err
	}
	b, errs := s.load(ctx, userID, l)
	return b, errs, nil
}

func (s *Service) load(ctx context.Context, userID string, l Layout) (*Board, []*agenda.SourceError) {
	readers := make([]agenda.Reader, 0, len(l.Sources()))
	for _, src := range l.Sources() {
		readers = append(readers, agenda.NewTableReader(src, s.store, s.loc, s.policy, s.logger))
	}
	f := agenda.NewFetcher(agenda.NewNormalizer(s.loc, nil, s.logger), s.logger, readers...)
	res := f.Fetch(ctx, userID, agenda.Window{})
	return Build(l, res.Items), res.Errors
}

// Move applies mv for userID. Rejected moves return the unchanged board and a
// *MoveError wrapping ErrMoveRejected. When the update fails or touches no
// row, the board is reloaded from the store and a *MoveError wrapping
// ErrNotSaved is returned together with it.
func (s *Service) Move(ctx context.Context, userID string, kind BoardKind, mv Move) (*MoveResult, error) {
	l, err := s.layout(ctx, userID, kind)
	if err != nil {
		return nil, err
	}
	board, errs := s.load(ctx, userID, l)
	if len(errs) > 0 {
		s.logger.Error("kanban board unavailable, move refused",
			zap.String("user", userID),
			zap.String("item", mv.Key),
			zap.Int("failed_sources", len(errs)))
		return &MoveResult{Board: board, Errors: errs}, fmt.Errorf("%w: %w", ErrBoardUnavailable, sourceErrors(errs))
	}

	it, at, ok := board.Find(mv.Key)
	if !ok {
		return nil, fmt.Errorf("item %q is not on the %s board", mv.Key, kind)
	}
	if mv.From != nil {
		at.Index = mv.From.Index
	}
	if board.column(mv.To.Column) == nil {
		err := fmt.Errorf("unknown column %q", mv.To.Column)
		return &MoveResult{Board: board, Notice: err.Error()}, &MoveError{Notice: err.Error(), Err: fmt.Errorf("%w: %v", ErrMoveRejected, err)}
	}

	drag := NewDrag(l)
	if err := drag.Pick(it, at); err != nil {
		return nil, err
	}
	plan, err := drag.Drop(mv.To)
	if err != nil {
		var me *MoveError
		if errors.As(err, &me) {
			s.logger.Info("kanban move rejected",
				zap.String("user", userID),
				zap.String("item", mv.Key),
				zap.String("from", at.Column),
				zap.String("to", mv.To.Column))
			return &MoveResult{Plan: plan, Board: board, Notice: me.Notice}, err
		}
		return nil, err
	}

	optimistic := board.Apply(plan)
	if plan.Patch == nil {
		return &MoveResult{Plan: plan, Board: optimistic}, nil
	}

	if err := s.persist(ctx, userID, plan.Patch); err != nil {
		s.logger.Error("kanban move not saved, reloading board",
			zap.String("user", userID),
			zap.String("table", plan.Patch.Table),
			zap.String("id", plan.Patch.OriginID),
			zap.Error(err))
		reloaded, errs := s.load(ctx, userID, l)
		notice := "the change could not be saved; the board was reloaded"
		if len(errs) > 0 {
			notice = "the change could not be saved and the board could not be reloaded"
		}
		return &MoveResult{Plan: plan, Board: reloaded, Notice: notice, Reloaded: true, Errors: errs},
			&MoveError{Notice: notice, Err: fmt.Errorf("%w: %w", ErrNotSaved, err)}
	}

	s.logger.Info("kanban move saved",
		zap.String("user", userID),
		zap.String("table", plan.Patch.Table),
		zap.String("id", plan.Patch.OriginID),
		zap.String("to", mv.To.Column))
	if s.notifier != nil {
		s.notifier.NotifyUser(userID, "agenda.changed", map[string]any{
			"table": plan.Patch.Table,
			"id":    plan.Patch.OriginID,
			"board": kind,
		})
	}
	return &MoveResult{Plan: plan, Board: optimistic}, nil
}

var errNoRows = errors.New("no matching row")

func sourceErrors(errs []*agenda.SourceError) error {
	out := make([]error, len(errs))
	for i, e := range errs {
		out[i] = e
	}
	return errors.Join(out...)
}

// persist writes one update keyed by origin id and owner.
func (s *Service) persist(ctx context.Context, userID string, p *Patch) error {
	var n int64
	err := retry.Do(ctx, s.policy, func(err error) bool {
		return !database.IsBenign(err) && !errors.Is(err, errNoRows)
	}, func(ctx context.Context) error {
		var err error
		n, err = s.store.Update(ctx, p.Table, p.Fields,
			database.Eq("id", database.Key(p.OriginID)),
			database.Eq("user_id", userID))
		if err == nil && n == 0 {
			return errNoRows
		}
		return err
	})
	return err
}
