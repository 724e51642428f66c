package agenda

import (
	"context"
	"time"

	"github.com/CrowderSoup/agenda-app/database"
	"github.com/CrowderSoup/agenda-app/retry"
	"go.uber.org/zap"
)

// Options configures a Service.
type Options struct {
	Location       *time.Location
	GeneralOwnerID string
	Colors         map[string]string
	Retry          retry.Policy
	Logger         *zap.Logger
}

// Service reads every source for a user and composes calendar views.
type Service struct {
	fetcher  *Fetcher
	composer *Composer
	settings *database.SettingsService
	loc      *time.Location
	logger   *zap.Logger
	now      func() time.Time
}

// NewService wires one reader per personal source plus the general deadline
// reader.
func NewService(store database.Store, settings *database.SettingsService, opts Options) *Service {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	readers := make([]Reader, 0, len(PersonalSources)+1)
	for _, src := range PersonalSources {
		readers = append(readers, NewTableReader(src, store, loc, opts.Retry, logger))
	}
	if opts.GeneralOwnerID != "" {
		readers = append(readers, NewGeneralDeadlineReader(opts.GeneralOwnerID, store, loc, opts.Retry, logger))
	}

	return &Service{
		fetcher:  NewFetcher(NewNormalizer(loc, opts.Colors, logger), logger, readers...),
		composer: NewComposer(loc, logger),
		settings: settings,
		loc:      loc,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *Service) Location() *time.Location {
	return s.loc
}

// ViewResult is a composed view together with the sources that failed.
type ViewResult struct {
	View   View
	Errors []*SourceError
}

// View fetches the window covering the requested grid and composes it.
func (s *Service) View(ctx context.Context, userID string, mode ViewMode, date time.Time, filter Filter) ViewResult {
	if date.IsZero() {
		date = s.now()
	}
	res := s.fetcher.Fetch(ctx, userID, Range(mode, date, s.loc))

	view := s.composer.Compose(res.Items, ComposeRequest{
		Mode:     mode,
		Date:     date,
		Filter:   filter,
		Settings: s.userSettings(ctx, userID),
		Now:      s.now(),
	})
	return ViewResult{View: view, Errors: res.Errors}
}

func (s *Service) userSettings(ctx context.Context, userID string) *database.Settings {
	if s.settings == nil {
		return database.DefaultSettings()
	}
	settings, err := s.settings.GetSettings(ctx, userID)
	if err != nil {
		s.logger.Warn("settings unavailable, using defaults", zap.String("user", userID), zap.Error(err))
		return database.DefaultSettings()
	}
	return settings
}
