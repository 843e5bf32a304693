package core

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// PlaylistWriter mutates playlists on the catalog; implemented by the
// spotify client.
type PlaylistWriter interface {
	CreatePlaylist(ctx context.Context, name string, public bool, description string) (id, url string, err error)
	AddTracks(ctx context.Context, playlistID string, uris []string) (int, error)
}

// URIFilter drops URIs already scheduled for a playlist; implemented by
// store.SeenStore.
type URIFilter interface {
	FilterNew(uris []string) []string
}

// PlaylistResult summarizes the playlist-mutation phase.
type PlaylistResult struct {
	PlaylistID   string
	PlaylistURL  string
	Name         string
	AddedTracks  int
	FailedTracks int
}

// PlaylistCreationError marks a failed playlist-create call. Per-song match
// results are never affected by playlist-phase failures.
type PlaylistCreationError struct {
	Err error
}

func (e *PlaylistCreationError) Error() string {
	return fmt.Sprintf("creating playlist: %v", e.Err)
}

func (e *PlaylistCreationError) Unwrap() error { return e.Err }

// PlaylistAddError marks a failed add-tracks batch after the playlist was
// created; Added reports how many tracks made it in before the failure.
type PlaylistAddError struct {
	Added int
	Err   error
}

func (e *PlaylistAddError) Error() string {
	return fmt.Sprintf("adding tracks after %d added: %v", e.Added, e.Err)
}

func (e *PlaylistAddError) Unwrap() error { return e.Err }

// Service is the application core shared by the CLI and the HTTP adapter:
// it runs the match pipeline and performs the post-matching playlist phase.
type Service struct {
	cfg      *Config
	searcher CatalogSearcher
	ranker   Ranker
	parser   LineSource
	writer   PlaylistWriter
	seen     URIFilter
	logger   *zap.Logger
}

func NewService(
	cfg *Config,
	searcher CatalogSearcher,
	ranker Ranker,
	parser LineSource,
	writer PlaylistWriter,
	seen URIFilter,
	logger *zap.Logger,
) *Service {
	return &Service{
		cfg:      cfg,
		searcher: searcher,
		ranker:   ranker,
		parser:   parser,
		writer:   writer,
		seen:     seen,
		logger:   logger,
	}
}

// ProcessSongs runs the match pipeline over the input. A positive concurrency
// or batchSize overrides the configured defaults for this run; the global
// request-slot semaphore inside the catalog client is unaffected.
func (s *Service) ProcessSongs(ctx context.Context, input io.Reader, concurrency, batchSize int) (*Report, error) {
	cfg := *s.cfg
	if concurrency > 0 {
		cfg.Pipeline.Concurrency = concurrency
	}
	if batchSize > 0 {
		cfg.Pipeline.BatchSize = batchSize
	}

	pipeline := NewPipeline(&cfg, s.searcher, s.ranker, s.parser, s.logger.Named("pipeline"))
	return pipeline.Run(ctx, input)
}

// CreatePlaylist creates a playlist and fills it with the given URIs,
// skipping URIs already scheduled through this service. Failures here are
// reported to the caller and never rewrite per-song match results.
func (s *Service) CreatePlaylist(ctx context.Context, name string, public bool, description string, uris []string) (*PlaylistResult, error) {
	if s.writer == nil {
		return nil, &PlaylistCreationError{Err: fmt.Errorf("no playlist-capable session")}
	}

	fresh := uris
	if s.seen != nil {
		fresh = s.seen.FilterNew(uris)
		if skipped := len(uris) - len(fresh); skipped > 0 {
			s.logger.Info("Skipping duplicate URIs", zap.Int("skipped", skipped))
		}
	}

	id, url, err := s.writer.CreatePlaylist(ctx, name, public, description)
	if err != nil {
		return nil, &PlaylistCreationError{Err: err}
	}

	result := &PlaylistResult{
		PlaylistID:  id,
		PlaylistURL: url,
		Name:        name,
	}

	added, err := s.writer.AddTracks(ctx, id, fresh)
	result.AddedTracks = added
	result.FailedTracks = len(fresh) - added
	if err != nil {
		return result, &PlaylistAddError{Added: added, Err: err}
	}

	return result, nil
}
