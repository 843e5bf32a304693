package core

import (
	"context"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CatalogSearcher issues one rate-limited search per parsed song.
type CatalogSearcher interface {
	SearchSong(ctx context.Context, song ParsedSong) ([]Candidate, error)
}

// Ranker selects the best candidate for a song, or nil when none qualifies.
type Ranker interface {
	BestMatch(song ParsedSong, candidates []Candidate) *MatchedSong
}

// LineSource streams parsed songs and per-line errors from an input stream.
// Implemented by text.Parser.
type LineSource interface {
	Each(r io.Reader, onSong func(ParsedSong), onErr func(ParseError)) error
}

// Pipeline fans parsed songs out to a bounded worker pool, drives
// search → match per song, and folds the outcomes into an ordered report.
type Pipeline struct {
	cfg      *Config
	searcher CatalogSearcher
	ranker   Ranker
	parser   LineSource
	logger   *zap.Logger
}

func NewPipeline(cfg *Config, searcher CatalogSearcher, ranker Ranker, parser LineSource, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		searcher: searcher,
		ranker:   ranker,
		parser:   parser,
		logger:   logger,
	}
}

// Run drains the input, processes every song, and returns the report in input
// order. Per-song failures never abort the run; only a read error on the
// input stream is fatal. Cancellation stops the intake of new songs and
// aborts in-flight retries at their next backoff wait.
func (p *Pipeline) Run(ctx context.Context, input io.Reader) (*Report, error) {
	start := time.Now()

	// The bounded queue provides back-pressure: the parser blocks when
	// workers fall behind.
	queue := make(chan ParsedSong, 2*p.cfg.Pipeline.BatchSize)
	results := make(chan MatchResult, 2*p.cfg.Pipeline.BatchSize)

	parserDone := make(chan error, 1)
	go func() {
		defer close(queue)
		parserDone <- p.feed(ctx, input, queue, results)
	}()

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Pipeline.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx, queue, results)
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var all []MatchResult
	for r := range results {
		all = append(all, r)
	}

	if err := <-parserDone; err != nil {
		return nil, err
	}

	report := Aggregate(all)

	p.logger.Info("Pipeline completed",
		zap.Int("totalLines", report.Summary.TotalInputLines),
		zap.Int("matched", report.Summary.Matched),
		zap.Int("lowConfidence", report.Summary.LowConfidence),
		zap.Int("notFound", report.Summary.NotFound),
		zap.Int("apiErrors", report.Summary.APIErrors),
		zap.Int("inputErrors", report.Summary.InputFormatErrors),
		zap.Duration("elapsed", time.Since(start)))

	return report, nil
}

// feed pushes every parsed song onto the queue and converts parse errors into
// INPUT_FORMAT_ERROR results on the side. After cancellation no new songs are
// accepted.
func (p *Pipeline) feed(ctx context.Context, input io.Reader, queue chan<- ParsedSong, results chan<- MatchResult) error {
	return p.parser.Each(input,
		func(song ParsedSong) {
			select {
			case queue <- song:
			case <-ctx.Done():
				// Stop accepting new work; the song is dropped from
				// the drained pipeline.
			}
		},
		func(perr ParseError) {
			results <- MatchResult{
				Seq:        perr.Seq,
				Line:       perr.Line,
				Status:     StatusInputError,
				ErrMessage: perr.Reason,
			}
		},
	)
}

func (p *Pipeline) worker(ctx context.Context, queue <-chan ParsedSong, results chan<- MatchResult) {
	for song := range queue {
		results <- p.processOne(ctx, song)
	}
}

// processOne drives search → match for a single song and always produces
// exactly one result.
func (p *Pipeline) processOne(ctx context.Context, song ParsedSong) MatchResult {
	result := MatchResult{
		Seq:     song.Seq,
		Line:    song.Line,
		Title:   song.Title,
		Artists: song.Artists,
	}

	if err := ctx.Err(); err != nil {
		result.Status = StatusAPIError
		result.ErrMessage = "canceled before search"
		return result
	}

	candidates, err := p.searcher.SearchSong(ctx, song)
	if err != nil {
		p.logger.Warn("Catalog search failed",
			zap.Int("seq", song.Seq),
			zap.String("title", song.Title),
			zap.Error(err))
		result.Status = StatusAPIError
		result.ErrMessage = err.Error()
		return result
	}

	matched := p.ranker.BestMatch(song, candidates)
	if matched == nil {
		result.Status = StatusNotFound
		return result
	}

	result.Matched = matched
	if matched.LowConfidence {
		result.Status = StatusLowConfidence
	} else {
		result.Status = StatusMatched
	}

	p.logger.Debug("Song matched",
		zap.Int("seq", song.Seq),
		zap.String("title", song.Title),
		zap.String("candidate", matched.Name),
		zap.Float64("score", matched.FinalScore),
		zap.Bool("lowConfidence", matched.LowConfidence))

	return result
}
