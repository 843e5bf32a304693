package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

// fakeSource replays a fixed stream of songs and parse errors, mimicking the
// line parser.
type fakeSource struct {
	songs []ParsedSong
	errs  []ParseError
	fatal error
}

func (f *fakeSource) Each(_ io.Reader, onSong func(ParsedSong), onErr func(ParseError)) error {
	byErrSeq := make(map[int]ParseError, len(f.errs))
	for _, e := range f.errs {
		byErrSeq[e.Seq] = e
	}

	seq := 0
	songIdx := 0
	total := len(f.songs) + len(f.errs)
	for seq < total {
		if e, ok := byErrSeq[seq]; ok {
			onErr(e)
		} else {
			onSong(f.songs[songIdx])
			songIdx++
		}
		seq++
	}
	return f.fatal
}

type fakeSearcher struct {
	delay   time.Duration
	calls   atomic.Int32
	failSeq map[int]error
	empty   map[int]bool
}

func (f *fakeSearcher) SearchSong(ctx context.Context, song ParsedSong) ([]Candidate, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		jittered := time.Duration(rand.Int63n(int64(f.delay))) //nolint:gosec // test jitter
		select {
		case <-time.After(jittered):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := f.failSeq[song.Seq]; ok {
		return nil, err
	}
	if f.empty[song.Seq] {
		return nil, nil
	}
	return []Candidate{{
		ID:   fmt.Sprintf("id-%d", song.Seq),
		Name: song.Title,
		URI:  fmt.Sprintf("spotify:track:id-%d", song.Seq),
	}}, nil
}

// fakeRanker matches the first candidate verbatim; seqs listed in lowSeq come
// back below the match threshold.
type fakeRanker struct {
	lowSeq map[int]bool
}

func (f *fakeRanker) BestMatch(song ParsedSong, candidates []Candidate) *MatchedSong {
	if len(candidates) == 0 {
		return nil
	}
	c := candidates[0]
	return &MatchedSong{
		Song:          song,
		CatalogID:     c.ID,
		Name:          c.Name,
		URI:           c.URI,
		FinalScore:    90,
		LowConfidence: f.lowSeq[song.Seq],
	}
}

func testPipelineConfig() *Config {
	cfg := DefaultConfig()
	cfg.Pipeline.Concurrency = 4
	cfg.Pipeline.BatchSize = 8
	return cfg
}

func makeSongs(n int) []ParsedSong {
	songs := make([]ParsedSong, n)
	for i := range songs {
		songs[i] = ParsedSong{
			Seq:   i,
			Line:  fmt.Sprintf("Song %d - Artist %d", i, i),
			Title: fmt.Sprintf("Song %d", i),
		}
	}
	return songs
}

func TestPipelineRestoresInputOrder(t *testing.T) {
	const n = 50

	pipeline := NewPipeline(
		testPipelineConfig(),
		&fakeSearcher{delay: 3 * time.Millisecond},
		&fakeRanker{},
		&fakeSource{songs: makeSongs(n)},
		zap.NewNop(),
	)

	report, err := pipeline.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(report.Results) != n {
		t.Fatalf("Run() produced %d results, expected %d", len(report.Results), n)
	}
	for i, res := range report.Results {
		if res.Seq != i {
			t.Fatalf("result %d has seq %d, order not restored", i, res.Seq)
		}
		if res.Status != StatusMatched {
			t.Errorf("result %d status = %s, expected MATCHED", i, res.Status)
		}
	}
	if report.Summary.Matched != n {
		t.Errorf("summary matched = %d, expected %d", report.Summary.Matched, n)
	}
}

func TestPipelineParseErrorsInterleaved(t *testing.T) {
	songs := []ParsedSong{
		{Seq: 0, Line: "a - b", Title: "a"},
		{Seq: 2, Line: "c - d", Title: "c"},
	}
	errs := []ParseError{
		{Seq: 1, LineNumber: 2, Line: " - b", Reason: "empty title"},
	}

	pipeline := NewPipeline(
		testPipelineConfig(),
		&fakeSearcher{},
		&fakeRanker{},
		&fakeSource{songs: songs, errs: errs},
		zap.NewNop(),
	)

	report, err := pipeline.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(report.Results) != 3 {
		t.Fatalf("Run() produced %d results, expected 3", len(report.Results))
	}
	if report.Results[1].Status != StatusInputError {
		t.Errorf("result 1 status = %s, expected INPUT_FORMAT_ERROR", report.Results[1].Status)
	}
	if report.Results[1].ErrMessage != "empty title" {
		t.Errorf("result 1 error = %q", report.Results[1].ErrMessage)
	}
	if report.Summary.InputFormatErrors != 1 || report.Summary.Matched != 2 {
		t.Errorf("summary = %+v", report.Summary)
	}
}

func TestPipelinePerSongFailuresDoNotAbort(t *testing.T) {
	const n = 10
	searcher := &fakeSearcher{
		failSeq: map[int]error{3: errors.New("catalog permanent error: boom")},
		empty:   map[int]bool{7: true},
	}

	pipeline := NewPipeline(
		testPipelineConfig(),
		searcher,
		&fakeRanker{lowSeq: map[int]bool{5: true}},
		&fakeSource{songs: makeSongs(n)},
		zap.NewNop(),
	)

	report, err := pipeline.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(report.Results) != n {
		t.Fatalf("Run() produced %d results, expected %d", len(report.Results), n)
	}

	expect := map[int]Status{
		3: StatusAPIError,
		5: StatusLowConfidence,
		7: StatusNotFound,
	}
	for seq, expected := range expect {
		if got := report.Results[seq].Status; got != expected {
			t.Errorf("seq %d status = %s, expected %s", seq, got, expected)
		}
	}
	if report.Results[3].ErrMessage == "" {
		t.Error("API_ERROR result carries no error message")
	}
	if s := report.Summary; s.Matched != 7 || s.LowConfidence != 1 || s.NotFound != 1 || s.APIErrors != 1 {
		t.Errorf("summary = %+v", s)
	}
}

func TestPipelineFatalReadError(t *testing.T) {
	fatal := errors.New("reading input: disk gone")

	pipeline := NewPipeline(
		testPipelineConfig(),
		&fakeSearcher{},
		&fakeRanker{},
		&fakeSource{songs: makeSongs(2), fatal: fatal},
		zap.NewNop(),
	)

	_, err := pipeline.Run(context.Background(), nil)
	if !errors.Is(err, fatal) {
		t.Fatalf("Run() error = %v, expected the fatal read error", err)
	}
}

func TestPipelineCancellation(t *testing.T) {
	const n = 40
	ctx, cancel := context.WithCancel(context.Background())

	searcher := &fakeSearcher{delay: 20 * time.Millisecond}
	pipeline := NewPipeline(
		testPipelineConfig(),
		searcher,
		&fakeRanker{},
		&fakeSource{songs: makeSongs(n)},
		zap.NewNop(),
	)

	go func() {
		time.Sleep(15 * time.Millisecond)
		cancel()
	}()

	done := make(chan struct{})
	var report *Report
	var err error
	go func() {
		report, err = pipeline.Run(ctx, nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancellation")
	}

	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(report.Results) > n {
		t.Fatalf("Run() produced %d results for %d inputs", len(report.Results), n)
	}
	// Whatever was accepted before cancellation still came back ordered.
	for i := 1; i < len(report.Results); i++ {
		if report.Results[i].Seq < report.Results[i-1].Seq {
			t.Fatal("results out of order after cancellation")
		}
	}
}
