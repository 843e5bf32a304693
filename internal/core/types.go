package core

// ParsedSong is the canonical internal representation of one input line.
// Either Title or Artists is non-empty; lines satisfying neither are rejected
// at parse time.
type ParsedSong struct {
	// Seq is the position of the line in the input stream, counted over
	// non-empty lines. It is carried through the pipeline so the final
	// report can be re-ordered into input order.
	Seq     int
	Line    string // untouched source text, kept for reporting
	Title   string
	Artists []string
}

// ParseError records a single malformed input line. The pipeline never aborts
// for one bad line; each ParseError becomes an INPUT_FORMAT_ERROR result.
type ParseError struct {
	Seq        int
	LineNumber int
	Line       string
	Reason     string
}

func (e ParseError) Error() string {
	return e.Reason
}

// Candidate is a track returned by the catalog search endpoint, before scoring.
type Candidate struct {
	ID         string
	Name       string
	Artists    []string
	URI        string
	Album      string
	DurationMS int
}

// MatchedSong is a successful association between a parsed song and a catalog
// entry.
type MatchedSong struct {
	Song       ParsedSong
	CatalogID  string
	Name       string
	Artists    []string
	URI        string
	Album      string
	DurationMS int

	// FinalScore is in [0, 100].
	FinalScore float64
	// LowConfidence is true when FinalScore fell below the match threshold
	// but the candidate was retained as a best-effort match.
	LowConfidence bool
}

// Status is the per-song outcome classification.
type Status string

const (
	StatusMatched       Status = "MATCHED"
	StatusLowConfidence Status = "LOW_CONFIDENCE_MATCH"
	StatusNotFound      Status = "NOT_FOUND"
	StatusAPIError      Status = "API_ERROR"
	StatusInputError    Status = "INPUT_FORMAT_ERROR"
)

// MatchResult is the per-song outcome record.
type MatchResult struct {
	Seq        int
	Line       string
	Title      string
	Artists    []string
	Status     Status
	Matched    *MatchedSong
	ErrMessage string
}

// Summary aggregates outcome counts over one pipeline run.
type Summary struct {
	TotalInputLines   int
	Matched           int
	LowConfidence     int
	NotFound          int
	APIErrors         int
	InputFormatErrors int
}
