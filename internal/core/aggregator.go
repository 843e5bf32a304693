package core

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// Report is the ordered outcome of one pipeline run.
type Report struct {
	Results []MatchResult
	Summary Summary
}

// Aggregate orders the unordered result stream back into input order and
// computes the summary. It copies its input, so re-running it on the same
// results yields identical output.
func Aggregate(results []MatchResult) *Report {
	ordered := make([]MatchResult, len(results))
	copy(ordered, results)

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Seq < ordered[j].Seq
	})

	summary := Summary{TotalInputLines: len(ordered)}
	for _, r := range ordered {
		switch r.Status {
		case StatusMatched:
			summary.Matched++
		case StatusLowConfidence:
			summary.LowConfidence++
		case StatusNotFound:
			summary.NotFound++
		case StatusAPIError:
			summary.APIErrors++
		case StatusInputError:
			summary.InputFormatErrors++
		}
	}

	return &Report{Results: ordered, Summary: summary}
}

// MatchedURIs returns the catalog URIs of all matched songs, low-confidence
// matches included, in input order.
func (r *Report) MatchedURIs() []string {
	var uris []string
	for _, res := range r.Results {
		if res.Matched != nil && res.Matched.URI != "" {
			uris = append(uris, res.Matched.URI)
		}
	}
	return uris
}

// AllMatched reports whether every input line produced a full-confidence
// match.
func (r *Report) AllMatched() bool {
	return r.Summary.Matched == r.Summary.TotalInputLines
}

// Render writes the human-readable report: one section per result in input
// order, then a summary block.
func (r *Report) Render(w io.Writer) error {
	for i, res := range r.Results {
		if _, err := fmt.Fprintf(w, "#%d %s\n", i+1, res.Line); err != nil {
			return err
		}
		if err := renderResult(w, res); err != nil {
			return err
		}
		if _, err := io.WriteString(w, "\n"); err != nil {
			return err
		}
	}

	s := r.Summary
	_, err := fmt.Fprintf(w, `---- summary ----
total input lines:   %d
matched:             %d
low confidence:      %d
not found:           %d
api errors:          %d
input format errors: %d
`, s.TotalInputLines, s.Matched, s.LowConfidence, s.NotFound, s.APIErrors, s.InputFormatErrors)
	return err
}

func renderResult(w io.Writer, res MatchResult) error {
	if _, err := fmt.Fprintf(w, "  status: %s\n", res.Status); err != nil {
		return err
	}

	if res.Matched != nil {
		m := res.Matched
		if _, err := fmt.Fprintf(w, "  track:  %s - %s (score %.1f)\n",
			m.Name, strings.Join(m.Artists, ", "), m.FinalScore); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "  uri:    %s\n", m.URI); err != nil {
			return err
		}
		if m.Album != "" {
			if _, err := fmt.Fprintf(w, "  album:  %s\n", m.Album); err != nil {
				return err
			}
		}
	}

	if res.ErrMessage != "" {
		if _, err := fmt.Fprintf(w, "  error:  %s\n", res.ErrMessage); err != nil {
			return err
		}
	}
	return nil
}
