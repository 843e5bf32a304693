// Package fuzzy provides text normalization and similarity scoring for track matching.
package fuzzy

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/siongui/gojianfan"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// DefaultRemovePatterns are the noise patterns stripped during normalization.
// Patterns are data, not code: callers may replace them wholesale. They only
// touch un-bracketed noise; bracketed groups are preserved for the matcher.
var DefaultRemovePatterns = []string{
	`(?i)\s+-\s+(?:\d{4}\s+)?remaster(?:ed)?(?:\s+\d{4})?\s*$`,
	`(?i)\s+-\s+radio edit\s*$`,
	`(?i)\s+-\s+single version\s*$`,
}

// Options control normalization behavior. A Normalizer is constructed once
// with fixed options and shared across workers.
type Options struct {
	// FoldWidth converts full-width characters to their half-width forms.
	FoldWidth bool
	// Simplify converts Traditional Chinese to Simplified when the text
	// contains CJK codepoints.
	Simplify bool
	// RemovePatterns are regexes whose matches are deleted from the text.
	RemovePatterns []string
	// CacheSize bounds the memoization cache; zero disables memoization.
	CacheSize int
}

// DefaultOptions returns the options used by the matcher pipeline.
func DefaultOptions(cacheSize int) Options {
	return Options{
		FoldWidth:      true,
		Simplify:       true,
		RemovePatterns: DefaultRemovePatterns,
		CacheSize:      cacheSize,
	}
}

// Normalizer canonicalizes strings for comparison. Normalize is deterministic,
// idempotent and total; results are memoized in a bounded cache that is safe
// for concurrent use from worker goroutines.
type Normalizer struct {
	opts      Options
	patterns  []*regexp.Regexp
	cache     *lru.Cache[string, string]
	keyPrefix string
}

func NewNormalizer(opts Options) (*Normalizer, error) {
	patterns := make([]*regexp.Regexp, 0, len(opts.RemovePatterns))
	for _, p := range opts.RemovePatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid removal pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}

	n := &Normalizer{
		opts:      opts,
		patterns:  patterns,
		keyPrefix: optionsHash(opts),
	}

	if opts.CacheSize > 0 {
		cache, err := lru.New[string, string](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("normalization cache: %w", err)
		}
		n.cache = cache
	}

	return n, nil
}

// Normalize canonicalizes text for comparison. Bracketed groups survive
// normalization; use SplitMainAndBrackets to separate them afterwards.
func (n *Normalizer) Normalize(text string) string {
	key := n.keyPrefix + "\x00" + text
	if n.cache != nil {
		if v, ok := n.cache.Get(key); ok {
			return v
		}
	}

	out := n.normalize(text)

	if n.cache != nil {
		n.cache.Add(key, out)
	}
	return out
}

func (n *Normalizer) normalize(text string) string {
	s := norm.NFKC.String(text)
	s = strings.ToLower(s)

	if n.opts.FoldWidth {
		s = width.Fold.String(s)
	}

	if n.opts.Simplify && ContainsCJK(s) {
		s = gojianfan.T2S(s)
	}

	// The patterns are $-anchored, so one pass only strips the last of a
	// stack of noise suffixes; repeat to a fixed point to keep Normalize
	// idempotent.
	for {
		prev := s
		for _, re := range n.patterns {
			s = re.ReplaceAllString(s, "")
		}
		if s == prev {
			break
		}
	}

	s = whitespaceRegex.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// CacheLen reports the number of memoized entries, for observability.
func (n *Normalizer) CacheLen() int {
	if n.cache == nil {
		return 0
	}
	return n.cache.Len()
}

func optionsHash(opts Options) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%t|%t|%d|", opts.FoldWidth, opts.Simplify, opts.CacheSize)
	for _, p := range opts.RemovePatterns {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum64())
}

var bracketPairs = map[rune]rune{
	'(': ')',
	'[': ']',
	'（': '）',
	'【': '】',
}

// SplitMainAndBrackets returns the text with all bracketed groups removed and
// the list of bracket group contents in order of appearance. Whitespace in the
// main part is re-collapsed. Unterminated brackets run to the end of the text.
func SplitMainAndBrackets(s string) (string, []string) {
	var main strings.Builder
	var groups []string
	var group strings.Builder

	var closer rune
	inGroup := false

	for _, r := range s {
		if inGroup {
			if r == closer {
				if g := strings.TrimSpace(group.String()); g != "" {
					groups = append(groups, g)
				}
				group.Reset()
				inGroup = false
				continue
			}
			group.WriteRune(r)
			continue
		}
		if c, ok := bracketPairs[r]; ok {
			closer = c
			inGroup = true
			continue
		}
		main.WriteRune(r)
	}

	if inGroup {
		if g := strings.TrimSpace(group.String()); g != "" {
			groups = append(groups, g)
		}
	}

	cleaned := whitespaceRegex.ReplaceAllString(main.String(), " ")
	return strings.TrimSpace(cleaned), groups
}

// ContainsCJK reports whether s contains at least one Han codepoint.
func ContainsCJK(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}
