// Package match scores catalog candidates against parsed songs.
package match

import (
	"regexp"
	"sort"
	"strings"

	"songlift/internal/core"
	"songlift/pkg/fuzzy"
)

const scoreEpsilon = 1e-9

// versionKeywords are the bracket-group markers that earn a bonus when they
// appear on both sides of a comparison.
var versionKeywords = []string{
	"live", "remix", "acoustic", "instrumental", "unplugged",
	"demo", "cover", "karaoke", "studio", "edit", "version", "remaster",
}

// exclusiveMarkers lists marker pairs that cannot describe the same
// recording; one on each side earns a small penalty.
var exclusiveMarkers = [][2]string{
	{"acoustic", "studio"},
	{"live", "studio"},
	{"instrumental", "karaoke"},
}

var featRegex = regexp.MustCompile(`(?i)^(?:feat\.?|ft\.?|featuring)\s+(.+)$`)

// Matcher ranks search candidates for a parsed song. BestMatch is a pure
// function of its arguments plus the configuration captured at construction.
type Matcher struct {
	cfg  *core.MatchConfig
	norm *fuzzy.Normalizer
}

func New(cfg *core.MatchConfig, norm *fuzzy.Normalizer) *Matcher {
	return &Matcher{cfg: cfg, norm: norm}
}

type scoredCandidate struct {
	candidate core.Candidate
	index     int
	mainLen   int
	score     float64
}

// BestMatch scores every candidate and returns the best one when it clears
// the low-confidence threshold, or nil when nothing does. Ties prefer the
// shorter main title, then the earlier candidate, so output is deterministic.
func (m *Matcher) BestMatch(song core.ParsedSong, candidates []core.Candidate) *core.MatchedSong {
	if len(candidates) == 0 {
		return nil
	}

	inputMain, inputGroups := m.splitTitle(song.Title)

	inputArtists := make([]string, 0, len(song.Artists))
	for _, a := range song.Artists {
		inputArtists = append(inputArtists, m.norm.Normalize(a))
	}

	scored := make([]scoredCandidate, 0, len(candidates))
	for i, cand := range candidates {
		candMain, candGroups := m.splitTitle(cand.Name)

		if prune(inputMain, candMain) {
			continue
		}

		titleScore := fuzzy.TokenSetRatio(inputMain, candMain)
		stage1 := titleScore
		if len(inputArtists) > 0 {
			artistScore := m.artistScore(inputArtists, cand.Artists)
			stage1 = m.cfg.TitleWeight*titleScore + m.cfg.ArtistWeight*artistScore
		}

		final := clamp(stage1+m.bracketDelta(inputGroups, candGroups), 0, 100)

		scored = append(scored, scoredCandidate{
			candidate: cand,
			index:     i,
			mainLen:   len([]rune(candMain)),
			score:     final,
		})
	}

	if len(scored) == 0 {
		return nil
	}

	sort.SliceStable(scored, func(a, b int) bool {
		sa, sb := scored[a], scored[b]
		if diff := sa.score - sb.score; diff > scoreEpsilon || diff < -scoreEpsilon {
			return sa.score > sb.score
		}
		if sa.mainLen != sb.mainLen {
			return sa.mainLen < sb.mainLen
		}
		return sa.index < sb.index
	})

	best := scored[0]
	if best.score < m.cfg.LowConfidenceThreshold {
		return nil
	}

	cand := best.candidate
	return &core.MatchedSong{
		Song:          song,
		CatalogID:     cand.ID,
		Name:          cand.Name,
		Artists:       cand.Artists,
		URI:           cand.URI,
		Album:         cand.Album,
		DurationMS:    cand.DurationMS,
		FinalScore:    best.score,
		LowConfidence: best.score < m.cfg.MatchThreshold,
	}
}

func (m *Matcher) splitTitle(title string) (string, []string) {
	normalized := m.norm.Normalize(title)
	main, groups := fuzzy.SplitMainAndBrackets(normalized)
	if main == "" {
		main = normalized
	}
	return main, groups
}

// prune discards candidates whose main-title length diverges from the input
// by more than half the input length; fuzzy scoring cannot recover those.
func prune(inputMain, candMain string) bool {
	inputLen := len([]rune(inputMain))
	if inputLen == 0 {
		return false
	}
	candLen := len([]rune(candMain))
	diff := candLen - inputLen
	if diff < 0 {
		diff = -diff
	}
	return float64(diff) > 0.5*float64(inputLen)
}

// artistScore averages, over all input artists, the best similarity against
// any candidate artist. An exact normalized match raises the score to the
// configured floor; a low score with CJK on either side is retried through
// pinyin transliteration.
func (m *Matcher) artistScore(inputArtists []string, candArtists []string) float64 {
	normCand := make([]string, 0, len(candArtists))
	for _, a := range candArtists {
		normCand = append(normCand, m.norm.Normalize(a))
	}

	score, exact := averageBestSimilarity(inputArtists, normCand, false)
	if exact && score < m.cfg.ArtistExactMatchFloor {
		score = m.cfg.ArtistExactMatchFloor
	}

	if score < m.cfg.ArtistExactMatchFloor && anyCJK(inputArtists, normCand) {
		pinyinScore, _ := averageBestSimilarity(inputArtists, normCand, true)
		if pinyinScore > score {
			score = pinyinScore
		}
	}

	return score
}

func averageBestSimilarity(inputArtists, candArtists []string, usePinyin bool) (float64, bool) {
	if len(candArtists) == 0 {
		return 0, false
	}

	exact := false
	total := 0.0
	for _, in := range inputArtists {
		inCmp := in
		if usePinyin {
			inCmp = fuzzy.PinyinForm(in)
		}

		best := 0.0
		for _, cand := range candArtists {
			if in == cand {
				exact = true
			}
			candCmp := cand
			if usePinyin {
				candCmp = fuzzy.PinyinForm(cand)
			}
			if s := fuzzy.TokenSetRatio(inCmp, candCmp); s > best {
				best = s
			}
		}
		total += best
	}

	return total / float64(len(inputArtists)), exact
}

func anyCJK(inputArtists, candArtists []string) bool {
	for _, a := range inputArtists {
		if fuzzy.ContainsCJK(a) {
			return true
		}
	}
	for _, a := range candArtists {
		if fuzzy.ContainsCJK(a) {
			return true
		}
	}
	return false
}

// bracketDelta compares the two sets of bracket groups. Shared version
// keywords and matching feat artists earn a bonus; a marker on one side that
// the other lacks is neutral unless the sides carry mutually exclusive
// markers. The delta is bounded by the bracket weight.
func (m *Matcher) bracketDelta(inputGroups, candGroups []string) float64 {
	if len(inputGroups) == 0 && len(candGroups) == 0 {
		return 0
	}

	inputKeywords := collectKeywords(inputGroups)
	candKeywords := collectKeywords(candGroups)

	delta := 0.0
	for kw := range inputKeywords {
		if _, ok := candKeywords[kw]; ok {
			delta += m.cfg.KeywordBonus
		}
	}

	inputFeat := collectFeatArtists(inputGroups)
	candFeat := collectFeatArtists(candGroups)
	if inputFeat != "" && candFeat != "" && fuzzy.TokenSetRatio(inputFeat, candFeat) >= m.cfg.ArtistExactMatchFloor {
		delta += m.cfg.KeywordBonus
	}

	for _, pair := range exclusiveMarkers {
		a, b := pair[0], pair[1]
		_, inA := inputKeywords[a]
		_, inB := inputKeywords[b]
		_, candA := candKeywords[a]
		_, candB := candKeywords[b]
		if (inA && candB && !inB && !candA) || (inB && candA && !inA && !candB) {
			delta -= m.cfg.KeywordBonus
		}
	}

	bound := m.cfg.BracketWeight * 100
	return clamp(delta, -bound, bound)
}

func collectKeywords(groups []string) map[string]struct{} {
	found := make(map[string]struct{})
	for _, group := range groups {
		tokens := make(map[string]struct{})
		for _, tok := range strings.Fields(group) {
			tokens[tok] = struct{}{}
		}
		for _, kw := range versionKeywords {
			if _, ok := tokens[kw]; ok {
				found[kw] = struct{}{}
			}
		}
	}
	return found
}

func collectFeatArtists(groups []string) string {
	for _, group := range groups {
		if matches := featRegex.FindStringSubmatch(group); len(matches) > 1 {
			return strings.TrimSpace(matches[1])
		}
	}
	return ""
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
