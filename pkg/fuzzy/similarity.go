package fuzzy

import (
	"sort"
	"strings"
	"unicode"

	"github.com/mozillazg/go-pinyin"
)

// Ratio is the normalized Levenshtein similarity between two strings in
// [0, 100]. Comparison is rune-based so multi-byte scripts score correctly.
func Ratio(a, b string) float64 {
	if a == b {
		return 100.0
	}

	ra := []rune(a)
	rb := []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 100.0
	}

	distance := levenshtein(ra, rb)
	return 100.0 * (1.0 - float64(distance)/float64(maxLen))
}

// TokenSetRatio compares two strings as sets of whitespace-delimited tokens,
// invariant to word order and duplicated tokens. Result is in [0, 100].
func TokenSetRatio(a, b string) float64 {
	tokensA := tokenSet(a)
	tokensB := tokenSet(b)

	if len(tokensA) == 0 && len(tokensB) == 0 {
		return 100.0
	}
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0.0
	}

	var intersection, onlyA, onlyB []string
	for tok := range tokensA {
		if _, ok := tokensB[tok]; ok {
			intersection = append(intersection, tok)
		} else {
			onlyA = append(onlyA, tok)
		}
	}
	for tok := range tokensB {
		if _, ok := tokensA[tok]; !ok {
			onlyB = append(onlyB, tok)
		}
	}

	sort.Strings(intersection)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	base := strings.Join(intersection, " ")
	combinedA := strings.TrimSpace(base + " " + strings.Join(onlyA, " "))
	combinedB := strings.TrimSpace(base + " " + strings.Join(onlyB, " "))

	best := Ratio(base, combinedA)
	if s := Ratio(base, combinedB); s > best {
		best = s
	}
	if s := Ratio(combinedA, combinedB); s > best {
		best = s
	}
	return best
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(s) {
		set[tok] = struct{}{}
	}
	return set
}

func levenshtein(ra, rb []rune) int {
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := 0; j <= len(rb); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 0
			if ra[i-1] != rb[j-1] {
				cost = 1
			}
			curr[j] = minOf(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		copy(prev, curr)
	}

	return prev[len(rb)]
}

func minOf(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

var pinyinArgs = func() pinyin.Args {
	a := pinyin.NewArgs()
	a.Fallback = func(r rune, _ pinyin.Args) []string {
		return []string{string(r)}
	}
	return a
}()

// PinyinForm transliterates Han characters to space-separated pinyin
// syllables, passing other characters through unchanged. Used as a fallback
// when comparing a CJK artist name against a romanized one.
func PinyinForm(s string) string {
	if !ContainsCJK(s) {
		return s
	}

	var b strings.Builder
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			syllables := pinyin.SinglePinyin(r, pinyinArgs)
			if len(syllables) > 0 {
				b.WriteRune(' ')
				b.WriteString(syllables[0])
				b.WriteRune(' ')
				continue
			}
		}
		b.WriteRune(r)
	}

	out := whitespaceRegex.ReplaceAllString(b.String(), " ")
	return strings.TrimSpace(out)
}
