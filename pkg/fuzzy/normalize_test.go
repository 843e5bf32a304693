package fuzzy

import (
	"reflect"
	"testing"
)

func newTestNormalizer(t *testing.T, cacheSize int) *Normalizer {
	t.Helper()
	n, err := NewNormalizer(DefaultOptions(cacheSize))
	if err != nil {
		t.Fatalf("NewNormalizer() error = %v", err)
	}
	return n
}

func TestNormalize(t *testing.T) {
	n := newTestNormalizer(t, 0)

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercase", "HELLO", "hello"},
		{"whitespace collapse", "  Hello   World  ", "hello world"},
		{"full-width latin", "Ｈｅｌｌｏ　Ｗｏｒｌｄ", "hello world"},
		{"traditional to simplified", "戀愛循環", "恋爱循环"},
		{"mixed cjk latin", "戀愛ing - Remastered", "恋爱ing"},
		{"remaster suffix", "Yesterday - Remastered 2009", "yesterday"},
		{"remaster year first", "Yesterday - 2009 Remaster", "yesterday"},
		{"stacked remaster suffixes", "Song - Remastered - Remastered", "song"},
		{"mixed stacked suffixes", "Song - Remastered - Radio Edit - Remastered", "song"},
		{"radio edit suffix", "Titanium - Radio Edit", "titanium"},
		{"single version suffix", "Creep - Single Version", "creep"},
		{"brackets preserved", "Hello (Acoustic Version)", "hello (acoustic version)"},
		{"empty", "", ""},
		{"only whitespace", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := n.Normalize(tt.input); got != tt.expected {
				t.Errorf("Normalize(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	n := newTestNormalizer(t, 0)

	inputs := []string{
		"Hello World",
		"Yesterday - Remastered 2009",
		"Song - Remastered - Remastered",
		"Song - Remastered - Radio Edit - Remastered",
		"戀愛循環　（ＬＩＶＥ）",
		"Titanium - Radio Edit",
		"  spaced   out  ",
	}

	for _, input := range inputs {
		once := n.Normalize(input)
		twice := n.Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: first %q, second %q", input, once, twice)
		}
	}
}

func TestNormalizeCache(t *testing.T) {
	n := newTestNormalizer(t, 16)

	if got := n.CacheLen(); got != 0 {
		t.Fatalf("CacheLen() = %d before any call, expected 0", got)
	}

	first := n.Normalize("Hello World")
	if got := n.CacheLen(); got != 1 {
		t.Errorf("CacheLen() = %d after one call, expected 1", got)
	}

	second := n.Normalize("Hello World")
	if first != second {
		t.Errorf("cached result %q differs from first %q", second, first)
	}
	if got := n.CacheLen(); got != 1 {
		t.Errorf("CacheLen() = %d after repeat call, expected 1", got)
	}
}

func TestNormalizeCacheDisabled(t *testing.T) {
	n := newTestNormalizer(t, 0)

	n.Normalize("Hello")
	if got := n.CacheLen(); got != 0 {
		t.Errorf("CacheLen() = %d with cache disabled, expected 0", got)
	}
}

func TestSplitMainAndBrackets(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		expectedMain string
		expectedGrps []string
	}{
		{"no brackets", "hello world", "hello world", nil},
		{"single group", "hello (acoustic)", "hello", []string{"acoustic"}},
		{"two groups", "hello (acoustic) [live]", "hello", []string{"acoustic", "live"}},
		{"full-width brackets", "晴天（翻唱）", "晴天", []string{"翻唱"}},
		{"cjk corner brackets", "晴天【钢琴版】", "晴天", []string{"钢琴版"}},
		{"unterminated", "hello (feat. adele", "hello", []string{"feat. adele"}},
		{"only brackets", "(acoustic)", "", []string{"acoustic"}},
		{"empty group dropped", "hello ()", "hello", nil},
		{"whitespace re-collapsed", "hello  (x)  world", "hello world", []string{"x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			main, groups := SplitMainAndBrackets(tt.input)
			if main != tt.expectedMain {
				t.Errorf("SplitMainAndBrackets(%q) main = %q, expected %q", tt.input, main, tt.expectedMain)
			}
			if !reflect.DeepEqual(groups, tt.expectedGrps) {
				t.Errorf("SplitMainAndBrackets(%q) groups = %v, expected %v", tt.input, groups, tt.expectedGrps)
			}
		})
	}
}

func TestContainsCJK(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"hello", false},
		{"周杰伦", true},
		{"jay 周", true},
		{"", false},
		{"こんにちは", false}, // kana is not Han
	}

	for _, tt := range tests {
		if got := ContainsCJK(tt.input); got != tt.expected {
			t.Errorf("ContainsCJK(%q) = %v, expected %v", tt.input, got, tt.expected)
		}
	}
}
