package fuzzy

import (
	"math"
	"testing"
)

func TestRatio(t *testing.T) {
	tests := []struct {
		name     string
		a, b     string
		expected float64
	}{
		{"identical", "hello", "hello", 100.0},
		{"both empty", "", "", 100.0},
		{"one empty", "", "abc", 0.0},
		{"kitten sitting", "kitten", "sitting", 100.0 * (1.0 - 3.0/7.0)},
		{"disjoint", "abc", "xyz", 0.0},
		{"single substitution", "cat", "car", 100.0 * (1.0 - 1.0/3.0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Ratio(tt.a, tt.b)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("Ratio(%q, %q) = %v, expected %v", tt.a, tt.b, got, tt.expected)
			}
		})
	}
}

func TestRatioRuneBased(t *testing.T) {
	// One character differs out of three; byte-based comparison would be
	// much harsher on multi-byte runes.
	got := Ratio("周杰伦", "周杰倫")
	expected := 100.0 * (1.0 - 1.0/3.0)
	if math.Abs(got-expected) > 1e-9 {
		t.Errorf("Ratio() = %v, expected %v", got, expected)
	}
}

func TestTokenSetRatio(t *testing.T) {
	tests := []struct {
		name     string
		a, b     string
		expected float64
	}{
		{"identical", "hello world", "hello world", 100.0},
		{"word order", "world hello", "hello world", 100.0},
		{"duplicate tokens", "hello hello world", "hello world", 100.0},
		{"subset", "hello world", "hello", 100.0},
		{"disjoint", "abc", "xyz", 0.0},
		{"both empty", "", "", 100.0},
		{"one empty", "hello", "", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TokenSetRatio(tt.a, tt.b)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("TokenSetRatio(%q, %q) = %v, expected %v", tt.a, tt.b, got, tt.expected)
			}
		})
	}
}

func TestTokenSetRatioSymmetricAndBounded(t *testing.T) {
	pairs := [][2]string{
		{"hello world", "hello there"},
		{"a b c", "c b"},
		{"one", "two three"},
		{"晴天 周杰伦", "周杰伦 晴天 live"},
	}

	for _, p := range pairs {
		ab := TokenSetRatio(p[0], p[1])
		ba := TokenSetRatio(p[1], p[0])
		if math.Abs(ab-ba) > 1e-9 {
			t.Errorf("TokenSetRatio(%q, %q) = %v but reversed = %v", p[0], p[1], ab, ba)
		}
		if ab < 0 || ab > 100 {
			t.Errorf("TokenSetRatio(%q, %q) = %v out of [0, 100]", p[0], p[1], ab)
		}
	}
}

func TestPinyinForm(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"pure han", "周杰伦", "zhou jie lun"},
		{"mixed", "周杰伦 jay", "zhou jie lun jay"},
		{"no han passthrough", "taylor swift", "taylor swift"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PinyinForm(tt.input); got != tt.expected {
				t.Errorf("PinyinForm(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestPinyinFormBridgesScripts(t *testing.T) {
	han := PinyinForm("周杰伦")
	if got := TokenSetRatio(han, "zhou jie lun"); got != 100.0 {
		t.Errorf("TokenSetRatio(%q, %q) = %v, expected 100", han, "zhou jie lun", got)
	}
}
