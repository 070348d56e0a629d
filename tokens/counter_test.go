package tokens

import (
	"strings"
	"testing"
)

func TestEstimatingCounter_Count(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected int
	}{
		{
			name:     "empty string",
			text:     "",
			expected: 0,
		},
		{
			name:     "short text",
			text:     "Hello, world!", // 13 chars / 4 = 3.25 -> 3
			expected: 3,
		},
		{
			name:     "exactly four chars",
			text:     "abcd",
			expected: 1,
		},
		{
			name:     "rounds to nearest",
			text:     "abcdef", // 6 / 4 = 1.5 -> 2
			expected: 2,
		},
		{
			name:     "long text",
			text:     strings.Repeat("a", 400),
			expected: 100,
		},
		{
			name:     "multibyte runes counted once",
			text:     "日本語テスト言語", // 8 runes / 4 = 2
			expected: 2,
		},
	}

	counter := NewEstimatingCounter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := counter.Count(tt.text); got != tt.expected {
				t.Errorf("Count(%q) = %d, expected %d", tt.text, got, tt.expected)
			}
		})
	}
}

func TestEstimatingCounter_Deterministic(t *testing.T) {
	counter := NewEstimatingCounter()
	text := strings.Repeat("func main() {}\n", 50)

	first := counter.Count(text)
	for i := 0; i < 10; i++ {
		if got := counter.Count(text); got != first {
			t.Fatalf("Count changed between calls: %d != %d", got, first)
		}
	}
}

func TestEstimatingCounter_FitsInLimit(t *testing.T) {
	counter := NewEstimatingCounter()

	text := strings.Repeat("a", 40) // 10 tokens
	if !counter.FitsInLimit(text, 10) {
		t.Error("expected text to fit in limit of 10")
	}
	if counter.FitsInLimit(text, 9) {
		t.Error("expected text to exceed limit of 9")
	}
}

func TestNewEstimatingCounterWithRatio(t *testing.T) {
	tests := []struct {
		name     string
		ratio    float64
		expected float64
	}{
		{"custom ratio", 3.5, 3.5},
		{"zero uses default", 0, DefaultCharsPerToken},
		{"negative uses default", -1, DefaultCharsPerToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewEstimatingCounterWithRatio(tt.ratio)
			if c.CharsPerToken != tt.expected {
				t.Errorf("CharsPerToken = %v, expected %v", c.CharsPerToken, tt.expected)
			}
		})
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens("abcdabcd"); got != 2 {
		t.Errorf("EstimateTokens = %d, expected 2", got)
	}
}
