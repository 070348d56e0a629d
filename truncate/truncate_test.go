package truncate

import (
	"strings"
	"testing"

	"github.com/fuwadog/patchpilot/tokens"
)

func TestTruncate_FitsUnchanged(t *testing.T) {
	tr := New(FromMiddle)
	text := "short text"

	got, truncated := tr.Truncate(text, 100)
	if truncated {
		t.Error("expected no truncation")
	}
	if got != text {
		t.Errorf("text changed: %q", got)
	}
}

func TestTruncate_MiddleKeepsHeadAndTail(t *testing.T) {
	tr := New(FromMiddle)
	head := strings.Repeat("H", 400)
	tail := strings.Repeat("T", 400)
	text := head + strings.Repeat("M", 4000) + tail

	got, truncated := tr.Truncate(text, 100)
	if !truncated {
		t.Fatal("expected truncation")
	}
	if !strings.Contains(got, DefaultMiddleMarker) {
		t.Error("expected middle marker in output")
	}
	if !strings.HasPrefix(got, "H") {
		t.Error("expected head to survive")
	}
	if !strings.HasSuffix(got, "T") {
		t.Error("expected tail to survive")
	}

	counter := tokens.NewEstimatingCounter()
	if n := counter.Count(got); n > 100 {
		t.Errorf("truncated text is %d tokens, budget 100", n)
	}
}

func TestTruncate_End(t *testing.T) {
	tr := New(FromEnd)
	text := strings.Repeat("abcd", 200) // 200 tokens

	got, truncated := tr.Truncate(text, 50)
	if !truncated {
		t.Fatal("expected truncation")
	}
	if !strings.HasSuffix(got, DefaultEndMarker) {
		t.Error("expected end marker as suffix")
	}
	counter := tokens.NewEstimatingCounter()
	if n := counter.Count(got); n > 50 {
		t.Errorf("truncated text is %d tokens, budget 50", n)
	}
}

func TestTruncate_TinyBudget(t *testing.T) {
	tr := New(FromMiddle)
	got, truncated := tr.Truncate(strings.Repeat("a", 1000), 1)
	if !truncated {
		t.Fatal("expected truncation")
	}
	if got != DefaultMiddleMarker {
		t.Errorf("expected bare marker for unmeetable budget, got %q", got)
	}
}

func TestTruncate_Deterministic(t *testing.T) {
	tr := New(FromMiddle)
	text := strings.Repeat("line of code\n", 500)

	first, _ := tr.Truncate(text, 200)
	second, _ := tr.Truncate(text, 200)
	if first != second {
		t.Error("truncation must be deterministic")
	}
}

func TestWithMarker(t *testing.T) {
	tr := New(FromEnd).WithMarker("<cut>")
	got, _ := tr.Truncate(strings.Repeat("a", 1000), 20)
	if !strings.HasSuffix(got, "<cut>") {
		t.Errorf("expected custom marker, got %q", got)
	}
}
