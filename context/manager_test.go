package context

import (
	"strings"
	"testing"
)

// charCounter counts one token per byte, making test sizes exact.
type charCounter struct{}

func (charCounter) Count(text string) int                  { return len(text) }
func (charCounter) FitsInLimit(text string, limit int) bool { return len(text) <= limit }

func content(n int) string {
	return strings.Repeat("x", n)
}

func TestAdd_WithinBudget(t *testing.T) {
	m := NewManager(100, 2, charCounter{})

	if evicted := m.Add("a", content(40)); evicted != nil {
		t.Errorf("expected no evictions, got %v", evicted)
	}
	if evicted := m.Add("b", content(40)); evicted != nil {
		t.Errorf("expected no evictions, got %v", evicted)
	}
	if got := m.TotalTokens(); got != 80 {
		t.Errorf("TotalTokens = %d, expected 80", got)
	}
}

func TestAdd_EvictsOldestFirst(t *testing.T) {
	// Budget fits only two 40-token entries.
	m := NewManager(100, 2, charCounter{})
	m.Add("a", content(40))
	m.Add("b", content(40))

	evicted := m.Add("c", content(40))
	if len(evicted) != 1 || evicted[0] != "a" {
		t.Fatalf("expected eviction of [a], got %v", evicted)
	}
	if m.Contains("a") {
		t.Error("entry a should have been evicted")
	}
	if !m.Contains("b") || !m.Contains("c") {
		t.Error("entries b and c should remain")
	}
	if got := m.TotalTokens(); got != 80 {
		t.Errorf("TotalTokens = %d, expected 80", got)
	}
}

func TestAdd_ReaddTouchesEntry(t *testing.T) {
	m := NewManager(100, 2, charCounter{})
	m.Add("a", content(40))
	m.Add("b", content(40))

	// Touch a: it becomes most recent, so b is now oldest.
	m.Add("a", content(40))

	evicted := m.Add("c", content(40))
	if len(evicted) != 1 || evicted[0] != "b" {
		t.Fatalf("expected eviction of [b] after touching a, got %v", evicted)
	}
}

func TestAdd_IdempotentReAdd(t *testing.T) {
	m := NewManager(100, 2, charCounter{})
	body := content(40)

	m.Add("x", body)
	before := m.TotalTokens()
	m.Add("x", body)

	if got := m.TotalTokens(); got != before {
		t.Errorf("TotalTokens changed on identical re-add: %d != %d", got, before)
	}
	if got := m.Len(); got != 1 {
		t.Errorf("Len = %d, expected 1 (no duplicate entry)", got)
	}
}

func TestAdd_ReplaceChangesAccounting(t *testing.T) {
	m := NewManager(100, 2, charCounter{})
	m.Add("x", content(40))
	m.Add("x", content(60))

	if got := m.TotalTokens(); got != 60 {
		t.Errorf("TotalTokens = %d, expected 60 after replacement", got)
	}
}

func TestAdd_EvictsNewestEntryWhenOnlyCandidate(t *testing.T) {
	// a and b pinned at 40 each; adding unpinned c (40) overflows the
	// 100-token budget. c is the only evictable candidate, so trim
	// removes it and the budget is restored.
	m := NewManager(100, 2, charCounter{})
	m.Add("a", content(40))
	m.Add("b", content(40))
	if err := m.Pin("a"); err != nil {
		t.Fatal(err)
	}
	if err := m.Pin("b"); err != nil {
		t.Fatal(err)
	}

	evicted := m.Add("c", content(40))
	if len(evicted) != 1 || evicted[0] != "c" {
		t.Fatalf("expected eviction of [c], got %v", evicted)
	}
	if m.Stats().BudgetExceeded {
		t.Error("budget should be satisfiable after evicting c")
	}
	if got := m.TotalTokens(); got != 80 {
		t.Errorf("TotalTokens = %d, expected 80", got)
	}
}

func TestAdd_BudgetUnsatisfiable(t *testing.T) {
	// Pinned content alone exceeds the budget: nothing to evict, the
	// adds still succeed, and the condition is flagged. The state is
	// reached by growing entries after they were pinned, since replace
	// preserves the pinned flag.
	m := NewManager(100, 2, charCounter{})
	m.Add("a", content(40))
	m.Add("b", content(40))
	if err := m.Pin("a"); err != nil {
		t.Fatal(err)
	}
	if err := m.Pin("b"); err != nil {
		t.Fatal(err)
	}
	m.Add("a", content(60))
	m.Add("b", content(60))

	stats := m.Stats()
	if !stats.BudgetExceeded {
		t.Error("expected BudgetExceeded flag")
	}
	if stats.TotalTokens != 120 {
		t.Errorf("TotalTokens = %d, expected 120", stats.TotalTokens)
	}
	if !m.Contains("a") || !m.Contains("b") {
		t.Error("pinned entries must never be auto-evicted")
	}
}

func TestPin(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		m := NewManager(100, 2, charCounter{})
		if err := m.Pin("missing"); err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("limit enforced", func(t *testing.T) {
		m := NewManager(1000, 2, charCounter{})
		m.Add("a", content(10))
		m.Add("b", content(10))
		m.Add("c", content(10))

		if err := m.Pin("a"); err != nil {
			t.Fatal(err)
		}
		if err := m.Pin("b"); err != nil {
			t.Fatal(err)
		}
		if err := m.Pin("c"); err != ErrPinLimitExceeded {
			t.Errorf("expected ErrPinLimitExceeded, got %v", err)
		}
		if got := m.Stats().PinnedCount; got != 2 {
			t.Errorf("PinnedCount = %d, expected 2", got)
		}
	})

	t.Run("re-pin is a no-op", func(t *testing.T) {
		m := NewManager(1000, 1, charCounter{})
		m.Add("a", content(10))
		if err := m.Pin("a"); err != nil {
			t.Fatal(err)
		}
		if err := m.Pin("a"); err != nil {
			t.Errorf("re-pinning a pinned entry should succeed, got %v", err)
		}
	})
}

func TestPinnedEntryNeverEvicted(t *testing.T) {
	m := NewManager(100, 2, charCounter{})
	m.Add("a", content(40)) // oldest
	if err := m.Pin("a"); err != nil {
		t.Fatal(err)
	}
	m.Add("b", content(40))
	m.Add("c", content(40))

	if !m.Contains("a") {
		t.Error("pinned entry a must survive trimming")
	}
	if m.Contains("b") {
		t.Error("unpinned b should have been evicted instead of pinned a")
	}
}

func TestUnpin(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		m := NewManager(100, 2, charCounter{})
		if err := m.Unpin("missing"); err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("restores original insertion order", func(t *testing.T) {
		m := NewManager(120, 2, charCounter{})
		m.Add("a", content(40))
		m.Add("b", content(40))
		if err := m.Pin("a"); err != nil {
			t.Fatal(err)
		}
		m.Add("c", content(40))
		if err := m.Unpin("a"); err != nil {
			t.Fatal(err)
		}

		// a re-enters the pool at its original (oldest) position, so
		// the next overflow evicts a, not b.
		evicted := m.Add("d", content(40))
		if len(evicted) == 0 || evicted[0] != "a" {
			t.Errorf("expected a evicted first after unpin, got %v", evicted)
		}
	})
}

func TestRemove(t *testing.T) {
	m := NewManager(1000, 2, charCounter{})
	m.Add("a", content(10))
	m.Add("b", content(10))
	if err := m.Pin("a"); err != nil {
		t.Fatal(err)
	}

	if m.Remove("a", false) {
		t.Error("removing a pinned entry without force should be skipped")
	}
	if !m.Remove("a", true) {
		t.Error("forced removal of a pinned entry should succeed")
	}
	if !m.Remove("b", false) {
		t.Error("removing an unpinned entry should succeed")
	}
	if m.Remove("missing", false) {
		t.Error("removing an unknown entry should report false")
	}
}

func TestMaterialize(t *testing.T) {
	m := NewManager(1000, 2, charCounter{})
	m.Add("one.go", "alpha")
	m.Add("two.go", "beta")
	m.Add("three.go", "gamma")
	if err := m.Pin("two.go"); err != nil {
		t.Fatal(err)
	}

	got := m.Materialize()
	want := "[PROJECT_FILE] two.go\nbeta\n\n" +
		"[PROJECT_FILE] one.go\nalpha\n\n" +
		"[PROJECT_FILE] three.go\ngamma"
	if got != want {
		t.Errorf("Materialize mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}

	// Side-effect free: repeated calls yield identical output.
	if again := m.Materialize(); again != got {
		t.Error("Materialize must be deterministic")
	}
}

func TestMaterialize_Empty(t *testing.T) {
	m := NewManager(100, 2, charCounter{})
	if got := m.Materialize(); got != "" {
		t.Errorf("expected empty blob, got %q", got)
	}
}

func TestReportUsage(t *testing.T) {
	m := NewManager(100, 2, charCounter{})
	m.ReportUsage(100, 20)
	m.ReportUsage(50, 10)

	u := m.Usage()
	if u.PromptTokens != 150 || u.CompletionTokens != 30 {
		t.Errorf("Usage = %+v, expected 150/30", u)
	}
	if u.Total() != 180 {
		t.Errorf("Total = %d, expected 180", u.Total())
	}

	// Usage never feeds back into trimming.
	m.Add("a", content(40))
	if !m.Contains("a") {
		t.Error("usage accounting must not trigger eviction")
	}
}

func TestReset(t *testing.T) {
	m := NewManager(100, 2, charCounter{})
	m.Add("a", content(40))
	m.ReportUsage(500, 100)

	m.Reset()

	if got := m.Len(); got != 0 {
		t.Errorf("Len = %d after reset, expected 0", got)
	}
	if u := m.Usage(); u != (Usage{}) {
		t.Errorf("Usage = %+v after reset, expected zero", u)
	}
	count := 0
	for range m.Entries() {
		count++
	}
	if count != 0 {
		t.Errorf("Entries yielded %d items after reset", count)
	}

	// Configuration survives reset.
	if m.MaxTokens() != 100 || m.PinLimit() != 2 {
		t.Error("configuration must survive reset")
	}
}

func TestEntries_DisplayOrderAndRestartable(t *testing.T) {
	m := NewManager(1000, 2, charCounter{})
	m.Add("a", content(10))
	m.Add("b", content(20))
	m.Add("c", content(30))
	if err := m.Pin("c"); err != nil {
		t.Fatal(err)
	}

	collect := func() []EntryInfo {
		var out []EntryInfo
		for info := range m.Entries() {
			out = append(out, info)
		}
		return out
	}

	first := collect()
	want := []EntryInfo{
		{ID: "c", Tokens: 30, Pinned: true},
		{ID: "a", Tokens: 10, Pinned: false},
		{ID: "b", Tokens: 20, Pinned: false},
	}
	if len(first) != len(want) {
		t.Fatalf("got %d entries, expected %d", len(first), len(want))
	}
	for i := range want {
		if first[i] != want[i] {
			t.Errorf("entry %d = %+v, expected %+v", i, first[i], want[i])
		}
	}

	// Restartable: a second iteration sees the same snapshot.
	second := collect()
	for i := range first {
		if second[i] != first[i] {
			t.Errorf("second iteration diverged at %d: %+v != %+v", i, second[i], first[i])
		}
	}

	// Early break must not wedge the manager.
	for range m.Entries() {
		break
	}
	m.Add("d", content(5))
}

func TestBudgetInvariantHoldsAcrossSequences(t *testing.T) {
	m := NewManager(200, 3, charCounter{})

	ops := []func(){
		func() { m.Add("a", content(90)) },
		func() { m.Add("b", content(90)) },
		func() { _ = m.Pin("a") },
		func() { m.Add("c", content(90)) },
		func() { _ = m.Unpin("a") },
		func() { m.Add("d", content(150)) },
		func() { m.Add("e", content(60)) },
	}

	for i, op := range ops {
		op()
		stats := m.Stats()
		if stats.BudgetExceeded {
			continue // only legal when pinned-only content exceeds budget
		}
		if stats.TotalTokens > stats.MaxTokens {
			t.Fatalf("op %d: total %d exceeds budget %d without flag",
				i, stats.TotalTokens, stats.MaxTokens)
		}
	}
}
