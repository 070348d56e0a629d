package context

import (
	"iter"
	"sort"
	"strings"
	"sync"

	"github.com/fuwadog/patchpilot/tokens"
)

// entry is one loaded file's contribution to the session context.
type entry struct {
	id      string
	content string
	tokens  int
	pinned  bool
	seq     uint64 // insertion sequence, eviction tie-break
}

// EntryInfo is a read-only view of an entry for inspection.
type EntryInfo struct {
	ID     string
	Tokens int
	Pinned bool
}

// Usage accumulates token counts reported by the provider.
// It is informational only and never feeds back into trimming.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Total returns the combined prompt and completion token count.
func (u Usage) Total() int {
	return u.PromptTokens + u.CompletionTokens
}

// Stats is a point-in-time snapshot of the session context.
type Stats struct {
	TotalTokens int
	MaxTokens   int
	EntryCount  int
	PinnedCount int
	PinLimit    int
	Usage       Usage

	// BudgetExceeded is set when the materialized total exceeds MaxTokens
	// with no unpinned entries left to evict. Pinned content is never
	// auto-evicted, so the condition is surfaced instead of resolved.
	BudgetExceeded bool

	Entries []EntryInfo
}

// Manager owns the session context: loaded file entries, the token budget,
// pinning, and the eviction policy that keeps the materialized context
// within the configured window.
//
// All operations are serialized behind an internal mutex, so a Manager is
// safe to share with a concurrent front end (trim and add interact on
// shared totals and must not interleave).
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry
	counter tokens.Counter
	seq     uint64

	// Configuration; immutable for the manager's lifetime, survives Reset.
	maxTokens int
	pinLimit  int

	usage Usage
}

// NewManager creates a session context manager with the given token budget
// and pinned-entry cap. If counter is nil, the default estimating counter
// is used.
func NewManager(maxTokens, pinLimit int, counter tokens.Counter) *Manager {
	if counter == nil {
		counter = tokens.NewEstimatingCounter()
	}
	return &Manager{
		entries:   make(map[string]*entry),
		counter:   counter,
		maxTokens: maxTokens,
		pinLimit:  pinLimit,
	}
}

// Add inserts or replaces the entry for id. Replacing resets the entry's
// insertion order to most-recent, acting as a touch; the pinned flag is
// preserved. If the resulting total exceeds the budget, unpinned entries
// are evicted oldest-first until it fits. Add never fails on size: when
// pinned content alone exceeds the budget the entry is still stored and
// the condition is reported through Stats.
//
// Returns the identifiers evicted to restore the budget, in eviction order.
func (m *Manager) Add(id, content string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	if e, ok := m.entries[id]; ok {
		e.content = content
		e.tokens = m.counter.Count(content)
		e.seq = m.seq
	} else {
		m.entries[id] = &entry{
			id:      id,
			content: content,
			tokens:  m.counter.Count(content),
			seq:     m.seq,
		}
	}

	return m.trim()
}

// Pin marks an existing entry as exempt from eviction. Pinning an already
// pinned entry succeeds without effect. Returns ErrNotFound for unknown
// identifiers and ErrPinLimitExceeded when the cap is reached; the cap is
// enforced rather than evicting another pin.
func (m *Manager) Pin(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return ErrNotFound
	}
	if e.pinned {
		return nil
	}
	if m.pinnedCount() >= m.pinLimit {
		return ErrPinLimitExceeded
	}
	e.pinned = true
	return nil
}

// Unpin clears the pinned flag. The entry re-enters the eviction pool at
// its original insertion order, not as most-recent.
func (m *Manager) Unpin(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return ErrNotFound
	}
	e.pinned = false
	return nil
}

// Remove deletes the entry for id. Pinned entries are skipped unless force
// is set. Returns true if the entry was removed.
func (m *Manager) Remove(id string, force bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return false
	}
	if e.pinned && !force {
		return false
	}
	delete(m.entries, id)
	return true
}

// IsPinned reports whether the entry for id exists and is pinned.
func (m *Manager) IsPinned(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	return ok && e.pinned
}

// Contains reports whether an entry exists for id.
func (m *Manager) Contains(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.entries[id]
	return ok
}

// Materialize produces the context blob sent to the model: pinned entries
// first in insertion order among themselves, then unpinned entries in
// insertion order, each wrapped with its identifier as a header.
//
// Materialize is deterministic and side-effect-free; it never trims.
// Callers rely on Add having already enforced the budget.
func (m *Manager) Materialize() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ordered := m.displayOrder()
	var sb strings.Builder
	for i, e := range ordered {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("[PROJECT_FILE] ")
		sb.WriteString(e.id)
		sb.WriteString("\n")
		sb.WriteString(e.content)
	}
	return sb.String()
}

// ReportUsage adds a provider-reported usage pair to the running total.
// Purely observational; trimming is driven only by the entry budget.
func (m *Manager) ReportUsage(promptTokens, completionTokens int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.usage.PromptTokens += promptTokens
	m.usage.CompletionTokens += completionTokens
}

// Usage returns the cumulative provider-reported usage.
func (m *Manager) Usage() Usage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usage
}

// Reset discards all entries and cumulative usage. The token budget and
// pin limit are configuration and survive.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]*entry)
	m.usage = Usage{}
	m.seq = 0
}

// Entries returns a restartable sequence of entry views in display order
// (pinned first). Each iteration observes a consistent snapshot.
func (m *Manager) Entries() iter.Seq[EntryInfo] {
	return func(yield func(EntryInfo) bool) {
		m.mu.Lock()
		ordered := m.displayOrder()
		infos := make([]EntryInfo, len(ordered))
		for i, e := range ordered {
			infos[i] = EntryInfo{ID: e.id, Tokens: e.tokens, Pinned: e.pinned}
		}
		m.mu.Unlock()

		for _, info := range infos {
			if !yield(info) {
				return
			}
		}
	}
}

// Stats returns a snapshot of totals, counts, and per-entry rows.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	ordered := m.displayOrder()
	infos := make([]EntryInfo, len(ordered))
	for i, e := range ordered {
		infos[i] = EntryInfo{ID: e.id, Tokens: e.tokens, Pinned: e.pinned}
	}

	total := m.totalTokens()
	return Stats{
		TotalTokens:    total,
		MaxTokens:      m.maxTokens,
		EntryCount:     len(m.entries),
		PinnedCount:    m.pinnedCount(),
		PinLimit:       m.pinLimit,
		Usage:          m.usage,
		BudgetExceeded: total > m.maxTokens,
		Entries:        infos,
	}
}

// TotalTokens returns the estimated token total across all entries.
func (m *Manager) TotalTokens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalTokens()
}

// MaxTokens returns the configured token budget.
func (m *Manager) MaxTokens() int { return m.maxTokens }

// PinLimit returns the configured pinned-entry cap.
func (m *Manager) PinLimit() int { return m.pinLimit }

// Len returns the number of entries in the session.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// trim evicts unpinned entries oldest-first until the total fits the
// budget or no candidates remain. Eviction removes whole entries: a
// smaller number of complete files beats truncated fragments. Caller
// must hold the mutex.
func (m *Manager) trim() []string {
	if m.totalTokens() <= m.maxTokens {
		return nil
	}

	candidates := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		if !e.pinned {
			candidates = append(candidates, e)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].seq < candidates[j].seq
	})

	var evicted []string
	for _, e := range candidates {
		if m.totalTokens() <= m.maxTokens {
			break
		}
		delete(m.entries, e.id)
		evicted = append(evicted, e.id)
	}
	return evicted
}

// totalTokens sums estimated tokens over all entries. Caller must hold
// the mutex.
func (m *Manager) totalTokens() int {
	total := 0
	for _, e := range m.entries {
		total += e.tokens
	}
	return total
}

// pinnedCount counts pinned entries. Caller must hold the mutex.
func (m *Manager) pinnedCount() int {
	n := 0
	for _, e := range m.entries {
		if e.pinned {
			n++
		}
	}
	return n
}

// displayOrder returns entries pinned-first, each group in insertion
// order. Caller must hold the mutex.
func (m *Manager) displayOrder() []*entry {
	pinned := make([]*entry, 0, len(m.entries))
	unpinned := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		if e.pinned {
			pinned = append(pinned, e)
		} else {
			unpinned = append(unpinned, e)
		}
	}
	bySeq := func(s []*entry) {
		sort.Slice(s, func(i, j int) bool { return s[i].seq < s[j].seq })
	}
	bySeq(pinned)
	bySeq(unpinned)
	return append(pinned, unpinned...)
}
