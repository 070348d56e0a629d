// Package truncate provides token-aware text truncation for bounding a
// single oversized file before it enters the session context.
package truncate

import (
	"strings"

	"github.com/fuwadog/patchpilot/tokens"
)

// Strategy defines where content is removed from.
type Strategy int

const (
	// FromMiddle removes content from the middle, keeping head and tail.
	// This is the default for file content: imports/declarations at the
	// top and recent code at the bottom tend to matter most.
	FromMiddle Strategy = iota

	// FromEnd removes content from the end.
	FromEnd
)

// DefaultMiddleMarker is inserted where middle content was removed.
const DefaultMiddleMarker = "\n\n/* ...TRUNCATED... (tail follows) */\n\n"

// DefaultEndMarker is appended after end truncation.
const DefaultEndMarker = "\n…[truncated]"

// Truncator truncates text to fit within token limits.
type Truncator struct {
	counter  tokens.Counter
	strategy Strategy
	marker   string
}

// New creates a truncator with the given strategy and its default marker.
func New(strategy Strategy) *Truncator {
	marker := DefaultMiddleMarker
	if strategy == FromEnd {
		marker = DefaultEndMarker
	}
	return &Truncator{
		counter:  tokens.NewEstimatingCounter(),
		strategy: strategy,
		marker:   marker,
	}
}

// WithCounter sets a custom token counter.
func (t *Truncator) WithCounter(counter tokens.Counter) *Truncator {
	t.counter = counter
	return t
}

// WithMarker sets a custom truncation marker.
func (t *Truncator) WithMarker(marker string) *Truncator {
	t.marker = marker
	return t
}

// Truncate reduces text to fit within maxTokens. Returns the possibly
// truncated text and whether truncation occurred.
func (t *Truncator) Truncate(text string, maxTokens int) (string, bool) {
	if t.counter.FitsInLimit(text, maxTokens) {
		return text, false
	}

	switch t.strategy {
	case FromEnd:
		return t.truncateEnd(text, maxTokens), true
	default:
		return t.truncateMiddle(text, maxTokens), true
	}
}

// truncateMiddle keeps the head and tail of the text, dropping the middle.
func (t *Truncator) truncateMiddle(text string, maxTokens int) string {
	target := maxTokens - t.counter.Count(t.marker)
	if target <= 0 {
		return t.marker
	}

	runes := []rune(text)
	half := target / 2

	head := prefixForTokens(t.counter, runes, half)
	tail := suffixForTokens(t.counter, runes, target-half)
	if head+tail > len(runes) {
		tail = len(runes) - head
	}

	var sb strings.Builder
	sb.WriteString(string(runes[:head]))
	sb.WriteString(t.marker)
	sb.WriteString(string(runes[len(runes)-tail:]))
	return sb.String()
}

// truncateEnd keeps the longest prefix that fits.
func (t *Truncator) truncateEnd(text string, maxTokens int) string {
	target := maxTokens - t.counter.Count(t.marker)
	if target <= 0 {
		return t.marker
	}

	runes := []rune(text)
	keep := prefixForTokens(t.counter, runes, target)
	if keep == 0 {
		return t.marker
	}
	return string(runes[:keep]) + t.marker
}

// prefixForTokens finds the longest rune prefix within the token limit
// by binary search.
func prefixForTokens(counter tokens.Counter, runes []rune, maxTokens int) int {
	low, high := 0, len(runes)
	for low < high {
		mid := (low + high + 1) / 2
		if counter.FitsInLimit(string(runes[:mid]), maxTokens) {
			low = mid
		} else {
			high = mid - 1
		}
	}
	return low
}

// suffixForTokens finds the longest rune suffix within the token limit.
func suffixForTokens(counter tokens.Counter, runes []rune, maxTokens int) int {
	low, high := 0, len(runes)
	for low < high {
		mid := (low + high + 1) / 2
		if counter.FitsInLimit(string(runes[len(runes)-mid:]), maxTokens) {
			low = mid
		} else {
			high = mid - 1
		}
	}
	return low
}
