package patch

import (
	"sort"
	"sync"
)

// Snippets holds named code snippets captured from model responses so
// they can be reinserted into prompts without reloading whole files.
type Snippets struct {
	mu       sync.Mutex
	snippets map[string]string
}

// NewSnippets creates an empty snippet store.
func NewSnippets() *Snippets {
	return &Snippets{snippets: make(map[string]string)}
}

// Save stores code under name, replacing any previous snippet.
func (s *Snippets) Save(name, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snippets[name] = code
}

// Get returns the snippet for name.
func (s *Snippets) Get(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.snippets[name]
	return code, ok
}

// Delete removes the snippet for name, reporting whether it existed.
func (s *Snippets) Delete(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.snippets[name]
	delete(s.snippets, name)
	return ok
}

// Names returns the stored snippet names in sorted order.
func (s *Snippets) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.snippets))
	for name := range s.snippets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ContextBlock formats a snippet with its name as a header, matching the
// entry header convention used in the session context.
func (s *Snippets) ContextBlock(name string) (string, bool) {
	code, ok := s.Get(name)
	if !ok {
		return "", false
	}
	return "[SNIPPET] " + name + "\n" + code, true
}
