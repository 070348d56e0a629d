// Package context manages the token-budgeted session memory for a chat
// session: which file contents are available to the model, which are
// pinned against eviction, and how the total is kept within the model's
// context window.
//
// The eviction policy is LRU-by-insertion: entries are evicted oldest
// first, where re-adding an identifier counts as a touch. Access order is
// irrelevant because every materialized entry is re-read on every turn.
// Pinning is the only mechanism that protects an entry from eviction, and
// pinned content still counts toward the budget.
package context
