package risk

import (
	"sync"
	"time"
)

type historyEntry struct {
	at  time.Time
	key string // user|symbol, so repeated signals on one asset count once
}

// SignalHistory tracks admitted signal timestamps per correlation
// group. Counts are deduplicated by key within the query window, and
// entries older than the retention window are pruned lazily on access
// rather than by a background sweeper.
type SignalHistory struct {
	mu        sync.Mutex
	byGroup   map[string][]historyEntry
	retention time.Duration
}

func NewSignalHistory(retention time.Duration) *SignalHistory {
	return &SignalHistory{
		byGroup:   make(map[string][]historyEntry),
		retention: retention,
	}
}

// Record notes an admitted signal for a group.
func (h *SignalHistory) Record(group, key string, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.byGroup[group] = append(h.prune(group, at), historyEntry{at: at, key: key})
}

// CountSince returns how many distinct keys the group saw at or after
// since.
func (h *SignalHistory) CountSince(group string, since, now time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	entries := h.prune(group, now)
	h.byGroup[group] = entries
	seen := make(map[string]struct{})
	for _, e := range entries {
		if !e.at.Before(since) {
			seen[e.key] = struct{}{}
		}
	}
	return len(seen)
}

// prune drops entries older than the retention window. Caller holds
// the lock.
func (h *SignalHistory) prune(group string, now time.Time) []historyEntry {
	entries := h.byGroup[group]
	cutoff := now.Add(-h.retention)
	i := 0
	for i < len(entries) && entries[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		entries = append([]historyEntry(nil), entries[i:]...)
	}
	return entries
}
