package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/JonMunkholm/stmtnorm/internal/core"
)

// MemoryLedger keeps entries in a map. Nothing survives the process.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries map[string]core.LedgerEntry
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[string]core.LedgerEntry)}
}

func (l *MemoryLedger) Lookup(_ context.Context, fingerprint string) (core.LedgerEntry, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[fingerprint]
	return e, ok, nil
}

func (l *MemoryLedger) Append(_ context.Context, entry core.LedgerEntry) (core.LedgerEntry, bool, error) {
	if err := validate(entry); err != nil {
		return core.LedgerEntry{}, false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.entries[entry.Fingerprint]; ok {
		return existing, false, nil
	}
	l.entries[entry.Fingerprint] = entry
	return entry, true, nil
}

func (l *MemoryLedger) List(_ context.Context) ([]core.LedgerEntry, error) {
	l.mu.RLock()
	out := make([]core.LedgerEntry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e)
	}
	l.mu.RUnlock()

	sortEntries(out)
	return out, nil
}

// sortEntries orders entries by processing time, then fingerprint.
func sortEntries(entries []core.LedgerEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].ProcessedAt.Equal(entries[j].ProcessedAt) {
			return entries[i].ProcessedAt.Before(entries[j].ProcessedAt)
		}
		return entries[i].Fingerprint < entries[j].Fingerprint
	})
}
