// Package history keeps the capped list of past classifications and the
// aggregate counters shown in the stats panel.
package history

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Cap is the maximum number of retained entries; the oldest are evicted
// first.
const Cap = 50

// Fixed storage keys. Changing them orphans previously persisted state.
const (
	HistoryKey = "hotdog:history"
	StatsKey   = "hotdog:stats"
)

// Entry is one retained classification outcome. Immutable once recorded.
type Entry struct {
	ImageSource string `json:"imageSource"`
	Label       string `json:"verdictLabel"`
	IsHotdog    bool   `json:"isPositive"`
	Description string `json:"description,omitempty"`
	Timestamp   string `json:"timestamp"`
}

// Stats are the running counters over retained entries.
type Stats struct {
	Total         int `json:"total"`
	PositiveCount int `json:"positiveCount"`
}

// Store is the persistence surface the aggregator writes through to.
type Store interface {
	Put(ctx context.Context, key string, value any) error
	Get(ctx context.Context, key string, out any) (bool, error)
}

// Aggregator owns the in-memory (history, stats) pair and writes every
// mutation through to the store before returning.
type Aggregator struct {
	mu      sync.Mutex
	store   Store
	logger  *zap.Logger
	entries []Entry
	stats   Stats
}

// New creates an empty aggregator; call Load to hydrate persisted state.
func New(store Store, logger *zap.Logger) *Aggregator {
	return &Aggregator{store: store, logger: logger.Named("history")}
}

// Load hydrates history and stats from the store. Missing keys leave the
// empty state in place.
func (a *Aggregator) Load(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var entries []Entry
	found, err := a.store.Get(ctx, HistoryKey, &entries)
	if err != nil {
		return err
	}
	if found {
		if len(entries) > Cap {
			entries = entries[:Cap]
		}
		a.entries = entries
	}

	var stats Stats
	found, err = a.store.Get(ctx, StatsKey, &stats)
	if err != nil {
		return err
	}
	if found {
		a.stats = stats
	}

	a.logger.Info("history loaded", zap.Int("entries", len(a.entries)), zap.Int("total", a.stats.Total))
	return nil
}

// Record prepends entry, trims the list back to Cap, recomputes stats over
// the retained entries, and persists both keys before returning.
func (a *Aggregator) Record(ctx context.Context, entry Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	entries := make([]Entry, 0, len(a.entries)+1)
	entries = append(entries, entry)
	entries = append(entries, a.entries...)
	if len(entries) > Cap {
		entries = entries[:Cap]
	}

	stats := Stats{Total: len(entries)}
	for _, e := range entries {
		if e.IsHotdog {
			stats.PositiveCount++
		}
	}

	if err := a.persist(ctx, entries, stats); err != nil {
		return err
	}
	a.entries = entries
	a.stats = stats
	return nil
}

// Reset clears history and stats and persists the cleared state. The user
// confirmation step belongs to the caller.
func (a *Aggregator) Reset(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.persist(ctx, []Entry{}, Stats{}); err != nil {
		return err
	}
	a.entries = nil
	a.stats = Stats{}
	a.logger.Info("history reset")
	return nil
}

// Entries returns a copy of the retained entries, most recent first.
func (a *Aggregator) Entries() []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Entry, len(a.entries))
	copy(out, a.entries)
	return out
}

// Stats returns the current counters.
func (a *Aggregator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

func (a *Aggregator) persist(ctx context.Context, entries []Entry, stats Stats) error {
	if err := a.store.Put(ctx, HistoryKey, entries); err != nil {
		return err
	}
	return a.store.Put(ctx, StatsKey, stats)
}
