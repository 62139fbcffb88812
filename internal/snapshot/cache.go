package snapshot

import (
	"sort"
	"sync"
	"time"

	"wager-rewards/internal/affiliate"
)

// Period identifies the month a snapshot covers.
type Period struct {
	Month time.Month
	Year  int
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	u := t.UTC()
	return Period{Month: u.Month(), Year: u.Year()}
}

// Start returns the first instant of the period.
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// Snapshot is one refresh of the affiliate stats, sorted both ways the
// evaluators consume it. Snapshots are immutable once published.
type Snapshot struct {
	ByTotal    []affiliate.Entry
	ByWeighted []affiliate.Entry
	Period     Period
	FetchedAt  time.Time
}

// Build sorts entries into a Snapshot stamped at fetchedAt.
func Build(entries []affiliate.Entry, period Period, fetchedAt time.Time) Snapshot {
	byTotal := make([]affiliate.Entry, len(entries))
	copy(byTotal, entries)
	sort.SliceStable(byTotal, func(i, j int) bool {
		return byTotal[i].Wagered.GreaterThan(byTotal[j].Wagered)
	})

	byWeighted := make([]affiliate.Entry, len(entries))
	copy(byWeighted, entries)
	sort.SliceStable(byWeighted, func(i, j int) bool {
		return byWeighted[i].WeightedWagered.GreaterThan(byWeighted[j].WeightedWagered)
	})

	return Snapshot{
		ByTotal:    byTotal,
		ByWeighted: byWeighted,
		Period:     period,
		FetchedAt:  fetchedAt,
	}
}

// Cache holds the most recent snapshot. One writer (the refresh loop)
// publishes; evaluation loops read. Consumers must check Fresh before
// acting so an upstream outage never feeds payout decisions stale data.
type Cache struct {
	mu       sync.RWMutex
	snapshot Snapshot
	loaded   bool

	now func() time.Time
}

// NewCache constructs an empty cache.
func NewCache() *Cache {
	return &Cache{now: time.Now}
}

// Update publishes a new snapshot.
func (c *Cache) Update(s Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = s
	c.loaded = true
}

// Get returns the current snapshot and whether one has been published.
func (c *Cache) Get() (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot, c.loaded
}

// Fresh reports whether the cached snapshot is younger than maxAge.
// An empty cache is never fresh.
func (c *Cache) Fresh(maxAge time.Duration) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loaded {
		return false
	}
	return c.now().Sub(c.snapshot.FetchedAt) < maxAge
}
