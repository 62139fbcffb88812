package snapshot

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"wager-rewards/internal/affiliate"
)

func TestEmptyCacheIsNeverFresh(t *testing.T) {
	c := NewCache()
	if c.Fresh(time.Hour) {
		t.Fatal("empty cache must not report fresh")
	}
	if _, ok := c.Get(); ok {
		t.Fatal("empty cache must not return a snapshot")
	}
}

func TestFreshnessWindow(t *testing.T) {
	c := NewCache()
	base := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }

	c.Update(Build(nil, PeriodOf(base), base.Add(-10*time.Minute)))

	if !c.Fresh(15 * time.Minute) {
		t.Fatal("10 minute old snapshot should be fresh within 15m")
	}
	if c.Fresh(10 * time.Minute) {
		t.Fatal("snapshot exactly at max age must be stale")
	}

	c.now = func() time.Time { return base.Add(time.Hour) }
	if c.Fresh(15 * time.Minute) {
		t.Fatal("snapshot must go stale as the clock advances")
	}
}

func TestBuildSortsBothViews(t *testing.T) {
	entries := []affiliate.Entry{
		{UID: "a", Wagered: decimal.NewFromInt(100), WeightedWagered: decimal.NewFromInt(10)},
		{UID: "b", Wagered: decimal.NewFromInt(50), WeightedWagered: decimal.NewFromInt(40)},
		{UID: "c", Wagered: decimal.NewFromInt(75), WeightedWagered: decimal.NewFromInt(20)},
	}

	s := Build(entries, Period{Month: time.June, Year: 2025}, time.Now())

	if s.ByTotal[0].UID != "a" || s.ByTotal[1].UID != "c" || s.ByTotal[2].UID != "b" {
		t.Fatalf("total ordering wrong: %v %v %v", s.ByTotal[0].UID, s.ByTotal[1].UID, s.ByTotal[2].UID)
	}
	if s.ByWeighted[0].UID != "b" || s.ByWeighted[1].UID != "c" || s.ByWeighted[2].UID != "a" {
		t.Fatalf("weighted ordering wrong: %v %v %v", s.ByWeighted[0].UID, s.ByWeighted[1].UID, s.ByWeighted[2].UID)
	}
	if entries[0].UID != "a" {
		t.Fatal("input slice must not be reordered")
	}
}

func TestPeriodStart(t *testing.T) {
	p := PeriodOf(time.Date(2025, 6, 17, 23, 4, 0, 0, time.UTC))
	want := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	if !p.Start().Equal(want) {
		t.Fatalf("period start = %s, want %s", p.Start(), want)
	}
}
