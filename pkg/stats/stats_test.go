package stats

import (
	"testing"
	"time"

	"github.com/faulander/zib/internal/store"
)

func TestComputeEmptyHistory(t *testing.T) {
	snap := Compute(nil, time.Now())
	if snap.Total != 0 || snap.AvgPerDay != 0 || snap.ReadRate != 0 {
		t.Errorf("empty history should produce a zero snapshot, got %+v", snap)
	}
}

func TestComputeWindowsAndRates(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	day := 24 * time.Hour

	samples := []store.ItemSample{
		{PublishedAt: now.Add(-40 * day)},                              // outside both windows
		{PublishedAt: now.Add(-20 * day), Read: true},                  // 30d only
		{PublishedAt: now.Add(-10 * day), Read: true, Opened: true},    // 30d only
		{PublishedAt: now.Add(-3 * day), Read: true, Saved: true},      // 7d and 30d
		{PublishedAt: now.Add(-1 * day), Starred: true, Shared: true},  // 7d and 30d
	}

	snap := Compute(samples, now)

	if snap.Total != 5 {
		t.Errorf("Total = %d, want 5", snap.Total)
	}
	if snap.Items7d != 2 {
		t.Errorf("Items7d = %d, want 2", snap.Items7d)
	}
	if snap.Items30d != 4 {
		t.Errorf("Items30d = %d, want 4", snap.Items30d)
	}
	if want := 4.0 / 30; snap.AvgPerDay != want {
		t.Errorf("AvgPerDay = %v, want %v", snap.AvgPerDay, want)
	}
	if snap.ReadCount != 3 {
		t.Errorf("ReadCount = %d, want 3", snap.ReadCount)
	}
	if snap.StarredCount != 1 {
		t.Errorf("StarredCount = %d, want 1", snap.StarredCount)
	}
	// Opened, saved or shared counts as engaged. Read alone does not.
	if snap.EngagedCount != 3 {
		t.Errorf("EngagedCount = %d, want 3", snap.EngagedCount)
	}
	if want := 3.0 / 5; snap.ReadRate != want {
		t.Errorf("ReadRate = %v, want %v", snap.ReadRate, want)
	}
	if want := 3.0 / 5; snap.EngagementRate != want {
		t.Errorf("EngagementRate = %v, want %v", snap.EngagementRate, want)
	}
}

func TestComputeAvgGap(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	samples := []store.ItemSample{
		{PublishedAt: now.Add(-10 * time.Hour)},
		{PublishedAt: now.Add(-6 * time.Hour)},
		{PublishedAt: now.Add(-6 * time.Hour)}, // zero gap ignored
		{PublishedAt: now.Add(-4 * time.Hour)},
	}

	snap := Compute(samples, now)
	if want := 3.0; snap.AvgGapHours != want {
		t.Errorf("AvgGapHours = %v, want %v", snap.AvgGapHours, want)
	}
}

func TestSnapshotRow(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	snap := Snapshot{Items7d: 1, Items30d: 2, AvgPerDay: 0.5}

	row := snap.Row(7, 45, "daily, normal engagement, healthy", now)
	if row.SourceID != 7 || row.ComputedInterval != 45 {
		t.Errorf("unexpected row: %+v", row)
	}
	if row.Items30d != 2 || row.AvgPerDay != 0.5 {
		t.Errorf("snapshot fields not carried over: %+v", row)
	}
	if !row.ComputedAt.Equal(now) {
		t.Errorf("ComputedAt = %v, want %v", row.ComputedAt, now)
	}
}
