package stats

import (
	"time"

	"github.com/faulander/zib/internal/store"
)

// Snapshot is the derived per-source statistics set. It is recomputed
// wholesale from the item history, never incrementally.
type Snapshot struct {
	Total          int
	Items7d        int
	Items30d       int
	AvgPerDay      float64
	AvgGapHours    float64
	ReadCount      int
	StarredCount   int
	EngagedCount   int
	ReadRate       float64
	EngagementRate float64
}

// Compute derives a Snapshot from a source's item history. Samples must
// be ordered by publication time ascending, as the store returns them.
//
// The engagement rate counts opened, saved and shared items rather than
// read ones: "mark all read" inflates the read flag without signalling
// any interest.
func Compute(samples []store.ItemSample, now time.Time) Snapshot {
	var snap Snapshot
	snap.Total = len(samples)
	if snap.Total == 0 {
		return snap
	}

	cut7 := now.Add(-7 * 24 * time.Hour)
	cut30 := now.Add(-30 * 24 * time.Hour)

	var gapSum time.Duration
	var gaps int
	var prev time.Time

	for i, s := range samples {
		if s.PublishedAt.After(cut7) {
			snap.Items7d++
		}
		if s.PublishedAt.After(cut30) {
			snap.Items30d++
		}
		if s.Read {
			snap.ReadCount++
		}
		if s.Starred {
			snap.StarredCount++
		}
		if s.Opened || s.Saved || s.Shared {
			snap.EngagedCount++
		}
		if i > 0 {
			if d := s.PublishedAt.Sub(prev); d > 0 {
				gapSum += d
				gaps++
			}
		}
		prev = s.PublishedAt
	}

	snap.AvgPerDay = float64(snap.Items30d) / 30
	if gaps > 0 {
		snap.AvgGapHours = (gapSum / time.Duration(gaps)).Hours()
	}
	snap.ReadRate = float64(snap.ReadCount) / float64(snap.Total)
	snap.EngagementRate = float64(snap.EngagedCount) / float64(snap.Total)

	return snap
}

// Row converts a snapshot into the persistable statistics record.
func (s Snapshot) Row(sourceID int64, interval int, reason string, now time.Time) *store.Statistics {
	return &store.Statistics{
		SourceID:         sourceID,
		Items7d:          s.Items7d,
		Items30d:         s.Items30d,
		AvgPerDay:        s.AvgPerDay,
		AvgGapHours:      s.AvgGapHours,
		ReadCount:        s.ReadCount,
		StarredCount:     s.StarredCount,
		EngagedCount:     s.EngagedCount,
		ReadRate:         s.ReadRate,
		EngagementRate:   s.EngagementRate,
		ComputedInterval: interval,
		Reason:           reason,
		ComputedAt:       now.UTC(),
	}
}
