// Package scheduler drives the refresh and maintenance loops.
package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/faulander/zib/internal/config"
	"github.com/faulander/zib/internal/logging"
	"github.com/faulander/zib/internal/store"
	"github.com/faulander/zib/pkg/feed"
	"github.com/faulander/zib/pkg/stats"
)

// RefreshSummary reports one refresh cycle.
type RefreshSummary struct {
	Fetched int  `json:"fetched"`
	Added   int  `json:"added"`
	Skipped bool `json:"skipped"` // a cycle was already in flight
}

// Scheduler owns the two periodic loops. Its in-flight flags are struct
// state, not globals, so independent instances can run in tests.
type Scheduler struct {
	store   *store.Store
	fetcher *feed.Fetcher
	log     *logging.Logger
	weights stats.Weights

	refreshTick     time.Duration
	maintenanceTick time.Duration
	sourceDelay     time.Duration
	retention       time.Duration
	logRetention    time.Duration

	refreshing  atomic.Bool
	maintaining atomic.Bool

	onNewItems func(added int)
}

// New creates a scheduler.
func New(s *store.Store, fetcher *feed.Fetcher, log *logging.Logger, schedCfg config.ScheduleConfig, ttlCfg config.TTLConfig) *Scheduler {
	retentionDays := schedCfg.RetentionDays
	if retentionDays <= 0 {
		retentionDays = 90
	}
	logRetentionDays := schedCfg.LogRetentionDays
	if logRetentionDays <= 0 {
		logRetentionDays = 30
	}
	return &Scheduler{
		store:           s,
		fetcher:         fetcher,
		log:             log,
		weights:         stats.Weights{Base: ttlCfg.BaseWeight, Engagement: ttlCfg.EngagementWeight, Reliability: ttlCfg.ReliabilityWeight},
		refreshTick:     schedCfg.ParseRefreshTick(),
		maintenanceTick: schedCfg.ParseMaintenanceTick(),
		sourceDelay:     schedCfg.ParseSourceDelay(),
		retention:       time.Duration(retentionDays) * 24 * time.Hour,
		logRetention:    time.Duration(logRetentionDays) * 24 * time.Hour,
	}
}

// OnNewItems registers an observer called after any refresh cycle that
// added at least one item.
func (s *Scheduler) OnNewItems(fn func(added int)) {
	s.onNewItems = fn
}

// Run blocks until ctx is cancelled. A fresh process does one TTL
// recomputation pass and one refresh pass immediately instead of idling
// until the first tick.
func (s *Scheduler) Run(ctx context.Context) error {
	refreshTicker := time.NewTicker(s.refreshTick)
	maintenanceTicker := time.NewTicker(s.maintenanceTick)
	defer refreshTicker.Stop()
	defer maintenanceTicker.Stop()

	s.log.Info("scheduler: startup pass")
	s.safely("recompute statistics", func() {
		if err := s.RecomputeStatistics(ctx); err != nil {
			s.log.Error("recompute statistics: %v", err)
		}
	})
	s.safely("refresh", func() { s.RefreshDue(ctx) })

	s.log.Info("scheduler: running (refresh every %s, maintenance every %s)",
		s.refreshTick, s.maintenanceTick)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler: stopped")
			return ctx.Err()
		case <-refreshTicker.C:
			s.safely("refresh", func() { s.RefreshDue(ctx) })
		case <-maintenanceTicker.C:
			s.safely("maintenance", func() { s.runMaintenance(ctx) })
		}
	}
}

// safely keeps an unexpected panic in one cycle from taking the process
// down or blocking later ticks.
func (s *Scheduler) safely(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scheduler: %s cycle panicked: %v", name, r)
		}
	}()
	fn()
}

// RefreshDue fetches every source whose effective interval has elapsed,
// strictly sequentially with a small delay between sources. A tick that
// finds the previous cycle still in flight is skipped, not queued.
func (s *Scheduler) RefreshDue(ctx context.Context) RefreshSummary {
	if !s.refreshing.CompareAndSwap(false, true) {
		return RefreshSummary{Skipped: true}
	}
	defer s.refreshing.Store(false)

	due, err := s.store.DueSources(time.Now())
	if err != nil {
		s.log.Error("query due sources: %v", err)
		return RefreshSummary{}
	}
	if len(due) == 0 {
		return RefreshSummary{}
	}

	s.log.Info("refresh cycle: %d sources due", len(due))

	var summary RefreshSummary
	for i := range due {
		if ctx.Err() != nil {
			break
		}
		result := s.fetcher.RefreshSource(ctx, &due[i], feed.Options{})
		summary.Fetched++
		summary.Added += result.Added

		if i < len(due)-1 {
			select {
			case <-ctx.Done():
			case <-time.After(s.sourceDelay):
			}
		}
	}

	if summary.Added > 0 && s.onNewItems != nil {
		s.onNewItems(summary.Added)
	}
	return summary
}

// RefreshOne fetches a single source on demand.
func (s *Scheduler) RefreshOne(ctx context.Context, sourceID int64, opts feed.Options) (feed.Result, error) {
	src, err := s.store.GetSource(sourceID)
	if err != nil {
		return feed.Result{}, err
	}
	return s.fetcher.RefreshSource(ctx, src, opts), nil
}

// RecomputeStatistics rebuilds statistics and the computed refresh
// interval for every source. Per-source failures are logged and do not
// abort the pass.
func (s *Scheduler) RecomputeStatistics(ctx context.Context) error {
	sources, err := s.store.ListSources()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, src := range sources {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		samples, err := s.store.ItemSamples(src.ID)
		if err != nil {
			s.log.Warn("statistics for %s: %v", src.URL, err)
			continue
		}
		snap := stats.Compute(samples, now)
		interval, reason := stats.ComputeInterval(snap, src.ErrorCount, s.weights)
		if err := s.store.UpsertStatistics(snap.Row(src.ID, interval, reason, now)); err != nil {
			s.log.Warn("store statistics for %s: %v", src.URL, err)
		}
	}
	return nil
}

// runMaintenance prunes stale data and recomputes statistics. Guarded
// like the refresh loop.
func (s *Scheduler) runMaintenance(ctx context.Context) {
	if !s.maintaining.CompareAndSwap(false, true) {
		return
	}
	defer s.maintaining.Store(false)

	now := time.Now()

	if n, err := s.store.PruneItems(now.Add(-s.retention)); err != nil {
		s.log.Error("prune items: %v", err)
	} else if n > 0 {
		s.log.Info("maintenance: pruned %d items", n)
	}

	if err := s.RecomputeStatistics(ctx); err != nil {
		s.log.Error("maintenance: recompute statistics: %v", err)
	}

	if n, err := s.store.PruneFetchLog(now.Add(-s.logRetention)); err != nil {
		s.log.Error("prune fetch log: %v", err)
	} else if n > 0 {
		s.log.Info("maintenance: pruned %d fetch log rows", n)
	}
}
