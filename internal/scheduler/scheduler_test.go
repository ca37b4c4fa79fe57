package scheduler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/faulander/zib/internal/config"
	"github.com/faulander/zib/internal/logging"
	"github.com/faulander/zib/internal/store"
	"github.com/faulander/zib/pkg/feed"
)

func newTestScheduler(t *testing.T) (*Scheduler, *store.Store) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	log := logging.NewDiscard()
	fetcher := feed.New(s, log, config.FetchConfig{Timeout: "5s"})
	sched := New(s, fetcher, log, config.ScheduleConfig{
		RefreshTick:     "1m",
		MaintenanceTick: "24h",
		SourceDelay:     "1ms",
	}, config.TTLConfig{})
	return sched, s
}

func testFeedServer(t *testing.T, itemCount int) *httptest.Server {
	t.Helper()
	now := time.Now().UTC()
	items := ""
	for i := 0; i < itemCount; i++ {
		items += fmt.Sprintf(`
		<item>
			<title>Item %d</title>
			<guid>item-%d</guid>
			<pubDate>%s</pubDate>
		</item>`, i, i, now.Add(-time.Duration(i)*time.Hour).Format(time.RFC1123Z))
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<?xml version="1.0"?><rss version="2.0"><channel><title>T</title>`+items+`</channel></rss>`)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestRefreshDueFetchesDueSources(t *testing.T) {
	sched, s := newTestScheduler(t)
	ts := testFeedServer(t, 3)

	src := &store.Source{URL: ts.URL}
	if err := s.CreateSource(src); err != nil {
		t.Fatal(err)
	}

	sum := sched.RefreshDue(context.Background())
	if sum.Skipped {
		t.Fatal("cycle should not be skipped")
	}
	if sum.Fetched != 1 {
		t.Errorf("Fetched = %d, want 1", sum.Fetched)
	}
	if sum.Added != 3 {
		t.Errorf("Added = %d, want 3", sum.Added)
	}

	// Immediately afterwards nothing is due.
	sum = sched.RefreshDue(context.Background())
	if sum.Fetched != 0 {
		t.Errorf("second cycle fetched %d sources, want 0", sum.Fetched)
	}
}

func TestRefreshDueNotifiesObserver(t *testing.T) {
	sched, s := newTestScheduler(t)
	ts := testFeedServer(t, 2)

	src := &store.Source{URL: ts.URL}
	if err := s.CreateSource(src); err != nil {
		t.Fatal(err)
	}

	var notified int
	sched.OnNewItems(func(added int) { notified = added })

	sched.RefreshDue(context.Background())
	if notified != 2 {
		t.Errorf("observer got %d, want 2", notified)
	}

	// A cycle without new items stays silent.
	notified = -1
	if err := s.SetOverrideInterval(src.ID, 0); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkFetchSuccess(src.ID, 0, time.Now().Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}
	sched.RefreshDue(context.Background())
	if notified != -1 {
		t.Errorf("observer fired with %d on a duplicate-only cycle", notified)
	}
}

func TestRefreshDueSkipsWhileInFlight(t *testing.T) {
	sched, s := newTestScheduler(t)
	ts := testFeedServer(t, 1)

	if err := s.CreateSource(&store.Source{URL: ts.URL}); err != nil {
		t.Fatal(err)
	}

	sched.refreshing.Store(true)
	sum := sched.RefreshDue(context.Background())
	if !sum.Skipped {
		t.Error("cycle should report skipped while another is in flight")
	}
	if sum.Fetched != 0 || sum.Added != 0 {
		t.Errorf("skipped cycle did work: fetched %d, added %d", sum.Fetched, sum.Added)
	}

	sched.refreshing.Store(false)
	sum = sched.RefreshDue(context.Background())
	if sum.Skipped || sum.Fetched != 1 {
		t.Errorf("skipped=%v fetched=%d after clearing the guard, want a normal cycle", sum.Skipped, sum.Fetched)
	}
}

func TestMaintenanceSkipsWhileInFlight(t *testing.T) {
	sched, s := newTestScheduler(t)

	src := &store.Source{URL: "https://example.org/feed"}
	if err := s.CreateSource(src); err != nil {
		t.Fatal(err)
	}
	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		if _, err := s.InsertItem(&store.Item{SourceID: src.ID, GUID: fmt.Sprintf("g-%d", i), PublishedAt: now.Add(-time.Duration(i) * time.Hour)}); err != nil {
			t.Fatal(err)
		}
	}

	sched.maintaining.Store(true)
	sched.runMaintenance(context.Background())
	if _, err := s.GetStatistics(src.ID); err == nil {
		t.Error("guarded maintenance run still recomputed statistics")
	}

	sched.maintaining.Store(false)
	sched.runMaintenance(context.Background())
	if _, err := s.GetStatistics(src.ID); err != nil {
		t.Errorf("statistics missing after maintenance: %v", err)
	}
}

func TestRefreshOne(t *testing.T) {
	sched, s := newTestScheduler(t)
	ts := testFeedServer(t, 1)

	src := &store.Source{URL: ts.URL}
	if err := s.CreateSource(src); err != nil {
		t.Fatal(err)
	}

	res, err := sched.RefreshOne(context.Background(), src.ID, feed.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Added != 1 {
		t.Errorf("Added = %d, want 1", res.Added)
	}

	if _, err := sched.RefreshOne(context.Background(), 99999, feed.Options{}); err == nil {
		t.Error("expected error for unknown source")
	}
}

func TestRecomputeStatistics(t *testing.T) {
	sched, s := newTestScheduler(t)

	src := &store.Source{URL: "https://example.org/feed"}
	if err := s.CreateSource(src); err != nil {
		t.Fatal(err)
	}
	now := time.Now().UTC()
	for i := 0; i < 10; i++ {
		if _, err := s.InsertItem(&store.Item{
			SourceID:    src.ID,
			GUID:        fmt.Sprintf("g-%d", i),
			PublishedAt: now.Add(-time.Duration(i) * 6 * time.Hour),
		}); err != nil {
			t.Fatal(err)
		}
	}

	if err := sched.RecomputeStatistics(context.Background()); err != nil {
		t.Fatal(err)
	}

	st, err := s.GetStatistics(src.ID)
	if err != nil {
		t.Fatalf("statistics row missing: %v", err)
	}
	if st.Items7d != 10 {
		t.Errorf("Items7d = %d, want 10", st.Items7d)
	}
	if st.ComputedInterval < 5 || st.ComputedInterval > 1440 {
		t.Errorf("interval %d outside bounds", st.ComputedInterval)
	}
	if st.Reason == "" || st.Reason == "insufficient data" {
		t.Errorf("unexpected reason %q", st.Reason)
	}
}

func TestRecomputeStatisticsSparseHistory(t *testing.T) {
	sched, s := newTestScheduler(t)

	src := &store.Source{URL: "https://example.org/feed"}
	if err := s.CreateSource(src); err != nil {
		t.Fatal(err)
	}
	if _, err := s.InsertItem(&store.Item{SourceID: src.ID, GUID: "only", PublishedAt: time.Now().UTC()}); err != nil {
		t.Fatal(err)
	}

	if err := sched.RecomputeStatistics(context.Background()); err != nil {
		t.Fatal(err)
	}

	st, err := s.GetStatistics(src.ID)
	if err != nil {
		t.Fatal(err)
	}
	if st.ComputedInterval != 30 || st.Reason != "insufficient data" {
		t.Errorf("got %d/%q, want the conservative default", st.ComputedInterval, st.Reason)
	}
}
