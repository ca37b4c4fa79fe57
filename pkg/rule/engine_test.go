package rule

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/faulander/zib/internal/store"
)

func TestSuppressed(t *testing.T) {
	filters := []store.Filter{
		{Rule: `football OR "champions league"`, Enabled: true},
		{Rule: `crypto AND scam`, Enabled: true},
		{Rule: `weather`, Enabled: false},
	}

	tests := []struct {
		name string
		item store.Item
		want bool
	}{
		{"first filter by title", store.Item{Title: "Football transfer news"}, true},
		{"first filter by phrase", store.Item{Title: "Tonight: Champions League final"}, true},
		{"second filter needs both terms", store.Item{Title: "Crypto prices rally"}, false},
		{"second filter matches", store.Item{Title: "Crypto scam ring busted"}, true},
		{"match in content", store.Item{Title: "Morning briefing", Content: "the football results"}, true},
		{"disabled filter ignored", store.Item{Title: "Weather warning issued"}, false},
		{"no filter matches", store.Item{Title: "Local library reopens"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Suppressed(tt.item, filters); got != tt.want {
				t.Errorf("Suppressed = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSuppressedNoFilters(t *testing.T) {
	if Suppressed(store.Item{Title: "anything"}, nil) {
		t.Error("no filters must suppress nothing")
	}
}

func TestCountMatchesBusyStore(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	src := &store.Source{URL: "https://example.org/feed"}
	if err := s.CreateSource(src); err != nil {
		t.Fatal(err)
	}

	// More matching items than the store's default query page.
	now := time.Now().UTC()
	const total = 250
	for i := 0; i < total; i++ {
		if _, err := s.InsertItem(&store.Item{
			SourceID:    src.ID,
			GUID:        fmt.Sprintf("g-%d", i),
			Title:       fmt.Sprintf("Football update %d", i),
			PublishedAt: now.Add(-time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatal(err)
		}
	}

	e := NewEngine(s)
	count, err := e.CountMatches("football", 7*24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if count != total {
		t.Errorf("CountMatches = %d, want %d", count, total)
	}

	matches, err := e.RecentMatches("football", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 5 {
		t.Errorf("RecentMatches returned %d items, want 5", len(matches))
	}
}
