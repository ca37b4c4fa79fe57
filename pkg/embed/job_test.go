package embed

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/faulander/zib/internal/logging"
	"github.com/faulander/zib/internal/store"
)

// fakeProvider returns fixed-size vectors and can be told to fail on
// inputs containing a marker string.
type fakeProvider struct {
	name        string
	failMarker  string
	batchCalls  int
	singleCalls int
}

func (f *fakeProvider) Fingerprint() string { return "fake/" + f.name }

func (f *fakeProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	f.singleCalls++
	if f.failMarker != "" && strings.Contains(text, f.failMarker) {
		return nil, fmt.Errorf("cannot embed %q", text)
	}
	return []float32{1, 0}, nil
}

func (f *fakeProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.batchCalls++
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if f.failMarker != "" && strings.Contains(text, f.failMarker) {
			return nil, fmt.Errorf("batch contains %q", f.failMarker)
		}
		vectors[i] = []float32{1, 0}
	}
	return vectors, nil
}

func newJobStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func addItem(t *testing.T, s *store.Store, sourceID int64, guid, title string) int64 {
	t.Helper()
	item := &store.Item{SourceID: sourceID, GUID: guid, Title: title, PublishedAt: time.Now().UTC()}
	if _, err := s.InsertItem(item); err != nil {
		t.Fatal(err)
	}
	return item.ID
}

func newSource(t *testing.T, s *store.Store) int64 {
	t.Helper()
	src := &store.Source{URL: "https://example.org/feed"}
	if err := s.CreateSource(src); err != nil {
		t.Fatal(err)
	}
	return src.ID
}

func TestProcessPendingEmbedsBacklog(t *testing.T) {
	s := newJobStore(t)
	srcID := newSource(t, s)
	id1 := addItem(t, s, srcID, "a", "First story")
	id2 := addItem(t, s, srcID, "b", "Second story")

	provider := &fakeProvider{name: "model"}
	job, err := NewJob(s, logging.NewDiscard(), provider, 100)
	if err != nil {
		t.Fatal(err)
	}

	res, err := job.ProcessPending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Processed != 2 || res.Failed != 0 {
		t.Errorf("got %+v, want 2 processed", res)
	}

	rows, err := s.EmbeddingsFor([]int64{id1, id2})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Errorf("stored %d vectors, want 2", len(rows))
	}
	for _, row := range rows {
		if row.Model != "fake/model" {
			t.Errorf("vector model = %q", row.Model)
		}
	}

	// A second run finds nothing to do.
	res, err = job.ProcessPending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Processed != 0 {
		t.Errorf("second run processed %d, want 0", res.Processed)
	}
}

func TestProcessPendingPerItemFallback(t *testing.T) {
	s := newJobStore(t)
	srcID := newSource(t, s)
	addItem(t, s, srcID, "good-1", "Fine story")
	addItem(t, s, srcID, "bad", "POISON story")
	addItem(t, s, srcID, "good-2", "Another fine story")

	provider := &fakeProvider{name: "model", failMarker: "POISON"}
	job, err := NewJob(s, logging.NewDiscard(), provider, 100)
	if err != nil {
		t.Fatal(err)
	}

	res, err := job.ProcessPending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// The poisoned batch is retried item by item; only the bad one fails.
	if res.Processed != 2 {
		t.Errorf("Processed = %d, want 2", res.Processed)
	}
	if res.Failed != 1 {
		t.Errorf("Failed = %d, want 1", res.Failed)
	}
	if provider.singleCalls == 0 {
		t.Error("expected per-item retries after the batch failure")
	}
}

func TestNewJobPurgesOnModelChange(t *testing.T) {
	s := newJobStore(t)
	srcID := newSource(t, s)
	addItem(t, s, srcID, "a", "Story")

	log := logging.NewDiscard()
	job, err := NewJob(s, log, &fakeProvider{name: "old"}, 100)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := job.ProcessPending(context.Background()); err != nil {
		t.Fatal(err)
	}
	has, _ := s.HasEmbeddings()
	if !has {
		t.Fatal("expected a stored vector")
	}

	// Same model again: vectors survive.
	if _, err := NewJob(s, log, &fakeProvider{name: "old"}, 100); err != nil {
		t.Fatal(err)
	}
	has, _ = s.HasEmbeddings()
	if !has {
		t.Error("vectors must survive a restart with the same model")
	}

	// New model: incompatible vectors are purged.
	if _, err := NewJob(s, log, &fakeProvider{name: "new"}, 100); err != nil {
		t.Fatal(err)
	}
	has, _ = s.HasEmbeddings()
	if has {
		t.Error("vectors must be purged when the model changes")
	}

	fp, _ := s.GetSetting("embedding_model")
	if fp != "fake/new" {
		t.Errorf("stored fingerprint = %q, want fake/new", fp)
	}
}

func TestProcessPendingSingleFlight(t *testing.T) {
	s := newJobStore(t)
	srcID := newSource(t, s)
	addItem(t, s, srcID, "a", "Story")

	job, err := NewJob(s, logging.NewDiscard(), &fakeProvider{name: "model"}, 100)
	if err != nil {
		t.Fatal(err)
	}

	// Simulate a run already in flight.
	job.running.Store(true)
	res, err := job.ProcessPending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Processed != 0 || res.Failed != 0 {
		t.Errorf("overlapping run should be a no-op, got %+v", res)
	}
	job.running.Store(false)

	res, err = job.ProcessPending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Processed != 1 {
		t.Errorf("Processed = %d, want 1 after the flag cleared", res.Processed)
	}
}
