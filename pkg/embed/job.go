// Package embed batches un-embedded items to an embedding provider and
// stores the resulting vectors for the similarity engine.
package embed

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/PuerkitoBio/goquery"

	"github.com/faulander/zib/internal/logging"
	"github.com/faulander/zib/internal/store"
)

// settingModelFingerprint is the settings key remembering which
// provider/model produced the stored vectors.
const settingModelFingerprint = "embedding_model"

// snippetRunes is roughly how much of the stripped body joins the title
// as embedding input.
const snippetRunes = 200

// chunkSize is how many texts go to the provider per batch call.
const chunkSize = 16

// JobResult summarizes one ProcessPending run.
type JobResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// Job embeds items that have no stored vector yet.
type Job struct {
	store     *store.Store
	log       *logging.Logger
	provider  Provider
	batchSize int
	running   atomic.Bool
}

// NewJob creates the embedding job. When the configured provider/model
// differs from the one that produced the stored vectors, all vectors
// are purged: embeddings from different models are not comparable.
func NewJob(s *store.Store, log *logging.Logger, provider Provider, batchSize int) (*Job, error) {
	if batchSize <= 0 {
		batchSize = 100
	}

	fingerprint := provider.Fingerprint()
	stored, err := s.GetSetting(settingModelFingerprint)
	if err != nil {
		return nil, err
	}
	if stored != "" && stored != fingerprint {
		n, err := s.PurgeEmbeddings()
		if err != nil {
			return nil, err
		}
		log.Info("embedding model changed (%s -> %s), purged %d vectors", stored, fingerprint, n)
	}
	if err := s.SetSetting(settingModelFingerprint, fingerprint); err != nil {
		return nil, err
	}

	return &Job{store: s, log: log, provider: provider, batchSize: batchSize}, nil
}

// ProcessPending embeds items lacking a vector. Safe to invoke
// concurrently with itself: a second call while one is in flight is a
// no-op. On the very first run (no vectors stored yet) the backlog is
// restricted to unread items so an old archive is not embedded
// wholesale.
func (j *Job) ProcessPending(ctx context.Context) (JobResult, error) {
	var result JobResult
	if !j.running.CompareAndSwap(false, true) {
		return result, nil
	}
	defer j.running.Store(false)

	hasAny, err := j.store.HasEmbeddings()
	if err != nil {
		return result, err
	}

	items, err := j.store.ItemsMissingEmbedding(!hasAny, j.batchSize)
	if err != nil {
		return result, err
	}
	if len(items) == 0 {
		return result, nil
	}

	for start := 0; start < len(items); start += chunkSize {
		end := min(start+chunkSize, len(items))
		chunk := items[start:end]

		texts := make([]string, len(chunk))
		for i, item := range chunk {
			texts[i] = EmbedInput(item.Title, item.Content)
		}

		vectors, err := j.provider.EmbedBatch(ctx, texts)
		if err != nil {
			// Batch failed; retry item by item so one bad input does
			// not sink its neighbours.
			j.log.Warn("embedding batch failed, retrying singly: %v", err)
			vectors = make([][]float32, len(chunk))
			for i := range chunk {
				if ctx.Err() != nil {
					return result, ctx.Err()
				}
				v, err := j.provider.Embed(ctx, texts[i])
				if err != nil {
					j.log.Warn("embed item %d: %v", chunk[i].ID, err)
					continue
				}
				vectors[i] = v
			}
		}

		for i, item := range chunk {
			if vectors[i] == nil {
				result.Failed++
				continue
			}
			blob := EncodeVector(vectors[i])
			if err := j.store.UpsertEmbedding(item.ID, j.provider.Fingerprint(), len(vectors[i]), blob); err != nil {
				j.log.Warn("store embedding %d: %v", item.ID, err)
				result.Failed++
				continue
			}
			result.Processed++
		}
	}

	j.log.Info("embedding job: %d processed, %d failed", result.Processed, result.Failed)
	return result, nil
}

// Purge drops all stored vectors.
func (j *Job) Purge() (int64, error) {
	return j.store.PurgeEmbeddings()
}

// EmbedInput builds the provider input for an item: title plus roughly
// the first 200 characters of the HTML-stripped body.
func EmbedInput(title, body string) string {
	snippet := stripHTML(body)
	runes := []rune(snippet)
	if len(runes) > snippetRunes {
		snippet = string(runes[:snippetRunes])
	}
	if snippet == "" {
		return title
	}
	return title + "\n" + snippet
}

func stripHTML(s string) string {
	if s == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
