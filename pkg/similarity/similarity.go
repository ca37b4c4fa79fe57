// Package similarity groups near-duplicate items produced by multiple
// outlets covering the same story.
package similarity

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/faulander/zib/internal/store"
)

// DefaultWindow bounds how far apart two items may be published and
// still be compared. It keeps the pairwise scan cheap and avoids
// coincidental title collisions months apart.
const DefaultWindow = 48 * time.Hour

// Options control candidate grouping.
type Options struct {
	LexicalThreshold   float64
	EmbeddingThreshold float64
	Window             time.Duration
}

// Group is one story: a main item and the near-duplicates folded under it.
type Group struct {
	Main    store.Item   `json:"main"`
	Similar []store.Item `json:"similar"`
}

// Cosine returns the cosine similarity of two vectors, 0 when either is
// empty or their lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// DiceCoefficient returns the bigram overlap coefficient of two strings,
// compared lower-cased and trimmed.
func DiceCoefficient(a, b string) float64 {
	ba := bigrams(a)
	bb := bigrams(b)
	if len(ba) == 0 || len(bb) == 0 {
		return 0
	}

	counts := make(map[string]int, len(ba))
	for _, g := range ba {
		counts[g]++
	}
	overlap := 0
	for _, g := range bb {
		if counts[g] > 0 {
			counts[g]--
			overlap++
		}
	}
	return 2 * float64(overlap) / float64(len(ba)+len(bb))
}

func bigrams(s string) []string {
	runes := []rune(strings.ToLower(strings.TrimSpace(s)))
	if len(runes) < 2 {
		return nil
	}
	grams := make([]string, 0, len(runes)-1)
	for i := 0; i < len(runes)-1; i++ {
		grams = append(grams, string(runes[i:i+2]))
	}
	return grams
}

// GroupCandidates folds a candidate set into groups. Items are sorted by
// (publish date desc, id desc) for determinism, then each not-yet-used
// item opens a group and greedily claims later matches; no item appears
// in two groups. Pairs are only compared within the window. A zero or
// negative lexical threshold disables grouping: every item becomes its
// own singleton group.
//
// When both items of a pair have a vector and EmbeddingThreshold is
// positive, cosine similarity against it decides; otherwise the lexical
// bigram overlap of their titles against LexicalThreshold does. A zero
// or negative embedding threshold disables the vector comparison rather
// than pairing everything.
func GroupCandidates(items []store.Item, vectors map[int64][]float32, opts Options) []Group {
	sorted := make([]store.Item, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].PublishedAt.Equal(sorted[j].PublishedAt) {
			return sorted[i].PublishedAt.After(sorted[j].PublishedAt)
		}
		return sorted[i].ID > sorted[j].ID
	})

	if opts.LexicalThreshold <= 0 {
		groups := make([]Group, len(sorted))
		for i, item := range sorted {
			groups[i] = Group{Main: item}
		}
		return groups
	}

	window := opts.Window
	if window <= 0 {
		window = DefaultWindow
	}

	used := make([]bool, len(sorted))
	var groups []Group

	for i := range sorted {
		if used[i] {
			continue
		}
		used[i] = true
		g := Group{Main: sorted[i]}

		for j := i + 1; j < len(sorted); j++ {
			if used[j] {
				continue
			}
			if !withinWindow(sorted[i].PublishedAt, sorted[j].PublishedAt, window) {
				continue
			}
			if similar(sorted[i], sorted[j], vectors, opts) {
				used[j] = true
				g.Similar = append(g.Similar, sorted[j])
			}
		}
		groups = append(groups, g)
	}

	return groups
}

func withinWindow(a, b time.Time, window time.Duration) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= window
}

func similar(a, b store.Item, vectors map[int64][]float32, opts Options) bool {
	if opts.EmbeddingThreshold > 0 {
		va, okA := vectors[a.ID]
		vb, okB := vectors[b.ID]
		if okA && okB {
			return Cosine(va, vb) >= opts.EmbeddingThreshold
		}
	}
	return DiceCoefficient(a.Title, b.Title) >= opts.LexicalThreshold
}
