// Package feed implements the fetch-parse-extract-persist cycle for a
// single source.
package feed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/faulander/zib/internal/config"
	"github.com/faulander/zib/internal/logging"
	"github.com/faulander/zib/internal/store"
)

// maxFeedBytes bounds the feed download size.
const maxFeedBytes = 5 << 20

// Options are per-call fetch switches.
type Options struct {
	// SkipAgeFilter imports items regardless of age. ORed with the
	// global setting and the first-import bypass.
	SkipAgeFilter bool
}

// Result summarizes one fetch cycle for one source.
type Result struct {
	Added   int      `json:"added"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors,omitempty"`
}

// Fetcher performs fetch cycles. All failures are contained: they end up
// as a recorded error string on the source, never as a panic or an
// aborted batch.
type Fetcher struct {
	store  *store.Store
	log    *logging.Logger
	parser *gofeed.Parser
	client *http.Client

	userAgent      string
	maxItems       int
	maxAge         time.Duration
	skipAgeGlobal  bool
	extractContent bool
}

// New creates a Fetcher from the fetch configuration.
func New(s *store.Store, log *logging.Logger, cfg config.FetchConfig) *Fetcher {
	maxItems := cfg.MaxItems
	if maxItems <= 0 {
		maxItems = 50
	}
	maxAgeDays := cfg.MaxAgeDays
	if maxAgeDays <= 0 {
		maxAgeDays = 7
	}
	return &Fetcher{
		store:  s,
		log:    log,
		parser: gofeed.NewParser(),
		client: &http.Client{
			Timeout: cfg.ParseTimeout(),
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("stopped after 5 redirects")
				}
				return nil
			},
		},
		userAgent:      cfg.UserAgent,
		maxItems:       maxItems,
		maxAge:         time.Duration(maxAgeDays) * 24 * time.Hour,
		skipAgeGlobal:  cfg.SkipAgeFilter,
		extractContent: cfg.ExtractContent,
	}
}

// RefreshSource runs one full fetch cycle for the source and records the
// outcome on it. Network and format failures increment the source's
// consecutive-error counter; a success resets it.
func (f *Fetcher) RefreshSource(ctx context.Context, src *store.Source, opts Options) Result {
	now := time.Now().UTC()

	result, err := f.refresh(ctx, src, opts, now)
	if err != nil {
		f.log.Warn("fetch %s: %v", src.URL, err)
		if dbErr := f.store.MarkFetchError(src.ID, err.Error(), now); dbErr != nil {
			f.log.Error("record fetch error for %s: %v", src.URL, dbErr)
		}
		_ = f.store.AddFetchLog(src.ID, 0, 0, err.Error(), now)
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	if dbErr := f.store.MarkFetchSuccess(src.ID, result.Added, now); dbErr != nil {
		f.log.Error("record fetch success for %s: %v", src.URL, dbErr)
	}
	_ = f.store.AddFetchLog(src.ID, result.Added, result.Skipped, "", now)

	f.log.Info("fetched %s: %d added, %d skipped", src.URL, result.Added, result.Skipped)
	return result
}

func (f *Fetcher) refresh(ctx context.Context, src *store.Source, opts Options, now time.Time) (Result, error) {
	var result Result

	body, err := f.download(ctx, src.URL)
	if err != nil {
		return result, err
	}

	if reason := notAFeed(body); reason != "" {
		return result, fmt.Errorf("%s is not a feed: %s", src.URL, reason)
	}

	parsed, err := f.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return result, fmt.Errorf("parse feed: %w", err)
	}

	f.updateMeta(src, parsed)

	// A source with nothing stored yet imports its full history. Keyed
	// on the item count, not last_fetched_at, so a transient failure on
	// the very first attempt does not cost the source its backfill.
	firstImport := false
	if n, err := f.store.CountItems(src.ID); err == nil && n == 0 {
		firstImport = true
	}
	skipAge := opts.SkipAgeFilter || f.skipAgeGlobal || firstImport
	cutoff := now.Add(-f.maxAge)

	items := parsed.Items
	if len(items) > f.maxItems {
		items = items[:f.maxItems]
	}

	for _, entry := range items {
		item := f.normalize(entry, src.ID, now)

		if !skipAge && item.PublishedAt.Before(cutoff) {
			result.Skipped++
			continue
		}

		if f.extractContent && item.Link != "" {
			if full, err := f.extractArticle(ctx, item.Link); err == nil {
				item.FullContent = full
			} else {
				// Extraction failures keep the feed summary and are
				// not surfaced as source errors.
				f.log.Debug("extract %s: %v", item.Link, err)
			}
		}

		added, err := f.store.InsertItem(item)
		switch {
		case err != nil:
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", item.GUID, err))
		case added:
			result.Added++
		default:
			result.Skipped++
		}
	}

	return result, nil
}

func (f *Fetcher) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("read feed body: %w", err)
	}
	return body, nil
}

// notAFeed sniffs the body for responses that are JSON or HTML rather
// than a feed format. Some sites silently serve a landing page at a
// dead "feed" URL; rejecting those early gives an actionable error
// instead of a cryptic parser one.
func notAFeed(body []byte) string {
	trimmed := bytes.TrimLeft(body, " \t\r\n\ufeff")
	if len(trimmed) == 0 {
		return "empty response"
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		return "response is JSON"
	}
	head := strings.ToLower(string(trimmed[:min(len(trimmed), 256)]))
	if strings.HasPrefix(head, "<!doctype html") || strings.HasPrefix(head, "<html") {
		return "response is an HTML page"
	}
	return ""
}

// normalize converts a parsed entry into a store item. The guid falls
// back to link, then title, when the upstream feed omits one.
func (f *Fetcher) normalize(entry *gofeed.Item, sourceID int64, now time.Time) *store.Item {
	guid := entry.GUID
	if guid == "" {
		guid = entry.Link
	}
	if guid == "" {
		guid = entry.Title
	}

	published := now
	if entry.PublishedParsed != nil {
		published = entry.PublishedParsed.UTC()
	} else if entry.UpdatedParsed != nil {
		published = entry.UpdatedParsed.UTC()
	}

	content := entry.Content
	if content == "" {
		content = entry.Description
	}

	author := ""
	if entry.Author != nil {
		author = entry.Author.Name
	}

	link := entry.Link
	if link == "" && len(entry.Links) > 0 {
		link = entry.Links[0]
	}

	return &store.Item{
		SourceID:    sourceID,
		GUID:        guid,
		Title:       entry.Title,
		Link:        link,
		Author:      author,
		PublishedAt: published,
		Content:     content,
		ImageURL:    LeadImage(entry),
		CreatedAt:   now,
	}
}

func (f *Fetcher) updateMeta(src *store.Source, parsed *gofeed.Feed) {
	if err := f.store.UpdateSourceMeta(src.ID, parsed.Title, parsed.Link, parsed.Description); err != nil {
		f.log.Warn("update meta for %s: %v", src.URL, err)
	}
}
