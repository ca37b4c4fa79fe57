package rule

import (
	"time"

	"github.com/faulander/zib/internal/store"
)

// Engine layers store-backed conveniences over Matches for the read
// path: previewing what a rule would suppress.
type Engine struct {
	store *store.Store
}

// NewEngine creates a rule engine over the store.
func NewEngine(s *store.Store) *Engine {
	return &Engine{store: s}
}

// scanLimit caps how many stored items a preview scans. Passed
// explicitly because the store applies a much smaller default.
const scanLimit = 10000

// matchText is what a rule is evaluated against for an item.
func matchText(item store.Item) string {
	return item.Title + " " + item.Content
}

// Suppressed reports whether any enabled filter matches the item.
func Suppressed(item store.Item, filters []store.Filter) bool {
	for _, f := range filters {
		if !f.Enabled {
			continue
		}
		if Matches(matchText(item), f.Rule) {
			return true
		}
	}
	return false
}

// CountMatches returns how many items from the window match the rule.
func (e *Engine) CountMatches(ruleText string, window time.Duration) (int, error) {
	items, err := e.store.RecentItems(time.Now().Add(-window), scanLimit)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, item := range items {
		if Matches(matchText(item), ruleText) {
			count++
		}
	}
	return count, nil
}

// RecentMatches returns up to limit recent items matching the rule,
// newest first.
func (e *Engine) RecentMatches(ruleText string, limit int) ([]store.Item, error) {
	if limit <= 0 {
		limit = 20
	}
	items, err := e.store.RecentItems(time.Now().Add(-30*24*time.Hour), scanLimit)
	if err != nil {
		return nil, err
	}
	var out []store.Item
	for _, item := range items {
		if Matches(matchText(item), ruleText) {
			out = append(out, item)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}
