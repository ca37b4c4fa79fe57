package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// maxArticleBytes bounds how much of an article page is read for
// extraction.
const maxArticleBytes = 2 << 20

// candidateSelectors are tried in order before falling back to scoring
// generic containers.
var candidateSelectors = []string{
	"article",
	"[role='main']",
	"main",
	".entry-content",
	".post-content",
	".article-body",
	"#content",
}

// extractArticle fetches the item's own page and pulls out the main
// content as markdown. Any failure here degrades to the feed-supplied
// summary at the call site.
func (f *Fetcher) extractArticle(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create article request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch article: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("article status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxArticleBytes))
	if err != nil {
		return "", fmt.Errorf("parse article html: %w", err)
	}

	content := mainContent(doc)
	if content == nil {
		return "", fmt.Errorf("no main content found")
	}

	html, err := goquery.OuterHtml(content)
	if err != nil {
		return "", fmt.Errorf("serialize content: %w", err)
	}

	markdown, err := md.NewConverter("", true, nil).ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("convert to markdown: %w", err)
	}

	markdown = strings.TrimSpace(markdown)
	if len(markdown) < 200 {
		return "", fmt.Errorf("extracted content too short")
	}
	return markdown, nil
}

// mainContent picks the densest content container of the page.
func mainContent(doc *goquery.Document) *goquery.Selection {
	doc.Find("script, style, nav, header, footer, aside, form, iframe, noscript").Remove()

	for _, sel := range candidateSelectors {
		if node := doc.Find(sel).First(); node.Length() > 0 && contentScore(node) > 0 {
			return node
		}
	}

	// Fall back to the div with the most paragraph text.
	var best *goquery.Selection
	bestScore := 0
	doc.Find("div").Each(func(_ int, node *goquery.Selection) {
		if score := contentScore(node); score > bestScore {
			best = node
			bestScore = score
		}
	})
	if best != nil {
		return best
	}

	if body := doc.Find("body").First(); body.Length() > 0 {
		return body
	}
	return nil
}

// contentScore weighs a container by its paragraph count and text mass.
func contentScore(node *goquery.Selection) int {
	paragraphs := node.Find("p").Length()
	textLen := len(strings.TrimSpace(node.Text()))
	if paragraphs == 0 || textLen < 250 {
		return 0
	}
	return paragraphs*100 + textLen/10
}
