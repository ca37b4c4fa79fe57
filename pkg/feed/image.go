package feed

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

// imageExtractor tries one strategy for finding a lead image.
type imageExtractor func(*gofeed.Item) string

// imageExtractors is the priority order for lead-image discovery:
// enclosure, then media:content, then media:thumbnail, then the first
// usable <img> in the body.
var imageExtractors = []imageExtractor{
	imageFromEnclosure,
	imageFromMediaContent,
	imageFromMediaThumbnail,
	imageFromBody,
}

// LeadImage returns the first non-empty, non-tracking image URL the
// extractor chain finds, or "".
func LeadImage(item *gofeed.Item) string {
	for _, extract := range imageExtractors {
		if url := extract(item); url != "" && !isTrackingPixel(url) {
			return url
		}
	}
	return ""
}

func imageFromEnclosure(item *gofeed.Item) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	for _, enc := range item.Enclosures {
		if strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
			return enc.URL
		}
	}
	return ""
}

func imageFromMediaContent(item *gofeed.Item) string {
	return mediaExtensionURL(item, "content")
}

func imageFromMediaThumbnail(item *gofeed.Item) string {
	return mediaExtensionURL(item, "thumbnail")
}

func mediaExtensionURL(item *gofeed.Item, name string) string {
	media, ok := item.Extensions["media"]
	if !ok {
		return ""
	}
	for _, ext := range media[name] {
		if url := ext.Attrs["url"]; url != "" {
			return url
		}
	}
	return ""
}

func imageFromBody(item *gofeed.Item) string {
	body := item.Content
	if body == "" {
		body = item.Description
	}
	if body == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}

	var found string
	doc.Find("img").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		src, _ := sel.Attr("src")
		if src == "" {
			return true
		}
		if w, _ := sel.Attr("width"); w == "1" {
			return true
		}
		if h, _ := sel.Attr("height"); h == "1" {
			return true
		}
		if isTrackingPixel(src) {
			return true
		}
		found = src
		return false
	})
	return found
}

// trackerFragments mark URLs that are analytics beacons rather than
// real images.
var trackerFragments = []string{
	"feedburner.com/~r",
	"feedsportal.com",
	"doubleclick.net",
	"google-analytics.com",
	"pixel.wp.com",
	"stats.wordpress.com",
	"1x1",
	"spacer.gif",
	"blank.gif",
}

func isTrackingPixel(url string) bool {
	lower := strings.ToLower(url)
	for _, frag := range trackerFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}
