package feed

import (
	"testing"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
)

func TestLeadImagePriority(t *testing.T) {
	item := &gofeed.Item{
		Enclosures: []*gofeed.Enclosure{
			{Type: "audio/mpeg", URL: "https://cdn.example.org/episode.mp3"},
			{Type: "image/jpeg", URL: "https://cdn.example.org/enclosure.jpg"},
		},
		Extensions: ext.Extensions{
			"media": {
				"content":   {{Attrs: map[string]string{"url": "https://cdn.example.org/media.jpg"}}},
				"thumbnail": {{Attrs: map[string]string{"url": "https://cdn.example.org/thumb.jpg"}}},
			},
		},
		Content: `<p><img src="https://cdn.example.org/body.jpg"></p>`,
	}

	// Enclosure wins over everything.
	if got := LeadImage(item); got != "https://cdn.example.org/enclosure.jpg" {
		t.Errorf("got %q, want enclosure image", got)
	}

	// Without enclosures, media:content wins.
	item.Enclosures = nil
	if got := LeadImage(item); got != "https://cdn.example.org/media.jpg" {
		t.Errorf("got %q, want media:content image", got)
	}

	// Then media:thumbnail.
	delete(item.Extensions["media"], "content")
	if got := LeadImage(item); got != "https://cdn.example.org/thumb.jpg" {
		t.Errorf("got %q, want media:thumbnail image", got)
	}

	// Finally the body.
	item.Extensions = nil
	if got := LeadImage(item); got != "https://cdn.example.org/body.jpg" {
		t.Errorf("got %q, want body image", got)
	}

	item.Content = ""
	if got := LeadImage(item); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestLeadImageItemImage(t *testing.T) {
	item := &gofeed.Item{
		Image:   &gofeed.Image{URL: "https://cdn.example.org/item.jpg"},
		Content: `<img src="https://cdn.example.org/body.jpg">`,
	}
	if got := LeadImage(item); got != "https://cdn.example.org/item.jpg" {
		t.Errorf("got %q, want item image", got)
	}
}

func TestLeadImageSkipsTrackingPixels(t *testing.T) {
	item := &gofeed.Item{
		Content: `<img src="https://pixel.wp.com/b.gif" width="1" height="1">` +
			`<img src="https://stats.example.org/spacer.gif">` +
			`<img src="https://cdn.example.org/real.jpg">`,
	}
	if got := LeadImage(item); got != "https://cdn.example.org/real.jpg" {
		t.Errorf("got %q, want real image", got)
	}

	// A 1x1 image is skipped even with an innocuous URL.
	item.Content = `<img src="https://cdn.example.org/tiny.png" width="1">`
	if got := LeadImage(item); got != "" {
		t.Errorf("got %q, want empty for 1x1 image", got)
	}

	// A tracking enclosure must not shadow a good body image.
	item = &gofeed.Item{
		Image:   &gofeed.Image{URL: "https://feedburner.com/~r/something"},
		Content: `<img src="https://cdn.example.org/body.jpg">`,
	}
	if got := LeadImage(item); got != "https://cdn.example.org/body.jpg" {
		t.Errorf("got %q, want body image past the tracker", got)
	}
}
