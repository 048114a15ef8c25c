package integrations

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
)

// FeedIntegration fetches an RSS, Atom or JSON feed.
//
// Config: url, maxItems, sinceDate (RFC3339).
type FeedIntegration struct {
	Client *http.Client
}

func (f *FeedIntegration) Type() string             { return TypeFeed }
func (f *FeedIntegration) RequiredFields() []string { return []string{"url"} }

func (f *FeedIntegration) Execute(ctx context.Context, config, _ map[string]any) (map[string]any, error) {
	url := stringField(config, "url")
	maxItems := intField(config, "maxItems", 0)

	var since time.Time
	if v := stringField(config, "sinceDate"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("invalid sinceDate (use RFC3339): %w", err)
		}
		since = parsed
	}

	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	fp := gofeed.NewParser()
	fp.Client = httpClient(f.Client)
	feed, err := fp.ParseURLWithContext(url, reqCtx)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}

	items := []any{}
	for _, item := range feed.Items {
		if !since.IsZero() && (item.PublishedParsed == nil || item.PublishedParsed.Before(since)) {
			continue
		}
		entry := map[string]any{
			"title":   item.Title,
			"link":    item.Link,
			"summary": item.Description,
		}
		if item.PublishedParsed != nil {
			entry["published"] = item.PublishedParsed.UTC().Format(time.RFC3339)
		}
		if item.Author != nil {
			entry["author"] = item.Author.Name
		}
		items = append(items, entry)
		if maxItems > 0 && len(items) >= maxItems {
			break
		}
	}
	return map[string]any{
		"title":     feed.Title,
		"items":     items,
		"itemCount": len(items),
	}, nil
}
