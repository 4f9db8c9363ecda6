package news

import (
	"context"
	"fmt"
	"time"

	"github.com/mmcdole/gofeed"
)

// FetchFeed downloads an RSS or Atom feed and projects its entries
// onto the Article shape. At most maxItems entries are returned; a
// non-positive maxItems returns every entry.
func FetchFeed(ctx context.Context, feedURL string, maxItems int) ([]Article, error) {
	parser := gofeed.NewParser()
	feed, err := parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed %s: %w", feedURL, err)
	}

	count := len(feed.Items)
	if maxItems > 0 && maxItems < count {
		count = maxItems
	}

	articles := make([]Article, 0, count)
	for _, item := range feed.Items[:count] {
		published := time.Now()
		if item.PublishedParsed != nil {
			published = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			published = *item.UpdatedParsed
		}

		author := ""
		if item.Author != nil {
			author = item.Author.Name
		}

		description := item.Description
		if description == "" {
			description = item.Content
		}

		articles = append(articles, Article{
			Source:      feed.Title,
			Author:      author,
			Title:       item.Title,
			Description: description,
			URL:         item.Link,
			PublishedAt: published,
		})
	}
	return articles, nil
}
