package news

import (
	"context"
	"log/slog"
	"sync"
	"time"

	readability "github.com/go-shiori/go-readability"
)

const (
	extractWorkers = 5
	extractTimeout = 30 * time.Second
)

// ExtractFullText fills Content with the readable body of each article,
// fetching pages through a bounded worker pool. Extraction is best
// effort: a page that cannot be fetched or parsed keeps whatever
// description the article already had.
func ExtractFullText(ctx context.Context, articles []Article) []Article {
	if len(articles) == 0 {
		return articles
	}

	logger := slog.Default().With(slog.String("component", "news.extract"))

	indexes := make(chan int, len(articles))
	var wg sync.WaitGroup

	workers := extractWorkers
	if len(articles) < workers {
		workers = len(articles)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				if ctx.Err() != nil {
					continue
				}
				article := &articles[i]
				if article.URL == "" {
					continue
				}
				parsed, err := readability.FromURL(article.URL, extractTimeout)
				if err != nil {
					logger.Warn("full-text extraction failed",
						slog.String("url", article.URL),
						slog.String("error", err.Error()))
					continue
				}
				if parsed.TextContent != "" {
					article.Content = parsed.TextContent
				}
			}
		}()
	}

	for i := range articles {
		indexes <- i
	}
	close(indexes)
	wg.Wait()

	return articles
}
