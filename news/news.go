// Package news fetches articles for the curation and trading agents.
//
// Three sources feed the same Article shape: the hosted news API
// (keyword search over recent coverage), RSS/Atom feeds configured per
// agent, and best-effort full-text extraction of article bodies.
package news

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Article is one fetched news article, regardless of source.
type Article struct {
	Source      string    `json:"source"`
	Author      string    `json:"author,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Content     string    `json:"content,omitempty"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"publishedAt"`
}

const (
	defaultBaseURL  = "https://newsapi.org"
	defaultPageSize = 20
	maxPageSize     = 100
)

// Config configures a news API client.
type Config struct {
	// BaseURL is the root of the news API. Defaults to the hosted
	// service.
	BaseURL string
	// APIKey authenticates every request. Required.
	APIKey string
	// HTTPClient overrides the default 30-second client.
	HTTPClient *http.Client
	// RequestsPerMinute caps outbound calls. Zero disables the limiter.
	RequestsPerMinute int
}

// Client queries the news API with a politeness rate limit.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a news API client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("news: APIKey is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		limiter:    limiter,
	}, nil
}

// Query describes one article search.
type Query struct {
	// Keywords are OR-joined into the search expression.
	Keywords []string
	// From bounds results to articles published at or after this time.
	From time.Time
	// PageSize caps the result count (max 100, default 20).
	PageSize int
	// Language filters results (default "en").
	Language string
	// SortBy orders results (default "publishedAt").
	SortBy string
}

// searchResponse is the wire shape of the everything endpoint.
type searchResponse struct {
	Status       string `json:"status"`
	Code         string `json:"code"`
	Message      string `json:"message"`
	TotalResults int    `json:"totalResults"`
	Articles     []struct {
		Source struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"source"`
		Author      string    `json:"author"`
		Title       string    `json:"title"`
		Description string    `json:"description"`
		URL         string    `json:"url"`
		PublishedAt time.Time `json:"publishedAt"`
		Content     string    `json:"content"`
	} `json:"articles"`
}

// Search queries recent coverage matching the keywords.
func (c *Client) Search(ctx context.Context, query Query) ([]Article, error) {
	if len(query.Keywords) == 0 {
		return nil, fmt.Errorf("news: at least one keyword is required")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	language := query.Language
	if language == "" {
		language = "en"
	}
	sortBy := query.SortBy
	if sortBy == "" {
		sortBy = "publishedAt"
	}

	params := url.Values{}
	params.Set("q", strings.Join(query.Keywords, " OR "))
	params.Set("pageSize", strconv.Itoa(pageSize))
	params.Set("language", language)
	params.Set("sortBy", sortBy)
	if !query.From.IsZero() {
		params.Set("from", query.From.UTC().Format(time.RFC3339))
	}

	endpoint := fmt.Sprintf("%s/v2/everything?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("news api request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var decoded searchResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	// The API reports failures in-band with status "error".
	if decoded.Status == "error" {
		return nil, fmt.Errorf("news api error [%s]: %s", decoded.Code, decoded.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("news api error (status %d): %s", resp.StatusCode, string(raw))
	}

	articles := make([]Article, 0, len(decoded.Articles))
	for _, a := range decoded.Articles {
		articles = append(articles, Article{
			Source:      a.Source.Name,
			Author:      a.Author,
			Title:       a.Title,
			Description: a.Description,
			Content:     a.Content,
			URL:         a.URL,
			PublishedAt: a.PublishedAt,
		})
	}
	return articles, nil
}

// MergeByURL concatenates article batches, dropping later entries whose
// URL was already seen. Order within and across batches is preserved.
func MergeByURL(batches ...[]Article) []Article {
	seen := make(map[string]bool)
	var merged []Article
	for _, batch := range batches {
		for _, article := range batch {
			if article.URL != "" && seen[article.URL] {
				continue
			}
			if article.URL != "" {
				seen[article.URL] = true
			}
			merged = append(merged, article)
		}
	}
	return merged
}
