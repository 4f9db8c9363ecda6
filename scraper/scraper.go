// Package scraper collects social posts through a hosted actor-run
// scraping service.
//
// A search is three calls: start an actor run, poll the run until it
// reaches a terminal status, then download the result dataset. Raw
// results are noisy; Normalize applies the filter chain the agents
// expect before any analysis.
package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL      = "https://api.apify.com"
	defaultActor        = "apidojo~tweet-scraper"
	defaultPollInterval = 2 * time.Second
)

// Actor run statuses reported by the scraping service.
const (
	runStatusSucceeded = "SUCCEEDED"
	runStatusFailed    = "FAILED"
	runStatusAborted   = "ABORTED"
	runStatusTimedOut  = "TIMED-OUT"
)

// Author is the account that posted a tweet.
type Author struct {
	UserName  string `json:"userName"`
	Name      string `json:"name"`
	Followers int    `json:"followers"`
}

// Tweet is one scraped post.
type Tweet struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	URL       string    `json:"url"`
	IsRetweet bool      `json:"isRetweet"`
	CreatedAt time.Time `json:"createdAt"`
	Author    Author    `json:"author"`
	Likes     int       `json:"likeCount"`
	Replies   int       `json:"replyCount"`
	Retweets  int       `json:"retweetCount"`
}

// Query describes one scraping search.
type Query struct {
	// Terms are the keyword search terms, one run covers all of them.
	Terms []string
	// MaxItems caps the dataset size.
	MaxItems int
	// Sort orders results ("Latest" or "Top", default "Latest").
	Sort string
	// Language filters posts (default "en").
	Language string
}

// Config configures a scraping client.
type Config struct {
	// BaseURL is the root of the scraping service. Defaults to the
	// hosted service.
	BaseURL string
	// Token authenticates every request. Required.
	Token string
	// Actor is the actor to run. Defaults to the tweet scraper.
	Actor string
	// HTTPClient overrides the default 30-second client.
	HTTPClient *http.Client
	// PollInterval is the fixed delay between run status checks.
	// Defaults to 2 seconds.
	PollInterval time.Duration
}

// Client starts actor runs and collects their datasets.
type Client struct {
	baseURL      string
	token        string
	actor        string
	httpClient   *http.Client
	pollInterval time.Duration
}

// NewClient creates a scraping client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("scraper: Token is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	actor := cfg.Actor
	if actor == "" {
		actor = defaultActor
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		token:        cfg.Token,
		actor:        actor,
		httpClient:   httpClient,
		pollInterval: pollInterval,
	}, nil
}

// runState is the wire shape of an actor run.
type runState struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	DefaultDatasetID string `json:"defaultDatasetId"`
}

// runInput is the actor input for a search run.
type runInput struct {
	SearchTerms   []string `json:"searchTerms"`
	MaxItems      int      `json:"maxItems"`
	Sort          string   `json:"sort"`
	TweetLanguage string   `json:"tweetLanguage"`
}

// Search runs one scraping search and returns the raw dataset. It
// blocks until the run reaches a terminal status or ctx is done.
func (c *Client) Search(ctx context.Context, query Query) ([]Tweet, error) {
	if len(query.Terms) == 0 {
		return nil, fmt.Errorf("scraper: at least one search term is required")
	}

	run, err := c.startRun(ctx, query)
	if err != nil {
		return nil, err
	}

	run, err = c.waitForRun(ctx, run)
	if err != nil {
		return nil, err
	}

	return c.datasetItems(ctx, run.DefaultDatasetID)
}

func (c *Client) startRun(ctx context.Context, query Query) (runState, error) {
	sort := query.Sort
	if sort == "" {
		sort = "Latest"
	}
	language := query.Language
	if language == "" {
		language = "en"
	}
	input := runInput{
		SearchTerms:   query.Terms,
		MaxItems:      query.MaxItems,
		Sort:          sort,
		TweetLanguage: language,
	}

	path := fmt.Sprintf("/v2/acts/%s/runs", c.actor)
	var envelope struct {
		Data runState `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, path, input, &envelope); err != nil {
		return runState{}, fmt.Errorf("failed to start run: %w", err)
	}
	return envelope.Data, nil
}

// waitForRun polls the run at a fixed interval until it is terminal.
func (c *Client) waitForRun(ctx context.Context, run runState) (runState, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		switch run.Status {
		case runStatusSucceeded:
			return run, nil
		case runStatusFailed, runStatusAborted, runStatusTimedOut:
			return runState{}, NewRunError(run.ID, run.Status)
		}

		select {
		case <-ctx.Done():
			return runState{}, ctx.Err()
		case <-ticker.C:
		}

		var envelope struct {
			Data runState `json:"data"`
		}
		if err := c.do(ctx, http.MethodGet, "/v2/actor-runs/"+run.ID, nil, &envelope); err != nil {
			return runState{}, fmt.Errorf("failed to poll run %s: %w", run.ID, err)
		}
		run = envelope.Data
	}
}

func (c *Client) datasetItems(ctx context.Context, datasetID string) ([]Tweet, error) {
	if datasetID == "" {
		return nil, fmt.Errorf("scraper: run finished without a dataset")
	}
	var items []Tweet
	if err := c.do(ctx, http.MethodGet, "/v2/datasets/"+datasetID+"/items", nil, &items); err != nil {
		return nil, fmt.Errorf("failed to collect dataset %s: %w", datasetID, err)
	}
	return items, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("scraper api error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if out == nil {
		_, err := io.Copy(io.Discard, resp.Body)
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
