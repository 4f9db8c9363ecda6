// Package curator implements the news curation agent.
//
// A run fetches candidate articles from the news API and any configured
// RSS feeds, asks the model to select and summarize the most
// significant ones, publishes the selection to the articles sink and
// returns a plain-text digest.
package curator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/relayhq/agents/llm"
	"github.com/relayhq/agents/news"
	"github.com/relayhq/agents/observability"
	"github.com/relayhq/agents/pipeline"
	"github.com/relayhq/agents/relay"
)

const (
	defaultItemCount = 5
	// lookback bounds the news API search window.
	lookback = 24 * time.Hour
	// sinkArticles is the SinkIDs key the published articles go to.
	sinkArticles = "articles"
)

// Pipeline phases, recorded in session state.
const (
	phaseFetching   = "fetching_news"
	phaseSelecting  = "selecting"
	phasePublishing = "publishing"
)

// NewsSource is the slice of the news client the agent uses.
type NewsSource interface {
	Search(ctx context.Context, query news.Query) ([]news.Article, error)
}

// Config wires the curator's dependencies.
type Config struct {
	AgentID string
	Store   relay.Platform
	Model   llm.LLM
	News    NewsSource
	Runner  *pipeline.Runner
}

// Agent is the news curation service.
type Agent struct {
	agentID string
	store   relay.Platform
	model   llm.LLM
	news    NewsSource
	runner  *pipeline.Runner
	logger  *slog.Logger

	fetchFeed   func(ctx context.Context, feedURL string, maxItems int) ([]news.Article, error)
	extractText func(ctx context.Context, articles []news.Article) []news.Article
}

// New creates the curator.
func New(cfg Config) (*Agent, error) {
	if cfg.AgentID == "" {
		return nil, fmt.Errorf("curator: AgentID is required")
	}
	if cfg.Store == nil || cfg.Model == nil || cfg.News == nil || cfg.Runner == nil {
		return nil, fmt.Errorf("curator: Store, Model, News and Runner are required")
	}
	return &Agent{
		agentID:     cfg.AgentID,
		store:       cfg.Store,
		model:       cfg.Model,
		news:        cfg.News,
		runner:      cfg.Runner,
		logger:      observability.Logger("curator").With(slog.String("agent", cfg.AgentID)),
		fetchFeed:   news.FetchFeed,
		extractText: news.ExtractFullText,
	}, nil
}

// Run executes one curation run.
func (a *Agent) Run(ctx context.Context) pipeline.Result {
	return a.runner.Execute(ctx, a.run)
}

func (a *Agent) run(ctx context.Context, run *pipeline.Run) (map[string]interface{}, error) {
	cfg, err := a.store.GetActiveConfig(ctx, a.agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch agent config: %w", err)
	}
	if !cfg.Enabled {
		return nil, pipeline.NewSkipError("Agent is disabled")
	}
	if len(cfg.Keywords) == 0 && len(cfg.Filters.Feeds) == 0 {
		return nil, fmt.Errorf("no keywords or feeds are configured")
	}

	itemCount := cfg.ItemCount
	if itemCount <= 0 {
		itemCount = defaultItemCount
	}

	if err := run.Begin(ctx, map[string]interface{}{"phase": phaseFetching}, nil); err != nil {
		return nil, err
	}

	var candidates []news.Article
	err = run.Stage(ctx, phaseFetching, func(ctx context.Context) error {
		candidates, err = a.fetchCandidates(ctx, cfg, itemCount)
		return err
	})
	if err != nil {
		return nil, err
	}
	run.Log(ctx, relay.ActivityStage, "curator",
		fmt.Sprintf("Fetched %d candidate articles", len(candidates)),
		map[string]interface{}{"count": len(candidates)})

	if err := run.Checkpoint(ctx, phaseSelecting, map[string]interface{}{
		"candidates": len(candidates),
	}); err != nil {
		return nil, err
	}

	var selected []Article
	err = run.Stage(ctx, phaseSelecting, func(ctx context.Context) error {
		selected, err = a.selectArticles(ctx, cfg, itemCount, candidates)
		return err
	})
	if err != nil {
		return nil, err
	}
	run.Log(ctx, relay.ActivityLLM, "curator",
		fmt.Sprintf("Selected %d articles", len(selected)), nil)

	if err := run.Checkpoint(ctx, phasePublishing, map[string]interface{}{
		"candidates": len(candidates),
		"articles":   selected,
	}); err != nil {
		return nil, err
	}

	var report string
	err = run.Stage(ctx, phasePublishing, func(ctx context.Context) error {
		report, err = a.publish(ctx, cfg, selected)
		return err
	})
	if err != nil {
		return nil, err
	}
	run.Log(ctx, relay.ActivityInfo, "curator",
		fmt.Sprintf("Published %d articles", len(selected)), nil)

	return map[string]interface{}{
		"articles": selected,
		"report":   report,
	}, nil
}

// fetchCandidates merges the news API search with the configured RSS
// feeds. Feed failures are logged and skipped; the API call is
// authoritative and fails the stage.
func (a *Agent) fetchCandidates(ctx context.Context, cfg *relay.AgentConfig, itemCount int) ([]news.Article, error) {
	candidateCount := itemCount * 3

	var candidates []news.Article
	if len(cfg.Keywords) > 0 {
		articles, err := a.news.Search(ctx, news.Query{
			Keywords: cfg.Keywords,
			From:     time.Now().Add(-lookback),
			PageSize: candidateCount,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch news: %w", err)
		}
		candidates = articles
	}

	for _, feedURL := range cfg.Filters.Feeds {
		items, err := a.fetchFeed(ctx, feedURL, candidateCount)
		if err != nil {
			a.logger.Warn("rss feed fetch failed",
				slog.String("feed", feedURL),
				slog.String("error", err.Error()))
			continue
		}
		candidates = append(candidates, items...)
	}

	candidates = news.MergeByURL(candidates)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no articles found for the configured sources")
	}

	if cfg.Filters.FetchFullText {
		candidates = a.extractText(ctx, candidates)
	}
	return candidates, nil
}

// selection is the shape the model fills in.
type selection struct {
	Articles []Article `json:"articles"`
}

func (a *Agent) selectArticles(ctx context.Context, cfg *relay.AgentConfig, itemCount int, candidates []news.Article) ([]Article, error) {
	count := itemCount
	if len(candidates) < count {
		count = len(candidates)
	}

	raw, err := llm.ExtractJSON(ctx, a.model, llm.ExtractionRequest{
		Instruction: buildInstruction(cfg, count),
		Input:       formatCandidates(candidates),
		SchemaName:  "article_selection",
		Schema:      selectionSchema(count),
	})
	if err != nil {
		return nil, err
	}

	var sel selection
	if err := json.Unmarshal(raw, &sel); err != nil {
		return nil, fmt.Errorf("failed to decode article selection: %w", err)
	}
	if len(sel.Articles) != count {
		return nil, fmt.Errorf("model selected %d articles, want %d", len(sel.Articles), count)
	}
	for _, article := range sel.Articles {
		if !validCategory(article.Category) {
			return nil, fmt.Errorf("model returned unknown category %q", article.Category)
		}
	}
	return sel.Articles, nil
}

func (a *Agent) publish(ctx context.Context, cfg *relay.AgentConfig, selected []Article) (string, error) {
	sinkID := cfg.SinkIDs[sinkArticles]
	if sinkID == "" {
		return "", fmt.Errorf("no sink is configured for %s", sinkArticles)
	}

	items := make([]relay.SinkItem, 0, len(selected))
	for _, article := range selected {
		items = append(items, relay.SinkItem{
			SinkID: sinkID,
			Title:  article.Title,
			Body:   article.Summary,
			URL:    article.URL,
			Fields: map[string]interface{}{
				"category":  article.Category,
				"reasoning": article.Reasoning,
			},
		})
	}
	if _, err := a.store.CreateSinkItems(ctx, items); err != nil {
		return "", fmt.Errorf("failed to publish articles: %w", err)
	}
	return FormatDigest(selected), nil
}

func buildInstruction(cfg *relay.AgentConfig, count int) string {
	instruction := fmt.Sprintf(
		"You are a financial news curator. From the numbered candidate articles, select the %d most significant ones and return them ranked, most important first. For each selected article keep its original title and url, write a summary of at most two sentences, assign exactly one category (markets, crypto, companies, macro or tech) and explain in one sentence why it matters.",
		count)
	if cfg.CustomInstructions != "" {
		instruction += "\n\nAdditional instructions: " + cfg.CustomInstructions
	}
	return instruction
}

// contentLimit caps per-article body text in the model input.
const contentLimit = 2000

func formatCandidates(articles []news.Article) string {
	var b strings.Builder
	for i, article := range articles {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, article.Title)
		if article.Source != "" {
			fmt.Fprintf(&b, "Source: %s\n", article.Source)
		}
		if article.URL != "" {
			fmt.Fprintf(&b, "URL: %s\n", article.URL)
		}
		if !article.PublishedAt.IsZero() {
			fmt.Fprintf(&b, "Published: %s\n", article.PublishedAt.Format(time.RFC3339))
		}
		body := article.Content
		if body == "" {
			body = article.Description
		}
		if body != "" {
			b.WriteString(clip(body, contentLimit))
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func clip(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}

func selectionSchema(count int) json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"articles": map[string]interface{}{
				"type":     "array",
				"minItems": count,
				"maxItems": count,
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"title":     map[string]interface{}{"type": "string"},
						"url":       map[string]interface{}{"type": "string"},
						"summary":   map[string]interface{}{"type": "string"},
						"category":  map[string]interface{}{"type": "string", "enum": Categories},
						"reasoning": map[string]interface{}{"type": "string"},
					},
					"required":             []string{"title", "url", "summary", "category", "reasoning"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"articles"},
		"additionalProperties": false,
	}
	raw, _ := json.Marshal(schema)
	return raw
}
