// Package scout implements the social listening agent.
//
// A run scrapes recent posts for the configured keywords, filters them
// down to analyzable tweets, fans out four parallel model analyses
// (comment opportunities, trends, tool mentions, tutorial ideas),
// publishes each category to its own sink and returns a digest with
// engagement statistics.
package scout

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/relayhq/agents/llm"
	"github.com/relayhq/agents/observability"
	"github.com/relayhq/agents/pipeline"
	"github.com/relayhq/agents/relay"
	"github.com/relayhq/agents/scraper"
)

const defaultItemCount = 25

// Pipeline phases, recorded in session state.
const (
	phaseScraping   = "scraping"
	phaseFiltering  = "filtering"
	phaseAnalyzing  = "analyzing"
	phasePublishing = "publishing"
	phaseCompleted  = "completed"
)

// PostSource is the slice of the scraping client the agent uses.
type PostSource interface {
	Search(ctx context.Context, query scraper.Query) ([]scraper.Tweet, error)
}

// Config wires the scout's dependencies.
type Config struct {
	AgentID string
	Store   relay.Platform
	Model   llm.LLM
	Scraper PostSource
	Runner  *pipeline.Runner
}

// Agent is the social listening service.
type Agent struct {
	agentID string
	store   relay.Platform
	model   llm.LLM
	source  PostSource
	runner  *pipeline.Runner
	logger  *slog.Logger
}

// New creates the scout.
func New(cfg Config) (*Agent, error) {
	if cfg.AgentID == "" {
		return nil, fmt.Errorf("scout: AgentID is required")
	}
	if cfg.Store == nil || cfg.Model == nil || cfg.Scraper == nil || cfg.Runner == nil {
		return nil, fmt.Errorf("scout: Store, Model, Scraper and Runner are required")
	}
	return &Agent{
		agentID: cfg.AgentID,
		store:   cfg.Store,
		model:   cfg.Model,
		source:  cfg.Scraper,
		runner:  cfg.Runner,
		logger:  observability.Logger("scout").With(slog.String("agent", cfg.AgentID)),
	}, nil
}

// Run executes one listening run.
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
	if len(cfg.Keywords) == 0 {
		return nil, fmt.Errorf("no keywords are configured")
	}

	itemCount := cfg.ItemCount
	if itemCount <= 0 {
		itemCount = defaultItemCount
	}

	if err := run.Begin(ctx, map[string]interface{}{"phase": phaseScraping}, nil); err != nil {
		return nil, err
	}

	var raw []scraper.Tweet
	err = run.Stage(ctx, phaseScraping, func(ctx context.Context) error {
		raw, err = a.source.Search(ctx, scraper.Query{
			Terms:    cfg.Keywords,
			MaxItems: itemCount,
		})
		if err != nil {
			return fmt.Errorf("failed to scrape posts: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	run.Log(ctx, relay.ActivityStage, "scout",
		fmt.Sprintf("Scraped %d posts", len(raw)),
		map[string]interface{}{"count": len(raw)})

	if err := run.Checkpoint(ctx, phaseFiltering, map[string]interface{}{
		"scraped": len(raw),
	}); err != nil {
		return nil, err
	}
	tweets := scraper.Normalize(raw, scraper.Options{MinFollowers: cfg.Filters.MinFollowers})
	a.logger.Debug("filtered posts",
		slog.Int("scraped", len(raw)),
		slog.Int("kept", len(tweets)),
		slog.Int("min_followers", cfg.Filters.MinFollowers))
	run.Log(ctx, relay.ActivityStage, "scout",
		fmt.Sprintf("Kept %d of %d posts after filtering", len(tweets), len(raw)), nil)

	// Nothing surviving the filters is a quiet day, not a failure.
	if len(tweets) == 0 {
		if err := run.Checkpoint(ctx, phaseCompleted, map[string]interface{}{
			"tweets": 0,
		}); err != nil {
			return nil, err
		}
		run.Log(ctx, relay.ActivityInfo, "scout", "No posts matched the filters", nil)
		return map[string]interface{}{
			"tweets": 0,
			"counts": emptyCounts(),
			"digest": formatDigest(0, EngagementStats{}, EngagementStats{}, nil),
		}, nil
	}

	if err := run.Checkpoint(ctx, phaseAnalyzing, map[string]interface{}{
		"tweets": len(tweets),
	}); err != nil {
		return nil, err
	}

	input := formatTweets(tweets)
	var results []categoryResult
	err = run.Stage(ctx, phaseAnalyzing, func(ctx context.Context) error {
		results, err = a.analyze(ctx, input, cfg.CustomInstructions)
		return err
	})
	if err != nil {
		return nil, err
	}
	counts := resultCounts(results)
	run.Log(ctx, relay.ActivityLLM, "scout",
		fmt.Sprintf("Completed %d analyses", len(results)),
		map[string]interface{}{"counts": counts})

	followers, likes := engagementValues(tweets)
	followerStats := Summarize(followers)
	likeStats := Summarize(likes)

	if err := run.Checkpoint(ctx, phasePublishing, map[string]interface{}{
		"tweets": len(tweets),
		"counts": counts,
		"engagement": map[string]interface{}{
			"followers": followerStats,
			"likes":     likeStats,
		},
	}); err != nil {
		return nil, err
	}

	var digest string
	err = run.Stage(ctx, phasePublishing, func(ctx context.Context) error {
		digest, err = a.publish(ctx, cfg, results, len(tweets), followerStats, likeStats)
		return err
	})
	if err != nil {
		return nil, err
	}
	run.Log(ctx, relay.ActivityInfo, "scout",
		fmt.Sprintf("Published %d items", totalItems(results)), nil)

	return map[string]interface{}{
		"tweets": len(tweets),
		"counts": counts,
		"digest": digest,
	}, nil
}

// analyze fans out the four category analyses over the same input.
// The first failure cancels the rest and fails the whole stage.
func (a *Agent) analyze(ctx context.Context, input, custom string) ([]categoryResult, error) {
	tasks := []pipeline.Task[categoryResult]{
		func(ctx context.Context) (categoryResult, error) { return a.analyzeComments(ctx, input, custom) },
		func(ctx context.Context) (categoryResult, error) { return a.analyzeTrends(ctx, input, custom) },
		func(ctx context.Context) (categoryResult, error) { return a.analyzeTools(ctx, input, custom) },
		func(ctx context.Context) (categoryResult, error) { return a.analyzeTutorials(ctx, input, custom) },
	}
	return pipeline.Parallel(ctx, tasks)
}

// publish writes every category's items to its configured sink in one
// batch. A category with no items needs no sink mapping.
func (a *Agent) publish(ctx context.Context, cfg *relay.AgentConfig, results []categoryResult, tweetCount int, followers, likes EngagementStats) (string, error) {
	var batch []relay.SinkItem
	for _, result := range results {
		if len(result.items) == 0 {
			continue
		}
		sinkID := cfg.SinkIDs[result.key]
		if sinkID == "" {
			return "", fmt.Errorf("no sink is configured for %s", result.key)
		}
		for _, item := range result.items {
			item.SinkID = sinkID
			batch = append(batch, item)
		}
	}

	if len(batch) > 0 {
		if _, err := a.store.CreateSinkItems(ctx, batch); err != nil {
			return "", fmt.Errorf("failed to publish analysis items: %w", err)
		}
	}
	return formatDigest(tweetCount, followers, likes, results), nil
}

func resultCounts(results []categoryResult) map[string]int {
	counts := make(map[string]int, len(results))
	for _, result := range results {
		counts[result.key] = len(result.items)
	}
	return counts
}

func emptyCounts() map[string]int {
	return map[string]int{
		sinkComments:  0,
		sinkTrends:    0,
		sinkTools:     0,
		sinkTutorials: 0,
	}
}

func totalItems(results []categoryResult) int {
	total := 0
	for _, result := range results {
		total += len(result.items)
	}
	return total
}
