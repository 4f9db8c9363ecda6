// Package trader implements the trade proposal agent.
//
// A fresh run reads recent market news, asks the model for trade
// proposals and opens a Relay input request so a human can approve or
// reject each one; the session stays RUNNING while it waits. The
// continuation call (session and request IDs in the trigger headers)
// partitions the proposals by the recorded response, simulates the
// approved trades and publishes them to the trades sink. No order ever
// reaches a venue.
package trader

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/relayhq/agents/llm"
	"github.com/relayhq/agents/news"
	"github.com/relayhq/agents/observability"
	"github.com/relayhq/agents/pipeline"
	"github.com/relayhq/agents/relay"
)

const (
	defaultTradeCount = 3
	// marketNewsPageSize bounds the news context handed to the model.
	marketNewsPageSize = 10
	lookback           = 24 * time.Hour
	// sinkTrades is the SinkIDs key simulated executions go to.
	sinkTrades = "trades"
)

// Session phases.
const (
	phaseAnalyzing = "analyzing"
	phaseAwaiting  = "awaiting_approval"
	phaseRejected  = "rejected"
	phaseCompleted = "completed"
)

// Trade actions.
const (
	ActionBuy  = "buy"
	ActionSell = "sell"
)

// Trade is one proposed trade. The ID is assigned locally at proposal
// time and correlates the trade with its approval key.
type Trade struct {
	ID         string  `json:"id"`
	Symbol     string  `json:"symbol"`
	Action     string  `json:"action"`
	Quantity   float64 `json:"quantity"`
	Rationale  string  `json:"rationale"`
	Confidence float64 `json:"confidence"`
}

// Execution is a simulated fill of an approved trade.
type Execution struct {
	Trade
	Status     string    `json:"status"`
	ExecutedAt time.Time `json:"executedAt"`
}

// NewsSource is the slice of the news client the agent uses.
type NewsSource interface {
	Search(ctx context.Context, query news.Query) ([]news.Article, error)
}

// Config wires the trader's dependencies.
type Config struct {
	AgentID string
	Store   relay.Platform
	Model   llm.LLM
	News    NewsSource
	Runner  *pipeline.Runner
}

// Agent is the trade proposal service.
type Agent struct {
	agentID string
	store   relay.Platform
	model   llm.LLM
	news    NewsSource
	runner  *pipeline.Runner
	logger  *slog.Logger

	newID func() string
	now   func() time.Time
}

// New creates the trader.
func New(cfg Config) (*Agent, error) {
	if cfg.AgentID == "" {
		return nil, fmt.Errorf("trader: AgentID is required")
	}
	if cfg.Store == nil || cfg.Model == nil || cfg.News == nil || cfg.Runner == nil {
		return nil, fmt.Errorf("trader: Store, Model, News and Runner are required")
	}
	return &Agent{
		agentID: cfg.AgentID,
		store:   cfg.Store,
		model:   cfg.Model,
		news:    cfg.News,
		runner:  cfg.Runner,
		logger:  observability.Logger("trader").With(slog.String("agent", cfg.AgentID)),
		newID:   uuid.NewString,
		now:     time.Now,
	}, nil
}

// Run executes one fresh proposal run.
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

	tradeCount := cfg.ItemCount
	if tradeCount <= 0 {
		tradeCount = defaultTradeCount
	}

	if err := run.Begin(ctx, map[string]interface{}{"phase": phaseAnalyzing}, nil); err != nil {
		return nil, err
	}

	var articles []news.Article
	err = run.Stage(ctx, "fetching_news", func(ctx context.Context) error {
		articles, err = a.news.Search(ctx, news.Query{
			Keywords: cfg.Keywords,
			From:     time.Now().Add(-lookback),
			PageSize: marketNewsPageSize,
		})
		if err != nil {
			return fmt.Errorf("failed to fetch market news: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	run.Log(ctx, relay.ActivityStage, "trader",
		fmt.Sprintf("Fetched %d market articles", len(articles)),
		map[string]interface{}{"count": len(articles)})

	var trades []Trade
	err = run.Stage(ctx, "proposing_trades", func(ctx context.Context) error {
		trades, err = a.proposeTrades(ctx, cfg, tradeCount, articles)
		return err
	})
	if err != nil {
		return nil, err
	}

	if len(trades) == 0 {
		if err := run.Checkpoint(ctx, phaseCompleted, map[string]interface{}{
			"trades": []Trade{},
		}); err != nil {
			return nil, err
		}
		run.Log(ctx, relay.ActivityInfo, "trader", "No trades proposed", nil)
		return map[string]interface{}{
			"status": phaseCompleted,
			"trades": []Trade{},
		}, nil
	}

	var request *relay.InputRequest
	err = run.Stage(ctx, "requesting_approval", func(ctx context.Context) error {
		request, err = a.store.CreateInputRequest(ctx, run.SessionID(), relay.InputRequestParams{
			Key:     "trade_approval",
			Schema:  approvalSchema(trades),
			Title:   "Approve proposed trades",
			Message: fmt.Sprintf("%d proposed trades are awaiting your approval.", len(trades)),
		})
		if err != nil {
			return fmt.Errorf("failed to create approval request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := run.Checkpoint(ctx, phaseAwaiting, map[string]interface{}{
		"trades":    trades,
		"requestId": request.ID,
	}); err != nil {
		return nil, err
	}
	run.Log(ctx, relay.ActivityApproval, "trader",
		fmt.Sprintf("Requested approval for %d trades", len(trades)),
		map[string]interface{}{"requestId": request.ID})

	// The session stays RUNNING until the continuation call.
	run.Suspend()

	return map[string]interface{}{
		"status":    phaseAwaiting,
		"trades":    trades,
		"requestId": request.ID,
	}, nil
}

// proposal is the shape the model fills in.
type proposal struct {
	Trades []Trade `json:"trades"`
}

func (a *Agent) proposeTrades(ctx context.Context, cfg *relay.AgentConfig, tradeCount int, articles []news.Article) ([]Trade, error) {
	raw, err := llm.ExtractJSON(ctx, a.model, llm.ExtractionRequest{
		Instruction: buildInstruction(cfg, tradeCount),
		Input:       formatMarketNews(articles),
		SchemaName:  "trade_proposals",
		Schema:      proposalSchema(tradeCount),
		Fallback:    json.RawMessage(`{"trades":[]}`),
	})
	if err != nil {
		return nil, err
	}

	var prop proposal
	if err := json.Unmarshal(raw, &prop); err != nil {
		return nil, fmt.Errorf("failed to decode trade proposals: %w", err)
	}
	if len(prop.Trades) > tradeCount {
		prop.Trades = prop.Trades[:tradeCount]
	}
	for i := range prop.Trades {
		prop.Trades[i].ID = a.newID()
	}
	return prop.Trades, nil
}

func buildInstruction(cfg *relay.AgentConfig, tradeCount int) string {
	instruction := fmt.Sprintf(
		"You are a trading analyst. Based on the market news provided, propose up to %d trades. For each trade give the ticker symbol, the action (buy or sell), a positive quantity, a one-sentence rationale grounded in the news, and your confidence between 0 and 1. Propose fewer trades, or none at all, when the news gives no clear signal.",
		tradeCount)
	if cfg.CustomInstructions != "" {
		instruction += "\n\nAdditional instructions: " + cfg.CustomInstructions
	}
	return instruction
}

func formatMarketNews(articles []news.Article) string {
	if len(articles) == 0 {
		return "No recent market news was found."
	}
	var b strings.Builder
	for i, article := range articles {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, article.Title)
		if article.Source != "" {
			fmt.Fprintf(&b, "Source: %s\n", article.Source)
		}
		if article.Description != "" {
			b.WriteString(article.Description)
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func proposalSchema(tradeCount int) json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"trades": map[string]interface{}{
				"type":     "array",
				"maxItems": tradeCount,
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"symbol":     map[string]interface{}{"type": "string"},
						"action":     map[string]interface{}{"type": "string", "enum": []string{ActionBuy, ActionSell}},
						"quantity":   map[string]interface{}{"type": "number", "exclusiveMinimum": 0},
						"rationale":  map[string]interface{}{"type": "string"},
						"confidence": map[string]interface{}{"type": "number", "minimum": 0, "maximum": 1},
					},
					"required":             []string{"symbol", "action", "quantity", "rationale", "confidence"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"trades"},
		"additionalProperties": false,
	}
	raw, _ := json.Marshal(schema)
	return raw
}
