package trader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/relayhq/agents/pipeline"
	"github.com/relayhq/agents/relay"
)

// executionStatus marks fills as simulated. Nothing here trades.
const executionStatus = "simulated"

// approvalKey is the response key for one proposed trade.
func approvalKey(tradeID string) string {
	return "trade_" + tradeID
}

// approvalSchema builds the UI-rendering contract for the approval
// request: one sub-object per trade, immutable fields pinned with
// const, a single mutable boolean.
func approvalSchema(trades []Trade) json.RawMessage {
	properties := make(map[string]interface{}, len(trades))
	required := make([]string, 0, len(trades))
	for _, trade := range trades {
		key := approvalKey(trade.ID)
		required = append(required, key)
		properties[key] = map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"symbol":    map[string]interface{}{"const": trade.Symbol},
				"action":    map[string]interface{}{"const": trade.Action},
				"quantity":  map[string]interface{}{"const": trade.Quantity},
				"rationale": map[string]interface{}{"const": trade.Rationale},
				"approved":  map[string]interface{}{"type": "boolean"},
			},
			"required":             []string{"approved"},
			"additionalProperties": false,
		}
	}
	schema := map[string]interface{}{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
	raw, _ := json.Marshal(schema)
	return raw
}

// approvalResponse is the recorded human answer, keyed by approval key.
type approvalResponse map[string]struct {
	Approved bool `json:"approved"`
}

// partitionTrades splits the proposals into approved and rejected by
// presence and truthiness of the approved flag per key.
func partitionTrades(trades []Trade, response approvalResponse) (approved, rejected []Trade) {
	for _, trade := range trades {
		if entry, ok := response[approvalKey(trade.ID)]; ok && entry.Approved {
			approved = append(approved, trade)
		} else {
			rejected = append(rejected, trade)
		}
	}
	return approved, rejected
}

// Continue resumes a suspended run once the approval response is in.
func (a *Agent) Continue(ctx context.Context, sessionID, requestID string) pipeline.Result {
	return a.runner.Resume(ctx, sessionID, func(ctx context.Context, run *pipeline.Run) (map[string]interface{}, error) {
		return a.resume(ctx, run, requestID)
	})
}

// sessionState is the slice of session state the continuation needs.
type sessionState struct {
	Trades []Trade `json:"trades"`
}

func (a *Agent) resume(ctx context.Context, run *pipeline.Run, requestID string) (map[string]interface{}, error) {
	session, err := a.store.GetSession(ctx, run.SessionID())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch session: %w", err)
	}

	var state sessionState
	if len(session.State) > 0 {
		if err := json.Unmarshal(session.State, &state); err != nil {
			return nil, fmt.Errorf("failed to decode session state: %w", err)
		}
	}
	if len(state.Trades) == 0 {
		return nil, errors.New("no proposed trades found in session state")
	}

	request, err := a.store.GetInputRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch input request: %w", err)
	}
	if isNullResponse(request.Response) {
		return nil, errors.New("No response found")
	}

	var response approvalResponse
	if err := json.Unmarshal(request.Response, &response); err != nil {
		return nil, fmt.Errorf("failed to decode approval response: %w", err)
	}

	approved, rejected := partitionTrades(state.Trades, response)

	if len(approved) == 0 {
		if err := run.Checkpoint(ctx, phaseRejected, map[string]interface{}{
			"trades":   state.Trades,
			"executed": []Execution{},
		}); err != nil {
			return nil, err
		}
		run.Log(ctx, relay.ActivityApproval, "trader",
			fmt.Sprintf("All %d trades rejected", len(rejected)), nil)
		return map[string]interface{}{
			"status":   phaseRejected,
			"executed": []Execution{},
			"rejected": rejected,
		}, nil
	}

	executions := simulate(approved, a.now())

	err = run.Stage(ctx, "executing", func(ctx context.Context) error {
		return a.publishExecutions(ctx, executions)
	})
	if err != nil {
		return nil, err
	}

	if err := run.Checkpoint(ctx, phaseCompleted, map[string]interface{}{
		"executed": executions,
		"rejected": rejected,
	}); err != nil {
		return nil, err
	}
	run.Log(ctx, relay.ActivityInfo, "trader",
		fmt.Sprintf("Executed %d trades, %d rejected", len(executions), len(rejected)),
		map[string]interface{}{"executed": len(executions), "rejected": len(rejected)})

	return map[string]interface{}{
		"status":   phaseCompleted,
		"executed": executions,
		"rejected": rejected,
	}, nil
}

// simulate stamps the approved trades as executed. The timestamp and
// status are the only "execution"; no venue is involved.
func simulate(trades []Trade, at time.Time) []Execution {
	executions := make([]Execution, 0, len(trades))
	for _, trade := range trades {
		executions = append(executions, Execution{
			Trade:      trade,
			Status:     executionStatus,
			ExecutedAt: at.UTC(),
		})
	}
	return executions
}

func (a *Agent) publishExecutions(ctx context.Context, executions []Execution) error {
	cfg, err := a.store.GetActiveConfig(ctx, a.agentID)
	if err != nil {
		return fmt.Errorf("failed to fetch agent config: %w", err)
	}
	sinkID := cfg.SinkIDs[sinkTrades]
	if sinkID == "" {
		return fmt.Errorf("no sink is configured for %s", sinkTrades)
	}

	items := make([]relay.SinkItem, 0, len(executions))
	for _, execution := range executions {
		items = append(items, relay.SinkItem{
			SinkID: sinkID,
			Title: fmt.Sprintf("%s %s %s",
				strings.ToUpper(execution.Action), formatQuantity(execution.Quantity), execution.Symbol),
			Body: execution.Rationale,
			Fields: map[string]interface{}{
				"tradeId":    execution.ID,
				"symbol":     execution.Symbol,
				"action":     execution.Action,
				"quantity":   execution.Quantity,
				"confidence": execution.Confidence,
				"status":     execution.Status,
				"executedAt": execution.ExecutedAt.Format(time.RFC3339),
			},
		})
	}
	if _, err := a.store.CreateSinkItems(ctx, items); err != nil {
		return fmt.Errorf("failed to publish executions: %w", err)
	}
	return nil
}

// formatQuantity renders quantities without a trailing decimal for
// whole numbers.
func formatQuantity(quantity float64) string {
	return strconv.FormatFloat(quantity, 'f', -1, 64)
}

func isNullResponse(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return true
	}
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
