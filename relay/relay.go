// Package relay is the client for the Relay session-tracking platform.
//
// Relay stores everything an agent run produces: the run session itself,
// its activity log, pending human input requests, and the sink items a
// run publishes. The agents in this repository hold no state of their
// own. Every identifier (agent, session, sink, input request) is an
// opaque string assigned by Relay and passed through unchanged.
//
// Key concepts:
//   - AgentConfig: the active configuration for an agent, fetched at the
//     start of every run
//   - Session: one run of one agent, RUNNING until finalized
//   - Activity: append-only log entries attached to a session
//   - InputRequest: a question for a human, answered out of band
//   - SinkItem: a published output row, written in bulk, never read back
package relay

import (
	"context"
	"encoding/json"
	"time"
)

// Status is the lifecycle status of a session.
type Status string

const (
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Filters holds the optional per-agent source filters.
type Filters struct {
	// MinFollowers drops social posts from authors below this count.
	MinFollowers int `json:"minFollowers,omitempty"`
	// Feeds is an optional list of RSS feed URLs to merge in.
	Feeds []string `json:"feeds,omitempty"`
	// FetchFullText enables article body extraction for curated news.
	FetchFullText bool `json:"fetchFullText,omitempty"`
}

// AgentConfig is the active configuration for an agent.
type AgentConfig struct {
	Enabled            bool              `json:"enabled"`
	ItemCount          int               `json:"itemCount"`
	Keywords           []string          `json:"keywords"`
	SinkIDs            map[string]string `json:"sinkIds"`
	CustomInstructions string            `json:"customInstructions"`
	Filters            Filters           `json:"filters"`
}

// Session is one run of one agent.
type Session struct {
	ID           string                 `json:"id"`
	AgentID      string                 `json:"agentId"`
	Status       Status                 `json:"status"`
	State        json.RawMessage        `json:"state,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	ErrorMessage string                 `json:"errorMessage,omitempty"`
	CreatedAt    time.Time              `json:"createdAt"`
	UpdatedAt    time.Time              `json:"updatedAt"`
}

// ActivityType classifies activity-log entries.
type ActivityType string

const (
	ActivityInfo     ActivityType = "info"
	ActivityStage    ActivityType = "stage"
	ActivityLLM      ActivityType = "llm"
	ActivityApproval ActivityType = "approval"
	ActivityError    ActivityType = "error"
)

// Activity is one append-only log entry on a session.
type Activity struct {
	ID        string                 `json:"id"`
	SessionID string                 `json:"sessionId"`
	Type      ActivityType           `json:"type"`
	Source    string                 `json:"source"`
	Message   string                 `json:"message"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

// InputRequest is a pending question for a human collaborator. Response
// stays null until the request is answered in the Relay UI.
type InputRequest struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"sessionId"`
	Key         string          `json:"key"`
	Schema      json.RawMessage `json:"schema,omitempty"`
	Title       string          `json:"title"`
	Message     string          `json:"message"`
	Response    json.RawMessage `json:"response,omitempty"`
	RespondedAt *time.Time      `json:"respondedAt,omitempty"`
}

// Resource is a link attached to a sink item.
type Resource struct {
	Type  string `json:"type"`
	Label string `json:"label,omitempty"`
	URL   string `json:"url"`
}

// SinkItem is one published output row.
type SinkItem struct {
	SinkID    string                 `json:"sinkId"`
	Title     string                 `json:"title"`
	Body      string                 `json:"body"`
	URL       string                 `json:"url,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Resources []Resource             `json:"resources,omitempty"`
}

// CreateSessionParams are the fields for opening a session.
type CreateSessionParams struct {
	AgentID  string                 `json:"agentId"`
	Status   Status                 `json:"status"`
	State    json.RawMessage        `json:"state,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// SessionUpdate is a partial session update. Zero fields are omitted
// from the request and left untouched by the platform.
type SessionUpdate struct {
	Status       Status          `json:"status,omitempty"`
	State        json.RawMessage `json:"state,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
}

// ActivityParams are the fields for one activity-log entry.
type ActivityParams struct {
	Type    ActivityType           `json:"type"`
	Source  string                 `json:"source"`
	Message string                 `json:"message"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// InputRequestParams are the fields for opening an input request.
type InputRequestParams struct {
	Key     string          `json:"key"`
	Schema  json.RawMessage `json:"schema"`
	Title   string          `json:"title"`
	Message string          `json:"message"`
}

// Platform is the Relay operation surface the agent services depend on.
//
// *Client implements it against the HTTP API. relaytest.Store implements
// it in memory for tests.
type Platform interface {
	// GetActiveConfig returns the active configuration for an agent.
	GetActiveConfig(ctx context.Context, agentID string) (*AgentConfig, error)

	// CreateSession opens a new session.
	CreateSession(ctx context.Context, params CreateSessionParams) (*Session, error)

	// UpdateSession applies a partial update to a session.
	UpdateSession(ctx context.Context, id string, update SessionUpdate) (*Session, error)

	// GetSession returns a session by ID.
	GetSession(ctx context.Context, id string) (*Session, error)

	// CreateActivity appends one activity-log entry to a session.
	CreateActivity(ctx context.Context, sessionID string, params ActivityParams) error

	// CreateInputRequest opens a human input request on a session.
	CreateInputRequest(ctx context.Context, sessionID string, params InputRequestParams) (*InputRequest, error)

	// GetInputRequest returns an input request by ID.
	GetInputRequest(ctx context.Context, id string) (*InputRequest, error)

	// CreateSinkItems bulk-writes sink items and returns the created rows.
	CreateSinkItems(ctx context.Context, items []SinkItem) ([]SinkItem, error)
}
