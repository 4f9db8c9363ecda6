package relay

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

const defaultBaseURL = "https://api.relayhq.com"

// Config configures a Client.
type Config struct {
	// BaseURL is the root of the Relay API. Defaults to the hosted
	// platform.
	BaseURL string
	// APIKey authenticates every request. Required.
	APIKey string
	// HTTPClient overrides the default 30-second client.
	HTTPClient *http.Client
}

// Client talks to the Relay HTTP API.
//
// Example:
//
//	client, err := relay.New(relay.Config{APIKey: os.Getenv("RELAY_API_KEY")})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	config, err := client.GetActiveConfig(ctx, "agent-123")
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ Platform = (*Client)(nil)

// New creates a Relay client.
//
// Parameters:
//   - cfg: client configuration; APIKey is required
//
// Returns an error if the configuration is incomplete.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("relay: APIKey is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}, nil
}

// GetActiveConfig returns the active configuration for an agent.
func (c *Client) GetActiveConfig(ctx context.Context, agentID string) (*AgentConfig, error) {
	var envelope struct {
		ID      string      `json:"id"`
		AgentID string      `json:"agentId"`
		Value   AgentConfig `json:"value"`
	}
	path := fmt.Sprintf("/api/agents/%s/config/active", agentID)
	if err := c.do(ctx, http.MethodGet, path, nil, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Value, nil
}

// CreateSession opens a new session.
func (c *Client) CreateSession(ctx context.Context, params CreateSessionParams) (*Session, error) {
	var session Session
	if err := c.do(ctx, http.MethodPost, "/api/sessions", params, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// UpdateSession applies a partial update to a session.
func (c *Client) UpdateSession(ctx context.Context, id string, update SessionUpdate) (*Session, error) {
	var session Session
	path := fmt.Sprintf("/api/sessions/%s", id)
	if err := c.do(ctx, http.MethodPatch, path, update, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// GetSession returns a session by ID.
func (c *Client) GetSession(ctx context.Context, id string) (*Session, error) {
	var session Session
	path := fmt.Sprintf("/api/sessions/%s", id)
	if err := c.do(ctx, http.MethodGet, path, nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// CreateActivity appends one activity-log entry to a session.
func (c *Client) CreateActivity(ctx context.Context, sessionID string, params ActivityParams) error {
	path := fmt.Sprintf("/api/sessions/%s/activities", sessionID)
	return c.do(ctx, http.MethodPost, path, params, nil)
}

// CreateInputRequest opens a human input request on a session.
func (c *Client) CreateInputRequest(ctx context.Context, sessionID string, params InputRequestParams) (*InputRequest, error) {
	var request InputRequest
	path := fmt.Sprintf("/api/sessions/%s/input-requests", sessionID)
	if err := c.do(ctx, http.MethodPost, path, params, &request); err != nil {
		return nil, err
	}
	return &request, nil
}

// GetInputRequest returns an input request by ID.
func (c *Client) GetInputRequest(ctx context.Context, id string) (*InputRequest, error) {
	var request InputRequest
	path := fmt.Sprintf("/api/input-requests/%s", id)
	if err := c.do(ctx, http.MethodGet, path, nil, &request); err != nil {
		return nil, err
	}
	return &request, nil
}

// CreateSinkItems bulk-writes sink items and returns the created rows.
func (c *Client) CreateSinkItems(ctx context.Context, items []SinkItem) ([]SinkItem, error) {
	body := struct {
		Items []SinkItem `json:"items"`
	}{Items: items}
	var response struct {
		Created []SinkItem `json:"created"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/sink-items/bulk", body, &response); err != nil {
		return nil, err
	}
	return response.Created, nil
}

// do makes one request against the Relay API and decodes the response
// into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("relay api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return decodeAPIError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeAPIError turns a non-2xx response into an *APIError. Bodies that
// are not the platform error envelope are carried verbatim as the message.
func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(resp.Body)
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Error.Message == "" {
		return NewAPIError(resp.StatusCode, "", strings.TrimSpace(string(raw)))
	}
	return NewAPIError(resp.StatusCode, envelope.Error.Code, envelope.Error.Message)
}
