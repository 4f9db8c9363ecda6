// Package relaytest provides an in-memory relay.Platform for tests.
//
// Store records every session, activity, input request and sink write so
// tests can assert on what a run persisted. Individual methods can be
// scripted to fail:
//
//	store := relaytest.NewStore()
//	store.FailWith("CreateSinkItems", errors.New("bulk write rejected"))
package relaytest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/relayhq/agents/relay"
)

// Store is an in-memory implementation of relay.Platform.
type Store struct {
	mu sync.Mutex

	// Config is returned by GetActiveConfig. Nil yields a 404.
	Config *relay.AgentConfig

	sessions   map[string]*relay.Session
	activities map[string][]relay.Activity
	requests   map[string]*relay.InputRequest
	sinkItems  []relay.SinkItem

	failures map[string]error

	nextSession  int
	nextRequest  int
	nextActivity int
}

var _ relay.Platform = (*Store)(nil)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		sessions:   make(map[string]*relay.Session),
		activities: make(map[string][]relay.Activity),
		requests:   make(map[string]*relay.InputRequest),
		failures:   make(map[string]error),
	}
}

// FailWith makes every call to the named method return err. Passing a
// nil err clears the failure.
func (s *Store) FailWith(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, method)
		return
	}
	s.failures[method] = err
}

func (s *Store) failureFor(method string) error {
	return s.failures[method]
}

// GetActiveConfig returns the configured AgentConfig or a 404 when none
// is set.
func (s *Store) GetActiveConfig(ctx context.Context, agentID string) (*relay.AgentConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failureFor("GetActiveConfig"); err != nil {
		return nil, err
	}
	if s.Config == nil {
		return nil, relay.NewAPIError(http.StatusNotFound, "config_not_found", "no active config for agent "+agentID)
	}
	config := *s.Config
	return &config, nil
}

// CreateSession opens a session with a sequential ID.
func (s *Store) CreateSession(ctx context.Context, params relay.CreateSessionParams) (*relay.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failureFor("CreateSession"); err != nil {
		return nil, err
	}

	s.nextSession++
	now := time.Now()
	session := &relay.Session{
		ID:        fmt.Sprintf("sess-%d", s.nextSession),
		AgentID:   params.AgentID,
		Status:    params.Status,
		State:     params.State,
		Metadata:  params.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessions[session.ID] = session

	copied := *session
	return &copied, nil
}

// UpdateSession applies non-zero update fields.
func (s *Store) UpdateSession(ctx context.Context, id string, update relay.SessionUpdate) (*relay.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failureFor("UpdateSession"); err != nil {
		return nil, err
	}

	session, ok := s.sessions[id]
	if !ok {
		return nil, relay.NewAPIError(http.StatusNotFound, "session_not_found", "no such session "+id)
	}
	if update.Status != "" {
		session.Status = update.Status
	}
	if update.State != nil {
		session.State = update.State
	}
	if update.ErrorMessage != "" {
		session.ErrorMessage = update.ErrorMessage
	}
	session.UpdatedAt = time.Now()

	copied := *session
	return &copied, nil
}

// GetSession returns a session by ID.
func (s *Store) GetSession(ctx context.Context, id string) (*relay.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failureFor("GetSession"); err != nil {
		return nil, err
	}

	session, ok := s.sessions[id]
	if !ok {
		return nil, relay.NewAPIError(http.StatusNotFound, "session_not_found", "no such session "+id)
	}
	copied := *session
	return &copied, nil
}

// CreateActivity appends an activity entry to an existing session.
func (s *Store) CreateActivity(ctx context.Context, sessionID string, params relay.ActivityParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failureFor("CreateActivity"); err != nil {
		return err
	}

	if _, ok := s.sessions[sessionID]; !ok {
		return relay.NewAPIError(http.StatusNotFound, "session_not_found", "no such session "+sessionID)
	}
	s.nextActivity++
	s.activities[sessionID] = append(s.activities[sessionID], relay.Activity{
		ID:        fmt.Sprintf("act-%d", s.nextActivity),
		SessionID: sessionID,
		Type:      params.Type,
		Source:    params.Source,
		Message:   params.Message,
		Payload:   params.Payload,
		CreatedAt: time.Now(),
	})
	return nil
}

// CreateInputRequest opens an input request on an existing session.
func (s *Store) CreateInputRequest(ctx context.Context, sessionID string, params relay.InputRequestParams) (*relay.InputRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failureFor("CreateInputRequest"); err != nil {
		return nil, err
	}

	if _, ok := s.sessions[sessionID]; !ok {
		return nil, relay.NewAPIError(http.StatusNotFound, "session_not_found", "no such session "+sessionID)
	}
	s.nextRequest++
	request := &relay.InputRequest{
		ID:        fmt.Sprintf("req-%d", s.nextRequest),
		SessionID: sessionID,
		Key:       params.Key,
		Schema:    params.Schema,
		Title:     params.Title,
		Message:   params.Message,
	}
	s.requests[request.ID] = request

	copied := *request
	return &copied, nil
}

// GetInputRequest returns an input request by ID.
func (s *Store) GetInputRequest(ctx context.Context, id string) (*relay.InputRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failureFor("GetInputRequest"); err != nil {
		return nil, err
	}

	request, ok := s.requests[id]
	if !ok {
		return nil, relay.NewAPIError(http.StatusNotFound, "input_request_not_found", "no such input request "+id)
	}
	copied := *request
	return &copied, nil
}

// CreateSinkItems records a bulk write and echoes the items back.
func (s *Store) CreateSinkItems(ctx context.Context, items []relay.SinkItem) ([]relay.SinkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failureFor("CreateSinkItems"); err != nil {
		return nil, err
	}

	s.sinkItems = append(s.sinkItems, items...)
	created := make([]relay.SinkItem, len(items))
	copy(created, items)
	return created, nil
}

// Respond records a human answer on an input request, as the Relay UI
// would.
func (s *Store) Respond(requestID string, response json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	request, ok := s.requests[requestID]
	if !ok {
		return fmt.Errorf("relaytest: no such input request %s", requestID)
	}
	now := time.Now()
	request.Response = response
	request.RespondedAt = &now
	return nil
}

// Session returns the stored session or nil.
func (s *Store) Session(id string) *relay.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil
	}
	copied := *session
	return &copied
}

// SessionCount returns the number of sessions ever created.
func (s *Store) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Activities returns the activity log of a session in append order.
func (s *Store) Activities(sessionID string) []relay.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]relay.Activity, len(s.activities[sessionID]))
	copy(entries, s.activities[sessionID])
	return entries
}

// SinkWrites returns every sink item written, in write order.
func (s *Store) SinkWrites() []relay.SinkItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]relay.SinkItem, len(s.sinkItems))
	copy(items, s.sinkItems)
	return items
}

// Requests returns every input request ever opened, in creation order.
func (s *Store) Requests() []relay.InputRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	requests := make([]relay.InputRequest, 0, len(s.requests))
	for i := 1; i <= s.nextRequest; i++ {
		if request, ok := s.requests[fmt.Sprintf("req-%d", i)]; ok {
			requests = append(requests, *request)
		}
	}
	return requests
}
