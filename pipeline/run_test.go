package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/relayhq/agents/events"
	"github.com/relayhq/agents/relay"
	"github.com/relayhq/agents/relay/relaytest"
)

// recordingEmitter captures feed events for assertions.
type recordingEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingEmitter) Emit(event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingEmitter) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	messages := make([]string, len(r.events))
	for i, event := range r.events {
		messages[i] = event.Message
	}
	return messages
}

func newTestRunner(t *testing.T, store *relaytest.Store) *Runner {
	t.Helper()
	runner, err := NewRunner(RunnerConfig{AgentID: "curator", Store: store})
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	return runner
}

func TestNewRunnerValidatesConfig(t *testing.T) {
	if _, err := NewRunner(RunnerConfig{Store: relaytest.NewStore()}); err == nil {
		t.Error("expected an error for missing AgentID")
	}
	if _, err := NewRunner(RunnerConfig{AgentID: "curator"}); err == nil {
		t.Error("expected an error for missing Store")
	}
}

func TestExecuteCompletesSession(t *testing.T) {
	store := relaytest.NewStore()
	runner := newTestRunner(t, store)

	result := runner.Execute(context.Background(), func(ctx context.Context, run *Run) (map[string]interface{}, error) {
		if err := run.Begin(ctx, map[string]interface{}{"keywords": []string{"ai"}}, map[string]interface{}{"trigger": "manual"}); err != nil {
			return nil, err
		}
		if err := run.Checkpoint(ctx, "selecting", map[string]interface{}{"articles": 3}); err != nil {
			return nil, err
		}
		return map[string]interface{}{"articles": 3}, nil
	})

	if !result.Success {
		t.Fatalf("expected success, got reason %q", result.Reason)
	}
	if result.SessionID != "sess-1" {
		t.Errorf("expected sessionId sess-1, got %q", result.SessionID)
	}
	if result.Data["articles"] != 3 {
		t.Errorf("expected result data carried through, got %v", result.Data)
	}

	session := store.Session("sess-1")
	if session == nil {
		t.Fatal("expected a stored session")
	}
	if session.Status != relay.StatusCompleted {
		t.Errorf("expected COMPLETED, got %s", session.Status)
	}
	var state map[string]interface{}
	if err := json.Unmarshal(session.State, &state); err != nil {
		t.Fatalf("failed to decode state: %v", err)
	}
	if state["phase"] != "selecting" {
		t.Errorf("expected phase selecting in state, got %v", state["phase"])
	}
	if state["articles"] != float64(3) {
		t.Errorf("expected checkpoint state persisted, got %v", state)
	}
}

func TestExecuteSoftFailureLeavesNoSession(t *testing.T) {
	store := relaytest.NewStore()
	runner := newTestRunner(t, store)

	result := runner.Execute(context.Background(), func(ctx context.Context, run *Run) (map[string]interface{}, error) {
		return nil, errors.New("keywords are not configured")
	})

	if result.Success {
		t.Fatal("expected failure")
	}
	if result.Reason != "keywords are not configured" {
		t.Errorf("expected the raw reason, got %q", result.Reason)
	}
	if result.SessionID != "" {
		t.Errorf("expected no session, got %q", result.SessionID)
	}
	if store.SessionCount() != 0 {
		t.Errorf("expected no stored sessions, got %d", store.SessionCount())
	}
}

func TestExecuteSkippedRun(t *testing.T) {
	store := relaytest.NewStore()
	runner := newTestRunner(t, store)

	result := runner.Execute(context.Background(), func(ctx context.Context, run *Run) (map[string]interface{}, error) {
		return nil, NewSkipError("Agent is disabled")
	})

	if result.Success {
		t.Fatal("expected a skip result")
	}
	if result.Reason != "Agent is disabled" {
		t.Errorf("expected the skip reason verbatim, got %q", result.Reason)
	}
	if store.SessionCount() != 0 {
		t.Errorf("expected no session for a skipped run, got %d", store.SessionCount())
	}
}

func TestExecuteStageFailureMarksSessionFailed(t *testing.T) {
	store := relaytest.NewStore()
	runner := newTestRunner(t, store)

	result := runner.Execute(context.Background(), func(ctx context.Context, run *Run) (map[string]interface{}, error) {
		if err := run.Begin(ctx, nil, nil); err != nil {
			return nil, err
		}
		err := run.Stage(ctx, "selecting", func(context.Context) error {
			return errors.New("model returned invalid JSON")
		})
		return nil, err
	})

	if result.Success {
		t.Fatal("expected failure")
	}
	// The envelope and the session carry the stage's own message.
	if result.Reason != "model returned invalid JSON" {
		t.Errorf("expected the raw stage message, got %q", result.Reason)
	}
	if result.SessionID != "sess-1" {
		t.Errorf("expected the session id in the failure result, got %q", result.SessionID)
	}

	session := store.Session("sess-1")
	if session.Status != relay.StatusFailed {
		t.Errorf("expected FAILED, got %s", session.Status)
	}
	if session.ErrorMessage != "model returned invalid JSON" {
		t.Errorf("expected the raw message on the session, got %q", session.ErrorMessage)
	}

	activities := store.Activities("sess-1")
	if len(activities) != 1 {
		t.Fatalf("expected 1 error activity, got %d", len(activities))
	}
	if activities[0].Type != relay.ActivityError {
		t.Errorf("expected an error activity, got %s", activities[0].Type)
	}
	if activities[0].Payload["stage"] != "selecting" {
		t.Errorf("expected the stage in the payload, got %v", activities[0].Payload)
	}
}

func TestExecuteSuspendKeepsSessionRunning(t *testing.T) {
	store := relaytest.NewStore()
	runner := newTestRunner(t, store)

	result := runner.Execute(context.Background(), func(ctx context.Context, run *Run) (map[string]interface{}, error) {
		if err := run.Begin(ctx, nil, nil); err != nil {
			return nil, err
		}
		run.Suspend()
		return map[string]interface{}{"status": "awaiting_approval"}, nil
	})

	if !result.Success {
		t.Fatalf("expected success, got reason %q", result.Reason)
	}
	if session := store.Session("sess-1"); session.Status != relay.StatusRunning {
		t.Errorf("expected the session left RUNNING, got %s", session.Status)
	}
}

func TestExecuteRejectsOverlappingRuns(t *testing.T) {
	store := relaytest.NewStore()
	runner := newTestRunner(t, store)

	release := make(chan struct{})
	started := make(chan struct{})
	results := make(chan Result, 1)
	go func() {
		results <- runner.Execute(context.Background(), func(ctx context.Context, run *Run) (map[string]interface{}, error) {
			if err := run.Begin(ctx, nil, nil); err != nil {
				return nil, err
			}
			close(started)
			<-release
			return nil, nil
		})
	}()
	<-started

	second := runner.Execute(context.Background(), func(ctx context.Context, run *Run) (map[string]interface{}, error) {
		t.Error("the overlapping run function must not execute")
		return nil, nil
	})
	if second.Success {
		t.Fatal("expected the overlapping run to be rejected")
	}
	if second.Reason != "run already in progress" {
		t.Errorf("unexpected reason %q", second.Reason)
	}
	if store.SessionCount() != 1 {
		t.Errorf("expected no second session, got %d", store.SessionCount())
	}

	close(release)
	if first := <-results; !first.Success {
		t.Fatalf("expected the first run to finish, got %q", first.Reason)
	}

	// The lock is free again after the run.
	third := runner.Execute(context.Background(), func(ctx context.Context, run *Run) (map[string]interface{}, error) {
		return map[string]interface{}{}, nil
	})
	if !third.Success {
		t.Errorf("expected a later run to acquire the lock, got %q", third.Reason)
	}
}

func TestExecuteSwallowsActivityWriteFailures(t *testing.T) {
	store := relaytest.NewStore()
	store.FailWith("CreateActivity", errors.New("activity store flaking"))
	runner := newTestRunner(t, store)

	result := runner.Execute(context.Background(), func(ctx context.Context, run *Run) (map[string]interface{}, error) {
		if err := run.Begin(ctx, nil, nil); err != nil {
			return nil, err
		}
		run.Log(ctx, relay.ActivityInfo, "curator", "fetched 12 articles", nil)
		return map[string]interface{}{"articles": 12}, nil
	})

	if !result.Success {
		t.Fatalf("expected the run to survive activity failures, got %q", result.Reason)
	}
	if session := store.Session("sess-1"); session.Status != relay.StatusCompleted {
		t.Errorf("expected COMPLETED, got %s", session.Status)
	}
}

func TestExecuteEmitsLifecycleEvents(t *testing.T) {
	store := relaytest.NewStore()
	emitter := &recordingEmitter{}
	runner, err := NewRunner(RunnerConfig{
		AgentID: "curator",
		Store:   store,
		Feed:    events.NewFeed(emitter),
	})
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}

	runner.Execute(context.Background(), func(ctx context.Context, run *Run) (map[string]interface{}, error) {
		if err := run.Begin(ctx, nil, nil); err != nil {
			return nil, err
		}
		run.Log(ctx, relay.ActivityStage, "pipeline", "phase selecting", nil)
		return nil, nil
	})

	messages := emitter.messages()
	for _, want := range []string{"run started", "phase selecting", "run completed"} {
		found := false
		for _, got := range messages {
			if got == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected event %q, got %v", want, messages)
		}
	}
}

func TestExecuteFinalizeFailureFailsRun(t *testing.T) {
	store := relaytest.NewStore()
	runner := newTestRunner(t, store)

	result := runner.Execute(context.Background(), func(ctx context.Context, run *Run) (map[string]interface{}, error) {
		if err := run.Begin(ctx, nil, nil); err != nil {
			return nil, err
		}
		// The store starts failing after the session exists.
		store.FailWith("UpdateSession", errors.New("store unavailable"))
		return map[string]interface{}{}, nil
	})

	if result.Success {
		t.Fatal("expected failure when the session cannot be finalized")
	}
	if !strings.Contains(result.Reason, "failed to finalize session") {
		t.Errorf("unexpected reason %q", result.Reason)
	}
}

func TestCheckpointBeforeBeginFails(t *testing.T) {
	store := relaytest.NewStore()
	runner := newTestRunner(t, store)

	result := runner.Execute(context.Background(), func(ctx context.Context, run *Run) (map[string]interface{}, error) {
		return nil, run.Checkpoint(ctx, "selecting", nil)
	})

	if result.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(result.Reason, "Checkpoint before Begin") {
		t.Errorf("unexpected reason %q", result.Reason)
	}
	if store.SessionCount() != 0 {
		t.Errorf("expected no session, got %d", store.SessionCount())
	}
}

func TestResumeCompletesExistingSession(t *testing.T) {
	store := relaytest.NewStore()
	seed, err := store.CreateSession(context.Background(), relay.CreateSessionParams{
		AgentID: "trader",
		Status:  relay.StatusRunning,
	})
	if err != nil {
		t.Fatalf("failed to seed session: %v", err)
	}
	runner := newTestRunner(t, store)

	result := runner.Resume(context.Background(), seed.ID, func(ctx context.Context, run *Run) (map[string]interface{}, error) {
		if run.SessionID() != seed.ID {
			t.Errorf("expected run bound to %s, got %s", seed.ID, run.SessionID())
		}
		if err := run.Checkpoint(ctx, "completed", map[string]interface{}{"executed": 2}); err != nil {
			return nil, err
		}
		return map[string]interface{}{"executed": 2}, nil
	})

	if !result.Success {
		t.Fatalf("expected success, got %q", result.Reason)
	}
	if result.SessionID != seed.ID {
		t.Errorf("expected sessionId %s, got %s", seed.ID, result.SessionID)
	}
	if session := store.Session(seed.ID); session.Status != relay.StatusCompleted {
		t.Errorf("expected COMPLETED, got %s", session.Status)
	}
}

func TestResumeFailureMarksSessionFailed(t *testing.T) {
	store := relaytest.NewStore()
	seed, err := store.CreateSession(context.Background(), relay.CreateSessionParams{
		AgentID: "trader",
		Status:  relay.StatusRunning,
	})
	if err != nil {
		t.Fatalf("failed to seed session: %v", err)
	}
	runner := newTestRunner(t, store)

	result := runner.Resume(context.Background(), seed.ID, func(ctx context.Context, run *Run) (map[string]interface{}, error) {
		return nil, errors.New("No response found")
	})

	if result.Success {
		t.Fatal("expected failure")
	}
	if result.Reason != "No response found" {
		t.Errorf("expected the raw reason, got %q", result.Reason)
	}
	session := store.Session(seed.ID)
	if session.Status != relay.StatusFailed {
		t.Errorf("expected FAILED, got %s", session.Status)
	}
	if session.ErrorMessage != "No response found" {
		t.Errorf("expected the raw message on the session, got %q", session.ErrorMessage)
	}
}

func TestResumeRejectsBegin(t *testing.T) {
	store := relaytest.NewStore()
	seed, err := store.CreateSession(context.Background(), relay.CreateSessionParams{
		AgentID: "trader",
		Status:  relay.StatusRunning,
	})
	if err != nil {
		t.Fatalf("failed to seed session: %v", err)
	}
	runner := newTestRunner(t, store)

	result := runner.Resume(context.Background(), seed.ID, func(ctx context.Context, run *Run) (map[string]interface{}, error) {
		return nil, run.Begin(ctx, nil, nil)
	})

	if result.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(result.Reason, "continuation") {
		t.Errorf("unexpected reason %q", result.Reason)
	}
}
