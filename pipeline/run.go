// Package pipeline is the run-lifecycle scaffolding shared by every
// agent service.
//
// A Runner owns one agent: it serializes runs through an advisory
// lock, opens a span per run, and finalizes the Relay session when the
// run function returns. The run function composes stages with explicit
// error returns; the runner turns the outcome into the in-band Result
// envelope.
//
// Key concepts:
//   - Run: the handle a run function uses to create and update its
//     session (Begin, Checkpoint, Log, Stage, Suspend)
//   - soft failure: an error before Begin leaves no session behind
//   - failed run: an error after Begin marks the session FAILED with
//     the stage's own message
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/relayhq/agents/events"
	"github.com/relayhq/agents/observability"
	"github.com/relayhq/agents/relay"
)

// RunFunc is the body of one agent run. The returned map becomes the
// result payload on success.
type RunFunc func(ctx context.Context, run *Run) (map[string]interface{}, error)

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	// AgentID is the Relay agent this runner executes. Required.
	AgentID string
	// Store is the Relay platform client. Required.
	Store relay.Platform
	// Locker serializes runs. Defaults to an in-process lock.
	Locker Locker
	// Metrics records run instruments. Optional.
	Metrics *observability.PipelineMetrics
	// Feed mirrors activities locally. Optional.
	Feed *events.Feed
}

// Runner executes agent runs with a shared lifecycle.
type Runner struct {
	agentID string
	store   relay.Platform
	locker  Locker
	metrics *observability.PipelineMetrics
	feed    *events.Feed
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewRunner creates a Runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.AgentID == "" {
		return nil, fmt.Errorf("pipeline: AgentID is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("pipeline: Store is required")
	}
	locker := cfg.Locker
	if locker == nil {
		locker = NewLocalLocker()
	}

	return &Runner{
		agentID: cfg.AgentID,
		store:   cfg.Store,
		locker:  locker,
		metrics: cfg.Metrics,
		feed:    cfg.Feed,
		logger:  observability.Logger("pipeline").With(slog.String("agent", cfg.AgentID)),
		tracer:  observability.Tracer("github.com/relayhq/agents/pipeline"),
	}, nil
}

// Execute runs fn as a fresh run. The session lifecycle is:
// fn calls Begin once its preconditions hold, Checkpoint after each
// stage, and returns either a result payload or an error. On success
// the session is marked COMPLETED unless the run suspended itself; on
// error it is marked FAILED with the stage's own message. Errors
// before Begin produce a soft failure with no session.
func (r *Runner) Execute(ctx context.Context, fn RunFunc) Result {
	return r.run(ctx, "agent.run", "", fn)
}

// Resume runs fn against an existing session, for continuation calls.
// Any error marks the session FAILED; fn never calls Begin.
func (r *Runner) Resume(ctx context.Context, sessionID string, fn RunFunc) Result {
	return r.run(ctx, "agent.continuation", sessionID, fn)
}

func (r *Runner) run(ctx context.Context, spanName, sessionID string, fn RunFunc) Result {
	held, err := r.locker.TryAcquire(ctx, r.agentID)
	if err != nil {
		r.logger.Error("run lock unavailable", slog.String("error", err.Error()))
		return Result{Success: false, Reason: fmt.Sprintf("run lock unavailable: %s", err)}
	}
	if !held {
		r.logger.Info("run skipped, another run holds the lock")
		r.metrics.RecordRun(ctx, r.agentID, "skipped", 0)
		return Result{Success: false, Reason: "run already in progress"}
	}
	defer func() {
		if err := r.locker.Release(ctx, r.agentID); err != nil {
			r.logger.Warn("failed to release run lock", slog.String("error", err.Error()))
		}
	}()

	ctx, span := r.tracer.Start(ctx, spanName,
		trace.WithAttributes(attribute.String("agent.id", r.agentID)))
	defer span.End()

	run := &Run{runner: r, sessionID: sessionID, resumed: sessionID != ""}

	start := time.Now()
	data, err := fn(ctx, run)
	elapsed := time.Since(start)

	if err != nil {
		return r.fail(ctx, run, err, elapsed)
	}

	if run.sessionID != "" && !run.suspended {
		if _, err := r.store.UpdateSession(ctx, run.sessionID, relay.SessionUpdate{
			Status: relay.StatusCompleted,
		}); err != nil {
			return r.fail(ctx, run, fmt.Errorf("failed to finalize session: %w", err), elapsed)
		}
		r.feed.Publish(events.Event{
			AgentID:   r.agentID,
			SessionID: run.sessionID,
			Type:      events.TypeInfo,
			Source:    "pipeline",
			Message:   "run completed",
		})
	}

	r.metrics.RecordRun(ctx, r.agentID, "completed", elapsed)
	r.logger.Info("run completed",
		slog.String("session_id", run.sessionID),
		slog.Duration("elapsed", elapsed))
	return Result{Success: true, SessionID: run.sessionID, Data: data}
}

func (r *Runner) fail(ctx context.Context, run *Run, err error, elapsed time.Duration) Result {
	var skip *SkipError
	if errors.As(err, &skip) && run.sessionID == "" {
		r.metrics.RecordRun(ctx, r.agentID, "skipped", elapsed)
		r.logger.Info("run skipped", slog.String("reason", skip.Reason))
		return Result{Success: false, Reason: skip.Reason}
	}

	// The session records the stage's own message, not the wrapper.
	reason := err.Error()
	stage := ""
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		reason = stageErr.Err.Error()
		stage = stageErr.Stage
	}

	trace.SpanFromContext(ctx).RecordError(err)

	if run.sessionID != "" {
		if _, uerr := r.store.UpdateSession(ctx, run.sessionID, relay.SessionUpdate{
			Status:       relay.StatusFailed,
			ErrorMessage: reason,
		}); uerr != nil {
			r.logger.Warn("failed to mark session FAILED", slog.String("error", uerr.Error()))
		}
		var payload map[string]interface{}
		if stage != "" {
			payload = map[string]interface{}{"stage": stage}
		}
		run.Log(ctx, relay.ActivityError, "pipeline", reason, payload)
	}

	r.metrics.RecordRun(ctx, r.agentID, "failed", elapsed)
	r.logger.Error("run failed",
		slog.String("session_id", run.sessionID),
		slog.String("stage", stage),
		slog.String("error", reason))
	return Result{Success: false, Reason: reason, SessionID: run.sessionID}
}

// Run is the handle a run function uses to manage its session.
type Run struct {
	runner    *Runner
	sessionID string
	resumed   bool
	suspended bool
}

// SessionID returns the session this run works against, or empty
// before Begin.
func (run *Run) SessionID() string {
	return run.sessionID
}

// Begin creates the session in the RUNNING state. Every failure
// returned before Begin is a soft failure that leaves no session.
func (run *Run) Begin(ctx context.Context, state map[string]interface{}, metadata map[string]interface{}) error {
	if run.resumed {
		return fmt.Errorf("pipeline: Begin called on a continuation run")
	}
	if run.sessionID != "" {
		return fmt.Errorf("pipeline: Begin called twice")
	}
	raw, err := marshalState(state)
	if err != nil {
		return err
	}

	session, err := run.runner.store.CreateSession(ctx, relay.CreateSessionParams{
		AgentID:  run.runner.agentID,
		Status:   relay.StatusRunning,
		State:    raw,
		Metadata: metadata,
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	run.sessionID = session.ID

	run.runner.logger.Info("session created", slog.String("session_id", session.ID))
	run.runner.feed.Publish(events.Event{
		AgentID:   run.runner.agentID,
		SessionID: session.ID,
		Type:      events.TypeInfo,
		Source:    "pipeline",
		Message:   "run started",
	})
	return nil
}

// Checkpoint persists the current phase and state snapshot on the
// session. The phase is stored under the "phase" key of the state.
func (run *Run) Checkpoint(ctx context.Context, phase string, state map[string]interface{}) error {
	if run.sessionID == "" {
		return fmt.Errorf("pipeline: Checkpoint before Begin")
	}

	merged := make(map[string]interface{}, len(state)+1)
	for key, value := range state {
		merged[key] = value
	}
	merged["phase"] = phase

	raw, err := marshalState(merged)
	if err != nil {
		return err
	}
	if _, err := run.runner.store.UpdateSession(ctx, run.sessionID, relay.SessionUpdate{State: raw}); err != nil {
		return fmt.Errorf("failed to checkpoint phase %s: %w", phase, err)
	}
	return nil
}

// Log writes an activity to the session store and mirrors it to the
// local event feed. Store failures are logged and swallowed; an
// activity write never fails a run.
func (run *Run) Log(ctx context.Context, activityType relay.ActivityType, source, message string, payload map[string]interface{}) {
	run.runner.feed.Publish(events.Event{
		AgentID:   run.runner.agentID,
		SessionID: run.sessionID,
		Type:      string(activityType),
		Source:    source,
		Message:   message,
		Payload:   payload,
	})

	if run.sessionID == "" {
		return
	}
	if err := run.runner.store.CreateActivity(ctx, run.sessionID, relay.ActivityParams{
		Type:    activityType,
		Source:  source,
		Message: message,
		Payload: payload,
	}); err != nil {
		run.runner.logger.Warn("activity write failed",
			slog.String("session_id", run.sessionID),
			slog.String("error", err.Error()))
	}
}

// Stage runs fn as a named stage with its own span and duration
// metric. A stage error is wrapped so the runner can attribute it.
func (run *Run) Stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := run.runner.tracer.Start(ctx, "stage."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	run.runner.metrics.RecordStage(ctx, run.runner.agentID, name, time.Since(start))

	if err != nil {
		span.RecordError(err)
		return NewStageError(name, err)
	}
	return nil
}

// Suspend keeps the session RUNNING when the run function returns,
// used when the run hands off to an out-of-band approval.
func (run *Run) Suspend() {
	run.suspended = true
}

func marshalState(state map[string]interface{}) (json.RawMessage, error) {
	if state == nil {
		return nil, nil
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session state: %w", err)
	}
	return raw, nil
}
