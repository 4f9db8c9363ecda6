// Package events is the local run-event feed, a mirror of the activity
// log that stays useful when the session store is unreachable.
package events

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Event types, matching the activity types written to the session store.
const (
	TypeInfo     = "info"
	TypeStage    = "stage"
	TypeLLM      = "llm"
	TypeApproval = "approval"
	TypeError    = "error"
)

// Event is one run-lifecycle event.
type Event struct {
	AgentID   string                 `json:"agentId"`
	SessionID string                 `json:"sessionId,omitempty"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Message   string                 `json:"message"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Time      time.Time              `json:"time"`
}

// Emitter delivers events to one destination.
type Emitter interface {
	Emit(event Event) error
}

// Feed fans events out to every configured emitter. Emitter failures
// are logged and dropped; publishing never fails the run that called it.
type Feed struct {
	mu       sync.RWMutex
	emitters []Emitter
	logger   *slog.Logger
}

// NewFeed creates a feed over the given emitters.
func NewFeed(emitters ...Emitter) *Feed {
	return &Feed{
		emitters: emitters,
		logger:   slog.Default().With(slog.String("component", "events")),
	}
}

// Attach adds an emitter to the feed.
func (f *Feed) Attach(emitter Emitter) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitters = append(f.emitters, emitter)
}

// Publish delivers the event to all emitters. A zero Time is stamped
// with the current time.
func (f *Feed) Publish(event Event) {
	if f == nil {
		return
	}
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, emitter := range f.emitters {
		if err := emitter.Emit(event); err != nil {
			f.logger.Warn("event emitter failed",
				slog.String("type", event.Type),
				slog.String("error", err.Error()))
		}
	}
}

// ConsoleEmitter writes events in a human-readable line format. Info
// goes to Out, error events to ErrOut.
type ConsoleEmitter struct {
	Out       io.Writer
	ErrOut    io.Writer
	UseColors bool
	mu        sync.Mutex
}

// NewConsoleEmitter creates a console emitter on stdout/stderr.
func NewConsoleEmitter(useColors bool) *ConsoleEmitter {
	return &ConsoleEmitter{
		Out:       os.Stdout,
		ErrOut:    os.Stderr,
		UseColors: useColors,
	}
}

// Emit writes one formatted line.
func (e *ConsoleEmitter) Emit(event Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	colors := map[string]string{
		TypeInfo:     "\033[32m", // green
		TypeStage:    "\033[36m", // cyan
		TypeLLM:      "\033[35m", // magenta
		TypeApproval: "\033[33m", // yellow
		TypeError:    "\033[31m", // red
	}
	reset := "\033[0m"

	label := event.Type
	if e.UseColors {
		label = colors[event.Type] + event.Type + reset
	}

	out := e.Out
	if event.Type == TypeError {
		out = e.ErrOut
	}

	line := fmt.Sprintf("%s [%s] %s", event.Time.Format(time.RFC3339), label, event.AgentID)
	if event.SessionID != "" {
		line += " " + event.SessionID
	}
	line += " " + event.Message

	_, err := fmt.Fprintln(out, line)
	return err
}

// StructuredEmitter writes events as JSON lines.
type StructuredEmitter struct {
	Writer io.Writer
	mu     sync.Mutex
}

// NewStructuredEmitter creates a JSON emitter; nil writer means stdout.
func NewStructuredEmitter(writer io.Writer) *StructuredEmitter {
	if writer == nil {
		writer = os.Stdout
	}
	return &StructuredEmitter{Writer: writer}
}

// Emit writes one JSON line.
func (e *StructuredEmitter) Emit(event Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = fmt.Fprintln(e.Writer, string(data))
	return err
}
