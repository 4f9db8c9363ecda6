package pipeline

import "fmt"

// SkipError reports a run that ended before a session was created,
// such as a disabled agent or a held run lock. It is a soft outcome,
// not a service failure.
type SkipError struct {
	// Reason is returned verbatim in the result envelope.
	Reason string
}

// Error implements the error interface.
func (e *SkipError) Error() string {
	return e.Reason
}

// NewSkipError creates a SkipError with the given reason.
func NewSkipError(reason string) *SkipError {
	return &SkipError{Reason: reason}
}

// StageError marks an error with the pipeline stage it came from. The
// runner persists the underlying message unchanged and keeps the stage
// name as structured context.
type StageError struct {
	// Stage is the name of the failed stage.
	Stage string
	// Err is the stage's own error.
	Err error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %s", e.Stage, e.Err)
}

// Unwrap returns the stage's own error.
func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError wraps err with the stage it came from.
func NewStageError(stage string, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}
