package scraper

import "fmt"

// RunError reports an actor run that ended in a terminal status other
// than SUCCEEDED.
type RunError struct {
	// RunID identifies the failed run.
	RunID string
	// Status is the terminal status the run ended with.
	Status string
}

// Error implements the error interface.
func (e *RunError) Error() string {
	return fmt.Sprintf("scraper run %s ended with status %s", e.RunID, e.Status)
}

// NewRunError creates a RunError for a terminal run status.
func NewRunError(runID, status string) *RunError {
	return &RunError{RunID: runID, Status: status}
}
