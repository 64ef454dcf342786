package domain

import "time"

// ErrorKind classifies a failed execution.
type ErrorKind string

const (
	ErrorNone       ErrorKind = ""
	ErrorTimeout    ErrorKind = "timeout"
	ErrorExecFailed ErrorKind = "execution_failed"
	ErrorResolution ErrorKind = "resolution_failed"
)

// ExecutionResult is the outcome of running one action. Ephemeral; discarded
// after the orchestrator reports it.
type ExecutionResult struct {
	Success   bool
	Output    string
	ErrorKind ErrorKind
	Err       error
	Duration  time.Duration
}
