package domain

// SessionMode is the orchestrator's state. Exactly one instance exists, owned
// and mutated only by the orchestrator loop.
type SessionMode string

const (
	ModeAwaitingWakeWord SessionMode = "awaiting_wake_word"
	ModeAwaitingCommand  SessionMode = "awaiting_command"
	ModeExecuting        SessionMode = "executing"
	ModeShuttingDown     SessionMode = "shutting_down"
)
