package application

import (
	"context"

	"voicecmd/internal/domain"
)

// WakeDetector reports whether a finalized transcript contains a wake phrase.
type WakeDetector interface {
	Detect(text string) bool
}

// CommandMatcher maps a finalized transcript onto the configured command set.
// A nil result means no command reached the match threshold.
type CommandMatcher interface {
	Match(transcript string) *domain.MatchResult
}

// ActionExecutor runs a resolved action with parameters bound from the
// transcript.
type ActionExecutor interface {
	Execute(ctx context.Context, action domain.Action, params map[string]string) domain.ExecutionResult
}
