package application

import (
	"context"

	"voicecmd/internal/domain"
)

// TranscriptSource produces recognized speech for the orchestrator to
// consume. Implementations push events into a bounded channel; when the
// channel is full the oldest pending event is dropped so the freshest speech
// wins.
type TranscriptSource interface {
	Start(ctx context.Context) error
	Stop() error
	Events() <-chan domain.TranscriptEvent
	Name() string
}
