package domain

// TranscriptEvent is one recognition result emitted by a transcript source.
// Partial events carry in-progress text and must never trigger a transition
// on their own; only final events drive the pipeline.
type TranscriptEvent struct {
	Text       string
	Final      bool
	Confidence float64
}
