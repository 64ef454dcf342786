package application_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicecmd/internal/application"
	"voicecmd/internal/domain"
	"voicecmd/internal/match"
)

type fakeSource struct {
	ch chan domain.TranscriptEvent
}

func newFakeSource() *fakeSource {
	return &fakeSource{ch: make(chan domain.TranscriptEvent)}
}

func (f *fakeSource) Start(_ context.Context) error         { return nil }
func (f *fakeSource) Stop() error                           { return nil }
func (f *fakeSource) Name() string                          { return "fake" }
func (f *fakeSource) Events() <-chan domain.TranscriptEvent { return f.ch }
func (f *fakeSource) emit(text string, confidence float64)  { f.ch <- final(text, confidence) }

type recordingExecutor struct {
	mu      sync.Mutex
	actions []domain.Action
	params  []map[string]string
	result  domain.ExecutionResult
}

func (r *recordingExecutor) Execute(_ context.Context, action domain.Action, params map[string]string) domain.ExecutionResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, action)
	r.params = append(r.params, params)
	return r.result
}

func (r *recordingExecutor) executed() []domain.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Action(nil), r.actions...)
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingNotifier) Notify(_ context.Context, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
	return nil
}

func final(text string, confidence float64) domain.TranscriptEvent {
	return domain.TranscriptEvent{Text: text, Final: true, Confidence: confidence}
}

func testSpecs() []domain.CommandSpec {
	return []domain.CommandSpec{
		{
			Description: "time",
			Phrases:     []string{"what time is it"},
			Action:      domain.Action{Type: domain.ActionShell, Commands: []string{"date"}},
		},
		{
			Description: "quit",
			Phrases:     []string{"goodbye"},
			Action:      domain.Action{Type: domain.ActionBuiltin, Builtin: "exit"},
		},
	}
}

func newTestOrchestrator(source application.TranscriptSource, executor application.ActionExecutor, dwell time.Duration) *application.Orchestrator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return application.NewOrchestrator(
		source,
		match.NewFuzzyGate([]string{"claudia"}, 0.75),
		match.NewMatcher(testSpecs(), 0.75),
		executor,
		&application.NoopNotifier{},
		0.5,
		dwell,
		logger,
	)
}

func TestOrchestrator_WakeWordTransition(t *testing.T) {
	executor := &recordingExecutor{result: domain.ExecutionResult{Success: true}}
	o := newTestOrchestrator(newFakeSource(), executor, time.Minute)
	ctx := context.Background()

	require.Equal(t, domain.ModeAwaitingWakeWord, o.Mode())

	o.HandleEvent(ctx, final("claudia", 0.9))
	assert.Equal(t, domain.ModeAwaitingCommand, o.Mode())
	assert.Empty(t, executor.executed())
}

func TestOrchestrator_PartialEventsDoNotTransition(t *testing.T) {
	executor := &recordingExecutor{result: domain.ExecutionResult{Success: true}}
	o := newTestOrchestrator(newFakeSource(), executor, time.Minute)
	ctx := context.Background()

	o.HandleEvent(ctx, domain.TranscriptEvent{Text: "claudia", Final: false, Confidence: 0.9})
	assert.Equal(t, domain.ModeAwaitingWakeWord, o.Mode())
}

func TestOrchestrator_LowConfidenceIgnored(t *testing.T) {
	executor := &recordingExecutor{result: domain.ExecutionResult{Success: true}}
	o := newTestOrchestrator(newFakeSource(), executor, time.Minute)
	ctx := context.Background()

	o.HandleEvent(ctx, final("claudia", 0.3))
	assert.Equal(t, domain.ModeAwaitingWakeWord, o.Mode())
}

func TestOrchestrator_CommandExecutesAndRearms(t *testing.T) {
	executor := &recordingExecutor{result: domain.ExecutionResult{Success: true, Output: "12:00"}}
	o := newTestOrchestrator(newFakeSource(), executor, time.Minute)
	ctx := context.Background()

	o.HandleEvent(ctx, final("claudia", 0.9))
	o.HandleEvent(ctx, final("what time is it", 0.9))

	executed := executor.executed()
	require.Len(t, executed, 1)
	assert.Equal(t, domain.ActionShell, executed[0].Type)
	assert.Equal(t, domain.ModeAwaitingWakeWord, o.Mode())
}

func TestOrchestrator_NoMatchStaysInCommandMode(t *testing.T) {
	executor := &recordingExecutor{result: domain.ExecutionResult{Success: true}}
	o := newTestOrchestrator(newFakeSource(), executor, time.Minute)
	ctx := context.Background()

	o.HandleEvent(ctx, final("claudia", 0.9))
	o.HandleEvent(ctx, final("blah blah nonsense", 0.9))

	assert.Empty(t, executor.executed())
	assert.Equal(t, domain.ModeAwaitingCommand, o.Mode())
}

func TestOrchestrator_ExitBuiltinShutsDown(t *testing.T) {
	executor := &recordingExecutor{result: domain.ExecutionResult{Success: true, Output: "Goodbye!"}}
	o := newTestOrchestrator(newFakeSource(), executor, time.Minute)
	ctx := context.Background()

	o.HandleEvent(ctx, final("claudia", 0.9))
	o.HandleEvent(ctx, final("goodbye", 0.9))

	assert.Equal(t, domain.ModeShuttingDown, o.Mode())
}

func TestOrchestrator_FailedExecutionStillRearms(t *testing.T) {
	executor := &recordingExecutor{result: domain.ExecutionResult{
		Success:   false,
		ErrorKind: domain.ErrorExecFailed,
	}}
	o := newTestOrchestrator(newFakeSource(), executor, time.Minute)
	ctx := context.Background()

	o.HandleEvent(ctx, final("claudia", 0.9))
	o.HandleEvent(ctx, final("what time is it", 0.9))

	assert.Equal(t, domain.ModeAwaitingWakeWord, o.Mode())
}

func TestOrchestrator_RunExitsOnExitBuiltin(t *testing.T) {
	source := newFakeSource()
	executor := &recordingExecutor{result: domain.ExecutionResult{Success: true}}
	o := newTestOrchestrator(source, executor, time.Minute)

	done := make(chan error, 1)
	go func() {
		done <- o.Run(context.Background())
	}()

	source.emit("claudia", 0.9)
	source.emit("goodbye", 0.9)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("orchestrator did not shut down after exit builtin")
	}
}

func TestOrchestrator_RunStopsOnCancel(t *testing.T) {
	source := newFakeSource()
	executor := &recordingExecutor{result: domain.ExecutionResult{Success: true}}
	o := newTestOrchestrator(source, executor, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- o.Run(ctx)
	}()

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("orchestrator did not stop on cancel")
	}
}

func TestOrchestrator_DwellRearmsWakeWord(t *testing.T) {
	source := newFakeSource()
	executor := &recordingExecutor{result: domain.ExecutionResult{Success: true}}
	o := newTestOrchestrator(source, executor, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- o.Run(ctx)
	}()

	source.emit("claudia", 0.9)

	// Let the dwell window expire, then speak a command: it must not execute
	// because the loop has re-armed to wake-word mode.
	time.Sleep(200 * time.Millisecond)
	source.emit("what time is it", 0.9)

	cancel()
	<-done

	assert.Empty(t, executor.executed())
}

func TestOrchestrator_NotifiesOnWakeAndResult(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	executor := &recordingExecutor{result: domain.ExecutionResult{Success: true, Output: "12:00"}}
	notifier := &recordingNotifier{}
	o := application.NewOrchestrator(
		newFakeSource(),
		match.NewFuzzyGate([]string{"claudia"}, 0.75),
		match.NewMatcher(testSpecs(), 0.75),
		executor,
		notifier,
		0.5,
		time.Minute,
		logger,
	)
	ctx := context.Background()

	o.HandleEvent(ctx, final("claudia", 0.9))
	o.HandleEvent(ctx, final("what time is it", 0.9))

	require.Len(t, notifier.messages, 2)
	assert.Contains(t, notifier.messages[0], "Wake word detected")
	assert.Contains(t, notifier.messages[1], "time")
}
