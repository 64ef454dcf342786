package tests

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicecmd/internal/application"
	"voicecmd/internal/domain"
	"voicecmd/internal/execute"
	"voicecmd/internal/infra/source"
	"voicecmd/internal/match"
)

type memoryNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (m *memoryNotifier) Notify(_ context.Context, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, message)
	return nil
}

func (m *memoryNotifier) all() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.messages...)
}

func pipelineSpecs() []domain.CommandSpec {
	return []domain.CommandSpec{
		{
			Description: "Echo",
			Phrases:     []string{"echo {text}"},
			Action:      domain.Action{Type: domain.ActionShell, Commands: []string{"echo {text}"}},
		},
		{
			Description: "Quit",
			Phrases:     []string{"goodbye"},
			Action:      domain.Action{Type: domain.ActionBuiltin, Builtin: "exit"},
		},
	}
}

// Drives the whole pipeline through the HTTP source: wake word, a
// parameterized shell command, then the exit builtin.
func TestPipeline_EndToEnd(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	specs := pipelineSpecs()
	notifier := &memoryNotifier{}

	src := source.NewHTTPSource(":0", "", logger)

	orchestrator := application.NewOrchestrator(
		src,
		match.NewFuzzyGate([]string{"claudia"}, 0.75),
		match.NewMatcher(specs, 0.75),
		execute.New(execute.DefaultRegistry(), specs, 5*time.Second, logger),
		notifier,
		0.5,
		time.Minute,
		logger,
	)

	done := make(chan error, 1)
	go func() {
		done <- orchestrator.Run(context.Background())
	}()
	defer src.Stop()

	post := func(body string) {
		req := httptest.NewRequest(http.MethodPost, "/transcript", strings.NewReader(body))
		rec := httptest.NewRecorder()
		src.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusAccepted, rec.Code)
	}

	post(`{"text":"claudia","confidence":0.9}`)
	post(`{"text":"please echo hello world","confidence":0.9}`)
	post(`{"text":"goodbye","confidence":0.9}`)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("pipeline did not shut down after exit command")
	}

	messages := notifier.all()
	require.NotEmpty(t, messages)
	assert.Contains(t, messages[0], "Wake word detected")

	var sawEcho bool
	for _, msg := range messages {
		if strings.Contains(msg, "Echo: done") {
			sawEcho = true
		}
	}
	assert.True(t, sawEcho, "echo command was not reported, messages: %v", messages)
}

// A nonsense utterance in command mode must not execute anything and leaves
// the pipeline accepting commands.
func TestPipeline_NoMatchDoesNotExecute(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	specs := pipelineSpecs()
	notifier := &memoryNotifier{}

	src := source.NewHTTPSource(":0", "", logger)

	orchestrator := application.NewOrchestrator(
		src,
		match.NewFuzzyGate([]string{"claudia"}, 0.75),
		match.NewMatcher(specs, 0.75),
		execute.New(execute.DefaultRegistry(), specs, 5*time.Second, logger),
		notifier,
		0.5,
		time.Minute,
		logger,
	)

	done := make(chan error, 1)
	go func() {
		done <- orchestrator.Run(context.Background())
	}()
	defer src.Stop()

	src.Inject(domain.TranscriptEvent{Text: "claudia", Final: true, Confidence: 0.9})
	src.Inject(domain.TranscriptEvent{Text: "blah blah nonsense", Final: true, Confidence: 0.9})
	// Still in command mode: goodbye matches and shuts the loop down.
	src.Inject(domain.TranscriptEvent{Text: "goodbye", Final: true, Confidence: 0.9})

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("pipeline did not shut down")
	}

	for _, msg := range notifier.all() {
		assert.NotContains(t, msg, "Echo")
	}
}
