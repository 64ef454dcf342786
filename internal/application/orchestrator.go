package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"voicecmd/internal/domain"
)

// Orchestrator is the single consumer loop tying the pipeline together:
// gate on a wake phrase, match a command, execute it, report, re-arm. The
// session mode is owned here and mutated nowhere else. Execution is
// single-flight: the loop blocks on the executor, so at most one action is
// ever in flight.
type Orchestrator struct {
	source   TranscriptSource
	wake     WakeDetector
	matcher  CommandMatcher
	executor ActionExecutor
	notifier Notifier
	logger   *slog.Logger

	confidenceThreshold float64
	dwell               time.Duration

	mode       domain.SessionMode
	dwellTimer *time.Timer
}

func NewOrchestrator(
	source TranscriptSource,
	wake WakeDetector,
	matcher CommandMatcher,
	executor ActionExecutor,
	notifier Notifier,
	confidenceThreshold float64,
	dwell time.Duration,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		source:              source,
		wake:                wake,
		matcher:             matcher,
		executor:            executor,
		notifier:            notifier,
		confidenceThreshold: confidenceThreshold,
		dwell:               dwell,
		logger:              logger,
		mode:                domain.ModeAwaitingWakeWord,
	}
}

// Mode returns the current session mode. Only meaningful from the goroutine
// running the loop; tests observe it between synchronous steps.
func (o *Orchestrator) Mode() domain.SessionMode {
	return o.mode
}

// Run consumes transcript events until the context is canceled, the source
// closes, or an exit builtin fires. Events are handled strictly in arrival
// order.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.source.Start(ctx); err != nil {
		return fmt.Errorf("starting transcript source: %w", err)
	}
	defer o.source.Stop()

	o.dwellTimer = time.NewTimer(o.dwell)
	o.stopDwell()
	defer o.dwellTimer.Stop()

	o.setMode(domain.ModeAwaitingWakeWord)
	o.logger.Info("ready, listening for wake word", "source", o.source.Name())

	events := o.source.Events()

	for {
		select {
		case <-ctx.Done():
			o.setMode(domain.ModeShuttingDown)
			return ctx.Err()

		case <-o.dwellTimer.C:
			if o.mode == domain.ModeAwaitingCommand {
				o.logger.Info("command window expired, re-arming wake word")
				o.setMode(domain.ModeAwaitingWakeWord)
			}

		case event, ok := <-events:
			if !ok {
				o.setMode(domain.ModeShuttingDown)
				return fmt.Errorf("transcript source %s closed", o.source.Name())
			}
			o.HandleEvent(ctx, event)
			if o.mode == domain.ModeShuttingDown {
				o.logger.Info("exit requested, shutting down")
				return nil
			}
		}
	}
}

// HandleEvent advances the state machine by one transcript event. Partial
// events never trigger a transition; low-confidence finals are discarded
// before any matching happens.
func (o *Orchestrator) HandleEvent(ctx context.Context, event domain.TranscriptEvent) {
	if !event.Final {
		o.logger.Debug("partial transcript", "text", event.Text)
		return
	}
	if event.Text == "" {
		return
	}
	if event.Confidence < o.confidenceThreshold {
		o.logger.Debug("rejected low-confidence transcript",
			"text", event.Text, "confidence", event.Confidence)
		return
	}

	switch o.mode {
	case domain.ModeAwaitingWakeWord:
		o.handleWake(ctx, event)
	case domain.ModeAwaitingCommand:
		o.handleCommand(ctx, event)
	}
}

func (o *Orchestrator) handleWake(ctx context.Context, event domain.TranscriptEvent) {
	if !o.wake.Detect(event.Text) {
		o.logger.Debug("no wake word", "text", event.Text)
		return
	}

	o.logger.Info("wake word detected", "text", event.Text, "confidence", event.Confidence)
	o.notify(ctx, "Wake word detected, listening for command")
	o.setMode(domain.ModeAwaitingCommand)
}

func (o *Orchestrator) handleCommand(ctx context.Context, event domain.TranscriptEvent) {
	o.logger.Info("heard command candidate", "text", event.Text)

	result := o.matcher.Match(event.Text)
	if result == nil {
		// Normal outcome: stay in command mode until the dwell window closes.
		o.logger.Info("no command matched", "text", event.Text)
		return
	}

	o.logger.Info("command matched",
		"description", result.Spec.Description,
		"score", result.Score,
		"parameters", result.Parameters,
	)

	o.setMode(domain.ModeExecuting)
	execResult := o.executor.Execute(ctx, result.Spec.Action, result.Parameters)
	o.report(ctx, result, execResult)

	action := result.Spec.Action
	if action.Type == domain.ActionBuiltin && action.Builtin == "exit" && execResult.Success {
		o.setMode(domain.ModeShuttingDown)
		return
	}

	o.setMode(domain.ModeAwaitingWakeWord)
}

func (o *Orchestrator) report(ctx context.Context, match *domain.MatchResult, result domain.ExecutionResult) {
	if result.Success {
		o.logger.Info("command executed",
			"description", match.Spec.Description,
			"duration", result.Duration,
			"output", result.Output,
		)
		o.notify(ctx, fmt.Sprintf("%s: done", match.Spec.Description))
		return
	}

	o.logger.Error("command failed",
		"description", match.Spec.Description,
		"kind", result.ErrorKind,
		"error", result.Err,
		"duration", result.Duration,
		"partial_output", result.Output,
	)
	o.notify(ctx, fmt.Sprintf("%s failed: %v", match.Spec.Description, result.Err))
}

func (o *Orchestrator) notify(ctx context.Context, message string) {
	if err := o.notifier.Notify(ctx, message); err != nil {
		o.logger.Error("notifying", "error", err)
	}
}

// setMode performs the transition and keeps the dwell timer in step with it:
// armed only while awaiting a command.
func (o *Orchestrator) setMode(mode domain.SessionMode) {
	if o.mode == mode {
		return
	}
	o.logger.Debug("mode transition", "from", o.mode, "to", mode)
	o.mode = mode

	if o.dwellTimer == nil {
		return
	}
	if mode == domain.ModeAwaitingCommand {
		o.stopDwell()
		o.dwellTimer.Reset(o.dwell)
	} else {
		o.stopDwell()
	}
}

func (o *Orchestrator) stopDwell() {
	if !o.dwellTimer.Stop() {
		select {
		case <-o.dwellTimer.C:
		default:
		}
	}
}
