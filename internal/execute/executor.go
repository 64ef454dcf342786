package execute

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"voicecmd/internal/domain"
)

var placeholderPattern = regexp.MustCompile(`\{(\w+)\}`)

// Executor runs resolved actions under a wall-clock deadline. It is the only
// component in the pipeline that spawns processes.
type Executor struct {
	registry *Registry
	specs    []domain.CommandSpec
	timeout  time.Duration
	logger   *slog.Logger
}

func New(registry *Registry, specs []domain.CommandSpec, timeout time.Duration, logger *slog.Logger) *Executor {
	return &Executor{
		registry: registry,
		specs:    specs,
		timeout:  timeout,
		logger:   logger,
	}
}

// Execute dispatches on the action variant. Every variant runs under the
// configured timeout; on expiry the subprocess is killed or the function
// call abandoned, and output captured so far is preserved in the result.
func (e *Executor) Execute(ctx context.Context, action domain.Action, params map[string]string) domain.ExecutionResult {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var result domain.ExecutionResult
	switch action.Type {
	case domain.ActionBuiltin:
		result = e.runBuiltin(action)
	case domain.ActionFunction:
		result = e.runFunction(ctx, action, params)
	default:
		result = e.runShell(ctx, action, params)
	}

	result.Duration = time.Since(start)
	return result
}

func (e *Executor) runShell(ctx context.Context, action domain.Action, params map[string]string) domain.ExecutionResult {
	if len(action.Commands) == 0 {
		return failure(domain.ErrorResolution, fmt.Errorf("no shell command specified"), "")
	}

	var outputs []string

	for _, tpl := range action.Commands {
		cmdLine := Substitute(tpl, params)
		e.logger.Info("executing shell command", "command", cmdLine)

		cmd := exec.CommandContext(ctx, "sh", "-c", cmdLine)
		// Unblocks Wait even when a grandchild keeps the output pipe open
		// past the kill.
		cmd.WaitDelay = time.Second
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		err := cmd.Run()

		if out := strings.TrimRight(stdout.String(), "\n"); out != "" {
			outputs = append(outputs, out)
		}
		combined := strings.Join(outputs, "\n")

		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				return failure(domain.ErrorTimeout,
					fmt.Errorf("command timed out after %s", e.timeout), combined)
			}
			// Parent cancellation (shutdown), not a deadline.
			return failure(domain.ErrorExecFailed,
				fmt.Errorf("command canceled: %w", ctxErr), combined)
		}
		if err != nil {
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				err = fmt.Errorf("%w: %s", err, msg)
			}
			return failure(domain.ErrorExecFailed, err, combined)
		}
	}

	return domain.ExecutionResult{Success: true, Output: strings.Join(outputs, "\n")}
}

func (e *Executor) runFunction(ctx context.Context, action domain.Action, params map[string]string) domain.ExecutionResult {
	fn, ok := e.registry.Resolve(action.Module, action.Function)
	if !ok {
		return failure(domain.ErrorResolution,
			fmt.Errorf("function %s not registered", key(action.Module, action.Function)), "")
	}

	e.logger.Info("executing function", "module", action.Module, "function", action.Function)

	type funcResult struct {
		output string
		err    error
	}
	done := make(chan funcResult, 1)
	go func() {
		out, err := fn(params)
		done <- funcResult{output: out, err: err}
	}()

	select {
	case <-ctx.Done():
		// The goroutine is abandoned; its late result is discarded via the
		// buffered channel.
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return failure(domain.ErrorTimeout,
				fmt.Errorf("function timed out after %s", e.timeout), "")
		}
		return failure(domain.ErrorExecFailed,
			fmt.Errorf("function canceled: %w", ctx.Err()), "")
	case res := <-done:
		if res.err != nil {
			return failure(domain.ErrorExecFailed, res.err, res.output)
		}
		return domain.ExecutionResult{Success: true, Output: res.output}
	}
}

func (e *Executor) runBuiltin(action domain.Action) domain.ExecutionResult {
	switch action.Builtin {
	case "exit":
		return domain.ExecutionResult{Success: true, Output: "Goodbye!"}
	case "help":
		return domain.ExecutionResult{Success: true, Output: e.commandList()}
	default:
		return failure(domain.ErrorResolution,
			fmt.Errorf("unknown builtin %q", action.Builtin), "")
	}
}

func (e *Executor) commandList() string {
	lines := make([]string, 0, len(e.specs))
	for _, spec := range e.specs {
		lines = append(lines, fmt.Sprintf("%s: %s", spec.Description, strings.Join(spec.Phrases, " / ")))
	}
	if len(lines) == 0 {
		return "no commands configured"
	}
	return strings.Join(lines, "\n")
}

// Substitute replaces every {name} placeholder in a command template with the
// bound parameter value, or the empty string when the parameter is unbound.
// Values are inserted verbatim; templates are operator-authored.
func Substitute(template string, params map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(m string) string {
		name := m[1 : len(m)-1]
		return params[name]
	})
}

func failure(kind domain.ErrorKind, err error, output string) domain.ExecutionResult {
	return domain.ExecutionResult{
		Success:   false,
		Output:    output,
		ErrorKind: kind,
		Err:       err,
	}
}

// IsTimeout reports whether an execution error was caused by the deadline.
func IsTimeout(result domain.ExecutionResult) bool {
	return result.ErrorKind == domain.ErrorTimeout ||
		errors.Is(result.Err, context.DeadlineExceeded)
}
