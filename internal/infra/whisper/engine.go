package whisper

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// Engine wraps a loaded whisper.cpp model. The model is loaded once and
// shared; each transcription gets its own decoding context.
type Engine struct {
	model    whisper.Model
	language string
}

func New(modelPath, language string) (*Engine, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("whisper model path not configured")
	}
	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("loading whisper model: %w", err)
	}
	return &Engine{model: model, language: language}, nil
}

func (e *Engine) Close() error {
	if e.model == nil {
		return nil
	}
	return e.model.Close()
}

// Transcribe decodes mono 16 kHz float32 PCM into text. The confidence is
// the mean token probability across all decoded segments.
func (e *Engine) Transcribe(ctx context.Context, samples []float32) (string, float64, error) {
	if len(samples) == 0 {
		return "", 0, fmt.Errorf("no audio samples provided")
	}

	wctx, err := e.model.NewContext()
	if err != nil {
		return "", 0, fmt.Errorf("new whisper context: %w", err)
	}

	if err := wctx.SetLanguage(e.language); err != nil {
		return "", 0, fmt.Errorf("set language: %w", err)
	}
	wctx.SetThreads(uint(runtime.NumCPU()))

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", 0, fmt.Errorf("whisper process: %w", err)
	}

	var (
		parts    []string
		probSum  float64
		tokenCnt int
	)

	for {
		select {
		case <-ctx.Done():
			return "", 0, ctx.Err()
		default:
		}

		segment, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", 0, fmt.Errorf("next segment: %w", err)
		}

		parts = append(parts, strings.TrimSpace(segment.Text))
		for _, token := range segment.Tokens {
			probSum += float64(token.P)
			tokenCnt++
		}
	}

	confidence := 1.0
	if tokenCnt > 0 {
		confidence = probSum / float64(tokenCnt)
	}

	return strings.Join(parts, " "), confidence, nil
}
