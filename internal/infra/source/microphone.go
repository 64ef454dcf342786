//go:build portaudio
// +build portaudio

package source

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gordonklaus/portaudio"

	"voicecmd/internal/domain"
)

// MicrophoneSource captures audio from the default input device, chunks it
// into utterances on trailing silence, and transcribes each utterance. One
// utterance produces one final transcript event.
type MicrophoneSource struct {
	engine     SpeechEngine
	sampleRate int
	logger     *slog.Logger
	queue      *eventQueue

	stream *portaudio.Stream
	buffer []int16
	cancel context.CancelFunc
	done   chan struct{}
}

func NewMicrophoneSource(engine SpeechEngine, sampleRate int, logger *slog.Logger) *MicrophoneSource {
	return &MicrophoneSource{
		engine:     engine,
		sampleRate: sampleRate,
		logger:     logger,
		queue:      newEventQueue(),
		buffer:     make([]int16, framesPerBuffer),
	}
}

const (
	framesPerBuffer  = 1024
	silenceThreshold = int16(500)
)

func (m *MicrophoneSource) Name() string {
	return "microphone"
}

func (m *MicrophoneSource) Events() <-chan domain.TranscriptEvent {
	return m.queue.events()
}

func (m *MicrophoneSource) Start(ctx context.Context) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initializing portaudio: %w", err)
	}

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(m.sampleRate), framesPerBuffer, m.buffer)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("opening stream: %w", err)
	}
	m.stream = stream

	if err := m.stream.Start(); err != nil {
		m.stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("starting stream: %w", err)
	}

	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})

	go m.capture(ctx)

	m.logger.Info("microphone started", "sample_rate", m.sampleRate)
	return nil
}

func (m *MicrophoneSource) Stop() error {
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
	if m.stream != nil {
		m.stream.Stop()
		m.stream.Close()
	}
	portaudio.Terminate()
	m.queue.close()
	return nil
}

func (m *MicrophoneSource) capture(ctx context.Context) {
	defer close(m.done)

	samples := make([]float32, 0, m.sampleRate*5)
	silentFrames := 0
	maxSilence := m.sampleRate     // ~1s of trailing silence ends the utterance
	maxUtterance := m.sampleRate * 10

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := m.stream.Read(); err != nil {
			m.logger.Error("reading from stream", "error", err)
			return
		}

		silent := true
		for _, sample := range m.buffer {
			if sample > silenceThreshold || sample < -silenceThreshold {
				silent = false
			}
			samples = append(samples, float32(sample)/32768.0)
		}

		if silent {
			silentFrames += len(m.buffer)
		} else {
			silentFrames = 0
		}

		if (silentFrames > maxSilence && len(samples) > m.sampleRate) || len(samples) > maxUtterance {
			m.flush(ctx, samples)
			samples = samples[:0]
			silentFrames = 0
		}
	}
}

func (m *MicrophoneSource) flush(ctx context.Context, samples []float32) {
	utterance := make([]float32, len(samples))
	copy(utterance, samples)

	text, confidence, err := m.engine.Transcribe(ctx, utterance)
	if err != nil {
		m.logger.Error("transcribing utterance", "error", err)
		return
	}
	if text == "" {
		return
	}

	m.logger.Debug("transcribed utterance", "text", text, "confidence", confidence)
	m.queue.publish(domain.TranscriptEvent{Text: text, Final: true, Confidence: confidence})
}
