package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-audio/wav"

	"voicecmd/internal/domain"
)

// SpeechEngine transcribes mono 16 kHz float32 PCM into text with a
// confidence estimate. Implemented by the whisper wrapper.
type SpeechEngine interface {
	Transcribe(ctx context.Context, samples []float32) (string, float64, error)
}

// FileSource watches a directory for WAV files, transcribes each one, and
// emits the result as a final transcript event. Processed files are renamed
// so they are picked up exactly once.
type FileSource struct {
	dir       string
	engine    SpeechEngine
	logger    *slog.Logger
	queue     *eventQueue
	processed map[string]bool
	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewFileSource(dir string, engine SpeechEngine, logger *slog.Logger) *FileSource {
	return &FileSource{
		dir:       dir,
		engine:    engine,
		logger:    logger,
		queue:     newEventQueue(),
		processed: make(map[string]bool),
	}
}

func (f *FileSource) Name() string {
	return "file"
}

func (f *FileSource) Events() <-chan domain.TranscriptEvent {
	return f.queue.events()
}

func (f *FileSource) Start(ctx context.Context) error {
	if err := os.MkdirAll(f.dir, 0755); err != nil {
		return fmt.Errorf("creating audio dir: %w", err)
	}

	ctx, f.cancel = context.WithCancel(ctx)
	f.done = make(chan struct{})

	go f.watch(ctx)
	return nil
}

func (f *FileSource) Stop() error {
	if f.cancel != nil {
		f.cancel()
		<-f.done
	}
	f.queue.close()
	return nil
}

func (f *FileSource) watch(ctx context.Context) {
	defer close(f.done)

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			path, err := f.nextFile()
			if err != nil {
				f.logger.Error("scanning audio dir", "error", err)
				continue
			}
			if path == "" {
				continue
			}
			f.transcribeFile(ctx, path)
		}
	}
}

func (f *FileSource) nextFile() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return "", fmt.Errorf("reading dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".wav" {
			continue
		}

		path := filepath.Join(f.dir, entry.Name())
		if f.processed[path] {
			continue
		}
		f.processed[path] = true
		return path, nil
	}
	return "", nil
}

func (f *FileSource) transcribeFile(ctx context.Context, path string) {
	samples, err := decodeWAV(path)
	if err != nil {
		f.logger.Error("decoding wav", "path", path, "error", err)
		return
	}

	text, confidence, err := f.engine.Transcribe(ctx, samples)
	if err != nil {
		f.logger.Error("transcribing", "path", path, "error", err)
		return
	}

	f.logger.Info("transcribed file", "path", path, "text", text, "confidence", confidence)
	f.queue.publish(domain.TranscriptEvent{Text: text, Final: true, Confidence: confidence})

	if err := os.Rename(path, path+".processed"); err != nil {
		f.logger.Warn("marking file processed", "path", path, "error", err)
	}
}

func decodeWAV(path string) ([]float32, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening wav: %w", err)
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decoding wav: %w", err)
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, fmt.Errorf("empty wav file")
	}

	return buf.AsFloat32Buffer().Data, nil
}
