package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"voicecmd/internal/domain"
)

// transcriptPayload is the wire form accepted by the push endpoints. Final
// defaults to true and Confidence to 1.0 so `curl -d '{"text":"..."}'` works
// for quick testing.
type transcriptPayload struct {
	Text       string   `json:"text"`
	Final      *bool    `json:"final,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

func (p transcriptPayload) event() domain.TranscriptEvent {
	event := domain.TranscriptEvent{Text: p.Text, Final: true, Confidence: 1.0}
	if p.Final != nil {
		event.Final = *p.Final
	}
	if p.Confidence != nil {
		event.Confidence = *p.Confidence
	}
	return event
}

// HTTPSource accepts transcript events pushed over HTTP: single events via
// POST /transcript and a stream of events over a websocket at /stream. It
// exists so an external recognizer (or an operator with curl) can drive the
// pipeline without local audio hardware.
type HTTPSource struct {
	addr        string
	boundAddr   string
	server      *http.Server
	queue       *eventQueue
	logger      *slog.Logger
	mu          sync.Mutex
	running     bool
	mux         *http.ServeMux
	rateLimiter *RateLimiter
	authToken   string
	upgrader    websocket.Upgrader
	streamMu    sync.Mutex
	streams     map[*websocket.Conn]struct{}
}

func NewHTTPSource(addr string, authToken string, logger *slog.Logger) *HTTPSource {
	h := &HTTPSource{
		addr:        addr,
		queue:       newEventQueue(),
		logger:      logger,
		mux:         http.NewServeMux(),
		rateLimiter: NewRateLimiter(60, time.Minute),
		authToken:   authToken,
		upgrader:    websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		streams:     make(map[*websocket.Conn]struct{}),
	}
	h.mux.HandleFunc("POST /transcript", h.rateLimiter.Middleware(h.withAuth(h.handleTranscript)))
	h.mux.HandleFunc("GET /stream", h.rateLimiter.Middleware(h.withAuth(h.handleStream)))
	h.mux.HandleFunc("GET /health", h.handleHealth)
	return h
}

func (h *HTTPSource) Name() string {
	return "http"
}

func (h *HTTPSource) Events() <-chan domain.TranscriptEvent {
	return h.queue.events()
}

func (h *HTTPSource) Start(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return nil
	}

	h.server = &http.Server{
		Addr:         h.addr,
		Handler:      h.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Bind synchronously so an unusable address is a startup error, not a
	// log line from a goroutine.
	listener, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", h.addr, err)
	}

	h.boundAddr = listener.Addr().String()

	go func() {
		h.logger.Info("HTTP transcript server starting", "addr", listener.Addr().String())
		if err := h.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", "error", err)
		}
	}()

	h.running = true
	return nil
}

func (h *HTTPSource) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return nil
	}

	// Refuse further events before touching the server: hijacked websocket
	// connections are not covered by Shutdown, so a frame can still arrive
	// while it drains.
	h.queue.close()

	h.streamMu.Lock()
	for conn := range h.streams {
		conn.Close()
	}
	h.streamMu.Unlock()

	if h.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := h.server.Shutdown(ctx); err != nil {
			h.logger.Warn("graceful shutdown failed, forcing close", "error", err)
			if err := h.server.Close(); err != nil {
				return fmt.Errorf("closing server: %w", err)
			}
		}
	}

	h.running = false
	return nil
}

// Addr reports the bound listen address, useful when the source was started
// on port 0.
func (h *HTTPSource) Addr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.boundAddr
}

// Handler exposes the mux for tests.
func (h *HTTPSource) Handler() http.Handler {
	return h.mux
}

// Inject publishes an event directly, bypassing HTTP. Used by tests.
func (h *HTTPSource) Inject(event domain.TranscriptEvent) {
	h.queue.publish(event)
}

func (h *HTTPSource) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.authToken != "" {
			token := r.Header.Get("X-Auth-Token")
			if token == "" {
				token = r.URL.Query().Get("token")
			}
			if token != h.authToken {
				h.logger.Warn("unauthorized request", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (h *HTTPSource) handleTranscript(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, 64*1024))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var payload transcriptPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if payload.Text == "" {
		http.Error(w, "empty text", http.StatusBadRequest)
		return
	}

	event := payload.event()
	if !h.queue.publish(event) {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	h.logger.Info("received transcript via HTTP",
		"text", event.Text, "final", event.Final, "confidence", event.Confidence)

	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintf(w, `{"status":"received"}`)
}

func (h *HTTPSource) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade", "error", err)
		return
	}
	defer conn.Close()

	h.streamMu.Lock()
	h.streams[conn] = struct{}{}
	h.streamMu.Unlock()
	defer func() {
		h.streamMu.Lock()
		delete(h.streams, conn)
		h.streamMu.Unlock()
	}()

	h.logger.Info("transcript stream connected", "remote_addr", r.RemoteAddr)

	for {
		var payload transcriptPayload
		if err := conn.ReadJSON(&payload); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("transcript stream error", "error", err)
			}
			return
		}
		if payload.Text == "" {
			continue
		}
		if !h.queue.publish(payload.event()) {
			return
		}
	}
}

func (h *HTTPSource) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h.mu.Lock()
	running := h.running
	queued := len(h.queue.ch)
	h.mu.Unlock()

	status := "ok"
	statusCode := http.StatusOK
	if !running {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	fmt.Fprintf(w, `{"status":"%s","running":%t,"queue_size":%d}`, status, running, queued)
}
