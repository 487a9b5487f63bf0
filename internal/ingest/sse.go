package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Event is one server-sent message on the upload stream. Progress
// events carry step and progress; the terminal result and error events
// carry success, plus data or error.
type Event struct {
	Type     string `json:"type"` // progress | result | error
	Step     string `json:"step,omitempty"`
	Progress int    `json:"progress,omitempty"`
	Message  string `json:"message,omitempty"`
	Success  *bool  `json:"success,omitempty"`
	Data     any    `json:"data,omitempty"`
	Error    string `json:"error,omitempty"`
}

// SSEWriter streams events to an HTTP response.
type SSEWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

// NewSSEWriter prepares the response for server-sent events. The
// stream stays open through preprocessing LLM calls, which can outlast
// the server's write timeout, so the write deadline is cleared for the
// life of this response.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support streaming")
	}
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return nil, fmt.Errorf("clearing write deadline: %w", err)
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return &SSEWriter{w: w, f: f}, nil
}

// Send writes one event and flushes it to the client.
func (s *SSEWriter) Send(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

// Progress emits a progress event.
func (s *SSEWriter) Progress(step string, pct int) error {
	return s.Send(Event{Type: "progress", Step: step, Progress: pct})
}

// Result emits the terminal success event.
func (s *SSEWriter) Result(data any) error {
	ok := true
	return s.Send(Event{Type: "result", Success: &ok, Data: data})
}

// Error emits the terminal error event.
func (s *SSEWriter) Error(msg string) error {
	ok := false
	return s.Send(Event{Type: "error", Success: &ok, Error: msg})
}
