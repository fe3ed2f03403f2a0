package api

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// EventStream frames live gateway output as Server-Sent Events. One stream
// owns the connection; every event writer derived from it shares the same
// lock, so the stdout and stderr mirrors of a supervised process cannot
// interleave partial frames even though the process pipes are drained by
// separate goroutines.
type EventStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
}

// NewEventStream prepares w for SSE framing. Returns nil if the
// ResponseWriter does not support flushing.
func NewEventStream(w http.ResponseWriter) *EventStream {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil
	}
	return &EventStream{w: w, flusher: flusher}
}

// Writer returns an io.Writer that frames each write as one event of the
// given type ("stdout", "stderr").
func (s *EventStream) Writer(event string) *streamWriter {
	return &streamWriter{stream: s, event: event}
}

// Done sends the terminal event carrying the final result as JSON.
func (s *EventStream) Done(data string) {
	_ = s.emit("done", data)
}

// Error reports a refusal or execution failure on the stream.
func (s *EventStream) Error(msg string) {
	_ = s.emit("error", msg)
}

// emit writes one complete event frame under the stream lock and flushes it.
func (s *EventStream) emit(event, payload string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fmt.Fprintf(s.w, "event: %s\n", event)

	// SSE requires each line of a multi-line payload to have its own "data:"
	// prefix. Without this, a newline in command output breaks the event
	// boundary and could inject fake SSE events.
	for _, line := range strings.Split(payload, "\n") {
		fmt.Fprintf(s.w, "data: %s\n", line)
	}
	if _, err := fmt.Fprint(s.w, "\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// streamWriter adapts one event type of an EventStream to io.Writer.
type streamWriter struct {
	stream *EventStream
	event  string
}

func (w *streamWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := w.stream.emit(w.event, string(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}
