package api

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestEventStreamMultiLinePayload(t *testing.T) {
	rec := httptest.NewRecorder()
	stream := NewEventStream(rec)
	if stream == nil {
		t.Fatal("recorder should support flushing")
	}

	if _, err := stream.Writer("stdout").Write([]byte("line one\nline two")); err != nil {
		t.Fatal(err)
	}

	want := "event: stdout\ndata: line one\ndata: line two\n\n"
	if got := rec.Body.String(); got != want {
		t.Errorf("frame = %q, want %q", got, want)
	}
	if !rec.Flushed {
		t.Error("frame was not flushed")
	}
}

func TestEventStreamDoneAndError(t *testing.T) {
	rec := httptest.NewRecorder()
	stream := NewEventStream(rec)

	stream.Error("command blocked")
	stream.Done(`{"success":true}`)

	body := rec.Body.String()
	if !strings.Contains(body, "event: error\ndata: command blocked\n\n") {
		t.Errorf("missing error frame: %q", body)
	}
	if !strings.Contains(body, "event: done\ndata: {\"success\":true}\n\n") {
		t.Errorf("missing done frame: %q", body)
	}
}

// Stdout and stderr of a supervised process are drained by separate
// goroutines; their frames must never interleave on the wire.
func TestEventStreamConcurrentWriters(t *testing.T) {
	rec := httptest.NewRecorder()
	stream := NewEventStream(rec)
	stdout := stream.Writer("stdout")
	stderr := stream.Writer("stderr")

	const writes = 200
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < writes; i++ {
			stdout.Write([]byte("out-payload"))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < writes; i++ {
			stderr.Write([]byte("err-payload"))
		}
	}()
	wg.Wait()

	frames := strings.Split(strings.TrimSuffix(rec.Body.String(), "\n\n"), "\n\n")
	if len(frames) != 2*writes {
		t.Fatalf("got %d frames, want %d", len(frames), 2*writes)
	}
	for _, frame := range frames {
		switch frame {
		case "event: stdout\ndata: out-payload", "event: stderr\ndata: err-payload":
		default:
			t.Fatalf("corrupted frame: %q", frame)
		}
	}
}
