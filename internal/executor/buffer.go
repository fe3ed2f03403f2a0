package executor

import (
	"bytes"
	"io"
	"sync"
	"sync/atomic"
)

// chunkSize is the fragment size Chunks are reported in when capture was
// truncated.
const chunkSize = 4096

// captureState is shared by the stdout and stderr buffers of one invocation.
// It carries the ceilings, the activity clock for adaptive timeouts, and the
// overflow event, which fires exactly once.
type captureState struct {
	maxBytes int
	maxLines int

	bytes atomic.Int64
	lines atomic.Int64

	lastActivity atomic.Int64 // unix nanos of the most recent write

	overflowOnce sync.Once
	overflowCh   chan struct{}
}

func newCaptureState(maxBytes, maxLines int) *captureState {
	return &captureState{
		maxBytes:   maxBytes,
		maxLines:   maxLines,
		overflowCh: make(chan struct{}),
	}
}

func (cs *captureState) signalOverflow() {
	cs.overflowOnce.Do(func() { close(cs.overflowCh) })
}

func (cs *captureState) overflowed() bool {
	select {
	case <-cs.overflowCh:
		return true
	default:
		return false
	}
}

// captureBuffer accumulates one stream up to the shared ceilings. Writes past
// a ceiling are discarded so the pipe keeps draining; they still update the
// activity clock. mirror, when set, receives every byte regardless of the
// ceilings (live streaming).
type captureBuffer struct {
	state  *captureState
	mirror io.Writer

	mu  sync.Mutex
	buf bytes.Buffer
}

func newCaptureBuffer(state *captureState, mirror io.Writer) *captureBuffer {
	return &captureBuffer{state: state, mirror: mirror}
}

func (b *captureBuffer) Write(p []byte) (int, error) {
	b.state.lastActivity.Store(nowNanos())

	if b.mirror != nil {
		_, _ = b.mirror.Write(p)
	}

	newBytes := b.state.bytes.Add(int64(len(p)))
	newLines := b.state.lines.Add(int64(bytes.Count(p, []byte{'\n'})))

	over := newBytes > int64(b.state.maxBytes) || newLines > int64(b.state.maxLines)

	b.mu.Lock()
	if !b.state.overflowed() || !over {
		retain := p
		if excess := newBytes - int64(b.state.maxBytes); excess > 0 {
			keep := int64(len(p)) - excess
			if keep < 0 {
				keep = 0
			}
			retain = p[:keep]
		}
		b.buf.Write(retain)
	}
	b.mu.Unlock()

	if over {
		b.state.signalOverflow()
	}
	return len(p), nil
}

// String returns the captured content.
func (b *captureBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// chunks splits the captured content into ordered fixed-size fragments.
func (b *captureBuffer) chunks() []string {
	s := b.String()
	if s == "" {
		return nil
	}
	out := make([]string, 0, len(s)/chunkSize+1)
	for len(s) > chunkSize {
		out = append(out, s[:chunkSize])
		s = s[chunkSize:]
	}
	return append(out, s)
}
