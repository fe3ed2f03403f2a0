package safety

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ThreatEntry aggregates UNKNOWN-verdict occurrences of one normalized
// command for the lifetime of the server process.
type ThreatEntry struct {
	Normalized string    `json:"normalized"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
	Count      int       `json:"count"`
	SessionID  string    `json:"session_id"`
	Risk       Risk      `json:"risk"`
}

// ThreatEvent is the redacted projection forwarded to the journal sink.
// It never carries the raw command text.
type ThreatEvent struct {
	CommandHash string
	Redacted    string
	SessionID   string
	Risk        Risk
	Count       int
	SeenAt      time.Time
}

// JournalSink receives redacted threat events. Implementations own
// persistence; the tracker never blocks on them beyond the call itself.
type JournalSink interface {
	RecordThreat(event ThreatEvent)
}

// Tracker records UNKNOWN verdicts in memory and forwards redacted copies to
// the journal. Safe for concurrent use.
type Tracker struct {
	mu         sync.Mutex
	entries    map[string]*ThreatEntry
	maxEntries int
	sink       JournalSink
}

// NewTracker creates a tracker. maxEntries caps the in-memory map; when it
// overflows, the entry with the oldest lastSeen is evicted. sink may be nil.
func NewTracker(maxEntries int, sink JournalSink) *Tracker {
	if maxEntries < 1 {
		maxEntries = 10000
	}
	return &Tracker{
		entries:    make(map[string]*ThreatEntry),
		maxEntries: maxEntries,
		sink:       sink,
	}
}

// Record folds an UNKNOWN verdict for command into the aggregate and emits a
// redacted event to the journal.
func (t *Tracker) Record(sessionID, command string, verdict Verdict) ThreatEntry {
	key := Normalize(command)
	now := time.Now()

	t.mu.Lock()
	entry, ok := t.entries[key]
	if ok {
		entry.Count++
		entry.LastSeen = now
	} else {
		if len(t.entries) >= t.maxEntries {
			t.evictOldestLocked()
		}
		entry = &ThreatEntry{
			Normalized: key,
			FirstSeen:  now,
			LastSeen:   now,
			Count:      1,
			SessionID:  sessionID,
			Risk:       verdict.Risk,
		}
		t.entries[key] = entry
	}
	snapshot := *entry
	t.mu.Unlock()

	log.Debug().
		Str("session_id", sessionID).
		Int("count", snapshot.Count).
		Msg("unknown command recorded")

	if t.sink != nil {
		t.sink.RecordThreat(ThreatEvent{
			CommandHash: HashCommand(key),
			Redacted:    Redact(command),
			SessionID:   sessionID,
			Risk:        verdict.Risk,
			Count:       snapshot.Count,
			SeenAt:      now,
		})
	}
	return snapshot
}

// Lookup returns the aggregate for a command, if tracked.
func (t *Tracker) Lookup(command string) (ThreatEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[Normalize(command)]
	if !ok {
		return ThreatEntry{}, false
	}
	return *entry, true
}

// Entries returns a snapshot of all tracked entries.
func (t *Tracker) Entries() []ThreatEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ThreatEntry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, *e)
	}
	return out
}

func (t *Tracker) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for k, e := range t.entries {
		if oldestKey == "" || e.LastSeen.Before(oldest) {
			oldestKey = k
			oldest = e.LastSeen
		}
	}
	if oldestKey != "" {
		delete(t.entries, oldestKey)
	}
}

// Normalize lowercases and collapses whitespace so trivially different
// spellings of the same command share one entry.
func Normalize(command string) string {
	return strings.Join(strings.Fields(strings.ToLower(command)), " ")
}

// HashCommand returns the hex SHA-256 of a normalized command.
func HashCommand(normalized string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(normalized)))
}

// Redact reduces a command to its verb and argument shape: the first token is
// kept, every other token is replaced by a shape marker. Quoted strings,
// paths and values never leave the process.
func Redact(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	out := make([]string, len(fields))
	out[0] = strings.ToLower(fields[0])
	for i, f := range fields[1:] {
		switch {
		case strings.HasPrefix(f, "-"):
			out[i+1] = f
		case strings.ContainsAny(f, `/\`):
			out[i+1] = "<path>"
		case strings.HasPrefix(f, `"`) || strings.HasPrefix(f, `'`):
			out[i+1] = "<str>"
		default:
			out[i+1] = "<arg>"
		}
	}
	return strings.Join(out, " ")
}
