package storage

import "time"

// Invocation is a stored audit record for one gateway invocation. Only the
// command hash and redacted shape are persisted, never the raw text.
type Invocation struct {
	ID          string     `json:"id" db:"id"`
	CommandHash string     `json:"command_hash" db:"command_hash"`
	Redacted    string     `json:"redacted" db:"redacted"`
	Level       string     `json:"level" db:"level"`
	Category    string     `json:"category" db:"category"`
	Blocked     bool       `json:"blocked" db:"blocked"`
	ExitCode    *int       `json:"exit_code,omitempty" db:"exit_code"`
	DurationMS  int64      `json:"duration_ms" db:"duration_ms"`
	TimedOut    bool       `json:"timed_out" db:"timed_out"`
	Truncated   bool       `json:"truncated" db:"truncated"`
	Status      string     `json:"status" db:"status"` // executed, refused, timeout, overflow
	ClientID    string     `json:"client_id" db:"client_id"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// ThreatRecord is the journaled projection of an UNKNOWN-verdict command.
type ThreatRecord struct {
	ID          string    `json:"id" db:"id"`
	CommandHash string    `json:"command_hash" db:"command_hash"`
	Redacted    string    `json:"redacted" db:"redacted"`
	SessionID   string    `json:"session_id" db:"session_id"`
	Risk        string    `json:"risk" db:"risk"`
	Count       int       `json:"count" db:"count"`
	SeenAt      time.Time `json:"seen_at" db:"seen_at"`
}

// InvocationFilter provides criteria for querying invocations.
type InvocationFilter struct {
	Level  string
	Status string
	Limit  int
	Offset int
}
