package api

// ExecuteRequest is the API-level request to classify and run a command.
// Exactly one of command and script must be set. timeout is in seconds;
// timeout_seconds is the legacy name, still honored with a warning.
type ExecuteRequest struct {
	Command        string `json:"command,omitempty"`
	Script         string `json:"script,omitempty"`
	Timeout        int    `json:"timeout,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
	WorkDir        string `json:"work_dir,omitempty"`
	SessionID      string `json:"session_id,omitempty"`
	Confirmed      bool   `json:"confirmed,omitempty"`
}

// VerdictPayload is the wire form of a classification verdict.
type VerdictPayload struct {
	Level           string   `json:"level"`
	Risk            string   `json:"risk"`
	Category        string   `json:"category"`
	Reason          string   `json:"reason"`
	Blocked         bool     `json:"blocked"`
	RequiresPrompt  bool     `json:"requires_prompt"`
	MatchedPatterns []string `json:"matched_patterns,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// ExecuteResponse is returned after a supervised execution.
type ExecuteResponse struct {
	ID      string         `json:"id"`
	Verdict VerdictPayload `json:"verdict"`

	Stdout string   `json:"stdout"`
	Stderr string   `json:"stderr"`
	Chunks []string `json:"chunks,omitempty"`

	ExitCode          *int   `json:"exit_code"`
	Success           bool   `json:"success"`
	DurationMS        int64  `json:"duration_ms"`
	TimedOut          bool   `json:"timed_out"`
	TerminationReason string `json:"termination_reason"`

	Truncated        bool   `json:"truncated"`
	Overflow         bool   `json:"overflow"`
	OverflowStrategy string `json:"overflow_strategy,omitempty"`

	ConfiguredTimeoutMS int64 `json:"configured_timeout_ms"`
	EffectiveTimeoutMS  int64 `json:"effective_timeout_ms"`
	AdaptiveExtensions  int   `json:"adaptive_extensions"`
	KillEscalated       bool  `json:"kill_escalated,omitempty"`
	WatchdogTriggered   bool  `json:"watchdog_triggered,omitempty"`

	Warnings []string `json:"warnings,omitempty"`
}

// ThreatSummary is the redacted wire form of a tracked threat entry.
type ThreatSummary struct {
	CommandHash string `json:"command_hash"`
	Redacted    string `json:"redacted"`
	SessionID   string `json:"session_id,omitempty"`
	Risk        string `json:"risk"`
	Count       int    `json:"count"`
	FirstSeen   string `json:"first_seen"`
	LastSeen    string `json:"last_seen"`
}

// ErrorResponse is returned for API errors.
type ErrorResponse struct {
	Error           string         `json:"error"`
	Code            string         `json:"code"`
	RequestID       string         `json:"request_id"`
	Verdict         *VerdictPayload `json:"verdict,omitempty"`
	Recommendations []string       `json:"recommendations,omitempty"`
	RetryAfterMS    int64          `json:"retry_after_ms,omitempty"`
}

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status           string `json:"status"`
	Shell            string `json:"shell"`
	Database         bool   `json:"database"`
	ActiveExecutions int64  `json:"active_executions"`
	Uptime           string `json:"uptime"`
}
