package executor

// Termination reasons reported in a Result.
const (
	TerminationCompleted = "completed"
	TerminationTimeout   = "timeout"
)

// Synthetic exit codes.
const (
	// ExitSelfTerminated is produced by the injected in-process timer.
	ExitSelfTerminated = 124
	// ExitOverflowKilled marks a process ended because captured output
	// crossed its ceiling.
	ExitOverflowKilled = 137
)

// Result describes one supervised execution. It is created once, at process
// exit or forced termination, and immutable thereafter.
type Result struct {
	ID       string   `json:"id"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
	// Chunks carries the truncated capture as ordered fragments, stdout
	// fragments first, then stderr.
	Chunks   []string `json:"chunks,omitempty"`
	ExitCode *int     `json:"exit_code"` // nil on forced kill
	Success  bool     `json:"success"`

	DurationMS int64 `json:"duration_ms"` // floored at 1ms

	TimedOut          bool   `json:"timed_out"`
	TerminationReason string `json:"termination_reason"`

	Truncated        bool   `json:"truncated"`
	Overflow         bool   `json:"overflow"`
	OverflowStrategy string `json:"overflow_strategy"`

	AdaptiveExtensions  int   `json:"adaptive_extensions"`
	ConfiguredTimeoutMS int64 `json:"configured_timeout_ms"`
	EffectiveTimeoutMS  int64 `json:"effective_timeout_ms"`

	KillEscalated     bool `json:"kill_escalated"`
	WatchdogTriggered bool `json:"watchdog_triggered"`

	ShellExe string   `json:"shell_exe"`
	Warnings []string `json:"warnings,omitempty"`
}

func intPtr(v int) *int { return &v }
