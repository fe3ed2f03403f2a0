package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Supervisor runs shell commands under a timeout budget with bounded output
// capture and watchdog kill escalation. One Run owns exactly one child
// process; concurrent Runs are bounded by a semaphore.
type Supervisor struct {
	shell  Shell
	sem    chan struct{}
	active atomic.Int64
}

// New creates a supervisor bound to shell.
func New(shell Shell, maxConcurrent int) *Supervisor {
	if maxConcurrent < 1 {
		maxConcurrent = 100
	}
	return &Supervisor{
		shell: shell,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

// NewDetected creates a supervisor using the process-wide detected shell.
func NewDetected(maxConcurrent int) (*Supervisor, error) {
	shell, err := DetectShell()
	if err != nil {
		return nil, err
	}
	return New(shell, maxConcurrent), nil
}

// ActiveCount returns the number of currently running executions.
func (s *Supervisor) ActiveCount() int64 {
	return s.active.Load()
}

// Run executes command under pol and blocks until natural exit, an
// overflow-triggered early return, or watchdog-escalated termination.
// Timeout and overflow are not errors; they are described in the Result.
func (s *Supervisor) Run(ctx context.Context, command string, pol Policy) (*Result, error) {
	return s.runInternal(ctx, command, pol, nil, nil)
}

// RunStreaming is Run with live mirrors for stdout and stderr. Mirrors
// receive every byte, regardless of the capture ceilings.
func (s *Supervisor) RunStreaming(ctx context.Context, command string, pol Policy, stdout, stderr io.Writer) (*Result, error) {
	return s.runInternal(ctx, command, pol, stdout, stderr)
}

func (s *Supervisor) runInternal(ctx context.Context, command string, pol Policy, outMirror, errMirror io.Writer) (*Result, error) {
	pol = pol.Normalize()
	invID := uuid.New().String()

	logger := log.With().
		Str("invocation_id", invID).
		Str("shell", s.shell.Exe).
		Logger()

	if len(command) > pol.MaxCommandLength {
		return nil, &InvocationError{InvocationID: invID, Op: "validate",
			Err: fmt.Errorf("%w: %d bytes (limit %d)", ErrCommandTooLong, len(command), pol.MaxCommandLength)}
	}

	workDir, err := pol.WorkDirPolicy.Check(pol.WorkDir)
	if err != nil {
		return nil, &InvocationError{InvocationID: invID, Op: "workdir", Err: err}
	}

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		return nil, &InvocationError{InvocationID: invID, Op: "acquire_slot", Err: ctx.Err()}
	}
	s.active.Add(1)
	defer s.active.Add(-1)

	warnings := append([]string(nil), pol.Warnings...)

	// The injected timer is derived from the full adaptive budget so
	// cooperative preemption never fires inside a legitimately extended
	// deadline.
	commandLine := command
	selfTerminated := false
	if pol.SelfTerminate {
		budget := pol.ConfiguredTimeout
		if pol.Adaptive {
			budget = pol.AdaptiveMaxTotal
		}
		commandLine, selfTerminated = s.shell.wrapSelfTerminate(command, budget)
		if !selfTerminated {
			warnings = append(warnings, "self-terminate injection unavailable for this shell")
		}
	}

	state := newCaptureState(pol.MaxOutputBytes, pol.MaxOutputLines)
	stdoutBuf := newCaptureBuffer(state, outMirror)
	stderrBuf := newCaptureBuffer(state, errMirror)

	cmd := exec.Command(s.shell.Exe, append(append([]string(nil), s.shell.Args...), commandLine)...) // #nosec G204 -- argv is the resolved shell; the command text was already classified
	cmd.Dir = workDir
	cmd.Stdout = stdoutBuf
	cmd.Stderr = stderrBuf
	configureProcAttr(cmd)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, &InvocationError{InvocationID: invID, Op: "spawn", Err: fmt.Errorf("%w: %v", ErrSpawn, err)}
	}
	logger.Info().Int("pid", cmd.Process.Pid).Msg("process started")

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	run := &runState{
		cmd:       cmd,
		waitCh:    waitCh,
		state:     state,
		pol:       pol,
		start:     start,
		effective: pol.ConfiguredTimeout,
	}
	res := run.superviseLoop()

	res.ID = invID
	res.Stdout = stdoutBuf.String()
	res.Stderr = stderrBuf.String()
	if res.Truncated {
		res.Chunks = append(stdoutBuf.chunks(), stderrBuf.chunks()...)
	}
	res.DurationMS = durationMS(start)
	res.ConfiguredTimeoutMS = pol.ConfiguredTimeout.Milliseconds()
	res.EffectiveTimeoutMS = run.effective.Milliseconds()
	res.AdaptiveExtensions = run.extensions
	res.OverflowStrategy = string(pol.Overflow)
	res.ShellExe = s.shell.Exe
	res.Warnings = warnings
	res.Success = res.ExitCode != nil && *res.ExitCode == 0 && !res.TimedOut && !res.Overflow

	logger.Info().
		Bool("success", res.Success).
		Bool("timed_out", res.TimedOut).
		Bool("overflow", res.Overflow).
		Int64("duration_ms", res.DurationMS).
		Msg("execution finished")

	return res, nil
}

// runState holds the single-writer supervision state for one invocation.
// All transitions happen in superviseLoop; reader goroutines only signal.
type runState struct {
	cmd    *exec.Cmd
	waitCh chan error
	state  *captureState
	pol    Policy
	start  time.Time

	effective  time.Duration
	extensions int
}

// superviseLoop drives the Running → SelfTerminating|TimedOut|Overflowed →
// Completed state machine. The overflow event is always evaluated before a
// deadline tick, making the overflow/timeout tie-break deterministic.
func (r *runState) superviseLoop() *Result {
	deadline := time.NewTimer(r.effective)
	defer deadline.Stop()

	overflowCh := r.state.overflowCh
	res := &Result{TerminationReason: TerminationCompleted}

	for {
		select {
		case waitErr := <-r.waitCh:
			r.finishNatural(res, waitErr)
			return res

		case <-overflowCh:
			overflowCh = nil // fires once
			res.Overflow = true
			res.Truncated = true
			switch r.pol.Overflow {
			case OverflowTruncate:
				// Buffers stopped growing; wait for natural completion.
				continue
			case OverflowTerminate:
				hardKill(r.cmd)
				<-r.waitCh
				res.ExitCode = intPtr(ExitOverflowKilled)
				return res
			default: // OverflowReturn
				// Stop waiting, but never leave an untracked child: a
				// detached reaper kills and collects it.
				cmd, waitCh := r.cmd, r.waitCh
				go func() {
					hardKill(cmd)
					<-waitCh
				}()
				res.ExitCode = intPtr(ExitOverflowKilled)
				return res
			}

		case <-deadline.C:
			// Overflow beats the deadline when both are pending.
			if overflowCh != nil && r.state.overflowed() {
				deadline.Reset(time.Millisecond)
				continue
			}
			if r.tryExtend() {
				deadline.Reset(time.Until(r.start.Add(r.effective)))
				continue
			}
			r.watchdog(res)
			return res
		}
	}
}

// tryExtend pushes the deadline out by one step when output activity was
// observed within the extension window and budget remains. Checked only at
// deadline expiry.
func (r *runState) tryExtend() bool {
	if !r.pol.Adaptive {
		return false
	}
	if r.effective+r.pol.AdaptiveExtendStep > r.pol.AdaptiveMaxTotal {
		return false
	}
	last := r.state.lastActivity.Load()
	if last == 0 {
		return false
	}
	sinceActivity := time.Duration(nowNanos() - last)
	if sinceActivity > r.pol.AdaptiveExtendWindow {
		return false
	}
	r.effective += r.pol.AdaptiveExtendStep
	r.extensions++
	return true
}

// watchdog escalates termination: soft signal, grace period, hard kill.
func (r *runState) watchdog(res *Result) {
	res.TimedOut = true
	res.TerminationReason = TerminationTimeout
	res.WatchdogTriggered = true

	softKill(r.cmd)
	grace := time.NewTimer(r.pol.WatchdogGrace)
	defer grace.Stop()

	select {
	case waitErr := <-r.waitCh:
		res.ExitCode = exitCodeOf(waitErr)
	case <-grace.C:
		hardKill(r.cmd)
		res.KillEscalated = true
		<-r.waitCh
		res.ExitCode = nil // forced kill has no meaningful exit code
	}
}

// finishNatural records a process that exited on its own, including the
// cooperative self-terminate path (synthetic exit 124).
func (r *runState) finishNatural(res *Result, waitErr error) {
	res.ExitCode = exitCodeOf(waitErr)
	if res.ExitCode != nil && *res.ExitCode == ExitSelfTerminated {
		res.TimedOut = true
		res.TerminationReason = TerminationTimeout
	}
}

func exitCodeOf(waitErr error) *int {
	if waitErr == nil {
		return intPtr(0)
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		code := exitErr.ExitCode()
		if code < 0 {
			return nil // killed by signal
		}
		return intPtr(code)
	}
	return nil
}

func durationMS(start time.Time) int64 {
	ms := time.Since(start).Milliseconds()
	if ms < 1 {
		ms = 1 // keep aggregate averages meaningful
	}
	return ms
}

func nowNanos() int64 {
	return time.Now().UnixNano()
}
