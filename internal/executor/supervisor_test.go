//go:build unix

package executor

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func testShell(t *testing.T) Shell {
	t.Helper()
	path, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return ShellFromPath(path)
}

func basePolicy() Policy {
	return Policy{
		ConfiguredTimeout: 10 * time.Second,
		WatchdogGrace:     500 * time.Millisecond,
		MaxOutputBytes:    1 << 20,
		MaxOutputLines:    100000,
		Overflow:          OverflowReturn,
	}
}

func TestRunSuccess(t *testing.T) {
	sup := New(testShell(t), 4)

	res, err := sup.Run(context.Background(), "echo hello world", basePolicy())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Errorf("success = false: %+v", res)
	}
	if res.ExitCode == nil || *res.ExitCode != 0 {
		t.Errorf("exit code = %v", res.ExitCode)
	}
	if !strings.Contains(res.Stdout, "hello world") {
		t.Errorf("stdout = %q", res.Stdout)
	}
	if res.DurationMS < 1 {
		t.Errorf("duration must be floored at 1ms, got %d", res.DurationMS)
	}
	if res.TerminationReason != TerminationCompleted {
		t.Errorf("termination = %s", res.TerminationReason)
	}
	if res.ID == "" {
		t.Error("invocation ID missing")
	}
}

func TestRunNonZeroExit(t *testing.T) {
	sup := New(testShell(t), 4)

	res, err := sup.Run(context.Background(), "exit 7", basePolicy())
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Error("non-zero exit must not be a success")
	}
	if res.ExitCode == nil || *res.ExitCode != 7 {
		t.Errorf("exit code = %v, want 7", res.ExitCode)
	}
	if res.TimedOut {
		t.Error("natural exit is not a timeout")
	}
}

func TestRunStderrCaptured(t *testing.T) {
	sup := New(testShell(t), 4)

	res, err := sup.Run(context.Background(), "echo oops >&2", basePolicy())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Stderr, "oops") {
		t.Errorf("stderr = %q", res.Stderr)
	}
}

func TestRunWatchdogTimeout(t *testing.T) {
	sup := New(testShell(t), 4)

	pol := basePolicy()
	pol.ConfiguredTimeout = 300 * time.Millisecond
	pol.WatchdogGrace = 300 * time.Millisecond

	start := time.Now()
	res, err := sup.Run(context.Background(), "sleep 5", pol)
	if err != nil {
		t.Fatal(err)
	}
	if !res.TimedOut || !res.WatchdogTriggered {
		t.Errorf("timed_out=%v watchdog=%v", res.TimedOut, res.WatchdogTriggered)
	}
	if res.TerminationReason != TerminationTimeout {
		t.Errorf("termination = %s", res.TerminationReason)
	}
	if res.Success {
		t.Error("timeout must not be a success")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("watchdog took %s to reclaim the process", elapsed)
	}
}

func TestRunSelfTerminate(t *testing.T) {
	sup := New(testShell(t), 4)
	if timeoutBinary() == "" {
		t.Skip("coreutils timeout not available")
	}

	pol := basePolicy()
	pol.ConfiguredTimeout = 3 * time.Second
	pol.SelfTerminate = true

	res, err := sup.Run(context.Background(), "sleep 30", pol)
	if err != nil {
		t.Fatal(err)
	}
	// The injected timer runs a margin ahead of the deadline, so the process
	// must exit cooperatively before the watchdog ever fires.
	if res.ExitCode == nil || *res.ExitCode != ExitSelfTerminated {
		t.Errorf("exit code = %v, want %d", res.ExitCode, ExitSelfTerminated)
	}
	if res.WatchdogTriggered {
		t.Error("cooperative exit should preempt the watchdog")
	}
	if !res.TimedOut {
		t.Error("self-terminated run must report timed_out")
	}
	if res.TerminationReason != TerminationTimeout {
		t.Errorf("termination = %s", res.TerminationReason)
	}
}

func TestRunAdaptiveExtension(t *testing.T) {
	sup := New(testShell(t), 4)

	pol := basePolicy()
	pol.ConfiguredTimeout = 400 * time.Millisecond
	pol.Adaptive = true
	pol.AdaptiveExtendWindow = 2 * time.Second
	pol.AdaptiveExtendStep = 400 * time.Millisecond
	pol.AdaptiveMaxTotal = 10 * time.Second

	// Produces output every 100ms for just over a second, past the base
	// deadline but well within the adaptive budget.
	cmd := `i=0; while [ $i -lt 11 ]; do echo tick; sleep 0.1; i=$((i+1)); done`

	res, err := sup.Run(context.Background(), cmd, pol)
	if err != nil {
		t.Fatal(err)
	}
	if res.TimedOut {
		t.Fatalf("active process should have been extended, not killed: %+v", res)
	}
	if !res.Success {
		t.Errorf("success = false: stderr=%q", res.Stderr)
	}
	if res.AdaptiveExtensions < 1 {
		t.Errorf("extensions = %d, want at least 1", res.AdaptiveExtensions)
	}
	if res.EffectiveTimeoutMS <= res.ConfiguredTimeoutMS {
		t.Errorf("effective timeout %dms should exceed configured %dms",
			res.EffectiveTimeoutMS, res.ConfiguredTimeoutMS)
	}
}

func TestRunAdaptiveSilentProcessStillKilled(t *testing.T) {
	sup := New(testShell(t), 4)

	pol := basePolicy()
	pol.ConfiguredTimeout = 400 * time.Millisecond
	pol.Adaptive = true
	pol.AdaptiveExtendWindow = 200 * time.Millisecond
	pol.AdaptiveExtendStep = 400 * time.Millisecond
	pol.AdaptiveMaxTotal = 5 * time.Second

	res, err := sup.Run(context.Background(), "sleep 5", pol)
	if err != nil {
		t.Fatal(err)
	}
	if !res.TimedOut {
		t.Error("a silent process earns no extension")
	}
	if res.AdaptiveExtensions != 0 {
		t.Errorf("extensions = %d, want 0", res.AdaptiveExtensions)
	}
}

func TestRunOverflowTerminate(t *testing.T) {
	sup := New(testShell(t), 4)

	pol := basePolicy()
	pol.MaxOutputBytes = 2048
	pol.Overflow = OverflowTerminate

	start := time.Now()
	res, err := sup.Run(context.Background(), "while :; do echo aaaaaaaaaaaaaaaa; done", pol)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Overflow || !res.Truncated {
		t.Errorf("overflow=%v truncated=%v", res.Overflow, res.Truncated)
	}
	if res.ExitCode == nil || *res.ExitCode != ExitOverflowKilled {
		t.Errorf("exit code = %v, want %d", res.ExitCode, ExitOverflowKilled)
	}
	if res.Success {
		t.Error("overflow must not be a success")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("terminate strategy took %s", elapsed)
	}
}

func TestRunOverflowReturn(t *testing.T) {
	sup := New(testShell(t), 4)

	pol := basePolicy()
	pol.MaxOutputBytes = 2048
	pol.Overflow = OverflowReturn

	res, err := sup.Run(context.Background(), "while :; do echo bbbbbbbbbbbbbbbb; done", pol)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Overflow {
		t.Error("overflow expected")
	}
	if res.ExitCode == nil || *res.ExitCode != ExitOverflowKilled {
		t.Errorf("exit code = %v, want %d", res.ExitCode, ExitOverflowKilled)
	}
	if len(res.Chunks) == 0 {
		t.Error("truncated result should carry ordered chunks")
	}
}

func TestRunOverflowChunksIncludeStderr(t *testing.T) {
	sup := New(testShell(t), 4)

	pol := basePolicy()
	pol.MaxOutputBytes = 2048
	pol.Overflow = OverflowReturn

	res, err := sup.Run(context.Background(), "while :; do echo errline >&2; done", pol)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Overflow {
		t.Fatal("overflow expected")
	}
	if !strings.Contains(strings.Join(res.Chunks, ""), "errline") {
		t.Error("stderr fragments missing from chunks")
	}
}

func TestRunOverflowTruncateRunsToCompletion(t *testing.T) {
	sup := New(testShell(t), 4)

	pol := basePolicy()
	pol.MaxOutputBytes = 512
	pol.Overflow = OverflowTruncate

	cmd := `i=0; while [ $i -lt 200 ]; do echo 0123456789; i=$((i+1)); done; exit 0`
	res, err := sup.Run(context.Background(), cmd, pol)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Overflow {
		t.Fatal("overflow expected")
	}
	if res.ExitCode == nil || *res.ExitCode != 0 {
		t.Errorf("truncate strategy lets the process finish, exit = %v", res.ExitCode)
	}
	if len(res.Stdout) > 512 {
		t.Errorf("captured %d bytes past the ceiling", len(res.Stdout))
	}
}

func TestRunCommandTooLong(t *testing.T) {
	sup := New(testShell(t), 4)

	pol := basePolicy()
	pol.MaxCommandLength = 16

	_, err := sup.Run(context.Background(), strings.Repeat("a", 64), pol)
	if !errors.Is(err, ErrCommandTooLong) {
		t.Fatalf("err = %v, want ErrCommandTooLong", err)
	}

	var invErr *InvocationError
	if !errors.As(err, &invErr) || invErr.InvocationID == "" {
		t.Errorf("error should carry the invocation ID: %v", err)
	}
}

func TestRunWorkDir(t *testing.T) {
	sup := New(testShell(t), 4)

	dir := t.TempDir()
	pol := basePolicy()
	pol.WorkDir = dir

	res, err := sup.Run(context.Background(), "pwd", pol)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("pwd failed: %q", res.Stderr)
	}
}

func TestRunWorkDirRejected(t *testing.T) {
	sup := New(testShell(t), 4)

	pol := basePolicy()
	pol.WorkDir = t.TempDir()
	pol.WorkDirPolicy = WorkDirPolicy{Enabled: true, AllowedRoots: []string{"/nonexistent-root"}}

	_, err := sup.Run(context.Background(), "pwd", pol)
	if !errors.Is(err, ErrWorkDirPolicy) {
		t.Fatalf("err = %v, want ErrWorkDirPolicy", err)
	}
}

func TestRunStreamingMirrors(t *testing.T) {
	sup := New(testShell(t), 4)

	var out, errBuf bytes.Buffer
	res, err := sup.RunStreaming(context.Background(), "echo live; echo err >&2", basePolicy(), &out, &errBuf)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("run failed: %+v", res)
	}
	if !strings.Contains(out.String(), "live") {
		t.Errorf("stdout mirror = %q", out.String())
	}
	if !strings.Contains(errBuf.String(), "err") {
		t.Errorf("stderr mirror = %q", errBuf.String())
	}
}

func TestRunContextCancelledBeforeSlot(t *testing.T) {
	sup := New(testShell(t), 1)

	release := make(chan struct{})
	go func() {
		pol := basePolicy()
		pol.ConfiguredTimeout = 5 * time.Second
		sup.Run(context.Background(), "sleep 2", pol)
		close(release)
	}()
	time.Sleep(200 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := sup.Run(ctx, "echo queued", basePolicy())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded while waiting for a slot", err)
	}
	<-release
}
