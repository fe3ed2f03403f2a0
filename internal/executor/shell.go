package executor

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Family distinguishes interpreter dialects for command wrapping.
type Family int

const (
	FamilyPOSIX Family = iota
	FamilyPowerShell
)

// Shell describes the resolved interpreter binary and how to hand it a
// command string.
type Shell struct {
	Exe    string
	Args   []string // argv preceding the command text
	Family Family
}

var (
	detectOnce    sync.Once
	detectedShell Shell
	detectErr     error

	timeoutBinOnce sync.Once
	timeoutBin     string
)

// DetectShell resolves the interpreter once per process and caches the
// result. It prefers the cross-platform PowerShell binary, falls back to the
// legacy one, then to a POSIX shell.
func DetectShell() (Shell, error) {
	detectOnce.Do(func() {
		candidates := []string{"pwsh", "powershell"}
		if runtime.GOOS != "windows" {
			candidates = append(candidates, "bash", "sh")
		}
		for _, name := range candidates {
			path, err := exec.LookPath(name)
			if err != nil {
				continue
			}
			detectedShell = shellFor(path)
			log.Info().Str("shell", path).Msg("shell interpreter detected")
			return
		}
		detectErr = fmt.Errorf("%w: tried pwsh, powershell, bash, sh", ErrNoShell)
	})
	return detectedShell, detectErr
}

// ShellFromPath builds a Shell for an explicitly configured interpreter,
// inferring the dialect from the binary name.
func ShellFromPath(path string) Shell {
	return shellFor(path)
}

func shellFor(path string) Shell {
	base := strings.TrimSuffix(filepath.Base(path), ".exe")
	switch strings.ToLower(base) {
	case "pwsh", "powershell":
		return Shell{
			Exe:    path,
			Args:   []string{"-NoLogo", "-NoProfile", "-NonInteractive", "-Command"},
			Family: FamilyPowerShell,
		}
	default:
		return Shell{Exe: path, Args: []string{"-c"}, Family: FamilyPOSIX}
	}
}

// timeoutBinary locates the coreutils timeout binary used for POSIX
// self-terminate injection. Resolved once per process.
func timeoutBinary() string {
	timeoutBinOnce.Do(func() {
		if path, err := exec.LookPath("timeout"); err == nil {
			timeoutBin = path
		}
	})
	return timeoutBin
}

// selfTerminateBudget is the injected timer's budget: a margin ahead of the
// external deadline so the cooperative exit reliably beats the watchdog. The
// margin is a tenth of the budget, at least half a second; the result never
// drops below one second.
func selfTerminateBudget(budget time.Duration) time.Duration {
	margin := budget / 10
	if margin < 500*time.Millisecond {
		margin = 500 * time.Millisecond
	}
	inner := budget - margin
	if inner < time.Second {
		inner = time.Second
	}
	return inner
}

// wrapSelfTerminate embeds an internal timer so the interpreter exits itself
// with ExitSelfTerminated before the external deadline, avoiding an external
// kill signal in the common case. Returns the original command when no
// wrapping mechanism is available for the dialect.
func (s Shell) wrapSelfTerminate(command string, budget time.Duration) (string, bool) {
	inner := selfTerminateBudget(budget)
	switch s.Family {
	case FamilyPOSIX:
		tb := timeoutBinary()
		if tb == "" {
			return command, false
		}
		secs := strconv.FormatFloat(inner.Seconds(), 'f', -1, 64)
		return fmt.Sprintf("%s %s %s -c %s", tb, secs, s.Exe, posixQuote(command)), true
	case FamilyPowerShell:
		secs := int(inner / time.Second)
		if secs < 1 {
			secs = 1
		}
		return fmt.Sprintf(powershellSelfTerminate, psQuote(command), secs), true
	default:
		return command, false
	}
}

// powershellSelfTerminate runs the command in a background job and exits 124
// when the timer wins. The job's failure state maps to exit 1; the precise
// exit code of the inner command is not recoverable across the job boundary.
const powershellSelfTerminate = `$__cmd = [ScriptBlock]::Create(%s)
$__job = Start-Job -ScriptBlock $__cmd
if (-not (Wait-Job -Job $__job -Timeout %d)) {
  Stop-Job -Job $__job
  Receive-Job -Job $__job
  exit 124
}
Receive-Job -Job $__job
if ($__job.State -eq 'Failed') { exit 1 }
exit 0`

func posixQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func psQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
