//go:build windows

package executor

import "os/exec"

func configureProcAttr(cmd *exec.Cmd) {}

// softKill has no portable soft-signal equivalent on Windows; the watchdog
// escalates straight to Kill after the grace period.
func softKill(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}

func hardKill(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}
