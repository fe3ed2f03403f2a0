//go:build unix

package executor

import (
	"os/exec"
	"syscall"
)

// configureProcAttr places the child in its own process group so the whole
// tree can be signalled at once.
func configureProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// softKill sends SIGTERM to the child's process group.
func softKill(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
}

// hardKill sends SIGKILL to the child's process group. Unconditionally
// effective; no cooperation from the child is required.
func hardKill(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
