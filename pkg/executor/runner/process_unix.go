//go:build unix

package runner

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// setProcessGroup makes the interpreter the leader of a new process group so
// that everything it spawns can be signalled at once.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killTree kills the known descendants of pid one by one, then SIGKILLs the
// whole process group led by pid. ESRCH means it already exited and is not an error.
func killTree(pid int) (int, error) {
	killed := killDescendants(pid)

	err := syscall.Kill(-pid, syscall.SIGKILL)
	switch {
	case err == nil:
		killed++
	case errors.Is(err, syscall.ESRCH):
		err = nil
	}
	return killed, err
}

func signalExitCode(state *os.ProcessState) int {
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return 1
}

// killGroup SIGKILLs whatever is left in the process group led by pid.
// It returns 1 if the group still had members, 0 otherwise.
func killGroup(pid int) int {
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil {
		return 0
	}
	return 1
}
