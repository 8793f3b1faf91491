//go:build !unix

package runner

import (
	"errors"
	"os"
	"os/exec"
)

func setProcessGroup(cmd *exec.Cmd) {}

// Without process groups, every descendant found is killed individually
// before the root process.
func killTree(pid int) (int, error) {
	killed := killDescendants(pid)

	p, err := os.FindProcess(pid)
	if err != nil {
		return killed, nil
	}
	if err := p.Kill(); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return killed, nil
		}
		return killed, err
	}
	return killed + 1, nil
}

func signalExitCode(state *os.ProcessState) int {
	return 1
}

func killGroup(pid int) int { return 0 }
