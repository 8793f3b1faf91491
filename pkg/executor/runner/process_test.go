//go:build unix

package runner_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"macagent/pkg/executor/runner"
)

func newShellRunner(grace time.Duration) *runner.ProcessRunner {
	return runner.NewProcessRunner("sh", []string{"-c"}, grace, zap.NewNop())
}

// processGone reports whether pid no longer exists. Zombies count as gone
// since they cannot run and only wait for their parent to reap them.
func processGone(pid int) bool {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return true
	}
	status, err := p.Status()
	if err != nil {
		return true
	}
	return slices.Contains(status, process.Zombie)
}

func readPID(t *testing.T, path string) int {
	t.Helper()
	var pid int
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(path)
		if err != nil {
			return false
		}
		pid, err = strconv.Atoi(strings.TrimSpace(string(data)))
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	return pid
}

func TestProcessRunner_Success(t *testing.T) {
	r := newShellRunner(time.Second)

	res := r.Run(context.Background(), `echo ok`, 5*time.Second)

	assert.Equal(t, runner.StatusCompleted, res.Status)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "ok\n", res.Stdout)
	assert.Equal(t, "", res.Stderr)
	assert.Equal(t, "echo ok", res.Script)
	assert.NotZero(t, res.PID)
	assert.NoError(t, res.Err)
}

func TestProcessRunner_NonZeroExitIsReported(t *testing.T) {
	r := newShellRunner(time.Second)

	res := r.Run(context.Background(), `echo broken >&2; exit 3`, 5*time.Second)

	assert.Equal(t, runner.StatusCompleted, res.Status)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "broken\n", res.Stderr)
	assert.NoError(t, res.Err)
}

func TestProcessRunner_ForeignSignalDoesNotLookLikeTimeout(t *testing.T) {
	r := newShellRunner(time.Second)

	res := r.Run(context.Background(), `kill -9 $$`, 5*time.Second)

	assert.Equal(t, runner.StatusCompleted, res.Status)
	assert.Equal(t, 128+9, res.ExitCode)
}

func TestProcessRunner_TimeoutKillsProcess(t *testing.T) {
	r := newShellRunner(500 * time.Millisecond)

	start := time.Now()
	res := r.Run(context.Background(), `echo partial; sleep 30`, 200*time.Millisecond)
	elapsed := time.Since(start)

	assert.Equal(t, runner.StatusTimedOut, res.Status)
	assert.Equal(t, runner.TimeoutExitCode, res.ExitCode)
	assert.Equal(t, runner.TimeoutMessage, res.Stderr)
	assert.Empty(t, res.Stdout)
	assert.Less(t, elapsed, 2*time.Second)
	assert.Eventually(t, func() bool { return processGone(res.PID) }, 2*time.Second, 20*time.Millisecond)
}

func TestProcessRunner_TimeoutKillsProcessTree(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "child.pid")
	r := newShellRunner(500 * time.Millisecond)

	script := fmt.Sprintf(`sleep 30 & echo $! > %q; wait`, pidFile)
	res := r.Run(context.Background(), script, 300*time.Millisecond)

	require.Equal(t, runner.StatusTimedOut, res.Status)
	child := readPID(t, pidFile)
	assert.Eventually(t, func() bool { return processGone(child) }, 2*time.Second, 20*time.Millisecond)
	assert.Eventually(t, func() bool { return processGone(res.PID) }, 2*time.Second, 20*time.Millisecond)
}

func TestProcessRunner_LeftoverBackgroundJobIsKilled(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "bg.pid")
	r := newShellRunner(300 * time.Millisecond)

	// The background sleep inherits stdout, so only the grace period lets Run return.
	script := fmt.Sprintf(`echo hi; sleep 30 & echo $! > %q`, pidFile)
	res := r.Run(context.Background(), script, 5*time.Second)

	assert.Equal(t, runner.StatusCompleted, res.Status)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hi\n", res.Stdout)

	bg := readPID(t, pidFile)
	assert.Eventually(t, func() bool { return processGone(bg) }, 2*time.Second, 20*time.Millisecond)
}

func TestProcessRunner_CallerCancellationDoesNotStopRun(t *testing.T) {
	r := newShellRunner(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := r.Run(ctx, `sleep 0.2; echo done`, 5*time.Second)

	assert.Equal(t, runner.StatusCompleted, res.Status)
	assert.Equal(t, "done\n", res.Stdout)
}

func TestProcessRunner_LaunchFailure(t *testing.T) {
	r := runner.NewProcessRunner(filepath.Join(t.TempDir(), "missing-interpreter"), []string{"-e"}, time.Second, zap.NewNop())

	res := r.Run(context.Background(), `beep`, time.Second)

	assert.Equal(t, runner.StatusLaunchFailed, res.Status)
	assert.Equal(t, runner.LaunchFailureExitCode, res.ExitCode)
	assert.NotEqual(t, runner.TimeoutExitCode, res.ExitCode)
	assert.Zero(t, res.PID)
	assert.NotEmpty(t, res.Stderr)
	assert.ErrorIs(t, res.Err, runner.ErrLaunchFailure)
}

func TestProcessRunner_ConcurrentRunsAreIndependent(t *testing.T) {
	r := newShellRunner(500 * time.Millisecond)

	fast := make(chan runner.Result, 1)
	slow := make(chan runner.Result, 1)
	go func() { slow <- r.Run(context.Background(), `sleep 30`, 300*time.Millisecond) }()
	go func() { fast <- r.Run(context.Background(), `echo fast`, 5*time.Second) }()

	f := <-fast
	s := <-slow
	assert.Equal(t, runner.StatusCompleted, f.Status)
	assert.Equal(t, "fast\n", f.Stdout)
	assert.Equal(t, runner.StatusTimedOut, s.Status)
}
