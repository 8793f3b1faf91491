package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"slices"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"macagent/pkg/logger"
	"macagent/pkg/metrics"
)

// DefaultGracePeriod bounds how long Run waits for output pipes to close after
// the interpreter has exited or been killed.
const DefaultGracePeriod = 2 * time.Second

// ProcessRunner runs each script as `Interpreter Args... <script>` in its own
// process group. It holds no per-run state and is safe for concurrent use.
type ProcessRunner struct {
	Interpreter string
	Args        []string
	GracePeriod time.Duration

	logger *zap.Logger
}

func NewProcessRunner(interpreter string, args []string, grace time.Duration, log *zap.Logger) *ProcessRunner {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	if log == nil {
		log = logger.Get()
	}
	return &ProcessRunner{
		Interpreter: interpreter,
		Args:        args,
		GracePeriod: grace,
		logger:      log.Named("runner"),
	}
}

// NewOSAScriptRunner returns the runner used on macOS: `osascript -e <script>`.
func NewOSAScriptRunner(log *zap.Logger) *ProcessRunner {
	return NewProcessRunner("osascript", []string{"-e"}, DefaultGracePeriod, log)
}

// runHandle is the per-run bookkeeping shared with the cancel hook.
// timedOut is written once, by whichever side loses the race with process exit.
type runHandle struct {
	pid      int
	timedOut atomic.Bool
	killed   atomic.Int32
}

func (r *ProcessRunner) Run(ctx context.Context, script string, timeout time.Duration) Result {
	start := time.Now()

	// Only the deadline may stop a run; a departing caller must not kill it.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.Interpreter, append(slices.Clone(r.Args), script)...)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf
	setProcessGroup(cmd)

	h := &runHandle{}
	cmd.Cancel = func() error {
		h.timedOut.Store(true)
		n, err := killTree(cmd.Process.Pid)
		h.killed.Store(int32(n))
		if err != nil {
			r.logger.Warn("failed to kill process tree", zap.Int("pid", cmd.Process.Pid), zap.Error(err))
		}
		return nil
	}
	cmd.WaitDelay = r.GracePeriod

	if err := cmd.Start(); err != nil {
		r.logger.Error("interpreter failed to launch",
			zap.String("interpreter", r.Interpreter),
			zap.Error(err),
		)
		res := Result{
			Script:   script,
			ExitCode: LaunchFailureExitCode,
			Stderr:   err.Error(),
			Duration: time.Since(start),
			Status:   StatusLaunchFailed,
			Err:      fmt.Errorf("%w: %s: %v", ErrLaunchFailure, r.Interpreter, err),
		}
		metrics.RecordRun(string(res.Status), res.Duration.Seconds())
		return res
	}
	h.pid = cmd.Process.Pid

	metrics.ScriptsRunning.Inc()
	waitErr := cmd.Wait()
	metrics.ScriptsRunning.Dec()

	res := Result{
		Script:   script,
		PID:      h.pid,
		Duration: time.Since(start),
	}

	if h.timedOut.Load() {
		res.ExitCode = TimeoutExitCode
		res.Stderr = TimeoutMessage
		res.Status = StatusTimedOut
		metrics.ProcessesKilled.Add(float64(h.killed.Load()))
		r.logger.Warn("script timed out",
			zap.Int("pid", h.pid),
			zap.Duration("timeout", timeout),
			zap.Int32("killed", h.killed.Load()),
		)
	} else {
		// Background jobs the script left behind in its group are not allowed
		// to outlive the run.
		if n := killGroup(h.pid); n > 0 {
			r.logger.Debug("killed leftover processes", zap.Int("pid", h.pid), zap.Int("count", n))
		}
		res.ExitCode = exitStatus(waitErr)
		res.Stdout = stdoutBuf.String()
		res.Stderr = stderrBuf.String()
		res.Status = StatusCompleted
		r.logger.Debug("script finished",
			zap.Int("pid", h.pid),
			zap.Int("exit_code", res.ExitCode),
			zap.Duration("duration", res.Duration),
		)
	}

	metrics.RecordRun(string(res.Status), res.Duration.Seconds())
	return res
}

// exitStatus maps the error from Wait to a return code. Deaths by a foreign
// signal become 128+signal so they never collide with TimeoutExitCode.
func exitStatus(err error) int {
	if err == nil || errors.Is(err, exec.ErrWaitDelay) {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code
		}
		return signalExitCode(exitErr.ProcessState)
	}
	return 1
}

// descendants lists every live descendant of pid, parents before children.
// The whole tree is collected before anything is killed so that reparenting
// cannot hide grandchildren.
func descendants(pid int) []*process.Process {
	root, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil
	}

	var out []*process.Process
	queue := []*process.Process{root}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		children, err := p.Children()
		if err != nil {
			continue
		}
		out = append(out, children...)
		queue = append(queue, children...)
	}
	return out
}

// killDescendants SIGKILLs every known descendant of pid and reports how many
// signals were delivered. Processes that are already gone are ignored.
func killDescendants(pid int) int {
	killed := 0
	for _, p := range descendants(pid) {
		if err := p.Kill(); err == nil {
			killed++
		}
	}
	return killed
}
