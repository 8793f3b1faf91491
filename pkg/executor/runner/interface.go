package runner

import (
	"context"
	"errors"
	"time"
)

// Status tells how a script run ended.
type Status string

const (
	StatusCompleted    Status = "completed"
	StatusTimedOut     Status = "timed_out"
	StatusLaunchFailed Status = "launch_failed"
)

const (
	// TimeoutExitCode marks a run that did not complete before its deadline.
	TimeoutExitCode = -1
	// LaunchFailureExitCode marks an interpreter that could not be started.
	LaunchFailureExitCode = 127
	// TimeoutMessage replaces stderr of a timed out run.
	TimeoutMessage = "Script execution timed out"
)

// ErrLaunchFailure is wrapped by Result.Err when the interpreter could not be started.
var ErrLaunchFailure = errors.New("interpreter failed to launch")

// Result captures the outcome of one script run.
type Result struct {
	Script   string
	PID      int // 0 when the process never started
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	Status   Status
	Err      error // set only for launch failures
}

// ScriptRunner executes a single script body under a wall-clock limit.
type ScriptRunner interface {
	// Run blocks until the script exits or timeout plus a short kill grace
	// period has passed. Timeouts and non-zero exits are reported in the
	// Result, never as a panic or a separate error.
	Run(ctx context.Context, script string, timeout time.Duration) Result
}
