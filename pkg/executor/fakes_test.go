package executor_test

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"macagent/pkg/executor/runner"
)

// fakeRunner answers each script with "out:<script>" after an optional delay.
type fakeRunner struct {
	delays   map[string]time.Duration
	failures map[string]bool

	calls   atomic.Int32
	running atomic.Int32
	peak    atomic.Int32

	mu    sync.Mutex
	order []string // completion order
}

func (f *fakeRunner) Run(ctx context.Context, script string, timeout time.Duration) runner.Result {
	f.calls.Add(1)
	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	if f.failures[script] {
		return runner.Result{
			Script:   script,
			ExitCode: runner.LaunchFailureExitCode,
			Status:   runner.StatusLaunchFailed,
			Err:      runner.ErrLaunchFailure,
		}
	}

	time.Sleep(f.delays[script])

	f.mu.Lock()
	f.order = append(f.order, script)
	f.mu.Unlock()

	return runner.Result{
		Script: script,
		Stdout: "out:" + script + "\n",
		Status: runner.StatusCompleted,
	}
}

func (f *fakeRunner) completionOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...)
}

// recordingPrompts captures what ExecuteScript renders.
type recordingPrompts struct {
	mu        sync.Mutex
	execution string
}

func (p *recordingPrompts) SystemPrompt(withKnowledge bool) (string, error) {
	if withKnowledge {
		return "system+knowledge", nil
	}
	return "system", nil
}

func (p *recordingPrompts) ReplyPrompt(llmOutput, execution string) (string, error) {
	p.mu.Lock()
	p.execution = execution
	p.mu.Unlock()
	return "reply\n" + execution, nil
}

func fenced(bodies ...string) string {
	var b strings.Builder
	for _, body := range bodies {
		b.WriteString("```applescript\n" + body + "\n```\n")
	}
	return b.String()
}
