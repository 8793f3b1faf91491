package executor

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"macagent/pkg/executor/runner"
	tracing "macagent/pkg/observability"
	"macagent/pkg/script"
)

// Aggregator runs every block of a request concurrently and joins the results.
type Aggregator struct {
	runner runner.ScriptRunner
}

func NewAggregator(r runner.ScriptRunner) *Aggregator {
	return &Aggregator{runner: r}
}

// RunAll starts one run per block and returns once every run has resolved.
// The report is in block order regardless of completion order. A block that
// fails or times out never affects its siblings. If any interpreter failed to
// launch, the full report is returned together with an error wrapping
// runner.ErrLaunchFailure.
func (a *Aggregator) RunAll(ctx context.Context, blocks []script.Block, timeout time.Duration) (Report, error) {
	report := make(Report, len(blocks))

	var wg sync.WaitGroup
	wg.Add(len(blocks))
	for i, b := range blocks {
		go func() {
			defer wg.Done()
			report[i] = a.runOne(ctx, b, timeout)
		}()
	}
	wg.Wait()

	var errs []error
	for _, res := range report {
		if res.Status != runner.StatusLaunchFailed {
			continue
		}
		if res.Err != nil {
			errs = append(errs, res.Err)
		} else {
			errs = append(errs, runner.ErrLaunchFailure)
		}
	}
	return report, errors.Join(errs...)
}

func (a *Aggregator) runOne(ctx context.Context, b script.Block, timeout time.Duration) runner.Result {
	ctx, span := tracing.StartSpan(ctx, "script.run",
		attribute.Int("script.index", b.Index),
		attribute.Int("script.bytes", len(b.Text)),
		attribute.Float64("script.timeout_seconds", timeout.Seconds()),
	)
	defer span.End()

	res := a.runner.Run(ctx, b.Text, timeout)

	span.SetAttributes(
		attribute.String("script.status", string(res.Status)),
		attribute.Int("script.exit_code", res.ExitCode),
		attribute.Int("process.pid", res.PID),
	)
	if res.Err != nil {
		tracing.SetError(ctx, res.Err)
	}
	return res
}
