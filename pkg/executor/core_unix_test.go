//go:build unix

package executor_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"macagent/pkg/executor"
	"macagent/pkg/executor/runner"
)

func shellService(prompts executor.PromptRenderer) *executor.Service {
	return executor.NewService(executor.Config{
		Runner:         runner.NewProcessRunner("sh", []string{"-c"}, 500*time.Millisecond, zap.NewNop()),
		Prompts:        prompts,
		DefaultTimeout: 5 * time.Second,
		MaxTimeout:     time.Minute,
	})
}

func TestRunAll_RealProcessesKeepInputOrder(t *testing.T) {
	agg := executor.NewAggregator(runner.NewProcessRunner("sh", []string{"-c"}, 300*time.Millisecond, zap.NewNop()))

	report, err := agg.RunAll(context.Background(), blocksOf("sleep 30", "sleep 0.1; echo one"), 500*time.Millisecond)
	require.NoError(t, err)

	require.Len(t, report, 2)
	assert.Equal(t, runner.StatusTimedOut, report[0].Status)
	assert.Equal(t, runner.TimeoutExitCode, report[0].ExitCode)
	assert.Equal(t, runner.StatusCompleted, report[1].Status)
	assert.Equal(t, "one\n", report[1].Stdout)
}

func TestExecuteScript_ConcurrentRequestsDoNotSerialize(t *testing.T) {
	svc := shellService(&recordingPrompts{})
	payload := fenced("sleep 2")

	const requests = 10
	replies := make([]string, requests)
	errs := make([]error, requests)

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			replies[i], errs[i] = svc.ExecuteScript(context.Background(), executor.Inputs{
				LLMOutput:     payload,
				ScriptTimeout: intPtr(1),
			})
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 3*time.Second)
	for i := 0; i < requests; i++ {
		require.NoError(t, errs[i])
		assert.True(t, strings.Contains(replies[i], "<returncode>-1</returncode>"), replies[i])
		assert.True(t, strings.Contains(replies[i], "<stderr>Script execution timed out</stderr>"))
	}
}

func TestExecuteScript_SuccessfulScript(t *testing.T) {
	prompts := &recordingPrompts{}
	svc := shellService(prompts)

	_, err := svc.ExecuteScript(context.Background(), executor.Inputs{LLMOutput: fenced(`echo "ok"`)})
	require.NoError(t, err)

	assert.Equal(t, "<script>echo \"ok\"</script>\n<returncode>0</returncode>\n<stdout>ok\n</stdout>\n<stderr></stderr>", prompts.execution)
}
