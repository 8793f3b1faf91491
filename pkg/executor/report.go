package executor

import (
	"fmt"
	"strings"

	"macagent/pkg/executor/runner"
)

// Report holds one result per unique script block, in block order.
type Report []runner.Result

// Render serializes the report in the tagged form the reply prompt expects.
func (r Report) Render() string {
	parts := make([]string, len(r))
	for i, res := range r {
		parts[i] = fmt.Sprintf(
			"<script>%s</script>\n<returncode>%d</returncode>\n<stdout>%s</stdout>\n<stderr>%s</stderr>",
			res.Script, res.ExitCode, res.Stdout, res.Stderr,
		)
	}
	return strings.Join(parts, "\n")
}

// Counts tallies results by status.
func (r Report) Counts() map[runner.Status]int {
	counts := make(map[runner.Status]int, 3)
	for _, res := range r {
		counts[res.Status]++
	}
	return counts
}
