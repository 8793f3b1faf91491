package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"macagent/pkg/executor/runner"
	"macagent/pkg/logger"
	"macagent/pkg/metrics"
	tracing "macagent/pkg/observability"
	"macagent/pkg/script"
)

// ErrInvalidTimeout is returned for a script_timeout outside (0, max].
var ErrInvalidTimeout = errors.New("invalid script timeout")

// Inputs are the execute_script inputs sent by the workflow.
type Inputs struct {
	LLMOutput     string `json:"llm_output"`
	ScriptTimeout *int   `json:"script_timeout,omitempty"` // seconds
}

// PromptRenderer renders the prompts surrounding an execution report.
type PromptRenderer interface {
	SystemPrompt(withKnowledge bool) (string, error)
	ReplyPrompt(llmOutput, execution string) (string, error)
}

// Config wires a Service.
type Config struct {
	Runner         runner.ScriptRunner
	Prompts        PromptRenderer
	DefaultTimeout time.Duration
	MaxTimeout     time.Duration
}

// Service turns LLM output into executed scripts and a reply prompt.
// It keeps no per-request state, so concurrent requests never share runs.
type Service struct {
	aggregator     *Aggregator
	prompts        PromptRenderer
	defaultTimeout time.Duration
	maxTimeout     time.Duration
}

func NewService(cfg Config) *Service {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 60 * time.Second
	}
	if cfg.MaxTimeout < cfg.DefaultTimeout {
		cfg.MaxTimeout = cfg.DefaultTimeout
	}
	return &Service{
		aggregator:     NewAggregator(cfg.Runner),
		prompts:        cfg.Prompts,
		defaultTimeout: cfg.DefaultTimeout,
		maxTimeout:     cfg.MaxTimeout,
	}
}

// ExecuteScript runs every unique applescript block in in.LLMOutput and
// returns the reply prompt. It returns "" when there is nothing to run.
// Script failures and timeouts are part of the reply; only an invalid timeout
// or an interpreter launch failure is returned as an error.
func (s *Service) ExecuteScript(ctx context.Context, in Inputs) (string, error) {
	if in.LLMOutput == "" {
		return "", nil
	}

	timeout, err := s.resolveTimeout(in.ScriptTimeout)
	if err != nil {
		return "", err
	}

	log := logger.FromContext(ctx)
	goal := script.ExtractGoal(in.LLMOutput)
	log.Debug("user goal", zap.String("goal", goal))

	blocks := script.Extract(in.LLMOutput)
	metrics.BlocksPerRequest.Observe(float64(len(blocks)))
	if len(blocks) == 0 {
		return "", nil
	}

	ctx, span := tracing.StartSpan(ctx, "execute_script",
		attribute.String("user.goal", goal),
		attribute.Int("script.blocks", len(blocks)),
	)
	defer span.End()

	report, err := s.aggregator.RunAll(ctx, blocks, timeout)
	for _, res := range report {
		log.Debug("script executed",
			zap.String("script", res.Script),
			zap.String("status", string(res.Status)),
			zap.Int("returncode", res.ExitCode),
			zap.String("stdout", res.Stdout),
			zap.String("stderr", res.Stderr),
			zap.Duration("duration", res.Duration),
		)
	}
	if err != nil {
		tracing.SetError(ctx, err)
		return "", err
	}

	counts := report.Counts()
	log.Info("scripts executed",
		zap.Int("blocks", len(report)),
		zap.Int("completed", counts[runner.StatusCompleted]),
		zap.Int("timed_out", counts[runner.StatusTimedOut]),
	)

	reply, err := s.prompts.ReplyPrompt(in.LLMOutput, report.Render())
	if err != nil {
		return "", fmt.Errorf("failed to render reply prompt: %w", err)
	}
	return reply, nil
}

// SystemPrompt returns the system prompt including learned knowledge.
func (s *Service) SystemPrompt() (string, error) {
	return s.prompts.SystemPrompt(true)
}

func (s *Service) resolveTimeout(seconds *int) (time.Duration, error) {
	if seconds == nil {
		return s.defaultTimeout, nil
	}
	limit := int(s.maxTimeout / time.Second)
	if *seconds <= 0 || *seconds > limit {
		return 0, fmt.Errorf("%w: %ds (allowed 1..%d)", ErrInvalidTimeout, *seconds, limit)
	}
	return time.Duration(*seconds) * time.Second, nil
}
