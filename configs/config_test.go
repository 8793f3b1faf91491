package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "macagent/configs"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := config.LoadConfig()

	assert.Equal(t, "8000", cfg.Port)
	assert.Equal(t, "osascript", cfg.Interpreter)
	assert.Equal(t, []string{"-e"}, cfg.InterpreterArgs)
	assert.Equal(t, 60*time.Second, cfg.DefaultScriptTimeout)
	assert.False(t, cfg.Debug)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("MACAGENT_PORT", "9001")
	t.Setenv("MACAGENT_SCRIPT_TIMEOUT", "15")
	t.Setenv("MACAGENT_KILL_GRACE", "500ms")
	t.Setenv("MACAGENT_INTERPRETER", "sh")
	t.Setenv("MACAGENT_INTERPRETER_ARGS", "-c")

	cfg := config.LoadConfig()

	assert.Equal(t, "9001", cfg.Port)
	assert.Equal(t, 15*time.Second, cfg.DefaultScriptTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.KillGracePeriod)
	assert.Equal(t, "sh", cfg.Interpreter)
	assert.Equal(t, []string{"-c"}, cfg.InterpreterArgs)
}

func TestParseFlags_OverridesEnv(t *testing.T) {
	t.Setenv("MACAGENT_API_KEY", "from-env")
	cfg := config.LoadConfig()

	err := cfg.ParseFlags([]string{"--port", "8123", "--apikey", "from-flag", "--debug"})
	require.NoError(t, err)

	assert.Equal(t, "8123", cfg.Port)
	assert.Equal(t, "from-flag", cfg.APIKey)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestParseFlags_RequiresAPIKey(t *testing.T) {
	cfg := config.LoadConfig()
	cfg.APIKey = ""

	err := cfg.ParseFlags(nil)
	assert.ErrorIs(t, err, config.ErrMissingAPIKey)
}

func TestValidate_RejectsDefaultAboveMax(t *testing.T) {
	cfg := config.LoadConfig()
	cfg.APIKey = "k"
	cfg.DefaultScriptTimeout = time.Hour
	cfg.MaxScriptTimeout = time.Minute

	assert.Error(t, cfg.Validate())
}

func TestParseFlags_IssueToken(t *testing.T) {
	cfg := config.LoadConfig()
	err := cfg.ParseFlags([]string{"--issue-token", "monitor", "--token-points", "ping,get_llm_system_prompt"})
	require.Error(t, err)

	cfg = config.LoadConfig()
	cfg.JWTSecret = "secret"
	require.NoError(t, cfg.ParseFlags([]string{"--issue-token", "monitor", "--token-points", "ping,get_llm_system_prompt"}))
	assert.Equal(t, "monitor", cfg.IssueToken)
	assert.Equal(t, []string{"ping", "get_llm_system_prompt"}, cfg.TokenPoints)
}
