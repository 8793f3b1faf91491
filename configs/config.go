package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

var ErrMissingAPIKey = errors.New("api key is required")

type Config struct {
	Port   string
	APIKey string
	Debug  bool

	// Interpreter is invoked as: Interpreter InterpreterArgs... <script>
	Interpreter     string
	InterpreterArgs []string

	DefaultScriptTimeout time.Duration
	MaxScriptTimeout     time.Duration
	KillGracePeriod      time.Duration
	KnowledgePath        string

	JWTSecret string
	RedisAddr string

	// IssueToken, when set, makes the binary print a JWT for that client and exit.
	IssueToken  string
	TokenPoints []string

	LogLevel    string
	LogEncoding string

	TracingEnabled  bool
	TracingEndpoint string
}

func LoadConfig() *Config {
	return &Config{
		Port:                 getEnv("MACAGENT_PORT", "8000"),
		APIKey:               getEnv("MACAGENT_API_KEY", ""),
		Debug:                getEnvAsBool("MACAGENT_DEBUG", false),
		Interpreter:          getEnv("MACAGENT_INTERPRETER", "osascript"),
		InterpreterArgs:      strings.Fields(getEnv("MACAGENT_INTERPRETER_ARGS", "-e")),
		DefaultScriptTimeout: getEnvAsDuration("MACAGENT_SCRIPT_TIMEOUT", 60*time.Second),
		MaxScriptTimeout:     getEnvAsDuration("MACAGENT_MAX_SCRIPT_TIMEOUT", 10*time.Minute),
		KillGracePeriod:      getEnvAsDuration("MACAGENT_KILL_GRACE", 2*time.Second),
		KnowledgePath:        getEnv("MACAGENT_KNOWLEDGE_PATH", "knowledge.md"),
		JWTSecret:            getEnv("MACAGENT_JWT_SECRET", ""),
		RedisAddr:            getEnv("MACAGENT_REDIS_ADDR", ""),
		LogLevel:             getEnv("MACAGENT_LOG_LEVEL", "info"),
		LogEncoding:          getEnv("MACAGENT_LOG_ENCODING", "console"),
		TracingEnabled:       getEnvAsBool("MACAGENT_TRACING_ENABLED", false),
		TracingEndpoint:      getEnv("MACAGENT_TRACING_ENDPOINT", "localhost:4318"),
	}
}

// ParseFlags overrides cfg with command-line flags. Flags win over the environment.
func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("macagent", pflag.ContinueOnError)
	port := fs.IntP("port", "p", 0, "port to run the server on")
	apiKey := fs.String("apikey", "", "API key for authorization")
	debug := fs.Bool("debug", c.Debug, "enable debug mode")
	knowledge := fs.String("knowledge", c.KnowledgePath, "path to the learned-knowledge file")
	fs.StringVar(&c.IssueToken, "issue-token", "", "print a JWT for this client name and exit")
	fs.StringSliceVar(&c.TokenPoints, "token-points", nil, "restrict an issued token to these points")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *port != 0 {
		c.Port = strconv.Itoa(*port)
	}
	if *apiKey != "" {
		c.APIKey = *apiKey
	}
	c.Debug = *debug
	c.KnowledgePath = *knowledge
	if c.Debug {
		c.LogLevel = "debug"
	}
	return c.Validate()
}

func (c *Config) Validate() error {
	if c.IssueToken != "" {
		if c.JWTSecret == "" {
			return fmt.Errorf("--issue-token requires MACAGENT_JWT_SECRET")
		}
		return nil
	}
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.Interpreter == "" {
		return fmt.Errorf("interpreter must not be empty")
	}
	if c.DefaultScriptTimeout <= 0 || c.DefaultScriptTimeout > c.MaxScriptTimeout {
		return fmt.Errorf("default script timeout %s must be in (0, %s]", c.DefaultScriptTimeout, c.MaxScriptTimeout)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}

// Bare integers are read as seconds.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if seconds, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return fallback
}
