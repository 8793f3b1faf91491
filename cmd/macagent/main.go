package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	config "macagent/configs"
	"macagent/pkg/api"
	"macagent/pkg/api/middleware"
	"macagent/pkg/auth"
	"macagent/pkg/executor"
	"macagent/pkg/executor/runner"
	"macagent/pkg/logger"
	tracing "macagent/pkg/observability"
	"macagent/pkg/prompt"
)

const serviceName = "macagent"

func main() {
	cfg := config.LoadConfig()
	if err := cfg.ParseFlags(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "macagent: %v\n", err)
		os.Exit(2)
	}

	if cfg.IssueToken != "" {
		os.Exit(issueToken(cfg))
	}

	logCfg := logger.DefaultConfig(serviceName)
	logCfg.Level = cfg.LogLevel
	logCfg.Encoding = cfg.LogEncoding
	log, err := logger.Init(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "macagent: failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	traceCfg := tracing.DefaultConfig(serviceName)
	traceCfg.Enabled = cfg.TracingEnabled
	traceCfg.Endpoint = cfg.TracingEndpoint
	shutdownTracing, err := tracing.Init(ctx, traceCfg)
	if err != nil {
		log.Fatal("failed to init tracing", zap.Error(err))
	}

	keys := auth.ChainKeyStore{auth.NewStaticKeyStore(cfg.APIKey)}
	if cfg.RedisAddr != "" {
		client, err := auth.ConnectRedis(ctx, auth.DefaultRedisConfig(cfg.RedisAddr))
		if err != nil {
			log.Fatal("failed to init key store", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		defer client.Close()
		keys = append(keys, auth.NewRedisKeyStore(client))
		log.Info("redis key store connected", zap.String("addr", cfg.RedisAddr))
	}

	var jwtService *auth.JWTService
	if cfg.JWTSecret != "" {
		jwtService, err = auth.NewJWTService(auth.DefaultJWTConfig(cfg.JWTSecret))
		if err != nil {
			log.Fatal("failed to init jwt", zap.Error(err))
		}
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	prompts := prompt.NewBuilder(cfg.KnowledgePath, prompt.WithOSVersion(prompt.DetectOSVersion(ctx)))
	service := executor.NewService(executor.Config{
		Runner:         runner.NewProcessRunner(cfg.Interpreter, cfg.InterpreterArgs, cfg.KillGracePeriod, log),
		Prompts:        prompts,
		DefaultTimeout: cfg.DefaultScriptTimeout,
		MaxTimeout:     cfg.MaxScriptTimeout,
	})

	server := api.NewServer(api.Config{
		Port:    cfg.Port,
		Service: service,
		Auth: middleware.AuthConfig{
			KeyStore:   keys,
			JWTService: jwtService,
			SkipPaths:  []string{"/health", "/metrics"},
		},
		Logger:       log,
		WriteTimeout: cfg.MaxScriptTimeout + cfg.KillGracePeriod + 30*time.Second,
	})

	go func() {
		if err := server.Start(); err != nil {
			log.Error("server error", zap.Error(err))
			sigChan <- syscall.SIGTERM
		}
	}()

	fmt.Printf("API endpoint: http://localhost:%s\n", cfg.Port)
	log.Info("macagent started",
		zap.String("port", cfg.Port),
		zap.String("interpreter", cfg.Interpreter),
		zap.Duration("default_timeout", cfg.DefaultScriptTimeout),
		zap.Bool("debug", cfg.Debug),
	)

	sig := <-sigChan
	log.Info("received signal, shutting down", zap.String("signal", sig.String()))

	// In-flight scripts finish or hit their own deadline before we exit.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.MaxScriptTimeout+cfg.KillGracePeriod)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown error", zap.Error(err))
	}

	cancel()
	log.Info("shutdown complete")
}

func issueToken(cfg *config.Config) int {
	svc, err := auth.NewJWTService(auth.DefaultJWTConfig(cfg.JWTSecret))
	if err != nil {
		fmt.Fprintf(os.Stderr, "macagent: %v\n", err)
		return 1
	}
	token, err := svc.GenerateToken(cfg.IssueToken, cfg.TokenPoints...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "macagent: failed to sign token: %v\n", err)
		return 1
	}
	fmt.Println(token)
	return 0
}
