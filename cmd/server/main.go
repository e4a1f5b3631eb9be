// Command server runs the grading API.
//
// main only wires things together: it loads the configuration, connects to
// Docker, builds the execution core and hands everything to internal/server.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/sakif/gradebox/internal/auth"
	"github.com/sakif/gradebox/internal/config"
	"github.com/sakif/gradebox/internal/executor"
	"github.com/sakif/gradebox/internal/language"
	"github.com/sakif/gradebox/internal/middleware"
	"github.com/sakif/gradebox/internal/sandbox"
	"github.com/sakif/gradebox/internal/sandbox/docker"
	"github.com/sakif/gradebox/internal/server"
	"github.com/sakif/gradebox/internal/workspace"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(".env")
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	engine, err := docker.New(docker.DefaultConfig(), logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	registry := language.NewRegistry(language.Images{
		Python:  cfg.PythonImage,
		GCC:     cfg.GCCImage,
		OpenJDK: cfg.OpenJDKImage,
	})

	if cfg.PullImages {
		images := make([]string, 0, len(language.All))
		for _, p := range registry.List() {
			images = append(images, p.Image)
		}
		// A missing image only fails the requests that need it.
		if err := engine.EnsureImages(context.Background(), images...); err != nil {
			logger.Warn("image pull failed", slog.String("error", err.Error()))
		}
	}

	guardian := sandbox.NewGuardian(engine, logger)
	runner := sandbox.NewRunner(engine, guardian, sandbox.Limits{
		MemoryBytes:    cfg.MemoryLimit,
		CPUs:           cfg.CPULimit,
		RunTimeout:     cfg.ExecutionTimeout,
		CompileTimeout: cfg.CompileTimeout,
	}, logger)
	grader := executor.NewGrader(registry, workspace.NewManager(cfg.WorkspaceRoot, logger), runner, logger)

	deps := server.Deps{
		Executor: grader,
		Registry: registry,
		Engine:   engine,
		Limiter:  middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.MaxConcurrent),
		Drainer:  guardian,
	}
	if cfg.AuthSecret != "" {
		tokens, err := auth.NewTokenService(cfg.AuthSecret)
		if err != nil {
			return err
		}
		deps.Tokens = tokens
	} else {
		logger.Warn("AUTH_SECRET not set, /execute is unauthenticated")
	}

	srv := server.New(server.Config{
		Addr:         cfg.Addr(),
		WriteTimeout: 0, // a request may run many tests; the guardian bounds each one
	}, deps, logger)

	return srv.Start()
}
