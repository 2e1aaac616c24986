// Package main is a thin example program exercising the relaygrid library
// against a TOML configuration file: build a Manager, dispatch one prompt,
// print the response and cumulative token usage.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/relaygrid/relaygrid"
	"github.com/relaygrid/relaygrid/pkg/types"
)

func main() {
	if err := run(); err != nil {
		slog.Error("relaygrid-example failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "relaygrid.toml", "path to configuration file")
	task := flag.String("task", "", "task name to route the prompt through")
	prompt := flag.String("prompt", "Say hello in one sentence.", "prompt text")
	timeout := flag.Duration("timeout", 60*time.Second, "overall request timeout")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	mgr, err := relaygrid.NewManagerFromFile(*configPath, relaygrid.WithLoggerOption(logger))
	if err != nil {
		return fmt.Errorf("build manager: %w", err)
	}
	defer mgr.Close()

	logger.Info("manager built", "provider_count", mgr.ProviderCount())

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	req := types.NewGenerationRequest(*prompt)
	if *task != "" {
		req = req.WithTask(*task)
	}

	resp, err := mgr.Generate(ctx, req)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	fmt.Println(resp.Content)
	logger.Info("done",
		"model", resp.Model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"total_usage", mgr.TotalUsage().TotalTokens,
	)
	return nil
}
