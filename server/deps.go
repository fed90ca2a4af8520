package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meikuraledutech/promptflow"
	"github.com/meikuraledutech/promptflow/config"
	"github.com/meikuraledutech/promptflow/memory"
	"github.com/meikuraledutech/promptflow/openai"
	"github.com/meikuraledutech/promptflow/postgres"
)

func newLogger(level, format string, w io.Writer) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("log format %q: want text or json", format)
	}
}

// openStore returns the configured store and a func releasing its resources.
func openStore(ctx context.Context, cfg *config.Config) (promptflow.ExecutionStore, func(), error) {
	switch cfg.Store {
	case config.StoreMemory:
		return memory.New(), func() {}, nil
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("connect: %w", err)
		}
		return postgres.New(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// newGenerator returns the generator used by remote-mode runs.
func newGenerator(cfg *config.Config, hc *http.Client) (promptflow.Generator, error) {
	switch cfg.Generator.Kind {
	case config.GeneratorEcho, "":
		return promptflow.Echo, nil
	case config.GeneratorOpenAI:
		opts := []openai.Option{
			openai.WithAPIKey(cfg.Generator.APIKey),
			openai.WithSystemPrompt(cfg.Delegate.SystemPrompt),
			openai.WithHTTPClient(hc),
		}
		if cfg.Generator.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.Generator.BaseURL))
		}
		if cfg.Generator.Model != "" {
			opts = append(opts, openai.WithModel(cfg.Generator.Model))
		}
		return openai.New(opts...), nil
	default:
		return nil, fmt.Errorf("unknown generator %q", cfg.Generator.Kind)
	}
}
