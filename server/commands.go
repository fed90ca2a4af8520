package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/spf13/cobra"

	"github.com/meikuraledutech/promptflow"
	"github.com/meikuraledutech/promptflow/config"
)

// shutdownTimeout bounds how long open sessions get to finish on SIGTERM.
const shutdownTimeout = 10 * time.Second

var (
	configPath string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:          "promptflow",
	Short:        "Diagram execution server",
	Long:         `Executes prompt diagrams streamed over websocket connections and records their results.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept websocket runs",
	Long: `Start the HTTP server. Runs are accepted on /ws.

Examples:
  promptflow serve
  promptflow serve --config promptflow.yaml
  PROMPTFLOW_STORE=memory promptflow serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Manage the result tables",
}

var schemaCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create the result tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, store promptflow.ExecutionStore) error {
			if err := store.CreateSchema(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema created")
			return nil
		})
	},
}

var schemaDropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Drop the result tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, store promptflow.ExecutionStore) error {
			if err := store.DropSchema(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema dropped")
			return nil
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment")

	rootCmd.AddCommand(serveCmd, schemaCmd)
	schemaCmd.AddCommand(schemaCreateCmd, schemaDropCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	generator, err := newGenerator(cfg, &http.Client{Timeout: cfg.Generator.Timeout})
	if err != nil {
		return err
	}

	engine := promptflow.NewEngine(store, generator, promptflow.Options{
		DelegateURL:     cfg.Delegate.URL,
		SystemPrompt:    cfg.Delegate.SystemPrompt,
		DelegateTimeout: cfg.Delegate.Timeout,
	})
	manager := promptflow.NewManager(engine, logger)
	app := newApp(ctx, store, manager, logger)

	errc := make(chan error, 1)
	go func() {
		errc <- app.Listen(cfg.Listen, fiber.ListenConfig{DisableStartupMessage: true})
	}()
	logger.Info("listening", "addr", cfg.Listen, "store", cfg.Store, "generator", cfg.Generator.Kind)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", "active_sessions", manager.Len())
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// withStore loads the configuration, opens the configured store and runs fn against it.
func withStore(ctx context.Context, fn func(context.Context, promptflow.ExecutionStore) error) error {
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return err
	}
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(ctx, store)
}
