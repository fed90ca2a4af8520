package main

import (
	"context"
	"log/slog"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/valyala/fasthttp"

	"github.com/meikuraledutech/promptflow"
	"github.com/meikuraledutech/promptflow/wsconn"
)

// newApp builds the HTTP surface. Sessions accepted on /ws live under ctx and end
// when it is cancelled.
func newApp(ctx context.Context, store promptflow.ExecutionStore, manager *promptflow.Manager, logger *slog.Logger) *fiber.App {
	app := fiber.New()

	upgrader := websocket.FastHTTPUpgrader{
		// The diagram editor is served from another origin.
		CheckOrigin: func(*fasthttp.RequestCtx) bool { return true },
	}

	// ── Runs ──────────────────────────────────────────────────────────
	app.Get("/ws", func(c fiber.Ctx) error {
		if !websocket.FastHTTPIsWebSocketUpgrade(c.RequestCtx()) {
			return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{"error": "websocket upgrade required"})
		}
		return upgrader.Upgrade(c.RequestCtx(), func(ws *websocket.Conn) {
			if err := manager.Serve(ctx, wsconn.New(ws)); err != nil {
				logger.Debug("session ended", "error", err)
			}
		})
	})

	app.Get("/runs", func(c fiber.Ctx) error {
		return c.JSON(manager.Snapshot())
	})

	app.Get("/healthz", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "active_runs": manager.Len()})
	})

	// ── Schema ────────────────────────────────────────────────────────
	app.Post("/schema", func(c fiber.Ctx) error {
		if err := store.CreateSchema(c.Context()); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"message": "schema created"})
	})

	app.Delete("/schema", func(c fiber.Ctx) error {
		if err := store.DropSchema(c.Context()); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"message": "schema dropped"})
	})

	// ── Results ───────────────────────────────────────────────────────
	app.Get("/executions/:id", func(c fiber.Ctx) error {
		exec, err := store.GetExecution(c.Context(), c.Params("id"))
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		if exec == nil {
			return c.Status(404).JSON(fiber.Map{"error": "execution not found"})
		}
		contents, err := store.ListGeneratedContent(c.Context(), exec.ID)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"execution": exec, "contents": contents})
	})

	return app
}
