package handlers

import (
	"time"

	"userbench/internal/app"
	"userbench/internal/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/websocket/v2"
)

type Handler struct {
	log     logger.Logger
	router  fiber.Router
	timeout time.Duration
}

func Router(router fiber.Router, app *app.App) (err error) {
	setupWebSocketRoute(router, app)
	router.Get("/metrics", adaptor.HTTPHandler(app.Metrics.Handler()))

	HealthHandler(router, app)
	NewUserHandler(*app, router).Register()
	NewRunsHandler(*app, router).Register()

	return nil
}

func setupWebSocketRoute(router fiber.Router, app *app.App) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/ws", websocket.New(func(c *websocket.Conn) {
		app.Websocket.HandleWebSocket(c)
	}))
}
