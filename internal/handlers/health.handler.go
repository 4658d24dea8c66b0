package handlers

import (
	"context"
	"time"

	"userbench/internal/app"
	"userbench/internal/logger"
	"userbench/internal/models"

	"github.com/gofiber/fiber/v2"
)

func HealthHandler(router fiber.Router, app *app.App) {
	log := logger.New("handlers").File("health_handler").Function("health")
	controller := app.BenchmarkController

	router.Get("/health", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
		defer cancel()

		if err := controller.Health(ctx); err != nil {
			log.Er("health check failed", err, "backend", controller.Backend())
			var body models.HealthErrorEnvelope
			body.Error.Message = err.Error()
			return c.Status(fiber.StatusInternalServerError).JSON(body)
		}

		return c.JSON(fiber.Map{
			"message": "Connected to " + controller.Backend(),
			"version": app.Config.GeneralVersion,
		})
	})
}
