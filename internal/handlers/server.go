package handlers

import (
	"errors"
	"time"

	"userbench/internal/app"
	"userbench/internal/logger"
	"userbench/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

// NewServer builds the fiber app serving every route. A panic in a handler
// is turned into a 500 response.
func NewServer(app *app.App) (*fiber.App, error) {
	server := fiber.New(fiber.Config{
		AppName:      "userbench " + app.Config.GeneralVersion,
		ErrorHandler: errorHandler,
		ReadTimeout:  30 * time.Second,
	})

	server.Use(requestid.New())
	server.Use(recover.New(recover.Config{EnableStackTrace: true}))
	server.Use(requestLogger())

	if err := Router(server, app); err != nil {
		return nil, err
	}

	return server, nil
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	}

	return c.Status(code).JSON(models.ErrorEnvelope{
		Message: "request failed",
		Error:   err.Error(),
	})
}

func requestLogger() fiber.Handler {
	log := logger.New("handlers").File("server").Function("requestLogger")
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		log.Debug("request",
			"requestId", c.GetRespHeader(fiber.HeaderXRequestID),
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"latencyMs", float64(time.Since(start).Microseconds())/1000)
		return err
	}
}
