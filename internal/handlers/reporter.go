package handlers

import (
	"context"

	"userbench/internal/apperrors"
	"userbench/internal/controllers"
	"userbench/internal/models"

	"github.com/gofiber/fiber/v2"
)

func (h *Handler) requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(c.UserContext())
	}
	return context.WithTimeout(c.UserContext(), h.timeout)
}

// success writes the uniform envelope. values is omitted when nil.
func success(c *fiber.Ctx, status int, message string, outcome controllers.Outcome, values any) error {
	count := outcome.Records
	return c.Status(status).JSON(models.SuccessEnvelope{
		Message:          message,
		TotalQueryTimeMs: outcome.TotalQueryTimeMs,
		Count:            &count,
		Values:           values,
		RunID:            outcome.RunID,
	})
}

// failure maps err to its status: InvalidArgument is a client error,
// everything else is a server error.
func (h *Handler) failure(c *fiber.Ctx, message string, err error) error {
	kind := apperrors.KindOf(err)
	h.log.Function("failure").Er(message, err, "kind", kind, "path", c.Path())

	return c.Status(apperrors.HTTPStatus(kind)).JSON(models.ErrorEnvelope{
		Message: message,
		Error:   err.Error(),
		Kind:    string(kind),
	})
}
