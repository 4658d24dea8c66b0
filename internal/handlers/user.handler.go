package handlers

import (
	"fmt"

	"userbench/internal/app"
	"userbench/internal/controllers"
	"userbench/internal/logger"
	"userbench/internal/models"

	"github.com/gofiber/fiber/v2"
)

type UserHandler struct {
	Handler
	controller           *controllers.BenchmarkController
	defaultNumberOfUsers int
}

func NewUserHandler(app app.App, router fiber.Router) *UserHandler {
	log := logger.New("handlers").File("user_handler")

	defaultNumberOfUsers := app.Config.DefaultNumberOfUsers
	if defaultNumberOfUsers <= 0 {
		defaultNumberOfUsers = 1000
	}

	return &UserHandler{
		controller:           app.BenchmarkController,
		defaultNumberOfUsers: defaultNumberOfUsers,
		Handler: Handler{
			log:     log,
			router:  router,
			timeout: app.Config.RequestTimeout,
		},
	}
}

func (h *UserHandler) Register() {
	users := h.router.Group("/user")
	users.Post("/", h.insertUsers)
	users.Post("/random", h.insertRandomUsers)
	users.Get("/", h.queryUsers)
	users.Get("/all", h.scanUsers)
	users.Get("/aggregate", h.aggregateUsers)
	users.Patch("/", h.updateUsers)
	users.Delete("/", h.deleteUsers)
	users.Delete("/all", h.deleteAllUsers)
}

// parseBody decodes an optional JSON body. An empty body leaves request at
// its zero value.
func (h *UserHandler) parseBody(c *fiber.Ctx, request any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	return c.BodyParser(request)
}

func (h *UserHandler) sizes(numberOfUsers, startIndex *int) (int, int) {
	count, start := h.defaultNumberOfUsers, 1
	if numberOfUsers != nil {
		count = *numberOfUsers
	}
	if startIndex != nil {
		start = *startIndex
	}
	return count, start
}

func (h *UserHandler) insertUsers(c *fiber.Ctx) error {
	log := h.log.Function("insertUsers")

	var request models.InsertUsersRequest
	if err := h.parseBody(c, &request); err != nil {
		log.Er("failed to parse insert request", err)
		return c.Status(fiber.StatusBadRequest).
			JSON(models.ErrorEnvelope{Message: "failed to parse insert request", Error: err.Error()})
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	count, start := h.sizes(request.NumberOfUsers, request.StartIndex)
	outcome, err := h.controller.InsertUsers(ctx, count, start)
	if err != nil {
		return h.failure(c, "failed to insert users", err)
	}

	return success(c, fiber.StatusCreated, fmt.Sprintf("Inserted %d users", outcome.Records), outcome, nil)
}

func (h *UserHandler) insertRandomUsers(c *fiber.Ctx) error {
	log := h.log.Function("insertRandomUsers")

	var request models.RandomUsersRequest
	if err := h.parseBody(c, &request); err != nil {
		log.Er("failed to parse random insert request", err)
		return c.Status(fiber.StatusBadRequest).
			JSON(models.ErrorEnvelope{Message: "failed to parse random insert request", Error: err.Error()})
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	count, start := h.sizes(request.NumberOfUsers, request.StartIndex)
	outcome, err := h.controller.InsertRandomUsers(ctx, count, start, request.Seed)
	if err != nil {
		return h.failure(c, "failed to insert random users", err)
	}

	return success(c, fiber.StatusCreated, fmt.Sprintf("Inserted %d random users", outcome.Records), outcome, nil)
}

func (h *UserHandler) queryUsers(c *fiber.Ctx) error {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	outcome, err := h.controller.QueryUsers(ctx)
	if err != nil {
		return h.failure(c, "failed to query users", err)
	}

	return success(c, fiber.StatusOK, fmt.Sprintf("Found %d users", outcome.Records), outcome, outcome.Values)
}

func (h *UserHandler) scanUsers(c *fiber.Ctx) error {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	outcome, err := h.controller.ScanUsers(ctx)
	if err != nil {
		return h.failure(c, "failed to scan users", err)
	}

	return success(c, fiber.StatusOK, fmt.Sprintf("Scanned %d users", outcome.Records), outcome, outcome.Values)
}

func (h *UserHandler) updateUsers(c *fiber.Ctx) error {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	outcome, err := h.controller.UpdateUsers(ctx)
	if err != nil {
		return h.failure(c, "failed to update users", err)
	}

	return success(c, fiber.StatusOK, fmt.Sprintf("Updated %d users", outcome.Records), outcome, nil)
}

func (h *UserHandler) deleteUsers(c *fiber.Ctx) error {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	outcome, err := h.controller.DeleteUsers(ctx)
	if err != nil {
		return h.failure(c, "failed to delete users", err)
	}

	return success(c, fiber.StatusOK, fmt.Sprintf("Deleted %d users", outcome.Records), outcome, nil)
}

func (h *UserHandler) deleteAllUsers(c *fiber.Ctx) error {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	outcome, err := h.controller.DeleteAllUsers(ctx)
	if err != nil {
		return h.failure(c, "failed to delete all users", err)
	}

	return success(c, fiber.StatusOK, fmt.Sprintf("Deleted all %d users", outcome.Records), outcome, nil)
}

func (h *UserHandler) aggregateUsers(c *fiber.Ctx) error {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	rows, outcome, err := h.controller.AggregateByCountry(ctx)
	if err != nil {
		return h.failure(c, "failed to aggregate users", err)
	}

	return c.JSON(models.AggregateEnvelope{
		TotalQueryTimeMs: outcome.TotalQueryTimeMs,
		Data:             rows,
		RunID:            outcome.RunID,
	})
}
