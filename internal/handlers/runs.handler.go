package handlers

import (
	"errors"

	"userbench/internal/app"
	"userbench/internal/controllers"
	"userbench/internal/logger"
	"userbench/internal/repositories"

	"github.com/gofiber/fiber/v2"
)

type RunsHandler struct {
	Handler
	controller *controllers.RunsController
}

func NewRunsHandler(app app.App, router fiber.Router) *RunsHandler {
	log := logger.New("handlers").File("runs_handler")
	return &RunsHandler{
		controller: app.RunsController,
		Handler: Handler{
			log:     log,
			router:  router,
			timeout: app.Config.RequestTimeout,
		},
	}
}

func (h *RunsHandler) Register() {
	runs := h.router.Group("/runs")
	runs.Get("/", h.getRuns)
	runs.Get("/summary", h.getSummary)
	runs.Get("/compare/:operation", h.compare)
	runs.Get("/:id", h.getRun)
}

func (h *RunsHandler) getRuns(c *fiber.Ctx) error {
	runs, err := h.controller.GetRecent(c.UserContext(),
		c.Query("backend"),
		c.Query("operation"),
		c.QueryInt("limit", 20))
	if err != nil {
		return h.failure(c, "failed to get benchmark runs", err)
	}

	return c.JSON(fiber.Map{"message": "success", "runs": runs})
}

func (h *RunsHandler) getRun(c *fiber.Ctx) error {
	run, err := h.controller.GetByID(c.UserContext(), c.Params("id"))
	if errors.Is(err, repositories.ErrRunNotFound) {
		return c.Status(fiber.StatusNotFound).
			JSON(fiber.Map{"message": "benchmark run not found"})
	}
	if err != nil {
		return h.failure(c, "failed to get benchmark run", err)
	}

	return c.JSON(fiber.Map{"message": "success", "run": run})
}

func (h *RunsHandler) getSummary(c *fiber.Ctx) error {
	summaries, err := h.controller.Summaries(c.UserContext())
	if err != nil {
		return h.failure(c, "failed to summarize benchmark runs", err)
	}

	return c.JSON(fiber.Map{"message": "success", "summaries": summaries})
}

func (h *RunsHandler) compare(c *fiber.Ctx) error {
	comparison, err := h.controller.Compare(c.UserContext(), c.Params("operation"))
	if err != nil {
		return h.failure(c, "failed to compare backends", err)
	}

	return c.JSON(fiber.Map{"message": "success", "comparison": comparison})
}
