package controllers

import (
	"context"
	"fmt"
	"sort"

	"userbench/internal/logger"
	"userbench/internal/models"
	"userbench/internal/repositories"
)

type RunsController struct {
	runs repositories.BenchmarkRunRepository
	log  logger.Logger
}

func NewRunsController(runs repositories.BenchmarkRunRepository) *RunsController {
	return &RunsController{
		runs: runs,
		log:  logger.New("runsController"),
	}
}

func (c *RunsController) GetRecent(ctx context.Context, backend, operation string, limit int) ([]*models.BenchmarkRun, error) {
	return c.runs.GetRecent(ctx, backend, operation, limit)
}

func (c *RunsController) GetByID(ctx context.Context, id string) (*models.BenchmarkRun, error) {
	return c.runs.GetByID(ctx, id)
}

func (c *RunsController) Summaries(ctx context.Context) ([]models.RunSummary, error) {
	return c.runs.Summaries(ctx)
}

// ComparisonResult ranks backends by their average time for one operation.
type ComparisonResult struct {
	Operation   string          `json:"operation"`
	Results     []BackendResult `json:"results"`
	Winner      string          `json:"winner"`
	Improvement string          `json:"improvement"`
}

type BackendResult struct {
	Backend        string  `json:"backend"`
	Runs           int64   `json:"runs"`
	AvgQueryTimeMs float64 `json:"avgQueryTimeMs"`
	MinQueryTimeMs float64 `json:"minQueryTimeMs"`
	MaxQueryTimeMs float64 `json:"maxQueryTimeMs"`
	RecordsPerSec  int64   `json:"recordsPerSecond"`
}

// Compare ranks every backend with completed runs of operation, fastest
// first, and states how much faster the winner is than the runner-up.
func (c *RunsController) Compare(ctx context.Context, operation string) (*ComparisonResult, error) {
	log := c.log.Function("Compare")

	summaries, err := c.runs.Summaries(ctx)
	if err != nil {
		return nil, log.Err("failed to load run summaries", err, "operation", operation)
	}

	result := &ComparisonResult{Operation: operation, Results: []BackendResult{}}
	for _, s := range summaries {
		if s.Operation != operation {
			continue
		}
		br := BackendResult{
			Backend:        s.Backend,
			Runs:           s.Runs,
			AvgQueryTimeMs: s.AvgQueryTimeMs,
			MinQueryTimeMs: s.MinQueryTimeMs,
			MaxQueryTimeMs: s.MaxQueryTimeMs,
		}
		if s.AvgQueryTimeMs > 0 {
			br.RecordsPerSec = int64(s.AvgRecords / (s.AvgQueryTimeMs / 1000))
		}
		result.Results = append(result.Results, br)
	}

	sort.SliceStable(result.Results, func(i, j int) bool {
		return result.Results[i].AvgQueryTimeMs < result.Results[j].AvgQueryTimeMs
	})

	switch len(result.Results) {
	case 0:
		result.Winner = "None"
		result.Improvement = "no completed runs"
	case 1:
		result.Winner = result.Results[0].Backend
		result.Improvement = "only one backend measured"
	default:
		fastest, runnerUp := result.Results[0], result.Results[1]
		result.Winner = fastest.Backend
		if runnerUp.AvgQueryTimeMs > 0 {
			improvement := (runnerUp.AvgQueryTimeMs - fastest.AvgQueryTimeMs) / runnerUp.AvgQueryTimeMs * 100
			result.Improvement = fmt.Sprintf("%.1f%% faster than %s", improvement, runnerUp.Backend)
		} else {
			result.Improvement = "tied with " + runnerUp.Backend
		}
	}

	log.Info("backend comparison completed",
		"operation", operation,
		"backends", len(result.Results),
		"winner", result.Winner,
		"improvement", result.Improvement)

	return result, nil
}
