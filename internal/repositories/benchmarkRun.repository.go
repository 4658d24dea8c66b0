package repositories

import (
	"context"
	"errors"
	"time"

	"userbench/internal/apperrors"
	"userbench/internal/database"
	"userbench/internal/logger"
	"userbench/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	BENCHMARK_RUN_CACHE_EXPIRY = 24 * time.Hour
	BENCHMARK_RUN_CACHE_PREFIX = "run"
	MAX_RECENT_RUNS            = 100
)

var ErrRunNotFound = errors.New("benchmark run not found")

type BenchmarkRunRepository interface {
	Create(ctx context.Context, run *models.BenchmarkRun) error
	GetByID(ctx context.Context, id string) (*models.BenchmarkRun, error)
	GetRecent(ctx context.Context, backend, operation string, limit int) ([]*models.BenchmarkRun, error)
	Summaries(ctx context.Context) ([]models.RunSummary, error)
	DeleteAll(ctx context.Context) (int64, error)
}

type benchmarkRunRepository struct {
	db  database.DB
	log logger.Logger
}

func NewBenchmarkRun(db database.DB) BenchmarkRunRepository {
	return &benchmarkRunRepository{
		db:  db,
		log: logger.New("benchmarkRunRepository"),
	}
}

func (r *benchmarkRunRepository) getDB(ctx context.Context) *gorm.DB {
	return r.db.ResultsWithContext(ctx)
}

func (r *benchmarkRunRepository) Create(ctx context.Context, run *models.BenchmarkRun) error {
	log := r.log.Function("Create")

	if err := r.getDB(ctx).Create(run).Error; err != nil {
		return log.Err("failed to create benchmark run", err,
			"backend", run.Backend,
			"operation", run.Operation)
	}

	if err := r.addRunToCache(ctx, run); err != nil {
		log.Warn("failed to add benchmark run to cache", "runID", run.ID, "error", err)
	}

	return nil
}

func (r *benchmarkRunRepository) GetByID(ctx context.Context, id string) (*models.BenchmarkRun, error) {
	log := r.log.Function("GetByID")

	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.InvalidArgument("invalid run id %q", id)
	}

	var run models.BenchmarkRun
	found, err := r.cache(ctx, id).Get(&run)
	if err != nil {
		log.Warn("failed to read benchmark run from cache", "runID", id, "error", err)
	}
	if found {
		return &run, nil
	}

	if err := r.getDB(ctx).First(&run, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, log.Err("failed to get benchmark run by id", err, "runID", id)
	}

	if err := r.addRunToCache(ctx, &run); err != nil {
		log.Warn("failed to add benchmark run to cache", "runID", id, "error", err)
	}

	return &run, nil
}

// GetRecent returns the newest runs first. Empty backend or operation means
// any.
func (r *benchmarkRunRepository) GetRecent(ctx context.Context, backend, operation string, limit int) ([]*models.BenchmarkRun, error) {
	log := r.log.Function("GetRecent")

	if limit <= 0 || limit > MAX_RECENT_RUNS {
		limit = MAX_RECENT_RUNS
	}

	query := r.getDB(ctx).Order("created_at DESC").Limit(limit)
	if backend != "" {
		query = query.Where("backend = ?", backend)
	}
	if operation != "" {
		query = query.Where("operation = ?", operation)
	}

	runs := []*models.BenchmarkRun{}
	if err := query.Find(&runs).Error; err != nil {
		return nil, log.Err("failed to get recent benchmark runs", err,
			"backend", backend,
			"operation", operation)
	}

	return runs, nil
}

// Summaries aggregates completed runs per backend and operation.
func (r *benchmarkRunRepository) Summaries(ctx context.Context) ([]models.RunSummary, error) {
	log := r.log.Function("Summaries")

	rows := []models.RunSummary{}
	err := r.getDB(ctx).
		Model(&models.BenchmarkRun{}).
		Select(`backend, operation, COUNT(*) AS runs,
			AVG(total_query_time_ms) AS avg_query_time_ms,
			MIN(total_query_time_ms) AS min_query_time_ms,
			MAX(total_query_time_ms) AS max_query_time_ms,
			AVG(records) AS avg_records`).
		Where("status = ?", models.RunStatusCompleted).
		Group("backend, operation").
		Order("backend, operation").
		Scan(&rows).Error
	if err != nil {
		return nil, log.Err("failed to summarize benchmark runs", err)
	}

	return rows, nil
}

func (r *benchmarkRunRepository) DeleteAll(ctx context.Context) (int64, error) {
	log := r.log.Function("DeleteAll")

	res := r.getDB(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.BenchmarkRun{})
	if res.Error != nil {
		return 0, log.Err("failed to delete benchmark runs", res.Error)
	}

	if err := r.db.FlushAllCaches(); err != nil {
		log.Warn("failed to flush run cache", "error", err)
	}

	return res.RowsAffected, nil
}

func (r *benchmarkRunRepository) cache(ctx context.Context, id string) *database.CacheBuilder {
	return database.NewCacheBuilder(r.db.Cache.Runs, id).
		WithPrefix(BENCHMARK_RUN_CACHE_PREFIX).
		WithContext(ctx)
}

func (r *benchmarkRunRepository) addRunToCache(ctx context.Context, run *models.BenchmarkRun) error {
	if err := r.cache(ctx, run.ID).
		WithStruct(run).
		WithTTL(BENCHMARK_RUN_CACHE_EXPIRY).
		Set(); err != nil {
		return r.log.Function("addRunToCache").
			Err("failed to add benchmark run to cache", err, "runID", run.ID)
	}
	return nil
}
