package app

import (
	"context"
	"time"

	"userbench/config"
	"userbench/internal/batch"
	"userbench/internal/controllers"
	"userbench/internal/database"
	"userbench/internal/logger"
	"userbench/internal/metrics"
	"userbench/internal/repositories"
	"userbench/internal/services"
	"userbench/internal/websockets"
)

type App struct {
	Database  database.DB
	Websocket *websockets.Manager
	Metrics   *metrics.Metrics
	Config    config.Config

	// Services
	TransactionService *services.TransactionService

	// Repositories
	UserRepo repositories.UserRepository
	RunRepo  repositories.BenchmarkRunRepository

	// Controllers
	BenchmarkController *controllers.BenchmarkController
	RunsController      *controllers.RunsController
}

func New() (*App, error) {
	log := logger.New("app").Function("New")

	config, err := config.InitConfig()
	if err != nil {
		return &App{}, log.Err("failed to initialize config", err)
	}

	return NewWithConfig(config)
}

// NewWithConfig opens every store named by config and wires the service.
func NewWithConfig(config config.Config) (*App, error) {
	log := logger.New("app").Function("NewWithConfig")

	db, err := database.New(config)
	if err != nil {
		return &App{}, log.Err("failed to create database", err)
	}

	userRepo, err := connectBackend(&db, config)
	if err != nil {
		_ = db.Close()
		return &App{}, err
	}

	// Initialize services
	transactionService := services.NewTransactionService(db)

	// Initialize repositories
	runRepo := repositories.NewBenchmarkRun(db)

	metrics := metrics.New()
	websocket := websockets.New()

	executor := batch.New(batch.Config{
		ChunkSize: config.InsertChunkSize,
		Backend:   userRepo.Name(),
		Observer:  batch.Observers(metrics, websocket),
	})

	// Initialize controllers with repositories and services
	benchmarkController := controllers.NewBenchmarkController(controllers.BenchmarkDeps{
		Users:     userRepo,
		Runs:      runRepo,
		Executor:  executor,
		Observer:  metrics,
		WSManager: websocket,
	}, config)
	runsController := controllers.NewRunsController(runRepo)

	app := &App{
		Database:            db,
		Config:              config,
		Websocket:           websocket,
		Metrics:             metrics,
		TransactionService:  transactionService,
		UserRepo:            userRepo,
		RunRepo:             runRepo,
		BenchmarkController: benchmarkController,
		RunsController:      runsController,
	}

	if err := app.validate(); err != nil {
		_ = app.Close()
		return &App{}, log.Err("failed to validate app", err)
	}

	return app, nil
}

// connectBackend opens the benchmark store. When the store cannot be reached
// and startup errors are not fatal, every request is answered with
// BackendUnavailable instead.
func connectBackend(db *database.DB, config config.Config) (repositories.UserRepository, error) {
	log := logger.New("app").Function("connectBackend")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo, err := openUserRepository(ctx, db, config)
	if err == nil {
		return repo, nil
	}

	if config.FailOnStartupError {
		return nil, log.Err("failed to connect benchmark backend", err, "backend", config.Backend)
	}

	log.Warn("benchmark backend unavailable, requests will fail until restart",
		"backend", config.Backend,
		"error", err)
	return repositories.NewUnavailableUser(config.Backend, err), nil
}

func openUserRepository(ctx context.Context, db *database.DB, config config.Config) (repositories.UserRepository, error) {
	if err := db.ConnectBackend(ctx, config); err != nil {
		return nil, err
	}

	repo, err := repositories.NewUserRepository(*db, config)
	if err != nil {
		return nil, err
	}

	if config.MigrateOnStartup {
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, err
		}
	}

	return repo, nil
}

func (a *App) validate() error {
	log := logger.New("app").Function("validate")
	if a.Database.Results == nil {
		return log.ErrMsg("results database is nil")
	}

	if a.Config == (config.Config{}) {
		return log.ErrMsg("config is nil")
	}

	switch {
	case a.Websocket == nil:
		return log.ErrMsg("websocket manager is nil")
	case a.Metrics == nil:
		return log.ErrMsg("metrics is nil")
	case a.TransactionService == nil:
		return log.ErrMsg("transaction service is nil")
	case a.UserRepo == nil || a.RunRepo == nil:
		return log.ErrMsg("repository is nil")
	case a.BenchmarkController == nil || a.RunsController == nil:
		return log.ErrMsg("controller is nil")
	}

	return nil
}

func (a *App) Close() (err error) {
	if a.Websocket != nil {
		a.Websocket.Close()
	}

	if a.UserRepo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if closeErr := a.UserRepo.Close(ctx); closeErr != nil {
			err = closeErr
		}
	}

	if dbErr := a.Database.Close(); dbErr != nil {
		err = dbErr
	}

	return err
}
