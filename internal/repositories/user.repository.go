package repositories

import (
	"context"

	"userbench/config"
	"userbench/internal/apperrors"
	"userbench/internal/batch"
	"userbench/internal/database"
	"userbench/internal/filter"
	"userbench/internal/models"
)

type QueryResult struct {
	Matched int64
	Sample  []models.User
}

// UserRepository is the capability set every benchmark backend provides.
// Each call covers exactly one chunk or one statement; chunking and timing
// belong to the batch executor.
type UserRepository interface {
	Name() string
	Ping(ctx context.Context) error
	EnsureSchema(ctx context.Context) error

	// BulkInsert returns how many users of the chunk were stored, which can be
	// non-zero alongside an error when the backend applies a prefix.
	BulkInsert(ctx context.Context, users []models.User) (int64, error)
	Query(ctx context.Context, spec filter.Spec, limit int) (QueryResult, error)
	BulkUpdate(ctx context.Context, spec filter.Spec, patch models.UserPatch) (int64, error)
	DeleteMatching(ctx context.Context, spec filter.Spec) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)
	AggregateByCountry(ctx context.Context) ([]models.CountryAggregate, error)
	OpenCursor(ctx context.Context, pageSize int) (batch.Cursor[models.User], error)

	Close(ctx context.Context) error
}

// NewUserRepository returns the adapter for the backend db was connected to.
func NewUserRepository(db database.DB, config config.Config) (UserRepository, error) {
	switch config.Backend {
	case "mysql", "sqlite":
		if db.SQL == nil {
			return nil, apperrors.BackendUnavailable("sql backend is not connected", nil)
		}
		return NewSQLUser(db), nil
	case "mongo":
		if db.Mongo == nil {
			return nil, apperrors.BackendUnavailable("mongo backend is not connected", nil)
		}
		return NewMongoUser(db), nil
	case "elasticsearch":
		if db.Elastic == nil {
			return nil, apperrors.BackendUnavailable("elasticsearch backend is not connected", nil)
		}
		return NewElasticUser(db, config), nil
	default:
		return nil, apperrors.InvalidArgument("unsupported backend %q", config.Backend)
	}
}

func checkSpec(spec filter.Spec) error {
	return spec.Validate()
}

func checkPatch(patch models.UserPatch) error {
	if patch.IsEmpty() {
		return apperrors.InvalidArgument("update patch is empty")
	}
	return nil
}

func checkLimit(limit int) error {
	if limit < 0 {
		return apperrors.InvalidArgument("limit must be >= 0, got %d", limit)
	}
	return nil
}
