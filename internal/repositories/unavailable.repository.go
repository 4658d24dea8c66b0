package repositories

import (
	"context"

	"userbench/internal/apperrors"
	"userbench/internal/batch"
	"userbench/internal/filter"
	"userbench/internal/models"
)

// unavailableUserRepository stands in for a backend that could not be reached
// at startup. Every operation fails with BackendUnavailable and the cause.
type unavailableUserRepository struct {
	name  string
	cause error
}

func NewUnavailableUser(name string, cause error) UserRepository {
	return &unavailableUserRepository{name: name, cause: cause}
}

func (r *unavailableUserRepository) err() error {
	return apperrors.BackendUnavailable(r.name+" backend is not connected", r.cause)
}

func (r *unavailableUserRepository) Name() string {
	return r.name
}

func (r *unavailableUserRepository) Ping(ctx context.Context) error {
	return r.err()
}

func (r *unavailableUserRepository) EnsureSchema(ctx context.Context) error {
	return r.err()
}

func (r *unavailableUserRepository) BulkInsert(ctx context.Context, users []models.User) (int64, error) {
	return 0, r.err()
}

func (r *unavailableUserRepository) Query(ctx context.Context, spec filter.Spec, limit int) (QueryResult, error) {
	return QueryResult{}, r.err()
}

func (r *unavailableUserRepository) BulkUpdate(ctx context.Context, spec filter.Spec, patch models.UserPatch) (int64, error) {
	return 0, r.err()
}

func (r *unavailableUserRepository) DeleteMatching(ctx context.Context, spec filter.Spec) (int64, error) {
	return 0, r.err()
}

func (r *unavailableUserRepository) DeleteAll(ctx context.Context) (int64, error) {
	return 0, r.err()
}

func (r *unavailableUserRepository) AggregateByCountry(ctx context.Context) ([]models.CountryAggregate, error) {
	return nil, r.err()
}

func (r *unavailableUserRepository) OpenCursor(ctx context.Context, pageSize int) (batch.Cursor[models.User], error) {
	return nil, r.err()
}

func (r *unavailableUserRepository) Close(ctx context.Context) error {
	return nil
}
