package repositories

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"userbench/internal/apperrors"
	"userbench/internal/batch"
	"userbench/internal/database"
	"userbench/internal/filter"
	"userbench/internal/logger"
	"userbench/internal/models"
	"userbench/internal/services"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// MySQL server error codes treated as bad input rather than an outage.
var mysqlValidationCodes = map[uint16]bool{
	1048: true, // column cannot be null
	1062: true, // duplicate entry
	1264: true, // out of range
	1406: true, // data too long
	1452: true, // foreign key constraint fails
}

type sqlUserRepository struct {
	db   database.DB
	name string
	log  logger.Logger
}

func NewSQLUser(db database.DB) UserRepository {
	name := "sqlite"
	if db.Dialect == database.DialectMySQL {
		name = "mysql"
	}

	return &sqlUserRepository{
		db:   db,
		name: name,
		log:  logger.New("sqlUserRepository"),
	}
}

func (r *sqlUserRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := services.GetTransaction(ctx); ok {
		return tx
	}
	return r.db.SQLWithContext(ctx)
}

func (r *sqlUserRepository) Name() string {
	return r.name
}

func (r *sqlUserRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.SQL.DB()
	if err != nil {
		return apperrors.BackendUnavailable("failed to get database handle", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return apperrors.BackendUnavailable("failed to ping "+r.name, err)
	}
	return nil
}

func (r *sqlUserRepository) EnsureSchema(ctx context.Context) error {
	log := r.log.Function("EnsureSchema")

	if err := database.Migrate(r.db.SQL, r.db.Dialect, database.UserMigrations(r.db.Dialect)); err != nil {
		return log.Err("failed to migrate users schema", classifySQLError("migrate users schema", err))
	}
	return nil
}

// BulkInsert stores the chunk in one transaction, so a failure applies
// nothing from it.
func (r *sqlUserRepository) BulkInsert(ctx context.Context, users []models.User) (int64, error) {
	log := r.log.Function("BulkInsert")

	if len(users) == 0 {
		return 0, nil
	}

	err := r.getDB(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&users).Error
	})
	if err != nil {
		return 0, log.Err("failed to insert users", classifySQLError("insert users", err), "users", len(users))
	}

	return int64(len(users)), nil
}

func (r *sqlUserRepository) matching(ctx context.Context, spec filter.Spec) *gorm.DB {
	where, args := SQLWhere(spec)
	return r.getDB(ctx).Model(&models.User{}).Where(where, args...)
}

func (r *sqlUserRepository) Query(ctx context.Context, spec filter.Spec, limit int) (QueryResult, error) {
	log := r.log.Function("Query")

	if err := checkSpec(spec); err != nil {
		return QueryResult{}, err
	}
	if err := checkLimit(limit); err != nil {
		return QueryResult{}, err
	}

	var result QueryResult
	if err := r.matching(ctx, spec).Count(&result.Matched).Error; err != nil {
		return QueryResult{}, log.Err("failed to count users", classifySQLError("count users", err))
	}

	if limit == 0 || result.Matched == 0 {
		result.Sample = []models.User{}
		return result, nil
	}

	if err := r.matching(ctx, spec).
		Preload("Addresses", func(db *gorm.DB) *gorm.DB { return db.Order("addresses.id") }).
		Order("users.id").
		Limit(limit).
		Find(&result.Sample).Error; err != nil {
		return QueryResult{}, log.Err("failed to query users", classifySQLError("query users", err))
	}

	return result, nil
}

func (r *sqlUserRepository) BulkUpdate(ctx context.Context, spec filter.Spec, patch models.UserPatch) (int64, error) {
	log := r.log.Function("BulkUpdate")

	if err := checkSpec(spec); err != nil {
		return 0, err
	}
	if err := checkPatch(patch); err != nil {
		return 0, err
	}

	// Rows already holding the value are excluded so the count is what
	// actually changed on every dialect.
	res := r.matching(ctx, spec).
		Where("users.is_married <> ?", *patch.IsMarried).
		Update("is_married", *patch.IsMarried)
	if res.Error != nil {
		return 0, log.Err("failed to update users", classifySQLError("update users", res.Error))
	}

	return res.RowsAffected, nil
}

func (r *sqlUserRepository) DeleteMatching(ctx context.Context, spec filter.Spec) (int64, error) {
	log := r.log.Function("DeleteMatching")

	if err := checkSpec(spec); err != nil {
		return 0, err
	}

	where, args := SQLWhere(spec)
	res := r.getDB(ctx).Where(where, args...).Delete(&models.User{})
	if res.Error != nil {
		return 0, log.Err("failed to delete users", classifySQLError("delete users", res.Error))
	}

	return res.RowsAffected, nil
}

func (r *sqlUserRepository) DeleteAll(ctx context.Context) (int64, error) {
	log := r.log.Function("DeleteAll")

	res := r.getDB(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.User{})
	if res.Error != nil {
		return 0, log.Err("failed to delete all users", classifySQLError("delete all users", res.Error))
	}

	log.Info("deleted all users", "backend", r.name, "deleted", res.RowsAffected)
	return res.RowsAffected, nil
}

func (r *sqlUserRepository) AggregateByCountry(ctx context.Context) ([]models.CountryAggregate, error) {
	log := r.log.Function("AggregateByCountry")

	rows := []models.CountryAggregate{}
	err := r.getDB(ctx).
		Table("addresses").
		Select("addresses.country AS country, COUNT(*) AS total_users, AVG(users.age) AS average_age").
		Joins("JOIN users ON users.id = addresses.user_id").
		Group("addresses.country").
		Order("total_users DESC, country ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, log.Err("failed to aggregate users", classifySQLError("aggregate users", err))
	}

	return rows, nil
}

func (r *sqlUserRepository) OpenCursor(ctx context.Context, pageSize int) (batch.Cursor[models.User], error) {
	if pageSize <= 0 {
		return nil, apperrors.InvalidArgument("page size must be positive, got %d", pageSize)
	}
	return &sqlUserCursor{repo: r, pageSize: pageSize}, nil
}

func (r *sqlUserRepository) Close(ctx context.Context) error {
	return nil
}

// sqlUserCursor pages by primary key, so every page is an index range scan
// regardless of how deep the scan is.
type sqlUserCursor struct {
	repo     *sqlUserRepository
	pageSize int
	lastID   uint
	done     bool
}

func (c *sqlUserCursor) Next(ctx context.Context) ([]models.User, error) {
	if c.done {
		return nil, nil
	}

	var page []models.User
	err := c.repo.getDB(ctx).
		Preload("Addresses", func(db *gorm.DB) *gorm.DB { return db.Order("addresses.id") }).
		Where("users.id > ?", c.lastID).
		Order("users.id").
		Limit(c.pageSize).
		Find(&page).Error
	if err != nil {
		return nil, c.repo.log.Function("Next").
			Err("failed to read users page", classifySQLError("scan users", err), "after", c.lastID)
	}

	if len(page) == 0 {
		c.done = true
		return nil, nil
	}

	c.lastID = page[len(page)-1].ID
	return page, nil
}

func (c *sqlUserCursor) Close(ctx context.Context) error {
	c.done = true
	return nil
}

// SQLWhere renders spec as a WHERE clause over users with an EXISTS
// subquery on addresses. Placeholders are gorm style.
func SQLWhere(spec filter.Spec) (string, []any) {
	var (
		ageParts []string
		args     []any
	)
	for _, r := range spec.AgeRanges {
		if r.Open {
			ageParts = append(ageParts, "users.age >= ?")
			args = append(args, r.Min)
			continue
		}
		ageParts = append(ageParts, "users.age BETWEEN ? AND ?")
		args = append(args, r.Min, r.Max)
	}

	where := "(" + strings.Join(ageParts, " OR ") + ")" +
		" AND (users.date_of_birth <= ? OR users.date_of_birth >= ?)" +
		" AND EXISTS (SELECT 1 FROM addresses WHERE addresses.user_id = users.id" +
		" AND addresses.country IN ? AND addresses.purchase_date >= ?)"
	args = append(args, spec.BornOnOrBefore, spec.BornOnOrAfter, spec.Countries, spec.PurchasedOnOrAfter)

	return where, args
}

func classifySQLError(op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) ||
		errors.Is(err, gorm.ErrForeignKeyViolated) ||
		errors.Is(err, gorm.ErrCheckConstraintViolated) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrInvalidField) {
		return apperrors.ValidationFailed(op+" rejected by backend", err)
	}

	var mysqlErr *mysqldriver.MySQLError
	if errors.As(err, &mysqlErr) && mysqlValidationCodes[mysqlErr.Number] {
		return apperrors.ValidationFailed(op+" rejected by backend", err)
	}

	// sqlite reports constraint failures as plain messages when the dialector
	// cannot translate them.
	if strings.Contains(err.Error(), "constraint failed") {
		return apperrors.ValidationFailed(op+" rejected by backend", err)
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.As(err, &netErr) {
		return apperrors.BackendUnavailable(op+" failed to reach backend", err)
	}

	return apperrors.BackendUnavailable(op+" failed", err)
}
