package repositories

import (
	"context"
	"errors"

	"userbench/internal/apperrors"
	"userbench/internal/batch"
	"userbench/internal/database"
	"userbench/internal/filter"
	"userbench/internal/logger"
	"userbench/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const mongoUsersCollection = "users"

type mongoUserRepository struct {
	collection *mongo.Collection
	log        logger.Logger
}

func NewMongoUser(db database.DB) UserRepository {
	return &mongoUserRepository{
		collection: db.Mongo.Collection(mongoUsersCollection),
		log:        logger.New("mongoUserRepository"),
	}
}

func (r *mongoUserRepository) Name() string {
	return "mongo"
}

func (r *mongoUserRepository) Ping(ctx context.Context) error {
	if err := r.collection.Database().Client().Ping(ctx, readpref.Primary()); err != nil {
		return apperrors.BackendUnavailable("failed to ping mongo", err)
	}
	return nil
}

func (r *mongoUserRepository) EnsureSchema(ctx context.Context) error {
	log := r.log.Function("EnsureSchema")

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetName("idx_users_email")},
		{Keys: bson.D{{Key: "age", Value: 1}}, Options: options.Index().SetName("idx_users_age")},
		{Keys: bson.D{{Key: "dateOfBirth", Value: 1}}, Options: options.Index().SetName("idx_users_date_of_birth")},
		{
			Keys:    bson.D{{Key: "addresses.country", Value: 1}, {Key: "addresses.purchaseDate", Value: 1}},
			Options: options.Index().SetName("idx_addresses_country_purchase"),
		},
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return log.Err("failed to create indexes", classifyMongoError("create indexes", err))
	}
	return nil
}

// BulkInsert uses an ordered insert, so on failure every user before the
// first rejected document is stored.
func (r *mongoUserRepository) BulkInsert(ctx context.Context, users []models.User) (int64, error) {
	log := r.log.Function("BulkInsert")

	if len(users) == 0 {
		return 0, nil
	}

	docs := make([]any, len(users))
	for i := range users {
		docs[i] = users[i]
	}

	res, err := r.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
	if err != nil {
		inserted := insertedBeforeFailure(err)
		return inserted, log.Err("failed to insert users", classifyMongoError("insert users", err),
			"users", len(users),
			"inserted", inserted)
	}

	return int64(len(res.InsertedIDs)), nil
}

func insertedBeforeFailure(err error) int64 {
	var bulkErr mongo.BulkWriteException
	if errors.As(err, &bulkErr) && len(bulkErr.WriteErrors) > 0 {
		return int64(bulkErr.WriteErrors[0].Index)
	}
	return 0
}

func (r *mongoUserRepository) Query(ctx context.Context, spec filter.Spec, limit int) (QueryResult, error) {
	log := r.log.Function("Query")

	if err := checkSpec(spec); err != nil {
		return QueryResult{}, err
	}
	if err := checkLimit(limit); err != nil {
		return QueryResult{}, err
	}

	query := MongoFilter(spec)

	var result QueryResult
	matched, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		return QueryResult{}, log.Err("failed to count users", classifyMongoError("count users", err))
	}
	result.Matched = matched
	result.Sample = []models.User{}

	if limit == 0 || matched == 0 {
		return result, nil
	}

	opts := options.Find().SetLimit(int64(limit)).SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return QueryResult{}, log.Err("failed to query users", classifyMongoError("query users", err))
	}
	defer cursor.Close(ctx)

	if err := cursor.All(ctx, &result.Sample); err != nil {
		return QueryResult{}, log.Err("failed to decode users", classifyMongoError("decode users", err))
	}

	return result, nil
}

func (r *mongoUserRepository) BulkUpdate(ctx context.Context, spec filter.Spec, patch models.UserPatch) (int64, error) {
	log := r.log.Function("BulkUpdate")

	if err := checkSpec(spec); err != nil {
		return 0, err
	}
	if err := checkPatch(patch); err != nil {
		return 0, err
	}

	query := bson.D{{Key: "$and", Value: bson.A{
		MongoFilter(spec),
		bson.D{{Key: "isMarried", Value: bson.D{{Key: "$ne", Value: *patch.IsMarried}}}},
	}}}
	update := bson.D{{Key: "$set", Value: bson.D{{Key: "isMarried", Value: *patch.IsMarried}}}}

	res, err := r.collection.UpdateMany(ctx, query, update)
	if err != nil {
		return 0, log.Err("failed to update users", classifyMongoError("update users", err))
	}

	return res.ModifiedCount, nil
}

func (r *mongoUserRepository) DeleteMatching(ctx context.Context, spec filter.Spec) (int64, error) {
	log := r.log.Function("DeleteMatching")

	if err := checkSpec(spec); err != nil {
		return 0, err
	}

	res, err := r.collection.DeleteMany(ctx, MongoFilter(spec))
	if err != nil {
		return 0, log.Err("failed to delete users", classifyMongoError("delete users", err))
	}

	return res.DeletedCount, nil
}

func (r *mongoUserRepository) DeleteAll(ctx context.Context) (int64, error) {
	log := r.log.Function("DeleteAll")

	res, err := r.collection.DeleteMany(ctx, bson.D{})
	if err != nil {
		return 0, log.Err("failed to delete all users", classifyMongoError("delete all users", err))
	}

	log.Info("deleted all users", "backend", r.Name(), "deleted", res.DeletedCount)
	return res.DeletedCount, nil
}

func (r *mongoUserRepository) AggregateByCountry(ctx context.Context) ([]models.CountryAggregate, error) {
	log := r.log.Function("AggregateByCountry")

	cursor, err := r.collection.Aggregate(ctx, MongoAggregatePipeline(), options.Aggregate().SetAllowDiskUse(true))
	if err != nil {
		return nil, log.Err("failed to aggregate users", classifyMongoError("aggregate users", err))
	}
	defer cursor.Close(ctx)

	rows := []models.CountryAggregate{}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, log.Err("failed to decode aggregation", classifyMongoError("decode aggregation", err))
	}

	return rows, nil
}

func (r *mongoUserRepository) OpenCursor(ctx context.Context, pageSize int) (batch.Cursor[models.User], error) {
	log := r.log.Function("OpenCursor")

	if pageSize <= 0 {
		return nil, apperrors.InvalidArgument("page size must be positive, got %d", pageSize)
	}

	opts := options.Find().
		SetBatchSize(int32(min(pageSize, 1<<20))).
		SetSort(bson.D{{Key: "_id", Value: 1}})

	cursor, err := r.collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, log.Err("failed to open cursor", classifyMongoError("open cursor", err))
	}

	return &mongoUserCursor{cursor: cursor, pageSize: pageSize, log: r.log}, nil
}

func (r *mongoUserRepository) Close(ctx context.Context) error {
	return nil
}

type mongoUserCursor struct {
	cursor   *mongo.Cursor
	pageSize int
	log      logger.Logger
}

func (c *mongoUserCursor) Next(ctx context.Context) ([]models.User, error) {
	page := make([]models.User, 0, min(c.pageSize, 1024))
	for len(page) < c.pageSize && c.cursor.Next(ctx) {
		var user models.User
		if err := c.cursor.Decode(&user); err != nil {
			return nil, c.log.Function("Next").Err("failed to decode user", classifyMongoError("decode user", err))
		}
		page = append(page, user)
	}

	if err := c.cursor.Err(); err != nil {
		return nil, c.log.Function("Next").Err("failed to read users page", classifyMongoError("scan users", err))
	}

	return page, nil
}

func (c *mongoUserCursor) Close(ctx context.Context) error {
	return c.cursor.Close(ctx)
}

// MongoFilter renders spec as a find filter over the users collection.
// $elemMatch keeps the country and purchase date conditions on one address.
func MongoFilter(spec filter.Spec) bson.D {
	ages := bson.A{}
	for _, r := range spec.AgeRanges {
		bounds := bson.D{{Key: "$gte", Value: r.Min}}
		if !r.Open {
			bounds = append(bounds, bson.E{Key: "$lte", Value: r.Max})
		}
		ages = append(ages, bson.D{{Key: "age", Value: bounds}})
	}

	births := bson.A{
		bson.D{{Key: "dateOfBirth", Value: bson.D{{Key: "$lte", Value: spec.BornOnOrBefore}}}},
		bson.D{{Key: "dateOfBirth", Value: bson.D{{Key: "$gte", Value: spec.BornOnOrAfter}}}},
	}

	address := bson.D{{Key: "$elemMatch", Value: bson.D{
		{Key: "country", Value: bson.D{{Key: "$in", Value: spec.Countries}}},
		{Key: "purchaseDate", Value: bson.D{{Key: "$gte", Value: spec.PurchasedOnOrAfter}}},
	}}}

	return bson.D{{Key: "$and", Value: bson.A{
		bson.D{{Key: "$or", Value: ages}},
		bson.D{{Key: "$or", Value: births}},
		bson.D{{Key: "addresses", Value: address}},
	}}}
}

// MongoAggregatePipeline unwinds addresses so a user counts once per address.
func MongoAggregatePipeline() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$unwind", Value: "$addresses"}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$addresses.country"},
			{Key: "totalUsers", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "averageAge", Value: bson.D{{Key: "$avg", Value: "$age"}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "totalUsers", Value: -1}, {Key: "_id", Value: 1}}}},
	}
}

func classifyMongoError(op string, err error) error {
	if err == nil {
		return nil
	}

	if mongo.IsDuplicateKeyError(err) {
		return apperrors.ValidationFailed(op+" rejected by backend", err)
	}

	var writeErr mongo.WriteException
	if errors.As(err, &writeErr) && len(writeErr.WriteErrors) > 0 && writeErr.WriteConcernError == nil {
		return apperrors.ValidationFailed(op+" rejected by backend", err)
	}

	var bulkErr mongo.BulkWriteException
	if errors.As(err, &bulkErr) && len(bulkErr.WriteErrors) > 0 && bulkErr.WriteConcernError == nil {
		return apperrors.ValidationFailed(op+" rejected by backend", err)
	}

	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return apperrors.BackendUnavailable(op+" failed to reach backend", err)
	}

	return apperrors.BackendUnavailable(op+" failed", err)
}
