package repositories

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"userbench/internal/apperrors"
	"userbench/internal/batch"
	"userbench/internal/database"
	"userbench/internal/filter"
	"userbench/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func TestMongoFilter(t *testing.T) {
	raw, err := bson.MarshalExtJSON(MongoFilter(filter.Benchmark()), false, false)
	require.NoError(t, err)
	json := string(raw)

	assert.Contains(t, json, `{"$or":[{"age":{"$gte":30,"$lte":45}},{"age":{"$gte":60}}]}`)
	assert.Contains(t, json, `"dateOfBirth":{"$lte":{"$date":"1980-01-01T00:00:00Z"}}`)
	assert.Contains(t, json, `"dateOfBirth":{"$gte":{"$date":"1990-01-01T00:00:00Z"}}`)
	assert.Contains(t, json,
		`"addresses":{"$elemMatch":{"country":{"$in":["USA","Canada","London","Romania","Hungary","Greece"]},`+
			`"purchaseDate":{"$gte":{"$date":"2018-01-01T00:00:00Z"}}}}`)
}

func TestMongoAggregatePipeline(t *testing.T) {
	pipeline := MongoAggregatePipeline()
	require.Len(t, pipeline, 3)
	assert.Equal(t, "$unwind", pipeline[0][0].Key)
	assert.Equal(t, "$group", pipeline[1][0].Key)
	assert.Equal(t, "$sort", pipeline[2][0].Key)
}

func TestUserBSONShape(t *testing.T) {
	users := generateUsers(t, 1, 1)
	raw, err := bson.Marshal(users[0])
	require.NoError(t, err)

	var doc bson.M
	require.NoError(t, bson.Unmarshal(raw, &doc))

	assert.NotContains(t, doc, "id")
	assert.NotContains(t, doc, "basemodel")
	assert.Equal(t, "user1", doc["username"])
	assert.Contains(t, doc, "dateOfBirth")

	addresses, ok := doc["addresses"].(bson.A)
	require.True(t, ok)
	first := addresses[0].(bson.M)
	assert.Contains(t, first, "purchaseDate")
	assert.NotContains(t, first, "userid")
}

func TestInsertedBeforeFailure(t *testing.T) {
	err := mongo.BulkWriteException{
		WriteErrors: []mongo.BulkWriteError{{WriteError: mongo.WriteError{Index: 7, Code: 11000}}},
	}
	assert.Equal(t, int64(7), insertedBeforeFailure(err))
	assert.Zero(t, insertedBeforeFailure(errors.New("boom")))
}

func TestClassifyMongoError(t *testing.T) {
	duplicate := mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000, Message: "E11000 duplicate key"}}}
	assert.Equal(t, apperrors.KindValidationFailed, apperrors.KindOf(classifyMongoError("insert", duplicate)))
	assert.Equal(t, apperrors.KindBackendUnavailable, apperrors.KindOf(classifyMongoError("insert", context.DeadlineExceeded)))
	assert.Equal(t, apperrors.KindBackendUnavailable, apperrors.KindOf(classifyMongoError("insert", errors.New("server selection"))))
}

// newMongoRepo connects to MONGO_TEST_URI and skips when it is not set.
func newMongoRepo(t *testing.T) UserRepository {
	t.Helper()
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)

	name := "userbench_test_" + time.Now().Format("150405")
	db := client.Database(name)
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})

	repo := NewMongoUser(database.DB{Mongo: db})
	require.NoError(t, repo.EnsureSchema(ctx))
	return repo
}

func TestMongoUserRepository_Integration(t *testing.T) {
	repo := newMongoRepo(t)
	ctx := context.Background()
	users := generateUsers(t, 1000, 1)

	inserted, err := repo.BulkInsert(ctx, users)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), inserted)

	result, err := repo.Query(ctx, filter.Benchmark(), 1000)
	require.NoError(t, err)
	assert.Equal(t, filter.Benchmark().Count(users), result.Matched)

	rows, err := repo.AggregateByCountry(ctx)
	require.NoError(t, err)
	var total int64
	for _, row := range rows {
		total += row.TotalUsers
	}
	assert.Equal(t, int64(2000), total)

	updated, err := repo.BulkUpdate(ctx, filter.Benchmark(), models.MarriedPatch())
	require.NoError(t, err)
	assert.Equal(t, int64(4), updated)

	e := batch.New(batch.Config{Backend: repo.Name()})
	scan, err := batch.Scan(ctx, e, "scan",
		func(ctx context.Context) (batch.Cursor[models.User], error) { return repo.OpenCursor(ctx, 300) }, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), scan.Records)

	deleted, err := repo.DeleteMatching(ctx, filter.Benchmark())
	require.NoError(t, err)
	assert.Equal(t, int64(5), deleted)

	after, err := repo.Query(ctx, filter.Benchmark(), 10)
	require.NoError(t, err)
	assert.Zero(t, after.Matched)

	n, err := repo.BulkInsert(ctx, generateUsers(t, 10, 995))
	assert.Equal(t, int64(0), n)
	assert.True(t, apperrors.Is(err, apperrors.KindValidationFailed))

	all, err := repo.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(995), all)
}

func TestMongoUserRepository_FilterBoundaries(t *testing.T) {
	repo := newMongoRepo(t)
	ctx := context.Background()
	spec := filter.Benchmark()

	users, matching := splitBoundary(boundaryUsers())
	inserted, err := repo.BulkInsert(ctx, users)
	require.NoError(t, err)
	require.Equal(t, int64(len(users)), inserted)

	result, err := repo.Query(ctx, spec, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(len(matching)), result.Matched)
	assert.ElementsMatch(t, matching, usernames(result.Sample))

	deleted, err := repo.DeleteMatching(ctx, spec)
	require.NoError(t, err)
	assert.Equal(t, int64(len(matching)), deleted)
}
