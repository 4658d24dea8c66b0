package repositories

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"userbench/config"
	"userbench/internal/apperrors"
	"userbench/internal/batch"
	"userbench/internal/database"
	"userbench/internal/filter"
	"userbench/internal/logger"
	"userbench/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const (
	elasticScrollKeepAlive = time.Minute
	elasticMaxCountries    = 1000
)

// elasticMapping keeps addresses nested so country and purchase date are
// matched on the same address. Each address also carries its owner's age so
// the per-country average can be taken over addresses inside the nested
// bucket, the same way the SQL join and the Mongo $unwind average it.
const elasticMapping = `{
  "mappings": {
    "properties": {
      "username":    {"type": "keyword"},
      "firstName":   {"type": "keyword"},
      "lastName":    {"type": "keyword"},
      "email":       {"type": "keyword"},
      "age":         {"type": "integer"},
      "dateOfBirth": {"type": "date"},
      "isMarried":   {"type": "boolean"},
      "addresses": {
        "type": "nested",
        "properties": {
          "street":       {"type": "text"},
          "city":         {"type": "keyword"},
          "country":      {"type": "keyword"},
          "purchaseDate": {"type": "date"},
          "userAge":      {"type": "integer"}
        }
      }
    }
  }
}`

type elasticUserRepository struct {
	client   *elasticsearch.Client
	index    string
	bulkSize int
	log      logger.Logger
}

func NewElasticUser(db database.DB, config config.Config) UserRepository {
	index := config.ElasticsearchIndex
	if index == "" {
		index = "users"
	}

	bulkSize := config.ElasticBulkBatchSize
	if bulkSize <= 0 {
		bulkSize = 5000
	}

	return &elasticUserRepository{
		client:   db.Elastic,
		index:    index,
		bulkSize: bulkSize,
		log:      logger.New("elasticUserRepository"),
	}
}

func (r *elasticUserRepository) Name() string {
	return "elasticsearch"
}

func (r *elasticUserRepository) Ping(ctx context.Context) error {
	res, err := r.client.Ping(r.client.Ping.WithContext(ctx))
	if err != nil {
		return apperrors.BackendUnavailable("failed to ping elasticsearch", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return apperrors.BackendUnavailable("elasticsearch ping returned "+res.Status(), nil)
	}
	return nil
}

func (r *elasticUserRepository) EnsureSchema(ctx context.Context) error {
	log := r.log.Function("EnsureSchema")

	res, err := r.client.Indices.Exists([]string{r.index}, r.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return log.Err("failed to check index", apperrors.BackendUnavailable("check index", err), "index", r.index)
	}
	res.Body.Close()

	if res.StatusCode == http.StatusOK {
		return nil
	}

	res, err = r.client.Indices.Create(r.index,
		r.client.Indices.Create.WithContext(ctx),
		r.client.Indices.Create.WithBody(strings.NewReader(elasticMapping)))
	if err != nil {
		return log.Err("failed to create index", apperrors.BackendUnavailable("create index", err), "index", r.index)
	}

	var created map[string]any
	if err := decodeElastic(res, "create index", &created); err != nil {
		if strings.Contains(err.Error(), "resource_already_exists_exception") {
			return nil
		}
		return log.Err("failed to create index", err, "index", r.index)
	}

	log.Info("created index", "index", r.index)
	return nil
}

// BulkInsert sends the chunk as bulk create requests of at most bulkSize
// documents. Items are applied independently, so the count returned with an
// error is every item the cluster accepted.
func (r *elasticUserRepository) BulkInsert(ctx context.Context, users []models.User) (int64, error) {
	log := r.log.Function("BulkInsert")

	var inserted int64
	for _, part := range batch.Split(users, r.bulkSize) {
		body, err := elasticBulkBody(r.index, part)
		if err != nil {
			return inserted, log.Err("failed to encode bulk body", apperrors.ValidationFailed("encode users", err))
		}

		res, err := r.client.Bulk(bytes.NewReader(body),
			r.client.Bulk.WithContext(ctx),
			r.client.Bulk.WithIndex(r.index))
		if err != nil {
			return inserted, log.Err("failed to send bulk request", apperrors.BackendUnavailable("bulk insert", err))
		}

		var bulk elasticBulkResponse
		if err := decodeElastic(res, "bulk insert", &bulk); err != nil {
			return inserted, log.Err("bulk request failed", err)
		}

		applied, failure := bulk.summarize()
		inserted += applied
		if failure != nil {
			return inserted, log.Err("bulk request rejected items", failure, "inserted", inserted)
		}
	}

	if len(users) > 0 {
		if err := r.refresh(ctx); err != nil {
			return inserted, log.Err("failed to refresh index", err)
		}
	}

	return inserted, nil
}

func (r *elasticUserRepository) refresh(ctx context.Context) error {
	res, err := r.client.Indices.Refresh(
		r.client.Indices.Refresh.WithContext(ctx),
		r.client.Indices.Refresh.WithIndex(r.index))
	if err != nil {
		return apperrors.BackendUnavailable("refresh index", err)
	}
	return decodeElastic(res, "refresh index", nil)
}

func (r *elasticUserRepository) Query(ctx context.Context, spec filter.Spec, limit int) (QueryResult, error) {
	log := r.log.Function("Query")

	if err := checkSpec(spec); err != nil {
		return QueryResult{}, err
	}
	if err := checkLimit(limit); err != nil {
		return QueryResult{}, err
	}

	body, err := json.Marshal(map[string]any{
		"query":            ElasticQuery(spec),
		"size":             limit,
		"track_total_hits": true,
		"sort":             []any{map[string]any{"username": "asc"}},
	})
	if err != nil {
		return QueryResult{}, apperrors.QueryTranslation("failed to encode query: %v", err)
	}

	res, err := r.client.Search(
		r.client.Search.WithContext(ctx),
		r.client.Search.WithIndex(r.index),
		r.client.Search.WithBody(bytes.NewReader(body)))
	if err != nil {
		return QueryResult{}, log.Err("failed to search users", apperrors.BackendUnavailable("search users", err))
	}

	var search elasticSearchResponse
	if err := decodeElastic(res, "search users", &search); err != nil {
		return QueryResult{}, log.Err("search failed", err)
	}

	return QueryResult{Matched: search.Hits.Total.Value, Sample: search.users()}, nil
}

func (r *elasticUserRepository) BulkUpdate(ctx context.Context, spec filter.Spec, patch models.UserPatch) (int64, error) {
	log := r.log.Function("BulkUpdate")

	if err := checkSpec(spec); err != nil {
		return 0, err
	}
	if err := checkPatch(patch); err != nil {
		return 0, err
	}

	body, err := json.Marshal(map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"filter":   []any{ElasticQuery(spec)},
				"must_not": []any{map[string]any{"term": map[string]any{"isMarried": *patch.IsMarried}}},
			},
		},
		"script": map[string]any{
			"lang":   "painless",
			"source": "ctx._source.isMarried = params.isMarried",
			"params": map[string]any{"isMarried": *patch.IsMarried},
		},
	})
	if err != nil {
		return 0, apperrors.QueryTranslation("failed to encode update: %v", err)
	}

	res, err := r.client.UpdateByQuery([]string{r.index},
		r.client.UpdateByQuery.WithContext(ctx),
		r.client.UpdateByQuery.WithBody(bytes.NewReader(body)),
		r.client.UpdateByQuery.WithConflicts("proceed"),
		r.client.UpdateByQuery.WithRefresh(true))
	if err != nil {
		return 0, log.Err("failed to update users", apperrors.BackendUnavailable("update users", err))
	}

	var byQuery elasticByQueryResponse
	if err := decodeElastic(res, "update users", &byQuery); err != nil {
		return 0, log.Err("update failed", err)
	}
	if err := byQuery.failure("update users"); err != nil {
		return byQuery.Updated, log.Err("update partially failed", err, "updated", byQuery.Updated)
	}

	return byQuery.Updated, nil
}

func (r *elasticUserRepository) DeleteMatching(ctx context.Context, spec filter.Spec) (int64, error) {
	if err := checkSpec(spec); err != nil {
		return 0, err
	}
	return r.deleteByQuery(ctx, "delete users", ElasticQuery(spec))
}

func (r *elasticUserRepository) DeleteAll(ctx context.Context) (int64, error) {
	deleted, err := r.deleteByQuery(ctx, "delete all users", map[string]any{"match_all": map[string]any{}})
	if err == nil {
		r.log.Function("DeleteAll").Info("deleted all users", "backend", r.Name(), "deleted", deleted)
	}
	return deleted, err
}

func (r *elasticUserRepository) deleteByQuery(ctx context.Context, op string, query map[string]any) (int64, error) {
	log := r.log.Function("deleteByQuery")

	body, err := json.Marshal(map[string]any{"query": query})
	if err != nil {
		return 0, apperrors.QueryTranslation("failed to encode delete: %v", err)
	}

	res, err := r.client.DeleteByQuery([]string{r.index}, bytes.NewReader(body),
		r.client.DeleteByQuery.WithContext(ctx),
		r.client.DeleteByQuery.WithConflicts("proceed"),
		r.client.DeleteByQuery.WithRefresh(true))
	if err != nil {
		return 0, log.Err("failed to delete users", apperrors.BackendUnavailable(op, err))
	}

	var byQuery elasticByQueryResponse
	if err := decodeElastic(res, op, &byQuery); err != nil {
		return 0, log.Err("delete failed", err)
	}
	if err := byQuery.failure(op); err != nil {
		return byQuery.Deleted, log.Err("delete partially failed", err, "deleted", byQuery.Deleted)
	}

	return byQuery.Deleted, nil
}

// AggregateByCountry counts addresses per country with a nested terms
// aggregation and averages the userAge copied onto each address, so a user
// with two addresses in a country is weighted twice.
func (r *elasticUserRepository) AggregateByCountry(ctx context.Context) ([]models.CountryAggregate, error) {
	log := r.log.Function("AggregateByCountry")

	body, err := json.Marshal(ElasticAggregation())
	if err != nil {
		return nil, apperrors.QueryTranslation("failed to encode aggregation: %v", err)
	}

	res, err := r.client.Search(
		r.client.Search.WithContext(ctx),
		r.client.Search.WithIndex(r.index),
		r.client.Search.WithBody(bytes.NewReader(body)))
	if err != nil {
		return nil, log.Err("failed to aggregate users", apperrors.BackendUnavailable("aggregate users", err))
	}

	var agg elasticAggregationResponse
	if err := decodeElastic(res, "aggregate users", &agg); err != nil {
		return nil, log.Err("aggregation failed", err)
	}

	return agg.rows(), nil
}

func (r *elasticUserRepository) OpenCursor(ctx context.Context, pageSize int) (batch.Cursor[models.User], error) {
	log := r.log.Function("OpenCursor")

	if pageSize <= 0 {
		return nil, apperrors.InvalidArgument("page size must be positive, got %d", pageSize)
	}

	body, err := json.Marshal(map[string]any{
		"query": map[string]any{"match_all": map[string]any{}},
		"size":  pageSize,
		"sort":  []any{"_doc"},
	})
	if err != nil {
		return nil, apperrors.QueryTranslation("failed to encode scroll: %v", err)
	}

	res, err := r.client.Search(
		r.client.Search.WithContext(ctx),
		r.client.Search.WithIndex(r.index),
		r.client.Search.WithBody(bytes.NewReader(body)),
		r.client.Search.WithScroll(elasticScrollKeepAlive))
	if err != nil {
		return nil, log.Err("failed to open scroll", apperrors.BackendUnavailable("open scroll", err))
	}

	var search elasticSearchResponse
	if err := decodeElastic(res, "open scroll", &search); err != nil {
		return nil, log.Err("open scroll failed", err)
	}

	return &elasticScrollCursor{
		repo:     r,
		scrollID: search.ScrollID,
		pending:  search.users(),
		started:  true,
	}, nil
}

func (r *elasticUserRepository) Close(ctx context.Context) error {
	return nil
}

// elasticScrollCursor serves the page returned when the scroll was opened,
// then keeps the scroll alive page by page until an empty page.
type elasticScrollCursor struct {
	repo     *elasticUserRepository
	scrollID string
	pending  []models.User
	started  bool
	done     bool
}

func (c *elasticScrollCursor) Next(ctx context.Context) ([]models.User, error) {
	if c.started {
		c.started = false
		if len(c.pending) == 0 {
			c.done = true
		}
		page := c.pending
		c.pending = nil
		return page, nil
	}

	if c.done || c.scrollID == "" {
		return nil, nil
	}

	res, err := c.repo.client.Scroll(
		c.repo.client.Scroll.WithContext(ctx),
		c.repo.client.Scroll.WithScrollID(c.scrollID),
		c.repo.client.Scroll.WithScroll(elasticScrollKeepAlive))
	if err != nil {
		return nil, c.repo.log.Function("Next").Err("failed to read scroll", apperrors.BackendUnavailable("scroll users", err))
	}

	var search elasticSearchResponse
	if err := decodeElastic(res, "scroll users", &search); err != nil {
		return nil, c.repo.log.Function("Next").Err("scroll failed", err)
	}

	if search.ScrollID != "" {
		c.scrollID = search.ScrollID
	}

	page := search.users()
	if len(page) == 0 {
		c.done = true
	}
	return page, nil
}

func (c *elasticScrollCursor) Close(ctx context.Context) error {
	c.done = true
	if c.scrollID == "" {
		return nil
	}

	res, err := c.repo.client.ClearScroll(
		c.repo.client.ClearScroll.WithContext(ctx),
		c.repo.client.ClearScroll.WithScrollID(c.scrollID))
	c.scrollID = ""
	if err != nil {
		return apperrors.BackendUnavailable("clear scroll", err)
	}
	defer res.Body.Close()

	// The scroll may already have expired.
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return apperrors.BackendUnavailable("clear scroll returned "+res.Status(), nil)
	}
	return nil
}

func elasticDate(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ElasticQuery renders spec as a bool filter query. The address condition is
// a nested query so both bounds apply to one address.
func ElasticQuery(spec filter.Spec) map[string]any {
	ages := make([]any, 0, len(spec.AgeRanges))
	for _, r := range spec.AgeRanges {
		bounds := map[string]any{"gte": r.Min}
		if !r.Open {
			bounds["lte"] = r.Max
		}
		ages = append(ages, map[string]any{"range": map[string]any{"age": bounds}})
	}

	return map[string]any{
		"bool": map[string]any{
			"filter": []any{
				map[string]any{"bool": map[string]any{
					"should":               ages,
					"minimum_should_match": 1,
				}},
				map[string]any{"bool": map[string]any{
					"should": []any{
						map[string]any{"range": map[string]any{"dateOfBirth": map[string]any{"lte": elasticDate(spec.BornOnOrBefore)}}},
						map[string]any{"range": map[string]any{"dateOfBirth": map[string]any{"gte": elasticDate(spec.BornOnOrAfter)}}},
					},
					"minimum_should_match": 1,
				}},
				map[string]any{"nested": map[string]any{
					"path": "addresses",
					"query": map[string]any{"bool": map[string]any{
						"filter": []any{
							map[string]any{"terms": map[string]any{"addresses.country": spec.Countries}},
							map[string]any{"range": map[string]any{
								"addresses.purchaseDate": map[string]any{"gte": elasticDate(spec.PurchasedOnOrAfter)},
							}},
						},
					}},
				}},
			},
		},
	}
}

func ElasticAggregation() map[string]any {
	return map[string]any{
		"size": 0,
		"aggs": map[string]any{
			"addresses": map[string]any{
				"nested": map[string]any{"path": "addresses"},
				"aggs": map[string]any{
					"countries": map[string]any{
						"terms": map[string]any{
							"field": "addresses.country",
							"size":  elasticMaxCountries,
							"order": []any{
								map[string]any{"_count": "desc"},
								map[string]any{"_key": "asc"},
							},
						},
						"aggs": map[string]any{
							"averageAge": map[string]any{"avg": map[string]any{"field": "addresses.userAge"}},
						},
					},
				},
			},
		},
	}
}

// elasticAddress is an address as indexed, with the owner's age alongside.
type elasticAddress struct {
	models.Address
	UserAge int `json:"userAge"`
}

// elasticUserDocument is the indexed form of a user. Its addresses shadow the
// embedded ones; _source still decodes straight into models.User.
type elasticUserDocument struct {
	models.User
	Addresses []elasticAddress `json:"addresses"`
}

func newElasticUserDocument(u models.User) elasticUserDocument {
	addresses := make([]elasticAddress, len(u.Addresses))
	for i, a := range u.Addresses {
		addresses[i] = elasticAddress{Address: a, UserAge: u.Age}
	}
	return elasticUserDocument{User: u, Addresses: addresses}
}

func elasticBulkBody(index string, users []models.User) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, u := range users {
		action := map[string]any{"create": map[string]any{"_index": index, "_id": u.Username}}
		if err := enc.Encode(action); err != nil {
			return nil, err
		}
		if err := enc.Encode(newElasticUserDocument(u)); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

type elasticErrorBody struct {
	Error struct {
		Type      string `json:"type"`
		Reason    string `json:"reason"`
		RootCause []struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"root_cause"`
	} `json:"error"`
	Status int `json:"status"`
}

// decodeElastic closes res and decodes a successful body into target. Error
// responses are classified by status and error type.
func decodeElastic(res *esapi.Response, op string, target any) error {
	defer res.Body.Close()

	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		var body elasticErrorBody
		_ = json.Unmarshal(raw, &body)
		return classifyElasticError(op, res.StatusCode, body.Error.Type, body.Error.Reason)
	}

	if target == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}

	if err := json.NewDecoder(res.Body).Decode(target); err != nil {
		return apperrors.BackendUnavailable(op+": failed to decode response", err)
	}
	return nil
}

func classifyElasticError(op string, status int, errType, reason string) error {
	cause := fmt.Errorf("[%d] %s: %s", status, errType, reason)

	switch {
	case status == http.StatusBadRequest &&
		(strings.Contains(errType, "parsing") ||
			strings.Contains(errType, "query_shard") ||
			strings.Contains(errType, "search_phase_execution")):
		return apperrors.Wrap(apperrors.KindQueryTranslation, op+" rejected query", cause)
	case status == http.StatusBadRequest ||
		status == http.StatusConflict ||
		strings.Contains(errType, "mapper_parsing") ||
		strings.Contains(errType, "version_conflict") ||
		strings.Contains(errType, "document_parsing"):
		return apperrors.ValidationFailed(op+" rejected by backend", cause)
	default:
		return apperrors.BackendUnavailable(op+" failed", cause)
	}
}

type elasticBulkResponse struct {
	Errors bool                                 `json:"errors"`
	Items  []map[string]elasticBulkItemResponse `json:"items"`
}

type elasticBulkItemResponse struct {
	ID     string `json:"_id"`
	Status int    `json:"status"`
	Error  *struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error,omitempty"`
}

// summarize counts accepted items and classifies the first rejected one.
func (b elasticBulkResponse) summarize() (int64, error) {
	var (
		applied int64
		failure error
	)
	for _, item := range b.Items {
		for _, result := range item {
			if result.Status >= 200 && result.Status < 300 {
				applied++
				continue
			}
			if failure == nil {
				errType, reason := "", ""
				if result.Error != nil {
					errType, reason = result.Error.Type, result.Error.Reason
				}
				failure = classifyElasticError("insert user "+result.ID, result.Status, errType, reason)
			}
		}
	}
	return applied, failure
}

type elasticSearchResponse struct {
	ScrollID string `json:"_scroll_id"`
	Hits     struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source models.User `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (s elasticSearchResponse) users() []models.User {
	users := make([]models.User, 0, len(s.Hits.Hits))
	for _, hit := range s.Hits.Hits {
		users = append(users, hit.Source)
	}
	return users
}

type elasticByQueryResponse struct {
	Updated  int64             `json:"updated"`
	Deleted  int64             `json:"deleted"`
	Failures []json.RawMessage `json:"failures"`
}

func (b elasticByQueryResponse) failure(op string) error {
	if len(b.Failures) == 0 {
		return nil
	}
	return apperrors.BackendUnavailable(
		fmt.Sprintf("%s reported %d failures", op, len(b.Failures)),
		fmt.Errorf("%s", b.Failures[0]),
	)
}

type elasticAggregationResponse struct {
	Aggregations struct {
		Addresses struct {
			Countries struct {
				Buckets []struct {
					Key        string `json:"key"`
					DocCount   int64  `json:"doc_count"`
					AverageAge struct {
						Value *float64 `json:"value"`
					} `json:"averageAge"`
				} `json:"buckets"`
			} `json:"countries"`
		} `json:"addresses"`
	} `json:"aggregations"`
}

func (a elasticAggregationResponse) rows() []models.CountryAggregate {
	buckets := a.Aggregations.Addresses.Countries.Buckets
	rows := make([]models.CountryAggregate, 0, len(buckets))
	for _, b := range buckets {
		row := models.CountryAggregate{Country: b.Key, TotalUsers: b.DocCount}
		if b.AverageAge.Value != nil {
			row.AverageAge = *b.AverageAge.Value
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].TotalUsers != rows[j].TotalUsers {
			return rows[i].TotalUsers > rows[j].TotalUsers
		}
		return rows[i].Country < rows[j].Country
	})
	return rows
}
