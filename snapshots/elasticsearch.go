package snapshots

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/typedapi/core/search"
	elastictypes "github.com/elastic/go-elasticsearch/v8/typedapi/types"
	"github.com/elastic/go-elasticsearch/v8/typedapi/types/enums/refresh"
	"hermannm.dev/cubes/config"
	"hermannm.dev/wrap"
)

// ElasticsearchStore keeps snapshots as documents of an Elasticsearch index, keyed by
// snapshot ID.
type ElasticsearchStore struct {
	client *elasticsearch.TypedClient
	index  string
}

// Upper bound on listed snapshots.
const maxListedSnapshots = 1000

func NewElasticsearchStore(config config.Elasticsearch) (*ElasticsearchStore, error) {
	client, err := elasticsearch.NewTypedClient(elasticsearch.Config{
		Addresses:         []string{config.Address},
		EnableDebugLogger: config.Debug,
	})
	if err != nil {
		return nil, wrap.Error(err, "failed to connect to Elasticsearch")
	}

	return &ElasticsearchStore{client: client, index: config.SnapshotIndex}, nil
}

const (
	elasticIndexNotFoundException      = "index_not_found_exception"
	elasticIndexAlreadyExistsException = "resource_already_exists_exception"
)

// CreateIndex creates the snapshot index, unless it already exists. States are stored but
// not indexed.
func (store *ElasticsearchStore) CreateIndex(ctx context.Context) error {
	mappings := elastictypes.NewTypeMapping()
	mappings.Properties = map[string]elastictypes.Property{
		"id":        elastictypes.NewKeywordProperty(),
		"name":      elastictypes.NewKeywordProperty(),
		"createdAt": elastictypes.NewDateProperty(),
		"state":     disabledObjectProperty(),
	}

	if _, err := store.client.Indices.Create(store.index).Mappings(mappings).Do(ctx); err != nil {
		var elasticErr *elastictypes.ElasticsearchError
		if errors.As(err, &elasticErr) && elasticErr.ErrorCause.Type == elasticIndexAlreadyExistsException {
			return nil
		}
		return wrapElasticErrorf(err, "Elasticsearch index creation request failed for index '%s'", store.index)
	}

	return nil
}

func disabledObjectProperty() *elastictypes.ObjectProperty {
	property := elastictypes.NewObjectProperty()
	enabled := false
	property.Enabled = &enabled
	return property
}

func (store *ElasticsearchStore) Save(ctx context.Context, snapshot Snapshot) error {
	if _, err := store.client.Index(store.index).
		Id(snapshot.ID).
		Document(snapshot).
		Refresh(refresh.True).
		Do(ctx); err != nil {
		return wrapElasticErrorf(err, "failed to index snapshot '%s'", snapshot.ID)
	}
	return nil
}

func (store *ElasticsearchStore) Load(ctx context.Context, id string) (Snapshot, error) {
	response, err := store.client.Get(store.index, id).Do(ctx)
	if err != nil {
		if isNotFound(err) {
			return Snapshot{}, NotFoundError{ID: id}
		}
		return Snapshot{}, wrapElasticErrorf(err, "failed to get snapshot '%s'", id)
	}
	if !response.Found {
		return Snapshot{}, NotFoundError{ID: id}
	}

	var snapshot Snapshot
	if err := json.Unmarshal(response.Source_, &snapshot); err != nil {
		return Snapshot{}, wrap.Errorf(err, "failed to decode snapshot '%s'", id)
	}
	return snapshot, nil
}

func (store *ElasticsearchStore) Delete(ctx context.Context, id string) error {
	if _, err := store.Load(ctx, id); err != nil {
		return err
	}

	if _, err := store.client.Delete(store.index, id).Refresh(refresh.True).Do(ctx); err != nil {
		if isNotFound(err) {
			return NotFoundError{ID: id}
		}
		return wrapElasticErrorf(err, "failed to delete snapshot '%s'", id)
	}
	return nil
}

func (store *ElasticsearchStore) List(ctx context.Context) ([]Summary, error) {
	size := maxListedSnapshots
	response, err := store.client.Search().
		Index(store.index).
		Request(&search.Request{
			Query: &elastictypes.Query{MatchAll: &elastictypes.MatchAllQuery{}},
			Size:  &size,
		}).
		Do(ctx)
	if err != nil {
		var elasticErr *elastictypes.ElasticsearchError
		if errors.As(err, &elasticErr) && elasticErr.ErrorCause.Type == elasticIndexNotFoundException {
			return []Summary{}, nil
		}
		return nil, wrapElasticError(err, "failed to search snapshots")
	}

	summaries := make([]Summary, 0, len(response.Hits.Hits))
	for _, hit := range response.Hits.Hits {
		var summary Summary
		if err := json.Unmarshal(hit.Source_, &summary); err != nil {
			return nil, wrap.Error(err, "failed to decode snapshot summary")
		}
		summaries = append(summaries, summary)
	}
	sortNewestFirst(summaries)
	return summaries, nil
}

func isNotFound(err error) bool {
	var elasticErr *elastictypes.ElasticsearchError
	return errors.As(err, &elasticErr) && elasticErr.Status == http.StatusNotFound
}

func wrapElasticError(wrapped error, message string) error {
	return wrap.Error(formatElasticError(wrapped), message)
}

func wrapElasticErrorf(wrapped error, format string, args ...any) error {
	return wrap.Errorf(formatElasticError(wrapped), format, args...)
}

func formatElasticError(err error) error {
	var elasticErr *elastictypes.ElasticsearchError
	if !errors.As(err, &elasticErr) {
		return err
	}

	var errMessage string
	if elasticErr.ErrorCause.Reason == nil {
		errMessage = fmt.Sprintf("%s (status %d)", elasticErr.ErrorCause.Type, elasticErr.Status)
	} else {
		errMessage = fmt.Sprintf(
			"%s (%s, status %d)",
			*elasticErr.ErrorCause.Reason, elasticErr.ErrorCause.Type, elasticErr.Status,
		)
	}

	rootCause := make([]error, len(elasticErr.ErrorCause.RootCause))
	for i, cause := range elasticErr.ErrorCause.RootCause {
		if cause.Reason == nil {
			rootCause[i] = errors.New(cause.Type)
		} else {
			rootCause[i] = fmt.Errorf("%s (%s)", *cause.Reason, cause.Type)
		}
	}

	if len(rootCause) == 0 {
		return errors.New(errMessage)
	} else {
		return wrap.Errors(errMessage, rootCause...)
	}
}
