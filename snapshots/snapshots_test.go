package snapshots_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"hermannm.dev/cubes/config"
	"hermannm.dev/cubes/navigation"
	"hermannm.dev/cubes/snapshots"
)

func testState() navigation.State {
	return navigation.State{
		Schema:       "Traffic",
		Cube:         "[Traffic]",
		Measure:      "[Measures].[Goods Quantity]",
		ColumnWidths: []float64{1},
		Dimensions: []navigation.DimensionState{
			{
				ID:           "[Time]",
				Hierarchy:    "[Time].[Time]",
				Filters:      []string{},
				Properties:   []string{},
				MembersStack: [][]string{{"[Time].[2000]", "[Time].[2001]"}},
				FiltersStack: [][]string{{}},
			},
		},
		Charts: [][]navigation.ChartState{
			{{Type: "timeline", Dimensions: []string{"[Time]"}, ExtraMeasures: []string{}}},
		},
	}
}

func TestNewSnapshot(t *testing.T) {
	snapshot, err := snapshots.NewSnapshot("", testState())
	require.NoError(t, err)

	assert.NotEmpty(t, snapshot.ID)
	assert.Equal(t, "[Traffic]", snapshot.Name)
	assert.WithinDuration(t, time.Now(), snapshot.CreatedAt, time.Minute)

	other, err := snapshots.NewSnapshot("traffic overview", testState())
	require.NoError(t, err)
	assert.NotEqual(t, snapshot.ID, other.ID)
	assert.Equal(t, "traffic overview", other.Name)

	_, err = snapshots.NewSnapshot("", navigation.State{})
	assert.ErrorContains(t, err, "invalid analysis state")
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := snapshots.NewMemoryStore()

	older, err := snapshots.NewSnapshot("older", testState())
	require.NoError(t, err)
	older.CreatedAt = older.CreatedAt.Add(-time.Hour)
	newer, err := snapshots.NewSnapshot("newer", testState())
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, older))
	require.NoError(t, store.Save(ctx, newer))

	loaded, err := store.Load(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, older, loaded)

	summaries, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []snapshots.Summary{newer.Summary(), older.Summary()}, summaries)

	require.NoError(t, store.Delete(ctx, older.ID))
	_, err = store.Load(ctx, older.ID)
	assert.ErrorAs(t, err, &snapshots.NotFoundError{})
	assert.ErrorAs(t, store.Delete(ctx, older.ID), &snapshots.NotFoundError{})
}

// fakeElasticsearch serves the document endpoints of a single index.
type fakeElasticsearch struct {
	lock      sync.Mutex
	index     string
	documents map[string]json.RawMessage
}

func (fake *fakeElasticsearch) ServeHTTP(res http.ResponseWriter, req *http.Request) {
	res.Header().Set("X-Elastic-Product", "Elasticsearch")
	res.Header().Set("Content-Type", "application/json")

	fake.lock.Lock()
	defer fake.lock.Unlock()

	id, ok := strings.CutPrefix(req.URL.Path, "/"+fake.index+"/_doc/")
	if !ok {
		res.WriteHeader(http.StatusBadRequest)
		return
	}

	switch req.Method {
	case http.MethodPut, http.MethodPost:
		body, _ := io.ReadAll(req.Body)
		fake.documents[id] = body
		res.WriteHeader(http.StatusCreated)
		json.NewEncoder(res).Encode(map[string]any{
			"_index": fake.index, "_id": id, "_version": 1, "result": "created",
			"_shards": map[string]int{"total": 1, "successful": 1, "failed": 0},
			"_seq_no": 0, "_primary_term": 1,
		})
	case http.MethodGet:
		document, found := fake.documents[id]
		if !found {
			res.WriteHeader(http.StatusNotFound)
			json.NewEncoder(res).Encode(map[string]any{"_index": fake.index, "_id": id, "found": false})
			return
		}
		json.NewEncoder(res).Encode(map[string]any{
			"_index": fake.index, "_id": id, "found": true, "_source": document,
		})
	default:
		res.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestElasticsearchStore(t *testing.T) {
	fake := &fakeElasticsearch{index: "snapshots", documents: make(map[string]json.RawMessage)}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	store, err := snapshots.NewElasticsearchStore(config.Elasticsearch{
		Address:       server.URL,
		SnapshotIndex: "snapshots",
	})
	require.NoError(t, err)

	ctx := context.Background()
	snapshot, err := snapshots.NewSnapshot("saved", testState())
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, snapshot))
	assert.Contains(t, fake.documents, snapshot.ID)

	loaded, err := store.Load(ctx, snapshot.ID)
	require.NoError(t, err)
	assert.Equal(t, snapshot.Name, loaded.Name)
	assert.True(t, snapshot.CreatedAt.Equal(loaded.CreatedAt))
	assert.Equal(t, snapshot.State, loaded.State)

	_, err = store.Load(ctx, "missing")
	assert.ErrorAs(t, err, &snapshots.NotFoundError{})
}
