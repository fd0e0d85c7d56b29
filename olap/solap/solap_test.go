package solap_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"hermannm.dev/cubes/metadata"
	"hermannm.dev/cubes/olap"
	"hermannm.dev/cubes/olap/olaptest"
	"hermannm.dev/cubes/olap/solap"
)

func newServer(t *testing.T) (*olaptest.API, *solap.Client) {
	t.Helper()

	backend := olaptest.NewTrafficAPI()
	server := httptest.NewServer(solap.NewHandler(backend))
	t.Cleanup(server.Close)

	return backend, solap.NewClient(server.URL, time.Second)
}

func TestDataQueryState(t *testing.T) {
	var state olap.QueryState
	state.Drill(olaptest.Cube)
	state.Push(olaptest.Measure)
	state.Slice(olaptest.TimeHierarchy, []string{"[Time].[2000]", "[Time].[2001]"}, true)
	state.Dice([]string{olaptest.TimeHierarchy, olaptest.ProductHierarchy})
	state.Filter(olaptest.ZoneHierarchy, []string{"[Zone].[France]"}, false)

	encoded, err := solap.EncodeData(state)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"queryType": "data",
		"data": {
			"onCube": "[Traffic]",
			"measures": ["[Measures].[Goods Quantity]"],
			"rows": [
				{"hierarchy": "[Time].[Time]", "members": ["[Time].[2000]", "[Time].[2001]"], "range": true, "dice": true},
				{"hierarchy": "[Product].[Product]", "dice": true}
			],
			"where": [{"hierarchy": "[Zone].[Zone]", "members": ["[Zone].[France]"]}]
		}
	}`, string(encoded))

	request, err := solap.DecodeRequest(encoded)
	require.NoError(t, err)
	query, err := request.DataQuery()
	require.NoError(t, err)
	assert.Equal(t, state, query.State())
}

func TestDecodeRequestErrors(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{"malformed", `{"queryType": `},
		{"unknown query type", `{"queryType": "mdx", "data": {}}`},
		{"missing data", `{"queryType": "explore"}`},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := solap.DecodeRequest([]byte(testCase.body))
			assert.ErrorIs(t, err, olap.ErrQueryAPIBadRequest)
		})
	}
}

func TestClientExplore(t *testing.T) {
	backend, client := newServer(t)

	reply, err := client.Explore(context.Background(), olap.ExploreRequest{Path: []string{olaptest.Schema}})
	require.NoError(t, err)
	require.Equal(t, olap.ReplyStatusOK, reply.Error)
	assert.JSONEq(t, `{"[Traffic]": {"caption": "Traffic", "description": "Road traffic"}}`, string(reply.Data))
	assert.Equal(t, 1, backend.ExploreCalls(olaptest.Schema))

	reply, err = client.Explore(context.Background(), olap.ExploreRequest{Path: []string{"Sales"}})
	require.NoError(t, err)
	assert.Equal(t, olap.ReplyStatusBadRequest, reply.Error)
}

func TestClientExecute(t *testing.T) {
	backend, client := newServer(t)

	client.Drill(olaptest.Cube)
	client.Push(olaptest.Measure)
	client.Slice(olaptest.ProductHierarchy, []string{"[Product].[Drink]", "[Product].[Food]"}, false)
	client.Dice([]string{olaptest.ProductHierarchy})
	client.Filter(olaptest.TimeHierarchy, []string{"[Time].[2000]"}, false)

	reply, err := client.Execute(context.Background())
	require.NoError(t, err)
	require.Equal(t, olap.ReplyStatusOK, reply.Error)

	var rows []olap.Row
	require.NoError(t, json.Unmarshal(reply.Data, &rows))
	assert.ElementsMatch(t, []olap.Row{
		{olaptest.ProductDimension: "[Product].[Drink]", olaptest.Measure: 1.0},
		{olaptest.ProductDimension: "[Product].[Food]", olaptest.Measure: 1.0},
	}, rows)

	executed := backend.Executed()
	require.Len(t, executed, 1)
	assert.Equal(t, olaptest.Cube, executed[0].Cube)
	require.Len(t, executed[0].Where, 1)
	assert.Equal(t, []string{"[Time].[2000]"}, executed[0].Where[0].Members)

	client.Clear()
	reply, err = client.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, olap.ReplyStatusBadRequest, reply.Error)
	assert.JSONEq(t, `"Cube not specified"`, string(reply.Data))
	assert.Len(t, backend.Executed(), 1)
}

func TestClientWithMetadataCache(t *testing.T) {
	backend, client := newServer(t)
	cache := metadata.NewCache(client)

	cubes, err := cache.Cubes(context.Background(), olaptest.Schema)
	require.NoError(t, err)
	require.Len(t, cubes, 1)
	assert.Equal(t, olaptest.Cube, cubes[0].ID)

	_, err = cache.Cubes(context.Background(), olaptest.Schema)
	require.NoError(t, err)
	assert.Equal(t, 1, backend.ExploreCalls(olaptest.Schema))
}

func TestClientServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		if strings.Contains(req.URL.Path, "broken") {
			res.Write([]byte(`not json`))
			return
		}
		res.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	_, err := solap.NewClient(server.URL, time.Second).Explore(context.Background(), olap.ExploreRequest{})
	assert.ErrorIs(t, err, olap.ErrQueryAPIServerError)

	_, err = solap.NewClient(server.URL+"/broken", time.Second).Explore(context.Background(), olap.ExploreRequest{})
	assert.ErrorIs(t, err, olap.ErrIllegalAPIResponse)
}

func TestHandlerRejectsGet(t *testing.T) {
	recorder := httptest.NewRecorder()
	solap.NewHandler(olaptest.NewAPI()).ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, recorder.Code)
}
