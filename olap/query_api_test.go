package olap_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"hermannm.dev/cubes/olap"
	"hermannm.dev/wrap"
)

func TestCheckReply(t *testing.T) {
	for _, testCase := range []struct {
		name     string
		reply    string
		expected *olap.Error
	}{
		{"ok", `{"error": "OK", "data": []}`, nil},
		{
			"bad request",
			`{"error": "BAD_REQUEST", "data": "no such cube"}`,
			olap.ErrQueryAPIBadRequest,
		},
		{"not supported", `{"error": "NOT_SUPPORTED"}`, olap.ErrQueryAPINotSupported},
		{"server error", `{"error": "SERVER_ERROR"}`, olap.ErrQueryAPIServerError},
	} {
		t.Run(testCase.name, func(t *testing.T) {
			reply, err := olap.DecodeReply([]byte(testCase.reply))
			require.NoError(t, err)

			err = olap.CheckReply(reply)
			if testCase.expected == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, testCase.expected)
			}
		})
	}
}

func TestDecodeReplyWithoutStatus(t *testing.T) {
	_, err := olap.DecodeReply([]byte(`{"data": []}`))
	assert.ErrorIs(t, err, olap.ErrIllegalAPIResponse)

	_, err = olap.DecodeReply([]byte(`[1, 2]`))
	assert.ErrorIs(t, err, olap.ErrIllegalAPIResponse)

	assert.ErrorIs(t, olap.CheckReply(olap.Reply{}), olap.ErrIllegalAPIResponse)
}

func TestCheckReplyIncludesMessage(t *testing.T) {
	err := olap.CheckReply(olap.ErrorReply(olap.ReplyStatusBadRequest, "unknown hierarchy"))
	assert.EqualError(t, err, "query API rejected request: unknown hierarchy")
}

func TestErrorKindSurvivesWrapping(t *testing.T) {
	err := wrap.Error(
		olap.NewError(olap.ErrorKindCubeNotInDatabase, "cube '[Sales]' not found"),
		"failed to load cubes",
	)

	assert.ErrorIs(t, err, olap.ErrCubeNotInDatabase)
	assert.False(t, errors.Is(err, olap.ErrSchemaNotInDatabase))

	kind, ok := olap.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, olap.ErrorKindCubeNotInDatabase, kind)
	assert.Equal(t, "CubeNotInDatabaseError", kind.String())
}

func TestMemberJSON(t *testing.T) {
	var members olap.Members
	err := json.Unmarshal(
		[]byte(`{"[Zone].[France]": {"caption": "France", "population": 67}, "[Zone].[Spain]": {"caption": "Spain"}}`),
		&members,
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"[Zone].[France]", "[Zone].[Spain]"}, members.IDs())
	assert.Equal(t, "France", members["[Zone].[France]"].Caption)
	assert.Equal(t, 67.0, members["[Zone].[France]"].Properties["population"])
	assert.Nil(t, members["[Zone].[Spain]"].Properties)

	encoded, err := json.Marshal(members["[Zone].[France]"])
	require.NoError(t, err)
	assert.JSONEq(t, `{"caption": "France", "population": 67}`, string(encoded))
}

func TestLevelPropertiesKeepOrder(t *testing.T) {
	var levels []olap.Level
	err := json.Unmarshal([]byte(`[{
		"id": "[Zone].[Zone].[Region]",
		"caption": "Region",
		"list-properties": {
			"name": {"caption": "Name", "type": "Standard"},
			"geom": {"caption": "Geometry", "type": "Geometry"},
			"area": {"caption": "Area", "type": "Standard"}
		}
	}]`), &levels)
	require.NoError(t, err)
	require.Len(t, levels, 1)

	properties := levels[0].Properties
	require.Len(t, properties, 3)
	assert.Equal(t, "name", properties[0].ID)
	assert.Equal(t, "geom", properties[1].ID)
	assert.Equal(t, olap.PropertyTypeGeometry, properties[1].Type)
	assert.Equal(t, "area", properties[2].ID)
}

func TestQueryStateReplay(t *testing.T) {
	var state olap.QueryState
	state.Drill("[Sales]")
	state.Push("[Measures].[Unit Sales]")
	state.Push("[Measures].[Unit Sales]")
	state.Push("[Measures].[Profit]")
	state.Pull("[Measures].[Profit]")
	state.Slice("[Time]", []string{"[Time].[2000]", "[Time].[2001]"}, false)
	state.Slice("[Zone]", []string{"[Zone].[France]"}, false)
	state.Dice([]string{"[Time]", "[Zone]"})
	state.Project("[Zone]")
	state.Filter("[Product]", []string{"[Product].[Food]"}, false)

	assert.Equal(t, []string{"[Measures].[Unit Sales]"}, state.Measures)
	assert.Equal(t, []string{"[Time]"}, state.DicedHierarchies())
	require.Len(t, state.Where, 1)

	var replayed olap.QueryState
	replayed.Drill("[Other]")
	state.Replay(stateRecorder{&replayed})
	assert.Equal(t, state, replayed)
}

// Records calls into a QueryState, to check that replaying reproduces the state.
type stateRecorder struct {
	state *olap.QueryState
}

func (recorder stateRecorder) Explore(
	ctx context.Context,
	request olap.ExploreRequest,
) (olap.Reply, error) {
	return olap.Reply{}, nil
}
func (recorder stateRecorder) Drill(cube string) { recorder.state.Drill(cube) }
func (recorder stateRecorder) Push(measure string) { recorder.state.Push(measure) }
func (recorder stateRecorder) Pull(measure string) { recorder.state.Pull(measure) }
func (recorder stateRecorder) Project(hierarchy string) { recorder.state.Project(hierarchy) }
func (recorder stateRecorder) Dice(hierarchies []string) { recorder.state.Dice(hierarchies) }
func (recorder stateRecorder) Clear() { *recorder.state = olap.QueryState{} }
func (recorder stateRecorder) Slice(hierarchy string, members []string, isRange bool) {
	recorder.state.Slice(hierarchy, members, isRange)
}
func (recorder stateRecorder) Filter(hierarchy string, members []string, isRange bool) {
	recorder.state.Filter(hierarchy, members, isRange)
}
func (recorder stateRecorder) Execute(ctx context.Context) (olap.Reply, error) {
	return olap.Reply{}, nil
}

func TestMembersCloneCopiesProperties(t *testing.T) {
	members := olap.Members{
		"[Zone].[France]": {
			Caption: "France",
			Properties: map[string]any{
				"geom": geojson.NewGeometry(orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 0}}),
				"tags": []any{"eu"},
			},
		},
		"[Zone].[Spain]": {Caption: "Spain"},
	}

	clone := members.Clone()
	assert.Equal(t, members, clone)

	france := clone["[Zone].[France]"]
	france.Properties["tags"].([]any)[0] = "changed"
	france.Properties["geom"].(*geojson.Geometry).Coordinates.(orb.Ring)[0] = orb.Point{5, 5}
	france.Properties["name"] = "République française"

	original := members["[Zone].[France]"]
	assert.Equal(t, []any{"eu"}, original.Properties["tags"])
	assert.Equal(
		t, orb.Point{0, 0}, original.Properties["geom"].(*geojson.Geometry).Coordinates.(orb.Ring)[0],
	)
	assert.NotContains(t, original.Properties, "name")
	assert.Nil(t, clone["[Zone].[Spain]"].Properties)
}
