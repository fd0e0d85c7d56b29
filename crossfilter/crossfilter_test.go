package crossfilter_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"hermannm.dev/cubes/crossfilter"
	"hermannm.dev/cubes/olap"
	"hermannm.dev/cubes/olap/olaptest"
	"hermannm.dev/cubes/query"
)

const (
	timeColumn = "[Time]"
	zoneColumn = "[Zone]"
	measure    = "[Measures].[Unit Sales]"
)

func testRows() crossfilter.Rows {
	return crossfilter.Rows{
		{timeColumn: "[Time].[2000]", zoneColumn: "[Zone].[France]", measure: 1.0},
		{timeColumn: "[Time].[2000]", zoneColumn: "[Zone].[Spain]", measure: 2.0},
		{timeColumn: "[Time].[2001]", zoneColumn: "[Zone].[France]", measure: 3.0},
		{timeColumn: "[Time].[2001]", zoneColumn: "[Zone].[Spain]", measure: 4.0},
	}
}

func allValues(t *testing.T, group crossfilter.Group) map[string]any {
	t.Helper()

	keyValues, err := group.All(context.Background())
	require.NoError(t, err)

	values := make(map[string]any, len(keyValues))
	for _, keyValue := range keyValues {
		values[keyValue.Key] = keyValue.Value
	}
	return values
}

func TestMemoryGroupsFollowOtherFilters(t *testing.T) {
	engine, err := crossfilter.New(testRows())
	require.NoError(t, err)

	timeDimension, err := engine.Dimension(timeColumn)
	require.NoError(t, err)
	zoneDimension, err := engine.Dimension(zoneColumn)
	require.NoError(t, err)

	timeGroup, err := timeDimension.Group()
	require.NoError(t, err)
	timeGroup.ReduceSum(measure)
	zoneGroup, err := zoneDimension.Group()
	require.NoError(t, err)
	zoneGroup.ReduceSum(measure)

	assert.Equal(t, map[string]any{"[Time].[2000]": 3.0, "[Time].[2001]": 7.0}, allValues(t, timeGroup))

	require.NoError(t, zoneDimension.FilterMembers([]string{"[Zone].[France]"}))
	assert.Equal(t, map[string]any{"[Time].[2000]": 1.0, "[Time].[2001]": 3.0}, allValues(t, timeGroup))
	assert.Equal(
		t,
		map[string]any{"[Zone].[France]": 4.0, "[Zone].[Spain]": 6.0},
		allValues(t, zoneGroup),
		"a group ignores the filter of its own dimension",
	)

	require.NoError(t, timeDimension.FilterMembers([]string{"[Time].[2001]"}))
	assert.Equal(t, map[string]any{"[Zone].[France]": 3.0, "[Zone].[Spain]": 4.0}, allValues(t, zoneGroup))
	assert.Equal(t, map[string]any{"[Time].[2000]": 1.0, "[Time].[2001]": 3.0}, allValues(t, timeGroup))

	zoneDimension.Dispose()
	assert.True(t, zoneDimension.Disposed())
	assert.True(t, zoneGroup.Disposed())
	assert.Equal(t, map[string]any{"[Time].[2000]": 3.0, "[Time].[2001]": 7.0}, allValues(t, timeGroup))

	_, err = zoneGroup.All(context.Background())
	assert.ErrorIs(t, err, crossfilter.ErrDisposed)
	assert.ErrorIs(t, zoneDimension.FilterAll(), crossfilter.ErrDisposed)
}

func TestMemoryGroupKeepsFilteredOutKeys(t *testing.T) {
	engine, err := crossfilter.New(testRows())
	require.NoError(t, err)

	timeDimension, err := engine.Dimension(timeColumn)
	require.NoError(t, err)
	zoneDimension, err := engine.Dimension(zoneColumn)
	require.NoError(t, err)
	require.NoError(t, timeDimension.FilterMembers([]string{"[Time].[1999]"}))

	zoneGroup, err := zoneDimension.Group()
	require.NoError(t, err)

	assert.Equal(
		t,
		map[string]any{"[Zone].[France]": 0.0, "[Zone].[Spain]": 0.0},
		allValues(t, zoneGroup),
	)
}

func TestMemoryCustomReducer(t *testing.T) {
	engine, err := crossfilter.New(testRows())
	require.NoError(t, err)

	zoneDimension, err := engine.Dimension(zoneColumn)
	require.NoError(t, err)
	group, err := zoneDimension.Group()
	require.NoError(t, err)

	group.Reduce(crossfilter.Reducer{
		Add: func(value any, row olap.Row) any {
			return append(value.([]string), row[timeColumn].(string))
		},
		Remove: func(value any, row olap.Row) any {
			return value.([]string)[1:]
		},
		Init: func() any { return []string{} },
	})

	assert.Equal(t, map[string]any{
		"[Zone].[France]": []string{"[Time].[2000]", "[Time].[2001]"},
		"[Zone].[Spain]":  []string{"[Time].[2000]", "[Time].[2001]"},
	}, allValues(t, group))
}

func TestServerGroupQueriesAPI(t *testing.T) {
	api := olaptest.NewAPI()
	engine, err := crossfilter.New(crossfilter.ServerDescriptor{
		API:      query.NewBuilder(api),
		Schema:   olaptest.Schema,
		Cube:     olaptest.Cube,
		Measures: []string{olaptest.Measure},
		Dimensions: map[string]crossfilter.DimensionDescriptor{
			olaptest.TimeDimension: {
				Hierarchy: olaptest.TimeHierarchy,
				Members:   []string{"[Time].[2000]", "[Time].[2001]"},
			},
			olaptest.ZoneDimension: {
				Hierarchy: olaptest.ZoneHierarchy,
				Members:   []string{"[Zone].[France]", "[Zone].[Spain]"},
			},
		},
	})
	require.NoError(t, err)

	timeDimension, err := engine.Dimension(olaptest.TimeDimension)
	require.NoError(t, err)
	zoneDimension, err := engine.Dimension(olaptest.ZoneDimension)
	require.NoError(t, err)
	require.NoError(t, zoneDimension.FilterMembers([]string{"[Zone].[France]"}))
	require.NoError(t, timeDimension.FilterMembers([]string{"[Time].[2000]"}))

	timeGroup, err := timeDimension.Group()
	require.NoError(t, err)
	timeGroup.ReduceSum(olaptest.Measure)

	assert.Equal(
		t,
		map[string]any{"[Time].[2000]": 1.0, "[Time].[2001]": 1.0},
		allValues(t, timeGroup),
	)

	executed := api.Executed()
	require.Len(t, executed, 1)
	assert.Equal(t, olaptest.Cube, executed[0].Cube)
	assert.Equal(t, []string{olaptest.Measure}, executed[0].Measures)
	assert.Equal(t, []olap.Axis{
		{
			Hierarchy: olaptest.TimeHierarchy,
			Members:   []string{"[Time].[2000]", "[Time].[2001]"},
			Dice:      true,
		},
		{Hierarchy: olaptest.ZoneHierarchy, Members: []string{"[Zone].[France]"}},
	}, executed[0].Rows)

	_, err = engine.Dimension("[Product]")
	assert.Error(t, err)
}

func TestServerGroupOfAggregatedDimension(t *testing.T) {
	api := olaptest.NewAPI()
	engine, err := crossfilter.New(crossfilter.ServerDescriptor{
		API:      query.NewBuilder(api),
		Schema:   olaptest.Schema,
		Cube:     olaptest.Cube,
		Measures: []string{olaptest.Measure},
		Dimensions: map[string]crossfilter.DimensionDescriptor{
			olaptest.TimeDimension: {Hierarchy: olaptest.TimeHierarchy, Aggregated: true},
			olaptest.ZoneDimension: {
				Hierarchy: olaptest.ZoneHierarchy,
				Members:   []string{"[Zone].[France]", "[Zone].[Spain]"},
			},
		},
	})
	require.NoError(t, err)

	timeDimension, err := engine.Dimension(olaptest.TimeDimension)
	require.NoError(t, err)
	timeGroup, err := timeDimension.Group()
	require.NoError(t, err)
	timeGroup.ReduceSum(olaptest.Measure)

	assert.Equal(t, map[string]any{"": 1.0}, allValues(t, timeGroup))

	zoneDimension, err := engine.Dimension(olaptest.ZoneDimension)
	require.NoError(t, err)
	zoneGroup, err := zoneDimension.Group()
	require.NoError(t, err)
	zoneGroup.ReduceSum(olaptest.Measure)

	assert.Equal(
		t,
		map[string]any{"[Zone].[France]": 1.0, "[Zone].[Spain]": 1.0},
		allValues(t, zoneGroup),
	)

	executed := api.Executed()
	require.Len(t, executed, 2)
	assert.Equal(t, []olap.Axis{
		{Hierarchy: olaptest.ZoneHierarchy, Members: []string{"[Zone].[France]", "[Zone].[Spain]"}},
	}, executed[0].Rows)
	assert.Equal(t, []olap.Axis{
		{
			Hierarchy: olaptest.ZoneHierarchy,
			Members:   []string{"[Zone].[France]", "[Zone].[Spain]"},
			Dice:      true,
		},
	}, executed[1].Rows)
}

func TestNewRejectsDescriptorWithoutAPI(t *testing.T) {
	_, err := crossfilter.New(crossfilter.ServerDescriptor{Cube: olaptest.Cube})
	assert.ErrorIs(t, err, olap.ErrQueryAPINotProvided)
}
