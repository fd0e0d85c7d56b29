package navigation

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"hermannm.dev/cubes/metadata"
	"hermannm.dev/cubes/olap"
	"hermannm.dev/cubes/olap/olaptest"
	"hermannm.dev/devlog"
)

func TestMain(m *testing.M) {
	logHandler := devlog.NewHandler(os.Stdout, &devlog.Options{Level: slog.LevelDebug})
	slog.SetDefault(slog.New(logHandler))

	os.Exit(m.Run())
}

func newTrafficDimension(
	t *testing.T,
	cache *metadata.Cache,
	dimensionID string,
	hierarchy string,
) *Dimension {
	t.Helper()
	ctx := context.Background()

	info, err := cache.Dimension(ctx, olaptest.Schema, olaptest.Cube, dimensionID)
	require.NoError(t, err)

	path := metadata.HierarchyPath{
		Schema:    olaptest.Schema,
		Cube:      olaptest.Cube,
		Dimension: dimensionID,
		Hierarchy: hierarchy,
	}
	levels, err := cache.Levels(ctx, path)
	require.NoError(t, err)

	dimension := NewDimension(info, path, levels, nil)
	members, err := cache.Members(ctx, metadata.MembersRequest{Path: path, Level: 0})
	require.NoError(t, err)
	dimension.AddSlice(members)
	return dimension
}

// treeMembers answers member requests from a parent → children map.
type treeMembers map[string][]string

func (tree treeMembers) Members(
	ctx context.Context,
	request metadata.MembersRequest,
) (olap.Members, error) {
	members := olap.Members{}
	for _, child := range tree[request.Parent] {
		members[child] = olap.Member{Caption: child}
	}
	return members, nil
}

func membersOf(ids ...string) olap.Members {
	members := olap.Members{}
	for _, id := range ids {
		members[id] = olap.Member{Caption: id}
	}
	return members
}

func TestDrillDownThenRollUpRestoresFilters(t *testing.T) {
	cache := metadata.NewCache(olaptest.NewTrafficAPI())
	timeDimension := newTrafficDimension(t, cache, olaptest.TimeDimension, olaptest.TimeHierarchy)
	require.NoError(t, timeDimension.SetFilters([]string{"[Time].[2000]"}))

	drilled, err := timeDimension.DrillDown(
		context.Background(), cache, "[Time].[2000]", DrillModeSimple,
	)
	require.NoError(t, err)
	assert.True(t, drilled)

	assert.Equal(t, 1, timeDimension.CurrentLevel())
	assert.Equal(t, len(timeDimension.MembersStack())-1, timeDimension.CurrentLevel())
	assert.Equal(t, []string{
		"[Time].[2000].[Q1]", "[Time].[2000].[Q2]", "[Time].[2000].[Q3]", "[Time].[2000].[Q4]",
	}, timeDimension.LastSlice().IDs())
	assert.Equal(t, [][]string{{"[Time].[2000]"}}, timeDimension.FiltersStack())
	assert.False(t, timeDimension.IsDrillPossible())
	assert.True(t, timeDimension.IsRollPossible())

	require.NoError(t, timeDimension.SetFilters([]string{"[Time].[2000].[Q3]"}))

	assert.Equal(t, 1, timeDimension.RollUp(1))
	assert.Equal(t, 0, timeDimension.CurrentLevel())
	assert.Equal(t, []string{"[Time].[2000]", "[Time].[2001]"}, timeDimension.LastSlice().IDs())
	assert.Equal(t, []string{"[Time].[2000]"}, timeDimension.Filters())
	assert.Empty(t, timeDimension.FiltersStack())
}

func TestDrillDownAtLastLevelDoesNothing(t *testing.T) {
	api := olaptest.NewTrafficAPI()
	cache := metadata.NewCache(api)
	product := newTrafficDimension(t, cache, olaptest.ProductDimension, olaptest.ProductHierarchy)
	calls := api.TotalExploreCalls()

	drilled, err := product.DrillDown(
		context.Background(), cache, "[Product].[Drink]", DrillModeSimple,
	)
	require.NoError(t, err)
	assert.False(t, drilled)
	assert.Equal(t, 0, product.CurrentLevel())
	assert.Equal(t, calls, api.TotalExploreCalls())
}

func TestSelectedDrillDownUnionsChildren(t *testing.T) {
	cache := metadata.NewCache(olaptest.NewTrafficAPI())
	zone := newTrafficDimension(t, cache, olaptest.ZoneDimension, olaptest.ZoneHierarchy)
	require.NoError(t, zone.SetFilters([]string{"[Zone].[France]", "[Zone].[Spain]"}))

	drilled, err := zone.DrillDown(context.Background(), cache, "", DrillModeSelected)
	require.NoError(t, err)
	assert.True(t, drilled)

	assert.Equal(t, []string{
		"[Zone].[France].[Alsace]", "[Zone].[France].[Bretagne]", "[Zone].[Spain].[Galicia]",
	}, zone.LastSlice().IDs())
	assert.Equal(t, [][]string{{"[Zone].[France]", "[Zone].[Spain]"}}, zone.FiltersStack())
}

func TestSelectedDrillDownWithoutFiltersDrillsWholeSlice(t *testing.T) {
	tree := treeMembers{
		"FR": {"FR-BRE", "FR-ALS"},
		"DE": {"DE-BY"},
		"IT": {"IT-TOS"},
	}
	dimension := NewDimension(
		olap.DimensionInfo{ID: "[Zone]"}, metadata.HierarchyPath{}, []string{"Country", "Region"}, nil,
	)
	dimension.AddSlice(membersOf("FR", "DE", "IT"))

	_, err := dimension.DrillDown(context.Background(), tree, "", DrillModeSelected)
	require.NoError(t, err)
	assert.Equal(t, []string{"DE-BY", "FR-ALS", "FR-BRE", "IT-TOS"}, dimension.LastSlice().IDs())
}

func TestSelectedDrillDownHasNoDuplicates(t *testing.T) {
	tree := treeMembers{
		"FR": {"EU-BORDER", "FR-BRE"},
		"DE": {"EU-BORDER", "DE-BY"},
	}
	dimension := NewDimension(
		olap.DimensionInfo{ID: "[Zone]"}, metadata.HierarchyPath{}, []string{"Country", "Region"}, nil,
	)
	dimension.AddSlice(membersOf("FR", "DE", "IT"))
	require.NoError(t, dimension.SetFilters([]string{"FR", "DE"}))

	_, err := dimension.DrillDown(context.Background(), tree, "", DrillModeSelected)
	require.NoError(t, err)
	assert.Equal(t, []string{"DE-BY", "EU-BORDER", "FR-BRE"}, dimension.LastSlice().IDs())
}

func TestRollUpSeveralLevelsRestoresOldestFilters(t *testing.T) {
	tree := treeMembers{
		"A":  {"A1", "A2"},
		"A1": {"A1x", "A1y"},
	}
	dimension := NewDimension(
		olap.DimensionInfo{ID: "[D]"}, metadata.HierarchyPath{}, []string{"L0", "L1", "L2"}, nil,
	)
	dimension.AddSlice(membersOf("A", "B"))
	ctx := context.Background()

	require.NoError(t, dimension.SetFilters([]string{"A"}))
	_, err := dimension.DrillDown(ctx, tree, "A", DrillModeSimple)
	require.NoError(t, err)

	require.NoError(t, dimension.SetFilters([]string{"A1"}))
	_, err = dimension.DrillDown(ctx, tree, "A1", DrillModeSimple)
	require.NoError(t, err)
	assert.Equal(t, 2, dimension.CurrentLevel())

	require.NoError(t, dimension.SetFilters([]string{"A1y"}))

	assert.Equal(t, 2, dimension.RollUp(2))
	assert.Equal(t, 0, dimension.CurrentLevel())
	assert.Equal(t, []string{"A"}, dimension.Filters())
	assert.Equal(t, []string{"A", "B"}, dimension.LastSlice().IDs())
}

func TestRollUpIsClamped(t *testing.T) {
	tree := treeMembers{"A": {"A1"}}
	dimension := NewDimension(
		olap.DimensionInfo{ID: "[D]"}, metadata.HierarchyPath{}, []string{"L0", "L1"}, nil,
	)
	dimension.AddSlice(membersOf("A"))

	assert.Equal(t, 0, dimension.RollUp(1))
	assert.Equal(t, 0, dimension.CurrentLevel())

	_, err := dimension.DrillDown(context.Background(), tree, "A", DrillModeSimple)
	require.NoError(t, err)

	assert.Equal(t, 1, dimension.RollUp(5))
	assert.Equal(t, 0, dimension.CurrentLevel())
	assert.Equal(t, 0, dimension.RollUp(-1))
}

func TestRemoveFilterRemovesOneMember(t *testing.T) {
	dimension := NewDimension(olap.DimensionInfo{ID: "[D]"}, metadata.HierarchyPath{}, nil, nil)
	require.NoError(t, dimension.SetFilters([]string{"A", "B", "C"}))

	dimension.RemoveFilter("A")
	assert.Equal(t, []string{"B", "C"}, dimension.Filters())

	dimension.RemoveFilter("missing")
	assert.Equal(t, []string{"B", "C"}, dimension.Filters())

	dimension.AddFilter("B")
	assert.Equal(t, []string{"B", "C"}, dimension.Filters())
}

func TestGeoPropertyOfDimension(t *testing.T) {
	geometry := olap.Property{ID: "geom", Type: olap.PropertyTypeGeometry}
	dimension := NewDimension(
		olap.DimensionInfo{ID: "[Zone]"},
		metadata.HierarchyPath{},
		nil,
		[]olap.Property{{ID: "name", Type: olap.PropertyTypeStandard}, geometry},
	)

	property, found := dimension.GeoProperty()
	assert.True(t, found)
	assert.Equal(t, geometry, property)

	_, found = NewDimension(olap.DimensionInfo{}, metadata.HierarchyPath{}, nil, nil).GeoProperty()
	assert.False(t, found)
}

func TestCrossfilterHandlesRequireDataset(t *testing.T) {
	dimension := NewDimension(olap.DimensionInfo{ID: "[D]"}, metadata.HierarchyPath{}, nil, nil)

	_, err := dimension.CrossfilterDimension()
	assert.ErrorIs(t, err, errNoDataset)

	_, err = dimension.CrossfilterGroup(nil)
	assert.ErrorIs(t, err, errNoDataset)
}

func numberedMembers(prefix string, count int) olap.Members {
	members := make(olap.Members, count)
	for i := range count {
		id := fmt.Sprintf("%s.[%d]", prefix, i)
		members[id] = olap.Member{Caption: id}
	}
	return members
}
