package navigation_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"hermannm.dev/cubes/charts"
	"hermannm.dev/cubes/metadata"
	"hermannm.dev/cubes/navigation"
	"hermannm.dev/cubes/olap"
	"hermannm.dev/cubes/olap/olaptest"
	"hermannm.dev/cubes/query"
)

const (
	maxQuantity = "[Measures].[Max Quantity]"
	unitSales   = "[Measures].[Unit Sales]"
)

func newController(t *testing.T, api *olaptest.API, threshold int) *navigation.Controller {
	t.Helper()

	controller, err := navigation.NewController(navigation.Options{
		Cache:                      metadata.NewCache(api),
		Builder:                    query.NewBuilder(api),
		Charts:                     charts.NewFactory(),
		ClientAggregationThreshold: threshold,
	})
	require.NoError(t, err)
	return controller
}

func startAnalysis(t *testing.T) (*navigation.Controller, *olaptest.API) {
	t.Helper()

	api := olaptest.NewTrafficAPI()
	controller := newController(t, api, 0)
	require.NoError(t, controller.Init(context.Background(), navigation.Selection{}))
	return controller, api
}

func chartOfType(t *testing.T, controller *navigation.Controller, chartType string) navigation.Chart {
	t.Helper()

	for _, column := range controller.Charts() {
		for _, chart := range column {
			if chart.Type() == chartType {
				return chart
			}
		}
	}
	t.Fatalf("no %s chart in layout", chartType)
	return nil
}

func chartTypes(layout [][]navigation.Chart) [][]string {
	types := make([][]string, len(layout))
	for i, column := range layout {
		types[i] = []string{}
		for _, chart := range column {
			types[i] = append(types[i], chart.Type())
		}
	}
	return types
}

func TestInitPicksFirstCubeAndMeasure(t *testing.T) {
	controller, _ := startAnalysis(t)

	assert.Equal(t, olaptest.Schema, controller.Schema())
	assert.Equal(t, olaptest.Cube, controller.Cube().ID)
	assert.Equal(t, olaptest.Measure, controller.Measure().ID)
	assert.Equal(t, navigation.AggregationModeClient, controller.Mode())
	assert.Equal(t, 8, controller.CrossedMembers())

	var ids []string
	for _, dimension := range controller.Dimensions() {
		ids = append(ids, dimension.ID())
		assert.Equal(t, 0, dimension.CurrentLevel())
	}
	assert.Equal(
		t,
		[]string{olaptest.TimeDimension, olaptest.ZoneDimension, olaptest.ProductDimension},
		ids,
	)

	zone, err := controller.Dimension(olaptest.ZoneDimension)
	require.NoError(t, err)
	property, found := zone.GeoProperty()
	assert.True(t, found)
	assert.Equal(t, "geom", property.ID)

	assert.Equal(t, [][]string{
		{"wordcloudWithLegend", "wordcloudWithLegend", "wordcloudWithLegend"},
		{"map", "timeline", "table"},
		{"pie", "bar"},
	}, chartTypes(controller.Charts()))
}

func TestInitWithSelection(t *testing.T) {
	api := olaptest.NewTrafficAPI()
	controller := newController(t, api, 0)

	require.NoError(t, controller.Init(context.Background(), navigation.Selection{
		Schema: olaptest.Schema, Cube: "[Unknown]", Measure: unitSales,
	}))
	assert.Equal(t, olaptest.Cube, controller.Cube().ID)
	assert.Equal(t, unitSales, controller.Measure().ID)
}

func TestChartsRenderGroups(t *testing.T) {
	controller, _ := startAnalysis(t)

	table := chartOfType(t, controller, "table")
	data := table.Data().(charts.Data)
	assert.Equal(t, olaptest.ZoneDimension, data.Dimension)
	assert.Equal(t, "Country", data.Level)
	assert.Equal(t, olaptest.Measure, data.Measure)
	require.Len(t, data.Values, 2)
	assert.Equal(t, "France", data.Values[0].Caption)
	assert.Equal(t, 4.0, data.Values[0].Value)
}

func TestDrillDownAndRollUpSyncChartFilters(t *testing.T) {
	controller, _ := startAnalysis(t)
	ctx := context.Background()
	zoneMap := chartOfType(t, controller, "map")

	require.NoError(t, controller.Filter(ctx, olaptest.ZoneDimension, "[Zone].[France]", true))
	assert.True(t, zoneMap.Element().HasFilter("[Zone].[France]"))

	require.NoError(t, controller.DrillDown(
		ctx, olaptest.ZoneDimension, "[Zone].[France]", navigation.DrillModeSimple,
	))

	zone, err := controller.Dimension(olaptest.ZoneDimension)
	require.NoError(t, err)
	assert.Equal(t, 1, zone.CurrentLevel())
	assert.Equal(
		t,
		[]string{"[Zone].[France].[Alsace]", "[Zone].[France].[Bretagne]"},
		zone.LastSlice().IDs(),
	)
	assert.Empty(t, zone.Filters())
	assert.False(t, zoneMap.Element().HasFilter("[Zone].[France]"))
	assert.Equal(t, 8, controller.CrossedMembers())

	data := zoneMap.Data().(charts.Data)
	require.Len(t, data.Values, 2)
	assert.Equal(t, "Region", data.Level)
	assert.NotNil(t, data.Values[0].Geometry)

	require.NoError(t, controller.RollUp(ctx, olaptest.ZoneDimension, 1))
	assert.Equal(t, 0, zone.CurrentLevel())
	assert.Equal(t, []string{"[Zone].[France]"}, zone.Filters())
	assert.True(t, zoneMap.Element().HasFilter("[Zone].[France]"))
	assert.True(t, chartOfType(t, controller, "pie").Element().HasFilter("[Zone].[France]"))
}

func TestDrillAndRollOutsideBoundsDoNothing(t *testing.T) {
	controller, api := startAnalysis(t)
	ctx := context.Background()
	executed := len(api.Executed())

	require.NoError(t, controller.RollUp(ctx, olaptest.TimeDimension, 1))
	require.NoError(t, controller.DrillDown(
		ctx, olaptest.ProductDimension, "[Product].[Drink]", navigation.DrillModeSimple,
	))
	assert.Len(t, api.Executed(), executed)
}

func TestUnknownDimension(t *testing.T) {
	controller, _ := startAnalysis(t)

	err := controller.RollUp(context.Background(), "[Weather]", 1)
	assert.ErrorIs(t, err, olap.ErrDimensionNotInDatabase)
}

func TestFailedDrillDownKeepsDimension(t *testing.T) {
	controller, api := startAnalysis(t)
	failure := olap.ErrorReply(olap.ReplyStatusServerError, "backend down")
	api.ExecuteReply = &failure

	err := controller.DrillDown(
		context.Background(), olaptest.TimeDimension, "[Time].[2000]", navigation.DrillModeSimple,
	)
	assert.ErrorIs(t, err, olap.ErrQueryAPIServerError)

	timeDimension, err := controller.Dimension(olaptest.TimeDimension)
	require.NoError(t, err)
	assert.Equal(t, 0, timeDimension.CurrentLevel())
	assert.Empty(t, timeDimension.FiltersStack())
}

func TestSetAggregated(t *testing.T) {
	controller, _ := startAnalysis(t)
	ctx := context.Background()

	require.NoError(t, controller.SetAggregated(ctx, olaptest.TimeDimension, true))
	assert.Equal(t, 4, controller.CrossedMembers())

	require.NoError(t, controller.SetAggregated(ctx, olaptest.ZoneDimension, true))
	assert.Equal(t, 2, controller.CrossedMembers())

	err := controller.SetAggregated(ctx, olaptest.ProductDimension, true)
	assert.ErrorIs(t, err, navigation.ErrLastDimension)
	assert.Equal(t, 2, controller.CrossedMembers())

	require.NoError(t, controller.SetAggregated(ctx, olaptest.TimeDimension, false))
	assert.Equal(t, 4, controller.CrossedMembers())
}

func TestAggregatingRollsUpDimension(t *testing.T) {
	controller, _ := startAnalysis(t)
	ctx := context.Background()

	require.NoError(t, controller.DrillDown(
		ctx, olaptest.TimeDimension, "[Time].[2000]", navigation.DrillModeSimple,
	))
	require.NoError(t, controller.Filter(ctx, olaptest.TimeDimension, "[Time].[2000].[Q1]", true))

	require.NoError(t, controller.SetAggregated(ctx, olaptest.TimeDimension, true))
	timeDimension, err := controller.Dimension(olaptest.TimeDimension)
	require.NoError(t, err)
	assert.True(t, timeDimension.Aggregated())
	assert.Equal(t, 0, timeDimension.CurrentLevel())
	assert.Empty(t, timeDimension.Filters())
}

func TestServerModeAboveThreshold(t *testing.T) {
	api := olaptest.NewTrafficAPI()
	controller := newController(t, api, 8)
	ctx := context.Background()

	require.NoError(t, controller.Init(ctx, navigation.Selection{}))
	assert.Equal(t, navigation.AggregationModeServer, controller.Mode())

	data := chartOfType(t, controller, "table").Data().(charts.Data)
	require.Len(t, data.Values, 2)
	assert.Equal(t, "[Zone].[France]", data.Values[0].Key)

	require.NoError(t, controller.SetAggregated(ctx, olaptest.ProductDimension, true))
	assert.Equal(t, navigation.AggregationModeClient, controller.Mode())
}

func TestAggregatedDimensionInServerMode(t *testing.T) {
	api := olaptest.NewTrafficAPI()
	controller := newController(t, api, 2)
	ctx := context.Background()

	require.NoError(t, controller.Init(ctx, navigation.Selection{}))
	require.NoError(t, controller.SetAggregated(ctx, olaptest.TimeDimension, true))
	assert.Equal(t, navigation.AggregationModeServer, controller.Mode())

	require.NoError(t, controller.DrillDown(
		ctx, olaptest.ZoneDimension, "[Zone].[France]", navigation.DrillModeSimple,
	))
	assert.Equal(t, navigation.AggregationModeServer, controller.Mode())

	zoneDimension, err := controller.Dimension(olaptest.ZoneDimension)
	require.NoError(t, err)
	assert.Equal(t, 1, zoneDimension.CurrentLevel())

	var timeData, zoneData charts.Data
	for _, chart := range controller.Charts()[0] {
		data := chart.Data().(charts.Data)
		switch data.Dimension {
		case olaptest.TimeDimension:
			timeData = data
		case olaptest.ZoneDimension:
			zoneData = data
		}
	}
	require.Len(t, timeData.Values, 1)
	assert.Equal(t, "", timeData.Values[0].Key)
	assert.Len(t, zoneData.Values, 2)
}

// failingFactory creates charts through charts.Factory, whose renders fail while fail is set.
type failingFactory struct {
	*charts.Factory
	fail *atomic.Bool
}

func (factory failingFactory) NewChart(
	kind string,
	dimensions []*navigation.Dimension,
	extraMeasures []olap.Measure,
	options json.RawMessage,
) (navigation.Chart, error) {
	chart, err := factory.Factory.NewChart(kind, dimensions, extraMeasures, options)
	if err != nil {
		return nil, err
	}
	return failingChart{Chart: chart, fail: factory.fail}, nil
}

type failingChart struct {
	navigation.Chart
	fail *atomic.Bool
}

func (chart failingChart) Render(ctx context.Context) error {
	if chart.fail.Load() {
		return errors.New("render failed")
	}
	return chart.Chart.Render(ctx)
}

func TestFailedRenderRevertsDimension(t *testing.T) {
	api := olaptest.NewTrafficAPI()
	fail := &atomic.Bool{}
	controller, err := navigation.NewController(navigation.Options{
		Cache:   metadata.NewCache(api),
		Builder: query.NewBuilder(api),
		Charts:  failingFactory{Factory: charts.NewFactory(), fail: fail},
	})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, controller.Init(ctx, navigation.Selection{}))
	_, err = controller.AddChart(ctx, 2, 0, navigation.ChartState{
		Type:       "bar",
		Dimensions: []string{olaptest.TimeDimension},
	})
	require.NoError(t, err)
	require.NoError(t, controller.Filter(ctx, olaptest.TimeDimension, "[Time].[2001]", true))

	fail.Store(true)
	executed := len(api.Executed())

	err = controller.DrillDown(
		ctx, olaptest.TimeDimension, "[Time].[2000]", navigation.DrillModeSimple,
	)
	assert.ErrorContains(t, err, "render failed")

	timeDimension, err := controller.Dimension(olaptest.TimeDimension)
	require.NoError(t, err)
	assert.Equal(t, 0, timeDimension.CurrentLevel())
	assert.Empty(t, timeDimension.FiltersStack())
	assert.Equal(t, []string{"[Time].[2001]"}, timeDimension.Filters())
	// Loaded once for the drill, once for the revert.
	assert.Len(t, api.Executed(), executed+2)

	err = controller.SetAggregated(ctx, olaptest.TimeDimension, true)
	assert.ErrorContains(t, err, "render failed")
	assert.False(t, timeDimension.Aggregated())
	assert.Equal(t, []string{"[Time].[2001]"}, timeDimension.Filters())

	fail.Store(false)
	require.NoError(t, controller.DrillDown(
		ctx, olaptest.TimeDimension, "[Time].[2000]", navigation.DrillModeSimple,
	))
	assert.Equal(t, 1, timeDimension.CurrentLevel())
}

func TestSetMeasureReloads(t *testing.T) {
	controller, api := startAnalysis(t)
	ctx := context.Background()
	executed := len(api.Executed())

	require.NoError(t, controller.SetCubeAndMeasure(ctx, olaptest.Cube, unitSales))
	assert.Equal(t, unitSales, controller.Measure().ID)
	assert.Len(t, api.Executed(), executed+1)
	assert.Equal(t, unitSales, chartOfType(t, controller, "bar").Data().(charts.Data).Measure)

	err := controller.SetMeasure(ctx, "[Measures].[Unknown]")
	assert.ErrorIs(t, err, olap.ErrDimensionNotInDatabase)
	assert.Equal(t, unitSales, controller.Measure().ID)
}

func TestAddChartLoadsMissingMeasures(t *testing.T) {
	controller, api := startAnalysis(t)
	ctx := context.Background()
	executed := len(api.Executed())

	bubble, err := controller.AddChart(ctx, 2, 0, navigation.ChartState{
		Type:          "bubble",
		Dimensions:    []string{olaptest.ProductDimension},
		ExtraMeasures: []string{maxQuantity, unitSales},
	})
	require.NoError(t, err)
	assert.Len(t, api.Executed(), executed+1)
	assert.Equal(t, []string{maxQuantity, unitSales}, controller.ExtraMeasuresUsed())

	data := bubble.Data().(charts.Data)
	require.Len(t, data.Values, 2)
	assert.Equal(t, map[string]float64{
		olaptest.Measure: 4, maxQuantity: 4, unitSales: 4,
	}, data.Values[0].Measures)

	_, err = controller.AddChart(ctx, 1, 0, navigation.ChartState{
		Type:       "pie",
		Dimensions: []string{olaptest.ProductDimension},
	})
	require.NoError(t, err)
	assert.Len(t, api.Executed(), executed+1, "pie needs no new measure")

	_, err = controller.AddChart(ctx, 1, 0, navigation.ChartState{
		Type:       "map",
		Dimensions: []string{olaptest.ProductDimension},
	})
	assert.ErrorAs(t, err, &charts.UnsupportedChartError{})

	assert.Equal(t, [][]string{
		{"wordcloudWithLegend", "wordcloudWithLegend", "wordcloudWithLegend"},
		{"pie", "map", "timeline", "table"},
		{"bubble", "pie", "bar"},
	}, chartTypes(controller.Charts()))
}

func TestOverlappingOperationsAreRejected(t *testing.T) {
	api := olaptest.NewTrafficAPI()
	api.Gate = make(chan struct{})
	controller := newController(t, api, 0)
	ctx := context.Background()

	initErr := make(chan error)
	go func() {
		initErr <- controller.Init(ctx, navigation.Selection{})
	}()

	require.Eventually(t, func() bool {
		err := controller.FilterAll(ctx)
		return err != nil && assert.ErrorIs(t, err, olap.ErrOperationInProgress)
	}, time.Second, time.Millisecond)

	close(api.Gate)
	require.NoError(t, <-initErr)
	require.NoError(t, controller.FilterAll(ctx))
}

func TestStateRoundTrip(t *testing.T) {
	controller, _ := startAnalysis(t)
	ctx := context.Background()

	controller.SetColumnWidths([]float64{20, 40, 40})
	require.NoError(t, controller.Filter(ctx, olaptest.ProductDimension, "[Product].[Drink]", true))
	require.NoError(t, controller.Filter(ctx, olaptest.ZoneDimension, "[Zone].[France]", true))
	require.NoError(t, controller.DrillDown(
		ctx, olaptest.ZoneDimension, "[Zone].[France]", navigation.DrillModeSimple,
	))
	_, err := controller.AddChart(ctx, 2, 0, navigation.ChartState{
		Type:          "bubble",
		Dimensions:    []string{olaptest.ProductDimension},
		ExtraMeasures: []string{maxQuantity, unitSales},
	})
	require.NoError(t, err)

	state, err := controller.State()
	require.NoError(t, err)
	assert.Equal(t, []navigation.ChartState{}, state.Charts[0])
	require.Len(t, state.Dimensions, 3)
	assert.Equal(t, navigation.DimensionState{
		ID:           olaptest.ZoneDimension,
		Hierarchy:    olaptest.ZoneHierarchy,
		Filters:      []string{},
		Properties:   []string{"geom"},
		MembersStack: [][]string{
			{"[Zone].[France]", "[Zone].[Spain]"},
			{"[Zone].[France].[Alsace]", "[Zone].[France].[Bretagne]"},
		},
		FiltersStack: [][]string{{"[Zone].[France]"}},
	}, state.Dimensions[1])

	encoded, err := json.Marshal(state)
	require.NoError(t, err)
	var decoded navigation.State
	require.NoError(t, json.Unmarshal(encoded, &decoded))

	restoredAPI := olaptest.NewTrafficAPI()
	restored := newController(t, restoredAPI, 0)
	require.NoError(t, restored.Restore(ctx, decoded))

	restoredState, err := restored.State()
	require.NoError(t, err)
	assert.Equal(t, state, restoredState)
	assert.Equal(t, 1, restoredAPI.ExploreCalls(
		olaptest.Schema, olaptest.Cube, olaptest.ZoneDimension, olaptest.ZoneHierarchy,
		olaptest.RegionLevel,
	))

	zone, err := restored.Dimension(olaptest.ZoneDimension)
	require.NoError(t, err)
	assert.Equal(t, "Bretagne", zone.LastSlice()["[Zone].[France].[Bretagne]"].Caption)

	product := chartOfType(t, restored, "bubble")
	assert.True(t, product.Element().HasFilter("[Product].[Drink]"))
	assert.Equal(t, [][]string{
		{"wordcloudWithLegend", "wordcloudWithLegend", "wordcloudWithLegend"},
		{"map", "timeline", "table"},
		{"bubble", "pie", "bar"},
	}, chartTypes(restored.Charts()))
}

func TestRestoreUnknownCubeKeepsAnalysis(t *testing.T) {
	controller, _ := startAnalysis(t)
	state, err := controller.State()
	require.NoError(t, err)

	state.Cube = "[Weather]"
	err = controller.Restore(context.Background(), state)
	assert.ErrorIs(t, err, olap.ErrCubeNotInDatabase)
	assert.Equal(t, olaptest.Cube, controller.Cube().ID)
}

func TestRestoreRejectsInvalidState(t *testing.T) {
	controller, _ := startAnalysis(t)

	err := controller.Restore(context.Background(), navigation.State{Schema: olaptest.Schema})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing cube")
	assert.Equal(t, olaptest.Cube, controller.Cube().ID)
}

func TestPlayerFiltersTimeline(t *testing.T) {
	controller, _ := startAnalysis(t)
	timeline := chartOfType(t, controller, "timeline")

	player, err := controller.Player(timeline.ID())
	require.NoError(t, err)
	assert.Equal(t, 300*time.Millisecond, player.Timeout())
	player.SetTimeout(time.Millisecond)

	done := make(chan struct{})
	player.OnFinish(func() { close(done) })
	player.Start(context.Background())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for player")
	}

	dimension, err := controller.Dimension(olaptest.TimeDimension)
	require.NoError(t, err)
	assert.Equal(t, []string{"[Time].[2001]"}, dimension.Filters())
	assert.True(t, timeline.Element().HasFilter("[Time].[2001]"))
	assert.False(t, timeline.Element().HasFilter("[Time].[2000]"))
}
