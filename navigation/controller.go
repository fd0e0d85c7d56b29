// Package navigation holds the state of an analysis: the dimensions being navigated, the
// charts displaying them, and the dataset loaded for them.
package navigation

import (
	"context"
	"errors"
	"slices"
	"sync"

	"hermannm.dev/cubes/metadata"
	"hermannm.dev/cubes/olap"
	"hermannm.dev/cubes/query"
	"hermannm.dev/devlog/log"
	"hermannm.dev/wrap"
)

// Number of chart columns of the layout. The first column holds one word cloud per
// dimension.
const ChartColumns = 3

var ErrLastDimension = errors.New("at least one other dimension must stay non-aggregated")

type Options struct {
	Cache   *metadata.Cache
	Builder *query.Builder
	Charts  ChartFactory
	// Defaults to DefaultClientAggregationThreshold.
	ClientAggregationThreshold int
}

// Selection is the schema, cube and measure to start an analysis with. Unset or unknown
// values fall back to the first one available.
type Selection struct {
	Schema  string `json:"schema"`
	Cube    string `json:"cube"`
	Measure string `json:"measure"`
}

// Controller runs navigation operations on an analysis. Operations that modify the
// analysis fail with olap.ErrOperationInProgress while another one is running, and leave
// the analysis as it was when they fail.
type Controller struct {
	lock sync.Mutex

	cache  *metadata.Cache
	loader *DataLoader
	charts ChartFactory

	analysis
}

type analysis struct {
	schema       string
	cube         olap.Cube
	measure      olap.Measure
	dimensions   []*Dimension
	layout       [][]Chart
	columnWidths []float64
}

func NewController(options Options) (*Controller, error) {
	if options.Cache == nil {
		return nil, errors.New("navigation controller requires a metadata cache")
	}
	if options.Builder == nil {
		return nil, errors.New("navigation controller requires a query builder")
	}
	if options.Charts == nil {
		return nil, errors.New("navigation controller requires a chart factory")
	}

	return &Controller{
		cache:  options.Cache,
		loader: NewDataLoader(options.Builder, options.ClientAggregationThreshold),
		charts: options.Charts,
	}, nil
}

func (controller *Controller) tryLock() error {
	if !controller.lock.TryLock() {
		return olap.NewError(
			olap.ErrorKindOperationInProgress, "another navigation operation is in progress",
		)
	}
	return nil
}

// Init starts a new analysis on the selected cube and measure, with every dimension at its
// first level and the default chart layout.
func (controller *Controller) Init(ctx context.Context, selection Selection) error {
	if err := controller.tryLock(); err != nil {
		return err
	}
	defer controller.lock.Unlock()

	return controller.init(ctx, selection)
}

func (controller *Controller) init(ctx context.Context, selection Selection) error {
	schema, cube, measure, err := controller.initMeasure(ctx, selection)
	if err != nil {
		return err
	}

	dimensions, err := controller.initDimensions(ctx, schema, cube.ID)
	if err != nil {
		return err
	}

	var geoDimension, timeDimension *Dimension
	for _, dimension := range dimensions {
		switch dimension.Type() {
		case olap.DimensionTypeGeometry:
			if geoDimension == nil {
				geoDimension = dimension
			}
		case olap.DimensionTypeTime:
			if timeDimension == nil {
				timeDimension = dimension
			}
		}
	}
	if geoDimension == nil && len(dimensions) > 0 {
		geoDimension = dimensions[0]
	}

	layout, err := controller.charts.DefaultLayout(dimensions, geoDimension, timeDimension)
	if err != nil {
		return wrap.Error(err, "failed to create default chart layout")
	}

	if err := controller.install(ctx, analysis{
		schema:       schema,
		cube:         cube,
		measure:      measure,
		dimensions:   dimensions,
		layout:       normalizeLayout(layout),
		columnWidths: controller.columnWidths,
	}); err != nil {
		return err
	}

	log.Infof("started analysis of cube '%s' with measure '%s'", cube.ID, measure.ID)
	return nil
}

func (controller *Controller) initMeasure(
	ctx context.Context,
	selection Selection,
) (schema string, cube olap.Cube, measure olap.Measure, err error) {
	schemas, err := controller.cache.Schemas(ctx)
	if err != nil {
		return "", olap.Cube{}, olap.Measure{}, wrap.Error(err, "failed to get schemas")
	}
	if len(schemas) == 0 {
		return "", olap.Cube{}, olap.Measure{}, olap.NewError(
			olap.ErrorKindSchemaNotInDatabase, "query API has no schemas",
		)
	}
	schema = schemas[0].ID
	for _, candidate := range schemas {
		if candidate.ID == selection.Schema {
			schema = candidate.ID
		}
	}

	cubes, err := controller.cache.CubesAndMeasures(ctx, schema)
	if err != nil {
		return "", olap.Cube{}, olap.Measure{}, wrap.Errorf(
			err, "failed to get cubes of schema '%s'", schema,
		)
	}
	if len(cubes) == 0 {
		return "", olap.Cube{}, olap.Measure{}, olap.NewError(
			olap.ErrorKindCubeNotInDatabase, "schema '%s' has no cubes", schema,
		)
	}
	selected := cubes[0]
	for _, candidate := range cubes {
		if candidate.Cube.ID == selection.Cube {
			selected = candidate
		}
	}

	if len(selected.Measures) == 0 {
		return "", olap.Cube{}, olap.Measure{}, olap.NewError(
			olap.ErrorKindDimensionNotInDatabase, "cube '%s' has no measures", selected.Cube.ID,
		)
	}
	measure = selected.Measures[0]
	for _, candidate := range selected.Measures {
		if candidate.ID == selection.Measure {
			measure = candidate
		}
	}

	return schema, selected.Cube, measure, nil
}

func (controller *Controller) initDimensions(
	ctx context.Context,
	schema string,
	cube string,
) ([]*Dimension, error) {
	infos, err := controller.cache.Dimensions(ctx, schema, cube)
	if err != nil {
		return nil, wrap.Errorf(err, "failed to get dimensions of cube '%s'", cube)
	}

	geoDimension, err := controller.cache.GeoDimension(ctx, schema, cube)
	if err != nil && !errors.Is(err, olap.ErrDimensionNotInDatabase) {
		return nil, wrap.Errorf(err, "failed to get geographic dimension of cube '%s'", cube)
	}

	dimensions := make([]*Dimension, 0, len(infos))
	for _, info := range infos {
		hierarchies, err := controller.cache.Hierarchies(ctx, schema, cube, info.ID)
		if err != nil {
			return nil, wrap.Errorf(err, "failed to get hierarchies of dimension '%s'", info.ID)
		}
		if len(hierarchies) == 0 {
			return nil, olap.NewError(
				olap.ErrorKindHierarchyNotInDatabase, "dimension '%s' has no hierarchy", info.ID,
			)
		}
		path := metadata.HierarchyPath{
			Schema:    schema,
			Cube:      cube,
			Dimension: info.ID,
			Hierarchy: hierarchies[0].ID,
		}

		levels, err := controller.cache.Levels(ctx, path)
		if err != nil {
			return nil, wrap.Errorf(err, "failed to get levels of hierarchy '%s'", path.Hierarchy)
		}

		var properties []olap.Property
		if info.ID == geoDimension {
			property, found, err := controller.cache.GeoProperty(ctx, path)
			if err != nil {
				return nil, wrap.Errorf(
					err, "failed to get geometry property of hierarchy '%s'", path.Hierarchy,
				)
			}
			if found {
				properties = append(properties, property)
			}
		}

		dimension := NewDimension(info, path, levels, properties)
		members, err := controller.cache.Members(ctx, metadata.MembersRequest{
			Path:           path,
			Level:          0,
			WithProperties: len(properties) > 0,
		})
		if err != nil {
			return nil, wrap.Errorf(err, "failed to get members of dimension '%s'", info.ID)
		}
		dimension.AddSlice(members)

		dimensions = append(dimensions, dimension)
	}

	return dimensions, nil
}

// install loads the dataset of the new analysis, then replaces the current analysis with
// it.
func (controller *Controller) install(ctx context.Context, next analysis) error {
	previous := controller.analysis

	controller.loader.SetCube(next.schema, next.cube.ID, next.measure.ID)
	if _, err := controller.loader.Load(ctx, next.dimensions, extraMeasuresOf(next.layout)); err != nil {
		controller.loader.SetCube(previous.schema, previous.cube.ID, previous.measure.ID)
		return err
	}

	for _, dimension := range previous.dimensions {
		dimension.disposeHandles()
	}
	controller.analysis = next

	if err := controller.filterChartsAsDimensionsState(); err != nil {
		return err
	}
	return controller.renderAll(ctx)
}

// SetCubeAndMeasure starts a new analysis when the cube changes, or reloads the current one
// with the new measure.
func (controller *Controller) SetCubeAndMeasure(
	ctx context.Context,
	cube string,
	measure string,
) error {
	if err := controller.tryLock(); err != nil {
		return err
	}
	defer controller.lock.Unlock()

	if cube != controller.cube.ID {
		return controller.init(ctx, Selection{
			Schema: controller.schema, Cube: cube, Measure: measure,
		})
	}
	return controller.setMeasure(ctx, measure)
}

func (controller *Controller) SetMeasure(ctx context.Context, measure string) error {
	if err := controller.tryLock(); err != nil {
		return err
	}
	defer controller.lock.Unlock()

	return controller.setMeasure(ctx, measure)
}

func (controller *Controller) setMeasure(ctx context.Context, measureID string) error {
	if measureID == controller.measure.ID {
		return nil
	}
	if controller.cube.ID == "" {
		return olap.NewError(olap.ErrorKindNoCubeDrilled, "no analysis started")
	}

	measures, err := controller.cache.Measures(ctx, controller.schema, controller.cube.ID)
	if err != nil {
		return wrap.Errorf(err, "failed to get measures of cube '%s'", controller.cube.ID)
	}
	index := slices.IndexFunc(measures, func(measure olap.Measure) bool {
		return measure.ID == measureID
	})
	if index == -1 {
		return olap.NewError(
			olap.ErrorKindDimensionNotInDatabase,
			"measure '%s' not found in cube '%s'", measureID, controller.cube.ID,
		)
	}

	next := controller.analysis
	next.measure = measures[index]
	return controller.install(ctx, next)
}

// DrillDown drills the dimension down from the member, reloads the dataset and removes the
// filters of the dimension. Does nothing when the dimension is at its last level.
func (controller *Controller) DrillDown(
	ctx context.Context,
	dimensionID string,
	member string,
	mode DrillMode,
) error {
	if err := controller.tryLock(); err != nil {
		return err
	}
	defer controller.lock.Unlock()

	dimension, err := controller.dimension(dimensionID)
	if err != nil {
		return err
	}
	if !mode.IsValid() {
		mode = DrillModeSimple
	}

	saved := dimension.snapshot()
	drilled, err := dimension.DrillDown(ctx, controller.cache, member, mode)
	if err != nil || !drilled {
		return err
	}

	if err := controller.load(ctx); err != nil {
		dimension.restore(saved)
		return err
	}

	if err := controller.filterAllChartsUsingDimension(dimension); err != nil {
		return controller.revert(ctx, dimension, saved, err)
	}
	if err := controller.renderAll(ctx); err != nil {
		return controller.revert(ctx, dimension, saved, err)
	}
	return nil
}

// RollUp rolls the dimension up by the given number of levels, clamped to the levels it can
// roll up, and reloads the dataset with the filters the dimension had before drilling.
func (controller *Controller) RollUp(ctx context.Context, dimensionID string, levels int) error {
	if err := controller.tryLock(); err != nil {
		return err
	}
	defer controller.lock.Unlock()

	dimension, err := controller.dimension(dimensionID)
	if err != nil {
		return err
	}
	if !dimension.IsRollPossible() {
		return nil
	}

	saved := dimension.snapshot()
	if err := controller.filterAllChartsUsingDimension(dimension); err != nil {
		return err
	}
	if dimension.RollUp(levels) == 0 {
		dimension.restore(saved)
		return controller.filterChartsAsDimensionsState()
	}

	if err := controller.load(ctx); err != nil {
		dimension.restore(saved)
		if syncErr := controller.filterChartsAsDimensionsState(); syncErr != nil {
			log.ErrorCause(syncErr, "failed to restore chart filters")
		}
		return err
	}

	if err := controller.filterChartsAsDimensionsState(); err != nil {
		return controller.revert(ctx, dimension, saved, err)
	}
	if err := controller.renderAll(ctx); err != nil {
		return controller.revert(ctx, dimension, saved, err)
	}
	return nil
}

// SetAggregated includes or excludes the dimension from the crossed members of the dataset.
// An aggregated dimension is rolled up to its first level and loses its filters.
func (controller *Controller) SetAggregated(
	ctx context.Context,
	dimensionID string,
	aggregated bool,
) error {
	if err := controller.tryLock(); err != nil {
		return err
	}
	defer controller.lock.Unlock()

	dimension, err := controller.dimension(dimensionID)
	if err != nil {
		return err
	}
	if dimension.aggregated == aggregated {
		return nil
	}

	if aggregated {
		nonAggregated := 0
		for _, other := range controller.dimensions {
			if !other.aggregated {
				nonAggregated++
			}
		}
		if nonAggregated < 2 {
			return wrap.Errorf(ErrLastDimension, "cannot aggregate dimension '%s'", dimensionID)
		}
	}

	saved := dimension.snapshot()
	if aggregated {
		if err := controller.filterAllChartsUsingDimension(dimension); err != nil {
			return err
		}
		dimension.RollUp(dimension.RollsPossible())
		dimension.filters = nil
	}
	dimension.aggregated = aggregated

	if err := controller.load(ctx); err != nil {
		dimension.restore(saved)
		if syncErr := controller.filterChartsAsDimensionsState(); syncErr != nil {
			log.ErrorCause(syncErr, "failed to restore chart filters")
		}
		return err
	}
	if err := controller.renderAll(ctx); err != nil {
		return controller.revert(ctx, dimension, saved, err)
	}
	return nil
}

// Filter adds the member to the filters of the dimension and of the charts using it, or
// removes it if add is false.
func (controller *Controller) Filter(
	ctx context.Context,
	dimensionID string,
	member string,
	add bool,
) error {
	if err := controller.tryLock(); err != nil {
		return err
	}
	defer controller.lock.Unlock()

	dimension, err := controller.dimension(dimensionID)
	if err != nil {
		return err
	}

	if err := dimension.Filter(member, add); err != nil {
		return err
	}
	for _, chart := range controller.chartsUsingDimension(dimension) {
		element := chart.Element()
		if element.HasFilter(member) != add {
			if err := element.Filter(member); err != nil {
				return wrap.Errorf(err, "failed to filter chart '%s'", chart.ID())
			}
		}
	}
	return controller.redrawAll(ctx)
}

// FilterAll removes the filters of every dimension.
func (controller *Controller) FilterAll(ctx context.Context) error {
	if err := controller.tryLock(); err != nil {
		return err
	}
	defer controller.lock.Unlock()

	for _, dimension := range controller.dimensions {
		if err := controller.filterAllChartsUsingDimension(dimension); err != nil {
			return err
		}
	}
	return controller.redrawAll(ctx)
}

// AddChart creates a chart and inserts it at the given position, bounded to the layout.
func (controller *Controller) AddChart(
	ctx context.Context,
	column int,
	offset int,
	config ChartState,
) (Chart, error) {
	if err := controller.tryLock(); err != nil {
		return nil, err
	}
	defer controller.lock.Unlock()

	chart, err := controller.newChart(ctx, config, controller.dimensions)
	if err != nil {
		return nil, err
	}

	if len(controller.layout) == 0 {
		controller.layout = make([][]Chart, ChartColumns)
	}
	column = max(0, min(len(controller.layout)-1, column))
	offset = max(0, min(len(controller.layout[column]), offset))
	controller.layout[column] = slices.Insert(controller.layout[column], offset, chart)

	if err := controller.loadIfNeeded(ctx, chart); err != nil {
		controller.layout[column] = slices.Delete(controller.layout[column], offset, offset+1)
		return nil, err
	}
	return chart, nil
}

// UpdateChart replaces the chart by one created from the config, at the same position.
func (controller *Controller) UpdateChart(
	ctx context.Context,
	chartID string,
	config ChartState,
) (Chart, error) {
	if err := controller.tryLock(); err != nil {
		return nil, err
	}
	defer controller.lock.Unlock()

	column, offset, found := controller.chartPosition(chartID)
	if !found {
		return nil, ChartNotFoundError{ChartID: chartID}
	}

	chart, err := controller.newChart(ctx, config, controller.dimensions)
	if err != nil {
		return nil, err
	}

	previous := controller.layout[column][offset]
	controller.layout[column][offset] = chart
	if err := controller.loadIfNeeded(ctx, chart); err != nil {
		controller.layout[column][offset] = previous
		return nil, err
	}
	return chart, nil
}

func (controller *Controller) RemoveChart(chartID string) error {
	if err := controller.tryLock(); err != nil {
		return err
	}
	defer controller.lock.Unlock()

	column, offset, found := controller.chartPosition(chartID)
	if !found {
		return ChartNotFoundError{ChartID: chartID}
	}
	controller.layout[column] = slices.Delete(controller.layout[column], offset, offset+1)
	return nil
}

// loadIfNeeded loads the dataset if the chart needs a measure that is not loaded, and
// renders the charts.
func (controller *Controller) loadIfNeeded(ctx context.Context, chart Chart) error {
	_, loaded, err := controller.loader.LoadIfNeeded(
		ctx, controller.dimensions, controller.extraMeasuresUsed(),
	)
	if err != nil {
		return err
	}
	if loaded {
		return controller.renderAll(ctx)
	}
	return chart.Render(ctx)
}

func (controller *Controller) SetColumnWidths(widths []float64) {
	controller.lock.Lock()
	defer controller.lock.Unlock()
	controller.columnWidths = slices.Clone(widths)
}

func (controller *Controller) Schema() string {
	controller.lock.Lock()
	defer controller.lock.Unlock()
	return controller.schema
}

func (controller *Controller) Cube() olap.Cube {
	controller.lock.Lock()
	defer controller.lock.Unlock()
	return controller.cube
}

func (controller *Controller) Measure() olap.Measure {
	controller.lock.Lock()
	defer controller.lock.Unlock()
	return controller.measure
}

func (controller *Controller) Mode() AggregationMode {
	controller.lock.Lock()
	defer controller.lock.Unlock()
	return controller.loader.Mode()
}

func (controller *Controller) CrossedMembers() int {
	controller.lock.Lock()
	defer controller.lock.Unlock()
	return CrossedMembers(controller.dimensions)
}

func (controller *Controller) Dimensions() []*Dimension {
	controller.lock.Lock()
	defer controller.lock.Unlock()
	return slices.Clone(controller.dimensions)
}

func (controller *Controller) Dimension(id string) (*Dimension, error) {
	controller.lock.Lock()
	defer controller.lock.Unlock()
	return controller.dimension(id)
}

func (controller *Controller) dimension(id string) (*Dimension, error) {
	for _, dimension := range controller.dimensions {
		if dimension.ID() == id {
			return dimension, nil
		}
	}
	return nil, olap.NewError(
		olap.ErrorKindDimensionNotInDatabase, "dimension '%s' is not part of the analysis", id,
	)
}

// Read calls read with the dimensions and chart layout of the analysis, while no operation
// or player step can modify them. Read must not call other methods of the controller.
func (controller *Controller) Read(read func(dimensions []*Dimension, layout [][]Chart)) {
	controller.lock.Lock()
	defer controller.lock.Unlock()
	read(controller.dimensions, controller.layout)
}

// Charts returns the charts of the layout, by column.
func (controller *Controller) Charts() [][]Chart {
	controller.lock.Lock()
	defer controller.lock.Unlock()

	layout := make([][]Chart, len(controller.layout))
	for i, column := range controller.layout {
		layout[i] = slices.Clone(column)
	}
	return layout
}

func (controller *Controller) Chart(id string) (Chart, error) {
	controller.lock.Lock()
	defer controller.lock.Unlock()

	column, offset, found := controller.chartPosition(id)
	if !found {
		return nil, ChartNotFoundError{ChartID: id}
	}
	return controller.layout[column][offset], nil
}

func (controller *Controller) chartPosition(id string) (column int, offset int, found bool) {
	for i, charts := range controller.layout {
		for j, chart := range charts {
			if chart.ID() == id {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}

func (controller *Controller) ChartsUsingDimension(dimensionID string) ([]Chart, error) {
	controller.lock.Lock()
	defer controller.lock.Unlock()

	dimension, err := controller.dimension(dimensionID)
	if err != nil {
		return nil, err
	}
	return controller.chartsUsingDimension(dimension), nil
}

func (controller *Controller) chartsUsingDimension(dimension *Dimension) []Chart {
	var charts []Chart
	for _, column := range controller.layout {
		for _, chart := range column {
			if slices.Contains(chart.Dimensions(), dimension) {
				charts = append(charts, chart)
			}
		}
	}
	return charts
}

// ExtraMeasuresUsed returns the IDs of the extra measures of all charts.
func (controller *Controller) ExtraMeasuresUsed() []string {
	controller.lock.Lock()
	defer controller.lock.Unlock()
	return controller.extraMeasuresUsed()
}

func (controller *Controller) extraMeasuresUsed() []string {
	return extraMeasuresOf(controller.layout)
}

func extraMeasuresOf(layout [][]Chart) []string {
	var measures []string
	for _, column := range layout {
		for _, chart := range column {
			for _, measure := range chart.ExtraMeasures() {
				if !slices.Contains(measures, measure.ID) {
					measures = append(measures, measure.ID)
				}
			}
		}
	}
	return measures
}

func (controller *Controller) load(ctx context.Context) error {
	_, err := controller.loader.Load(ctx, controller.dimensions, controller.extraMeasuresUsed())
	return err
}

func (controller *Controller) renderAll(ctx context.Context) error {
	for _, column := range controller.layout {
		for _, chart := range column {
			if err := chart.Render(ctx); err != nil {
				return wrap.Errorf(err, "failed to render chart '%s'", chart.ID())
			}
		}
	}
	return nil
}

func (controller *Controller) redrawAll(ctx context.Context) error {
	for _, column := range controller.layout {
		for _, chart := range column {
			if err := chart.Redraw(ctx); err != nil {
				return wrap.Errorf(err, "failed to redraw chart '%s'", chart.ID())
			}
		}
	}
	return nil
}

// filterAllChartsUsingDimension removes the filters of the dimension and of the charts
// using it.
func (controller *Controller) filterAllChartsUsingDimension(dimension *Dimension) error {
	if err := dimension.SetFilters(nil); err != nil {
		return err
	}
	for _, chart := range controller.chartsUsingDimension(dimension) {
		if err := chart.Element().FilterAll(); err != nil {
			return wrap.Errorf(err, "failed to remove filters of chart '%s'", chart.ID())
		}
	}
	return nil
}

// filterChartsAsDimensionsState applies the filters of every dimension to the charts
// using it.
func (controller *Controller) filterChartsAsDimensionsState() error {
	for _, dimension := range controller.dimensions {
		filters := dimension.Filters()
		for _, chart := range controller.chartsUsingDimension(dimension) {
			element := chart.Element()
			for _, filter := range filters {
				if element.HasFilter(filter) {
					continue
				}
				if err := element.Filter(filter); err != nil {
					return wrap.Errorf(err, "failed to filter chart '%s'", chart.ID())
				}
			}
		}
	}
	return nil
}

func (controller *Controller) newChart(
	ctx context.Context,
	config ChartState,
	dimensions []*Dimension,
) (Chart, error) {
	chartDimensions := make([]*Dimension, 0, len(config.Dimensions))
	for _, id := range config.Dimensions {
		index := slices.IndexFunc(dimensions, func(dimension *Dimension) bool {
			return dimension.ID() == id
		})
		if index == -1 {
			return nil, olap.NewError(
				olap.ErrorKindDimensionNotInDatabase, "dimension '%s' is not part of the analysis", id,
			)
		}
		chartDimensions = append(chartDimensions, dimensions[index])
	}

	var extraMeasures []olap.Measure
	if len(config.ExtraMeasures) > 0 {
		measures, err := controller.cache.Measures(ctx, controller.schema, controller.cube.ID)
		if err != nil {
			return nil, wrap.Errorf(err, "failed to get measures of cube '%s'", controller.cube.ID)
		}
		for _, id := range config.ExtraMeasures {
			index := slices.IndexFunc(measures, func(measure olap.Measure) bool {
				return measure.ID == id
			})
			if index == -1 {
				return nil, olap.NewError(
					olap.ErrorKindDimensionNotInDatabase,
					"measure '%s' not found in cube '%s'", id, controller.cube.ID,
				)
			}
			extraMeasures = append(extraMeasures, measures[index])
		}
	}

	chart, err := controller.charts.NewChart(
		config.Type, chartDimensions, extraMeasures, config.Options,
	)
	if err != nil {
		return nil, wrap.Errorf(err, "failed to create '%s' chart", config.Type)
	}
	return chart, nil
}

func normalizeLayout(layout [][]Chart) [][]Chart {
	normalized := make([][]Chart, max(ChartColumns, len(layout)))
	copy(normalized, layout)
	return normalized
}

type ChartNotFoundError struct {
	ChartID string
}

func (err ChartNotFoundError) Error() string {
	return "chart '" + err.ChartID + "' not found"
}

// dimensionSnapshot keeps the navigation state of a dimension, to undo failed operations.
type dimensionSnapshot struct {
	membersStack []olap.Members
	filters      []string
	filtersStack [][]string
	aggregated   bool
}

// revert puts the dimension back in its saved state after an operation failed past its
// load, and reloads the dataset of that state. Returns cause.
func (controller *Controller) revert(
	ctx context.Context,
	dimension *Dimension,
	saved dimensionSnapshot,
	cause error,
) error {
	dimension.restore(saved)
	if err := controller.filterChartsAsDimensionsState(); err != nil {
		log.ErrorCause(err, "failed to restore chart filters")
	}
	if err := controller.load(ctx); err != nil {
		log.ErrorCause(err, "failed to reload dataset of reverted dimension")
		return cause
	}
	if err := controller.renderAll(ctx); err != nil {
		log.ErrorCause(err, "failed to render charts of reverted dimension")
	}
	return cause
}

func (dimension *Dimension) snapshot() dimensionSnapshot {
	return dimensionSnapshot{
		membersStack: dimension.MembersStack(),
		filters:      dimension.Filters(),
		filtersStack: dimension.FiltersStack(),
		aggregated:   dimension.aggregated,
	}
}

func (dimension *Dimension) restore(snapshot dimensionSnapshot) {
	dimension.membersStack = snapshot.membersStack
	dimension.filters = snapshot.filters
	dimension.filtersStack = snapshot.filtersStack
	dimension.aggregated = snapshot.aggregated
	if err := dimension.applyFilters(); err != nil {
		log.ErrorCause(err, "failed to restore filters of dimension")
	}
}
