package navigation

import (
	"context"
	"log/slog"
	"math"
	"slices"

	"hermannm.dev/cubes/crossfilter"
	"hermannm.dev/cubes/metrics"
	"hermannm.dev/cubes/olap"
	"hermannm.dev/cubes/query"
	"hermannm.dev/devlog/log"
	"hermannm.dev/wrap"
)

// DefaultClientAggregationThreshold is the number of crossed members from which datasets
// are aggregated on the query API instead of in memory.
const DefaultClientAggregationThreshold = 20000

// CrossedMembers returns the product of the sizes of the last slices of all non-aggregated
// dimensions. Saturates at math.MaxInt.
func CrossedMembers(dimensions []*Dimension) int {
	crossed := 1
	for _, dimension := range dimensions {
		if dimension.Aggregated() {
			continue
		}

		size := len(dimension.LastSlice())
		if size == 0 {
			return 0
		}
		if crossed > math.MaxInt/size {
			return math.MaxInt
		}
		crossed *= size
	}
	return crossed
}

// ModeFor returns client mode for fewer crossed members than the threshold, and server
// mode from the threshold upwards.
func ModeFor(crossedMembers int, threshold int) AggregationMode {
	if crossedMembers < threshold {
		return AggregationModeClient
	}
	return AggregationModeServer
}

type LoadResult struct {
	Mode            AggregationMode `json:"mode"`
	CrossedMembers  int             `json:"crossedMembers"`
	DisposedHandles int             `json:"disposedHandles"`
}

// DataLoader loads the dataset of the analysis into a crossfilter engine, in the mode
// given by the number of crossed members.
type DataLoader struct {
	builder   *query.Builder
	threshold int

	schema  string
	cube    string
	measure string

	current        crossfilter.Engine
	mode           AggregationMode
	measuresLoaded []string
}

func NewDataLoader(builder *query.Builder, threshold int) *DataLoader {
	if threshold <= 0 {
		threshold = DefaultClientAggregationThreshold
	}
	return &DataLoader{builder: builder, threshold: threshold}
}

// SetCube sets the cube and active measure that following loads query.
func (loader *DataLoader) SetCube(schema string, cube string, measure string) {
	loader.schema = schema
	loader.cube = cube
	loader.measure = measure
}

func (loader *DataLoader) engine() crossfilter.Engine {
	return loader.current
}

func (loader *DataLoader) activeMeasure() string {
	return loader.measure
}

func (loader *DataLoader) Mode() AggregationMode {
	return loader.mode
}

func (loader *DataLoader) Threshold() int {
	return loader.threshold
}

func (loader *DataLoader) MeasuresLoaded() []string {
	return slices.Clone(loader.measuresLoaded)
}

// Load fetches the dataset of the given dimensions, disposes every crossfilter handle of
// the dimensions, and installs the new dataset. On error, the previous dataset is kept.
func (loader *DataLoader) Load(
	ctx context.Context,
	dimensions []*Dimension,
	extraMeasures []string,
) (LoadResult, error) {
	crossedMembers := CrossedMembers(dimensions)
	mode := ModeFor(crossedMembers, loader.threshold)

	measures := []string{loader.measure}
	for _, measure := range extraMeasures {
		if !slices.Contains(measures, measure) {
			measures = append(measures, measure)
		}
	}

	var input crossfilter.Input
	switch mode {
	case AggregationModeClient:
		rows, err := loader.fetchRows(ctx, dimensions, measures)
		if err != nil {
			return LoadResult{}, err
		}
		input = crossfilter.Rows(rows)
	case AggregationModeServer:
		input = loader.serverDescriptor(dimensions, measures)
	}

	engine, err := crossfilter.New(input)
	if err != nil {
		return LoadResult{}, wrap.Error(err, "failed to create crossfilter engine")
	}

	disposed := 0
	for _, dimension := range dimensions {
		disposed += dimension.disposeHandles()
		dimension.source = loader
	}

	loader.current = engine
	loader.mode = mode
	loader.measuresLoaded = measures

	metrics.DataLoads.WithLabelValues(mode.String()).Inc()
	metrics.CrossedMembers.Set(float64(crossedMembers))
	metrics.DisposedHandles.Add(float64(disposed))
	log.Info(
		"loaded dataset",
		slog.String("cube", loader.cube),
		slog.String("mode", mode.String()),
		slog.Int("crossedMembers", crossedMembers),
		slog.Int("disposedHandles", disposed),
	)

	return LoadResult{Mode: mode, CrossedMembers: crossedMembers, DisposedHandles: disposed}, nil
}

// LoadIfNeeded loads the dataset only if one of the extra measures is not loaded yet.
func (loader *DataLoader) LoadIfNeeded(
	ctx context.Context,
	dimensions []*Dimension,
	extraMeasures []string,
) (result LoadResult, loaded bool, err error) {
	if loader.current != nil {
		missing := false
		for _, measure := range extraMeasures {
			if !slices.Contains(loader.measuresLoaded, measure) {
				missing = true
				break
			}
		}
		if !missing {
			return LoadResult{}, false, nil
		}
	}

	result, err = loader.Load(ctx, dimensions, extraMeasures)
	if err != nil {
		return LoadResult{}, false, err
	}
	return result, true, nil
}

func (loader *DataLoader) fetchRows(
	ctx context.Context,
	dimensions []*Dimension,
	measures []string,
) ([]olap.Row, error) {
	builder := loader.builder

	if err := builder.Clear(); err != nil {
		return nil, wrap.Error(err, "failed to clear query")
	}
	if err := builder.Drill(loader.cube); err != nil {
		return nil, wrap.Errorf(err, "failed to drill cube '%s'", loader.cube)
	}

	var hierarchies []string
	for _, dimension := range dimensions {
		if dimension.Aggregated() {
			continue
		}
		if err := builder.Slice(
			dimension.Hierarchy(), dimension.LastSlice().IDs(), false,
		); err != nil {
			return nil, wrap.Errorf(err, "failed to slice dimension '%s'", dimension.ID())
		}
		hierarchies = append(hierarchies, dimension.Hierarchy())
	}
	if err := builder.Dice(hierarchies...); err != nil {
		return nil, wrap.Error(err, "failed to dice dimensions")
	}

	for _, measure := range measures {
		if err := builder.Push(measure); err != nil {
			return nil, wrap.Errorf(err, "failed to push measure '%s'", measure)
		}
	}

	rows, err := builder.Execute(ctx)
	if err != nil {
		return nil, wrap.Error(err, "failed to load dataset")
	}
	return rows, nil
}

func (loader *DataLoader) serverDescriptor(
	dimensions []*Dimension,
	measures []string,
) crossfilter.ServerDescriptor {
	descriptor := crossfilter.ServerDescriptor{
		API:        loader.builder,
		Schema:     loader.schema,
		Cube:       loader.cube,
		Measures:   measures,
		Dimensions: make(map[string]crossfilter.DimensionDescriptor, len(dimensions)),
	}
	for _, dimension := range dimensions {
		if dimension.Aggregated() {
			descriptor.Dimensions[dimension.ID()] = crossfilter.DimensionDescriptor{
				Hierarchy:  dimension.Hierarchy(),
				Aggregated: true,
			}
			continue
		}
		descriptor.Dimensions[dimension.ID()] = crossfilter.DimensionDescriptor{
			Hierarchy: dimension.Hierarchy(),
			Level:     dimension.CurrentLevel(),
			Members:   dimension.LastSlice().IDs(),
		}
	}
	return descriptor
}
