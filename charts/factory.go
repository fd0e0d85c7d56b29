package charts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"hermannm.dev/cubes/navigation"
	"hermannm.dev/cubes/olap"
	"hermannm.dev/wrap"
)

// Factory creates charts with IDs unique to the factory.
type Factory struct {
	lock   sync.Mutex
	nextID int
}

func NewFactory() *Factory {
	return &Factory{}
}

type UnsupportedChartError struct {
	Kind   string
	Reason string
}

func (err UnsupportedChartError) Error() string {
	return fmt.Sprintf("unsupported '%s' chart: %s", err.Kind, err.Reason)
}

func (factory *Factory) NewChart(
	kindName string,
	dimensions []*navigation.Dimension,
	extraMeasures []olap.Measure,
	options json.RawMessage,
) (navigation.Chart, error) {
	kind, ok := ParseKind(kindName)
	if !ok {
		return nil, UnsupportedChartError{Kind: kindName, Reason: "unknown chart type"}
	}
	return factory.New(kind, dimensions, extraMeasures, options)
}

// New creates a chart of the given kind. Options are applied over the defaults of the kind.
func (factory *Factory) New(
	kind Kind,
	dimensions []*navigation.Dimension,
	extraMeasures []olap.Measure,
	options json.RawMessage,
) (*Chart, error) {
	capabilities := kind.Capabilities()
	if !capabilities.AcceptsDimensions(dimensions) {
		reason := fmt.Sprintf(
			"needs %d to %d dimensions", capabilities.DimensionsMin, capabilities.DimensionsMax,
		)
		if capabilities.DimensionType != 0 {
			reason += " of type " + capabilities.DimensionType.String()
		}
		return nil, UnsupportedChartError{Kind: kind.String(), Reason: reason}
	}
	if !capabilities.AcceptsExtraMeasures(len(extraMeasures)) {
		return nil, UnsupportedChartError{
			Kind: kind.String(),
			Reason: fmt.Sprintf(
				"needs %d to %d extra measures, got %d",
				capabilities.ExtraMeasuresMin, capabilities.ExtraMeasuresMax, len(extraMeasures),
			),
		}
	}

	chartOptions := DefaultOptions(kind)
	if len(bytes.TrimSpace(options)) != 0 {
		if err := json.Unmarshal(options, &chartOptions); err != nil {
			return nil, wrap.Errorf(err, "invalid options for '%s' chart", kind)
		}
		if !chartOptions.Sort.IsValid() {
			return nil, fmt.Errorf("invalid sort for '%s' chart", kind)
		}
	}

	chart := &Chart{
		id:            factory.newID(),
		kind:          kind,
		dimensions:    dimensions,
		extraMeasures: extraMeasures,
		options:       chartOptions,
		data:          Data{Kind: kind, Values: []Value{}},
	}
	chart.element = &element{chart: chart}
	return chart, nil
}

func (factory *Factory) newID() string {
	factory.lock.Lock()
	defer factory.lock.Unlock()

	id := "chart-" + strconv.Itoa(factory.nextID)
	factory.nextID++
	return id
}

// DefaultLayout creates one word cloud per dimension in the first column, a map, a
// timeline and a table in the second, and a pie and a bar chart in the third. The
// timeline is left out when the cube has no time dimension, and the map when the
// geographic dimension has no geometry.
func (factory *Factory) DefaultLayout(
	dimensions []*navigation.Dimension,
	geoDimension *navigation.Dimension,
	timeDimension *navigation.Dimension,
) ([][]navigation.Chart, error) {
	layout := make([][]navigation.Chart, navigation.ChartColumns)

	wordClouds, err := factory.WordClouds(dimensions)
	if err != nil {
		return nil, err
	}
	layout[0] = wordClouds

	if geoDimension == nil {
		return layout, nil
	}
	geo := []*navigation.Dimension{geoDimension}

	add := func(column int, kind Kind, dimensions []*navigation.Dimension) error {
		chart, err := factory.New(kind, dimensions, nil, nil)
		if err != nil {
			return wrap.Errorf(err, "failed to create default %s chart", kind)
		}
		layout[column] = append(layout[column], chart)
		return nil
	}

	if KindMap.Capabilities().AcceptsDimensions(geo) {
		if err := add(1, KindMap, geo); err != nil {
			return nil, err
		}
	}
	if timeDimension != nil {
		if err := add(1, KindTimeline, []*navigation.Dimension{timeDimension}); err != nil {
			return nil, err
		}
	}
	if err := add(1, KindTable, geo); err != nil {
		return nil, err
	}
	if err := add(2, KindPie, geo); err != nil {
		return nil, err
	}
	if err := add(2, KindBar, geo); err != nil {
		return nil, err
	}

	return layout, nil
}

func (factory *Factory) WordClouds(dimensions []*navigation.Dimension) ([]navigation.Chart, error) {
	wordClouds := make([]navigation.Chart, 0, len(dimensions))
	for _, dimension := range dimensions {
		chart, err := factory.New(
			KindWordcloudWithLegend, []*navigation.Dimension{dimension}, nil, nil,
		)
		if err != nil {
			return nil, wrap.Errorf(err, "failed to create word cloud of '%s'", dimension.ID())
		}
		wordClouds = append(wordClouds, chart)
	}
	return wordClouds, nil
}
