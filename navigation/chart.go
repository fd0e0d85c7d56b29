package navigation

import (
	"context"
	"encoding/json"
	"time"

	"hermannm.dev/cubes/olap"
)

// Chart displays the crossfilter groups of its dimensions. Implemented by charts.Chart.
type Chart interface {
	ID() string
	// Type is the name of the chart kind, as stored in state snapshots.
	Type() string
	Dimensions() []*Dimension
	ExtraMeasures() []olap.Measure
	// Options returns the chart options encoded as a JSON object.
	Options() (json.RawMessage, error)
	Element() ChartElement
	// Render creates the chart data from new crossfilter handles, after a load.
	Render(ctx context.Context) error
	// Redraw updates the chart data from the current handles, after a filter change.
	Redraw(ctx context.Context) error
	// Data returns the chart data computed by the last render or redraw.
	Data() any
	// PlayerTimeout is the delay between steps when playing through the chart's members.
	PlayerTimeout() time.Duration
}

// ChartElement holds the members selected on a chart.
type ChartElement interface {
	// Filter toggles the member in the filters of the chart, and of its first dimension.
	Filter(member string) error
	HasFilter(member string) bool
	// FilterAll removes all filters of the chart, and of its first dimension.
	FilterAll() error
}

// ChartFactory creates charts by kind name. Implemented by charts.Factory.
type ChartFactory interface {
	NewChart(
		kind string,
		dimensions []*Dimension,
		extraMeasures []olap.Measure,
		options json.RawMessage,
	) (Chart, error)
	// DefaultLayout creates the charts of a new analysis, by column, the first column
	// holding one word cloud per dimension.
	DefaultLayout(dimensions []*Dimension, geoDimension *Dimension, timeDimension *Dimension) (
		[][]Chart, error,
	)
	// WordClouds creates the charts of the first column, one for each dimension.
	WordClouds(dimensions []*Dimension) ([]Chart, error)
}
