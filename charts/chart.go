package charts

import (
	"cmp"
	"context"
	"encoding/json"
	"slices"
	"time"

	"hermannm.dev/cubes/navigation"
	"hermannm.dev/cubes/olap"
	"hermannm.dev/wrap"
)

// Chart computes the data displayed by one chart of the dashboard, from the crossfilter
// group of its first dimension.
type Chart struct {
	id            string
	kind          Kind
	dimensions    []*navigation.Dimension
	extraMeasures []olap.Measure
	options       Options
	element       *element
	data          Data
}

// Data is what a chart displays, one value per member of its first dimension.
type Data struct {
	Kind      Kind    `json:"type"`
	Dimension string  `json:"dimension,omitempty"`
	Level     string  `json:"level,omitempty"`
	Measure   string  `json:"measure,omitempty"`
	Values    []Value `json:"values"`
}

type Value struct {
	Key     string  `json:"key"`
	Caption string  `json:"caption"`
	Value   float64 `json:"value"`
	// Sums of the active and extra measures, for charts with extra measures.
	Measures map[string]float64 `json:"measures,omitempty"`
	Filtered bool               `json:"filtered"`
	// GeoJSON geometry of the member, for maps.
	Geometry any `json:"geometry,omitempty"`
}

func (chart *Chart) ID() string {
	return chart.id
}

func (chart *Chart) Kind() Kind {
	return chart.kind
}

func (chart *Chart) Type() string {
	return chart.kind.String()
}

func (chart *Chart) Capabilities() Capabilities {
	return chart.kind.Capabilities()
}

func (chart *Chart) Dimensions() []*navigation.Dimension {
	return slices.Clone(chart.dimensions)
}

func (chart *Chart) ExtraMeasures() []olap.Measure {
	return slices.Clone(chart.extraMeasures)
}

func (chart *Chart) Options() (json.RawMessage, error) {
	return json.Marshal(chart.options)
}

func (chart *Chart) Element() navigation.ChartElement {
	return chart.element
}

func (chart *Chart) Data() any {
	return chart.data
}

func (chart *Chart) PlayerTimeout() time.Duration {
	return time.Duration(chart.options.PlayerTimeout) * time.Millisecond
}

func (chart *Chart) Render(ctx context.Context) error {
	return chart.compute(ctx)
}

func (chart *Chart) Redraw(ctx context.Context) error {
	return chart.compute(ctx)
}

func (chart *Chart) compute(ctx context.Context) error {
	data := Data{Kind: chart.kind, Values: []Value{}}
	if len(chart.dimensions) == 0 {
		chart.data = data
		return nil
	}

	dimension := chart.dimensions[0]
	data.Dimension = dimension.ID()
	data.Measure = dimension.ActiveMeasure()
	if levels := dimension.Levels(); dimension.CurrentLevel() >= 0 &&
		dimension.CurrentLevel() < len(levels) {
		data.Level = levels[dimension.CurrentLevel()]
	}

	extraMeasures := make([]string, 0, len(chart.extraMeasures))
	for _, measure := range chart.extraMeasures {
		extraMeasures = append(extraMeasures, measure.ID)
	}

	group, err := dimension.CrossfilterGroup(extraMeasures)
	if err != nil {
		return wrap.Errorf(err, "failed to get group of dimension '%s'", dimension.ID())
	}
	keyValues, err := group.All(ctx)
	if err != nil {
		return wrap.Errorf(err, "failed to aggregate dimension '%s'", dimension.ID())
	}

	members := dimension.LastSlice()
	geoProperty, hasGeometry := dimension.GeoProperty()

	for _, keyValue := range keyValues {
		value := Value{
			Key:      keyValue.Key,
			Caption:  keyValue.Key,
			Filtered: chart.element.HasFilter(keyValue.Key),
		}

		switch groupValue := keyValue.Value.(type) {
		case float64:
			value.Value = groupValue
		case map[string]float64:
			value.Measures = make(map[string]float64, len(groupValue))
			for measure, sum := range groupValue {
				value.Measures[measure] = sum
			}
			value.Value = groupValue[data.Measure]
		}

		if member, ok := members[keyValue.Key]; ok {
			value.Caption = member.Caption
			if hasGeometry && chart.kind == KindMap {
				value.Geometry = member.Properties[geoProperty.ID]
			}
		}

		data.Values = append(data.Values, value)
	}

	sortValues(data.Values, chart.options.Sort)
	chart.data = data
	return nil
}

func sortValues(values []Value, sort Sort) {
	switch sort {
	case SortKey:
		slices.SortStableFunc(values, func(a Value, b Value) int {
			return cmp.Compare(a.Key, b.Key)
		})
	case SortValueAsc:
		slices.SortStableFunc(values, func(a Value, b Value) int {
			return cmp.Compare(a.Value, b.Value)
		})
	case SortValueDesc:
		slices.SortStableFunc(values, func(a Value, b Value) int {
			return cmp.Compare(b.Value, a.Value)
		})
	}
}

// element keeps the members selected on a chart, and forwards the selection to the chart's
// first dimension.
type element struct {
	chart   *Chart
	filters []string
}

func (element *element) Filter(member string) error {
	index := slices.Index(element.filters, member)
	add := index == -1
	if add {
		element.filters = append(element.filters, member)
	} else {
		element.filters = slices.Delete(element.filters, index, index+1)
	}

	if len(element.chart.dimensions) == 0 {
		return nil
	}
	return element.chart.dimensions[0].Filter(member, add)
}

func (element *element) HasFilter(member string) bool {
	return slices.Contains(element.filters, member)
}

func (element *element) FilterAll() error {
	element.filters = nil

	if len(element.chart.dimensions) == 0 {
		return nil
	}
	return element.chart.dimensions[0].SetFilters(nil)
}
