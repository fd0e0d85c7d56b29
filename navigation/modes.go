package navigation

import "hermannm.dev/enumnames"

// DrillMode selects which members of a dimension are drilled down.
type DrillMode uint8

const (
	// DrillModeSimple drills the single member given.
	DrillModeSimple DrillMode = iota + 1
	// DrillModeSelected drills every filtered member, or the whole last slice when nothing
	// is filtered.
	DrillModeSelected
)

var drillModeNames = enumnames.NewMap(map[DrillMode]string{
	DrillModeSimple:   "simple",
	DrillModeSelected: "selected",
})

func (mode DrillMode) IsValid() bool {
	return drillModeNames.ContainsEnumValue(mode)
}

func (mode DrillMode) String() string {
	return drillModeNames.GetNameOrFallback(mode, "INVALID_DRILL_MODE")
}

func (mode DrillMode) MarshalJSON() ([]byte, error) {
	return drillModeNames.MarshalToNameJSON(mode)
}

func (mode *DrillMode) UnmarshalJSON(bytes []byte) error {
	return drillModeNames.UnmarshalFromNameJSON(bytes, mode)
}

// AggregationMode tells where the measures of a loaded dataset are aggregated.
type AggregationMode uint8

const (
	// AggregationModeClient aggregates rows held in memory.
	AggregationModeClient AggregationMode = iota + 1
	// AggregationModeServer aggregates on the query API, one query per group.
	AggregationModeServer
)

var aggregationModeNames = enumnames.NewMap(map[AggregationMode]string{
	AggregationModeClient: "client",
	AggregationModeServer: "server",
})

func (mode AggregationMode) IsValid() bool {
	return aggregationModeNames.ContainsEnumValue(mode)
}

func (mode AggregationMode) String() string {
	return aggregationModeNames.GetNameOrFallback(mode, "INVALID_AGGREGATION_MODE")
}

func (mode AggregationMode) MarshalJSON() ([]byte, error) {
	return aggregationModeNames.MarshalToNameJSON(mode)
}

func (mode *AggregationMode) UnmarshalJSON(bytes []byte) error {
	return aggregationModeNames.UnmarshalFromNameJSON(bytes, mode)
}
