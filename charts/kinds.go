// Package charts implements the chart kinds of the dashboard: the dimensions and measures
// each kind displays, its default options, and the data computed for it from crossfilter
// groups.
package charts

import (
	"hermannm.dev/cubes/navigation"
	"hermannm.dev/cubes/olap"
	"hermannm.dev/enumnames"
)

type Kind uint8

const (
	KindMap Kind = iota + 1
	KindPie
	KindBar
	KindTimeline
	KindTable
	KindWordcloud
	KindWordcloudWithLegend
	KindBubble
)

var kindNames = enumnames.NewMap(map[Kind]string{
	KindMap:                 "map",
	KindPie:                 "pie",
	KindBar:                 "bar",
	KindTimeline:            "timeline",
	KindTable:               "table",
	KindWordcloud:           "wordcloud",
	KindWordcloudWithLegend: "wordcloudWithLegend",
	KindBubble:              "bubble",
})

var allKinds = []Kind{
	KindMap,
	KindPie,
	KindBar,
	KindTimeline,
	KindTable,
	KindWordcloud,
	KindWordcloudWithLegend,
	KindBubble,
}

func ParseKind(name string) (kind Kind, ok bool) {
	for _, candidate := range allKinds {
		if candidate.String() == name {
			return candidate, true
		}
	}
	return 0, false
}

func (kind Kind) IsValid() bool {
	return kindNames.ContainsEnumValue(kind)
}

func (kind Kind) String() string {
	return kindNames.GetNameOrFallback(kind, "INVALID_CHART_KIND")
}

func (kind Kind) MarshalJSON() ([]byte, error) {
	return kindNames.MarshalToNameJSON(kind)
}

func (kind *Kind) UnmarshalJSON(bytes []byte) error {
	return kindNames.UnmarshalFromNameJSON(bytes, kind)
}

// Capabilities tell which dimensions and extra measures a chart kind displays, and which
// controls the dashboard shows for it.
type Capabilities struct {
	DimensionsMin    int `json:"nbDimensionsMin"`
	DimensionsMax    int `json:"nbDimensionsMax"`
	ExtraMeasuresMin int `json:"nbExtraMeasuresMin"`
	ExtraMeasuresMax int `json:"nbExtraMeasuresMax"`

	DisplayTitle        bool `json:"displayTitle"`
	DisplayParams       bool `json:"displayParams"`
	DisplayLevels       bool `json:"displayLevels"`
	DisplayCanDrillRoll bool `json:"displayCanDrillRoll"`
	DisplayTip          bool `json:"displayTip"`
	DisplayPlay         bool `json:"displayPlay"`

	// Type that every dimension of the chart must have, if set.
	DimensionType olap.DimensionType `json:"dimensionType,omitempty"`
}

func defaultCapabilities() Capabilities {
	return Capabilities{
		DimensionsMin:       1,
		DimensionsMax:       1,
		ExtraMeasuresMin:    0,
		ExtraMeasuresMax:    0,
		DisplayTitle:        true,
		DisplayParams:       true,
		DisplayLevels:       true,
		DisplayCanDrillRoll: true,
		DisplayTip:          true,
		DisplayPlay:         false,
	}
}

func (kind Kind) Capabilities() Capabilities {
	capabilities := defaultCapabilities()

	switch kind {
	case KindMap:
		capabilities.DimensionType = olap.DimensionTypeGeometry
	case KindTimeline:
		capabilities.DimensionType = olap.DimensionTypeTime
		capabilities.DisplayPlay = true
	case KindWordcloud, KindWordcloudWithLegend:
		capabilities.DisplayParams = false
	case KindBubble:
		capabilities.ExtraMeasuresMin = 2
		capabilities.ExtraMeasuresMax = 2
	}

	return capabilities
}

func (capabilities Capabilities) AcceptsDimension(dimension *navigation.Dimension) bool {
	if capabilities.DimensionType == 0 {
		return true
	}
	return dimension.Type() == capabilities.DimensionType
}

// AcceptsDimensions checks both the number of dimensions and each dimension's type.
func (capabilities Capabilities) AcceptsDimensions(dimensions []*navigation.Dimension) bool {
	if len(dimensions) < capabilities.DimensionsMin ||
		len(dimensions) > capabilities.DimensionsMax {
		return false
	}
	for _, dimension := range dimensions {
		if !capabilities.AcceptsDimension(dimension) {
			return false
		}
	}
	return true
}

func (capabilities Capabilities) AcceptsExtraMeasures(count int) bool {
	return count >= capabilities.ExtraMeasuresMin && count <= capabilities.ExtraMeasuresMax
}
