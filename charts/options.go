package charts

import "hermannm.dev/enumnames"

// Sort orders the values of a chart. The zero value keeps them ordered by member ID, and is
// encoded as null.
type Sort uint8

const (
	SortNone Sort = iota
	SortKey
	SortValueAsc
	SortValueDesc
)

var sortNames = enumnames.NewMap(map[Sort]string{
	SortKey:       "key",
	SortValueAsc:  "valueasc",
	SortValueDesc: "valuedesc",
})

func (sort Sort) IsValid() bool {
	return sort == SortNone || sortNames.ContainsEnumValue(sort)
}

func (sort Sort) String() string {
	if sort == SortNone {
		return "none"
	}
	return sortNames.GetNameOrFallback(sort, "INVALID_SORT")
}

func (sort Sort) MarshalJSON() ([]byte, error) {
	if sort == SortNone {
		return []byte("null"), nil
	}
	return sortNames.MarshalToNameJSON(sort)
}

func (sort *Sort) UnmarshalJSON(bytes []byte) error {
	if string(bytes) == "null" {
		*sort = SortNone
		return nil
	}
	return sortNames.UnmarshalFromNameJSON(bytes, sort)
}

const (
	HeightReferencePixels            = "px"
	HeightReferenceColumnHeightRatio = "columnHeightRatio"
)

type Options struct {
	Sort Sort `json:"sort"`
	// Null when the chart kind has no labels to show or hide.
	Labels *bool `json:"labels"`
	// Milliseconds between two steps of the player.
	PlayerTimeout int `json:"playerTimeout"`
	// In pixels, or as a ratio of the column height, depending on HeightReference.
	Height          float64 `json:"height"`
	HeightReference string  `json:"heightReference"`
}

func DefaultOptions(kind Kind) Options {
	options := Options{
		Sort:            SortNone,
		Labels:          nil,
		PlayerTimeout:   300,
		Height:          300,
		HeightReference: HeightReferencePixels,
	}

	labels := true
	switch kind {
	case KindMap:
		options.Height = 0.7
		options.HeightReference = HeightReferenceColumnHeightRatio
	case KindPie:
		options.Sort = SortValueAsc
		options.Labels = &labels
	case KindBar:
		options.Sort = SortValueAsc
	case KindTimeline:
		options.Height = 0.3
		options.HeightReference = HeightReferenceColumnHeightRatio
	case KindTable:
		options.Sort = SortValueDesc
	case KindBubble:
		options.Labels = &labels
		options.Height = 500
	}

	return options
}
