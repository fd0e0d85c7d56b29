package olap

import "hermannm.dev/enumnames"

type DimensionType uint8

const (
	DimensionTypeStandard DimensionType = iota + 1
	DimensionTypeTime
	DimensionTypeGeometry
	DimensionTypeMeasure
)

var dimensionTypeNames = enumnames.NewMap(map[DimensionType]string{
	DimensionTypeStandard: "Standard",
	DimensionTypeTime:     "Time",
	DimensionTypeGeometry: "Geometry",
	DimensionTypeMeasure:  "Measure",
})

func ParseDimensionType(name string) (dimensionType DimensionType, ok bool) {
	for _, candidate := range []DimensionType{
		DimensionTypeStandard, DimensionTypeTime, DimensionTypeGeometry, DimensionTypeMeasure,
	} {
		if candidate.String() == name {
			return candidate, true
		}
	}
	return 0, false
}

func (dimensionType DimensionType) IsValid() bool {
	return dimensionTypeNames.ContainsEnumValue(dimensionType)
}

func (dimensionType DimensionType) String() string {
	return dimensionTypeNames.GetNameOrFallback(dimensionType, "INVALID_DIMENSION_TYPE")
}

func (dimensionType DimensionType) MarshalJSON() ([]byte, error) {
	return dimensionTypeNames.MarshalToNameJSON(dimensionType)
}

func (dimensionType *DimensionType) UnmarshalJSON(bytes []byte) error {
	return dimensionTypeNames.UnmarshalFromNameJSON(bytes, dimensionType)
}

type PropertyType uint8

const (
	PropertyTypeStandard PropertyType = iota + 1
	PropertyTypeGeometry
)

var propertyTypeNames = enumnames.NewMap(map[PropertyType]string{
	PropertyTypeStandard: "Standard",
	PropertyTypeGeometry: "Geometry",
})

func ParsePropertyType(name string) (propertyType PropertyType, ok bool) {
	for _, candidate := range []PropertyType{PropertyTypeStandard, PropertyTypeGeometry} {
		if candidate.String() == name {
			return candidate, true
		}
	}
	return 0, false
}

func (propertyType PropertyType) IsValid() bool {
	return propertyTypeNames.ContainsEnumValue(propertyType)
}

func (propertyType PropertyType) String() string {
	return propertyTypeNames.GetNameOrFallback(propertyType, "INVALID_PROPERTY_TYPE")
}

func (propertyType PropertyType) MarshalJSON() ([]byte, error) {
	return propertyTypeNames.MarshalToNameJSON(propertyType)
}

func (propertyType *PropertyType) UnmarshalJSON(bytes []byte) error {
	return propertyTypeNames.UnmarshalFromNameJSON(bytes, propertyType)
}
