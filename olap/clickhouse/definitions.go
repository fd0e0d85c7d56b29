package clickhouse

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
	"hermannm.dev/cubes/olap"
	"hermannm.dev/enumnames"
	"hermannm.dev/wrap"
)

// Definitions map the cubes served by the backend to ClickHouse fact tables. Every fact
// table row holds one column per level and level property of every dimension, and one
// column per measure.
//
//	schemas:
//	  - id: Traffic
//	    cubes:
//	      - id: "[Traffic]"
//	        table: traffic
//	        measures:
//	          - {id: "[Measures].[Goods Quantity]", column: goods_quantity, aggregation: sum}
//	        dimensions:
//	          - id: "[Time]"
//	            type: Time
//	            hierarchies:
//	              - id: "[Time].[Time]"
//	                levels:
//	                  - {id: "[Time].[Time].[Year]", column: year}
type Definitions struct {
	Schemas []SchemaDefinition `yaml:"schemas"`
}

type SchemaDefinition struct {
	ID      string           `yaml:"id"`
	Caption string           `yaml:"caption"`
	Cubes   []CubeDefinition `yaml:"cubes"`
}

type CubeDefinition struct {
	ID          string                `yaml:"id"`
	Caption     string                `yaml:"caption"`
	Description string                `yaml:"description"`
	Table       string                `yaml:"table"`
	Measures    []MeasureDefinition   `yaml:"measures"`
	Dimensions  []DimensionDefinition `yaml:"dimensions"`
}

type MeasureDefinition struct {
	ID          string      `yaml:"id"`
	Caption     string      `yaml:"caption"`
	Description string      `yaml:"description"`
	Column      string      `yaml:"column"`
	Aggregation Aggregation `yaml:"aggregation"`
}

type DimensionDefinition struct {
	ID          string                `yaml:"id"`
	Caption     string                `yaml:"caption"`
	Description string                `yaml:"description"`
	Type        string                `yaml:"type"`
	Hierarchies []HierarchyDefinition `yaml:"hierarchies"`
}

type HierarchyDefinition struct {
	ID          string            `yaml:"id"`
	Caption     string            `yaml:"caption"`
	Description string            `yaml:"description"`
	Levels      []LevelDefinition `yaml:"levels"`
}

type LevelDefinition struct {
	ID          string               `yaml:"id"`
	Caption     string               `yaml:"caption"`
	Description string               `yaml:"description"`
	Column      string               `yaml:"column"`
	Properties  []PropertyDefinition `yaml:"properties"`
}

type PropertyDefinition struct {
	ID          string `yaml:"id"`
	Caption     string `yaml:"caption"`
	Description string `yaml:"description"`
	Type        string `yaml:"type"`
	Column      string `yaml:"column"`
}

type Aggregation uint8

const (
	AggregationSum Aggregation = iota + 1
	AggregationMin
	AggregationMax
	AggregationAverage
	AggregationCount
)

var aggregationNames = enumnames.NewMap(map[Aggregation]string{
	AggregationSum:     "sum",
	AggregationMin:     "min",
	AggregationMax:     "max",
	AggregationAverage: "average",
	AggregationCount:   "count",
})

// See https://clickhouse.com/docs/en/sql-reference/aggregate-functions/reference
var clickhouseAggregations = enumnames.NewMap(map[Aggregation]string{
	AggregationSum:     "sum",
	AggregationMin:     "min",
	AggregationMax:     "max",
	AggregationAverage: "avg",
	AggregationCount:   "count",
})

func (aggregation Aggregation) IsValid() bool {
	return aggregationNames.ContainsEnumValue(aggregation)
}

func (aggregation Aggregation) String() string {
	return aggregationNames.GetNameOrFallback(aggregation, "INVALID_AGGREGATION")
}

func (aggregation *Aggregation) UnmarshalYAML(node *yaml.Node) error {
	for _, candidate := range []Aggregation{
		AggregationSum, AggregationMin, AggregationMax, AggregationAverage, AggregationCount,
	} {
		if node.Value == candidate.String() {
			*aggregation = candidate
			return nil
		}
	}
	return fmt.Errorf("invalid aggregation '%s' on line %d", node.Value, node.Line)
}

// LoadDefinitions reads and validates the cube definitions file at the given path.
func LoadDefinitions(path string) (Definitions, error) {
	file, err := os.Open(path)
	if err != nil {
		return Definitions{}, wrap.Errorf(err, "failed to open cube definitions file '%s'", path)
	}
	defer file.Close()

	definitions, err := ParseDefinitions(file)
	if err != nil {
		return Definitions{}, wrap.Errorf(err, "invalid cube definitions file '%s'", path)
	}
	return definitions, nil
}

func ParseDefinitions(input io.Reader) (Definitions, error) {
	decoder := yaml.NewDecoder(input)
	decoder.KnownFields(true)

	var definitions Definitions
	if err := decoder.Decode(&definitions); err != nil {
		return Definitions{}, wrap.Error(err, "failed to parse cube definitions")
	}

	if err := definitions.Validate(); err != nil {
		return Definitions{}, err
	}
	return definitions, nil
}

func (definitions Definitions) Validate() error {
	var errs []error

	if len(definitions.Schemas) == 0 {
		errs = append(errs, errors.New("no schemas defined"))
	}

	var schemaIDs []string
	for _, schema := range definitions.Schemas {
		if schema.ID == "" {
			errs = append(errs, errors.New("schema without ID"))
		} else if slices.Contains(schemaIDs, schema.ID) {
			errs = append(errs, fmt.Errorf("schema '%s' defined twice", schema.ID))
		}
		schemaIDs = append(schemaIDs, schema.ID)

		for _, cube := range schema.Cubes {
			if cubeErrs := cube.validate(); len(cubeErrs) > 0 {
				errs = append(errs, wrap.Errors(
					fmt.Sprintf("invalid cube '%s' in schema '%s'", cube.ID, schema.ID),
					cubeErrs...,
				))
			}
		}
	}

	if len(errs) > 0 {
		return wrap.Errors("invalid cube definitions", errs...)
	}
	return nil
}

func (cube CubeDefinition) validate() []error {
	var errs []error

	if cube.ID == "" {
		errs = append(errs, errors.New("missing cube ID"))
	}
	if cube.Table == "" {
		errs = append(errs, errors.New("missing fact table"))
	}
	if len(cube.Measures) == 0 {
		errs = append(errs, errors.New("no measures defined"))
	}

	var columns []string
	addColumn := func(column string, owner string) {
		if column == "" {
			errs = append(errs, fmt.Errorf("missing column of '%s'", owner))
			return
		}
		if slices.Contains(columns, column) {
			errs = append(errs, fmt.Errorf("column '%s' of '%s' is already used", column, owner))
		}
		columns = append(columns, column)
	}

	for _, measure := range cube.Measures {
		if measure.ID == "" {
			errs = append(errs, errors.New("measure without ID"))
		}
		if !measure.Aggregation.IsValid() {
			errs = append(errs, fmt.Errorf("missing aggregation of measure '%s'", measure.ID))
		}
		if measure.Aggregation != AggregationCount {
			addColumn(measure.Column, measure.ID)
		}
	}

	for _, dimension := range cube.Dimensions {
		if dimension.ID == "" {
			errs = append(errs, errors.New("dimension without ID"))
		}
		if dimensionType, ok := olap.ParseDimensionType(dimension.Type); !ok ||
			dimensionType == olap.DimensionTypeMeasure {
			errs = append(errs, fmt.Errorf(
				"invalid type '%s' of dimension '%s'", dimension.Type, dimension.ID,
			))
		}
		if len(dimension.Hierarchies) == 0 {
			errs = append(errs, fmt.Errorf("no hierarchies in dimension '%s'", dimension.ID))
		}

		for _, hierarchy := range dimension.Hierarchies {
			if len(hierarchy.Levels) == 0 {
				errs = append(errs, fmt.Errorf("no levels in hierarchy '%s'", hierarchy.ID))
			}
			for _, level := range hierarchy.Levels {
				addColumn(level.Column, level.ID)
				for _, property := range level.Properties {
					if _, ok := olap.ParsePropertyType(property.Type); !ok {
						errs = append(errs, fmt.Errorf(
							"invalid type '%s' of property '%s'", property.Type, property.ID,
						))
					}
					addColumn(property.Column, property.ID)
				}
			}
		}
	}

	if err := ValidateIdentifiers(append(columns, cube.Table)...); err != nil {
		errs = append(errs, err)
	}

	return errs
}

func (definitions Definitions) schema(id string) (SchemaDefinition, error) {
	for _, schema := range definitions.Schemas {
		if schema.ID == id {
			return schema, nil
		}
	}
	return SchemaDefinition{}, olap.NewError(
		olap.ErrorKindSchemaNotInDatabase, "schema '%s' not found", id,
	)
}

func (definitions Definitions) cube(schemaID string, cubeID string) (CubeDefinition, error) {
	schema, err := definitions.schema(schemaID)
	if err != nil {
		return CubeDefinition{}, err
	}
	for _, cube := range schema.Cubes {
		if cube.ID == cubeID {
			return cube, nil
		}
	}
	return CubeDefinition{}, olap.NewError(
		olap.ErrorKindCubeNotInDatabase, "cube '%s' not found in schema '%s'", cubeID, schemaID,
	)
}

// cubeByID looks the cube up in every schema, since execute queries only name the cube.
func (definitions Definitions) cubeByID(id string) (CubeDefinition, error) {
	for _, schema := range definitions.Schemas {
		for _, cube := range schema.Cubes {
			if cube.ID == id {
				return cube, nil
			}
		}
	}
	return CubeDefinition{}, olap.NewError(olap.ErrorKindCubeNotInDatabase, "cube '%s' not found", id)
}

func (cube CubeDefinition) dimension(id string) (DimensionDefinition, error) {
	for _, dimension := range cube.Dimensions {
		if dimension.ID == id {
			return dimension, nil
		}
	}
	return DimensionDefinition{}, olap.NewError(
		olap.ErrorKindDimensionNotInDatabase, "dimension '%s' not found in cube '%s'", id, cube.ID,
	)
}

func (cube CubeDefinition) measure(id string) (MeasureDefinition, error) {
	for _, measure := range cube.Measures {
		if measure.ID == id {
			return measure, nil
		}
	}
	return MeasureDefinition{}, olap.NewError(
		olap.ErrorKindDimensionNotInDatabase, "measure '%s' not found in cube '%s'", id, cube.ID,
	)
}

// hierarchy finds the hierarchy in any dimension of the cube.
func (cube CubeDefinition) hierarchy(
	id string,
) (DimensionDefinition, HierarchyDefinition, error) {
	for _, dimension := range cube.Dimensions {
		for _, hierarchy := range dimension.Hierarchies {
			if hierarchy.ID == id {
				return dimension, hierarchy, nil
			}
		}
	}
	return DimensionDefinition{}, HierarchyDefinition{}, olap.NewError(
		olap.ErrorKindHierarchyNotInDatabase, "hierarchy '%s' not found in cube '%s'", id, cube.ID,
	)
}

func (dimension DimensionDefinition) hierarchy(id string) (HierarchyDefinition, error) {
	for _, hierarchy := range dimension.Hierarchies {
		if hierarchy.ID == id {
			return hierarchy, nil
		}
	}
	return HierarchyDefinition{}, olap.NewError(
		olap.ErrorKindHierarchyNotInDatabase,
		"hierarchy '%s' not found in dimension '%s'", id, dimension.ID,
	)
}

func (hierarchy HierarchyDefinition) levelIndex(id string) (int, error) {
	index := slices.IndexFunc(hierarchy.Levels, func(level LevelDefinition) bool {
		return level.ID == id
	})
	if index == -1 {
		return 0, olap.NewError(
			olap.ErrorKindLevelNotInDatabase,
			"level '%s' not found in hierarchy '%s'", id, hierarchy.ID,
		)
	}
	return index, nil
}

// Columns returns the fact table columns of the cube, in table order.
func (cube CubeDefinition) Columns() []string {
	var columns []string
	for _, dimension := range cube.Dimensions {
		for _, hierarchy := range dimension.Hierarchies {
			for _, level := range hierarchy.Levels {
				columns = append(columns, level.Column)
				for _, property := range level.Properties {
					columns = append(columns, property.Column)
				}
			}
		}
	}
	for _, measure := range cube.Measures {
		if measure.Column != "" {
			columns = append(columns, measure.Column)
		}
	}
	return columns
}

func (cube CubeDefinition) isMeasureColumn(column string) bool {
	return slices.ContainsFunc(cube.Measures, func(measure MeasureDefinition) bool {
		return measure.Column == column
	})
}
