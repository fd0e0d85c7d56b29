package metadata

import (
	"context"
	"encoding/json"

	"hermannm.dev/cubes/olap"
	"hermannm.dev/wrap"
)

func (cache *Cache) Schemas(ctx context.Context) ([]olap.Schema, error) {
	if err := cache.ensureSchemas(ctx); err != nil {
		return nil, err
	}

	cache.lock.RLock()
	defer cache.lock.RUnlock()

	schemas := make([]olap.Schema, 0, len(cache.schemas))
	for _, node := range cache.schemas {
		schemas = append(schemas, node.schema)
	}
	return schemas, nil
}

func (cache *Cache) Cubes(ctx context.Context, schema string) ([]olap.Cube, error) {
	if err := cache.ensureCubes(ctx, schema); err != nil {
		return nil, err
	}

	cache.lock.RLock()
	defer cache.lock.RUnlock()

	schemaNode := cache.schemaNode(schema)
	if schemaNode == nil {
		return nil, olap.NewError(olap.ErrorKindSchemaNotInDatabase, "schema '%s' not found", schema)
	}
	cubes := make([]olap.Cube, 0, len(schemaNode.cubes))
	for _, node := range schemaNode.cubes {
		cubes = append(cubes, node.cube)
	}
	return cubes, nil
}

// Dimensions returns the dimensions of the cube, except for the measure dimension.
func (cache *Cache) Dimensions(
	ctx context.Context,
	schema string,
	cube string,
) ([]olap.DimensionInfo, error) {
	all, err := cache.allDimensions(ctx, schema, cube)
	if err != nil {
		return nil, err
	}

	dimensions := make([]olap.DimensionInfo, 0, len(all))
	for _, dimension := range all {
		if dimension.Type != olap.DimensionTypeMeasure {
			dimensions = append(dimensions, dimension)
		}
	}
	return dimensions, nil
}

func (cache *Cache) Dimension(
	ctx context.Context,
	schema string,
	cube string,
	dimension string,
) (olap.DimensionInfo, error) {
	if err := cache.ensureDimensions(ctx, schema, cube); err != nil {
		return olap.DimensionInfo{}, err
	}

	cache.lock.RLock()
	defer cache.lock.RUnlock()

	node := cache.dimensionNode(schema, cube, dimension)
	if node == nil {
		return olap.DimensionInfo{}, olap.NewError(
			olap.ErrorKindDimensionNotInDatabase,
			"dimension '%s' not found in cube '%s'", dimension, cube,
		)
	}
	return node.dimension, nil
}

func (cache *Cache) allDimensions(
	ctx context.Context,
	schema string,
	cube string,
) ([]olap.DimensionInfo, error) {
	if err := cache.ensureDimensions(ctx, schema, cube); err != nil {
		return nil, err
	}

	cache.lock.RLock()
	defer cache.lock.RUnlock()

	cubeNode := cache.cubeNode(schema, cube)
	if cubeNode == nil {
		return nil, olap.NewError(olap.ErrorKindCubeNotInDatabase, "cube '%s' not found", cube)
	}
	dimensions := make([]olap.DimensionInfo, 0, len(cubeNode.dimensions))
	for _, node := range cubeNode.dimensions {
		dimensions = append(dimensions, node.dimension)
	}
	return dimensions, nil
}

func (cache *Cache) Hierarchies(
	ctx context.Context,
	schema string,
	cube string,
	dimension string,
) ([]olap.Hierarchy, error) {
	if err := cache.ensureHierarchies(ctx, schema, cube, dimension); err != nil {
		return nil, err
	}

	cache.lock.RLock()
	defer cache.lock.RUnlock()

	dimensionNode := cache.dimensionNode(schema, cube, dimension)
	if dimensionNode == nil {
		return nil, olap.NewError(
			olap.ErrorKindDimensionNotInDatabase, "dimension '%s' not found", dimension,
		)
	}
	hierarchies := make([]olap.Hierarchy, 0, len(dimensionNode.hierarchies))
	for _, node := range dimensionNode.hierarchies {
		hierarchies = append(hierarchies, node.hierarchy)
	}
	return hierarchies, nil
}

// Levels returns the captions of the hierarchy's levels, indexed by level.
func (cache *Cache) Levels(ctx context.Context, path HierarchyPath) ([]string, error) {
	if err := cache.ensureLevels(ctx, path); err != nil {
		return nil, err
	}

	cache.lock.RLock()
	defer cache.lock.RUnlock()

	node := cache.hierarchyNode(path)
	if node == nil {
		return nil, hierarchyNotFound(path)
	}
	captions := make([]string, 0, len(node.levels))
	for _, level := range node.levels {
		captions = append(captions, level.Caption)
	}
	return captions, nil
}

func (cache *Cache) Properties(
	ctx context.Context,
	path HierarchyPath,
	levelIndex int,
) ([]olap.Property, error) {
	level, err := cache.level(ctx, path, levelIndex)
	if err != nil {
		return nil, err
	}
	return append([]olap.Property(nil), level.Properties...), nil
}

// GeoProperty returns the first Geometry-typed property of any level of the hierarchy.
func (cache *Cache) GeoProperty(
	ctx context.Context,
	path HierarchyPath,
) (property olap.Property, found bool, err error) {
	if err := cache.ensureLevels(ctx, path); err != nil {
		return olap.Property{}, false, err
	}

	cache.lock.RLock()
	defer cache.lock.RUnlock()

	node := cache.hierarchyNode(path)
	if node == nil {
		return olap.Property{}, false, hierarchyNotFound(path)
	}
	for _, level := range node.levels {
		for _, property := range level.Properties {
			if property.Type == olap.PropertyTypeGeometry {
				return property, true, nil
			}
		}
	}
	return olap.Property{}, false, nil
}

func (cache *Cache) level(
	ctx context.Context,
	path HierarchyPath,
	levelIndex int,
) (olap.Level, error) {
	if err := cache.ensureLevels(ctx, path); err != nil {
		return olap.Level{}, err
	}

	cache.lock.RLock()
	defer cache.lock.RUnlock()

	node := cache.hierarchyNode(path)
	if node == nil {
		return olap.Level{}, hierarchyNotFound(path)
	}
	levels := node.levels
	if levelIndex < 0 || levelIndex >= len(levels) {
		return olap.Level{}, olap.NewError(
			olap.ErrorKindLevelNotInDatabase,
			"level %d not found in hierarchy '%s' (has %d levels)",
			levelIndex, path.Hierarchy, len(levels),
		)
	}
	return levels[levelIndex], nil
}

// DimensionOfType returns the ID of the first dimension of the given type in the cube.
func (cache *Cache) DimensionOfType(
	ctx context.Context,
	schema string,
	cube string,
	dimensionType olap.DimensionType,
) (string, error) {
	if !dimensionType.IsValid() {
		return "", olap.NewError(
			olap.ErrorKindIllegalDimensionType, "invalid dimension type %d", dimensionType,
		)
	}

	dimensions, err := cache.allDimensions(ctx, schema, cube)
	if err != nil {
		return "", err
	}

	for _, dimension := range dimensions {
		if dimension.Type == dimensionType {
			return dimension.ID, nil
		}
	}
	return "", olap.NewError(
		olap.ErrorKindDimensionNotInDatabase,
		"no %s dimension in cube '%s'", dimensionType, cube,
	)
}

func (cache *Cache) MeasureDimension(ctx context.Context, schema string, cube string) (string, error) {
	return cache.DimensionOfType(ctx, schema, cube, olap.DimensionTypeMeasure)
}

func (cache *Cache) TimeDimension(ctx context.Context, schema string, cube string) (string, error) {
	return cache.DimensionOfType(ctx, schema, cube, olap.DimensionTypeTime)
}

func (cache *Cache) GeoDimension(ctx context.Context, schema string, cube string) (string, error) {
	return cache.DimensionOfType(ctx, schema, cube, olap.DimensionTypeGeometry)
}

// Measures returns the members of the first level of the measure dimension's first
// hierarchy, ordered by ID.
func (cache *Cache) Measures(
	ctx context.Context,
	schema string,
	cube string,
) ([]olap.Measure, error) {
	dimension, err := cache.MeasureDimension(ctx, schema, cube)
	if err != nil {
		return nil, err
	}

	hierarchies, err := cache.Hierarchies(ctx, schema, cube, dimension)
	if err != nil {
		return nil, err
	}
	if len(hierarchies) == 0 {
		return nil, olap.NewError(
			olap.ErrorKindHierarchyNotInDatabase,
			"measure dimension '%s' of cube '%s' has no hierarchy", dimension, cube,
		)
	}

	members, err := cache.Members(ctx, MembersRequest{
		Path: HierarchyPath{
			Schema:    schema,
			Cube:      cube,
			Dimension: dimension,
			Hierarchy: hierarchies[0].ID,
		},
		Level: 0,
	})
	if err != nil {
		return nil, wrap.Errorf(err, "failed to get measures of cube '%s'", cube)
	}

	measures := make([]olap.Measure, 0, len(members))
	for _, id := range members.IDs() {
		measures = append(measures, olap.Measure{ID: id, Caption: members[id].Caption})
	}
	return measures, nil
}

type CubeMeasures struct {
	Cube     olap.Cube      `json:"cube"`
	Measures []olap.Measure `json:"measures"`
}

func (cache *Cache) CubesAndMeasures(ctx context.Context, schema string) ([]CubeMeasures, error) {
	cubes, err := cache.Cubes(ctx, schema)
	if err != nil {
		return nil, err
	}

	result := make([]CubeMeasures, 0, len(cubes))
	for _, cube := range cubes {
		measures, err := cache.Measures(ctx, schema, cube.ID)
		if err != nil {
			return nil, err
		}
		result = append(result, CubeMeasures{Cube: cube, Measures: measures})
	}
	return result, nil
}

func (cache *Cache) ensureSchemas(ctx context.Context) error {
	return cache.ensure(
		ctx,
		"schemas",
		func() bool { return cache.schemasFetched },
		func(ctx context.Context) error {
			ids, entries, err := cache.exploreEntries(ctx, olap.ExploreRequest{Path: []string{}})
			if err != nil {
				return wrap.Error(err, "failed to get schemas")
			}

			nodes := make([]*schemaNode, len(ids))
			for i, id := range ids {
				nodes[i] = &schemaNode{schema: olap.Schema{ID: id, Caption: entries[i].Caption}}
			}

			cache.lock.Lock()
			defer cache.lock.Unlock()
			cache.schemas = nodes
			cache.schemasFetched = true
			return nil
		},
	)
}

func (cache *Cache) ensureCubes(ctx context.Context, schema string) error {
	if err := cache.ensureSchemas(ctx); err != nil {
		return err
	}

	return cache.ensure(
		ctx,
		flightKey("cubes", schema),
		func() bool {
			node := cache.schemaNode(schema)
			return node != nil && node.cubesFetched
		},
		func(ctx context.Context) error {
			cache.lock.RLock()
			schemaNode := cache.schemaNode(schema)
			cache.lock.RUnlock()
			if schemaNode == nil {
				return olap.NewError(
					olap.ErrorKindSchemaNotInDatabase, "schema '%s' not found", schema,
				)
			}

			ids, entries, err := cache.exploreEntries(
				ctx, olap.ExploreRequest{Path: []string{schema}},
			)
			if err != nil {
				return wrap.Errorf(err, "failed to get cubes of schema '%s'", schema)
			}

			nodes := make([]*cubeNode, len(ids))
			for i, id := range ids {
				nodes[i] = &cubeNode{cube: olap.Cube{
					ID:          id,
					Caption:     entries[i].Caption,
					Description: entries[i].Description,
				}}
			}

			cache.lock.Lock()
			defer cache.lock.Unlock()
			schemaNode.cubes = nodes
			schemaNode.cubesFetched = true
			return nil
		},
	)
}

func (cache *Cache) ensureDimensions(ctx context.Context, schema string, cube string) error {
	if err := cache.ensureCubes(ctx, schema); err != nil {
		return err
	}

	return cache.ensure(
		ctx,
		flightKey("dimensions", schema, cube),
		func() bool {
			node := cache.cubeNode(schema, cube)
			return node != nil && node.dimensionsFetched
		},
		func(ctx context.Context) error {
			cache.lock.RLock()
			cubeNode := cache.cubeNode(schema, cube)
			cache.lock.RUnlock()
			if cubeNode == nil {
				return olap.NewError(
					olap.ErrorKindCubeNotInDatabase,
					"cube '%s' not found in schema '%s'", cube, schema,
				)
			}

			ids, entries, err := cache.exploreEntries(
				ctx, olap.ExploreRequest{Path: []string{schema, cube}},
			)
			if err != nil {
				return wrap.Errorf(err, "failed to get dimensions of cube '%s'", cube)
			}

			nodes := make([]*dimensionNode, len(ids))
			for i, id := range ids {
				dimensionType := entries[i].Type
				if !dimensionType.IsValid() {
					dimensionType = olap.DimensionTypeStandard
				}
				nodes[i] = &dimensionNode{dimension: olap.DimensionInfo{
					ID:          id,
					Caption:     entries[i].Caption,
					Description: entries[i].Description,
					Type:        dimensionType,
				}}
			}

			cache.lock.Lock()
			defer cache.lock.Unlock()
			cubeNode.dimensions = nodes
			cubeNode.dimensionsFetched = true
			return nil
		},
	)
}

func (cache *Cache) ensureHierarchies(
	ctx context.Context,
	schema string,
	cube string,
	dimension string,
) error {
	if err := cache.ensureDimensions(ctx, schema, cube); err != nil {
		return err
	}

	return cache.ensure(
		ctx,
		flightKey("hierarchies", schema, cube, dimension),
		func() bool {
			node := cache.dimensionNode(schema, cube, dimension)
			return node != nil && node.hierarchiesFetched
		},
		func(ctx context.Context) error {
			cache.lock.RLock()
			dimensionNode := cache.dimensionNode(schema, cube, dimension)
			cache.lock.RUnlock()
			if dimensionNode == nil {
				return olap.NewError(
					olap.ErrorKindDimensionNotInDatabase,
					"dimension '%s' not found in cube '%s'", dimension, cube,
				)
			}

			ids, entries, err := cache.exploreEntries(
				ctx, olap.ExploreRequest{Path: []string{schema, cube, dimension}},
			)
			if err != nil {
				return wrap.Errorf(err, "failed to get hierarchies of dimension '%s'", dimension)
			}

			nodes := make([]*hierarchyNode, len(ids))
			for i, id := range ids {
				nodes[i] = &hierarchyNode{hierarchy: olap.Hierarchy{
					ID:          id,
					Caption:     entries[i].Caption,
					Description: entries[i].Description,
				}}
			}

			cache.lock.Lock()
			defer cache.lock.Unlock()
			dimensionNode.hierarchies = nodes
			dimensionNode.hierarchiesFetched = true
			return nil
		},
	)
}

func (cache *Cache) ensureLevels(ctx context.Context, path HierarchyPath) error {
	if err := cache.ensureHierarchies(ctx, path.Schema, path.Cube, path.Dimension); err != nil {
		return err
	}

	return cache.ensure(
		ctx,
		flightKey("levels", path.explorePath()...),
		func() bool {
			node := cache.hierarchyNode(path)
			return node != nil && node.levelsFetched
		},
		func(ctx context.Context) error {
			cache.lock.RLock()
			hierarchyNode := cache.hierarchyNode(path)
			cache.lock.RUnlock()
			if hierarchyNode == nil {
				return hierarchyNotFound(path)
			}

			data, err := cache.explore(
				ctx, olap.ExploreRequest{Path: path.explorePath(), WithProperties: true},
			)
			if err != nil {
				return wrap.Errorf(err, "failed to get levels of hierarchy '%s'", path.Hierarchy)
			}

			var levels []olap.Level
			if err := json.Unmarshal(data, &levels); err != nil {
				return olap.NewError(
					olap.ErrorKindIllegalAPIResponse,
					"invalid levels of hierarchy '%s': %v", path.Hierarchy, err,
				)
			}

			cache.lock.Lock()
			defer cache.lock.Unlock()
			hierarchyNode.levels = levels
			hierarchyNode.levelsFetched = true
			return nil
		},
	)
}

func flightKey(kind string, path ...string) string {
	key := kind
	for _, element := range path {
		key += "\x00" + element
	}
	return key
}

func hierarchyNotFound(path HierarchyPath) error {
	return olap.NewError(
		olap.ErrorKindHierarchyNotInDatabase,
		"hierarchy '%s' not found in dimension '%s'", path.Hierarchy, path.Dimension,
	)
}
