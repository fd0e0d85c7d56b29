package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"

	"hermannm.dev/cubes/olap"
	"hermannm.dev/devlog/log"
	"hermannm.dev/wrap"
)

// Every cube has a measure dimension, with a single hierarchy and level whose members are
// the measures of the cube.
const (
	MeasuresDimension = "[Measures]"
	MeasuresHierarchy = "[Measures]"
	MeasuresLevel     = "[Measures].[MeasuresLevel]"
)

func (backend *Backend) Explore(ctx context.Context, request olap.ExploreRequest) (olap.Reply, error) {
	data, err := backend.explore(ctx, request)
	if err != nil {
		return errorReply(err)
	}
	return olap.Reply{Error: olap.ReplyStatusOK, Data: data}, nil
}

func (backend *Backend) explore(ctx context.Context, request olap.ExploreRequest) (json.RawMessage, error) {
	path := request.Path

	switch len(path) {
	case 0:
		entries := make([]entry, 0, len(backend.definitions.Schemas))
		for _, schema := range backend.definitions.Schemas {
			entries = append(entries, entry{id: schema.ID, value: olap.ExploreEntry{Caption: schema.Caption}})
		}
		return encodeEntries(entries)
	case 1:
		schema, err := backend.definitions.schema(path[0])
		if err != nil {
			return nil, err
		}
		entries := make([]entry, 0, len(schema.Cubes))
		for _, cube := range schema.Cubes {
			entries = append(entries, entry{id: cube.ID, value: olap.ExploreEntry{
				Caption: cube.Caption, Description: cube.Description,
			}})
		}
		return encodeEntries(entries)
	}

	cube, err := backend.definitions.cube(path[0], path[1])
	if err != nil {
		return nil, err
	}

	if len(path) == 2 {
		entries := []entry{{id: MeasuresDimension, value: olap.ExploreEntry{
			Caption: "Measures", Type: olap.DimensionTypeMeasure,
		}}}
		for _, dimension := range cube.Dimensions {
			dimensionType, _ := olap.ParseDimensionType(dimension.Type)
			entries = append(entries, entry{id: dimension.ID, value: olap.ExploreEntry{
				Caption: dimension.Caption, Description: dimension.Description, Type: dimensionType,
			}})
		}
		return encodeEntries(entries)
	}

	if path[2] == MeasuresDimension {
		return exploreMeasures(cube, request)
	}

	dimension, err := cube.dimension(path[2])
	if err != nil {
		return nil, err
	}

	if len(path) == 3 {
		entries := make([]entry, 0, len(dimension.Hierarchies))
		for _, hierarchy := range dimension.Hierarchies {
			entries = append(entries, entry{id: hierarchy.ID, value: olap.ExploreEntry{
				Caption: hierarchy.Caption, Description: hierarchy.Description,
			}})
		}
		return encodeEntries(entries)
	}

	hierarchy, err := dimension.hierarchy(path[3])
	if err != nil {
		return nil, err
	}

	if len(path) == 4 {
		levels := make([]olap.Level, 0, len(hierarchy.Levels))
		for _, level := range hierarchy.Levels {
			levels = append(levels, level.toLevel())
		}
		return json.Marshal(levels)
	}

	if len(path) > 6 {
		return nil, olap.NewError(olap.ErrorKindQueryAPIBadRequest, "explore path is too long")
	}

	members, err := backend.exploreMembers(ctx, cube, dimension, hierarchy, request)
	if err != nil {
		return nil, err
	}
	return json.Marshal(members)
}

func exploreMeasures(cube CubeDefinition, request olap.ExploreRequest) (json.RawMessage, error) {
	path := request.Path

	switch {
	case len(path) == 3:
		return encodeEntries([]entry{{id: MeasuresHierarchy, value: olap.ExploreEntry{Caption: "Measures"}}})
	case path[3] != MeasuresHierarchy:
		return nil, olap.NewError(
			olap.ErrorKindHierarchyNotInDatabase, "hierarchy '%s' not found in measures", path[3],
		)
	case len(path) == 4:
		return json.Marshal([]olap.Level{{ID: MeasuresLevel, Caption: "Measures", Properties: olap.Properties{}}})
	case path[4] != MeasuresLevel:
		return nil, olap.NewError(
			olap.ErrorKindLevelNotInDatabase, "level '%s' not found in measures", path[4],
		)
	case len(path) > 5:
		return nil, olap.NewError(olap.ErrorKindQueryAPIBadRequest, "measures have no descendants")
	}

	members := olap.Members{}
	for _, measure := range cube.Measures {
		if request.Members != nil && !slices.Contains(request.Members, measure.ID) {
			continue
		}
		members[measure.ID] = olap.Member{Caption: measure.Caption}
	}
	return json.Marshal(members)
}

func (level LevelDefinition) toLevel() olap.Level {
	properties := make(olap.Properties, 0, len(level.Properties))
	for _, property := range level.Properties {
		propertyType, _ := olap.ParsePropertyType(property.Type)
		properties = append(properties, olap.Property{
			ID:          property.ID,
			Caption:     property.Caption,
			Description: property.Description,
			Type:        propertyType,
		})
	}
	return olap.Level{
		ID:          level.ID,
		Caption:     level.Caption,
		Description: level.Description,
		Properties:  properties,
	}
}

func (backend *Backend) exploreMembers(
	ctx context.Context,
	cube CubeDefinition,
	dimension DimensionDefinition,
	hierarchy HierarchyDefinition,
	request olap.ExploreRequest,
) (olap.Members, error) {
	query, err := buildMembersQuery(cube, dimension, hierarchy, request)
	if err != nil {
		return nil, err
	}

	log.Debug("generated clickhouse query", slog.String("query", query.String()))

	rows, err := backend.conn.Query(ctx, query.String(), query.Args()...)
	if err != nil {
		return nil, wrap.Error(err, "members query failed")
	}
	defer rows.Close()

	members := olap.Members{}
	for rows.Next() {
		values := make([]string, query.levels+len(query.properties))
		targets := make([]any, len(values))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, wrap.Error(err, "failed to scan member row")
		}

		member := olap.Member{Caption: values[query.levels-1]}
		if len(query.properties) > 0 {
			member.Properties = make(map[string]any, len(query.properties))
			for i, property := range query.properties {
				member.Properties[property] = values[query.levels+i]
			}
		}
		members[memberID(dimension.ID, values[:query.levels])] = member
	}
	if err := rows.Err(); err != nil {
		return nil, wrap.Error(err, "failed to read member rows")
	}

	return members, nil
}

type membersQuery struct {
	QueryBuilder
	// Number of level columns selected, from the first level down to the requested one.
	levels int
	// IDs of the property columns selected after the level columns.
	properties []string
}

func buildMembersQuery(
	cube CubeDefinition,
	dimension DimensionDefinition,
	hierarchy HierarchyDefinition,
	request olap.ExploreRequest,
) (*membersQuery, error) {
	path := request.Path
	levelIndex, err := hierarchy.levelIndex(path[4])
	if err != nil {
		return nil, err
	}

	targetIndex := levelIndex
	var parent []string
	if len(path) == 6 {
		parent, err = parseMemberID(dimension.ID, path[5])
		if err != nil {
			return nil, olap.NewError(olap.ErrorKindQueryAPIBadRequest, "%v", err)
		}
		if len(parent) != levelIndex+1 {
			return nil, olap.NewError(
				olap.ErrorKindQueryAPIBadRequest,
				"member '%s' is not on level '%s'", path[5], path[4],
			)
		}
		targetIndex += max(1, request.DescendingLevel)
	}
	if targetIndex >= len(hierarchy.Levels) {
		return nil, olap.NewError(
			olap.ErrorKindLevelNotInDatabase,
			"hierarchy '%s' has no level %d below '%s'", hierarchy.ID, targetIndex-levelIndex, path[4],
		)
	}

	query := &membersQuery{levels: targetIndex + 1}
	levels := hierarchy.Levels[:targetIndex+1]

	query.WriteString("SELECT DISTINCT ")
	for i, level := range levels {
		if i != 0 {
			query.WriteString(", ")
		}
		writeLevelColumn(&query.QueryBuilder, level.Column, i)
	}
	if request.WithProperties {
		for _, property := range levels[targetIndex].Properties {
			query.WriteString(", toString(")
			query.WriteIdentifier(property.Column)
			query.WriteString(")")
			query.properties = append(query.properties, property.ID)
		}
	}

	query.WriteString(" FROM ")
	query.WriteIdentifier(cube.Table)

	var conditions []func()
	if parent != nil {
		conditions = append(conditions, func() {
			writeMemberCondition(&query.QueryBuilder, levels, parent)
		})
	}
	if request.Members != nil {
		memberValues := make([][]string, 0, len(request.Members))
		for _, id := range request.Members {
			values, err := parseMemberID(dimension.ID, id)
			if err != nil {
				return nil, olap.NewError(olap.ErrorKindQueryAPIBadRequest, "%v", err)
			}
			if len(values) != len(levels) {
				return nil, olap.NewError(
					olap.ErrorKindQueryAPIBadRequest,
					"member '%s' is not on level '%s'", id, levels[targetIndex].ID,
				)
			}
			memberValues = append(memberValues, values)
		}
		conditions = append(conditions, func() {
			writeMembersCondition(&query.QueryBuilder, levels, memberValues)
		})
	}
	writeWhere(&query.QueryBuilder, conditions)

	query.WriteString(" ORDER BY ")
	for i := range levels {
		if i != 0 {
			query.WriteString(", ")
		}
		query.WriteString(levelAlias(i))
	}

	return query, nil
}

func writeLevelColumn(query *QueryBuilder, column string, index int) {
	query.WriteString("toString(")
	query.WriteIdentifier(column)
	query.WriteString(") AS ")
	query.WriteString(levelAlias(index))
}

func levelAlias(index int) string {
	return fmt.Sprintf("level_%d", index)
}

func writeWhere(query *QueryBuilder, conditions []func()) {
	for i, condition := range conditions {
		if i == 0 {
			query.WriteString(" WHERE ")
		} else {
			query.WriteString(" AND ")
		}
		condition()
	}
}

// writeMemberCondition matches rows of the member with the given level values.
func writeMemberCondition(query *QueryBuilder, levels []LevelDefinition, values []string) {
	query.WriteByte('(')
	for i, value := range values {
		if i != 0 {
			query.WriteString(" AND ")
		}
		query.WriteString("toString(")
		query.WriteIdentifier(levels[i].Column)
		query.WriteString(") = ")
		query.WriteArg(value)
	}
	query.WriteByte(')')
}

// writeMembersCondition matches rows of any of the members. An empty member list matches
// no rows.
func writeMembersCondition(query *QueryBuilder, levels []LevelDefinition, members [][]string) {
	if len(members) == 0 {
		query.WriteString("0")
		return
	}

	query.WriteByte('(')
	for i, values := range members {
		if i != 0 {
			query.WriteString(" OR ")
		}
		writeMemberCondition(query, levels, values)
	}
	query.WriteByte(')')
}

type entry struct {
	id    string
	value olap.ExploreEntry
}

func encodeEntries(entries []entry) (json.RawMessage, error) {
	keyed := make([]olap.KeyedValue, 0, len(entries))
	for _, entry := range entries {
		value, err := json.Marshal(entry.value)
		if err != nil {
			return nil, wrap.Errorf(err, "failed to encode '%s'", entry.id)
		}
		keyed = append(keyed, olap.KeyedValue{Key: entry.id, Value: value})
	}
	return olap.EncodeOrderedObject(keyed)
}
