package clickhouse

import (
	"context"
	"fmt"
	"log/slog"

	"hermannm.dev/cubes/olap"
	"hermannm.dev/devlog/log"
	"hermannm.dev/wrap"
)

func (backend *Backend) Execute(ctx context.Context) (olap.Reply, error) {
	backend.lock.Lock()
	state := backend.state.Clone()
	backend.lock.Unlock()

	rows, err := backend.execute(ctx, state)
	if err != nil {
		return errorReply(err)
	}
	return olap.OKReply(rows)
}

func (backend *Backend) execute(ctx context.Context, state olap.QueryState) ([]olap.Row, error) {
	if state.Cube == "" {
		return nil, olap.NewError(olap.ErrorKindNoCubeDrilled, "no cube drilled before execute")
	}

	cube, err := backend.definitions.cubeByID(state.Cube)
	if err != nil {
		return nil, err
	}

	query, err := buildExecuteQuery(cube, state)
	if err != nil {
		return nil, err
	}

	log.Debug("generated clickhouse query", slog.String("query", query.String()))

	result, err := backend.conn.Query(ctx, query.String(), query.Args()...)
	if err != nil {
		return nil, wrap.Error(err, "execute query failed")
	}
	defer result.Close()

	columnCount := len(query.measures)
	for _, diced := range query.diced {
		columnCount += diced.levels
	}

	var rows []olap.Row
	for result.Next() {
		memberValues := make([]string, columnCount-len(query.measures))
		measureValues := make([]float64, len(query.measures))

		targets := make([]any, 0, columnCount)
		for i := range memberValues {
			targets = append(targets, &memberValues[i])
		}
		for i := range measureValues {
			targets = append(targets, &measureValues[i])
		}
		if err := result.Scan(targets...); err != nil {
			return nil, wrap.Error(err, "failed to scan result row")
		}

		row := make(olap.Row, len(query.diced)+len(query.measures))
		offset := 0
		for _, diced := range query.diced {
			row[diced.dimension] = memberID(diced.dimension, memberValues[offset:offset+diced.levels])
			offset += diced.levels
		}
		for i, measure := range query.measures {
			row[measure] = measureValues[i]
		}
		rows = append(rows, row)
	}
	if err := result.Err(); err != nil {
		return nil, wrap.Error(err, "failed to read result rows")
	}

	return rows, nil
}

type executeQuery struct {
	QueryBuilder
	diced    []dicedHierarchy
	measures []string
}

type dicedHierarchy struct {
	dimension string
	levels    int
}

// buildExecuteQuery compiles the query state to a single grouped select over the fact
// table. Diced hierarchies are grouped on down to the level of their slice members, or
// their first level when not sliced.
func buildExecuteQuery(cube CubeDefinition, state olap.QueryState) (*executeQuery, error) {
	query := &executeQuery{}

	measures := make([]MeasureDefinition, 0, len(state.Measures))
	for _, id := range state.Measures {
		measure, err := cube.measure(id)
		if err != nil {
			return nil, err
		}
		measures = append(measures, measure)
		query.measures = append(query.measures, id)
	}

	var selected []func()
	var groupBy []string
	var conditions []func()

	addAxis := func(axis olap.Axis) error {
		dimension, hierarchy, err := cube.hierarchy(axis.Hierarchy)
		if err != nil {
			return err
		}

		members := make([][]string, 0, len(axis.Members))
		depth := 0
		for i, id := range axis.Members {
			values, err := parseMemberID(dimension.ID, id)
			if err != nil {
				return olap.NewError(olap.ErrorKindQueryAPIBadRequest, "%v", err)
			}
			if len(values) > len(hierarchy.Levels) {
				return olap.NewError(
					olap.ErrorKindLevelNotInDatabase,
					"member '%s' is below the last level of '%s'", id, hierarchy.ID,
				)
			}
			if i == 0 {
				depth = len(values) - 1
			} else if len(values)-1 != depth {
				return olap.NewError(
					olap.ErrorKindQueryAPIBadRequest,
					"members of '%s' are not on the same level", hierarchy.ID,
				)
			}
			members = append(members, values)
		}
		levels := hierarchy.Levels[:depth+1]

		if axis.Members != nil {
			if axis.Range {
				if len(members) != 2 {
					return olap.NewError(
						olap.ErrorKindQueryAPIBadRequest,
						"range on '%s' needs 2 members, got %d", hierarchy.ID, len(members),
					)
				}
				conditions = append(conditions, func() {
					writeRangeCondition(&query.QueryBuilder, levels, members[0], members[1])
				})
			} else {
				conditions = append(conditions, func() {
					writeMembersCondition(&query.QueryBuilder, levels, members)
				})
			}
		}

		if axis.Dice {
			dicedIndex := len(query.diced)
			query.diced = append(query.diced, dicedHierarchy{dimension: dimension.ID, levels: len(levels)})
			for i, level := range levels {
				alias := fmt.Sprintf("h%d_%s", dicedIndex, levelAlias(i))
				selected = append(selected, func() {
					query.WriteString("toString(")
					query.WriteIdentifier(level.Column)
					query.WriteString(") AS ")
					query.WriteString(alias)
				})
				groupBy = append(groupBy, alias)
			}
		}
		return nil
	}

	for _, axis := range state.Rows {
		if err := addAxis(axis); err != nil {
			return nil, err
		}
	}
	for _, axis := range state.Where {
		axis.Dice = false
		if err := addAxis(axis); err != nil {
			return nil, err
		}
	}

	for i, measure := range measures {
		alias := fmt.Sprintf("measure_%d", i)
		selected = append(selected, func() {
			writeAggregation(&query.QueryBuilder, measure)
			query.WriteString(" AS ")
			query.WriteString(alias)
		})
	}

	if len(selected) == 0 {
		return nil, olap.NewError(
			olap.ErrorKindQueryAPIBadRequest, "query on '%s' selects neither members nor measures", cube.ID,
		)
	}

	query.WriteString("SELECT ")
	for i, column := range selected {
		if i != 0 {
			query.WriteString(", ")
		}
		column()
	}

	query.WriteString(" FROM ")
	query.WriteIdentifier(cube.Table)

	writeWhere(&query.QueryBuilder, conditions)

	if len(groupBy) > 0 {
		query.WriteString(" GROUP BY ")
		for i, alias := range groupBy {
			if i != 0 {
				query.WriteString(", ")
			}
			query.WriteString(alias)
		}
		query.WriteString(" ORDER BY ")
		for i, alias := range groupBy {
			if i != 0 {
				query.WriteString(", ")
			}
			query.WriteString(alias)
		}
	}

	return query, nil
}

func writeAggregation(query *QueryBuilder, measure MeasureDefinition) {
	query.WriteString("toFloat64(")
	query.WriteString(clickhouseAggregations.GetNameOrFallback(measure.Aggregation, "sum"))
	query.WriteByte('(')
	if measure.Aggregation != AggregationCount {
		query.WriteIdentifier(measure.Column)
	}
	query.WriteString("))")
}

// writeRangeCondition matches rows whose level values lie between the two members,
// compared level by level.
func writeRangeCondition(query *QueryBuilder, levels []LevelDefinition, from []string, to []string) {
	writeTuple := func(values []string) {
		query.WriteByte('(')
		for i, value := range values {
			if i != 0 {
				query.WriteString(", ")
			}
			query.WriteArg(value)
		}
		query.WriteByte(')')
	}

	query.WriteString("(")
	for i, level := range levels {
		if i != 0 {
			query.WriteString(", ")
		}
		query.WriteString("toString(")
		query.WriteIdentifier(level.Column)
		query.WriteString(")")
	}
	query.WriteString(") BETWEEN ")
	writeTuple(from)
	query.WriteString(" AND ")
	writeTuple(to)
}
