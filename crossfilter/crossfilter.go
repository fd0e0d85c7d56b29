// Package crossfilter aggregates measures by dimension while other dimensions are
// filtered, either over rows held in memory or through queries on the query API.
package crossfilter

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"hermannm.dev/cubes/olap"
)

// Input is the dataset an engine aggregates: either Rows or a ServerDescriptor.
type Input interface {
	aggregationInput()
}

// Rows are the result rows of a query, aggregated in memory.
type Rows []olap.Row

func (Rows) aggregationInput() {}

// ServerDescriptor describes a dataset that is too large to hold in memory, so that every
// group is computed by a query on the query API.
type ServerDescriptor struct {
	API        QueryRunner                    `json:"-"`
	Schema     string                         `json:"schema"`
	Cube       string                         `json:"cube"`
	Measures   []string                       `json:"measures"`
	Dimensions map[string]DimensionDescriptor `json:"dimensions"`
}

func (ServerDescriptor) aggregationInput() {}

type DimensionDescriptor struct {
	Hierarchy string   `json:"hierarchy"`
	Level     int      `json:"level"`
	Members   []string `json:"members"`
	// Aggregated dimensions are projected out of every query, so their groups hold a
	// single total under the empty key.
	Aggregated bool `json:"aggregated,omitempty"`
}

// QueryRunner is implemented by query.Builder.
type QueryRunner interface {
	Clear() error
	Drill(cube string) error
	Push(measure string) error
	Slice(hierarchy string, members []string, isRange bool) error
	Dice(hierarchies ...string) error
	Project(hierarchy string) error
	Execute(ctx context.Context) ([]olap.Row, error)
}

type Engine interface {
	// Dimension creates a handle on the given row column (a dimension ID).
	Dimension(column string) (Dimension, error)
}

type Dimension interface {
	Column() string
	// FilterMembers keeps only rows whose member is in the list. An empty list keeps all.
	FilterMembers(members []string) error
	FilterAll() error
	Filters() []string
	Group() (Group, error)
	// Dispose removes the dimension's filter and frees its groups.
	Dispose()
	Disposed() bool
}

// Group aggregates rows by the members of its dimension. Filters on its own dimension do
// not apply to a group, filters on every other dimension of the engine do.
type Group interface {
	ReduceSum(measure string) Group
	Reduce(reducer Reducer) Group
	All(ctx context.Context) ([]KeyValue, error)
	Dispose()
	Disposed() bool
}

// Reducer folds rows into a group value. Remove must undo Add for the same row.
type Reducer struct {
	Add    func(value any, row olap.Row) any
	Remove func(value any, row olap.Row) any
	Init   func() any
}

func SumReducer(measure string) Reducer {
	return Reducer{
		Add: func(value any, row olap.Row) any {
			return value.(float64) + row.Value(measure)
		},
		Remove: func(value any, row olap.Row) any {
			return value.(float64) - row.Value(measure)
		},
		Init: func() any {
			return 0.0
		},
	}
}

func CountReducer() Reducer {
	return Reducer{
		Add:    func(value any, row olap.Row) any { return value.(float64) + 1 },
		Remove: func(value any, row olap.Row) any { return value.(float64) - 1 },
		Init:   func() any { return 0.0 },
	}
}

type KeyValue struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

var ErrDisposed = errors.New("crossfilter handle is disposed")

func New(input Input) (Engine, error) {
	switch input := input.(type) {
	case Rows:
		return newMemoryEngine(input), nil
	case ServerDescriptor:
		if input.API == nil {
			return nil, olap.NewError(
				olap.ErrorKindQueryAPINotProvided, "server descriptor has no query API",
			)
		}
		return newServerEngine(input), nil
	default:
		return nil, fmt.Errorf("unsupported aggregation input %T", input)
	}
}

func sortedKeyValues(values map[string]any) []KeyValue {
	keyValues := make([]KeyValue, 0, len(values))
	for key, value := range values {
		keyValues = append(keyValues, KeyValue{Key: key, Value: value})
	}
	slices.SortFunc(keyValues, func(a KeyValue, b KeyValue) int {
		return cmp.Compare(a.Key, b.Key)
	})
	return keyValues
}

func memberSet(members []string) map[string]struct{} {
	if len(members) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(members))
	for _, member := range members {
		set[member] = struct{}{}
	}
	return set
}
