package crossfilter

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"hermannm.dev/wrap"
)

// serverEngine computes every group with a query: the grouped dimension is diced, other
// dimensions are sliced with their filter if they have one, else with all their members.
// Aggregated dimensions are neither sliced nor diced.
type serverEngine struct {
	lock       sync.Mutex
	descriptor ServerDescriptor
	dimensions []*serverDimension
}

type serverDimension struct {
	engine   *serverEngine
	column   string
	filters  []string
	groups   []*serverGroup
	disposed bool
}

type serverGroup struct {
	dimension *serverDimension
	reducer   Reducer
	disposed  bool
}

func newServerEngine(descriptor ServerDescriptor) *serverEngine {
	return &serverEngine{descriptor: descriptor}
}

func (engine *serverEngine) Dimension(column string) (Dimension, error) {
	engine.lock.Lock()
	defer engine.lock.Unlock()

	if _, ok := engine.descriptor.Dimensions[column]; !ok {
		return nil, fmt.Errorf("dimension '%s' is not part of the server dataset", column)
	}

	dimension := &serverDimension{engine: engine, column: column}
	engine.dimensions = append(engine.dimensions, dimension)
	return dimension, nil
}

func (dimension *serverDimension) Column() string {
	return dimension.column
}

func (dimension *serverDimension) FilterMembers(members []string) error {
	dimension.engine.lock.Lock()
	defer dimension.engine.lock.Unlock()

	if dimension.disposed {
		return ErrDisposed
	}
	if len(members) == 0 {
		dimension.filters = nil
	} else {
		dimension.filters = slices.Clone(members)
	}
	return nil
}

func (dimension *serverDimension) FilterAll() error {
	return dimension.FilterMembers(nil)
}

func (dimension *serverDimension) Filters() []string {
	dimension.engine.lock.Lock()
	defer dimension.engine.lock.Unlock()
	return slices.Clone(dimension.filters)
}

func (dimension *serverDimension) Group() (Group, error) {
	dimension.engine.lock.Lock()
	defer dimension.engine.lock.Unlock()

	if dimension.disposed {
		return nil, ErrDisposed
	}

	group := &serverGroup{dimension: dimension, reducer: CountReducer()}
	dimension.groups = append(dimension.groups, group)
	return group, nil
}

func (dimension *serverDimension) Dispose() {
	engine := dimension.engine
	engine.lock.Lock()
	defer engine.lock.Unlock()

	if dimension.disposed {
		return
	}
	for _, group := range dimension.groups {
		group.disposed = true
	}
	dimension.groups = nil
	dimension.filters = nil
	dimension.disposed = true
	engine.dimensions = slices.DeleteFunc(engine.dimensions, func(candidate *serverDimension) bool {
		return candidate == dimension
	})
}

func (dimension *serverDimension) Disposed() bool {
	dimension.engine.lock.Lock()
	defer dimension.engine.lock.Unlock()
	return dimension.disposed
}

// Must be called with the engine lock held.
func (engine *serverEngine) filtersOf(column string) []string {
	for _, dimension := range engine.dimensions {
		if dimension.column == column && dimension.filters != nil {
			return dimension.filters
		}
	}
	return nil
}

func (group *serverGroup) ReduceSum(measure string) Group {
	return group.Reduce(SumReducer(measure))
}

func (group *serverGroup) Reduce(reducer Reducer) Group {
	group.dimension.engine.lock.Lock()
	defer group.dimension.engine.lock.Unlock()
	group.reducer = reducer
	return group
}

func (group *serverGroup) All(ctx context.Context) ([]KeyValue, error) {
	engine := group.dimension.engine
	engine.lock.Lock()
	defer engine.lock.Unlock()

	if group.disposed {
		return nil, ErrDisposed
	}

	descriptor := engine.descriptor
	column := group.dimension.column
	grouped := descriptor.Dimensions[column]
	runner := descriptor.API

	if err := runner.Clear(); err != nil {
		return nil, err
	}
	if err := runner.Drill(descriptor.Cube); err != nil {
		return nil, err
	}
	for _, measure := range descriptor.Measures {
		if err := runner.Push(measure); err != nil {
			return nil, err
		}
	}

	columns := make([]string, 0, len(descriptor.Dimensions))
	for id := range descriptor.Dimensions {
		columns = append(columns, id)
	}
	slices.Sort(columns)

	for _, id := range columns {
		dimension := descriptor.Dimensions[id]
		if dimension.Aggregated {
			if err := runner.Project(dimension.Hierarchy); err != nil {
				return nil, err
			}
			continue
		}

		members := dimension.Members
		if id != column {
			if filters := engine.filtersOf(id); filters != nil {
				members = filters
			}
		}
		if err := runner.Slice(dimension.Hierarchy, members, false); err != nil {
			return nil, err
		}
	}
	if !grouped.Aggregated {
		if err := runner.Dice(grouped.Hierarchy); err != nil {
			return nil, err
		}
	}

	rows, err := runner.Execute(ctx)
	if err != nil {
		return nil, wrap.Errorf(err, "failed to aggregate dimension '%s' on server", column)
	}

	values := make(map[string]any, len(grouped.Members))
	for _, member := range grouped.Members {
		values[member] = group.reducer.Init()
	}
	for _, row := range rows {
		key, _ := row.Member(column)
		value, ok := values[key]
		if !ok {
			value = group.reducer.Init()
		}
		values[key] = group.reducer.Add(value, row)
	}

	return sortedKeyValues(values), nil
}

func (group *serverGroup) Dispose() {
	group.dimension.engine.lock.Lock()
	defer group.dimension.engine.lock.Unlock()

	if group.disposed {
		return
	}
	group.disposed = true
	group.dimension.groups = slices.DeleteFunc(
		group.dimension.groups,
		func(candidate *serverGroup) bool { return candidate == group },
	)
}

func (group *serverGroup) Disposed() bool {
	group.dimension.engine.lock.Lock()
	defer group.dimension.engine.lock.Unlock()
	return group.disposed
}
