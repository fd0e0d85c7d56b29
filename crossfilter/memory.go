package crossfilter

import (
	"context"
	"errors"
	"slices"
	"sync"

	"hermannm.dev/cubes/olap"
)

// A uint64 bitmask per row records which dimensions filter the row out.
const maxMemoryDimensions = 64

type memoryEngine struct {
	lock        sync.Mutex
	rows        []olap.Row
	filteredOut []uint64
	dimensions  []*memoryDimension
	usedBits    uint64
}

type memoryDimension struct {
	engine   *memoryEngine
	column   string
	bit      uint64
	filter   map[string]struct{}
	filters  []string
	groups   []*memoryGroup
	disposed bool
}

type memoryGroup struct {
	dimension *memoryDimension
	reducer   Reducer
	values    map[string]any
	disposed  bool
}

func newMemoryEngine(rows Rows) *memoryEngine {
	return &memoryEngine{rows: rows, filteredOut: make([]uint64, len(rows))}
}

func (engine *memoryEngine) Dimension(column string) (Dimension, error) {
	engine.lock.Lock()
	defer engine.lock.Unlock()

	if len(engine.dimensions) >= maxMemoryDimensions {
		return nil, errors.New("too many crossfilter dimensions on dataset")
	}

	var bit uint64 = 1
	for engine.usedBits&bit != 0 {
		bit <<= 1
	}
	engine.usedBits |= bit

	dimension := &memoryDimension{engine: engine, column: column, bit: bit}
	engine.dimensions = append(engine.dimensions, dimension)
	return dimension, nil
}

func (dimension *memoryDimension) Column() string {
	return dimension.column
}

func (dimension *memoryDimension) FilterMembers(members []string) error {
	engine := dimension.engine
	engine.lock.Lock()
	defer engine.lock.Unlock()

	if dimension.disposed {
		return ErrDisposed
	}

	dimension.filters = slices.Clone(members)
	dimension.filter = memberSet(members)
	engine.applyFilter(dimension)
	return nil
}

func (dimension *memoryDimension) FilterAll() error {
	return dimension.FilterMembers(nil)
}

func (dimension *memoryDimension) Filters() []string {
	dimension.engine.lock.Lock()
	defer dimension.engine.lock.Unlock()
	return slices.Clone(dimension.filters)
}

func (dimension *memoryDimension) matches(row olap.Row) bool {
	if dimension.filter == nil {
		return true
	}
	member, _ := row.Member(dimension.column)
	_, ok := dimension.filter[member]
	return ok
}

// applyFilter updates the filter bit of the dimension on every row, and adds or removes
// rows from the groups of other dimensions as they enter or leave their filter. Must be
// called with the engine lock held.
func (engine *memoryEngine) applyFilter(filtered *memoryDimension) {
	for i, row := range engine.rows {
		before := engine.filteredOut[i]
		after := before &^ filtered.bit
		if !filtered.matches(row) {
			after |= filtered.bit
		}
		if before == after {
			continue
		}
		engine.filteredOut[i] = after

		for _, dimension := range engine.dimensions {
			if dimension == filtered {
				continue
			}
			wasIn := before&^dimension.bit == 0
			isIn := after&^dimension.bit == 0
			if wasIn == isIn {
				continue
			}
			for _, group := range dimension.groups {
				group.update(row, isIn)
			}
		}
	}
}

func (dimension *memoryDimension) Group() (Group, error) {
	engine := dimension.engine
	engine.lock.Lock()
	defer engine.lock.Unlock()

	if dimension.disposed {
		return nil, ErrDisposed
	}

	group := &memoryGroup{dimension: dimension, reducer: CountReducer()}
	group.compute()
	dimension.groups = append(dimension.groups, group)
	return group, nil
}

func (dimension *memoryDimension) Dispose() {
	engine := dimension.engine
	engine.lock.Lock()
	defer engine.lock.Unlock()

	if dimension.disposed {
		return
	}

	dimension.filter = nil
	dimension.filters = nil
	engine.applyFilter(dimension)

	for _, group := range dimension.groups {
		group.disposed = true
		group.values = nil
	}
	dimension.groups = nil
	dimension.disposed = true

	engine.usedBits &^= dimension.bit
	engine.dimensions = slices.DeleteFunc(engine.dimensions, func(candidate *memoryDimension) bool {
		return candidate == dimension
	})
}

func (dimension *memoryDimension) Disposed() bool {
	dimension.engine.lock.Lock()
	defer dimension.engine.lock.Unlock()
	return dimension.disposed
}

// compute rebuilds the group values from scratch. Every member present in the rows gets a
// value, even if all its rows are filtered out. Must be called with the engine lock held.
func (group *memoryGroup) compute() {
	engine := group.dimension.engine
	group.values = make(map[string]any)

	for i, row := range engine.rows {
		key, _ := row.Member(group.dimension.column)
		value, ok := group.values[key]
		if !ok {
			value = group.reducer.Init()
		}
		if engine.filteredOut[i]&^group.dimension.bit == 0 {
			value = group.reducer.Add(value, row)
		}
		group.values[key] = value
	}
}

func (group *memoryGroup) update(row olap.Row, add bool) {
	key, _ := row.Member(group.dimension.column)
	value, ok := group.values[key]
	if !ok {
		value = group.reducer.Init()
	}
	if add {
		group.values[key] = group.reducer.Add(value, row)
	} else {
		group.values[key] = group.reducer.Remove(value, row)
	}
}

func (group *memoryGroup) ReduceSum(measure string) Group {
	return group.Reduce(SumReducer(measure))
}

func (group *memoryGroup) Reduce(reducer Reducer) Group {
	engine := group.dimension.engine
	engine.lock.Lock()
	defer engine.lock.Unlock()

	if !group.disposed {
		group.reducer = reducer
		group.compute()
	}
	return group
}

func (group *memoryGroup) All(ctx context.Context) ([]KeyValue, error) {
	engine := group.dimension.engine
	engine.lock.Lock()
	defer engine.lock.Unlock()

	if group.disposed {
		return nil, ErrDisposed
	}
	return sortedKeyValues(group.values), nil
}

func (group *memoryGroup) Dispose() {
	engine := group.dimension.engine
	engine.lock.Lock()
	defer engine.lock.Unlock()

	if group.disposed {
		return
	}
	group.disposed = true
	group.values = nil
	group.dimension.groups = slices.DeleteFunc(
		group.dimension.groups,
		func(candidate *memoryGroup) bool { return candidate == group },
	)
}

func (group *memoryGroup) Disposed() bool {
	group.dimension.engine.lock.Lock()
	defer group.dimension.engine.lock.Unlock()
	return group.disposed
}
