package navigation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"hermannm.dev/cubes/metadata"
	"hermannm.dev/cubes/olap"
	"hermannm.dev/devlog/log"
	"hermannm.dev/wrap"
)

// State is the saved form of an analysis. Members are saved by ID only, and their captions
// fetched again on restore.
type State struct {
	Schema       string           `json:"schema"`
	Cube         string           `json:"cube"`
	Measure      string           `json:"measure"`
	ColumnWidths []float64        `json:"columnWidths"`
	Dimensions   []DimensionState `json:"dimensions"`
	// The first column holds word clouds, which are created again on restore, so it is
	// saved empty.
	Charts [][]ChartState `json:"charts"`
}

type DimensionState struct {
	ID           string     `json:"id"`
	Hierarchy    string     `json:"hierarchy"`
	Filters      []string   `json:"filters"`
	Properties   []string   `json:"properties"`
	MembersStack [][]string `json:"membersStack"`
	FiltersStack [][]string `json:"filtersStack"`
}

type ChartState struct {
	Type          string          `json:"type"`
	Options       json.RawMessage `json:"options,omitempty"`
	Dimensions    []string        `json:"dimensions"`
	ExtraMeasures []string        `json:"extraMeasures"`
}

func (state State) Validate() error {
	var errs []error

	if state.Schema == "" {
		errs = append(errs, errors.New("missing schema"))
	}
	if state.Cube == "" {
		errs = append(errs, errors.New("missing cube"))
	}
	if state.Measure == "" {
		errs = append(errs, errors.New("missing measure"))
	}
	if len(state.Dimensions) == 0 {
		errs = append(errs, errors.New("no dimensions"))
	}
	if len(state.Charts) > ChartColumns {
		errs = append(errs, fmt.Errorf(
			"%d chart columns, at most %d allowed", len(state.Charts), ChartColumns,
		))
	}

	for i, dimension := range state.Dimensions {
		if dimension.ID == "" {
			errs = append(errs, fmt.Errorf("missing ID of dimension %d", i))
		}
		if dimension.Hierarchy == "" {
			errs = append(errs, fmt.Errorf("missing hierarchy of dimension '%s'", dimension.ID))
		}
		if len(dimension.MembersStack) == 0 {
			errs = append(errs, fmt.Errorf("no members of dimension '%s'", dimension.ID))
		}
	}

	for i, column := range state.Charts {
		for j, chart := range column {
			if chart.Type == "" {
				errs = append(errs, fmt.Errorf("missing type of chart %d in column %d", j, i))
			}
		}
	}

	if len(errs) > 0 {
		return wrap.Errors("invalid analysis state", errs...)
	}
	return nil
}

// State returns the saved form of the current analysis.
func (controller *Controller) State() (State, error) {
	controller.lock.Lock()
	defer controller.lock.Unlock()

	state := State{
		Schema:       controller.schema,
		Cube:         controller.cube.ID,
		Measure:      controller.measure.ID,
		ColumnWidths: slices.Clone(controller.columnWidths),
		Dimensions:   make([]DimensionState, 0, len(controller.dimensions)),
		Charts:       make([][]ChartState, len(controller.layout)),
	}

	for _, dimension := range controller.dimensions {
		saved := DimensionState{
			ID:           dimension.ID(),
			Hierarchy:    dimension.Hierarchy(),
			Filters:      nonNil(dimension.Filters()),
			Properties:   []string{},
			MembersStack: make([][]string, 0, len(dimension.membersStack)),
			FiltersStack: make([][]string, 0, len(dimension.filtersStack)),
		}
		for _, property := range dimension.properties {
			saved.Properties = append(saved.Properties, property.ID)
		}
		for _, members := range dimension.membersStack {
			saved.MembersStack = append(saved.MembersStack, members.IDs())
		}
		for _, filters := range dimension.filtersStack {
			saved.FiltersStack = append(saved.FiltersStack, nonNil(slices.Clone(filters)))
		}
		state.Dimensions = append(state.Dimensions, saved)
	}

	for i, column := range controller.layout {
		state.Charts[i] = []ChartState{}
		if i == 0 {
			continue
		}

		for _, chart := range column {
			options, err := chart.Options()
			if err != nil {
				return State{}, wrap.Errorf(err, "failed to encode options of chart '%s'", chart.ID())
			}

			saved := ChartState{
				Type:          chart.Type(),
				Options:       options,
				Dimensions:    []string{},
				ExtraMeasures: []string{},
			}
			for _, dimension := range chart.Dimensions() {
				saved.Dimensions = append(saved.Dimensions, dimension.ID())
			}
			for _, measure := range chart.ExtraMeasures() {
				saved.ExtraMeasures = append(saved.ExtraMeasures, measure.ID)
			}
			state.Charts[i] = append(state.Charts[i], saved)
		}
	}

	return state, nil
}

// Restore replaces the current analysis by the saved one. The metadata and members of the
// saved analysis are fetched again from the query API; the current analysis is kept if any
// of them no longer exist.
func (controller *Controller) Restore(ctx context.Context, state State) error {
	if err := controller.tryLock(); err != nil {
		return err
	}
	defer controller.lock.Unlock()

	if err := state.Validate(); err != nil {
		return err
	}

	next, err := controller.restoreAnalysis(ctx, state)
	if err != nil {
		return wrap.Error(err, "data for this analysis is unavailable")
	}

	if err := controller.install(ctx, next); err != nil {
		return wrap.Error(err, "data for this analysis is unavailable")
	}

	log.Infof("restored analysis of cube '%s'", state.Cube)
	return nil
}

func (controller *Controller) restoreAnalysis(ctx context.Context, state State) (analysis, error) {
	cubes, err := controller.cache.Cubes(ctx, state.Schema)
	if err != nil {
		return analysis{}, err
	}
	cubeIndex := slices.IndexFunc(cubes, func(cube olap.Cube) bool {
		return cube.ID == state.Cube
	})
	if cubeIndex == -1 {
		return analysis{}, olap.NewError(
			olap.ErrorKindCubeNotInDatabase,
			"cube '%s' not found in schema '%s'", state.Cube, state.Schema,
		)
	}

	measures, err := controller.cache.Measures(ctx, state.Schema, state.Cube)
	if err != nil {
		return analysis{}, err
	}
	measureIndex := slices.IndexFunc(measures, func(measure olap.Measure) bool {
		return measure.ID == state.Measure
	})
	if measureIndex == -1 {
		return analysis{}, olap.NewError(
			olap.ErrorKindDimensionNotInDatabase,
			"measure '%s' not found in cube '%s'", state.Measure, state.Cube,
		)
	}

	dimensions := make([]*Dimension, 0, len(state.Dimensions))
	for _, saved := range state.Dimensions {
		dimension, err := controller.restoreDimension(ctx, state, saved)
		if err != nil {
			return analysis{}, wrap.Errorf(err, "failed to restore dimension '%s'", saved.ID)
		}
		dimensions = append(dimensions, dimension)
	}

	next := analysis{
		schema:       state.Schema,
		cube:         cubes[cubeIndex],
		measure:      measures[measureIndex],
		dimensions:   dimensions,
		layout:       make([][]Chart, ChartColumns),
		columnWidths: slices.Clone(state.ColumnWidths),
	}

	wordClouds, err := controller.charts.WordClouds(dimensions)
	if err != nil {
		return analysis{}, wrap.Error(err, "failed to create word clouds")
	}
	next.layout[0] = wordClouds

	// Charts resolve their extra measures against the cube being restored.
	current := controller.analysis
	controller.analysis = next
	defer func() { controller.analysis = current }()

	for i, column := range state.Charts {
		if i == 0 {
			continue
		}
		for _, saved := range column {
			chart, err := controller.newChart(ctx, saved, dimensions)
			if err != nil {
				return analysis{}, err
			}
			next.layout[i] = append(next.layout[i], chart)
		}
	}

	return next, nil
}

func (controller *Controller) restoreDimension(
	ctx context.Context,
	state State,
	saved DimensionState,
) (*Dimension, error) {
	info, err := controller.cache.Dimension(ctx, state.Schema, state.Cube, saved.ID)
	if err != nil {
		return nil, err
	}

	path := metadata.HierarchyPath{
		Schema:    state.Schema,
		Cube:      state.Cube,
		Dimension: saved.ID,
		Hierarchy: saved.Hierarchy,
	}
	levels, err := controller.cache.Levels(ctx, path)
	if err != nil {
		return nil, err
	}
	if len(saved.MembersStack) > len(levels) {
		return nil, olap.NewError(
			olap.ErrorKindLevelNotInDatabase,
			"%d levels saved, hierarchy '%s' has %d", len(saved.MembersStack), path.Hierarchy, len(levels),
		)
	}

	properties, err := controller.restoreProperties(ctx, path, len(levels), saved.Properties)
	if err != nil {
		return nil, err
	}

	dimension := NewDimension(info, path, levels, properties)
	dimension.filters = slices.Clone(saved.Filters)

	for level, memberIDs := range saved.MembersStack {
		members, err := controller.cache.MembersInfo(
			ctx, path, level, memberIDs, len(properties) > 0,
		)
		if err != nil {
			return nil, err
		}
		dimension.AddSlice(members)
	}

	// One filter list is kept per drill down.
	for i := range len(saved.MembersStack) - 1 {
		var filters []string
		if i < len(saved.FiltersStack) {
			filters = saved.FiltersStack[i]
		}
		dimension.addSliceToFiltersStack(filters)
	}

	return dimension, nil
}

// restoreProperties looks up the saved property IDs on every level of the hierarchy.
func (controller *Controller) restoreProperties(
	ctx context.Context,
	path metadata.HierarchyPath,
	levels int,
	ids []string,
) ([]olap.Property, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var declared []olap.Property
	for level := range levels {
		properties, err := controller.cache.Properties(ctx, path, level)
		if err != nil {
			return nil, err
		}
		declared = append(declared, properties...)
	}

	properties := make([]olap.Property, 0, len(ids))
	for _, id := range ids {
		index := slices.IndexFunc(declared, func(property olap.Property) bool {
			return property.ID == id
		})
		if index == -1 {
			return nil, olap.NewError(
				olap.ErrorKindLevelNotInDatabase,
				"property '%s' not found in hierarchy '%s'", id, path.Hierarchy,
			)
		}
		properties = append(properties, declared[index])
	}
	return properties, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
