package olap

import "slices"

// QueryState is the data query built up between Drill and Execute.
type QueryState struct {
	Cube     string
	Measures []string
	Rows     []Axis
	Where    []Axis
}

// Axis restricts a hierarchy to a member list, or to the range between two members.
// Diced axes are kept in the result rows; the others are aggregated over.
type Axis struct {
	Hierarchy string
	Members   []string
	Range     bool
	Dice      bool
}

// Drill starts a new query on the given cube.
func (state *QueryState) Drill(cube string) {
	*state = QueryState{Cube: cube}
}

func (state *QueryState) Push(measure string) {
	if !slices.Contains(state.Measures, measure) {
		state.Measures = append(state.Measures, measure)
	}
}

func (state *QueryState) Pull(measure string) {
	state.Measures = slices.DeleteFunc(state.Measures, func(candidate string) bool {
		return candidate == measure
	})
}

func (state *QueryState) Slice(hierarchy string, members []string, isRange bool) {
	members = slices.Clone(members)
	for i, axis := range state.Rows {
		if axis.Hierarchy == hierarchy {
			state.Rows[i].Members = members
			state.Rows[i].Range = isRange
			return
		}
	}
	state.Rows = append(state.Rows, Axis{Hierarchy: hierarchy, Members: members, Range: isRange})
}

func (state *QueryState) Dice(hierarchies []string) {
	for _, hierarchy := range hierarchies {
		found := false
		for i, axis := range state.Rows {
			if axis.Hierarchy == hierarchy {
				state.Rows[i].Dice = true
				found = true
				break
			}
		}
		if !found {
			state.Rows = append(state.Rows, Axis{Hierarchy: hierarchy, Dice: true})
		}
	}
}

// Project removes the hierarchy from the rows of the query.
func (state *QueryState) Project(hierarchy string) {
	state.Rows = slices.DeleteFunc(state.Rows, func(axis Axis) bool {
		return axis.Hierarchy == hierarchy
	})
}

func (state *QueryState) Filter(hierarchy string, members []string, isRange bool) {
	members = slices.Clone(members)
	for i, axis := range state.Where {
		if axis.Hierarchy == hierarchy {
			state.Where[i].Members = members
			state.Where[i].Range = isRange
			return
		}
	}
	state.Where = append(state.Where, Axis{Hierarchy: hierarchy, Members: members, Range: isRange})
}

func (state QueryState) DicedHierarchies() []string {
	var diced []string
	for _, axis := range state.Rows {
		if axis.Dice {
			diced = append(diced, axis.Hierarchy)
		}
	}
	return diced
}

func (state QueryState) Clone() QueryState {
	clone := QueryState{Cube: state.Cube, Measures: slices.Clone(state.Measures)}
	for _, axis := range state.Rows {
		axis.Members = slices.Clone(axis.Members)
		clone.Rows = append(clone.Rows, axis)
	}
	for _, axis := range state.Where {
		axis.Members = slices.Clone(axis.Members)
		clone.Where = append(clone.Where, axis)
	}
	return clone
}

// Replay issues the query on the given API, after clearing it.
func (state QueryState) Replay(api QueryAPI) {
	api.Clear()
	if state.Cube == "" {
		return
	}

	api.Drill(state.Cube)
	for _, measure := range state.Measures {
		api.Push(measure)
	}

	var diced []string
	for _, axis := range state.Rows {
		if axis.Members != nil {
			api.Slice(axis.Hierarchy, axis.Members, axis.Range)
		}
		if axis.Dice {
			diced = append(diced, axis.Hierarchy)
		}
	}
	if len(diced) != 0 {
		api.Dice(diced)
	}

	for _, axis := range state.Where {
		api.Filter(axis.Hierarchy, axis.Members, axis.Range)
	}
}
