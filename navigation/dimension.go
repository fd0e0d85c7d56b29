package navigation

import (
	"context"
	"errors"
	"slices"
	"strings"

	"hermannm.dev/cubes/crossfilter"
	"hermannm.dev/cubes/metadata"
	"hermannm.dev/cubes/olap"
	"hermannm.dev/wrap"
)

// MemberSource is implemented by metadata.Cache.
type MemberSource interface {
	Members(ctx context.Context, request metadata.MembersRequest) (olap.Members, error)
}

// handleSource provides the dataset that crossfilter handles of dimensions are created on.
type handleSource interface {
	engine() crossfilter.Engine
	activeMeasure() string
}

var errNoDataset = errors.New("no dataset loaded")

// Dimension is a dimension of the analysis, navigated through one of its hierarchies.
//
// The members displayed at each visited level are kept on a stack, so that the current
// level is the top of the stack. A parallel stack keeps the filters of the parent level at
// the time of each drill down, so that rolling up restores them.
type Dimension struct {
	info       olap.DimensionInfo
	path       metadata.HierarchyPath
	levels     []string
	properties []olap.Property

	membersStack []olap.Members
	filters      []string
	filtersStack [][]string
	aggregated   bool

	source               handleSource
	crossfilterDimension crossfilter.Dimension
	crossfilterGroups    map[string]crossfilter.Group
}

// NewDimension creates a dimension with an empty members stack. Properties are the member
// properties loaded along with the members, if any.
func NewDimension(
	info olap.DimensionInfo,
	path metadata.HierarchyPath,
	levels []string,
	properties []olap.Property,
) *Dimension {
	return &Dimension{
		info:              info,
		path:              path,
		levels:            slices.Clone(levels),
		properties:        slices.Clone(properties),
		crossfilterGroups: make(map[string]crossfilter.Group),
	}
}

func (dimension *Dimension) ID() string {
	return dimension.info.ID
}

func (dimension *Dimension) Info() olap.DimensionInfo {
	return dimension.info
}

func (dimension *Dimension) Type() olap.DimensionType {
	return dimension.info.Type
}

func (dimension *Dimension) Hierarchy() string {
	return dimension.path.Hierarchy
}

func (dimension *Dimension) Path() metadata.HierarchyPath {
	return dimension.path
}

// Levels returns the captions of the levels of the dimension's hierarchy.
func (dimension *Dimension) Levels() []string {
	return slices.Clone(dimension.levels)
}

func (dimension *Dimension) Properties() []olap.Property {
	return slices.Clone(dimension.properties)
}

// GeoProperty returns the Geometry-typed property loaded with the members, if any.
func (dimension *Dimension) GeoProperty() (property olap.Property, found bool) {
	for _, property := range dimension.properties {
		if property.Type == olap.PropertyTypeGeometry {
			return property, true
		}
	}
	return olap.Property{}, false
}

// ActiveMeasure returns the measure summed by the default group of the dimension, empty
// before the first load.
func (dimension *Dimension) ActiveMeasure() string {
	if dimension.source == nil {
		return ""
	}
	return dimension.source.activeMeasure()
}

// CurrentLevel is -1 before the first slice is added.
func (dimension *Dimension) CurrentLevel() int {
	return len(dimension.membersStack) - 1
}

func (dimension *Dimension) MaxLevel() int {
	return len(dimension.levels) - 1
}

func (dimension *Dimension) IsDrillPossible() bool {
	return dimension.CurrentLevel() < dimension.MaxLevel()
}

func (dimension *Dimension) IsRollPossible() bool {
	return dimension.CurrentLevel() > 0
}

// RollsPossible returns how many levels the dimension can be rolled up.
func (dimension *Dimension) RollsPossible() int {
	return max(dimension.CurrentLevel(), 0)
}

// LastSlice returns the members displayed at the current level.
func (dimension *Dimension) LastSlice() olap.Members {
	if len(dimension.membersStack) == 0 {
		return nil
	}
	return dimension.membersStack[len(dimension.membersStack)-1]
}

// Slice returns the members displayed at the given level, nil if the level was not
// visited.
func (dimension *Dimension) Slice(level int) olap.Members {
	if level < 0 || level >= len(dimension.membersStack) {
		return nil
	}
	return dimension.membersStack[level]
}

func (dimension *Dimension) MembersStack() []olap.Members {
	return slices.Clone(dimension.membersStack)
}

func (dimension *Dimension) FiltersStack() [][]string {
	stack := make([][]string, len(dimension.filtersStack))
	for i, filters := range dimension.filtersStack {
		stack[i] = slices.Clone(filters)
	}
	return stack
}

func (dimension *Dimension) AddSlice(members olap.Members) {
	dimension.membersStack = append(dimension.membersStack, members)
}

func (dimension *Dimension) RemoveLastSlice() {
	if len(dimension.membersStack) > 0 {
		dimension.membersStack = dimension.membersStack[:len(dimension.membersStack)-1]
	}
}

func (dimension *Dimension) addSliceToFiltersStack(filters []string) {
	dimension.filtersStack = append(dimension.filtersStack, slices.Clone(filters))
}

func (dimension *Dimension) removeLastSliceFromFiltersStack() {
	if len(dimension.filtersStack) > 0 {
		dimension.filtersStack = dimension.filtersStack[:len(dimension.filtersStack)-1]
	}
}

func (dimension *Dimension) Aggregated() bool {
	return dimension.aggregated
}

func (dimension *Dimension) Filters() []string {
	return slices.Clone(dimension.filters)
}

// SetFilters replaces the filtered members, and applies them to the crossfilter dimension
// if one is created.
func (dimension *Dimension) SetFilters(filters []string) error {
	dimension.filters = slices.Clone(filters)
	return dimension.applyFilters()
}

// Filter adds the member to the filters, or removes it if add is false.
func (dimension *Dimension) Filter(member string, add bool) error {
	if add {
		dimension.AddFilter(member)
	} else {
		dimension.RemoveFilter(member)
	}
	return dimension.applyFilters()
}

// AddFilter adds the member to the filter list, without applying it to the crossfilter
// dimension.
func (dimension *Dimension) AddFilter(member string) {
	if !slices.Contains(dimension.filters, member) {
		dimension.filters = append(dimension.filters, member)
	}
}

// RemoveFilter removes the member from the filter list, without applying it to the
// crossfilter dimension.
func (dimension *Dimension) RemoveFilter(member string) {
	if index := slices.Index(dimension.filters, member); index != -1 {
		dimension.filters = slices.Delete(dimension.filters, index, index+1)
	}
}

func (dimension *Dimension) applyFilters() error {
	if dimension.crossfilterDimension == nil || dimension.crossfilterDimension.Disposed() {
		return nil
	}
	if err := dimension.crossfilterDimension.FilterMembers(dimension.filters); err != nil {
		return wrap.Errorf(err, "failed to filter dimension '%s'", dimension.info.ID)
	}
	return nil
}

// DrillDown adds a slice with the children of the member, or in selected mode, of every
// filtered member (every member of the last slice when none are filtered). The filters at
// the time of the drill are kept for rolling up.
//
// Does nothing and returns false when the dimension is at its last level.
func (dimension *Dimension) DrillDown(
	ctx context.Context,
	source MemberSource,
	member string,
	mode DrillMode,
) (drilled bool, err error) {
	if !dimension.IsDrillPossible() {
		return false, nil
	}

	toDrill := []string{member}
	if mode == DrillModeSelected {
		if len(dimension.filters) > 0 {
			toDrill = dimension.Filters()
		} else {
			toDrill = dimension.LastSlice().IDs()
		}
	}

	newMembers := olap.Members{}
	for _, parent := range toDrill {
		children, err := source.Members(ctx, metadata.MembersRequest{
			Path:            dimension.path,
			Level:           dimension.CurrentLevel(),
			WithProperties:  len(dimension.properties) > 0,
			Parent:          parent,
			DescendingLevel: 1,
		})
		if err != nil {
			return false, wrap.Errorf(err, "failed to get children of member '%s'", parent)
		}
		newMembers = newMembers.Union(children)
	}

	dimension.AddSlice(newMembers)
	dimension.addSliceToFiltersStack(dimension.filters)
	return true, nil
}

// RollUp removes the last n slices, clamped to the number of possible roll ups, and
// restores the filters recorded when the first removed slice was drilled. Returns the
// number of levels rolled up. Filters are not applied to the crossfilter dimension.
func (dimension *Dimension) RollUp(levels int) int {
	levels = min(levels, dimension.RollsPossible())
	if levels <= 0 {
		return 0
	}

	var filtersToApply []string
	if index := len(dimension.filtersStack) - levels; index >= 0 {
		filtersToApply = slices.Clone(dimension.filtersStack[index])
	}

	for range levels {
		dimension.RemoveLastSlice()
		dimension.removeLastSliceFromFiltersStack()
	}
	dimension.filters = filtersToApply
	return levels
}

// CrossfilterDimension returns the crossfilter dimension on the loaded dataset, created on
// first use with the current filters.
func (dimension *Dimension) CrossfilterDimension() (crossfilter.Dimension, error) {
	if dimension.crossfilterDimension != nil && !dimension.crossfilterDimension.Disposed() {
		return dimension.crossfilterDimension, nil
	}

	if dimension.source == nil || dimension.source.engine() == nil {
		return nil, errNoDataset
	}
	crossfilterDimension, err := dimension.source.engine().Dimension(dimension.info.ID)
	if err != nil {
		return nil, wrap.Errorf(
			err, "failed to create crossfilter dimension for '%s'", dimension.info.ID,
		)
	}
	if len(dimension.filters) > 0 {
		if err := crossfilterDimension.FilterMembers(dimension.filters); err != nil {
			return nil, wrap.Errorf(err, "failed to filter dimension '%s'", dimension.info.ID)
		}
	}

	dimension.crossfilterDimension = crossfilterDimension
	return crossfilterDimension, nil
}

// CrossfilterGroup returns the group of the dimension summing the active measure. With
// extra measures, the group value is instead a map from measure ID to sum, for the active
// measure and every extra measure. Groups are cached by their set of measures.
func (dimension *Dimension) CrossfilterGroup(extraMeasures []string) (crossfilter.Group, error) {
	crossfilterDimension, err := dimension.CrossfilterDimension()
	if err != nil {
		return nil, err
	}

	measure := dimension.source.activeMeasure()
	key := "default"
	var measures []string
	if len(extraMeasures) > 0 {
		measures = []string{measure}
		for _, extraMeasure := range extraMeasures {
			if !slices.Contains(measures, extraMeasure) {
				measures = append(measures, extraMeasure)
			}
		}
		slices.Sort(measures)
		key = strings.Join(measures, ",")
	}

	if group, ok := dimension.crossfilterGroups[key]; ok && !group.Disposed() {
		return group, nil
	}

	group, err := crossfilterDimension.Group()
	if err != nil {
		return nil, wrap.Errorf(err, "failed to create group for dimension '%s'", dimension.info.ID)
	}
	if measures == nil {
		group = group.ReduceSum(measure)
	} else {
		group = group.Reduce(measuresReducer(measures))
	}

	dimension.crossfilterGroups[key] = group
	return group, nil
}

// disposeHandles disposes the crossfilter dimension and groups of the dimension, returning
// how many handles were disposed.
func (dimension *Dimension) disposeHandles() int {
	disposed := 0
	for key, group := range dimension.crossfilterGroups {
		if !group.Disposed() {
			group.Dispose()
			disposed++
		}
		delete(dimension.crossfilterGroups, key)
	}
	if dimension.crossfilterDimension != nil {
		if !dimension.crossfilterDimension.Disposed() {
			dimension.crossfilterDimension.Dispose()
			disposed++
		}
		dimension.crossfilterDimension = nil
	}
	return disposed
}

// measuresReducer sums every measure of each row into a map from measure ID to sum.
func measuresReducer(measures []string) crossfilter.Reducer {
	return crossfilter.Reducer{
		Add: func(value any, row olap.Row) any {
			sums := value.(map[string]float64)
			for _, measure := range measures {
				sums[measure] += row.Value(measure)
			}
			return sums
		},
		Remove: func(value any, row olap.Row) any {
			sums := value.(map[string]float64)
			for _, measure := range measures {
				sums[measure] -= row.Value(measure)
			}
			return sums
		},
		Init: func() any {
			sums := make(map[string]float64, len(measures))
			for _, measure := range measures {
				sums[measure] = 0
			}
			return sums
		},
	}
}
