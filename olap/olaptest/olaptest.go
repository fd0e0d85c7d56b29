// Package olaptest provides an in-memory QueryAPI for tests.
package olaptest

import (
	"context"
	"encoding/json"
	"slices"
	"strconv"
	"strings"
	"sync"

	"hermannm.dev/cubes/olap"
)

// API answers explore requests from canned replies keyed by path, and execute requests by
// crossing the members of diced hierarchies. Every measure is 1 in every generated row,
// so sums count crossed members.
type API struct {
	lock sync.Mutex

	explore      map[string]json.RawMessage
	exploreCalls map[string]int

	// Closed before explore requests are answered, when set.
	Gate chan struct{}

	// Overrides the generated execute reply, when set.
	ExecuteReply *olap.Reply

	state    olap.QueryState
	executed []olap.QueryState
}

func NewAPI() *API {
	return &API{explore: make(map[string]json.RawMessage), exploreCalls: make(map[string]int)}
}

// PathKey identifies an explore request in the call counts.
func PathKey(request olap.ExploreRequest) string {
	key := strings.Join(request.Path, "/")
	if request.DescendingLevel > 1 {
		key += "#" + strconv.Itoa(request.DescendingLevel)
	}
	return key
}

// SetExplore registers the reply data for the given path.
func (api *API) SetExplore(data string, path ...string) {
	api.lock.Lock()
	defer api.lock.Unlock()
	api.explore[strings.Join(path, "/")] = json.RawMessage(data)
}

func (api *API) ExploreCalls(path ...string) int {
	api.lock.Lock()
	defer api.lock.Unlock()
	return api.exploreCalls[strings.Join(path, "/")]
}

func (api *API) TotalExploreCalls() int {
	api.lock.Lock()
	defer api.lock.Unlock()
	total := 0
	for _, calls := range api.exploreCalls {
		total += calls
	}
	return total
}

// Executed returns the query states of all Execute calls so far.
func (api *API) Executed() []olap.QueryState {
	api.lock.Lock()
	defer api.lock.Unlock()
	return slices.Clone(api.executed)
}

func (api *API) Explore(ctx context.Context, request olap.ExploreRequest) (olap.Reply, error) {
	if api.Gate != nil {
		select {
		case <-api.Gate:
		case <-ctx.Done():
			return olap.Reply{}, ctx.Err()
		}
	}

	api.lock.Lock()
	defer api.lock.Unlock()

	key := PathKey(request)
	api.exploreCalls[key]++

	data, ok := api.explore[key]
	if !ok {
		return olap.ErrorReply(olap.ReplyStatusBadRequest, "unknown path "+key), nil
	}

	if request.Members != nil {
		var members map[string]json.RawMessage
		if err := json.Unmarshal(data, &members); err != nil {
			return olap.ErrorReply(olap.ReplyStatusServerError, err.Error()), nil
		}
		filtered := make(map[string]json.RawMessage, len(request.Members))
		for _, id := range request.Members {
			if member, ok := members[id]; ok {
				filtered[id] = member
			}
		}
		return olap.OKReply(filtered)
	}

	return olap.Reply{Error: olap.ReplyStatusOK, Data: data}, nil
}

func (api *API) Drill(cube string) {
	api.lock.Lock()
	defer api.lock.Unlock()
	api.state.Drill(cube)
}

func (api *API) Push(measure string) {
	api.lock.Lock()
	defer api.lock.Unlock()
	api.state.Push(measure)
}

func (api *API) Pull(measure string) {
	api.lock.Lock()
	defer api.lock.Unlock()
	api.state.Pull(measure)
}

func (api *API) Slice(hierarchy string, members []string, isRange bool) {
	api.lock.Lock()
	defer api.lock.Unlock()
	api.state.Slice(hierarchy, members, isRange)
}

func (api *API) Dice(hierarchies []string) {
	api.lock.Lock()
	defer api.lock.Unlock()
	api.state.Dice(hierarchies)
}

func (api *API) Project(hierarchy string) {
	api.lock.Lock()
	defer api.lock.Unlock()
	api.state.Project(hierarchy)
}

func (api *API) Filter(hierarchy string, members []string, isRange bool) {
	api.lock.Lock()
	defer api.lock.Unlock()
	api.state.Filter(hierarchy, members, isRange)
}

func (api *API) Clear() {
	api.lock.Lock()
	defer api.lock.Unlock()
	api.state = olap.QueryState{}
}

func (api *API) Execute(ctx context.Context) (olap.Reply, error) {
	api.lock.Lock()
	defer api.lock.Unlock()

	api.executed = append(api.executed, api.state.Clone())
	if api.ExecuteReply != nil {
		return *api.ExecuteReply, nil
	}

	rows := []olap.Row{{}}
	for _, axis := range api.state.Rows {
		if !axis.Dice {
			continue
		}
		dimension := DimensionOf(axis.Hierarchy)

		var crossed []olap.Row
		for _, row := range rows {
			for _, member := range axis.Members {
				next := make(olap.Row, len(row)+1)
				for key, value := range row {
					next[key] = value
				}
				next[dimension] = member
				crossed = append(crossed, next)
			}
		}
		rows = crossed
	}

	for _, row := range rows {
		for _, measure := range api.state.Measures {
			row[measure] = 1.0
		}
	}

	return olap.OKReply(rows)
}

// DimensionOf returns the dimension ID of a hierarchy ID, e.g. "[Time]" for
// "[Time].[Time]".
func DimensionOf(hierarchy string) string {
	if end := strings.Index(hierarchy, "]"); end != -1 {
		return hierarchy[:end+1]
	}
	return hierarchy
}
