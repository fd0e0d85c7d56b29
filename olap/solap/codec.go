// Package solap implements the JSON protocol of solap4py-style query servers: a client that
// implements olap.QueryAPI over HTTP, and a handler that serves any olap.QueryAPI.
//
// Every request is a single POST with a body of the form:
//
//	{"queryType": "explore", "data": {"root": ["Traffic", "[Traffic]"]}}
//	{"queryType": "data", "data": {"onCube": "[Traffic]", "measures": [...], "rows": [...]}}
//
// and every reply is an olap.Reply.
package solap

import (
	"encoding/json"
	"fmt"

	"hermannm.dev/cubes/olap"
	"hermannm.dev/enumnames"
	"hermannm.dev/wrap"
)

type QueryType uint8

const (
	QueryTypeExplore QueryType = iota + 1
	QueryTypeData
)

var queryTypeNames = enumnames.NewMap(map[QueryType]string{
	QueryTypeExplore: "explore",
	QueryTypeData:    "data",
})

func (queryType QueryType) IsValid() bool {
	return queryTypeNames.ContainsEnumValue(queryType)
}

func (queryType QueryType) String() string {
	return queryTypeNames.GetNameOrFallback(queryType, "INVALID_QUERY_TYPE")
}

func (queryType QueryType) MarshalJSON() ([]byte, error) {
	return queryTypeNames.MarshalToNameJSON(queryType)
}

func (queryType *QueryType) UnmarshalJSON(bytes []byte) error {
	return queryTypeNames.UnmarshalFromNameJSON(bytes, queryType)
}

type Request struct {
	QueryType QueryType       `json:"queryType"`
	Data      json.RawMessage `json:"data"`
}

// DataQuery is the wire form of an olap.QueryState.
type DataQuery struct {
	Cube     string   `json:"onCube"`
	Measures []string `json:"measures"`
	Rows     []Axis   `json:"rows,omitempty"`
	Where    []Axis   `json:"where,omitempty"`
}

type Axis struct {
	Hierarchy string   `json:"hierarchy"`
	Members   []string `json:"members,omitempty"`
	Range     bool     `json:"range,omitempty"`
	Dice      bool     `json:"dice,omitempty"`
}

func NewDataQuery(state olap.QueryState) DataQuery {
	query := DataQuery{Cube: state.Cube, Measures: state.Measures}
	if query.Measures == nil {
		query.Measures = []string{}
	}
	for _, axis := range state.Rows {
		query.Rows = append(query.Rows, Axis(axis))
	}
	for _, axis := range state.Where {
		query.Where = append(query.Where, Axis(axis))
	}
	return query
}

func (query DataQuery) State() olap.QueryState {
	state := olap.QueryState{Cube: query.Cube, Measures: query.Measures}
	for _, axis := range query.Rows {
		state.Rows = append(state.Rows, olap.Axis(axis))
	}
	for _, axis := range query.Where {
		axis.Dice = false
		state.Where = append(state.Where, olap.Axis(axis))
	}
	return state
}

func (query DataQuery) Validate() error {
	if query.Cube == "" {
		return olap.NewError(olap.ErrorKindNoCubeDrilled, "Cube not specified")
	}
	for _, axis := range append(query.Rows, query.Where...) {
		if axis.Hierarchy == "" {
			return olap.NewError(olap.ErrorKindQueryAPIBadRequest, "axis without hierarchy")
		}
		if axis.Range && len(axis.Members) != 2 {
			return olap.NewError(
				olap.ErrorKindQueryAPIBadRequest,
				"range on '%s' needs 2 members, got %d", axis.Hierarchy, len(axis.Members),
			)
		}
	}
	return nil
}

func EncodeExplore(request olap.ExploreRequest) ([]byte, error) {
	return encodeRequest(QueryTypeExplore, request)
}

func EncodeData(state olap.QueryState) ([]byte, error) {
	return encodeRequest(QueryTypeData, NewDataQuery(state))
}

func encodeRequest(queryType QueryType, data any) ([]byte, error) {
	encodedData, err := json.Marshal(data)
	if err != nil {
		return nil, wrap.Errorf(err, "failed to encode %s query", queryType)
	}

	encoded, err := json.Marshal(Request{QueryType: queryType, Data: encodedData})
	if err != nil {
		return nil, wrap.Errorf(err, "failed to encode %s request", queryType)
	}
	return encoded, nil
}

// DecodeRequest parses a request body into either an explore request or a data query.
func DecodeRequest(body []byte) (Request, error) {
	var request Request
	if err := json.Unmarshal(body, &request); err != nil {
		return Request{}, olap.NewError(olap.ErrorKindQueryAPIBadRequest, "malformed request: %v", err)
	}
	if !request.QueryType.IsValid() {
		return Request{}, olap.NewError(olap.ErrorKindQueryAPIBadRequest, "missing queryType")
	}
	if len(request.Data) == 0 {
		return Request{}, olap.NewError(olap.ErrorKindQueryAPIBadRequest, "missing data")
	}
	return request, nil
}

func (request Request) Explore() (olap.ExploreRequest, error) {
	if request.QueryType != QueryTypeExplore {
		return olap.ExploreRequest{}, fmt.Errorf("expected explore request, got %s", request.QueryType)
	}

	var explore olap.ExploreRequest
	if err := json.Unmarshal(request.Data, &explore); err != nil {
		return olap.ExploreRequest{}, olap.NewError(
			olap.ErrorKindQueryAPIBadRequest, "malformed explore request: %v", err,
		)
	}
	return explore, nil
}

func (request Request) DataQuery() (DataQuery, error) {
	if request.QueryType != QueryTypeData {
		return DataQuery{}, fmt.Errorf("expected data request, got %s", request.QueryType)
	}

	var query DataQuery
	if err := json.Unmarshal(request.Data, &query); err != nil {
		return DataQuery{}, olap.NewError(
			olap.ErrorKindQueryAPIBadRequest, "malformed data request: %v", err,
		)
	}
	if err := query.Validate(); err != nil {
		return DataQuery{}, err
	}
	return query, nil
}
