package api

import (
	"net/http"

	"hermannm.dev/cubes/navigation"
	"hermannm.dev/cubes/olap"
)

// AnalysisResponse describes the current analysis of the controller.
type AnalysisResponse struct {
	Schema         string                     `json:"schema"`
	Cube           olap.Cube                  `json:"cube"`
	Measure        olap.Measure               `json:"measure"`
	Mode           navigation.AggregationMode `json:"mode"`
	CrossedMembers int                        `json:"crossedMembers"`
	Dimensions     []DimensionResponse        `json:"dimensions"`
}

type DimensionResponse struct {
	ID         string             `json:"id"`
	Caption    string             `json:"caption"`
	Type       olap.DimensionType `json:"type"`
	Hierarchy  string             `json:"hierarchy"`
	Level      string             `json:"level"` // Caption of the current level.
	LevelIndex int                `json:"levelIndex"`
	Aggregated bool               `json:"aggregated"`
	Filters    []string           `json:"filters"`
	Members    olap.Members       `json:"members"`
}

func (api *DashboardAPI) analysisResponse() AnalysisResponse {
	response := AnalysisResponse{
		Schema:         api.controller.Schema(),
		Cube:           api.controller.Cube(),
		Measure:        api.controller.Measure(),
		Mode:           api.controller.Mode(),
		CrossedMembers: api.controller.CrossedMembers(),
	}

	api.controller.Read(func(dimensions []*navigation.Dimension, _ [][]navigation.Chart) {
		response.Dimensions = make([]DimensionResponse, 0, len(dimensions))
		for _, dimension := range dimensions {
			response.Dimensions = append(response.Dimensions, dimensionResponse(dimension))
		}
	})

	return response
}

func dimensionResponse(dimension *navigation.Dimension) DimensionResponse {
	info := dimension.Info()
	level := dimension.CurrentLevel()

	filters := dimension.Filters()
	if filters == nil {
		filters = []string{}
	}

	return DimensionResponse{
		ID:         info.ID,
		Caption:    info.Caption,
		Type:       info.Type,
		Hierarchy:  dimension.Hierarchy(),
		Level:      dimension.Levels()[level],
		LevelIndex: level,
		Aggregated: dimension.Aggregated(),
		Filters:    filters,
		Members:    dimension.LastSlice(),
	}
}

// Endpoint for getting the current analysis.
//
//   - Returns: AnalysisResponse
func (api *DashboardAPI) GetAnalysis(res http.ResponseWriter, req *http.Request) {
	if api.controller.Cube().ID == "" {
		sendError(res, olap.NewError(olap.ErrorKindNoCubeDrilled, "no analysis started"), "")
		return
	}
	sendJSON(res, api.analysisResponse())
}

// Endpoint for starting a new analysis.
//
//   - Expects: {schema, cube, measure}, where empty fields fall back to the configured
//     defaults, then to the first available
//   - Returns: AnalysisResponse
func (api *DashboardAPI) Init(res http.ResponseWriter, req *http.Request) {
	var selection navigation.Selection
	if err := decodeJSON(req, &selection); err != nil {
		sendClientError(res, err, "")
		return
	}

	defaults := api.config.Defaults
	if selection.Schema == "" {
		selection.Schema = defaults.Schema
	}
	if selection.Cube == "" {
		selection.Cube = defaults.Cube
	}
	if selection.Measure == "" {
		selection.Measure = defaults.Measure
	}

	api.stopPlayers()
	if err := api.controller.Init(req.Context(), selection); err != nil {
		sendError(res, err, "failed to start analysis")
		return
	}
	sendJSON(res, api.analysisResponse())
}

type measureRequest struct {
	Cube    string `json:"cube"`
	Measure string `json:"measure"`
}

// Endpoint for changing the measure of the analysis, or its cube and measure.
//
//   - Expects: {cube, measure}, where an empty cube keeps the current one
//   - Returns: AnalysisResponse
func (api *DashboardAPI) SetMeasure(res http.ResponseWriter, req *http.Request) {
	var body measureRequest
	if err := decodeJSON(req, &body); err != nil {
		sendClientError(res, err, "")
		return
	}

	var err error
	if body.Cube == "" {
		err = api.controller.SetMeasure(req.Context(), body.Measure)
	} else {
		api.stopPlayers()
		err = api.controller.SetCubeAndMeasure(req.Context(), body.Cube, body.Measure)
	}
	if err != nil {
		sendError(res, err, "failed to set measure")
		return
	}
	sendJSON(res, api.analysisResponse())
}

type drillDownRequest struct {
	Dimension string               `json:"dimension"`
	Member    string               `json:"member"`
	Mode      navigation.DrillMode `json:"mode"`
}

// Endpoint for drilling a dimension down.
//
//   - Expects: {dimension, member, mode}, where mode is "simple" (default) or "selected"
//   - Returns: AnalysisResponse
func (api *DashboardAPI) DrillDown(res http.ResponseWriter, req *http.Request) {
	var body drillDownRequest
	if err := decodeJSON(req, &body); err != nil {
		sendClientError(res, err, "")
		return
	}
	if body.Dimension == "" {
		sendClientError(res, nil, "missing 'dimension' in request body")
		return
	}

	if err := api.controller.DrillDown(req.Context(), body.Dimension, body.Member, body.Mode); err != nil {
		sendError(res, err, "failed to drill down")
		return
	}
	sendJSON(res, api.analysisResponse())
}

type rollUpRequest struct {
	Dimension string `json:"dimension"`
	Levels    int    `json:"levels"`
}

// Endpoint for rolling a dimension up.
//
//   - Expects: {dimension, levels}, where levels defaults to 1
//   - Returns: AnalysisResponse
func (api *DashboardAPI) RollUp(res http.ResponseWriter, req *http.Request) {
	var body rollUpRequest
	if err := decodeJSON(req, &body); err != nil {
		sendClientError(res, err, "")
		return
	}
	if body.Dimension == "" {
		sendClientError(res, nil, "missing 'dimension' in request body")
		return
	}
	if body.Levels == 0 {
		body.Levels = 1
	}

	if err := api.controller.RollUp(req.Context(), body.Dimension, body.Levels); err != nil {
		sendError(res, err, "failed to roll up")
		return
	}
	sendJSON(res, api.analysisResponse())
}

type aggregateRequest struct {
	Dimension  string `json:"dimension"`
	Aggregated bool   `json:"aggregated"`
}

// Endpoint for including a dimension in the crossed members of the dataset, or excluding it.
//
//   - Expects: {dimension, aggregated}
//   - Returns: AnalysisResponse
func (api *DashboardAPI) Aggregate(res http.ResponseWriter, req *http.Request) {
	var body aggregateRequest
	if err := decodeJSON(req, &body); err != nil {
		sendClientError(res, err, "")
		return
	}
	if body.Dimension == "" {
		sendClientError(res, nil, "missing 'dimension' in request body")
		return
	}

	if err := api.controller.SetAggregated(req.Context(), body.Dimension, body.Aggregated); err != nil {
		sendError(res, err, "failed to change aggregation")
		return
	}
	sendJSON(res, api.analysisResponse())
}

type filterRequest struct {
	Dimension string `json:"dimension"`
	Member    string `json:"member"`
	Add       bool   `json:"add"`
}

// Endpoint for adding a member to the filters of a dimension, or removing it.
//
//   - Expects: {dimension, member, add}
//   - Returns: AnalysisResponse
func (api *DashboardAPI) Filter(res http.ResponseWriter, req *http.Request) {
	var body filterRequest
	if err := decodeJSON(req, &body); err != nil {
		sendClientError(res, err, "")
		return
	}
	if body.Dimension == "" || body.Member == "" {
		sendClientError(res, nil, "missing 'dimension' or 'member' in request body")
		return
	}

	if err := api.controller.Filter(req.Context(), body.Dimension, body.Member, body.Add); err != nil {
		sendError(res, err, "failed to filter")
		return
	}
	sendJSON(res, api.analysisResponse())
}

// Endpoint for removing the filters of every dimension.
//
//   - Returns: AnalysisResponse
func (api *DashboardAPI) FilterAll(res http.ResponseWriter, req *http.Request) {
	if err := api.controller.FilterAll(req.Context()); err != nil {
		sendError(res, err, "failed to remove filters")
		return
	}
	sendJSON(res, api.analysisResponse())
}
