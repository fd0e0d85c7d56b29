package api

import (
	"context"
	"encoding/json"
	"net/http"

	"hermannm.dev/cubes/navigation"
	"hermannm.dev/devlog/log"
)

type ChartResponse struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Dimensions    []string        `json:"dimensions"`
	ExtraMeasures []string        `json:"extraMeasures"`
	Options       json.RawMessage `json:"options,omitempty"`
	Playing       bool            `json:"playing"`
	Data          any             `json:"data"`
}

func chartResponse(chart navigation.Chart, playing bool) (ChartResponse, error) {
	options, err := chart.Options()
	if err != nil {
		return ChartResponse{}, err
	}

	dimensions := chart.Dimensions()
	dimensionIDs := make([]string, len(dimensions))
	for i, dimension := range dimensions {
		dimensionIDs[i] = dimension.ID()
	}

	measures := chart.ExtraMeasures()
	measureIDs := make([]string, len(measures))
	for i, measure := range measures {
		measureIDs[i] = measure.ID
	}

	return ChartResponse{
		ID:            chart.ID(),
		Type:          chart.Type(),
		Dimensions:    dimensionIDs,
		ExtraMeasures: measureIDs,
		Options:       options,
		Playing:       playing,
		Data:          chart.Data(),
	}, nil
}

// Endpoint for getting the computed data of every chart of the layout.
//
//   - Returns: the charts by layout column, each with {id, type, dimensions, extraMeasures,
//     options, playing, data}
func (api *DashboardAPI) GetChartsData(res http.ResponseWriter, req *http.Request) {
	playing := api.playingCharts()

	var response [][]ChartResponse
	var err error
	api.controller.Read(func(_ []*navigation.Dimension, layout [][]navigation.Chart) {
		response = make([][]ChartResponse, len(layout))
		for i, column := range layout {
			response[i] = make([]ChartResponse, 0, len(column))
			for _, chart := range column {
				var described ChartResponse
				if described, err = chartResponse(chart, playing[chart.ID()]); err != nil {
					return
				}
				response[i] = append(response[i], described)
			}
		}
	})
	if err != nil {
		sendError(res, err, "failed to describe chart")
		return
	}

	sendJSON(res, response)
}

type addChartRequest struct {
	Column int                   `json:"column"`
	Offset int                   `json:"offset"`
	Chart  navigation.ChartState `json:"chart"`
}

// Endpoint for adding a chart to the layout.
//
//   - Expects: {column, offset, chart: {type, options, dimensions, extraMeasures}}
//   - Returns: ChartResponse of the new chart
func (api *DashboardAPI) AddChart(res http.ResponseWriter, req *http.Request) {
	var body addChartRequest
	if err := decodeJSON(req, &body); err != nil {
		sendClientError(res, err, "")
		return
	}

	chart, err := api.controller.AddChart(req.Context(), body.Column, body.Offset, body.Chart)
	if err != nil {
		sendError(res, err, "failed to add chart")
		return
	}
	api.sendChart(res, chart.ID())
}

// Endpoint for replacing a chart of the layout.
//
//   - Expects: path parameter 'id', and body {type, options, dimensions, extraMeasures}
//   - Returns: ChartResponse of the new chart
func (api *DashboardAPI) UpdateChart(res http.ResponseWriter, req *http.Request) {
	var body navigation.ChartState
	if err := decodeJSON(req, &body); err != nil {
		sendClientError(res, err, "")
		return
	}

	chartID := req.PathValue("id")
	api.stopPlayer(chartID)

	chart, err := api.controller.UpdateChart(req.Context(), chartID, body)
	if err != nil {
		sendError(res, err, "failed to update chart")
		return
	}
	api.sendChart(res, chart.ID())
}

// Endpoint for removing a chart from the layout.
//
//   - Expects: path parameter 'id'
func (api *DashboardAPI) RemoveChart(res http.ResponseWriter, req *http.Request) {
	chartID := req.PathValue("id")
	api.stopPlayer(chartID)

	if err := api.controller.RemoveChart(chartID); err != nil {
		sendError(res, err, "failed to remove chart")
		return
	}
	res.WriteHeader(http.StatusNoContent)
}

func (api *DashboardAPI) sendChart(res http.ResponseWriter, chartID string) {
	playing := api.playingCharts()

	var response ChartResponse
	err := error(navigation.ChartNotFoundError{ChartID: chartID})
	api.controller.Read(func(_ []*navigation.Dimension, layout [][]navigation.Chart) {
		for _, column := range layout {
			for _, chart := range column {
				if chart.ID() == chartID {
					response, err = chartResponse(chart, playing[chartID])
					return
				}
			}
		}
	})
	if err != nil {
		sendError(res, err, "failed to describe chart")
		return
	}
	sendJSON(res, response)
}

// playingCharts returns the IDs of charts with a running player.
func (api *DashboardAPI) playingCharts() map[string]bool {
	api.playersLock.Lock()
	defer api.playersLock.Unlock()

	playing := make(map[string]bool, len(api.players))
	for chartID, player := range api.players {
		if player.Running() {
			playing[chartID] = true
		}
	}
	return playing
}

// Endpoint for playing through the members of a chart's dimension, one at a time.
// A paused player resumes where it stopped.
//
//   - Expects: path parameter 'id'
//   - Returns: ChartResponse of the played chart
func (api *DashboardAPI) PlayChart(res http.ResponseWriter, req *http.Request) {
	chartID := req.PathValue("id")

	player, err := api.player(chartID)
	if err != nil {
		sendError(res, err, "failed to play chart")
		return
	}

	// The player outlives the request.
	player.Start(context.WithoutCancel(req.Context()))
	api.sendChart(res, chartID)
}

// player returns the player of the chart, creating it if the chart has none.
func (api *DashboardAPI) player(chartID string) (*navigation.Player, error) {
	api.playersLock.Lock()
	player, found := api.players[chartID]
	api.playersLock.Unlock()
	if found {
		return player, nil
	}

	chart, err := api.controller.Chart(chartID)
	if err != nil {
		return nil, err
	}
	player, err = api.controller.Player(chartID)
	if err != nil {
		return nil, err
	}
	if chart.PlayerTimeout() == 0 {
		player.SetTimeout(api.config.PlayerTimeout)
	}
	player.OnFinish(func() {
		api.playersLock.Lock()
		defer api.playersLock.Unlock()
		if api.players[chartID] == player {
			delete(api.players, chartID)
		}
		log.Infof("finished playing chart '%s'", chartID)
	})

	api.playersLock.Lock()
	defer api.playersLock.Unlock()
	if existing, found := api.players[chartID]; found {
		return existing, nil
	}
	api.players[chartID] = player
	return player, nil
}

// Endpoint for pausing the player of a chart.
//
//   - Expects: path parameter 'id'
//   - Returns: ChartResponse of the paused chart
func (api *DashboardAPI) PauseChart(res http.ResponseWriter, req *http.Request) {
	chartID := req.PathValue("id")
	if _, err := api.controller.Chart(chartID); err != nil {
		sendError(res, err, "failed to pause chart")
		return
	}

	api.playersLock.Lock()
	if player, found := api.players[chartID]; found {
		player.Pause()
	}
	api.playersLock.Unlock()

	api.sendChart(res, chartID)
}

func (api *DashboardAPI) stopPlayer(chartID string) {
	api.playersLock.Lock()
	defer api.playersLock.Unlock()

	if player, found := api.players[chartID]; found {
		player.Pause()
		delete(api.players, chartID)
	}
}

// stopPlayers pauses and forgets every player, before the layout is replaced.
func (api *DashboardAPI) stopPlayers() {
	api.playersLock.Lock()
	defer api.playersLock.Unlock()

	for chartID, player := range api.players {
		player.Pause()
		delete(api.players, chartID)
	}
}

type columnWidthsRequest struct {
	Widths []float64 `json:"widths"`
}

// Endpoint for storing the widths of the layout columns, kept in the analysis state.
//
//   - Expects: {widths}
func (api *DashboardAPI) SetColumnWidths(res http.ResponseWriter, req *http.Request) {
	var body columnWidthsRequest
	if err := decodeJSON(req, &body); err != nil {
		sendClientError(res, err, "")
		return
	}
	if len(body.Widths) > navigation.ChartColumns {
		sendClientError(res, nil, "more column widths than layout columns")
		return
	}

	api.controller.SetColumnWidths(body.Widths)
	res.WriteHeader(http.StatusNoContent)
}
