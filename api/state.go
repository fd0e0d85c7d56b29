package api

import (
	"net/http"

	"hermannm.dev/cubes/navigation"
	"hermannm.dev/cubes/snapshots"
)

// Endpoint for getting the serializable state of the analysis.
//
//   - Returns: navigation.State
func (api *DashboardAPI) GetState(res http.ResponseWriter, req *http.Request) {
	state, err := api.controller.State()
	if err != nil {
		sendError(res, err, "failed to get analysis state")
		return
	}
	sendJSON(res, state)
}

// Endpoint for restoring a previously saved analysis state. The current analysis is kept
// if the state cannot be restored.
//
//   - Expects: navigation.State
//   - Returns: AnalysisResponse
func (api *DashboardAPI) RestoreState(res http.ResponseWriter, req *http.Request) {
	var state navigation.State
	if err := decodeJSON(req, &state); err != nil {
		sendClientError(res, err, "")
		return
	}

	api.restore(res, req, state)
}

func (api *DashboardAPI) restore(res http.ResponseWriter, req *http.Request, state navigation.State) {
	if err := state.Validate(); err != nil {
		sendClientError(res, err, "invalid analysis state")
		return
	}

	api.stopPlayers()
	if err := api.controller.Restore(req.Context(), state); err != nil {
		sendError(res, err, "failed to restore analysis state")
		return
	}
	sendJSON(res, api.analysisResponse())
}

type saveSnapshotRequest struct {
	Name string `json:"name"`
}

// Endpoint for saving the current analysis state as a snapshot.
//
//   - Expects: {name}, where an empty name defaults to the cube ID
//   - Returns: snapshots.Summary of the saved snapshot
func (api *DashboardAPI) SaveSnapshot(res http.ResponseWriter, req *http.Request) {
	if api.snapshots == nil {
		sendNotImplemented(res, "no snapshot store configured")
		return
	}

	var body saveSnapshotRequest
	if err := decodeJSON(req, &body); err != nil {
		sendClientError(res, err, "")
		return
	}

	state, err := api.controller.State()
	if err != nil {
		sendError(res, err, "failed to get analysis state")
		return
	}

	snapshot, err := snapshots.NewSnapshot(body.Name, state)
	if err != nil {
		sendError(res, err, "failed to create snapshot")
		return
	}

	if err := api.snapshots.Save(req.Context(), snapshot); err != nil {
		sendError(res, err, "failed to save snapshot")
		return
	}
	sendJSON(res, snapshot.Summary())
}

// Endpoint for listing saved snapshots, or getting one of them.
//
//   - Expects: optional query parameter 'id'
//   - Returns: the snapshot with the given ID, or the summaries of every snapshot, newest
//     first
func (api *DashboardAPI) ListSnapshots(res http.ResponseWriter, req *http.Request) {
	if api.snapshots == nil {
		sendNotImplemented(res, "no snapshot store configured")
		return
	}

	if id := req.URL.Query().Get("id"); id != "" {
		snapshot, err := api.snapshots.Load(req.Context(), id)
		if err != nil {
			sendError(res, err, "failed to load snapshot")
			return
		}
		sendJSON(res, snapshot)
		return
	}

	summaries, err := api.snapshots.List(req.Context())
	if err != nil {
		sendError(res, err, "failed to list snapshots")
		return
	}
	sendJSON(res, summaries)
}

// Endpoint for deleting a saved snapshot.
//
//   - Expects: query parameter 'id'
func (api *DashboardAPI) DeleteSnapshot(res http.ResponseWriter, req *http.Request) {
	if api.snapshots == nil {
		sendNotImplemented(res, "no snapshot store configured")
		return
	}

	id := req.URL.Query().Get("id")
	if id == "" {
		sendClientError(res, nil, "missing query parameter 'id'")
		return
	}

	if err := api.snapshots.Delete(req.Context(), id); err != nil {
		sendError(res, err, "failed to delete snapshot")
		return
	}
	res.WriteHeader(http.StatusNoContent)
}

// Endpoint for restoring the analysis state of a saved snapshot.
//
//   - Expects: query parameter 'id'
//   - Returns: AnalysisResponse
func (api *DashboardAPI) RestoreSnapshot(res http.ResponseWriter, req *http.Request) {
	if api.snapshots == nil {
		sendNotImplemented(res, "no snapshot store configured")
		return
	}

	id := req.URL.Query().Get("id")
	if id == "" {
		sendClientError(res, nil, "missing query parameter 'id'")
		return
	}

	snapshot, err := api.snapshots.Load(req.Context(), id)
	if err != nil {
		sendError(res, err, "failed to load snapshot")
		return
	}

	api.restore(res, req, snapshot.State)
}
