package api

import (
	"net/http"

	"hermannm.dev/cubes/csv"
	"hermannm.dev/devlog/log"
)

type IngestResponse struct {
	Cube         string `json:"cube"`
	InsertedRows int    `json:"insertedRows"`
}

// Endpoint for uploading CSV rows to the fact table of a cube. The table is created if it
// does not exist, and the header row must name every column of the cube.
//
//   - Expects: query parameter 'cube', and multipart form file 'upload'
//   - Returns: {cube, insertedRows}
func (api *DashboardAPI) IngestCSV(res http.ResponseWriter, req *http.Request) {
	if api.ingester == nil {
		sendNotImplemented(res, "ingestion requires the ClickHouse backend")
		return
	}

	cube := req.URL.Query().Get("cube")
	if cube == "" {
		sendClientError(res, nil, "missing query parameter 'cube'")
		return
	}

	file, _, err := req.FormFile("upload")
	if err != nil {
		sendClientError(res, err, "failed to get file upload from request")
		return
	}
	defer file.Close()

	reader, err := csv.NewReader(file, false)
	if err != nil {
		sendClientError(res, err, "failed to read uploaded CSV")
		return
	}

	if err := api.ingester.CreateFactTable(req.Context(), cube); err != nil {
		sendError(res, err, "failed to create fact table")
		return
	}

	insertedRows, err := api.ingester.InsertFacts(req.Context(), cube, reader)
	if err != nil {
		sendError(res, err, "failed to insert uploaded CSV")
		return
	}

	log.Infof("inserted %d rows into fact table of cube '%s'", insertedRows, cube)
	sendJSON(res, IngestResponse{Cube: cube, InsertedRows: insertedRows})
}
