package api

import (
	"net/http"
)

// Endpoint for listing the schemas of the query API.
//
//   - Returns: the schemas, ordered by ID
func (api *DashboardAPI) GetSchemas(res http.ResponseWriter, req *http.Request) {
	schemas, err := api.cache.Schemas(req.Context())
	if err != nil {
		sendError(res, err, "failed to get schemas")
		return
	}
	sendJSON(res, schemas)
}

// Endpoint for listing the cubes of a schema, with their measures.
//
//   - Expects: query parameter 'schema'
//   - Returns: list of {cube, measures}
func (api *DashboardAPI) GetCubes(res http.ResponseWriter, req *http.Request) {
	schema := req.URL.Query().Get("schema")
	if schema == "" {
		sendClientError(res, nil, "missing query parameter 'schema'")
		return
	}

	cubes, err := api.cache.CubesAndMeasures(req.Context(), schema)
	if err != nil {
		sendError(res, err, "failed to get cubes")
		return
	}
	sendJSON(res, cubes)
}

// Endpoint for listing the dimensions of a cube, excluding the measure dimension.
//
//   - Expects: query parameters 'schema' and 'cube'
//   - Returns: list of {id, caption, description, type}
func (api *DashboardAPI) GetDimensions(res http.ResponseWriter, req *http.Request) {
	query := req.URL.Query()
	schema, cube := query.Get("schema"), query.Get("cube")
	if schema == "" || cube == "" {
		sendClientError(res, nil, "missing query parameters 'schema' and 'cube'")
		return
	}

	dimensions, err := api.cache.Dimensions(req.Context(), schema, cube)
	if err != nil {
		sendError(res, err, "failed to get dimensions")
		return
	}
	sendJSON(res, dimensions)
}
