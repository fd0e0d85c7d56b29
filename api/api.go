package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"hermannm.dev/cubes/metadata"
	"hermannm.dev/cubes/metrics"
	"hermannm.dev/cubes/navigation"
	"hermannm.dev/cubes/olap/clickhouse"
	"hermannm.dev/cubes/snapshots"
)

type DashboardAPI struct {
	controller *navigation.Controller
	cache      *metadata.Cache
	snapshots  snapshots.Store
	ingester   FactIngester
	solap      http.Handler
	router     *http.ServeMux
	config     Config

	playersLock sync.Mutex
	players     map[string]*navigation.Player
}

type Config struct {
	Port string
	// Used by POST /init for fields left empty in the request.
	Defaults      navigation.Selection
	PlayerTimeout time.Duration
}

// Services holds what the API serves. Snapshots, Ingester and Solap are optional: their
// endpoints reply 501 Not Implemented when nil.
type Services struct {
	Controller *navigation.Controller
	Cache      *metadata.Cache
	Snapshots  snapshots.Store
	Ingester   FactIngester
	Solap      http.Handler
}

// FactIngester loads CSV rows into the fact table of a cube.
type FactIngester interface {
	CreateFactTable(ctx context.Context, cubeID string) error
	InsertFacts(ctx context.Context, cubeID string, source clickhouse.FactSource) (insertedRows int, err error)
}

func NewDashboardAPI(services Services, router *http.ServeMux, config Config) *DashboardAPI {
	api := &DashboardAPI{
		controller: services.Controller,
		cache:      services.Cache,
		snapshots:  services.Snapshots,
		ingester:   services.Ingester,
		solap:      services.Solap,
		router:     router,
		config:     config,
		players:    make(map[string]*navigation.Player),
	}

	api.router.HandleFunc("GET /schemas", api.GetSchemas)
	api.router.HandleFunc("GET /cubes", api.GetCubes)
	api.router.HandleFunc("GET /dimensions", api.GetDimensions)

	api.router.HandleFunc("GET /analysis", api.GetAnalysis)
	api.router.HandleFunc("POST /init", api.Init)
	api.router.HandleFunc("POST /measure", api.SetMeasure)
	api.router.HandleFunc("POST /drill-down", api.DrillDown)
	api.router.HandleFunc("POST /roll-up", api.RollUp)
	api.router.HandleFunc("POST /aggregate", api.Aggregate)
	api.router.HandleFunc("POST /filter", api.Filter)
	api.router.HandleFunc("DELETE /filter", api.FilterAll)

	api.router.HandleFunc("GET /charts/data", api.GetChartsData)
	api.router.HandleFunc("POST /charts", api.AddChart)
	api.router.HandleFunc("PUT /charts/{id}", api.UpdateChart)
	api.router.HandleFunc("DELETE /charts/{id}", api.RemoveChart)
	api.router.HandleFunc("POST /charts/{id}/play", api.PlayChart)
	api.router.HandleFunc("POST /charts/{id}/pause", api.PauseChart)
	api.router.HandleFunc("PUT /column-widths", api.SetColumnWidths)

	api.router.HandleFunc("GET /state", api.GetState)
	api.router.HandleFunc("POST /state", api.RestoreState)
	api.router.HandleFunc("POST /snapshots", api.SaveSnapshot)
	api.router.HandleFunc("GET /snapshots", api.ListSnapshots)
	api.router.HandleFunc("DELETE /snapshots", api.DeleteSnapshot)
	api.router.HandleFunc("POST /snapshots/restore", api.RestoreSnapshot)

	api.router.HandleFunc("POST /solap", api.Solap)
	api.router.HandleFunc("POST /ingest", api.IngestCSV)
	api.router.Handle("GET /metrics", metrics.Handler())

	return api
}

func (api *DashboardAPI) ListenAndServe() error {
	return http.ListenAndServe(fmt.Sprintf(":%s", api.config.Port), api.router)
}

// Endpoint for the solap-compatible query interface over the configured backend.
//
//   - Expects: a solap request body
//   - Returns: a solap reply, always with status 200
func (api *DashboardAPI) Solap(res http.ResponseWriter, req *http.Request) {
	if api.solap == nil {
		sendNotImplemented(res, "solap endpoint is not enabled")
		return
	}
	api.solap.ServeHTTP(res, req)
}
