package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"hermannm.dev/cubes/api"
	"hermannm.dev/cubes/charts"
	"hermannm.dev/cubes/config"
	"hermannm.dev/cubes/metadata"
	"hermannm.dev/cubes/navigation"
	"hermannm.dev/cubes/olap"
	"hermannm.dev/cubes/olap/clickhouse"
	"hermannm.dev/cubes/olap/solap"
	"hermannm.dev/cubes/query"
	"hermannm.dev/cubes/snapshots"
	"hermannm.dev/devlog"
	"hermannm.dev/devlog/log"
	"hermannm.dev/wrap"
)

func main() {
	setLogger(slog.LevelDebug)

	log.Info("Loading environment variables...")
	conf, err := config.ReadFromEnv()
	if err != nil {
		log.ErrorCause(err, "failed to read config from env")
		os.Exit(1)
	}
	if conf.IsProduction {
		setLogger(slog.LevelInfo)
	}

	ctx := context.Background()

	services, err := initializeServices(ctx, conf)
	if err != nil {
		log.ErrorCause(err, "failed to initialize services")
		os.Exit(1)
	}

	cache := metadata.NewCache(services.queryAPI)
	controller, err := navigation.NewController(navigation.Options{
		Cache:                      cache,
		Builder:                    query.NewBuilder(services.queryAPI),
		Charts:                     charts.NewFactory(),
		ClientAggregationThreshold: conf.Analysis.ClientAggregationThreshold,
	})
	if err != nil {
		log.ErrorCause(err, "failed to initialize navigation controller")
		os.Exit(1)
	}

	dashboardAPI := api.NewDashboardAPI(
		api.Services{
			Controller: controller,
			Cache:      cache,
			Snapshots:  services.snapshots,
			Ingester:   services.ingester,
			Solap:      solap.NewHandler(services.solapAPI),
		},
		http.NewServeMux(),
		api.Config{
			Port: conf.API.Port,
			Defaults: navigation.Selection{
				Schema:  conf.Analysis.Schema,
				Cube:    conf.Analysis.Cube,
				Measure: conf.Analysis.Measure,
			},
			PlayerTimeout: conf.Analysis.PlayerTimeout,
		},
	)

	log.Infof("Listening on port %s...", conf.API.Port)
	if err := dashboardAPI.ListenAndServe(); err != nil {
		log.ErrorCause(err, "server stopped")
		os.Exit(1)
	}
}

func setLogger(level slog.Level) {
	logHandler := devlog.NewHandler(os.Stdout, &devlog.Options{Level: level})
	slog.SetDefault(slog.New(logHandler))
}

type backendServices struct {
	queryAPI olap.QueryAPI
	// Separate from queryAPI, since query state is per API value.
	solapAPI  olap.QueryAPI
	ingester  api.FactIngester
	snapshots snapshots.Store
}

func initializeServices(ctx context.Context, conf config.Config) (backendServices, error) {
	var result backendServices
	var backend *clickhouse.Backend

	switch conf.QueryBackend {
	case config.BackendClickHouse:
		log.Info("Connecting to ClickHouse...")
		var err error
		backend, err = clickhouse.Connect(conf.ClickHouse)
		if err != nil {
			return backendServices{}, err
		}
		if err := backend.Ping(ctx); err != nil {
			return backendServices{}, wrap.Errorf(err, "failed to reach ClickHouse at '%s'", conf.ClickHouse.Address)
		}
		result.queryAPI = backend
		result.solapAPI = backend.Fork()
		result.ingester = backend
	case config.BackendSolap:
		result.queryAPI = solap.NewClient(conf.Solap.URL, conf.Solap.Timeout)
		result.solapAPI = solap.NewClient(conf.Solap.URL, conf.Solap.Timeout)
	default:
		return backendServices{}, fmt.Errorf("unsupported query backend '%s'", conf.QueryBackend)
	}

	switch conf.SnapshotStore {
	case config.StoreNone:
	case config.StoreMemory:
		result.snapshots = snapshots.NewMemoryStore()
	case config.StoreClickHouse:
		var conn driver.Conn
		if backend != nil {
			conn = backend.Conn()
		} else {
			log.Info("Connecting to ClickHouse...")
			var err error
			if conn, err = clickhouse.Open(conf.ClickHouse); err != nil {
				return backendServices{}, err
			}
		}

		store, err := snapshots.NewClickHouseStore(conn, conf.ClickHouse.SnapshotTable)
		if err != nil {
			return backendServices{}, err
		}
		if err := store.CreateTable(ctx); err != nil {
			return backendServices{}, wrap.Error(err, "failed to create snapshot table")
		}
		result.snapshots = store
	case config.StoreElasticsearch:
		log.Info("Connecting to Elasticsearch...")
		store, err := snapshots.NewElasticsearchStore(conf.Elasticsearch)
		if err != nil {
			return backendServices{}, err
		}
		if err := store.CreateIndex(ctx); err != nil {
			return backendServices{}, wrap.Error(err, "failed to create snapshot index")
		}
		result.snapshots = store
	default:
		return backendServices{}, fmt.Errorf("unsupported snapshot store '%s'", conf.SnapshotStore)
	}

	return result, nil
}
