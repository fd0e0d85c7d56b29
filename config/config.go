package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
	"hermannm.dev/wrap"
)

type Config struct {
	BaseConfig
	ClickHouse    ClickHouse
	Elasticsearch Elasticsearch
	Solap         Solap
}

type BaseConfig struct {
	IsProduction  bool             `env:"PRODUCTION"`
	QueryBackend  SupportedBackend `env:"QUERY_BACKEND"`
	SnapshotStore SupportedStore   `env:"SNAPSHOT_STORE" envDefault:"memory"`
	API           API
	Analysis      Analysis
}

type API struct {
	Port string `env:"API_PORT"`
}

// Analysis holds the defaults of new analyses.
type Analysis struct {
	ClientAggregationThreshold int           `env:"CLIENT_AGGREGATION_THRESHOLD" envDefault:"20000"`
	PlayerTimeout              time.Duration `env:"PLAYER_TIMEOUT" envDefault:"2s"`
	Schema                     string        `env:"SCHEMA" envDefault:""`
	Cube                       string        `env:"CUBE" envDefault:""`
	Measure                    string        `env:"MEASURE" envDefault:""`
}

type ClickHouse struct {
	Address             string `env:"CLICKHOUSE_ADDRESS"`
	DatabaseName        string `env:"CLICKHOUSE_DB_NAME"`
	Username            string `env:"CLICKHOUSE_USERNAME"`
	Password            string `env:"CLICKHOUSE_PASSWORD"`
	Debug               bool   `env:"CLICKHOUSE_DEBUG_ENABLED" envDefault:"false"`
	CubeDefinitionsFile string `env:"CUBE_DEFINITIONS_FILE" envDefault:"cubes.yaml"`
	SnapshotTable       string `env:"CLICKHOUSE_SNAPSHOT_TABLE" envDefault:"snapshots"`
}

type Elasticsearch struct {
	Address       string `env:"ELASTICSEARCH_ADDRESS"`
	Debug         bool   `env:"ELASTICSEARCH_DEBUG_ENABLED" envDefault:"false"`
	SnapshotIndex string `env:"ELASTICSEARCH_SNAPSHOT_INDEX" envDefault:"snapshots"`
}

type Solap struct {
	URL     string        `env:"SOLAP_URL"`
	Timeout time.Duration `env:"SOLAP_TIMEOUT" envDefault:"30s"`
}

type SupportedBackend string

const (
	BackendClickHouse SupportedBackend = "clickhouse"
	BackendSolap      SupportedBackend = "solap"
)

type SupportedStore string

const (
	StoreNone          SupportedStore = "none"
	StoreMemory        SupportedStore = "memory"
	StoreClickHouse    SupportedStore = "clickhouse"
	StoreElasticsearch SupportedStore = "elasticsearch"
)

func ReadFromEnv() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, wrap.Error(err, "failed to load .env file")
	}

	return Parse(env.Options{RequiredIfNoDef: true})
}

// Parse reads the config from the environment, with the given options. Only the sections
// used by the selected backend and snapshot store are read.
func Parse(parseOptions env.Options) (Config, error) {
	var config Config

	if err := env.ParseWithOptions(&config.BaseConfig, parseOptions); err != nil {
		return Config{}, err
	}

	if config.Analysis.ClientAggregationThreshold < 0 {
		return Config{}, fmt.Errorf(
			"CLIENT_AGGREGATION_THRESHOLD must not be negative, got %d",
			config.Analysis.ClientAggregationThreshold,
		)
	}

	needsClickHouse := false
	switch config.QueryBackend {
	case BackendClickHouse:
		needsClickHouse = true
	case BackendSolap:
		if err := env.ParseWithOptions(&config.Solap, parseOptions); err != nil {
			return Config{}, err
		}
	default:
		err := fmt.Errorf("must be one of: '%s', '%s'", BackendClickHouse, BackendSolap)
		return Config{}, wrap.Errorf(err, "unsupported value '%s' for QUERY_BACKEND in env", config.QueryBackend)
	}

	switch config.SnapshotStore {
	case StoreNone, StoreMemory:
	case StoreClickHouse:
		needsClickHouse = true
	case StoreElasticsearch:
		if err := env.ParseWithOptions(&config.Elasticsearch, parseOptions); err != nil {
			return Config{}, err
		}
	default:
		err := fmt.Errorf(
			"must be one of: '%s', '%s', '%s', '%s'",
			StoreNone, StoreMemory, StoreClickHouse, StoreElasticsearch,
		)
		return Config{}, wrap.Errorf(err, "unsupported value '%s' for SNAPSHOT_STORE in env", config.SnapshotStore)
	}

	if needsClickHouse {
		if err := env.ParseWithOptions(&config.ClickHouse, parseOptions); err != nil {
			return Config{}, err
		}
	}

	return config, nil
}
