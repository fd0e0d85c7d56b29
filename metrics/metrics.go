// Package metrics holds the Prometheus collectors of the service. They are registered on
// the default registry, and served by Handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cubes"

var (
	ExploreRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "explore_requests_total",
		Help:      "Explore requests sent to the query API, by reply status.",
	}, []string{"status"})

	MetadataLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "metadata_cache_lookups_total",
		Help:      "Metadata cache lookups, by result (hit or miss).",
	}, []string{"result"})

	QueryExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "query_executions_total",
		Help:      "Data queries executed on the query API, by reply status.",
	}, []string{"status"})

	QueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "query_duration_seconds",
		Help:      "Duration of data queries on the query API.",
		Buckets:   prometheus.DefBuckets,
	})

	DataLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "data_loads_total",
		Help:      "Datasets installed in the aggregation engine, by aggregation mode.",
	}, []string{"mode"})

	CrossedMembers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "crossed_members",
		Help:      "Number of crossed members of the last loaded dataset.",
	})

	DisposedHandles = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "disposed_crossfilter_handles_total",
		Help:      "Crossfilter dimension and group handles disposed before reloads.",
	})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
