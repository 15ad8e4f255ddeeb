package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Federation metrics
	GardensTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "grove_gardens_total",
			Help: "Total number of known gardens by status",
		},
		[]string{"status"},
	)

	EventsHandledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grove_events_handled_total",
			Help: "Total number of federation events handled by name",
		},
		[]string{"event"},
	)

	ConnectionRepairsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grove_connection_repairs_total",
			Help: "Total number of connection parameter repairs by garden",
		},
		[]string{"garden"},
	)

	SyncOperationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "grove_sync_operations_total",
			Help: "Total number of routed garden sync operations issued",
		},
	)

	RoutedOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grove_routed_operations_total",
			Help: "Total number of operations routed by transport",
		},
		[]string{"transport"},
	)
)

func init() {
	prometheus.MustRegister(
		GardensTotal,
		EventsHandledTotal,
		ConnectionRepairsTotal,
		SyncOperationsTotal,
		RoutedOperationsTotal,
	)
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
