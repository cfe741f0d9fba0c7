/*
Package metrics exposes ledger and HTTP activity as Prometheus metrics.

METRICS:
  stock_turnovers_recorded_total{direction,correction}  committed ledger rows
  stock_turnover_quantity_total{direction}              booked quantity
  stock_turnovers_rejected_total{rule}                  gate rejections
  stock_transfers_total{result}                         transfer outcomes
  stock_http_request_duration_seconds{method,route,status}

Metrics implements ledger.Observer; pass it with ledger.WithObserver.
*/
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warp/stock-ledger/ledger"
)

type Metrics struct {
	registry  *prometheus.Registry
	recorded  *prometheus.CounterVec
	quantity  *prometheus.CounterVec
	rejected  *prometheus.CounterVec
	transfers *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

var _ ledger.Observer = (*Metrics)(nil)

// New registers all collectors, plus the Go runtime and process
// collectors, on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		recorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stock_turnovers_recorded_total",
			Help: "Ledger rows committed.",
		}, []string{"direction", "correction"}),
		quantity: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stock_turnover_quantity_total",
			Help: "Quantity booked by committed ledger rows.",
		}, []string{"direction"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stock_turnovers_rejected_total",
			Help: "Ledger rows rejected before insert, by rule.",
		}, []string{"rule"}),
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stock_transfers_total",
			Help: "Stock transfers between warehouses, by result.",
		}, []string{"result"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stock_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	m.registry.MustRegister(
		m.recorded, m.quantity, m.rejected, m.transfers, m.durations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) TurnoverRecorded(t ledger.Turnover) {
	m.recorded.WithLabelValues(t.Direction.String(), strconv.FormatBool(t.IsCorrection)).Inc()
	m.quantity.WithLabelValues(t.Direction.String()).Add(t.Quantity.InexactFloat64())
}

func (m *Metrics) TurnoverRejected(rule ledger.Rule) {
	m.rejected.WithLabelValues(string(rule)).Inc()
}

func (m *Metrics) TransferFinished(err error) {
	result := "committed"
	if err != nil {
		result = "failed"
	}
	m.transfers.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request latency labelled with the chi route pattern,
// so /material/7 and /material/8 share a series.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.durations.WithLabelValues(r.Method, route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	})
}
