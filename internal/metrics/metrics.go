package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	outcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "emuctl",
			Subsystem: "lifecycle",
			Name:      "outcomes_total",
			Help:      "Per-emulator results of start and stop sequences.",
		}, []string{"server", "emulator", "status"},
	)
	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "emuctl",
			Subsystem: "lifecycle",
			Name:      "operation_duration_seconds",
			Help:      "Wall time of a start or stop sequence for one server, including configured delays.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"operation"},
	)
	running = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "emuctl",
			Subsystem: "emulator",
			Name:      "running",
			Help:      "1 when the emulator was running at the last status snapshot.",
		}, []string{"server", "emulator"},
	)
	memoryMB = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "emuctl",
			Subsystem: "emulator",
			Name:      "memory_mb",
			Help:      "Resident memory of the emulator at the last status snapshot.",
		}, []string{"server", "emulator"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{outcomes, operationDuration, running, memoryMB}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves g, or the default gatherer when g is nil.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// NewServer returns an unstarted server exposing g on addr under /metrics.
// A nil g serves the default registry.
func NewServer(addr string, g prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// The helpers below no-op until Register has succeeded.

func IncOutcome(server, emulator, status string) {
	if regOK.Load() {
		outcomes.WithLabelValues(server, emulator, status).Inc()
	}
}

func ObserveOperation(operation string, d time.Duration) {
	if regOK.Load() {
		operationDuration.WithLabelValues(operation).Observe(d.Seconds())
	}
}

// SetEmulator records the liveness and memory of one emulator. Memory is
// cleared when the emulator is not running.
func SetEmulator(server, emulator string, isRunning bool, memMB float64) {
	if !regOK.Load() {
		return
	}
	if isRunning {
		running.WithLabelValues(server, emulator).Set(1)
		memoryMB.WithLabelValues(server, emulator).Set(memMB)
		return
	}
	running.WithLabelValues(server, emulator).Set(0)
	memoryMB.DeleteLabelValues(server, emulator)
}
