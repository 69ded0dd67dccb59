package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stratadb/internal/catalog"
	"stratadb/internal/directory"
)

// ControlPlaneCollector exposes master diagnostics as Prometheus metrics.
// The catalog row counters are monotone and read live; the directory gauges
// are sampled by Observe.
type ControlPlaneCollector struct {
	tserverCount  prometheus.Gauge
	tserversLive  prometheus.Gauge
	tserversStale prometheus.Gauge
}

// NewControlPlaneCollector creates a collector registered on the provided
// registry (default if nil).
func NewControlPlaneCollector(reg prometheus.Registerer, namespace string, cat *catalog.Catalog) *ControlPlaneCollector {
	if namespace == "" {
		namespace = "stratadb"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	builder := promauto.With(reg)
	builder.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "catalog_rows_inserted_total",
		Help:      "Catalog rows inserted since the master started.",
	}, func() float64 { return float64(cat.RowsInserted()) })
	builder.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "catalog_rows_updated_total",
		Help:      "Catalog rows updated since the master started.",
	}, func() float64 { return float64(cat.RowsUpdated()) })
	return &ControlPlaneCollector{
		tserverCount: builder.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tablet_servers_registered",
			Help:      "Tablet servers that have registered with this master.",
		}),
		tserversLive: builder.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tablet_servers_live",
			Help:      "Registered tablet servers currently heartbeating.",
		}),
		tserversStale: builder.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tablet_servers_stale",
			Help:      "Registered tablet servers that stopped heartbeating.",
		}),
	}
}

// Observe samples the server directory.
func (c *ControlPlaneCollector) Observe(dir *directory.Directory) {
	total, live := dir.Count()
	c.tserverCount.Set(float64(total))
	c.tserversLive.Set(float64(live))
	c.tserversStale.Set(float64(total - live))
}

// Run samples on a fixed cadence until the context is canceled.
func (c *ControlPlaneCollector) Run(ctx context.Context, dir *directory.Directory, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		c.Observe(dir)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// StartServer serves Prometheus metrics on the provided address until the context is canceled.
func StartServer(ctx context.Context, addr string) error {
	if addr == "" {
		return fmt.Errorf("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
