// Package metrics collects run metrics and exports them in the Prometheus
// textfile format.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dbsmedya/gomigrator/internal/types"
)

const metricsNamespace = "gomigrator"

// Collector is a prometheus.Collector for one migrator run.
type Collector struct {
	migrated     *prometheus.CounterVec
	skipped      *prometheus.CounterVec
	pages        *prometheus.CounterVec
	typeDuration *prometheus.GaugeVec
	lastRun      prometheus.Gauge
}

// NewCollector returns a new Collector.
func NewCollector() *Collector {
	return &Collector{
		migrated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "records_migrated_total",
				Help:      "The number of legacy records migrated in this run.",
			}, []string{"entity_type"},
		),
		skipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "records_skipped_total",
				Help:      "The number of legacy records skipped in this run.",
			}, []string{"entity_type", "category"},
		),
		pages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "pages_fetched_total",
				Help:      "The number of legacy pages fetched in this run.",
			}, []string{"entity_type"},
		),
		typeDuration: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "pipeline_duration_seconds",
				Help:      "Wall time spent in each entity type pipeline.",
			}, []string{"entity_type"},
		),
		lastRun: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time the run finished.",
			},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.migrated.Describe(ch)
	c.skipped.Describe(ch)
	c.pages.Describe(ch)
	c.typeDuration.Describe(ch)
	c.lastRun.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.migrated.Collect(ch)
	c.skipped.Collect(ch)
	c.pages.Collect(ch)
	c.typeDuration.Collect(ch)
	c.lastRun.Collect(ch)
}

// Migrated counts one migrated record. A nil Collector is a no-op, as for
// all recording methods.
func (c *Collector) Migrated(t types.EntityType) {
	if c == nil {
		return
	}
	c.migrated.WithLabelValues(t.String()).Inc()
}

// Skipped counts one skipped record under the category of its reason.
func (c *Collector) Skipped(t types.EntityType, reason string) {
	if c == nil {
		return
	}
	c.skipped.WithLabelValues(t.String(), string(types.CategoryOf(reason))).Inc()
}

// Page counts one fetched page.
func (c *Collector) Page(t types.EntityType) {
	if c == nil {
		return
	}
	c.pages.WithLabelValues(t.String()).Inc()
}

// Duration records how long a pipeline ran.
func (c *Collector) Duration(t types.EntityType, d time.Duration) {
	if c == nil {
		return
	}
	c.typeDuration.WithLabelValues(t.String()).Set(d.Seconds())
}

// Finished stamps the end of the run.
func (c *Collector) Finished(at time.Time) {
	if c == nil {
		return
	}
	c.lastRun.Set(float64(at.Unix()))
}

// WriteTextfile writes the collected metrics to path for the node exporter
// textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
