// Package metrics exposes check outcomes as Prometheus metrics written to a
// node_exporter textfile.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vtmqa/vtmsmoke/internal/resultlog"
)

// Collector is a resultlog.Recorder that counts outcomes.
type Collector struct {
	reg *prometheus.Registry

	checks  *prometheus.CounterVec
	success *prometheus.GaugeVec
	lastRun prometheus.Gauge
	now     func() time.Time
}

// New returns a Collector with its own registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Collector{
		reg: reg,
		checks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vtmsmoke_checks_total",
			Help: "Concluded checks by outcome.",
		}, []string{"check", "outcome"}),
		success: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vtmsmoke_check_success",
			Help: "1 if the last run of the check succeeded, 0 otherwise.",
		}, []string{"check"}),
		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vtmsmoke_last_run_timestamp_seconds",
			Help: "Unix time the last run finished.",
		}),
		now: time.Now,
	}
}

// Record implements resultlog.Recorder.
func (c *Collector) Record(r resultlog.Record) {
	c.checks.WithLabelValues(r.Test, r.Outcome.Label()).Inc()
	v := 0.0
	if r.Outcome == resultlog.Success {
		v = 1
	}
	c.success.WithLabelValues(r.Test).Set(v)
}

// Registry returns the registry the metrics live in.
func (c *Collector) Registry() *prometheus.Registry {
	return c.reg
}

// Flush stamps the run as finished and writes every metric to path. The file
// is replaced atomically.
func (c *Collector) Flush(path string) error {
	c.lastRun.Set(float64(c.now().Unix()))
	if err := prometheus.WriteToTextfile(path, c.reg); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
