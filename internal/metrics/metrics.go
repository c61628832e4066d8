// Package metrics records what a run did so node exporters can pick it up
// through the textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stage labels.
const (
	StageFetch  = "fetch"
	StageWrite  = "write"
	StageUpload = "upload"
)

// Status labels.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Recorder holds one run's metrics in its own registry. A nil *Recorder is
// valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	attempts      *prometheus.CounterVec
	keys          *prometheus.CounterVec
	formats       *prometheus.CounterVec
	stageDuration *prometheus.GaugeVec
	limiterPeak   *prometheus.GaugeVec
	lastRun       prometheus.Gauge
}

// New creates a Recorder backed by a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vault_loader_attempts_total",
				Help: "Vault requests made, by stage and result",
			},
			[]string{"stage", "status"},
		),
		keys: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vault_loader_keys_total",
				Help: "Keys processed, by stage and final status",
			},
			[]string{"stage", "status"},
		),
		formats: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vault_loader_key_formats_total",
				Help: "Decoded keys by the secret field they were taken from",
			},
			[]string{"field"},
		),
		stageDuration: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vault_loader_stage_duration_seconds",
				Help: "Wall time spent in each stage of the last run",
			},
			[]string{"stage"},
		),
		limiterPeak: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vault_loader_limiter_peak",
				Help: "Most permits held at once, by limiter",
			},
			[]string{"limiter"},
		),
		lastRun: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "vault_loader_last_run_timestamp_seconds",
				Help: "Unix time the last run finished",
			},
		),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// RecordAttempt counts one Vault request.
func (r *Recorder) RecordAttempt(stage string, err error) {
	if r == nil {
		return
	}
	r.attempts.WithLabelValues(stage, status(err)).Inc()
}

// RecordKey counts a key reaching its final state in a stage.
func (r *Recorder) RecordKey(stage string, err error) {
	if r == nil {
		return
	}
	r.keys.WithLabelValues(stage, status(err)).Inc()
}

// RecordFormat counts a decoded key by its source field.
func (r *Recorder) RecordFormat(field string) {
	if r == nil {
		return
	}
	r.formats.WithLabelValues(field).Inc()
}

// ObserveStage records how long a stage took.
func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Set(d.Seconds())
}

// SetLimiterPeak records the peak usage of a named limiter.
func (r *Recorder) SetLimiterPeak(name string, peak int64) {
	if r == nil {
		return
	}
	r.limiterPeak.WithLabelValues(name).Set(float64(peak))
}

// WriteTextfile stamps the run time and writes every metric to path in the
// text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	r.lastRun.SetToCurrentTime()
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}

func status(err error) string {
	if err != nil {
		return StatusFailure
	}
	return StatusSuccess
}
