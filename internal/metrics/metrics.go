// internal/metrics/metrics.go
package metrics

import (
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/xkilldash9x/reporting-cli/api/schemas"
)

const namespace = "reporting"

// OutcomeSuccess is the outcome label of a run that produced its artifact.
const OutcomeSuccess = "success"

// Recorder collects the metrics of a capture run. A run is a short lived
// process, so metrics go to a private registry that is written out as a
// node exporter textfile instead of being scraped.
type Recorder struct {
	registry *prometheus.Registry

	runs             *prometheus.CounterVec
	captureDuration  *prometheus.HistogramVec
	stabilitySamples prometheus.Histogram
	stabilityTimeout prometheus.Counter
	artifactBytes    *prometheus.GaugeVec
	lastSuccess      prometheus.Gauge
}

// New creates a recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Capture runs by format and outcome.",
		}, []string{"format", "outcome"}),
		captureDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "capture_duration_seconds",
			Help:      "Wall time from browser launch to persisted artifact.",
			Buckets:   []float64{5, 10, 20, 30, 60, 120, 300, 600},
		}, []string{"format", "source"}),
		stabilitySamples: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stability_samples",
			Help:      "Content size samples taken before the page was considered stable.",
			Buckets:   prometheus.LinearBuckets(5, 5, 12),
		}),
		stabilityTimeout: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stability_timeouts_total",
			Help:      "Runs that captured after the stability wait ran out of time.",
		}),
		artifactBytes: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "artifact_bytes",
			Help:      "Size of the last written artifact.",
		}, []string{"format"}),
		lastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful capture.",
		}),
	}
}

// Registry exposes the underlying registry, mostly for tests.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// ObserveStability records one stability wait.
func (r *Recorder) ObserveStability(samples int, stable bool) {
	r.stabilitySamples.Observe(float64(samples))
	if !stable {
		r.stabilityTimeout.Inc()
	}
}

// ObserveCapture records a persisted artifact.
func (r *Recorder) ObserveCapture(format schemas.Format, source schemas.ReportSource, elapsed time.Duration, size int) {
	r.captureDuration.WithLabelValues(string(format), string(source)).Observe(elapsed.Seconds())
	r.artifactBytes.WithLabelValues(string(format)).Set(float64(size))
}

// RecordOutcome counts a finished run. err == nil is a success.
func (r *Recorder) RecordOutcome(format schemas.Format, err error, now time.Time) {
	r.runs.WithLabelValues(string(format), Outcome(err)).Inc()
	if err == nil {
		r.lastSuccess.Set(float64(now.Unix()))
	}
}

// WriteTextfile atomically writes all metrics in the text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

// Outcome maps a run error to its label value.
func Outcome(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	return strings.ToLower(string(schemas.CodeOf(err)))
}
