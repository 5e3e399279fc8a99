package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joinrace/joinrace/race"
	"github.com/joinrace/joinrace/race/trace"
)

// runMetrics holds the per-run counters written with --metrics_file. It uses
// its own registry so nothing leaks between runs or tests.
type runMetrics struct {
	registry      *prometheus.Registry
	logLines      prometheus.Counter
	discarded     prometheus.Counter
	paired        prometheus.Counter
	dropped       prometheus.Counter
	anomalies     *prometheus.CounterVec
	stageDuration *prometheus.GaugeVec
}

func newRunMetrics() *runMetrics {
	m := &runMetrics{
		registry: prometheus.NewRegistry(),
		logLines: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "joinrace",
			Name:      "log_lines_total",
			Help:      "Log lines read by the scanner.",
		}),
		discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "joinrace",
			Name:      "events_discarded_total",
			Help:      "Recognised log lines that could not be used.",
		}),
		paired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "joinrace",
			Name:      "sessions_paired_total",
			Help:      "Sessions produced by pairing.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "joinrace",
			Name:      "starts_dropped_total",
			Help:      "Start events that never met a terminal event.",
		}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "joinrace",
			Name:      "anomalies_total",
			Help:      "Sessions flagged per rule.",
		}, []string{"rule"}),
		stageDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "joinrace",
			Name:      "stage_duration_seconds",
			Help:      "Wall time spent in each pipeline stage.",
		}, []string{"stage"}),
	}
	m.registry.MustRegister(m.logLines, m.discarded, m.paired, m.dropped, m.anomalies, m.stageDuration)
	return m
}

func (m *runMetrics) observePairing(s *trace.PairingSummary) {
	m.logLines.Add(float64(s.Lines))
	m.discarded.Add(float64(s.Discarded))
	m.paired.Add(float64(s.Matched))
	m.dropped.Add(float64(s.DroppedStarts))
}

func (m *runMetrics) observeAnomalies(records []race.AnomalyRecord, rules []string) {
	for _, rule := range rules {
		// touch every label so zero counts are still exported
		m.anomalies.WithLabelValues(rule)
	}
	for _, r := range records {
		for _, label := range r.Labels {
			m.anomalies.WithLabelValues(label).Inc()
		}
	}
}

func (m *runMetrics) observeStage(stage string, start time.Time) {
	m.stageDuration.WithLabelValues(stage).Set(time.Since(start).Seconds())
}

func (m *runMetrics) write(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics %s: %w", path, err)
	}
	return nil
}
