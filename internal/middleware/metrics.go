package middleware

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jward/agentmap/internal/errs"
	"github.com/jward/agentmap/internal/model"
	"github.com/jward/agentmap/internal/syntax"
)

const parseStartKey = "metrics.parse_start"

// Metrics counts file passes and their output on a Prometheus registerer.
type Metrics struct {
	Base

	// files counts finished passes.
	// Labels: language, outcome (analyzed, cached, failed)
	files *prometheus.CounterVec

	// failures counts failed passes by error kind.
	// Labels: kind
	failures *prometheus.CounterVec

	// duration measures whole-pass and parse latency.
	// Labels: stage (parse, total)
	duration *prometheus.HistogramVec

	symbols       prometheus.Counter
	relationships prometheus.Counter
}

// NewMetrics registers the scan metrics on reg. A nil reg uses a fresh
// private registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		files: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentmap",
			Subsystem: "scan",
			Name:      "files_total",
			Help:      "Files that finished a pipeline pass",
		}, []string{"language", "outcome"}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentmap",
			Subsystem: "scan",
			Name:      "failures_total",
			Help:      "Failed file passes by error kind",
		}, []string{"kind"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentmap",
			Subsystem: "scan",
			Name:      "duration_seconds",
			Help:      "File pipeline latency in seconds",
			Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"stage"}),
		symbols: f.NewCounter(prometheus.CounterOpts{
			Namespace: "agentmap",
			Subsystem: "scan",
			Name:      "symbols_total",
			Help:      "Symbols extracted",
		}),
		relationships: f.NewCounter(prometheus.CounterOpts{
			Namespace: "agentmap",
			Subsystem: "scan",
			Name:      "relationships_total",
			Help:      "Relationships extracted",
		}),
	}
}

func (m *Metrics) Name() string { return "metrics" }

func (m *Metrics) BeforeParse(_ context.Context, c *Context) error {
	c.Set(parseStartKey, time.Now())
	return nil
}

func (m *Metrics) AfterParse(_ context.Context, c *Context, _ *syntax.ParsedFile) error {
	if v, ok := c.Get(parseStartKey); ok {
		if start, ok := v.(time.Time); ok {
			m.duration.WithLabelValues("parse").Observe(time.Since(start).Seconds())
		}
	}
	return nil
}

func (m *Metrics) AfterAnalyze(_ context.Context, c *Context, a *model.CodeAnalysis) error {
	outcome := "analyzed"
	if c.Cached() != nil {
		outcome = "cached"
	}
	m.files.WithLabelValues(c.Language.String(), outcome).Inc()
	m.duration.WithLabelValues("total").Observe(c.Elapsed().Seconds())
	m.symbols.Add(float64(len(a.Symbols)))
	m.relationships.Add(float64(len(a.Relationships)))
	return nil
}

func (m *Metrics) OnFailure(_ context.Context, c *Context, err error) {
	m.files.WithLabelValues(c.Language.String(), "failed").Inc()
	m.failures.WithLabelValues(errs.KindOf(err).String()).Inc()
}
