package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dsa110/mnc/agent/internal/compute"
)

const namespace = "dsa_statusmon"

// Metrics records monitor outcomes. Safe for concurrent use.
type Metrics struct {
	registry *prometheus.Registry

	observing   prometheus.Gauge
	criterion   *prometheus.GaugeVec
	statistic   *prometheus.GaugeVec
	elFraction  *prometheus.GaugeVec
	evaluations *prometheus.CounterVec
	duration    prometheus.Histogram
	publishes   *prometheus.CounterVec
	dayFraction prometheus.Gauge
	lastEval    prometheus.Gauge
}

// New creates Metrics on a fresh registry, including the Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		observing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "observing",
			Help:      "1 when the last evaluation found the array observing, 0 otherwise.",
		}),
		criterion: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "criterion",
			Help:      "Last outcome per criterion: 1 pass, 0 fail, -1 skipped.",
		}, []string{"criterion"}),
		statistic: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "criterion_value",
			Help:      "Statistic each criterion was judged on in the last evaluation.",
		}, []string{"criterion"}),
		elFraction: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "elevation_offset_fraction",
			Help:      "Fraction of core antennas further than the threshold from the median elevation.",
		}, []string{"threshold"}),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Evaluations by result.",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Time spent querying and judging one evaluation.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publishes_total",
			Help:      "Status puts by result.",
		}, []string{"result"}),
		dayFraction: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "day_fraction",
			Help:      "Observing fraction of the most recently reported day.",
		}),
		lastEval: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_evaluation_timestamp_seconds",
			Help:      "Unix time of the last successful evaluation.",
		}),
	}
	reg.MustRegister(
		m.observing, m.criterion, m.statistic, m.elFraction,
		m.evaluations, m.duration, m.publishes, m.dayFraction, m.lastEval,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveEvaluation records one cycle of the monitor loop.
func (m *Metrics) ObserveEvaluation(res *compute.Result, err error, took time.Duration) {
	m.duration.Observe(took.Seconds())
	if err != nil {
		m.evaluations.WithLabelValues("error").Inc()
		return
	}
	m.evaluations.WithLabelValues("ok").Inc()
	m.lastEval.Set(float64(res.At.Unix()))

	if res.Overall {
		m.observing.Set(1)
	} else {
		m.observing.Set(0)
	}
	for _, c := range res.Criteria {
		name := c.Criterion.String()
		switch c.Outcome {
		case compute.Pass:
			m.criterion.WithLabelValues(name).Set(1)
		case compute.Fail:
			m.criterion.WithLabelValues(name).Set(0)
		default:
			m.criterion.WithLabelValues(name).Set(-1)
		}
		m.statistic.WithLabelValues(name).Set(c.Value)
	}
	if res.Elevation.N > 0 {
		m.elFraction.WithLabelValues("6arcmin").Set(res.Elevation.Frac6)
		m.elFraction.WithLabelValues("30arcmin").Set(res.Elevation.Frac30)
	}
}

// ObservePublish records the outcome of one status put.
func (m *Metrics) ObservePublish(err error) {
	if err != nil {
		m.publishes.WithLabelValues("error").Inc()
		return
	}
	m.publishes.WithLabelValues("ok").Inc()
}

// ObserveDayFraction records the result of a daily report.
func (m *Metrics) ObserveDayFraction(f float64) {
	m.dayFraction.Set(f)
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// Serve listens on addr and serves /metrics until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("metrics: listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
