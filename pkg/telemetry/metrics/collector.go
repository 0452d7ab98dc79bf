package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"arbiter-hq/tollgate/pkg/costs"
	"arbiter-hq/tollgate/pkg/engine"
)

// Config contains configuration for the metrics collector.
type Config struct {
	// Namespace is the metric name prefix.
	// Default: "tollgate"
	Namespace string
}

// Collector translates engine events into Prometheus metrics.
//
// Metrics:
//   - <ns>_requests_total: terminal outcomes by provider, model, status
//   - <ns>_admissions_total: admissions by provider, model, failed_over
//   - <ns>_retries_total: retry attempts by provider, model
//   - <ns>_failovers_total: fallback substitutions by provider, model
//   - <ns>_wait_seconds: queue and backoff waits by kind and priority
//   - <ns>_queue_depth: current scheduler queue depth
//   - <ns>_budget_used_ratio: budget fraction used by period
type Collector struct {
	requests   *prometheus.CounterVec
	admissions *prometheus.CounterVec
	retries    *prometheus.CounterVec
	failovers  *prometheus.CounterVec
	waits      *prometheus.HistogramVec
	queueDepth prometheus.Gauge
	budgetUsed *prometheus.GaugeVec
}

// NewCollector creates and registers the collectors with the provided
// registerer. A nil registerer uses the default Prometheus registry.
func NewCollector(cfg Config, reg prometheus.Registerer) *Collector {
	if cfg.Namespace == "" {
		cfg.Namespace = "tollgate"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "requests_total",
				Help:      "Terminal request outcomes",
			},
			[]string{"provider", "model", "status"},
		),

		admissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "admissions_total",
				Help:      "Requests admitted past the rate limit check",
			},
			[]string{"provider", "model", "failed_over"},
		),

		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "retries_total",
				Help:      "Retry attempts scheduled after failed calls",
			},
			[]string{"provider", "model"},
		),

		failovers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "failovers_total",
				Help:      "Admissions served by a fallback target",
			},
			[]string{"provider", "model"},
		),

		waits: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "wait_seconds",
				Help:      "Queue and backoff waits imposed on requests",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~3.4min
			},
			[]string{"kind", "priority"},
		),

		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "queue_depth",
				Help:      "Requests currently parked in the scheduler queue",
			},
		),

		budgetUsed: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "budget_used_ratio",
				Help:      "Fraction of the period budget spent",
			},
			[]string{"period"},
		),
	}

	reg.MustRegister(
		c.requests,
		c.admissions,
		c.retries,
		c.failovers,
		c.waits,
		c.queueDepth,
		c.budgetUsed,
	)

	return c
}

// HandleEvent records one engine event. Pass it to engine.Subscribe.
func (c *Collector) HandleEvent(ev engine.Event) {
	provider, model := ev.Target.Provider, ev.Target.Model

	switch ev.Type {
	case engine.EventAdmitted:
		c.admissions.WithLabelValues(provider, model, strconv.FormatBool(ev.FailedOver)).Inc()

	case engine.EventFailedOver:
		c.failovers.WithLabelValues(provider, model).Inc()

	case engine.EventDelayed:
		c.waits.WithLabelValues("queue", ev.Priority.String()).Observe(ev.Wait.Seconds())

	case engine.EventRetried:
		c.retries.WithLabelValues(provider, model).Inc()
		c.waits.WithLabelValues("backoff", ev.Priority.String()).Observe(ev.Wait.Seconds())

	case engine.EventSucceeded:
		c.requests.WithLabelValues(provider, model, "succeeded").Inc()

	case engine.EventGaveUp:
		c.requests.WithLabelValues(provider, model, "gave_up").Inc()

	case engine.EventRejected:
		c.requests.WithLabelValues(provider, model, "rejected").Inc()

	case engine.EventExpired:
		c.requests.WithLabelValues(provider, model, "expired").Inc()

	case engine.EventCancelled:
		c.requests.WithLabelValues(provider, model, "cancelled").Inc()
	}
}

// ObserveEngine refreshes the queue depth gauge from an engine snapshot.
func (c *Collector) ObserveEngine(st engine.Stats) {
	c.queueDepth.Set(float64(st.Queued))
}

// ObserveBudgets refreshes the budget usage gauges from the cost ledger.
func (c *Collector) ObserveBudgets(ledger *costs.Ledger) {
	for _, p := range costs.Periods {
		c.budgetUsed.WithLabelValues(p.String()).Set(ledger.CheckBudget(p).FractionUsed)
	}
}
