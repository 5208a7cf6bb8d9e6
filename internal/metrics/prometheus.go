package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder receives daemon loop observations.
type Recorder interface {
	CycleCompleted(d time.Duration, loadFailed bool)
	Triggered(delivered bool)
	ScheduleFailed()
	SaveFailed()
	Reminders(active, paused, completed int)
	Heartbeat(at time.Time)
}

// Nop discards everything.
type Nop struct{}

func (Nop) CycleCompleted(time.Duration, bool) {}
func (Nop) Triggered(bool)                     {}
func (Nop) ScheduleFailed()                    {}
func (Nop) SaveFailed()                        {}
func (Nop) Reminders(int, int, int)            {}
func (Nop) Heartbeat(time.Time)                {}

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	reg            *prom.Registry
	cycleDuration  prom.Histogram
	cycles         *prom.CounterVec
	triggered      *prom.CounterVec
	scheduleErrors prom.Counter
	saveErrors     prom.Counter
	reminders      *prom.GaugeVec
	lastHeartbeat  prom.Gauge
}

// NewPrometheusRecorder constructs and registers the daemon metrics on reg,
// or on a fresh registry when reg is nil.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		reg: reg,
		cycleDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "reminder",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of one daemon poll cycle",
			Buckets:   prom.DefBuckets,
		}),
		cycles: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "reminder",
			Name:      "cycles_total",
			Help:      "Daemon poll cycles by outcome",
		}, []string{"outcome"}),
		triggered: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "reminder",
			Name:      "triggered_total",
			Help:      "Reminders that came due, by delivery result",
		}, []string{"result"}),
		scheduleErrors: prom.NewCounter(prom.CounterOpts{
			Namespace: "reminder",
			Name:      "schedule_errors_total",
			Help:      "Recurring rules that failed to produce a next trigger",
		}),
		saveErrors: prom.NewCounter(prom.CounterOpts{
			Namespace: "reminder",
			Name:      "save_errors_total",
			Help:      "Failed attempts to persist handled reminders",
		}),
		reminders: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "reminder",
			Name:      "reminders",
			Help:      "Reminders in the store by status",
		}, []string{"status"}),
		lastHeartbeat: prom.NewGauge(prom.GaugeOpts{
			Namespace: "reminder",
			Name:      "last_heartbeat_timestamp_seconds",
			Help:      "Unix time of the last heartbeat written",
		}),
	}
	reg.MustRegister(pr.cycleDuration, pr.cycles, pr.triggered, pr.scheduleErrors, pr.saveErrors, pr.reminders, pr.lastHeartbeat)
	return pr
}

func (p *PrometheusRecorder) CycleCompleted(d time.Duration, loadFailed bool) {
	p.cycleDuration.Observe(d.Seconds())
	outcome := "ok"
	if loadFailed {
		outcome = "load_failed"
	}
	p.cycles.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) Triggered(delivered bool) {
	result := "delivered"
	if !delivered {
		result = "failed"
	}
	p.triggered.WithLabelValues(result).Inc()
}

func (p *PrometheusRecorder) ScheduleFailed() { p.scheduleErrors.Inc() }
func (p *PrometheusRecorder) SaveFailed()     { p.saveErrors.Inc() }

func (p *PrometheusRecorder) Reminders(active, paused, completed int) {
	p.reminders.WithLabelValues("active").Set(float64(active))
	p.reminders.WithLabelValues("paused").Set(float64(paused))
	p.reminders.WithLabelValues("completed").Set(float64(completed))
}

func (p *PrometheusRecorder) Heartbeat(at time.Time) {
	p.lastHeartbeat.Set(float64(at.Unix()))
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
