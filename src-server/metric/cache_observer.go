package metric

import (
	"time"

	"learnadoodle/src-server/calendar"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var _ calendar.Observer = (*CacheObserver)(nil)

// CacheObserver turns calendar cache notifications into prometheus
// series, summed over every family's session.
type CacheObserver struct {
	loadedMonths     prometheus.Gauge
	stateTransitions *prometheus.CounterVec
	loadSeconds      *prometheus.HistogramVec
	mutationsApplied *prometheus.CounterVec
	mutationsSettled *prometheus.CounterVec
	settleSeconds    prometheus.Histogram
}

func NewCacheObserver(reg prometheus.Registerer) *CacheObserver {
	factory := promauto.With(reg)
	return &CacheObserver{
		loadedMonths: factory.NewGauge(prometheus.GaugeOpts{
			Name: "learnadoodle_cache_loaded_months",
			Help: "Months currently held in the calendar cache",
		}),
		stateTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "learnadoodle_cache_month_transitions_total",
			Help: "Month load state transitions",
		}, []string{"from", "to"}),
		loadSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "learnadoodle_cache_load_seconds",
			Help:    "Time spent fetching a month from the database",
			Buckets: prometheus.DefBuckets,
		}, []string{"result"}),
		mutationsApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "learnadoodle_cache_mutation_fields_total",
			Help: "Fields changed optimistically, by field",
		}, []string{"field"}),
		mutationsSettled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "learnadoodle_cache_mutations_settled_total",
			Help: "Optimistic mutations by outcome",
		}, []string{"result"}),
		settleSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "learnadoodle_cache_mutation_settle_seconds",
			Help:    "Time between an optimistic apply and the database answer",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (o *CacheObserver) LoadStateChanged(_ calendar.MonthKey, from, to calendar.LoadState) {
	o.stateTransitions.WithLabelValues(from.String(), to.String()).Inc()
	switch {
	case to == calendar.Loaded && from != calendar.Loaded:
		o.loadedMonths.Inc()
	case from == calendar.Loaded && to != calendar.Loaded:
		o.loadedMonths.Dec()
	}
}

func (o *CacheObserver) LoadFinished(_ calendar.MonthKey, elapsed time.Duration, err error) {
	o.loadSeconds.WithLabelValues(result(err, "failed")).Observe(elapsed.Seconds())
}

func (o *CacheObserver) MutationApplied(_ string, fields []calendar.Field) {
	for _, field := range fields {
		o.mutationsApplied.WithLabelValues(string(field)).Inc()
	}
}

func (o *CacheObserver) MutationSettled(_ string, elapsed time.Duration, err error) {
	o.mutationsSettled.WithLabelValues(result(err, "rolled_back")).Inc()
	o.settleSeconds.Observe(elapsed.Seconds())
}

func result(err error, failed string) string {
	if err != nil {
		return failed
	}
	return "ok"
}
