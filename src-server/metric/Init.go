package metric

import (
	"log/slog"
	"time"

	"learnadoodle/src-server/utils"

	"github.com/prometheus/client_golang/prometheus"
)

// register the gauge, tolerating a collector left over from an earlier Init
func registerGauge(name, help string) prometheus.Gauge {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: name,
		Help: help,
	})
	good := true
	if err := prometheus.Register(gauge); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		switch {
		case !ok:
			slog.Error("can't register metric", "metric", name, "error", err)
			good = false
		default:
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				gauge = existing
			}
		}
	}
	if good {
		slog.Debug("metric registered", "metric", name)
		gauge.Set(0)
	}
	return gauge
}

func unregisterGauge(name string, gauge prometheus.Gauge) {
	switch prometheus.Unregister(gauge) {
	case true:
		slog.Debug("metric unregistered", "metric", name)
	case false:
		slog.Warn("metric not registered", "metric", name)
	}
}

func databaseEmptyRead(as *utils.AppState, tickerInterval time.Duration) {
	name := "learnadoodle_database_empty_read_microsec"
	databaseEmptyRead := registerGauge(name, "The latency of an empty database read in microseconds")
	go func() {
		gracefulShutdownCh := as.CreateGracefulShutdownChan()
		ticker := time.NewTicker(tickerInterval)
		defer ticker.Stop()
		for {
			select {
			case <-*gracefulShutdownCh:
				unregisterGauge(name, databaseEmptyRead)
				return
			case <-ticker.C:
				latency, err := database(as, tickerInterval)
				if err != nil {
					slog.Error("can't get database latency", "error", err)
					continue
				}
				databaseEmptyRead.Set(float64(latency.Microseconds()))
			}
		}
	}()
}

// Follows a latency channel; the gauge drops back to zero when nothing
// has been reported for a while so a stale spike doesn't linger.
func latencyGauge(as *utils.AppState, name, help string, latencies <-chan float64, clearTickerInterval time.Duration) {
	gauge := registerGauge(name, help)
	go func() {
		gracefulShutdownCh := as.CreateGracefulShutdownChan()
		clearTicker := time.NewTicker(clearTickerInterval)
		defer clearTicker.Stop()
		for {
			select {
			case <-*gracefulShutdownCh:
				unregisterGauge(name, gauge)
				return
			case latency := <-latencies:
				gauge.Set(latency)
				clearTicker.Reset(clearTickerInterval)
			case <-clearTicker.C:
				gauge.Set(0)
			}
		}
	}()
}

func Init(as *utils.AppState) {
	tickerInterval := as.Config.GetMetricCollectionInterval()
	clearTickerInterval := as.Config.GetMetricCollectionInterval() * 2

	databaseEmptyRead(as, tickerInterval)
	latencyGauge(as,
		"learnadoodle_database_read_microsec",
		"The latency of a database read in microseconds",
		as.MetricChans.DatabaseRead,
		clearTickerInterval,
	)
	latencyGauge(as,
		"learnadoodle_database_write_microsec",
		"The latency of a database write in microseconds",
		as.MetricChans.DatabaseWrite,
		clearTickerInterval,
	)
}
