package utils

// Latencies in microseconds, pushed by the database layer and drained by
// the metric collectors. Buffered so a slow collector drops samples
// instead of stalling a query.
type MetricChans struct {
	DatabaseRead  chan float64
	DatabaseWrite chan float64
}

func NewMetricChans() *MetricChans {
	return &MetricChans{
		DatabaseRead:  make(chan float64, 64),
		DatabaseWrite: make(chan float64, 64),
	}
}
