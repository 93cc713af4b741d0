package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// option configures a Manager.
type option func(*Manager)

// withName overrides the metric name prefix. Empty parts keep the default.
func withName(namespace, subsystem string) option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
		if subsystem != "" {
			m.subsystem = subsystem
		}
	}
}

// withLatencyBuckets sets the buckets, in milliseconds, of flush and store
// latency histograms.
func withLatencyBuckets(buckets ...float64) option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.histogramBuckets = buckets
		}
	}
}

// withQueueWaitBuckets sets the buckets of the matchmaking wait histogram.
func withQueueWaitBuckets(buckets ...float64) option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.waitBuckets = buckets
		}
	}
}

// withRegisterer registers collectors on r instead of the default registerer.
func withRegisterer(r prometheus.Registerer) option {
	return func(m *Manager) {
		if r != nil {
			m.registry = r
		}
	}
}
