package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	securityEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kernel_security_events_total",
		Help: "Security events persisted, by type and severity",
	}, []string{"event_type", "severity"})
	securityEventWriteFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kernel_security_event_write_failures_total",
		Help: "Security events dropped because the durable write failed",
	})
	securityEventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kernel_security_events_dropped_total",
		Help: "Security events dropped because too many writes were already in flight",
	})
	guardRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kernel_guard_rejected_total",
		Help: "Requests rejected by the request guard, by reason",
	}, []string{"reason"})
	trafficRecordedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kernel_traffic_recorded_total",
		Help: "Requests captured into the traffic ring buffer",
	})
	trafficBufferSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kernel_traffic_buffer_size",
		Help: "Entries currently held by the traffic ring buffer",
	})
)

// Register registers Prometheus collectors. Call once at startup.
func Register(registry prometheus.Registerer) {
	registry.MustRegister(securityEventsTotal, securityEventWriteFailures, securityEventsDropped, guardRejectedTotal, trafficRecordedTotal, trafficBufferSize)
}

// IncSecurityEvent counts a persisted event.
func IncSecurityEvent(eventType, severity string) {
	securityEventsTotal.WithLabelValues(eventType, severity).Inc()
}

// IncSecurityEventWriteFailure counts an event lost to a storage error.
func IncSecurityEventWriteFailure() { securityEventWriteFailures.Inc() }

// IncSecurityEventDropped counts an event shed by the saturated recorder.
func IncSecurityEventDropped() { securityEventsDropped.Inc() }

// IncGuardRejected counts a guard rejection ("ip_block", "geo_block", "trap", "rate_limit").
func IncGuardRejected(reason string) { guardRejectedTotal.WithLabelValues(reason).Inc() }

// ObserveTrafficRecord counts a captured request and publishes the buffer occupancy.
func ObserveTrafficRecord(bufferLen int) {
	trafficRecordedTotal.Inc()
	trafficBufferSize.Set(float64(bufferLen))
}
