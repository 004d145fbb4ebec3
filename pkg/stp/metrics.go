package stp

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes the domain counters an operator would want while
// watching a transfer, in the role the teacher pack's sockstats repo
// fills for kernel socket counters: a small set of Prometheus counters,
// optionally served over HTTP. A nil *Metrics is valid and every
// method is a no-op against it, so wiring metrics is opt-in at the driver
// level without conditionals scattered through the protocol engine.
type Metrics struct {
	registry        *prometheus.Registry
	segmentsSent    *prometheus.CounterVec
	segmentsRecv    *prometheus.CounterVec
	segmentsDropped *prometheus.CounterVec
	retransmits     *prometheus.CounterVec
}

// NewMetrics builds a fresh registry and counter set for one endpoint
// process (sender or receiver).
func NewMetrics(side string) *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		segmentsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stp", Subsystem: side, Name: "segments_sent_total",
			Help: "STP segments transmitted, by segment type.",
		}, []string{"segtype"}),
		segmentsRecv: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stp", Subsystem: side, Name: "segments_received_total",
			Help: "STP segments received (and not dropped), by segment type.",
		}, []string{"segtype"}),
		segmentsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stp", Subsystem: side, Name: "segments_dropped_total",
			Help: "STP segments discarded by the loss simulator, by direction and segment type.",
		}, []string{"direction", "segtype"}),
		retransmits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stp", Subsystem: side, Name: "retransmits_total",
			Help: "Sender retransmissions, by trigger (timeout or fast).",
		}, []string{"trigger"}),
	}
	registry.MustRegister(m.segmentsSent, m.segmentsRecv, m.segmentsDropped, m.retransmits)
	return m
}

// Serve starts a background HTTP server exposing the registry at /metrics
// on addr. It returns immediately; a serve error (e.g. the address is in
// use) is discarded, neither logged nor returned, so metrics exposition
// never blocks or fails a transfer.
func (m *Metrics) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

func (m *Metrics) sent(segtype SegType) {
	if m == nil {
		return
	}
	m.segmentsSent.WithLabelValues(segtype.String()).Inc()
}

func (m *Metrics) received(segtype SegType) {
	if m == nil {
		return
	}
	m.segmentsRecv.WithLabelValues(segtype.String()).Inc()
}

func (m *Metrics) dropped(direction string, segtype SegType) {
	if m == nil {
		return
	}
	m.segmentsDropped.WithLabelValues(direction, segtype.String()).Inc()
}

func (m *Metrics) retransmit(trigger string) {
	if m == nil {
		return
	}
	m.retransmits.WithLabelValues(trigger).Inc()
}
