// Package rpcstats exposes the client-side RPC engine's operational
// metrics over the standard Prometheus client: named counters/gauges for
// in-flight calls, connect failures, call latency, and open connections.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package rpcstats

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the set of counters/gauges/histogram a Client reports. It is
// deliberately separate from the rpc package itself and wired in by the
// host program through Client.SetMetrics.
type Metrics struct {
	InFlight        prometheus.Gauge
	ConnectFailures prometheus.Counter
	CallLatency     prometheus.Histogram
	ConnectionsOpen prometheus.Gauge
}

// NewMetrics builds and registers the metric set against reg (pass
// prometheus.DefaultRegisterer to expose over the usual /metrics handler).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "corpc",
			Name:      "calls_in_flight",
			Help:      "Number of RPC calls currently awaiting a response.",
		}),
		ConnectFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "corpc",
			Name:      "connect_failures_total",
			Help:      "Total number of failed connection attempts across all channels.",
		}),
		CallLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "corpc",
			Name:      "call_latency_seconds",
			Help:      "Latency of completed RPC calls, from CallMethod to caller resume.",
			Buckets:   prometheus.DefBuckets,
		}),
		ConnectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "corpc",
			Name:      "connections_open",
			Help:      "Number of connections currently in the CONNECTED state.",
		}),
	}
	reg.MustRegister(m.InFlight, m.ConnectFailures, m.CallLatency, m.ConnectionsOpen)
	return m
}

// ObserveCall records one completed call's latency and decrements the
// in-flight gauge; Client.CallMethod calls it when metrics are attached.
func (m *Metrics) ObserveCall(start time.Time) {
	m.CallLatency.Observe(time.Since(start).Seconds())
	m.InFlight.Dec()
}

func (m *Metrics) CallStarted()    { m.InFlight.Inc() }
func (m *Metrics) ConnectFailed()  { m.ConnectFailures.Inc() }
func (m *Metrics) ConnectionUp()   { m.ConnectionsOpen.Inc() }
func (m *Metrics) ConnectionDown() { m.ConnectionsOpen.Dec() }
