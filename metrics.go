// Copyright AGNTCY Contributors (https://github.com/agntcy)
// SPDX-License-Identifier: Apache-2.0

package evident

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds atomic counters for a publisher's observability. All
// fields are safe for concurrent use; MetricsSnapshot is the copyable,
// point-in-time view a caller should actually read or serialize.
type Metrics struct {
	CapturedTotal  atomic.Uint64
	DeliveredTotal atomic.Uint64
	MissedTotal    atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of Metrics plus the current
// subscriber count, which the registry tracks directly rather than
// through an atomic counter on Metrics.
type MetricsSnapshot struct {
	CapturedTotal  uint64
	DeliveredTotal uint64
	MissedTotal    uint64
	Subscribers    int64
}

func (m *Metrics) snapshot(subscribers int) MetricsSnapshot {
	return MetricsSnapshot{
		CapturedTotal:  m.CapturedTotal.Load(),
		DeliveredTotal: m.DeliveredTotal.Load(),
		MissedTotal:    m.MissedTotal.Load(),
		Subscribers:    int64(subscribers),
	}
}

// collector exposes a Publisher's Metrics as Prometheus counters (captured,
// delivered, missed) plus a subscriber-count gauge, without
// the publisher ever opening an HTTP listener of its own: a host
// application registers it on whatever registry and handler it already
// runs.
type collector[K comparable, M any] struct {
	publisher *Publisher[K, M]

	captured   *prometheus.Desc
	delivered  *prometheus.Desc
	missed     *prometheus.Desc
	subscriber *prometheus.Desc
}

func newCollector[K comparable, M any](namespace string, pub *Publisher[K, M]) *collector[K, M] {
	labels := prometheus.Labels{}
	constLabels := prometheus.Labels(labels)

	return &collector[K, M]{
		publisher: pub,
		captured: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "captured_total"),
			"Total number of entries captured by the publisher.",
			nil, constLabels),
		delivered: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "delivered_total"),
			"Total number of events delivered to subscribers.",
			nil, constLabels),
		missed: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "missed_captures_total"),
			"Total number of capture attempts dropped because the capture channel was full under non-blocking capture mode.",
			nil, constLabels),
		subscriber: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "subscribers"),
			"Current number of active subscriptions.",
			nil, constLabels),
	}
}

// Describe implements prometheus.Collector.
func (c *collector[K, M]) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.captured
	ch <- c.delivered
	ch <- c.missed
	ch <- c.subscriber
}

// Collect implements prometheus.Collector.
func (c *collector[K, M]) Collect(ch chan<- prometheus.Metric) {
	snap := c.publisher.metrics.snapshot(c.publisher.registry.subscriberCount())

	ch <- prometheus.MustNewConstMetric(c.captured, prometheus.CounterValue, float64(snap.CapturedTotal))
	ch <- prometheus.MustNewConstMetric(c.delivered, prometheus.CounterValue, float64(snap.DeliveredTotal))
	ch <- prometheus.MustNewConstMetric(c.missed, prometheus.CounterValue, float64(snap.MissedTotal))
	ch <- prometheus.MustNewConstMetric(c.subscriber, prometheus.GaugeValue, float64(snap.Subscribers))
}

// Collector returns a prometheus.Collector for pub, tagging its metrics
// under namespace. The caller registers it with whatever
// *prometheus.Registry their process already exposes; the publisher
// itself never listens on a port.
func Collector[K comparable, M any](namespace string, pub *Publisher[K, M]) prometheus.Collector {
	return newCollector(namespace, pub)
}
