package main

import (
	"time"

	"enroute/internal/birch"
	"enroute/internal/board"
	"enroute/internal/enunciator"
	"enroute/internal/metrics"
	"enroute/internal/publisher"
)

// The adapters below return untyped nils when metrics are disabled so that
// callers' nil checks hold.

func upstreamMetrics(c *metrics.Collector) birch.Metrics {
	if c == nil {
		return nil
	}
	return c
}

func boardMetrics(c *metrics.Collector) board.Metrics {
	if c == nil {
		return nil
	}
	return c
}

func announceMetrics(c *metrics.Collector) enunciator.Metrics {
	if c == nil {
		return nil
	}
	return c
}

// wrapPublisherMetrics adapts metrics.Collector to publisher.PublisherMetrics
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (m *pubMetrics) NATSPublishedInc() { m.c.NATSPublished.Inc() }

func (m *pubMetrics) NATSPublishErrInc() { m.c.NATSPublishErrs.Inc() }

func (m *pubMetrics) PublishObserve(d time.Duration) { m.c.PublishDuration.Observe(d.Seconds()) }

func (m *pubMetrics) NATSSetConnected(connected bool) {
	if connected {
		m.c.NATSConnected.Set(1)
	} else {
		m.c.NATSConnected.Set(0)
	}
}
