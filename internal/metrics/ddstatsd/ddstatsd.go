// Package ddstatsd implements a Datadog backend for the metrics package.
//
// It adapts the generic metrics.Backend interface to Datadog's DogStatsD
// protocol using the official statsd client library, translating metric
// labels into Datadog tags.
package ddstatsd

import (
	"fmt"

	"github.com/DataDog/datadog-go/v5/statsd"

	"pwdedup/internal/metrics"
)

// Config holds Datadog backend configuration.
type Config struct {
	// Addr is the DogStatsD address, e.g. "127.0.0.1:8125" or
	// "unix:///path/to/socket".
	Addr string
	// Namespace is an optional prefix added to all metric names, e.g.
	// "pwdedup.".
	Namespace string
	// GlobalTags are tags applied to all metrics emitted by this backend.
	GlobalTags []string
}

// Backend is a Datadog implementation of metrics.Backend.
type Backend struct {
	client *statsd.Client
}

// NewBackend constructs a Datadog metrics backend from cfg. Addr is
// required.
func NewBackend(cfg Config) (*Backend, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("ddstatsd: Addr is required")
	}
	opts := []statsd.Option{statsd.WithTags(cfg.GlobalTags)}
	if cfg.Namespace != "" {
		opts = append(opts, statsd.WithNamespace(cfg.Namespace))
	}
	c, err := statsd.New(cfg.Addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("ddstatsd: create client: %w", err)
	}
	return &Backend{client: c}, nil
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	_ = b.client.Count(name, int64(delta), toTags(labels), 1)
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	_ = b.client.Histogram(name, value, toTags(labels), 1)
}

// Flush flushes any buffered metrics to the DogStatsD agent.
func (b *Backend) Flush() error {
	return b.client.Flush()
}

func toTags(labels metrics.Labels) []string {
	tags := make([]string, 0, len(labels))
	for k, v := range labels {
		tags = append(tags, k+":"+v)
	}
	return tags
}
