// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// It adapts the generic metrics.Backend interface to Prometheus by using
// client_golang CounterVec and SummaryVec collectors and pushing the
// registry to a Pushgateway instance rather than exposing a scrape
// endpoint, which fits a short-lived batch job better than a long-running
// /metrics handler would.
package prompush

import (
	"fmt"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"pwdedup/internal/metrics"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	pusher    *push.Pusher
	reg       *prometheus.Registry
	counters  map[string]*prometheus.CounterVec
	summaries map[string]*prometheus.SummaryVec
}

// NewBackend constructs a Prometheus Pushgateway backend. jobName groups
// this run's metrics under a single Pushgateway "job"; gatewayURL is the
// base URL of the Pushgateway server.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "pwdedup"
	}

	reg := prometheus.NewRegistry()
	return &Backend{
		pusher:    push.New(gatewayURL, jobName).Gatherer(reg),
		reg:       reg,
		counters:  make(map[string]*prometheus.CounterVec),
		summaries: make(map[string]*prometheus.SummaryVec),
	}, nil
}

func (b *Backend) counterVec(name string, labels metrics.Labels) *prometheus.CounterVec {
	if cv, ok := b.counters[name]; ok {
		return cv
	}
	cv := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: name}, labelNames(labels))
	b.reg.MustRegister(cv)
	b.counters[name] = cv
	return cv
}

func (b *Backend) summaryVec(name string, labels metrics.Labels) *prometheus.SummaryVec {
	if sv, ok := b.summaries[name]; ok {
		return sv
	}
	sv := prometheus.NewSummaryVec(prometheus.SummaryOpts{Name: name, Help: name}, labelNames(labels))
	b.reg.MustRegister(sv)
	b.summaries[name] = sv
	return sv
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	b.counterVec(name, labels).With(toPromLabels(labels)).Add(delta)
}

// ObserveHistogram implements metrics.Backend, backed by a Prometheus
// summary rather than a histogram: batch jobs push once at the end, and a
// summary needs no pre-declared buckets to still report useful quantiles.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	b.summaryVec(name, labels).With(toPromLabels(labels)).Observe(value)
}

// Flush pushes the accumulated registry to the configured Pushgateway.
func (b *Backend) Flush() error {
	return b.pusher.Push()
}

func labelNames(labels metrics.Labels) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func toPromLabels(labels metrics.Labels) prometheus.Labels {
	pl := make(prometheus.Labels, len(labels))
	for k, v := range labels {
		pl[k] = v
	}
	return pl
}
