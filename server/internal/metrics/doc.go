// Package metrics exposes Prometheus counters and gauges for the highstakes
// server on a dedicated registry, served at /metrics.
package metrics
