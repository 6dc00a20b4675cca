// Package metric provides Prometheus metrics for Lockbox.
//
//   - prometheus.go: storage operation counters, latencies and gauges
//   - collector.go: a collector that samples engine statistics on scrape
//
// Nothing is registered globally. Callers pass a prometheus.Registerer and
// read it back with Gather (the CLI prints it with `lockbox stats`).
package metric
