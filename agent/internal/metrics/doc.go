// Package metrics exposes the health monitor's state to Prometheus.
//
// Metrics owns a private registry holding the latest verdict, one gauge
// per criterion, evaluation and publish counters, and the last computed
// day fraction. Handler serves the registry in the text exposition format.
package metrics
