// Package metrics provides the Prometheus implementation of driven.Metrics
// and the HTTP handler that exposes it next to a health endpoint.
package metrics
