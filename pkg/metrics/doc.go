// Package metrics defines the Prometheus collectors exported by grove
// and the HTTP handler that serves them.
package metrics
