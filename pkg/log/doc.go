// Package log provides the global zerolog logger used across Grove,
// plus helpers for creating child loggers scoped to a component,
// garden, or routed operation.
package log
