// Package schema validates raw HTTP and STOMP connection parameter
// sets against closed, field-level schemas. Validation is side-effect
// free and enumerates every offending field; successful validation
// returns the canonical parameter form with defaults filled in.
package schema
