/*
Package types defines the core data structures used throughout Grove.

This package contains the fundamental types that represent Grove's domain
model: gardens (federation nodes), their connection configuration and
status, system references, federation events, and routed operations.
These types are used by all other packages for state management, event
handling, and routing logic.

The main types in this package are:

  - Garden: a federation node with connection configuration, status,
    namespaces, and owned systems
  - ConnectionParams: raw transport configuration, sanitized by
    pkg/schema and pkg/reconcile
  - Event: a federation event propagated through the garden tree
  - Operation: a routed request addressed to a garden by name

All types are designed to be serializable (JSON), cheap to deep-copy,
and self-documenting (string-typed enums with constant blocks).
*/
package types
