/*
Package reconcile converts an arbitrary (connection type, raw params)
pair on a garden record into a canonical, schema-valid configuration
plus a list of human-readable remediation notes.

The reconciler never fails: when stored parameters cannot be validated
it repairs them by merging over safe defaults, falls back to the
defaults entirely, or — for a STOMP declaration without usable stomp
params — demotes the garden to HTTP. Demotion is one-directional; a
garden is never promoted to STOMP.
*/
package reconcile
