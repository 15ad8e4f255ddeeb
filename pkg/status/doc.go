// Package status implements the garden status state machine: the pure
// transition function and the one-directional guards that keep distress
// states from being overwritten by flapping downstream reports.
package status
