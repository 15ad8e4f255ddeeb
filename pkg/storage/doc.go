// Package storage provides persistent federation state: garden records
// keyed by their unique name and the system registry. The Store
// interface is the repository facade consumed by pkg/garden; BoltStore
// is the BoltDB-backed implementation.
package storage
