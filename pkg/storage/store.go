package storage

import (
	"errors"

	"github.com/grovehq/grove/pkg/types"
)

// ErrNotFound is returned when a requested record does not exist.
// Callers branch on it with errors.Is.
var ErrNotFound = errors.New("not found")

// SystemFilter narrows ListSystems results. Zero-value fields are
// ignored; Local is tri-state.
type SystemFilter struct {
	Garden    string
	Namespace string
	Local     *bool
}

// Store defines the interface for federation state storage.
// Implemented by the bbolt-backed store.
type Store interface {
	// Gardens (keyed by name; names are unique and immutable)
	CreateGarden(garden *types.Garden) error
	GetGarden(name string) (*types.Garden, error)
	GetGardenByID(id string) (*types.Garden, error)
	ListGardens() ([]*types.Garden, error)
	UpdateGarden(garden *types.Garden) error
	// MutateGarden applies fn to the stored record inside a single
	// write transaction, serializing concurrent read-modify-write
	// cycles on the same garden.
	MutateGarden(name string, fn func(*types.Garden) error) (*types.Garden, error)
	DeleteGarden(name string) error

	// Systems
	UpsertSystem(system *types.SystemRef) error
	GetSystem(id string) (*types.SystemRef, error)
	ListSystems(filter SystemFilter) ([]*types.SystemRef, error)
	DeleteSystem(id string) error

	// Utility
	Close() error
}
