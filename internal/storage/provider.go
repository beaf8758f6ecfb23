// Package storage persists the tag store as a single JSON document with
// whole-file atomic replace.
package storage

import "github.com/starford/eihwaz/internal/models"

// Provider is the interface for tag store persistence.
type Provider interface {
	// Exists reports whether a persisted store is present.
	Exists() bool
	// Load reads and indexes the persisted store. A missing file yields
	// an empty store, not an error.
	Load() (*models.Store, error)
	// Save atomically replaces the persisted store.
	Save(st *models.Store) error
}
