// Package directory adapts the campus user store to the identity lookup the
// ranked engine consumes.
package directory

import (
	"context"

	"campus-ranked/internal/ranked"
	"campus-ranked/internal/storage"
)

// Directory resolves user ids against the campus users table
type Directory struct {
	store *storage.Store
}

// New returns a Directory backed by the provided store
func New(store *storage.Store) *Directory {
	return &Directory{store: store}
}

// Resolve implements ranked.UserDirectory
func (d *Directory) Resolve(ctx context.Context, user int64) (ranked.Identity, error) {
	u, err := d.store.UserByID(ctx, user)
	if err != nil {
		return ranked.Identity{}, err
	}

	return ranked.Identity{ID: u.ID, Name: u.Name, Handle: u.Handle}, nil
}
