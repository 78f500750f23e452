package store

import (
	"context"
	"errors"

	"github.com/notetree/notetree/pkg/models"
)

// ErrReadOnly is returned by every write operation while the application is
// in read-only mode.
var ErrReadOnly = errors.New("operation denied: application is in read-only mode")

// ReadOnlyStore wraps a Store and rejects write operations while the
// application is in maintenance (read-only) mode. Viewers keep reading;
// editors get a clean error before any storage mutation happens.
//
// The read-only state is determined dynamically by the isReadOnly function,
// so the mode can be toggled at runtime without recreating the store.
type ReadOnlyStore struct {
	Store
	isReadOnly func() bool
}

// NewReadOnlyStore creates a new read-only wrapper for a store.
func NewReadOnlyStore(store Store, isReadOnly func() bool) Store {
	return &ReadOnlyStore{
		Store:      store,
		isReadOnly: isReadOnly,
	}
}

// Unwrap returns the underlying store.
func (r *ReadOnlyStore) Unwrap() Store {
	return r.Store
}

func (r *ReadOnlyStore) checkReadOnly() error {
	if r.isReadOnly() {
		return ErrReadOnly
	}
	return nil
}

// Write operations - check read-only mode first

func (r *ReadOnlyStore) CreatePage(ctx context.Context, page *models.Page) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Store.CreatePage(ctx, page)
}

func (r *ReadOnlyStore) UpdatePage(ctx context.Context, id models.PageID, update PageUpdate) (*models.Page, error) {
	if err := r.checkReadOnly(); err != nil {
		return nil, err
	}
	return r.Store.UpdatePage(ctx, id, update)
}

func (r *ReadOnlyStore) DeletePage(ctx context.Context, id models.PageID) (bool, error) {
	if err := r.checkReadOnly(); err != nil {
		return false, err
	}
	return r.Store.DeletePage(ctx, id)
}

func (r *ReadOnlyStore) CreateBlock(ctx context.Context, block *models.Block) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Store.CreateBlock(ctx, block)
}

func (r *ReadOnlyStore) UpdateBlock(ctx context.Context, id models.BlockID, update BlockUpdate) (*models.Block, error) {
	if err := r.checkReadOnly(); err != nil {
		return nil, err
	}
	return r.Store.UpdateBlock(ctx, id, update)
}

func (r *ReadOnlyStore) DeleteBlock(ctx context.Context, id models.BlockID) (bool, error) {
	if err := r.checkReadOnly(); err != nil {
		return false, err
	}
	return r.Store.DeleteBlock(ctx, id)
}

func (r *ReadOnlyStore) CreateMedia(ctx context.Context, media *models.MediaAsset) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Store.CreateMedia(ctx, media)
}

func (r *ReadOnlyStore) UpdateMedia(ctx context.Context, id models.MediaID, update MediaUpdate) (*models.MediaAsset, error) {
	if err := r.checkReadOnly(); err != nil {
		return nil, err
	}
	return r.Store.UpdateMedia(ctx, id, update)
}

func (r *ReadOnlyStore) DeleteMedia(ctx context.Context, id models.MediaID) (bool, error) {
	if err := r.checkReadOnly(); err != nil {
		return false, err
	}
	return r.Store.DeleteMedia(ctx, id)
}

func (r *ReadOnlyStore) ReorderMedia(ctx context.Context, blockID models.BlockID, mediaIDs []models.MediaID) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Store.ReorderMedia(ctx, blockID, mediaIDs)
}

// Transaction stays writable through the wrapped store only when not in
// read-only mode; the callback receives the unwrapped transactional store, so
// the check happens once at the boundary.
func (r *ReadOnlyStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Store.Transaction(ctx, fn)
}
