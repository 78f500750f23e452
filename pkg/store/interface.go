// Package store defines the persistence layer for pages, blocks, and media
// assets. The [Store] interface is the sole owner of the structural invariants
// of the block tree:
//
//  1. A set parent block exists and shares the child's page.
//  2. The parent relation is acyclic and irreflexive.
//  3. A block with children cannot change its owning page.
//  4. Deleting a block deletes its full subtree and every media asset owned by
//     any deleted block, atomically.
//  5. A media asset belongs to at most one block.
//
// Two implementations exist: an in-memory store
// ([github.com/notetree/notetree/pkg/store/memory]) backed by id-keyed maps
// with an explicit children index, and a PostgreSQL store
// ([github.com/notetree/notetree/pkg/store/postgres]) using GORM.
//
// # Transactions
//
// Store.Transaction is an explicit unit of work: the callback receives a
// transaction-scoped Store, and every read or write made through it belongs to
// one atomic transaction. Returning an error rolls everything back. There is
// no ambient transaction state; callers that need multi-operation atomicity
// (the batch processor) thread the transactional Store through every call.
// Invariant checks read through the same transactional Store that performs the
// write, so a concurrent commit cannot slip between check and write.
//
// # Errors
//
// Get methods return nil without error for missing records. Update and Delete
// of missing records return [NotFoundError]; structural breaches return
// [InvariantError]. DeleteBlock and DeleteMedia return false instead of an
// error when the id is absent, since deletion of a missing record is a no-op
// for single-item callers while batch callers treat it as NotFound.
package store

import (
	"context"

	"github.com/notetree/notetree/pkg/models"
)

// BlockUpdate is a partial field replacement for a block. Nil fields are left
// unchanged. ClearParent detaches the block to the top level of its page;
// setting both ClearParent and ParentBlockID is rejected by validation before
// the store is reached.
type BlockUpdate struct {
	PageID        *models.PageID    `json:"page_id,omitempty"`
	Type          *models.BlockType `json:"type,omitempty"`
	Content       models.JSONMap    `json:"content,omitempty"`
	Order         *int              `json:"order,omitempty"`
	ParentBlockID *models.BlockID   `json:"parent_block_id,omitempty"`
	ClearParent   bool              `json:"clear_parent,omitempty"`
}

// PageUpdate is a partial field replacement for a page.
type PageUpdate struct {
	Title  *string `json:"title,omitempty"`
	Slug   *string `json:"slug,omitempty"`
	Active *bool   `json:"active,omitempty"`
	Order  *int    `json:"order,omitempty"`
}

// MediaUpdate is a partial field replacement for a media asset's display
// attributes. Ownership (BlockID) is immutable after creation so an asset can
// never be shared or silently re-homed.
type MediaUpdate struct {
	Position *models.MediaPosition `json:"position,omitempty"`
	Width    *int                  `json:"width,omitempty"`
	Order    *int                  `json:"order,omitempty"`
}

// Store is the persistence contract for the page/block/media tree.
type Store interface {
	// CreatePage persists a new page. Fails with SlugTaken when the slug is
	// already in use.
	CreatePage(ctx context.Context, page *models.Page) error
	// GetPage returns nil when no page has the given id.
	GetPage(ctx context.Context, id models.PageID) (*models.Page, error)
	// GetPageBySlug returns nil when no page has the given slug.
	GetPageBySlug(ctx context.Context, slug string) (*models.Page, error)
	// UpdatePage applies a partial update. Fails NotFound when absent and
	// SlugTaken when the new slug collides with another page.
	UpdatePage(ctx context.Context, id models.PageID, update PageUpdate) (*models.Page, error)
	// DeletePage removes the page together with all of its blocks and their
	// media. Returns false when the id is absent.
	DeletePage(ctx context.Context, id models.PageID) (bool, error)
	// ListPages returns all pages ordered by sibling order, ties broken by
	// creation time.
	ListPages(ctx context.Context) ([]*models.Page, error)

	// CreateBlock persists a new block. Fails InvalidParent when the parent
	// reference is set but absent or on a different page, and NotFound when
	// the owning page does not exist.
	CreateBlock(ctx context.Context, block *models.Block) error
	// GetBlock returns nil when no block has the given id.
	GetBlock(ctx context.Context, id models.BlockID) (*models.Block, error)
	// UpdateBlock applies a partial update subject to the tree invariants:
	// NotFound, InvalidMove (page change with children), SelfParent,
	// CycleDetected, InvalidParent.
	UpdateBlock(ctx context.Context, id models.BlockID, update BlockUpdate) (*models.Block, error)
	// DeleteBlock removes the block, its full descendant set, and all media
	// owned by any of them, atomically. Returns false when the id is absent.
	DeleteBlock(ctx context.Context, id models.BlockID) (bool, error)
	// ListTopLevelBlocks returns the page's parentless blocks ordered by
	// sibling order, ties broken by creation time.
	ListTopLevelBlocks(ctx context.Context, pageID models.PageID) ([]*models.Block, error)
	// ListChildBlocks returns the direct children of a block, ordered like
	// ListTopLevelBlocks.
	ListChildBlocks(ctx context.Context, parentID models.BlockID) ([]*models.Block, error)
	// ListBlocks returns every block of a page in sibling order, for viewers
	// that build the tree client-side.
	ListBlocks(ctx context.Context, pageID models.PageID) ([]*models.Block, error)

	// CreateMedia persists a new media asset. Fails InvalidParent when the
	// owning block reference is set but absent.
	CreateMedia(ctx context.Context, media *models.MediaAsset) error
	// GetMedia returns nil when no asset has the given id.
	GetMedia(ctx context.Context, id models.MediaID) (*models.MediaAsset, error)
	// UpdateMedia applies a partial update to display attributes.
	UpdateMedia(ctx context.Context, id models.MediaID, update MediaUpdate) (*models.MediaAsset, error)
	// DeleteMedia removes one asset. Returns false when the id is absent.
	DeleteMedia(ctx context.Context, id models.MediaID) (bool, error)
	// ListMedia returns a block's assets ordered by sibling order, ties broken
	// by creation time.
	ListMedia(ctx context.Context, blockID models.BlockID) ([]*models.MediaAsset, error)
	// ReorderMedia rewrites the sibling order of the given assets, which must
	// all belong to the given block.
	ReorderMedia(ctx context.Context, blockID models.BlockID, mediaIDs []models.MediaID) error

	// Transaction runs fn against a transaction-scoped Store. If fn returns an
	// error every write made through its argument is rolled back. Calling
	// Transaction on an already transactional Store joins the enclosing
	// transaction.
	Transaction(ctx context.Context, fn func(tx Store) error) error

	// Migrate initializes or updates the backing schema. Idempotent.
	Migrate(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}
