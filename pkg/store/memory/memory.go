// Package memory provides an in-memory implementation of the
// [github.com/notetree/notetree/pkg/store.Store] interface.
//
// Records live in id-keyed maps with an explicit children index (block id to
// child ids), so descendant and cycle checks are index lookups plus a bounded
// traversal instead of pointer chasing. The store is the default backend for
// development and for tests that exercise the tree invariants without a
// database server.
//
// Transaction clones the whole dataset, runs the callback against the clone,
// and swaps it in only when the callback succeeds. A failing batch therefore
// leaves the published state untouched, and readers never observe a partially
// applied transaction. The dataset is assumed small enough (one process's
// working set of pages) that cloning per transaction is cheap.
package memory

import (
	"context"
	"sync"

	"github.com/notetree/notetree/pkg/models"
	"github.com/notetree/notetree/pkg/store"
)

// MemoryStore implements store.Store with mutex-guarded maps.
type MemoryStore struct {
	mu   sync.RWMutex
	data *dataset
}

// dataset is the cloneable state of the store. seq is a monotonic insertion
// counter used to break ordering ties deterministically when two records share
// an order and a creation timestamp.
type dataset struct {
	seq uint64

	pages map[models.PageID]*models.Page
	slugs map[string]models.PageID

	blocks   map[models.BlockID]*models.Block
	children map[models.BlockID][]models.BlockID

	media      map[models.MediaID]*models.MediaAsset
	blockMedia map[models.BlockID][]models.MediaID

	pageSeq  map[models.PageID]uint64
	blockSeq map[models.BlockID]uint64
	mediaSeq map[models.MediaID]uint64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() store.Store {
	return &MemoryStore{data: newDataset()}
}

func newDataset() *dataset {
	return &dataset{
		pages:      make(map[models.PageID]*models.Page),
		slugs:      make(map[string]models.PageID),
		blocks:     make(map[models.BlockID]*models.Block),
		children:   make(map[models.BlockID][]models.BlockID),
		media:      make(map[models.MediaID]*models.MediaAsset),
		blockMedia: make(map[models.BlockID][]models.MediaID),
		pageSeq:    make(map[models.PageID]uint64),
		blockSeq:   make(map[models.BlockID]uint64),
		mediaSeq:   make(map[models.MediaID]uint64),
	}
}

func (d *dataset) clone() *dataset {
	c := &dataset{
		seq:        d.seq,
		pages:      make(map[models.PageID]*models.Page, len(d.pages)),
		slugs:      make(map[string]models.PageID, len(d.slugs)),
		blocks:     make(map[models.BlockID]*models.Block, len(d.blocks)),
		children:   make(map[models.BlockID][]models.BlockID, len(d.children)),
		media:      make(map[models.MediaID]*models.MediaAsset, len(d.media)),
		blockMedia: make(map[models.BlockID][]models.MediaID, len(d.blockMedia)),
		pageSeq:    make(map[models.PageID]uint64, len(d.pageSeq)),
		blockSeq:   make(map[models.BlockID]uint64, len(d.blockSeq)),
		mediaSeq:   make(map[models.MediaID]uint64, len(d.mediaSeq)),
	}
	for id, p := range d.pages {
		c.pages[id] = clonePage(p)
	}
	for slug, id := range d.slugs {
		c.slugs[slug] = id
	}
	for id, b := range d.blocks {
		c.blocks[id] = cloneBlock(b)
	}
	for id, kids := range d.children {
		c.children[id] = append([]models.BlockID(nil), kids...)
	}
	for id, m := range d.media {
		c.media[id] = cloneMedia(m)
	}
	for id, assets := range d.blockMedia {
		c.blockMedia[id] = append([]models.MediaID(nil), assets...)
	}
	for id, s := range d.pageSeq {
		c.pageSeq[id] = s
	}
	for id, s := range d.blockSeq {
		c.blockSeq[id] = s
	}
	for id, s := range d.mediaSeq {
		c.mediaSeq[id] = s
	}
	return c
}

func clonePage(p *models.Page) *models.Page {
	cp := *p
	return &cp
}

func cloneBlock(b *models.Block) *models.Block {
	cb := *b
	if b.ParentBlockID != nil {
		parent := *b.ParentBlockID
		cb.ParentBlockID = &parent
	}
	if b.Content != nil {
		content := make(models.JSONMap, len(b.Content))
		for k, v := range b.Content {
			content[k] = v
		}
		cb.Content = content
	}
	return &cb
}

func cloneMedia(m *models.MediaAsset) *models.MediaAsset {
	cm := *m
	if m.BlockID != nil {
		owner := *m.BlockID
		cm.BlockID = &owner
	}
	return &cm
}

// Transaction clones the dataset, runs fn against the clone, and publishes the
// clone only when fn succeeds. The store mutex is held for the whole
// transaction, so concurrent batches are serialized and isolated.
func (s *MemoryStore) Transaction(ctx context.Context, fn func(tx store.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.data.clone()
	if err := fn(&txStore{data: work}); err != nil {
		return err
	}
	s.data = work
	return nil
}

// Migrate is a no-op for the in-memory store.
func (s *MemoryStore) Migrate(ctx context.Context) error { return nil }

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

// Single-item writes run through Transaction so they share the same
// all-or-nothing semantics as batches.

func (s *MemoryStore) CreatePage(ctx context.Context, page *models.Page) error {
	return s.Transaction(ctx, func(tx store.Store) error {
		return tx.CreatePage(ctx, page)
	})
}

func (s *MemoryStore) UpdatePage(ctx context.Context, id models.PageID, update store.PageUpdate) (*models.Page, error) {
	var page *models.Page
	err := s.Transaction(ctx, func(tx store.Store) error {
		var err error
		page, err = tx.UpdatePage(ctx, id, update)
		return err
	})
	return page, err
}

func (s *MemoryStore) DeletePage(ctx context.Context, id models.PageID) (bool, error) {
	var deleted bool
	err := s.Transaction(ctx, func(tx store.Store) error {
		var err error
		deleted, err = tx.DeletePage(ctx, id)
		return err
	})
	return deleted, err
}

func (s *MemoryStore) CreateBlock(ctx context.Context, block *models.Block) error {
	return s.Transaction(ctx, func(tx store.Store) error {
		return tx.CreateBlock(ctx, block)
	})
}

func (s *MemoryStore) UpdateBlock(ctx context.Context, id models.BlockID, update store.BlockUpdate) (*models.Block, error) {
	var block *models.Block
	err := s.Transaction(ctx, func(tx store.Store) error {
		var err error
		block, err = tx.UpdateBlock(ctx, id, update)
		return err
	})
	return block, err
}

func (s *MemoryStore) DeleteBlock(ctx context.Context, id models.BlockID) (bool, error) {
	var deleted bool
	err := s.Transaction(ctx, func(tx store.Store) error {
		var err error
		deleted, err = tx.DeleteBlock(ctx, id)
		return err
	})
	return deleted, err
}

func (s *MemoryStore) CreateMedia(ctx context.Context, media *models.MediaAsset) error {
	return s.Transaction(ctx, func(tx store.Store) error {
		return tx.CreateMedia(ctx, media)
	})
}

func (s *MemoryStore) UpdateMedia(ctx context.Context, id models.MediaID, update store.MediaUpdate) (*models.MediaAsset, error) {
	var media *models.MediaAsset
	err := s.Transaction(ctx, func(tx store.Store) error {
		var err error
		media, err = tx.UpdateMedia(ctx, id, update)
		return err
	})
	return media, err
}

func (s *MemoryStore) DeleteMedia(ctx context.Context, id models.MediaID) (bool, error) {
	var deleted bool
	err := s.Transaction(ctx, func(tx store.Store) error {
		var err error
		deleted, err = tx.DeleteMedia(ctx, id)
		return err
	})
	return deleted, err
}

func (s *MemoryStore) ReorderMedia(ctx context.Context, blockID models.BlockID, mediaIDs []models.MediaID) error {
	return s.Transaction(ctx, func(tx store.Store) error {
		return tx.ReorderMedia(ctx, blockID, mediaIDs)
	})
}

// Reads take the read lock against the published dataset.

func (s *MemoryStore) GetPage(ctx context.Context, id models.PageID) (*models.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.getPage(id), nil
}

func (s *MemoryStore) GetPageBySlug(ctx context.Context, slug string) (*models.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.getPageBySlug(slug), nil
}

func (s *MemoryStore) ListPages(ctx context.Context) ([]*models.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.listPages(), nil
}

func (s *MemoryStore) GetBlock(ctx context.Context, id models.BlockID) (*models.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.getBlock(id), nil
}

func (s *MemoryStore) ListTopLevelBlocks(ctx context.Context, pageID models.PageID) ([]*models.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.listTopLevelBlocks(pageID), nil
}

func (s *MemoryStore) ListChildBlocks(ctx context.Context, parentID models.BlockID) ([]*models.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.listChildBlocks(parentID), nil
}

func (s *MemoryStore) ListBlocks(ctx context.Context, pageID models.PageID) ([]*models.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.listBlocks(pageID), nil
}

func (s *MemoryStore) GetMedia(ctx context.Context, id models.MediaID) (*models.MediaAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.getMedia(id), nil
}

func (s *MemoryStore) ListMedia(ctx context.Context, blockID models.BlockID) ([]*models.MediaAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.listMedia(blockID), nil
}

// txStore is the transaction-scoped view handed to Transaction callbacks.
// The enclosing MemoryStore already holds its mutex, so txStore operates on
// the working dataset without further locking.
type txStore struct {
	data *dataset
}

var _ store.Store = (*txStore)(nil)

// Transaction on a transactional store joins the enclosing transaction.
func (t *txStore) Transaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(t)
}

func (t *txStore) Migrate(ctx context.Context) error { return nil }
func (t *txStore) Close() error                      { return nil }

func (t *txStore) CreatePage(ctx context.Context, page *models.Page) error {
	return t.data.createPage(page)
}

func (t *txStore) GetPage(ctx context.Context, id models.PageID) (*models.Page, error) {
	return t.data.getPage(id), nil
}

func (t *txStore) GetPageBySlug(ctx context.Context, slug string) (*models.Page, error) {
	return t.data.getPageBySlug(slug), nil
}

func (t *txStore) UpdatePage(ctx context.Context, id models.PageID, update store.PageUpdate) (*models.Page, error) {
	return t.data.updatePage(id, update)
}

func (t *txStore) DeletePage(ctx context.Context, id models.PageID) (bool, error) {
	return t.data.deletePage(id), nil
}

func (t *txStore) ListPages(ctx context.Context) ([]*models.Page, error) {
	return t.data.listPages(), nil
}

func (t *txStore) CreateBlock(ctx context.Context, block *models.Block) error {
	return t.data.createBlock(block)
}

func (t *txStore) GetBlock(ctx context.Context, id models.BlockID) (*models.Block, error) {
	return t.data.getBlock(id), nil
}

func (t *txStore) UpdateBlock(ctx context.Context, id models.BlockID, update store.BlockUpdate) (*models.Block, error) {
	return t.data.updateBlock(id, update)
}

func (t *txStore) DeleteBlock(ctx context.Context, id models.BlockID) (bool, error) {
	return t.data.deleteBlock(id), nil
}

func (t *txStore) ListTopLevelBlocks(ctx context.Context, pageID models.PageID) ([]*models.Block, error) {
	return t.data.listTopLevelBlocks(pageID), nil
}

func (t *txStore) ListChildBlocks(ctx context.Context, parentID models.BlockID) ([]*models.Block, error) {
	return t.data.listChildBlocks(parentID), nil
}

func (t *txStore) ListBlocks(ctx context.Context, pageID models.PageID) ([]*models.Block, error) {
	return t.data.listBlocks(pageID), nil
}

func (t *txStore) CreateMedia(ctx context.Context, media *models.MediaAsset) error {
	return t.data.createMedia(media)
}

func (t *txStore) GetMedia(ctx context.Context, id models.MediaID) (*models.MediaAsset, error) {
	return t.data.getMedia(id), nil
}

func (t *txStore) UpdateMedia(ctx context.Context, id models.MediaID, update store.MediaUpdate) (*models.MediaAsset, error) {
	return t.data.updateMedia(id, update)
}

func (t *txStore) DeleteMedia(ctx context.Context, id models.MediaID) (bool, error) {
	return t.data.deleteMedia(id), nil
}

func (t *txStore) ListMedia(ctx context.Context, blockID models.BlockID) ([]*models.MediaAsset, error) {
	return t.data.listMedia(blockID), nil
}

func (t *txStore) ReorderMedia(ctx context.Context, blockID models.BlockID, mediaIDs []models.MediaID) error {
	return t.data.reorderMedia(blockID, mediaIDs)
}
