package overlay

import (
	"sort"

	"github.com/notetree/notetree/pkg/batch"
	"github.com/notetree/notetree/pkg/events"
	"github.com/notetree/notetree/pkg/models"
)

// SetAuthoritative replaces the authoritative cache with a fetched snapshot.
// Pending edits are untouched; they re-apply on top of the new state.
func (s *Session) SetAuthoritative(pages []*models.Page, blocks []*models.Block, media []*models.MediaAsset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = make(map[models.PageID]*models.Page, len(pages))
	for _, p := range pages {
		s.pages[p.ID] = p
	}
	s.blocks = make(map[models.BlockID]*models.Block, len(blocks))
	for _, b := range blocks {
		s.blocks[b.ID] = b
	}
	s.media = make(map[models.MediaID]*models.MediaAsset, len(media))
	for _, m := range media {
		s.media[m.ID] = m
	}
}

// ApplyEvent folds one broadcast event into the authoritative cache. An item
// with a pending local edit keeps rendering the local version; an item the
// server reports deleted has its pending edits dropped, since there is
// nothing left to apply them to.
func (s *Session) ApplyEvent(ev events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Type {
	case events.EventPageCreated, events.EventPageUpdated:
		if ev.Page != nil {
			s.pages[ev.Page.ID] = ev.Page
		}
	case events.EventPageDeleted:
		if ev.PageID != nil {
			s.dropPageLocked(*ev.PageID)
		}
	case events.EventBlockCreated, events.EventBlockUpdated:
		if ev.Block != nil {
			s.blocks[ev.Block.ID] = ev.Block
		}
	case events.EventBlockDeleted:
		if ev.BlockID != nil {
			s.dropBlockLocked(*ev.BlockID)
		}
	case events.EventMediaCreated, events.EventMediaUpdated:
		if ev.Media != nil {
			s.media[ev.Media.ID] = ev.Media
		}
	case events.EventMediaDeleted:
		if ev.MediaID != nil {
			delete(s.media, *ev.MediaID)
			s.discardLocked(Key{Type: ItemMedia, ID: ev.MediaID.String()})
		}
	case events.EventMediaReordered:
		if ev.BlockID != nil {
			for i, id := range ev.MediaIDs {
				if m, ok := s.media[id]; ok {
					m.Order = i
				}
			}
		}
	case events.EventBatchOperation:
		// Aggregate marker; the per-operation events preceding it already
		// updated the cache.
	}
}

func (s *Session) dropPageLocked(id models.PageID) {
	delete(s.pages, id)
	s.discardLocked(Key{Type: ItemPage, ID: id.String()})
	for blockID, block := range s.blocks {
		if block.PageID == id {
			s.dropBlockRecordLocked(blockID)
		}
	}
}

// dropBlockLocked removes a block and, mirroring the server cascade, every
// cached descendant and owned media asset.
func (s *Session) dropBlockLocked(id models.BlockID) {
	doomed := map[models.BlockID]struct{}{id: {}}
	for {
		grew := false
		for blockID, block := range s.blocks {
			if _, dead := doomed[blockID]; dead {
				continue
			}
			if block.ParentBlockID != nil {
				if _, parentDead := doomed[*block.ParentBlockID]; parentDead {
					doomed[blockID] = struct{}{}
					grew = true
				}
			}
		}
		if !grew {
			break
		}
	}
	for blockID := range doomed {
		s.dropBlockRecordLocked(blockID)
	}
}

func (s *Session) dropBlockRecordLocked(id models.BlockID) {
	delete(s.blocks, id)
	s.discardLocked(Key{Type: ItemBlock, ID: id.String()})
	for mediaID, m := range s.media {
		if m.BlockID != nil && *m.BlockID == id {
			delete(s.media, mediaID)
			s.discardLocked(Key{Type: ItemMedia, ID: mediaID.String()})
		}
	}
}

// resolved materializes the render state: a copy of the authoritative cache
// with the pending operations applied in staging order.
func (s *Session) resolved() (map[models.PageID]*models.Page, map[models.BlockID]*models.Block, map[models.MediaID]*models.MediaAsset) {
	pages := make(map[models.PageID]*models.Page, len(s.pages))
	for id, p := range s.pages {
		cp := *p
		pages[id] = &cp
	}
	blocks := make(map[models.BlockID]*models.Block, len(s.blocks))
	for id, b := range s.blocks {
		cb := *b
		blocks[id] = &cb
	}
	media := make(map[models.MediaID]*models.MediaAsset, len(s.media))
	for id, m := range s.media {
		cm := *m
		media[id] = &cm
	}

	for _, key := range s.order {
		applyPending(s.pending[key].Op, pages, blocks, media)
	}
	return pages, blocks, media
}

func applyPending(op batch.Operation, pages map[models.PageID]*models.Page, blocks map[models.BlockID]*models.Block, media map[models.MediaID]*models.MediaAsset) {
	switch op.Type {
	case batch.OpPageCreate:
		p := op.CreatePage
		pages[p.ID] = &models.Page{ID: p.ID, Title: p.Title, Slug: p.Slug, Active: p.Active, Order: p.Order}
	case batch.OpPageUpdate:
		page, ok := pages[*op.PageID]
		if !ok {
			return
		}
		u := op.UpdatePage
		if u.Title != nil {
			page.Title = *u.Title
		}
		if u.Slug != nil {
			page.Slug = *u.Slug
		}
		if u.Active != nil {
			page.Active = *u.Active
		}
		if u.Order != nil {
			page.Order = *u.Order
		}
	case batch.OpPageDelete:
		delete(pages, *op.PageID)
		gone := make(map[models.BlockID]struct{})
		for id, b := range blocks {
			if b.PageID == *op.PageID {
				gone[id] = struct{}{}
				delete(blocks, id)
			}
		}
		for id, m := range media {
			if m.BlockID == nil {
				continue
			}
			if _, ok := gone[*m.BlockID]; ok {
				delete(media, id)
			}
		}
	case batch.OpBlockCreate:
		b := op.CreateBlock
		blocks[b.ID] = &models.Block{ID: b.ID, PageID: b.PageID, ParentBlockID: b.ParentBlockID, Type: b.Type, Content: b.Content, Order: b.Order}
	case batch.OpBlockUpdate:
		block, ok := blocks[*op.BlockID]
		if !ok {
			return
		}
		u := op.UpdateBlock
		if u.PageID != nil {
			block.PageID = *u.PageID
		}
		switch {
		case u.ClearParent:
			block.ParentBlockID = nil
		case u.ParentBlockID != nil:
			block.ParentBlockID = u.ParentBlockID
		}
		if u.Type != nil {
			block.Type = *u.Type
		}
		if u.Content != nil {
			block.Content = u.Content
		}
		if u.Order != nil {
			block.Order = *u.Order
		}
	case batch.OpBlockDelete:
		delete(blocks, *op.BlockID)
		for id, m := range media {
			if m.BlockID != nil && *m.BlockID == *op.BlockID {
				delete(media, id)
			}
		}
	case batch.OpMediaCreate:
		m := op.CreateMedia
		media[m.ID] = &models.MediaAsset{ID: m.ID, BlockID: m.BlockID, Position: m.Position, Width: m.Width, Order: m.Order, MimeType: m.MimeType, URL: m.URL, Size: m.Size}
	case batch.OpMediaDelete:
		delete(media, *op.MediaID)
	}
}

// ResolvedPages returns the render state's pages in sibling order.
func (s *Session) ResolvedPages() []*models.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	pages, _, _ := s.resolved()
	out := make([]*models.Page, 0, len(pages))
	for _, p := range pages {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// ResolvedBlocks returns the render state of one page's blocks in sibling
// order.
func (s *Session) ResolvedBlocks(pageID models.PageID) []*models.Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, blocks, _ := s.resolved()
	out := make([]*models.Block, 0, len(blocks))
	for _, b := range blocks {
		if b.PageID == pageID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// ResolvedMedia returns the render state of one block's media in sibling
// order.
func (s *Session) ResolvedMedia(blockID models.BlockID) []*models.MediaAsset {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _, media := s.resolved()
	out := make([]*models.MediaAsset, 0, len(media))
	for _, m := range media {
		if m.BlockID != nil && *m.BlockID == blockID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
