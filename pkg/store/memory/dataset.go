package memory

import (
	"sort"
	"time"

	"github.com/notetree/notetree/pkg/models"
	"github.com/notetree/notetree/pkg/store"
)

// Page operations.

func (d *dataset) createPage(page *models.Page) error {
	if page.ID.IsZero() {
		page.ID = models.NewPageID()
	}
	if existing, ok := d.slugs[page.Slug]; ok && existing != page.ID {
		return store.ErrSlugTaken(page.Slug)
	}
	now := time.Now()
	page.CreatedAt = now
	page.UpdatedAt = now

	d.seq++
	d.pages[page.ID] = clonePage(page)
	d.slugs[page.Slug] = page.ID
	d.pageSeq[page.ID] = d.seq
	return nil
}

func (d *dataset) getPage(id models.PageID) *models.Page {
	page, ok := d.pages[id]
	if !ok {
		return nil
	}
	return clonePage(page)
}

func (d *dataset) getPageBySlug(slug string) *models.Page {
	id, ok := d.slugs[slug]
	if !ok {
		return nil
	}
	return clonePage(d.pages[id])
}

func (d *dataset) updatePage(id models.PageID, update store.PageUpdate) (*models.Page, error) {
	page, ok := d.pages[id]
	if !ok {
		return nil, &store.NotFoundError{Kind: "page", ID: id.String()}
	}
	if update.Slug != nil && *update.Slug != page.Slug {
		if existing, taken := d.slugs[*update.Slug]; taken && existing != id {
			return nil, store.ErrSlugTaken(*update.Slug)
		}
		delete(d.slugs, page.Slug)
		page.Slug = *update.Slug
		d.slugs[page.Slug] = id
	}
	if update.Title != nil {
		page.Title = *update.Title
	}
	if update.Active != nil {
		page.Active = *update.Active
	}
	if update.Order != nil {
		page.Order = *update.Order
	}
	page.UpdatedAt = time.Now()
	return clonePage(page), nil
}

func (d *dataset) deletePage(id models.PageID) bool {
	page, ok := d.pages[id]
	if !ok {
		return false
	}
	// Cascade: every block of the page, and every asset owned by one of them.
	for blockID, block := range d.blocks {
		if block.PageID != id {
			continue
		}
		for _, mediaID := range d.blockMedia[blockID] {
			delete(d.media, mediaID)
			delete(d.mediaSeq, mediaID)
		}
		delete(d.blockMedia, blockID)
		delete(d.children, blockID)
		delete(d.blocks, blockID)
		delete(d.blockSeq, blockID)
	}
	delete(d.slugs, page.Slug)
	delete(d.pages, id)
	delete(d.pageSeq, id)
	return true
}

func (d *dataset) listPages() []*models.Page {
	pages := make([]*models.Page, 0, len(d.pages))
	for _, page := range d.pages {
		pages = append(pages, clonePage(page))
	}
	sort.Slice(pages, func(i, j int) bool {
		if pages[i].Order != pages[j].Order {
			return pages[i].Order < pages[j].Order
		}
		if !pages[i].CreatedAt.Equal(pages[j].CreatedAt) {
			return pages[i].CreatedAt.Before(pages[j].CreatedAt)
		}
		return d.pageSeq[pages[i].ID] < d.pageSeq[pages[j].ID]
	})
	return pages
}

// Block operations.

func (d *dataset) createBlock(block *models.Block) error {
	if _, ok := d.pages[block.PageID]; !ok {
		return &store.NotFoundError{Kind: "page", ID: block.PageID.String()}
	}
	if block.ParentBlockID != nil {
		parent, ok := d.blocks[*block.ParentBlockID]
		if !ok {
			return store.ErrInvalidParent(block.ParentBlockID.String(), "does not exist")
		}
		if parent.PageID != block.PageID {
			return store.ErrInvalidParent(block.ParentBlockID.String(), "is on a different page")
		}
	}
	if block.ID.IsZero() {
		block.ID = models.NewBlockID()
	}
	now := time.Now()
	block.CreatedAt = now
	block.UpdatedAt = now

	d.seq++
	d.blocks[block.ID] = cloneBlock(block)
	d.blockSeq[block.ID] = d.seq
	if block.ParentBlockID != nil {
		parentID := *block.ParentBlockID
		d.children[parentID] = append(d.children[parentID], block.ID)
	}
	return nil
}

func (d *dataset) getBlock(id models.BlockID) *models.Block {
	block, ok := d.blocks[id]
	if !ok {
		return nil
	}
	return cloneBlock(block)
}

func (d *dataset) updateBlock(id models.BlockID, update store.BlockUpdate) (*models.Block, error) {
	block, ok := d.blocks[id]
	if !ok {
		return nil, &store.NotFoundError{Kind: "block", ID: id.String()}
	}

	targetPage := block.PageID
	if update.PageID != nil && *update.PageID != block.PageID {
		if len(d.children[id]) > 0 {
			return nil, store.ErrInvalidMove(id.String())
		}
		if _, ok := d.pages[*update.PageID]; !ok {
			return nil, &store.NotFoundError{Kind: "page", ID: update.PageID.String()}
		}
		targetPage = *update.PageID
	}

	newParent := block.ParentBlockID
	switch {
	case update.ClearParent:
		newParent = nil
	case update.ParentBlockID != nil:
		newParent = update.ParentBlockID
	}

	if newParent != nil {
		if *newParent == id {
			return nil, store.ErrSelfParent(id.String())
		}
		parent, ok := d.blocks[*newParent]
		if !ok {
			return nil, store.ErrInvalidParent(newParent.String(), "does not exist")
		}
		if d.isDescendant(id, *newParent) {
			return nil, store.ErrCycleDetected(id.String(), newParent.String())
		}
		if parent.PageID != targetPage {
			return nil, store.ErrInvalidParent(newParent.String(), "is on a different page")
		}
	}

	if !sameParent(block.ParentBlockID, newParent) {
		if block.ParentBlockID != nil {
			d.removeChild(*block.ParentBlockID, id)
		}
		if newParent != nil {
			parentID := *newParent
			d.children[parentID] = append(d.children[parentID], id)
		}
	}
	block.ParentBlockID = nil
	if newParent != nil {
		parentID := *newParent
		block.ParentBlockID = &parentID
	}
	block.PageID = targetPage
	if update.Type != nil {
		block.Type = *update.Type
	}
	if update.Content != nil {
		block.Content = update.Content
	}
	if update.Order != nil {
		block.Order = *update.Order
	}
	block.UpdatedAt = time.Now()
	return cloneBlock(block), nil
}

func (d *dataset) deleteBlock(id models.BlockID) bool {
	block, ok := d.blocks[id]
	if !ok {
		return false
	}
	if block.ParentBlockID != nil {
		d.removeChild(*block.ParentBlockID, id)
	}
	// Iterative subtree walk over the children index.
	stack := []models.BlockID{id}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		stack = append(stack, d.children[current]...)

		for _, mediaID := range d.blockMedia[current] {
			delete(d.media, mediaID)
			delete(d.mediaSeq, mediaID)
		}
		delete(d.blockMedia, current)
		delete(d.children, current)
		delete(d.blocks, current)
		delete(d.blockSeq, current)
	}
	return true
}

func (d *dataset) listTopLevelBlocks(pageID models.PageID) []*models.Block {
	var blocks []*models.Block
	for _, block := range d.blocks {
		if block.PageID == pageID && block.ParentBlockID == nil {
			blocks = append(blocks, cloneBlock(block))
		}
	}
	d.sortBlocks(blocks)
	return blocks
}

func (d *dataset) listChildBlocks(parentID models.BlockID) []*models.Block {
	kids := d.children[parentID]
	blocks := make([]*models.Block, 0, len(kids))
	for _, id := range kids {
		blocks = append(blocks, cloneBlock(d.blocks[id]))
	}
	d.sortBlocks(blocks)
	return blocks
}

func (d *dataset) listBlocks(pageID models.PageID) []*models.Block {
	var blocks []*models.Block
	for _, block := range d.blocks {
		if block.PageID == pageID {
			blocks = append(blocks, cloneBlock(block))
		}
	}
	d.sortBlocks(blocks)
	return blocks
}

func (d *dataset) sortBlocks(blocks []*models.Block) {
	sort.Slice(blocks, func(i, j int) bool {
		if blocks[i].Order != blocks[j].Order {
			return blocks[i].Order < blocks[j].Order
		}
		if !blocks[i].CreatedAt.Equal(blocks[j].CreatedAt) {
			return blocks[i].CreatedAt.Before(blocks[j].CreatedAt)
		}
		return d.blockSeq[blocks[i].ID] < d.blockSeq[blocks[j].ID]
	})
}

// isDescendant reports whether candidate sits in the subtree rooted at root.
func (d *dataset) isDescendant(root, candidate models.BlockID) bool {
	stack := append([]models.BlockID(nil), d.children[root]...)
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if current == candidate {
			return true
		}
		stack = append(stack, d.children[current]...)
	}
	return false
}

func (d *dataset) removeChild(parentID, childID models.BlockID) {
	kids := d.children[parentID]
	for i, id := range kids {
		if id == childID {
			d.children[parentID] = append(kids[:i:i], kids[i+1:]...)
			return
		}
	}
}

func sameParent(a, b *models.BlockID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Media operations.

func (d *dataset) createMedia(media *models.MediaAsset) error {
	if media.BlockID != nil {
		if _, ok := d.blocks[*media.BlockID]; !ok {
			return store.ErrInvalidParent(media.BlockID.String(), "does not exist")
		}
	}
	if media.ID.IsZero() {
		media.ID = models.NewMediaID()
	}
	now := time.Now()
	media.CreatedAt = now
	media.UpdatedAt = now

	d.seq++
	d.media[media.ID] = cloneMedia(media)
	d.mediaSeq[media.ID] = d.seq
	if media.BlockID != nil {
		ownerID := *media.BlockID
		d.blockMedia[ownerID] = append(d.blockMedia[ownerID], media.ID)
	}
	return nil
}

func (d *dataset) getMedia(id models.MediaID) *models.MediaAsset {
	media, ok := d.media[id]
	if !ok {
		return nil
	}
	return cloneMedia(media)
}

func (d *dataset) updateMedia(id models.MediaID, update store.MediaUpdate) (*models.MediaAsset, error) {
	media, ok := d.media[id]
	if !ok {
		return nil, &store.NotFoundError{Kind: "media", ID: id.String()}
	}
	if update.Position != nil {
		media.Position = *update.Position
	}
	if update.Width != nil {
		media.Width = *update.Width
	}
	if update.Order != nil {
		media.Order = *update.Order
	}
	media.UpdatedAt = time.Now()
	return cloneMedia(media), nil
}

func (d *dataset) deleteMedia(id models.MediaID) bool {
	media, ok := d.media[id]
	if !ok {
		return false
	}
	if media.BlockID != nil {
		ownerID := *media.BlockID
		assets := d.blockMedia[ownerID]
		for i, assetID := range assets {
			if assetID == id {
				d.blockMedia[ownerID] = append(assets[:i:i], assets[i+1:]...)
				break
			}
		}
	}
	delete(d.media, id)
	delete(d.mediaSeq, id)
	return true
}

func (d *dataset) listMedia(blockID models.BlockID) []*models.MediaAsset {
	ids := d.blockMedia[blockID]
	assets := make([]*models.MediaAsset, 0, len(ids))
	for _, id := range ids {
		assets = append(assets, cloneMedia(d.media[id]))
	}
	sort.Slice(assets, func(i, j int) bool {
		if assets[i].Order != assets[j].Order {
			return assets[i].Order < assets[j].Order
		}
		if !assets[i].CreatedAt.Equal(assets[j].CreatedAt) {
			return assets[i].CreatedAt.Before(assets[j].CreatedAt)
		}
		return d.mediaSeq[assets[i].ID] < d.mediaSeq[assets[j].ID]
	})
	return assets
}

func (d *dataset) reorderMedia(blockID models.BlockID, mediaIDs []models.MediaID) error {
	now := time.Now()
	for i, id := range mediaIDs {
		media, ok := d.media[id]
		if !ok {
			return &store.NotFoundError{Kind: "media", ID: id.String()}
		}
		if media.BlockID == nil || *media.BlockID != blockID {
			return store.ErrInvalidParent(blockID.String(), "does not own media "+id.String())
		}
		media.Order = i
		media.UpdatedAt = now
	}
	return nil
}
