package batch

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/notetree/notetree/pkg/events"
	"github.com/notetree/notetree/pkg/models"
	"github.com/notetree/notetree/pkg/store"
)

// Result is the outcome of one operation: the record as committed for creates
// and updates, or just the echo of the operation type for deletes.
type Result struct {
	Type  OperationType      `json:"type"`
	Page  *models.Page       `json:"page,omitempty"`
	Block *models.Block      `json:"block,omitempty"`
	Media *models.MediaAsset `json:"media,omitempty"`
}

// Outcome is the result of a committed batch.
type Outcome struct {
	Results []Result `json:"results"`
	// AffectedPageIDs lists, in first-touch order, every page whose content
	// the batch changed. A moved block contributes both its source and target
	// page.
	AffectedPageIDs []models.PageID `json:"affected_page_ids"`
	// Events are the change notifications to broadcast, in operation order,
	// ending with a BATCH_OPERATION aggregate when the batch held more than
	// one operation.
	Events []events.Event `json:"-"`
}

// Processor executes batches against a store.
type Processor struct {
	store store.Store
	log   zerolog.Logger
}

// NewProcessor creates a batch processor.
func NewProcessor(s store.Store, log zerolog.Logger) *Processor {
	return &Processor{store: s, log: log}
}

// Execute validates the batch and then applies every operation, in order,
// inside a single store transaction. The first failing operation aborts the
// transaction; nothing of the batch is visible afterwards. On success the
// returned outcome carries the committed records and the events to broadcast.
// Execute does not publish the events itself so the caller can do so inside
// its commit-ordering section.
func (p *Processor) Execute(ctx context.Context, b Batch) (*Outcome, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	outcome := &Outcome{}
	affected := make(map[models.PageID]struct{})
	touch := func(id models.PageID) {
		if _, ok := affected[id]; ok {
			return
		}
		affected[id] = struct{}{}
		outcome.AffectedPageIDs = append(outcome.AffectedPageIDs, id)
	}

	err := p.store.Transaction(ctx, func(tx store.Store) error {
		for i, op := range b.Operations {
			if err := p.apply(ctx, tx, op, outcome, touch); err != nil {
				p.log.Debug().Int("operation", i).Str("type", string(op.Type)).Err(err).
					Msg("batch aborted")
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(b.Operations) > 1 {
		outcome.Events = append(outcome.Events, events.BatchOperation(outcome.AffectedPageIDs))
	}
	p.log.Info().Int("operations", len(b.Operations)).Int("pages", len(outcome.AffectedPageIDs)).
		Msg("batch committed")
	return outcome, nil
}

func (p *Processor) apply(ctx context.Context, tx store.Store, op Operation, outcome *Outcome, touch func(models.PageID)) error {
	switch op.Type {
	case OpPageCreate:
		page := &models.Page{
			ID:     op.CreatePage.ID,
			Title:  op.CreatePage.Title,
			Slug:   op.CreatePage.Slug,
			Active: op.CreatePage.Active,
			Order:  op.CreatePage.Order,
		}
		if err := tx.CreatePage(ctx, page); err != nil {
			return err
		}
		touch(page.ID)
		outcome.Results = append(outcome.Results, Result{Type: op.Type, Page: page})
		outcome.Events = append(outcome.Events, events.PageCreated(page))

	case OpPageUpdate:
		page, err := tx.UpdatePage(ctx, *op.PageID, *op.UpdatePage)
		if err != nil {
			return err
		}
		touch(page.ID)
		outcome.Results = append(outcome.Results, Result{Type: op.Type, Page: page})
		outcome.Events = append(outcome.Events, events.PageUpdated(page))

	case OpPageDelete:
		deleted, err := tx.DeletePage(ctx, *op.PageID)
		if err != nil {
			return err
		}
		if !deleted {
			return &store.NotFoundError{Kind: "page", ID: op.PageID.String()}
		}
		touch(*op.PageID)
		outcome.Results = append(outcome.Results, Result{Type: op.Type})
		outcome.Events = append(outcome.Events, events.PageDeleted(*op.PageID))

	case OpBlockCreate:
		block := &models.Block{
			ID:            op.CreateBlock.ID,
			PageID:        op.CreateBlock.PageID,
			ParentBlockID: op.CreateBlock.ParentBlockID,
			Type:          op.CreateBlock.Type,
			Content:       op.CreateBlock.Content,
			Order:         op.CreateBlock.Order,
		}
		if err := tx.CreateBlock(ctx, block); err != nil {
			return err
		}
		touch(block.PageID)
		outcome.Results = append(outcome.Results, Result{Type: op.Type, Block: block})
		outcome.Events = append(outcome.Events, events.BlockCreated(block))

	case OpBlockUpdate:
		before, err := tx.GetBlock(ctx, *op.BlockID)
		if err != nil {
			return err
		}
		if before == nil {
			return &store.NotFoundError{Kind: "block", ID: op.BlockID.String()}
		}
		block, err := tx.UpdateBlock(ctx, *op.BlockID, *op.UpdateBlock)
		if err != nil {
			return err
		}
		touch(before.PageID)
		touch(block.PageID)
		outcome.Results = append(outcome.Results, Result{Type: op.Type, Block: block})
		outcome.Events = append(outcome.Events, events.BlockUpdated(block))

	case OpBlockDelete:
		block, err := tx.GetBlock(ctx, *op.BlockID)
		if err != nil {
			return err
		}
		if block == nil {
			return &store.NotFoundError{Kind: "block", ID: op.BlockID.String()}
		}
		if _, err := tx.DeleteBlock(ctx, *op.BlockID); err != nil {
			return err
		}
		touch(block.PageID)
		outcome.Results = append(outcome.Results, Result{Type: op.Type})
		outcome.Events = append(outcome.Events, events.BlockDeleted(block.ID, block.PageID))

	case OpMediaCreate:
		media := &models.MediaAsset{
			ID:       op.CreateMedia.ID,
			BlockID:  op.CreateMedia.BlockID,
			Position: op.CreateMedia.Position,
			Width:    op.CreateMedia.Width,
			Order:    op.CreateMedia.Order,
			MimeType: op.CreateMedia.MimeType,
			URL:      op.CreateMedia.URL,
			Size:     op.CreateMedia.Size,
		}
		if err := tx.CreateMedia(ctx, media); err != nil {
			return err
		}
		if media.BlockID != nil {
			owner, err := tx.GetBlock(ctx, *media.BlockID)
			if err != nil {
				return err
			}
			if owner != nil {
				touch(owner.PageID)
			}
		}
		outcome.Results = append(outcome.Results, Result{Type: op.Type, Media: media})
		outcome.Events = append(outcome.Events, events.MediaCreated(media))

	case OpMediaDelete:
		media, err := tx.GetMedia(ctx, *op.MediaID)
		if err != nil {
			return err
		}
		if media == nil {
			return &store.NotFoundError{Kind: "media", ID: op.MediaID.String()}
		}
		if media.BlockID != nil {
			owner, err := tx.GetBlock(ctx, *media.BlockID)
			if err != nil {
				return err
			}
			if owner != nil {
				touch(owner.PageID)
			}
		}
		if _, err := tx.DeleteMedia(ctx, *op.MediaID); err != nil {
			return err
		}
		outcome.Results = append(outcome.Results, Result{Type: op.Type})
		outcome.Events = append(outcome.Events, events.MediaDeleted(*op.MediaID))
	}
	return nil
}
