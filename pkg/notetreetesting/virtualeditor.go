// Package notetreetesting provides test utilities that exercise the full
// editing loop against a running server: an editor with an optimistic
// overlay session and a viewer tracking the event stream.
package notetreetesting

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/notetree/notetree/pkg/batch"
	"github.com/notetree/notetree/pkg/client"
	"github.com/notetree/notetree/pkg/models"
	"github.com/notetree/notetree/pkg/overlay"
	"github.com/notetree/notetree/pkg/store"
)

// VirtualEditor drives the API like an interactive editor: edits are staged
// in an overlay session and committed as atomic batches.
type VirtualEditor struct {
	Client  *client.Client
	Session *overlay.Session

	index int
}

// NewVirtualEditor creates an editor for the server at baseURL.
func NewVirtualEditor(index int, baseURL string) *VirtualEditor {
	return &VirtualEditor{
		Client:  client.NewClient(baseURL),
		Session: overlay.NewSession(zerolog.Nop()),
		index:   index,
	}
}

// StagePage stages a page create and returns the client-generated id.
func (ve *VirtualEditor) StagePage(title string) (models.PageID, error) {
	slug := fmt.Sprintf("editor-%d-%s", ve.index, title)
	key, err := ve.Session.Stage(batch.Operation{
		Type:       batch.OpPageCreate,
		CreatePage: &batch.PageCreate{Title: title, Slug: slug, Active: true},
	})
	if err != nil {
		return models.PageID{}, err
	}
	return models.ParsePageID(key.ID)
}

// StageBlock stages a block create on a page staged or fetched earlier.
func (ve *VirtualEditor) StageBlock(pageID models.PageID, text string, order int) (models.BlockID, error) {
	key, err := ve.Session.Stage(batch.Operation{
		Type: batch.OpBlockCreate,
		CreateBlock: &batch.BlockCreate{
			PageID:  pageID,
			Type:    models.BlockTypeText,
			Content: models.JSONMap{"text": text},
			Order:   order,
		},
	})
	if err != nil {
		return models.BlockID{}, err
	}
	return models.ParseBlockID(key.ID)
}

// StageEdit stages a content update for an existing block. Repeated edits to
// the same block collapse to the latest one.
func (ve *VirtualEditor) StageEdit(blockID models.BlockID, text string) error {
	_, err := ve.Session.Stage(batch.Operation{
		Type:        batch.OpBlockUpdate,
		BlockID:     &blockID,
		UpdateBlock: &store.BlockUpdate{Content: models.JSONMap{"text": text}},
	})
	return err
}

// Commit submits everything staged so far as one atomic batch.
func (ve *VirtualEditor) Commit(ctx context.Context) (*batch.Outcome, error) {
	return ve.Session.Commit(ctx, ve.Client)
}

// RunScenario performs a full editing round trip: stage a page with two
// blocks, commit, edit one block, commit again, and verify the server state.
func (ve *VirtualEditor) RunScenario(ctx context.Context) error {
	pageID, err := ve.StagePage("scenario")
	if err != nil {
		return fmt.Errorf("stage page: %w", err)
	}
	first, err := ve.StageBlock(pageID, "first draft", 0)
	if err != nil {
		return fmt.Errorf("stage block: %w", err)
	}
	if _, err := ve.StageBlock(pageID, "second block", 1); err != nil {
		return fmt.Errorf("stage block: %w", err)
	}
	if _, err := ve.Commit(ctx); err != nil {
		return fmt.Errorf("first commit: %w", err)
	}
	if ve.Session.Dirty() {
		return fmt.Errorf("session still dirty after commit")
	}

	if err := ve.StageEdit(first, "revised draft"); err != nil {
		return fmt.Errorf("stage edit: %w", err)
	}
	if _, err := ve.Commit(ctx); err != nil {
		return fmt.Errorf("second commit: %w", err)
	}

	block, err := ve.Client.GetBlock(ctx, first)
	if err != nil {
		return fmt.Errorf("fetch block: %w", err)
	}
	if got := block.Content["text"]; got != "revised draft" {
		return fmt.Errorf("unexpected block content %v", got)
	}
	return nil
}
