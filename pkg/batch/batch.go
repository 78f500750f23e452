// Package batch implements the atomic multi-operation mutation protocol.
//
// A [Batch] is an ordered list of operations drawn from a closed set. The
// [Processor] validates the batch up front, then executes every operation in
// order inside one store transaction: the first failure aborts and rolls back
// everything, so observers never see a partially applied batch. A successful
// batch yields per-operation results, the set of affected page ids, and the
// change events to broadcast.
package batch

import (
	"fmt"
	"strings"

	"github.com/notetree/notetree/pkg/models"
	"github.com/notetree/notetree/pkg/store"
)

// OperationType is one of the closed set of batchable mutations.
type OperationType string

const (
	OpPageCreate  OperationType = "page_create"
	OpPageUpdate  OperationType = "page_update"
	OpPageDelete  OperationType = "page_delete"
	OpBlockCreate OperationType = "block_create"
	OpBlockUpdate OperationType = "block_update"
	OpBlockDelete OperationType = "block_delete"
	OpMediaCreate OperationType = "media_create"
	OpMediaDelete OperationType = "media_delete"
)

// Valid reports whether t is a member of the closed operation set.
func (t OperationType) Valid() bool {
	switch t {
	case OpPageCreate, OpPageUpdate, OpPageDelete,
		OpBlockCreate, OpBlockUpdate, OpBlockDelete,
		OpMediaCreate, OpMediaDelete:
		return true
	}
	return false
}

// PageCreate is the payload of a page_create operation. ID is optional; a
// client staging edits offline generates it up front so later operations in
// the same batch can reference the page.
type PageCreate struct {
	ID     models.PageID `json:"id,omitempty"`
	Title  string        `json:"title"`
	Slug   string        `json:"slug"`
	Active bool          `json:"active"`
	Order  int           `json:"order"`
}

// BlockCreate is the payload of a block_create operation.
type BlockCreate struct {
	ID            models.BlockID   `json:"id,omitempty"`
	PageID        models.PageID    `json:"page_id"`
	ParentBlockID *models.BlockID  `json:"parent_block_id,omitempty"`
	Type          models.BlockType `json:"type"`
	Content       models.JSONMap   `json:"content,omitempty"`
	Order         int              `json:"order"`
}

// MediaCreate is the payload of a media_create operation.
type MediaCreate struct {
	ID       models.MediaID       `json:"id,omitempty"`
	BlockID  *models.BlockID      `json:"block_id,omitempty"`
	Position models.MediaPosition `json:"position"`
	Width    int                  `json:"width"`
	Order    int                  `json:"order"`
	MimeType string               `json:"mime_type"`
	URL      string               `json:"url"`
	Size     int64                `json:"size"`
}

// Operation is one entry of a batch. Exactly the fields required by Type are
// set; Validate enforces this before execution starts.
type Operation struct {
	Type OperationType `json:"type"`

	PageID  *models.PageID  `json:"page_id,omitempty"`
	BlockID *models.BlockID `json:"block_id,omitempty"`
	MediaID *models.MediaID `json:"media_id,omitempty"`

	CreatePage  *PageCreate        `json:"create_page,omitempty"`
	UpdatePage  *store.PageUpdate  `json:"update_page,omitempty"`
	CreateBlock *BlockCreate       `json:"create_block,omitempty"`
	UpdateBlock *store.BlockUpdate `json:"update_block,omitempty"`
	CreateMedia *MediaCreate       `json:"create_media,omitempty"`
}

// Batch is an ordered list of operations executed atomically.
type Batch struct {
	Operations []Operation `json:"operations"`
}

// ValidationError pins a structural problem to one operation and field.
type ValidationError struct {
	Index   int    `json:"index"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("operation %d: %s: %s", e.Index, e.Field, e.Message)
}

// ValidationErrors aggregates every structural problem found in a batch.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, v := range e {
		msgs[i] = v.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the batch's shape without touching storage: the batch must
// be non-empty, every operation type must be in the closed set, and each
// operation must carry exactly the payload its type requires. It returns
// [ValidationErrors] listing every problem, or nil.
func (b Batch) Validate() error {
	if len(b.Operations) == 0 {
		return ValidationErrors{{Index: 0, Field: "operations", Message: "batch must contain at least one operation"}}
	}
	var errs ValidationErrors
	addErr := func(i int, field, message string) {
		errs = append(errs, &ValidationError{Index: i, Field: field, Message: message})
	}
	for i, op := range b.Operations {
		if !op.Type.Valid() {
			addErr(i, "type", fmt.Sprintf("unknown operation type %q", op.Type))
			continue
		}
		switch op.Type {
		case OpPageCreate:
			if op.CreatePage == nil {
				addErr(i, "create_page", "payload is required")
				continue
			}
			if op.CreatePage.Title == "" {
				addErr(i, "create_page.title", "title is required")
			}
			if op.CreatePage.Slug == "" {
				addErr(i, "create_page.slug", "slug is required")
			}
		case OpPageUpdate:
			if op.PageID == nil {
				addErr(i, "page_id", "id is required")
			}
			if op.UpdatePage == nil {
				addErr(i, "update_page", "payload is required")
			}
		case OpPageDelete:
			if op.PageID == nil {
				addErr(i, "page_id", "id is required")
			}
		case OpBlockCreate:
			if op.CreateBlock == nil {
				addErr(i, "create_block", "payload is required")
				continue
			}
			if op.CreateBlock.PageID.IsZero() {
				addErr(i, "create_block.page_id", "page id is required")
			}
			if !op.CreateBlock.Type.Valid() {
				addErr(i, "create_block.type", fmt.Sprintf("unknown block type %q", op.CreateBlock.Type))
			}
		case OpBlockUpdate:
			if op.BlockID == nil {
				addErr(i, "block_id", "id is required")
			}
			if op.UpdateBlock == nil {
				addErr(i, "update_block", "payload is required")
				continue
			}
			if op.UpdateBlock.ClearParent && op.UpdateBlock.ParentBlockID != nil {
				addErr(i, "update_block.parent_block_id", "cannot both set and clear the parent")
			}
			if op.UpdateBlock.Type != nil && !op.UpdateBlock.Type.Valid() {
				addErr(i, "update_block.type", fmt.Sprintf("unknown block type %q", *op.UpdateBlock.Type))
			}
		case OpBlockDelete:
			if op.BlockID == nil {
				addErr(i, "block_id", "id is required")
			}
		case OpMediaCreate:
			if op.CreateMedia == nil {
				addErr(i, "create_media", "payload is required")
				continue
			}
			if !op.CreateMedia.Position.Valid() {
				addErr(i, "create_media.position", fmt.Sprintf("unknown position %q", op.CreateMedia.Position))
			}
			if op.CreateMedia.URL == "" {
				addErr(i, "create_media.url", "url is required")
			}
		case OpMediaDelete:
			if op.MediaID == nil {
				addErr(i, "media_id", "id is required")
			}
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// IsValidationError reports whether err came from batch validation.
func IsValidationError(err error) bool {
	switch err.(type) {
	case ValidationErrors, *ValidationError:
		return true
	}
	return false
}
