// Package events defines the change notifications fanned out to connected
// viewers and the [Broadcaster] that delivers them.
//
// Every committed mutation produces one event per operation; a batch of more
// than one operation additionally produces a single BATCH_OPERATION aggregate
// carrying the set of affected page ids, so viewers can refresh per page
// instead of re-reading the world.
package events

import (
	"time"

	"github.com/notetree/notetree/pkg/models"
)

// EventType identifies what changed.
type EventType string

const (
	EventPageCreated    EventType = "PAGE_CREATED"
	EventPageUpdated    EventType = "PAGE_UPDATED"
	EventPageDeleted    EventType = "PAGE_DELETED"
	EventBlockCreated   EventType = "BLOCK_CREATED"
	EventBlockUpdated   EventType = "BLOCK_UPDATED"
	EventBlockDeleted   EventType = "BLOCK_DELETED"
	EventMediaCreated   EventType = "MEDIA_CREATED"
	EventMediaUpdated   EventType = "MEDIA_UPDATED"
	EventMediaDeleted   EventType = "MEDIA_DELETED"
	EventMediaReordered EventType = "MEDIA_REORDERED"
	EventBatchOperation EventType = "BATCH_OPERATION"
)

// Event is one change notification. Exactly the fields relevant to the event
// type are set: created/updated events carry the full record, deleted events
// carry only the id, MEDIA_REORDERED carries the owning block and the new
// order, and BATCH_OPERATION carries the affected page ids.
type Event struct {
	Type EventType `json:"type"`

	Page  *models.Page       `json:"page,omitempty"`
	Block *models.Block      `json:"block,omitempty"`
	Media *models.MediaAsset `json:"media,omitempty"`

	PageID  *models.PageID  `json:"page_id,omitempty"`
	BlockID *models.BlockID `json:"block_id,omitempty"`
	MediaID *models.MediaID `json:"media_id,omitempty"`

	MediaIDs []models.MediaID `json:"media_ids,omitempty"`

	AffectedPageIDs []models.PageID `json:"affected_page_ids,omitempty"`

	// Timestamp is when the change committed.
	Timestamp time.Time `json:"timestamp"`
}

func PageCreated(page *models.Page) Event {
	return Event{Type: EventPageCreated, Page: page, Timestamp: time.Now()}
}

func PageUpdated(page *models.Page) Event {
	return Event{Type: EventPageUpdated, Page: page, Timestamp: time.Now()}
}

func PageDeleted(id models.PageID) Event {
	return Event{Type: EventPageDeleted, PageID: &id, Timestamp: time.Now()}
}

func BlockCreated(block *models.Block) Event {
	return Event{Type: EventBlockCreated, Block: block, Timestamp: time.Now()}
}

func BlockUpdated(block *models.Block) Event {
	return Event{Type: EventBlockUpdated, Block: block, Timestamp: time.Now()}
}

func BlockDeleted(id models.BlockID, pageID models.PageID) Event {
	return Event{Type: EventBlockDeleted, BlockID: &id, PageID: &pageID, Timestamp: time.Now()}
}

func MediaCreated(media *models.MediaAsset) Event {
	return Event{Type: EventMediaCreated, Media: media, Timestamp: time.Now()}
}

func MediaUpdated(media *models.MediaAsset) Event {
	return Event{Type: EventMediaUpdated, Media: media, Timestamp: time.Now()}
}

func MediaDeleted(id models.MediaID) Event {
	return Event{Type: EventMediaDeleted, MediaID: &id, Timestamp: time.Now()}
}

func MediaReordered(blockID models.BlockID, mediaIDs []models.MediaID) Event {
	return Event{Type: EventMediaReordered, BlockID: &blockID, MediaIDs: mediaIDs, Timestamp: time.Now()}
}

func BatchOperation(affectedPageIDs []models.PageID) Event {
	return Event{Type: EventBatchOperation, AffectedPageIDs: affectedPageIDs, Timestamp: time.Now()}
}
