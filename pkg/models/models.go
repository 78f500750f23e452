package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// BlockType tags what a block renders as. A block either carries text content,
// attached media, or both.
type BlockType string

const (
	BlockTypeText      BlockType = "text"
	BlockTypeMedia     BlockType = "media"
	BlockTypeTextMedia BlockType = "text_media"
)

// Valid reports whether t is one of the known block type tags.
func (t BlockType) Valid() bool {
	switch t {
	case BlockTypeText, BlockTypeMedia, BlockTypeTextMedia:
		return true
	}
	return false
}

// MediaPosition tags where an asset is rendered relative to its block's text.
type MediaPosition string

const (
	MediaPositionBottom MediaPosition = "bottom"
	MediaPositionRight  MediaPosition = "right"
)

// Valid reports whether p is one of the known media position tags.
func (p MediaPosition) Valid() bool {
	return p == MediaPositionBottom || p == MediaPositionRight
}

// JSONMap is the opaque structured content payload of a block. The structure
// varies by block type (a text block might carry "text" and "format" fields,
// a media block a "caption"), so it stays a flexible key-value map stored as
// JSONB in PostgreSQL and marshaled as-is over the API.
type JSONMap map[string]any

// Value implements driver.Valuer for database storage.
func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements sql.Scanner for database retrieval.
func (j *JSONMap) Scan(value any) error {
	if value == nil {
		*j = make(map[string]any)
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		bytes = []byte(value.(string))
	}
	return json.Unmarshal(bytes, j)
}

// Page is the top-level content unit. Slug is globally unique; Order is the
// sibling order among all pages, ties broken by creation time.
type Page struct {
	ID        PageID    `gorm:"type:uuid;primary_key" json:"id"`
	Title     string    `gorm:"not null" json:"title"`
	Slug      string    `gorm:"uniqueIndex;not null" json:"slug"`
	Active    bool      `gorm:"not null;default:true" json:"active"`
	Order     int       `gorm:"not null" json:"order"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate hook to generate ID if not set
func (p *Page) BeforeCreate(tx *gorm.DB) error {
	if p.ID.IsZero() {
		p.ID = NewPageID()
	}
	return nil
}

// Block is a node in a page's content tree. ParentBlockID, when set, must
// reference a block on the same page; the parent relation is kept acyclic by
// the store. Order is the sibling order among blocks sharing a parent (or
// among a page's top-level blocks), ties broken by creation time.
type Block struct {
	ID            BlockID   `gorm:"type:uuid;primary_key" json:"id"`
	PageID        PageID    `gorm:"type:uuid;not null;index" json:"page_id"`
	ParentBlockID *BlockID  `gorm:"type:uuid;index" json:"parent_block_id,omitempty"`
	Type          BlockType `gorm:"not null" json:"type"`
	Content       JSONMap   `gorm:"type:jsonb" json:"content"`
	Order         int       `gorm:"not null" json:"order"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// BeforeCreate hook to generate ID if not set
func (b *Block) BeforeCreate(tx *gorm.DB) error {
	if b.ID.IsZero() {
		b.ID = NewBlockID()
	}
	return nil
}

// MediaAsset is a stored file attached to at most one block. The binary itself
// lives in the external media store; only its metadata (mimetype, URL, size)
// is recorded here. Deleting a block deletes every asset it owns.
type MediaAsset struct {
	ID        MediaID       `gorm:"type:uuid;primary_key" json:"id"`
	BlockID   *BlockID      `gorm:"type:uuid;index" json:"block_id,omitempty"`
	Position  MediaPosition `gorm:"not null;default:bottom" json:"position"`
	Width     int           `json:"width"`
	Order     int           `gorm:"not null" json:"order"`
	MimeType  string        `json:"mime_type"`
	URL       string        `json:"url"`
	Size      int64         `json:"size"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// BeforeCreate hook to generate ID if not set
func (m *MediaAsset) BeforeCreate(tx *gorm.DB) error {
	if m.ID.IsZero() {
		m.ID = NewMediaID()
	}
	return nil
}
