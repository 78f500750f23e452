package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// PageID is a typed ID for pages
type PageID struct {
	uuid uuid.UUID
}

func NewPageID() PageID {
	return PageID{uuid: uuid.New()}
}

func NewPageIDFromUUID(id uuid.UUID) PageID {
	return PageID{uuid: id}
}

func ParsePageID(s string) (PageID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return PageID{}, fmt.Errorf("invalid page ID: %w", err)
	}
	return PageID{uuid: id}, nil
}

func (p PageID) UUID() uuid.UUID { return p.uuid }
func (p PageID) String() string  { return p.uuid.String() }
func (p PageID) IsZero() bool    { return p.uuid == uuid.Nil }

func (p PageID) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.uuid.String())
}

func (p *PageID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return err
	}
	p.uuid = id
	return nil
}

// MarshalBinary supports binary codecs (CBOR) that honor
// encoding.BinaryMarshaler.
func (p PageID) MarshalBinary() ([]byte, error) {
	return p.uuid.MarshalBinary()
}

func (p *PageID) UnmarshalBinary(data []byte) error {
	return p.uuid.UnmarshalBinary(data)
}

func (p PageID) Value() (driver.Value, error) {
	if p.IsZero() {
		return nil, nil
	}
	return p.uuid.String(), nil
}

func (p *PageID) Scan(value any) error {
	return scanUUID(value, &p.uuid)
}

func (PageID) GormDataType() string { return "uuid" }

// BlockID is a typed ID for blocks
type BlockID struct {
	uuid uuid.UUID
}

func NewBlockID() BlockID {
	return BlockID{uuid: uuid.New()}
}

func NewBlockIDFromUUID(id uuid.UUID) BlockID {
	return BlockID{uuid: id}
}

func ParseBlockID(s string) (BlockID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return BlockID{}, fmt.Errorf("invalid block ID: %w", err)
	}
	return BlockID{uuid: id}, nil
}

func (b BlockID) UUID() uuid.UUID { return b.uuid }
func (b BlockID) String() string  { return b.uuid.String() }
func (b BlockID) IsZero() bool    { return b.uuid == uuid.Nil }

func (b BlockID) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.uuid.String())
}

func (b *BlockID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return err
	}
	b.uuid = id
	return nil
}

func (b BlockID) MarshalBinary() ([]byte, error) {
	return b.uuid.MarshalBinary()
}

func (b *BlockID) UnmarshalBinary(data []byte) error {
	return b.uuid.UnmarshalBinary(data)
}

func (b BlockID) Value() (driver.Value, error) {
	if b.IsZero() {
		return nil, nil
	}
	return b.uuid.String(), nil
}

func (b *BlockID) Scan(value any) error {
	return scanUUID(value, &b.uuid)
}

func (BlockID) GormDataType() string { return "uuid" }

// MediaID is a typed ID for media assets
type MediaID struct {
	uuid uuid.UUID
}

func NewMediaID() MediaID {
	return MediaID{uuid: uuid.New()}
}

func NewMediaIDFromUUID(id uuid.UUID) MediaID {
	return MediaID{uuid: id}
}

func ParseMediaID(s string) (MediaID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return MediaID{}, fmt.Errorf("invalid media ID: %w", err)
	}
	return MediaID{uuid: id}, nil
}

func (m MediaID) UUID() uuid.UUID { return m.uuid }
func (m MediaID) String() string  { return m.uuid.String() }
func (m MediaID) IsZero() bool    { return m.uuid == uuid.Nil }

func (m MediaID) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.uuid.String())
}

func (m *MediaID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return err
	}
	m.uuid = id
	return nil
}

func (m MediaID) MarshalBinary() ([]byte, error) {
	return m.uuid.MarshalBinary()
}

func (m *MediaID) UnmarshalBinary(data []byte) error {
	return m.uuid.UnmarshalBinary(data)
}

func (m MediaID) Value() (driver.Value, error) {
	if m.IsZero() {
		return nil, nil
	}
	return m.uuid.String(), nil
}

func (m *MediaID) Scan(value any) error {
	return scanUUID(value, &m.uuid)
}

func (MediaID) GormDataType() string { return "uuid" }

// scanUUID is a helper for implementing sql.Scanner for PostgreSQL/GORM
func scanUUID(value any, target *uuid.UUID) error {
	if value == nil {
		*target = uuid.Nil
		return nil
	}

	switch v := value.(type) {
	case string:
		id, err := uuid.Parse(v)
		if err != nil {
			return err
		}
		*target = id
	case []byte:
		id, err := uuid.ParseBytes(v)
		if err != nil {
			return err
		}
		*target = id
	default:
		return fmt.Errorf("cannot scan type %T into UUID", value)
	}
	return nil
}
