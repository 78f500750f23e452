// Package models defines the entities shared by the store, the batch
// processor, the HTTP surface, and the client: pages, content blocks, and
// media assets, keyed by typed UUID identifiers.
//
// Typed IDs ([PageID], [BlockID], [MediaID]) wrap uuid.UUID so that a block id
// can never be passed where a page id is expected. Each implements JSON
// marshaling (as the bare UUID string), sql.Scanner/driver.Valuer for GORM,
// and GormDataType so PostgreSQL stores them as native uuid columns.
//
// [Block.ParentBlockID] is an explicit id reference rather than a cyclic
// pointer graph; the store keeps an id-to-children index and enforces the
// structural invariants (same-page parentage, acyclicity, cascade deletion)
// on every mutation.
package models
