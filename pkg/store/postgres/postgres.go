// Package postgres provides the PostgreSQL implementation of the
// [github.com/notetree/notetree/pkg/store.Store] interface using GORM.
//
// The schema maps the models directly to relational tables: pages, blocks
// (with a parent_block_id self reference), and media_assets (with a block_id
// owner reference). [PostgresStore.Migrate] uses GORM's AutoMigrate, which
// only adds missing tables, columns, and indexes and is safe to run
// repeatedly.
//
// Structural invariant checks (parent existence, same-page parentage,
// acyclicity, the no-children page move rule) run inside the same database
// transaction as the write they guard, so a concurrent commit cannot slip
// between check and write. Cascade deletion of a subtree is an iterative
// frontier walk over parent_block_id rather than a recursive CTE, keeping the
// queries portable across the gorm dialects.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/notetree/notetree/pkg/models"
	"github.com/notetree/notetree/pkg/store"
)

// PostgresStore implements store.Store backed by PostgreSQL.
// A production deployment would also configure the connection pool
// (MaxIdleConns, MaxOpenConns, ConnMaxLifetime) on the underlying sql.DB.
type PostgresStore struct {
	db   *gorm.DB
	inTx bool
}

// NewPostgresStore connects to the database identified by dsn.
func NewPostgresStore(dsn string) (store.Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Migrate creates or updates the pages, blocks, and media_assets tables.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&models.Page{},
		&models.Block{},
		&models.MediaAsset{},
	)
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Transaction runs fn against a transaction-scoped store. A nested call joins
// the enclosing transaction instead of opening a savepoint.
func (s *PostgresStore) Transaction(ctx context.Context, fn func(tx store.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&PostgresStore{db: tx, inTx: true})
	})
}

// write runs fn inside a transaction, joining the enclosing one when the
// store is already transaction-scoped.
func (s *PostgresStore) write(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s.inTx {
		return fn(s.db.WithContext(ctx))
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// Page operations.

func (s *PostgresStore) CreatePage(ctx context.Context, page *models.Page) error {
	return s.write(ctx, func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Page{}).Where("slug = ?", page.Slug).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return store.ErrSlugTaken(page.Slug)
		}
		return tx.Create(page).Error
	})
}

func (s *PostgresStore) GetPage(ctx context.Context, id models.PageID) (*models.Page, error) {
	var page models.Page
	err := s.db.WithContext(ctx).First(&page, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &page, nil
}

func (s *PostgresStore) GetPageBySlug(ctx context.Context, slug string) (*models.Page, error) {
	var page models.Page
	err := s.db.WithContext(ctx).Where("slug = ?", slug).First(&page).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &page, nil
}

func (s *PostgresStore) UpdatePage(ctx context.Context, id models.PageID, update store.PageUpdate) (*models.Page, error) {
	var page models.Page
	err := s.write(ctx, func(tx *gorm.DB) error {
		if err := tx.First(&page, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &store.NotFoundError{Kind: "page", ID: id.String()}
			}
			return err
		}
		if update.Slug != nil && *update.Slug != page.Slug {
			var n int64
			if err := tx.Model(&models.Page{}).Where("slug = ? AND id <> ?", *update.Slug, id).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				return store.ErrSlugTaken(*update.Slug)
			}
			page.Slug = *update.Slug
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
		return tx.Save(&page).Error
	})
	if err != nil {
		return nil, err
	}
	return &page, nil
}

func (s *PostgresStore) DeletePage(ctx context.Context, id models.PageID) (bool, error) {
	deleted := false
	err := s.write(ctx, func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Page{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		blockIDs := tx.Model(&models.Block{}).Select("id").Where("page_id = ?", id)
		if err := tx.Where("block_id IN (?)", blockIDs).Delete(&models.MediaAsset{}).Error; err != nil {
			return err
		}
		if err := tx.Where("page_id = ?", id).Delete(&models.Block{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.Page{}, "id = ?", id).Error; err != nil {
			return err
		}
		deleted = true
		return nil
	})
	return deleted, err
}

func (s *PostgresStore) ListPages(ctx context.Context) ([]*models.Page, error) {
	var pages []*models.Page
	err := s.db.WithContext(ctx).Order("\"order\", created_at").Find(&pages).Error
	return pages, err
}

// Block operations.

func (s *PostgresStore) CreateBlock(ctx context.Context, block *models.Block) error {
	return s.write(ctx, func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Page{}).Where("id = ?", block.PageID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return &store.NotFoundError{Kind: "page", ID: block.PageID.String()}
		}
		if block.ParentBlockID != nil {
			var parent models.Block
			if err := tx.First(&parent, "id = ?", *block.ParentBlockID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return store.ErrInvalidParent(block.ParentBlockID.String(), "does not exist")
				}
				return err
			}
			if parent.PageID != block.PageID {
				return store.ErrInvalidParent(block.ParentBlockID.String(), "is on a different page")
			}
		}
		return tx.Create(block).Error
	})
}

func (s *PostgresStore) GetBlock(ctx context.Context, id models.BlockID) (*models.Block, error) {
	var block models.Block
	err := s.db.WithContext(ctx).First(&block, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &block, nil
}

func (s *PostgresStore) UpdateBlock(ctx context.Context, id models.BlockID, update store.BlockUpdate) (*models.Block, error) {
	var block models.Block
	err := s.write(ctx, func(tx *gorm.DB) error {
		if err := tx.First(&block, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &store.NotFoundError{Kind: "block", ID: id.String()}
			}
			return err
		}

		targetPage := block.PageID
		if update.PageID != nil && *update.PageID != block.PageID {
			var children int64
			if err := tx.Model(&models.Block{}).Where("parent_block_id = ?", id).Count(&children).Error; err != nil {
				return err
			}
			if children > 0 {
				return store.ErrInvalidMove(id.String())
			}
			var n int64
			if err := tx.Model(&models.Page{}).Where("id = ?", *update.PageID).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return &store.NotFoundError{Kind: "page", ID: update.PageID.String()}
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
				return store.ErrSelfParent(id.String())
			}
			var parent models.Block
			if err := tx.First(&parent, "id = ?", *newParent).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return store.ErrInvalidParent(newParent.String(), "does not exist")
				}
				return err
			}
			// Climb the ancestor chain of the proposed parent; reaching the
			// block being moved means the move would close a cycle.
			cursor := &parent
			for cursor.ParentBlockID != nil {
				if *cursor.ParentBlockID == id {
					return store.ErrCycleDetected(id.String(), newParent.String())
				}
				var next models.Block
				if err := tx.First(&next, "id = ?", *cursor.ParentBlockID).Error; err != nil {
					return err
				}
				cursor = &next
			}
			if parent.PageID != targetPage {
				return store.ErrInvalidParent(newParent.String(), "is on a different page")
			}
		}

		block.ParentBlockID = newParent
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
		return tx.Save(&block).Error
	})
	if err != nil {
		return nil, err
	}
	return &block, nil
}

func (s *PostgresStore) DeleteBlock(ctx context.Context, id models.BlockID) (bool, error) {
	deleted := false
	err := s.write(ctx, func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Block{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		// Collect the subtree level by level.
		subtree := []models.BlockID{id}
		frontier := []models.BlockID{id}
		for len(frontier) > 0 {
			var next []models.BlockID
			if err := tx.Model(&models.Block{}).Where("parent_block_id IN (?)", frontier).Pluck("id", &next).Error; err != nil {
				return err
			}
			subtree = append(subtree, next...)
			frontier = next
		}
		if err := tx.Where("block_id IN (?)", subtree).Delete(&models.MediaAsset{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id IN (?)", subtree).Delete(&models.Block{}).Error; err != nil {
			return err
		}
		deleted = true
		return nil
	})
	return deleted, err
}

func (s *PostgresStore) ListTopLevelBlocks(ctx context.Context, pageID models.PageID) ([]*models.Block, error) {
	var blocks []*models.Block
	err := s.db.WithContext(ctx).
		Where("page_id = ? AND parent_block_id IS NULL", pageID).
		Order("\"order\", created_at").
		Find(&blocks).Error
	return blocks, err
}

func (s *PostgresStore) ListChildBlocks(ctx context.Context, parentID models.BlockID) ([]*models.Block, error) {
	var blocks []*models.Block
	err := s.db.WithContext(ctx).
		Where("parent_block_id = ?", parentID).
		Order("\"order\", created_at").
		Find(&blocks).Error
	return blocks, err
}

func (s *PostgresStore) ListBlocks(ctx context.Context, pageID models.PageID) ([]*models.Block, error) {
	var blocks []*models.Block
	err := s.db.WithContext(ctx).
		Where("page_id = ?", pageID).
		Order("\"order\", created_at").
		Find(&blocks).Error
	return blocks, err
}

// Media operations.

func (s *PostgresStore) CreateMedia(ctx context.Context, media *models.MediaAsset) error {
	return s.write(ctx, func(tx *gorm.DB) error {
		if media.BlockID != nil {
			var n int64
			if err := tx.Model(&models.Block{}).Where("id = ?", *media.BlockID).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return store.ErrInvalidParent(media.BlockID.String(), "does not exist")
			}
		}
		return tx.Create(media).Error
	})
}

func (s *PostgresStore) GetMedia(ctx context.Context, id models.MediaID) (*models.MediaAsset, error) {
	var media models.MediaAsset
	err := s.db.WithContext(ctx).First(&media, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &media, nil
}

func (s *PostgresStore) UpdateMedia(ctx context.Context, id models.MediaID, update store.MediaUpdate) (*models.MediaAsset, error) {
	var media models.MediaAsset
	err := s.write(ctx, func(tx *gorm.DB) error {
		if err := tx.First(&media, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &store.NotFoundError{Kind: "media", ID: id.String()}
			}
			return err
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
		return tx.Save(&media).Error
	})
	if err != nil {
		return nil, err
	}
	return &media, nil
}

func (s *PostgresStore) DeleteMedia(ctx context.Context, id models.MediaID) (bool, error) {
	deleted := false
	err := s.write(ctx, func(tx *gorm.DB) error {
		result := tx.Delete(&models.MediaAsset{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected > 0
		return nil
	})
	return deleted, err
}

func (s *PostgresStore) ListMedia(ctx context.Context, blockID models.BlockID) ([]*models.MediaAsset, error) {
	var assets []*models.MediaAsset
	err := s.db.WithContext(ctx).
		Where("block_id = ?", blockID).
		Order("\"order\", created_at").
		Find(&assets).Error
	return assets, err
}

func (s *PostgresStore) ReorderMedia(ctx context.Context, blockID models.BlockID, mediaIDs []models.MediaID) error {
	return s.write(ctx, func(tx *gorm.DB) error {
		for i, mediaID := range mediaIDs {
			result := tx.Model(&models.MediaAsset{}).
				Where("id = ? AND block_id = ?", mediaID, blockID).
				Update("order", i)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				var n int64
				if err := tx.Model(&models.MediaAsset{}).Where("id = ?", mediaID).Count(&n).Error; err != nil {
					return err
				}
				if n == 0 {
					return &store.NotFoundError{Kind: "media", ID: mediaID.String()}
				}
				return store.ErrInvalidParent(blockID.String(), "does not own media "+mediaID.String())
			}
		}
		return nil
	})
}
