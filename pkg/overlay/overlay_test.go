package overlay

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notetree/notetree/pkg/batch"
	"github.com/notetree/notetree/pkg/events"
	"github.com/notetree/notetree/pkg/models"
	"github.com/notetree/notetree/pkg/store"
)

type committerFunc func(ctx context.Context, b batch.Batch) (*batch.Outcome, error)

func (f committerFunc) SubmitBatch(ctx context.Context, b batch.Batch) (*batch.Outcome, error) {
	return f(ctx, b)
}

func TestStageLastWriteWinsKeepsPosition(t *testing.T) {
	s := NewSession(zerolog.Nop())
	first := models.NewBlockID()
	second := models.NewBlockID()

	stageText(t, s, first, "draft one")
	stageText(t, s, second, "other block")
	stageText(t, s, first, "draft two") // replaces, does not append

	ops := s.Pending()
	require.Len(t, ops, 2)
	// The first block keeps its original slot with the newest payload.
	assert.Equal(t, first, *ops[0].BlockID)
	assert.Equal(t, "draft two", ops[0].UpdateBlock.Content["text"])
	assert.Equal(t, second, *ops[1].BlockID)
}

func TestStageGeneratesClientIDsForCreates(t *testing.T) {
	s := NewSession(zerolog.Nop())

	key, err := s.Stage(batch.Operation{
		Type:       batch.OpPageCreate,
		CreatePage: &batch.PageCreate{Title: "New", Slug: "new"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, key.ID)

	ops := s.Pending()
	require.Len(t, ops, 1)
	assert.False(t, ops[0].CreatePage.ID.IsZero())
	assert.Equal(t, ops[0].CreatePage.ID.String(), key.ID)
}

func TestCommitDrainsExactlyTheSubmittedEdits(t *testing.T) {
	s := NewSession(zerolog.Nop())
	committed := models.NewBlockID()
	midCommit := models.NewBlockID()

	stageText(t, s, committed, "before commit")

	var sawOps int
	committer := committerFunc(func(ctx context.Context, b batch.Batch) (*batch.Outcome, error) {
		sawOps = len(b.Operations)
		// A new edit lands while the request is in flight.
		stageText(t, s, midCommit, "typed during commit")
		return &batch.Outcome{}, nil
	})

	outcome, err := s.Commit(context.Background(), committer)
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.Equal(t, 1, sawOps)

	// Only the mid-commit edit survives.
	ops := s.Pending()
	require.Len(t, ops, 1)
	assert.Equal(t, midCommit, *ops[0].BlockID)
	assert.True(t, s.Dirty())
}

func TestCommitRetainsReStagedEditUnderSameKey(t *testing.T) {
	s := NewSession(zerolog.Nop())
	block := models.NewBlockID()
	stageText(t, s, block, "v1")

	committer := committerFunc(func(ctx context.Context, b batch.Batch) (*batch.Outcome, error) {
		// The user keeps typing into the same block while v1 commits.
		stageText(t, s, block, "v2")
		return &batch.Outcome{}, nil
	})

	_, err := s.Commit(context.Background(), committer)
	require.NoError(t, err)

	ops := s.Pending()
	require.Len(t, ops, 1)
	assert.Equal(t, "v2", ops[0].UpdateBlock.Content["text"])
}

func TestCommitFailureRetainsEverything(t *testing.T) {
	s := NewSession(zerolog.Nop())
	stageText(t, s, models.NewBlockID(), "a")
	stageText(t, s, models.NewBlockID(), "b")

	boom := errors.New("server rejected batch")
	_, err := s.Commit(context.Background(), committerFunc(func(ctx context.Context, b batch.Batch) (*batch.Outcome, error) {
		return nil, boom
	}))
	require.ErrorIs(t, err, boom)
	assert.Len(t, s.Pending(), 2)
}

func TestCommitGuards(t *testing.T) {
	s := NewSession(zerolog.Nop())

	_, err := s.Commit(context.Background(), committerFunc(func(ctx context.Context, b batch.Batch) (*batch.Outcome, error) {
		return &batch.Outcome{}, nil
	}))
	assert.ErrorIs(t, err, ErrNothingToCommit)

	stageText(t, s, models.NewBlockID(), "a")
	inner := make(chan error, 1)
	committer := committerFunc(func(ctx context.Context, b batch.Batch) (*batch.Outcome, error) {
		// Second commit while the first is in flight.
		_, err := s.Commit(ctx, committerFunc(func(context.Context, batch.Batch) (*batch.Outcome, error) {
			return &batch.Outcome{}, nil
		}))
		inner <- err
		return &batch.Outcome{}, nil
	})
	_, err = s.Commit(context.Background(), committer)
	require.NoError(t, err)
	assert.ErrorIs(t, <-inner, ErrCommitInProgress)
}

func TestResolvedAppliesPendingOverAuthoritative(t *testing.T) {
	s := NewSession(zerolog.Nop())
	page := &models.Page{ID: models.NewPageID(), Title: "Notes", Slug: "notes"}
	block := &models.Block{ID: models.NewBlockID(), PageID: page.ID, Type: models.BlockTypeText, Content: models.JSONMap{"text": "server"}}
	s.SetAuthoritative([]*models.Page{page}, []*models.Block{block}, nil)

	stageText(t, s, block.ID, "local edit")

	blocks := s.ResolvedBlocks(page.ID)
	require.Len(t, blocks, 1)
	assert.Equal(t, "local edit", blocks[0].Content["text"])

	// The authoritative cache itself is untouched.
	s.Discard(Key{Type: ItemBlock, ID: block.ID.String()})
	blocks = s.ResolvedBlocks(page.ID)
	require.Len(t, blocks, 1)
	assert.Equal(t, "server", blocks[0].Content["text"])
}

func TestApplyEventReconciliation(t *testing.T) {
	s := NewSession(zerolog.Nop())
	page := &models.Page{ID: models.NewPageID(), Title: "Notes", Slug: "notes"}
	mine := &models.Block{ID: models.NewBlockID(), PageID: page.ID, Type: models.BlockTypeText, Content: models.JSONMap{"text": "server"}}
	theirs := &models.Block{ID: models.NewBlockID(), PageID: page.ID, Type: models.BlockTypeText, Order: 1}
	s.SetAuthoritative([]*models.Page{page}, []*models.Block{mine, theirs}, nil)

	stageText(t, s, mine.ID, "local edit")

	// A remote update to the locally edited block: the local version keeps
	// winning in the render until the commit drains it.
	remote := *mine
	remote.Content = models.JSONMap{"text": "remote edit"}
	s.ApplyEvent(events.Event{Type: events.EventBlockUpdated, Block: &remote})

	blocks := s.ResolvedBlocks(page.ID)
	require.Len(t, blocks, 2)
	assert.Equal(t, "local edit", blocks[0].Content["text"])

	// A remote delete of the locally edited block drops the pending edit.
	s.ApplyEvent(events.Event{Type: events.EventBlockDeleted, BlockID: &mine.ID, PageID: &page.ID})
	assert.False(t, s.Dirty())
	blocks = s.ResolvedBlocks(page.ID)
	require.Len(t, blocks, 1)
	assert.Equal(t, theirs.ID, blocks[0].ID)
}

func TestApplyEventBlockDeleteCascadesInCache(t *testing.T) {
	s := NewSession(zerolog.Nop())
	page := &models.Page{ID: models.NewPageID(), Title: "N", Slug: "n"}
	root := &models.Block{ID: models.NewBlockID(), PageID: page.ID, Type: models.BlockTypeText}
	child := &models.Block{ID: models.NewBlockID(), PageID: page.ID, ParentBlockID: &root.ID, Type: models.BlockTypeText}
	asset := &models.MediaAsset{ID: models.NewMediaID(), BlockID: &child.ID, Position: models.MediaPositionBottom}
	s.SetAuthoritative([]*models.Page{page}, []*models.Block{root, child}, []*models.MediaAsset{asset})

	s.ApplyEvent(events.Event{Type: events.EventBlockDeleted, BlockID: &root.ID, PageID: &page.ID})

	assert.Empty(t, s.ResolvedBlocks(page.ID))
	assert.Empty(t, s.ResolvedMedia(child.ID))
}

func TestStagedPageDeleteCascadesInRender(t *testing.T) {
	s := NewSession(zerolog.Nop())
	page := &models.Page{ID: models.NewPageID(), Title: "N", Slug: "n"}
	block := &models.Block{ID: models.NewBlockID(), PageID: page.ID, Type: models.BlockTypeMedia}
	asset := &models.MediaAsset{ID: models.NewMediaID(), BlockID: &block.ID, Position: models.MediaPositionBottom}
	s.SetAuthoritative([]*models.Page{page}, []*models.Block{block}, []*models.MediaAsset{asset})

	_, err := s.Stage(batch.Operation{Type: batch.OpPageDelete, PageID: &page.ID})
	require.NoError(t, err)

	// The render drops the page's blocks and the media those blocks own,
	// matching what the committed delete will do server-side.
	assert.Empty(t, s.ResolvedPages())
	assert.Empty(t, s.ResolvedBlocks(page.ID))
	assert.Empty(t, s.ResolvedMedia(block.ID))
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	s := NewSession(zerolog.Nop())
	first := models.NewBlockID()
	stageText(t, s, first, "persisted")
	_, err := s.Stage(batch.Operation{
		Type:       batch.OpPageCreate,
		CreatePage: &batch.PageCreate{Title: "New", Slug: "new"},
	})
	require.NoError(t, err)

	data, err := s.Snapshot()
	require.NoError(t, err)

	restored := NewSession(zerolog.Nop())
	require.NoError(t, restored.Restore(data))

	ops := restored.Pending()
	require.Len(t, ops, 2)
	assert.Equal(t, batch.OpBlockUpdate, ops[0].Type)
	assert.Equal(t, first, *ops[0].BlockID)
	assert.Equal(t, "persisted", ops[0].UpdateBlock.Content["text"])
	assert.Equal(t, batch.OpPageCreate, ops[1].Type)
	assert.False(t, ops[1].CreatePage.ID.IsZero())
}

// stageText stages a block content update.
func stageText(t *testing.T, s *Session, id models.BlockID, text string) {
	t.Helper()
	_, err := s.Stage(batch.Operation{
		Type:        batch.OpBlockUpdate,
		BlockID:     &id,
		UpdateBlock: &store.BlockUpdate{Content: models.JSONMap{"text": text}},
	})
	require.NoError(t, err)
}
