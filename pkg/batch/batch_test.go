package batch

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notetree/notetree/pkg/events"
	"github.com/notetree/notetree/pkg/models"
	"github.com/notetree/notetree/pkg/store"
	"github.com/notetree/notetree/pkg/store/memory"
)

func newProcessor(t *testing.T) (*Processor, store.Store) {
	t.Helper()
	s := memory.NewMemoryStore()
	t.Cleanup(func() { _ = s.Close() })
	return NewProcessor(s, zerolog.Nop()), s
}

func seedPage(t *testing.T, s store.Store, slug string) *models.Page {
	t.Helper()
	page := &models.Page{Title: slug, Slug: slug, Active: true}
	require.NoError(t, s.CreatePage(context.Background(), page))
	return page
}

func seedBlock(t *testing.T, s store.Store, pageID models.PageID) *models.Block {
	t.Helper()
	block := &models.Block{PageID: pageID, Type: models.BlockTypeText}
	require.NoError(t, s.CreateBlock(context.Background(), block))
	return block
}

func TestValidateRejectsEmptyBatch(t *testing.T) {
	err := Batch{}.Validate()
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestValidateCollectsFieldErrors(t *testing.T) {
	b := Batch{Operations: []Operation{
		{Type: "page_rename"},
		{Type: OpPageCreate, CreatePage: &PageCreate{Title: "", Slug: ""}},
		{Type: OpBlockUpdate},
		{Type: OpBlockCreate, CreateBlock: &BlockCreate{Type: "banner"}},
	}}
	err := b.Validate()
	require.Error(t, err)

	verrs, ok := err.(ValidationErrors)
	require.True(t, ok)

	fields := make(map[string][]int)
	for _, v := range verrs {
		fields[v.Field] = append(fields[v.Field], v.Index)
	}
	assert.Equal(t, []int{0}, fields["type"])
	assert.Equal(t, []int{1}, fields["create_page.title"])
	assert.Equal(t, []int{1}, fields["create_page.slug"])
	assert.Equal(t, []int{2}, fields["block_id"])
	assert.Equal(t, []int{2}, fields["update_block"])
	assert.Equal(t, []int{3}, fields["create_block.type"])
}

func TestValidateRejectsSetAndClearParent(t *testing.T) {
	blockID := models.NewBlockID()
	parentID := models.NewBlockID()
	b := Batch{Operations: []Operation{{
		Type:        OpBlockUpdate,
		BlockID:     &blockID,
		UpdateBlock: &store.BlockUpdate{ParentBlockID: &parentID, ClearParent: true},
	}}}
	err := b.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot both set and clear")
}

func TestExecuteAppliesInOrderWithClientIDs(t *testing.T) {
	p, s := newProcessor(t)
	ctx := context.Background()

	// All ids are client-generated, so later operations can reference
	// records created earlier in the same batch.
	pageID := models.NewPageID()
	blockID := models.NewBlockID()
	b := Batch{Operations: []Operation{
		{Type: OpPageCreate, CreatePage: &PageCreate{ID: pageID, Title: "Notes", Slug: "notes", Active: true}},
		{Type: OpBlockCreate, CreateBlock: &BlockCreate{ID: blockID, PageID: pageID, Type: models.BlockTypeText, Content: models.JSONMap{"text": "hi"}}},
		{Type: OpMediaCreate, CreateMedia: &MediaCreate{BlockID: &blockID, Position: models.MediaPositionRight, MimeType: "image/png", URL: "/m.png"}},
	}}

	outcome, err := p.Execute(ctx, b)
	require.NoError(t, err)
	require.Len(t, outcome.Results, 3)
	assert.Equal(t, pageID, outcome.Results[0].Page.ID)
	assert.Equal(t, blockID, outcome.Results[1].Block.ID)
	require.NotNil(t, outcome.Results[2].Media)

	assert.Equal(t, []models.PageID{pageID}, outcome.AffectedPageIDs)

	// Per-operation events in order, then the aggregate.
	require.Len(t, outcome.Events, 4)
	assert.Equal(t, events.EventPageCreated, outcome.Events[0].Type)
	assert.Equal(t, events.EventBlockCreated, outcome.Events[1].Type)
	assert.Equal(t, events.EventMediaCreated, outcome.Events[2].Type)
	assert.Equal(t, events.EventBatchOperation, outcome.Events[3].Type)
	assert.Equal(t, []models.PageID{pageID}, outcome.Events[3].AffectedPageIDs)

	// The batch is committed.
	page, err := s.GetPage(ctx, pageID)
	require.NoError(t, err)
	require.NotNil(t, page)
}

func TestAggregateEventCarriesCommitTimestamp(t *testing.T) {
	p, _ := newProcessor(t)

	before := time.Now()
	outcome, err := p.Execute(context.Background(), Batch{Operations: []Operation{
		{Type: OpPageCreate, CreatePage: &PageCreate{Title: "One", Slug: "one"}},
		{Type: OpPageCreate, CreatePage: &PageCreate{Title: "Two", Slug: "two"}},
	}})
	require.NoError(t, err)

	agg := outcome.Events[len(outcome.Events)-1]
	require.Equal(t, events.EventBatchOperation, agg.Type)
	assert.False(t, agg.Timestamp.Before(before))
	assert.False(t, agg.Timestamp.After(time.Now()))

	// The timestamp reaches viewers over the wire.
	frame, err := json.Marshal(agg)
	require.NoError(t, err)
	assert.Contains(t, string(frame), `"timestamp"`)
}

func TestExecuteSingleOperationHasNoAggregate(t *testing.T) {
	p, _ := newProcessor(t)

	outcome, err := p.Execute(context.Background(), Batch{Operations: []Operation{
		{Type: OpPageCreate, CreatePage: &PageCreate{Title: "Solo", Slug: "solo"}},
	}})
	require.NoError(t, err)
	require.Len(t, outcome.Events, 1)
	assert.Equal(t, events.EventPageCreated, outcome.Events[0].Type)
}

func TestExecuteMidBatchFailureRollsBackEverything(t *testing.T) {
	p, s := newProcessor(t)
	ctx := context.Background()
	page := seedPage(t, s, "existing")

	ghost := models.NewBlockID()
	newTitle := "Renamed"
	b := Batch{Operations: []Operation{
		{Type: OpPageUpdate, PageID: &page.ID, UpdatePage: &store.PageUpdate{Title: &newTitle}},
		{Type: OpBlockCreate, CreateBlock: &BlockCreate{PageID: page.ID, Type: models.BlockTypeText}},
		// References a block that does not exist: the whole batch must abort.
		{Type: OpBlockUpdate, BlockID: &ghost, UpdateBlock: &store.BlockUpdate{ClearParent: true}},
	}}

	outcome, err := p.Execute(ctx, b)
	require.Error(t, err)
	assert.Nil(t, outcome)
	assert.True(t, store.IsNotFound(err))

	// The first two operations were rolled back.
	got, err := s.GetPage(ctx, page.ID)
	require.NoError(t, err)
	assert.Equal(t, "existing", got.Title)
	blocks, err := s.ListBlocks(ctx, page.ID)
	require.NoError(t, err)
	assert.Empty(t, blocks)
}

func TestExecuteInvariantBreachAborts(t *testing.T) {
	p, s := newProcessor(t)
	ctx := context.Background()
	page := seedPage(t, s, "a")
	block := seedBlock(t, s, page.ID)

	b := Batch{Operations: []Operation{
		{Type: OpBlockUpdate, BlockID: &block.ID, UpdateBlock: &store.BlockUpdate{ParentBlockID: &block.ID}},
	}}
	_, err := p.Execute(ctx, b)
	require.Error(t, err)
	assert.True(t, store.IsInvariantViolation(err))
}

func TestExecuteDeleteMissingIsNotFound(t *testing.T) {
	p, _ := newProcessor(t)

	ghost := models.NewMediaID()
	_, err := p.Execute(context.Background(), Batch{Operations: []Operation{
		{Type: OpMediaDelete, MediaID: &ghost},
	}})
	require.Error(t, err)
	assert.True(t, store.IsNotFound(err))
}

func TestExecuteMoveTouchesBothPages(t *testing.T) {
	p, s := newProcessor(t)
	ctx := context.Background()
	pageA := seedPage(t, s, "a")
	pageB := seedPage(t, s, "b")
	block := seedBlock(t, s, pageA.ID)

	b := Batch{Operations: []Operation{
		{Type: OpBlockUpdate, BlockID: &block.ID, UpdateBlock: &store.BlockUpdate{PageID: &pageB.ID}},
	}}
	outcome, err := p.Execute(ctx, b)
	require.NoError(t, err)
	assert.ElementsMatch(t, []models.PageID{pageA.ID, pageB.ID}, outcome.AffectedPageIDs)
	assert.Equal(t, pageA.ID, outcome.AffectedPageIDs[0], "source page is touched first")
}

func TestExecuteDeleteSubtreeEvents(t *testing.T) {
	p, s := newProcessor(t)
	ctx := context.Background()
	page := seedPage(t, s, "a")
	root := seedBlock(t, s, page.ID)
	child := &models.Block{PageID: page.ID, ParentBlockID: &root.ID, Type: models.BlockTypeText}
	require.NoError(t, s.CreateBlock(ctx, child))

	outcome, err := p.Execute(ctx, Batch{Operations: []Operation{
		{Type: OpBlockDelete, BlockID: &root.ID},
	}})
	require.NoError(t, err)
	require.Len(t, outcome.Events, 1)
	assert.Equal(t, events.EventBlockDeleted, outcome.Events[0].Type)

	// The cascade took the child with it.
	gone, err := s.GetBlock(ctx, child.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}
