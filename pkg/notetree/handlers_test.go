package notetree

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notetree/notetree/pkg/batch"
	"github.com/notetree/notetree/pkg/client"
	"github.com/notetree/notetree/pkg/events"
	"github.com/notetree/notetree/pkg/models"
	"github.com/notetree/notetree/pkg/store"
)

func newTestServer(t *testing.T, config *Config) (*App, *httptest.Server) {
	t.Helper()
	if config == nil {
		config = &Config{}
	}
	config.Backend = BackendMemory
	if config.MediaDir == "" {
		config.MediaDir = t.TempDir()
	}
	app, err := New(config)
	require.NoError(t, err)
	server := httptest.NewServer(app.Router())
	t.Cleanup(func() {
		server.Close()
		app.Close()
	})
	return app, server
}

func seedPage(t *testing.T, app *App, slug string) *models.Page {
	t.Helper()
	page := &models.Page{Title: slug, Slug: slug, Active: true}
	require.NoError(t, app.Store().CreatePage(context.Background(), page))
	return page
}

func TestPageCRUDOverHTTP(t *testing.T) {
	_, server := newTestServer(t, nil)
	c := client.NewClient(server.URL)
	ctx := context.Background()

	created, err := c.CreatePage(ctx, &models.Page{Title: "Home", Slug: "home", Active: true})
	require.NoError(t, err)
	require.False(t, created.ID.IsZero())

	got, err := c.GetPage(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Home", got.Title)

	bySlug, err := c.GetPageBySlug(ctx, "home")
	require.NoError(t, err)
	assert.Equal(t, created.ID, bySlug.ID)

	newTitle := "Home, renamed"
	updated, err := c.UpdatePage(ctx, created.ID, store.PageUpdate{Title: &newTitle})
	require.NoError(t, err)
	assert.Equal(t, newTitle, updated.Title)

	pages, err := c.ListPages(ctx)
	require.NoError(t, err)
	assert.Len(t, pages, 1)

	require.NoError(t, c.DeletePage(ctx, created.ID))

	_, err = c.GetPage(ctx, created.ID)
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestInvalidIDReturns400(t *testing.T) {
	_, server := newTestServer(t, nil)

	resp, err := http.Get(server.URL + "/api/pages/not-a-uuid")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestInvariantViolationReturns422(t *testing.T) {
	app, server := newTestServer(t, nil)
	c := client.NewClient(server.URL)
	ctx := context.Background()

	page := seedPage(t, app, "tree")
	block, err := c.CreateBlock(ctx, &models.Block{PageID: page.ID, Type: models.BlockTypeText})
	require.NoError(t, err)

	// Self-parenting is a structural violation, not a bad request.
	_, err = c.UpdateBlock(ctx, block.ID, store.BlockUpdate{ParentBlockID: &block.ID})
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)

	// A parent that does not exist also fails the same-page invariant.
	ghost := models.NewBlockID()
	_, err = c.CreateBlock(ctx, &models.Block{PageID: page.ID, ParentBlockID: &ghost, Type: models.BlockTypeText})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
}

func TestBearerTokenGuardsMutations(t *testing.T) {
	app, server := newTestServer(t, &Config{AuthToken: "sesame"})
	ctx := context.Background()

	// Without the token mutations are rejected, reads are not.
	anon := client.NewClient(server.URL)
	_, err := anon.CreatePage(ctx, &models.Page{Title: "X", Slug: "x"})
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	seedPage(t, app, "public")
	pages, err := anon.ListPages(ctx)
	require.NoError(t, err)
	assert.Len(t, pages, 1)

	authed := client.NewClient(server.URL)
	authed.SetAuthToken("sesame")
	_, err = authed.CreatePage(ctx, &models.Page{Title: "Y", Slug: "y", Active: true})
	require.NoError(t, err)
}

func TestReadOnlyModeReturns503(t *testing.T) {
	app, server := newTestServer(t, nil)
	c := client.NewClient(server.URL)
	ctx := context.Background()

	page := seedPage(t, app, "frozen")
	app.SetReadOnly(true)

	_, err := c.CreatePage(ctx, &models.Page{Title: "Nope", Slug: "nope"})
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)

	// Reads keep working in maintenance mode.
	got, err := c.GetPage(ctx, page.ID)
	require.NoError(t, err)
	assert.Equal(t, page.ID, got.ID)

	app.SetReadOnly(false)
	_, err = c.CreatePage(ctx, &models.Page{Title: "Yep", Slug: "yep", Active: true})
	require.NoError(t, err)
}

func TestAdminModeToggle(t *testing.T) {
	app, server := newTestServer(t, nil)

	resp, err := http.Post(server.URL+"/api/admin/mode", "application/json", strings.NewReader(`{"read_only": true}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, app.IsReadOnly())

	resp, err = http.Get(server.URL + "/api/admin/mode")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body["read_only"])
}

func TestBatchEndpointAppliesAtomically(t *testing.T) {
	_, server := newTestServer(t, nil)
	c := client.NewClient(server.URL)
	ctx := context.Background()

	pageID := models.NewPageID()
	blockID := models.NewBlockID()
	outcome, err := c.SubmitBatch(ctx, batch.Batch{Operations: []batch.Operation{
		{Type: batch.OpPageCreate, CreatePage: &batch.PageCreate{ID: pageID, Title: "Batched", Slug: "batched", Active: true}},
		{Type: batch.OpBlockCreate, CreateBlock: &batch.BlockCreate{ID: blockID, PageID: pageID, Type: models.BlockTypeText, Content: models.JSONMap{"text": "hi"}}},
	}})
	require.NoError(t, err)
	require.Len(t, outcome.Results, 2)
	assert.Equal(t, []models.PageID{pageID}, outcome.AffectedPageIDs)

	block, err := c.GetBlock(ctx, blockID)
	require.NoError(t, err)
	assert.Equal(t, pageID, block.PageID)
}

func TestBatchEndpointValidationReturns400(t *testing.T) {
	_, server := newTestServer(t, nil)
	c := client.NewClient(server.URL)

	_, err := c.SubmitBatch(context.Background(), batch.Batch{Operations: []batch.Operation{
		{Type: "page_explode"},
	}})
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "validation failed")
}

func TestBatchEndpointAbortPersistsNothing(t *testing.T) {
	_, server := newTestServer(t, nil)
	c := client.NewClient(server.URL)
	ctx := context.Background()

	ghost := models.NewBlockID()
	_, err := c.SubmitBatch(ctx, batch.Batch{Operations: []batch.Operation{
		{Type: batch.OpPageCreate, CreatePage: &batch.PageCreate{Title: "Doomed", Slug: "doomed"}},
		{Type: batch.OpBlockDelete, BlockID: &ghost},
	}})
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)

	pages, err := c.ListPages(ctx)
	require.NoError(t, err)
	assert.Empty(t, pages)
}

func TestWebSocketEventStream(t *testing.T) {
	_, server := newTestServer(t, nil)
	c := client.NewClient(server.URL)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/events"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	created, err := c.CreatePage(context.Background(), &models.Page{Title: "Live", Slug: "live", Active: true})
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev events.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, events.EventPageCreated, ev.Type)
	require.NotNil(t, ev.Page)
	assert.Equal(t, created.ID, ev.Page.ID)
}

func TestUploadMediaStoresFileAndRecord(t *testing.T) {
	app, server := newTestServer(t, nil)
	ctx := context.Background()

	page := seedPage(t, app, "gallery")
	block := &models.Block{PageID: page.ID, Type: models.BlockTypeMedia}
	require.NoError(t, app.Store().CreateBlock(ctx, block))

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", "photo.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("not really a png"))
	require.NoError(t, err)
	require.NoError(t, form.WriteField("block_id", block.ID.String()))
	require.NoError(t, form.WriteField("position", string(models.MediaPositionRight)))
	require.NoError(t, form.Close())

	resp, err := http.Post(server.URL+"/api/media/upload", form.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var media models.MediaAsset
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&media))
	assert.True(t, strings.HasPrefix(media.URL, "/media/"))
	assert.Equal(t, int64(len("not really a png")), media.Size)
	assert.Equal(t, models.MediaPositionRight, media.Position)

	assets, err := app.Store().ListMedia(ctx, block.ID)
	require.NoError(t, err)
	assert.Len(t, assets, 1)
}

func TestHealthEndpoint(t *testing.T) {
	_, server := newTestServer(t, nil)

	resp, err := http.Get(server.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, false, body["read_only"])
}
