package notetree

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/notetree/notetree/pkg/batch"
	"github.com/notetree/notetree/pkg/events"
	"github.com/notetree/notetree/pkg/models"
	"github.com/notetree/notetree/pkg/store"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondStoreError maps the error taxonomy onto HTTP statuses: missing
// records are 404, structural invariant breaches are 422, read-only mode is
// 503, anything else is 500.
func respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case store.IsNotFound(err):
		respondError(w, http.StatusNotFound, err.Error())
	case store.IsInvariantViolation(err):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, store.ErrReadOnly):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"read_only": a.IsReadOnly(),
		"viewers":   a.broadcaster.SubscriberCount(),
	})
}

// Page handlers

func (a *App) handleCreatePage(w http.ResponseWriter, r *http.Request) {
	var page models.Page
	if err := json.NewDecoder(r.Body).Decode(&page); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	ctx := r.Context()
	a.commitMu.Lock()
	defer a.commitMu.Unlock()
	if err := a.store.CreatePage(ctx, &page); err != nil {
		respondStoreError(w, err)
		return
	}
	a.publish(events.PageCreated(&page))

	respondJSON(w, http.StatusCreated, page)
}

func (a *App) handleGetPage(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParsePageID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid page ID")
		return
	}

	page, err := a.store.GetPage(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if page == nil {
		respondError(w, http.StatusNotFound, "Page not found")
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (a *App) handleGetPageBySlug(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]
	page, err := a.store.GetPageBySlug(r.Context(), slug)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if page == nil {
		respondError(w, http.StatusNotFound, "Page not found")
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (a *App) handleUpdatePage(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParsePageID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid page ID")
		return
	}
	var update store.PageUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	ctx := r.Context()
	a.commitMu.Lock()
	defer a.commitMu.Unlock()
	page, err := a.store.UpdatePage(ctx, id, update)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	a.publish(events.PageUpdated(page))

	respondJSON(w, http.StatusOK, page)
}

func (a *App) handleDeletePage(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParsePageID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid page ID")
		return
	}

	ctx := r.Context()
	a.commitMu.Lock()
	defer a.commitMu.Unlock()
	deleted, err := a.store.DeletePage(ctx, id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if !deleted {
		respondError(w, http.StatusNotFound, "Page not found")
		return
	}
	a.publish(events.PageDeleted(id))

	respondJSON(w, http.StatusNoContent, nil)
}

func (a *App) handleListPages(w http.ResponseWriter, r *http.Request) {
	pages, err := a.store.ListPages(r.Context())
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, pages)
}

// Block handlers

func (a *App) handleCreateBlock(w http.ResponseWriter, r *http.Request) {
	var block models.Block
	if err := json.NewDecoder(r.Body).Decode(&block); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if !block.Type.Valid() {
		respondError(w, http.StatusBadRequest, "Invalid block type")
		return
	}

	ctx := r.Context()
	a.commitMu.Lock()
	defer a.commitMu.Unlock()
	if err := a.store.CreateBlock(ctx, &block); err != nil {
		respondStoreError(w, err)
		return
	}
	a.publish(events.BlockCreated(&block))

	respondJSON(w, http.StatusCreated, block)
}

func (a *App) handleGetBlock(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseBlockID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid block ID")
		return
	}

	block, err := a.store.GetBlock(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if block == nil {
		respondError(w, http.StatusNotFound, "Block not found")
		return
	}
	respondJSON(w, http.StatusOK, block)
}

func (a *App) handleUpdateBlock(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseBlockID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid block ID")
		return
	}
	var update store.BlockUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if update.ClearParent && update.ParentBlockID != nil {
		respondError(w, http.StatusBadRequest, "Cannot both set and clear the parent")
		return
	}
	if update.Type != nil && !update.Type.Valid() {
		respondError(w, http.StatusBadRequest, "Invalid block type")
		return
	}

	ctx := r.Context()
	a.commitMu.Lock()
	defer a.commitMu.Unlock()
	block, err := a.store.UpdateBlock(ctx, id, update)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	a.publish(events.BlockUpdated(block))

	respondJSON(w, http.StatusOK, block)
}

func (a *App) handleDeleteBlock(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseBlockID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid block ID")
		return
	}

	ctx := r.Context()
	a.commitMu.Lock()
	defer a.commitMu.Unlock()
	block, err := a.store.GetBlock(ctx, id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if block == nil {
		respondError(w, http.StatusNotFound, "Block not found")
		return
	}
	if _, err := a.store.DeleteBlock(ctx, id); err != nil {
		respondStoreError(w, err)
		return
	}
	a.publish(events.BlockDeleted(id, block.PageID))

	respondJSON(w, http.StatusNoContent, nil)
}

func (a *App) handleListBlocks(w http.ResponseWriter, r *http.Request) {
	pageID, err := models.ParsePageID(mux.Vars(r)["pageId"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid page ID")
		return
	}
	blocks, err := a.store.ListBlocks(r.Context(), pageID)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, blocks)
}

func (a *App) handleListTopLevelBlocks(w http.ResponseWriter, r *http.Request) {
	pageID, err := models.ParsePageID(mux.Vars(r)["pageId"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid page ID")
		return
	}
	blocks, err := a.store.ListTopLevelBlocks(r.Context(), pageID)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, blocks)
}

func (a *App) handleListChildBlocks(w http.ResponseWriter, r *http.Request) {
	parentID, err := models.ParseBlockID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid block ID")
		return
	}
	blocks, err := a.store.ListChildBlocks(r.Context(), parentID)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, blocks)
}

// Media handlers

func (a *App) handleCreateMedia(w http.ResponseWriter, r *http.Request) {
	var media models.MediaAsset
	if err := json.NewDecoder(r.Body).Decode(&media); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if !media.Position.Valid() {
		respondError(w, http.StatusBadRequest, "Invalid media position")
		return
	}

	ctx := r.Context()
	a.commitMu.Lock()
	defer a.commitMu.Unlock()
	if err := a.store.CreateMedia(ctx, &media); err != nil {
		respondStoreError(w, err)
		return
	}
	a.publish(events.MediaCreated(&media))

	respondJSON(w, http.StatusCreated, media)
}

func (a *App) handleGetMedia(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseMediaID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid media ID")
		return
	}

	media, err := a.store.GetMedia(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if media == nil {
		respondError(w, http.StatusNotFound, "Media not found")
		return
	}
	respondJSON(w, http.StatusOK, media)
}

func (a *App) handleUpdateMedia(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseMediaID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid media ID")
		return
	}
	var update store.MediaUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if update.Position != nil && !update.Position.Valid() {
		respondError(w, http.StatusBadRequest, "Invalid media position")
		return
	}

	ctx := r.Context()
	a.commitMu.Lock()
	defer a.commitMu.Unlock()
	media, err := a.store.UpdateMedia(ctx, id, update)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	a.publish(events.MediaUpdated(media))

	respondJSON(w, http.StatusOK, media)
}

func (a *App) handleDeleteMedia(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseMediaID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid media ID")
		return
	}

	ctx := r.Context()
	a.commitMu.Lock()
	defer a.commitMu.Unlock()
	deleted, err := a.store.DeleteMedia(ctx, id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if !deleted {
		respondError(w, http.StatusNotFound, "Media not found")
		return
	}
	a.publish(events.MediaDeleted(id))

	respondJSON(w, http.StatusNoContent, nil)
}

func (a *App) handleListMedia(w http.ResponseWriter, r *http.Request) {
	blockID, err := models.ParseBlockID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid block ID")
		return
	}
	media, err := a.store.ListMedia(r.Context(), blockID)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, media)
}

func (a *App) handleReorderMedia(w http.ResponseWriter, r *http.Request) {
	blockID, err := models.ParseBlockID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid block ID")
		return
	}
	var body struct {
		MediaIDs []models.MediaID `json:"media_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	ctx := r.Context()
	a.commitMu.Lock()
	defer a.commitMu.Unlock()
	if err := a.store.ReorderMedia(ctx, blockID, body.MediaIDs); err != nil {
		respondStoreError(w, err)
		return
	}
	a.publish(events.MediaReordered(blockID, body.MediaIDs))

	respondJSON(w, http.StatusOK, map[string]string{"status": "reordered"})
}

// handleUploadMedia accepts a multipart upload, stores the payload through
// the media store, and creates the asset record pointing at it.
func (a *App) handleUploadMedia(w http.ResponseWriter, r *http.Request) {
	const maxUpload = 32 << 20
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid multipart payload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Missing file field")
		return
	}
	defer file.Close()

	media := models.MediaAsset{Position: models.MediaPositionBottom}
	if v := r.FormValue("block_id"); v != "" {
		blockID, err := models.ParseBlockID(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid block ID")
			return
		}
		media.BlockID = &blockID
	}
	if v := r.FormValue("position"); v != "" {
		pos := models.MediaPosition(v)
		if !pos.Valid() {
			respondError(w, http.StatusBadRequest, "Invalid media position")
			return
		}
		media.Position = pos
	}

	ctx := r.Context()
	url, size, err := a.media.Save(ctx, header.Filename, file)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	media.URL = url
	media.Size = size
	media.MimeType = header.Header.Get("Content-Type")

	a.commitMu.Lock()
	defer a.commitMu.Unlock()
	if err := a.store.CreateMedia(ctx, &media); err != nil {
		respondStoreError(w, err)
		return
	}
	a.publish(events.MediaCreated(&media))

	respondJSON(w, http.StatusCreated, media)
}

// Batch handler

func (a *App) handleBatch(w http.ResponseWriter, r *http.Request) {
	var b batch.Batch
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	ctx := r.Context()
	a.commitMu.Lock()
	defer a.commitMu.Unlock()
	outcome, err := a.processor.Execute(ctx, b)
	if err != nil {
		if batch.IsValidationError(err) {
			respondJSON(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "details": err})
			return
		}
		respondStoreError(w, err)
		return
	}
	a.publish(outcome.Events...)

	respondJSON(w, http.StatusOK, outcome)
}

// Admin handlers

func (a *App) handleGetMode(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]bool{"read_only": a.IsReadOnly()})
}

func (a *App) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ReadOnly bool `json:"read_only"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	a.SetReadOnly(body.ReadOnly)
	respondJSON(w, http.StatusOK, map[string]bool{"read_only": body.ReadOnly})
}
