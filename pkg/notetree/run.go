package notetree

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// Router builds the HTTP routing table:
//
//	GET    /api/health                         - service health
//	GET    /api/events                         - WebSocket event stream
//
//	POST   /api/pages                          - create page
//	GET    /api/pages                          - list pages
//	GET    /api/pages/slug/{slug}              - get page by slug
//	GET    /api/pages/{id}                     - get page
//	PUT    /api/pages/{id}                     - partial update
//	DELETE /api/pages/{id}                     - delete page with its blocks and media
//	GET    /api/pages/{pageId}/blocks          - all blocks of a page
//	GET    /api/pages/{pageId}/blocks/top-level - parentless blocks of a page
//
//	POST   /api/blocks                         - create block
//	GET    /api/blocks/{id}                    - get block
//	PUT    /api/blocks/{id}                    - partial update (content, order, parent, page)
//	DELETE /api/blocks/{id}                    - delete block subtree
//	GET    /api/blocks/{id}/children           - direct children
//	GET    /api/blocks/{id}/media              - block's media assets
//	PUT    /api/blocks/{id}/media/reorder      - rewrite media sibling order
//
//	POST   /api/media                          - create media record
//	POST   /api/media/upload                   - multipart upload plus record
//	GET    /api/media/{id}                     - get media record
//	PUT    /api/media/{id}                     - partial update of display attributes
//	DELETE /api/media/{id}                     - delete media record
//
//	POST   /api/batch                          - atomic multi-operation mutation
//
//	GET    /api/admin/mode                     - read-only state
//	POST   /api/admin/mode                     - toggle read-only state
//
// Mutating routes pass through the auth gate; reads and the event stream do
// not, so viewers work without credentials.
func (a *App) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(a.logRequests)
	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", a.handleHealth).Methods("GET")
	api.HandleFunc("/events", a.handleEvents).Methods("GET")

	api.HandleFunc("/pages", a.requireAuth(a.handleCreatePage)).Methods("POST")
	api.HandleFunc("/pages", a.handleListPages).Methods("GET")
	api.HandleFunc("/pages/slug/{slug}", a.handleGetPageBySlug).Methods("GET")
	api.HandleFunc("/pages/{id}", a.handleGetPage).Methods("GET")
	api.HandleFunc("/pages/{id}", a.requireAuth(a.handleUpdatePage)).Methods("PUT")
	api.HandleFunc("/pages/{id}", a.requireAuth(a.handleDeletePage)).Methods("DELETE")
	api.HandleFunc("/pages/{pageId}/blocks", a.handleListBlocks).Methods("GET")
	api.HandleFunc("/pages/{pageId}/blocks/top-level", a.handleListTopLevelBlocks).Methods("GET")

	api.HandleFunc("/blocks", a.requireAuth(a.handleCreateBlock)).Methods("POST")
	api.HandleFunc("/blocks/{id}", a.handleGetBlock).Methods("GET")
	api.HandleFunc("/blocks/{id}", a.requireAuth(a.handleUpdateBlock)).Methods("PUT")
	api.HandleFunc("/blocks/{id}", a.requireAuth(a.handleDeleteBlock)).Methods("DELETE")
	api.HandleFunc("/blocks/{id}/children", a.handleListChildBlocks).Methods("GET")
	api.HandleFunc("/blocks/{id}/media", a.handleListMedia).Methods("GET")
	api.HandleFunc("/blocks/{id}/media/reorder", a.requireAuth(a.handleReorderMedia)).Methods("PUT")

	api.HandleFunc("/media", a.requireAuth(a.handleCreateMedia)).Methods("POST")
	api.HandleFunc("/media/upload", a.requireAuth(a.handleUploadMedia)).Methods("POST")
	api.HandleFunc("/media/{id}", a.handleGetMedia).Methods("GET")
	api.HandleFunc("/media/{id}", a.requireAuth(a.handleUpdateMedia)).Methods("PUT")
	api.HandleFunc("/media/{id}", a.requireAuth(a.handleDeleteMedia)).Methods("DELETE")

	api.HandleFunc("/batch", a.requireAuth(a.handleBatch)).Methods("POST")

	api.HandleFunc("/admin/mode", a.handleGetMode).Methods("GET")
	api.HandleFunc("/admin/mode", a.requireAuth(a.handleSetMode)).Methods("POST")

	return router
}

// logRequests logs method, path, and duration for every request.
func (a *App) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		a.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// Run starts the HTTP server and blocks until ctx is cancelled or the server
// fails. Graceful shutdown allows up to 5 seconds for in-flight requests.
func (a *App) Run(ctx context.Context, cmd *RunCommand) error {
	addr := fmt.Sprintf(":%s", a.config.ServerPort)
	server := &http.Server{
		Addr:    addr,
		Handler: a.Router(),
	}

	a.log.Info().Str("addr", addr).Str("backend", string(a.config.Backend)).Msg("starting server")

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.broadcaster.Close()
		return server.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}
