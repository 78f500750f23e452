package notetree

import (
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/notetree/notetree/pkg/batch"
	"github.com/notetree/notetree/pkg/events"
	"github.com/notetree/notetree/pkg/store"
	"github.com/notetree/notetree/pkg/store/memory"
	"github.com/notetree/notetree/pkg/store/postgres"
)

// StoreBackend selects the persistence implementation.
type StoreBackend string

const (
	BackendMemory   StoreBackend = "memory"
	BackendPostgres StoreBackend = "postgres"
)

// Config holds application configuration.
// A production system would add TLS settings, connection pool configuration,
// and rate limiting.
type Config struct {
	// Backend selects memory or postgres storage.
	Backend StoreBackend

	// PostgresDSN is required when Backend is postgres.
	PostgresDSN string

	// ServerPort is the HTTP listen port.
	ServerPort string

	// ReadOnly starts the application in maintenance mode: reads succeed,
	// writes are rejected. Toggleable at runtime via App.SetReadOnly.
	ReadOnly bool

	// AuthToken, when non-empty, requires every mutating request to carry it
	// as a bearer token. Empty disables authentication.
	AuthToken string

	// MediaDir is where uploaded media files are written.
	MediaDir string
}

// App holds the application state: the store, the batch processor, the event
// broadcaster, and the viewer registry.
type App struct {
	store       store.Store
	config      *Config
	log         zerolog.Logger
	broadcaster *events.Broadcaster
	processor   *batch.Processor
	auth        AuthGate
	media       MediaStore

	// commitMu serializes commit-then-publish sections so every viewer
	// observes events in commit order.
	commitMu sync.Mutex

	readOnlyMu sync.RWMutex
	readOnly   bool
}

// New creates a new application instance.
func New(config *Config) (*App, error) {
	log := zerolog.New(os.Stderr).With().Timestamp().Str("component", "notetree").Logger()

	var backing store.Store
	var err error
	switch config.Backend {
	case BackendPostgres:
		backing, err = postgres.NewPostgresStore(config.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		log.Info().Msg("connected to PostgreSQL")
	case BackendMemory, "":
		backing = memory.NewMemoryStore()
		log.Info().Msg("using in-memory store")
	default:
		return nil, fmt.Errorf("unknown store backend %q", config.Backend)
	}

	app := &App{
		config:      config,
		log:         log,
		broadcaster: events.NewBroadcaster(log.With().Str("component", "broadcaster").Logger()),
		readOnly:    config.ReadOnly,
	}
	app.store = store.NewReadOnlyStore(backing, app.IsReadOnly)
	app.processor = batch.NewProcessor(app.store, log.With().Str("component", "batch").Logger())

	if config.AuthToken != "" {
		app.auth = BearerTokenGate{Token: config.AuthToken}
	} else {
		app.auth = AllowAllGate{}
	}

	mediaDir := config.MediaDir
	if mediaDir == "" {
		mediaDir = "media"
	}
	app.media = &FilesystemMediaStore{Dir: mediaDir, BaseURL: "/media"}

	return app, nil
}

// Close releases the application's resources.
func (a *App) Close() error {
	a.broadcaster.Close()
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}

// Store returns the store, wrapped with read-only protection. Useful for
// tests that seed data directly.
func (a *App) Store() store.Store {
	return a.store
}

// Broadcaster returns the event broadcaster.
func (a *App) Broadcaster() *events.Broadcaster {
	return a.broadcaster
}

// SetReadOnly toggles maintenance mode at runtime.
func (a *App) SetReadOnly(readOnly bool) {
	a.readOnlyMu.Lock()
	defer a.readOnlyMu.Unlock()
	a.readOnly = readOnly
	a.log.Info().Bool("read_only", readOnly).Msg("read-only mode changed")
}

// IsReadOnly reports whether the application is in maintenance mode.
func (a *App) IsReadOnly() bool {
	a.readOnlyMu.RLock()
	defer a.readOnlyMu.RUnlock()
	return a.readOnly
}

// publish hands committed change events to the broadcaster. Callers hold
// commitMu across their store commit and this call.
func (a *App) publish(evs ...events.Event) {
	a.broadcaster.Publish(evs...)
}

// getEnv reads an environment variable with a fallback.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
