package notetree

// Command is a discrete application operation with its specific
// configuration. Each implementation names itself for routing; the
// application layer dispatches execution to the matching [App] method.
type Command interface {
	// Name returns the command identifier used for routing.
	Name() string
}

// MigrateCommand initializes or updates the backing schema. For the memory
// backend it is a no-op; for PostgreSQL it runs GORM's AutoMigrate. Safe to
// run repeatedly.
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string { return "migrate" }

// RunCommand starts the HTTP server: the REST API, the atomic batch
// endpoint, and the WebSocket event stream. The server runs until the
// context is cancelled, then shuts down gracefully.
type RunCommand struct{}

func (c *RunCommand) Name() string { return "run" }
