package notetree

import (
	"flag"
	"fmt"
)

// Parse parses command line arguments into the command to execute and the
// shared application configuration. Environment variables provide defaults:
//
//	NOTETREE_POSTGRES_DSN - PostgreSQL connection string
//	NOTETREE_PORT         - HTTP listen port (default 8080)
//	NOTETREE_AUTH_TOKEN   - bearer token required for mutations (empty disables auth)
//	NOTETREE_MEDIA_DIR    - upload directory (default "media")
func Parse(args []string) (Command, *Config, error) {
	flagSet := flag.NewFlagSet("notetree", flag.ContinueOnError)

	var (
		backend   = flagSet.String("store", "memory", "Store backend: memory or postgres")
		dsn       = flagSet.String("postgres-dsn", getEnv("NOTETREE_POSTGRES_DSN", ""), "PostgreSQL connection string")
		port      = flagSet.String("port", getEnv("NOTETREE_PORT", "8080"), "Server port")
		authToken = flagSet.String("auth-token", getEnv("NOTETREE_AUTH_TOKEN", ""), "Bearer token required for mutations")
		mediaDir  = flagSet.String("media-dir", getEnv("NOTETREE_MEDIA_DIR", "media"), "Directory for uploaded media")
		readOnly  = flagSet.Bool("read-only", false, "Start in read-only (maintenance) mode")
	)

	if err := flagSet.Parse(args); err != nil {
		return nil, nil, err
	}

	remainingArgs := flagSet.Args()
	if len(remainingArgs) == 0 {
		return nil, nil, fmt.Errorf(`subcommand required

Usage: notetree [flags] <command>

Commands:
  run       Start the notetree server
  migrate   Run database schema migrations

Examples:
  notetree run                                   # In-memory store
  notetree -store postgres run                   # PostgreSQL store
  notetree -store postgres migrate               # Create the schema
  notetree -port 8090 -auth-token secret run     # Custom port, auth required
  notetree -read-only run                        # Maintenance mode`)
	}

	config := &Config{
		Backend:     StoreBackend(*backend),
		PostgresDSN: *dsn,
		ServerPort:  *port,
		AuthToken:   *authToken,
		MediaDir:    *mediaDir,
		ReadOnly:    *readOnly,
	}
	if config.Backend == BackendPostgres && config.PostgresDSN == "" {
		return nil, nil, fmt.Errorf("postgres backend requires -postgres-dsn or NOTETREE_POSTGRES_DSN")
	}

	var cmd Command
	switch remainingArgs[0] {
	case "run":
		cmd = &RunCommand{}
	case "migrate":
		cmd = &MigrateCommand{}
	default:
		return nil, nil, fmt.Errorf("unknown command: %s\n\nValid commands: run, migrate", remainingArgs[0])
	}

	return cmd, config, nil
}
