package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/socialnet/backend/internal/config"
	"github.com/socialnet/backend/internal/db"
	"github.com/socialnet/backend/internal/repositories"
)

func newMigrateCommand() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	migrateCmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runMigrations(cmd.Context(), cmd, "up")
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runMigrations(cmd.Context(), cmd, "down")
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runMigrations(cmd.Context(), cmd, "version")
			},
		},
	)

	return migrateCmd
}

func runMigrations(ctx context.Context, cmd *cobra.Command, command string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	switch cfg.Store.Driver {
	case config.StoreDriverMongo:
		return migrateMongo(ctx, cmd, cfg.Store, command)
	case config.StoreDriverPostgres:
	default:
		return fmt.Errorf("store driver %q has no schema to migrate", cfg.Store.Driver)
	}

	sourceURL, err := migrationSourceURL(cfg.MigrationDir)
	if err != nil {
		return err
	}

	migrator, err := migrate.New(sourceURL, cfg.Store.DatabaseURL)
	if err != nil {
		return fmt.Errorf("init migrator: %w", err)
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	switch command {
	case "up":
		err = migrator.Up()
	case "down":
		err = migrator.Steps(-1)
	case "version":
		version, dirty, verr := migrator.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			cmd.Println("no migrations applied")
			return nil
		}
		if verr != nil {
			return fmt.Errorf("read schema version: %w", verr)
		}
		cmd.Printf("version %d (dirty: %t)\n", version, dirty)
		return nil
	default:
		return fmt.Errorf("unknown migrate command %q", command)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		cmd.Println("schema is up to date")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", command, err)
	}
	cmd.Printf("migrate %s complete\n", command)
	return nil
}

// migrateMongo has no versioned schema; "up" creates the indexes the store
// relies on for uniqueness and revocation expiry.
func migrateMongo(ctx context.Context, cmd *cobra.Command, cfg config.StoreConfig, command string) error {
	if command != "up" {
		return fmt.Errorf("migrate %s is not supported for the mongo store", command)
	}

	client, database, err := db.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return err
	}
	store := repositories.NewMongoStore(client, database)
	defer func() { _ = store.Close(context.Background()) }()

	if err := store.EnsureIndexes(ctx); err != nil {
		return err
	}
	cmd.Println("mongo indexes ensured")
	return nil
}

func migrationSourceURL(dir string) (string, error) {
	if !filepath.IsAbs(dir) {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("determine working directory: %w", err)
		}
		dir = filepath.Join(wd, dir)
	}
	if _, err := os.Stat(dir); err != nil {
		return "", fmt.Errorf("migrations directory: %w", err)
	}
	return "file://" + filepath.ToSlash(dir), nil
}
