package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/brewmetric/brewmetric-core/pkg/config"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var embedded embed.FS

// Dir returns the embedded migration directory for the configured driver.
func Dir(cfg config.DBConfig) string {
	if cfg.IsSQLite() {
		return "migrations/sqlite"
	}
	return "migrations/postgres"
}

func dialect(cfg config.DBConfig) string {
	if cfg.IsSQLite() {
		return "sqlite3"
	}
	return "postgres"
}

// Run executes a goose command against the embedded migrations for the
// configured driver.
func Run(ctx context.Context, db *sql.DB, cfg config.DBConfig, command string, args ...string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}

	goose.SetBaseFS(embedded)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(dialect(cfg)); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := goose.RunContext(ctx, command, db, Dir(cfg), args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// Up migrates the schema to the latest version.
func Up(ctx context.Context, db *sql.DB, cfg config.DBConfig) error {
	return Run(ctx, db, cfg, "up")
}
