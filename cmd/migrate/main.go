package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/vladislavdragonenkov/bookflow/internal/storage/postgres"
)

const defaultTimeout = 30 * time.Second

func main() {
	_ = godotenv.Load()

	var (
		direction string
		steps     int
		dsn       string
	)

	flag.StringVar(&direction, "direction", "up", "migration direction: up|down|status")
	flag.IntVar(&steps, "steps", 0, "number of migrations to apply/rollback (0=all for up, 1 for down)")
	flag.StringVar(&dsn, "dsn", "", "PostgreSQL DSN (fallback: BOOKFLOW_POSTGRES_DSN)")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	summary, err := run(ctx, direction, steps, dsn)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(summary)
}

// run выполняет миграционную команду и возвращает строку-итог.
func run(ctx context.Context, direction string, steps int, dsn string) (string, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("BOOKFLOW_POSTGRES_DSN"))
	}
	if dsn == "" {
		return "", fmt.Errorf("BOOKFLOW_POSTGRES_DSN (or -dsn) is required")
	}

	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		return "", fmt.Errorf("open postgres store: %w", err)
	}
	defer store.Close()

	switch strings.ToLower(strings.TrimSpace(direction)) {
	case "up":
		if err := store.MigrateUp(ctx, steps); err != nil {
			return "", fmt.Errorf("migrate up failed: %w", err)
		}
	case "down":
		if steps <= 0 {
			steps = 1
		}
		if err := store.MigrateDown(ctx, steps); err != nil {
			return "", fmt.Errorf("migrate down failed: %w", err)
		}
	case "status":
		// Только вывод статуса ниже.
	default:
		return "", fmt.Errorf("unsupported direction: %s (use up|down|status)", direction)
	}

	version, count, err := store.MigrationStatus(ctx)
	if err != nil {
		return "", fmt.Errorf("migration status failed: %w", err)
	}
	return fmt.Sprintf("migrate %s ok: version=%d applied=%d", strings.ToLower(strings.TrimSpace(direction)), version, count), nil
}
