package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/fieldops-platform/apps/api/internal/config"
	"github.com/fieldops-platform/apps/api/internal/store"
)

func main() {
	command := flag.String("command", "up", "up, down or status")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	var (
		db      *sql.DB
		dialect store.Dialect
	)
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		dialect = store.DialectPostgres
	default:
		db, err = sql.Open("sqlite", cfg.SQLitePath)
		dialect = store.DialectSQLite
	}
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	provider, err := store.NewMigrationProvider(db, dialect)
	if err != nil {
		log.Fatalf("migration provider: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	switch *command {
	case "up":
		results, err := provider.Up(ctx)
		if err != nil {
			log.Fatalf("goose up: %v", err)
		}
		for _, r := range results {
			log.Printf("applied %s in %s", r.Source.Path, r.Duration)
		}
	case "down":
		result, err := provider.Down(ctx)
		if err != nil {
			log.Fatalf("goose down: %v", err)
		}
		log.Printf("rolled back %s", result.Source.Path)
	case "status":
		statuses, err := provider.Status(ctx)
		if err != nil {
			log.Fatalf("goose status: %v", err)
		}
		for _, s := range statuses {
			log.Printf("%-8s %s", s.State, s.Source.Path)
		}
	default:
		log.Fatalf("unknown command %q", *command)
	}
}
