package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/quotaflow/quotaflow/internal/config"
	"github.com/quotaflow/quotaflow/internal/logger"
	"github.com/quotaflow/quotaflow/internal/postgres"
	pgRepo "github.com/quotaflow/quotaflow/internal/repository/postgres"
)

func init() {
	time.Local = time.UTC
}

// Applies the schema to the configured postgres database. With -dry-run
// the DDL is printed instead of executed.
func main() {
	dryRun := flag.Bool("dry-run", false, "print the DDL without executing it")
	flag.Parse()

	if *dryRun {
		fmt.Print(pgRepo.Schema)
		return
	}

	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}

	db, err := postgres.NewDB(cfg, log)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(pgRepo.Schema); err != nil {
		log.Fatalf("failed to apply schema: %v", err)
	}

	log.Infow("schema applied",
		"database", cfg.Postgres.DBName,
	)
}
