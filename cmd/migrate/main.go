package main

import (
	"context"
	"log"

	"github.com/rs/zerolog"

	"textile-inventory-ledger/internal/config"
	"textile-inventory-ledger/internal/db"
	"textile-inventory-ledger/internal/db/schema"
)

func main() {
	logger := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect to database")
	}
	defer pool.Close()

	statements, err := schema.Migrations()
	if err != nil {
		logger.Fatal().Err(err).Msg("load embedded schema")
	}

	for i, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			logger.Fatal().Err(err).Int("file_index", i).Msg("apply schema file")
		}
	}

	logger.Info().Int("files_applied", len(statements)).Msg("migration complete")
}
