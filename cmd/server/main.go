package main

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	webAdapter "textile-inventory-ledger/internal/adapters/web"
	"textile-inventory-ledger/internal/config"
	"textile-inventory-ledger/internal/core"
	"textile-inventory-ledger/internal/db"
)

func main() {
	logger := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect to database")
	}
	defer pool.Close()

	retry := core.RetryConfig{MaxAttempts: cfg.DBMaxRetryAttempts, BaseDelay: cfg.DBRetryDelayBase}
	coordinator := core.NewLedgerCoordinator(pool, retry, cfg.DBConnectionTimeout*3)

	svc := webAdapter.Services{
		GRN:          core.NewGRNService(pool, coordinator),
		SalesOrder:   core.NewSalesOrderService(pool, coordinator),
		SalesChallan: core.NewSalesChallanService(pool, coordinator),
		Reporting:    core.NewReportingService(pool),
	}

	var allowedOrigins []string
	if cfg.AllowedOrigins != "" {
		for _, o := range strings.Split(cfg.AllowedOrigins, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				allowedOrigins = append(allowedOrigins, trimmed)
			}
		}
	}

	handler := webAdapter.NewHandler(svc, allowedOrigins, cfg.JWTSecret, logger)

	logger.Info().Str("port", cfg.ServerPort).Msg("server starting")
	if err := http.ListenAndServe(":"+cfg.ServerPort, handler); err != nil {
		logger.Fatal().Err(err).Msg("server")
	}
}
