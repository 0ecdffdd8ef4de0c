package main

import (
	"context"
	"fmt"
	"os"

	"textile-inventory-ledger/internal/adapters/cli"
	"textile-inventory-ledger/internal/config"
	"textile-inventory-ledger/internal/core"
	"textile-inventory-ledger/internal/db"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "database:", err)
		os.Exit(1)
	}
	defer pool.Close()

	retry := core.RetryConfig{MaxAttempts: cfg.DBMaxRetryAttempts, BaseDelay: cfg.DBRetryDelayBase}
	coordinator := core.NewLedgerCoordinator(pool, retry, cfg.DBConnectionTimeout*3)

	deps := cli.Deps{
		GRN:          core.NewGRNService(pool, coordinator),
		SalesOrder:   core.NewSalesOrderService(pool, coordinator),
		SalesChallan: core.NewSalesChallanService(pool, coordinator),
		Reporting:    core.NewReportingService(pool),
		Coordinator:  coordinator,
	}

	if err := cli.NewRootCommand(deps).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
