package core

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SalesChallanService owns standalone challan creation — dispatch straight
// from available stock with no originating sales order (spec §9: "Challan
// creation from SO vs from scratch... both paths exist"). The from-SO path
// lives in SalesOrderService.Convert, sharing the Coordinator's Outbound
// primitive rather than duplicating it.
type SalesChallanService struct {
	pool        *pgxpool.Pool
	coordinator *LedgerCoordinator
}

func NewSalesChallanService(pool *pgxpool.Pool, coordinator *LedgerCoordinator) *SalesChallanService {
	return &SalesChallanService{pool: pool, coordinator: coordinator}
}

type CreateSalesChallanRequest struct {
	CustomerID int64
	LocationID int64
	UserID     int64
	Items      []OutboundItem
}

// Create mints an SC number, inserts the challan row, and dispatches stock
// for every line inside one transaction run through the Coordinator's
// retrying façade (spec §4.5.7: "no partial success mode") — mirroring the
// teacher's order_service.go, which calls ShipStockTx on the same tx that
// created the shipment row rather than committing the row first.
func (s *SalesChallanService) Create(ctx context.Context, req CreateSalesChallanRequest) (*SalesChallan, *OutboundResult, error) {
	if len(req.Items) == 0 {
		return nil, nil, &ValidationError{Field: "items", Reason: "a sales challan requires at least one line item"}
	}

	var sc *SalesChallan
	var outboundRes *OutboundResult
	err := s.coordinator.runTx(ctx, "create_sales_challan", func(ctx context.Context, tx pgx.Tx) error {
		sc = &SalesChallan{CustomerID: req.CustomerID, Status: SCStatusNew}

		scNumber, err := MintIdentifier(ctx, tx, "SC", time.Now())
		if err != nil {
			return err
		}
		sc.SCNumber = scNumber

		if err := tx.QueryRow(ctx, `
			INSERT INTO sales_challans (sc_number, customer_id, status, source_so_id, created_at)
			VALUES ($1, $2, $3, NULL, NOW())
			RETURNING id, created_at
		`, scNumber, req.CustomerID, SCStatusNew).Scan(&sc.ID, &sc.CreatedAt); err != nil {
			return classifyConnFault("insert sales challan", err)
		}

		res, err := s.coordinator.outboundTx(ctx, tx, OutboundRequest{
			ChallanID:  sc.ID,
			LocationID: req.LocationID,
			UserID:     req.UserID,
			Items:      req.Items,
		})
		if err != nil {
			return err
		}
		outboundRes = res

		for _, a := range res.Allocations {
			line := SalesChallanLine{SCID: sc.ID, ProductID: a.ProductID, LocationID: a.LocationID, InventoryTransactionID: a.TransactionID, Quantity: a.Quantity}
			if _, err := tx.Exec(ctx, `
				INSERT INTO sales_challan_items (sc_id, product_id, quantity, location_id, inventory_transaction_id) VALUES ($1, $2, $3, $4, $5)
			`, sc.ID, line.ProductID, line.Quantity, line.LocationID, line.InventoryTransactionID); err != nil {
				return classifyConnFault("insert sales challan item", err)
			}
			sc.Items = append(sc.Items, line)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return sc, outboundRes, nil
}
