package core

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// GRNService owns goods_receipts/goods_receipt_items CRUD. Every item it
// inserts spawns exactly one lot via the Coordinator's InboundBatch primitive
// (spec §3: "On creation, every item spawns exactly one Lot via Inbound").
type GRNService struct {
	pool        *pgxpool.Pool
	coordinator *LedgerCoordinator
}

func NewGRNService(pool *pgxpool.Pool, coordinator *LedgerCoordinator) *GRNService {
	return &GRNService{pool: pool, coordinator: coordinator}
}

type CreateGRNItem struct {
	ProductID  int64
	CategoryID int64
	Quantity   decimal.Decimal
}

type CreateGRNRequest struct {
	SupplierID int64
	LocationID int64
	UserID     int64
	Items      []CreateGRNItem
}

// Create inserts the goods_receipts/goods_receipt_items rows and spawns one
// lot per item via the Coordinator's inboundBatchTx, all inside one
// transaction run through the Coordinator's retrying façade — a failure
// partway through leaves no rows behind rather than a committed GRN with
// some items never materialized into lots (spec §4.5.7: "no partial success
// mode"). Mirrors the same fix applied to
// SalesOrderService.Create/SalesChallanService.Create.
func (s *GRNService) Create(ctx context.Context, req CreateGRNRequest) (*GRN, []*InboundResult, error) {
	if len(req.Items) == 0 {
		return nil, nil, &ValidationError{Field: "items", Reason: "a GRN requires at least one line item"}
	}

	var grn *GRN
	var results []*InboundResult
	err := s.coordinator.runTx(ctx, "create_grn", func(ctx context.Context, tx pgx.Tx) error {
		grnNumber, err := MintIdentifier(ctx, tx, "GRN", time.Now())
		if err != nil {
			return err
		}

		grn = &GRN{GRNNumber: grnNumber, SupplierID: req.SupplierID, LocationID: req.LocationID}
		if err := tx.QueryRow(ctx, `
			INSERT INTO goods_receipts (grn_number, supplier_id, location_id, created_at)
			VALUES ($1, $2, $3, NOW())
			RETURNING id, created_at
		`, grnNumber, req.SupplierID, req.LocationID).Scan(&grn.ID, &grn.CreatedAt); err != nil {
			return classifyConnFault("insert grn", err)
		}

		inboundReqs := make([]InboundRequest, 0, len(req.Items))
		for _, item := range req.Items {
			gi := GRNItem{GRNID: grn.ID, ProductID: item.ProductID, CategoryID: item.CategoryID, SupplierID: req.SupplierID, Quantity: item.Quantity}
			if err := tx.QueryRow(ctx, `
				INSERT INTO goods_receipt_items (grn_id, product_id, category_id, supplier_id, quantity)
				VALUES ($1, $2, $3, $4, $5) RETURNING id
			`, grn.ID, item.ProductID, item.CategoryID, req.SupplierID, item.Quantity).Scan(&gi.ID); err != nil {
				return classifyConnFault("insert grn item", err)
			}
			grn.Items = append(grn.Items, gi)
			inboundReqs = append(inboundReqs, InboundRequest{
				ProductID:  item.ProductID,
				CategoryID: item.CategoryID,
				LocationID: req.LocationID,
				SupplierID: req.SupplierID,
				GRNItemID:  gi.ID,
				Quantity:   item.Quantity,
				UserID:     req.UserID,
			})
		}

		res, err := s.coordinator.inboundBatchTx(ctx, tx, inboundReqs)
		if err != nil {
			return err
		}
		results = res
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return grn, results, nil
}
