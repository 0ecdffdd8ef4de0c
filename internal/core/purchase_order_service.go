package core

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PurchaseOrderService guards PO editability via CheckPOAction (spec
// §4.5.6) — purchase orders never touch inventory directly, that only
// happens once a GRN is raised against one, which is a separate document
// (spec §1, "Purchase-order... workflows that do not touch inventory" are
// out of the ledger's scope, but the lifecycle guard is still carried as
// ambient infrastructure per the teacher's order_service.go pattern).
type PurchaseOrderService struct {
	pool *pgxpool.Pool
}

func NewPurchaseOrderService(pool *pgxpool.Pool) *PurchaseOrderService {
	return &PurchaseOrderService{pool: pool}
}

func (s *PurchaseOrderService) Create(ctx context.Context, supplierID int64) (*PurchaseOrder, error) {
	po := &PurchaseOrder{SupplierID: supplierID, State: POStateOrderPlaced}
	poNumber, err := s.mintOutsideTx(ctx)
	if err != nil {
		return nil, err
	}
	po.PONumber = poNumber
	if err := s.pool.QueryRow(ctx, `
		INSERT INTO purchase_orders (po_number, supplier_id, state, converted_to_grn, created_at)
		VALUES ($1, $2, $3, false, NOW())
		RETURNING id, created_at
	`, poNumber, supplierID, POStateOrderPlaced).Scan(&po.ID, &po.CreatedAt); err != nil {
		return nil, classifyConnFault("insert purchase order", err)
	}
	return po, nil
}

func (s *PurchaseOrderService) mintOutsideTx(ctx context.Context) (string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", classifyConnFault("begin mint po number", err)
	}
	defer func() { _ = tx.Rollback(context.Background()) }()
	number, err := MintIdentifier(ctx, tx, "PO", time.Now())
	if err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", classifyConnFault("commit mint po number", err)
	}
	return number, nil
}

// Transition validates action against the PO's current (state,
// converted_to_grn) before applying it; the caller supplies what "applying"
// means (edit fields, flip state, mark converted) since those are plain
// CRUD outside the ledger's concern.
func (s *PurchaseOrderService) Transition(ctx context.Context, poID int64, action string, apply func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return classifyConnFault("begin po transition", err)
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	var state PurchaseOrderState
	var converted bool
	if err := tx.QueryRow(ctx, `SELECT state, converted_to_grn FROM purchase_orders WHERE id = $1 FOR UPDATE`, poID).Scan(&state, &converted); err != nil {
		if err == pgx.ErrNoRows {
			return &ValidationError{Field: "po_id", Reason: "purchase order not found"}
		}
		return classifyConnFault("load purchase order", err)
	}

	if err := CheckPOAction(poID, state, converted, action); err != nil {
		return err
	}

	if err := apply(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return classifyConnFault("commit po transition", err)
	}
	return nil
}
