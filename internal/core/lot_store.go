package core

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// LotStore persists lots and mutates their (available, committed) pair
// under row-level locking (spec §4.2). Every method takes a pgx.Tx because
// the Lot Store never owns its own transaction — the Ledger Coordinator
// does (spec §4.5, "Each operation runs in one serializable database
// transaction").
type LotStore struct{}

func NewLotStore() *LotStore { return &LotStore{} }

// CreateLot inserts a new lot with available = inboundQty, committed = 0
// (spec §4.2). Lots are never created any other way.
func (s *LotStore) CreateLot(ctx context.Context, tx pgx.Tx, lotNumber string, productID, categoryID, locationID, supplierID, grnItemID int64, inboundQty decimal.Decimal, userID int64) (*Lot, error) {
	var lot Lot
	err := tx.QueryRow(ctx, `
		INSERT INTO inventory_lots
			(lot_number, product_id, category_id, location_id, supplier_id, grn_item_id,
			 available_quantity, committed_quantity, created_by, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $8, NOW(), NOW())
		RETURNING id, lot_number, product_id, category_id, location_id, supplier_id, grn_item_id,
		          available_quantity, committed_quantity, created_at, updated_at, created_by, updated_by
	`, lotNumber, productID, categoryID, locationID, supplierID, grnItemID, inboundQty, userID).Scan(
		&lot.ID, &lot.LotNumber, &lot.ProductID, &lot.CategoryID, &lot.LocationID, &lot.SupplierID, &lot.GRNItemID,
		&lot.AvailableQty, &lot.CommittedQty, &lot.CreatedAt, &lot.UpdatedAt, &lot.CreatedBy, &lot.UpdatedBy,
	)
	if err != nil {
		return nil, classifyConnFault("create lot", err)
	}
	return &lot, nil
}

// LoadForUpdate fetches a lot with its row lock held for the enclosing
// transaction (spec §4.2).
func (s *LotStore) LoadForUpdate(ctx context.Context, tx pgx.Tx, lotID int64) (*Lot, error) {
	var lot Lot
	err := tx.QueryRow(ctx, `
		SELECT id, lot_number, product_id, category_id, location_id, supplier_id, grn_item_id,
		       available_quantity, committed_quantity, created_at, updated_at, created_by, updated_by
		FROM inventory_lots
		WHERE id = $1
		FOR UPDATE
	`, lotID).Scan(
		&lot.ID, &lot.LotNumber, &lot.ProductID, &lot.CategoryID, &lot.LocationID, &lot.SupplierID, &lot.GRNItemID,
		&lot.AvailableQty, &lot.CommittedQty, &lot.CreatedAt, &lot.UpdatedAt, &lot.CreatedBy, &lot.UpdatedBy,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, &ValidationError{Field: "lot_id", Reason: "lot not found"}
		}
		return nil, classifyConnFault("load lot for update", err)
	}
	return &lot, nil
}

// ApplyDelta writes the new (available, committed) pair for lotID, using a
// conditional predicate in the UPDATE statement so a lost update is
// detected at write time rather than silently corrupting state (spec §4.2).
// deltaAvailable/deltaCommitted may be negative; the predicate only checks
// the counter(s) being decreased.
func (s *LotStore) ApplyDelta(ctx context.Context, tx pgx.Tx, lotID int64, deltaAvailable, deltaCommitted decimal.Decimal, userID int64) (*Lot, error) {
	query := `
		UPDATE inventory_lots
		SET available_quantity = available_quantity + $1,
		    committed_quantity = committed_quantity + $2,
		    updated_by = $3, updated_at = $4
		WHERE id = $5
	`
	args := []any{deltaAvailable, deltaCommitted, userID, time.Now().UTC(), lotID}

	if deltaAvailable.IsNegative() {
		query += " AND available_quantity >= $6"
		args = append(args, deltaAvailable.Neg())
	}
	if deltaCommitted.IsNegative() {
		placeholder := "$6"
		if deltaAvailable.IsNegative() {
			placeholder = "$7"
		}
		query += " AND committed_quantity >= " + placeholder
		args = append(args, deltaCommitted.Neg())
	}

	query += `
		RETURNING id, lot_number, product_id, category_id, location_id, supplier_id, grn_item_id,
		          available_quantity, committed_quantity, created_at, updated_at, created_by, updated_by
	`

	var lot Lot
	err := tx.QueryRow(ctx, query, args...).Scan(
		&lot.ID, &lot.LotNumber, &lot.ProductID, &lot.CategoryID, &lot.LocationID, &lot.SupplierID, &lot.GRNItemID,
		&lot.AvailableQty, &lot.CommittedQty, &lot.CreatedAt, &lot.UpdatedAt, &lot.CreatedBy, &lot.UpdatedBy,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			// Predicate failed: either the lot vanished or the counter would
			// have gone negative. The latter is the overwhelmingly common
			// case under concurrency (spec P3), so report it as such, naming
			// the product and the shortfall rather than an empty line.
			return nil, s.insufficientStockFor(ctx, tx, lotID, deltaAvailable, deltaCommitted)
		}
		return nil, classifyConnFault("apply lot delta", err)
	}
	return &lot, nil
}

// insufficientStockFor re-reads the lot (outside the failed predicate) to
// attach the product and current available quantity to the error a losing
// ApplyDelta call returns.
func (s *LotStore) insufficientStockFor(ctx context.Context, tx pgx.Tx, lotID int64, deltaAvailable, deltaCommitted decimal.Decimal) error {
	required := deltaAvailable.Neg()
	if deltaCommitted.IsNegative() && deltaCommitted.Neg().GreaterThan(required) {
		required = deltaCommitted.Neg()
	}

	var productID int64
	var available decimal.Decimal
	err := tx.QueryRow(ctx, `SELECT product_id, available_quantity FROM inventory_lots WHERE id = $1`, lotID).
		Scan(&productID, &available)
	if err != nil {
		// Lot genuinely vanished between the caller's read and this write.
		return &InsufficientStockError{Lines: []InsufficientStockLine{{Required: required}}}
	}
	return &InsufficientStockError{Lines: []InsufficientStockLine{{ProductID: productID, Available: available, Required: required}}}
}
