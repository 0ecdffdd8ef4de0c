package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// LedgerCoordinator is the sole public face of the inventory ledger. Each
// exported transition runs its body inside one serializable transaction and
// on success writes its audit entries in that transaction: one for Inbound,
// Reserve, Unreserve or Outbound, one per item for InboundBatch, and two for
// Convert (the conversion and the challan it creates). UnreserveAll runs one
// such Unreserve transaction per order. It composes the Minter, Allocator, Lot Store and Transaction
// Log the way the teacher's Ledger composes DocumentService + RuleEngine
// inside Ledger.Commit.
type LedgerCoordinator struct {
	pool      *pgxpool.Pool
	lots      *LotStore
	txlog     *TransactionLog
	alloc     *Allocator
	audit     *AuditLog
	retry     RetryConfig
	opTimeout time.Duration
}

func NewLedgerCoordinator(pool *pgxpool.Pool, retry RetryConfig, opTimeout time.Duration) *LedgerCoordinator {
	if opTimeout <= 0 {
		opTimeout = 10 * time.Second
	}
	return &LedgerCoordinator{
		pool:      pool,
		lots:      NewLotStore(),
		txlog:     NewTransactionLog(),
		alloc:     NewAllocator(),
		audit:     NewAuditLog(),
		retry:     retry,
		opTimeout: opTimeout,
	}
}

// runTx begins a fresh serializable transaction per attempt — each retry
// (spec §5: "each retry obtains a fresh connection") runs fn again from
// scratch, never replaying side effects that already committed.
func (c *LedgerCoordinator) runTx(ctx context.Context, op string, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return withRetry(ctx, c.retry, func() error {
		opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
		defer cancel()

		tx, err := c.pool.BeginTx(opCtx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			if opCtx.Err() != nil {
				return &TimeoutError{Op: op}
			}
			return classifyConnFault(op, err)
		}

		if ferr := fn(opCtx, tx); ferr != nil {
			_ = tx.Rollback(context.Background())
			if opCtx.Err() != nil {
				return &TimeoutError{Op: op}
			}
			return ferr
		}

		if err := tx.Commit(opCtx); err != nil {
			if opCtx.Err() != nil {
				return &TimeoutError{Op: op}
			}
			return classifyConnFault(op, err)
		}
		return nil
	})
}

// ---- Inbound (spec §4.5.1) -------------------------------------------------

type InboundRequest struct {
	ProductID  int64
	CategoryID int64
	LocationID int64
	SupplierID int64
	GRNItemID  int64
	Quantity   decimal.Decimal
	UserID     int64
}

type InboundResult struct {
	LotID     int64
	LotNumber string
	Available decimal.Decimal
}

func (c *LedgerCoordinator) Inbound(ctx context.Context, req InboundRequest) (*InboundResult, error) {
	var result *InboundResult
	err := c.runTx(ctx, "inbound", func(ctx context.Context, tx pgx.Tx) error {
		res, err := c.inboundTx(ctx, tx, req)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	return result, err
}

// InboundBatch materializes one lot per GRN item inside a single
// transaction (supplemented: spec §3 "On creation, every item spawns
// exactly one Lot via Inbound" — a GRN with several items must not leave a
// partial set of lots if a later item fails).
func (c *LedgerCoordinator) InboundBatch(ctx context.Context, reqs []InboundRequest) ([]*InboundResult, error) {
	var results []*InboundResult
	err := c.runTx(ctx, "inbound_batch", func(ctx context.Context, tx pgx.Tx) error {
		res, err := c.inboundBatchTx(ctx, tx, reqs)
		if err != nil {
			return err
		}
		results = res
		return nil
	})
	return results, err
}

// inboundBatchTx is InboundBatch's body, exposed so GRNService.Create can
// run it on the same transaction as the goods_receipts/goods_receipt_items
// rows it belongs to instead of committing the GRN first.
func (c *LedgerCoordinator) inboundBatchTx(ctx context.Context, tx pgx.Tx, reqs []InboundRequest) ([]*InboundResult, error) {
	var results []*InboundResult
	for _, req := range reqs {
		res, err := c.inboundTx(ctx, tx, req)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (c *LedgerCoordinator) inboundTx(ctx context.Context, tx pgx.Tx, req InboundRequest) (*InboundResult, error) {
	lotNumber, err := MintIdentifier(ctx, tx, "LOT", time.Now())
	if err != nil {
		return nil, err
	}

	lot, err := c.lots.CreateLot(ctx, tx, lotNumber, req.ProductID, req.CategoryID, req.LocationID, req.SupplierID, req.GRNItemID, req.Quantity, req.UserID)
	if err != nil {
		return nil, err
	}

	if _, err := c.txlog.Append(ctx, tx, Transaction{
		LotID:                 lot.ID,
		Type:                  TxnInbound,
		Quantity:              req.Quantity,
		LocationID:            req.LocationID,
		ReferenceType:         "GRN_ITEM",
		ReferenceID:           req.GRNItemID,
		Description:           fmt.Sprintf("Inbound receipt for GRN item %d", req.GRNItemID),
		BalanceAfterAvailable: lot.AvailableQty,
		CreatedBy:             req.UserID,
	}); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `UPDATE goods_receipt_items SET inventory_lot_id = $1 WHERE id = $2`, lot.ID, req.GRNItemID); err != nil {
		return nil, classifyConnFault("link grn item to lot", err)
	}

	if err := c.audit.Write(ctx, tx, "inbound", "lot", lot.ID, req.UserID,
		d("lot_number", lot.LotNumber), d("product_id", req.ProductID), d("quantity", req.Quantity.String()), d("grn_item_id", req.GRNItemID),
	); err != nil {
		return nil, err
	}

	return &InboundResult{LotID: lot.ID, LotNumber: lot.LotNumber, Available: lot.AvailableQty}, nil
}

// ---- Reserve (spec §4.5.2) -------------------------------------------------

type ReserveItem struct {
	ProductID int64
	Quantity  decimal.Decimal
}

type ReserveRequest struct {
	SOID       int64
	UserID     int64
	LocationID *int64 // nil ⇒ any-location allocation
	Items      []ReserveItem
}

type ReserveLineResult struct {
	ProductID   int64
	Allocations []Allocation
}

type ReserveResult struct {
	ReservedTotal    decimal.Decimal
	PerItemLocations []ReserveLineResult
}

func (c *LedgerCoordinator) Reserve(ctx context.Context, req ReserveRequest) (*ReserveResult, error) {
	var result *ReserveResult
	err := c.runTx(ctx, "reserve", func(ctx context.Context, tx pgx.Tx) error {
		res, err := c.reserveTx(ctx, tx, req)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	return result, err
}

func (c *LedgerCoordinator) reserveTx(ctx context.Context, tx pgx.Tx, req ReserveRequest) (*ReserveResult, error) {
	plans := make(map[int64][]Allocation, len(req.Items))
	var insufficient []InsufficientStockLine

	// Plan every line before mutating any lot — an order either reserves
	// completely or not at all (spec §4.5.2: "All line items commit
	// together or none do").
	for _, item := range req.Items {
		var (
			allocs []Allocation
			err    error
		)
		if req.LocationID != nil {
			allocs, err = c.alloc.ForLocation(ctx, tx, item.ProductID, *req.LocationID, item.Quantity)
		} else {
			allocs, err = c.alloc.AnyLocation(ctx, tx, item.ProductID, item.Quantity)
		}
		if err != nil {
			var ise *InsufficientStockError
			if errors.As(err, &ise) {
				insufficient = append(insufficient, ise.Lines...)
				continue
			}
			return nil, err
		}
		plans[item.ProductID] = allocs
	}

	if len(insufficient) > 0 {
		return nil, &InsufficientStockError{Lines: insufficient}
	}

	total := decimal.Zero
	perItem := make([]ReserveLineResult, 0, len(req.Items))
	for _, item := range req.Items {
		for _, a := range plans[item.ProductID] {
			lot, err := c.lots.ApplyDelta(ctx, tx, a.LotID, a.Quantity.Neg(), a.Quantity, req.UserID)
			if err != nil {
				return nil, err
			}
			if _, err := c.txlog.Append(ctx, tx, Transaction{
				LotID:                 a.LotID,
				Type:                  TxnAdjustment,
				ReservationTag:        ReservationReserve,
				Quantity:              a.Quantity,
				LocationID:            a.LocationID,
				ReferenceType:         "SALES_ORDER",
				ReferenceID:           req.SOID,
				Description:           fmt.Sprintf("Reserved for sales order %d", req.SOID),
				BalanceAfterAvailable: lot.AvailableQty,
				CreatedBy:             req.UserID,
			}); err != nil {
				return nil, err
			}
			total = total.Add(a.Quantity)
		}
		perItem = append(perItem, ReserveLineResult{ProductID: item.ProductID, Allocations: plans[item.ProductID]})
	}

	if err := c.audit.Write(ctx, tx, "reserve", "sales_order", req.SOID, req.UserID,
		d("reserved_total", total.String()), d("line_count", len(req.Items)),
	); err != nil {
		return nil, err
	}

	return &ReserveResult{ReservedTotal: total, PerItemLocations: perItem}, nil
}

// ---- Unreserve (spec §4.5.3) -----------------------------------------------

type UnreserveRequest struct {
	SOID   int64
	UserID int64
}

type UnreserveResult struct {
	ReleasedTotal decimal.Decimal
}

// Unreserve is idempotent: a second call against an order with no open
// reservations commits a no-op transaction (it still writes an audit entry)
// and returns ErrNothingToRelease alongside a zero-valued result, matching
// spec §6's `NothingToRelease` soft error.
func (c *LedgerCoordinator) Unreserve(ctx context.Context, req UnreserveRequest) (*UnreserveResult, error) {
	var result *UnreserveResult
	err := c.runTx(ctx, "unreserve", func(ctx context.Context, tx pgx.Tx) error {
		res, err := c.unreserveTx(ctx, tx, req)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.ReleasedTotal.IsZero() {
		return result, ErrNothingToRelease
	}
	return result, nil
}

func (c *LedgerCoordinator) unreserveTx(ctx context.Context, tx pgx.Tx, req UnreserveRequest) (*UnreserveResult, error) {
	opens, err := c.txlog.OpenReservations(ctx, tx, "SALES_ORDER", req.SOID)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, o := range opens {
		lot, err := c.lots.ApplyDelta(ctx, tx, o.LotID, o.Quantity, o.Quantity.Neg(), req.UserID)
		if err != nil {
			return nil, err
		}
		if _, err := c.txlog.Append(ctx, tx, Transaction{
			LotID:                 o.LotID,
			Type:                  TxnAdjustment,
			ReservationTag:        ReservationUnreserve,
			Quantity:              o.Quantity,
			LocationID:            o.LocationID,
			ReferenceType:         "SALES_ORDER",
			ReferenceID:           req.SOID,
			Description:           fmt.Sprintf("Released reservation for sales order %d", req.SOID),
			BalanceAfterAvailable: lot.AvailableQty,
			CreatedBy:             req.UserID,
		}); err != nil {
			return nil, err
		}
		total = total.Add(o.Quantity)
	}

	if err := c.audit.Write(ctx, tx, "unreserve", "sales_order", req.SOID, req.UserID,
		d("released_total", total.String()), d("lot_count", len(opens)),
	); err != nil {
		return nil, err
	}

	return &UnreserveResult{ReleasedTotal: total}, nil
}

// UnreserveAllLineResult reports the outcome of releasing one NEW sales
// order's committed stock during a bulk run.
type UnreserveAllLineResult struct {
	SOID          int64
	ReleasedTotal decimal.Decimal
	Err           error
}

// UnreserveAllResult is the outcome of one UnreserveAll pass.
type UnreserveAllResult struct {
	Orders []UnreserveAllLineResult
}

// UnreserveAll is the supplemented bulk committed-stock release named in
// §4.6 (`release_all_committed_stock.py`): it releases the open reservation
// on every NEW, non-deleted sales order, one order per transaction so a
// single order's failure or retry never blocks the rest of the run.
func (c *LedgerCoordinator) UnreserveAll(ctx context.Context, userID int64) (*UnreserveAllResult, error) {
	soIDs, err := c.newSalesOrderIDs(ctx)
	if err != nil {
		return nil, err
	}

	result := &UnreserveAllResult{Orders: make([]UnreserveAllLineResult, 0, len(soIDs))}
	for _, soID := range soIDs {
		res, err := c.Unreserve(ctx, UnreserveRequest{SOID: soID, UserID: userID})
		if err != nil && !errors.Is(err, ErrNothingToRelease) {
			result.Orders = append(result.Orders, UnreserveAllLineResult{SOID: soID, Err: err})
			continue
		}
		released := decimal.Zero
		if res != nil {
			released = res.ReleasedTotal
		}
		result.Orders = append(result.Orders, UnreserveAllLineResult{SOID: soID, ReleasedTotal: released})
	}
	return result, nil
}

func (c *LedgerCoordinator) newSalesOrderIDs(ctx context.Context) ([]int64, error) {
	rows, err := c.pool.Query(ctx, `SELECT id FROM sales_orders WHERE status = $1 AND is_deleted = false ORDER BY id ASC`, SOStatusNew)
	if err != nil {
		return nil, classifyConnFault("list new sales orders", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, classifyConnFault("list new sales orders", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyConnFault("list new sales orders", err)
	}
	return ids, nil
}

// ---- Outbound (spec §4.5.4) ------------------------------------------------

type OutboundItem struct {
	ProductID int64
	Quantity  decimal.Decimal
}

type OutboundRequest struct {
	ChallanID  int64
	LocationID int64
	UserID     int64
	Items      []OutboundItem
}

type OutboundResult struct {
	Allocations []Allocation
}

func (c *LedgerCoordinator) Outbound(ctx context.Context, req OutboundRequest) (*OutboundResult, error) {
	var result *OutboundResult
	err := c.runTx(ctx, "outbound", func(ctx context.Context, tx pgx.Tx) error {
		res, err := c.outboundTx(ctx, tx, req)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	return result, err
}

func (c *LedgerCoordinator) outboundTx(ctx context.Context, tx pgx.Tx, req OutboundRequest) (*OutboundResult, error) {
	var all []Allocation
	var insufficient []InsufficientStockLine

	for _, item := range req.Items {
		allocs, err := c.alloc.ForLocation(ctx, tx, item.ProductID, req.LocationID, item.Quantity)
		if err != nil {
			var ise *InsufficientStockError
			if errors.As(err, &ise) {
				insufficient = append(insufficient, ise.Lines...)
				continue
			}
			return nil, err
		}
		all = append(all, allocs...)
	}
	if len(insufficient) > 0 {
		return nil, &InsufficientStockError{Lines: insufficient}
	}

	for i := range all {
		a := &all[i]
		lot, err := c.lots.ApplyDelta(ctx, tx, a.LotID, a.Quantity.Neg(), decimal.Zero, req.UserID)
		if err != nil {
			return nil, err
		}
		txn, err := c.txlog.Append(ctx, tx, Transaction{
			LotID:                 a.LotID,
			Type:                  TxnOutbound,
			Quantity:              a.Quantity,
			LocationID:            a.LocationID,
			ReferenceType:         "SALES_CHALLAN",
			ReferenceID:           req.ChallanID,
			Description:           fmt.Sprintf("Dispatched on challan %d", req.ChallanID),
			BalanceAfterAvailable: lot.AvailableQty,
			CreatedBy:             req.UserID,
		})
		if err != nil {
			return nil, err
		}
		a.TransactionID = txn.ID
	}

	if err := c.audit.Write(ctx, tx, "outbound", "sales_challan", req.ChallanID, req.UserID,
		d("allocation_count", len(all)),
	); err != nil {
		return nil, err
	}

	return &OutboundResult{Allocations: all}, nil
}

// ---- Conversion (spec §4.5.5) ----------------------------------------------

type ConvertRequest struct {
	SOID   int64
	UserID int64
}

type ConvertResult struct {
	SCID     int64
	SCNumber string
}

func (c *LedgerCoordinator) Convert(ctx context.Context, req ConvertRequest) (*ConvertResult, error) {
	var result *ConvertResult
	err := c.runTx(ctx, "convert", func(ctx context.Context, tx pgx.Tx) error {
		res, err := c.convertTx(ctx, tx, req)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	return result, err
}

func (c *LedgerCoordinator) convertTx(ctx context.Context, tx pgx.Tx, req ConvertRequest) (*ConvertResult, error) {
	var (
		customerID         int64
		status             SalesOrderStatus
		convertedToChallan bool
		isDeleted          bool
	)
	err := tx.QueryRow(ctx, `
		SELECT customer_id, status, converted_to_challan, is_deleted
		FROM sales_orders WHERE id = $1 FOR UPDATE
	`, req.SOID).Scan(&customerID, &status, &convertedToChallan, &isDeleted)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, &ValidationError{Field: "so_id", Reason: "sales order not found"}
		}
		return nil, classifyConnFault("load sales order for conversion", err)
	}
	if status != SOStatusNew || convertedToChallan || isDeleted {
		return nil, &LifecycleError{EntityType: "sales_order", EntityID: req.SOID, Action: "convert", Reason: "order must be NEW, not yet converted, and not deleted"}
	}

	items, err := loadSalesOrderItems(ctx, tx, req.SOID)
	if err != nil {
		return nil, err
	}

	// First reserved lot's location wins per product (spec §9, "Location
	// discovery during conversion").
	locByProduct, err := firstReservedLocationByProduct(ctx, tx, req.SOID)
	if err != nil {
		return nil, err
	}

	released, err := c.unreserveTx(ctx, tx, UnreserveRequest{SOID: req.SOID, UserID: req.UserID})
	if err != nil {
		return nil, err
	}
	// A source order with nothing reserved cannot be converted; surface
	// as a lifecycle violation rather than committing an empty conversion.
	if released.ReleasedTotal.IsZero() {
		return nil, &LifecycleError{EntityType: "sales_order", EntityID: req.SOID, Action: "convert", Reason: "order has no open reservations"}
	}

	scNumber, err := MintIdentifier(ctx, tx, "SC", time.Now())
	if err != nil {
		return nil, err
	}

	var scID int64
	if err := tx.QueryRow(ctx, `
		INSERT INTO sales_challans (sc_number, customer_id, status, source_so_id, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id
	`, scNumber, customerID, SCStatusNew, req.SOID).Scan(&scID); err != nil {
		return nil, classifyConnFault("create sales challan", err)
	}

	for _, item := range items {
		loc, ok := locByProduct[item.ProductID]
		if !ok {
			return nil, &LifecycleError{EntityType: "sales_order", EntityID: req.SOID, Action: "convert", Reason: fmt.Sprintf("no reserved location found for product %d", item.ProductID)}
		}
		res, err := c.outboundTx(ctx, tx, OutboundRequest{
			ChallanID:  scID,
			LocationID: loc,
			UserID:     req.UserID,
			Items:      []OutboundItem{{ProductID: item.ProductID, Quantity: item.Quantity}},
		})
		if err != nil {
			return nil, err
		}
		for _, a := range res.Allocations {
			if _, err := tx.Exec(ctx, `
				INSERT INTO sales_challan_items (sc_id, product_id, quantity, location_id, inventory_transaction_id)
				VALUES ($1, $2, $3, $4, $5)
			`, scID, item.ProductID, a.Quantity, a.LocationID, a.TransactionID); err != nil {
				return nil, classifyConnFault("insert sales challan item", err)
			}
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE sales_orders SET converted_to_challan = true, status = $1 WHERE id = $2
	`, SOStatusDelivered, req.SOID); err != nil {
		return nil, classifyConnFault("mark sales order delivered", err)
	}

	if err := c.audit.Write(ctx, tx, "convert", "sales_order", req.SOID, req.UserID,
		d("sc_id", scID), d("sc_number", scNumber),
	); err != nil {
		return nil, err
	}
	if err := c.audit.Write(ctx, tx, "create_challan", "sales_challan", scID, req.UserID,
		d("source_so_id", req.SOID),
	); err != nil {
		return nil, err
	}

	return &ConvertResult{SCID: scID, SCNumber: scNumber}, nil
}

func loadSalesOrderItems(ctx context.Context, tx pgx.Tx, soID int64) ([]SalesOrderLine, error) {
	rows, err := tx.Query(ctx, `SELECT id, so_id, product_id, quantity FROM sales_order_items WHERE so_id = $1`, soID)
	if err != nil {
		return nil, classifyConnFault("load sales order items", err)
	}
	defer rows.Close()

	var items []SalesOrderLine
	for rows.Next() {
		var it SalesOrderLine
		if err := rows.Scan(&it.ID, &it.SOID, &it.ProductID, &it.Quantity); err != nil {
			return nil, classifyConnFault("load sales order items", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyConnFault("load sales order items", err)
	}
	return items, nil
}

func firstReservedLocationByProduct(ctx context.Context, tx pgx.Tx, soID int64) (map[int64]int64, error) {
	rows, err := tx.Query(ctx, `
		SELECT DISTINCT ON (l.product_id) l.product_id, l.location_id
		FROM inventory_transactions t
		JOIN inventory_lots l ON l.id = t.lot_id
		WHERE t.reservation_type = 'RESERVE' AND t.reference_type = 'SALES_ORDER' AND t.reference_id = $1
		ORDER BY l.product_id, t.created_at ASC, t.id ASC
	`, soID)
	if err != nil {
		return nil, classifyConnFault("load reserved locations", err)
	}
	defer rows.Close()

	out := map[int64]int64{}
	for rows.Next() {
		var productID, locationID int64
		if err := rows.Scan(&productID, &locationID); err != nil {
			return nil, classifyConnFault("load reserved locations", err)
		}
		out[productID] = locationID
	}
	if err := rows.Err(); err != nil {
		return nil, classifyConnFault("load reserved locations", err)
	}
	return out, nil
}
