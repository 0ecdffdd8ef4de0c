package core_test

import (
	"context"
	"os"
	"testing"
	"time"

	"textile-inventory-ledger/internal/core"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedIDs names the master-data rows setupLedgerTestDB inserts, so tests
// read by name instead of magic numbers.
type seedIDs struct {
	categoryID   int64
	productA     int64
	productB     int64
	locationMain int64
	locationAux  int64
	supplierID   int64
	customerID   int64
	userID       int64
}

// setupLedgerTestDB truncates and reseeds the ledger tables, mirroring the
// teacher's setupTestDB (internal/core/ledger_integration_test.go): skip
// unless TEST_DATABASE_URL points at a disposable database.
func setupLedgerTestDB(t *testing.T) (*pgxpool.Pool, *core.LedgerCoordinator, seedIDs, context.Context) {
	t.Helper()
	_ = godotenv.Load("../../.env")

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set — skipping integration test to protect live database")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE audit_log, sales_challan_items, sales_challans, sales_order_items,
		    sales_orders, goods_receipt_items, goods_receipts, inventory_transactions,
		    inventory_lots, purchase_orders, job_orders, customers, suppliers, locations,
		    products, categories RESTART IDENTITY CASCADE;
	`)
	require.NoError(t, err)

	var ids seedIDs
	ids.userID = 1
	require.NoError(t, pool.QueryRow(ctx, `INSERT INTO categories (name) VALUES ('Yarn') RETURNING id`).Scan(&ids.categoryID))
	require.NoError(t, pool.QueryRow(ctx, `INSERT INTO products (category_id, name) VALUES ($1, 'Cotton Yarn 30s') RETURNING id`, ids.categoryID).Scan(&ids.productA))
	require.NoError(t, pool.QueryRow(ctx, `INSERT INTO products (category_id, name) VALUES ($1, 'Polyester Yarn 40s') RETURNING id`, ids.categoryID).Scan(&ids.productB))
	require.NoError(t, pool.QueryRow(ctx, `INSERT INTO locations (name, is_active) VALUES ('Main Warehouse', true) RETURNING id`).Scan(&ids.locationMain))
	require.NoError(t, pool.QueryRow(ctx, `INSERT INTO locations (name, is_active) VALUES ('Aux Warehouse', true) RETURNING id`).Scan(&ids.locationAux))
	require.NoError(t, pool.QueryRow(ctx, `INSERT INTO suppliers (name) VALUES ('Acme Spinning') RETURNING id`).Scan(&ids.supplierID))
	require.NoError(t, pool.QueryRow(ctx, `INSERT INTO customers (name) VALUES ('Bluefield Textiles') RETURNING id`).Scan(&ids.customerID))

	coordinator := core.NewLedgerCoordinator(pool, core.RetryConfig{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond}, 5*time.Second)
	return pool, coordinator, ids, ctx
}

// insertGRNItem is the test-only equivalent of GRNService.Create's insert
// step, used when a test needs a GRN item row to hang an Inbound off of
// without exercising GRNService itself.
func insertGRNItem(t *testing.T, ctx context.Context, pool *pgxpool.Pool, ids seedIDs, productID int64, qty decimal.Decimal) int64 {
	t.Helper()
	var grnID int64
	require.NoError(t, pool.QueryRow(ctx, `
		INSERT INTO goods_receipts (grn_number, supplier_id, location_id, created_at) VALUES ($1, $2, $3, NOW()) RETURNING id
	`, "GRN/2025/JUL/20/1", ids.supplierID, ids.locationMain).Scan(&grnID))
	var itemID int64
	require.NoError(t, pool.QueryRow(ctx, `
		INSERT INTO goods_receipt_items (grn_id, product_id, category_id, supplier_id, quantity) VALUES ($1, $2, $3, $4, $5) RETURNING id
	`, grnID, productID, ids.categoryID, ids.supplierID, qty).Scan(&itemID))
	return itemID
}

// TestInbound_SingleReceiptMintsLotAndBalancesTransaction matches spec §8
// scenario 1: Inbound(product=X, location=1, supplier=Y, qty=500) mints
// LOT/.../1, sets available=500, and the transaction log agrees.
func TestInbound_SingleReceiptMintsLotAndBalancesTransaction(t *testing.T) {
	pool, coordinator, ids, ctx := setupLedgerTestDB(t)
	defer pool.Close()

	grnItemID := insertGRNItem(t, ctx, pool, ids, ids.productA, decimal.NewFromInt(500))

	result, err := coordinator.Inbound(ctx, core.InboundRequest{
		ProductID: ids.productA, CategoryID: ids.categoryID, LocationID: ids.locationMain,
		SupplierID: ids.supplierID, GRNItemID: grnItemID, Quantity: decimal.NewFromInt(500), UserID: ids.userID,
	})
	require.NoError(t, err)
	assert.True(t, result.Available.Equal(decimal.NewFromInt(500)))
	assert.Contains(t, result.LotNumber, "LOT/")
	assert.Regexp(t, `^LOT/\d{4}/[A-Z]{3}/\d{2}/1$`, result.LotNumber)

	var balanceAfter decimal.Decimal
	var txnType string
	require.NoError(t, pool.QueryRow(ctx, `
		SELECT transaction_type, balance_after_available FROM inventory_transactions WHERE lot_id = $1
	`, result.LotID).Scan(&txnType, &balanceAfter))
	assert.Equal(t, "INBOUND", txnType)
	assert.True(t, balanceAfter.Equal(decimal.NewFromInt(500)))

	var linkedLotID *int64
	require.NoError(t, pool.QueryRow(ctx, `SELECT inventory_lot_id FROM goods_receipt_items WHERE id = $1`, grnItemID).Scan(&linkedLotID))
	require.NotNil(t, linkedLotID)
	assert.Equal(t, result.LotID, *linkedLotID)

	var auditCount int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM audit_log WHERE action = 'inbound' AND entity_id = $1`, result.LotID).Scan(&auditCount))
	assert.Equal(t, 1, auditCount)
}

// TestInboundBatch_MaterializesOneLotPerItemInOneTransaction exercises the
// supplemented bulk-receipt primitive (§4.6, InboundBatch) directly: two
// items in one call each get their own lot and their own audit entry.
func TestInboundBatch_MaterializesOneLotPerItemInOneTransaction(t *testing.T) {
	pool, coordinator, ids, ctx := setupLedgerTestDB(t)
	defer pool.Close()

	itemA := insertGRNItem(t, ctx, pool, ids, ids.productA, decimal.NewFromInt(100))
	itemB := insertGRNItem(t, ctx, pool, ids, ids.productB, decimal.NewFromInt(250))

	results, err := coordinator.InboundBatch(ctx, []core.InboundRequest{
		{ProductID: ids.productA, CategoryID: ids.categoryID, LocationID: ids.locationMain, SupplierID: ids.supplierID, GRNItemID: itemA, Quantity: decimal.NewFromInt(100), UserID: ids.userID},
		{ProductID: ids.productB, CategoryID: ids.categoryID, LocationID: ids.locationMain, SupplierID: ids.supplierID, GRNItemID: itemB, Quantity: decimal.NewFromInt(250), UserID: ids.userID},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Available.Equal(decimal.NewFromInt(100)))
	assert.True(t, results[1].Available.Equal(decimal.NewFromInt(250)))

	var lotCount int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM inventory_lots`).Scan(&lotCount))
	assert.Equal(t, 2, lotCount)
}

// TestReserve_FIFOAllocatesOldestLotFirst matches spec §8's FIFO scenario:
// lot A (100, older) and lot B (100, newer); Reserve(qty=150) draws 100 from
// A and 50 from B, oldest first.
func TestReserve_FIFOAllocatesOldestLotFirst(t *testing.T) {
	pool, coordinator, ids, ctx := setupLedgerTestDB(t)
	defer pool.Close()

	itemA := insertGRNItem(t, ctx, pool, ids, ids.productB, decimal.NewFromInt(100))
	lotA, err := coordinator.Inbound(ctx, core.InboundRequest{
		ProductID: ids.productB, CategoryID: ids.categoryID, LocationID: ids.locationMain,
		SupplierID: ids.supplierID, GRNItemID: itemA, Quantity: decimal.NewFromInt(100), UserID: ids.userID,
	})
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond) // guarantee distinct created_at for the FIFO tiebreak

	itemB := insertGRNItem(t, ctx, pool, ids, ids.productB, decimal.NewFromInt(100))
	lotB, err := coordinator.Inbound(ctx, core.InboundRequest{
		ProductID: ids.productB, CategoryID: ids.categoryID, LocationID: ids.locationMain,
		SupplierID: ids.supplierID, GRNItemID: itemB, Quantity: decimal.NewFromInt(100), UserID: ids.userID,
	})
	require.NoError(t, err)

	reserveRes, err := coordinator.Reserve(ctx, core.ReserveRequest{
		SOID: 22, UserID: ids.userID,
		Items: []core.ReserveItem{{ProductID: ids.productB, Quantity: decimal.NewFromInt(150)}},
	})
	require.NoError(t, err)
	require.Len(t, reserveRes.PerItemLocations, 1)
	allocs := reserveRes.PerItemLocations[0].Allocations
	require.Len(t, allocs, 2)
	assert.Equal(t, lotA.LotID, allocs[0].LotID)
	assert.True(t, allocs[0].Quantity.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, lotB.LotID, allocs[1].LotID)
	assert.True(t, allocs[1].Quantity.Equal(decimal.NewFromInt(50)))
	assert.True(t, reserveRes.ReservedTotal.Equal(decimal.NewFromInt(150)))
}

// TestReserve_InsufficientStockRollsBackEntireOrder verifies spec §4.5.2's
// "all line items commit together or none do": one failing line must leave
// every other line's lots untouched.
func TestReserve_InsufficientStockRollsBackEntireOrder(t *testing.T) {
	pool, coordinator, ids, ctx := setupLedgerTestDB(t)
	defer pool.Close()

	itemA := insertGRNItem(t, ctx, pool, ids, ids.productA, decimal.NewFromInt(50))
	lotA, err := coordinator.Inbound(ctx, core.InboundRequest{
		ProductID: ids.productA, CategoryID: ids.categoryID, LocationID: ids.locationMain,
		SupplierID: ids.supplierID, GRNItemID: itemA, Quantity: decimal.NewFromInt(50), UserID: ids.userID,
	})
	require.NoError(t, err)

	itemB := insertGRNItem(t, ctx, pool, ids, ids.productB, decimal.NewFromInt(20))
	_, err = coordinator.Inbound(ctx, core.InboundRequest{
		ProductID: ids.productB, CategoryID: ids.categoryID, LocationID: ids.locationMain,
		SupplierID: ids.supplierID, GRNItemID: itemB, Quantity: decimal.NewFromInt(20), UserID: ids.userID,
	})
	require.NoError(t, err)

	_, err = coordinator.Reserve(ctx, core.ReserveRequest{
		SOID: 99, UserID: ids.userID,
		Items: []core.ReserveItem{
			{ProductID: ids.productA, Quantity: decimal.NewFromInt(50)},  // satisfiable
			{ProductID: ids.productB, Quantity: decimal.NewFromInt(100)}, // insufficient (only 20 on hand)
		},
	})
	require.Error(t, err)
	var stockErr *core.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Len(t, stockErr.Lines, 1)
	assert.Equal(t, ids.productB, stockErr.Lines[0].ProductID)

	// Product A's lot must be untouched — no partial reservation survived.
	var available decimal.Decimal
	require.NoError(t, pool.QueryRow(ctx, `SELECT available_quantity FROM inventory_lots WHERE id = $1`, lotA.LotID).Scan(&available))
	assert.True(t, available.Equal(decimal.NewFromInt(50)))
}

// TestReserveThenUnreserve_ReleasesCommittedStockBackToAvailable matches
// spec §8 scenario 2: reserve then cancel restores the lot to its
// pre-reservation state.
func TestReserveThenUnreserve_ReleasesCommittedStockBackToAvailable(t *testing.T) {
	pool, coordinator, ids, ctx := setupLedgerTestDB(t)
	defer pool.Close()

	item := insertGRNItem(t, ctx, pool, ids, ids.productA, decimal.NewFromInt(200))
	lot, err := coordinator.Inbound(ctx, core.InboundRequest{
		ProductID: ids.productA, CategoryID: ids.categoryID, LocationID: ids.locationMain,
		SupplierID: ids.supplierID, GRNItemID: item, Quantity: decimal.NewFromInt(200), UserID: ids.userID,
	})
	require.NoError(t, err)

	_, err = coordinator.Reserve(ctx, core.ReserveRequest{
		SOID: 55, UserID: ids.userID,
		Items: []core.ReserveItem{{ProductID: ids.productA, Quantity: decimal.NewFromInt(80)}},
	})
	require.NoError(t, err)

	var available, committed decimal.Decimal
	require.NoError(t, pool.QueryRow(ctx, `SELECT available_quantity, committed_quantity FROM inventory_lots WHERE id = $1`, lot.LotID).Scan(&available, &committed))
	assert.True(t, available.Equal(decimal.NewFromInt(120)))
	assert.True(t, committed.Equal(decimal.NewFromInt(80)))

	unreserveRes, err := coordinator.Unreserve(ctx, core.UnreserveRequest{SOID: 55, UserID: ids.userID})
	require.NoError(t, err)
	assert.True(t, unreserveRes.ReleasedTotal.Equal(decimal.NewFromInt(80)))

	require.NoError(t, pool.QueryRow(ctx, `SELECT available_quantity, committed_quantity FROM inventory_lots WHERE id = $1`, lot.LotID).Scan(&available, &committed))
	assert.True(t, available.Equal(decimal.NewFromInt(200)))
	assert.True(t, committed.IsZero())
}

// TestUnreserve_NothingToReleaseIsIdempotent checks the soft-error contract:
// a second unreserve against an order with no open reservations commits a
// no-op and returns ErrNothingToRelease rather than failing.
func TestUnreserve_NothingToReleaseIsIdempotent(t *testing.T) {
	pool, coordinator, _, ctx := setupLedgerTestDB(t)
	defer pool.Close()

	res, err := coordinator.Unreserve(ctx, core.UnreserveRequest{SOID: 404, UserID: 1})
	require.ErrorIs(t, err, core.ErrNothingToRelease)
	require.NotNil(t, res)
	assert.True(t, res.ReleasedTotal.IsZero())
}

// TestOutbound_DispatchesFromLocationAndDecrementsAvailable matches spec
// §4.5.4: Outbound draws from available (not committed) stock at the given
// location, leaving committed untouched.
func TestOutbound_DispatchesFromLocationAndDecrementsAvailable(t *testing.T) {
	pool, coordinator, ids, ctx := setupLedgerTestDB(t)
	defer pool.Close()

	item := insertGRNItem(t, ctx, pool, ids, ids.productA, decimal.NewFromInt(300))
	lot, err := coordinator.Inbound(ctx, core.InboundRequest{
		ProductID: ids.productA, CategoryID: ids.categoryID, LocationID: ids.locationMain,
		SupplierID: ids.supplierID, GRNItemID: item, Quantity: decimal.NewFromInt(300), UserID: ids.userID,
	})
	require.NoError(t, err)

	outRes, err := coordinator.Outbound(ctx, core.OutboundRequest{
		ChallanID: 7, LocationID: ids.locationMain, UserID: ids.userID,
		Items: []core.OutboundItem{{ProductID: ids.productA, Quantity: decimal.NewFromInt(120)}},
	})
	require.NoError(t, err)
	require.Len(t, outRes.Allocations, 1)
	assert.Equal(t, lot.LotID, outRes.Allocations[0].LotID)

	var available decimal.Decimal
	require.NoError(t, pool.QueryRow(ctx, `SELECT available_quantity FROM inventory_lots WHERE id = $1`, lot.LotID).Scan(&available))
	assert.True(t, available.Equal(decimal.NewFromInt(180)))
}

// TestConvert_ReservedOrderBecomesChallanAtReservedLocation matches spec §8
// scenario 5: converting a NEW order with an open reservation mints an SC
// number, moves the order to DELIVERED, and dispatches from the location the
// stock was reserved at.
func TestConvert_ReservedOrderBecomesChallanAtReservedLocation(t *testing.T) {
	pool, coordinator, ids, ctx := setupLedgerTestDB(t)
	defer pool.Close()

	item := insertGRNItem(t, ctx, pool, ids, ids.productA, decimal.NewFromInt(100))
	lot, err := coordinator.Inbound(ctx, core.InboundRequest{
		ProductID: ids.productA, CategoryID: ids.categoryID, LocationID: ids.locationAux,
		SupplierID: ids.supplierID, GRNItemID: item, Quantity: decimal.NewFromInt(100), UserID: ids.userID,
	})
	require.NoError(t, err)

	var soID int64
	require.NoError(t, pool.QueryRow(ctx, `
		INSERT INTO sales_orders (so_number, customer_id, status, converted_to_challan, is_deleted, created_at)
		VALUES ('SO/2025/JUL/20/1', $1, 'NEW', false, false, NOW()) RETURNING id
	`, ids.customerID).Scan(&soID))
	_, err = pool.Exec(ctx, `INSERT INTO sales_order_items (so_id, product_id, quantity) VALUES ($1, $2, $3)`, soID, ids.productA, decimal.NewFromInt(60))
	require.NoError(t, err)

	_, err = coordinator.Reserve(ctx, core.ReserveRequest{
		SOID: soID, UserID: ids.userID,
		Items: []core.ReserveItem{{ProductID: ids.productA, Quantity: decimal.NewFromInt(60)}},
	})
	require.NoError(t, err)

	convertRes, err := coordinator.Convert(ctx, core.ConvertRequest{SOID: soID, UserID: ids.userID})
	require.NoError(t, err)
	assert.Regexp(t, `^SC/\d{4}/[A-Z]{3}/\d{2}/1$`, convertRes.SCNumber)

	var status string
	var convertedToChallan bool
	require.NoError(t, pool.QueryRow(ctx, `SELECT status, converted_to_challan FROM sales_orders WHERE id = $1`, soID).Scan(&status, &convertedToChallan))
	assert.Equal(t, "DELIVERED", status)
	assert.True(t, convertedToChallan)

	var scLocationID, scLotID int64
	require.NoError(t, pool.QueryRow(ctx, `
		SELECT sci.location_id, it.lot_id
		FROM sales_challan_items sci
		JOIN inventory_transactions it ON it.id = sci.inventory_transaction_id
		WHERE sci.sc_id = $1
	`, convertRes.SCID).Scan(&scLocationID, &scLotID))
	assert.Equal(t, ids.locationAux, scLocationID, "challan must dispatch from the location the stock was reserved at")
	assert.Equal(t, lot.LotID, scLotID)

	var auditActions []string
	rows, err := pool.Query(ctx, `SELECT action FROM audit_log WHERE (entity_type = 'sales_order' AND entity_id = $1) OR (entity_type = 'sales_challan' AND entity_id = $2) ORDER BY id`, soID, convertRes.SCID)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var action string
		require.NoError(t, rows.Scan(&action))
		auditActions = append(auditActions, action)
	}
	assert.Contains(t, auditActions, "convert")
	assert.Contains(t, auditActions, "create_challan")
}

// TestConvert_RejectsOrderWithoutOpenReservation covers the defensive branch
// in convertTx: a NEW order that was never reserved cannot be converted.
func TestConvert_RejectsOrderWithoutOpenReservation(t *testing.T) {
	pool, coordinator, ids, ctx := setupLedgerTestDB(t)
	defer pool.Close()

	var soID int64
	require.NoError(t, pool.QueryRow(ctx, `
		INSERT INTO sales_orders (so_number, customer_id, status, converted_to_challan, is_deleted, created_at)
		VALUES ('SO/2025/JUL/20/2', $1, 'NEW', false, false, NOW()) RETURNING id
	`, ids.customerID).Scan(&soID))

	_, err := coordinator.Convert(ctx, core.ConvertRequest{SOID: soID, UserID: ids.userID})
	require.Error(t, err)
	var lifecycleErr *core.LifecycleError
	require.ErrorAs(t, err, &lifecycleErr)
}

// TestConvert_RejectsAlreadyConvertedOrder enforces spec §4.5.5's guard:
// status must be NEW and converted_to_challan must be false.
func TestConvert_RejectsAlreadyConvertedOrder(t *testing.T) {
	pool, coordinator, ids, ctx := setupLedgerTestDB(t)
	defer pool.Close()

	var soID int64
	require.NoError(t, pool.QueryRow(ctx, `
		INSERT INTO sales_orders (so_number, customer_id, status, converted_to_challan, is_deleted, created_at)
		VALUES ('SO/2025/JUL/20/3', $1, 'DELIVERED', true, false, NOW()) RETURNING id
	`, ids.customerID).Scan(&soID))

	_, err := coordinator.Convert(ctx, core.ConvertRequest{SOID: soID, UserID: ids.userID})
	require.Error(t, err)
	var lifecycleErr *core.LifecycleError
	require.ErrorAs(t, err, &lifecycleErr)
}

// TestMintIdentifier_GapFillMintsSmallestUnusedNumber matches spec §8
// scenario 6: existing identifiers N=1 and N=3 for the same day leave N=2
// available, not N=4.
func TestMintIdentifier_GapFillMintsSmallestUnusedNumber(t *testing.T) {
	pool, _, ids, ctx := setupLedgerTestDB(t)
	defer pool.Close()

	_, err := pool.Exec(ctx, `INSERT INTO goods_receipts (grn_number, supplier_id, location_id, created_at) VALUES
		('GRN/2025/JUL/20/1', $1, $2, NOW()),
		('GRN/2025/JUL/20/3', $1, $2, NOW())
	`, ids.supplierID, ids.locationMain)
	require.NoError(t, err)

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	next, err := core.MintIdentifier(ctx, tx, "GRN", time.Date(2025, time.July, 20, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "GRN/2025/JUL/20/2", next)
}
