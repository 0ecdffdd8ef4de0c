package core_test

import (
	"context"
	"testing"

	"textile-inventory-ledger/internal/core"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPurchaseOrderService_CreateMintsSequentialNumber(t *testing.T) {
	pool, _, ids, ctx := setupLedgerTestDB(t)
	defer pool.Close()

	svc := core.NewPurchaseOrderService(pool)
	po, err := svc.Create(ctx, ids.supplierID)
	require.NoError(t, err)
	assert.Regexp(t, `^PO/\d{4}/[A-Z]{3}/\d{2}/1$`, po.PONumber)
	assert.Equal(t, core.POStateOrderPlaced, po.State)
}

// TestPurchaseOrderService_TransitionAppliesOnlyWhenActionIsAllowed
// exercises the full gate: Transition loads+locks the row, checks the
// action against the lifecycle table, and only then runs the caller's apply
// closure in the same transaction.
func TestPurchaseOrderService_TransitionAppliesOnlyWhenActionIsAllowed(t *testing.T) {
	pool, _, ids, ctx := setupLedgerTestDB(t)
	defer pool.Close()

	svc := core.NewPurchaseOrderService(pool)
	po, err := svc.Create(ctx, ids.supplierID)
	require.NoError(t, err)

	applied := false
	err = svc.Transition(ctx, po.ID, core.ActionReceive, func(ctx context.Context, tx pgx.Tx) error {
		applied = true
		_, err := tx.Exec(ctx, `UPDATE purchase_orders SET state = $1 WHERE id = $2`, core.POStateOrderReceived, po.ID)
		return err
	})
	require.NoError(t, err)
	assert.True(t, applied)

	var state string
	require.NoError(t, pool.QueryRow(ctx, `SELECT state FROM purchase_orders WHERE id = $1`, po.ID).Scan(&state))
	assert.Equal(t, "Order Received", state)
}

// TestPurchaseOrderService_TransitionRejectsDisallowedActionWithoutApplying
// confirms the apply closure never runs when CheckPOAction rejects — e.g.
// converting a PO that is still in "Order Placed".
func TestPurchaseOrderService_TransitionRejectsDisallowedActionWithoutApplying(t *testing.T) {
	pool, _, ids, ctx := setupLedgerTestDB(t)
	defer pool.Close()

	svc := core.NewPurchaseOrderService(pool)
	po, err := svc.Create(ctx, ids.supplierID)
	require.NoError(t, err)

	applied := false
	err = svc.Transition(ctx, po.ID, core.ActionConvert, func(ctx context.Context, tx pgx.Tx) error {
		applied = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, applied)
	var lifecycleErr *core.LifecycleError
	require.ErrorAs(t, err, &lifecycleErr)
}

func TestPurchaseOrderService_TransitionUnknownIDIsValidationError(t *testing.T) {
	pool, _, _, ctx := setupLedgerTestDB(t)
	defer pool.Close()

	svc := core.NewPurchaseOrderService(pool)
	err := svc.Transition(ctx, 999999, core.ActionCancel, func(ctx context.Context, tx pgx.Tx) error { return nil })
	require.Error(t, err)
	var validationErr *core.ValidationError
	require.ErrorAs(t, err, &validationErr)
}
