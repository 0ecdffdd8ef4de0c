package core

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyConnFault_RecognizesConnectionResetAsTransient(t *testing.T) {
	err := classifyConnFault("allocate", errors.New("read: connection reset by peer"))
	assert.True(t, errors.Is(err, ErrTransient))
}

func TestClassifyConnFault_IsCaseInsensitive(t *testing.T) {
	err := classifyConnFault("allocate", errors.New("Connection Refused"))
	assert.True(t, errors.Is(err, ErrTransient))
}

func TestClassifyConnFault_UnrecognizedFaultIsPersistence(t *testing.T) {
	err := classifyConnFault("allocate", errors.New("duplicate key value violates unique constraint"))
	var persistErr *PersistenceError
	require.ErrorAs(t, err, &persistErr)
	assert.Equal(t, "allocate", persistErr.Op)
}

func TestClassifyConnFault_PgUniqueViolationBecomesUniquenessConflict(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           pgUniqueViolation,
		ConstraintName: "sales_orders_so_number_key",
		Detail:         "Key (so_number)=(SO/2025/JUL/20/1) already exists.",
	}
	err := classifyConnFault("insert sales order", pgErr)

	var uc *UniquenessConflictError
	require.ErrorAs(t, err, &uc)
	assert.Equal(t, "so_number", uc.Field)
	assert.Equal(t, "SO/2025/JUL/20/1", uc.Value)
	assert.True(t, IsRetryable(err))
}

func TestClassifyConnFault_PgUniqueViolationFallsBackToConstraintNameWithoutDetail(t *testing.T) {
	pgErr := &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "lot_number_key"}
	err := classifyConnFault("insert lot", pgErr)

	var uc *UniquenessConflictError
	require.ErrorAs(t, err, &uc)
	assert.Equal(t, "lot_number_key", uc.Field)
}

func TestClassifyConnFault_NilErrorPassesThrough(t *testing.T) {
	assert.NoError(t, classifyConnFault("allocate", nil))
}

func TestIsRetryable_OnlyTransientAndUniquenessConflict(t *testing.T) {
	assert.True(t, IsRetryable(&UniquenessConflictError{Field: "so_number", Value: "SO/2025/JUL/20/1"}))
	assert.True(t, IsRetryable(classifyConnFault("op", errors.New("broken pipe"))))
	assert.False(t, IsRetryable(&ValidationError{Field: "quantity", Reason: "must be positive"}))
	assert.False(t, IsRetryable(&LifecycleError{EntityType: "sales_order", EntityID: 1, Action: "cancel", Reason: "already cancelled"}))
	assert.False(t, IsRetryable(&InsufficientStockError{}))
}

func TestInsufficientStockError_SingleLineMessageNamesTheProduct(t *testing.T) {
	err := &InsufficientStockError{Lines: []InsufficientStockLine{
		{ProductID: 7, Available: dec("30"), Required: dec("100")},
	}}
	assert.Contains(t, err.Error(), "product 7")
}

func TestInsufficientStockError_MultiLineMessageReportsCount(t *testing.T) {
	err := &InsufficientStockError{Lines: []InsufficientStockLine{
		{ProductID: 1, Available: dec("0"), Required: dec("5")},
		{ProductID: 2, Available: dec("0"), Required: dec("5")},
	}}
	assert.Contains(t, err.Error(), "2 product")
}

func TestStructuredErrors_UnwrapToSentinels(t *testing.T) {
	assert.True(t, errors.Is(&ValidationError{}, ErrInputValidation))
	assert.True(t, errors.Is(&LifecycleError{}, ErrLifecycleViolation))
	assert.True(t, errors.Is(&InsufficientStockError{}, ErrInsufficientStock))
	assert.True(t, errors.Is(&UniquenessConflictError{}, ErrUniquenessConflict))
	assert.True(t, errors.Is(&PersistenceError{Err: errors.New("x")}, ErrPersistence))
	assert.True(t, errors.Is(&TimeoutError{Op: "reserve"}, ErrTimeout))
}
