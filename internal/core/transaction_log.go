package core

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// TransactionLog appends self-verifying records to inventory_transactions
// (spec §4.3: "balance_after_available lets a reader replay a lot's history
// and confirm it against the lot's current available_quantity without
// trusting any cached total").
type TransactionLog struct{}

func NewTransactionLog() *TransactionLog { return &TransactionLog{} }

// Append writes one transaction row. balanceAfterAvailable must be the
// lot's available_quantity immediately after the same-transaction lot
// update — callers pass the value returned by LotStore.ApplyDelta/CreateLot
// so the two writes agree by construction.
func (l *TransactionLog) Append(ctx context.Context, tx pgx.Tx, t Transaction) (*Transaction, error) {
	err := tx.QueryRow(ctx, `
		INSERT INTO inventory_transactions
			(lot_id, transaction_type, reservation_type, quantity, location_id,
			 reference_type, reference_id, description, balance_after_available,
			 created_by, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, NOW())
		RETURNING id, created_at
	`,
		t.LotID, string(t.Type), string(t.ReservationTag), t.Quantity, t.LocationID,
		t.ReferenceType, t.ReferenceID, t.Description, t.BalanceAfterAvailable, t.CreatedBy,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return nil, classifyConnFault("append transaction", err)
	}
	return &t, nil
}

// OpenReservations returns every RESERVE-tagged ADJUSTMENT transaction for
// (referenceType, referenceID) that has not yet been offset by an UNRESERVE
// transaction on the same lot, ordered oldest first. Unreserve/UnreserveAll
// walk this list to produce the mirror-image release (spec §4.5.3).
func (l *TransactionLog) OpenReservations(ctx context.Context, tx pgx.Tx, referenceType string, referenceID int64) ([]Transaction, error) {
	rows, err := tx.Query(ctx, `
		SELECT r.id, r.lot_id, r.transaction_type, r.reservation_type, r.quantity, r.location_id,
		       r.reference_type, r.reference_id, r.description, r.balance_after_available,
		       r.created_by, r.created_at
		FROM inventory_transactions r
		WHERE r.reservation_type = 'RESERVE'
		  AND r.reference_type = $1
		  AND r.reference_id = $2
		  AND r.quantity > (
		      SELECT COALESCE(SUM(u.quantity), 0)
		      FROM inventory_transactions u
		      WHERE u.reservation_type = 'UNRESERVE'
		        AND u.reference_type = r.reference_type
		        AND u.reference_id = r.reference_id
		        AND u.lot_id = r.lot_id
		        AND u.created_at >= r.created_at
		  )
		ORDER BY r.created_at ASC, r.id ASC
	`, referenceType, referenceID)
	if err != nil {
		return nil, classifyConnFault("load open reservations", err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var t Transaction
		var tag *string
		if err := rows.Scan(&t.ID, &t.LotID, &t.Type, &tag, &t.Quantity, &t.LocationID,
			&t.ReferenceType, &t.ReferenceID, &t.Description, &t.BalanceAfterAvailable,
			&t.CreatedBy, &t.CreatedAt); err != nil {
			return nil, classifyConnFault("load open reservations", err)
		}
		if tag != nil {
			t.ReservationTag = ReservationTag(*tag)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyConnFault("load open reservations", err)
	}
	return out, nil
}
