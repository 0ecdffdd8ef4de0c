package core

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Allocation is one lot's share of a larger requested quantity.
// TransactionID is populated only once the allocation has actually been
// applied and logged (outboundTx) — callers that only plan (reserveTx)
// leave it zero.
type Allocation struct {
	ProductID     int64
	LotID         int64
	LocationID    int64
	Quantity      decimal.Decimal
	TransactionID int64
}

// Allocator picks which lots satisfy a requested quantity, oldest first
// (spec §4.4: "FIFO by created_at, tie-broken by lot id").
type Allocator struct{}

func NewAllocator() *Allocator { return &Allocator{} }

type candidateLot struct {
	id         int64
	locationID int64
	available  decimal.Decimal
}

// allocateFIFO walks candidates oldest-first, taking min(remaining, lot
// available) from each until the requested quantity is exhausted. It
// returns ErrInsufficientStock if the candidate set cannot cover the
// request, naming the shortfall against productID.
func allocateFIFO(productID int64, required decimal.Decimal, candidates []candidateLot) ([]Allocation, error) {
	remaining := required
	var allocations []Allocation
	total := decimal.Zero

	for _, c := range candidates {
		total = total.Add(c.available)
		if remaining.LessThanOrEqual(decimal.Zero) {
			continue
		}
		take := c.available
		if take.GreaterThan(remaining) {
			take = remaining
		}
		if take.GreaterThan(decimal.Zero) {
			allocations = append(allocations, Allocation{ProductID: productID, LotID: c.id, LocationID: c.locationID, Quantity: take})
			remaining = remaining.Sub(take)
		}
	}

	if remaining.GreaterThan(decimal.Zero) {
		return nil, &InsufficientStockError{Lines: []InsufficientStockLine{
			{ProductID: productID, Available: total, Required: required},
		}}
	}
	return allocations, nil
}

// ForLocation allocates required units of productID from a single location,
// the variant used by Outbound (spec §4.5.4): stock must ship from the
// location it is recorded at.
func (a *Allocator) ForLocation(ctx context.Context, tx pgx.Tx, productID, locationID int64, required decimal.Decimal) ([]Allocation, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, location_id, available_quantity
		FROM inventory_lots
		WHERE product_id = $1 AND location_id = $2 AND available_quantity > 0
		ORDER BY created_at ASC, id ASC
		FOR UPDATE
	`, productID, locationID)
	if err != nil {
		return nil, classifyConnFault("allocate for location", err)
	}
	candidates, err := scanCandidates(rows)
	if err != nil {
		return nil, err
	}
	return allocateFIFO(productID, required, candidates)
}

// AnyLocation allocates required units of productID across every active
// location, the variant used by Reserve (spec §4.5.2): a sales order is not
// yet bound to a ship-from location.
func (a *Allocator) AnyLocation(ctx context.Context, tx pgx.Tx, productID int64, required decimal.Decimal) ([]Allocation, error) {
	rows, err := tx.Query(ctx, `
		SELECT l.id, l.location_id, l.available_quantity
		FROM inventory_lots l
		JOIN locations loc ON loc.id = l.location_id
		WHERE l.product_id = $1 AND loc.is_active = true AND l.available_quantity > 0
		ORDER BY l.created_at ASC, l.id ASC
		FOR UPDATE OF l
	`, productID)
	if err != nil {
		return nil, classifyConnFault("allocate any location", err)
	}
	candidates, err := scanCandidates(rows)
	if err != nil {
		return nil, err
	}
	return allocateFIFO(productID, required, candidates)
}

func scanCandidates(rows pgx.Rows) ([]candidateLot, error) {
	defer rows.Close()
	var out []candidateLot
	for rows.Next() {
		var c candidateLot
		if err := rows.Scan(&c.id, &c.locationID, &c.available); err != nil {
			return nil, classifyConnFault("scan allocation candidates", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyConnFault("scan allocation candidates", err)
	}
	return out, nil
}
