package core

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ReportingService answers the two read-only queries named in spec §6:
// list_stock and list_stock_by_category. Neither mutates state, so both run
// as plain pooled queries rather than through the Coordinator's
// transactional machinery.
type ReportingService struct {
	pool *pgxpool.Pool
}

func NewReportingService(pool *pgxpool.Pool) *ReportingService {
	return &ReportingService{pool: pool}
}

type StockFilter struct {
	LocationID *int64
	ProductID  *int64
}

// ListStock returns lot-level stock rows, optionally filtered by location
// and/or product.
func (s *ReportingService) ListStock(ctx context.Context, filter StockFilter) ([]StockLevel, error) {
	query := `
		SELECT id, lot_number, product_id, category_id, location_id, supplier_id,
		       available_quantity, committed_quantity, created_at
		FROM inventory_lots
		WHERE 1 = 1
	`
	var args []any
	if filter.LocationID != nil {
		args = append(args, *filter.LocationID)
		query += " AND location_id = $" + strconv.Itoa(len(args))
	}
	if filter.ProductID != nil {
		args = append(args, *filter.ProductID)
		query += " AND product_id = $" + strconv.Itoa(len(args))
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classifyConnFault("list stock", err)
	}
	defer rows.Close()

	var out []StockLevel
	for rows.Next() {
		var sl StockLevel
		if err := rows.Scan(&sl.LotID, &sl.LotNumber, &sl.ProductID, &sl.CategoryID, &sl.LocationID,
			&sl.SupplierID, &sl.AvailableQty, &sl.CommittedQty, &sl.CreatedAt); err != nil {
			return nil, classifyConnFault("list stock", err)
		}
		out = append(out, sl)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyConnFault("list stock", err)
	}
	return out, nil
}

// ListStockByCategory aggregates available/committed quantity per category,
// with the lot-level ListStock rows (each carrying its product id) nested
// underneath in Products (spec §6: "aggregate per category, with product
// breakdown").
func (s *ReportingService) ListStockByCategory(ctx context.Context, locationID *int64) ([]CategoryStockSummary, error) {
	rows, err := s.ListStock(ctx, StockFilter{LocationID: locationID})
	if err != nil {
		return nil, err
	}

	order := []int64{}
	byCategory := map[int64]*CategoryStockSummary{}
	for _, row := range rows {
		cs, ok := byCategory[row.CategoryID]
		if !ok {
			cs = &CategoryStockSummary{CategoryID: row.CategoryID}
			byCategory[row.CategoryID] = cs
			order = append(order, row.CategoryID)
		}
		cs.AvailableQty = cs.AvailableQty.Add(row.AvailableQty)
		cs.CommittedQty = cs.CommittedQty.Add(row.CommittedQty)
		cs.Products = append(cs.Products, row)
	}

	out := make([]CategoryStockSummary, 0, len(order))
	for _, catID := range order {
		out = append(out, *byCategory[catID])
	}
	return out, nil
}
