package core

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SalesOrderService owns sales_orders/sales_order_items CRUD and delegates
// the inventory-affecting parts of every transition to the Coordinator
// (spec §9: "do not hide authentication — or inventory mutation — inside
// a layer that isn't the ledger").
type SalesOrderService struct {
	pool        *pgxpool.Pool
	coordinator *LedgerCoordinator
}

func NewSalesOrderService(pool *pgxpool.Pool, coordinator *LedgerCoordinator) *SalesOrderService {
	return &SalesOrderService{pool: pool, coordinator: coordinator}
}

type CreateSalesOrderRequest struct {
	CustomerID int64
	UserID     int64
	LocationID *int64
	Items      []ReserveItem
}

// Create mints an SO number, inserts the order and its items, and reserves
// stock for every line inside one transaction run through the
// Coordinator's retrying façade — the whole creation rolls back, leaving no
// row behind, if reservation fails (spec §4.5.2 step 2: "roll back the
// entire order creation"; §4.5.7: "no partial success mode"). Mirrors the
// teacher's order_service.go ConfirmOrder, which calls ReserveStockTx on
// the same tx that inserted the order rather than committing it first.
func (s *SalesOrderService) Create(ctx context.Context, req CreateSalesOrderRequest) (*SalesOrder, *ReserveResult, error) {
	if len(req.Items) == 0 {
		return nil, nil, &ValidationError{Field: "items", Reason: "a sales order requires at least one line item"}
	}

	var so *SalesOrder
	var reserveRes *ReserveResult
	err := s.coordinator.runTx(ctx, "create_sales_order", func(ctx context.Context, tx pgx.Tx) error {
		so = &SalesOrder{CustomerID: req.CustomerID, Status: SOStatusNew}

		soNumber, err := MintIdentifier(ctx, tx, "SO", time.Now())
		if err != nil {
			return err
		}
		so.SONumber = soNumber

		if err := tx.QueryRow(ctx, `
			INSERT INTO sales_orders (so_number, customer_id, status, converted_to_challan, is_deleted, created_at)
			VALUES ($1, $2, $3, false, false, NOW())
			RETURNING id, created_at
		`, soNumber, req.CustomerID, SOStatusNew).Scan(&so.ID, &so.CreatedAt); err != nil {
			return classifyConnFault("insert sales order", err)
		}

		for _, item := range req.Items {
			var line SalesOrderLine
			line.SOID = so.ID
			line.ProductID = item.ProductID
			line.Quantity = item.Quantity
			if err := tx.QueryRow(ctx, `
				INSERT INTO sales_order_items (so_id, product_id, quantity) VALUES ($1, $2, $3) RETURNING id
			`, so.ID, item.ProductID, item.Quantity).Scan(&line.ID); err != nil {
				return classifyConnFault("insert sales order item", err)
			}
			so.Items = append(so.Items, line)
		}

		res, err := s.coordinator.reserveTx(ctx, tx, ReserveRequest{
			SOID:       so.ID,
			UserID:     req.UserID,
			LocationID: req.LocationID,
			Items:      req.Items,
		})
		if err != nil {
			return err
		}
		reserveRes = res
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return so, reserveRes, nil
}

// Cancel moves a NEW order to CANCELLED and releases its reservation in the
// same transaction, so a crash between the two never leaves stock committed
// against a cancelled order.
func (s *SalesOrderService) Cancel(ctx context.Context, soID, userID int64) (*UnreserveResult, error) {
	status, err := s.loadStatus(ctx, soID)
	if err != nil {
		return nil, err
	}
	if err := CheckSOTransition(soID, status, SOStatusCancelled); err != nil {
		return nil, err
	}

	var result *UnreserveResult
	err = s.coordinator.runTx(ctx, "cancel_sales_order", func(ctx context.Context, tx pgx.Tx) error {
		res, err := s.coordinator.unreserveTx(ctx, tx, UnreserveRequest{SOID: soID, UserID: userID})
		if err != nil {
			return err
		}
		result = res
		if _, err := tx.Exec(ctx, `UPDATE sales_orders SET status = $1 WHERE id = $2`, SOStatusCancelled, soID); err != nil {
			return classifyConnFault("cancel sales order", err)
		}
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

// Convert delegates entirely to the Coordinator's Conversion transition
// (spec §4.5.5); there is no SO-service-level bookkeeping left to do beyond
// what the Coordinator already commits in the same transaction.
func (s *SalesOrderService) Convert(ctx context.Context, soID, userID int64) (*ConvertResult, error) {
	return s.coordinator.Convert(ctx, ConvertRequest{SOID: soID, UserID: userID})
}

func (s *SalesOrderService) loadStatus(ctx context.Context, soID int64) (SalesOrderStatus, error) {
	var status SalesOrderStatus
	err := s.pool.QueryRow(ctx, `SELECT status FROM sales_orders WHERE id = $1`, soID).Scan(&status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", &ValidationError{Field: "so_id", Reason: "sales order not found"}
		}
		return "", classifyConnFault("load sales order status", err)
	}
	return status, nil
}
