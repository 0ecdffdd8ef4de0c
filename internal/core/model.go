package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies an inventory_transactions row.
type TransactionType string

const (
	TxnInbound    TransactionType = "INBOUND"
	TxnOutbound   TransactionType = "OUTBOUND"
	TxnAdjustment TransactionType = "ADJUSTMENT"
)

// ReservationTag distinguishes the two halves of a reserve/unreserve pair.
// It is carried on ADJUSTMENT transactions only (see spec §9, "Reservation tag").
type ReservationTag string

const (
	ReservationNone      ReservationTag = ""
	ReservationReserve   ReservationTag = "RESERVE"
	ReservationUnreserve ReservationTag = "UNRESERVE"
)

// Lot is an immutable physical stock record originated by one GRN item.
// Only available_quantity and committed_quantity mutate after creation.
type Lot struct {
	ID              int64
	LotNumber       string
	ProductID       int64
	CategoryID      int64
	LocationID      int64
	SupplierID      int64
	GRNItemID       int64
	AvailableQty    decimal.Decimal
	CommittedQty    decimal.Decimal
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CreatedBy       int64
	UpdatedBy       int64
}

// Transaction is an append-only record of a quantity-moving event.
type Transaction struct {
	ID                     int64
	LotID                  int64
	Type                   TransactionType
	ReservationTag         ReservationTag
	Quantity               decimal.Decimal
	LocationID             int64
	ReferenceType          string
	ReferenceID            int64
	Description            string
	BalanceAfterAvailable  decimal.Decimal
	CreatedBy              int64
	CreatedAt              time.Time
}

// SalesOrderStatus is restricted to the three values the ledger understands.
// Legacy values (Processing, Dispatched, Pending) are rejected at the
// boundary — see DESIGN.md Open Question 1.
type SalesOrderStatus string

const (
	SOStatusNew       SalesOrderStatus = "NEW"
	SOStatusDelivered SalesOrderStatus = "DELIVERED"
	SOStatusCancelled SalesOrderStatus = "CANCELLED"
)

type SalesOrderLine struct {
	ID         int64
	SOID       int64
	ProductID  int64
	Quantity   decimal.Decimal
	LocationID int64 // not filled by SalesOrderService.Create or loadSalesOrderItems; reserved locations are reported in ReserveResult.PerItemLocations
}

type SalesOrder struct {
	ID                int64
	SONumber          string
	CustomerID        int64
	Status            SalesOrderStatus
	ConvertedToChallan bool
	IsDeleted         bool
	Items             []SalesOrderLine
	CreatedAt         time.Time
}

type SalesChallanStatus string

const (
	SCStatusNew       SalesChallanStatus = "NEW"
	SCStatusDelivered SalesChallanStatus = "DELIVERED"
	SCStatusCancelled SalesChallanStatus = "CANCELLED"
)

type SalesChallanLine struct {
	ID                     int64
	SCID                   int64
	ProductID              int64
	Quantity               decimal.Decimal
	LocationID             int64
	InventoryTransactionID int64
}

type SalesChallan struct {
	ID         int64
	SCNumber   string
	CustomerID int64
	Status     SalesChallanStatus
	SourceSOID *int64
	Items      []SalesChallanLine
	CreatedAt  time.Time
}

type GRNItem struct {
	ID         int64
	GRNID      int64
	ProductID  int64
	CategoryID int64
	SupplierID int64
	Quantity   decimal.Decimal
	LotID      *int64
}

type GRN struct {
	ID         int64
	GRNNumber  string
	SupplierID int64
	LocationID int64
	Items      []GRNItem
	CreatedAt  time.Time
}

// PurchaseOrderState is the document's workflow state. Together with
// PurchaseOrder.ConvertedToGRN it forms the pair that gates which actions are
// legal (poAllowedActions in lifecycle.go), per spec §4.5.6.
type PurchaseOrderState string

const (
	POStateOrderPlaced   PurchaseOrderState = "Order Placed"
	POStateOrderReceived PurchaseOrderState = "Order Received"
	POStateOrderCancelled PurchaseOrderState = "Order Cancelled"
)

type PurchaseOrder struct {
	ID              int64
	PONumber        string
	SupplierID      int64
	State           PurchaseOrderState
	ConvertedToGRN  bool
	CreatedAt       time.Time
}

// JobOrder is carried for completeness of the document set named in spec §1;
// it never touches inventory and has no state machine of its own beyond a
// free-form status recorded by the caller.
type JobOrder struct {
	ID         int64
	JONumber   string
	ProcessorID int64
	Status     string
	CreatedAt  time.Time
}

// AuditEntry is one audit_log row, written in the same transaction as the
// coordinator operation it records (a conversion writes two).
type AuditEntry struct {
	ID         int64
	Action     string
	EntityType string
	EntityID   int64
	UserID     int64
	Timestamp  time.Time
	Details    string // JSON
}

// StockLevel is one row of the list_stock report.
type StockLevel struct {
	LotID         int64
	LotNumber     string
	ProductID     int64
	CategoryID    int64
	LocationID    int64
	SupplierID    int64
	AvailableQty  decimal.Decimal
	CommittedQty  decimal.Decimal
	CreatedAt     time.Time
}

// CategoryStockSummary is one row of the list_stock_by_category report.
type CategoryStockSummary struct {
	CategoryID   int64
	AvailableQty decimal.Decimal
	CommittedQty decimal.Decimal
	Products     []StockLevel
}
