// Package cli restructures the teacher's switch-based dispatcher
// (internal/adapters/cli/cli.go) into a cobra command tree, one subcommand
// per spec §6 procedure call.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"textile-inventory-ledger/internal/core"
)

type Deps struct {
	GRN          *core.GRNService
	SalesOrder   *core.SalesOrderService
	SalesChallan *core.SalesChallanService
	Reporting    *core.ReportingService
	Coordinator  *core.LedgerCoordinator
}

// NewRootCommand builds the `ledger` command tree.
func NewRootCommand(deps Deps) *cobra.Command {
	root := &cobra.Command{
		Use:   "ledger",
		Short: "Inventory ledger core command-line interface",
	}

	root.AddCommand(
		newInboundCmd(deps),
		newReserveCmd(deps),
		newUnreserveCmd(deps),
		newUnreserveAllCmd(deps),
		newOutboundCmd(deps),
		newConvertCmd(deps),
		newStockCmd(deps),
		newStockByCategoryCmd(deps),
	)
	return root
}

func printJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(string(b))
}

func parseItems(raw []string) ([]pair, error) {
	var out []pair
	for _, item := range raw {
		parts := strings.SplitN(item, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid item %q, expected product_id:quantity", item)
		}
		productID, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid product id in %q: %w", item, err)
		}
		qty, err := decimal.NewFromString(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid quantity in %q: %w", item, err)
		}
		out = append(out, pair{productID: productID, quantity: qty})
	}
	return out, nil
}

type pair struct {
	productID int64
	quantity  decimal.Decimal
}

func newInboundCmd(deps Deps) *cobra.Command {
	var supplierID, locationID, categoryID, productID, userID int64
	var quantity string

	cmd := &cobra.Command{
		Use:   "inbound",
		Short: "Receive stock against a single-item GRN",
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := decimal.NewFromString(quantity)
			if err != nil {
				return err
			}
			grn, results, err := deps.GRN.Create(context.Background(), core.CreateGRNRequest{
				SupplierID: supplierID,
				LocationID: locationID,
				UserID:     userID,
				Items:      []core.CreateGRNItem{{ProductID: productID, CategoryID: categoryID, Quantity: qty}},
			})
			if err != nil {
				return err
			}
			printJSON(map[string]any{"grn_number": grn.GRNNumber, "lots": results})
			return nil
		},
	}
	cmd.Flags().Int64Var(&supplierID, "supplier", 0, "supplier id")
	cmd.Flags().Int64Var(&locationID, "location", 0, "location id")
	cmd.Flags().Int64Var(&categoryID, "category", 0, "category id")
	cmd.Flags().Int64Var(&productID, "product", 0, "product id")
	cmd.Flags().Int64Var(&userID, "user", 0, "acting user id")
	cmd.Flags().StringVar(&quantity, "qty", "", "quantity")
	return cmd
}

func newReserveCmd(deps Deps) *cobra.Command {
	var customerID, locationID, userID int64
	var items []string

	cmd := &cobra.Command{
		Use:   "reserve",
		Short: "Create a sales order and reserve stock for it",
		RunE: func(cmd *cobra.Command, args []string) error {
			pairs, err := parseItems(items)
			if err != nil {
				return err
			}
			reserveItems := make([]core.ReserveItem, 0, len(pairs))
			for _, p := range pairs {
				reserveItems = append(reserveItems, core.ReserveItem{ProductID: p.productID, Quantity: p.quantity})
			}
			var loc *int64
			if locationID != 0 {
				loc = &locationID
			}
			so, res, err := deps.SalesOrder.Create(context.Background(), core.CreateSalesOrderRequest{
				CustomerID: customerID, UserID: userID, LocationID: loc, Items: reserveItems,
			})
			if err != nil {
				return err
			}
			printJSON(map[string]any{"so_number": so.SONumber, "reserved_total": res.ReservedTotal})
			return nil
		},
	}
	cmd.Flags().Int64Var(&customerID, "customer", 0, "customer id")
	cmd.Flags().Int64Var(&locationID, "location", 0, "location id (0 = any)")
	cmd.Flags().Int64Var(&userID, "user", 0, "acting user id")
	cmd.Flags().StringSliceVar(&items, "item", nil, "product_id:quantity, repeatable")
	return cmd
}

func newUnreserveCmd(deps Deps) *cobra.Command {
	var soID, userID int64
	cmd := &cobra.Command{
		Use:   "unreserve",
		Short: "Cancel a sales order and release its reservation",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := deps.SalesOrder.Cancel(context.Background(), soID, userID)
			if err != nil && err != core.ErrNothingToRelease {
				return err
			}
			released := "0"
			if res != nil {
				released = res.ReleasedTotal.String()
			}
			printJSON(map[string]any{"released_total": released})
			return nil
		},
	}
	cmd.Flags().Int64Var(&soID, "so", 0, "sales order id")
	cmd.Flags().Int64Var(&userID, "user", 0, "acting user id")
	return cmd
}

func newUnreserveAllCmd(deps Deps) *cobra.Command {
	var userID int64
	cmd := &cobra.Command{
		Use:   "unreserve-all",
		Short: "Release committed stock across every NEW sales order",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := deps.Coordinator.UnreserveAll(context.Background(), userID)
			if err != nil {
				return err
			}
			printJSON(res.Orders)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "acting user id")
	return cmd
}

func newOutboundCmd(deps Deps) *cobra.Command {
	var customerID, locationID, userID int64
	var items []string

	cmd := &cobra.Command{
		Use:   "outbound",
		Short: "Create a standalone sales challan and dispatch stock",
		RunE: func(cmd *cobra.Command, args []string) error {
			pairs, err := parseItems(items)
			if err != nil {
				return err
			}
			outItems := make([]core.OutboundItem, 0, len(pairs))
			for _, p := range pairs {
				outItems = append(outItems, core.OutboundItem{ProductID: p.productID, Quantity: p.quantity})
			}
			sc, res, err := deps.SalesChallan.Create(context.Background(), core.CreateSalesChallanRequest{
				CustomerID: customerID, LocationID: locationID, UserID: userID, Items: outItems,
			})
			if err != nil {
				return err
			}
			printJSON(map[string]any{"sc_number": sc.SCNumber, "allocations": res.Allocations})
			return nil
		},
	}
	cmd.Flags().Int64Var(&customerID, "customer", 0, "customer id")
	cmd.Flags().Int64Var(&locationID, "location", 0, "location id")
	cmd.Flags().Int64Var(&userID, "user", 0, "acting user id")
	cmd.Flags().StringSliceVar(&items, "item", nil, "product_id:quantity, repeatable")
	return cmd
}

func newConvertCmd(deps Deps) *cobra.Command {
	var soID, userID int64
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert a sales order into a sales challan",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := deps.SalesOrder.Convert(context.Background(), soID, userID)
			if err != nil {
				return err
			}
			printJSON(map[string]any{"sc_number": res.SCNumber})
			return nil
		},
	}
	cmd.Flags().Int64Var(&soID, "so", 0, "sales order id")
	cmd.Flags().Int64Var(&userID, "user", 0, "acting user id")
	return cmd
}

func newStockCmd(deps Deps) *cobra.Command {
	var locationID, productID int64
	cmd := &cobra.Command{
		Use:   "stock",
		Short: "List lot-level stock",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := core.StockFilter{}
			if locationID != 0 {
				filter.LocationID = &locationID
			}
			if productID != 0 {
				filter.ProductID = &productID
			}
			rows, err := deps.Reporting.ListStock(context.Background(), filter)
			if err != nil {
				return err
			}
			printJSON(rows)
			return nil
		},
	}
	cmd.Flags().Int64Var(&locationID, "location", 0, "filter by location id")
	cmd.Flags().Int64Var(&productID, "product", 0, "filter by product id")
	return cmd
}

func newStockByCategoryCmd(deps Deps) *cobra.Command {
	var locationID int64
	cmd := &cobra.Command{
		Use:   "stock-by-category",
		Short: "List stock aggregated per category",
		RunE: func(cmd *cobra.Command, args []string) error {
			var loc *int64
			if locationID != 0 {
				loc = &locationID
			}
			rows, err := deps.Reporting.ListStockByCategory(context.Background(), loc)
			if err != nil {
				return err
			}
			printJSON(rows)
			return nil
		},
	}
	cmd.Flags().Int64Var(&locationID, "location", 0, "filter by location id")
	return cmd
}
