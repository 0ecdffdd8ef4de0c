package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

var monthAbbrev = [...]string{
	"JAN", "FEB", "MAR", "APR", "MAY", "JUN",
	"JUL", "AUG", "SEP", "OCT", "NOV", "DEC",
}

// identifierTable maps a prefix to the table+column holding identifiers of
// that kind. Every identifier-bearing document uses the format
// PFX/YYYY/MON/DD/N (spec §4.1/§6).
var identifierTable = map[string]struct {
	table  string
	column string
}{
	"GRN": {"goods_receipts", "grn_number"},
	"SO":  {"sales_orders", "so_number"},
	"SC":  {"sales_challans", "sc_number"},
	"JO":  {"job_orders", "jo_number"},
	"PO":  {"purchase_orders", "po_number"},
	"LOT": {"inventory_lots", "lot_number"},
}

// datePrefix returns "PFX/YYYY/MON/DD/" for the given prefix and date.
func datePrefix(prefix string, date time.Time) string {
	return fmt.Sprintf("%s/%04d/%s/%02d/", prefix, date.Year(), monthAbbrev[date.Month()-1], date.Day())
}

// MintIdentifier allocates the smallest positive integer N not already used
// for (prefix, date), scanning existing identifiers sharing the same string
// prefix within the caller's transaction (spec §4.1). A unique index on the
// identifier column is the safety net: if two concurrent mints race and
// collide, the INSERT that follows will violate that index and the caller
// is expected to retry by calling MintIdentifier again (see retry.go).
func MintIdentifier(ctx context.Context, tx pgx.Tx, prefix string, date time.Time) (string, error) {
	meta, ok := identifierTable[prefix]
	if !ok {
		return "", &ValidationError{Field: "prefix", Reason: fmt.Sprintf("unknown identifier prefix %q", prefix)}
	}

	pfx := datePrefix(prefix, date)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s LIKE $1", meta.column, meta.table, meta.column)
	rows, err := tx.Query(ctx, query, pfx+"%")
	if err != nil {
		return "", classifyConnFault("mint identifier scan", err)
	}
	defer rows.Close()

	used := map[int]struct{}{}
	for rows.Next() {
		var ident string
		if err := rows.Scan(&ident); err != nil {
			return "", classifyConnFault("mint identifier scan", err)
		}
		n, ok := trailingInt(ident)
		if ok {
			used[n] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return "", classifyConnFault("mint identifier scan", err)
	}

	n := 1
	for {
		if _, taken := used[n]; !taken {
			break
		}
		n++
	}

	return fmt.Sprintf("%s%d", pfx, n), nil
}

// trailingInt extracts the integer N from "PFX/YYYY/MON/DD/N".
func trailingInt(ident string) (int, bool) {
	idx := strings.LastIndex(ident, "/")
	if idx < 0 || idx == len(ident)-1 {
		return 0, false
	}
	n, err := strconv.Atoi(ident[idx+1:])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
