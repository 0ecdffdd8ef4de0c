// Package web is the thin HTTP/JSON transport around the ledger core's
// seven procedure calls (spec §6); it never implements ledger semantics
// itself (spec §1: "out of scope... the HTTP/JSON request layer").
package web

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"textile-inventory-ledger/internal/core"
)

// Handler holds the core services and the chi router.
type Handler struct {
	grn       *core.GRNService
	so        *core.SalesOrderService
	sc        *core.SalesChallanService
	reporting *core.ReportingService
	jwtSecret string
	logger    zerolog.Logger
	router    chi.Router
}

type Services struct {
	GRN          *core.GRNService
	SalesOrder   *core.SalesOrderService
	SalesChallan *core.SalesChallanService
	Reporting    *core.ReportingService
}

// NewHandler wires the chi router over the seven procedure calls named in
// spec §6.
func NewHandler(svc Services, allowedOrigins []string, jwtSecret string, logger zerolog.Logger) http.Handler {
	h := &Handler{
		grn:       svc.GRN,
		so:        svc.SalesOrder,
		sc:        svc.SalesChallan,
		reporting: svc.Reporting,
		jwtSecret: jwtSecret,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Recoverer(logger))
	r.Use(CORS(allowedOrigins))

	r.Get("/api/health", h.health)

	r.Group(func(r chi.Router) {
		r.Use(h.RequireAuth)
		r.Use(RequestBodyLimit(1 << 20))

		r.Post("/api/grn", h.inbound)
		r.Post("/api/sales-orders", h.reserve)
		r.Post("/api/sales-orders/{id}/cancel", h.unreserve)
		r.Post("/api/sales-orders/{id}/convert", h.convert)
		r.Post("/api/sales-challans", h.outbound)
		r.Get("/api/stock", h.listStock)
		r.Get("/api/stock/by-category", h.listStockByCategory)
	})

	h.router = r
	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// inbound handles POST /api/grn — spec §6 `inbound(grn_item)`.
func (h *Handler) inbound(w http.ResponseWriter, r *http.Request) {
	claims := authFromContext(r.Context())
	var req createGRNRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	items := make([]core.CreateGRNItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, core.CreateGRNItem{ProductID: it.ProductID, CategoryID: it.CategoryID, Quantity: it.Quantity})
	}

	grn, results, err := h.grn.Create(r.Context(), core.CreateGRNRequest{
		SupplierID: req.SupplierID,
		LocationID: req.LocationID,
		UserID:     claims.UserID,
		Items:      items,
	})
	if err != nil {
		writeCoreError(w, r, err)
		return
	}

	writeJSON(w, map[string]any{
		"grn_id":     grn.ID,
		"grn_number": grn.GRNNumber,
		"lots":       results,
	})
}

// reserve handles POST /api/sales-orders — spec §6 `reserve(so_id, items[], user, location?)`.
func (h *Handler) reserve(w http.ResponseWriter, r *http.Request) {
	claims := authFromContext(r.Context())
	var req createSalesOrderRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	items := make([]core.ReserveItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, core.ReserveItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	so, reserveRes, err := h.so.Create(r.Context(), core.CreateSalesOrderRequest{
		CustomerID: req.CustomerID,
		UserID:     claims.UserID,
		LocationID: req.LocationID,
		Items:      items,
	})
	if err != nil {
		writeCoreError(w, r, err)
		return
	}

	writeJSON(w, map[string]any{
		"so_id":              so.ID,
		"so_number":          so.SONumber,
		"reserved_total":     reserveRes.ReservedTotal,
		"per_item_locations": reserveRes.PerItemLocations,
	})
}

// unreserve handles POST /api/sales-orders/{id}/cancel — spec §6 `unreserve(so_id, user)`.
func (h *Handler) unreserve(w http.ResponseWriter, r *http.Request) {
	claims := authFromContext(r.Context())
	soID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, r, "invalid sales order id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	res, err := h.so.Cancel(r.Context(), soID, claims.UserID)
	if err != nil && err != core.ErrNothingToRelease {
		writeCoreError(w, r, err)
		return
	}

	released := "0"
	if res != nil {
		released = res.ReleasedTotal.String()
	}
	writeJSON(w, map[string]any{"released_total": released})
}

// convert handles POST /api/sales-orders/{id}/convert — spec §6 `convert(so_id, user)`.
func (h *Handler) convert(w http.ResponseWriter, r *http.Request) {
	claims := authFromContext(r.Context())
	soID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, r, "invalid sales order id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	res, err := h.so.Convert(r.Context(), soID, claims.UserID)
	if err != nil {
		writeCoreError(w, r, err)
		return
	}

	writeJSON(w, map[string]any{"sc_id": res.SCID, "sc_number": res.SCNumber})
}

// outbound handles POST /api/sales-challans — spec §6 `outbound(challan_id, items[], location, user)`.
func (h *Handler) outbound(w http.ResponseWriter, r *http.Request) {
	claims := authFromContext(r.Context())
	var req createSalesChallanRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	items := make([]core.OutboundItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, core.OutboundItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	sc, outboundRes, err := h.sc.Create(r.Context(), core.CreateSalesChallanRequest{
		CustomerID: req.CustomerID,
		LocationID: req.LocationID,
		UserID:     claims.UserID,
		Items:      items,
	})
	if err != nil {
		writeCoreError(w, r, err)
		return
	}

	writeJSON(w, map[string]any{
		"sc_id":       sc.ID,
		"sc_number":   sc.SCNumber,
		"allocations": outboundRes.Allocations,
	})
}

// listStock handles GET /api/stock — spec §6 `list_stock(location?, product?)`.
func (h *Handler) listStock(w http.ResponseWriter, r *http.Request) {
	filter := core.StockFilter{}
	if v := r.URL.Query().Get("location_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			filter.LocationID = &id
		}
	}
	if v := r.URL.Query().Get("product_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			filter.ProductID = &id
		}
	}

	rows, err := h.reporting.ListStock(r.Context(), filter)
	if err != nil {
		writeCoreError(w, r, err)
		return
	}
	writeJSON(w, rows)
}

// listStockByCategory handles GET /api/stock/by-category — spec §6
// `list_stock_by_category(location?)`.
func (h *Handler) listStockByCategory(w http.ResponseWriter, r *http.Request) {
	var locationID *int64
	if v := r.URL.Query().Get("location_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			locationID = &id
		}
	}

	rows, err := h.reporting.ListStockByCategory(r.Context(), locationID)
	if err != nil {
		writeCoreError(w, r, err)
		return
	}
	writeJSON(w, rows)
}
