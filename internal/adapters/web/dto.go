package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

func init() {
	// decimal.Decimal is a struct, so validator's built-in "gt" (which only
	// understands numeric kinds and time.Time) can't be used on it directly;
	// register a dedicated tag instead of leaving quantities checked only
	// for "required" (which accepts a negative value as well as a positive
	// one — only the exact zero value is rejected).
	_ = validate.RegisterValidation("decimalgt0", func(fl validator.FieldLevel) bool {
		d, ok := fl.Field().Interface().(decimal.Decimal)
		return ok && d.IsPositive()
	})
}

// decodeAndValidate decodes the request body into v, then runs struct-tag
// validation (go-playground/validator, the library the rest of the pack's
// inventory/ERP repos use at their HTTP boundary). It writes the
// appropriate error response and returns false on either failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	if err := validate.Struct(v); err != nil {
		writeError(w, r, "validation failed: "+err.Error(), "INPUT_VALIDATION", http.StatusBadRequest)
		return false
	}
	return true
}

type grnItemDTO struct {
	ProductID  int64           `json:"product_id" validate:"required,gt=0"`
	CategoryID int64           `json:"category_id" validate:"required,gt=0"`
	Quantity   decimal.Decimal `json:"quantity" validate:"required,decimalgt0"`
}

type createGRNRequest struct {
	SupplierID int64        `json:"supplier_id" validate:"required,gt=0"`
	LocationID int64        `json:"location_id" validate:"required,gt=0"`
	Items      []grnItemDTO `json:"items" validate:"required,min=1,dive"`
}

type reserveItemDTO struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal `json:"quantity" validate:"required,decimalgt0"`
}

type createSalesOrderRequest struct {
	CustomerID int64            `json:"customer_id" validate:"required,gt=0"`
	LocationID *int64           `json:"location_id,omitempty" validate:"omitempty,gt=0"`
	Items      []reserveItemDTO `json:"items" validate:"required,min=1,dive"`
}

type outboundItemDTO struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal `json:"quantity" validate:"required,decimalgt0"`
}

type createSalesChallanRequest struct {
	CustomerID int64             `json:"customer_id" validate:"required,gt=0"`
	LocationID int64             `json:"location_id" validate:"required,gt=0"`
	Items      []outboundItemDTO `json:"items" validate:"required,min=1,dive"`
}
