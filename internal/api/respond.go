package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/zhixuli0406/taiyuan-api/internal/checkout"
	"github.com/zhixuli0406/taiyuan-api/internal/database"
)

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encode response", "err", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]string{"code": code, "error": message})
}

// mapError translates layer errors into a stable machine-readable code and
// an HTTP status. Unknown errors are reported as internal without leaking
// detail.
func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, checkout.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, database.ErrCustomerNotFound),
		errors.Is(err, database.ErrProductNotFound),
		errors.Is(err, database.ErrOrderNotFound),
		errors.Is(err, database.ErrInventoryNotFound),
		errors.Is(err, database.ErrCouponNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, database.ErrInsufficientStock),
		errors.Is(err, database.ErrCouponExpired),
		errors.Is(err, database.ErrCouponMinPurchase),
		errors.Is(err, database.ErrCouponExhausted),
		errors.Is(err, database.ErrCouponNotApplicable),
		errors.Is(err, database.ErrInvalidTransition),
		errors.Is(err, database.ErrTradeNoConflict):
		return http.StatusConflict, "state_conflict"
	case errors.Is(err, checkout.ErrGatewayUnavailable):
		return http.StatusBadGateway, "external_gateway_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func respondMappedError(w http.ResponseWriter, err error) {
	status, code := mapError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("internal error", "err", err)
		message = "internal error"
	}
	respondError(w, status, code, message)
}
