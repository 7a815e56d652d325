package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/loyaltydesk/backoffice/internal/domain/customer"
	"github.com/loyaltydesk/backoffice/internal/domain/ledger"
	"github.com/loyaltydesk/backoffice/internal/domain/order"
	"github.com/loyaltydesk/backoffice/internal/domain/pricing"
)

// errorBody is the stable machine-readable error envelope. Internal storage
// details are never leaked through it.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Code: code, Message: message})
}

// writeDomainError maps core errors to client-facing failures with stable
// codes. Unrecognized errors are logged and reported as a generic 500.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		itemErr       *pricing.InvalidItemError
		transitionErr *order.InvalidTransitionError
		inconsistency *ledger.InconsistencyError
		awardErr      *order.AwardError
	)

	switch {
	case errors.Is(err, pricing.ErrEmptyCart):
		writeError(w, http.StatusBadRequest, "invalid_cart", err.Error())
	case errors.As(err, &itemErr):
		writeError(w, http.StatusBadRequest, "invalid_cart", itemErr.Error())
	case errors.Is(err, customer.ErrNotFound):
		writeError(w, http.StatusNotFound, "customer_not_found", "customer not found")
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "order_not_found", "order not found")
	case errors.Is(err, ledger.ErrInsufficientPoints):
		writeError(w, http.StatusUnprocessableEntity, "insufficient_points", "insufficient points for redemption")
	case errors.As(err, &transitionErr):
		writeError(w, http.StatusConflict, "invalid_transition", transitionErr.Error())
	case errors.Is(err, order.ErrAlreadyAwarded):
		writeError(w, http.StatusConflict, "already_awarded", "points already awarded for this order")
	case errors.As(err, &inconsistency):
		zctx.From(r.Context()).Error("ledger inconsistency detected",
			zap.String("customer_id", inconsistency.CustomerID),
			zap.Int64("balance", inconsistency.Balance),
			zap.Int64("ledger_sum", inconsistency.LedgerSum),
		)
		writeError(w, http.StatusInternalServerError, "ledger_inconsistency", inconsistency.Error())
	case errors.As(err, &awardErr):
		// The status change already committed; only the award failed.
		zctx.From(r.Context()).Error("points award failed after completion",
			zap.String("order_id", awardErr.OrderID), zap.Error(awardErr.Err))
		writeError(w, http.StatusInternalServerError, "award_failed",
			"order completed but points award failed; retry the award")
	default:
		zctx.From(r.Context()).Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

type pageMeta struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"total_pages"`
}

func newPageMeta(total, page, limit int) pageMeta {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return pageMeta{Total: total, Page: page, Limit: limit, TotalPages: pages}
}
