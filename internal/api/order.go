package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/loyaltydesk/backoffice/internal/domain/order"
)

type orderItemRequest struct {
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type createOrderRequest struct {
	CustomerID     string             `json:"customer_id"`
	CustomerName   string             `json:"customer_name"`
	Items          []orderItemRequest `json:"items"`
	DiscountCode   string             `json:"discount_code"`
	PointsToRedeem int64              `json:"points_to_redeem"`
}

type orderItemResponse struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	LineTotal float64 `json:"line_total"`
}

type orderResponse struct {
	ID              string              `json:"id"`
	InvoiceNo       string              `json:"invoice_no"`
	CustomerID      string              `json:"customer_id"`
	CustomerName    string              `json:"customer_name"`
	Amount          float64             `json:"amount"`
	DiscountAmount  float64             `json:"discount_amount"`
	PointsRedeemed  int64               `json:"points_redeemed"`
	RedemptionValue float64             `json:"redemption_value"`
	Total           float64             `json:"total"`
	DiscountCode    string              `json:"discount_code,omitempty"`
	Status          string              `json:"status"`
	SyncStatus      string              `json:"sync_status"`
	PointsAwardedAt *time.Time          `json:"points_awarded_at,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	Items           []orderItemResponse `json:"items,omitempty"`
}

func toOrderResponse(o *order.Order) orderResponse {
	resp := orderResponse{
		ID:              o.ID,
		InvoiceNo:       o.InvoiceNo,
		CustomerID:      o.CustomerID,
		CustomerName:    o.CustomerName,
		Amount:          o.Amount.InexactFloat64(),
		DiscountAmount:  o.DiscountAmount.InexactFloat64(),
		PointsRedeemed:  o.PointsRedeemed,
		RedemptionValue: o.RedemptionValue.InexactFloat64(),
		Total:           o.Total.InexactFloat64(),
		DiscountCode:    o.DiscountCode,
		Status:          string(o.Status),
		SyncStatus:      string(o.SyncStatus),
		PointsAwardedAt: o.PointsAwardedAt,
		CreatedAt:       o.CreatedAt,
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			ID:        it.ID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.InexactFloat64(),
			LineTotal: it.LineTotal.InexactFloat64(),
		})
	}
	return resp
}

// CreateOrder handles POST /orders: the settlement entry point.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.CustomerID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "customer_id is required")
		return
	}
	if req.PointsToRedeem < 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "points_to_redeem must not be negative")
		return
	}

	items := make([]order.ItemRequest, len(req.Items))
	for i, it := range req.Items {
		items[i] = order.ItemRequest{Name: it.Name, Quantity: it.Quantity, UnitPrice: it.UnitPrice}
	}

	o, err := h.orders.Create(r.Context(), order.CreateRequest{
		CustomerID:     req.CustomerID,
		CustomerName:   req.CustomerName,
		Items:          items,
		DiscountCode:   req.DiscountCode,
		PointsToRedeem: req.PointsToRedeem,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

// UpdateOrderStatus handles PATCH /orders/{id}/status. A pending order moved
// to completed triggers the points award; an award failure after the
// committed status change is reported distinctly via the award_failed code.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	st := order.Status(req.Status)
	if !st.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_request", "status must be pending, completed or cancelled")
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), st)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// RetryAward handles POST /orders/{id}/award: reconciliation for completed
// orders whose award transaction failed.
func (h *Handler) RetryAward(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.RetryAward(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// GetOrder handles GET /orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// ListOrders handles GET /orders with page/limit/status/customer_id filters.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	f := order.ListFilter{
		Page:       page,
		Limit:      limit,
		CustomerID: r.URL.Query().Get("customer_id"),
	}
	if s := r.URL.Query().Get("status"); s != "" {
		st := order.Status(s)
		if !st.Valid() {
			writeError(w, http.StatusBadRequest, "invalid_request", "unknown status filter")
			return
		}
		f.Status = st
	}

	list, total, err := h.orders.List(r.Context(), f)
	if err != nil {
		writeDomainError(w, r, errors.Wrap(err, "list orders"))
		return
	}

	data := make([]orderResponse, len(list))
	for i := range list {
		data[i] = toOrderResponse(&list[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": data,
		"meta": newPageMeta(total, page, limit),
	})
}

// ListUnawardedOrders handles GET /orders/unawarded: completed orders whose
// points award is still pending reconciliation.
func (h *Handler) ListUnawardedOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.orders.ListUnawarded(r.Context())
	if err != nil {
		writeDomainError(w, r, errors.Wrap(err, "list unawarded orders"))
		return
	}
	data := make([]orderResponse, len(list))
	for i := range list {
		data[i] = toOrderResponse(&list[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}
