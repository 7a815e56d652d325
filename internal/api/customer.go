package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/loyaltydesk/backoffice/internal/domain/customer"
)

type customerRequest struct {
	Name         string          `json:"name"`
	Phone        string          `json:"phone"`
	Type         string          `json:"type"`
	DiscountRate decimal.Decimal `json:"discount_rate"`
	DiscountCode string          `json:"discount_code"`
}

type customerResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone,omitempty"`
	Type         string    `json:"type"`
	DiscountRate float64   `json:"discount_rate"`
	DiscountCode string    `json:"discount_code,omitempty"`
	Points       int64     `json:"points"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toCustomerResponse(c *customer.Customer) customerResponse {
	return customerResponse{
		ID:           c.ID,
		Name:         c.Name,
		Phone:        c.Phone,
		Type:         string(c.Type),
		DiscountRate: c.DiscountRate.InexactFloat64(),
		DiscountCode: c.DiscountCode,
		Points:       c.Points,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

func (req *customerRequest) validate() (customer.Type, string) {
	if req.Name == "" {
		return "", "name is required"
	}
	typ := customer.Type(req.Type)
	if req.Type == "" {
		typ = customer.TypeRegular
	}
	if !typ.Valid() {
		return "", "unknown customer type"
	}
	if req.DiscountRate.IsNegative() || req.DiscountRate.GreaterThan(decimal.NewFromInt(100)) {
		return "", "discount_rate must be between 0 and 100"
	}
	return typ, ""
}

// ListCustomers handles GET /customers.
func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	list, total, err := h.customers.List(r.Context(), page, limit)
	if err != nil {
		writeDomainError(w, r, errors.Wrap(err, "list customers"))
		return
	}
	data := make([]customerResponse, len(list))
	for i := range list {
		data[i] = toCustomerResponse(&list[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": data,
		"meta": newPageMeta(total, page, limit),
	})
}

// GetCustomer handles GET /customers/{id}.
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	c, err := h.customers.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerResponse(c))
}

// CreateCustomer handles POST /customers.
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req customerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	typ, msg := req.validate()
	if msg != "" {
		writeError(w, http.StatusUnprocessableEntity, "invalid_request", msg)
		return
	}

	c := &customer.Customer{
		ID:           uuid.New().String(),
		Name:         req.Name,
		Phone:        req.Phone,
		Type:         typ,
		DiscountRate: req.DiscountRate,
		DiscountCode: req.DiscountCode,
	}
	if err := h.customers.Create(r.Context(), c); err != nil {
		writeDomainError(w, r, errors.Wrap(err, "create customer"))
		return
	}
	created, err := h.customers.GetByID(r.Context(), c.ID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCustomerResponse(created))
}

// UpdateCustomer handles PUT /customers/{id}. The points balance is not an
// administrative field; it changes only through ledger operations.
func (h *Handler) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	var req customerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	typ, msg := req.validate()
	if msg != "" {
		writeError(w, http.StatusUnprocessableEntity, "invalid_request", msg)
		return
	}

	c := &customer.Customer{
		ID:           chi.URLParam(r, "id"),
		Name:         req.Name,
		Phone:        req.Phone,
		Type:         typ,
		DiscountRate: req.DiscountRate,
		DiscountCode: req.DiscountCode,
	}
	if err := h.customers.Update(r.Context(), c); err != nil {
		writeDomainError(w, r, err)
		return
	}
	updated, err := h.customers.GetByID(r.Context(), c.ID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerResponse(updated))
}

type ledgerTransactionResponse struct {
	ID          int64     `json:"id"`
	Amount      int64     `json:"amount"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListLedger handles GET /customers/{id}/ledger.
func (h *Handler) ListLedger(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	txs, total, err := h.ledger.ListByCustomer(r.Context(), chi.URLParam(r, "id"), page, limit)
	if err != nil {
		writeDomainError(w, r, errors.Wrap(err, "list ledger"))
		return
	}
	data := make([]ledgerTransactionResponse, len(txs))
	for i, t := range txs {
		data[i] = ledgerTransactionResponse{
			ID:          t.ID,
			Amount:      t.Amount,
			Type:        string(t.Type),
			Description: t.Description,
			CreatedAt:   t.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": data,
		"meta": newPageMeta(total, page, limit),
	})
}

// VerifyLedger handles GET /customers/{id}/ledger/verify: the
// balance-vs-ledger-sum consistency check.
func (h *Handler) VerifyLedger(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.VerifyBalance(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"consistent": true})
}

// AdjustPoints handles POST /customers/{id}/points/adjust: a manual ledger
// correction.
func (h *Handler) AdjustPoints(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount      int64  `json:"amount"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Amount == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "amount must not be zero")
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := h.customers.GetByID(r.Context(), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := h.ledger.Adjust(r.Context(), id, req.Amount, req.Description); err != nil {
		writeDomainError(w, r, err)
		return
	}
	c, err := h.customers.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerResponse(c))
}
