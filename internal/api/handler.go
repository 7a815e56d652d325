// Package api exposes the administrative request/response surface: order
// settlement, status transitions, and the pass-through customer, ledger, and
// settings endpoints the dashboard uses.
package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/loyaltydesk/backoffice/internal/domain/customer"
	"github.com/loyaltydesk/backoffice/internal/domain/ledger"
	"github.com/loyaltydesk/backoffice/internal/domain/order"
	"github.com/loyaltydesk/backoffice/internal/domain/settings"
)

// Handler bundles the HTTP endpoints over the settlement engine and the
// administrative repositories.
type Handler struct {
	orders    *order.Service
	customers customer.Repository
	ledger    ledger.Repository
	settings  settings.Repository
}

// NewHandler constructs a Handler with the required dependencies.
func NewHandler(
	orders *order.Service,
	customers customer.Repository,
	ledgerRepo ledger.Repository,
	settingsRepo settings.Repository,
) *Handler {
	return &Handler{
		orders:    orders,
		customers: customers,
		ledger:    ledgerRepo,
		settings:  settingsRepo,
	}
}

// Routes builds the API router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.CreateOrder)
		r.Get("/", h.ListOrders)
		r.Get("/unawarded", h.ListUnawardedOrders)
		r.Get("/{id}", h.GetOrder)
		r.Patch("/{id}/status", h.UpdateOrderStatus)
		r.Post("/{id}/award", h.RetryAward)
	})

	r.Route("/customers", func(r chi.Router) {
		r.Get("/", h.ListCustomers)
		r.Post("/", h.CreateCustomer)
		r.Get("/{id}", h.GetCustomer)
		r.Put("/{id}", h.UpdateCustomer)
		r.Get("/{id}/ledger", h.ListLedger)
		r.Get("/{id}/ledger/verify", h.VerifyLedger)
		r.Post("/{id}/points/adjust", h.AdjustPoints)
	})

	r.Route("/settings", func(r chi.Router) {
		r.Get("/", h.ListSettings)
		r.Put("/{key}", h.PutSetting)
	})

	return r
}

// pageParams extracts page/limit query parameters with sane bounds.
func pageParams(r *http.Request) (page, limit int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}
