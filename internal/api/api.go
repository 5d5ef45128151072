// Package api exposes the store over HTTP. Handlers stay thin: decode,
// authorize, delegate to the store/checkout layers, map errors to stable
// machine-readable codes.
package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/zhixuli0406/taiyuan-api/internal/checkout"
	"github.com/zhixuli0406/taiyuan-api/internal/gateway"
	"github.com/zhixuli0406/taiyuan-api/internal/metrics"
)

type API struct {
	DB        *sql.DB
	Checkout  *checkout.Service
	Payment   *gateway.PaymentAdapter
	Logistics *gateway.LogisticsAdapter
	Logger    *slog.Logger
}

func NewRouter(a *API, m *metrics.ServerMetrics) *mux.Router {
	r := mux.NewRouter()
	r.Use(m.Middleware)
	r.Use(Identity)

	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", a.handleHealth).Methods(http.MethodGet)

	r.HandleFunc("/orders", a.handleCheckout).Methods(http.MethodPost)
	r.HandleFunc("/orders/my-orders", a.handleMyOrders).Methods(http.MethodGet)
	r.HandleFunc("/orders", a.requireAdmin(a.handleListOrders)).Methods(http.MethodGet)
	r.HandleFunc("/orders/payment/callback", a.handlePaymentCallback).Methods(http.MethodPost)
	r.HandleFunc("/orders/logistics/callback", a.handleLogisticsCallback).Methods(http.MethodPost)
	r.HandleFunc("/orders/{id:[0-9]+}", a.requireAdmin(a.handleUpdateOrder)).Methods(http.MethodPut)
	r.HandleFunc("/orders/{id:[0-9]+}", a.handleCancelOrder).Methods(http.MethodDelete)

	r.HandleFunc("/coupons", a.requireAdmin(a.handleCreateCoupon)).Methods(http.MethodPost)
	r.HandleFunc("/coupons", a.requireAdmin(a.handleListCoupons)).Methods(http.MethodGet)
	r.HandleFunc("/coupons/verify", a.handleVerifyCoupon).Methods(http.MethodPost)
	r.HandleFunc("/coupons/{id:[0-9]+}/disable", a.requireAdmin(a.handleDisableCoupon)).Methods(http.MethodPut)
	r.HandleFunc("/coupons/{id:[0-9]+}", a.requireAdmin(a.handleDeleteCoupon)).Methods(http.MethodDelete)

	r.HandleFunc("/inventory", a.requireAdmin(a.handleCreateInventory)).Methods(http.MethodPost)
	r.HandleFunc("/inventory/low-stock", a.requireAdmin(a.handleLowStock)).Methods(http.MethodGet)
	r.HandleFunc("/inventory/reset/{productId:[0-9]+}", a.requireAdmin(a.handleResetInventory)).Methods(http.MethodPut)
	r.HandleFunc("/inventory/{id:[0-9]+}", a.requireAdmin(a.handleAdjustInventory)).Methods(http.MethodPut)
	r.HandleFunc("/inventory/{productId:[0-9]+}", a.requireAdmin(a.handleGetInventory)).Methods(http.MethodGet)

	r.HandleFunc("/products", a.requireAdmin(a.handleCreateProduct)).Methods(http.MethodPost)
	r.HandleFunc("/products", a.handleListProducts).Methods(http.MethodGet)
	r.HandleFunc("/products/{id:[0-9]+}", a.handleGetProduct).Methods(http.MethodGet)

	r.HandleFunc("/customers", a.requireAdmin(a.handleCreateCustomer)).Methods(http.MethodPost)
	r.HandleFunc("/customers/{id:[0-9]+}", a.requireAdmin(a.handleGetCustomer)).Methods(http.MethodGet)

	return r
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := a.DB.PingContext(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "down"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
