package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/zhixuli0406/taiyuan-api/internal/checkout"
	"github.com/zhixuli0406/taiyuan-api/internal/order"
	"github.com/zhixuli0406/taiyuan-api/internal/store"
)

// Provider callbacks expect a literal plain-text acknowledgment; anything
// else makes the provider retry the notification.
const (
	callbackAckOK  = "1|OK"
	callbackAckBad = "0|CheckMacValue verify fail"
)

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	cid, ok := customerID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "customer identity required")
		return
	}

	var req checkout.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}
	req.CustomerID = cid

	result, err := a.Checkout.Checkout(r.Context(), req)
	if errors.Is(err, checkout.ErrGatewayUnavailable) {
		// the order is persisted and stays Pending; hand it back so the
		// client can retry payment by trade number
		respondJSON(w, http.StatusCreated, result)
		return
	}
	if err != nil {
		respondMappedError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

func (a *API) handleMyOrders(w http.ResponseWriter, r *http.Request) {
	cid, ok := customerID(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "customer identity required")
		return
	}

	limit := queryInt(r, "limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}

	page, err := store.ListOrdersByCustomer(r.Context(), a.DB, cid, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		respondMappedError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (a *API) handleListOrders(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 20)
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	result, err := store.ListOrders(r.Context(), a.DB, page, pageSize)
	if err != nil {
		respondMappedError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (a *API) handleUpdateOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", "invalid order id")
		return
	}

	var body struct {
		Status         string `json:"status"`
		TrackingNumber string `json:"tracking_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}

	var next order.Status
	if body.Status != "" {
		next, err = order.Parse(body.Status)
		if err != nil {
			respondError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
	}

	o, err := store.UpdateOrderStatus(r.Context(), a.DB, id, next, body.TrackingNumber)
	if err != nil {
		respondMappedError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (a *API) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", "invalid order id")
		return
	}

	if !isAdmin(r) {
		cid, ok := customerID(r)
		if !ok {
			respondError(w, http.StatusUnauthorized, "unauthorized", "customer identity required")
			return
		}
		o, err := store.GetOrder(r.Context(), a.DB, id)
		if err != nil {
			respondMappedError(w, err)
			return
		}
		if o.CustomerID != cid {
			respondError(w, http.StatusForbidden, "forbidden", "not your order")
			return
		}
	}

	if err := store.CancelOrder(r.Context(), a.DB, id); err != nil {
		respondMappedError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": string(order.StatusCancelled)})
}

func (a *API) handlePaymentCallback(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		ackCallback(w, http.StatusBadRequest, callbackAckBad)
		return
	}

	result, err := a.Payment.VerifyCallback(r.PostForm)
	if err != nil {
		a.Logger.Warn("payment callback rejected",
			"remote", r.RemoteAddr, "trade_no", r.PostForm.Get("MerchantTradeNo"), "err", err)
		ackCallback(w, http.StatusBadRequest, callbackAckBad)
		return
	}

	if !result.Paid {
		a.Logger.Info("payment callback reports failure",
			"trade_no", result.MerchantTradeNo, "rtn_code", result.RtnCode, "rtn_msg", result.RtnMsg)
		ackCallback(w, http.StatusOK, callbackAckOK)
		return
	}

	applied, err := store.MarkPaid(r.Context(), a.DB, result.MerchantTradeNo, store.PaymentUpdate{
		PaymentType: result.PaymentType,
		TradeDate:   result.TradeDate,
		PaymentDate: result.PaymentDate,
	})
	if err != nil {
		// the provider retries on non-OK acks; a transition conflict will
		// never resolve itself, so acknowledge and leave a trace
		a.Logger.Error("payment callback not applied",
			"trade_no", result.MerchantTradeNo, "err", err)
	} else {
		a.Logger.Info("payment confirmed",
			"trade_no", result.MerchantTradeNo, "applied", applied, "simulate", result.SimulatePaid)
	}
	ackCallback(w, http.StatusOK, callbackAckOK)
}

func (a *API) handleLogisticsCallback(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		ackCallback(w, http.StatusBadRequest, callbackAckBad)
		return
	}

	notice, err := a.Logistics.VerifyCallback(r.PostForm)
	if err != nil {
		a.Logger.Warn("logistics callback rejected",
			"remote", r.RemoteAddr, "trade_no", r.PostForm.Get("MerchantTradeNo"), "err", err)
		ackCallback(w, http.StatusBadRequest, callbackAckBad)
		return
	}

	err = store.UpdateShipment(r.Context(), a.DB, notice.MerchantTradeNo, store.ShipmentUpdate{
		LogisticsType:    notice.LogisticsType,
		LogisticsSubType: notice.LogisticsSubType,
		CVSStoreID:       notice.CVSStoreID,
		CVSStoreName:     notice.CVSStoreName,
		CVSAddress:       notice.CVSAddress,
		LogisticsStatus:  notice.LogisticsStatus,
		LogisticsTradeNo: notice.LogisticsTradeNo,
		TrackingNumber:   notice.TrackingNumber,
	})
	if err != nil {
		a.Logger.Error("logistics callback not applied",
			"trade_no", notice.MerchantTradeNo, "err", err)
	} else {
		a.Logger.Info("shipment updated",
			"trade_no", notice.MerchantTradeNo, "status", notice.LogisticsStatus)
	}
	ackCallback(w, http.StatusOK, callbackAckOK)
}

func ackCallback(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
