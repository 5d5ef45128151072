package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/zhixuli0406/taiyuan-api/internal/models"
	"github.com/zhixuli0406/taiyuan-api/internal/store"
)

type createCouponRequest struct {
	Code         string              `json:"code"`
	DiscountType string              `json:"discount_type"`
	Value        decimal.Decimal     `json:"value"`
	MaxDiscount  decimal.NullDecimal `json:"max_discount"`
	MinPurchase  decimal.Decimal     `json:"min_purchase"`
	UsageLimit   int                 `json:"usage_limit"`
	ProductIDs   []int64             `json:"product_ids"`
	CategoryIDs  []int64             `json:"category_ids"`
	StartDate    time.Time           `json:"start_date"`
	EndDate      time.Time           `json:"end_date"`
}

func (a *API) handleCreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req createCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}
	if req.Code == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "code is required")
		return
	}
	if req.DiscountType != models.DiscountFixed && req.DiscountType != models.DiscountPercentage {
		respondError(w, http.StatusBadRequest, "validation_error", "discount_type must be fixed or percentage")
		return
	}
	if req.UsageLimit < 1 {
		respondError(w, http.StatusBadRequest, "validation_error", "usage_limit must be positive")
		return
	}
	if !req.EndDate.After(req.StartDate) {
		respondError(w, http.StatusBadRequest, "validation_error", "end_date must follow start_date")
		return
	}

	coupon, err := store.CreateCoupon(r.Context(), a.DB, store.CreateCouponRequest{
		Code:         req.Code,
		DiscountType: req.DiscountType,
		Value:        req.Value,
		MaxDiscount:  req.MaxDiscount,
		MinPurchase:  req.MinPurchase,
		UsageLimit:   req.UsageLimit,
		ProductIDs:   req.ProductIDs,
		CategoryIDs:  req.CategoryIDs,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
	})
	if err != nil {
		respondMappedError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, coupon)
}

func (a *API) handleListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := store.ListCoupons(r.Context(), a.DB)
	if err != nil {
		respondMappedError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, coupons)
}

// handleVerifyCoupon runs the atomic validate-and-consume admission for a
// prospective cart. A successful response means one usage unit is taken.
func (a *API) handleVerifyCoupon(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code  string           `json:"code"`
		Items []store.CartItem `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}
	if req.Code == "" || len(req.Items) == 0 {
		respondError(w, http.StatusBadRequest, "validation_error", "code and items are required")
		return
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			respondError(w, http.StatusBadRequest, "validation_error", "quantity must be positive")
			return
		}
	}

	result, err := store.VerifyCoupon(r.Context(), a.DB, req.Code, req.Items)
	if err != nil {
		respondMappedError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (a *API) handleDisableCoupon(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", "invalid coupon id")
		return
	}

	coupon, err := store.DisableCoupon(r.Context(), a.DB, id)
	if err != nil {
		respondMappedError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, coupon)
}

func (a *API) handleDeleteCoupon(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", "invalid coupon id")
		return
	}

	if err := store.DeleteCoupon(r.Context(), a.DB, id); err != nil {
		respondMappedError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
