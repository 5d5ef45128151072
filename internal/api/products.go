package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/zhixuli0406/taiyuan-api/internal/store"
)

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SKU         string          `json:"sku"`
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Price       decimal.Decimal `json:"price"`
		CategoryID  *int64          `json:"category_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}
	if req.SKU == "" || req.Name == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "sku and name are required")
		return
	}
	if req.Price.IsNegative() {
		respondError(w, http.StatusBadRequest, "validation_error", "price must be non-negative")
		return
	}

	product, err := store.CreateProduct(r.Context(), a.DB, req.SKU, req.Name, req.Description, req.Price, req.CategoryID)
	if err != nil {
		respondMappedError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, product)
}

func (a *API) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", "invalid product id")
		return
	}

	product, err := store.GetProduct(r.Context(), a.DB, id)
	if err != nil {
		respondMappedError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, product)
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 20)
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	result, err := store.ListProducts(r.Context(), a.DB, page, pageSize)
	if err != nil {
		respondMappedError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
