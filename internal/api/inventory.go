package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/zhixuli0406/taiyuan-api/internal/store"
)

func (a *API) handleCreateInventory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID int64  `json:"product_id"`
		Warehouse string `json:"warehouse"`
		Quantity  int    `json:"quantity"`
		SafeStock int    `json:"safe_stock"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}
	if req.ProductID == 0 || req.Quantity < 0 || req.SafeStock < 0 {
		respondError(w, http.StatusBadRequest, "validation_error", "product_id is required, quantities must be non-negative")
		return
	}
	if req.Warehouse == "" {
		req.Warehouse = "default"
	}

	inv, err := store.CreateInventory(r.Context(), a.DB, req.ProductID, req.Warehouse, req.Quantity, req.SafeStock)
	if err != nil {
		respondMappedError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, inv)
}

func (a *API) handleGetInventory(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(mux.Vars(r)["productId"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", "invalid product id")
		return
	}

	records, err := store.GetInventoryByProduct(r.Context(), a.DB, productID)
	if err != nil {
		respondMappedError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, records)
}

func (a *API) handleAdjustInventory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", "invalid inventory id")
		return
	}

	var req struct {
		QuantityChange int `json:"quantity_change"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}
	if req.QuantityChange == 0 {
		respondError(w, http.StatusBadRequest, "validation_error", "quantity_change must be non-zero")
		return
	}

	inv, err := store.AdjustInventory(r.Context(), a.DB, id, req.QuantityChange)
	if err != nil {
		respondMappedError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, inv)
}

func (a *API) handleResetInventory(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(mux.Vars(r)["productId"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", "invalid product id")
		return
	}

	var req struct {
		Warehouse string `json:"warehouse"`
		Quantity  int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", "invalid request body")
		return
	}
	if req.Quantity < 0 {
		respondError(w, http.StatusBadRequest, "validation_error", "quantity must be non-negative")
		return
	}
	if req.Warehouse == "" {
		req.Warehouse = "default"
	}

	inv, err := store.ResetInventory(r.Context(), a.DB, productID, req.Warehouse, req.Quantity)
	if err != nil {
		respondMappedError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, inv)
}

func (a *API) handleLowStock(w http.ResponseWriter, r *http.Request) {
	records, err := store.ListLowStock(r.Context(), a.DB)
	if err != nil {
		respondMappedError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, records)
}
