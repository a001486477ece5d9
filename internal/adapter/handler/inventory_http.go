package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/rl1809/nexus-shop/internal/core/domain"
)

// StockEngine is the subset of the stock service the transports need.
type StockEngine interface {
	GetStockStatus(ctx context.Context, sku string) (domain.StockView, error)
	GetStockStatuses(ctx context.Context, skus []string) ([]domain.StockView, error)
	GetDetails(ctx context.Context, sku string) (domain.StockView, error)
	InitStock(ctx context.Context, sku string) error
	AdjustStock(ctx context.Context, sku string, delta int) error
	SetBalance(ctx context.Context, sku string, quantity, clientVersion int) (domain.StockView, error)
	CheckAvailability(ctx context.Context, items []domain.StockRequestItem) error
	ReserveStock(ctx context.Context, items []domain.StockRequestItem) error
	DeleteInventory(ctx context.Context, sku string) error
}

type InventoryHandler struct {
	stock StockEngine
}

func NewInventoryHandler(stock StockEngine) *InventoryHandler {
	return &InventoryHandler{stock: stock}
}

func (h *InventoryHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/inventory", h.GetStockStatuses)
	mux.HandleFunc("GET /api/v1/inventory/{$}", h.GetStockStatuses)
	mux.HandleFunc("GET /api/v1/inventory/{sku}", h.GetStockStatus)
	mux.HandleFunc("GET /api/v1/inventory/details/{sku}", h.GetDetails)
	mux.HandleFunc("POST /api/v1/inventory/check", h.CheckAvailability)
	mux.HandleFunc("POST /api/v1/inventory/reserve", h.ReserveStock)
	mux.HandleFunc("POST /api/v1/inventory/adjust", h.AdjustStock)
	mux.HandleFunc("PUT /api/v1/inventory/set-balance", h.SetBalance)
	mux.HandleFunc("POST /api/v1/inventory/init/{sku}", h.InitStock)
	mux.HandleFunc("DELETE /api/v1/inventory/{sku}", h.DeleteInventory)
}

func (h *InventoryHandler) GetStockStatus(w http.ResponseWriter, r *http.Request) {
	view, err := h.stock.GetStockStatus(r.Context(), r.PathValue("sku"))
	if err != nil {
		writeProblem(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetStockStatuses accepts skuCodes both repeated and comma separated.
func (h *InventoryHandler) GetStockStatuses(w http.ResponseWriter, r *http.Request) {
	var skus []string
	for _, v := range r.URL.Query()["skuCodes"] {
		for _, sku := range strings.Split(v, ",") {
			if sku = strings.TrimSpace(sku); sku != "" {
				skus = append(skus, sku)
			}
		}
	}
	if len(skus) == 0 {
		v := domain.NewValidationError()
		v.Add("skuCodes", "must not be empty")
		writeProblem(w, v)
		return
	}

	views, err := h.stock.GetStockStatuses(r.Context(), skus)
	if err != nil {
		writeProblem(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *InventoryHandler) GetDetails(w http.ResponseWriter, r *http.Request) {
	view, err := h.stock.GetDetails(r.Context(), r.PathValue("sku"))
	if err != nil {
		writeProblem(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *InventoryHandler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	var items []domain.StockRequestItem
	if err := decodeJSON(r, &items); err != nil {
		writeProblem(w, err)
		return
	}
	if err := h.stock.CheckAvailability(r.Context(), items); err != nil {
		writeProblem(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *InventoryHandler) ReserveStock(w http.ResponseWriter, r *http.Request) {
	var items []domain.StockRequestItem
	if err := decodeJSON(r, &items); err != nil {
		writeProblem(w, err)
		return
	}
	if err := h.stock.ReserveStock(r.Context(), items); err != nil {
		writeProblem(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// AdjustStock reads the body's quantity as a signed delta.
func (h *InventoryHandler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	var req domain.StockRequestItem
	if err := decodeJSON(r, &req); err != nil {
		writeProblem(w, err)
		return
	}
	if req.Quantity == nil {
		v := domain.NewValidationError()
		v.Add("quantity", "must not be null")
		writeProblem(w, v)
		return
	}
	if err := h.stock.AdjustStock(r.Context(), req.SkuCode, *req.Quantity); err != nil {
		writeProblem(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *InventoryHandler) SetBalance(w http.ResponseWriter, r *http.Request) {
	var req domain.StockRequestItem
	if err := decodeJSON(r, &req); err != nil {
		writeProblem(w, err)
		return
	}

	v := domain.NewValidationError()
	if req.Quantity == nil {
		v.Add("quantity", "must not be null")
	}
	if req.Version == nil {
		v.Add("version", "must not be null")
	}
	if err := v.OrNil(); err != nil {
		writeProblem(w, err)
		return
	}

	view, err := h.stock.SetBalance(r.Context(), req.SkuCode, *req.Quantity, *req.Version)
	if err != nil {
		writeProblem(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *InventoryHandler) InitStock(w http.ResponseWriter, r *http.Request) {
	if err := h.stock.InitStock(r.Context(), r.PathValue("sku")); err != nil {
		writeProblem(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *InventoryHandler) DeleteInventory(w http.ResponseWriter, r *http.Request) {
	if err := h.stock.DeleteInventory(r.Context(), r.PathValue("sku")); err != nil {
		writeProblem(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
