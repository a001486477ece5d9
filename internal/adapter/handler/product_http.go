package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/rl1809/nexus-shop/internal/core/domain"
)

type ProductCatalog interface {
	GetByID(ctx context.Context, id string) (*domain.ProductResponse, error)
	Create(ctx context.Context, req domain.ProductRequest) (*domain.ProductResponse, error)
	Update(ctx context.Context, id string, req domain.ProductRequest) (*domain.ProductResponse, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, req domain.PageRequest) (domain.Page[domain.ProductResponse], error)
}

type ProductHandler struct {
	catalog ProductCatalog
}

func NewProductHandler(catalog ProductCatalog) *ProductHandler {
	return &ProductHandler{catalog: catalog}
}

func (h *ProductHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/products", h.List)
	mux.HandleFunc("GET /api/v1/products/{$}", h.List)
	mux.HandleFunc("POST /api/v1/products", h.Create)
	mux.HandleFunc("POST /api/v1/products/{$}", h.Create)
	mux.HandleFunc("GET /api/v1/products/{id}", h.Get)
	mux.HandleFunc("PUT /api/v1/products/{id}", h.Update)
	mux.HandleFunc("DELETE /api/v1/products/{id}", h.Delete)
}

// List takes page (0-based), size and sort=field[,asc|desc].
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	number, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("size"))

	page, err := h.catalog.List(r.Context(), domain.NewPageRequest(number, size, q.Get("sort")))
	if err != nil {
		writeProblem(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeProblem(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductRequest
	if err := decodeJSON(r, &req); err != nil {
		writeProblem(w, err)
		return
	}
	p, err := h.catalog.Create(r.Context(), req)
	if err != nil {
		writeProblem(w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/products/"+p.ID)
	writeJSON(w, http.StatusCreated, p)
}

func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductRequest
	if err := decodeJSON(r, &req); err != nil {
		writeProblem(w, err)
		return
	}
	p, err := h.catalog.Update(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeProblem(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeProblem(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
