package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pcforge/storefront/internal/domain"
	"github.com/pcforge/storefront/internal/service"
)

type CatalogService interface {
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]*domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	GetProductBySlug(ctx context.Context, slug string) (*domain.Product, error)
	ListTags(ctx context.Context) ([]domain.Tag, error)
	CreateProduct(ctx context.Context, in service.ProductInput) (*domain.Product, error)
	UpdateProduct(ctx context.Context, id int64, in service.ProductInput) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	SetProductTags(ctx context.Context, id int64, tagIDs []int64) (*domain.Product, error)
	CreateTag(ctx context.Context, name string) (*domain.Tag, error)
	DeleteTag(ctx context.Context, id int64) error
}

const (
	defaultPageSize = 24
	maxPageSize     = 100
)

type CatalogHandler struct {
	catalog CatalogService
	timeout time.Duration
}

func NewCatalogHandler(catalog CatalogService, timeout time.Duration) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, timeout: timeout}
}

func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	q := r.URL.Query()
	limit, offset, ok := pagination(w, r)
	if !ok {
		return
	}
	products, err := h.catalog.ListProducts(ctx, domain.ProductFilter{
		Category: domain.Category(q.Get("category")),
		Tag:      q.Get("tag"),
		Search:   q.Get("q"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"products": products})
}

// GetProduct accepts either a numeric id or a slug.
func (h *CatalogHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	ref := chi.URLParam(r, "id")
	var (
		p   *domain.Product
		err error
	)
	if id, convErr := strconv.ParseInt(ref, 10, 64); convErr == nil {
		p, err = h.catalog.GetProduct(ctx, id)
	} else {
		p, err = h.catalog.GetProductBySlug(ctx, ref)
	}
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *CatalogHandler) ListTags(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	tags, err := h.catalog.ListTags(ctx)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if tags == nil {
		tags = []domain.Tag{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"tags": tags})
}

func (h *CatalogHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var in service.ProductInput
	if !decodeJSON(w, r, &in) {
		return
	}
	p, err := h.catalog.CreateProduct(ctx, in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (h *CatalogHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var in service.ProductInput
	if !decodeJSON(w, r, &in) {
		return
	}
	p, err := h.catalog.UpdateProduct(ctx, id, in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *CatalogHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.catalog.DeleteProduct(ctx, id); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type tagIDsRequest struct {
	TagIDs []int64 `json:"tagIds"`
}

func (h *CatalogHandler) SetProductTags(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req tagIDsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.catalog.SetProductTags(ctx, id, req.TagIDs)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

type createTagRequest struct {
	Name string `json:"name"`
}

func (h *CatalogHandler) CreateTag(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req createTagRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tag, err := h.catalog.CreateTag(ctx, req.Name)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, tag)
}

func (h *CatalogHandler) DeleteTag(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.catalog.DeleteTag(ctx, id); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func pagination(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	q := r.URL.Query()
	limit, offset = defaultPageSize, 0
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return 0, 0, false
		}
		limit = min(n, maxPageSize)
	}
	if s := q.Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid_offset", "offset must not be negative")
			return 0, 0, false
		}
		offset = n
	}
	return limit, offset, true
}
