package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pcforge/storefront/internal/domain"
	"github.com/pcforge/storefront/internal/service"
)

type BuildService interface {
	Create(ctx context.Context, owner *int64, in service.BuildInput) (*domain.BuildView, error)
	Get(ctx context.Context, shareID string) (*domain.BuildView, error)
	Update(ctx context.Context, userID int64, shareID string, in service.BuildInput) (*domain.BuildView, error)
	Delete(ctx context.Context, userID int64, shareID string) error
	ListMine(ctx context.Context, userID int64) ([]*domain.BuildView, error)
	AddToCart(ctx context.Context, userID int64, shareID string) (domain.CartView, error)
}

type BuildHandler struct {
	builds  BuildService
	timeout time.Duration
}

func NewBuildHandler(builds BuildService, timeout time.Duration) *BuildHandler {
	return &BuildHandler{builds: builds, timeout: timeout}
}

// Create stores the build under the caller when signed in, anonymously
// otherwise.
func (h *BuildHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var in service.BuildInput
	if !decodeJSON(w, r, &in) {
		return
	}
	var owner *int64
	if id := userIDFromContext(r.Context()); id != 0 {
		owner = &id
	}
	view, err := h.builds.Create(ctx, owner, in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, view)
}

func (h *BuildHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	view, err := h.builds.Get(ctx, chi.URLParam(r, "shareId"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *BuildHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var in service.BuildInput
	if !decodeJSON(w, r, &in) {
		return
	}
	view, err := h.builds.Update(ctx, userIDFromContext(r.Context()), chi.URLParam(r, "shareId"), in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *BuildHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.builds.Delete(ctx, userIDFromContext(r.Context()), chi.URLParam(r, "shareId")); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *BuildHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	builds, err := h.builds.ListMine(ctx, userIDFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"builds": builds})
}

func (h *BuildHandler) AddToCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	view, err := h.builds.AddToCart(ctx, userIDFromContext(r.Context()), chi.URLParam(r, "shareId"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}
