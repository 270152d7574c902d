package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pcforge/storefront/internal/domain"
	"github.com/pcforge/storefront/internal/localcart"
	"github.com/pcforge/storefront/internal/reconcile"
	"github.com/pcforge/storefront/internal/repository"
)

type CartService interface {
	View(ctx context.Context, userID int64) (domain.CartView, error)
	AddItems(ctx context.Context, userID int64, lines []domain.NewLine) (domain.CartView, error)
	UpdateQuantity(ctx context.Context, userID int64, lineID string, quantity int) (domain.CartView, error)
	RemoveLine(ctx context.Context, userID int64, lineID string) (domain.CartView, error)
	ForUser(userID int64) reconcile.ServerCart
}

type ProductLookup interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
}

// GuestStores opens the guest cart of one visitor.
type GuestStores func(guestID string) *localcart.Store

type CartHandler struct {
	carts        CartService
	products     ProductLookup
	guests       GuestStores
	secureCookie bool
	timeout      time.Duration
	log          *slog.Logger
}

func NewCartHandler(carts CartService, products ProductLookup, guests GuestStores, secureCookie bool, timeout time.Duration, log *slog.Logger) *CartHandler {
	if log == nil {
		log = slog.Default()
	}
	return &CartHandler{
		carts:        carts,
		products:     products,
		guests:       guests,
		secureCookie: secureCookie,
		timeout:      timeout,
		log:          log,
	}
}

type addItemsRequest struct {
	Items []domain.NewLine `json:"items"`
}

type updateLineRequest struct {
	CartItemID string `json:"cartItemId"`
	Quantity   int    `json:"quantity"`
}

// GetCart returns the server cart. A guest cart cookie on the same request
// is merged into it once and then emptied.
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := userIDFromContext(r.Context())
	if gid, ok := guestID(r); ok {
		view := reconcile.NewService(h.guests(gid), h.carts.ForUser(userID), h.log).Fetch(ctx)
		respondJSON(w, http.StatusOK, view)
		return
	}

	view, err := h.carts.View(ctx, userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *CartHandler) AddItems(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req addItemsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	view, err := h.carts.AddItems(ctx, userIDFromContext(r.Context()), req.Items)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req updateLineRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	view, err := h.carts.UpdateQuantity(ctx, userIDFromContext(r.Context()), req.CartItemID, req.Quantity)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *CartHandler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	view, err := h.carts.RemoveLine(ctx, userIDFromContext(r.Context()), r.URL.Query().Get("id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

type guestAddRequest struct {
	ProductID       int64  `json:"productId"`
	Quantity        int    `json:"quantity"`
	CustomBuildName string `json:"customBuildName,omitempty"`
}

type guestUpdateRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

// Guest cart endpoints never fail on storage errors; the store degrades to
// an empty cart and logs.

func (h *CartHandler) GetGuestCart(w http.ResponseWriter, r *http.Request) {
	id, ok := guestID(r)
	if !ok {
		respondJSON(w, http.StatusOK, domain.NewCartView(nil))
		return
	}
	respondJSON(w, http.StatusOK, h.guests(id).View(r.Context()))
}

func (h *CartHandler) AddGuestItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req guestAddRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.products.GetProduct(ctx, req.ProductID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if p.Archived {
		handleServiceError(w, r, repository.ErrProductNotFound)
		return
	}

	store := h.guests(h.ensureGuestID(w, r))
	respondJSON(w, http.StatusOK, localcart.ToView(store.Add(ctx, p.Snapshot(), req.Quantity, req.CustomBuildName)))
}

func (h *CartHandler) UpdateGuestItem(w http.ResponseWriter, r *http.Request) {
	var req guestUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id, ok := guestID(r)
	if !ok {
		respondJSON(w, http.StatusOK, domain.NewCartView(nil))
		return
	}
	respondJSON(w, http.StatusOK, localcart.ToView(h.guests(id).UpdateQuantity(r.Context(), req.ProductID, req.Quantity)))
}

func (h *CartHandler) RemoveGuestItem(w http.ResponseWriter, r *http.Request) {
	id, ok := guestID(r)
	if !ok {
		respondJSON(w, http.StatusOK, domain.NewCartView(nil))
		return
	}
	store := h.guests(id)
	if raw := r.URL.Query().Get("productId"); raw != "" {
		productID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_productId", "productId must be an integer")
			return
		}
		respondJSON(w, http.StatusOK, localcart.ToView(store.Remove(r.Context(), productID)))
		return
	}
	store.Clear(r.Context())
	respondJSON(w, http.StatusOK, domain.NewCartView(nil))
}

// guestID returns the visitor's guest cart id. Malformed cookies are ignored.
func guestID(r *http.Request) (string, bool) {
	c, err := r.Cookie(GuestCookieName)
	if err != nil {
		return "", false
	}
	if _, err := uuid.Parse(c.Value); err != nil {
		return "", false
	}
	return c.Value, true
}

func (h *CartHandler) ensureGuestID(w http.ResponseWriter, r *http.Request) string {
	if id, ok := guestID(r); ok {
		return id
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     GuestCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(localcart.GuestCartTTL / time.Second),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}
