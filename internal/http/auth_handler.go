package http

import (
	"context"
	"net/http"
	"time"

	"github.com/pcforge/storefront/internal/domain"
	"github.com/pcforge/storefront/internal/service"
)

type AuthService interface {
	RequestOTP(ctx context.Context, req service.OTPRequest) error
	VerifyOTP(ctx context.Context, req service.OTPVerifyRequest) (*service.Session, error)
	Me(ctx context.Context, userID int64) (*domain.User, error)
}

// AdminSessions handles the shared-password admin cookie.
type AdminSessions interface {
	AdminGuard
	Login(w http.ResponseWriter, r *http.Request, password string) error
	Logout(w http.ResponseWriter, r *http.Request) error
}

type AuthHandler struct {
	auth         AuthService
	admin        AdminSessions
	secureCookie bool
	timeout      time.Duration
}

func NewAuthHandler(auth AuthService, admin AdminSessions, secureCookie bool, timeout time.Duration) *AuthHandler {
	return &AuthHandler{auth: auth, admin: admin, secureCookie: secureCookie, timeout: timeout}
}

func (h *AuthHandler) RequestOTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req service.OTPRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.auth.RequestOTP(ctx, req); err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "code_sent"})
}

func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req service.OTPVerifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	session, err := h.auth.VerifyOTP(ctx, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	respondJSON(w, http.StatusOK, session)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	user, err := h.auth.Me(ctx, userIDFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

type adminLoginRequest struct {
	Password string `json:"password"`
}

func (h *AuthHandler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.admin.Login(w, r, req.Password); err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"admin": true})
}

func (h *AuthHandler) AdminLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.admin.Logout(w, r); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
