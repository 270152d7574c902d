package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

type RouterConfig struct {
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
	CookieSecure       bool
	// OTPLimiter and LoginLimiter throttle the unauthenticated credential
	// endpoints. Nil disables throttling.
	OTPLimiter   *RateLimiter
	LoginLimiter *RateLimiter
}

type Deps struct {
	Catalog  CatalogService
	Carts    CartService
	Guests   GuestStores
	Checkout CheckoutService
	Builds   BuildService
	Admin    AdminService
	Auth     AuthService
	Sessions Authenticator
	AdminSes AdminSessions
	Health   map[string]HealthCheck
	Log      *slog.Logger
}

func NewRouter(cfg RouterConfig, d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}

	catalog := NewCatalogHandler(d.Catalog, cfg.RequestTimeout)
	authH := NewAuthHandler(d.Auth, d.AdminSes, cfg.CookieSecure, cfg.RequestTimeout)
	carts := NewCartHandler(d.Carts, d.Catalog, d.Guests, cfg.CookieSecure, cfg.RequestTimeout, log)
	checkout := NewCheckoutHandler(d.Checkout, cfg.RequestTimeout)
	builds := NewBuildHandler(d.Builds, cfg.RequestTimeout)
	admin := NewAdminHandler(d.Admin, cfg.RequestTimeout)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(log))
	r.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	r.Use(BodyLimit(cfg.MaxRequestBodySize))
	r.Use(SessionMiddleware(d.Sessions))

	r.Get("/health", healthHandler(d.Health))

	r.Get("/products", catalog.ListProducts)
	r.Get("/products/{id}", catalog.GetProduct)
	r.Get("/tags", catalog.ListTags)

	r.Route("/auth", func(r chi.Router) {
		r.With(limit(cfg.OTPLimiter)).Post("/otp/request", authH.RequestOTP)
		r.With(limit(cfg.LoginLimiter)).Post("/otp/verify", authH.VerifyOTP)
		r.Post("/logout", authH.Logout)
		r.With(RequireUser).Get("/me", authH.Me)
	})

	r.Route("/guest/cart", func(r chi.Router) {
		r.Get("/", carts.GetGuestCart)
		r.Post("/", carts.AddGuestItem)
		r.Put("/", carts.UpdateGuestItem)
		r.Delete("/", carts.RemoveGuestItem)
	})

	r.Group(func(r chi.Router) {
		r.Use(RequireUser)

		r.Get("/cart", carts.GetCart)
		r.Post("/cart", carts.AddItems)
		r.Put("/cart", carts.UpdateQuantity)
		r.Delete("/cart", carts.RemoveLine)

		r.Post("/checkout", checkout.PlaceOrder)
		r.Put("/checkout", checkout.VerifyPayment)
		r.Get("/orders", checkout.ListOrders)
		r.Get("/orders/{id}", checkout.GetOrder)

		r.Get("/builds", builds.ListMine)
		r.Put("/builds/{shareId}", builds.Update)
		r.Delete("/builds/{shareId}", builds.Delete)
		r.Post("/builds/{shareId}/cart", builds.AddToCart)
	})
	r.Post("/builds", builds.Create)
	r.Get("/builds/{shareId}", builds.Get)

	r.Route("/admin", func(r chi.Router) {
		r.With(limit(cfg.LoginLimiter)).Post("/login", authH.AdminLogin)
		r.Post("/logout", authH.AdminLogout)

		r.Group(func(r chi.Router) {
			r.Use(RequireAdmin(d.AdminSes))

			r.Get("/products", catalog.ListProducts)
			r.Post("/products", catalog.CreateProduct)
			r.Put("/products/{id}", catalog.UpdateProduct)
			r.Delete("/products/{id}", catalog.DeleteProduct)
			r.Put("/products/{id}/tags", catalog.SetProductTags)

			r.Get("/tags", catalog.ListTags)
			r.Post("/tags", catalog.CreateTag)
			r.Delete("/tags/{id}", catalog.DeleteTag)

			r.Get("/orders", admin.ListOrders)
			r.Get("/orders/{id}", admin.GetOrder)
			r.Put("/orders/{id}/status", admin.UpdateOrderStatus)
			r.Get("/stats", admin.Stats)
		})
	})

	return otelhttp.NewHandler(r, "storefront",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

func limit(rl *RateLimiter) func(http.Handler) http.Handler {
	if rl == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return rl.Middleware
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		result := map[string]string{"status": "ok"}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				result["status"] = "degraded"
				result[name] = err.Error()
				continue
			}
			result[name] = "ok"
		}
		respondJSON(w, status, result)
	}
}
