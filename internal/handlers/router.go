package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Rohansunwar5/sweety-server-sub000/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the /api/v1 router.
type RouteRegistrar func(r chi.Router)

type routeGroup struct {
	name        string
	prefix      string
	registrar   RouteRegistrar
	middlewares []func(http.Handler) http.Handler
}

type routerConfig struct {
	basePath    string
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers

	cart     routeGroup
	orders   routeGroup
	admin    routeGroup
	webhooks routeGroup
	internal routeGroup
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const (
	defaultAPIPrefix  = "/api/v1"
	defaultTimeout    = 60 * time.Second
	errorNotFoundCode = "route_not_found"
)

// NewRouter constructs the chi router with shared middleware and the commerce route groups.
// Groups without a registrar answer 501.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		basePath: defaultAPIPrefix,
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(defaultTimeout),
		},
		cart:     routeGroup{name: "cart", prefix: "/cart"},
		orders:   routeGroup{name: "orders", prefix: "/orders"},
		admin:    routeGroup{name: "admin", prefix: "/admin"},
		webhooks: routeGroup{name: "webhooks", prefix: "/webhooks"},
		internal: routeGroup{name: "internal", prefix: "/internal"},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(cfg.basePath, func(api chi.Router) {
		// Groups register full paths so action routes such as /cart:merge sit beside /cart.
		for _, group := range []routeGroup{cfg.cart, cfg.orders, cfg.admin, cfg.webhooks, cfg.internal} {
			if group.registrar == nil {
				registerNotImplemented(api, group.prefix, group.name)
				continue
			}
			api.Group(func(g chi.Router) {
				for _, mw := range group.middlewares {
					if mw != nil {
						g.Use(mw)
					}
				}
				group.registrar(g)
			})
		}
	})

	return r
}

// WithMiddlewares appends additional global middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers overrides the handlers used for /healthz and /readyz.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithCartRoutes configures the registrar for cart endpoints.
func WithCartRoutes(reg RouteRegistrar, mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.cart.registrar = reg
		cfg.cart.middlewares = append(cfg.cart.middlewares, mw...)
	}
}

// WithOrderRoutes configures the registrar for order and payment endpoints.
func WithOrderRoutes(reg RouteRegistrar, mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.orders.registrar = reg
		cfg.orders.middlewares = append(cfg.orders.middlewares, mw...)
	}
}

// WithAdminRoutes configures the registrar for staff endpoints.
func WithAdminRoutes(reg RouteRegistrar, mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.admin.registrar = reg
		cfg.admin.middlewares = append(cfg.admin.middlewares, mw...)
	}
}

// WithWebhookRoutes configures the registrar for gateway callbacks.
func WithWebhookRoutes(reg RouteRegistrar, mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.webhooks.registrar = reg
		cfg.webhooks.middlewares = append(cfg.webhooks.middlewares, mw...)
	}
}

// WithInternalRoutes configures the registrar for server-to-server endpoints.
func WithInternalRoutes(reg RouteRegistrar, mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.internal.registrar = reg
		cfg.internal.middlewares = append(cfg.internal.middlewares, mw...)
	}
}

func registerNotImplemented(r chi.Router, prefix, name string) {
	handler := func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", fmt.Sprintf("%s routes not implemented", name), http.StatusNotImplemented))
	}
	r.HandleFunc(prefix, handler)
	r.HandleFunc(prefix+"/*", handler)
}
