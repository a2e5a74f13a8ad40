package routes

import (
	"net/http"
	"time"

	"github.com/shashiranjanraj/veritas/app/controllers"
	"github.com/shashiranjanraj/veritas/app/models"
	"github.com/shashiranjanraj/veritas/app/services"
	"github.com/shashiranjanraj/veritas/internal/provenance"
	gqlpkg "github.com/shashiranjanraj/veritas/pkg/graphql"
	"github.com/shashiranjanraj/veritas/pkg/logger"
	"github.com/shashiranjanraj/veritas/pkg/metrics"
	"github.com/shashiranjanraj/veritas/pkg/middleware"
	"github.com/shashiranjanraj/veritas/pkg/reqid"
	"github.com/shashiranjanraj/veritas/pkg/response"
	"github.com/shashiranjanraj/veritas/pkg/router"
	"github.com/shashiranjanraj/veritas/pkg/sse"
	"github.com/shashiranjanraj/veritas/pkg/ws"
)

// Deps carries the shared dependencies the route handlers close over.
type Deps struct {
	Ledger  provenance.Ledger
	Keyring *provenance.Keyring
	Feed    *services.FeedService
}

// RegisterAPI wires the full HTTP surface.
func RegisterAPI(r *router.Router, deps Deps) {
	r.Use(metrics.Middleware())
	r.Use(reqid.Middleware())
	r.Use(middleware.Recovery)
	r.Use(middleware.Logger)
	r.Use(middleware.CORS(middleware.DefaultCORSOptions()))

	authController := controllers.NewAuthController(services.NewAuthService(deps.Keyring))
	productController := controllers.NewProductController(
		services.NewRegistrationService(deps.Ledger, deps.Keyring),
		services.NewTransferService(deps.Ledger, deps.Keyring),
	)
	verifyController := controllers.NewVerifyController(services.NewVerifyService(deps.Ledger, logger.L))

	// Operational surface.
	r.Get("/healthz", "health", func(w http.ResponseWriter, _ *http.Request) {
		response.Success(w, map[string]string{"status": "ok"})
	})
	r.Get("/metrics", "metrics", metrics.Handler())

	// Read-only query surface for dashboards.
	if schema, err := gqlpkg.NewSchema(deps.Ledger); err != nil {
		logger.Error("routes: build graphql schema", "error", err)
	} else {
		r.Post("/graphql", "graphql", gqlpkg.Handler(schema))
	}

	// Live custody feed, as websocket or SSE.
	if deps.Feed != nil {
		r.Get("/ws/custody", "ws.custody", func(w http.ResponseWriter, r *http.Request) {
			ws.Upgrade(w, r, deps.Feed.Hub())
		})
		r.Get("/feed/custody", "feed.custody", func(w http.ResponseWriter, r *http.Request) {
			stream := sse.New(w, r)
			if stream == nil {
				return
			}
			updates, cancel := deps.Feed.Subscribe()
			defer cancel()

			heartbeat := time.NewTicker(25 * time.Second)
			defer heartbeat.Stop()
			for {
				select {
				case <-r.Context().Done():
					return
				case <-heartbeat.C:
					stream.Comment("keepalive")
				case update := <-updates:
					if err := stream.Send("custody", update); err != nil || stream.IsClosed() {
						return
					}
				}
			}
		})
	}

	api := r.Group("/api")

	// Accounts.
	api.Post("/auth/register", "auth.register", authController.Register)
	api.Post("/auth/login", "auth.login", authController.Login, middleware.RateLimit(20, time.Minute))
	api.Post("/auth/refresh", "auth.refresh", authController.Refresh)

	// Public verification. Scanning a label needs no account.
	api.Post("/verify", "verify", verifyController.Verify,
		middleware.OptionalAuth, middleware.RateLimit(120, time.Minute))
	api.Post("/verify/batch", "verify.batch", verifyController.VerifyBatch,
		middleware.OptionalAuth, middleware.RateLimit(12, time.Minute))

	// Manufacturer surface.
	mfg := api.Group("", middleware.Auth, middleware.RequireRole(models.RoleManufacturer))
	mfg.Post("/products", "products.register", productController.Register)

	// Retailer surface.
	retail := api.Group("", middleware.Auth, middleware.RequireRole(models.RoleRetailer))
	retail.Post("/products/{id}/receive", "products.receive", productController.Receive)
	retail.Post("/products/{id}/sell", "products.sell", productController.Sell)

	// Any authenticated account may re-issue a label.
	authed := api.Group("", middleware.Auth)
	authed.Get("/products/{id}/label", "products.label", productController.Label)
}
