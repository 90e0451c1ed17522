// Package api assembles the HTTP surface: middleware chain, auth routes,
// the /api/v1 resources and the websocket endpoint.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"smtparts/internal/handlers/admin"
	"smtparts/internal/handlers/catalog"
	"smtparts/internal/handlers/dashboard"
	"smtparts/internal/handlers/partners"
	"smtparts/internal/handlers/sales"
	"smtparts/internal/response"
	"smtparts/internal/server"
	"smtparts/internal/websocket"
)

// withID adapts the (w, r, id) handler form to chi's URL parameters.
func withID(fn func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fn(w, r, chi.URLParam(r, "id"))
	}
}

// NewRouter wires every handler onto a chi router.
func NewRouter(app *server.App) http.Handler {
	cfg := app.Cfg

	adm := &admin.Handler{DB: app.DB, Hub: app.Hub, SessionTTL: cfg.SessionTTL, BackupDir: cfg.BackupDir}
	cat := &catalog.Handler{DB: app.DB, Hub: app.Hub, LowStock: cfg.Sales.LowStockThreshold}
	par := &partners.Handler{DB: app.DB, Hub: app.Hub}
	sal := &sales.Handler{DB: app.DB, Hub: app.Hub, Company: cfg.Company, Sales: cfg.Sales}
	dash := &dashboard.Handler{DB: app.DB, LowStock: cfg.Sales.LowStockThreshold}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(server.LoggingMiddleware(cfg.Web.CORSOrigin))
	r.Use(server.SecurityHeaders)
	r.Use(server.RateLimitMiddleware(app.Limiter, cfg.Web.RateLimit))
	r.Use(server.GzipMiddleware)
	r.Use(server.RequireAuth(app.DB, cfg.SessionTTL))
	r.Use(server.RequireRBAC)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Err(w, "not found", 404)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Err(w, "method not allowed", 405)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := app.DB.PingContext(r.Context()); err != nil {
			response.Err(w, "database unavailable", 503)
			return
		}
		response.JSON(w, map[string]interface{}{"status": "ok", "ws_clients": app.Hub.Clients()})
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", adm.Login)
		r.Post("/logout", adm.Logout)
		r.Get("/me", adm.Me)
		r.Put("/password", adm.ChangePassword)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
			websocket.HandleWebSocket(app.Hub, w, r)
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", cat.ListProducts)
			r.Post("/", cat.CreateProduct)
			r.Get("/categories", cat.ListCategories)
			r.Get("/export", cat.ExportProducts)
			r.Post("/import", cat.ImportProductsUpload)
			r.Post("/bulk-update", cat.BulkUpdateProducts)
			r.Get("/{id}", withID(cat.GetProduct))
			r.Put("/{id}", withID(cat.UpdateProduct))
			r.Patch("/{id}", withID(cat.PatchProduct))
			r.Delete("/{id}", withID(cat.DeleteProduct))
		})

		r.Route("/suppliers", func(r chi.Router) {
			r.Get("/", par.ListSuppliers)
			r.Post("/", par.CreateSupplier)
			r.Get("/{id}", withID(par.GetSupplier))
			r.Put("/{id}", withID(par.UpdateSupplier))
			r.Delete("/{id}", withID(par.DeleteSupplier))
		})

		r.Route("/customers", func(r chi.Router) {
			r.Get("/", par.ListCustomers)
			r.Post("/", par.CreateCustomer)
			r.Get("/{id}", withID(par.GetCustomer))
			r.Put("/{id}", withID(par.UpdateCustomer))
			r.Delete("/{id}", withID(par.DeleteCustomer))
		})

		r.Route("/quotations", func(r chi.Router) {
			r.Get("/", sal.ListQuotations)
			r.Post("/", sal.CreateQuotation)
			r.Get("/{id}", withID(sal.GetQuotation))
			r.Put("/{id}", withID(sal.UpdateQuotation))
			r.Delete("/{id}", withID(sal.DeleteQuotation))
			r.Post("/{id}/convert", withID(sal.ConvertQuotation))
			r.Get("/{id}/export", withID(sal.ExportQuotation))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", sal.ListOrders)
			r.Post("/", sal.CreateOrder)
			r.Get("/{id}", withID(sal.GetOrder))
			r.Put("/{id}", withID(sal.UpdateOrder))
			r.Delete("/{id}", withID(sal.DeleteOrder))
			r.Put("/{id}/status", withID(sal.UpdateOrderStatus))
		})

		r.Route("/deals", func(r chi.Router) {
			r.Get("/", sal.ListDeals)
			r.Post("/", sal.CreateDeal)
			r.Get("/board", sal.GetBoard)
			r.Get("/{id}", withID(sal.GetDeal))
			r.Put("/{id}", withID(sal.UpdateDeal))
			r.Delete("/{id}", withID(sal.DeleteDeal))
			r.Put("/{id}/move", withID(sal.MoveDeal))
		})

		r.Get("/dashboard", dash.GetDashboard)
		r.Get("/reports/stock-value", dash.StockValuation)

		r.Route("/users", func(r chi.Router) {
			r.Get("/", adm.ListUsers)
			r.Post("/", adm.CreateUser)
			r.Put("/{id}", withID(adm.UpdateUser))
		})
		r.Get("/audit", adm.ListAudit)

		r.Route("/backups", func(r chi.Router) {
			r.Get("/", adm.ListBackupsHandler)
			r.Post("/", adm.CreateBackup)
			r.Get("/{id}", withID(adm.DownloadBackup))
			r.Delete("/{id}", withID(adm.DeleteBackup))
		})
	})

	return r
}
