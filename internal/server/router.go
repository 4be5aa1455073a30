package server

import (
	"net/http"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ashanw/subplanet-invoicer/internal/config"
	"github.com/ashanw/subplanet-invoicer/internal/handlers"
	"github.com/ashanw/subplanet-invoicer/internal/httpx"
	"github.com/ashanw/subplanet-invoicer/internal/pdf"
	"github.com/ashanw/subplanet-invoicer/internal/services"
	"github.com/ashanw/subplanet-invoicer/internal/session"
)

// New constructs the root http.Handler with all routes and middlewares applied.
func New(db *gorm.DB, cfg config.Config, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	mux := http.NewServeMux()
	sessions := session.NewManager(cfg.SessionSecret)
	pdfOpts := pdf.Options{LogoPath: cfg.LogoPath, BackgroundPath: cfg.BackgroundPath}

	// --- Health endpoints ---
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if err := db.Exec("SELECT 1").Error; err != nil {
			httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Auth endpoints
	ah := handlers.NewAuthHandler(sessions, cfg, log)
	mux.HandleFunc("/login", methodOnly(http.MethodPost, ah.Login))
	mux.HandleFunc("/logout", methodOnly(http.MethodPost, ah.Logout))
	mux.HandleFunc("/session", methodOnly(http.MethodGet, ah.Session))

	requireAuth := requireSession(cfg)

	// Catalog endpoints. List/Create via /products; Update/Delete via
	// /products/update & /products/delete for simplicity.
	ph := handlers.NewProductHandler(db, sessions, log)
	mux.Handle("/products", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			ph.List(w, r)
		case http.MethodPost:
			ph.Create(w, r)
		default:
			w.Header().Set("Allow", "GET,POST")
			httpx.JSONError(w, http.StatusMethodNotAllowed, "method_not_allowed")
		}
	})))
	mux.Handle("/products/update", requireAuth(http.HandlerFunc(ph.Update)))
	mux.Handle("/products/delete", requireAuth(http.HandlerFunc(ph.Delete)))
	mux.Handle("/products/price", requireAuth(http.HandlerFunc(methodOnly(http.MethodGet, ph.Price))))

	// Invoice endpoints
	invSvc := services.NewInvoiceService(db, log)
	ih := handlers.NewInvoiceHandler(db, invSvc, sessions, pdfOpts, log)
	mux.Handle("/invoices", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			ih.List(w, r)
		case http.MethodPost:
			ih.Create(w, r)
		default:
			w.Header().Set("Allow", "GET,POST")
			httpx.JSONError(w, http.StatusMethodNotAllowed, "method_not_allowed")
		}
	})))
	mux.Handle("/invoices/pdf", requireAuth(http.HandlerFunc(methodOnly(http.MethodGet, ih.PDF))))

	return sessions.Middleware(withRecover(log, withLogging(log, mux)))
}

// methodOnly guards single-method endpoints.
func methodOnly(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			httpx.JSONError(w, http.StatusMethodNotAllowed, "method_not_allowed")
			return
		}
		next(w, r)
	}
}

// requireSession rejects requests without a valid session when the staff
// password gate is configured. With the gate off the tool trusts its network.
func requireSession(cfg config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.AuthRequired() {
				if _, ok := session.FromContext(r.Context()); !ok {
					httpx.JSONError(w, http.StatusUnauthorized, "unauthorized")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func withLogging(log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)))
	})
}

func withRecover(log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("panic recovered", zap.Any("panic", rec), zap.String("path", r.URL.Path))
				httpx.JSONError(w, http.StatusInternalServerError, "internal_error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
