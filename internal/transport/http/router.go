package http

import (
	"context"
	"net/http"
	"slices"
	"time"

	"tablevault/internal/netutil"
	obsmw "tablevault/internal/observability/middleware"
	"tablevault/internal/service"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Services struct {
	Auth      service.AuthService
	Tokens    service.TokenService
	Files     service.FileService
	Analytics service.AnalyticsService
}

type RouterConfig struct {
	CORSOrigins        []string
	RateLimitPerMinute int // 0 disables the auth rate limit
	TrustProxy         bool
	MaxUploadBytes     int64
	// Ready is polled by /healthz when set.
	Ready func(ctx context.Context) error
}

func NewRouter(svc Services, cfg RouterConfig) http.Handler {
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	// Credentials are never paired with a wildcard origin; bearer auth does not need cookies.
	credentials := !slices.Contains(origins, "*")

	ah := &authHandler{auth: svc.Auth, trustProxy: cfg.TrustProxy}
	fh := &fileHandler{files: svc.Files, analytics: svc.Analytics, maxUploadBytes: cfg.MaxUploadBytes}
	if fh.maxUploadBytes <= 0 {
		fh.maxUploadBytes = 32 << 20
	}

	r := chi.NewRouter()

	// --- Middlewares ---
	r.Use(obsmw.WithRequestAndTrace)
	r.Use(obsmw.WithMetrics)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", obsmw.HeaderRequestID, obsmw.HeaderTraceID},
		ExposedHeaders:   []string{obsmw.HeaderRequestID, obsmw.HeaderTraceID, "Content-Disposition"},
		AllowCredentials: credentials,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.Ready(ctx); err != nil {
				obsmw.Logger(r.Context()).Warn("readiness check failed", "error", err)
				writeDetail(w, http.StatusServiceUnavailable, "unavailable")
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// -------- Public auth endpoints --------
	r.Group(func(pr chi.Router) {
		if cfg.RateLimitPerMinute > 0 {
			pr.Use(httprate.Limit(cfg.RateLimitPerMinute, time.Minute,
				httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
					return netutil.ClientIP(r, cfg.TrustProxy), nil
				}),
				httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
					writeDetail(w, http.StatusTooManyRequests, "Too many requests")
				}),
			))
		}
		pr.Post("/register", ah.register)
		pr.Post("/verify-otp", ah.verifyOTP)
		pr.Post("/resend-otp", ah.resendOTP)
		pr.Post("/login", ah.login)
		pr.Post("/refresh", ah.refresh)
	})

	// -------- Protected --------
	r.Group(func(pr chi.Router) {
		pr.Use(RequireBearer(svc.Tokens))

		pr.Get("/me", ah.me)
		pr.Delete("/me", ah.deleteAccount)

		pr.Route("/files", func(fr chi.Router) {
			fr.Post("/", fh.upload)
			fr.Get("/", fh.list)
			fr.Get("/{id}", fh.download)
		})

		pr.Route("/csv", func(cr chi.Router) {
			cr.Post("/", fh.uploadCSV)
			cr.Get("/", fh.listTables)
			cr.Get("/{table}/schema", fh.schema)
			cr.Get("/{table}/rows", fh.rows)
			cr.Get("/{table}/chart", fh.chart)
		})

		pr.Route("/dashboard", func(dr chi.Router) {
			dr.Get("/overview", fh.overview)
			dr.Get("/recent-files", fh.recentFiles)
			dr.Get("/file-analytics/{id}", fh.fileAnalytics)
			dr.Get("/upload-trends", fh.uploadTrends)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	return r
}
