// handlers/router.go
package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the HTTP surface is built from.
type Deps struct {
	Screener  Screener
	Refresher Refresher
	Snapshots SnapshotLister
	Sources   SourceStatusReader // optional
	DB        Pinger
	Gatherer  prometheus.Gatherer

	// AdminToken enables /api/admin behind a bearer token. Empty leaves the
	// admin routes unmounted.
	AdminToken string
}

// NewRouter wires every route.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/api/health", HealthHandler(d.DB))
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Post("/api/v1/sdn_check/", SDNCheckHandler(d.Screener))
		r.Post("/api/v1/sdn_check", SDNCheckHandler(d.Screener))
	})

	if d.AdminToken == "" {
		zap.S().Warn("Server: no admin token configured; /api/admin routes are disabled")
		return r
	}
	r.Route("/api/admin/fallback", func(r chi.Router) {
		r.Use(requireBearer(d.AdminToken))
		r.Post("/refresh", ForceRefreshFallbackHandler(d.Refresher))
		r.Get("/status", FallbackStatusHandler(d.Snapshots, d.Sources))
	})
	return r
}

// requireBearer rejects requests whose Authorization header does not carry
// token as a bearer token.
func requireBearer(token string) func(http.Handler) http.Handler {
	want := []byte("Bearer " + token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get("Authorization"))
			if subtle.ConstantTimeCompare(got, want) != 1 {
				respondWithError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HealthHandler handles GET /api/health.
func HealthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			zap.S().Errorf("Health check failed: DB ping error: %v", err)
			respondWithJSON(w, http.StatusInternalServerError, map[string]string{
				"status": "error", "message": "database connection error",
			})
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]string{
			"status": "ok", "message": "sanctions service is healthy",
		})
	}
}
