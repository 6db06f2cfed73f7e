package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/identity"
)

const healthProbeTimeout = 2 * time.Second

type RouteRegistrar interface {
	RegisterRoutes(router chi.Router)
}

// Pinger reports whether the remote order store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type healthResponse struct {
	Status string `json:"status"`
	Remote string `json:"remote"`
}

// NewRouter mounts every registrar behind the common middleware stack.
// remote may be nil when no remote store is configured.
func NewRouter(remote Pinger, registrars ...RouteRegistrar) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(identity.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok", Remote: "disabled"}
		if remote != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
			defer cancel()

			resp.Remote = "up"
			if err := remote.Ping(ctx); err != nil {
				log.Warn().Err(err).Msg("transport: health probe of remote store failed")
				resp.Remote = "down"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	})

	for _, reg := range registrars {
		reg.RegisterRoutes(r)
	}
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		defer func() {
			log.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("transport: request served")
		}()

		next.ServeHTTP(ww, r)
	})
}
