// Package httpapi is the HTTP surface: routing, auth, error mapping and
// request instrumentation. Handlers stay thin; orchestration lives behind
// the Service interface.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vlmd/internal/config"
	"vlmd/internal/serving"
	"vlmd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	ChatCompletion(ctx context.Context, req types.ChatCompletionRequest) (*types.ChatCompletionResponse, error)
	ChatCompletionStream(ctx context.Context, req types.ChatCompletionRequest, w io.Writer, flush func()) error
	Describe(ctx context.Context, req serving.DescribeRequest) (*types.DescribeResponse, error)
	DescribeStream(ctx context.Context, req serving.DescribeRequest, w io.Writer, flush func()) error
	Health() types.HealthResponse
	Info() types.ServiceInfo
	Models() types.ModelList
	Model(id string) (types.ModelCard, bool)
}

// serverBaseCtx is a process-level context that can be canceled on shutdown.
// Defaults to Background if not set.
var serverBaseCtx = context.Background()

// SetBaseContext sets the process-level base context used by handlers.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		serverBaseCtx = context.Background()
		return
	}
	serverBaseCtx = ctx
}

// joinContexts returns a context that is canceled when either a or b is done.
// The returned cancel func must be called when the handler ends.
func joinContexts(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-a.Done():
			cancel()
		case <-b.Done():
			cancel()
		}
	}()
	return ctx, cancel
}

func NewMux(cfg *config.Config, svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints; event streams are not in the default
	// compressible content types, so SSE stays unbuffered.
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	r.Use(MetricsMiddleware)
	if cfg.CORSEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", cfg.APIKeyHeader},
			MaxAge:         300,
		}))
	}

	// root godoc
	// @Summary  Service orientation
	// @Produce  json
	// @Success  200 {object} types.ServiceInfo
	// @Router   / [get]
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Info())
	})

	// health godoc
	// @Summary  Liveness and capacity
	// @Produce  json
	// @Success  200 {object} types.HealthResponse
	// @Router   /health [get]
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Health())
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	r.Route("/v1", func(v chi.Router) {
		v.Use(APIKeyAuth(cfg))
		v.Post("/chat/completions", chatCompletionsHandler(cfg, svc))
		v.Post("/media/describe", describeHandler(cfg, svc))

		// models godoc
		// @Summary  List served models
		// @Produce  json
		// @Success  200 {object} types.ModelList
		// @Failure  401 {object} types.ErrorResponse
		// @Router   /v1/models [get]
		v.Get("/models", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, svc.Models())
		})

		// model godoc
		// @Summary  Fetch one model card
		// @Produce  json
		// @Param    id path string true "model id"
		// @Success  200 {object} types.ModelCard
		// @Failure  404 {object} types.ErrorResponse
		// @Router   /v1/models/{id} [get]
		v.Get("/models/{id}", func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "id")
			card, ok := svc.Model(id)
			if !ok {
				writeJSONError(w, http.StatusNotFound, "model "+id+" not found", errTypeNotFound)
				return
			}
			writeJSON(w, http.StatusOK, card)
		})
	})

	return r
}

// writeJSON writes a 2xx JSON payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger().Warn().Err(err).Msg("response encode failed")
	}
}

// logEnd emits the terminal request log line shared by the POST handlers.
func logEnd(r *http.Request, start time.Time, err error) {
	ev := logger().Info().Str("path", r.URL.Path).Dur("dur", time.Since(start))
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		ev = ev.Str("request_id", rid)
	}
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg("request end")
}
