package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"vlmd/internal/config"
	"vlmd/pkg/types"
)

// chatCompletions godoc
// @Summary      Create a chat completion
// @Description  OpenAI-compatible chat endpoint. Message content may be a
// @Description  string or an array of text and image_url parts; image_url
// @Description  accepts local paths, file:// URIs, data URIs and http(s)
// @Description  URLs. Set stream=true for server-sent events.
// @Tags         chat
// @Accept       json
// @Produce      json
// @Param        request body types.ChatCompletionRequest true "chat request"
// @Success      200 {object} types.ChatCompletionResponse
// @Failure      401 {object} types.ErrorResponse
// @Failure      404 {object} types.ErrorResponse
// @Failure      422 {object} types.ErrorResponse
// @Failure      503 {object} types.ErrorResponse
// @Security     ApiKeyAuth
// @Router       /v1/chat/completions [post]
func chatCompletionsHandler(cfg *config.Config, svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json", errTypeInvalidRequest)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxBodyBytes())
		var req types.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				writeJSONError(w, http.StatusRequestEntityTooLarge, "request body exceeds the configured limit", errTypeInvalidRequest)
				return
			}
			writeJSONError(w, http.StatusUnprocessableEntity, "invalid JSON body", errTypeInvalidRequest)
			return
		}

		start := time.Now()
		ev := logger().Info().Str("path", r.URL.Path).Bool("stream", req.Stream)
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			ev = ev.Str("request_id", rid)
		}
		ev.Msg("chat start")

		// Join server base context with request context so shutdown cancels work too.
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()

		if !req.Stream {
			resp, err := svc.ChatCompletion(ctx, req)
			if err != nil {
				if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
					return
				}
				writeServiceError(w, r, err)
				logEnd(r, start, err)
				return
			}
			writeJSON(w, http.StatusOK, resp)
			logEnd(r, start, nil)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		// Stop nginx-style proxies from buffering the event stream.
		w.Header().Set("X-Accel-Buffering", "no")
		var flush func()
		if f, ok := w.(http.Flusher); ok {
			flush = f.Flush
		}
		if err := svc.ChatCompletionStream(ctx, req, w, flush); err != nil {
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			// Nothing was streamed yet; a plain error response is still possible.
			writeServiceError(w, r, err)
			logEnd(r, start, err)
			return
		}
		logEnd(r, start, nil)
	}
}
