package httpapi

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"vlmd/internal/config"
	"vlmd/internal/serving"
)

// describe godoc
// @Summary      Describe an uploaded image or video
// @Description  Multipart upload: "file" (required), "prompt", "max_tokens"
// @Description  and "stream" fields. Videos are frame-sampled before the
// @Description  model sees them.
// @Tags         media
// @Accept       multipart/form-data
// @Produce      json
// @Param        file formData file true "media file"
// @Param        prompt formData string false "instruction, defaults to a describe prompt"
// @Param        stream formData boolean false "stream deltas as SSE"
// @Success      200 {object} types.DescribeResponse
// @Failure      400 {object} types.ErrorResponse
// @Failure      401 {object} types.ErrorResponse
// @Failure      422 {object} types.ErrorResponse
// @Failure      503 {object} types.ErrorResponse
// @Security     ApiKeyAuth
// @Router       /v1/media/describe [post]
func describeHandler(cfg *config.Config, svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxBodyBytes())
		file, hdr, err := r.FormFile("file")
		if err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				writeJSONError(w, http.StatusRequestEntityTooLarge, "upload exceeds the configured limit", errTypeInvalidRequest)
				return
			}
			writeJSONError(w, http.StatusUnprocessableEntity, `multipart field "file" is required`, errTypeInvalidRequest)
			return
		}
		defer file.Close()

		spooled, err := spoolUpload(file, hdr.Filename)
		if err != nil {
			logger().Error().Err(err).Msg("upload spool failed")
			writeJSONError(w, http.StatusInternalServerError, "could not store upload", errTypeEngine)
			return
		}
		defer os.Remove(spooled)

		req := serving.DescribeRequest{
			Path:     spooled,
			Filename: hdr.Filename,
			Prompt:   r.FormValue("prompt"),
		}
		if v := r.FormValue("max_tokens"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeJSONError(w, http.StatusUnprocessableEntity, "max_tokens must be a non-negative integer", errTypeInvalidRequest)
				return
			}
			req.MaxTokens = n
		}
		stream := false
		if v := r.FormValue("stream"); v != "" {
			stream = v == "1" || strings.EqualFold(v, "true")
		}

		start := time.Now()
		ev := logger().Info().Str("path", r.URL.Path).Str("filename", hdr.Filename).Bool("stream", stream)
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			ev = ev.Str("request_id", rid)
		}
		ev.Msg("describe start")

		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()

		if !stream {
			resp, err := svc.Describe(ctx, req)
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
		w.Header().Set("X-Accel-Buffering", "no")
		var flush func()
		if f, ok := w.(http.Flusher); ok {
			flush = f.Flush
		}
		if err := svc.DescribeStream(ctx, req, w, flush); err != nil {
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			writeServiceError(w, r, err)
			logEnd(r, start, err)
			return
		}
		logEnd(r, start, nil)
	}
}

// spoolUpload copies a multipart part to a temp file, keeping the upload's
// extension so media-type detection works on the spooled copy.
func spoolUpload(src io.Reader, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	tmp, err := os.CreateTemp("", "vlmd-upload-*"+ext)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}
