package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	// Decoders registered for image validation.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// browserUA mirrors what a regular client sends; several image hosts refuse
// the Go default agent.
const browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// ResolverConfig tunes remote fetching and video sampling.
type ResolverConfig struct {
	FetchTimeout     time.Duration // per remote download; default 15s
	MaxFetchBytes    int64         // remote body cap; default 64 MiB
	MaxParallelFetch int64         // process-wide concurrent downloads; default 4
	FFmpegBin        string        // default "ffmpeg"
	FFprobeBin       string        // default "ffprobe"
	MaxFrames        int           // video sampling cap; default 12
}

func (c ResolverConfig) withDefaults() ResolverConfig {
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 15 * time.Second
	}
	if c.MaxFetchBytes <= 0 {
		c.MaxFetchBytes = 64 << 20
	}
	if c.MaxParallelFetch <= 0 {
		c.MaxParallelFetch = 4
	}
	if c.FFmpegBin == "" {
		c.FFmpegBin = "ffmpeg"
	}
	if c.FFprobeBin == "" {
		c.FFprobeBin = "ffprobe"
	}
	if c.MaxFrames <= 0 {
		c.MaxFrames = 12
	}
	return c
}

// Resolver turns references into engine-ready local files.
type Resolver struct {
	cfg      ResolverConfig
	log      zerolog.Logger
	client   *http.Client
	fetchSem *semaphore.Weighted
}

func NewResolver(cfg ResolverConfig, log zerolog.Logger) *Resolver {
	cfg = cfg.withDefaults()
	return &Resolver{
		cfg: cfg,
		log: log,
		// Client timeout stays 0: every request carries a context deadline.
		client:   &http.Client{},
		fetchSem: semaphore.NewWeighted(cfg.MaxParallelFetch),
	}
}

// Resolve validates one reference and materializes it for the engine. Videos
// are probed and sampled into ratio-spaced frames. Client-local files are
// used in place and never copied; everything else lands in sc.
func (r *Resolver) Resolve(ctx context.Context, raw string, ratio float64, sc *Scratch) (*Resolved, error) {
	ref, err := ParseReference(raw)
	if err != nil {
		return nil, err
	}
	switch ref.Kind {
	case RefBase64:
		return r.resolveBase64(ref, sc)
	case RefRemote:
		return r.resolveRemote(ctx, ref, ratio, sc)
	default:
		return r.resolveLocal(ctx, ref, ratio, sc)
	}
}

// ResolveAll resolves references in parallel, preserving order. The first
// failure cancels the rest.
func (r *Resolver) ResolveAll(ctx context.Context, raws []string, ratio float64, sc *Scratch) ([]*Resolved, error) {
	out := make([]*Resolved, len(raws))
	g, gctx := errgroup.WithContext(ctx)
	for i, raw := range raws {
		i, raw := i, raw
		g.Go(func() error {
			res, err := r.Resolve(gctx, raw, ratio, sc)
			if err != nil {
				return err
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Resolver) resolveLocal(ctx context.Context, ref Reference, ratio float64, sc *Scratch) (*Resolved, error) {
	path := strings.TrimPrefix(ref.Raw, "file://")
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, newError(ReasonUnsupported, ref.Raw, "bad path", err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, newError(ReasonNotFound, ref.Raw, "", nil)
		}
		return nil, newError(ReasonNotFound, ref.Raw, "", err)
	}
	if fi.IsDir() {
		return nil, newError(ReasonUnsupported, ref.Raw, "is a directory", nil)
	}
	kind, ok := KindForPath(abs)
	if !ok {
		return nil, newError(ReasonUnsupported, ref.Raw, fmt.Sprintf("extension %q", filepath.Ext(abs)), nil)
	}
	if kind == KindVideo {
		frames, err := r.sampleVideo(ctx, ref.Raw, abs, ratio, sc)
		if err != nil {
			return nil, err
		}
		return &Resolved{Kind: KindVideo, Path: abs, Frames: frames, Ratio: ratio}, nil
	}
	w, h, err := validateImageFile(abs)
	if err != nil {
		return nil, newError(ReasonDecodeFailed, ref.Raw, "", err)
	}
	return &Resolved{Kind: KindImage, Path: abs, Width: w, Height: h}, nil
}

// resolveBase64 handles data: URIs. Only images are accepted inline; inline
// video payloads are rejected rather than silently mishandled.
func (r *Resolver) resolveBase64(ref Reference, sc *Scratch) (*Resolved, error) {
	meta, payload, ok := strings.Cut(ref.Raw, ",")
	if !ok {
		return nil, newError(ReasonDecodeFailed, ref.Raw, "missing data payload", nil)
	}
	mediaType := strings.TrimPrefix(meta, "data:")
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	switch {
	case strings.HasPrefix(mediaType, "image/"):
	case strings.HasPrefix(mediaType, "video/"):
		return nil, newError(ReasonUnsupported, ref.Raw, "video over base64 is not supported; supply a path or URL", nil)
	default:
		return nil, newError(ReasonUnsupported, ref.Raw, fmt.Sprintf("inline media type %q", mediaType), nil)
	}

	cleaned := stripSpace(payload)
	enc := base64.StdEncoding
	if len(cleaned)%4 != 0 {
		enc = base64.RawStdEncoding
	}
	data, err := enc.DecodeString(cleaned)
	if err != nil {
		return nil, newError(ReasonDecodeFailed, ref.Raw, "invalid base64", err)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, newError(ReasonDecodeFailed, ref.Raw, "payload is not a decodable image", err)
	}
	// Validation precedes the write: a rejected payload leaves nothing behind.
	path := sc.NewPath(extForFormat(format))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, fmt.Errorf("write decoded image: %w", err)
	}
	return &Resolved{Kind: KindImage, Path: path, Width: cfg.Width, Height: cfg.Height}, nil
}

func (r *Resolver) resolveRemote(ctx context.Context, ref Reference, ratio float64, sc *Scratch) (*Resolved, error) {
	if err := r.fetchSem.Acquire(ctx, 1); err != nil {
		return nil, newError(ReasonDownloadFailed, ref.Raw, "canceled while queued", err)
	}
	defer r.fetchSem.Release(1)

	fctx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(fctx, http.MethodGet, ref.Raw, nil)
	if err != nil {
		return nil, newError(ReasonUnsupported, ref.Raw, "bad URL", err)
	}
	req.Header.Set("User-Agent", browserUA)
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, newError(ReasonDownloadFailed, ref.Raw, "", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newError(ReasonDownloadFailed, ref.Raw, resp.Status, nil)
	}

	ct := resp.Header.Get("Content-Type")
	kind, ok := kindForResponse(ct, ref.Raw)
	if !ok {
		return nil, newError(ReasonUnsupported, ref.Raw, fmt.Sprintf("content type %q", ct), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, r.cfg.MaxFetchBytes+1))
	if err != nil {
		return nil, newError(ReasonDownloadFailed, ref.Raw, "reading body", err)
	}
	if int64(len(body)) > r.cfg.MaxFetchBytes {
		return nil, newError(ReasonDownloadFailed, ref.Raw, fmt.Sprintf("larger than %d bytes", r.cfg.MaxFetchBytes), nil)
	}

	if kind == KindImage {
		cfg, format, err := image.DecodeConfig(bytes.NewReader(body))
		if err != nil {
			return nil, newError(ReasonDecodeFailed, ref.Raw, "response is not a decodable image", err)
		}
		path := sc.NewPath(extForFormat(format))
		if err := os.WriteFile(path, body, 0o600); err != nil {
			return nil, fmt.Errorf("write download: %w", err)
		}
		r.log.Debug().Str("url", clipRef(ref.Raw)).Int("bytes", len(body)).Msg("image downloaded")
		return &Resolved{Kind: KindImage, Path: path, Width: cfg.Width, Height: cfg.Height}, nil
	}

	path := sc.NewPath(videoExtFor(ct, ref.Raw))
	if err := os.WriteFile(path, body, 0o600); err != nil {
		return nil, fmt.Errorf("write download: %w", err)
	}
	r.log.Debug().Str("url", clipRef(ref.Raw)).Int("bytes", len(body)).Msg("video downloaded")
	frames, err := r.sampleVideo(ctx, ref.Raw, path, ratio, sc)
	if err != nil {
		return nil, err
	}
	return &Resolved{Kind: KindVideo, Path: path, Frames: frames, Ratio: ratio}, nil
}

// validateImageFile proves the bytes decode as an image and returns the
// dimensions.
func validateImageFile(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

// kindForResponse classifies a download by Content-Type, falling back to the
// URL extension.
func kindForResponse(ct, rawURL string) (Kind, bool) {
	ct = strings.ToLower(ct)
	switch {
	case strings.HasPrefix(ct, "image/"):
		return KindImage, true
	case strings.HasPrefix(ct, "video/"):
		return KindVideo, true
	}
	if u, err := url.Parse(rawURL); err == nil {
		if k, ok := KindForPath(u.Path); ok {
			return k, true
		}
	}
	return "", false
}

func videoExtFor(ct, rawURL string) string {
	ct = strings.ToLower(ct)
	for ext := range videoExts {
		if strings.Contains(ct, strings.TrimPrefix(ext, ".")) {
			return ext
		}
	}
	if u, err := url.Parse(rawURL); err == nil {
		ext := strings.ToLower(filepath.Ext(u.Path))
		if _, ok := videoExts[ext]; ok {
			return ext
		}
	}
	return ".mp4"
}

// extForFormat maps image.DecodeConfig format names to extensions.
func extForFormat(format string) string {
	if format == "jpeg" {
		return ".jpg"
	}
	return "." + format
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)
}
