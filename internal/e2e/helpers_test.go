package e2e

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"vlmd/internal/config"
	"vlmd/internal/engine"
	"vlmd/internal/httpapi"
	"vlmd/internal/media"
	"vlmd/internal/pool"
	"vlmd/internal/serving"
)

// stubEngine streams canned deltas and returns a canned result. A non-nil
// gate blocks completion until the channel is closed, which keeps the slot
// busy for backpressure tests. onReq observes the request as the engine sees
// it, while resolved media files still exist.
type stubEngine struct {
	deltas  []string
	result  engine.Result
	err     error
	gate    chan struct{}
	started chan struct{}
	onReq   func(engine.Request)
}

func (e *stubEngine) Generate(ctx context.Context, req engine.Request, onDelta func(string) error) (engine.Result, error) {
	if e.onReq != nil {
		e.onReq(req)
	}
	if e.started != nil {
		select {
		case <-e.started:
		default:
			close(e.started)
		}
	}
	for _, d := range e.deltas {
		if ctx.Err() != nil {
			return engine.Result{}, ctx.Err()
		}
		if onDelta != nil {
			if err := onDelta(d); err != nil {
				return engine.Result{}, err
			}
		}
	}
	if e.gate != nil {
		select {
		case <-e.gate:
		case <-ctx.Done():
			return engine.Result{}, ctx.Err()
		}
	}
	if e.err != nil {
		return engine.Result{}, e.err
	}
	return e.result, nil
}

func (e *stubEngine) Close() error { return nil }

// newServer boots the full stack (pool, resolver, service, mux) over stub
// engines and returns a running test server.
func newServer(t *testing.T, slots int, acquireTimeout time.Duration, mk func(slot int) engine.Engine, mutate func(*config.Config)) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.MaxConcurrent = slots
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := pool.New(slots, acquireTimeout, func(i int) (engine.Engine, error) { return mk(i), nil }, zerolog.Nop())
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = p.Close(ctx)
	})
	resolver := media.NewResolver(media.ResolverConfig{FetchTimeout: time.Second}, zerolog.Nop())
	svc := serving.NewService(&cfg, p, resolver, zerolog.Nop())
	srv := httptest.NewServer(httpapi.NewMux(&cfg, svc))
	t.Cleanup(srv.Close)
	return srv
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpPostJSON(t *testing.T, url string, payload []byte, header http.Header) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

// pngBytes returns a small valid PNG for upload and inline-media tests.
func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}
