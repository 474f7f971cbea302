package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"vlmd/internal/config"
	"vlmd/internal/engine"
	"vlmd/internal/media"
	"vlmd/internal/pool"
	"vlmd/internal/serving"
	"vlmd/pkg/types"
)

type fakeService struct {
	mu        sync.Mutex
	chatResp  *types.ChatCompletionResponse
	chatErr   error
	streamFn  func(io.Writer, func()) error
	streamErr error
	descResp  *types.DescribeResponse
	descErr   error
	lastChat  types.ChatCompletionRequest
	lastDesc  serving.DescribeRequest
	spoolSeen bool
}

func (f *fakeService) ChatCompletion(ctx context.Context, req types.ChatCompletionRequest) (*types.ChatCompletionResponse, error) {
	f.mu.Lock()
	f.lastChat = req
	f.mu.Unlock()
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	if f.chatResp != nil {
		return f.chatResp, nil
	}
	return &types.ChatCompletionResponse{
		ID:     "chatcmpl-test",
		Object: "chat.completion",
		Model:  "qwen3-vl-instruct",
		Choices: []types.Choice{{
			Message:      types.ResponseMessage{Role: types.RoleAssistant, Content: "ok"},
			FinishReason: "stop",
		}},
	}, nil
}

func (f *fakeService) ChatCompletionStream(ctx context.Context, req types.ChatCompletionRequest, w io.Writer, flush func()) error {
	f.mu.Lock()
	f.lastChat = req
	f.mu.Unlock()
	if f.streamErr != nil {
		return f.streamErr
	}
	if f.streamFn != nil {
		return f.streamFn(w, flush)
	}
	_, _ = io.WriteString(w, "data: {\"object\":\"chat.completion.chunk\"}\n\ndata: [DONE]\n\n")
	if flush != nil {
		flush()
	}
	return nil
}

func (f *fakeService) Describe(ctx context.Context, req serving.DescribeRequest) (*types.DescribeResponse, error) {
	f.mu.Lock()
	f.lastDesc = req
	if _, err := os.Stat(req.Path); err == nil {
		f.spoolSeen = true
	}
	f.mu.Unlock()
	if f.descErr != nil {
		return nil, f.descErr
	}
	if f.descResp != nil {
		return f.descResp, nil
	}
	return &types.DescribeResponse{Status: "success", Description: "a thing"}, nil
}

func (f *fakeService) DescribeStream(ctx context.Context, req serving.DescribeRequest, w io.Writer, flush func()) error {
	f.mu.Lock()
	f.lastDesc = req
	f.mu.Unlock()
	_, _ = io.WriteString(w, "data: {\"object\":\"chat.completion.chunk\"}\n\ndata: [DONE]\n\n")
	if flush != nil {
		flush()
	}
	return nil
}

func (f *fakeService) Health() types.HealthResponse {
	return types.HealthResponse{Status: "ok", Model: "qwen3-vl-instruct", Version: "2.2.0"}
}

func (f *fakeService) Info() types.ServiceInfo {
	return types.ServiceInfo{Service: "vlmd", Model: "qwen3-vl-instruct"}
}

func (f *fakeService) Models() types.ModelList {
	return types.ModelList{Object: "list", Data: []types.ModelCard{{ID: "qwen3-vl-instruct", Object: "model"}}}
}

func (f *fakeService) Model(id string) (types.ModelCard, bool) {
	if id == "qwen3-vl-instruct" {
		return types.ModelCard{ID: id, Object: "model"}, true
	}
	return types.ModelCard{}, false
}

func newTestMux(svc Service) http.Handler {
	cfg := config.Default()
	return NewMux(&cfg, svc)
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) types.ErrorResponse {
	t.Helper()
	var er types.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &er); err != nil {
		t.Fatalf("error body: %v (%q)", err, rr.Body.String())
	}
	return er
}

type nopEngine struct{}

func (nopEngine) Generate(context.Context, engine.Request, func(string) error) (engine.Result, error) {
	return engine.Result{}, nil
}
func (nopEngine) Close() error { return nil }

// poolExhaustedErr manufactures the real error Acquire returns under load.
func poolExhaustedErr(t *testing.T) error {
	t.Helper()
	p, err := pool.New(1, 20*time.Millisecond, func(int) (engine.Engine, error) { return nopEngine{}, nil }, zerolog.Nop())
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	s, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	_, aerr := p.Acquire(context.Background())
	p.Release(s)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = p.Close(ctx)
	if !pool.IsExhausted(aerr) {
		t.Fatalf("expected exhausted, got %v", aerr)
	}
	return aerr
}

func TestRootInfo(t *testing.T) {
	rr := doJSON(t, newTestMux(&fakeService{}), http.MethodGet, "/", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var info types.ServiceInfo
	if err := json.Unmarshal(rr.Body.Bytes(), &info); err != nil {
		t.Fatalf("body: %v", err)
	}
	if info.Service != "vlmd" {
		t.Fatalf("service = %q", info.Service)
	}
}

func TestHealth(t *testing.T) {
	rr := doJSON(t, newTestMux(&fakeService{}), http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("content type = %q", ct)
	}
	var h types.HealthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &h); err != nil {
		t.Fatalf("body: %v", err)
	}
	if h.Status != "ok" {
		t.Fatalf("status = %q", h.Status)
	}
}

func TestModelsList(t *testing.T) {
	rr := doJSON(t, newTestMux(&fakeService{}), http.MethodGet, "/v1/models", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var list types.ModelList
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("body: %v", err)
	}
	if list.Object != "list" || len(list.Data) != 1 {
		t.Fatalf("list = %+v", list)
	}
}

func TestModelNotFound(t *testing.T) {
	rr := doJSON(t, newTestMux(&fakeService{}), http.MethodGet, "/v1/models/gpt-4", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
	if er := decodeError(t, rr); er.Error.Type != "not_found_error" {
		t.Fatalf("type = %q", er.Error.Type)
	}
}

func TestChatNonStream(t *testing.T) {
	svc := &fakeService{}
	rr := doJSON(t, newTestMux(svc), http.MethodPost, "/v1/chat/completions",
		`{"messages":[{"role":"user","content":"hi"}]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	var resp types.ChatCompletionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("body: %v", err)
	}
	if resp.Object != "chat.completion" || resp.Choices[0].FinishReason != "stop" {
		t.Fatalf("resp = %+v", resp)
	}
	if svc.lastChat.Messages[0].Content.Text != "hi" {
		t.Fatalf("request not forwarded: %+v", svc.lastChat)
	}
}

func TestChatWrongContentType(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "text/plain")
	rr := httptest.NewRecorder()
	newTestMux(&fakeService{}).ServeHTTP(rr, req)
	if rr.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestChatMalformedJSON(t *testing.T) {
	rr := doJSON(t, newTestMux(&fakeService{}), http.MethodPost, "/v1/chat/completions", `{"messages": [`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rr.Code)
	}
	if er := decodeError(t, rr); er.Error.Type != "invalid_request_error" {
		t.Fatalf("type = %q", er.Error.Type)
	}
}

func TestChatBodyTooLarge(t *testing.T) {
	cfg := config.Default()
	cfg.MaxBodyMB = 1
	mux := NewMux(&cfg, &fakeService{})
	big := `{"messages":[{"role":"user","content":"` + strings.Repeat("x", 2<<20) + `"}]}`
	rr := doJSON(t, mux, http.MethodPost, "/v1/chat/completions", big)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestChatValidationError(t *testing.T) {
	svc := &fakeService{chatErr: serving.ErrValidation("messages must not be empty")}
	rr := doJSON(t, newTestMux(svc), http.MethodPost, "/v1/chat/completions", `{"messages":[{"role":"user","content":"hi"}]}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rr.Code)
	}
	er := decodeError(t, rr)
	if er.Error.Type != "invalid_request_error" || !strings.Contains(er.Error.Message, "messages") {
		t.Fatalf("error = %+v", er)
	}
}

func TestChatMediaErrorStatuses(t *testing.T) {
	notFound := &media.Error{Reason: media.ReasonNotFound, Ref: "/gone.png"}
	rr := doJSON(t, newTestMux(&fakeService{chatErr: notFound}), http.MethodPost, "/v1/chat/completions", `{"messages":[{"role":"user","content":"hi"}]}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("not-found status = %d", rr.Code)
	}
	if er := decodeError(t, rr); er.Error.Type != "media_error" {
		t.Fatalf("type = %q", er.Error.Type)
	}

	unsupported := &media.Error{Reason: media.ReasonUnsupported, Ref: "ftp://x"}
	rr = doJSON(t, newTestMux(&fakeService{chatErr: unsupported}), http.MethodPost, "/v1/chat/completions", `{"messages":[{"role":"user","content":"hi"}]}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unsupported status = %d", rr.Code)
	}
}

func TestChatPoolExhausted(t *testing.T) {
	svc := &fakeService{chatErr: poolExhaustedErr(t)}
	rr := doJSON(t, newTestMux(svc), http.MethodPost, "/v1/chat/completions", `{"messages":[{"role":"user","content":"hi"}]}`)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
	if ra := rr.Header().Get("Retry-After"); ra == "" {
		t.Fatalf("missing Retry-After")
	}
	if er := decodeError(t, rr); er.Error.Type != "overloaded_error" {
		t.Fatalf("type = %q", er.Error.Type)
	}
}

func TestChatEngineErrorStaysOpaque(t *testing.T) {
	svc := &fakeService{chatErr: engine.ErrGeneration("kv cache corrupted at layer 17")}
	rr := doJSON(t, newTestMux(svc), http.MethodPost, "/v1/chat/completions", `{"messages":[{"role":"user","content":"hi"}]}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	er := decodeError(t, rr)
	if er.Error.Type != "engine_error" {
		t.Fatalf("type = %q", er.Error.Type)
	}
	if strings.Contains(er.Error.Message, "kv cache") {
		t.Fatalf("engine detail leaked: %q", er.Error.Message)
	}
}

func TestChatStreamSSE(t *testing.T) {
	rr := doJSON(t, newTestMux(&fakeService{}), http.MethodPost, "/v1/chat/completions",
		`{"stream":true,"messages":[{"role":"user","content":"hi"}]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "data: ") || !strings.Contains(body, "data: [DONE]\n\n") {
		t.Fatalf("body = %q", body)
	}
}

func TestChatStreamPreFirstByteError(t *testing.T) {
	svc := &fakeService{streamErr: poolExhaustedErr(t)}
	rr := doJSON(t, newTestMux(svc), http.MethodPost, "/v1/chat/completions",
		`{"stream":true,"messages":[{"role":"user","content":"hi"}]}`)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("content type = %q", ct)
	}
}

func multipartBody(t *testing.T, filename string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		if _, err := fw.Write(content); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("field %s: %v", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestDescribeMultipart(t *testing.T) {
	svc := &fakeService{}
	body, ct := multipartBody(t, "cat.png", []byte("fake image bytes"), map[string]string{"prompt": "What is this?"})
	req := httptest.NewRequest(http.MethodPost, "/v1/media/describe", body)
	req.Header.Set("Content-Type", ct)
	rr := httptest.NewRecorder()
	newTestMux(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if svc.lastDesc.Filename != "cat.png" || svc.lastDesc.Prompt != "What is this?" {
		t.Fatalf("request = %+v", svc.lastDesc)
	}
	if !svc.spoolSeen {
		t.Fatalf("spooled file missing during handling")
	}
	if !strings.HasSuffix(svc.lastDesc.Path, ".png") {
		t.Fatalf("spool lost the extension: %q", svc.lastDesc.Path)
	}
	if _, err := os.Stat(svc.lastDesc.Path); !os.IsNotExist(err) {
		t.Fatalf("spooled upload not removed: %v", err)
	}
}

func TestDescribeRequiresFile(t *testing.T) {
	body, ct := multipartBody(t, "", nil, map[string]string{"prompt": "hi"})
	req := httptest.NewRequest(http.MethodPost, "/v1/media/describe", body)
	req.Header.Set("Content-Type", ct)
	rr := httptest.NewRecorder()
	newTestMux(&fakeService{}).ServeHTTP(rr, req)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestDescribeBadMaxTokens(t *testing.T) {
	body, ct := multipartBody(t, "cat.png", []byte("x"), map[string]string{"max_tokens": "many"})
	req := httptest.NewRequest(http.MethodPost, "/v1/media/describe", body)
	req.Header.Set("Content-Type", ct)
	rr := httptest.NewRecorder()
	newTestMux(&fakeService{}).ServeHTTP(rr, req)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestDescribeStream(t *testing.T) {
	body, ct := multipartBody(t, "cat.png", []byte("x"), map[string]string{"stream": "true"})
	req := httptest.NewRequest(http.MethodPost, "/v1/media/describe", body)
	req.Header.Set("Content-Type", ct)
	rr := httptest.NewRecorder()
	newTestMux(&fakeService{}).ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	if !strings.Contains(rr.Body.String(), "data: [DONE]") {
		t.Fatalf("body = %q", rr.Body.String())
	}
}
