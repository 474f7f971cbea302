package serving

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"vlmd/internal/engine"
	"vlmd/internal/media"
	"vlmd/pkg/types"
)

// ChatCompletion serves the non-streaming form of POST /v1/chat/completions.
// Media is resolved before a slot is taken so malformed requests never
// consume engine capacity.
func (s *Service) ChatCompletion(ctx context.Context, req types.ChatCompletionRequest) (*types.ChatCompletionResponse, error) {
	ereq, sc, err := s.prepareChat(ctx, req)
	if err != nil {
		return nil, err
	}
	defer s.cleanupScratch(sc)

	start := time.Now()
	var b strings.Builder
	res, err := s.generate(ctx, ereq, func(delta string) error {
		b.WriteString(delta)
		return nil
	})
	if err != nil {
		return nil, err
	}
	content := res.Content
	if content == "" {
		content = b.String()
	}
	finish := res.FinishReason
	if finish == "" {
		finish = "stop"
	}
	s.log.Debug().
		Dur("dur", time.Since(start)).
		Int("media", len(ereq.Images)).
		Msg("chat completion done")
	return &types.ChatCompletionResponse{
		ID:      newCompletionID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   s.cfg.ModelName,
		Choices: []types.Choice{{
			Index:        0,
			Message:      types.ResponseMessage{Role: types.RoleAssistant, Content: content},
			FinishReason: finish,
		}},
		Usage: completionUsage(ereq.Prompt, content, res),
	}, nil
}

// ChatCompletionStream serves the streaming form. Each engine delta becomes
// one SSE event flushed before the next delta is requested; the stream ends
// with a finish_reason chunk and the [DONE] sentinel. An error before the
// first byte is returned for status mapping; after the first byte the error
// is delivered in-stream and nil is returned.
func (s *Service) ChatCompletionStream(ctx context.Context, req types.ChatCompletionRequest, w io.Writer, flush func()) error {
	ereq, sc, err := s.prepareChat(ctx, req)
	if err != nil {
		return err
	}
	defer s.cleanupScratch(sc)
	return s.streamGeneration(ctx, ereq, w, flush)
}

// streamGeneration runs one generation and frames its deltas as SSE chat
// chunks on w. Shared by the chat and describe streaming paths.
func (s *Service) streamGeneration(ctx context.Context, ereq engine.Request, w io.Writer, flush func()) error {
	id := newCompletionID()
	created := time.Now().Unix()
	var wrote bool
	onDelta := func(delta string) error {
		d := types.Delta{Content: delta}
		if !wrote {
			d.Role = types.RoleAssistant
		}
		if err := writeEvent(w, s.chunk(id, created, d, nil)); err != nil {
			return err
		}
		wrote = true
		if flush != nil {
			flush()
		}
		return nil
	}
	if _, err := s.generate(ctx, ereq, onDelta); err != nil {
		if ctx.Err() != nil {
			// Client gone or server draining; nothing left to deliver.
			return nil
		}
		if !wrote {
			return err
		}
		s.log.Error().Err(err).Str("id", id).Msg("generation failed mid-stream")
		_ = writeEvent(w, types.ErrorResponse{Error: types.ErrorDetail{
			Message: "generation failed before completion",
			Type:    "stream_error",
		}})
		_ = writeDone(w)
		if flush != nil {
			flush()
		}
		return nil
	}
	stop := "stop"
	if err := writeEvent(w, s.chunk(id, created, types.Delta{}, &stop)); err != nil {
		return err
	}
	if err := writeDone(w); err != nil {
		return err
	}
	if flush != nil {
		flush()
	}
	return nil
}

// prepareChat extracts the prompt and media, resolves everything into a fresh
// scratch dir and builds the engine request. On success the caller owns the
// scratch; on failure it is already cleaned up.
func (s *Service) prepareChat(ctx context.Context, req types.ChatCompletionRequest) (engine.Request, *media.Scratch, error) {
	prompt, refs, err := s.extract(req.Messages)
	if err != nil {
		return engine.Request{}, nil, err
	}
	sc, err := media.NewScratch()
	if err != nil {
		return engine.Request{}, nil, err
	}
	resolved, err := s.resolver.ResolveAll(ctx, refs, s.cfg.VideoRatio, sc)
	if err != nil {
		s.cleanupScratch(sc)
		return engine.Request{}, nil, err
	}
	if err := checkMediaMix(resolved); err != nil {
		s.cleanupScratch(sc)
		return engine.Request{}, nil, err
	}
	if prompt == "" {
		// extract guarantees refs exist when the text is empty.
		prompt = defaultPrompt(resolved[0].Kind)
	}
	paths, kind := engineMedia(resolved)
	return engine.Request{
		Prompt:      prompt,
		Images:      paths,
		MediaKind:   kind,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}, sc, nil
}

func (s *Service) cleanupScratch(sc *media.Scratch) {
	if err := sc.Cleanup(); err != nil {
		s.log.Warn().Err(err).Msg("scratch cleanup failed")
	}
}

func (s *Service) chunk(id string, created int64, delta types.Delta, finish *string) types.ChatCompletionChunk {
	return types.ChatCompletionChunk{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   s.cfg.ModelName,
		Choices: []types.ChunkChoice{{Index: 0, Delta: delta, FinishReason: finish}},
	}
}

func newCompletionID() string { return "chatcmpl-" + uuid.NewString() }

func completionUsage(prompt, content string, res engine.Result) types.Usage {
	u := res.Usage
	if u.TotalTokens == 0 {
		u = estimateUsage(prompt, content)
	}
	return types.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

// writeEvent frames one SSE data event.
func writeEvent(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, "data: "); err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return err
	}
	_, err = io.WriteString(w, "\n\n")
	return err
}

// writeDone emits the stream-end sentinel.
func writeDone(w io.Writer) error {
	_, err := io.WriteString(w, "data: [DONE]\n\n")
	return err
}
