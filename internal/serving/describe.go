package serving

import (
	"context"
	"io"
	"strings"
	"time"

	"vlmd/internal/engine"
	"vlmd/internal/media"
	"vlmd/pkg/types"
)

// DescribeRequest is one uploaded file ready for description. Path points at
// the spooled upload on local disk; Filename is the client's original name,
// kept for metadata only.
type DescribeRequest struct {
	Path      string
	Filename  string
	Prompt    string
	MaxTokens int
}

// Describe runs a single-media description and reports how it was processed.
func (s *Service) Describe(ctx context.Context, req DescribeRequest) (*types.DescribeResponse, error) {
	ereq, sc, kind, err := s.prepareDescribe(ctx, req)
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
	return &types.DescribeResponse{
		Status:      "success",
		Description: content,
		Metadata: types.DescribeMetadata{
			Filename:       req.Filename,
			MediaType:      string(kind),
			Prompt:         ereq.Prompt,
			ProcessingTime: time.Since(start).Seconds(),
			Model:          s.cfg.ModelName,
			ModelDir:       s.cfg.ModelDir,
		},
	}, nil
}

// DescribeStream is the streaming variant; deltas are framed as SSE chat
// chunks like /v1/chat/completions.
func (s *Service) DescribeStream(ctx context.Context, req DescribeRequest, w io.Writer, flush func()) error {
	ereq, sc, _, err := s.prepareDescribe(ctx, req)
	if err != nil {
		return err
	}
	defer s.cleanupScratch(sc)
	return s.streamGeneration(ctx, ereq, w, flush)
}

// prepareDescribe resolves the spooled upload and builds the engine request.
// Same scratch ownership rules as prepareChat.
func (s *Service) prepareDescribe(ctx context.Context, req DescribeRequest) (engine.Request, *media.Scratch, media.Kind, error) {
	sc, err := media.NewScratch()
	if err != nil {
		return engine.Request{}, nil, "", err
	}
	resolved, err := s.resolver.Resolve(ctx, req.Path, s.cfg.VideoRatio, sc)
	if err != nil {
		s.cleanupScratch(sc)
		return engine.Request{}, nil, "", err
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		prompt = defaultPrompt(resolved.Kind)
	}
	return engine.Request{
		Prompt:    prompt,
		Images:    resolved.EnginePaths(),
		MediaKind: string(resolved.Kind),
		MaxTokens: req.MaxTokens,
	}, sc, resolved.Kind, nil
}
