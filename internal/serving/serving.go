// Package serving orchestrates chat and describe requests: it extracts
// prompts and media references from conversations, resolves media to local
// files, runs generations on pool slots and assembles OpenAI-compatible
// responses. All slot lifecycle rules live here so HTTP handlers stay thin.
package serving

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"vlmd/internal/config"
	"vlmd/internal/engine"
	"vlmd/internal/media"
	"vlmd/internal/pool"
)

// Service wires the media resolver and the slot pool behind the HTTP surface.
type Service struct {
	cfg      *config.Config
	pool     *pool.Pool
	resolver *media.Resolver
	log      zerolog.Logger
	started  time.Time
}

// NewService builds the orchestrator. The pool and resolver are owned by the
// caller; Service never closes them.
func NewService(cfg *config.Config, p *pool.Pool, r *media.Resolver, log zerolog.Logger) *Service {
	return &Service{
		cfg:      cfg,
		pool:     p,
		resolver: r,
		log:      log.With().Str("component", "serving").Logger(),
		started:  time.Now(),
	}
}

// generate runs one generation on a freshly acquired slot. The slot is
// released on every exit path, including panics in onDelta; a fatal engine
// failure retires the slot before release.
func (s *Service) generate(ctx context.Context, req engine.Request, onDelta func(string) error) (res engine.Result, err error) {
	slot, aerr := s.pool.Acquire(ctx)
	if aerr != nil {
		return engine.Result{}, aerr
	}
	defer func() {
		if engine.IsFatal(err) {
			s.pool.MarkBroken(slot, err)
		}
		s.pool.Release(slot)
		generationsTotal.WithLabelValues(generationOutcome(err)).Inc()
	}()
	res, err = slot.Engine().Generate(ctx, req, onDelta)
	return res, err
}

// estimateUsage approximates token counts by whitespace-separated words when
// the engine reports none.
func estimateUsage(prompt, completion string) engine.Usage {
	p := len(strings.Fields(prompt))
	c := len(strings.Fields(completion))
	return engine.Usage{PromptTokens: p, CompletionTokens: c, TotalTokens: p + c}
}
