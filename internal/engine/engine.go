// Package engine abstracts the vision-language model runtime. One Engine is
// one loaded model instance bound to one accelerator device; instances are
// exclusively owned by a pool slot and are not safe for concurrent use.
package engine

import (
	"context"
	"time"
)

// Request is a single generation request handed to an engine instance.
type Request struct {
	Prompt string
	// Images are local file paths: decoded stills for an image request, or
	// sampled frames in temporal order for a video request.
	Images []string
	// MediaKind is "", "image" or "video".
	MediaKind string
	// Generation knobs, passed through opaquely. Zero means backend default.
	MaxTokens   int
	Temperature float64
	TopP        float64
}

// Result summarizes a finished generation.
type Result struct {
	Content      string
	FinishReason string
	Usage        Usage
}

// Usage contains token accounting. All zero when the backend does not report.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Engine runs generations for one model instance. Generate invokes onDelta for
// each streamed fragment (onDelta may be nil) and returns the aggregate result.
// Implementations must return promptly once ctx is canceled; aborting the
// underlying computation is best-effort.
type Engine interface {
	Generate(ctx context.Context, req Request, onDelta func(string) error) (Result, error)
	Close() error
}

// Factory constructs the engine instance for one pool slot. Construction
// failure is fatal to startup: slots are never backed by half-alive engines.
type Factory func(slotID int) (Engine, error)

// Config holds what an engine instance needs to come up.
type Config struct {
	ModelDir string
	DeviceID int
	// RunnerBin is the runner executable, resolved via PATH when relative.
	RunnerBin string
	// StartTimeout bounds model load at construction.
	StartTimeout time.Duration
	// CancelGrace bounds how long an abort may go unacknowledged before the
	// instance is declared dead.
	CancelGrace time.Duration
}

func (c Config) startTimeout() time.Duration {
	if c.StartTimeout > 0 {
		return c.StartTimeout
	}
	return 120 * time.Second
}

func (c Config) cancelGrace() time.Duration {
	if c.CancelGrace > 0 {
		return c.CancelGrace
	}
	return 10 * time.Second
}
