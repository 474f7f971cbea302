//go:build llama

package engine

import (
	"context"
	"errors"

	llama "github.com/go-skynet/go-llama.cpp"
	"github.com/rs/zerolog"
)

// llamaBuilt indicates this binary was compiled with real llama support.
var llamaBuilt = true

// llamaEngine runs a gguf model in-process. Text-only smoke backend: vision
// inputs require the runner.
type llamaEngine struct {
	model   *llama.LLama
	threads int
}

// NewLlama loads the lexically first .gguf artifact found in cfg.ModelDir.
func NewLlama(cfg Config, log zerolog.Logger) (Engine, error) {
	artifact, err := FindArtifact(cfg.ModelDir, ".gguf")
	if err != nil {
		return nil, err
	}
	m, err := llama.New(artifact, llama.SetContext(4096))
	if err != nil {
		return nil, err
	}
	log.Info().Str("artifact", artifact).Msg("llama model loaded")
	return &llamaEngine{model: m, threads: 4}, nil
}

// LlamaFactory returns a Factory loading one in-process model per slot.
func LlamaFactory(cfg Config, log zerolog.Logger) Factory {
	return func(slotID int) (Engine, error) {
		return NewLlama(cfg, log.With().Int("slot", slotID).Logger())
	}
}

func (e *llamaEngine) Generate(ctx context.Context, req Request, onDelta func(string) error) (Result, error) {
	if e.model == nil {
		return Result{}, errors.New("llama model not initialized")
	}
	if len(req.Images) > 0 {
		return Result{}, ErrGeneration("vision input requires the runner engine")
	}

	// Bridge token streaming to onDelta and respect cancellation.
	var cbErr error
	e.model.SetTokenCallback(func(tok string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		if onDelta != nil {
			if err := onDelta(tok); err != nil {
				cbErr = err
				return false
			}
		}
		return true
	})

	po := []llama.PredictOption{llama.SetThreads(e.threads)}
	if req.MaxTokens > 0 {
		po = append(po, llama.SetTokens(req.MaxTokens))
	}
	if req.Temperature > 0 {
		po = append(po, llama.SetTemperature(float32(req.Temperature)))
	}
	if req.TopP > 0 {
		po = append(po, llama.SetTopP(float32(req.TopP)))
	}
	text, err := e.model.Predict(req.Prompt, po...)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, err
	}
	if cbErr != nil {
		return Result{}, cbErr
	}
	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}
	return Result{Content: text, FinishReason: "stop"}, nil
}

func (e *llamaEngine) Close() error {
	if e.model != nil {
		e.model.Free()
		e.model = nil
	}
	return nil
}
