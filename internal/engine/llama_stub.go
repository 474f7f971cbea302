//go:build !llama

package engine

import (
	"github.com/rs/zerolog"
)

// This file provides a no-CGO stub for the llama backend. It is compiled when
// the 'llama' build tag is NOT set, keeping default builds and CI CGO-free.
// No mocked inference: construction fails fast.

var llamaBuilt = false

// NewLlama refuses to construct without the 'llama' build tag.
func NewLlama(cfg Config, log zerolog.Logger) (Engine, error) {
	return nil, ErrDependencyUnavailable("llama support not built (missing 'llama' build tag)")
}

// LlamaFactory returns a Factory whose construction always fails in this build.
func LlamaFactory(cfg Config, log zerolog.Logger) Factory {
	return func(int) (Engine, error) {
		return NewLlama(cfg, log)
	}
}
