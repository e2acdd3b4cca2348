// Package engine defines the model execution boundary and its Ollama adapter.
package engine

import (
	"context"
	"errors"

	"github.com/cortexlab/cortex/internal/model"
)

// ErrStopped is returned with the partial text when Stop interrupts Generate.
var ErrStopped = errors.New("generation stopped")

// TokenFunc receives generated text fragments in arrival order.
type TokenFunc func(token string)

// Engine runs a locally loaded language model. Implementations allow one Generate
// at a time; the runtime serializes callers.
type Engine interface {
	// Load makes the model at path (or model name) ready. false with a nil error
	// means the model is not available.
	Load(ctx context.Context, path string) (bool, error)
	Unload(ctx context.Context) error
	// Generate completes prompt, calling onToken for each fragment, and returns the
	// full text. After Stop it returns the text so far and ErrStopped.
	Generate(ctx context.Context, prompt string, params model.GenerationParams, onToken TokenFunc) (string, error)
	Stop()
}
