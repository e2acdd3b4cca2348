// Package enginetest provides a scripted engine for tests.
package enginetest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/cortexlab/cortex/internal/engine"
	"github.com/cortexlab/cortex/internal/model"
)

// Engine replays Tokens for every Generate call and records what it was asked.
type Engine struct {
	Tokens []string
	Err    error
	// Block makes Generate wait after the first token until Stop or ctx is done.
	Block bool
	// Started is closed once Generate has emitted its first token, when non-nil.
	Started chan struct{}
	// Loadable controls Load's result.
	Loadable bool

	mu      sync.Mutex
	calls   int
	prompts []string
	params  []model.GenerationParams
	stop    chan struct{}
	loaded  string
}

// New returns an engine that answers with tokens.
func New(tokens ...string) *Engine {
	return &Engine{Tokens: tokens, Loadable: true}
}

func (e *Engine) Load(_ context.Context, path string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.Loadable {
		return false, nil
	}
	e.loaded = path
	return true, nil
}

func (e *Engine) Unload(context.Context) error {
	e.mu.Lock()
	e.loaded = ""
	e.mu.Unlock()
	return nil
}

func (e *Engine) Generate(ctx context.Context, prompt string, params model.GenerationParams, onToken engine.TokenFunc) (string, error) {
	e.mu.Lock()
	e.calls++
	e.prompts = append(e.prompts, prompt)
	e.params = append(e.params, params)
	stop := make(chan struct{})
	e.stop = stop
	started := e.Started
	e.mu.Unlock()

	if e.Err != nil {
		return "", e.Err
	}

	var out strings.Builder
	for i, tok := range e.Tokens {
		out.WriteString(tok)
		if onToken != nil {
			onToken(tok)
		}
		if i == 0 && started != nil {
			close(started)
		}
		if i == 0 && e.Block {
			select {
			case <-stop:
				return out.String(), engine.ErrStopped
			case <-ctx.Done():
				return out.String(), ctx.Err()
			}
		}
	}
	return out.String(), nil
}

func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stop != nil {
		select {
		case <-e.stop:
		default:
			close(e.stop)
		}
	}
}

// Calls is the number of Generate invocations.
func (e *Engine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// LastPrompt returns the most recent prompt, or "".
func (e *Engine) LastPrompt() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.prompts) == 0 {
		return ""
	}
	return e.prompts[len(e.prompts)-1]
}

// LastParams returns the most recent generation parameters.
func (e *Engine) LastParams() model.GenerationParams {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.params) == 0 {
		return model.GenerationParams{}
	}
	return e.params[len(e.params)-1]
}

// Loaded returns the path passed to the last successful Load.
func (e *Engine) Loaded() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

// ErrBoom is a canned engine failure.
var ErrBoom = errors.New("boom")
