package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"

	"github.com/cortexlab/cortex/internal/logger"
	"github.com/cortexlab/cortex/internal/model"
)

// Ollama drives a local Ollama server in raw mode: prompts are sent already wrapped
// in the model family's chat markup, so the server's own template is bypassed.
type Ollama struct {
	Client    *api.Client
	log       *logger.Logger
	keepAlive time.Duration

	mu      sync.Mutex
	model   string
	cancel  context.CancelFunc
	stopped bool
}

// NewOllama creates an engine for the server at host. An empty host falls back to
// OLLAMA_HOST and then the Ollama default.
func NewOllama(host, modelName string, keepAlive time.Duration, log *logger.Logger) (*Ollama, error) {
	if log == nil {
		log = logger.Nop()
	}
	hostURL := envconfig.Host()
	if host != "" {
		u, err := url.Parse(host)
		if err != nil {
			return nil, fmt.Errorf("parse ollama host %q: %w", host, err)
		}
		hostURL = u
	}
	return &Ollama{
		Client:    api.NewClient(hostURL, http.DefaultClient),
		log:       log.With("component", "OllamaEngine", "host", hostURL.String()),
		keepAlive: keepAlive,
		model:     modelName,
	}, nil
}

// Model returns the model name generation runs against.
func (o *Ollama) Model() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.model
}

// Load pulls the model into memory with an empty request. A model the server does
// not have reports false.
func (o *Ollama) Load(ctx context.Context, path string) (bool, error) {
	name := strings.TrimSpace(path)
	if name == "" {
		name = o.Model()
	}
	if _, err := o.Client.Show(ctx, &api.ShowRequest{Model: name}); err != nil {
		var se api.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			o.log.Warn("model not available", "model", name)
			return false, nil
		}
		return false, fmt.Errorf("show model: %w", err)
	}

	req := &api.GenerateRequest{Model: name, KeepAlive: &api.Duration{Duration: o.keepAlive}}
	if err := o.Client.Generate(ctx, req, func(api.GenerateResponse) error { return nil }); err != nil {
		return false, fmt.Errorf("load model: %w", err)
	}

	o.mu.Lock()
	o.model = name
	o.mu.Unlock()
	o.log.Info("model loaded", "model", name, "keep_alive", o.keepAlive.String())
	return true, nil
}

// Unload asks the server to evict the current model.
func (o *Ollama) Unload(ctx context.Context) error {
	name := o.Model()
	req := &api.GenerateRequest{Model: name, KeepAlive: &api.Duration{Duration: 0}}
	if err := o.Client.Generate(ctx, req, func(api.GenerateResponse) error { return nil }); err != nil {
		return fmt.Errorf("unload model: %w", err)
	}
	o.log.Info("model unloaded", "model", name)
	return nil
}

// Generate streams a raw completion for prompt.
func (o *Ollama) Generate(ctx context.Context, prompt string, params model.GenerationParams, onToken TokenFunc) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.mu.Lock()
	o.cancel = cancel
	o.stopped = false
	name := o.model
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.cancel = nil
		o.mu.Unlock()
	}()

	req := &api.GenerateRequest{
		Model:     name,
		Prompt:    prompt,
		Raw:       true,
		KeepAlive: &api.Duration{Duration: o.keepAlive},
		Options:   options(params),
	}

	var out strings.Builder
	err := o.Client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		if resp.Response != "" {
			out.WriteString(resp.Response)
			if onToken != nil {
				onToken(resp.Response)
			}
		}
		if resp.Done {
			o.log.Debug("generation done", "reason", resp.DoneReason, "eval_count", resp.EvalCount)
		}
		return nil
	})
	if err != nil {
		o.mu.Lock()
		stopped := o.stopped
		o.mu.Unlock()
		if stopped {
			return out.String(), ErrStopped
		}
		return out.String(), fmt.Errorf("generate: %w", err)
	}
	return out.String(), nil
}

// Stop cancels the in-flight Generate, if any.
func (o *Ollama) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.stopped = true
		o.cancel()
	}
}

func options(p model.GenerationParams) map[string]interface{} {
	opts := map[string]interface{}{}
	if p.Temperature > 0 {
		opts["temperature"] = p.Temperature
	}
	if p.TopP > 0 {
		opts["top_p"] = p.TopP
	}
	if p.TopK > 0 {
		opts["top_k"] = p.TopK
	}
	if p.MaxTokens > 0 {
		opts["num_predict"] = p.MaxTokens
	}
	return opts
}
