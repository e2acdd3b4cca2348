// Package runtime turns a student query into a validated answer: it selects a
// knowledge pack, assembles the prompt, runs the engine and screens the output.
package runtime

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/cortexlab/cortex/internal/engine"
	"github.com/cortexlab/cortex/internal/logger"
	"github.com/cortexlab/cortex/internal/model"
	"github.com/cortexlab/cortex/internal/pack"
	"github.com/cortexlab/cortex/internal/prompt"
	"github.com/cortexlab/cortex/internal/section"
	"github.com/cortexlab/cortex/internal/validate"
)

// InternalError is the response when the engine fails.
const InternalError = "An internal error occurred in the Cortex Runtime."

// StoppedNotice is the response when a query is stopped before any text was generated.
const StoppedNotice = "Stopped before an answer was generated."

// ErrBusy is returned when a query arrives while another is generating and the busy
// policy is reject.
var ErrBusy = errors.New("runtime busy: a query is already in progress")

// State is the lifecycle position of the in-flight query.
type State int32

const (
	StateIdle State = iota
	StateSelecting
	StateAssembling
	StateGenerating
	StateValidating
	StateDone
)

func (s State) String() string {
	switch s {
	case StateSelecting:
		return "selecting"
	case StateAssembling:
		return "assembling"
	case StateGenerating:
		return "generating"
	case StateValidating:
		return "validating"
	case StateDone:
		return "done"
	default:
		return "idle"
	}
}

// PackSource lists the installed knowledge packs.
type PackSource interface {
	Discover(ctx context.Context, force bool) ([]model.KnowledgePack, error)
}

// Options are the per-query inputs.
type Options struct {
	Grade         string
	Subject       string
	Tool          prompt.Tool
	ModelName     string
	CustomPersona string
	History       []model.Turn
	// Params override the mode defaults field by field; zero fields are ignored.
	Params model.GenerationParams
	// OnToken receives generated fragments as they arrive. It must not block for
	// long; the engine waits on it.
	OnToken engine.TokenFunc
}

// Runtime runs one query at a time against an engine.
type Runtime struct {
	engine    engine.Engine
	packs     PackSource
	validator *validate.Validator
	log       *logger.Logger

	mu  sync.RWMutex
	cfg Config

	sem     *semaphore.Weighted
	state   atomic.Int32
	stopReq atomic.Bool

	runMu  sync.Mutex
	cancel context.CancelFunc
}

// New creates a runtime. validator may be nil for the default banned list.
func New(eng engine.Engine, packs PackSource, validator *validate.Validator, cfg Config, log *logger.Logger) *Runtime {
	if log == nil {
		log = logger.Nop()
	}
	if validator == nil {
		validator = validate.New(nil)
	}
	return &Runtime{
		engine:    eng,
		packs:     packs,
		validator: validator,
		log:       log.With("component", "CortexRuntime"),
		cfg:       cfg,
		sem:       semaphore.NewWeighted(1),
	}
}

// State reports the current lifecycle state.
func (r *Runtime) State() State { return State(r.state.Load()) }

// Config returns the current generation and policy settings.
func (r *Runtime) Config() Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// Validator returns the output validator.
func (r *Runtime) Validator() *validate.Validator { return r.validator }

// SetConfig replaces the generation and policy settings for later queries.
func (r *Runtime) SetConfig(cfg Config) {
	r.mu.Lock()
	r.cfg = cfg
	r.mu.Unlock()
}

// Stop interrupts the in-flight query. Text generated so far is validated and
// returned as a normal result.
func (r *Runtime) Stop() {
	switch r.State() {
	case StateIdle, StateDone:
		return
	}
	r.stopReq.Store(true)
	r.runMu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.runMu.Unlock()
	r.engine.Stop()
}

// begin registers the cancel func of the admitted query so Stop can reach it
// before the engine has registered its own.
func (r *Runtime) begin(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	r.runMu.Lock()
	r.cancel = cancel
	r.runMu.Unlock()
	return ctx, func() {
		r.runMu.Lock()
		r.cancel = nil
		r.runMu.Unlock()
		cancel()
	}
}

func (r *Runtime) setState(s State) { r.state.Store(int32(s)) }

func (r *Runtime) acquire(ctx context.Context, busy BusyPolicy) error {
	if busy == BusyQueue {
		return r.sem.Acquire(ctx, 1)
	}
	if !r.sem.TryAcquire(1) {
		return ErrBusy
	}
	return nil
}

// ProcessQuery answers input. The only errors are admission failures: ErrBusy, or
// the context ending while queued. Engine failures, refusals and stops all come
// back as a result.
func (r *Runtime) ProcessQuery(ctx context.Context, input string, opts Options) (*model.QueryResult, error) {
	cfg := r.Config()
	if err := r.acquire(ctx, cfg.Busy); err != nil {
		return nil, err
	}
	defer r.sem.Release(1)
	defer r.setState(StateIdle)
	r.stopReq.Store(false)
	ctx, end := r.begin(ctx)
	defer end()

	log := r.log.With("query_id", uuid.NewString())

	r.setState(StateSelecting)
	packs, err := r.packs.Discover(ctx, false)
	if err != nil {
		log.Warn("pack discovery failed, answering ungrounded", "error", err)
		packs = nil
	}
	sel := pack.Select(packs, pack.Criteria{
		Grade:   opts.Grade,
		Subject: opts.Subject,
		Query:   input,
		History: opts.History,
	})
	detail := prompt.NeedsDetail(input)
	resume := prompt.IsResume(input)
	family := prompt.DetectFamily(opts.ModelName)

	result := &model.QueryResult{
		Detail: detail,
		Resume: resume,
		Family: family.String(),
	}

	if refusal, ok := cfg.Refusal.Check(opts.Tool, opts.Grade, opts.Subject, packs, sel); ok {
		log.Info("query refused by syllabus policy", "tool", opts.Tool, "grade", opts.Grade)
		result.Response = refusal
		result.Refused = true
		r.setState(StateDone)
		return result, nil
	}

	r.setState(StateAssembling)
	parts := prompt.Parts{
		Persona: opts.CustomPersona,
		Grade:   opts.Grade,
		Subject: opts.Subject,
		Tool:    opts.Tool,
		Resume:  resume,
	}
	if sel.Grounded() {
		parts.CompactGrounding = sel.Pack.CompactContent
		if detail {
			parts.DetailedGrounding = section.Extract(sel.Pack.FullContent, input)
		}
		if parts.Subject == "" {
			parts.Subject = sel.Pack.Subject
		}
	}
	system := prompt.BuildSystemPrompt(parts)
	history := prompt.PruneHistory(opts.History, sel.Grounded(), resume)
	text := prompt.Serialize(system, history, input, family)
	params := cfg.MergeParams(detail || resume, sel.Grounded(), opts.Params)

	result.PromptChars = len(text)
	log.Info("prompt assembled",
		"pack_id", sel.ID(),
		"match", sel.Reason.String(),
		"family", family.String(),
		"detail", detail,
		"resume", resume,
		"system_chars", len(system),
		"prompt_chars", len(text),
		"history_turns", len(history),
		"max_tokens", params.MaxTokens,
	)

	r.setState(StateGenerating)
	var generated string
	var genErr error
	if r.stopReq.Load() {
		genErr = engine.ErrStopped
	} else {
		generated, genErr = r.engine.Generate(ctx, text, params, opts.OnToken)
	}
	switch {
	case genErr != nil && !errors.Is(genErr, engine.ErrStopped) && !r.stopReq.Load() && ctx.Err() == nil:
		log.Error("generation failed", "error", genErr)
		result.Response = InternalError
		r.setState(StateDone)
		return result, nil
	case genErr != nil || r.stopReq.Load():
		// An engine may finish normally when the stop lands before it registers.
		log.Info("generation stopped", "partial_chars", len(generated))
		result.Stopped = true
	}

	r.setState(StateValidating)
	if v := r.validator.Validate(generated); !v.Valid {
		log.Warn("output discarded by validator", "reason", v.Reason)
		result.Response = validate.HardRefusal
		result.Refused = true
		result.PackID = sel.ID()
		r.setState(StateDone)
		return result, nil
	}

	result.Response = strings.TrimSpace(generated)
	if result.Stopped && result.Response == "" {
		result.Response = StoppedNotice
	}
	result.PackID = sel.ID()
	r.setState(StateDone)
	return result, nil
}
