package runtime

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexlab/cortex/internal/engine"
	"github.com/cortexlab/cortex/internal/engine/enginetest"
	"github.com/cortexlab/cortex/internal/model"
	"github.com/cortexlab/cortex/internal/prompt"
	"github.com/cortexlab/cortex/internal/validate"
)

type staticPacks struct {
	packs []model.KnowledgePack
	err   error
}

func (s staticPacks) Discover(context.Context, bool) ([]model.KnowledgePack, error) {
	return s.packs, s.err
}

const scienceFull = `# Class 6 Science

## Food from Plants
Plants make food.

## Photosynthesis
Photosynthesis is how green leaves use sunlight, water and carbon dioxide to make food.

## Roots
Roots absorb water.`

func sciencePack() model.KnowledgePack {
	return model.KnowledgePack{
		ID:             "science-6",
		Grade:          "6",
		Subject:        "science",
		Strict:         true,
		Keywords:       []string{"photosynthesis", "plant", "leaf"},
		FullContent:    scienceFull,
		CompactContent: "Class 6 science: plants, food, photosynthesis.",
	}
}

func newRuntime(eng *enginetest.Engine, packs ...model.KnowledgePack) *Runtime {
	return New(eng, staticPacks{packs: packs}, nil, DefaultConfig(), nil)
}

func TestProcessQuery_DetailedGroundedAnswer(t *testing.T) {
	eng := enginetest.New("Photosynthesis ", "makes food.")
	rt := newRuntime(eng, sciencePack())

	res, err := rt.ProcessQuery(context.Background(), "Explain photosynthesis in detail", Options{
		Grade:     "6",
		Subject:   "science",
		ModelName: "Llama 3.2 3B",
	})
	require.NoError(t, err)

	assert.Equal(t, "Photosynthesis makes food.", res.Response)
	assert.Equal(t, "science-6", res.PackID)
	assert.True(t, res.Detail)
	assert.Equal(t, "llama3", res.Family)

	p := eng.LastPrompt()
	assert.Contains(t, p, "DETAILED REFERENCE:\n## Photosynthesis")
	assert.Contains(t, p, "SCOPE CONTEXT (Compact):")
	assert.True(t, strings.HasPrefix(p, "<|begin_of_text|>"))
	assert.NotContains(t, p, "## Roots", "only the matching section is injected")
	assert.Equal(t, 256, eng.LastParams().MaxTokens)
	assert.Equal(t, StateIdle, rt.State())
}

func TestProcessQuery_StrictRefusalSkipsEngine(t *testing.T) {
	eng := enginetest.New("should not run")
	rt := newRuntime(eng, sciencePack())

	res, err := rt.ProcessQuery(context.Background(), "who won the football world cup", Options{
		Grade:   "6",
		Subject: "science",
		Tool:    prompt.ToolExplain,
	})
	require.NoError(t, err)
	assert.Equal(t, prompt.OutOfSyllabus("6", "science"), res.Response)
	assert.True(t, res.Refused)
	assert.Empty(t, res.PackID)
	assert.Zero(t, eng.Calls())
}

func TestProcessQuery_StrictToolWithKeywordMatchAnswers(t *testing.T) {
	eng := enginetest.New("Leaves make food.")
	rt := newRuntime(eng, sciencePack())

	res, err := rt.ProcessQuery(context.Background(), "what is a leaf", Options{Grade: "6", Tool: prompt.ToolExplain})
	require.NoError(t, err)
	assert.False(t, res.Refused)
	assert.Equal(t, "science-6", res.PackID)
	assert.Equal(t, 1, eng.Calls())
}

func TestProcessQuery_RefusalPolicyScope(t *testing.T) {
	tests := []struct {
		name   string
		policy RefusalPolicy
		opts   Options
		refuse bool
	}{
		{"tool not strict", RefusalPolicy{Tools: []string{"explain"}}, Options{Grade: "6", Tool: prompt.ToolNotes}, false},
		{"no tool", RefusalPolicy{Tools: []string{"explain"}}, Options{Grade: "6"}, false},
		{"grade not listed", RefusalPolicy{Tools: []string{"explain"}, Grades: []string{"7"}}, Options{Grade: "6", Tool: prompt.ToolExplain}, false},
		{"grade listed", RefusalPolicy{Tools: []string{"explain"}, Grades: []string{"6"}}, Options{Grade: "6", Tool: prompt.ToolExplain}, true},
		{"no strict pack for grade", RefusalPolicy{Tools: []string{"explain"}}, Options{Grade: "8", Tool: prompt.ToolExplain}, false},
		{"policy disabled", RefusalPolicy{}, Options{Grade: "6", Tool: prompt.ToolExplain}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Refusal = tt.policy
			eng := enginetest.New("ok")
			rt := New(eng, staticPacks{packs: []model.KnowledgePack{sciencePack()}}, nil, cfg, nil)

			res, err := rt.ProcessQuery(context.Background(), "tell me about the moon landing", tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.refuse, res.Refused)
			assert.Equal(t, !tt.refuse, eng.Calls() == 1)
		})
	}
}

func TestProcessQuery_ValidatorDiscardsOutput(t *testing.T) {
	eng := enginetest.New("Some text about ", "violence.")
	rt := newRuntime(eng)

	var tokens []string
	res, err := rt.ProcessQuery(context.Background(), "tell me a story", Options{
		OnToken: func(tok string) { tokens = append(tokens, tok) },
	})
	require.NoError(t, err)
	assert.Equal(t, validate.HardRefusal, res.Response)
	assert.True(t, res.Refused)
	assert.NotContains(t, res.Response, "violence")
	assert.Len(t, tokens, 2, "tokens are forwarded before validation")
}

func TestProcessQuery_EngineErrorBecomesGenericText(t *testing.T) {
	eng := enginetest.New()
	eng.Err = enginetest.ErrBoom
	rt := newRuntime(eng, sciencePack())

	res, err := rt.ProcessQuery(context.Background(), "what is photosynthesis", Options{})
	require.NoError(t, err)
	assert.Equal(t, InternalError, res.Response)
	assert.NotContains(t, res.Response, "boom")
	assert.Empty(t, res.PackID)
}

func TestProcessQuery_DiscoveryErrorAnswersUngrounded(t *testing.T) {
	eng := enginetest.New("Hello!")
	rt := New(eng, staticPacks{err: errors.New("disk gone")}, nil, DefaultConfig(), nil)

	res, err := rt.ProcessQuery(context.Background(), "what is photosynthesis", Options{})
	require.NoError(t, err)
	assert.Equal(t, "Hello!", res.Response)
	assert.Empty(t, res.PackID)
	assert.Equal(t, 100, eng.LastParams().MaxTokens)
}

func TestProcessQuery_UngroundedPrompt(t *testing.T) {
	eng := enginetest.New("Generally speaking, yes.")
	rt := newRuntime(eng, sciencePack())

	res, err := rt.ProcessQuery(context.Background(), "is the sky blue because of scattering", Options{ModelName: "phi3"})
	require.NoError(t, err)
	assert.Empty(t, res.PackID)
	assert.Equal(t, "generic", res.Family)
	p := eng.LastPrompt()
	assert.True(t, strings.HasPrefix(p, "System: CORTEX CONSTITUTION"))
	assert.NotContains(t, p, "SCOPE CONTEXT")
	assert.True(t, strings.HasSuffix(p, "User: is the sky blue because of scattering\nAssistant:"))
}

func TestProcessQuery_ResumeKeepsAnswerTail(t *testing.T) {
	eng := enginetest.New("...and that is how roots work.")
	rt := newRuntime(eng, sciencePack())

	long := strings.Repeat("x", 200) + strings.Repeat("y", 800)
	res, err := rt.ProcessQuery(context.Background(), "continue", Options{
		History: []model.Turn{
			{Role: model.RoleUser, Content: "tell me about plant roots"},
			{Role: model.RoleAssistant, Content: long},
		},
	})
	require.NoError(t, err)
	assert.True(t, res.Resume)
	assert.Equal(t, "science-6", res.PackID, "short follow-up sticks to the history pack")
	p := eng.LastPrompt()
	assert.Contains(t, p, prompt.ContinuationInstruction)
	assert.Contains(t, p, "Assistant: ... "+strings.Repeat("y", 800))
	assert.NotContains(t, p, strings.Repeat("x", 10))
	assert.Equal(t, 256, eng.LastParams().MaxTokens)
}

func TestProcessQuery_GroundedTemperatureClamp(t *testing.T) {
	eng := enginetest.New("ok")
	rt := newRuntime(eng, sciencePack())

	_, err := rt.ProcessQuery(context.Background(), "what is photosynthesis", Options{
		Params: model.GenerationParams{Temperature: 0.9, MaxTokens: 50},
	})
	require.NoError(t, err)
	p := eng.LastParams()
	assert.InDelta(t, 0.3, p.Temperature, 1e-9)
	assert.Equal(t, 50, p.MaxTokens)
	assert.InDelta(t, 0.9, p.TopP, 1e-9)
	assert.Equal(t, 40, p.TopK)

	_, err = rt.ProcessQuery(context.Background(), "is the sky blue because of scattering", Options{
		Params: model.GenerationParams{Temperature: 0.9},
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.9, eng.LastParams().Temperature, 1e-9, "ungrounded queries are not clamped")
}

func TestProcessQuery_BusyRejects(t *testing.T) {
	eng := enginetest.New("first ", "answer")
	eng.Block = true
	eng.Started = make(chan struct{})
	rt := newRuntime(eng)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = rt.ProcessQuery(context.Background(), "hello there", Options{})
	}()
	<-eng.Started
	assert.Equal(t, StateGenerating, rt.State())

	_, err := rt.ProcessQuery(context.Background(), "second", Options{})
	assert.True(t, errors.Is(err, ErrBusy))

	rt.Stop()
	wg.Wait()
	assert.Equal(t, 1, eng.Calls())
}

func TestProcessQuery_BusyQueueHonoursContext(t *testing.T) {
	eng := enginetest.New("first ", "answer")
	eng.Block = true
	eng.Started = make(chan struct{})
	cfg := DefaultConfig()
	cfg.Busy = BusyQueue
	rt := New(eng, staticPacks{}, nil, cfg, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = rt.ProcessQuery(context.Background(), "hello there", Options{})
	}()
	<-eng.Started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := rt.ProcessQuery(ctx, "queued", Options{})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	rt.Stop()
	<-done
}

func TestProcessQuery_StopReturnsPartial(t *testing.T) {
	eng := enginetest.New("Roots absorb ", "water.")
	eng.Block = true
	eng.Started = make(chan struct{})
	rt := newRuntime(eng, sciencePack())

	type out struct {
		res *model.QueryResult
		err error
	}
	ch := make(chan out, 1)
	go func() {
		res, err := rt.ProcessQuery(context.Background(), "what do plant roots do", Options{})
		ch <- out{res, err}
	}()
	<-eng.Started
	rt.Stop()

	got := <-ch
	require.NoError(t, got.err)
	assert.True(t, got.res.Stopped)
	assert.Equal(t, "Roots absorb", got.res.Response)
	assert.Equal(t, "science-6", got.res.PackID)
}

// gateEngine holds Generate at entry, before the wrapped engine can register a
// stop, until release is closed or ctx ends.
type gateEngine struct {
	*enginetest.Engine
	entered   chan struct{}
	release   chan struct{}
	honourCtx bool
}

func (g *gateEngine) Generate(ctx context.Context, p string, params model.GenerationParams, onToken engine.TokenFunc) (string, error) {
	close(g.entered)
	if g.honourCtx {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-g.release:
		}
	} else {
		<-g.release
	}
	return g.Engine.Generate(ctx, p, params, onToken)
}

func TestProcessQuery_StopBeforeEngineRegistersIsHonoured(t *testing.T) {
	gate := &gateEngine{
		Engine:  enginetest.New("full answer ", "after stop"),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	rt := New(gate, staticPacks{}, nil, DefaultConfig(), nil)

	ch := make(chan *model.QueryResult, 1)
	go func() {
		res, _ := rt.ProcessQuery(context.Background(), "hello there", Options{})
		ch <- res
	}()
	<-gate.entered
	require.Equal(t, StateGenerating, rt.State())
	rt.Stop()
	close(gate.release)

	res := <-ch
	assert.True(t, res.Stopped)
}

func TestProcessQuery_StopCancelsEngineContext(t *testing.T) {
	gate := &gateEngine{
		Engine:    enginetest.New("never"),
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
		honourCtx: true,
	}
	rt := New(gate, staticPacks{}, nil, DefaultConfig(), nil)

	ch := make(chan *model.QueryResult, 1)
	go func() {
		res, _ := rt.ProcessQuery(context.Background(), "hello there", Options{})
		ch <- res
	}()
	<-gate.entered
	rt.Stop()

	select {
	case res := <-ch:
		assert.True(t, res.Stopped)
		assert.Equal(t, StoppedNotice, res.Response)
		assert.Equal(t, 0, gate.Calls())
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not reach the engine call")
	}
}

func TestStopWhenIdleIsNoop(t *testing.T) {
	eng := enginetest.New("ok")
	rt := newRuntime(eng)
	rt.Stop()

	res, err := rt.ProcessQuery(context.Background(), "hello", Options{})
	require.NoError(t, err)
	assert.False(t, res.Stopped)
	assert.Equal(t, "ok", res.Response)
}

func TestStream(t *testing.T) {
	eng := enginetest.New("Plants ", "make ", "food.")
	rt := newRuntime(eng, sciencePack())

	var viaCallback []string
	s := rt.Stream(context.Background(), "what is photosynthesis", Options{
		OnToken: func(tok string) { viaCallback = append(viaCallback, tok) },
	})

	var tokens []string
	var terminal []Event
	for ev := range s.Events() {
		switch ev.Kind {
		case EventToken:
			tokens = append(tokens, ev.Token)
		default:
			terminal = append(terminal, ev)
		}
	}
	assert.Equal(t, "Plants make food.", strings.Join(tokens, ""))
	assert.Equal(t, []string{"Plants ", "make ", "food."}, viaCallback)
	require.Len(t, terminal, 1)
	assert.Equal(t, EventDone, terminal[0].Kind)
	assert.Equal(t, "Plants make food.", terminal[0].Result.Response)
}

func TestStream_RejectedAnswerNeverStreamsBannedText(t *testing.T) {
	eng := enginetest.New("Some people use ", "dru", "gs when ", "they are sad.")
	rt := newRuntime(eng)

	var streamed strings.Builder
	var done Event
	for ev := range rt.Stream(context.Background(), "hello", Options{}).Events() {
		if ev.Kind == EventToken {
			streamed.WriteString(ev.Token)
			continue
		}
		done = ev
	}
	assert.NotContains(t, streamed.String(), "dru")
	assert.NotContains(t, streamed.String(), "sad")
	require.Equal(t, EventDone, done.Kind)
	assert.Equal(t, validate.HardRefusal, done.Result.Response)
	assert.True(t, done.Result.Refused)
}

func TestStream_SlowReaderDoesNotBlockGeneration(t *testing.T) {
	tokens := make([]string, 500)
	for i := range tokens {
		tokens[i] = "t"
	}
	eng := enginetest.New(tokens...)
	rt := newRuntime(eng)

	s := rt.Stream(context.Background(), "hello", Options{})
	require.Eventually(t, func() bool { return rt.State() == StateIdle && eng.Calls() == 1 }, time.Second, 5*time.Millisecond)

	ev := s.Wait()
	assert.Equal(t, EventDone, ev.Kind)
	assert.Len(t, ev.Result.Response, 500)
}

func TestStream_AdmissionErrorIsTerminal(t *testing.T) {
	eng := enginetest.New("a", "b")
	eng.Block = true
	eng.Started = make(chan struct{})
	rt := newRuntime(eng)

	first := rt.Stream(context.Background(), "hello", Options{})
	<-eng.Started

	ev := rt.Stream(context.Background(), "again", Options{}).Wait()
	assert.Equal(t, EventError, ev.Kind)
	assert.True(t, errors.Is(ev.Err, ErrBusy))

	rt.Stop()
	last := first.Wait()
	assert.Equal(t, EventDone, last.Kind)
	assert.True(t, last.Result.Stopped)
}

func TestStream_Close(t *testing.T) {
	eng := enginetest.New("a", "b", "c")
	rt := newRuntime(eng)
	s := rt.Stream(context.Background(), "hello", Options{})
	s.Close()
	s.Close()
	for range s.Events() {
	}
}

func TestMergeParams(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, model.GenerationParams{Temperature: 0.1, TopP: 0.9, TopK: 40, MaxTokens: 100}, cfg.MergeParams(false, false, model.GenerationParams{}))
	assert.Equal(t, 256, cfg.MergeParams(true, false, model.GenerationParams{}).MaxTokens)
	assert.Equal(t, 64, cfg.MergeParams(true, true, model.GenerationParams{MaxTokens: 64}).MaxTokens)
}
