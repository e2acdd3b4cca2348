package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexlab/cortex/internal/engine/enginetest"
	"github.com/cortexlab/cortex/internal/model"
	"github.com/cortexlab/cortex/internal/runtime"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fakePacks struct {
	packs  []model.KnowledgePack
	forced int
}

func (f *fakePacks) Discover(_ context.Context, force bool) ([]model.KnowledgePack, error) {
	if force {
		f.forced++
	}
	return f.packs, nil
}

func sciencePack() model.KnowledgePack {
	return model.KnowledgePack{
		ID:             "science-6",
		Grade:          "6",
		Subject:        "science",
		Strict:         true,
		Keywords:       []string{"photosynthesis", "leaf"},
		FullContent:    "# Science\n\n## Photosynthesis\nLeaves make food.",
		CompactContent: "Plants and food.",
	}
}

func newTestServer(t *testing.T, eng *enginetest.Engine) (*Server, *fakePacks) {
	t.Helper()
	packs := &fakePacks{packs: []model.KnowledgePack{sciencePack()}}
	rt := runtime.New(eng, packs, nil, runtime.DefaultConfig(), nil)
	return New(Config{Runtime: rt, Packs: packs, Engine: eng, Model: "llama3.2:3b"}), packs
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	s, _ := newTestServer(t, enginetest.New())
	w := do(t, s, http.MethodGet, "/healthcheck", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestRequestIDIsEchoed(t *testing.T) {
	s, _ := newTestServer(t, enginetest.New())
	req := httptest.NewRequest(http.MethodGet, "/healthcheck", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(requestIDHeader))
}

func TestPacks(t *testing.T) {
	s, packs := newTestServer(t, enginetest.New())

	w := do(t, s, http.MethodGet, "/v1/packs", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Packs []map[string]any `json:"packs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Packs, 1)
	assert.Equal(t, "science-6", body.Packs[0]["id"])
	assert.NotContains(t, w.Body.String(), "Leaves make food", "pack content stays private")
	assert.Equal(t, 0, packs.forced)

	w = do(t, s, http.MethodPost, "/v1/packs/refresh", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, packs.forced)
}

func TestTools(t *testing.T) {
	s, _ := newTestServer(t, enginetest.New())
	w := do(t, s, http.MethodGet, "/v1/tools?class=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"explain"`)
	assert.Contains(t, w.Body.String(), `"id":"translate"`)
	assert.NotContains(t, w.Body.String(), `"id":"homework"`)

	w = do(t, s, http.MethodGet, "/v1/tools", "")
	assert.Contains(t, w.Body.String(), `"tools":[]`)
}

func TestQuery(t *testing.T) {
	eng := enginetest.New("Leaves ", "make food.")
	s, _ := newTestServer(t, eng)

	w := do(t, s, http.MethodPost, "/v1/query", `{"input":"what does a leaf do","class":"6","subject":"science"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res model.QueryResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "Leaves make food.", res.Response)
	assert.Equal(t, "science-6", res.PackID)
	assert.Equal(t, "llama3", res.Family)
	assert.Contains(t, eng.LastPrompt(), "Plants and food.")
}

func TestQuery_BadRequests(t *testing.T) {
	s, _ := newTestServer(t, enginetest.New())

	tests := map[string]string{
		"not json":    `{`,
		"empty input": `{"input":""}`,
		"bad role":    `{"input":"hi","history":[{"role":"system","content":"x"}]}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			w := do(t, s, http.MethodPost, "/v1/query", body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			var env ErrorEnvelope
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
			assert.Equal(t, "bad_request", env.Error.Code)
			assert.NotEmpty(t, env.Error.Message)
		})
	}
}

func TestQuery_BusyIs429(t *testing.T) {
	eng := enginetest.New("a", "b")
	eng.Block = true
	eng.Started = make(chan struct{})
	s, _ := newTestServer(t, eng)

	done := make(chan *httptest.ResponseRecorder)
	go func() { done <- do(t, s, http.MethodPost, "/v1/query", `{"input":"hello there friend"}`) }()

	select {
	case <-eng.Started:
	case <-time.After(2 * time.Second):
		t.Fatal("generation did not start")
	}

	w := do(t, s, http.MethodPost, "/v1/query", `{"input":"second"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"busy"`)

	w = do(t, s, http.MethodPost, "/v1/stop", "")
	assert.Equal(t, http.StatusOK, w.Code)

	first := <-done
	require.Equal(t, http.StatusOK, first.Code)
	var res model.QueryResult
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &res))
	assert.True(t, res.Stopped)
	assert.Equal(t, "a", res.Response)
}

type sseEvent struct {
	name string
	data string
}

func readEvents(t *testing.T, resp *http.Response) []sseEvent {
	t.Helper()
	var events []sseEvent
	var cur sseEvent
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			cur.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			cur.data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		case line == "" && cur.name != "":
			events = append(events, cur)
			cur = sseEvent{}
		}
	}
	return events
}

func TestQuery_Stream(t *testing.T) {
	eng := enginetest.New("Leaves ", "make ", "food.")
	s, _ := newTestServer(t, eng)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/query?stream=1", "application/json",
		strings.NewReader(`{"input":"what does a leaf do","class":"6"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	events := readEvents(t, resp)
	require.GreaterOrEqual(t, len(events), 2)
	last := events[len(events)-1]
	var streamed strings.Builder
	for _, ev := range events[:len(events)-1] {
		require.Equal(t, "token", ev.name)
		var payload struct {
			Token string `json:"token"`
		}
		require.NoError(t, json.Unmarshal([]byte(ev.data), &payload))
		streamed.WriteString(payload.Token)
	}
	assert.Equal(t, "Leaves make food.", streamed.String())

	require.Equal(t, "done", last.name)
	var res model.QueryResult
	require.NoError(t, json.Unmarshal([]byte(last.data), &res))
	assert.Equal(t, "Leaves make food.", res.Response)
	assert.Equal(t, "science-6", res.PackID)
}

func TestQuery_StreamRefusalHasNoTokens(t *testing.T) {
	eng := enginetest.New("never")
	s, _ := newTestServer(t, eng)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/query?stream=1", "application/json",
		strings.NewReader(`{"input":"who won the cricket match yesterday","class":"6","tool":"explain"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	events := readEvents(t, resp)
	require.Len(t, events, 1)
	assert.Equal(t, "done", events[0].name)
	assert.Contains(t, events[0].data, "not part of your current Class 6 Science syllabus")
	assert.Equal(t, 0, eng.Calls())
}

func TestModelLoadUnload(t *testing.T) {
	eng := enginetest.New()
	s, _ := newTestServer(t, eng)

	w := do(t, s, http.MethodPost, "/v1/model/load", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"model":"llama3.2:3b","loaded":true}`, w.Body.String())
	assert.Equal(t, "llama3.2:3b", eng.Loaded())

	w = do(t, s, http.MethodPost, "/v1/model/load", `{"model":"qwen2.5:1.5b"}`)
	assert.JSONEq(t, `{"model":"qwen2.5:1.5b","loaded":true}`, w.Body.String())

	eng.Loadable = false
	w = do(t, s, http.MethodPost, "/v1/model/load", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"model":"qwen2.5:1.5b","loaded":false}`, w.Body.String())

	w = do(t, s, http.MethodPost, "/v1/model/unload", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "", eng.Loaded())
}

func TestModelLoadSwitchesPromptFamily(t *testing.T) {
	eng := enginetest.New("Hi!")
	s, _ := newTestServer(t, eng)

	w := do(t, s, http.MethodPost, "/v1/model/load", `{"model":"qwen2.5:1.5b"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "qwen2.5:1.5b", s.Model())

	w = do(t, s, http.MethodPost, "/v1/query", `{"input":"hello there"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, strings.HasPrefix(eng.LastPrompt(), "<|im_start|>system"), eng.LastPrompt())
	assert.Contains(t, w.Body.String(), `"family":"qwen"`)

	w = do(t, s, http.MethodGet, "/v1/status", "")
	assert.Contains(t, w.Body.String(), `"model":"qwen2.5:1.5b"`)
}

func TestModelLoadFailureKeepsModel(t *testing.T) {
	eng := enginetest.New()
	eng.Loadable = false
	s, _ := newTestServer(t, eng)

	w := do(t, s, http.MethodPost, "/v1/model/load", `{"model":"qwen2.5:1.5b"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "llama3.2:3b", s.Model())
}

func TestStatus(t *testing.T) {
	s, _ := newTestServer(t, enginetest.New())
	w := do(t, s, http.MethodGet, "/v1/status", "")
	assert.JSONEq(t, `{"state":"idle","model":"llama3.2:3b"}`, w.Body.String())
}
