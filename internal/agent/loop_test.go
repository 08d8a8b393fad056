package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/swarmd/internal/broker"
	"github.com/nextlevelbuilder/swarmd/internal/config"
	"github.com/nextlevelbuilder/swarmd/internal/models"
	"github.com/nextlevelbuilder/swarmd/internal/store"
	"github.com/nextlevelbuilder/swarmd/internal/tools"
)

// scriptedModel serves a fixed sequence of completions. A negative status
// step makes that completion fail.
type scriptedModel struct {
	mu    sync.Mutex
	steps []scriptStep
	calls int
}

type scriptStep struct {
	status int // 0 = 200
	text   string
}

func (s *scriptedModel) router(t *testing.T) *models.Router {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	})
	mux.HandleFunc("POST /v1/completions", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		step := scriptStep{text: "(script exhausted)"}
		if s.calls < len(s.steps) {
			step = s.steps[s.calls]
		}
		s.calls++
		s.mu.Unlock()
		if step.status != 0 {
			w.WriteHeader(step.status)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]string{{"text": step.text}},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return models.NewRouter(map[string]config.ModelConfig{
		"test-model": {Provider: config.ProviderOpenAICompatible, BaseURL: srv.URL},
	})
}

// stubTool records its invocations.
type stubTool struct {
	name  string
	out   string
	err   error
	calls int
	args  map[string]any
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub tool for tests" }
func (s *stubTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	s.calls++
	s.args = args
	return s.out, s.err
}

func testRuntime(t *testing.T, script *scriptedModel, reg *tools.Registry, data store.AgentData) *Runtime {
	t.Helper()
	if data.ID == uuid.Nil {
		data.ID = store.GenNewID()
	}
	if data.Name == "" {
		data.Name = "tester"
	}
	data.ModelID = "test-model"
	if reg == nil {
		reg = tools.NewRegistry()
	}
	return newRuntime(&data, Deps{
		Router: script.router(t),
		Tools:  reg,
		Bus:    broker.New(nil),
	}, config.AgentsConfig{MaxIterations: 5})
}

func toolCall(tool string, args string) string {
	return "I should use a tool.\n```json\n{\"tool\": \"" + tool + "\", \"args\": " + args + "}\n```"
}

func TestThinkDirectAnswer(t *testing.T) {
	script := &scriptedModel{steps: []scriptStep{{text: "  The answer is 42.  "}}}
	r := testRuntime(t, script, nil, store.AgentData{})

	got := r.Think(context.Background(), "what is the answer?", 0)
	if got != "The answer is 42." {
		t.Errorf("Think = %q", got)
	}
	if script.calls != 1 {
		t.Errorf("model calls = %d, want 1", script.calls)
	}
}

func TestThinkToolCallThenAnswer(t *testing.T) {
	tool := &stubTool{name: "echo", out: "echoed: hi"}
	reg := tools.NewRegistry()
	reg.Register(tool)

	script := &scriptedModel{steps: []scriptStep{
		{text: toolCall("echo", `{"text": "hi"}`)},
		{text: "Done, the echo worked."},
	}}
	r := testRuntime(t, script, reg, store.AgentData{})

	got := r.Think(context.Background(), "echo hi", 0)
	if got != "Done, the echo worked." {
		t.Errorf("Think = %q", got)
	}
	if tool.calls != 1 {
		t.Fatalf("tool calls = %d, want 1", tool.calls)
	}
	if tool.args["text"] != "hi" {
		t.Errorf("tool args = %v", tool.args)
	}
}

func TestThinkToolErrorIsNotFatal(t *testing.T) {
	tool := &stubTool{name: "flaky", err: errors.New("connection refused")}
	reg := tools.NewRegistry()
	reg.Register(tool)

	script := &scriptedModel{steps: []scriptStep{
		{text: toolCall("flaky", `{}`)},
		{text: "Recovered without the tool."},
	}}
	r := testRuntime(t, script, reg, store.AgentData{})

	got := r.Think(context.Background(), "try the tool", 0)
	if got != "Recovered without the tool." {
		t.Errorf("Think = %q", got)
	}
	if tool.calls != 1 {
		t.Errorf("tool calls = %d", tool.calls)
	}
}

func TestThinkUnknownTool(t *testing.T) {
	script := &scriptedModel{steps: []scriptStep{
		{text: toolCall("nonexistent", `{}`)},
		{text: "Fine, answering directly."},
	}}
	r := testRuntime(t, script, nil, store.AgentData{})

	got := r.Think(context.Background(), "go", 0)
	if got != "Fine, answering directly." {
		t.Errorf("Think = %q", got)
	}
}

func TestThinkDisallowedTool(t *testing.T) {
	tool := &stubTool{name: "secret", out: "never"}
	reg := tools.NewRegistry()
	reg.Register(tool)

	script := &scriptedModel{steps: []scriptStep{
		{text: toolCall("secret", `{}`)},
		{text: "Could not use it."},
	}}
	r := testRuntime(t, script, reg, store.AgentData{AllowedTools: []string{"other"}})

	got := r.Think(context.Background(), "go", 0)
	if got != "Could not use it." {
		t.Errorf("Think = %q", got)
	}
	if tool.calls != 0 {
		t.Errorf("disallowed tool was executed %d times", tool.calls)
	}
}

func TestThinkIterationCap(t *testing.T) {
	tool := &stubTool{name: "loop", out: "again"}
	reg := tools.NewRegistry()
	reg.Register(tool)

	script := &scriptedModel{steps: []scriptStep{
		{text: toolCall("loop", `{}`)},
		{text: toolCall("loop", `{}`)},
		{text: toolCall("loop", `{}`)},
	}}
	r := testRuntime(t, script, reg, store.AgentData{})

	got := r.Think(context.Background(), "loop forever", 2)
	if got != FallbackAnswer {
		t.Errorf("Think = %q, want fallback", got)
	}
	if tool.calls != 2 {
		t.Errorf("tool calls = %d, want 2 (capped)", tool.calls)
	}
}

func TestThinkModelErrorRecorded(t *testing.T) {
	script := &scriptedModel{steps: []scriptStep{
		{status: http.StatusInternalServerError},
		{text: "Second try worked."},
	}}
	r := testRuntime(t, script, nil, store.AgentData{})

	got := r.Think(context.Background(), "go", 0)
	if got != "Second try worked." {
		t.Errorf("Think = %q", got)
	}
	if script.calls != 2 {
		t.Errorf("model calls = %d, want 2", script.calls)
	}
}

func TestThinkCancelled(t *testing.T) {
	script := &scriptedModel{steps: []scriptStep{{text: "never reached"}}}
	r := testRuntime(t, script, nil, store.AgentData{})
	r.signalStop()

	got := r.Think(context.Background(), "go", 0)
	if got != CancelledSentinel {
		t.Errorf("Think = %q, want %q", got, CancelledSentinel)
	}
	if script.calls != 0 {
		t.Errorf("model calls after stop = %d, want 0", script.calls)
	}
}

// memoryRecorder captures AppendMemory calls.
type memoryRecorder struct {
	mu   sync.Mutex
	recs []store.MemoryRecord
}

func (m *memoryRecorder) AppendMemory(ctx context.Context, rec *store.MemoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, *rec)
	return nil
}

func (m *memoryRecorder) ListMemory(ctx context.Context, agentID uuid.UUID, limit int) ([]store.MemoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.MemoryRecord(nil), m.recs...), nil
}

func (m *memoryRecorder) DeleteMemory(ctx context.Context, agentID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = nil
	return nil
}

func TestThinkPersistentMemoryWrites(t *testing.T) {
	tool := &stubTool{name: "echo", out: "ok"}
	reg := tools.NewRegistry()
	reg.Register(tool)
	mem := &memoryRecorder{}

	script := &scriptedModel{steps: []scriptStep{
		{text: toolCall("echo", `{}`)},
		{text: "done"},
	}}
	r := testRuntime(t, script, reg, store.AgentData{MemoryScope: store.MemoryPersistent})
	r.memory = mem

	if got := r.Think(context.Background(), "go", 0); got != "done" {
		t.Fatalf("Think = %q", got)
	}
	if len(mem.recs) != 1 {
		t.Fatalf("memory records = %d, want 1", len(mem.recs))
	}
	if mem.recs[0].MemoryType != "observation" || mem.recs[0].Importance != 0.5 {
		t.Errorf("record = %+v", mem.recs[0])
	}
}

func TestHandleRequestPostsResponse(t *testing.T) {
	script := &scriptedModel{steps: []scriptStep{{text: "here is my reply"}}}
	r := testRuntime(t, script, nil, store.AgentData{})
	r.bus.Register("asker")

	conv := store.GenNewID()
	msg := broker.NewMessage("asker", r.data.ID.String(), store.MsgRequest, "please reply")
	msg.RequiresResponse = true
	msg.ConversationID = &conv

	r.handleRequest(context.Background(), msg)

	got, err := r.bus.Receive(context.Background(), "asker", time.Second)
	if err != nil || got == nil {
		t.Fatalf("Receive = (%v, %v)", got, err)
	}
	if got.Type != store.MsgResponse || got.Content != "here is my reply" {
		t.Errorf("response = %+v", got)
	}
	if got.ConversationID == nil || *got.ConversationID != conv {
		t.Error("conversation ID not preserved")
	}
}

func TestHandleRequestNoResponseWanted(t *testing.T) {
	script := &scriptedModel{steps: []scriptStep{{text: "noted"}}}
	r := testRuntime(t, script, nil, store.AgentData{})
	r.bus.Register("asker")

	msg := broker.NewMessage("asker", r.data.ID.String(), store.MsgRequest, "fyi only")
	r.handleRequest(context.Background(), msg)

	if n := r.bus.QueueSize("asker"); n != 0 {
		t.Errorf("sender queue = %d, want 0", n)
	}
}

func TestSystemPrompt(t *testing.T) {
	got := systemPrompt("Ada", "researcher", map[string]string{
		"b_tool": "second",
		"a_tool": "first",
	})
	if !strings.Contains(got, "You are Ada, an AI agent with the role: researcher.") {
		t.Errorf("missing identity line:\n%s", got)
	}
	aIdx := strings.Index(got, "- a_tool: first")
	bIdx := strings.Index(got, "- b_tool: second")
	if aIdx < 0 || bIdx < 0 || aIdx > bIdx {
		t.Errorf("tools missing or unsorted:\n%s", got)
	}
}

func TestSystemPromptNoTools(t *testing.T) {
	got := systemPrompt("Ada", "thinker", nil)
	if strings.Contains(got, "following tools") {
		t.Errorf("tool section present without tools:\n%s", got)
	}
}

func TestRenderPrompt(t *testing.T) {
	got := renderPrompt("SYSTEM", []string{"first", "second"})
	want := "SYSTEM\n\n--- History ---\nfirst\nsecond\n\nYour Action:"
	if got != want {
		t.Errorf("renderPrompt = %q, want %q", got, want)
	}
}
