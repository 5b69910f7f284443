package session

import (
	"sync"
	"testing"

	"irisd/internal/llm/llmtest"
	"irisd/pkg/types"
)

func newTestRegistry(t *testing.T, rt *llmtest.Runtime) *Registry {
	t.Helper()
	r, err := New(Config{Runtime: rt, Logger: testLogger(), DefaultContextSize: 64})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	t.Cleanup(r.Shutdown)
	return r
}

func drain(r *Registry, sid int64) []string {
	var out []string
	for {
		piece, ok := r.NextToken(sid)
		if !ok {
			return out
		}
		out = append(out, piece)
	}
}

func TestRegistryFullSessionFlow(t *testing.T) {
	rt := llmtest.NewRuntime("hello", "from", "iris")
	r := newTestRegistry(t, rt)

	id, err := r.LoadModel("/models/a.gguf", 0, 1, 0)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	sid, err := r.StartSession(id, "say hi", types.GenerateParams{Greedy: true})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	got := drain(r, sid)
	if len(got) != 3 || got[0] != "hello" || got[2] != "iris" {
		t.Fatalf("unexpected stream: %v", got)
	}
	// Terminating call removed the session; the id now reads as unknown.
	if piece, ok := r.NextToken(sid); ok || piece != "" {
		t.Fatalf("removed session answered: (%q, %v)", piece, ok)
	}
	st := r.Status()
	if len(st.Sessions) != 0 {
		t.Fatalf("sessions left in status: %+v", st.Sessions)
	}
	if st.SessionsTotal != 1 || st.LoadsTotal != 1 {
		t.Fatalf("counters: %+v", st)
	}
}

func TestRegistryUnknownIDs(t *testing.T) {
	rt := llmtest.NewRuntime("x")
	r := newTestRegistry(t, rt)

	if _, err := r.StartSession("model_nope", "hi", types.GenerateParams{}); !IsModelNotFound(err) {
		t.Fatalf("start on unknown model: %v", err)
	}
	if _, err := r.Embed("model_nope", "hi"); !IsModelNotFound(err) {
		t.Fatalf("embed on unknown model: %v", err)
	}
	if err := r.UnloadModel("model_nope"); !IsModelNotFound(err) {
		t.Fatalf("unload of unknown model: %v", err)
	}
	if piece, ok := r.NextToken(999); ok || piece != "" {
		t.Fatalf("unknown session answered: (%q, %v)", piece, ok)
	}
	r.CancelSession(999)
}

func TestRegistrySessionIDsUniqueAndIncreasing(t *testing.T) {
	rt := llmtest.NewRuntime("a", "b", "c", "d")
	r := newTestRegistry(t, rt)
	id, err := r.LoadModel("/models/a.gguf", 0, 1, 0)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	var prev int64
	for i := 0; i < 5; i++ {
		sid, err := r.StartSession(id, "hi", types.GenerateParams{Greedy: true})
		if err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
		if sid <= prev {
			t.Fatalf("session id %d not increasing past %d", sid, prev)
		}
		prev = sid
		r.CancelSession(sid)
	}
}

func TestRegistryDefaultTokenBudgetCapsSessions(t *testing.T) {
	rt := llmtest.NewRuntime("a", "b", "c", "d", "e")
	r, err := New(Config{Runtime: rt, Logger: testLogger(), DefaultContextSize: 64, DefaultMaxTokens: 4})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	defer r.Shutdown()

	id, _ := r.LoadModel("/models/a.gguf", 0, 1, 0)
	// Prompt primes 3 tokens (bos + 2 words); the configured budget of 4
	// leaves room for exactly one generated token.
	sid, err := r.StartSession(id, "hello world", types.GenerateParams{Greedy: true})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := drain(r, sid); len(got) != 1 || got[0] != "a" {
		t.Fatalf("expected exactly [a] under configured budget, got %v", got)
	}

	// An explicit request budget still wins over the configured default.
	sid, err = r.StartSession(id, "hello world", types.GenerateParams{Greedy: true, MaxTokens: 5})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := drain(r, sid); len(got) != 2 {
		t.Fatalf("expected 2 tokens under request budget, got %v", got)
	}
}

func TestRegistryCancelRemovesSession(t *testing.T) {
	rt := llmtest.NewRuntime("a", "b", "c")
	pub := NewMemoryPublisher()
	r, err := New(Config{Runtime: rt, Logger: testLogger(), Publisher: pub, DefaultContextSize: 64})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	defer r.Shutdown()

	id, _ := r.LoadModel("/models/a.gguf", 0, 1, 0)
	sid, err := r.StartSession(id, "hi", types.GenerateParams{Greedy: true})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, ok := r.NextToken(sid); !ok {
		t.Fatal("expected a live stream before cancel")
	}
	r.CancelSession(sid)
	if piece, ok := r.NextToken(sid); ok || piece != "" {
		t.Fatalf("cancelled session answered: (%q, %v)", piece, ok)
	}

	var cancelled bool
	for _, e := range pub.Events() {
		if e.Name == EventSessionCancelled && e.SessionID == sid {
			cancelled = true
		}
	}
	if !cancelled {
		t.Fatalf("no cancellation event: %+v", pub.Events())
	}
}

func TestRegistryUnloadEvictsSessions(t *testing.T) {
	rt := llmtest.NewRuntime("a", "b", "c")
	pub := NewMemoryPublisher()
	r, err := New(Config{Runtime: rt, Logger: testLogger(), Publisher: pub, DefaultContextSize: 64})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	defer r.Shutdown()

	id, _ := r.LoadModel("/models/a.gguf", 0, 1, 0)
	sid, err := r.StartSession(id, "hi", types.GenerateParams{Greedy: true})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.UnloadModel(id); err != nil {
		t.Fatalf("unload: %v", err)
	}
	if piece, ok := r.NextToken(sid); ok || piece != "" {
		t.Fatalf("session survived unload: (%q, %v)", piece, ok)
	}
	if _, err := r.Embed(id, "text"); !IsModelNotFound(err) {
		t.Fatalf("embed after unload: %v", err)
	}

	// The session must be cancelled before the model event fires.
	var cancelAt, unloadAt = -1, -1
	for i, e := range pub.Events() {
		switch e.Name {
		case EventSessionCancelled:
			cancelAt = i
		case EventModelUnloaded:
			unloadAt = i
		}
	}
	if cancelAt < 0 || unloadAt < 0 || cancelAt > unloadAt {
		t.Fatalf("expected cancellation before unload: %+v", pub.Events())
	}
}

func TestRegistryEmbedSharesModel(t *testing.T) {
	rt := llmtest.NewRuntime("a", "b")
	rt.Dim = 6
	r := newTestRegistry(t, rt)
	id, _ := r.LoadModel("/models/a.gguf", 0, 1, 0)

	emb, err := r.Embed(id, "graph database")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(emb) != 6 {
		t.Fatalf("embedding length %d, want 6", len(emb))
	}
}

func TestRegistryShutdownOrderAndIdempotence(t *testing.T) {
	rt := llmtest.NewRuntime("a", "b")
	r, err := New(Config{Runtime: rt, Logger: testLogger(), DefaultContextSize: 64})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	id, _ := r.LoadModel("/models/a.gguf", 0, 1, 0)
	if _, err := r.StartSession(id, "hi", types.GenerateParams{Greedy: true}); err != nil {
		t.Fatalf("start: %v", err)
	}

	r.Shutdown()
	r.Shutdown()

	var ctxFree, modelFree, rtFree = -1, -1, -1
	for i, c := range rt.Calls() {
		switch c {
		case "context.free":
			ctxFree = i
		case "model.free /models/a.gguf":
			modelFree = i
		case "runtime.free":
			if rtFree >= 0 {
				t.Fatalf("runtime freed twice: %v", rt.Calls())
			}
			rtFree = i
		}
	}
	if ctxFree < 0 || modelFree < 0 || rtFree < 0 {
		t.Fatalf("missing teardown calls: %v", rt.Calls())
	}
	if !(ctxFree < modelFree && modelFree < rtFree) {
		t.Fatalf("teardown out of order: %v", rt.Calls())
	}

	if _, err := r.LoadModel("/models/b.gguf", 0, 1, 0); !IsRegistryClosed(err) {
		t.Fatalf("load after shutdown: %v", err)
	}
	if _, err := r.StartSession(id, "hi", types.GenerateParams{}); !IsRegistryClosed(err) {
		t.Fatalf("start after shutdown: %v", err)
	}
	if r.Ready() {
		t.Fatal("registry still ready after shutdown")
	}
}

func TestRegistryStatusSnapshot(t *testing.T) {
	rt := llmtest.NewRuntime("a", "b", "c", "d", "e", "f")
	r := newTestRegistry(t, rt)
	id, _ := r.LoadModel("/models/a.gguf", 32, 1, 2)
	sid, err := r.StartSession(id, "hi", types.GenerateParams{Greedy: true, MaxTokens: 20})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	st := r.Status()
	if len(st.Models) != 1 {
		t.Fatalf("models: %+v", st.Models)
	}
	m := st.Models[0]
	if m.ModelID != id || m.ContextSize != 32 || m.Threads != 2 || m.Sessions != 1 {
		t.Fatalf("model status: %+v", m)
	}
	if len(st.Sessions) != 1 || st.Sessions[0].SessionID != sid {
		t.Fatalf("session status: %+v", st.Sessions)
	}
	if st.ServerTimeUnix == 0 {
		t.Fatal("missing server time")
	}
}

func TestRegistryConcurrentSessionsSerializeDecodes(t *testing.T) {
	rt := llmtest.NewRuntime("a", "b", "c", "d", "e", "f", "g", "h")
	r := newTestRegistry(t, rt)
	id, _ := r.LoadModel("/models/a.gguf", 0, 1, 0)

	const sessions = 4
	sids := make([]int64, sessions)
	for i := range sids {
		sid, err := r.StartSession(id, "hi", types.GenerateParams{Greedy: true, MaxTokens: 8})
		if err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
		sids[i] = sid
	}

	var wg sync.WaitGroup
	for _, sid := range sids {
		wg.Add(1)
		go func(sid int64) {
			defer wg.Done()
			drain(r, sid)
		}(sid)
	}
	wg.Wait()

	if rt.RaceDetected() {
		t.Fatal("overlapping decodes observed on one context")
	}
}
