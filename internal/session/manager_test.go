package session

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"irisd/internal/llm/llmtest"
)

func testLogger() zerolog.Logger { return zerolog.Nop() }

func TestLoadModelDefaults(t *testing.T) {
	rt := llmtest.NewRuntime("hi")
	mgr, err := loadModel(rt, "/models/a.gguf", 0, 0, -1, testLogger())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	defer mgr.Unload()

	info := mgr.describe(0)
	if info.ContextSize != defaultContextSize {
		t.Fatalf("context size %d, want default %d", info.ContextSize, defaultContextSize)
	}
	if info.Threads != defaultThreads {
		t.Fatalf("threads %d, want default %d", info.Threads, defaultThreads)
	}
	if mgr.Seed() <= 0 {
		t.Fatalf("seed %d not derived from clock", mgr.Seed())
	}
	if info.Path != "/models/a.gguf" {
		t.Fatalf("path %q", info.Path)
	}
	if info.ModelID == "" {
		t.Fatal("empty model id")
	}
}

func TestLoadModelWeightsFailure(t *testing.T) {
	rt := llmtest.NewRuntime()
	rt.LoadErr = errors.New("bad magic")
	_, err := loadModel(rt, "/models/bad.gguf", 512, 4, 1, testLogger())
	if !IsLoadFailure(err) {
		t.Fatalf("expected load failure, got %v", err)
	}
}

func TestLoadModelContextFailureFreesWeights(t *testing.T) {
	rt := llmtest.NewRuntime()
	rt.CtxErr = errors.New("out of memory")
	_, err := loadModel(rt, "/models/a.gguf", 512, 4, 1, testLogger())
	if !IsContextFailure(err) {
		t.Fatalf("expected context failure, got %v", err)
	}
	var freed bool
	for _, c := range rt.Calls() {
		if c == "model.free /models/a.gguf" {
			freed = true
		}
	}
	if !freed {
		t.Fatalf("weights not released after context failure: %v", rt.Calls())
	}
}

func TestUnloadIdempotentAndOrdered(t *testing.T) {
	rt := llmtest.NewRuntime()
	mgr, err := loadModel(rt, "/models/a.gguf", 512, 4, 1, testLogger())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	mgr.Unload()
	mgr.Unload()

	var ctxFree, modelFree = -1, -1
	for i, c := range rt.Calls() {
		switch c {
		case "context.free":
			if ctxFree >= 0 {
				t.Fatalf("context freed twice: %v", rt.Calls())
			}
			ctxFree = i
		case "model.free /models/a.gguf":
			if modelFree >= 0 {
				t.Fatalf("model freed twice: %v", rt.Calls())
			}
			modelFree = i
		}
	}
	if ctxFree < 0 || modelFree < 0 || ctxFree > modelFree {
		t.Fatalf("expected context freed before model: %v", rt.Calls())
	}
}

func TestEmbed(t *testing.T) {
	rt := llmtest.NewRuntime()
	rt.Dim = 4
	mgr, err := loadModel(rt, "/models/a.gguf", 512, 4, 1, testLogger())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	defer mgr.Unload()

	emb, err := mgr.Embed("graph database")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(emb) != 4 {
		t.Fatalf("embedding length %d, want 4", len(emb))
	}
}

func TestEmbedAfterUnload(t *testing.T) {
	rt := llmtest.NewRuntime()
	mgr, err := loadModel(rt, "/models/a.gguf", 512, 4, 1, testLogger())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	mgr.Unload()
	if _, err := mgr.Embed("text"); !IsNotLoaded(err) {
		t.Fatalf("expected not-loaded error, got %v", err)
	}
}

func TestEmbedEmptyInput(t *testing.T) {
	rt := llmtest.NewRuntime()
	mgr, err := loadModel(rt, "/models/a.gguf", 512, 4, 1, testLogger())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	defer mgr.Unload()
	if _, err := mgr.Embed(""); !IsDecodeFailure(err) {
		t.Fatalf("expected decode failure for empty input, got %v", err)
	}
}
