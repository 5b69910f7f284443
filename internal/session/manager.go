package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"irisd/internal/llm"
	"irisd/pkg/types"
)

const (
	defaultContextSize = 2048
	defaultThreads     = 4
)

// ModelManager owns one loaded model and its inference context. All decode
// traffic against the context, whether from generation sessions or from
// embedding requests, is serialized through decodeMu; the llama.cpp context is
// not safe for concurrent decodes.
type ModelManager struct {
	id       string
	path     string
	ctxSize  int
	threads  int
	seed     int64
	loadedAt time.Time
	log      zerolog.Logger

	model llm.Model
	ctx   llm.Context

	// decodeMu serializes every operation that touches the native context.
	decodeMu sync.Mutex

	mu       sync.Mutex
	unloaded bool
}

// loadModel loads the weights at path and binds one inference context to
// them. On context failure the weights are released before returning, so a
// failed load never leaks model memory.
func loadModel(rt llm.Runtime, path string, ctxSize int, threads int, seed int64, log zerolog.Logger) (*ModelManager, error) {
	if ctxSize <= 0 {
		ctxSize = defaultContextSize
	}
	if threads <= 0 {
		threads = defaultThreads
	}
	if seed == -1 {
		seed = time.Now().Unix()
	}

	model, err := rt.LoadModel(path, llm.ModelParams{})
	if err != nil {
		return nil, loadFailureError{path: path, err: err}
	}

	id := newModelID()
	ctx, err := model.NewContext(llm.ContextParams{
		ContextSize: ctxSize,
		Threads:     threads,
		Embeddings:  true,
	})
	if err != nil {
		model.Free()
		return nil, contextFailureError{id: id, err: err}
	}

	mlog := log.With().Str("model_id", id).Logger()
	mlog.Info().
		Str("path", path).
		Int("context_size", ctxSize).
		Int("threads", threads).
		Int64("seed", seed).
		Msg("model loaded")

	return &ModelManager{
		id:       id,
		path:     path,
		ctxSize:  ctxSize,
		threads:  threads,
		seed:     seed,
		loadedAt: time.Now(),
		log:      mlog,
		model:    model,
		ctx:      ctx,
	}, nil
}

// ID returns the process-unique model identifier.
func (m *ModelManager) ID() string { return m.id }

// Path returns the file the weights were loaded from.
func (m *ModelManager) Path() string { return m.path }

// Seed returns the effective load-time seed after defaulting.
func (m *ModelManager) Seed() int64 { return m.seed }

// ContextSize returns the configured context window.
func (m *ModelManager) ContextSize() int { return m.ctxSize }

// Unload releases the context and then the weights. Safe to call more than
// once; later calls are no-ops. In-flight decodes finish first.
func (m *ModelManager) Unload() {
	m.decodeMu.Lock()
	defer m.decodeMu.Unlock()

	m.mu.Lock()
	if m.unloaded {
		m.mu.Unlock()
		return
	}
	m.unloaded = true
	m.mu.Unlock()

	// Context first: it references the model's weights.
	m.ctx.Free()
	m.model.Free()
	m.log.Info().Msg("model unloaded")
}

func (m *ModelManager) isUnloaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unloaded
}

// Embed computes a pooled embedding for text. The shared context is cleared,
// primed with the tokenized input in a single decode, and read back. Running
// sessions on the same model are untouched logically but must not interleave
// with the decode, hence the shared lock.
func (m *ModelManager) Embed(text string) ([]float32, error) {
	m.decodeMu.Lock()
	defer m.decodeMu.Unlock()

	if m.isUnloaded() {
		return nil, notLoadedError{op: "embed"}
	}

	tokens, err := m.model.Tokenize(text, true)
	if err != nil {
		return nil, decodeFailureError{n: 0, err: err}
	}
	m.ctx.Clear()
	if err := m.ctx.Decode(tokens); err != nil {
		return nil, decodeFailureError{n: len(tokens), err: err}
	}
	emb, err := m.ctx.Embeddings()
	if err != nil {
		return nil, decodeFailureError{n: len(tokens), err: err}
	}
	out := make([]float32, len(emb))
	copy(out, emb)
	return out, nil
}

// describe snapshots the manager for status reporting. sessions is supplied
// by the registry, which tracks the binding.
func (m *ModelManager) describe(sessions int) types.LoadedModel {
	return types.LoadedModel{
		ModelID:     m.id,
		Path:        m.path,
		ContextSize: m.ctxSize,
		Threads:     m.threads,
		VocabSize:   m.model.NumVocab(),
		EmbedDim:    m.model.NumEmbd(),
		Sessions:    sessions,
		LoadedAt:    m.loadedAt.Unix(),
	}
}
