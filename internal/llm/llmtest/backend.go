// Package llmtest provides a deterministic in-memory implementation of the
// llm backend boundary for tests. A Runtime is constructed with a script of
// pieces; every session primed against one of its models replays the script
// token by token and then signals end-of-generation.
package llmtest

import (
	"fmt"
	"sync"
	"sync/atomic"

	"irisd/internal/llm"
)

// Reserved token ids. Word ids start after eogID.
const (
	bosID llm.Token = 0
	unkID llm.Token = 1
	eogID llm.Token = 2
)

// Runtime is a scriptable llm.Runtime. The zero value is not usable; call
// NewRuntime.
type Runtime struct {
	mu    sync.Mutex
	calls []string

	// Script is the piece sequence generated sessions will emit.
	Script []string
	// Dim is the embedding width reported by models (default 8).
	Dim int
	// LoadErr, when set, fails every LoadModel call.
	LoadErr error
	// CtxErr, when set, fails every NewContext call.
	CtxErr error
	// FailDecodeAt fails the Nth Decode call on each context (1-based);
	// zero disables the fault.
	FailDecodeAt int
	// FailPiece makes Piece reject every conversion.
	FailPiece bool

	raced atomic.Bool
}

// NewRuntime builds a runtime whose sessions emit the given pieces in order.
func NewRuntime(script ...string) *Runtime {
	return &Runtime{Script: script, Dim: 8}
}

func (r *Runtime) record(call string) {
	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()
}

// Calls returns the ordered log of lifecycle calls observed so far.
func (r *Runtime) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

// RaceDetected reports whether two Decode calls ever overlapped on one
// context.
func (r *Runtime) RaceDetected() bool { return r.raced.Load() }

func (r *Runtime) Init() error {
	r.record("runtime.init")
	return nil
}

func (r *Runtime) Free() {
	r.record("runtime.free")
}

func (r *Runtime) LoadModel(path string, params llm.ModelParams) (llm.Model, error) {
	if r.LoadErr != nil {
		return nil, r.LoadErr
	}
	r.record("model.load " + path)
	m := &Model{rt: r, path: path, vocab: []string{"<s>", "<unk>", "</s>"}}
	for _, p := range r.Script {
		m.idFor(p)
	}
	return m, nil
}

// Model is the fake loaded-weights handle. Its vocabulary grows as new words
// are tokenized, which keeps prompts and scripts in one id space.
type Model struct {
	rt   *Runtime
	path string

	mu    sync.Mutex
	vocab []string
	freed bool
}

func (m *Model) idFor(piece string) llm.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.vocab {
		if p == piece {
			return llm.Token(i)
		}
	}
	m.vocab = append(m.vocab, piece)
	return llm.Token(len(m.vocab) - 1)
}

func (m *Model) NewContext(params llm.ContextParams) (llm.Context, error) {
	if m.rt.CtxErr != nil {
		return nil, m.rt.CtxErr
	}
	m.rt.record("context.new")
	script := make([]llm.Token, len(m.rt.Script))
	for i, p := range m.rt.Script {
		script[i] = m.idFor(p)
	}
	return &Context{rt: m.rt, model: m, script: script, window: params.ContextSize}, nil
}

// Tokenize splits on single spaces; every distinct word gets a stable id.
func (m *Model) Tokenize(text string, addBOS bool) ([]llm.Token, error) {
	var out []llm.Token
	if addBOS {
		out = append(out, bosID)
	}
	start := -1
	for i := 0; i <= len(text); i++ {
		if i == len(text) || text[i] == ' ' {
			if start >= 0 {
				out = append(out, m.idFor(text[start:i]))
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if len(out) == 0 || (addBOS && len(out) == 1) {
		return nil, fmt.Errorf("tokenize: empty input")
	}
	return out, nil
}

func (m *Model) Piece(tok llm.Token) (string, error) {
	if m.rt.FailPiece {
		return "", fmt.Errorf("piece rejected for token %d", tok)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(tok) < 0 || int(tok) >= len(m.vocab) {
		return "", fmt.Errorf("token %d out of vocabulary", tok)
	}
	return m.vocab[tok], nil
}

func (m *Model) IsEOG(tok llm.Token) bool { return tok == eogID }

func (m *Model) NumVocab() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.vocab)
}

func (m *Model) NumEmbd() int { return m.rt.Dim }

func (m *Model) Free() {
	m.mu.Lock()
	freed := m.freed
	m.freed = true
	m.mu.Unlock()
	if !freed {
		m.rt.record("model.free " + m.path)
	}
}

// Context replays the runtime script: after priming, the logits favor the
// next unplayed script token, and end-of-generation once the script runs out.
type Context struct {
	rt     *Runtime
	model  *Model
	script []llm.Token
	window int

	mu       sync.Mutex
	decodes  int
	emitted  int
	cached   int // tokens currently in the fake KV cache
	inFlight atomic.Int32
}

func (c *Context) Decode(tokens []llm.Token) error {
	if c.inFlight.Add(1) > 1 {
		c.rt.raced.Store(true)
	}
	defer c.inFlight.Add(-1)

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(tokens) == 0 {
		return fmt.Errorf("decode: empty batch")
	}
	c.decodes++
	if c.rt.FailDecodeAt > 0 && c.decodes >= c.rt.FailDecodeAt {
		return fmt.Errorf("decode rejected at call %d", c.decodes)
	}
	if c.window > 0 && c.cached+len(tokens) > c.window {
		return fmt.Errorf("decode: %d tokens exceed context window %d", c.cached+len(tokens), c.window)
	}
	c.cached += len(tokens)
	if len(tokens) == 1 && c.emitted < len(c.script) && tokens[0] == c.script[c.emitted] {
		c.emitted++
	}
	return nil
}

func (c *Context) Logits() []float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]float32, c.model.NumVocab())
	for i := range out {
		out[i] = -100
	}
	if c.emitted < len(c.script) {
		out[c.script[c.emitted]] = 10
	} else {
		out[eogID] = 10
	}
	return out
}

func (c *Context) Embeddings() ([]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cached == 0 {
		return nil, fmt.Errorf("embeddings requested before decode")
	}
	out := make([]float32, c.rt.Dim)
	for i := range out {
		out[i] = float32(c.cached+i) / float32(c.rt.Dim)
	}
	return out, nil
}

func (c *Context) Clear() {
	c.mu.Lock()
	c.cached = 0
	c.emitted = 0
	c.mu.Unlock()
}

func (c *Context) Free() {
	c.rt.record("context.free")
}
