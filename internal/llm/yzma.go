//go:build llama

package llm

import (
	"fmt"
	"sync"

	"github.com/hybridgroup/yzma/pkg/llama"
)

// yzmaRuntime drives llama.cpp through yzma's purego FFI bindings. No CGO is
// required; the shared libraries are loaded at Init from libPath.
type yzmaRuntime struct {
	libPath  string
	initOnce sync.Once
	initErr  error
}

// NewRuntime returns the yzma-backed runtime. libPath is the directory
// holding the llama.cpp shared libraries (e.g. installed via `yzma install`).
func NewRuntime(libPath string) Runtime {
	return &yzmaRuntime{libPath: libPath}
}

func (r *yzmaRuntime) Init() error {
	r.initOnce.Do(func() {
		if err := llama.Load(r.libPath); err != nil {
			r.initErr = fmt.Errorf("load llama libraries from %s: %w", r.libPath, err)
			return
		}
		llama.Init()
	})
	return r.initErr
}

func (r *yzmaRuntime) Free() {
	// yzma keeps the libraries mapped for the process lifetime; per-model and
	// per-context resources are released by Model.Free and Context.Free.
}

func (r *yzmaRuntime) LoadModel(path string, params ModelParams) (Model, error) {
	if err := r.Init(); err != nil {
		return nil, err
	}
	mp := llama.ModelDefaultParams()
	mp.NGpuLayers = int32(params.GPULayers)
	m, err := llama.ModelLoadFromFile(path, mp)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", path, err)
	}
	vocab := llama.ModelGetVocab(m)
	return &yzmaModel{
		model:  m,
		vocab:  vocab,
		nVocab: int(llama.VocabNTokens(vocab)),
		nEmbd:  int(llama.ModelNEmbd(m)),
	}, nil
}

type yzmaModel struct {
	model  llama.Model
	vocab  llama.Vocab
	nVocab int
	nEmbd  int
}

func (m *yzmaModel) NewContext(params ContextParams) (Context, error) {
	cp := llama.ContextDefaultParams()
	cp.NCtx = uint32(params.ContextSize)
	if params.BatchSize > 0 {
		cp.NBatch = uint32(params.BatchSize)
	} else {
		cp.NBatch = uint32(params.ContextSize)
	}
	if params.Threads > 0 {
		cp.NThreads = int32(params.Threads)
		cp.NThreadsBatch = int32(params.Threads)
	}
	if params.Embeddings {
		cp.Embeddings = 1
	}
	lctx, err := llama.InitFromModel(m.model, cp)
	if err != nil {
		return nil, fmt.Errorf("create context: %w", err)
	}
	return &yzmaContext{model: m, params: cp, ctx: lctx}, nil
}

func (m *yzmaModel) Tokenize(text string, addBOS bool) ([]Token, error) {
	toks := llama.Tokenize(m.vocab, text, addBOS, false)
	if len(toks) == 0 {
		return nil, fmt.Errorf("tokenize: no tokens for %d-byte input", len(text))
	}
	out := make([]Token, len(toks))
	for i, t := range toks {
		out[i] = Token(t)
	}
	return out, nil
}

// pieceBufSize bounds a single detokenized fragment, mirroring the common
// llama.cpp convention of a fixed stack buffer.
const pieceBufSize = 256

func (m *yzmaModel) Piece(tok Token) (string, error) {
	buf := make([]byte, pieceBufSize)
	n := llama.TokenToPiece(m.vocab, llama.Token(tok), buf, 0, false)
	if n < 0 {
		return "", fmt.Errorf("token %d: piece exceeds %d bytes", tok, pieceBufSize)
	}
	return string(buf[:n]), nil
}

func (m *yzmaModel) IsEOG(tok Token) bool {
	return llama.VocabIsEOG(m.vocab, llama.Token(tok))
}

func (m *yzmaModel) NumVocab() int { return m.nVocab }

func (m *yzmaModel) NumEmbd() int { return m.nEmbd }

func (m *yzmaModel) Free() { llama.ModelFree(m.model) }

type yzmaContext struct {
	model  *yzmaModel
	params llama.ContextParams
	ctx    llama.Context
	broken error
}

func (c *yzmaContext) Decode(tokens []Token) error {
	if c.broken != nil {
		return c.broken
	}
	if len(tokens) == 0 {
		return fmt.Errorf("decode: empty batch")
	}
	ltoks := make([]llama.Token, len(tokens))
	for i, t := range tokens {
		ltoks[i] = llama.Token(t)
	}
	// BatchGetOne returns a stack-allocated batch; it must not be freed.
	batch := llama.BatchGetOne(ltoks)
	if _, err := llama.Decode(c.ctx, batch); err != nil {
		return fmt.Errorf("decode %d tokens: %w", len(tokens), err)
	}
	return nil
}

func (c *yzmaContext) Logits() []float32 {
	out, err := llama.GetLogits(c.ctx, int32(c.model.nVocab))
	if err != nil {
		return nil
	}
	return out
}

func (c *yzmaContext) Embeddings() ([]float32, error) {
	emb, err := llama.GetEmbeddings(c.ctx, 1, c.model.nEmbd)
	if err != nil {
		return nil, fmt.Errorf("get embeddings: %w", err)
	}
	if len(emb) != c.model.nEmbd {
		return nil, fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(emb), c.model.nEmbd)
	}
	out := make([]float32, len(emb))
	copy(out, emb)
	return out, nil
}

// Clear resets the KV cache by recreating the native context with the same
// parameters. After a failed recreate c.ctx is stale; it must not be freed
// again on the next attempt.
func (c *yzmaContext) Clear() {
	if c.broken == nil {
		llama.Free(c.ctx)
	}
	lctx, err := llama.InitFromModel(c.model.model, c.params)
	if err != nil {
		c.broken = fmt.Errorf("recreate context: %w", err)
		return
	}
	c.ctx = lctx
	c.broken = nil
}

func (c *yzmaContext) Free() {
	if c.broken == nil {
		llama.Free(c.ctx)
	}
}
