// Package llm defines the boundary to the low-level inference backend.
//
// The backend is consumed as an opaque capability: it accepts token id
// sequences and yields vocabulary-sized logit vectors. Everything above this
// boundary (session state, sampling, streaming) lives in internal/session and
// internal/sampling. Two implementations exist: a yzma-backed runtime
// (llama.cpp via purego FFI, build tag `llama`) and a fail-fast stub compiled
// by default so plain builds carry no native dependency.
package llm

import "errors"

// Token is a backend vocabulary token id.
type Token int32

// ErrRuntimeUnavailable is returned by builds without the `llama` tag.
var ErrRuntimeUnavailable = errors.New("llama runtime not built (missing 'llama' build tag)")

// ModelParams configures model loading.
type ModelParams struct {
	// GPULayers is the number of layers to offload; 0 keeps everything on CPU.
	GPULayers int
}

// ContextParams configures decode-context construction.
type ContextParams struct {
	// ContextSize is the context window in tokens.
	ContextSize int
	// BatchSize bounds the largest decode batch; defaults to ContextSize.
	BatchSize int
	// Threads is the CPU thread count for decode.
	Threads int
	// Embeddings enables embedding extraction for this context.
	Embeddings bool
}

// Runtime is the process-wide backend. Init and Free are called once, at
// registry construction and shutdown.
type Runtime interface {
	Init() error
	Free()
	// LoadModel loads weights from path. The returned Model is immutable.
	LoadModel(path string, params ModelParams) (Model, error)
}

// Model is a loaded-weights handle plus its derived vocabulary.
// Implementations must be safe for concurrent read-only use.
type Model interface {
	// NewContext builds a mutable decode context bound to this model.
	NewContext(params ContextParams) (Context, error)
	// Tokenize converts text to token ids. addBOS prepends the
	// beginning-of-sequence marker; special-token expansion stays off.
	Tokenize(text string, addBOS bool) ([]Token, error)
	// Piece converts one token id to its text fragment.
	Piece(tok Token) (string, error)
	// IsEOG reports whether tok is an end-of-generation token.
	IsEOG(tok Token) bool
	NumVocab() int
	NumEmbd() int
	Free()
}

// Context is the mutable decode state for one model: KV cache plus the
// current logits buffer. A Context must never see two concurrent Decode
// calls; internal/session enforces that with a per-model decode lock.
type Context interface {
	// Decode advances the context by the given tokens and refreshes the
	// logits buffer.
	Decode(tokens []Token) error
	// Logits returns the scores for the last decoded position. The slice is
	// only valid until the next Decode and has length NumVocab.
	Logits() []float32
	// Embeddings returns the fixed-width embedding vector for the current
	// context. Only meaningful on contexts created with Embeddings enabled.
	Embeddings() ([]float32, error)
	// Clear resets the KV cache.
	Clear()
	Free()
}
