package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"irisd/internal/llm"
	"irisd/internal/sampling"
	"irisd/pkg/types"
)

// defaultMaxTokens bounds a session whose request carries no budget.
const defaultMaxTokens = 512

type engineState int

const (
	stateReady engineState = iota
	stateStreaming
	stateComplete
)

// Engine runs one generation session: it primes the model's context with a
// prompt, then emits one sampled token per Next call until end-of-generation,
// the token budget, cancellation, or a runtime failure.
//
// An Engine borrows its ModelManager's context; it never owns native
// resources, so dropping a completed engine needs no cleanup.
type Engine struct {
	id        int64
	mgr       *ModelManager
	sampler   *sampling.Sampler
	maxTokens int
	startedAt time.Time
	log       zerolog.Logger

	mu      sync.Mutex
	state   engineState
	cursor  int // tokens in the context so far, prompt included
	lastErr error
}

// newEngine binds a session to a loaded model. A zero request seed derives
// the sampler seed from the model's load-time seed, offset by the session id
// so concurrent sessions on one model do not mirror each other.
func newEngine(id int64, mgr *ModelManager, params types.GenerateParams, log zerolog.Logger) *Engine {
	seed := params.Seed
	if seed == 0 {
		seed = mgr.Seed() + id
	}
	maxTokens := params.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Engine{
		id:  id,
		mgr: mgr,
		sampler: sampling.New(sampling.Config{
			Temperature: params.Temperature,
			TopK:        params.TopK,
			TopP:        params.TopP,
			Seed:        seed,
			Greedy:      params.Greedy,
		}),
		maxTokens: maxTokens,
		startedAt: time.Now(),
		log:       log.With().Int64("session_id", id).Str("model_id", mgr.ID()).Logger(),
	}
}

// Start primes the context with the tokenized prompt in one decode. It can
// fail loudly; after a successful Start the stream only ends, never errors.
func (e *Engine) Start(prompt string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mgr == nil || e.state != stateReady {
		return notInitializedError{}
	}

	e.mgr.decodeMu.Lock()
	defer e.mgr.decodeMu.Unlock()
	if e.mgr.isUnloaded() {
		return notLoadedError{op: "start"}
	}

	tokens, err := e.mgr.model.Tokenize(prompt, true)
	if err != nil {
		return decodeFailureError{n: 0, err: err}
	}
	e.mgr.ctx.Clear()
	if err := e.mgr.ctx.Decode(tokens); err != nil {
		return decodeFailureError{n: len(tokens), err: err}
	}
	e.cursor = len(tokens)
	e.state = stateStreaming
	e.log.Debug().Int("prompt_tokens", len(tokens)).Msg("session primed")
	return nil
}

// Next returns the next text fragment. The second result is false exactly
// when the stream is over: completed, cancelled, budget reached,
// end-of-generation, or a mid-stream runtime failure. A mid-stream failure
// ends the stream without surfacing an error; Err reports the cause.
func (e *Engine) Next() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != stateStreaming {
		return "", false
	}
	if e.cursor >= e.maxTokens {
		e.state = stateComplete
		e.log.Debug().Int("tokens", e.cursor).Msg("token budget reached")
		return "", false
	}

	e.mgr.decodeMu.Lock()
	defer e.mgr.decodeMu.Unlock()
	if e.mgr.isUnloaded() {
		e.fail(notLoadedError{op: "next"})
		return "", false
	}

	tok, err := e.sampler.Sample(e.mgr.ctx.Logits())
	if err != nil {
		e.fail(err)
		return "", false
	}
	if e.mgr.model.IsEOG(llm.Token(tok)) {
		e.state = stateComplete
		return "", false
	}
	piece, err := e.mgr.model.Piece(llm.Token(tok))
	if err != nil {
		e.fail(detokenizeFailureError{tok: int32(tok), err: err})
		return "", false
	}
	if err := e.mgr.ctx.Decode([]llm.Token{llm.Token(tok)}); err != nil {
		e.fail(decodeFailureError{n: 1, err: err})
		return "", false
	}
	e.cursor++
	tokensGeneratedTotal.Inc()
	return piece, true
}

// Cancel ends the stream. Idempotent; a later Next observes end-of-stream.
func (e *Engine) Cancel() {
	e.mu.Lock()
	if e.state != stateComplete {
		e.state = stateComplete
		e.log.Debug().Msg("session cancelled")
	}
	e.mu.Unlock()
}

func (e *Engine) fail(err error) {
	e.lastErr = err
	e.state = stateComplete
	decodeFailuresTotal.Inc()
	e.log.Warn().Err(err).Msg("stream ended by failure")
}

// ID returns the session identifier.
func (e *Engine) ID() int64 { return e.id }

// ModelID returns the id of the bound model.
func (e *Engine) ModelID() string { return e.mgr.ID() }

// Err returns the failure that ended the stream early, if any.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

func (e *Engine) status() types.SessionStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return types.SessionStatus{
		SessionID: e.id,
		ModelID:   e.mgr.ID(),
		Tokens:    e.cursor,
		MaxTokens: e.maxTokens,
		StartedAt: e.startedAt.Unix(),
	}
}
