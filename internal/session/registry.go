package session

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"irisd/internal/llm"
	"irisd/pkg/types"
)

// Config configures a Registry.
type Config struct {
	// Runtime is the inference backend. Required.
	Runtime llm.Runtime
	// Logger for registry and session logging.
	Logger zerolog.Logger
	// Publisher receives lifecycle events; nil drops them.
	Publisher EventPublisher
	// DefaultContextSize applies to load requests that carry none.
	DefaultContextSize int
	// DefaultMaxTokens is the session token budget when the request carries
	// none; zero falls back to the built-in default.
	DefaultMaxTokens int
}

// Registry is the process-wide owner of loaded models and live generation
// sessions. All lookups go through one mutex; the mutex is never held across
// a decode, so a long generation step on one model cannot stall requests
// touching other models.
type Registry struct {
	rt     llm.Runtime
	log    zerolog.Logger
	pub    EventPublisher
	defCtx int
	defMax int

	started    time.Time
	sessionSeq atomic.Int64
	loads      atomic.Uint64
	starts     atomic.Uint64

	mu       sync.Mutex
	models   map[string]*ModelManager
	sessions map[int64]*Engine
	closed   bool
}

// New initializes the runtime and returns an empty registry. Session ids are
// seeded from the wall clock so they do not repeat across restarts.
func New(cfg Config) (*Registry, error) {
	if err := cfg.Runtime.Init(); err != nil {
		return nil, fmt.Errorf("init runtime: %w", err)
	}
	pub := cfg.Publisher
	if pub == nil {
		pub = noopPublisher{}
	}
	r := &Registry{
		rt:       cfg.Runtime,
		log:      cfg.Logger,
		pub:      pub,
		defCtx:   cfg.DefaultContextSize,
		defMax:   cfg.DefaultMaxTokens,
		started:  time.Now(),
		models:   make(map[string]*ModelManager),
		sessions: make(map[int64]*Engine),
	}
	r.sessionSeq.Store(time.Now().UnixMilli())
	return r, nil
}

// LoadModel loads the weights at path and returns the new model id. The slow
// native load runs outside the registry lock.
func (r *Registry) LoadModel(path string, ctxSize int, seed int64, threads int) (string, error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return "", registryClosedError{}
	}
	if ctxSize <= 0 {
		ctxSize = r.defCtx
	}

	mgr, err := loadModel(r.rt, path, ctxSize, threads, seed, r.log)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		mgr.Unload()
		return "", registryClosedError{}
	}
	r.models[mgr.ID()] = mgr
	r.mu.Unlock()

	r.loads.Add(1)
	modelLoadsTotal.Inc()
	modelsLoaded.Inc()
	r.pub.Publish(Event{Name: EventModelLoaded, ModelID: mgr.ID(), Fields: map[string]any{"path": path}})
	return mgr.ID(), nil
}

// StartSession primes a new session against a loaded model and registers it.
// The session becomes visible only after the prompt decode succeeds, so a
// failed prime never leaves a half-registered session behind.
func (r *Registry) StartSession(modelID, prompt string, params types.GenerateParams) (int64, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return 0, registryClosedError{}
	}
	mgr := r.models[modelID]
	r.mu.Unlock()
	if mgr == nil {
		return 0, ErrModelNotFound(modelID)
	}

	if params.MaxTokens <= 0 {
		params.MaxTokens = r.defMax
	}
	id := r.sessionSeq.Add(1)
	eng := newEngine(id, mgr, params, r.log)
	if err := eng.Start(prompt); err != nil {
		return 0, err
	}

	r.mu.Lock()
	// The model may have been unloaded while the prompt was decoding.
	if r.closed || r.models[modelID] != mgr {
		r.mu.Unlock()
		return 0, ErrModelNotFound(modelID)
	}
	r.sessions[id] = eng
	r.mu.Unlock()

	r.starts.Add(1)
	sessionsStartedTotal.Inc()
	sessionsActive.Inc()
	r.pub.Publish(Event{Name: EventSessionStarted, ModelID: modelID, SessionID: id})
	return id, nil
}

// NextToken advances a session by one token. An unknown session id and a
// finished session both read as end-of-stream; the session is removed from
// the registry on its terminating call.
func (r *Registry) NextToken(sessionID int64) (string, bool) {
	r.mu.Lock()
	eng := r.sessions[sessionID]
	r.mu.Unlock()
	if eng == nil {
		return "", false
	}

	piece, ok := eng.Next()
	if ok {
		return piece, true
	}

	r.mu.Lock()
	_, present := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.mu.Unlock()
	if present {
		sessionsActive.Dec()
		fields := map[string]any{}
		if err := eng.Err(); err != nil {
			fields["error"] = err.Error()
		}
		r.pub.Publish(Event{Name: EventSessionCompleted, ModelID: eng.ModelID(), SessionID: sessionID, Fields: fields})
	}
	return "", false
}

// CancelSession ends a session and removes it. Unknown ids are a no-op.
func (r *Registry) CancelSession(sessionID int64) {
	r.mu.Lock()
	eng := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.mu.Unlock()
	if eng == nil {
		return
	}
	eng.Cancel()
	sessionsActive.Dec()
	r.pub.Publish(Event{Name: EventSessionCancelled, ModelID: eng.ModelID(), SessionID: sessionID})
}

// Embed computes an embedding using the named model's context.
func (r *Registry) Embed(modelID, text string) ([]float32, error) {
	r.mu.Lock()
	mgr := r.models[modelID]
	r.mu.Unlock()
	if mgr == nil {
		return nil, ErrModelNotFound(modelID)
	}
	return mgr.Embed(text)
}

// UnloadModel releases a model. Sessions bound to it are cancelled and
// removed before the native resources are freed.
func (r *Registry) UnloadModel(modelID string) error {
	r.mu.Lock()
	mgr := r.models[modelID]
	if mgr == nil {
		r.mu.Unlock()
		return ErrModelNotFound(modelID)
	}
	delete(r.models, modelID)
	var victims []*Engine
	for id, eng := range r.sessions {
		if eng.ModelID() == modelID {
			victims = append(victims, eng)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, eng := range victims {
		eng.Cancel()
		sessionsActive.Dec()
		r.pub.Publish(Event{
			Name: EventSessionCancelled, ModelID: modelID, SessionID: eng.ID(),
			Fields: map[string]any{"reason": "model_unloaded"},
		})
	}
	mgr.Unload()
	modelsLoaded.Dec()
	modelUnloadsTotal.Inc()
	r.pub.Publish(Event{Name: EventModelUnloaded, ModelID: modelID})
	return nil
}

// Shutdown cancels all sessions, unloads all models in that order and frees
// the runtime. Idempotent; operations after Shutdown fail closed.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	engines := make([]*Engine, 0, len(r.sessions))
	for _, eng := range r.sessions {
		engines = append(engines, eng)
	}
	managers := make([]*ModelManager, 0, len(r.models))
	for _, mgr := range r.models {
		managers = append(managers, mgr)
	}
	r.sessions = make(map[int64]*Engine)
	r.models = make(map[string]*ModelManager)
	r.mu.Unlock()

	for _, eng := range engines {
		eng.Cancel()
		sessionsActive.Dec()
	}
	for _, mgr := range managers {
		mgr.Unload()
		modelsLoaded.Dec()
	}
	r.rt.Free()
	r.log.Info().
		Int("sessions", len(engines)).
		Int("models", len(managers)).
		Msg("registry shut down")
}

// Ready reports whether the registry accepts work.
func (r *Registry) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.closed
}

// Models snapshots the loaded models, ordered by id.
func (r *Registry) Models() []types.LoadedModel {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.modelsLocked()
}

func (r *Registry) modelsLocked() []types.LoadedModel {
	bound := make(map[string]int, len(r.models))
	for _, eng := range r.sessions {
		bound[eng.ModelID()]++
	}
	out := make([]types.LoadedModel, 0, len(r.models))
	for id, mgr := range r.models {
		out = append(out, mgr.describe(bound[id]))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModelID < out[j].ModelID })
	return out
}

// Status snapshots the whole registry for the status endpoint.
func (r *Registry) Status() types.StatusResponse {
	r.mu.Lock()
	models := r.modelsLocked()
	engines := make([]*Engine, 0, len(r.sessions))
	for _, eng := range r.sessions {
		engines = append(engines, eng)
	}
	r.mu.Unlock()

	sessions := make([]types.SessionStatus, 0, len(engines))
	for _, eng := range engines {
		sessions = append(sessions, eng.status())
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].SessionID < sessions[j].SessionID })

	now := time.Now()
	return types.StatusResponse{
		Models:         models,
		Sessions:       sessions,
		UptimeSeconds:  int64(now.Sub(r.started).Seconds()),
		ServerTimeUnix: now.Unix(),
		LoadsTotal:     r.loads.Load(),
		SessionsTotal:  r.starts.Load(),
	}
}
