// Package session holds the runtime state of the inference server: loaded
// models and live generation sessions.
//
// File layout:
//   - manager.go: ModelManager, one loaded model plus its inference context
//   - engine.go: Engine, one prompt-primed generation session
//   - registry.go: Registry, the locked model/session tables and lifecycle
//   - events.go, eventpub_memory.go: lifecycle event publishing
//   - errors.go: typed error kinds with Is* helpers
//
// Locking is two-level. The registry mutex guards only the two lookup tables
// and is never held across a decode. Each ModelManager carries a decode mutex
// that serializes every touch of its native context, shared by generation
// steps and embedding requests.
package session
