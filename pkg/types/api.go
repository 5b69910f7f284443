package types

// LoadRequest is the payload for POST /models.
type LoadRequest struct {
	// Path to the GGUF file, or the id of a catalog entry.
	// example: /home/user/models/TinyLlama.Q4_K_M.gguf
	Path string `json:"path" example:"/home/user/models/TinyLlama.Q4_K_M.gguf"`
	// Context window size in tokens.
	// example: 512
	ContextSize int `json:"context_size,omitempty" example:"512"`
	// Random seed; -1 derives one from the wall clock.
	// example: -1
	Seed int64 `json:"seed,omitempty" example:"-1"`
	// CPU thread count; values <= 0 fall back to the server default.
	// example: 4
	Threads int `json:"threads,omitempty" example:"4"`
}

// LoadResponse is returned by POST /models.
type LoadResponse struct {
	// Process-unique identifier for the loaded model.
	// example: model_1700000000000_b1946ac9
	ModelID string `json:"model_id" example:"model_1700000000000_b1946ac9"`
}

// StartRequest is the payload for POST /sessions.
type StartRequest struct {
	// Identifier of a loaded model.
	// example: model_1700000000000_b1946ac9
	Model string `json:"model" example:"model_1700000000000_b1946ac9"`
	// Prompt text to prime the session with.
	// example: Write a haiku about the ocean.
	Prompt string `json:"prompt" example:"Write a haiku about the ocean."`
	// Sampling configuration for the session.
	Params GenerateParams `json:"params"`
}

// StartResponse is returned by POST /sessions.
type StartResponse struct {
	// Identifier of the new generation session.
	// example: 1700000000001
	SessionID int64 `json:"session_id" example:"1700000000001"`
}

// NextResponse is returned by POST /sessions/{id}/next.
// Done is true exactly once per session, on the terminating call; an unknown
// session id also yields Done so callers observe a uniform end-of-stream.
type NextResponse struct {
	// Text fragment for the sampled token. Empty when Done.
	Token string `json:"token,omitempty"`
	// True when the stream has ended.
	Done bool `json:"done"`
}

// InferRequest is the payload for POST /infer, the one-shot streaming
// convenience that runs a whole session server-side.
type InferRequest struct {
	// Identifier of a loaded model.
	Model string `json:"model"`
	// Required prompt text.
	// example: Write a haiku about the ocean.
	Prompt string `json:"prompt" example:"Write a haiku about the ocean."`
	// Sampling configuration for the session.
	Params GenerateParams `json:"params"`
}

// EmbedRequest is the payload for POST /embeddings.
type EmbedRequest struct {
	// Identifier of a loaded model.
	Model string `json:"model"`
	// Text to embed.
	// example: graph database
	Text string `json:"text" example:"graph database"`
}

// EmbedResponse is returned by POST /embeddings.
type EmbedResponse struct {
	// Fixed-width embedding vector.
	Embedding []float32 `json:"embedding"`
	// Embedding dimensionality, equal to len(Embedding).
	// example: 2048
	Dim int `json:"dim" example:"2048"`
}

// ModelsResponse wraps GET /models.
type ModelsResponse struct {
	// Loadable files discovered in the models directory.
	Catalog []ModelFile `json:"catalog"`
	// Currently loaded models.
	Loaded []LoadedModel `json:"loaded"`
}

// LoadedModel summarizes one loaded model for /models and /status.
type LoadedModel struct {
	// Process-unique model identifier.
	ModelID string `json:"model_id"`
	// Path the model was loaded from.
	Path string `json:"path"`
	// Configured context window size.
	ContextSize int `json:"context_size"`
	// Effective thread count after defaulting.
	Threads int `json:"threads"`
	// Vocabulary size reported by the runtime.
	VocabSize int `json:"vocab_size"`
	// Embedding dimensionality reported by the runtime.
	EmbedDim int `json:"embed_dim"`
	// Number of sessions currently bound to this model.
	Sessions int `json:"sessions"`
	// Load time in unix seconds.
	LoadedAt int64 `json:"loaded_at_unix"`
}

// SessionStatus summarizes one live session for /status.
type SessionStatus struct {
	// Session identifier.
	SessionID int64 `json:"session_id"`
	// Model the session is bound to.
	ModelID string `json:"model_id"`
	// Tokens accumulated so far, prompt included.
	Tokens int `json:"tokens"`
	// Configured max-token budget.
	MaxTokens int `json:"max_tokens"`
	// Start time in unix seconds.
	StartedAt int64 `json:"started_at_unix"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Loaded models.
	Models []LoadedModel `json:"models"`
	// Live sessions.
	Sessions []SessionStatus `json:"sessions"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	ServerTimeUnix int64 `json:"server_time_unix"`
	// Total number of model loads since start.
	LoadsTotal uint64 `json:"loads_total"`
	// Total number of sessions started since start.
	SessionsTotal uint64 `json:"sessions_total"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: model not found: model_123
	Error string `json:"error" example:"model not found: model_123"`
	// HTTP status code.
	// example: 404
	Code int `json:"code" example:"404"`
}
