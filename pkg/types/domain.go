package types

// ModelFile represents a loadable GGUF model discovered on disk.
type ModelFile struct {
	// Stable identifier derived from the filename.
	// example: tinyllama-q4.gguf
	ID string `json:"id" example:"tinyllama-q4.gguf"`
	// Human-friendly name.
	// example: tinyllama-q4.gguf
	Name string `json:"name" example:"tinyllama-q4.gguf"`
	// Absolute path to the model file on disk.
	// example: /home/user/models/TinyLlama.Q4_K_M.gguf
	Path string `json:"path" example:"/home/user/models/TinyLlama.Q4_K_M.gguf"`
	// Size of the file in bytes, zero if unknown.
	SizeBytes int64 `json:"size_bytes,omitempty"`
}

// GenerateParams is the per-session sampling configuration.
type GenerateParams struct {
	// Sampling temperature. Zero or negative selects the greedy policy.
	// example: 0.7
	Temperature float32 `json:"temperature,omitempty" example:"0.7"`
	// Top-K sampling: limit candidates to the K highest-scoring tokens.
	// example: 40
	TopK int `json:"top_k,omitempty" example:"40"`
	// Nucleus sampling probability.
	// example: 0.9
	TopP float32 `json:"top_p,omitempty" example:"0.9"`
	// Maximum total tokens for the session (prompt plus generated).
	// example: 256
	MaxTokens int `json:"max_tokens,omitempty" example:"256"`
	// Force the deterministic greedy policy regardless of temperature.
	Greedy bool `json:"greedy,omitempty"`
	// Random seed for the stochastic policy; 0 means derive from the model's
	// load-time seed.
	// example: 42
	Seed int64 `json:"seed,omitempty" example:"42"`
}
