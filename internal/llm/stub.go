//go:build !llama

package llm

// This file provides the FFI-free stub compiled when the 'llama' build tag is
// not set, keeping default builds and CI free of native libraries. The real
// runtime lives in yzma.go (tagged 'llama').

type stubRuntime struct{}

// NewRuntime returns a runtime that refuses to load models. Builds without
// the 'llama' tag get no mocked inference behavior; tests use llmtest.
func NewRuntime(libPath string) Runtime { return stubRuntime{} }

func (stubRuntime) Init() error { return nil }

func (stubRuntime) Free() {}

func (stubRuntime) LoadModel(path string, params ModelParams) (Model, error) {
	return nil, ErrRuntimeUnavailable
}
