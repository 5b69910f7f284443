package session

import "fmt"

// modelNotFoundError reports a registry lookup miss for a model id.
type modelNotFoundError struct{ id string }

func (e modelNotFoundError) Error() string { return "model not found: " + e.id }

// ErrModelNotFound constructs a modelNotFoundError.
func ErrModelNotFound(id string) error { return modelNotFoundError{id: id} }

// IsModelNotFound reports whether the error indicates a missing model id.
func IsModelNotFound(err error) bool {
	_, ok := err.(modelNotFoundError)
	return ok
}

// notLoadedError signals an operation against a manager whose model has been
// released.
type notLoadedError struct{ op string }

func (e notLoadedError) Error() string { return e.op + ": model not loaded" }

// IsNotLoaded reports whether err indicates an unloaded manager.
func IsNotLoaded(err error) bool {
	_, ok := err.(notLoadedError)
	return ok
}

// notInitializedError signals a generation engine with no bound context.
type notInitializedError struct{}

func (notInitializedError) Error() string { return "generation engine not initialized" }

// IsNotInitialized reports whether err indicates an unbound engine.
func IsNotInitialized(err error) bool {
	_, ok := err.(notInitializedError)
	return ok
}

// loadFailureError wraps a weights-loading rejection from the runtime.
type loadFailureError struct {
	path string
	err  error
}

func (e loadFailureError) Error() string { return fmt.Sprintf("load %s: %v", e.path, e.err) }
func (e loadFailureError) Unwrap() error { return e.err }

// IsLoadFailure reports whether err indicates rejected or missing weights.
func IsLoadFailure(err error) bool {
	_, ok := err.(loadFailureError)
	return ok
}

// contextFailureError wraps a context-construction rejection.
type contextFailureError struct {
	id  string
	err error
}

func (e contextFailureError) Error() string {
	return fmt.Sprintf("create context for %s: %v", e.id, e.err)
}
func (e contextFailureError) Unwrap() error { return e.err }

// IsContextFailure reports whether err indicates context construction failed.
func IsContextFailure(err error) bool {
	_, ok := err.(contextFailureError)
	return ok
}

// decodeFailureError wraps a decode-batch rejection from the runtime.
type decodeFailureError struct {
	n   int
	err error
}

func (e decodeFailureError) Error() string { return fmt.Sprintf("decode %d tokens: %v", e.n, e.err) }
func (e decodeFailureError) Unwrap() error { return e.err }

// IsDecodeFailure reports whether err indicates a rejected decode batch.
func IsDecodeFailure(err error) bool {
	_, ok := err.(decodeFailureError)
	return ok
}

// detokenizeFailureError wraps a token-to-piece rejection.
type detokenizeFailureError struct {
	tok int32
	err error
}

func (e detokenizeFailureError) Error() string {
	return fmt.Sprintf("detokenize token %d: %v", e.tok, e.err)
}
func (e detokenizeFailureError) Unwrap() error { return e.err }

// IsDetokenizeFailure reports whether err indicates a failed piece conversion.
func IsDetokenizeFailure(err error) bool {
	_, ok := err.(detokenizeFailureError)
	return ok
}

// registryClosedError signals operations after Shutdown.
type registryClosedError struct{}

func (registryClosedError) Error() string { return "registry is shut down" }

// IsRegistryClosed reports whether err indicates a shut-down registry.
func IsRegistryClosed(err error) bool {
	_, ok := err.(registryClosedError)
	return ok
}
