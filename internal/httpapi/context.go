package httpapi

import (
	"context"
)

// serverBaseCtx ties streaming handlers to the process lifetime. main cancels
// it on shutdown so in-flight /infer streams stop instead of riding out the
// client connection.
var serverBaseCtx = context.Background()

// SetBaseContext installs the process-level context; nil restores Background.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		serverBaseCtx = context.Background()
		return
	}
	serverBaseCtx = ctx
}

// joinContexts derives a context that ends as soon as either parent does.
// Callers must invoke the returned cancel func when the handler finishes so
// the watcher goroutine exits.
func joinContexts(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer cancel()
		select {
		case <-a.Done():
		case <-b.Done():
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
