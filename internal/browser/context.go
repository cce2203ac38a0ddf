// internal/browser/context.go
package browser

import "context"

// CombineContext returns a context derived from ctx1 that is also canceled
// when ctx2 is done. Values (the CDP target) come from ctx1; ctx2 usually
// carries the caller's deadline.
func CombineContext(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(ctx1)
	stop := context.AfterFunc(ctx2, cancel)
	return combined, func() {
		stop()
		cancel()
	}
}
