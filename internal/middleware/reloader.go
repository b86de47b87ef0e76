package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// reloadable swaps the wrapped handler whenever build produces a new one.
// build returns nil to keep the current handler.
type reloadable struct {
	next     http.Handler
	build    func(ctx context.Context, next http.Handler) http.Handler
	interval time.Duration

	mu      sync.RWMutex
	current http.Handler
}

func (r *reloadable) wrap(next http.Handler) http.Handler {
	r.next = next
	r.reload(context.Background())
	return r
}

func (r *reloadable) reload(ctx context.Context) {
	if r.next == nil {
		return
	}
	if h := r.build(ctx, r.next); h != nil {
		r.mu.Lock()
		r.current = h
		r.mu.Unlock()
	}
}

// run reloads every interval until ctx is cancelled.
func (r *reloadable) run(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reload(ctx)
		}
	}
}

func (r *reloadable) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mu.RLock()
	h := r.current
	r.mu.RUnlock()
	if h == nil {
		h = r.next
	}
	if h != nil {
		h.ServeHTTP(w, req)
	}
}
