package gateway

import "sync"

// atomicString is a mutex-guarded string; the token is written by the session
// store and read on every request.
type atomicString struct {
	mu sync.RWMutex
	v  string
}

func (a *atomicString) store(s string) {
	a.mu.Lock()
	a.v = s
	a.mu.Unlock()
}

func (a *atomicString) load() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.v
}

// atomicHandler guards the unauthorized callback the same way.
type atomicHandler struct {
	mu sync.RWMutex
	fn func()
}

func (a *atomicHandler) store(fn func()) {
	a.mu.Lock()
	a.fn = fn
	a.mu.Unlock()
}

func (a *atomicHandler) load() func() {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.fn
}
