// -----------------------------------------------------------------------
// Cross-goroutine contract between a caller and the worker goroutine
// -----------------------------------------------------------------------

package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// CancelToken is polled by the worker at entity and session-attempt boundaries
type CancelToken interface {
	Stopped() bool
}

// StopFlag is a CancelToken set from any goroutine
type StopFlag struct {
	stopped atomic.Bool
}

// Stop requests a cooperative stop
func (f *StopFlag) Stop() {
	f.stopped.Store(true)
}

// Stopped reports whether a stop was requested
func (f *StopFlag) Stopped() bool {
	return f.stopped.Load()
}

// ProgressSink receives progress from the worker goroutine.
// Implementations must not block; UI callers marshal onto their own goroutine.
type ProgressSink interface {
	Progress(message string, current, total int)
}

// ProgressFunc adapts a function to ProgressSink
type ProgressFunc func(message string, current, total int)

// Progress calls f
func (f ProgressFunc) Progress(message string, current, total int) {
	f(message, current, total)
}

// LoginGate blocks the worker until the operator confirms the manual login.
// Each browser session needs its own login, so the supervisor re-arms the gate per session;
// within one arming it is a single-shot signal.
type LoginGate struct {
	mu       sync.Mutex
	signal   chan struct{}
	signaled bool
	waiting  atomic.Bool
}

// NewLoginGate creates an armed gate
func NewLoginGate() *LoginGate {
	return &LoginGate{signal: make(chan struct{})}
}

// Arm replaces a signaled gate with a fresh unsignaled one
func (g *LoginGate) Arm() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.signaled {
		g.signal = make(chan struct{})
		g.signaled = false
	}
}

// Confirm signals the gate. Returns false when it was already signaled.
func (g *LoginGate) Confirm() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.signaled {
		return false
	}
	close(g.signal)
	g.signaled = true
	return true
}

// Awaiting reports whether the worker is currently blocked on the gate
func (g *LoginGate) Awaiting() bool {
	return g.waiting.Load()
}

// gatePollInterval bounds how long a cooperative stop can go unnoticed while waiting for login
const gatePollInterval = 200 * time.Millisecond

// Wait blocks until Confirm, a stop on token, or ctx cancellation
func (g *LoginGate) Wait(ctx context.Context, token CancelToken) error {
	g.mu.Lock()
	signal := g.signal
	g.mu.Unlock()

	g.waiting.Store(true)
	defer g.waiting.Store(false)

	ticker := time.NewTicker(gatePollInterval)
	defer ticker.Stop()

	for {
		if token != nil && token.Stopped() {
			return ErrCancelled
		}
		select {
		case <-signal:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
