package utils

import "context"

// -----------------------------------------------------------------------------
// Limiter bounds the number of concurrent remote calls with a token
// semaphore. Callers acquire before issuing a request and release when done,
// which replaces fixed inter-request sleeps with backpressure.
// -----------------------------------------------------------------------------

type Limiter struct {
	tokens chan struct{}
}

// -----------------------------------------------------------------------------

// NewLimiter creates a limiter admitting up to size concurrent holders.
func NewLimiter(size int) *Limiter {
	if size <= 0 {
		size = 1
	}
	return &Limiter{tokens: make(chan struct{}, size)}
}

// -----------------------------------------------------------------------------

// Acquire blocks until a token is available or the context is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.tokens <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// -----------------------------------------------------------------------------

// TryAcquire grabs a token without blocking.
func (l *Limiter) TryAcquire() bool {
	select {
	case l.tokens <- struct{}{}:
		return true
	default:
		return false
	}
}

// -----------------------------------------------------------------------------

// Release returns a token. Releasing more than was acquired is a programmer
// error and panics.
func (l *Limiter) Release() {
	select {
	case <-l.tokens:
	default:
		panic("utils: limiter release without acquire")
	}
}

// -----------------------------------------------------------------------------

// InUse reports how many tokens are currently held.
func (l *Limiter) InUse() int {
	return len(l.tokens)
}
