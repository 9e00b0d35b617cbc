package engine

import (
	"context"
	"sync"
)

// Completion resolves exactly once with the outcome of one render.
type Completion struct {
	done   chan struct{}
	err    error
	result Result
	once   sync.Once
}

func newCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

func (c *Completion) resolve(res Result, err error) {
	c.once.Do(func() {
		c.result = res
		c.err = err
		close(c.done)
	})
}

// Done is closed once the render has finished.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the render finishes or ctx is done.
func (c *Completion) Wait(ctx context.Context) (Result, error) {
	select {
	case <-c.done:
		return c.result, c.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
