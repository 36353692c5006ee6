// Package tasks runs fire-and-forget work that must outlive the request
// which started it.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// ErrorSink receives failures from detached tasks.
type ErrorSink func(name string, err error)

// Group spawns detached tasks and tracks them so shutdown and tests can wait.
// The zero value is not usable; call NewGroup.
type Group struct {
	wg   sync.WaitGroup
	sink ErrorSink
}

// NewGroup creates a Group. A nil sink logs failures with slog.
func NewGroup(sink ErrorSink) *Group {
	if sink == nil {
		sink = func(name string, err error) {
			slog.Error("detached task failed", "task", name, "error", err)
		}
	}
	return &Group{sink: sink}
}

// Go runs fn on a context that keeps parent's values but not its
// cancellation, so a dropped client connection does not abort the work.
// Errors and panics go to the sink; Go never blocks.
func (g *Group) Go(parent context.Context, name string, fn func(ctx context.Context) error) {
	ctx := context.WithoutCancel(parent)
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				g.sink(name, fmt.Errorf("panic: %v", r))
			}
		}()
		if err := fn(ctx); err != nil {
			g.sink(name, err)
		}
	}()
}

// Wait blocks until every task started so far has returned.
func (g *Group) Wait() {
	g.wg.Wait()
}

// WaitContext is Wait bounded by ctx. Returns ctx.Err() on timeout.
func (g *Group) WaitContext(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
