// SPDX-License-Identifier: MPL-2.0

package mapperserver

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// lifecycle tracks the server state machine and the goroutines serving it.
// A server is single-use: once stopped or failed, create a new one.
type lifecycle struct {
	state atomic.Int32

	mu      sync.Mutex
	lastErr error

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startedCh chan struct{}
	errCh     chan error
}

func newLifecycle() *lifecycle {
	l := &lifecycle{
		startedCh: make(chan struct{}),
		errCh:     make(chan error, 1),
	}
	l.state.Store(int32(StateCreated))
	return l
}

func (l *lifecycle) current() State { return State(l.state.Load()) }

// starting moves Created to Starting. A context that is already done fails
// the server before anything is set up.
func (l *lifecycle) starting(ctx context.Context) error {
	select {
	case <-ctx.Done():
		l.fail(fmt.Errorf("context cancelled before start: %w", ctx.Err()))
		return l.err()
	default:
	}

	if !l.state.CompareAndSwap(int32(StateCreated), int32(StateStarting)) {
		if st := l.current(); st.IsTerminal() {
			return fmt.Errorf("server already %s, create a new one", st)
		}
		return fmt.Errorf("cannot start server in state %s", l.current())
	}
	l.ctx, l.cancel = context.WithCancel(context.Background())
	return nil
}

// running moves Starting to Running and signals readiness.
func (l *lifecycle) running() {
	if l.state.CompareAndSwap(int32(StateStarting), int32(StateRunning)) {
		close(l.startedCh)
	}
}

// awaitRunning blocks until the accept loop is ready, Stop takes over, or
// ctx ends. A start interrupted by Stop returns ErrStoppedDuringStart and
// leaves the state to Stop.
func (l *lifecycle) awaitRunning(ctx context.Context) error {
	select {
	case <-l.startedCh:
		return nil
	case <-l.ctx.Done():
		if l.current().shuttingDown() {
			return ErrStoppedDuringStart
		}
		return l.err()
	case <-ctx.Done():
		if l.current().shuttingDown() {
			return ErrStoppedDuringStart
		}
		l.fail(fmt.Errorf("startup timeout: %w", ctx.Err()))
		return l.err()
	}
}

func (l *lifecycle) fail(err error) {
	l.mu.Lock()
	l.lastErr = err
	l.mu.Unlock()

	l.state.Store(int32(StateFailed))
	if l.cancel != nil {
		l.cancel()
	}
	l.report(err)
}

func (l *lifecycle) err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

// stopping moves a started server to Stopping and reports whether the caller
// owns the shutdown. A server that never started is marked Stopped.
func (l *lifecycle) stopping() bool {
	for {
		st := l.current()
		switch st {
		case StateCreated:
			if l.state.CompareAndSwap(int32(StateCreated), int32(StateStopped)) {
				return false
			}
		case StateStarting, StateRunning:
			if l.state.CompareAndSwap(int32(st), int32(StateStopping)) {
				if l.cancel != nil {
					l.cancel()
				}
				return true
			}
		default:
			return false
		}
	}
}

func (l *lifecycle) stopped() {
	l.state.Store(int32(StateStopped))
	close(l.errCh)
}

// report forwards an asynchronous error without blocking.
func (l *lifecycle) report(err error) {
	select {
	case l.errCh <- err:
	default:
	}
}

func (l *lifecycle) goroutine(f func()) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		f()
	}()
}
