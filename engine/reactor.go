package engine

import (
	"errors"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/hostprotocols/ncpd/wire"
)

// Reactor drives the engine from the two file descriptors it depends on:
// the IMP driver and the application's Unix datagram socket. It is the
// only goroutine that touches the Engine (§4.6, §5) — Run never returns control
// to another goroutine mid-dispatch, so no lock guards the Engine. closing
// is the one field another goroutine (the signal handler) may touch, so it
// alone is accessed atomically.
type Reactor struct {
	e      *Engine
	impBuf [maxIMPFrame]byte
	appBuf [2048]byte

	closing atomic.Bool
}

// NewReactor builds a reactor over e.
func NewReactor(e *Engine) *Reactor { return &Reactor{e: e} }

// Stop asks the reactor's Run loop to exit at its next iteration.
func (r *Reactor) Stop() { r.closing.Store(true) }

// Run polls the IMP and application descriptors and dispatches whichever
// becomes readable, looping until Stop is called or a fatal poll error
// occurs (§4.6). A transient EINTR is retried; every other poll error is
// returned to the caller.
func (r *Reactor) Run() error {
	impFd := r.e.imp.Fd()
	appFd := r.e.app.Fd()

	fds := []unix.PollFd{
		{Fd: int32(impFd), Events: unix.POLLIN},
		{Fd: int32(appFd), Events: unix.POLLIN},
	}

	for !r.closing.Load() {
		fds[0].Revents = 0
		fds[1].Revents = 0

		_, err := unix.Poll(fds, -1)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return err
		}

		if fds[0].Revents&unix.POLLIN != 0 {
			r.pumpIMP()
		}
		if fds[1].Revents&unix.POLLIN != 0 {
			r.pumpApp()
		}
	}
	return nil
}

// pumpIMP reads and dispatches exactly one frame from the IMP driver.
func (r *Reactor) pumpIMP() {
	n, err := r.e.imp.Receive(r.impBuf[:])
	if err != nil {
		errorFields(nil, "imp receive: %v", err)
		return
	}
	if n < wire.LeaderLen {
		return
	}
	r.e.dispatchIMP(r.impBuf[:n])
}

// pumpApp reads and dispatches exactly one application command frame.
func (r *Reactor) pumpApp() {
	n, addr, err := r.e.app.ReadFrom(r.appBuf[:])
	if err != nil {
		errorFields(nil, "app receive: %v", err)
		return
	}
	r.e.dispatchApp(addr, r.appBuf[:n])
}
