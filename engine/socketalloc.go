package engine

import "github.com/hostprotocols/ncpd/wire"

// socketBase is the first local socket number handed out by
// SocketAllocator. Chosen above the well-known ICP range to avoid
// collisions with fixed sockets a peer implementation might expect.
const socketBase = wire.Socket(1000)

// SocketAllocator hands out the local socket numbers an application OPEN
// needs for its send and receive halves. The reference hard-codes
// 1002/1003 for every OPEN (§9: "wrong for more than one simultaneous
// OPEN"); this keeps a monotonic counter with even-local allocation
// instead, as the design notes prescribe.
type SocketAllocator struct {
	next wire.Socket
}

// NewSocketAllocator returns an allocator starting at socketBase.
func NewSocketAllocator() *SocketAllocator {
	return &SocketAllocator{next: socketBase}
}

// Pair returns two fresh, distinct even local sockets: one for the
// connection's send half, one for its receive half.
func (a *SocketAllocator) Pair() (sndLocal, rcvLocal wire.Socket) {
	sndLocal = a.next
	rcvLocal = a.next + 2
	a.next += 4
	return
}
