package engine

import (
	"net"

	"github.com/rs/xid"

	"github.com/hostprotocols/ncpd/wire"
)

// Connections is the table's fixed capacity (the reference value).
const Connections = 20

// OptLink is an optional link identifier. The reference C shares the
// sentinel -1 between "unbound link" and a valid domain value; per the
// design notes that sentinel is replaced here with an explicit presence
// flag instead.
type OptLink struct {
	Link wire.Link
	Set  bool
}

// OptSize is an optional negotiated byte size, same rationale as OptLink.
type OptSize struct {
	Size uint8
	Set  bool
}

// HalfConn is one direction (send or receive) of a connection slot.
type HalfConn struct {
	Link  OptLink
	Size  OptSize
	LSock wire.Socket
	RSock wire.Socket
}

// Active reports whether this half is bound to a socket pair.
func (h HalfConn) Active() bool { return h.LSock != 0 }

// ConnSlot is one entry of the connection table (§3).
type ConnSlot struct {
	Allocated bool
	Host      wire.Host
	Rcv       HalfConn
	Snd       HalfConn
	Client    net.Addr // return address of the owning application

	// ListenSlot cross-references the listening slot this connection
	// was spawned from, or -1. The reference C aliases connection[i]
	// and listening[i] by a shared index, which §9's design notes flag
	// as a latent source of slot reuse collisions; this keeps the two
	// tables independently allocated and links them explicitly instead.
	ListenSlot int

	// ID is a short correlation token stamped at allocation time, unique
	// per allocation despite table index reuse. The dispatchers' log lines
	// carry the table index ("conn"), not this ID.
	ID xid.ID
}

// ListenSlot is one entry of the listening table (§3).
type ListenSlot struct {
	Allocated bool
	Sock      wire.Socket
	Client    net.Addr
}

// Table is the fixed-capacity connection and listening registry. It is
// not safe for concurrent use: per §5 the engine is strictly
// single-threaded and no handler may run while another is in progress.
type Table struct {
	conn   [Connections]ConnSlot
	listen [Connections]ListenSlot
}

// Conn returns a pointer to connection slot i for direct mutation by a
// dispatcher. Callers must only use indices obtained from this table's own
// lookup and allocation methods.
func (t *Table) Conn(i int) *ConnSlot { return &t.conn[i] }

// Listen returns a pointer to listening slot i.
func (t *Table) Listen(i int) *ListenSlot { return &t.listen[i] }

// FindLink returns the index of the connection slot whose receive or send
// half is bound to (host, link), or -1.
func (t *Table) FindLink(host wire.Host, link wire.Link) int {
	for i := range t.conn {
		c := &t.conn[i]
		if !c.Allocated || c.Host != host {
			continue
		}
		if c.Rcv.Link.Set && c.Rcv.Link.Link == link {
			return i
		}
		if c.Snd.Link.Set && c.Snd.Link.Link == link {
			return i
		}
	}
	return -1
}

// FindSocket returns the index of the connection slot where either half's
// local socket equals lsock, or -1.
func (t *Table) FindSocket(host wire.Host, lsock wire.Socket) int {
	for i := range t.conn {
		c := &t.conn[i]
		if !c.Allocated || c.Host != host {
			continue
		}
		if c.Rcv.LSock == lsock || c.Snd.LSock == lsock {
			return i
		}
	}
	return -1
}

// FindSockets returns the index of the connection slot where either half
// matches both lsock and rsock, or -1. Used to correlate CLS, ERR and
// duplicate RFCs.
func (t *Table) FindSockets(host wire.Host, lsock, rsock wire.Socket) int {
	for i := range t.conn {
		c := &t.conn[i]
		if !c.Allocated || c.Host != host {
			continue
		}
		if c.Rcv.LSock == lsock && c.Rcv.RSock == rsock {
			return i
		}
		if c.Snd.LSock == lsock && c.Snd.RSock == rsock {
			return i
		}
	}
	return -1
}

// FindListen returns the index of the listening slot whose socket equals
// sock or sock-1 (covering either half of the pair), or -1.
func (t *Table) FindListen(sock wire.Socket) int {
	for i := range t.listen {
		l := &t.listen[i]
		if !l.Allocated {
			continue
		}
		if l.Sock == sock || l.Sock+1 == sock {
			return i
		}
	}
	return -1
}

// Allocate returns the index of a free connection slot, stamped with a
// fresh correlation ID, or -1 if the table is full.
func (t *Table) Allocate() int {
	for i := range t.conn {
		if !t.conn[i].Allocated {
			t.conn[i] = ConnSlot{Allocated: true, ListenSlot: -1, ID: xid.New()}
			return i
		}
	}
	return -1
}

// Destroy resets slot i to free. It also frees the listening slot this
// connection was spawned from, if any, completing that slot's lifecycle
// (§3: "destroyed when a connection in its slot is closed"). Destroying an
// already-free slot is a no-op.
func (t *Table) Destroy(i int) {
	c := &t.conn[i]
	if !c.Allocated {
		return
	}
	if c.ListenSlot >= 0 {
		t.DestroyListen(c.ListenSlot)
	}
	t.conn[i] = ConnSlot{}
}

// AllocateListen returns the index of a free listening slot, or -1.
func (t *Table) AllocateListen() int {
	for i := range t.listen {
		if !t.listen[i].Allocated {
			t.listen[i] = ListenSlot{Allocated: true}
			return i
		}
	}
	return -1
}

// DestroyListen resets listening slot i to free. A no-op if already free.
func (t *Table) DestroyListen(i int) {
	t.listen[i] = ListenSlot{}
}
