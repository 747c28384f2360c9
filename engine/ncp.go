package engine

import (
	"github.com/sirupsen/logrus"

	"github.com/hostprotocols/ncpd/wire"
)

// dispatchNCP applies one decoded link-0 control message from host to the
// connection table, emitting any wire reply and application notification
// it requires (§4.3). It is the single mutation point the reactor calls
// into for every message in a batch; handlers never run concurrently
// with one another (§5).
func (e *Engine) dispatchNCP(host wire.Host, m wire.Message) {
	e.metrics.observeNCP(m.Type)
	defer e.recordOccupancy()
	switch m.Type {
	case wire.RTS:
		e.handleRTS(host, m)
	case wire.STR:
		e.handleSTR(host, m)
	case wire.CLS:
		e.handleCLS(host, m)
	case wire.ALL, wire.GVB, wire.RET, wire.INR, wire.INS:
		e.handleFlowControl(host, m)
	case wire.ECO:
		e.handleECO(host, m)
	case wire.ERP:
		e.handleERP(host, m)
	case wire.ERR:
		e.handleERR(host, m)
	case wire.RST:
		e.handleRST(host, m)
	case wire.RRP:
		traceFields(logrus.Fields{"host": host}, "RRP received")
	case wire.NOP:
		// no action
	}
}

// handleRTS implements §4.3's RTS rule: the remote is announcing it will
// send to our rsock on the given link.
func (e *Engine) handleRTS(host wire.Host, m wire.Message) {
	lsock, rsock, link := m.RTS()
	if !link.InDataRange() {
		e.sendErr(host, wire.ErrParam, m)
		return
	}

	li := e.table.FindListen(lsock)
	var idx int
	if li < 0 {
		// Not listening: this must answer one of our own outgoing RFCs.
		idx = e.table.FindSockets(host, lsock, rsock)
		if idx < 0 {
			e.sendErr(host, wire.ErrConnect, m)
			return
		}
	} else {
		idx = e.table.FindSocket(host, lsock+1)
		if idx < 0 {
			idx = e.table.Allocate()
			if idx < 0 {
				warnFields(logrus.Fields{"host": host, "err": errConnTableFull}, "connection table full on incoming RTS")
				return
			}
			e.table.Conn(idx).Host = host
			e.table.Conn(idx).ListenSlot = li
		}
	}

	// The half a received RTS populates is named snd here, matching the
	// reference table layout (ncp.c's process_rts); the rcv half is
	// populated by the STR half of the same handshake, below.
	c := e.table.Conn(idx)
	c.Snd.LSock = lsock
	c.Snd.RSock = rsock
	c.Snd.Link = wire.OptLink{Link: link, Set: true}

	if !c.Rcv.Size.Set {
		c.Rcv.Size = wire.OptSize{Size: 8, Set: true}
		e.sendNCP(host, wire.STRMsg(lsock, rsock, 8))
		if c.Rcv.Link.Set {
			e.replyListen(idx)
		}
	} else if c.Snd.Size.Set {
		e.replyOpen(idx)
	}
	traceFields(logrus.Fields{"host": host, "conn": idx, "link": link}, "RTS processed")
}

// handleSTR implements §4.3's STR rule, symmetric to RTS: the remote
// expects to send us data on a new link and is telling us its byte size.
func (e *Engine) handleSTR(host wire.Host, m wire.Message) {
	lsock, rsock, size := m.STR()
	li := e.table.FindListen(lsock)
	var idx int
	if li < 0 {
		idx = e.table.FindSockets(host, lsock, rsock)
		if idx < 0 {
			e.sendErr(host, wire.ErrConnect, m)
			return
		}
	} else {
		idx = e.table.FindSocket(host, lsock-1)
		if idx < 0 {
			idx = e.table.Allocate()
			if idx < 0 {
				warnFields(logrus.Fields{"host": host, "err": errConnTableFull}, "connection table full on incoming STR")
				return
			}
			e.table.Conn(idx).Host = host
			e.table.Conn(idx).ListenSlot = li
		}
	}

	// The half a received STR populates is named rcv here, matching the
	// reference table layout (ncp.c's process_str); snd.size doubles as
	// this handshake direction's completion marker for a later RTS.
	c := e.table.Conn(idx)
	c.Rcv.LSock = lsock
	c.Rcv.RSock = rsock
	c.Snd.Size = wire.OptSize{Size: size, Set: true}

	if !c.Rcv.Link.Set {
		link, ok := e.links.Acquire(host)
		if !ok {
			warnFields(logrus.Fields{"host": host}, "no free data link for STR response")
			return
		}
		c.Rcv.Link = wire.OptLink{Link: link, Set: true}
		e.sendNCP(host, wire.RTSMsg(lsock, rsock, link))
		if c.Rcv.Size.Set {
			e.replyListen(idx)
		}
	} else if c.Snd.Link.Set {
		e.replyOpen(idx)
	}
	traceFields(logrus.Fields{"host": host, "conn": idx}, "STR processed")
}

// handleCLS implements §4.3's close reconciliation.
func (e *Engine) handleCLS(host wire.Host, m wire.Message) {
	lsock, rsock := m.CLS()
	idx := e.table.FindSockets(host, lsock, rsock)
	if idx < 0 {
		e.sendErr(host, wire.ErrSocket, m)
		return
	}
	c := e.table.Conn(idx)

	weInitiated := false
	if c.Rcv.LSock == lsock && c.Rcv.RSock == rsock {
		weInitiated = !c.Rcv.Size.Set
		if c.Rcv.Link.Set {
			e.links.Release(host, c.Rcv.Link.Link)
		}
		c.Rcv = HalfConn{}
	} else if c.Snd.LSock == lsock && c.Snd.RSock == rsock {
		weInitiated = !c.Snd.Size.Set
		if c.Snd.Link.Set {
			e.links.Release(host, c.Snd.Link.Link)
		}
		c.Snd = HalfConn{}
	}

	if !weInitiated {
		// Peer-initiated: confirm the exact half the peer just closed, by
		// echoing back the (lsock,rsock) decoded from its CLS — matching
		// ncp.c's process_cls, which replies with ncp_cls(host, lsock,
		// rsock) rather than re-deriving it from whatever half remains.
		e.sendNCP(host, wire.CLSMsg(lsock, rsock))
	}

	if !c.Rcv.Active() && !c.Snd.Active() {
		e.replyClose(idx)
		e.table.Destroy(idx)
	}
	traceFields(logrus.Fields{"host": host, "conn": idx}, "CLS processed")
}

// handleECO answers an echo request immediately (§4.3).
func (e *Engine) handleECO(host wire.Host, m wire.Message) {
	e.sendNCP(host, wire.ERPMsg(m.Byte()))
}

// handleERP completes an outstanding application ECHO (§4.3).
func (e *Engine) handleERP(host wire.Host, m wire.Message) {
	idx := e.table.FindLink(host, wire.LinkEcho)
	if idx < 0 {
		return
	}
	c := e.table.Conn(idx)
	e.sendAppTo(c.Client, wire.EncodeEchoReply(host, m.Byte(), 0x10))
	e.table.Destroy(idx)
}

// handleERR maps a peer ERR citing our own RTS/STR to an OPEN failure
// reply (§4.3, §7).
func (e *Engine) handleERR(host wire.Host, m wire.Message) {
	code, ctx := m.ERR()
	warnFields(logrus.Fields{"host": host, "code": code}, "ERR received")
	if code != wire.ErrSocket && code != wire.ErrConnect {
		return
	}
	opcode, lsock, rsock := wire.ContextSockets(ctx)
	if opcode != wire.RTS && opcode != wire.STR {
		return
	}
	idx := e.table.FindSockets(host, lsock, rsock)
	if idx < 0 {
		return
	}
	sock := rsock
	if sock%2 != 0 {
		sock--
	}
	c := e.table.Conn(idx)
	e.sendAppTo(c.Client, wire.EncodeOpenReply(host, sock, wire.FailConn))
	e.destroyConn(idx)
}

// handleRST destroys every connection for host and replies RRP (§4.3).
func (e *Engine) handleRST(host wire.Host, _ wire.Message) {
	for i := 0; i < Connections; i++ {
		c := e.table.Conn(i)
		if c.Allocated && c.Host == host {
			e.destroyConn(i)
		}
	}
	e.sendNCP(host, wire.RRPMsg())
}

// handleFlowControl validates ALL/GVB/RET/INR/INS against a known
// (host, link) but otherwise only counts them (§4.3, §9: credit-window
// bookkeeping is a future extension).
func (e *Engine) handleFlowControl(host wire.Host, m wire.Message) {
	var link wire.Link
	switch m.Type {
	case wire.ALL, wire.RET:
		link, _, _ = m.ALL()
	case wire.GVB:
		link, _, _ = m.GVB()
	case wire.INR, wire.INS:
		link = m.Link()
	}
	if e.table.FindLink(host, link) < 0 {
		e.sendErr(host, wire.ErrSocket, m)
	}
}

// sendErr emits an ERR reply for a protocol violation encountered while
// processing m (§4.3, §7).
func (e *Engine) sendErr(host wire.Host, code wire.ErrCode, m wire.Message) {
	e.metrics.observeErr(code)
	e.sendNCP(host, wire.ERRMsg(code, m.RawContext()[:]))
}

// sendErrContext emits an ERR reply carrying a pre-built context (§4.3,
// §7), for batch-level decode failures that have no decoded Message to
// build RawContext from.
func (e *Engine) sendErrContext(host wire.Host, code wire.ErrCode, context [10]byte) {
	e.metrics.observeErr(code)
	e.sendNCP(host, wire.ERRMsg(code, context[:]))
}

// replyListen delivers a LISTEN reply to the application once an incoming
// RFC against a listening socket has fully established (§4.3, §6). The
// reported socket is the listening target (snd.lsock, matching ncp.c's
// reply_listen call sites in both process_rts and process_str).
func (e *Engine) replyListen(idx int) {
	c := e.table.Conn(idx)
	e.sendAppTo(c.Client, wire.EncodeListenReply(c.Host, c.Snd.LSock, uint8(idx)))
}

// replyOpen delivers an OPEN reply once an application-initiated RFC has
// fully established (§4.3, §6). The reported socket is rcv.rsock, matching
// ncp.c's reply_open call sites.
func (e *Engine) replyOpen(idx int) {
	c := e.table.Conn(idx)
	e.sendAppTo(c.Client, wire.EncodeOpenReply(c.Host, c.Rcv.RSock, uint8(idx)))
}

// replyClose delivers a CLOSE reply once both halves of a connection have
// cleared (§4.3, §4.5, §6).
func (e *Engine) replyClose(idx int) {
	c := e.table.Conn(idx)
	e.sendAppTo(c.Client, wire.EncodeCloseReply(uint8(idx)))
}
