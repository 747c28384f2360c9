package engine

import (
	"net"

	"github.com/sirupsen/logrus"

	"github.com/hostprotocols/ncpd/wire"
)

// dispatchApp applies one application command frame from addr (§4.5),
// translating it into table mutations and NCP/IMP traffic. Like
// dispatchNCP, this is the sole mutation point for its input class and
// never runs concurrently with the NCP or IMP dispatchers (§5).
func (e *Engine) dispatchApp(addr net.Addr, frame []byte) {
	if len(frame) == 0 {
		return
	}
	defer e.recordOccupancy()
	cmd := wire.AppCmd(frame[0])
	if !wire.Validate(cmd, len(frame)) {
		warnFields(logrus.Fields{"cmd": cmd, "len": len(frame)}, "malformed application frame")
		return
	}
	switch cmd {
	case wire.CmdEcho:
		e.appEcho(addr, wire.DecodeEchoReq(frame))
	case wire.CmdOpen:
		e.appOpen(addr, wire.DecodeOpenReq(frame))
	case wire.CmdListen:
		e.appListen(addr, wire.DecodeListenReq(frame))
	case wire.CmdRead:
		e.appRead(addr, wire.DecodeReadReq(frame))
	case wire.CmdWrite:
		e.appWrite(addr, wire.DecodeWriteReq(frame))
	case wire.CmdInterrupt:
		e.appInterrupt(addr, wire.DecodeInterruptReq(frame))
	case wire.CmdClose:
		e.appClose(addr, wire.DecodeCloseReq(frame))
	default:
		warnFields(logrus.Fields{"cmd": cmd}, "bad application request")
	}
}

// appEcho implements §4.5 ECHO: allocate a slot keyed on the echo
// pseudo-link, remember the client, and emit an NCP ECO.
func (e *Engine) appEcho(addr net.Addr, req wire.EchoReq) {
	idx := e.table.Allocate()
	if idx < 0 {
		warnFields(logrus.Fields{"host": req.Host, "err": errConnTableFull}, "connection table full on ECHO")
		return
	}
	c := e.table.Conn(idx)
	c.Host = req.Host
	c.Client = addr
	c.Rcv.Link = wire.OptLink{Link: wire.LinkEcho, Set: true}
	e.sendNCP(req.Host, wire.ECOMsg(req.Data))
}

// appOpen implements §4.5 OPEN: allocate a slot, assign fresh local
// sockets for each half via the socket allocator (replacing the
// reference's hard-coded 1002/1003, per §9), a data link via the link
// pool (replacing the hard-coded 42), and emit both RFC messages.
func (e *Engine) appOpen(addr net.Addr, req wire.OpenReq) {
	idx := e.table.Allocate()
	if idx < 0 {
		warnFields(logrus.Fields{"host": req.Host, "err": errConnTableFull}, "connection table full on OPEN")
		e.sendAppTo(addr, wire.EncodeOpenReply(req.Host, req.Socket, wire.FailConn))
		return
	}
	link, ok := e.links.Acquire(req.Host)
	if !ok {
		warnFields(logrus.Fields{"host": req.Host}, "no free data link for OPEN")
		e.table.Destroy(idx)
		e.sendAppTo(addr, wire.EncodeOpenReply(req.Host, req.Socket, wire.FailConn))
		return
	}
	sndLocal, rcvLocal := e.socks.Pair()

	c := e.table.Conn(idx)
	c.Host = req.Host
	c.Client = addr
	c.Snd.LSock = sndLocal
	c.Snd.RSock = req.Socket + 1
	c.Rcv.LSock = rcvLocal
	c.Rcv.RSock = req.Socket
	c.Rcv.Link = wire.OptLink{Link: link, Set: true}
	c.Rcv.Size = wire.OptSize{Size: 8, Set: true}

	e.sendNCP(req.Host, wire.RTSMsg(c.Snd.LSock, c.Snd.RSock, link))
	e.sendNCP(req.Host, wire.STRMsg(c.Rcv.LSock, c.Rcv.RSock, 8))
	traceFields(logrus.Fields{"host": req.Host, "conn": idx}, "OPEN issued")
}

// appListen implements §4.5 LISTEN.
func (e *Engine) appListen(addr net.Addr, req wire.ListenReq) {
	if li := e.table.FindListen(req.Socket); li >= 0 {
		e.sendAppTo(addr, wire.EncodeListenReply(0, req.Socket, 0))
		return
	}
	li := e.table.AllocateListen()
	if li < 0 {
		warnFields(logrus.Fields{"socket": req.Socket, "err": errListenTableFull}, "listening table full")
		e.sendAppTo(addr, wire.EncodeListenReply(0, req.Socket, 0))
		return
	}
	l := e.table.Listen(li)
	l.Sock = req.Socket
	l.Client = addr
}

// appRead implements §4.5 READ: request message/bit allocation on the
// connection's receive link.
func (e *Engine) appRead(addr net.Addr, req wire.ReadReq) {
	c, ok := e.connAt(req.Conn)
	if !ok {
		warnFields(logrus.Fields{"conn": req.Conn}, "READ on unknown connection")
		return
	}
	e.sendNCP(c.Host, wire.ALLMsg(c.Rcv.Link.Link, 1, uint32(req.NOctets)*8))
}

// appWrite implements §4.5 WRITE: forward the payload as IMP Regular
// traffic on the connection's send link, then reply.
func (e *Engine) appWrite(addr net.Addr, req wire.WriteReq) {
	c, ok := e.connAt(req.Conn)
	if !ok {
		warnFields(logrus.Fields{"conn": req.Conn}, "WRITE on unknown connection")
		return
	}
	e.sendRegular(c.Host, c.Snd.Link.Link, req.Payload)
	e.sendAppTo(addr, wire.EncodeWriteReply(req.Conn))
}

// appInterrupt implements §4.5 INTERRUPT.
func (e *Engine) appInterrupt(addr net.Addr, req wire.InterruptReq) {
	c, ok := e.connAt(req.Conn)
	if !ok {
		warnFields(logrus.Fields{"conn": req.Conn}, "INTERRUPT on unknown connection")
		return
	}
	e.sendNCP(c.Host, wire.INSMsg(c.Snd.Link.Link))
}

// appClose implements §4.5 CLOSE: mark both halves as locally closing and
// emit CLS for each, matching the reference's `size = -1` close marker.
func (e *Engine) appClose(addr net.Addr, req wire.CloseReq) {
	c, ok := e.connAt(req.Conn)
	if !ok {
		warnFields(logrus.Fields{"conn": req.Conn}, "CLOSE on unknown connection")
		return
	}
	c.Rcv.Size = wire.OptSize{}
	c.Snd.Size = wire.OptSize{}
	if c.Rcv.Active() {
		e.sendNCP(c.Host, wire.CLSMsg(c.Rcv.LSock, c.Rcv.RSock))
	}
	if c.Snd.Active() {
		e.sendNCP(c.Host, wire.CLSMsg(c.Snd.LSock, c.Snd.RSock))
	}
}
