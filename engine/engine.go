package engine

import (
	"net"
	"time"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/hostprotocols/ncpd/wire"
)

// Config are the engine's construction-time parameters, validated by
// check() the way the teacher's session.TCPConfig is (no flag/env
// parsing here; the embedding program resolves those, see cmd/ncpd).
type Config struct {
	// PrimeInterval spaces the start-up NOP sequence (§5). Defaults to
	// one second, matching the reference's informal "roughly one second
	// apart".
	PrimeInterval time.Duration
}

func (c *Config) check() {
	if c.PrimeInterval <= 0 {
		c.PrimeInterval = time.Second
	}
}

// Engine ties the connection table, link and socket allocators, metrics
// and transports together and is the receiver for every dispatcher
// method in this package. It holds all process state; per §5 nothing
// here is touched by more than one goroutine; the reactor is the only
// caller of its dispatch entry points.
type Engine struct {
	cfg     Config
	bootID  xid.ID
	table   *Table
	links   *LinkPool
	socks   *SocketAllocator
	metrics *Metrics

	imp IMPDriver
	app AppTransport
}

// New constructs an Engine over the given transports. metrics may be nil.
func New(cfg Config, imp IMPDriver, app AppTransport, metrics *Metrics) *Engine {
	cfg.check()
	e := &Engine{
		cfg:     cfg,
		bootID:  xid.New(),
		table:   &Table{},
		links:   NewLinkPool(),
		socks:   NewSocketAllocator(),
		metrics: metrics,
		imp:     imp,
		app:     app,
	}
	log.WithFields(logrus.Fields{"boot": e.bootID.String()}).Info("ncp engine starting")
	return e
}

// connAt returns connection slot idx if it is both in range and
// allocated; the application command frames carry connection indices as
// a single untrusted byte (§6), so every lookup must be bounds-checked
// before indexing the table.
func (e *Engine) connAt(idx uint8) (*ConnSlot, bool) {
	if int(idx) >= Connections {
		return nil, false
	}
	c := e.table.Conn(int(idx))
	return c, c.Allocated
}

// destroyConn releases any data link still held by slot idx back to the
// per-host pool before freeing the slot, so a closed connection's link
// becomes available to a future RTS/STR/OPEN on that host.
func (e *Engine) destroyConn(idx int) {
	c := e.table.Conn(idx)
	if c.Rcv.Link.Set {
		e.links.Release(c.Host, c.Rcv.Link.Link)
	}
	if c.Snd.Link.Set {
		e.links.Release(c.Host, c.Snd.Link.Link)
	}
	e.table.Destroy(idx)
}

// Prime issues the start-up sequence the reference peer expects (§5,
// §9/SUPPLEMENTED FEATURES): host-ready, then three NOPs spaced
// cfg.PrimeInterval apart. It blocks for roughly 2*PrimeInterval.
func (e *Engine) Prime() error {
	if err := e.imp.HostReady(true); err != nil {
		return err
	}
	for i := 0; i < 3; i++ {
		if i > 0 {
			time.Sleep(e.cfg.PrimeInterval)
		}
		e.broadcastNOP()
	}
	return nil
}

// broadcastNOP emits a single NOP to host 0, the reference's keep-alive
// target; a real deployment has exactly one peer host at a time.
func (e *Engine) broadcastNOP() {
	e.sendNCP(0, wire.NOPMsg())
}

// sendNCP batches msgs onto a single link-0 IMP Regular frame addressed
// to host and hands it to the IMP driver (§4.1, §4.3).
func (e *Engine) sendNCP(host wire.Host, msgs ...wire.Message) {
	body, err := wire.EncodeBatch(msgs...)
	if err != nil {
		errorFields(logrus.Fields{"host": host}, "encode NCP batch: %v", err)
		return
	}
	frame := wire.NewFrame(wire.Leader{Type: wire.Regular, Host: host, Link: wire.LinkControl}, body)
	if err := e.imp.Send(frame, wire.WordCount(len(frame))); err != nil {
		errorFields(logrus.Fields{"host": host}, "imp send: %v", err)
	}
}

// sendRegular forwards an application WRITE payload as IMP Regular
// traffic on a data link (§4.4, §4.5).
func (e *Engine) sendRegular(host wire.Host, link wire.Link, payload []byte) {
	frame := wire.NewFrame(wire.Leader{Type: wire.Regular, Host: host, Link: link}, payload)
	if err := e.imp.Send(frame, wire.WordCount(len(frame))); err != nil {
		errorFields(logrus.Fields{"host": host, "link": link}, "imp send: %v", err)
	}
}

// recordOccupancy refreshes the table occupancy gauges after a dispatch
// step that may have allocated or freed slots.
func (e *Engine) recordOccupancy() {
	conns, listens := 0, 0
	for i := 0; i < Connections; i++ {
		if e.table.Conn(i).Allocated {
			conns++
		}
		if e.table.Listen(i).Allocated {
			listens++
		}
	}
	e.metrics.setOccupancy(conns, listens)
}

// sendAppTo delivers a reply frame to the application that originated a
// request, logging rather than failing the engine on a transmission
// error (§7: "system errors ... log and continue").
func (e *Engine) sendAppTo(addr net.Addr, frame []byte) {
	if addr == nil {
		return
	}
	if _, err := e.app.WriteTo(frame, addr); err != nil {
		errorFields(logrus.Fields{"addr": addr}, "app reply: %v", err)
	}
}
