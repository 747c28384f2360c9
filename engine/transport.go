package engine

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/higebu/netfd"
)

// IMPDriver is the engine's view of the IMP link layer (§6, out of scope
// for this package to implement in full): it sends and receives framed
// leader+payload messages and reports host-ready transitions. The engine
// never owns the physical transport; it only drives this interface.
type IMPDriver interface {
	// Send transmits frame, which already has the 12-byte leader encoded
	// at its start, as words 16-bit words.
	Send(frame []byte, words int) error

	// Receive blocks until a frame is available and returns its length.
	// buf must be large enough for the driver's maximum frame.
	Receive(buf []byte) (int, error)

	// HostReady tells the driver whether this host considers itself up.
	HostReady(ready bool) error

	// OnReady installs a callback invoked when the IMP link itself
	// toggles up or down. Only one callback is retained.
	OnReady(func(ready bool))

	// Fd returns the readiness file descriptor for the reactor's poll
	// loop.
	Fd() int
}

// lengthPrefixedIMP is a reference IMPDriver over any net.Conn, framing
// each message with a 32-bit big-endian byte count ahead of the leader.
// It stands in for a real IMP line driver in the absence of dedicated
// ARPANET IMP hardware; the engine tests use an in-memory fake instead.
type lengthPrefixedIMP struct {
	conn    net.Conn
	onReady func(bool)
	fd      int
}

// NewLengthPrefixedIMP wraps conn as an IMPDriver. conn is typically a TCP
// connection to an IMP line-driver process.
func NewLengthPrefixedIMP(conn net.Conn) IMPDriver {
	return &lengthPrefixedIMP{conn: conn, fd: netfd.GetFdFromConn(conn)}
}

func (d *lengthPrefixedIMP) Send(frame []byte, words int) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(frame)))
	if _, err := d.conn.Write(hdr[:]); err != nil {
		return fmt.Errorf("ncp: imp send header: %w", err)
	}
	_, err := d.conn.Write(frame)
	return err
}

func (d *lengthPrefixedIMP) Receive(buf []byte) (int, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(d.conn, hdr[:]); err != nil {
		return 0, err
	}
	n := int(binary.BigEndian.Uint32(hdr[:]))
	if n > len(buf) {
		return 0, fmt.Errorf("ncp: imp frame of %d bytes exceeds buffer", n)
	}
	if _, err := io.ReadFull(d.conn, buf[:n]); err != nil {
		return 0, err
	}
	return n, nil
}

func (d *lengthPrefixedIMP) HostReady(ready bool) error {
	var b byte
	if ready {
		b = 1
	}
	_, err := d.conn.Write([]byte{0xff, b})
	return err
}

func (d *lengthPrefixedIMP) OnReady(cb func(bool)) { d.onReady = cb }

func (d *lengthPrefixedIMP) Fd() int { return d.fd }

// AppTransport is the engine's application-facing datagram channel (§6):
// a Unix SOCK_DGRAM endpoint bound to the path named by the NCP
// environment variable. net.PacketConn already exposes exactly the
// ReadFrom/WriteTo shape the application command handler needs.
type AppTransport interface {
	net.PacketConn
	Fd() int
}

type unixAppTransport struct {
	*net.UnixConn
	fd int
}

// NewUnixAppTransport wraps a bound *net.UnixConn as an AppTransport,
// extracting its raw descriptor for the reactor's poll loop.
func NewUnixAppTransport(conn *net.UnixConn) AppTransport {
	return &unixAppTransport{UnixConn: conn, fd: netfd.GetFdFromConn(conn)}
}

func (t *unixAppTransport) Fd() int { return t.fd }
