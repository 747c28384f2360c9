package engine

import (
	"net"
	"time"

	"github.com/hostprotocols/ncpd/wire"
)

// fakeIMP is an in-memory IMPDriver: Send appends the raw frame for the
// test to inspect; Receive/OnReady are unused by tests that drive the
// dispatchers directly rather than running a Reactor, matching how the
// teacher's session.Pipe stands in for a real transport in unit tests.
type fakeIMP struct {
	sent      [][]byte
	readyCall []bool
}

func (f *fakeIMP) Send(frame []byte, words int) error {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	f.sent = append(f.sent, cp)
	return nil
}

func (f *fakeIMP) Receive(buf []byte) (int, error) { return 0, nil }

func (f *fakeIMP) HostReady(ready bool) error {
	f.readyCall = append(f.readyCall, ready)
	return nil
}

func (f *fakeIMP) OnReady(func(bool)) {}

func (f *fakeIMP) Fd() int { return -1 }

// lastNCP decodes the NCP batch from the most recently sent frame.
func (f *fakeIMP) lastNCP() []wire.Message {
	if len(f.sent) == 0 {
		return nil
	}
	frame := f.sent[len(f.sent)-1]
	payload := frame[wire.LeaderLen:]
	count := int(payload[2])<<8 | int(payload[3])
	msgs, _ := wire.DecodeBatch(payload[6:], count)
	return msgs
}

// fakeAddr is a trivial net.Addr for identifying test clients.
type fakeAddr string

func (a fakeAddr) Network() string { return "fake" }
func (a fakeAddr) String() string  { return string(a) }

// fakeApp is an in-memory AppTransport: WriteTo records the reply frame
// addressed to its recipient so tests can assert on application traffic
// without a real Unix datagram socket.
type fakeApp struct {
	replies []appReply
}

type appReply struct {
	addr  net.Addr
	frame []byte
}

func (f *fakeApp) WriteTo(b []byte, addr net.Addr) (int, error) {
	cp := make([]byte, len(b))
	copy(cp, b)
	f.replies = append(f.replies, appReply{addr: addr, frame: cp})
	return len(b), nil
}

func (f *fakeApp) ReadFrom(b []byte) (int, net.Addr, error) { return 0, nil, nil }
func (f *fakeApp) Close() error                             { return nil }
func (f *fakeApp) LocalAddr() net.Addr                      { return fakeAddr("local") }
func (f *fakeApp) SetDeadline(time.Time) error              { return nil }
func (f *fakeApp) SetReadDeadline(time.Time) error          { return nil }
func (f *fakeApp) SetWriteDeadline(time.Time) error         { return nil }
func (f *fakeApp) Fd() int                                  { return -1 }

// lastReply returns the most recently recorded application reply frame.
func (f *fakeApp) lastReply() []byte {
	if len(f.replies) == 0 {
		return nil
	}
	return f.replies[len(f.replies)-1].frame
}

func newTestEngine() (*Engine, *fakeIMP, *fakeApp) {
	imp := &fakeIMP{}
	app := &fakeApp{}
	e := New(Config{PrimeInterval: time.Millisecond}, imp, app, nil)
	return e, imp, app
}
