package engine

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/hostprotocols/ncpd/wire"
)

// Scenario 1 (§8): ECHO round-trips through an ECO/ERP exchange.
func TestScenarioEchoRoundTrip(t *testing.T) {
	e, imp, app := newTestEngine()
	client := fakeAddr("app1")
	host := wire.Host(5)

	e.dispatchApp(client, []byte{byte(wire.CmdEcho), byte(host), 0x42})

	msgs := imp.lastNCP()
	if len(msgs) != 1 || msgs[0].Type != wire.ECO || msgs[0].Byte() != 0x42 {
		t.Fatalf("expected ECO(0x42), got %+v", msgs)
	}

	e.dispatchNCP(host, wire.ERPMsg(0x42))

	want := []byte{byte(wire.CmdEchoOK), byte(host), 0x42, 0x10}
	if got := app.lastReply(); string(got) != string(want) {
		t.Fatalf("echo reply = % x, want % x", got, want)
	}
}

// Scenario 2 (§8): a LISTEN followed by a peer-initiated RFC completes
// with a LISTEN reply naming the listening socket.
func TestScenarioListenIncomingRFC(t *testing.T) {
	e, imp, app := newTestEngine()
	client := fakeAddr("app1")
	host := wire.Host(7)

	var listenReq [5]byte
	listenReq[0] = byte(wire.CmdListen)
	binary.BigEndian.PutUint32(listenReq[1:5], 32)
	e.dispatchApp(client, listenReq[:])

	// Peer RTS targeting our listening socket 32, peer's own sender
	// socket 101, on link 5. The wire layout puts the sender's own
	// socket first, so RTSMsg(101, 32, 5) decodes on our side (via
	// Message.RTS, which swaps perspective) to lsock=32, rsock=101.
	e.dispatchNCP(host, wire.RTSMsg(101, 32, 5))

	msgs := imp.lastNCP()
	if len(msgs) != 1 || msgs[0].Type != wire.STR {
		t.Fatalf("expected STR in reply to RTS, got %+v", msgs)
	}
	// The engine sent STRMsg(32, 101, 8); Message.STR reads it from the
	// receiving peer's side, so it returns lsock=101, rsock=32.
	if lsock, rsock, size := msgs[0].STR(); lsock != 101 || rsock != 32 || size != 8 {
		t.Fatalf("STR params = (%d,%d,%d), want (101,32,8)", lsock, rsock, size)
	}

	// Peer's STR completing the pair's other half, addressed to the
	// paired socket 33.
	e.dispatchNCP(host, wire.STRMsg(101, 33, 8))

	msgs = imp.lastNCP()
	if len(msgs) != 1 || msgs[0].Type != wire.RTS {
		t.Fatalf("expected RTS in reply to STR, got %+v", msgs)
	}

	want := []byte{byte(wire.CmdListenOK), byte(host), 0, 0, 0, 32, 0}
	if got := app.lastReply(); len(got) != 7 || string(got[:6]) != string(want[:6]) {
		t.Fatalf("listen reply = % x, want prefix % x", got, want[:6])
	}
}

// Scenario 3 (§8): an application OPEN whose RTS is rejected by the peer
// surfaces as a failed OPEN reply.
func TestScenarioOpenRejected(t *testing.T) {
	e, imp, app := newTestEngine()
	client := fakeAddr("app1")
	host := wire.Host(5)

	var openReq [6]byte
	openReq[0] = byte(wire.CmdOpen)
	openReq[1] = byte(host)
	binary.BigEndian.PutUint32(openReq[2:6], 100)
	e.dispatchApp(client, openReq[:])

	if len(imp.sent) != 2 {
		t.Fatalf("expected RTS+STR sent for OPEN, got %d frames", len(imp.sent))
	}
	rtsPayload := imp.sent[0][wire.LeaderLen:]
	rtsMsgs, err := wire.DecodeBatch(rtsPayload[6:], int(rtsPayload[2])<<8|int(rtsPayload[3]))
	if err != nil || len(rtsMsgs) != 1 || rtsMsgs[0].Type != wire.RTS {
		t.Fatalf("expected a decodable RTS as the first OPEN frame: %v %+v", err, rtsMsgs)
	}

	// A peer rejecting our RTS echoes its raw wire bytes back as the
	// ERR context (no perspective swap — see Message.RawContext), so
	// this reproduces exactly what arrives over the wire.
	ctx := rtsMsgs[0].RawContext()
	e.dispatchNCP(host, wire.ERRMsg(wire.ErrSocket, ctx[:]))

	want := []byte{byte(wire.CmdOpenOK), byte(host), 0, 0, 0, 100, wire.FailConn}
	if got := app.lastReply(); string(got) != string(want) {
		t.Fatalf("open-rejected reply = % x, want % x", got, want)
	}
}

// Scenario 4 (§8): an application CLOSE emits CLS for both halves; once
// the peer echoes both, the slot frees and a CLOSE reply is delivered.
func TestScenarioConcurrentHalfClose(t *testing.T) {
	e, _, app := newTestEngine()
	client := fakeAddr("app1")
	host := wire.Host(9)

	idx := e.table.Allocate()
	c := e.table.Conn(idx)
	c.Host = host
	c.Client = client
	c.Rcv = HalfConn{LSock: 40, RSock: 41, Link: OptLink{Link: 10, Set: true}, Size: OptSize{Size: 8, Set: true}}
	c.Snd = HalfConn{LSock: 41, RSock: 40, Link: OptLink{Link: 11, Set: true}, Size: OptSize{Size: 8, Set: true}}

	e.dispatchApp(client, []byte{byte(wire.CmdClose), uint8(idx)})

	if c.Rcv.Size.Set || c.Snd.Size.Set {
		t.Fatalf("CLOSE should mark both halves as locally closing")
	}

	// CLSMsg's wire layout puts the sender's own socket first, which
	// Message.CLS then reads back with the perspective swapped (as RTS
	// and STR do); CLSMsg(41, 40) is what a peer would send to close
	// the (lsock=40, rsock=41) half as we see it.
	e.dispatchNCP(host, wire.CLSMsg(41, 40))
	if !e.table.Conn(idx).Allocated {
		t.Fatalf("slot freed after only one half cleared")
	}

	e.dispatchNCP(host, wire.CLSMsg(40, 41))

	if e.table.Conn(idx).Allocated {
		t.Fatalf("slot should be free once both halves clear")
	}
	want := []byte{byte(wire.CmdCloseOK), uint8(idx)}
	if got := app.lastReply(); string(got) != string(want) {
		t.Fatalf("close reply = % x, want % x", got, want)
	}
}

// Scenario 4 variant (§8): when the peer closes first (neither half has
// been marked locally closing), handleCLS must echo a CLS confirming the
// exact half the peer named, not whichever half happens to remain active.
func TestScenarioPeerInitiatedCLSEchoesSameHalf(t *testing.T) {
	e, imp, _ := newTestEngine()
	client := fakeAddr("app1")
	host := wire.Host(9)

	idx := e.table.Allocate()
	c := e.table.Conn(idx)
	c.Host = host
	c.Client = client
	c.Rcv = HalfConn{LSock: 40, RSock: 41, Link: OptLink{Link: 10, Set: true}, Size: OptSize{Size: 8, Set: true}}
	c.Snd = HalfConn{LSock: 41, RSock: 40, Link: OptLink{Link: 11, Set: true}, Size: OptSize{Size: 8, Set: true}}

	// Peer closes the (lsock=40, rsock=41) half; CLSMsg(41,40) decodes to
	// that pair under the same perspective swap used throughout (see the
	// comment in TestScenarioConcurrentHalfClose).
	e.dispatchNCP(host, wire.CLSMsg(41, 40))

	if !e.table.Conn(idx).Allocated {
		t.Fatalf("slot must stay allocated until the remaining half also clears")
	}
	if c.Rcv.Active() {
		t.Fatalf("the named half must have been cleared")
	}
	if !c.Snd.Active() {
		t.Fatalf("the other half must be untouched")
	}

	// The echo must confirm (lsock=40, rsock=41) — the half the peer
	// closed — not (lsock=41, rsock=40), the half that's still open.
	msgs := imp.lastNCP()
	want := wire.CLSMsg(40, 41)
	if len(msgs) != 1 || msgs[0].Type != wire.CLS || !bytes.Equal(msgs[0].Params, want.Params) {
		t.Fatalf("CLS echo = %+v, want params matching CLSMsg(40,41) (the closed half)", msgs)
	}
}

// Scenario 5 (§8): an unknown opcode in a batch draws ERR/OPCODE with
// context and stops processing.
func TestScenarioBadOpcode(t *testing.T) {
	e, imp, _ := newTestEngine()
	host := wire.Host(3)

	payload := make([]byte, 7)
	payload[1] = 8
	payload[3] = 1 // count = 1
	payload[6] = 99

	e.dispatchControlBatch(host, payload)

	msgs := imp.lastNCP()
	if len(msgs) != 1 || msgs[0].Type != wire.ERR {
		t.Fatalf("expected ERR reply, got %+v", msgs)
	}
	code, data := msgs[0].ERR()
	if code != wire.ErrOpcode || data[0] != 99 {
		t.Fatalf("ERR = (%v, % x), want (OPCODE, [99 ...])", code, data)
	}
}

// Scenario 6 (§8): RTS naming a link outside [2,71] draws ERR/PARAM and
// leaves the table unchanged.
func TestScenarioLinkOutOfRange(t *testing.T) {
	e, imp, _ := newTestEngine()
	host := wire.Host(4)

	e.dispatchNCP(host, wire.RTSMsg(1, 2, 100))

	msgs := imp.lastNCP()
	if len(msgs) != 1 || msgs[0].Type != wire.ERR {
		t.Fatalf("expected ERR reply, got %+v", msgs)
	}
	if code, _ := msgs[0].ERR(); code != wire.ErrParam {
		t.Fatalf("ERR code = %v, want PARAM", code)
	}
	for i := 0; i < Connections; i++ {
		if e.table.Conn(i).Allocated {
			t.Fatalf("RTS with bad link must not allocate a slot")
		}
	}
}

func TestDestroyFreeSlotIsNoop(t *testing.T) {
	var tbl Table
	tbl.Destroy(0)
	if tbl.Conn(0).Allocated {
		t.Fatalf("destroying a free slot must not allocate it")
	}
}

func TestAllocateFullTableReturnsNegativeOne(t *testing.T) {
	var tbl Table
	for i := 0; i < Connections; i++ {
		if idx := tbl.Allocate(); idx != i {
			t.Fatalf("allocate #%d = %d, want %d", i, idx, i)
		}
	}
	if idx := tbl.Allocate(); idx != -1 {
		t.Fatalf("allocate on full table = %d, want -1", idx)
	}
}

func TestLinkPoolExhaustion(t *testing.T) {
	p := NewLinkPool()
	host := wire.Host(1)
	seen := map[wire.Link]bool{}
	for l := wire.LinkMin; l <= wire.LinkMax; l++ {
		link, ok := p.Acquire(host)
		if !ok {
			t.Fatalf("pool exhausted early at link %d", l)
		}
		if seen[link] {
			t.Fatalf("link %d handed out twice", link)
		}
		seen[link] = true
	}
	if _, ok := p.Acquire(host); ok {
		t.Fatalf("pool should be exhausted after handing out every data link")
	}
	p.Release(host, wire.LinkMin)
	if link, ok := p.Acquire(host); !ok || link != wire.LinkMin {
		t.Fatalf("released link should be reusable, got (%d,%v)", link, ok)
	}
}

func TestSocketAllocatorPairsAreDistinctAndMonotonic(t *testing.T) {
	a := NewSocketAllocator()
	s1, r1 := a.Pair()
	s2, r2 := a.Pair()
	if s1 == r1 || s2 == r2 || s1 == s2 || r1 == r2 {
		t.Fatalf("socket pairs must be pairwise distinct: (%d,%d) (%d,%d)", s1, r1, s2, r2)
	}
	if s2 <= s1 || r2 <= r1 {
		t.Fatalf("allocator must be monotonic: (%d,%d) then (%d,%d)", s1, r1, s2, r2)
	}
}
