package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrTruncated signals a message batch that ends mid-parameter.
var ErrTruncated = errors.New("ncp: truncated message parameters")

// ErrUnknownType signals an opcode outside the defined Type range.
var ErrUnknownType = errors.New("ncp: unknown message type")

// Message is one decoded NCP control message together with its raw
// parameter bytes, still in wire order.
type Message struct {
	Type   Type
	Params []byte
}

// RTS, STR and CLS all carry a socket pair laid out, on the wire, as
// (sender's own socket, sender's view of the peer's socket) — that is how
// RTSMsg/STRMsg/CLSMsg write them when this engine is the sender. A
// decoder therefore reads the pair from the OTHER side's perspective: wire
// field 0 is the remote's own socket, which from here is the rsock, and
// wire field 1 is the remote's idea of our socket, which from here is the
// lsock we registered (by LISTEN or by a prior OPEN). The swap is the
// wire format's, not a local convention, so it lives here rather than in
// engine code.

// RTS returns our target socket, the remote's socket, and the link the
// remote proposes to send on. Valid only when Type == RTS.
func (m Message) RTS() (lsock, rsock Socket, link Link) {
	rsock = Socket(binary.BigEndian.Uint32(m.Params[0:4]))
	lsock = Socket(binary.BigEndian.Uint32(m.Params[4:8]))
	link = Link(m.Params[8])
	return
}

// STR returns our target socket, the remote's socket, and the byte size
// the remote will send with. Valid only when Type == STR.
func (m Message) STR() (lsock, rsock Socket, size uint8) {
	rsock = Socket(binary.BigEndian.Uint32(m.Params[0:4]))
	lsock = Socket(binary.BigEndian.Uint32(m.Params[4:8]))
	size = m.Params[8]
	return
}

// CLS returns our socket and the remote's socket for the half being
// closed. Valid only when Type == CLS.
func (m Message) CLS() (lsock, rsock Socket) {
	rsock = Socket(binary.BigEndian.Uint32(m.Params[0:4]))
	lsock = Socket(binary.BigEndian.Uint32(m.Params[4:8]))
	return
}

// ALL returns the link, message-space and bit-space. Valid only when
// Type == ALL or Type == RET (same layout).
func (m Message) ALL() (link Link, msgSpace uint16, bitSpace uint32) {
	return Link(m.Params[0]),
		binary.BigEndian.Uint16(m.Params[1:3]),
		binary.BigEndian.Uint32(m.Params[3:7])
}

// GVB returns the link, free-message and free-bit counts. Valid only when
// Type == GVB.
func (m Message) GVB() (link Link, fm, fb uint8) {
	return Link(m.Params[0]), m.Params[1], m.Params[2]
}

// Link returns the single link parameter. Valid only for INR and INS.
func (m Message) Link() Link {
	return Link(m.Params[0])
}

// Byte returns the single data byte. Valid for ECO and ERP.
func (m Message) Byte() byte {
	return m.Params[0]
}

// ERR returns the error code and up to 10 bytes of offending context.
// Valid only when Type == ERR.
func (m Message) ERR() (code ErrCode, data [10]byte) {
	code = ErrCode(m.Params[0])
	copy(data[:], m.Params[1:11])
	return
}

// RawContext packs this message's type tag and up to 9 bytes of its own
// parameters, verbatim off the wire, for use as the context of an ERR
// reply to the peer (§4.3, §7: "up to 10 bytes of the offending
// message").
func (m Message) RawContext() [10]byte {
	var ctx [10]byte
	ctx[0] = byte(m.Type)
	copy(ctx[1:], m.Params)
	return ctx
}

// ContextSockets reads the socket pair out of an ERR's 10-byte context as
// originally sent by this engine: context[0] is the echoed opcode,
// context[1:5] and context[5:9] are our own (lsock, rsock) from the RTS or
// STR we transmitted, in our own sending order — no perspective swap,
// because this engine is reading back its own prior wire bytes rather
// than a peer's.
func ContextSockets(context [10]byte) (opcode Type, lsock, rsock Socket) {
	opcode = Type(context[0])
	lsock = Socket(binary.BigEndian.Uint32(context[1:5]))
	rsock = Socket(binary.BigEndian.Uint32(context[5:9]))
	return
}

// linkPrefix is the fixed 6-byte header preceding the type-tagged batch:
// zero, byte-size (always 8), a 16-bit byte count, a zero pad byte, and
// one more byte that EncodeBatch leaves zero.
const linkPrefixLen = 6

// EncodeBatch renders a sequence of messages into a single link-0 frame
// payload (fixed prefix followed by type-tagged parameters). Count is the
// number of parameter+tag bytes following the prefix, matching the
// reference's 16-bit count field.
func EncodeBatch(msgs ...Message) ([]byte, error) {
	var body []byte
	for _, m := range msgs {
		want, ok := m.Type.ParamLen()
		if !ok {
			return nil, fmt.Errorf("ncp: %w: %d", ErrUnknownType, m.Type)
		}
		if len(m.Params) != want {
			return nil, fmt.Errorf("ncp: %s parameter length %d, want %d", m.Type, len(m.Params), want)
		}
		body = append(body, byte(m.Type))
		body = append(body, m.Params...)
	}

	out := make([]byte, linkPrefixLen+len(body))
	out[0] = 0
	out[1] = 8 // byte size
	binary.BigEndian.PutUint16(out[2:4], uint16(len(body)))
	out[4] = 0
	copy(out[linkPrefixLen:], body)
	return out, nil
}

// DecodeBatch parses the type-tagged message stream following the 6-byte
// link prefix (count is already known to the caller, typically read from
// the link prefix's count field by the IMP dispatcher per §4.4). It stops
// and returns what it has decoded so far plus a non-nil error on the first
// unknown opcode or truncated parameter region, matching §4.3's "stop
// processing the batch" rule; callers still owe the peer an ERR reply for
// that condition (see engine.dispatchControlBatch).
func DecodeBatch(body []byte, count int) ([]Message, error) {
	if count > len(body) {
		count = len(body)
	}
	var msgs []Message
	i := 0
	for i < count {
		t := Type(body[i])
		i++
		n, ok := t.ParamLen()
		if !ok {
			return msgs, &UnknownOpcodeError{Type: t, Context: contextOf(body, i-1)}
		}
		if i+n > count {
			return msgs, &ShortParamsError{Type: t, Remaining: count - i, Context: contextOf(body, i-1)}
		}
		msgs = append(msgs, Message{Type: t, Params: body[i : i+n]})
		i += n
	}
	return msgs, nil
}

// contextOf copies up to 10 bytes starting at the type tag, for echoing
// back in an ERR reply per §4.3/§7.
func contextOf(body []byte, at int) [10]byte {
	var ctx [10]byte
	n := copy(ctx[:], body[at:])
	_ = n
	return ctx
}

// UnknownOpcodeError is returned by DecodeBatch for a tag past MaxType.
type UnknownOpcodeError struct {
	Type    Type
	Context [10]byte
}

func (e *UnknownOpcodeError) Error() string {
	return fmt.Sprintf("ncp: unknown opcode %d", uint8(e.Type))
}

// ShortParamsError is returned by DecodeBatch when the batch ends before a
// message's full parameter region arrives.
type ShortParamsError struct {
	Type      Type
	Remaining int
	Context   [10]byte
}

func (e *ShortParamsError) Error() string {
	return fmt.Sprintf("ncp: short parameter space for %s, %d bytes remaining", e.Type, e.Remaining)
}

// RTSMsg encodes a Request-To-Send message.
func RTSMsg(lsock, rsock Socket, link Link) Message {
	p := make([]byte, 9)
	binary.BigEndian.PutUint32(p[0:4], uint32(lsock))
	binary.BigEndian.PutUint32(p[4:8], uint32(rsock))
	p[8] = byte(link)
	return Message{Type: RTS, Params: p}
}

// STRMsg encodes a Sender-To-Receiver message.
func STRMsg(lsock, rsock Socket, size uint8) Message {
	p := make([]byte, 9)
	binary.BigEndian.PutUint32(p[0:4], uint32(lsock))
	binary.BigEndian.PutUint32(p[4:8], uint32(rsock))
	p[8] = size
	return Message{Type: STR, Params: p}
}

// CLSMsg encodes a Close message.
func CLSMsg(lsock, rsock Socket) Message {
	p := make([]byte, 8)
	binary.BigEndian.PutUint32(p[0:4], uint32(lsock))
	binary.BigEndian.PutUint32(p[4:8], uint32(rsock))
	return Message{Type: CLS, Params: p}
}

// ALLMsg encodes an Allocate message.
func ALLMsg(link Link, msgSpace uint16, bitSpace uint32) Message {
	return allOrRet(ALL, link, msgSpace, bitSpace)
}

// RETMsg encodes a Return message.
func RETMsg(link Link, msgSpace uint16, bitSpace uint32) Message {
	return allOrRet(RET, link, msgSpace, bitSpace)
}

func allOrRet(t Type, link Link, msgSpace uint16, bitSpace uint32) Message {
	p := make([]byte, 7)
	p[0] = byte(link)
	binary.BigEndian.PutUint16(p[1:3], msgSpace)
	binary.BigEndian.PutUint32(p[3:7], bitSpace)
	return Message{Type: t, Params: p}
}

// GVBMsg encodes a Give-Back message.
func GVBMsg(link Link, fm, fb uint8) Message {
	return Message{Type: GVB, Params: []byte{byte(link), fm, fb}}
}

// INRMsg encodes a receiver-initiated Interrupt message.
func INRMsg(link Link) Message {
	return Message{Type: INR, Params: []byte{byte(link)}}
}

// INSMsg encodes a sender-initiated Interrupt message.
func INSMsg(link Link) Message {
	return Message{Type: INS, Params: []byte{byte(link)}}
}

// ECOMsg encodes an Echo message.
func ECOMsg(data byte) Message {
	return Message{Type: ECO, Params: []byte{data}}
}

// ERPMsg encodes an Echo-Reply message.
func ERPMsg(data byte) Message {
	return Message{Type: ERP, Params: []byte{data}}
}

// ERRMsg encodes an Error message, truncating or zero-padding context to
// exactly 10 bytes per §4.1.
func ERRMsg(code ErrCode, context []byte) Message {
	p := make([]byte, 11)
	p[0] = byte(code)
	copy(p[1:11], context)
	return Message{Type: ERR, Params: p}
}

// RSTMsg encodes a Reset message.
func RSTMsg() Message { return Message{Type: RST} }

// RRPMsg encodes a Reset-Reply message.
func RRPMsg() Message { return Message{Type: RRP} }

// NOPMsg encodes a no-operation message.
func NOPMsg() Message { return Message{Type: NOP} }
