package wire

import "errors"

// LeaderLen is the fixed leader prefix length in bytes.
const LeaderLen = 12

// ErrShortLeader signals a frame shorter than LeaderLen.
var ErrShortLeader = errors.New("ncp: leader shorter than 12 bytes")

// Leader is the decoded 12-byte host↔IMP prefix. Fields beyond Type,
// Dest/Source, Link and Subtype are reference-layout scratch this engine
// does not interpret; the implementer may reshape the encoding as long as
// the externally observed bytes match (§4.1).
type Leader struct {
	Flags   uint8
	Type    LeaderType
	Host    Host // destination on send, source on receive
	Link    Link
	ID      uint8
	Subtype uint8
}

// DecodeLeader parses the first LeaderLen bytes of a frame received from
// the IMP driver. The payload starts at frame[LeaderLen:].
func DecodeLeader(frame []byte) (Leader, error) {
	if len(frame) < LeaderLen {
		return Leader{}, ErrShortLeader
	}
	b0 := frame[0]
	return Leader{
		Flags:   b0 >> 4,
		Type:    LeaderType(b0 & 0x0f),
		Host:    Host(frame[1]),
		Link:    Link(frame[2]),
		ID:      frame[3] >> 4,
		Subtype: frame[3] & 0x0f,
	}, nil
}

// EncodeLeader writes the 12-byte leader into the first LeaderLen bytes of
// buf, which must be at least LeaderLen long; the caller appends payload
// starting at buf[LeaderLen:].
func EncodeLeader(buf []byte, l Leader) {
	buf[0] = l.Flags<<4 | byte(l.Type)
	buf[1] = byte(l.Host)
	buf[2] = byte(l.Link)
	buf[3] = l.ID<<4 | l.Subtype
}

// NewFrame allocates a frame with the leader encoded and payload appended.
func NewFrame(l Leader, payload []byte) []byte {
	frame := make([]byte, LeaderLen+len(payload))
	EncodeLeader(frame, l)
	copy(frame[LeaderLen:], payload)
	return frame
}

// WordCount returns the IMP driver's transmission size for a frame of the
// given total byte length (leader included), rounded up to a whole 16-bit
// word. For an NCP batch of count bytes that is the leader's 6 words, the
// link prefix's 3 words, plus ⌈count/2⌉ words.
func WordCount(byteLen int) int {
	return (byteLen + 1) / 2
}
