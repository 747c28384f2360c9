package wire

import (
	"encoding/binary"
	"fmt"
)

// AppCmd identifies an application command or reply frame (§6). Request
// ids are the listed odd values; each reply is request+1, continuing the
// ARPANET convention of pairing adjacent ids.
type AppCmd uint8

// Application command/reply ids.
const (
	CmdEcho      AppCmd = 1
	CmdEchoOK    AppCmd = 2
	CmdOpen      AppCmd = 3
	CmdOpenOK    AppCmd = 4
	CmdListen    AppCmd = 5
	CmdListenOK  AppCmd = 6
	CmdRead      AppCmd = 7
	CmdReadOK    AppCmd = 8
	CmdWrite     AppCmd = 9
	CmdWriteOK   AppCmd = 10
	CmdClose     AppCmd = 11
	CmdCloseOK   AppCmd = 12
	CmdInterrupt AppCmd = 13 // request only, no reply
)

var appCmdNames = map[AppCmd]string{
	CmdEcho: "ECHO", CmdEchoOK: "ECHO-ok",
	CmdOpen: "OPEN", CmdOpenOK: "OPEN-ok",
	CmdListen: "LISTEN", CmdListenOK: "LISTEN-ok",
	CmdRead: "READ", CmdReadOK: "READ-ok",
	CmdWrite: "WRITE", CmdWriteOK: "WRITE-ok",
	CmdClose: "CLOSE", CmdCloseOK: "CLOSE-ok",
	CmdInterrupt: "INTERRUPT",
}

func (c AppCmd) String() string {
	if name, ok := appCmdNames[c]; ok {
		return name
	}
	return fmt.Sprintf("AppCmd(%d)", uint8(c))
}

// FailConn is the connection-index sentinel returned by an OPEN reply
// whose RFC failed (§6, §8 Scenario 3).
const FailConn uint8 = 255

// Validate reports whether a frame of the given length is legal for cmd.
// The variable-length frames (READ reply, WRITE request) only enforce a
// lower bound, per §6's "≥" lengths; every other frame must match exactly.
func Validate(cmd AppCmd, length int) bool {
	switch cmd {
	case CmdEcho:
		return length == 3
	case CmdEchoOK:
		return length == 4
	case CmdOpen:
		return length == 6
	case CmdOpenOK:
		return length == 7
	case CmdListen:
		return length == 5
	case CmdListenOK:
		return length == 7
	case CmdRead:
		return length == 3
	case CmdReadOK:
		return length >= 2
	case CmdWrite:
		return length >= 2
	case CmdWriteOK:
		return length == 2
	case CmdClose:
		return length == 2
	case CmdCloseOK:
		return length == 2
	case CmdInterrupt:
		return length == 2
	default:
		return false
	}
}

// EchoReq is the decoded WIRE_ECHO request.
type EchoReq struct {
	Host Host
	Data byte
}

// DecodeEchoReq decodes an ECHO request frame; caller validates length.
func DecodeEchoReq(b []byte) EchoReq { return EchoReq{Host(b[1]), b[2]} }

// EncodeEchoReply encodes an ECHO reply frame.
func EncodeEchoReply(host Host, data, errCode byte) []byte {
	return []byte{byte(CmdEchoOK), byte(host), data, errCode}
}

// OpenReq is the decoded WIRE_OPEN request.
type OpenReq struct {
	Host   Host
	Socket Socket
}

func DecodeOpenReq(b []byte) OpenReq {
	return OpenReq{Host(b[1]), Socket(binary.BigEndian.Uint32(b[2:6]))}
}

// EncodeOpenReply encodes an OPEN reply frame.
func EncodeOpenReply(host Host, socket Socket, conn uint8) []byte {
	out := make([]byte, 7)
	out[0] = byte(CmdOpenOK)
	out[1] = byte(host)
	binary.BigEndian.PutUint32(out[2:6], uint32(socket))
	out[6] = conn
	return out
}

// ListenReq is the decoded WIRE_LISTEN request.
type ListenReq struct {
	Socket Socket
}

func DecodeListenReq(b []byte) ListenReq {
	return ListenReq{Socket(binary.BigEndian.Uint32(b[1:5]))}
}

// EncodeListenReply encodes a LISTEN reply frame.
func EncodeListenReply(host Host, socket Socket, conn uint8) []byte {
	out := make([]byte, 7)
	out[0] = byte(CmdListenOK)
	out[1] = byte(host)
	binary.BigEndian.PutUint32(out[2:6], uint32(socket))
	out[6] = conn
	return out
}

// ReadReq is the decoded WIRE_READ request.
type ReadReq struct {
	Conn    uint8
	NOctets uint8
}

func DecodeReadReq(b []byte) ReadReq { return ReadReq{b[1], b[2]} }

// EncodeReadReply encodes a READ reply frame carrying payload.
func EncodeReadReply(conn uint8, payload []byte) []byte {
	out := make([]byte, 2+len(payload))
	out[0] = byte(CmdReadOK)
	out[1] = conn
	copy(out[2:], payload)
	return out
}

// WriteReq is the decoded WIRE_WRITE request.
type WriteReq struct {
	Conn    uint8
	Payload []byte
}

func DecodeWriteReq(b []byte) WriteReq {
	return WriteReq{b[1], b[2:]}
}

// EncodeWriteReply encodes a WRITE reply frame.
func EncodeWriteReply(conn uint8) []byte {
	return []byte{byte(CmdWriteOK), conn}
}

// InterruptReq is the decoded WIRE_INTERRUPT request.
type InterruptReq struct {
	Conn uint8
}

func DecodeInterruptReq(b []byte) InterruptReq { return InterruptReq{b[1]} }

// CloseReq is the decoded WIRE_CLOSE request.
type CloseReq struct {
	Conn uint8
}

func DecodeCloseReq(b []byte) CloseReq { return CloseReq{b[1]} }

// EncodeCloseReply encodes a CLOSE reply frame.
func EncodeCloseReply(conn uint8) []byte {
	return []byte{byte(CmdCloseOK), conn}
}
