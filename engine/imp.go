package engine

import (
	"github.com/sirupsen/logrus"

	"github.com/hostprotocols/ncpd/wire"
)

// maxIMPFrame bounds a single receive; large enough for the reference
// 8096-bit message size plus leader.
const maxIMPFrame = 4096

// dispatchIMP applies one frame received from the IMP driver (§4.4). On
// link 0 it decodes the NCP control batch and calls dispatchNCP for each
// message, matching §4.3's rule that a decode failure still owes the peer
// an ERR reply. On a data link it delivers the payload to whichever
// connection owns that (host, link) as a READ reply. Every other leader
// type is logged and, for HostDead, used to fail an outstanding echo.
func (e *Engine) dispatchIMP(frame []byte) {
	leader, err := wire.DecodeLeader(frame)
	if err != nil {
		warnFields(logrus.Fields{"len": len(frame)}, "short IMP frame")
		return
	}
	e.metrics.observeLeader(leader.Type)
	defer e.recordOccupancy()
	payload := frame[wire.LeaderLen:]

	switch leader.Type {
	case wire.Regular:
		if leader.Link == wire.LinkControl {
			e.dispatchControlBatch(leader.Host, payload)
		} else {
			e.dispatchData(leader.Host, leader.Link, payload)
		}
	case wire.HostDead:
		e.handleHostDead(leader)
	case wire.LeaderError:
		warnFields(logrus.Fields{"host": leader.Host, "reason": wire.LeaderErrorReason(leader.Subtype)}, "IMP leader error")
	case wire.Incomplete:
		warnFields(logrus.Fields{"host": leader.Host, "reason": wire.IncompleteReason(leader.Subtype)}, "IMP transmission incomplete")
	case wire.ImpDown, wire.Blocked, wire.Full, wire.DataError, wire.Reset:
		warnFields(logrus.Fields{"host": leader.Host, "type": leader.Type}, "IMP condition reported")
	case wire.ImpNop, wire.RFNM:
		traceFields(logrus.Fields{"host": leader.Host, "type": leader.Type}, "IMP keep-alive")
	default:
		warnFields(logrus.Fields{"host": leader.Host, "type": leader.Type, "reason": wire.LeaderErrIllegalType}, "IMP leader error")
	}
}

// dispatchControlBatch decodes the link-0 NCP batch and dispatches each
// message in turn (§4.3). A decode error still dispatches every message
// successfully parsed before the failure, then replies ERR with the
// offending message's context, matching the "stop processing the batch"
// rule.
func (e *Engine) dispatchControlBatch(host wire.Host, payload []byte) {
	if len(payload) < 6 {
		return
	}
	count := int(payload[2])<<8 | int(payload[3])
	msgs, err := wire.DecodeBatch(payload[6:], count)
	for _, m := range msgs {
		e.dispatchNCP(host, m)
	}
	switch decErr := err.(type) {
	case *wire.UnknownOpcodeError:
		warnFields(logrus.Fields{"host": host}, "unknown opcode in batch")
		e.sendErrContext(host, wire.ErrOpcode, decErr.Context)
	case *wire.ShortParamsError:
		warnFields(logrus.Fields{"host": host}, "short parameters in batch")
		e.sendErrContext(host, wire.ErrShort, decErr.Context)
	}
}

// dispatchData delivers a data-link payload to its owning connection as a
// READ reply (§4.4, §6). A payload on a link nothing owns is dropped; the
// reference has no "unexpected data" error path of its own.
func (e *Engine) dispatchData(host wire.Host, link wire.Link, payload []byte) {
	idx := e.table.FindLink(host, link)
	if idx < 0 {
		warnFields(logrus.Fields{"host": host, "link": link}, "data on unowned link")
		return
	}
	c := e.table.Conn(idx)
	e.sendAppTo(c.Client, wire.EncodeReadReply(uint8(idx), payload))
}

// handleHostDead fails any outstanding ECHO against host and logs the
// reason (§4.4, §7).
func (e *Engine) handleHostDead(leader wire.Leader) {
	reason := wire.HostDeadReason(leader.Subtype)
	warnFields(logrus.Fields{"host": leader.Host, "reason": reason}, "host dead")
	idx := e.table.FindLink(leader.Host, wire.LinkEcho)
	if idx < 0 {
		return
	}
	c := e.table.Conn(idx)
	e.sendAppTo(c.Client, wire.EncodeEchoReply(leader.Host, 0, byte(reason)))
	e.destroyConn(idx)
}
