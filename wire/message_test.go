package wire

import (
	"encoding/hex"
	"errors"
	"testing"
)

// TestEncodeDecodeRoundTrip exercises every message constructor against
// DecodeBatch, checking the round trip preserves type and parameters.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	golden := []Message{
		NOPMsg(),
		RTSMsg(1002, 101, 5),
		STRMsg(1003, 100, 8),
		CLSMsg(33, 32),
		ALLMsg(5, 1, 64),
		RETMsg(5, 1, 64),
		GVBMsg(5, 3, 7),
		INRMsg(5),
		INSMsg(5),
		ECOMsg(0x42),
		ERPMsg(0x42),
		ERRMsg(ErrSocket, []byte{byte(RTS), 0, 0, 0x03, 0xea, 0, 0, 0, 0x65}),
		RSTMsg(),
		RRPMsg(),
	}

	body, err := EncodeBatch(golden...)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	count := int(body[2])<<8 | int(body[3])
	msgs, err := DecodeBatch(body[linkPrefixLen:], count)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(msgs) != len(golden) {
		t.Fatalf("got %d messages, want %d", len(msgs), len(golden))
	}
	for i, m := range msgs {
		want := golden[i]
		if m.Type != want.Type {
			t.Errorf("message %d: got type %s, want %s", i, m.Type, want.Type)
		}
		if hex.EncodeToString(m.Params) != hex.EncodeToString(want.Params) {
			t.Errorf("message %d (%s): got params %x, want %x", i, m.Type, m.Params, want.Params)
		}
	}
}

func TestParamLenTable(t *testing.T) {
	// §4.1: each length is the parameter region only, not the type tag.
	want := map[Type]int{
		NOP: 0, RTS: 9, STR: 9, CLS: 8, ALL: 7, GVB: 3, RET: 7,
		INR: 1, INS: 1, ECO: 1, ERP: 1, ERR: 11, RST: 0, RRP: 0,
	}
	for typ, n := range want {
		got, ok := typ.ParamLen()
		if !ok {
			t.Errorf("%s: ParamLen reported unknown", typ)
		}
		if got != n {
			t.Errorf("%s: ParamLen = %d, want %d", typ, got, n)
		}
	}
}

func TestDecodeBatchUnknownOpcode(t *testing.T) {
	body := []byte{99, 0, 0, 0}
	msgs, err := DecodeBatch(body, len(body))
	if len(msgs) != 0 {
		t.Errorf("got %d messages before the bad opcode, want 0", len(msgs))
	}
	var unk *UnknownOpcodeError
	if !errors.As(err, &unk) {
		t.Fatalf("got error %v, want *UnknownOpcodeError", err)
	}
}

func TestDecodeBatchShortParams(t *testing.T) {
	// RTS wants 9 bytes; supply 4.
	body := append([]byte{byte(RTS)}, 1, 2, 3, 4)
	msgs, err := DecodeBatch(body, len(body))
	if len(msgs) != 0 {
		t.Errorf("got %d messages, want 0", len(msgs))
	}
	var short *ShortParamsError
	if !errors.As(err, &short) {
		t.Fatalf("got error %v, want *ShortParamsError", err)
	}
}

func TestBatchMultipleMessagesOneFrame(t *testing.T) {
	// §4.1: multiple NCP messages may appear back-to-back in one frame.
	body, err := EncodeBatch(ECOMsg(7), ERPMsg(7), NOPMsg())
	if err != nil {
		t.Fatal(err)
	}
	count := int(body[2])<<8 | int(body[3])
	msgs, err := DecodeBatch(body[linkPrefixLen:], count)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
}
