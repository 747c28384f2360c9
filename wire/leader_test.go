package wire

import "testing"

func TestLeaderRoundTrip(t *testing.T) {
	l := Leader{Type: Regular, Host: 5, Link: 0, ID: 0, Subtype: 0}
	frame := NewFrame(l, []byte{1, 2, 3})

	got, err := DecodeLeader(frame)
	if err != nil {
		t.Fatal(err)
	}
	if got != l {
		t.Fatalf("got %+v, want %+v", got, l)
	}
}

func TestDecodeLeaderShort(t *testing.T) {
	_, err := DecodeLeader(make([]byte, 4))
	if err != ErrShortLeader {
		t.Fatalf("got %v, want ErrShortLeader", err)
	}
}

func TestHostDeadSubtype(t *testing.T) {
	l := Leader{Type: HostDead, Host: 9, Subtype: uint8(HostNotUp)}
	frame := NewFrame(l, nil)
	got, err := DecodeLeader(frame)
	if err != nil {
		t.Fatal(err)
	}
	if HostDeadReason(got.Subtype) != HostNotUp {
		t.Fatalf("got reason %v", HostDeadReason(got.Subtype))
	}
}
