package tracker

import (
	"net"
	"testing"
)

func TestCompactPeer(t *testing.T) {
	cp := CompactPeer{
		IP:   [4]byte{1, 2, 3, 4},
		Port: 5,
	}
	b, err := cp.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	var cp2 CompactPeer
	err = cp2.UnmarshalBinary(b)
	if err != nil {
		t.Fatal(err)
	}
	if cp != cp2 {
		t.FailNow()
	}
}

func TestDecodePeersCompact(t *testing.T) {
	b := []byte{1, 2, 3, 4, 0x04, 0xd2, 5, 6, 7, 8, 0x10, 0xe1}
	addrs, err := DecodePeersCompact(b)
	if err != nil {
		t.Fatal(err)
	}
	if len(addrs) != 2 {
		t.Fatalf("addrs: %v", addrs)
	}
	if !addrs[0].IP.Equal(net.IPv4(1, 2, 3, 4)) || addrs[0].Port != 1234 {
		t.Fatalf("first addr: %v", addrs[0])
	}
	if addrs[1].Port != 4321 {
		t.Fatalf("second addr: %v", addrs[1])
	}

	if _, err = DecodePeersCompact(b[:5]); err == nil {
		t.Fatal("expected length error")
	}
}
