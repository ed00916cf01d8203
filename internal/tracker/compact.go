package tracker

import (
	"encoding/binary"
	"errors"
	"net"
)

const compactPeerLen = 6

// CompactPeer is the wire form of a peer address: 4 bytes IPv4 followed by
// 2 bytes port, both in network byte order.
// CompactPeer contains no pointers so it can be used as a map key.
type CompactPeer struct {
	IP   [net.IPv4len]byte
	Port uint16
}

// NewCompactPeer returns a new CompactPeer from a net.TCPAddr.
func NewCompactPeer(addr *net.TCPAddr) CompactPeer {
	p := CompactPeer{Port: uint16(addr.Port)}
	copy(p.IP[:], addr.IP.To4())
	return p
}

// Addr returns a net.TCPAddr from the CompactPeer.
func (p CompactPeer) Addr() *net.TCPAddr {
	return &net.TCPAddr{IP: p.IP[:], Port: int(p.Port)}
}

// MarshalBinary returns the 6-byte wire form.
func (p CompactPeer) MarshalBinary() ([]byte, error) {
	b := make([]byte, compactPeerLen)
	copy(b, p.IP[:])
	binary.BigEndian.PutUint16(b[net.IPv4len:], p.Port)
	return b, nil
}

// UnmarshalBinary reads the 6-byte wire form.
func (p *CompactPeer) UnmarshalBinary(data []byte) error {
	if len(data) != compactPeerLen {
		return errors.New("invalid compact peer length")
	}
	copy(p.IP[:], data[:net.IPv4len])
	p.Port = binary.BigEndian.Uint16(data[net.IPv4len:])
	return nil
}

// DecodePeersCompact parses a concatenation of compact peers into addresses.
func DecodePeersCompact(b []byte) ([]*net.TCPAddr, error) {
	if len(b)%compactPeerLen != 0 {
		return nil, errors.New("invalid peer list length")
	}
	addrs := make([]*net.TCPAddr, 0, len(b)/compactPeerLen)
	for i := 0; i < len(b); i += compactPeerLen {
		var peer CompactPeer
		if err := peer.UnmarshalBinary(b[i : i+compactPeerLen]); err != nil {
			return nil, err
		}
		addrs = append(addrs, peer.Addr())
	}
	return addrs, nil
}
