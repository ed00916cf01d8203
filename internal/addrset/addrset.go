// Package addrset holds the set of peer addresses discovered from trackers.
package addrset

import (
	"net"
	"sync"
)

// AddrSet is a deduplicating set of peer addresses.
// Addresses are only ever added; peer liveness is the peer layer's concern.
// The set has its own lock so tracker callbacks never contend with block
// bookkeeping.
type AddrSet struct {
	mu    sync.Mutex
	addrs map[string]*net.TCPAddr
}

func New() *AddrSet {
	return &AddrSet{addrs: make(map[string]*net.TCPAddr)}
}

// Add puts addr into the set.
// Returns true when the address was not seen before.
// Zero ports and the client's own listen address are discarded.
func (s *AddrSet) Add(addr *net.TCPAddr, listenPort int) bool {
	if addr.Port == 0 {
		return false
	}
	if addr.IP.IsLoopback() && addr.Port == listenPort {
		return false
	}
	key := addr.String()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.addrs[key]; ok {
		return false
	}
	s.addrs[key] = addr
	return true
}

// Len returns the number of distinct addresses seen.
func (s *AddrSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.addrs)
}

// Addrs returns a snapshot of all addresses, in no particular order.
func (s *AddrSet) Addrs() []*net.TCPAddr {
	s.mu.Lock()
	defer s.mu.Unlock()
	addrs := make([]*net.TCPAddr, 0, len(s.addrs))
	for _, a := range s.addrs {
		addrs = append(addrs, a)
	}
	return addrs
}
