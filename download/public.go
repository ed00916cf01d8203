package download

import (
	"net"

	"github.com/sleetdl/sleet/internal/counters"
)

// Close stops the download and releases all resources. Trackers that were
// announced to are sent the stopped event first. Close blocks until
// shutdown is complete. It is safe to call more than once.
func (m *Manager) Close() {
	m.closeOnce.Do(func() { close(m.closeC) })
	<-m.doneC
}

// NotifyComplete returns a channel that is closed once every piece is
// verified on disk. Also closed right after the initial check when the
// data was already complete.
func (m *Manager) NotifyComplete() <-chan struct{} {
	return m.completeC
}

// NotifyError returns a channel that receives the error that stopped the
// download from making progress, such as a file conflict or a failing
// disk. At most one error is ever sent.
func (m *Manager) NotifyError() <-chan error {
	return m.errC
}

// OnPeer registers fn to be called once for every new peer address
// discovered through a tracker. fn must not block, it runs on the loop
// that handles announce responses.
func (m *Manager) OnPeer(fn func(*net.TCPAddr)) {
	m.mState.Lock()
	m.onPeer = fn
	m.mState.Unlock()
}

// AddPeer feeds one peer address into the known set as if a tracker had
// returned it. Reports whether the address was new. The registered OnPeer
// callback is not invoked for addresses added here.
func (m *Manager) AddPeer(addr *net.TCPAddr) bool {
	return m.addrs.Add(addr, m.opts.Port)
}

// Peers returns the known peer addresses, in no particular order.
func (m *Manager) Peers() []*net.TCPAddr {
	return m.addrs.Addrs()
}

// InfoHash of the torrent.
func (m *Manager) InfoHash() [20]byte {
	return m.info.Hash
}

// PeerID announced to trackers. The peer wire layer must present the same
// ID in its handshakes.
func (m *Manager) PeerID() [20]byte {
	return m.peerID
}

// BytesFetched returns the number of block payload bytes accepted by
// WriteBlock since the start, duplicate blocks included.
func (m *Manager) BytesFetched() int64 {
	return m.counters.Read(counters.BytesFetched)
}

// BytesUploaded returns the number of bytes served through ReadBlock since
// the start.
func (m *Manager) BytesUploaded() int64 {
	return m.counters.Read(counters.BytesUploaded)
}

// BytesLeft returns the number of bytes still missing on disk. Data that
// was already verified when the download started does not count as
// missing. Zero until the initial check is done.
func (m *Manager) BytesLeft() int64 {
	m.mState.RLock()
	needed := m.neededInitially
	m.mState.RUnlock()
	left := needed - m.counters.Read(counters.BytesVerified)
	if left < 0 {
		left = 0
	}
	if left > needed {
		left = needed
	}
	return left
}
