package download

import (
	"fmt"
	"time"

	"github.com/juju/ratelimit"
	"github.com/sleetdl/sleet/internal/counters"
	"github.com/sleetdl/sleet/internal/piecetracker"
)

// PickBlock chooses the next block to request from a remote peer and marks
// it handed out. A non-negative preferred piece index is tried first.
// When excludeInProgress is set, blocks already handed out to another
// caller are skipped, otherwise they may be handed out again near the end
// of a download. Returns nil when no block is assignable.
func (m *Manager) PickBlock(preferred int, excludeInProgress bool) (*piecetracker.Block, error) {
	m.mState.RLock()
	defer m.mState.RUnlock()
	if err := m.readyLocked(); err != nil {
		return nil, err
	}
	b, ok := m.tracker.Pick(preferred, excludeInProgress)
	if !ok {
		return nil, nil
	}
	return &b, nil
}

// UnrequestBlock returns a block handed out by PickBlock to the assignable
// pool, typically because the peer it was requested from went away.
func (m *Manager) UnrequestBlock(pi, block uint32) error {
	m.mState.RLock()
	defer m.mState.RUnlock()
	if err := m.readyLocked(); err != nil {
		return err
	}
	if !m.geo.ValidBlock(pi, block) {
		return fmt.Errorf("invalid block: piece %d block %d", pi, block)
	}
	m.tracker.Unrequest(pi, block)
	return nil
}

// WriteBlock writes one downloaded block to disk. p must be exactly the
// block length from the piece geometry. Writing a block that is already on
// disk is allowed and counted as fetched again. When the write completes
// the last missing block of a piece, the piece is hash checked in the
// background.
func (m *Manager) WriteBlock(pi, block uint32, p []byte) error {
	m.mState.RLock()
	defer m.mState.RUnlock()
	if err := m.readyLocked(); err != nil {
		return err
	}
	if !m.geo.ValidBlock(pi, block) {
		return fmt.Errorf("invalid block: piece %d block %d", pi, block)
	}
	if uint32(len(p)) != m.geo.BlockSize(pi, block) {
		return fmt.Errorf("invalid block length: got %d want %d", len(p), m.geo.BlockSize(pi, block))
	}
	if err := m.waitBucket(m.downloadBucket, len(p)); err != nil {
		return err
	}
	if err := m.data.WriteAt(p, m.geo.BlockOffset(pi, block)); err != nil {
		return err
	}
	if m.tracker.MarkReceived(pi, block, int64(len(p))) {
		go m.verifyPiece(pi)
	}
	return nil
}

// ReadBlock reads len(p) bytes at offset begin of piece pi for uploading
// to a remote peer. Only verified pieces can be read.
func (m *Manager) ReadBlock(pi, begin uint32, p []byte) error {
	m.mState.RLock()
	defer m.mState.RUnlock()
	if err := m.readyLocked(); err != nil {
		return err
	}
	if !m.geo.ValidPiece(pi) {
		return fmt.Errorf("invalid piece: %d", pi)
	}
	if !m.tracker.HavePiece(pi) {
		return fmt.Errorf("piece %d is not verified", pi)
	}
	if int64(begin)+int64(len(p)) > int64(m.geo.PieceLength(pi)) {
		return fmt.Errorf("invalid read range: piece %d begin %d length %d", pi, begin, len(p))
	}
	if err := m.waitBucket(m.uploadBucket, len(p)); err != nil {
		return err
	}
	if err := m.data.ReadAt(p, m.geo.PieceOffset(pi)+int64(begin)); err != nil {
		return err
	}
	m.counters.Incr(counters.BytesUploaded, int64(len(p)))
	return nil
}

func (m *Manager) readyLocked() error {
	select {
	case <-m.closeC:
		return ErrClosed
	default:
	}
	if m.tracker == nil {
		return ErrNotReady
	}
	return nil
}

// waitBucket sleeps until the rate limiter releases n tokens. A nil bucket
// does not limit. The wait is cut short when the Manager closes.
func (m *Manager) waitBucket(b *ratelimit.Bucket, n int) error {
	if b == nil {
		return nil
	}
	d := b.Take(int64(n))
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-m.closeC:
		return ErrClosed
	}
}
