// Package piecetracker is the piece and block bookkeeping state machine of
// a download.
package piecetracker

import (
	"sync"

	"github.com/sleetdl/sleet/internal/bitfield"
	"github.com/sleetdl/sleet/internal/counters"
	"github.com/sleetdl/sleet/internal/lengths"
)

// PieceState is the download state of a single piece.
type PieceState int

const (
	// Needed pieces have blocks left to download.
	Needed PieceState = iota
	// InProgress pieces have at least one block received or handed out.
	InProgress
	// Complete pieces have all blocks on disk, hash check pending.
	Complete
	// Verified pieces passed the hash check. Final unless a re-check fails.
	Verified
)

var pieceStateStrings = [...]string{"needed", "in progress", "complete", "verified"}

func (s PieceState) String() string { return pieceStateStrings[s] }

// Block identifies one block of one piece together with its byte range in
// the concatenated file data.
type Block struct {
	Piece  uint32
	Index  uint32
	Begin  int64
	Length uint32
}

type piece struct {
	state     PieceState
	received  bitfield.Bitfield // blocks written to disk
	requested bitfield.Bitfield // blocks handed out, not yet written
}

// PieceTracker tracks which blocks of which pieces are wanted, outstanding,
// on disk and verified. All methods are safe for concurrent use. Each
// method is one atomic step; the lock is never held across calls out.
type PieceTracker struct {
	mu       sync.Mutex
	geo      lengths.Lengths
	pieces   []piece
	verified bitfield.Bitfield
	counters *counters.Counters
}

// New returns a PieceTracker seeded from the startup hash sweep.
// Pieces set in have start out Verified with all blocks received, the rest
// start Needed. Counter mutations are applied to c.
func New(geo lengths.Lengths, have bitfield.Bitfield, c *counters.Counters) *PieceTracker {
	t := &PieceTracker{
		geo:      geo,
		pieces:   make([]piece, geo.NumPieces()),
		verified: bitfield.New(geo.NumPieces()),
		counters: c,
	}
	for i := range t.pieces {
		p := &t.pieces[i]
		numBlocks := geo.NumBlocks(uint32(i))
		p.received = bitfield.New(numBlocks)
		p.requested = bitfield.New(numBlocks)
		if have.Test(uint32(i)) {
			p.state = Verified
			for b := uint32(0); b < numBlocks; b++ {
				p.received.Set(b)
			}
			t.verified.Set(uint32(i))
		}
	}
	return t
}

// Pick returns the next block to download and marks it handed out.
// Pieces are scanned in index order among pieces not yet complete, skipping
// blocks already received and, when excludeRequested is set, blocks already
// handed out to another caller. A non-negative preferred index is scanned
// first so the peer layer can impose its own piece priority.
// ok is false when no block is assignable.
func (t *PieceTracker) Pick(preferred int, excludeRequested bool) (b Block, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if preferred >= 0 && preferred < len(t.pieces) {
		if b, ok = t.pickFrom(uint32(preferred), excludeRequested); ok {
			return
		}
	}
	for i := range t.pieces {
		if b, ok = t.pickFrom(uint32(i), excludeRequested); ok {
			return
		}
	}
	return
}

func (t *PieceTracker) pickFrom(i uint32, excludeRequested bool) (Block, bool) {
	p := &t.pieces[i]
	if p.state == Complete || p.state == Verified {
		return Block{}, false
	}
	numBlocks := t.geo.NumBlocks(i)
	for b := uint32(0); b < numBlocks; b++ {
		if p.received.Test(b) {
			continue
		}
		if excludeRequested && p.requested.Test(b) {
			continue
		}
		p.requested.Set(b)
		if p.state == Needed {
			p.state = InProgress
		}
		return Block{
			Piece:  i,
			Index:  b,
			Begin:  t.geo.BlockOffset(i, b),
			Length: t.geo.BlockSize(i, b),
		}, true
	}
	return Block{}, false
}

// Unrequest releases a block handed out by Pick so it becomes assignable
// again. Called when the peer downloading the block goes away.
func (t *PieceTracker) Unrequest(pi, block uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pieces[pi].requested.Clear(block)
}

// MarkReceived records a block as written to disk.
// n raw bytes are added to the fetched counter even when the block was
// already received from another peer; those duplicate bytes are never
// reconciled later. Returns true when this write completed the piece, in
// which case the caller must hash the piece and report the outcome through
// MarkVerified.
func (t *PieceTracker) MarkReceived(pi, block uint32, n int64) (completed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counters.Incr(counters.BytesFetched, n)
	p := &t.pieces[pi]
	p.requested.Clear(block)
	if p.state == Complete || p.state == Verified {
		return false
	}
	p.received.Set(block)
	if p.state == Needed {
		p.state = InProgress
	}
	if p.received.All() {
		p.state = Complete
		return true
	}
	return false
}

// MarkVerified records the outcome of a piece's hash check.
// Success makes the piece final and adds its length to the verified
// counter. Failure resets the piece so every block is wanted again and adds
// its length to the wasted counter; fetched bytes are not taken back.
func (t *PieceTracker) MarkVerified(pi uint32, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := &t.pieces[pi]
	if p.state == Needed || p.state == InProgress {
		panic("piece has not been completed: " + p.state.String())
	}
	pieceLength := int64(t.geo.PieceLength(pi))
	if ok {
		if p.state == Verified {
			return
		}
		p.state = Verified
		t.verified.Set(pi)
		t.counters.Incr(counters.BytesVerified, pieceLength)
		return
	}
	if p.state == Verified {
		// corruption found by a re-check
		t.verified.Clear(pi)
		t.counters.Incr(counters.BytesVerified, -pieceLength)
	}
	p.state = Needed
	p.received.ClearAll()
	p.requested.ClearAll()
	t.counters.Incr(counters.BytesWasted, pieceLength)
}

// HaveBitfield returns a copy of the verified-piece bitfield.
func (t *PieceTracker) HaveBitfield() bitfield.Bitfield {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.verified.Copy()
}

// HavePiece reports whether the piece passed the hash check.
func (t *PieceTracker) HavePiece(pi uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pieces[pi].state == Verified
}

// Complete reports whether every piece is verified.
func (t *PieceTracker) Complete() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.verified.All()
}

// Stats is a snapshot of piece counts per state.
type Stats struct {
	Needed     uint32
	InProgress uint32
	Complete   uint32
	Verified   uint32
}

// Stats returns the number of pieces in each state.
func (t *PieceTracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	var s Stats
	for i := range t.pieces {
		switch t.pieces[i].state {
		case Needed:
			s.Needed++
		case InProgress:
			s.InProgress++
		case Complete:
			s.Complete++
		case Verified:
			s.Verified++
		}
	}
	return s
}
