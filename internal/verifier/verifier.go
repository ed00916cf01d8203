package verifier

import (
	"bytes"
	"io"

	"github.com/sleetdl/sleet/internal/bitfield"
	"github.com/sleetdl/sleet/internal/metainfo"
	"github.com/sleetdl/sleet/internal/pieceio"
)

// Verifier hash-checks the pieces already on disk.
// A piece that cannot be read fully counts as needed, not as a failure.
// Resume state is derived entirely from this sweep, there is no state file.
type Verifier struct {
	Bitfield     bitfield.Bitfield // pieces that passed the check
	HaveBytes    int64
	NeededBytes  int64
	HavePieces   uint32
	NeededPieces uint32
	Error        error

	closeC chan struct{}
	doneC  chan struct{}
}

// Progress information about the verification.
type Progress struct {
	Checked uint32
}

// New returns a new Verifier.
func New() *Verifier {
	return &Verifier{
		closeC: make(chan struct{}),
		doneC:  make(chan struct{}),
	}
}

// Close the verifier.
func (v *Verifier) Close() {
	close(v.closeC)
	<-v.doneC
}

// Run hashes every piece on disk and compares against the expected digests.
// When onlyFiles is not nil, pieces overlapping any file outside the set are
// counted as needed without hashing.
func (v *Verifier) Run(info *metainfo.Info, data *pieceio.Data, onlyFiles map[int]struct{}, progressC chan Progress, resultC chan *Verifier) {
	defer close(v.doneC)

	defer func() {
		select {
		case resultC <- v:
		case <-v.closeC:
		}
	}()

	geo := data.Geometry()
	v.Bitfield = bitfield.New(geo.NumPieces())
	for i := uint32(0); i < geo.NumPieces(); i++ {
		var ok bool
		if pieceAllowed(data, i, onlyFiles) {
			digest, err := data.HashPiece(i)
			switch err {
			case nil:
				ok = bytes.Equal(digest, info.PieceHash(i))
			case io.ErrUnexpectedEOF:
				// piece not fully on disk
			default:
				v.Error = err
				return
			}
		}
		if ok {
			v.Bitfield.Set(i)
			v.HaveBytes += int64(geo.PieceLength(i))
			v.HavePieces++
		} else {
			v.NeededBytes += int64(geo.PieceLength(i))
			v.NeededPieces++
		}
		select {
		case progressC <- Progress{Checked: i + 1}:
		case <-v.closeC:
			return
		}
	}
}

func pieceAllowed(data *pieceio.Data, index uint32, onlyFiles map[int]struct{}) bool {
	if onlyFiles == nil {
		return true
	}
	geo := data.Geometry()
	frags, err := data.Span().Resolve(geo.PieceOffset(index), int64(geo.PieceLength(index)))
	if err != nil {
		return false
	}
	for _, frag := range frags {
		if _, ok := onlyFiles[frag.FileID]; !ok {
			return false
		}
	}
	return true
}
