package lengths

import "errors"

// DefaultBlockLength is the size of the transfer unit requested from peers.
// The last block of the last piece may be shorter.
const DefaultBlockLength = 16 * 1024

// ErrInvalidGeometry is returned when total length, piece length and block
// length cannot describe a valid download.
var ErrInvalidGeometry = errors.New("invalid download geometry")

// Lengths holds the piece and block geometry of a download.
// Derived once from the descriptor, then read-only.
// All piece and block arithmetic goes through this type so the short last
// piece and the short last block are handled in exactly one place.
type Lengths struct {
	totalLength     int64
	pieceLength     uint32
	blockLength     uint32
	numPieces       uint32
	lastPieceLength uint32
}

// New returns the geometry for a download of totalLength bytes split into
// pieces of pieceLength bytes, with the default block length.
func New(totalLength int64, pieceLength uint32) (Lengths, error) {
	return NewWithBlockLength(totalLength, pieceLength, DefaultBlockLength)
}

// NewWithBlockLength is New with an explicit block length.
func NewWithBlockLength(totalLength int64, pieceLength, blockLength uint32) (Lengths, error) {
	if totalLength <= 0 || pieceLength == 0 || blockLength == 0 || blockLength > pieceLength {
		return Lengths{}, ErrInvalidGeometry
	}
	div, mod := divMod64(totalLength, int64(pieceLength))
	numPieces := uint32(div)
	lastPieceLength := pieceLength
	if mod != 0 {
		numPieces++
		lastPieceLength = uint32(mod)
	}
	return Lengths{
		totalLength:     totalLength,
		pieceLength:     pieceLength,
		blockLength:     blockLength,
		numPieces:       numPieces,
		lastPieceLength: lastPieceLength,
	}, nil
}

// TotalLength returns the total number of bytes in the download.
func (l Lengths) TotalLength() int64 { return l.totalLength }

// NumPieces returns the number of pieces, including a short last piece.
func (l Lengths) NumPieces() uint32 { return l.numPieces }

// BlockLength returns the length of a full block.
func (l Lengths) BlockLength() uint32 { return l.blockLength }

// PieceLength returns the length of piece i. Panics if i is out of range.
func (l Lengths) PieceLength(i uint32) uint32 {
	l.checkPiece(i)
	if i == l.numPieces-1 {
		return l.lastPieceLength
	}
	return l.pieceLength
}

// PieceOffset returns the offset of piece i in the concatenated file data.
// Panics if i is out of range.
func (l Lengths) PieceOffset(i uint32) int64 {
	l.checkPiece(i)
	return int64(i) * int64(l.pieceLength)
}

// NumBlocks returns the number of blocks in piece i. Panics if i is out of range.
func (l Lengths) NumBlocks(i uint32) uint32 {
	div, mod := divMod32(l.PieceLength(i), l.blockLength)
	if mod != 0 {
		div++
	}
	return div
}

// TotalBlocks returns the number of blocks in the whole download.
func (l Lengths) TotalBlocks() int64 {
	full := int64(l.NumBlocks(0))
	if l.numPieces == 1 {
		return full
	}
	return int64(l.numPieces-1)*full + int64(l.NumBlocks(l.numPieces-1))
}

// BlockSize returns the length of block b of piece i.
// Panics if (i, b) is out of range.
func (l Lengths) BlockSize(i, b uint32) uint32 {
	numBlocks := l.NumBlocks(i)
	if b >= numBlocks {
		panic("block index out of bound")
	}
	if b == numBlocks-1 {
		return l.PieceLength(i) - b*l.blockLength
	}
	return l.blockLength
}

// BlockOffset returns the offset of block b of piece i in the concatenated
// file data. Panics if (i, b) is out of range.
func (l Lengths) BlockOffset(i, b uint32) int64 {
	if b >= l.NumBlocks(i) {
		panic("block index out of bound")
	}
	return l.PieceOffset(i) + int64(b)*int64(l.blockLength)
}

// ValidPiece reports whether i is a valid piece index.
func (l Lengths) ValidPiece(i uint32) bool { return i < l.numPieces }

// ValidBlock reports whether block b exists in piece i.
func (l Lengths) ValidBlock(i, b uint32) bool {
	return i < l.numPieces && b < l.NumBlocks(i)
}

func (l Lengths) checkPiece(i uint32) {
	if i >= l.numPieces {
		panic("piece index out of bound")
	}
}

func divMod32(a, b uint32) (uint32, uint32) { return a / b, a % b }
func divMod64(a, b int64) (int64, int64)    { return a / b, a % b }
