// Package filespan maps global byte offsets onto the files of a download.
// Piece hashes are computed over the concatenation of all files, so a piece
// may begin in one file and end in another.
package filespan

import (
	"errors"
	"sort"
)

// ErrOutOfRange is returned when a requested range extends past the end of
// the concatenated file data.
var ErrOutOfRange = errors.New("range is out of bounds")

// Fragment is a contiguous byte range inside a single file.
type Fragment struct {
	FileID int   // index of the file in concatenation order
	Offset int64 // offset inside the file
	Length int64
}

// Map resolves ranges of the concatenated file data into per-file fragments.
// Files are identified by their index in concatenation order.
type Map struct {
	lengths []int64
	starts  []int64
	total   int64
}

// New creates a Map from file lengths given in concatenation order.
func New(fileLengths []int64) Map {
	starts := make([]int64, len(fileLengths))
	var total int64
	for i, l := range fileLengths {
		starts[i] = total
		total += l
	}
	lengths := make([]int64, len(fileLengths))
	copy(lengths, fileLengths)
	return Map{lengths: lengths, starts: starts, total: total}
}

// NumFiles returns the number of files in the map.
func (m Map) NumFiles() int { return len(m.lengths) }

// FileLength returns the length of the file with the given id.
func (m Map) FileLength(id int) int64 { return m.lengths[id] }

// TotalLength returns the length of the concatenated file data.
func (m Map) TotalLength() int64 { return m.total }

// Resolve splits the range [off, off+length) into fragments, in order.
// Fragment lengths sum exactly to length. Zero-length files yield no
// fragment. Returns ErrOutOfRange when the range does not fit in the data.
func (m Map) Resolve(off, length int64) ([]Fragment, error) {
	if off < 0 || length < 0 || off > m.total || length > m.total-off {
		return nil, ErrOutOfRange
	}
	if length == 0 {
		return nil, nil
	}
	// First file whose range covers off. Empty files cover nothing.
	i := sort.Search(len(m.lengths), func(i int) bool {
		return m.starts[i]+m.lengths[i] > off
	})
	frags := make([]Fragment, 0, 2)
	for ; length > 0; i++ {
		fileOff := off - m.starts[i]
		n := m.lengths[i] - fileOff
		if n > length {
			n = length
		}
		if n > 0 {
			frags = append(frags, Fragment{FileID: i, Offset: fileOff, Length: n})
			off += n
			length -= n
		}
	}
	return frags, nil
}
