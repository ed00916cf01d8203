// Package pieceio reads, writes and hash-checks the piece data of a download.
package pieceio

import (
	"crypto/sha1" // nolint: gosec
	"io"
	"sync"

	"github.com/sleetdl/sleet/internal/filespan"
	"github.com/sleetdl/sleet/internal/lengths"
	"github.com/sleetdl/sleet/internal/storage"
)

const copyBufferSize = 32 * 1024

// guardedFile serializes access to a single file.
// The lock is held for one fragment's I/O at a time, so operations touching
// different files do not serialize on each other.
type guardedFile struct {
	mu sync.Mutex
	f  storage.File
}

// Data is the piece-addressed view over the opened files of a download.
// Ranges are resolved through the span map, then read or written fragment
// by fragment.
type Data struct {
	files []guardedFile
	span  filespan.Map
	geo   lengths.Lengths
}

// New creates a Data over opened files.
// files must be parallel to the span map's file ids.
func New(files []storage.File, span filespan.Map, geo lengths.Lengths) *Data {
	gf := make([]guardedFile, len(files))
	for i := range files {
		gf[i].f = files[i]
	}
	return &Data{files: gf, span: span, geo: geo}
}

// Span returns the file span map of the download.
func (d *Data) Span() filespan.Map { return d.span }

// Geometry returns the piece and block geometry of the download.
func (d *Data) Geometry() lengths.Lengths { return d.geo }

// ReadAt reads len(p) bytes at the given offset of the concatenated file data.
// A read past the written end of a file returns io.ErrUnexpectedEOF.
func (d *Data) ReadAt(p []byte, off int64) error {
	frags, err := d.span.Resolve(off, int64(len(p)))
	if err != nil {
		return err
	}
	var pos int64
	for _, frag := range frags {
		gf := &d.files[frag.FileID]
		gf.mu.Lock()
		n, err := gf.f.ReadAt(p[pos:pos+frag.Length], frag.Offset)
		gf.mu.Unlock()
		if int64(n) < frag.Length {
			if err == nil || err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return err
		}
		pos += frag.Length
	}
	return nil
}

// WriteAt writes p at the given offset of the concatenated file data.
// A write resulting in fewer bytes than requested returns io.ErrShortWrite.
func (d *Data) WriteAt(p []byte, off int64) error {
	frags, err := d.span.Resolve(off, int64(len(p)))
	if err != nil {
		return err
	}
	var pos int64
	for _, frag := range frags {
		gf := &d.files[frag.FileID]
		gf.mu.Lock()
		n, err := gf.f.WriteAt(p[pos:pos+frag.Length], frag.Offset)
		gf.mu.Unlock()
		if err != nil {
			return err
		}
		if int64(n) < frag.Length {
			return io.ErrShortWrite
		}
		pos += frag.Length
	}
	return nil
}

// HashPiece reads the piece at index from disk and returns its SHA-1 digest.
// A piece range extending past the written end of a file returns
// io.ErrUnexpectedEOF.
func (d *Data) HashPiece(index uint32) ([]byte, error) {
	frags, err := d.span.Resolve(d.geo.PieceOffset(index), int64(d.geo.PieceLength(index)))
	if err != nil {
		return nil, err
	}
	h := sha1.New() // nolint: gosec
	buf := make([]byte, copyBufferSize)
	for _, frag := range frags {
		gf := &d.files[frag.FileID]
		gf.mu.Lock()
		n, err := io.CopyBuffer(h, io.NewSectionReader(gf.f, frag.Offset, frag.Length), buf)
		gf.mu.Unlock()
		if err != nil {
			return nil, err
		}
		if n < frag.Length {
			return nil, io.ErrUnexpectedEOF
		}
	}
	return h.Sum(nil), nil
}

// Truncate sets the size of the file with the given id.
func (d *Data) Truncate(fileID int, size int64) error {
	gf := &d.files[fileID]
	gf.mu.Lock()
	defer gf.mu.Unlock()
	return gf.f.Truncate(size)
}

// Close closes all files. Data must not be used afterwards.
func (d *Data) Close() error {
	var first error
	for i := range d.files {
		gf := &d.files[i]
		gf.mu.Lock()
		err := gf.f.Close()
		gf.mu.Unlock()
		if err != nil && first == nil {
			first = err
		}
	}
	return first
}
