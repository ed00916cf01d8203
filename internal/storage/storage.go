// Package storage contains an interface for reading and writing download files.
package storage

import "io"

// Storage is an interface for reading/writing the files in a download.
type Storage interface {
	// Open opens the file with the given path relative to the storage root,
	// creating it empty when it does not exist.
	// Existing content is kept. Pre-sizing is the caller's job, through Truncate.
	Open(name string) (f File, exists bool, err error)
}

// File interface for reading/writing download data.
type File interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
	Truncate(size int64) error
}
