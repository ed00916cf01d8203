package allocator

import (
	"fmt"
	"path/filepath"

	"github.com/sleetdl/sleet/internal/metainfo"
	"github.com/sleetdl/sleet/internal/storage"
)

// Allocator opens the files of a download on the disk.
type Allocator struct {
	Files       []File
	HasExisting bool
	Error       error

	closeC chan struct{}
	doneC  chan struct{}
}

// File on the disk.
type File struct {
	Storage storage.File
	Name    string
	Length  int64
}

// Progress about the allocation.
type Progress struct {
	Opened int
}

// FileConflictError is returned when a file already exists on disk and
// overwriting was not requested.
type FileConflictError struct {
	Path string
}

func (e *FileConflictError) Error() string {
	return fmt.Sprintf("file already exists: %q", e.Path)
}

// New returns a new Allocator.
func New() *Allocator {
	return &Allocator{
		closeC: make(chan struct{}),
		doneC:  make(chan struct{}),
	}
}

// Close the Allocator.
func (a *Allocator) Close() {
	close(a.closeC)
	<-a.doneC
}

// Run the Allocator.
// Opens every file in the descriptor, creating missing ones.
// When overwrite is false, a file found on disk fails the whole run with
// FileConflictError. Files opened up to that point are closed again.
func (a *Allocator) Run(info *metainfo.Info, sto storage.Storage, overwrite bool, progressC chan Progress, resultC chan *Allocator) {
	defer close(a.doneC)

	defer func() {
		if a.Error != nil {
			for _, f := range a.Files {
				if f.Storage != nil {
					_ = f.Storage.Close()
				}
			}
		}
		select {
		case resultC <- a:
		case <-a.closeC:
		}
	}()

	files := info.GetFiles()
	a.Files = make([]File, len(files))
	for i, f := range files {
		name := diskPath(info, f)
		var sf storage.File
		var exists bool
		sf, exists, a.Error = sto.Open(name)
		if a.Error != nil {
			return
		}
		a.Files[i] = File{Storage: sf, Name: name, Length: f.Length}
		if exists {
			if !overwrite {
				a.Error = &FileConflictError{Path: name}
				return
			}
			a.HasExisting = true
		}
		a.sendProgress(progressC, i+1)
	}
}

// diskPath returns the path of f relative to the storage root.
// Multi-file downloads live in a directory named after the descriptor.
func diskPath(info *metainfo.Info, f metainfo.FileDict) string {
	if !info.MultiFile() {
		return filepath.Clean(f.Path[0])
	}
	parts := append([]string{info.Name}, f.Path...)
	return filepath.Join(parts...)
}

func (a *Allocator) sendProgress(progressC chan Progress, opened int) {
	select {
	case progressC <- Progress{Opened: opened}:
	case <-a.closeC:
	}
}
