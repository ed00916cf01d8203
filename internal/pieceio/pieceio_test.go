package pieceio

import (
	"bytes"
	"crypto/sha1"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sleetdl/sleet/internal/filespan"
	"github.com/sleetdl/sleet/internal/lengths"
	"github.com/sleetdl/sleet/internal/storage"
)

func newTestData(t *testing.T, pieceLength uint32, fileLengths []int64) (*Data, []string) {
	t.Helper()
	dir := t.TempDir()
	files := make([]storage.File, len(fileLengths))
	paths := make([]string, len(fileLengths))
	var total int64
	for i, l := range fileLengths {
		paths[i] = filepath.Join(dir, "file"+string(rune('A'+i)))
		f, err := os.OpenFile(paths[i], os.O_RDWR|os.O_CREATE, 0640)
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = f.Close() })
		files[i] = f
		total += l
	}
	geo, err := lengths.New(total, pieceLength)
	if err != nil {
		t.Fatal(err)
	}
	return New(files, filespan.New(fileLengths), geo), paths
}

func TestWriteAcrossFileBoundary(t *testing.T) {
	// file A holds one and a half pieces, file B the remaining half
	d, paths := newTestData(t, 4, []int64{6, 2})

	if err := d.WriteAt([]byte("abcd"), 0); err != nil {
		t.Fatal(err)
	}
	if err := d.WriteAt([]byte("WXYZ"), 4); err != nil {
		t.Fatal(err)
	}

	a, err := os.ReadFile(paths[0])
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != "abcdWX" {
		t.Fatalf("file A content: %q", a)
	}
	b, err := os.ReadFile(paths[1])
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "YZ" {
		t.Fatalf("file B content: %q", b)
	}

	buf := make([]byte, 4)
	if err = d.ReadAt(buf, 4); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "WXYZ" {
		t.Fatalf("read back: %q", buf)
	}
}

func TestHashPiece(t *testing.T) {
	d, _ := newTestData(t, 4, []int64{6, 2})
	if err := d.WriteAt([]byte("abcdWXYZ"), 0); err != nil {
		t.Fatal(err)
	}
	digest, err := d.HashPiece(1)
	if err != nil {
		t.Fatal(err)
	}
	expected := sha1.Sum([]byte("WXYZ"))
	if !bytes.Equal(digest, expected[:]) {
		t.Fatalf("piece digest: %x", digest)
	}
}

func TestShortRead(t *testing.T) {
	d, _ := newTestData(t, 4, []int64{6, 2})
	// only half of the first piece is on disk
	if err := d.WriteAt([]byte("ab"), 0); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 4)
	if err := d.ReadAt(buf, 0); err != io.ErrUnexpectedEOF {
		t.Fatalf("expected unexpected EOF, got %v", err)
	}
	if _, err := d.HashPiece(0); err != io.ErrUnexpectedEOF {
		t.Fatalf("expected unexpected EOF, got %v", err)
	}
}

func TestOutOfRange(t *testing.T) {
	d, _ := newTestData(t, 4, []int64{6, 2})
	buf := make([]byte, 4)
	if err := d.ReadAt(buf, 6); err != filespan.ErrOutOfRange {
		t.Fatalf("expected range error, got %v", err)
	}
	if err := d.WriteAt(buf, 5); err != filespan.ErrOutOfRange {
		t.Fatalf("expected range error, got %v", err)
	}
}

func TestTruncate(t *testing.T) {
	d, paths := newTestData(t, 4, []int64{6, 2})
	if err := d.Truncate(0, 6); err != nil {
		t.Fatal(err)
	}
	fi, err := os.Stat(paths[0])
	if err != nil {
		t.Fatal(err)
	}
	if fi.Size() != 6 {
		t.Fatalf("file size after truncate: %d", fi.Size())
	}
}
