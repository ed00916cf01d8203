package lengths

import "testing"

func TestNewErrors(t *testing.T) {
	cases := []struct {
		total int64
		piece uint32
		block uint32
	}{
		{0, 16 * 1024, DefaultBlockLength},
		{-1, 16 * 1024, DefaultBlockLength},
		{100, 0, DefaultBlockLength},
		{100, 64, 0},
		{100, 64, 128}, // block larger than piece
	}
	for _, c := range cases {
		if _, err := NewWithBlockLength(c.total, c.piece, c.block); err != ErrInvalidGeometry {
			t.Errorf("total=%d piece=%d block=%d: expected geometry error, got %v", c.total, c.piece, c.block, err)
		}
	}
}

func TestPiecePartition(t *testing.T) {
	cases := []struct {
		total int64
		piece uint32
	}{
		{1, 1},
		{15, 4},
		{16, 4},
		{17, 4},
		{1000, 7},
		{5 * 256 * 1024, 256 * 1024},
		{5*256*1024 + 1, 256 * 1024},
	}
	for _, c := range cases {
		l, err := New(c.total, c.piece)
		if err != nil {
			t.Fatal(err)
		}
		var sum int64
		for i := uint32(0); i < l.NumPieces(); i++ {
			if l.PieceOffset(i) != sum {
				t.Fatalf("total=%d piece=%d: piece %d begins at %d, expected %d", c.total, c.piece, i, l.PieceOffset(i), sum)
			}
			sum += int64(l.PieceLength(i))
		}
		if sum != c.total {
			t.Fatalf("total=%d piece=%d: pieces sum to %d", c.total, c.piece, sum)
		}
		last := l.PieceLength(l.NumPieces() - 1)
		if mod := c.total % int64(c.piece); mod != 0 {
			if int64(last) != mod {
				t.Fatalf("last piece length %d, expected %d", last, mod)
			}
		} else if last != c.piece {
			t.Fatalf("last piece length %d, expected %d", last, c.piece)
		}
	}
}

func TestBlockPartition(t *testing.T) {
	l, err := NewWithBlockLength(100, 32, 10)
	if err != nil {
		t.Fatal(err)
	}
	if l.NumPieces() != 4 {
		t.Fatalf("num pieces: %d", l.NumPieces())
	}
	for i := uint32(0); i < l.NumPieces(); i++ {
		var sum uint32
		for b := uint32(0); b < l.NumBlocks(i); b++ {
			if got := l.BlockOffset(i, b); got != l.PieceOffset(i)+int64(sum) {
				t.Fatalf("piece %d block %d offset %d", i, b, got)
			}
			sum += l.BlockSize(i, b)
		}
		if sum != l.PieceLength(i) {
			t.Fatalf("piece %d blocks sum to %d, piece length %d", i, sum, l.PieceLength(i))
		}
	}
	// last piece is 4 bytes, single short block
	if l.NumBlocks(3) != 1 {
		t.Fatalf("last piece blocks: %d", l.NumBlocks(3))
	}
	if l.BlockSize(3, 0) != 4 {
		t.Fatalf("last block size: %d", l.BlockSize(3, 0))
	}
	if l.TotalBlocks() != 13 {
		t.Fatalf("total blocks: %d", l.TotalBlocks())
	}
}

func TestValid(t *testing.T) {
	l, err := NewWithBlockLength(100, 32, 10)
	if err != nil {
		t.Fatal(err)
	}
	if !l.ValidPiece(3) || l.ValidPiece(4) {
		t.Fatal("piece validity")
	}
	if !l.ValidBlock(0, 3) || l.ValidBlock(3, 1) {
		t.Fatal("block validity")
	}
}

func TestPanicsOnBadIndex(t *testing.T) {
	l, err := New(100, 32)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	l.PieceLength(4)
}
