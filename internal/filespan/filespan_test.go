package filespan

import (
	"math"
	"reflect"
	"testing"
)

func TestResolveSingleFile(t *testing.T) {
	m := New([]int64{10})
	frags, err := m.Resolve(2, 5)
	if err != nil {
		t.Fatal(err)
	}
	expected := []Fragment{{FileID: 0, Offset: 2, Length: 5}}
	if !reflect.DeepEqual(frags, expected) {
		t.Fatalf("fragments: %+v", frags)
	}
}

func TestResolveAcrossBoundary(t *testing.T) {
	// piece length 4: file A holds 1.5 pieces, file B half a piece
	m := New([]int64{6, 2})
	frags, err := m.Resolve(4, 4)
	if err != nil {
		t.Fatal(err)
	}
	expected := []Fragment{
		{FileID: 0, Offset: 4, Length: 2},
		{FileID: 1, Offset: 0, Length: 2},
	}
	if !reflect.DeepEqual(frags, expected) {
		t.Fatalf("fragments: %+v", frags)
	}
	var sum int64
	for _, f := range frags {
		sum += f.Length
	}
	if sum != 4 {
		t.Fatalf("fragments sum to %d", sum)
	}
}

func TestResolveSkipsEmptyFiles(t *testing.T) {
	m := New([]int64{4, 0, 4})
	frags, err := m.Resolve(2, 4)
	if err != nil {
		t.Fatal(err)
	}
	expected := []Fragment{
		{FileID: 0, Offset: 2, Length: 2},
		{FileID: 2, Offset: 0, Length: 2},
	}
	if !reflect.DeepEqual(frags, expected) {
		t.Fatalf("fragments: %+v", frags)
	}
}

func TestResolveOutOfRange(t *testing.T) {
	m := New([]int64{4, 4})
	cases := []struct{ off, length int64 }{
		{-1, 2},
		{0, 9},
		{8, 1},
		{4, -1},
		{1, math.MaxInt64}, // off+length overflows int64
		{math.MaxInt64, 2},
		{math.MaxInt64, math.MaxInt64},
	}
	for _, c := range cases {
		if _, err := m.Resolve(c.off, c.length); err != ErrOutOfRange {
			t.Errorf("off=%d length=%d: expected range error, got %v", c.off, c.length, err)
		}
	}
	// zero length at the very end is fine
	if _, err := m.Resolve(8, 0); err != nil {
		t.Fatal(err)
	}
}
