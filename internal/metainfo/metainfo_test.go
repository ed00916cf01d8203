package metainfo

import (
	"bytes"
	"crypto/sha1"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/bencode"
)

type infoDict struct {
	PieceLength uint32     `bencode:"piece length"`
	Pieces      []byte     `bencode:"pieces"`
	Name        string     `bencode:"name"`
	Length      int64      `bencode:"length,omitempty"`
	Files       []FileDict `bencode:"files,omitempty"`
}

func encodeInfo(t *testing.T, d infoDict) []byte {
	b, err := bencode.EncodeBytes(d)
	require.NoError(t, err)
	return b
}

func TestNewInfoSingleFile(t *testing.T) {
	b := encodeInfo(t, infoDict{
		PieceLength: 4,
		Pieces:      make([]byte, 3*sha1.Size),
		Name:        "data.bin",
		Length:      10,
	})
	i, err := NewInfo(b)
	require.NoError(t, err)
	assert.EqualValues(t, 3, i.NumPieces)
	assert.EqualValues(t, 10, i.TotalLength)
	assert.False(t, i.MultiFile())
	files := i.GetFiles()
	require.Len(t, files, 1)
	assert.Equal(t, "data.bin", files[0].Path[0])
	assert.EqualValues(t, 10, files[0].Length)
	assert.Len(t, i.PieceHash(2), sha1.Size)
}

func TestNewInfoMultiFile(t *testing.T) {
	b := encodeInfo(t, infoDict{
		PieceLength: 8,
		Pieces:      make([]byte, 2*sha1.Size),
		Name:        "dir",
		Files: []FileDict{
			{Length: 12, Path: []string{"a.bin"}},
			{Length: 4, Path: []string{"sub", "b.bin"}},
		},
	})
	i, err := NewInfo(b)
	require.NoError(t, err)
	assert.EqualValues(t, 16, i.TotalLength)
	assert.True(t, i.MultiFile())
	assert.Len(t, i.GetFiles(), 2)
}

func TestNewInfoErrors(t *testing.T) {
	// pieces not a multiple of hash size
	b := encodeInfo(t, infoDict{PieceLength: 4, Pieces: make([]byte, 19), Name: "x", Length: 4})
	_, err := NewInfo(b)
	assert.Error(t, err)

	// piece count does not cover total length
	b = encodeInfo(t, infoDict{PieceLength: 4, Pieces: make([]byte, sha1.Size), Name: "x", Length: 10})
	_, err = NewInfo(b)
	assert.Error(t, err)

	// ".." in path
	b = encodeInfo(t, infoDict{
		PieceLength: 4,
		Pieces:      make([]byte, sha1.Size),
		Name:        "dir",
		Files:       []FileDict{{Length: 4, Path: []string{"..", "evil"}}},
	})
	_, err = NewInfo(b)
	assert.Error(t, err)
}

func TestNewMetaInfo(t *testing.T) {
	info := encodeInfo(t, infoDict{PieceLength: 4, Pieces: make([]byte, sha1.Size), Name: "x", Length: 4})
	mi := struct {
		Info         bencode.RawMessage `bencode:"info"`
		Announce     string             `bencode:"announce,omitempty"`
		AnnounceList [][]string         `bencode:"announce-list,omitempty"`
	}{
		Info:     info,
		Announce: "http://tracker.example.com/announce",
	}
	b, err := bencode.EncodeBytes(mi)
	require.NoError(t, err)
	m, err := New(bytes.NewReader(b))
	require.NoError(t, err)
	require.Len(t, m.AnnounceList, 1)
	assert.Equal(t, []string{"http://tracker.example.com/announce"}, m.AnnounceList[0])

	// unsupported scheme is filtered out of tiers
	mi.Announce = ""
	mi.AnnounceList = [][]string{
		{"wss://tracker.example.com"},
		{"udp://tracker.example.com:1337", "https://tracker.example.com/announce"},
	}
	b, err = bencode.EncodeBytes(mi)
	require.NoError(t, err)
	m, err = New(bytes.NewReader(b))
	require.NoError(t, err)
	require.Len(t, m.AnnounceList, 1)
	assert.Len(t, m.AnnounceList[0], 2)
}
