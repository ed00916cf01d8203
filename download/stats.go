package download

import (
	"github.com/sleetdl/sleet/internal/counters"
	"github.com/sleetdl/sleet/internal/piecetracker"
)

type statsRequest struct {
	Response chan Stats
}

// Stats is a point in time snapshot of a Manager.
type Stats struct {
	// Name of the torrent.
	Name string
	// Total length of the files in bytes.
	TotalLength int64
	// True once the files are opened and the startup hash check is done.
	InitialCheckDone bool
	// Number of pieces hashed so far during the startup check.
	CheckedPieces uint32
	// Piece counts by download state. All zero until the check is done.
	Pieces piecetracker.Stats
	// Block payload bytes written to disk, duplicates included.
	BytesFetched int64
	// Bytes of pieces downloaded and verified since the start.
	BytesVerified int64
	// Bytes served to remote peers.
	BytesUploaded int64
	// Bytes of pieces that failed the hash check and were thrown away.
	BytesWasted int64
	// Bytes still missing on disk.
	BytesLeft int64
	// Number of distinct peer addresses seen.
	Peers int
	// Transfer speeds in bytes per second, averaged over the last minute.
	DownloadSpeed int
	UploadSpeed   int
	// The error that stopped the download, nil while healthy.
	Error error
}

// Stats returns a snapshot of the download state.
// Returns a zero Stats after the Manager is closed.
func (m *Manager) Stats() Stats {
	var stats Stats
	req := statsRequest{Response: make(chan Stats, 1)}
	select {
	case m.statsCommandC <- req:
	case <-m.closeC:
		return stats
	}
	select {
	case stats = <-req.Response:
	case <-m.closeC:
	}
	return stats
}

func (m *Manager) stats() Stats {
	s := Stats{
		Name:          m.info.Name,
		TotalLength:   m.geo.TotalLength(),
		CheckedPieces: m.checkedPieces,
		BytesFetched:  m.counters.Read(counters.BytesFetched),
		BytesVerified: m.counters.Read(counters.BytesVerified),
		BytesUploaded: m.counters.Read(counters.BytesUploaded),
		BytesWasted:   m.counters.Read(counters.BytesWasted),
		BytesLeft:     m.BytesLeft(),
		Peers:         m.addrs.Len(),
		DownloadSpeed: int(m.downloadSpeed.Rate1()),
		UploadSpeed:   int(m.uploadSpeed.Rate1()),
		Error:         m.lastError,
	}
	m.mState.RLock()
	t := m.tracker
	m.mState.RUnlock()
	if t != nil {
		s.InitialCheckDone = true
		s.Pieces = t.Stats()
	}
	return s
}
