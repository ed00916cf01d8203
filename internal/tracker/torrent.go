package tracker

// Torrent contains the download state reported in an announce request.
// BytesDownloaded is the raw fetched counter, duplicates included.
// BytesLeft is derived from verified bytes only.
type Torrent struct {
	BytesUploaded   int64
	BytesDownloaded int64
	BytesLeft       int64
	InfoHash        [20]byte
	PeerID          [20]byte
	Port            int
}
