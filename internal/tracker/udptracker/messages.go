package udptracker

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/sleetdl/sleet/internal/tracker"
)

type action int32

// Actions defined in the UDP tracker protocol.
const (
	actionConnect  action = 0
	actionAnnounce action = 1
	actionScrape   action = 2
	actionError    action = 3
)

type udpMessageHeader struct {
	Action        action
	TransactionID int32
}

func (h *udpMessageHeader) SetTransactionID(id int32) { h.TransactionID = id }

type udpRequestHeader struct {
	ConnectionID int64
	udpMessageHeader
}

func (h *udpRequestHeader) SetConnectionID(id int64) { h.ConnectionID = id }

type connectRequest struct {
	udpRequestHeader
}

func newConnectRequest() *connectRequest {
	req := new(connectRequest)
	req.Action = actionConnect
	req.ConnectionID = connectionIDMagic
	return req
}

func (r *connectRequest) WriteTo(w io.Writer) (int64, error) {
	return 0, binary.Write(w, binary.BigEndian, r)
}

type connectResponse struct {
	udpMessageHeader
	ConnectionID int64
}

type announceRequest struct {
	udpRequestHeader
	InfoHash   [20]byte
	PeerID     [20]byte
	Downloaded int64
	Left       int64
	Uploaded   int64
	Event      tracker.Event
	IP         uint32
	Key        uint32
	NumWant    int32
	Port       uint16
	Extensions uint16
}

func newAnnounceRequest(req tracker.AnnounceRequest) *announceRequest {
	r := &announceRequest{
		InfoHash:   req.Torrent.InfoHash,
		PeerID:     req.Torrent.PeerID,
		Downloaded: req.Torrent.BytesDownloaded,
		Left:       req.Torrent.BytesLeft,
		Uploaded:   req.Torrent.BytesUploaded,
		Event:      req.Event,
		NumWant:    int32(req.NumWant),
		Port:       uint16(req.Torrent.Port),
	}
	r.Action = actionAnnounce
	return r
}

type transferAnnounceRequest struct {
	*announceRequest

	// Path and query of the tracker URL, sent as a BEP 41 option.
	urlData string
}

func (r *transferAnnounceRequest) WriteTo(w io.Writer) (int64, error) {
	b := make([]byte, 0, 98+2+255)
	buf := bytes.NewBuffer(b)

	err := binary.Write(buf, binary.BigEndian, r.announceRequest)
	if err != nil {
		return 0, err
	}

	// URL data is split into chunks of maximum 255 bytes.
	pos := 0
	for pos < len(r.urlData) {
		remaining := len(r.urlData) - pos
		var size int
		if remaining > 255 {
			size = 255
		} else {
			size = remaining
		}
		_, err = buf.Write([]byte{0x2, byte(size)})
		if err != nil {
			return 0, err
		}
		_, err = buf.WriteString(r.urlData[pos : pos+size])
		if err != nil {
			return 0, err
		}
		pos += size
	}

	return buf.WriteTo(w)
}

type udpAnnounceResponse struct {
	udpMessageHeader
	Interval int32
	Leechers int32
	Seeders  int32
}
