// Package tracker provides support for announcing downloads to HTTP and UDP trackers.
package tracker

import (
	"context"
	"errors"
	"net"
	"time"
)

type Tracker interface {
	// Announce the download to the tracker.
	// Announce is called periodically with the interval returned in the
	// previous AnnounceResponse, and on state-change events.
	Announce(ctx context.Context, req AnnounceRequest) (*AnnounceResponse, error)

	// URL of the tracker.
	URL() string
}

type AnnounceRequest struct {
	Torrent Torrent
	Event   Event
	NumWant int
}

type AnnounceResponse struct {
	Interval       time.Duration
	MinInterval    time.Duration
	Leechers       int32
	Seeders        int32
	WarningMessage string
	Peers          []*net.TCPAddr
	ExternalIP     net.IP
}

// ErrDecode is returned from Announce when the response cannot be decoded.
var ErrDecode = errors.New("cannot decode response")

// Error is a failure reason sent by the tracker in an announce response.
type Error struct {
	FailureReason string
	RetryIn       time.Duration
}

func (e *Error) Error() string { return e.FailureReason }
