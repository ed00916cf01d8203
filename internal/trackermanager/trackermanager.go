package trackermanager

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sleetdl/sleet/internal/tracker"
	"github.com/sleetdl/sleet/internal/tracker/httptracker"
	"github.com/sleetdl/sleet/internal/tracker/udptracker"
)

// TrackerManager creates tracker clients for announce URLs.
// HTTP trackers share a single http.Transport, UDP trackers share a single socket.
type TrackerManager struct {
	httpTransport *http.Transport
	udpTransport  *udptracker.Transport
}

// New returns a new TrackerManager.
func New() *TrackerManager {
	return &TrackerManager{
		httpTransport: new(http.Transport),
		udpTransport:  udptracker.NewTransport(),
	}
}

// Close the manager and the transports shared by its trackers.
func (m *TrackerManager) Close() error {
	m.httpTransport.CloseIdleConnections()
	return m.udpTransport.Close()
}

// Get returns a tracker client for the URL in s.
func (m *TrackerManager) Get(s string, httpTimeout time.Duration, opts httptracker.Options) (tracker.Tracker, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http", "https":
		return httptracker.New(s, u, httpTimeout, m.httpTransport, opts), nil
	case "udp":
		return udptracker.New(s, u, m.udpTransport), nil
	default:
		return nil, fmt.Errorf("unsupported tracker scheme: %s", u.Scheme)
	}
}
