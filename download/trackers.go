package download

// TrackerStatus of a tracker within the announce loop.
type TrackerStatus int

const (
	// NotContactedYet means no announce has been attempted.
	NotContactedYet TrackerStatus = iota
	// Contacting means an announce is in flight.
	Contacting
	// Working means the last announce succeeded.
	Working
	// NotWorking means the last announce failed.
	NotWorking
)

// Tracker is a snapshot of one announcer.
type Tracker struct {
	URL      string
	Status   TrackerStatus
	Leechers int
	Seeders  int
	// Error from the last announce, nil when Working.
	Error error
}

type trackersRequest struct {
	Response chan []Tracker
}

// Trackers returns one entry per configured tracker with the state of its
// announce loop. Returns nil after the Manager is closed.
func (m *Manager) Trackers() []Tracker {
	var trackers []Tracker
	req := trackersRequest{Response: make(chan []Tracker, 1)}
	select {
	case m.trackersCommandC <- req:
	case <-m.closeC:
		return trackers
	}
	select {
	case trackers = <-req.Response:
	case <-m.closeC:
	}
	return trackers
}

func (m *Manager) trackersStats() []Tracker {
	trackers := make([]Tracker, 0, len(m.trackers))
	for i, trk := range m.trackers {
		t := Tracker{URL: trk.URL(), Status: NotContactedYet}
		// Announcers start after the initial check, in tracker order.
		if i < len(m.announcers) {
			st := m.announcers[i].Stats()
			// TrackerStatus values match announcer.Status values.
			t.Status = TrackerStatus(st.Status)
			t.Leechers = st.Leechers
			t.Seeders = st.Seeders
			if st.Error != nil {
				t.Error = st.Error
			}
		}
		trackers = append(trackers, t)
	}
	return trackers
}
