package download

import (
	"time"

	"github.com/sleetdl/sleet/internal/counters"
)

const speedSampleInterval = time.Second

func (m *Manager) startSampler() {
	m.samplerDoneC = make(chan struct{})
	go m.runSampler()
}

// runSampler feeds the transfer counters into the speed meters once a
// second. The meters do their own decaying average.
func (m *Manager) runSampler() {
	defer close(m.samplerDoneC)
	ticker := time.NewTicker(speedSampleInterval)
	defer ticker.Stop()
	var lastFetched, lastUploaded int64
	for {
		select {
		case <-ticker.C:
			fetched := m.counters.Read(counters.BytesFetched)
			uploaded := m.counters.Read(counters.BytesUploaded)
			m.downloadSpeed.Mark(fetched - lastFetched)
			m.uploadSpeed.Mark(uploaded - lastUploaded)
			lastFetched, lastUploaded = fetched, uploaded
		case <-m.closeC:
			return
		}
	}
}
