package download

import (
	"bytes"
	"net"

	"github.com/sleetdl/sleet/internal/allocator"
	"github.com/sleetdl/sleet/internal/announcer"
	"github.com/sleetdl/sleet/internal/filespan"
	"github.com/sleetdl/sleet/internal/pieceio"
	"github.com/sleetdl/sleet/internal/piecetracker"
	"github.com/sleetdl/sleet/internal/storage"
	"github.com/sleetdl/sleet/internal/tracker"
	"github.com/sleetdl/sleet/internal/verifier"
)

type pieceVerified struct {
	Index uint32
	OK    bool
	Err   error
}

func (m *Manager) run() {
	defer close(m.doneC)
	defer m.close()
	m.startAllocator()
	for {
		select {
		case <-m.closeC:
			return
		case al := <-m.allocatorResultC:
			m.handleAllocationDone(al)
		case <-m.allocatorProgressC:
			// Only the final result is used.
		case ve := <-m.verifierResultC:
			m.handleVerificationDone(ve)
		case p := <-m.verifierProgressC:
			m.checkedPieces = p.Checked
		case res := <-m.pieceVerifiedC:
			m.handlePieceVerified(res)
		case addrs := <-m.addrsFromTrackers:
			m.handleNewPeers(addrs)
		case req := <-m.statsCommandC:
			req.Response <- m.stats()
		case req := <-m.trackersCommandC:
			req.Response <- m.trackersStats()
		}
	}
}

func (m *Manager) startAllocator() {
	m.log.Infoln("opening files")
	m.allocator = allocator.New()
	go m.allocator.Run(m.info, m.sto, m.opts.Overwrite, m.allocatorProgressC, m.allocatorResultC)
}

func (m *Manager) handleAllocationDone(al *allocator.Allocator) {
	m.allocator = nil
	if al.Error != nil {
		m.fatal(al.Error)
		return
	}
	files := make([]storage.File, len(al.Files))
	m.fileLengths = make([]int64, len(al.Files))
	for i, f := range al.Files {
		files[i] = f.Storage
		m.fileLengths[i] = f.Length
	}
	data := pieceio.New(files, filespan.New(m.fileLengths), m.geo)
	m.mState.Lock()
	m.data = data
	m.mState.Unlock()
	m.startVerifier()
}

func (m *Manager) startVerifier() {
	m.log.Infoln("verifying existing data")
	m.verifier = verifier.New()
	go m.verifier.Run(m.info, m.data, m.onlyFiles(), m.verifierProgressC, m.verifierResultC)
}

func (m *Manager) onlyFiles() map[int]struct{} {
	if len(m.opts.OnlyFiles) == 0 {
		return nil
	}
	files := make(map[int]struct{}, len(m.opts.OnlyFiles))
	for _, id := range m.opts.OnlyFiles {
		files[id] = struct{}{}
	}
	return files
}

func (m *Manager) handleVerificationDone(ve *verifier.Verifier) {
	m.verifier = nil
	if ve.Error != nil {
		m.fatal(ve.Error)
		return
	}
	// Give every file its declared length so remote peers never hit a
	// short read on verified data. Failure is not fatal, a later write
	// will grow the file anyway.
	for i, length := range m.fileLengths {
		if err := m.data.Truncate(i, length); err != nil {
			m.log.Warningf("cannot resize file %d: %s", i, err)
		}
	}
	t := piecetracker.New(m.geo, ve.Bitfield, &m.counters)
	m.mState.Lock()
	m.tracker = t
	m.neededInitially = ve.NeededBytes
	m.mState.Unlock()
	m.checkedPieces = m.geo.NumPieces()
	m.log.Infof("verification done, have %d of %d pieces", ve.HavePieces, m.geo.NumPieces())
	if t.Complete() {
		m.handleCompleted()
	}
	m.startSampler()
	m.startAnnouncers()
}

func (m *Manager) startAnnouncers() {
	for _, trk := range m.trackers {
		an := announcer.NewPeriodicalAnnouncer(
			trk,
			m.cfg.TrackerNumWant,
			m.cfg.TrackerMinAnnounceInterval,
			m.opts.ForceAnnounceInterval,
			m.announcerFields,
			m.completeC,
			m.addrsFromTrackers,
			m.log,
		)
		m.announcers = append(m.announcers, an)
		go an.Run()
	}
}

// announcerFields returns a snapshot of the transfer state for announcing.
// Called from announcer goroutines.
func (m *Manager) announcerFields() tracker.Torrent {
	return tracker.Torrent{
		BytesUploaded:   m.BytesUploaded(),
		BytesDownloaded: m.BytesFetched(),
		BytesLeft:       m.BytesLeft(),
		InfoHash:        m.info.Hash,
		PeerID:          m.peerID,
		Port:            m.opts.Port,
	}
}

func (m *Manager) handleNewPeers(addrs []*net.TCPAddr) {
	m.mState.RLock()
	onPeer := m.onPeer
	m.mState.RUnlock()
	for _, addr := range addrs {
		if m.addrs.Add(addr, m.opts.Port) && onPeer != nil {
			onPeer(addr)
		}
	}
}

func (m *Manager) handleCompleted() {
	if m.completed {
		return
	}
	m.completed = true
	close(m.completeC)
	m.log.Infoln("download complete")
}

// verifyPiece hashes a completed piece and reports the outcome to the run
// loop. Runs on its own goroutine so block writes are not delayed by
// hashing.
func (m *Manager) verifyPiece(pi uint32) {
	m.mState.RLock()
	data := m.data
	m.mState.RUnlock()
	if data == nil {
		return
	}
	res := pieceVerified{Index: pi}
	digest, err := data.HashPiece(pi)
	if err != nil {
		res.Err = err
	} else {
		res.OK = bytes.Equal(digest, m.info.PieceHash(pi))
	}
	select {
	case m.pieceVerifiedC <- res:
	case <-m.closeC:
	}
}

func (m *Manager) handlePieceVerified(res pieceVerified) {
	m.mState.RLock()
	t := m.tracker
	m.mState.RUnlock()
	if t == nil {
		return
	}
	if res.Err != nil {
		m.log.Errorf("cannot hash piece %d: %s", res.Index, res.Err)
	}
	t.MarkVerified(res.Index, res.OK)
	if !res.OK {
		m.log.Warningf("piece %d failed hash check, will be downloaded again", res.Index)
		return
	}
	if t.Complete() {
		m.handleCompleted()
	}
}

func (m *Manager) fatal(err error) {
	m.log.Errorln(err)
	if m.lastError != nil {
		return
	}
	m.lastError = err
	m.errC <- err
}

// close runs on the run loop goroutine after it leaves the select.
func (m *Manager) close() {
	if m.allocator != nil {
		m.allocator.Close()
		m.allocator = nil
	}
	if m.verifier != nil {
		m.verifier.Close()
		m.verifier = nil
	}
	announced := false
	for _, an := range m.announcers {
		an.Close()
		if an.HasAnnounced {
			announced = true
		}
	}
	m.announcers = nil
	if announced {
		resultC := make(chan struct{})
		sa := announcer.NewStopAnnouncer(m.trackers, m.announcerFields(), m.cfg.TrackerStoppedEventTimeout, resultC, m.log)
		go sa.Run()
		<-resultC
		sa.Close()
	}
	m.trackerManager.Close()
	if m.samplerDoneC != nil {
		<-m.samplerDoneC
	}
	m.downloadSpeed.Stop()
	m.uploadSpeed.Stop()
	m.mState.Lock()
	if m.data != nil {
		if err := m.data.Close(); err != nil {
			m.log.Errorln("cannot close files:", err)
		}
		m.data = nil
	}
	m.tracker = nil
	m.mState.Unlock()
	m.log.Infoln("download stopped")
}
