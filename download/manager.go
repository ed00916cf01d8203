// Package download implements the state engine of a single download.
//
// A Manager opens the files of a torrent on disk, hash checks the data that
// is already there, then tracks every piece through the needed, in progress,
// complete and verified states while announcing progress to the configured
// trackers. It does not speak the peer wire protocol. A transport layer
// drives it through PickBlock, WriteBlock and ReadBlock and learns about
// discovered peers through OnPeer.
package download

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/juju/ratelimit"
	"github.com/rcrowley/go-metrics"
	"github.com/sleetdl/sleet/internal/addrset"
	"github.com/sleetdl/sleet/internal/allocator"
	"github.com/sleetdl/sleet/internal/announcer"
	"github.com/sleetdl/sleet/internal/counters"
	"github.com/sleetdl/sleet/internal/lengths"
	"github.com/sleetdl/sleet/internal/logger"
	"github.com/sleetdl/sleet/internal/metainfo"
	"github.com/sleetdl/sleet/internal/pieceio"
	"github.com/sleetdl/sleet/internal/piecetracker"
	"github.com/sleetdl/sleet/internal/storage"
	"github.com/sleetdl/sleet/internal/storage/filestorage"
	"github.com/sleetdl/sleet/internal/tracker"
	"github.com/sleetdl/sleet/internal/tracker/httptracker"
	"github.com/sleetdl/sleet/internal/trackermanager"
	"github.com/sleetdl/sleet/internal/verifier"
)

// Version of client. Set during build.
// "0000" is the default value and is meant to be replaced with -ldflags.
var Version = "0000"

var peerIDPrefix = []byte("-SL" + Version + "-")

var (
	// ErrClosed is returned from block operations after Close.
	ErrClosed = errors.New("download is closed")
	// ErrNotReady is returned from block operations until the files are
	// opened and the initial disk check has finished.
	ErrNotReady = errors.New("initial check is not finished")
)

// Manager tracks the download state of a single torrent.
type Manager struct {
	id     string
	info   *metainfo.Info
	opts   Options
	cfg    Config
	geo    lengths.Lengths
	peerID [20]byte
	sto    storage.Storage
	log    logger.Logger

	// Set on the run loop when the files are opened and the initial check
	// is done. Guarded by mState because block operations and announcers
	// read them from their own goroutines.
	mState          sync.RWMutex
	data            *pieceio.Data
	tracker         *piecetracker.PieceTracker
	neededInitially int64
	onPeer          func(*net.TCPAddr)

	counters counters.Counters
	addrs    *addrset.AddrSet

	// Declared file lengths, in torrent order. Set after allocation.
	fileLengths []int64

	allocator *allocator.Allocator
	verifier  *verifier.Verifier

	checkedPieces uint32
	completed     bool
	lastError     error

	trackerManager *trackermanager.TrackerManager
	trackers       []tracker.Tracker
	announcers     []*announcer.PeriodicalAnnouncer

	downloadSpeed metrics.Meter
	uploadSpeed   metrics.Meter

	downloadBucket *ratelimit.Bucket
	uploadBucket   *ratelimit.Bucket

	allocatorProgressC chan allocator.Progress
	allocatorResultC   chan *allocator.Allocator
	verifierProgressC  chan verifier.Progress
	verifierResultC    chan *verifier.Verifier
	pieceVerifiedC     chan pieceVerified
	addrsFromTrackers  chan []*net.TCPAddr
	statsCommandC      chan statsRequest
	trackersCommandC   chan trackersRequest
	completeC          chan struct{}
	errC               chan error
	samplerDoneC       chan struct{}

	closeOnce sync.Once
	closeC    chan struct{}
	doneC     chan struct{}
}

// Options for creating a new Manager.
// Everything except Dest and Port is optional.
type Options struct {
	// Dest is the directory the files are written into.
	Dest string
	// Overwrite allows opening files that already exist on disk.
	// Existing content is kept and rechecked, never deleted.
	Overwrite bool
	// OnlyFiles restricts the initial disk check to the files with these
	// indexes. Pieces overlapping any other file are treated as missing
	// without being hashed.
	OnlyFiles []int
	// Port is the TCP port number announced to trackers.
	Port int
	// Trackers to announce to. The outer slice is the tier list from the
	// torrent file. Every distinct URL gets its own announcer.
	Trackers [][]string
	// PeerID overrides the generated peer ID when non-zero.
	PeerID [20]byte
	// BlockLength overrides the transfer block size. Zero selects the
	// 16 KiB default.
	BlockLength uint32
	// ForceAnnounceInterval overrides the announce interval returned by
	// trackers. Zero means obey the trackers.
	ForceAnnounceInterval time.Duration
}

// New creates a Manager for the torrent described by info and starts it.
// The files are opened under opts.Dest and existing data is hash checked in
// the background. Block operations return ErrNotReady until the check is
// done. The Manager must be stopped with Close.
func New(info *metainfo.Info, opts Options, cfg Config) (*Manager, error) {
	blockLength := opts.BlockLength
	if blockLength == 0 {
		blockLength = lengths.DefaultBlockLength
	}
	geo, err := lengths.NewWithBlockLength(info.TotalLength, info.PieceLength, blockLength)
	if err != nil {
		return nil, err
	}
	sto, err := filestorage.New(opts.Dest)
	if err != nil {
		return nil, err
	}
	u1, err := uuid.NewV1()
	if err != nil {
		return nil, err
	}
	id := base64.RawURLEncoding.EncodeToString(u1[:])
	peerID := opts.PeerID
	if peerID == ([20]byte{}) {
		peerID, err = generatePeerID()
		if err != nil {
			return nil, err
		}
	}
	var downloadBucket, uploadBucket *ratelimit.Bucket
	if cfg.SpeedLimitDownload > 0 {
		b := cfg.SpeedLimitDownload * 1024
		downloadBucket = ratelimit.NewBucketWithRate(float64(b), b)
	}
	if cfg.SpeedLimitUpload > 0 {
		b := cfg.SpeedLimitUpload * 1024
		uploadBucket = ratelimit.NewBucketWithRate(float64(b), b)
	}
	m := &Manager{
		id:                 id,
		info:               info,
		opts:               opts,
		cfg:                cfg,
		geo:                geo,
		peerID:             peerID,
		sto:                sto,
		log:                logger.New("download " + id),
		addrs:              addrset.New(),
		trackerManager:     trackermanager.New(),
		downloadSpeed:      metrics.NewMeter(),
		uploadSpeed:        metrics.NewMeter(),
		downloadBucket:     downloadBucket,
		uploadBucket:       uploadBucket,
		allocatorProgressC: make(chan allocator.Progress),
		allocatorResultC:   make(chan *allocator.Allocator),
		verifierProgressC:  make(chan verifier.Progress),
		verifierResultC:    make(chan *verifier.Verifier),
		pieceVerifiedC:     make(chan pieceVerified),
		addrsFromTrackers:  make(chan []*net.TCPAddr),
		statsCommandC:      make(chan statsRequest),
		trackersCommandC:   make(chan trackersRequest),
		completeC:          make(chan struct{}),
		errC:               make(chan error, 1),
		closeC:             make(chan struct{}),
		doneC:              make(chan struct{}),
	}
	m.createTrackers()
	go m.run()
	return m, nil
}

func generatePeerID() (peerID [20]byte, err error) {
	buf := make([]byte, len(peerID)-len(peerIDPrefix))
	_, err = rand.Read(buf)
	if err != nil {
		return
	}
	copy(peerID[:], peerIDPrefix)
	copy(peerID[len(peerIDPrefix):], buf)
	return
}

func (m *Manager) createTrackers() {
	opts := httptracker.Options{
		Key:      m.cfg.TrackerKey,
		PublicIP: m.cfg.PublicIP,
	}
	seen := make(map[string]struct{})
	for _, tier := range m.opts.Trackers {
		for _, s := range tier {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			t, err := m.trackerManager.Get(s, m.cfg.HTTPTrackerTimeout, opts)
			if err != nil {
				m.log.Warningf("skipping tracker %q: %s", s, err)
				continue
			}
			m.trackers = append(m.trackers, t)
		}
	}
}
