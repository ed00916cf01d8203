package announcer

import (
	"context"
	"errors"
	"math"
	"net"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/sleetdl/sleet/internal/logger"
	"github.com/sleetdl/sleet/internal/tracker"
	"github.com/sleetdl/sleet/internal/tracker/httptracker"
)

// Status of the announcer.
type Status int

// Statuses of the announcer.
const (
	NotContactedYet Status = iota
	Contacting
	Working
	NotWorking
)

// Announces are retried after this duration when the tracker does not say when.
const announceFailureWait = time.Minute

// PeriodicalAnnouncer announces the download to a single tracker endpoint in
// regular intervals. Each tracker gets its own announcer; announcers share
// nothing but the channel that carries discovered peers.
type PeriodicalAnnouncer struct {
	Tracker       tracker.Tracker
	status        Status
	statsCommandC chan statsRequest
	numWant       int
	minInterval   time.Duration
	forceInterval time.Duration
	seeders       int
	leechers      int
	lastError     *AnnounceError
	log           logger.Logger
	completedC    chan struct{}
	newPeers      chan []*net.TCPAddr
	getTorrent    func() tracker.Torrent
	sentEvent     tracker.Event
	pendingEvent  tracker.Event
	lastAnnounce  time.Time
	HasAnnounced  bool
	announceC     chan announceResult
	closeC        chan struct{}
	doneC         chan struct{}
}

// NewPeriodicalAnnouncer returns a new PeriodicalAnnouncer.
// getTorrent is called before each announce to read the current transfer counters.
func NewPeriodicalAnnouncer(trk tracker.Tracker, numWant int, minInterval, forceInterval time.Duration, getTorrent func() tracker.Torrent, completedC chan struct{}, newPeers chan []*net.TCPAddr, l logger.Logger) *PeriodicalAnnouncer {
	return &PeriodicalAnnouncer{
		Tracker:       trk,
		status:        NotContactedYet,
		statsCommandC: make(chan statsRequest),
		numWant:       numWant,
		minInterval:   minInterval,
		forceInterval: forceInterval,
		log:           l,
		completedC:    completedC,
		newPeers:      newPeers,
		getTorrent:    getTorrent,
		pendingEvent:  tracker.EventStarted,
		announceC:     make(chan announceResult),
		closeC:        make(chan struct{}),
		doneC:         make(chan struct{}),
	}
}

// Close the announcer.
func (a *PeriodicalAnnouncer) Close() {
	close(a.closeC)
	<-a.doneC
}

type statsRequest struct {
	Response chan Stats
}

// Stats about the announcer.
func (a *PeriodicalAnnouncer) Stats() Stats {
	var stats Stats
	req := statsRequest{Response: make(chan Stats, 1)}
	select {
	case a.statsCommandC <- req:
	case <-a.closeC:
	}
	select {
	case stats = <-req.Response:
	case <-a.closeC:
	}
	return stats
}

// Run the announcer. Invoke with go statement.
func (a *PeriodicalAnnouncer) Run() {
	defer close(a.doneC)

	timer := time.NewTimer(math.MaxInt64)
	defer timer.Stop()

	// BEP 0003: No completed is sent if the download was complete when started.
	select {
	case <-a.completedC:
		a.completedC = nil
	default:
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.sentEvent = a.pendingEvent
	go a.announce(ctx, a.sentEvent, a.numWant)
	a.status = Contacting
	for {
		select {
		case <-timer.C:
			if a.status == Contacting {
				break
			}
			a.sentEvent = a.pendingEvent
			go a.announce(ctx, a.sentEvent, a.numWant)
			a.status = Contacting
		case res := <-a.announceC:
			a.lastAnnounce = time.Now()
			if res.err != nil {
				a.status = NotWorking
				// Give more friendly error to the user
				a.lastError = newAnnounceError(res.err)
				if a.lastError.Unknown {
					a.log.Errorln("announce error:", a.lastError.ErrorWithType())
				} else {
					a.log.Debugln("announce error:", a.lastError.Err.Error())
				}
			} else {
				a.status = Working
				a.seeders = int(res.resp.Seeders)
				a.leechers = int(res.resp.Leechers)
				a.HasAnnounced = true
				a.lastError = nil
				if !a.sendPeers(res.resp.Peers) {
					return
				}
			}
			d, next := nextAnnounce(a.sentEvent, res.resp, res.err, a.minInterval, a.forceInterval)
			a.pendingEvent = next
			timer.Reset(d)
		case <-a.completedC:
			if a.status == Contacting {
				cancel()
				ctx, cancel = context.WithCancel(context.Background())
			}
			a.sentEvent = tracker.EventCompleted
			go a.announce(ctx, a.sentEvent, 0)
			a.status = Contacting
			a.completedC = nil // do not send more than one "completed" event
		case req := <-a.statsCommandC:
			req.Response <- a.stats()
		case <-a.closeC:
			return
		}
	}
}

// sendPeers delivers discovered peers to the receiver. Announcing pauses
// until the receiver drains them, but stats requests keep being answered
// so a receiver asking for stats at the same moment cannot deadlock with
// the delivery. Reports false when the announcer was closed while waiting.
func (a *PeriodicalAnnouncer) sendPeers(peers []*net.TCPAddr) bool {
	for {
		select {
		case a.newPeers <- peers:
			return true
		case req := <-a.statsCommandC:
			req.Response <- a.stats()
		case <-a.closeC:
			return false
		}
	}
}

// nextAnnounce is the retry policy. From the event just attempted and its
// outcome, it decides how long to wait before the next announce and which
// event that announce carries.
func nextAnnounce(sent tracker.Event, resp *tracker.AnnounceResponse, err error, minInterval, forceInterval time.Duration) (time.Duration, tracker.Event) {
	if err != nil {
		// The event is kept so a failed "started" announce is retried as "started".
		var terr *tracker.Error
		if errors.As(err, &terr) && terr.RetryIn > 0 {
			return terr.RetryIn, sent
		}
		return announceFailureWait, sent
	}
	if forceInterval > 0 {
		return forceInterval, tracker.EventNone
	}
	interval := resp.Interval
	if interval < minInterval {
		interval = minInterval
	}
	return interval, tracker.EventNone
}

// announceResult is the outcome of one announce, successful or not.
type announceResult struct {
	resp *tracker.AnnounceResponse
	err  error
}

// announce makes one announce request off the run loop and posts the
// outcome back to it. Nothing is posted when the context is canceled.
func (a *PeriodicalAnnouncer) announce(ctx context.Context, event tracker.Event, numWant int) {
	resp, err := a.Tracker.Announce(ctx, tracker.AnnounceRequest{
		Torrent: a.getTorrent(),
		Event:   event,
		NumWant: numWant,
	})
	if err == context.Canceled {
		return
	}
	select {
	case a.announceC <- announceResult{resp: resp, err: err}:
	case <-ctx.Done():
	}
}

// Stats about the announcer.
type Stats struct {
	Status   Status
	Error    *AnnounceError
	Seeders  int
	Leechers int
}

func (a *PeriodicalAnnouncer) stats() Stats {
	return Stats{
		Status:   a.status,
		Error:    a.lastError,
		Seeders:  a.seeders,
		Leechers: a.leechers,
	}
}

// AnnounceError the error returned from the announce request to the tracker.
type AnnounceError struct {
	Err     error
	Message string
	Unknown bool
}

func newAnnounceError(err error) (e *AnnounceError) {
	e = &AnnounceError{Err: err}
	switch err := err.(type) {
	case *net.DNSError:
		s := err.Error()
		if strings.HasSuffix(s, "no such host") {
			e.Message = "host not found: " + err.Name
			return
		}
	case *url.Error:
		s := err.Error()
		if strings.HasSuffix(s, "connection refused") {
			e.Message = "tracker refused the connection"
			return
		}
	case net.Error:
		if err.Timeout() {
			e.Message = "timeout contacting tracker"
			return
		}
	case *httptracker.StatusError:
		if err.Code == 403 || err.Code == 404 {
			e.Message = "tracker returned http status: " + strconv.Itoa(err.Code)
			return
		}
	case *tracker.Error:
		e.Message = "announce error: " + err.FailureReason
		return
	}
	e.Message = "unknown error in announce"
	e.Unknown = true
	return
}

func (e *AnnounceError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error from the announce.
func (e *AnnounceError) Unwrap() error {
	return e.Err
}

// ErrorWithType returns the error string with its type.
func (e *AnnounceError) ErrorWithType() string {
	return reflect.TypeOf(e.Err).String() + ": " + e.Err.Error()
}
