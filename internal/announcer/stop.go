package announcer

import (
	"context"
	"errors"
	"time"

	"github.com/sleetdl/sleet/internal/logger"
	"github.com/sleetdl/sleet/internal/tracker"
)

// StopAnnouncer tells all trackers in parallel that the download has stopped.
// It quits after every tracker has answered or the timeout has passed.
type StopAnnouncer struct {
	log      logger.Logger
	timeout  time.Duration
	trackers []tracker.Tracker
	torrent  tracker.Torrent
	resultC  chan struct{}
	closeC   chan struct{}
	doneC    chan struct{}
}

// NewStopAnnouncer returns a new StopAnnouncer.
func NewStopAnnouncer(trackers []tracker.Tracker, tra tracker.Torrent, timeout time.Duration, resultC chan struct{}, l logger.Logger) *StopAnnouncer {
	return &StopAnnouncer{
		log:      l,
		timeout:  timeout,
		trackers: trackers,
		torrent:  tra,
		resultC:  resultC,
		closeC:   make(chan struct{}),
		doneC:    make(chan struct{}),
	}
}

// Close the announcer.
func (a *StopAnnouncer) Close() {
	close(a.closeC)
	<-a.doneC
}

// Run the announcer. Invoke with go statement.
func (a *StopAnnouncer) Run() {
	defer close(a.doneC)

	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	// Sized so senders never block when Run returns early.
	stoppedC := make(chan struct{}, len(a.trackers))
	for _, trk := range a.trackers {
		go func(trk tracker.Tracker) {
			a.announceStopped(ctx, trk)
			stoppedC <- struct{}{}
		}(trk)
	}
	for range a.trackers {
		select {
		case <-stoppedC:
		case <-a.closeC:
			return
		}
	}
	select {
	case a.resultC <- struct{}{}:
	case <-a.closeC:
	}
}

// announceStopped sends the stopped event to a single tracker.
// Failures are logged and not retried.
func (a *StopAnnouncer) announceStopped(ctx context.Context, trk tracker.Tracker) {
	req := tracker.AnnounceRequest{
		Torrent: a.torrent,
		Event:   tracker.EventStopped,
	}
	_, err := trk.Announce(ctx, req)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		a.log.Debugf("stop announce to %s: %s", trk.URL(), err)
	}
}
