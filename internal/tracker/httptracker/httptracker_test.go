package httptracker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/sleetdl/sleet/internal/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/bencode"
)

const timeout = 2 * time.Second

func newTestTracker(t *testing.T, handler http.Handler, opts Options) (*HTTPTracker, func()) {
	srv := httptest.NewServer(handler)
	u, err := url.Parse(srv.URL + "/announce")
	require.NoError(t, err)
	trk := New(u.String(), u, timeout, new(http.Transport), opts)
	return trk, srv.Close
}

func testRequest() tracker.AnnounceRequest {
	return tracker.AnnounceRequest{
		Torrent: tracker.Torrent{
			InfoHash:        [20]byte{0x66},
			PeerID:          [20]byte{0x01},
			Port:            1111,
			BytesUploaded:   100,
			BytesDownloaded: 200,
			BytesLeft:       300,
		},
		Event:   tracker.EventStarted,
		NumWant: 50,
	}
}

func TestAnnounceParams(t *testing.T) {
	var query url.Values
	trk, stop := newTestTracker(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		_ = bencode.NewEncoder(w).Encode(map[string]interface{}{
			"interval": 1800,
			"peers":    "",
		})
	}), Options{Key: "abcd1234", PublicIP: "4.3.2.1"})
	defer stop()

	resp, err := trk.Announce(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, resp.Interval)

	infoHash := [20]byte{0x66}
	peerID := [20]byte{0x01}
	assert.Equal(t, string(infoHash[:]), query.Get("info_hash"))
	assert.Equal(t, string(peerID[:]), query.Get("peer_id"))
	assert.Equal(t, "1111", query.Get("port"))
	assert.Equal(t, "100", query.Get("uploaded"))
	assert.Equal(t, "200", query.Get("downloaded"))
	assert.Equal(t, "300", query.Get("left"))
	assert.Equal(t, "1", query.Get("compact"))
	assert.Equal(t, "0", query.Get("no_peer_id"))
	assert.Equal(t, "50", query.Get("numwant"))
	assert.Equal(t, "started", query.Get("event"))
	assert.Equal(t, "abcd1234", query.Get("key"))
	assert.Equal(t, "4.3.2.1", query.Get("ip"))
}

func TestAnnounceNoEventParam(t *testing.T) {
	var query url.Values
	trk, stop := newTestTracker(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		_ = bencode.NewEncoder(w).Encode(map[string]interface{}{"interval": 60, "peers": ""})
	}), Options{})
	defer stop()

	req := testRequest()
	req.Event = tracker.EventNone
	_, err := trk.Announce(context.Background(), req)
	require.NoError(t, err)
	_, hasEvent := query["event"]
	assert.False(t, hasEvent)
	_, hasKey := query["key"]
	assert.False(t, hasKey)
	_, hasIP := query["ip"]
	assert.False(t, hasIP)
}

func TestAnnounceCompactPeers(t *testing.T) {
	trk, stop := newTestTracker(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		peers := string([]byte{
			1, 2, 3, 4, 0x04, 0xd2,
			5, 6, 7, 8, 0x10, 0xe1,
		})
		_ = bencode.NewEncoder(w).Encode(map[string]interface{}{
			"interval":     1800,
			"min interval": 60,
			"complete":     3,
			"incomplete":   4,
			"peers":        peers,
		})
	}), Options{})
	defer stop()

	resp, err := trk.Announce(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, resp.Interval)
	assert.Equal(t, time.Minute, resp.MinInterval)
	assert.Equal(t, int32(3), resp.Seeders)
	assert.Equal(t, int32(4), resp.Leechers)
	require.Len(t, resp.Peers, 2)
	assert.Equal(t, "1.2.3.4:1234", resp.Peers[0].String())
	assert.Equal(t, "5.6.7.8:4321", resp.Peers[1].String())
}

func TestAnnounceDictionaryPeers(t *testing.T) {
	trk, stop := newTestTracker(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = bencode.NewEncoder(w).Encode(map[string]interface{}{
			"interval": 1800,
			"peers": []map[string]interface{}{
				{"ip": "1.2.3.4", "port": 1234},
				{"ip": "5.6.7.8", "port": 4321},
			},
		})
	}), Options{})
	defer stop()

	resp, err := trk.Announce(context.Background(), testRequest())
	require.NoError(t, err)
	require.Len(t, resp.Peers, 2)
	assert.Equal(t, "1.2.3.4:1234", resp.Peers[0].String())
	assert.Equal(t, "5.6.7.8:4321", resp.Peers[1].String())
}

func TestAnnounceFailureReason(t *testing.T) {
	trk, stop := newTestTracker(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = bencode.NewEncoder(w).Encode(map[string]interface{}{
			"failure reason": "torrent not registered",
			"retry in":       "5",
		})
	}), Options{})
	defer stop()

	_, err := trk.Announce(context.Background(), testRequest())
	var terr *tracker.Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "torrent not registered", terr.FailureReason)
	assert.Equal(t, 5*time.Minute, terr.RetryIn)
}

func TestAnnounceTrackerID(t *testing.T) {
	var gotTrackerID string
	first := true
	trk, stop := newTestTracker(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTrackerID = r.URL.Query().Get("trackerid")
		resp := map[string]interface{}{"interval": 60, "peers": ""}
		if first {
			resp["tracker id"] = "tid-1"
			first = false
		}
		_ = bencode.NewEncoder(w).Encode(resp)
	}), Options{})
	defer stop()

	_, err := trk.Announce(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "", gotTrackerID)

	_, err = trk.Announce(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "tid-1", gotTrackerID)
}

func TestAnnounceHTTPError(t *testing.T) {
	trk, stop := newTestTracker(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "tracker is down", http.StatusServiceUnavailable)
	}), Options{})
	defer stop()

	_, err := trk.Announce(context.Background(), testRequest())
	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusServiceUnavailable, serr.Code)
}

func TestAnnounceInvalidResponse(t *testing.T) {
	trk, stop := newTestTracker(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not bencode</html>"))
	}), Options{})
	defer stop()

	_, err := trk.Announce(context.Background(), testRequest())
	require.ErrorIs(t, err, tracker.ErrDecode)
}

func TestAnnounceExternalIPFiltered(t *testing.T) {
	trk, stop := newTestTracker(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		peers := string([]byte{
			1, 2, 3, 4, 0x04, 0xd2,
			9, 9, 9, 9, 0x10, 0xe1,
		})
		_ = bencode.NewEncoder(w).Encode(map[string]interface{}{
			"interval":    1800,
			"peers":       peers,
			"external ip": string([]byte{9, 9, 9, 9}),
		})
	}), Options{})
	defer stop()

	resp, err := trk.Announce(context.Background(), testRequest())
	require.NoError(t, err)
	require.Len(t, resp.Peers, 1)
	assert.Equal(t, "1.2.3.4:1234", resp.Peers[0].String())
}
