package udptracker

// http://bittorrent.org/beps/bep_0015.html
// http://xbtt.sourceforge.net/udp_tracker_protocol.html

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v3"
	"github.com/sleetdl/sleet/internal/logger"
	"github.com/sleetdl/sleet/internal/tracker"
)

const connectionIDMagic = 0x41727101980
const connectionIDInterval = time.Minute

// Transport is a UDP socket shared by all UDP trackers.
// It muxes tracker responses to waiting transactions by their transaction ID.
type Transport struct {
	conn *net.UDPConn
	log  logger.Logger

	connections  map[string]*connection
	transactions map[int32]*transaction
	m            sync.Mutex

	closeC chan struct{}
}

// connection is the connect-handshake state kept per tracker address.
type connection struct {
	id        int64
	timestamp time.Time
	m         sync.Mutex
}

// NewTransport returns a new Transport. The underlying socket is not opened
// until the first announce.
func NewTransport() *Transport {
	return &Transport{
		log:          logger.New("udp tracker transport"),
		connections:  make(map[string]*connection),
		transactions: make(map[int32]*transaction),
		closeC:       make(chan struct{}),
	}
}

func (t *Transport) getConnection(addr string) *connection {
	t.m.Lock()
	defer t.m.Unlock()
	conn, ok := t.connections[addr]
	if !ok {
		conn = new(connection)
		t.connections[addr] = conn
	}
	return conn
}

func (t *Transport) listen() error {
	t.m.Lock()
	defer t.m.Unlock()

	if t.conn != nil {
		return nil
	}

	var laddr net.UDPAddr
	conn, err := net.ListenUDP("udp4", &laddr)
	if err != nil {
		return err
	}

	t.conn = conn
	go t.readLoop()
	return nil
}

// Do sends the transaction request to its destination and waits for the
// response, retransmitting with the backoff described in BEP 15.
// A connect handshake is made first unless a connection ID from the last
// minute exists for the destination.
func (t *Transport) Do(ctx context.Context, trx *transaction) ([]byte, error) {
	err := t.listen()
	if err != nil {
		return nil, err
	}
	addr, err := net.ResolveUDPAddr("udp4", trx.dest)
	if err != nil {
		return nil, err
	}
	trx.addr = addr

	conn := t.getConnection(trx.addr.String())
	conn.m.Lock()
	if time.Since(conn.timestamp) > connectionIDInterval {
		id, cerr := t.connect(ctx, trx.addr)
		if cerr != nil {
			conn.m.Unlock()
			return nil, cerr
		}
		conn.id = id
		conn.timestamp = time.Now()
	}
	connectionID := conn.id
	conn.m.Unlock()

	trx.request.SetConnectionID(connectionID)
	return t.retryTransaction(ctx, t.writeTrx, trx)
}

// Close the transport and stop the read loop.
func (t *Transport) Close() error {
	close(t.closeC)
	t.m.Lock()
	defer t.m.Unlock()
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}

// readLoop reads datagrams from the socket, finds the waiting transaction
// and hands over the response bytes.
func (t *Transport) readLoop() {
	// Read buffer must be big enough to hold a UDP packet of maximum expected size.
	const maxNumWant = 1000
	bigBuf := make([]byte, 20+6*maxNumWant)
	for {
		n, err := t.conn.Read(bigBuf)
		if err != nil {
			select {
			case <-t.closeC:
			default:
				t.log.Error(err)
			}
			return
		}
		t.log.Debug("read ", n, " bytes")
		buf := bigBuf[:n]

		var header udpMessageHeader
		err = binary.Read(bytes.NewReader(buf), binary.BigEndian, &header)
		if err != nil {
			t.log.Error(err)
			continue
		}

		t.m.Lock()
		trx, ok := t.transactions[header.TransactionID]
		delete(t.transactions, header.TransactionID)
		t.m.Unlock()
		if !ok {
			t.log.Debugln("unexpected transaction_id:", header.TransactionID)
			continue
		}

		if header.Action == actionError {
			// The part after the header is the failure reason.
			trx.err = &tracker.Error{
				FailureReason: string(buf[binary.Size(header):]),
			}
			trx.Done()
			continue
		}

		// Copy the data because buf is overwritten at next read.
		trx.response = make([]byte, len(buf))
		copy(trx.response, buf)
		trx.Done()
	}
}

func (t *Transport) writeTrx(trx *transaction) {
	t.log.Debugln("writing transaction. id:", trx.ID())
	var buf bytes.Buffer
	_, err := trx.request.WriteTo(&buf)
	if err != nil {
		t.log.Error(err)
		return
	}
	_, err = t.conn.WriteTo(buf.Bytes(), trx.addr)
	if err != nil {
		t.log.Error(err)
	}
}

// connect sends a connectRequest and returns the connection ID given by the
// tracker. It does not return until the tracker replies or ctx is done.
func (t *Transport) connect(ctx context.Context, addr *net.UDPAddr) (connectionID int64, err error) {
	req := newConnectRequest()
	trx := newTransaction(req, "")
	trx.addr = addr

	data, err := t.retryTransaction(ctx, t.writeTrx, trx)
	if err != nil {
		return 0, err
	}

	var response connectResponse
	err = binary.Read(bytes.NewReader(data), binary.BigEndian, &response)
	if err != nil {
		return 0, err
	}
	if response.Action != actionConnect {
		return 0, errors.New("invalid action in connect response")
	}

	t.log.Debugf("connect response: %#v", response)
	return response.ConnectionID, nil
}

func (t *Transport) retryTransaction(ctx context.Context, f func(*transaction), trx *transaction) ([]byte, error) {
	t.m.Lock()
	t.transactions[trx.ID()] = trx
	t.m.Unlock()

	ticker := backoff.NewTicker(new(udpBackOff))
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			f(trx)
		case <-trx.done:
			// Transaction is deleted in readLoop.
			return trx.response, trx.err
		case <-ctx.Done():
			t.m.Lock()
			delete(t.transactions, trx.ID())
			t.m.Unlock()
			return nil, ctx.Err()
		}
	}
}

// udpBackOff implements backoff.BackOff with the retransmission schedule in
// BEP 15: 15 * 2^n seconds, where n starts at 0 and is capped at 8.
type udpBackOff int

func (b *udpBackOff) NextBackOff() time.Duration {
	defer func() { *b++ }()
	if *b > 8 {
		*b = 8
	}
	return time.Duration(15*(1<<uint(*b))) * time.Second
}

func (b *udpBackOff) Reset() { *b = 0 }

var _ backoff.BackOff = (*udpBackOff)(nil)
