package udptracker

import (
	"io"
	"math/rand"
	"net"
)

type udpRequest interface {
	io.WriterTo
	SetConnectionID(id int64)
	SetTransactionID(id int32)
}

type transaction struct {
	request udpRequest
	id      int32
	dest    string
	addr    *net.UDPAddr

	// Closed by the read loop when the tracker has replied.
	done     chan struct{}
	response []byte
	err      error
}

func newTransaction(req udpRequest, dest string) *transaction {
	id := rand.Int31() // nolint: gosec
	req.SetTransactionID(id)
	return &transaction{
		request: req,
		id:      id,
		dest:    dest,
		done:    make(chan struct{}),
	}
}

func (t *transaction) ID() int32 { return t.id }

func (t *transaction) Done() { close(t.done) }
