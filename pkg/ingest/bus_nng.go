//go:build !zmq
// +build !zmq

package ingest

import (
	"errors"

	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/pull"
	"go.nanomsg.org/mangos/v3/protocol/push"

	// Register all transports
	_ "go.nanomsg.org/mangos/v3/transport/all"
)

// nngListener wraps a mangos pull socket.
type nngListener struct {
	sock mangos.Socket
}

// NewListener binds a pull socket at addr (e.g. "tcp://0.0.0.0:7100").
func NewListener(addr string) (Listener, error) {
	sock, err := pull.NewSocket()
	if err != nil {
		return nil, err
	}
	if err := sock.Listen(addr); err != nil {
		sock.Close()
		return nil, err
	}
	return &nngListener{sock: sock}, nil
}

func (l *nngListener) Recv() ([]byte, error) {
	return l.sock.Recv()
}

func (l *nngListener) Close() error {
	return l.sock.Close()
}

// nngSender wraps a mangos push socket.
type nngSender struct {
	sock mangos.Socket
}

// NewSender dials a collector's pull socket at addr.
func NewSender(addr string) (Sender, error) {
	sock, err := push.NewSocket()
	if err != nil {
		return nil, err
	}
	if err := sock.Dial(addr); err != nil {
		sock.Close()
		return nil, err
	}
	return &nngSender{sock: sock}, nil
}

func (s *nngSender) Send(f MarkFrame) error {
	return s.sock.Send(EncodeMarkFrame(f))
}

func (s *nngSender) Close() error {
	return s.sock.Close()
}

// isClosed reports whether a receive error means the socket was closed.
func isClosed(err error) bool {
	return errors.Is(err, mangos.ErrClosed)
}
