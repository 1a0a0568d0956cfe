//go:build zmq
// +build zmq

package ingest

import (
	"strings"

	zmq "github.com/pebbe/zmq4"
)

// zmqListener wraps a ZeroMQ PULL socket.
type zmqListener struct {
	sock *zmq.Socket
}

// NewListener binds a PULL socket at addr (e.g. "tcp://0.0.0.0:7100").
func NewListener(addr string) (Listener, error) {
	sock, err := zmq.NewSocket(zmq.PULL)
	if err != nil {
		return nil, err
	}
	if err := sock.Bind(addr); err != nil {
		sock.Close()
		return nil, err
	}
	return &zmqListener{sock: sock}, nil
}

func (l *zmqListener) Recv() ([]byte, error) {
	return l.sock.RecvBytes(0)
}

func (l *zmqListener) Close() error {
	return l.sock.Close()
}

// zmqSender wraps a ZeroMQ PUSH socket.
type zmqSender struct {
	sock *zmq.Socket
}

// NewSender connects a PUSH socket to a collector at addr.
func NewSender(addr string) (Sender, error) {
	sock, err := zmq.NewSocket(zmq.PUSH)
	if err != nil {
		return nil, err
	}
	if err := sock.Connect(addr); err != nil {
		sock.Close()
		return nil, err
	}
	return &zmqSender{sock: sock}, nil
}

func (s *zmqSender) Send(f MarkFrame) error {
	_, err := s.sock.SendBytes(EncodeMarkFrame(f), 0)
	return err
}

func (s *zmqSender) Close() error {
	return s.sock.Close()
}

// isClosed reports whether a receive error means the socket was closed.
func isClosed(err error) bool {
	if zmq.AsErrno(err) == zmq.ETERM {
		return true
	}
	return strings.Contains(err.Error(), "Socket is closed")
}
