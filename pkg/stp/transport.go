package stp

import (
	"errors"
	"fmt"
	"net"
)

// Transport is the narrow socket abstraction the state machines are built
// against, in the spirit of the teacher's can.Bus interface: the protocol
// logic sends and receives raw datagrams and never touches a net.Conn
// directly, so it can be driven over an in-memory fake in tests.
type Transport interface {
	// Send transmits a raw datagram. Never blocks meaningfully on a
	// connected UDP socket.
	Send(raw []byte) error
	// Recv blocks until a datagram arrives or the transport is closed, in
	// which case it returns a FatalSocketError.
	Recv() ([]byte, error)
	Close() error
}

// udpTransport is a Transport backed by a connected IPv4 loopback UDP
// socket, bound to localPort and connected to (127.0.0.1, peerPort).
type udpTransport struct {
	conn *net.UDPConn
}

// DialLoopback binds a UDP socket on 127.0.0.1:localPort and connects it to
// 127.0.0.1:peerPort, per spec.md §6's "peers connect over IPv4 loopback
// only" environment constraint.
func DialLoopback(localPort, peerPort int) (Transport, error) {
	localAddr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: localPort}
	peerAddr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: peerPort}
	conn, err := net.DialUDP("udp4", localAddr, peerAddr)
	if err != nil {
		return nil, &FatalSocketError{Err: err}
	}
	return &udpTransport{conn: conn}, nil
}

func (t *udpTransport) Send(raw []byte) error {
	if _, err := t.conn.Write(raw); err != nil {
		return &FatalSocketError{Err: err}
	}
	return nil
}

func (t *udpTransport) Recv() ([]byte, error) {
	buf := make([]byte, MaxDatagram)
	n, err := t.conn.Read(buf)
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil, &FatalSocketError{Err: err}
		}
		return nil, &TransientSocketError{Err: err}
	}
	return buf[:n], nil
}

func (t *udpTransport) Close() error {
	return t.conn.Close()
}

// memTransport is an in-memory Transport used by tests: it delivers
// whatever is written on out to the paired memTransport's in channel.
type memTransport struct {
	out    chan<- []byte
	in     <-chan []byte
	closed chan struct{}
}

// NewPipe returns a connected pair of in-memory transports, for
// deterministic unit tests of the state machines.
func NewPipe() (Transport, Transport) {
	ab := make(chan []byte, 64)
	ba := make(chan []byte, 64)
	a := &memTransport{out: ab, in: ba, closed: make(chan struct{})}
	b := &memTransport{out: ba, in: ab, closed: make(chan struct{})}
	return a, b
}

func (t *memTransport) Send(raw []byte) error {
	cp := make([]byte, len(raw))
	copy(cp, raw)
	select {
	case t.out <- cp:
		return nil
	case <-t.closed:
		return &FatalSocketError{Err: fmt.Errorf("transport closed")}
	}
}

func (t *memTransport) Recv() ([]byte, error) {
	select {
	case raw, ok := <-t.in:
		if !ok {
			return nil, &FatalSocketError{Err: fmt.Errorf("peer closed")}
		}
		return raw, nil
	case <-t.closed:
		return nil, &FatalSocketError{Err: fmt.Errorf("transport closed")}
	}
}

func (t *memTransport) Close() error {
	select {
	case <-t.closed:
	default:
		close(t.closed)
	}
	return nil
}
