// Package conn owns the node's UDP socket: one IPv4 datagram socket per
// session, broadcast-enabled, with sequential port fallback on bind
// collision.
package conn

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"golang.org/x/net/ipv4"

	"localchat.dev/node/logging"
)

// ErrBindExhausted is returned when every port in the fallback range is
// already in use.
var ErrBindExhausted = errors.New("conn: bind exhausted")

const (
	maxBindAttempts = 5
	bindWatchdog    = 2 * time.Second
	broadcastTTL    = 1
)

// Transport owns the bound UDP socket for one session. Only Transport
// calls Send/receive on the socket; nothing else touches the fd.
type Transport struct {
	udp  *net.UDPConn
	pc   *ipv4.PacketConn
	port int
	log  *logging.Logger
}

// Bind opens a UDP socket, trying basePort, basePort+1, ..., up to
// maxBindAttempts total tries. Collisions (address already in use) are
// recoverable -- the next port is tried; any other bind error aborts the
// whole attempt immediately.
func Bind(basePort int, log *logging.Logger) (*Transport, error) {
	var lastErr error
	for attempt := 0; attempt < maxBindAttempts; attempt++ {
		port := basePort + attempt
		udp, err := bindOne(port)
		if err == nil {
			if err := enableBroadcast(udp); err != nil {
				udp.Close()
				return nil, fmt.Errorf("conn: enable broadcast: %w", err)
			}
			pc := ipv4.NewPacketConn(udp)
			if err := pc.SetTTL(broadcastTTL); err != nil && log != nil {
				log.Debug.Println("conn: could not pin broadcast TTL:", err)
			}
			bound := udp.LocalAddr().(*net.UDPAddr).Port
			if log != nil {
				log.Info.Printf("bound UDP socket on port %d (attempt %d)\n", bound, attempt+1)
			}
			return &Transport{udp: udp, pc: pc, port: bound, log: log}, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, err
		}
		lastErr = err
		if log != nil {
			log.Debug.Printf("conn: port %d in use, trying next\n", port)
		}
	}
	if log != nil {
		log.Error.Println("conn: bind exhausted:", lastErr)
	}
	return nil, ErrBindExhausted
}

func bindOne(port int) (*net.UDPConn, error) {
	done := make(chan struct{})
	var conn *net.UDPConn
	var err error
	go func() {
		conn, err = net.ListenUDP("udp4", &net.UDPAddr{Port: port})
		close(done)
	}()
	select {
	case <-done:
		return conn, err
	case <-time.After(bindWatchdog):
		return nil, fmt.Errorf("conn: bind watchdog expired for port %d", port)
	}
}

// Port reports the bound port.
func (t *Transport) Port() int { return t.port }

// Send is fire-and-forget. A PermissionDenied error -- common when
// broadcasting on a locked-down host -- is suppressed; everything else
// is logged but never returned to the caller's caller, per the
// propagation policy for per-datagram send errors.
func (t *Transport) Send(payload []byte, dst *net.UDPAddr) {
	_, err := t.udp.WriteToUDP(payload, dst)
	if err == nil {
		return
	}
	if errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) {
		return
	}
	if t.log != nil {
		t.log.Error.Println("conn: send error:", err)
	}
}

// Datagram is one received UDP payload with its source.
type Datagram struct {
	Payload []byte
	Source  *net.UDPAddr
}

// Receive blocks for the next inbound datagram. The returned Payload
// slice is only valid until the next call to Receive.
func (t *Transport) Receive(buf []byte) (Datagram, error) {
	n, src, err := t.udp.ReadFromUDP(buf)
	if err != nil {
		return Datagram{}, err
	}
	return Datagram{Payload: buf[:n], Source: src}, nil
}

// Close closes the socket. Safe to call once.
func (t *Transport) Close() error {
	return t.udp.Close()
}
