package udplink

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/nicosta1132/relchan"
)

// Dial connects to a listening peer and returns the client side of the
// connection. Nothing is sent before the first tick.
func Dial(ctx context.Context, address string, cfg Config, chanCfg relchan.Config) (*Endpoint, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "udp", address)
	if err != nil {
		return nil, err
	}
	udpConn := conn.(*net.UDPConn)

	e, err := newEndpoint(udpConn, udpConn.RemoteAddr().(*net.UDPAddr), true, cfg, chanCfg)
	if err != nil {
		_ = udpConn.Close()
		return nil, err
	}
	e.start()
	e.logger.Info("Dialed peer")
	return e, nil
}

// Listener waits on a bound socket for the one peer it will serve.
type Listener struct {
	conn    *net.UDPConn
	cfg     Config
	chanCfg relchan.Config

	mutex    sync.Mutex
	accepted atomic.Bool
}

func Listen(address string, cfg Config, chanCfg relchan.Config) (*Listener, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := chanCfg.Validate(); err != nil {
		return nil, err
	}
	udpAddress, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddress)
	if err != nil {
		return nil, err
	}
	return &Listener{conn: conn, cfg: cfg, chanCfg: chanCfg}, nil
}

func (l *Listener) Addr() net.Addr { return l.conn.LocalAddr() }

// Accept blocks until a datagram with a valid checksum arrives and returns
// the server side of a connection to its sender. The endpoint takes over
// the socket, so Accept succeeds at most once.
func (l *Listener) Accept(ctx context.Context) (*Endpoint, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.accepted.Load() {
		return nil, ErrAccepted
	}

	buffer := make([]byte, maxDatagram)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// Poll so a cancelled ctx is noticed without closing the socket.
		if err := l.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond)); err != nil {
			return nil, err
		}
		n, from, err := l.conn.ReadFromUDP(buffer)
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			continue
		}
		if err != nil {
			return nil, err
		}

		datagram := buffer[:n]
		if l.cfg.Checksum {
			if _, ok := verifyChecksum(datagram); !ok {
				log.WithField("from", from.String()).Debug("Ignoring datagram with bad checksum")
				continue
			}
		}
		if err := l.conn.SetReadDeadline(time.Time{}); err != nil {
			return nil, err
		}

		e, err := newEndpoint(l.conn, from, false, l.cfg, l.chanCfg)
		if err != nil {
			return nil, fmt.Errorf("accepting %v: %w", from, err)
		}
		l.accepted.Store(true)
		e.logger.Info("Accepted peer")
		e.receive(datagram, from)
		e.start()
		return e, nil
	}
}

// Close releases the socket unless an endpoint took it over. A pending
// Accept returns with an error.
func (l *Listener) Close() error {
	if l.accepted.Load() {
		return nil
	}
	return l.conn.Close()
}
