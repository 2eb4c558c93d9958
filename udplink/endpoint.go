// Package udplink runs a relchan.Channel over a UDP socket and exposes it
// as an io.ReadWriteCloser.
package udplink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/nicosta1132/relchan"
)

// maxDatagram is the largest UDP payload.
const maxDatagram = 65507

// openingAcks is how many datagrams an accepted endpoint sends before it
// processes anything from its peer.
const openingAcks = 3

var (
	// ErrLinkFailed is returned once the channel broke on a protocol violation.
	ErrLinkFailed = errors.New("udplink: link failed")

	// ErrAccepted is returned by a second Accept on the same Listener.
	ErrAccepted = errors.New("udplink: listener already accepted a peer")
)

// Endpoint is one end of a connection. Read, Write and Close may be called
// from different goroutines.
//
// The dialing side learns the listener's signature from the listener's
// first datagrams. If all of the listener's opening acks are lost and the
// listener sends no data, the dialing side never associates and times out.
type Endpoint struct {
	cfg     Config
	conn    *net.UDPConn
	peer    *net.UDPAddr
	dialed  bool
	limiter *rate.Limiter
	logger  *log.Entry

	mutex    sync.Mutex
	changed  *sync.Cond
	channel  *relchan.Channel
	incoming bytes.Buffer
	scratch  []byte
	disposed bool

	// An accepted endpoint holds back the peer's datagrams until it has
	// transmitted openingAcks datagrams. Until then its acks carry ack
	// head 0, which lets the peer latch our signature before we send data.
	opened      bool
	openingSent int
	pending     []byte

	done      chan struct{}
	loops     sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

func newEndpoint(conn *net.UDPConn, peer *net.UDPAddr, dialed bool, cfg Config, chanCfg relchan.Config) (*Endpoint, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ReadBuffer > 0 {
		if err := conn.SetReadBuffer(cfg.ReadBuffer); err != nil {
			return nil, err
		}
	}

	e := &Endpoint{
		cfg:    cfg,
		conn:   conn,
		peer:   peer,
		dialed: dialed,
		opened: dialed,
		logger: log.WithFields(log.Fields{
			"local":  conn.LocalAddr().String(),
			"remote": peer.String(),
		}),
		done: make(chan struct{}),
	}
	e.changed = sync.NewCond(&e.mutex)
	if cfg.PacketsPerSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.PacketsPerSecond), cfg.Burst)
	}

	channel, err := relchan.NewChannel(!dialed,
		relchan.NewPoolAllocator(chanCfg.OuterPacketSize),
		e, relchan.ReceiveFunc(func(message []byte) { e.incoming.Write(message) }),
		relchan.WithConfig(chanCfg),
		relchan.WithLogger(e.logger))
	if err != nil {
		return nil, err
	}
	e.channel = channel
	return e, nil
}

func (e *Endpoint) start() {
	e.loops.Add(2)
	go e.tickLoop()
	go e.receiveLoop()
}

// TransmitPacket is called by the channel with the endpoint mutex held.
// A datagram beyond the pacing budget is refused, which the channel
// reports as congestion.
func (e *Endpoint) TransmitPacket(packet []byte) bool {
	if e.limiter != nil && !e.limiter.Allow() {
		return false
	}

	datagram := packet
	if e.cfg.Checksum {
		e.scratch = appendChecksum(e.scratch, packet)
		datagram = e.scratch
	}

	var err error
	if e.dialed {
		_, err = e.conn.Write(datagram)
	} else {
		_, err = e.conn.WriteToUDP(datagram, e.peer)
	}
	if err != nil {
		e.logger.WithError(err).Debug("Transmitting datagram failed")
		return false
	}
	if !e.opened {
		e.openingSent++
	}
	return true
}

func (e *Endpoint) tickLoop() {
	defer e.loops.Done()

	ticker := time.NewTicker(time.Duration(e.cfg.Tick))
	defer ticker.Stop()

	for {
		select {
		case <-e.done:
			return
		case <-ticker.C:
			e.mutex.Lock()
			if err := e.channel.Update(); err != nil {
				e.logger.WithError(err).Warn("Channel update failed")
			}
			if !e.opened && e.openingSent >= openingAcks {
				e.opened = true
				if e.pending != nil {
					e.deliver(e.pending)
					e.pending = nil
				}
			}
			e.changed.Broadcast()
			e.mutex.Unlock()
		}
	}
}

func (e *Endpoint) receiveLoop() {
	defer e.loops.Done()

	buffer := make([]byte, maxDatagram)
	for {
		n, from, err := e.conn.ReadFromUDP(buffer)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			e.logger.WithError(err).Debug("Reading datagram failed")
			continue
		}
		e.receive(buffer[:n], from)
	}
}

func (e *Endpoint) receive(datagram []byte, from *net.UDPAddr) {
	if !e.dialed && !sameAddr(from, e.peer) {
		e.logger.WithField("from", from.String()).Debug("Dropping datagram from another peer")
		return
	}
	packet, ok := e.unwrap(datagram)
	if !ok {
		return
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()
	if e.disposed {
		return
	}
	if !e.opened {
		// The peer resends whatever is dropped here.
		if e.pending == nil {
			e.pending = append([]byte(nil), packet...)
		}
		return
	}
	e.deliver(packet)
	e.changed.Broadcast()
}

// deliver is called with the mutex held.
func (e *Endpoint) deliver(packet []byte) {
	if err := e.channel.ReceivePacket(packet); err != nil {
		e.logger.WithError(err).Debug("Datagram rejected")
	}
}

func (e *Endpoint) unwrap(datagram []byte) ([]byte, bool) {
	if !e.cfg.Checksum {
		return datagram, len(datagram) > 0
	}
	packet, ok := verifyChecksum(datagram)
	if !ok {
		e.logger.WithField("length", len(datagram)).Debug("Dropping datagram with bad checksum")
	}
	return packet, ok
}

func sameAddr(a, b *net.UDPAddr) bool {
	return a.Port == b.Port && a.IP.Equal(b.IP)
}

// Read blocks until stream data is available. It returns io.EOF once the
// connection is closed and everything received has been read.
func (e *Endpoint) Read(p []byte) (int, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	for e.incoming.Len() == 0 {
		switch {
		case e.disposed:
			return 0, io.EOF
		case e.channel.Failed():
			return 0, ErrLinkFailed
		case e.channel.Disconnected():
			return 0, io.EOF
		}
		e.changed.Wait()
	}
	return e.incoming.Read(p)
}

// Write queues p on the stream. It waits, one tick at a time, while the
// channel reports congestion.
func (e *Endpoint) Write(p []byte) (int, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	for !e.disposed && e.channel.Congested() && !e.channel.Disconnecting() {
		e.changed.Wait()
	}
	if e.disposed {
		return 0, io.ErrClosedPipe
	}
	if e.channel.Failed() {
		return 0, ErrLinkFailed
	}
	if err := e.channel.SendMessage(p); err != nil {
		if errors.Is(err, relchan.ErrClosing) {
			return 0, io.ErrClosedPipe
		}
		return 0, err
	}
	return len(p), nil
}

// Close runs the close handshake, bounded by the configured close timeout.
func (e *Endpoint) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(e.cfg.CloseTimeout))
	defer cancel()
	return e.Shutdown(ctx)
}

// Shutdown runs the close handshake until the channel is disconnected or
// ctx ends, then tears everything down. Later calls return the first
// result.
func (e *Endpoint) Shutdown(ctx context.Context) error {
	e.closeOnce.Do(func() {
		var errs error

		e.mutex.Lock()
		e.channel.Close()
		for !e.channel.Disconnected() && ctx.Err() == nil {
			// Every tick broadcasts.
			e.changed.Wait()
		}
		if err := ctx.Err(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("close handshake incomplete: %w", err))
		}
		e.mutex.Unlock()

		close(e.done)
		if err := e.conn.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
		e.loops.Wait()

		e.mutex.Lock()
		stats := e.channel.Stats()
		if err := e.channel.Dispose(); err != nil {
			errs = multierror.Append(errs, err)
		}
		e.disposed = true
		e.changed.Broadcast()
		e.mutex.Unlock()

		e.logger.WithFields(log.Fields{
			"transmitted": stats.TransmittedBytes(),
			"delivered":   stats.Delivered,
			"overhead":    fmt.Sprintf("%.3f", stats.Overhead()),
		}).Info("Endpoint closed")
		e.closeErr = errs
	})
	return e.closeErr
}

func (e *Endpoint) Stats() relchan.Stats {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.channel.Stats()
}

func (e *Endpoint) LocalAddr() net.Addr { return e.conn.LocalAddr() }

func (e *Endpoint) RemoteAddr() net.Addr { return e.peer }
