// Package relchan provides a reliable, ordered byte stream on top of an
// unreliable datagram link.
//
// A Channel is one end of a connection. It never touches a socket and owns
// no goroutine: the caller feeds it received datagrams, calls Update on
// every tick and hands the datagrams it produces to the network. The
// stream does not preserve message boundaries.
//
// A Channel is not safe for concurrent use. Callers serialize SendMessage,
// ReceivePacket, Update, Close and Dispose themselves.
package relchan

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// Transmitter puts one complete datagram on the network. Returning false
// means the datagram was refused; the channel reports congestion and the
// packet is retried by the normal schedule.
type Transmitter interface {
	TransmitPacket(packet []byte) bool
}

type TransmitFunc func(packet []byte) bool

func (f TransmitFunc) TransmitPacket(packet []byte) bool { return f(packet) }

// Receiver gets the reassembled stream, in order, one outer packet payload
// at a time. The slice is only valid during the call.
type Receiver interface {
	DeliverMessage(message []byte)
}

type ReceiveFunc func(message []byte)

func (f ReceiveFunc) DeliverMessage(message []byte) { f(message) }

// Option customizes a Channel at construction.
type Option func(*Channel)

func WithConfig(cfg Config) Option {
	return func(c *Channel) { c.cfg = cfg }
}

func WithClock(clock Clock) Option {
	return func(c *Channel) { c.clock = clock }
}

func WithLogger(logger log.FieldLogger) Option {
	return func(c *Channel) { c.logger = logger }
}

func WithSignatureSource(source SignatureSource) Option {
	return func(c *Channel) { c.signatureSource = source }
}

type Channel struct {
	cfg             Config
	alloc           Allocator
	tx              Transmitter
	rx              Receiver
	clock           Clock
	epoch           time.Time
	logger          log.FieldLogger
	signatureSource SignatureSource

	disposed bool

	messageBuffer       Buffer
	messageBufferOffset int

	send           sendWindow
	receive        receiveWindow
	sendSequenceID int32
	unackedBytes   int

	ackRequested    bool
	idleAckStandOff int
	idleAckAt       int64
	resendables     []int
	resendIndex     int

	lastReceived    int64
	idleTimeout     bool
	failed          bool
	congested       bool
	disconnecting   bool
	disconnectLoops int

	localSignature       uint32
	remoteSignature      uint32
	remoteSignatureKnown bool

	stats Stats
}

// NewChannel creates one end of a connection. Exactly one of the two peers
// must be the server side.
func NewChannel(serverSide bool, alloc Allocator, tx Transmitter, rx Receiver, opts ...Option) (*Channel, error) {
	switch {
	case alloc == nil:
		return nil, fmt.Errorf("%w: allocator", ErrNilCollaborator)
	case tx == nil:
		return nil, fmt.Errorf("%w: transmitter", ErrNilCollaborator)
	case rx == nil:
		return nil, fmt.Errorf("%w: receiver", ErrNilCollaborator)
	}

	c := &Channel{
		cfg:             DefaultConfig(),
		alloc:           alloc,
		tx:              tx,
		rx:              rx,
		clock:           SystemClock,
		logger:          log.StandardLogger(),
		signatureSource: uuidSignatureSource,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.cfg.Validate(); err != nil {
		return nil, err
	}

	c.localSignature = makeSignature(c.signatureSource(), serverSide)
	c.epoch = c.clock.Now()
	c.resendables = make([]int, 0, c.cfg.Resendables)
	c.logger = c.logger.WithFields(log.Fields{
		"component": "relchan",
		"signature": fmt.Sprintf("%08x", c.localSignature),
	})
	return c, nil
}

// now returns the milliseconds elapsed since the channel was created.
func (c *Channel) now() int64 {
	return c.clock.Now().Sub(c.epoch).Milliseconds()
}

func (c *Channel) Congested() bool { return c.congested }

// TimedOut reports an idle timeout that was not part of a close handshake.
func (c *Channel) TimedOut() bool { return c.idleTimeout && !c.disconnecting }

func (c *Channel) Failed() bool { return c.failed }

func (c *Channel) Disconnected() bool { return c.failed || c.idleTimeout }

func (c *Channel) Disconnecting() bool { return c.Disconnected() || c.disconnecting }

func (c *Channel) LocalSignature() uint32 { return c.localSignature }

func (c *Channel) RemoteSignature() (uint32, bool) {
	return c.remoteSignature, c.remoteSignatureKnown
}

// UnackedBytes is the size of every flushed packet not yet acknowledged.
func (c *Channel) UnackedBytes() int { return c.unackedBytes }

// Idle reports that nothing is buffered in either direction.
func (c *Channel) Idle() bool {
	return c.send.len() == 0 && len(c.receive.packets) == 0 && c.messageBuffer.IsEmpty()
}

func (c *Channel) Stats() Stats { return c.stats }

// SendMessage appends message to the outgoing stream. Data is cut into
// outer packets as it arrives; a partially filled packet goes out with
// the next Update.
func (c *Channel) SendMessage(message []byte) error {
	if c.disposed {
		return ErrDisposed
	}
	if c.Disconnecting() {
		return ErrClosing
	}

	for len(message) > 0 {
		if c.messageBuffer.IsEmpty() {
			c.messageBuffer = c.alloc.Allocate(c.cfg.OuterPacketSize)
			c.messageBufferOffset = HeaderSize
		}
		n := copy(c.messageBuffer.Data[c.messageBufferOffset:c.cfg.OuterPacketSize], message)
		c.messageBufferOffset += n
		message = message[n:]
		if c.messageBufferOffset == c.cfg.OuterPacketSize {
			c.flushMessageBuffer()
		}
	}
	return nil
}

func (c *Channel) flushMessageBuffer() {
	if c.messageBuffer.IsEmpty() || c.messageBufferOffset == HeaderSize {
		return
	}

	p := outgoingPacket{
		sequenceID: c.sendSequenceID,
		createdAt:  c.now(),
		buffer:     c.messageBuffer,
		length:     c.messageBufferOffset,
	}
	c.messageBuffer = Buffer{}
	c.messageBufferOffset = 0

	// The ack part is written at transmit time so it is never stale.
	setSignature(p.buffer.Data, c.localSignature)
	setSequenceID(p.buffer.Data, p.sequenceID)

	if err := c.send.insertSequence(p); err != nil {
		c.alloc.Release(p.buffer)
		c.fail(err)
		return
	}
	c.sendSequenceID++
	c.unackedBytes += p.length
	c.checkCongested()
}

// Close starts the close handshake. The channel keeps sending close
// packets on every Update until it is disconnected.
func (c *Channel) Close() {
	if c.disposed || c.disconnecting {
		return
	}
	c.disconnecting = true
	c.logger.Info("Close requested")
}

// Dispose releases every buffer the channel still holds. The channel is
// unusable afterwards.
func (c *Channel) Dispose() error {
	if c.disposed {
		return ErrDisposed
	}
	c.disposed = true
	c.failed = true

	c.resendables = nil
	c.send.drain(c.alloc.Release)
	c.receive.drain(c.alloc.Release)
	if !c.messageBuffer.IsEmpty() {
		c.alloc.Release(c.messageBuffer)
		c.messageBuffer = Buffer{}
	}
	c.unackedBytes = 0
	return nil
}

func (c *Channel) fail(err error) {
	if !c.failed {
		c.logger.WithFields(log.Fields{
			"error": err,
		}).Warn("Channel failed")
	}
	c.failed = true
}

func (c *Channel) checkCongested() {
	if c.send.len() > c.cfg.SendWindowFull || c.unackedBytes > c.cfg.UnackedDataLimit {
		c.congested = true
	}
}

func (c *Channel) writeAckHeader(buffer []byte) {
	setAckHead(buffer, c.receive.start)
	c.receive.writeAcks(ackBitmapOf(buffer))
}

func (c *Channel) capStandOff(sendCount int) int {
	if sendCount > c.cfg.MaxStandOff {
		return c.cfg.MaxStandOff
	}
	return sendCount
}

// sendMoment is the earliest time p may go out again. Unsent packets are
// always due. Packets beyond the highest selective ack have probably not
// reached the peer yet and wait longer than packets the peer acked around.
func (c *Channel) sendMoment(p *outgoingPacket, beyondAckHead bool) int64 {
	if p.sendCount == 0 {
		return 0
	}
	delay := c.cfg.MissedResendDelay.millis()
	if beyondAckHead {
		delay = c.cfg.InitialResendDelay.millis()
	}
	shift := uint(c.capStandOff(p.sendCount) - 1)
	return p.createdAt + (delay+c.cfg.ResendStandOff.millis())<<shift
}
