package relchan

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// ReceivePacket feeds one whole datagram from the network into the
// channel. Foreign and stale datagrams are dropped silently. A datagram
// that breaks the protocol fails the channel and the error is returned.
func (c *Channel) ReceivePacket(packet []byte) error {
	if c.disposed {
		return ErrDisposed
	}
	if len(packet) == 0 {
		return ErrEmptyPacket
	}
	if c.failed {
		return nil
	}

	h, err := parseHeader(packet)
	if err != nil {
		if !c.fromPeer(packet) {
			c.stats.PacketsDropped++
			return nil
		}
		c.fail(err)
		return err
	}
	if !c.acceptSignature(h) {
		c.stats.PacketsDropped++
		return nil
	}
	c.stats.PacketsReceived++
	now := c.now()

	if err := c.processAcks(h); err != nil {
		c.fail(err)
		return err
	}
	if h.hasPayload() {
		err = c.storePayload(h.sequenceID, packet)
	} else {
		err = c.processMeta(packet[metaCommandOffset:], now)
	}
	if err != nil {
		c.fail(err)
		return err
	}

	c.ackRequested = true
	if !c.disconnecting {
		c.lastReceived = now
	}
	return nil
}

// acceptSignature latches the peer's signature from the first packet that
// can open a session and afterwards only admits packets carrying it.
func (c *Channel) acceptSignature(h header) bool {
	if !c.remoteSignatureKnown {
		if sameRole(h.signature, c.localSignature) {
			c.logger.WithFields(log.Fields{
				"remote": fmt.Sprintf("%08x", h.signature),
			}).Debug("Dropping packet from a peer with the same role")
			return false
		}
		if !opensSession(h) {
			return false
		}
		c.remoteSignature = h.signature
		c.remoteSignatureKnown = true
		c.logger.WithFields(log.Fields{
			"remote": fmt.Sprintf("%08x", h.signature),
		}).Debug("Associated remote signature")
	}

	if h.signature != c.remoteSignature {
		c.logger.WithFields(log.Fields{
			"remote":   fmt.Sprintf("%08x", h.signature),
			"expected": fmt.Sprintf("%08x", c.remoteSignature),
		}).Debug("Dropping packet with a foreign signature")
		return false
	}
	return true
}

// fromPeer tells whether a datagram too short for a header still carries
// the session's signature. Only those break the protocol; the rest are
// dropped like any foreign datagram.
func (c *Channel) fromPeer(packet []byte) bool {
	if len(packet) >= ackHeadPosition.End {
		return c.acceptSignature(parseIdentity(packet))
	}
	if !c.remoteSignatureKnown || len(packet) < signaturePosition.End {
		return false
	}
	return byteOrder.Uint32(packet[signaturePosition.Start:signaturePosition.End]) == c.remoteSignature
}

// processAcks first acknowledges everything below the peer's ack head and
// then every id flagged in the bitmap.
func (c *Channel) processAcks(h header) error {
	if err := c.ackUpto(h.ackHead); err != nil {
		return err
	}

	var err error
	h.acks.ForEach(func(k int) bool {
		err = c.ack(h.ackHead + int32(k))
		return err == nil
	})
	return err
}

// ackUpto acknowledges up to, but not including, head.
func (c *Channel) ackUpto(head int32) error {
	if head > c.send.end() {
		return fmt.Errorf("%w: cumulative ack %d for unsent packets, send window %d..%d",
			ErrProtocolViolation, head, c.send.start, c.send.end())
	}
	for c.send.start < head {
		if err := c.ack(c.send.start); err != nil {
			return err
		}
	}
	return nil
}

func (c *Channel) ack(sequenceID int32) error {
	released, advanced, err := c.send.remove(sequenceID)
	if err != nil {
		return err
	}
	if !released.acked() {
		c.unackedBytes -= released.length
		c.alloc.Release(released.buffer)
	}
	if advanced > 0 {
		c.resendIndex -= advanced
		if c.resendIndex < 0 {
			c.resendIndex = 0
		}
	}
	return nil
}

// storePayload buffers a data packet and delivers the stream as far as it
// is contiguous. Ids below the receive window were delivered already.
func (c *Channel) storePayload(sequenceID int32, packet []byte) error {
	if sequenceID < c.receive.start {
		return nil
	}
	if sequenceID-c.receive.start >= int32(c.cfg.MaxReceiveAhead) {
		return fmt.Errorf("%w: packet %d is too far ahead of %d",
			ErrProtocolViolation, sequenceID, c.receive.start)
	}

	slot, err := c.receive.slot(sequenceID)
	if err != nil {
		return err
	}
	if !slot.received() {
		slot.buffer = c.alloc.Allocate(len(packet))
		if got := len(slot.buffer.Data); got < len(packet) {
			c.alloc.Release(slot.buffer)
			slot.buffer = Buffer{}
			return fmt.Errorf("allocator returned %d bytes, %d requested", got, len(packet))
		}
		slot.length = copy(slot.buffer.Data, packet)
	}

	if sequenceID == c.receive.start {
		c.receive.removeSequence(func(p incomingPacket) {
			message := p.buffer.Data[HeaderSize:p.length]
			c.stats.Delivered += int64(len(message))
			c.rx.DeliverMessage(message)
			c.alloc.Release(p.buffer)
		})
	}
	return nil
}

// processMeta runs the commands trailing a payload-less packet.
func (c *Channel) processMeta(commands []byte, now int64) error {
	for len(commands) > 0 {
		switch commands[0] {
		case commandClose:
			if len(commands) < 2 {
				return fmt.Errorf("%w: close command without loop count", ErrProtocolViolation)
			}
			loops := int(commands[1])
			if !c.disconnecting {
				c.lastReceived = now
				c.logger.WithFields(log.Fields{
					"close_loops": loops,
				}).Info("Peer requested close")
			}
			c.disconnecting = true
			if loops >= c.disconnectLoops {
				c.disconnectLoops = loops + 1
			}
			commands = commands[2:]

		default:
			return fmt.Errorf("%w: unknown meta command %d", ErrProtocolViolation, commands[0])
		}
	}
	return nil
}
