package relchan

import (
	log "github.com/sirupsen/logrus"
)

// Update is the tick. It flushes buffered data, sends due packets and
// acknowledgments and recomputes the congestion and timeout state. A
// disconnected channel ignores it.
func (c *Channel) Update() error {
	if c.disposed {
		return ErrDisposed
	}
	if c.Disconnected() {
		return nil
	}

	c.flushMessageBuffer()
	c.congested = false
	now := c.now()

	packetSent := false
	if !c.disconnecting {
		packetSent = c.transmitDue(now)
		c.checkCongested()
	}
	c.sendStandaloneAck(now, packetSent)
	c.updateIdleTimeout(now)
	return nil
}

// transmitDue walks the send window and transmits every packet whose
// moment has come. Only the part of the window the peer can acknowledge
// in one bitmap is retransmitted; never sent packets always go out. It
// stops at the first refused packet.
func (c *Channel) transmitDue(now int64) (packetSent bool) {
	c.resendables = c.resendables[:0]

	for i := 0; i < c.send.len(); i++ {
		p := c.send.at(i)
		if p.acked() {
			continue
		}

		beyondAckHead := c.send.start+int32(i) > c.send.highestAck
		if (i < WindowAckSize || p.sendCount == 0) && c.sendMoment(p, beyondAckHead) <= now {
			first := p.sendCount == 0
			if !c.transmit(p) {
				c.congested = true
				break
			}
			packetSent = true
			if first {
				c.stats.ContentBytes += int64(p.length - HeaderSize)
			} else {
				c.stats.ResendBytes += int64(p.length - HeaderSize)
			}
			p.sendCount = c.capStandOff(p.sendCount + 1)
		} else if len(c.resendables) < c.cfg.Resendables {
			c.resendables = append(c.resendables, i)
		}
	}
	return
}

func (c *Channel) transmit(p *outgoingPacket) bool {
	c.writeAckHeader(p.buffer.Data)
	if !c.tx.TransmitPacket(p.buffer.Data[:p.length]) {
		c.stats.Refused++
		return false
	}
	c.stats.HeaderBytes += HeaderSize
	return true
}

// sendStandaloneAck sends something carrying our ack state when no data
// went out this tick but an ack is owed: preferably one of the packets
// that was not due, round robin, otherwise a pure ack. Unsolicited acks
// back off exponentially while the link is quiet. A closing channel sends
// a close packet every tick.
func (c *Channel) sendStandaloneAck(now int64, packetSent bool) {
	if c.idleAckStandOff > c.cfg.MaxAckStandOff {
		c.idleAckStandOff = c.cfg.MaxAckStandOff
	}

	ackAt := c.idleAckAt
	if c.idleAckStandOff > 0 {
		ackAt += c.cfg.AckResendStandOff.millis() << uint(c.idleAckStandOff-1)
	}
	if c.ackRequested || packetSent {
		c.idleAckStandOff = 0
		c.idleAckAt = now
		ackAt = 0
		c.ackRequested = false
	}

	if !c.disconnecting && (packetSent || ackAt >= now) {
		return
	}

	if c.resendIndex >= len(c.resendables) {
		c.resendIndex = 0
	}
	if c.disconnecting || len(c.resendables) == 0 || c.resendables[c.resendIndex] >= c.send.len() {
		c.transmitMeta(now)
		return
	}

	p := c.send.at(c.resendables[c.resendIndex])
	if p.acked() {
		c.transmitMeta(now)
		return
	}
	if !c.transmit(p) {
		c.congested = true
		return
	}
	c.stats.ForcedResendBytes += int64(p.length - HeaderSize)
	p.sendCount = c.capStandOff(p.sendCount + 1)
	c.resendIndex++
	c.idleAckAt = now
	c.idleAckStandOff++
}

func (c *Channel) transmitMeta(now int64) {
	buffer := c.alloc.Allocate(metaPacketSize)
	defer c.alloc.Release(buffer)

	n := createMetaSegment(buffer.Data, c.localSignature, c.disconnecting, c.disconnectLoops)
	c.writeAckHeader(buffer.Data)
	if !c.tx.TransmitPacket(buffer.Data[:n]) {
		c.stats.Refused++
		c.congested = true
		return
	}
	c.stats.AckPacketBytes += int64(n)
	c.idleAckAt = now
	c.idleAckStandOff++
}

// updateIdleTimeout compares the silence since the last received packet
// with the idle timeout. While closing, the allowance shrinks with every
// close loop the peers went through and reaches zero after the last one.
func (c *Channel) updateIdleTimeout(now int64) {
	timeout := c.cfg.IdleTimeout.millis()
	if c.disconnecting {
		loops := int64(c.cfg.DisconnectLoops)
		if int64(c.disconnectLoops) >= loops {
			timeout = 0
		} else {
			timeout = c.cfg.DisconnectTimeout.millis() * (loops - int64(c.disconnectLoops)) / loops
		}
	}

	c.idleTimeout = now-c.lastReceived > timeout
	if c.idleTimeout {
		c.logger.WithFields(log.Fields{
			"silence_ms":    now - c.lastReceived,
			"closing":       c.disconnecting,
			"close_loops":   c.disconnectLoops,
			"send_window":   c.send.len(),
			"receive_queue": len(c.receive.packets),
		}).Info("Channel disconnected")
	}
}
