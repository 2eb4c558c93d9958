package relchan

import (
	"fmt"

	"github.com/nicosta1132/relchan/container"
)

type outgoingPacket struct {
	sequenceID int32
	sendCount  int
	createdAt  int64
	buffer     Buffer
	length     int
}

func (p *outgoingPacket) acked() bool {
	return p.buffer.IsEmpty()
}

// sendWindow holds every packet from the oldest unacknowledged one up to
// the newest. Slot i carries sequence id start+i. Acknowledged slots stay
// in place as empty entries until the head catches up with them.
type sendWindow struct {
	start      int32
	highestAck int32
	packets    []outgoingPacket
}

// end is the sequence id the next flushed packet receives.
func (w *sendWindow) end() int32 {
	return w.start + int32(len(w.packets))
}

func (w *sendWindow) len() int {
	return len(w.packets)
}

func (w *sendWindow) at(index int) *outgoingPacket {
	return &w.packets[index]
}

func (w *sendWindow) insertSequence(p outgoingPacket) error {
	if p.sequenceID != w.end() {
		return fmt.Errorf("not a sequence, cannot add %v after %v", p.sequenceID, w.end()-1)
	}
	w.packets = append(w.packets, p)
	return nil
}

// remove acknowledges sequenceID. It returns the packet whose buffer must
// be released (if any) and how many slots the head advanced by.
func (w *sendWindow) remove(sequenceID int32) (released outgoingPacket, advanced int, err error) {
	if sequenceID > w.highestAck {
		w.highestAck = sequenceID
	}
	if sequenceID < w.start {
		return
	}
	index := int(sequenceID - w.start)
	if index >= len(w.packets) {
		err = fmt.Errorf("%w: ack for unsent packet %d, send window %d..%d",
			ErrProtocolViolation, sequenceID, w.start, w.end())
		return
	}

	slot := &w.packets[index]
	if !slot.acked() {
		released = *slot
		slot.buffer = Buffer{}
	}

	for advanced < len(w.packets) && w.packets[advanced].acked() {
		w.packets[advanced] = outgoingPacket{}
		advanced++
	}
	if advanced > 0 {
		w.packets = w.packets[advanced:]
		w.start += int32(advanced)
	}
	return
}

// drain hands every held buffer to release and empties the window.
func (w *sendWindow) drain(release func(Buffer)) {
	for i := range w.packets {
		if !w.packets[i].acked() {
			release(w.packets[i].buffer)
		}
	}
	w.packets = nil
}

type incomingPacket struct {
	sequenceID int32
	buffer     Buffer
	length     int
}

func (p *incomingPacket) received() bool {
	return !p.buffer.IsEmpty()
}

// receiveWindow buffers packets from start (the lowest id not yet
// delivered) onward. Holes are placeholders without a buffer.
type receiveWindow struct {
	start   int32
	packets []incomingPacket
}

// slot returns the entry for sequenceID, growing the window with
// placeholders when needed. sequenceID must not be below start.
func (w *receiveWindow) slot(sequenceID int32) (*incomingPacket, error) {
	index := int(sequenceID - w.start)
	for index >= len(w.packets) {
		w.packets = append(w.packets, incomingPacket{sequenceID: w.start + int32(len(w.packets))})
	}
	p := &w.packets[index]
	if p.sequenceID != sequenceID {
		return nil, fmt.Errorf("%w: receive slot holds %d, expected %d",
			ErrProtocolViolation, p.sequenceID, sequenceID)
	}
	return p, nil
}

// writeAcks sets bit k when start+k has been received.
func (w *receiveWindow) writeAcks(acks container.Bitmap) {
	acks.Clear()
	n := len(w.packets)
	if n > acks.Len() {
		n = acks.Len()
	}
	for k := 0; k < n; k++ {
		if w.packets[k].received() {
			acks.Set(k)
		}
	}
}

// removeSequence hands the contiguous run of received packets at the head
// to deliver, oldest first, and advances start past them.
func (w *receiveWindow) removeSequence(deliver func(incomingPacket)) int {
	count := 0
	for count < len(w.packets) && w.packets[count].received() {
		deliver(w.packets[count])
		w.packets[count] = incomingPacket{}
		count++
	}
	if count > 0 {
		w.packets = w.packets[count:]
		w.start += int32(count)
	}
	return count
}

func (w *receiveWindow) drain(release func(Buffer)) {
	for i := range w.packets {
		if w.packets[i].received() {
			release(w.packets[i].buffer)
		}
	}
	w.packets = nil
}
