package relchan

import (
	"encoding/binary"
	"fmt"

	"github.com/nicosta1132/relchan/container"
)

// All multi-byte header fields are little-endian.
var byteOrder = binary.LittleEndian

type header struct {
	signature  uint32
	sequenceID int32
	ackHead    int32
	acks       container.Bitmap
}

func (h header) hasPayload() bool {
	return h.sequenceID != noSequence
}

// parseHeader reads the fixed header of a datagram. The returned bitmap
// aliases the datagram.
func parseHeader(packet []byte) (header, error) {
	if len(packet) < HeaderSize {
		return header{}, fmt.Errorf("%w: packet too short, length %d", ErrProtocolViolation, len(packet))
	}
	h := parseIdentity(packet)
	h.acks = container.Bitmap(packet[ackBitmapPosition.Start:ackBitmapPosition.End])
	return h, nil
}

// parseIdentity reads the fields that decide whether a datagram belongs
// to the session. packet must hold at least ackHeadPosition.End bytes.
func parseIdentity(packet []byte) header {
	return header{
		signature:  byteOrder.Uint32(packet[signaturePosition.Start:signaturePosition.End]),
		sequenceID: int32(byteOrder.Uint32(packet[sequencePosition.Start:sequencePosition.End])),
		ackHead:    int32(byteOrder.Uint32(packet[ackHeadPosition.Start:ackHeadPosition.End])),
	}
}

func setSignature(buffer []byte, signature uint32) {
	byteOrder.PutUint32(buffer[signaturePosition.Start:signaturePosition.End], signature)
}

func setSequenceID(buffer []byte, sequenceID int32) {
	byteOrder.PutUint32(buffer[sequencePosition.Start:sequencePosition.End], uint32(sequenceID))
}

func setAckHead(buffer []byte, head int32) {
	byteOrder.PutUint32(buffer[ackHeadPosition.Start:ackHeadPosition.End], uint32(head))
}

func ackBitmapOf(buffer []byte) container.Bitmap {
	return container.Bitmap(buffer[ackBitmapPosition.Start:ackBitmapPosition.End])
}

// createMetaSegment fills buffer with a payload-less header and, for a
// close command, the command byte and the saturated loop counter. It
// returns the number of bytes used. The ack part is left to the caller.
func createMetaSegment(buffer []byte, signature uint32, closing bool, loops int) int {
	setSignature(buffer, signature)
	setSequenceID(buffer, noSequence)
	n := HeaderSize
	if closing {
		if loops > 255 {
			loops = 255
		}
		buffer[n] = commandClose
		buffer[n+1] = byte(loops)
		n += 2
	}
	return n
}
