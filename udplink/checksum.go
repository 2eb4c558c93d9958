package udplink

import (
	"encoding/binary"

	"github.com/howeyc/crc16"
)

const checksumSize = 2

var crc16table = crc16.MakeTable(crc16.CCITT)

// appendChecksum appends the CRC-16 of packet to dst[:0] and returns it.
func appendChecksum(dst, packet []byte) []byte {
	dst = append(dst[:0], packet...)
	return binary.LittleEndian.AppendUint16(dst, crc16.Checksum(packet, crc16table))
}

// verifyChecksum strips the trailer from datagram and reports whether it
// matched.
func verifyChecksum(datagram []byte) ([]byte, bool) {
	if len(datagram) < checksumSize {
		return nil, false
	}
	packet := datagram[:len(datagram)-checksumSize]
	expected := binary.LittleEndian.Uint16(datagram[len(packet):])
	return packet, crc16.Checksum(packet, crc16table) == expected
}
