package relchan

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// SignatureSource yields the 32 random bits a channel derives its
// signature from.
type SignatureSource func() uint32

// uuidSignatureSource folds a random UUID into 32 bits.
func uuidSignatureSource() uint32 {
	id := uuid.New()
	var stamp uint32
	for i := 0; i < len(id); i += 4 {
		stamp ^= binary.LittleEndian.Uint32(id[i : i+4])
	}
	return stamp
}

// makeSignature keeps 31 random bits and uses the low bit for the role:
// 1 for the server side, 0 for the client side. Peers must differ in it.
func makeSignature(stamp uint32, serverSide bool) uint32 {
	signature := (stamp & 0x7fffffff) << 1
	if serverSide {
		signature |= 1
	}
	return signature
}

func sameRole(a, b uint32) bool {
	return a&1 == b&1
}

// opensSession reports whether a packet may latch the remote signature:
// the first payload packet, or a pure ack whose ack head is still zero.
// The latter covers a lost first packet.
func opensSession(h header) bool {
	return h.sequenceID == 0 || (h.sequenceID == noSequence && h.ackHead == 0)
}
